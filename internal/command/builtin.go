package command

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/joeycumines/behave/internal/config"
)

// HelpCommand lists commands, or describes one.
type HelpCommand struct {
	*BaseCommand
	registry *Registry
}

// NewHelpCommand creates the help command.
func NewHelpCommand(registry *Registry) *HelpCommand {
	return &HelpCommand{
		BaseCommand: NewBaseCommand("help", "Display help information for commands", "help [command]"),
		registry:    registry,
	}
}

func (c *HelpCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stdout, "behave - run and inspect event-driven behavior trees")
		_, _ = fmt.Fprintln(stdout)
		_, _ = fmt.Fprintln(stdout, "Usage: behave <command> [options] [args...]")
		_, _ = fmt.Fprintln(stdout)
		_, _ = fmt.Fprintln(stdout, "Commands:")
		w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
		for _, name := range c.registry.List() {
			if cmd, err := c.registry.Get(name); err == nil {
				_, _ = fmt.Fprintf(w, "  %s\t%s\n", name, cmd.Description())
			}
		}
		_ = w.Flush()
		_, _ = fmt.Fprintln(stdout)
		_, _ = fmt.Fprintln(stdout, "Use 'behave help <command>' for the flags of a command.")
		return nil
	}

	cmd, err := c.registry.Get(args[0])
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		return err
	}
	_, _ = fmt.Fprintf(stdout, "Command: %s\n", cmd.Name())
	_, _ = fmt.Fprintf(stdout, "Description: %s\n", cmd.Description())
	_, _ = fmt.Fprintf(stdout, "Usage: behave %s\n", cmd.Usage())

	var buf bytes.Buffer
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(&buf)
	cmd.SetupFlags(fs)
	fs.PrintDefaults()
	if buf.Len() > 0 {
		_, _ = fmt.Fprintf(stdout, "\nFlags:\n%s", buf.String())
	}
	return nil
}

// VersionCommand prints the version.
type VersionCommand struct {
	*BaseCommand
	version string
}

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *VersionCommand {
	return &VersionCommand{
		BaseCommand: NewBaseCommand("version", "Display version information", "version"),
		version:     version,
	}
}

func (c *VersionCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
		return errors.New("unexpected arguments")
	}
	_, _ = fmt.Fprintf(stdout, "behave version %s\n", c.version)
	return nil
}

// ConfigCommand shows, validates and edits the configuration.
type ConfigCommand struct {
	*BaseCommand
	config  *config.Config
	path    string
	section string
	schema  bool
}

// NewConfigCommand creates the config command. Values set through it are
// persisted to path, unless path is empty.
func NewConfigCommand(cfg *config.Config, path string) *ConfigCommand {
	return &ConfigCommand{
		BaseCommand: NewBaseCommand("config", "Show, validate or set configuration", "config [-schema] [-section name] [validate | key [value]]"),
		config:      cfg,
		path:        path,
	}
}

func (c *ConfigCommand) SetupFlags(fs *flag.FlagSet) {
	c.BaseCommand.SetupFlags(fs)
	fs.BoolVar(&c.schema, "schema", false, "Print every known option")
	fs.StringVar(&c.section, "section", "", "Resolve keys for this command section")
}

func (c *ConfigCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	schema := config.DefaultSchema()
	if c.schema {
		_, _ = fmt.Fprint(stdout, schema.FormatHelp())
		return nil
	}

	switch {
	case len(args) == 0:
		return c.show(schema, stdout)
	case len(args) == 1 && args[0] == "validate":
		issues := config.ValidateConfig(c.config, schema)
		if len(issues) == 0 {
			_, _ = fmt.Fprintln(stdout, "Configuration is valid.")
			return nil
		}
		_, _ = fmt.Fprintf(stdout, "Configuration has %d issue(s):\n", len(issues))
		for _, issue := range issues {
			_, _ = fmt.Fprintf(stdout, "  - %s\n", issue)
		}
		return fmt.Errorf("invalid configuration")
	case len(args) == 1:
		key := args[0]
		if schema.Lookup(c.section, key) == nil && schema.Lookup("", key) == nil {
			_, _ = fmt.Fprintf(stderr, "Unknown option: %s\n", key)
			return fmt.Errorf("unknown option %q", key)
		}
		_, _ = fmt.Fprintf(stdout, "%s: %s\n", key, schema.Resolve(c.config, c.section, key))
		return nil
	case len(args) == 2:
		key, value := args[0], args[1]
		opt := schema.Lookup("", key)
		if opt == nil {
			_, _ = fmt.Fprintf(stderr, "Unknown global option: %s\n", key)
			return fmt.Errorf("unknown option %q", key)
		}
		probe := config.NewConfig()
		probe.SetGlobalOption(key, value)
		if issues := config.ValidateConfig(probe, schema); len(issues) > 0 {
			_, _ = fmt.Fprintln(stderr, issues[0])
			return fmt.Errorf("invalid value for %q", key)
		}
		c.config.SetGlobalOption(key, value)
		if c.path != "" {
			if err := config.SetKeyInFile(c.path, key, value); err != nil {
				return fmt.Errorf("failed to persist config: %w", err)
			}
		}
		_, _ = fmt.Fprintf(stdout, "Set configuration: %s = %s\n", key, value)
		return nil
	default:
		_, _ = fmt.Fprintln(stderr, "Invalid number of arguments")
		return errors.New("invalid arguments")
	}
}

// show prints the effective value of every option of the section.
func (c *ConfigCommand) show(schema *config.ConfigSchema, stdout io.Writer) error {
	w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	opts := schema.Options("")
	if c.section != "" {
		opts = append(opts, schema.Options(c.section)...)
	}
	for _, o := range opts {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", o.Key, schema.Resolve(c.config, c.section, o.Key))
	}
	return w.Flush()
}
