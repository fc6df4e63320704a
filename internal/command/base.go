package command

import (
	"context"
	"flag"
	"io"
)

// Command is a behave subcommand.
type Command interface {
	Name() string
	Description() string
	Usage() string

	// SetupFlags registers the command's flags on fs before parsing.
	SetupFlags(fs *flag.FlagSet)

	// Execute runs the command with the arguments left after flag parsing.
	Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error
}

// BaseCommand implements the descriptive parts of Command.
type BaseCommand struct {
	name        string
	description string
	usage       string
	flags       *flag.FlagSet
}

// NewBaseCommand creates a BaseCommand.
func NewBaseCommand(name, description, usage string) *BaseCommand {
	return &BaseCommand{name: name, description: description, usage: usage}
}

func (c *BaseCommand) Name() string        { return c.name }
func (c *BaseCommand) Description() string { return c.description }
func (c *BaseCommand) Usage() string       { return c.usage }

// SetupFlags records fs without defining flags.
func (c *BaseCommand) SetupFlags(fs *flag.FlagSet) { c.flags = fs }

// flagSet reports whether the flag called name was given explicitly.
func (c *BaseCommand) flagSet(name string) bool {
	if c.flags == nil {
		return false
	}
	found := false
	c.flags.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
