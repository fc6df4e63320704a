package config

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// OptionType is the expected type of an option value.
type OptionType string

const (
	TypeString   OptionType = "string"
	TypeBool     OptionType = "bool"
	TypeInt      OptionType = "int"
	TypeDuration OptionType = "duration"
	// TypeEnum restricts the value to ConfigOption.Choices.
	TypeEnum OptionType = "enum"
)

// ConfigOption declares one option.
type ConfigOption struct {
	Key         string
	Type        OptionType
	Default     string
	Description string
	// Section is "" for global options.
	Section string
	// EnvVar, when set, overrides both file and default.
	EnvVar  string
	Choices []string
	// Min is the smallest accepted TypeInt value.
	Min int
}

// ConfigSchema is the set of known options, used for validation, typed
// resolution and help output.
type ConfigSchema struct {
	options   []*ConfigOption
	bySection map[string]map[string]*ConfigOption
}

// NewSchema creates an empty schema.
func NewSchema() *ConfigSchema {
	return &ConfigSchema{bySection: map[string]map[string]*ConfigOption{"": {}}}
}

// Register adds opt. Registering the same section and key twice replaces
// the earlier declaration.
func (s *ConfigSchema) Register(opts ...ConfigOption) {
	for _, opt := range opts {
		ref := &opt
		if s.bySection[opt.Section] == nil {
			s.bySection[opt.Section] = make(map[string]*ConfigOption)
		}
		if old := s.bySection[opt.Section][opt.Key]; old != nil {
			*old = opt
			continue
		}
		s.bySection[opt.Section][opt.Key] = ref
		s.options = append(s.options, ref)
	}
}

// Lookup returns the option declared in section, or nil.
func (s *ConfigSchema) Lookup(section, key string) *ConfigOption {
	return s.bySection[section][key]
}

// find resolves key in section, falling back to the global declaration.
func (s *ConfigSchema) find(section, key string) *ConfigOption {
	if opt := s.Lookup(section, key); opt != nil {
		return opt
	}
	return s.Lookup("", key)
}

// Options returns the options of section in registration order.
func (s *ConfigSchema) Options(section string) []ConfigOption {
	var out []ConfigOption
	for _, o := range s.options {
		if o.Section == section {
			out = append(out, *o)
		}
	}
	return out
}

// Sections returns the sorted non-global section names.
func (s *ConfigSchema) Sections() []string {
	out := slices.Sorted(maps.Keys(s.bySection))
	return slices.DeleteFunc(out, func(v string) bool { return v == "" })
}

// Resolve returns the effective value of key for section, checking the
// declared environment variable, then the section, then the global
// option, then the default.
func (s *ConfigSchema) Resolve(c *Config, section, key string) string {
	opt := s.find(section, key)
	if opt != nil && opt.EnvVar != "" {
		if v, ok := os.LookupEnv(opt.EnvVar); ok {
			return v
		}
	}
	if c != nil {
		if v, ok := c.GetSectionOption(section, key); ok {
			return v
		}
	}
	if opt != nil {
		return opt.Default
	}
	return ""
}

// ResolveBool is Resolve parsed as a bool.
func (s *ConfigSchema) ResolveBool(c *Config, section, key string) (bool, error) {
	v := s.Resolve(c, section, key)
	if v == "" {
		return false, nil
	}
	b, err := parseBool(v)
	if err != nil {
		return false, fmt.Errorf("option %q: %w", key, err)
	}
	return b, nil
}

// ResolveInt is Resolve parsed as an int.
func (s *ConfigSchema) ResolveInt(c *Config, section, key string) (int, error) {
	v := s.Resolve(c, section, key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("option %q: expected int, got %q", key, v)
	}
	return n, nil
}

// ResolveDuration is Resolve parsed as a time.Duration.
func (s *ConfigSchema) ResolveDuration(c *Config, section, key string) (time.Duration, error) {
	v := s.Resolve(c, section, key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("option %q: expected duration, got %q", key, v)
	}
	return d, nil
}

// ValidateConfig returns a sorted list of unknown options and type
// mismatches in c. Options in a section may also be any global option.
func ValidateConfig(c *Config, s *ConfigSchema) []string {
	var issues []string
	for key, value := range c.Global {
		opt := s.Lookup("", key)
		if opt == nil {
			issues = append(issues, fmt.Sprintf("unknown global option: %q (value: %q)", key, value))
			continue
		}
		if err := opt.validate(value); err != nil {
			issues = append(issues, fmt.Sprintf("global option %q: %v", key, err))
		}
	}
	for section, opts := range c.Sections {
		for key, value := range opts {
			opt := s.find(section, key)
			if opt == nil {
				issues = append(issues, fmt.Sprintf("unknown option in [%s]: %q (value: %q)", section, key, value))
				continue
			}
			if err := opt.validate(value); err != nil {
				issues = append(issues, fmt.Sprintf("option %q in [%s]: %v", key, section, err))
			}
		}
	}
	slices.Sort(issues)
	return issues
}

func (o *ConfigOption) validate(value string) error {
	switch o.Type {
	case TypeString, "":
	case TypeBool:
		if _, err := parseBool(value); err != nil {
			return fmt.Errorf("expected bool, got %q", value)
		}
	case TypeInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("expected int, got %q", value)
		}
		if n < o.Min {
			return fmt.Errorf("expected int >= %d, got %d", o.Min, n)
		}
	case TypeDuration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("expected duration, got %q", value)
		}
		if d < 0 {
			return fmt.Errorf("expected non-negative duration, got %q", value)
		}
	case TypeEnum:
		if !slices.Contains(o.Choices, strings.ToLower(value)) {
			return fmt.Errorf("expected one of %s, got %q", strings.Join(o.Choices, ", "), value)
		}
	default:
		return fmt.Errorf("unknown option type %q", o.Type)
	}
	return nil
}

// FormatHelp lists every option, globals first, then each section.
func (s *ConfigSchema) FormatHelp() string {
	var b strings.Builder
	if globals := s.Options(""); len(globals) > 0 {
		b.WriteString("Global Options:\n")
		for _, o := range globals {
			writeOptionHelp(&b, o)
		}
	}
	for _, sec := range s.Sections() {
		opts := s.Options(sec)
		if len(opts) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n[%s] Options:\n", sec)
		for _, o := range opts {
			writeOptionHelp(&b, o)
		}
	}
	return b.String()
}

func writeOptionHelp(b *strings.Builder, o ConfigOption) {
	fmt.Fprintf(b, "  %-20s %s", o.Key, o.Description)
	var parts []string
	switch o.Type {
	case TypeString, "":
	case TypeEnum:
		parts = append(parts, "one of: "+strings.Join(o.Choices, "|"))
	default:
		parts = append(parts, "type: "+string(o.Type))
	}
	if o.Default != "" {
		parts = append(parts, "default: "+o.Default)
	}
	if o.EnvVar != "" {
		parts = append(parts, "env: "+o.EnvVar)
	}
	if len(parts) > 0 {
		fmt.Fprintf(b, " (%s)", strings.Join(parts, ", "))
	}
	b.WriteString("\n")
}

// DefaultSchema declares every option behave understands.
func DefaultSchema() *ConfigSchema {
	s := NewSchema()
	s.Register(
		ConfigOption{Key: "verbose", Type: TypeBool, Default: "false", Description: "Log node lifecycle at debug level"},
		ConfigOption{Key: "color", Type: TypeEnum, Default: "auto", Choices: []string{"auto", "always", "never"}, Description: "Color output", EnvVar: "BEHAVE_COLOR"},

		ConfigOption{Key: "tick.interval", Type: TypeDuration, Default: "100ms", Description: "Wall time between clock ticks"},
		ConfigOption{Key: "tick.count", Type: TypeInt, Default: "0", Description: "Stop after this many ticks, 0 runs until the tree completes"},
		ConfigOption{Key: "clock.pool-size", Type: TypeInt, Default: "64", Description: "Idle timer records kept for reuse"},
		ConfigOption{Key: "tree.repeat", Type: TypeBool, Default: "true", Description: "Restart the root child after it completes"},
		ConfigOption{Key: "tree.seed", Type: TypeInt, Default: "0", Description: "Seed for random composites and decorators, 0 seeds from entropy"},
		ConfigOption{Key: "tree.script", Type: TypeString, Description: "JavaScript file overriding the demo's scripted leaves"},
		ConfigOption{Key: "expr.cache-size", Type: TypeInt, Default: "1000", Min: 1, Description: "Compiled expression cache capacity"},

		ConfigOption{Key: "log.file", Type: TypeString, Description: "JSON log file, empty logs to stderr", EnvVar: "BEHAVE_LOG_FILE"},
		ConfigOption{Key: "log.level", Type: TypeEnum, Default: "info", Choices: []string{"debug", "info", "warn", "error"}, Description: "Log level", EnvVar: "BEHAVE_LOG_LEVEL"},
		ConfigOption{Key: "log.max-size-mb", Type: TypeInt, Default: "10", Min: 1, Description: "Log file size that triggers rotation"},
		ConfigOption{Key: "log.max-files", Type: TypeInt, Default: "5", Description: "Rotated log files kept"},

		ConfigOption{Key: "json", Section: "run", Type: TypeBool, Default: "false", Description: "Print the final snapshot as JSON"},
		ConfigOption{Key: "paused", Section: "watch", Type: TypeBool, Default: "false", Description: "Start the watcher paused"},
	)
	return s
}

// LogSettings configures the log sink.
type LogSettings struct {
	File      string
	Level     string
	MaxSizeMB int
	MaxFiles  int
}

// Settings is the resolved, typed view of a configuration for one command.
type Settings struct {
	Verbose       bool
	Color         string
	TickInterval  time.Duration
	TickCount     int
	PoolSize      int
	Repeat        bool
	Seed          uint64
	Script        string
	ExprCacheSize int
	JSON          bool
	Paused        bool
	Log           LogSettings
}

// Settings resolves every option for section. The first invalid value is
// returned as an error.
func (s *ConfigSchema) Settings(c *Config, section string) (Settings, error) {
	var (
		out  Settings
		errs []error
	)
	boolean := func(key string, dst *bool) {
		v, err := s.ResolveBool(c, section, key)
		errs = append(errs, err)
		*dst = v
	}
	integer := func(key string, dst *int) {
		v, err := s.ResolveInt(c, section, key)
		errs = append(errs, err)
		*dst = v
	}

	boolean("verbose", &out.Verbose)
	boolean("tree.repeat", &out.Repeat)
	boolean("json", &out.JSON)
	boolean("paused", &out.Paused)
	integer("tick.count", &out.TickCount)
	integer("clock.pool-size", &out.PoolSize)
	integer("expr.cache-size", &out.ExprCacheSize)
	integer("log.max-size-mb", &out.Log.MaxSizeMB)
	integer("log.max-files", &out.Log.MaxFiles)

	var seed int
	integer("tree.seed", &seed)
	out.Seed = uint64(seed)

	d, err := s.ResolveDuration(c, section, "tick.interval")
	errs = append(errs, err)
	out.TickInterval = d

	out.Color = strings.ToLower(s.Resolve(c, section, "color"))
	out.Script = s.Resolve(c, section, "tree.script")
	out.Log.File = s.Resolve(c, section, "log.file")
	out.Log.Level = strings.ToLower(s.Resolve(c, section, "log.level"))

	for _, key := range []string{"color", "log.level"} {
		if opt := s.find(section, key); opt != nil {
			if err := opt.validate(s.Resolve(c, section, key)); err != nil {
				errs = append(errs, fmt.Errorf("option %q: %w", key, err))
			}
		}
	}

	for _, err := range errs {
		if err != nil {
			return Settings{}, err
		}
	}
	return out, nil
}
