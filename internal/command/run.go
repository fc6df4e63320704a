package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/joeycumines/behave/internal/clock"
	"github.com/joeycumines/behave/internal/config"
	"github.com/joeycumines/behave/internal/demo"
	"github.com/joeycumines/behave/internal/exprcond"
	"github.com/joeycumines/behave/internal/hostloop"
	"github.com/joeycumines/behave/internal/inspect"
	"github.com/joeycumines/behave/internal/logging"
	"github.com/joeycumines/behave/internal/tree"
)

// treeCommand holds what run and watch share: config resolution, logging
// and construction of the demo tree.
type treeCommand struct {
	*BaseCommand
	config  *config.Config
	section string

	interval time.Duration
	seed     uint64
	script   string
	once     bool
	verbose  bool
	color    string
	logFile  string
	logLevel string
}

func newTreeCommand(section, description, usage string, cfg *config.Config) treeCommand {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return treeCommand{BaseCommand: NewBaseCommand(section, description, usage), config: cfg, section: section}
}

func (c *treeCommand) SetupFlags(fs *flag.FlagSet) {
	c.BaseCommand.SetupFlags(fs)
	fs.DurationVar(&c.interval, "interval", 0, "Wall time per tick (default from tick.interval)")
	fs.Uint64Var(&c.seed, "seed", 0, "Random seed, 0 for a random one (default from tree.seed)")
	fs.StringVar(&c.script, "script", "", "JavaScript file overriding the scripted leaves")
	fs.BoolVar(&c.once, "once", false, "Stop when the tree completes instead of restarting it")
	fs.BoolVar(&c.verbose, "v", false, "Log node lifecycle at debug level")
	fs.StringVar(&c.color, "color", "", "Color output: auto, always or never")
	fs.StringVar(&c.logFile, "log-file", "", "Write JSON logs to this file")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn or error")
}

// settings resolves the configuration, with explicit flags taking
// precedence.
func (c *treeCommand) settings() (config.Settings, error) {
	s, err := config.DefaultSchema().Settings(c.config, c.section)
	if err != nil {
		return s, err
	}
	if c.flagSet("interval") {
		s.TickInterval = c.interval
	}
	if c.flagSet("seed") {
		s.Seed = c.seed
	}
	if c.flagSet("script") {
		s.Script = c.script
	}
	if c.flagSet("once") {
		s.Repeat = !c.once
	}
	if c.flagSet("v") {
		s.Verbose = c.verbose
	}
	if c.flagSet("color") {
		s.Color = c.color
	}
	if c.flagSet("log-file") {
		s.Log.File = c.logFile
	}
	if c.flagSet("log-level") {
		s.Log.Level = c.logLevel
	}

	if s.TickInterval <= 0 {
		return s, fmt.Errorf("tick interval must be positive, got %s", s.TickInterval)
	}
	switch s.Color {
	case "auto", "always", "never":
	default:
		return s, fmt.Errorf("invalid color mode: %s", s.Color)
	}
	if s.Seed == 0 {
		s.Seed = rand.Uint64()
	}
	return s, nil
}

// build creates the demo agent and a driver for it.
func (c *treeCommand) build(s config.Settings, logger *slog.Logger) (*demo.Agent, *hostloop.Driver, error) {
	exprcond.SetCacheSize(s.ExprCacheSize)
	opts := []demo.Option{
		demo.WithSeed(s.Seed),
		demo.WithLogger(logger),
		demo.WithRepeat(s.Repeat),
		demo.WithClockOptions(clock.WithPoolSize(s.PoolSize)),
	}
	if s.Script != "" {
		src, err := os.ReadFile(s.Script)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read script: %w", err)
		}
		opts = append(opts, demo.WithScript(s.Script, string(src)))
	}
	agent, err := demo.New(opts...)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("[BT] tree ready",
		"tree", agent.Root.InstanceID(),
		"nodes", len(agent.Root.Nodes()),
		"seed", s.Seed,
		"interval", s.TickInterval,
	)
	return agent, hostloop.NewDriver(agent.Root), nil
}

// RunCommand runs the demo tree headless and prints its final state.
type RunCommand struct {
	treeCommand
	ticks int
	json  bool
}

// NewRunCommand creates the run command.
func NewRunCommand(cfg *config.Config) *RunCommand {
	return &RunCommand{treeCommand: newTreeCommand("run",
		"Run the demo tree and print its final state",
		"run [-ticks N] [-interval D] [-json] [options]", cfg)}
}

func (c *RunCommand) SetupFlags(fs *flag.FlagSet) {
	c.treeCommand.SetupFlags(fs)
	fs.IntVar(&c.ticks, "ticks", 0, "Stop after N ticks, 0 to run until the tree completes (default from tick.count)")
	fs.BoolVar(&c.json, "json", false, "Print the final snapshot as JSON")
}

func (c *RunCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
		return errors.New("unexpected arguments")
	}
	s, err := c.settings()
	if err != nil {
		return err
	}
	if c.flagSet("ticks") {
		s.TickCount = c.ticks
	}
	if c.flagSet("json") {
		s.JSON = c.json
	}
	if s.TickCount < 0 {
		return fmt.Errorf("tick count must not be negative, got %d", s.TickCount)
	}
	if s.TickCount == 0 && s.Repeat {
		_, _ = fmt.Fprintln(stderr, "Running until interrupted; use -ticks or -once to stop earlier.")
	}

	logger, err := logging.New(s.Log, s.Verbose, stderr)
	if err != nil {
		return err
	}
	defer logger.Close()

	agent, driver, err := c.build(s, logger.Logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	err = driver.Run(ctx, s.TickInterval, hostloop.WithMaxTicks(s.TickCount))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	var snap inspect.Snapshot
	driver.Do(func(root *tree.Root) { snap = inspect.Capture(root) })
	logger.Info("[BT] run finished", "tree", snap.Instance, "ticks", driver.Ticks(), "kills", agent.World.Kills())

	if s.JSON {
		data, err := snap.JSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "%s\n", data)
		return err
	}
	r := inspect.NewRenderer(inspect.NewStyles(lipglossRenderer(s.Color, stdout)))
	_, err = io.WriteString(stdout, r.Render(snap))
	return err
}

// WatchCommand runs the demo tree in an interactive terminal view.
type WatchCommand struct {
	treeCommand
	stdin  io.Reader
	paused bool
}

// NewWatchCommand creates the watch command, reading keys from stdin.
func NewWatchCommand(cfg *config.Config, stdin io.Reader) *WatchCommand {
	return &WatchCommand{
		treeCommand: newTreeCommand("watch",
			"Watch the demo tree tick in an interactive view",
			"watch [-paused] [-interval D] [options]", cfg),
		stdin: stdin,
	}
}

func (c *WatchCommand) SetupFlags(fs *flag.FlagSet) {
	c.treeCommand.SetupFlags(fs)
	fs.BoolVar(&c.paused, "paused", false, "Start paused, step with n (default from [watch] paused)")
}

func (c *WatchCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
		return errors.New("unexpected arguments")
	}
	s, err := c.settings()
	if err != nil {
		return err
	}
	if c.flagSet("paused") {
		s.Paused = c.paused
	}

	// The view owns the terminal, so without a log file records are held
	// in memory and printed once it exits.
	var (
		logger *logging.Logger
		buffer *logging.Buffer
	)
	if s.Log.File != "" {
		if logger, err = logging.New(s.Log, s.Verbose, stderr); err != nil {
			return err
		}
	} else {
		level, err := logging.ParseLevel(s.Log.Level)
		if err != nil {
			return err
		}
		if s.Verbose {
			level = slog.LevelDebug
		}
		buffer = logging.NewBuffer(500, level)
		logger = &logging.Logger{Logger: slog.New(buffer)}
	}
	defer logger.Close()

	_, driver, err := c.build(s, logger.Logger)
	if err != nil {
		return err
	}
	defer driver.Close()
	if err := driver.Start(); err != nil {
		return err
	}

	err = inspect.Watch(ctx, driver, c.stdin, stdout,
		inspect.WithInterval(s.TickInterval),
		inspect.WithPaused(s.Paused),
		inspect.WithLipglossRenderer(lipglossRenderer(s.Color, stdout)),
	)
	if buffer != nil {
		_, _ = buffer.WriteTo(stderr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
