package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/behave/internal/command"
	"github.com/joeycumines/behave/internal/config"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return err
	}

	registry := command.NewRegistry()
	registry.Register(
		command.NewHelpCommand(registry),
		command.NewVersionCommand(version),
		command.NewConfigCommand(cfg, path),
		command.NewRunCommand(cfg),
		command.NewWatchCommand(cfg, stdin),
	)
	return registry.Run(ctx, args, stdout, stderr)
}
