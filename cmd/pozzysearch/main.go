package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"PozzySearch/internal/app"
	"PozzySearch/internal/config"
	"PozzySearch/internal/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}

	application := &cli.App{
		Name:  "pozzysearch",
		Usage: "Search apparel across Brazilian marketplaces and retailers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				EnvVars: []string{"POZZY_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"POZZY_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				EnvVars: []string{"POZZY_LOG_FORMAT"},
			},
		},
		Commands: []*cli.Command{
			searchCommand(),
			sourcesCommand(),
			historyCommand(),
			serveCommand(),
		},
	}

	if err := application.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withApp loads configuration, wires the application and runs fn with a
// context cancelled on SIGINT/SIGTERM.
func withApp(c *cli.Context, fn func(ctx context.Context, a *app.Application) error) error {
	cfg := config.LoadFrom(c.String("config"))
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stdout is reserved for command output
	logger := logging.NewWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close application", "error", err)
		}
	}()

	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
