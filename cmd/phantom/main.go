package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/JonMunkholm/phantom/internal/config"
	"github.com/JonMunkholm/phantom/internal/core"
	"github.com/JonMunkholm/phantom/internal/logging"
)

// exitDuplicates is the process exit code when an import is blocked.
const exitDuplicates = 2

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := newApp(os.Stdout, os.Stderr)
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", core.MapError(err))
		slog.Debug("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// env carries the settings resolved in Before to every command.
type env struct {
	stdout io.Writer
	stderr io.Writer
	cfg    *config.Config
	logger *slog.Logger
}

func newApp(stdout, stderr io.Writer) *cli.App {
	e := &env{stdout: stdout, stderr: stderr}

	return &cli.App{
		Name:      "phantom",
		Usage:     "Import people from CSV with duplicate detection",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Set logging format (text, json)",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from `FILE` if it exists",
				Value: ".env",
			},
		},
		Before: e.setup,
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Import a people CSV unless it contains duplicates",
				ArgsUsage: "FILE",
				Action:    e.importCommand,
				Flags: append([]cli.Flag{
					&cli.BoolFlag{
						Name:  "check-only",
						Usage: "Only report duplicates, never write",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the result as JSON",
					},
				}, storeFlags()...),
			},
			{
				Name:      "check",
				Usage:     "Report duplicates without importing",
				ArgsUsage: "FILE",
				Action:    e.checkCommand,
				Flags: append([]cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the result as JSON",
					},
				}, storeFlags()...),
			},
			{
				Name:   "stats",
				Usage:  "Print row counts of the importer tables",
				Action: e.statsCommand,
				Flags: append([]cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the counts as JSON",
					},
				}, storeFlags()...),
			},
			{
				Name:   "init",
				Usage:  "Create the importer tables if they do not exist",
				Action: e.initCommand,
				Flags:  storeFlags(),
			},
			{
				Name:   "serve",
				Usage:  "Serve the import API over HTTP",
				Action: e.serveCommand,
				Flags:  storeFlags(),
			},
		},
	}
}

// storeFlags selects the database a command works on.
func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Credentials file (TOML or YAML)",
			EnvVars: []string{"PHANTOM_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "db-key",
			Usage:   "Section of the credentials file to use (database.<key>)",
			EnvVars: []string{"PHANTOM_DB_KEY"},
		},
		&cli.StringFlag{
			Name:  "sqlite",
			Usage: "Use an embedded SQLite database at `PATH` instead of PostgreSQL",
		},
	}
}

// setup loads the env file and runtime configuration and builds the logger.
func (e *env) setup(c *cli.Context) error {
	if path := c.String("env-file"); path != "" {
		if err := godotenv.Overload(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level, format := cfg.Logging.Level, cfg.Logging.Format
	if v := c.String("log-level"); v != "" {
		level = v
	}
	if v := c.String("log-format"); v != "" {
		format = v
	}

	e.cfg = cfg
	e.logger = logging.Setup(level, format, e.stderr)
	return nil
}

// applyStoreFlags copies per-command store flags into the config.
func (e *env) applyStoreFlags(c *cli.Context) {
	if v := c.String("config"); v != "" {
		e.cfg.Database.ConfigPath = v
	}
	if v := c.String("db-key"); v != "" {
		e.cfg.Database.Key = v
	}
}
