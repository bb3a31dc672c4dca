// Command compendium serves a tabletop rules catalog over HTTP and MCP, and
// offers one-shot search and maintenance subcommands.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/compendium/internal/app"
	"github.com/MrWong99/compendium/internal/config"
)

var (
	// Version is injected at build time.
	Version = "dev"
	// ProgramName is injected at build time.
	ProgramName = "compendium"
)

// shutdownTimeout bounds how long serve waits for in-flight requests.
const shutdownTimeout = 10 * time.Second

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, ProgramName, args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", ProgramName, err)
		exit(1)
	}
}

// options holds the persistent flags shared by every subcommand.
type options struct {
	configPath string
	catalogDir string
	logLevel   string
}

// Execute is the entry point for the CLI, extracted for testing.
func Execute(version, programName string, args []string, out io.Writer) error {
	opts := &options{}
	root := &cobra.Command{
		Use:           programName,
		Short:         "Tabletop rules catalog server",
		Long:          "Compendium loads a directory of YAML rules catalogs and answers ranked, typo-tolerant lookups over HTTP, MCP and the command line.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Version}}\n")
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file (defaults apply when empty)")
	pf.StringVar(&opts.catalogDir, "catalog", "", "catalog directory, overriding catalog.dir")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level, overriding server.log_level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts, version),
		newSearchCmd(opts),
		newGetCmd(opts),
		newCategoriesCmd(opts),
		newRepairCmd(opts),
	)
	root.SetArgs(args)
	return root.Execute()
}

// loadConfig reads the configuration file, applies flag overrides and
// installs the default logger.
func (o *options) loadConfig() (*config.Config, *slog.LevelVar, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		cfg, err = config.Load(o.configPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil, fmt.Errorf("config file %q not found", o.configPath)
			}
			return nil, nil, err
		}
	}
	if o.catalogDir != "" {
		cfg.Catalog.Dir = o.catalogDir
	}
	if o.logLevel != "" {
		cfg.Server.LogLevel = config.LogLevel(o.logLevel)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, err
	}

	lv := new(slog.LevelVar)
	lv.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(lv))
	return cfg, lv, nil
}

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newServeCmd(opts *options, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load the catalog and serve health, metrics and MCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, lv, err := opts.loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			slog.Info("compendium starting",
				"config", opts.configPath,
				"catalog", cfg.Catalog.Dir,
				"listen_addr", cfg.Server.ListenAddr,
				"log_level", cfg.Server.LogLevel,
			)

			appOpts := []app.Option{app.WithVersion(version), app.WithLevelVar(lv)}
			if opts.configPath != "" {
				appOpts = append(appOpts, app.WithConfigFile(opts.configPath))
			}
			application, err := app.New(ctx, cfg, appOpts...)
			if err != nil {
				return err
			}

			runErr := application.Run(ctx)
			if errors.Is(runErr, context.Canceled) {
				slog.Info("shutdown signal received, stopping…")
				runErr = nil
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := application.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown error", "err", err)
			}
			slog.Info("goodbye")
			return runErr
		},
	}
}
