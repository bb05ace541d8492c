package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"liveclass/internal/app"
	"liveclass/internal/config"
	"liveclass/internal/logging"
)

const shutdownTimeout = 30 * time.Second

type options struct {
	configPath string
	logLevel   string
	pretty     bool
}

// Graceful shutdown on SIGINT/SIGTERM ensures proper resource cleanup
func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parseFlags reads command line options. The config path falls back to
// LIVECLASS_CONFIG_FILE when the flag is absent.
func parseFlags(args []string) (options, error) {
	var opts options

	fs := flag.NewFlagSet("liveclass", flag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", os.Getenv(config.EnvPrefix+"_CONFIG_FILE"), "path to a YAML or JSON config file")
	fs.StringVar(&opts.logLevel, "log-level", "", "override log.level from the config")
	fs.BoolVar(&opts.pretty, "pretty", false, "human-friendly console logs")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// ARCHITECTURAL DISCOVERY: Separate run function enables testing and error handling
func run(args []string) error {
	// STEP 1: Parse flags and load configuration (env > file > defaults)
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	// STEP 2: Logging before any component captures the global logger
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Pretty || opts.pretty, nil); err != nil {
		return err
	}

	// STEP 3: Create application with configuration
	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// STEP 4: Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = application.Stop(shutdownCtx)
		return fmt.Errorf("application error: %w", err)
	}

	// STEP 5: Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("received shutdown signal, shutting down gracefully")

	// Timeout context prevents hanging shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
