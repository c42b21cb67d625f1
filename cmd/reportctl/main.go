// Command reportctl imports and inspects moderation reports from the shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/modreports/internal/app"
	"github.com/JonMunkholm/modreports/internal/config"
	"github.com/JonMunkholm/modreports/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

type rootOptions struct {
	envFile string
	table   string
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           "reportctl",
		Short:         "Import and query moderation reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Dotenv file to load before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.table, "table", "", "Target table (overrides IMPORT_TABLE)")

	cmd.AddCommand(newImportCmd(&opts), newListCmd(&opts), newExecCmd(&opts))
	return cmd
}

// openApp loads configuration and starts the runtime. Logs go to stderr so
// stdout stays machine readable.
func openApp(ctx context.Context, opts *rootOptions, tweak func(*config.Config)) (*app.App, error) {
	if opts.envFile != "" {
		if err := godotenv.Overload(opts.envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", opts.envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.table != "" {
		cfg.Import.Table = opts.table
	}
	if tweak != nil {
		tweak(cfg)
	}

	logging.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	return app.New(ctx, cfg)
}
