package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papapumpkin/osmpoi/internal/app"
	"github.com/papapumpkin/osmpoi/internal/config"
	"github.com/papapumpkin/osmpoi/internal/ui"
)

var rootCmd = &cobra.Command{
	Use:   "osmpoi",
	Short: "Manage POI datasets built from OpenStreetMap extracts",
	Long: `osmpoi keeps a directory of POI datasets. Extracts (*.osm.pbf) are built into
queryable .poi datasets one at a time; finished datasets can be listed, queried,
exported and deleted.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default .osmpoi.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "dataset directory")
	rootCmd.PersistentFlags().String("engine", "", "path to the osmpoi engine binary")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("engine_path", rootCmd.PersistentFlags().Lookup("engine"))
}

func initConfig() {
	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".osmpoi")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("OSMPOI")
	viper.AutomaticEnv()

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
}

// session is an open App plus the printer and cleanup for one command.
type session struct {
	app     *app.App
	printer *ui.Printer
	cleanup func()
}

// openSession loads config, sets up logging and opens the dataset directory.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = slog.LevelDebug
	}
	logger, closeLog := config.SetupLogger(cfg.LogFile, level)

	a, err := app.Open(cmd.Context(), cfg, logger)
	if err != nil {
		closeLog()
		return nil, err
	}
	return &session{
		app:     a,
		printer: ui.NewWithWriters(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		cleanup: func() {
			if err := a.Close(); err != nil {
				logger.Warn("close failed", "error", err)
			}
			closeLog()
		},
	}, nil
}

// setupSignalContext returns a context that is canceled on SIGINT or SIGTERM.
func setupSignalContext(parent context.Context, printer *ui.Printer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			if printer != nil {
				printer.Info("\nshutting down...")
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
