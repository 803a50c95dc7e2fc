package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/osmpoi/internal/config"
	"github.com/papapumpkin/osmpoi/internal/engine"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the engine binary and dataset directory are usable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		ok := true

		ex := engine.New(cfg.EnginePath, nil)
		if err := ex.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "✗ engine: %v\n", err)
			ok = false
		} else {
			fmt.Fprintln(os.Stderr, "✓ engine found")
		}

		if info, err := os.Stat(cfg.DataDir); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "· data dir %s will be created on first use\n", cfg.DataDir)
			} else {
				fmt.Fprintf(os.Stderr, "✗ data dir: %v\n", err)
				ok = false
			}
		} else if !info.IsDir() {
			fmt.Fprintf(os.Stderr, "✗ data dir %s is not a directory\n", cfg.DataDir)
			ok = false
		} else {
			fmt.Fprintln(os.Stderr, "✓ data dir found")
		}

		if !ok {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
