// ecovet is the sustainability-audit management CLI: rule catalog
// administration, workflow generation, and evidence processing.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ecovet/ecovet/internal/config"
	"github.com/ecovet/ecovet/internal/storage"
)

var (
	cfgPath string
	cfg     *config.Config
	store   storage.Storage
)

var rootCmd = &cobra.Command{
	Use:   "ecovet",
	Short: "Sustainability-audit management backend",
	Long: `ecovet manages sustainability audits end to end: a versioned rule
catalog decides which evidence claims a brand must substantiate, workflow
generation evaluates the published rules against an audit snapshot, and the
evidence pipeline drives uploaded documents through AI analysis into scores
and a certification tier.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		store, err = storage.NewStorage(context.Background(), &storage.Config{Path: cfg.DatabasePath})
		if err != nil {
			return fmt.Errorf("failed to open database %s: %w", cfg.DatabasePath, err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file path (default: .ecovet/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
