package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ecovet/ecovet/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize ecovet in the current directory",
	Long: `Initialize ecovet by creating the .ecovet/ directory with a config
file, the SQLite database, and the evidence file root.

Example:
  cd ~/audits
  ecovet init`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if err := config.Save(cfg, cfgPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to write config: %v\n", err)
			os.Exit(1)
		}
		if err := os.MkdirAll(cfg.FileRoot, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create file root: %v\n", err)
			os.Exit(1)
		}
		if err := store.SetConfig(ctx, "initialized", "true"); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to initialize database: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		fmt.Printf("\n%s Initialized ecovet\n\n", green("✓"))
		fmt.Printf("  Database:  %s\n", cyan(cfg.DatabasePath))
		fmt.Printf("  Files:     %s\n", cyan(cfg.FileRoot))
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
