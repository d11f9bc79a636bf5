package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ecovet/ecovet/internal/types"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Manage audits",
}

var auditBrand string

var auditImportCmd = &cobra.Command{
	Use:   "import <snapshot.json>",
	Short: "Import an audit snapshot",
	Long: `Import a structured audit snapshot from a JSON file. The snapshot is
the record rules are evaluated against, e.g.:

  {"brand": {"country": "DE", "employee_count": 240},
   "products": {"organic_share": 0.8}}

Example:
  ecovet audit import snapshot.json --brand "Acme Textiles"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read snapshot: %v\n", err)
			os.Exit(1)
		}

		var snapshot map[string]interface{}
		if err := json.Unmarshal(data, &snapshot); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid snapshot JSON: %v\n", err)
			os.Exit(1)
		}

		audit := &types.Audit{BrandName: auditBrand, Snapshot: snapshot}
		if err := store.CreateAudit(context.Background(), audit); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Imported audit %s for %s\n", color.GreenString("✓"), audit.ID, audit.BrandName)
	},
}

func init() {
	auditImportCmd.Flags().StringVar(&auditBrand, "brand", "", "Brand name")
	_ = auditImportCmd.MarkFlagRequired("brand")

	auditCmd.AddCommand(auditImportCmd)
	rootCmd.AddCommand(auditCmd)
}
