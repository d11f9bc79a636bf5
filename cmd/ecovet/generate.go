package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ecovet/ecovet/internal/generator"
)

var generateCmd = &cobra.Command{
	Use:   "generate <audit-id>",
	Short: "Generate a workflow for an audit",
	Long: `Evaluate every published rule against the audit's snapshot and
persist a new workflow generation with the aggregated evidence claims.

Each run produces a fresh generation; earlier generations are never mutated.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		gen, err := generator.New(store)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		wf, err := gen.Generate(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s Generated workflow %s (generation %d)\n\n", green("✓"), cyan(wf.ID), wf.Generation)

		matches, err := store.ListRuleMatches(ctx, wf.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		matched := 0
		for _, m := range matches {
			switch {
			case m.Error != "":
				fmt.Printf("  %s %s v%d: %s\n", color.RedString("✗"), m.RuleCode, m.RuleVersion, m.Error)
			case m.Matched:
				matched++
				fmt.Printf("  %s %s v%d\n", green("●"), m.RuleCode, m.RuleVersion)
			default:
				fmt.Printf("  %s %s v%d\n", gray("○"), m.RuleCode, m.RuleVersion)
			}
		}
		fmt.Printf("\n  %d/%d rules matched\n", matched, len(matches))

		if len(wf.Claims) == 0 {
			fmt.Println("  No evidence claims required")
			return
		}
		fmt.Printf("\n  Evidence claims (%d):\n", len(wf.Claims))
		for _, wc := range wf.Claims {
			flag := gray("optional")
			if wc.Required {
				flag = color.YellowString("required")
			}
			fmt.Printf("    %s  %s/%s  %s (%s, from %d rules)\n",
				wc.ID, wc.Claim.Category, wc.Claim.Type, wc.Claim.Name, flag, len(wc.Sources))
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
}
