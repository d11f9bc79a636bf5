package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ecovet/ecovet/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status <audit-id>",
	Short: "Show the latest workflow status for an audit",
	Long:  `Display the latest workflow generation: claim progress, submissions, category scores, and certification.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		audit, err := store.GetAudit(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		wf, err := store.GetLatestWorkflow(ctx, audit.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("=== %s (workflow generation %d) ===", audit.BrandName, wf.Generation)))

		statusText := string(wf.Status)
		switch wf.Status {
		case types.WorkflowProcessingComplete:
			statusText = green(statusText)
		case types.WorkflowProcessingFailed:
			statusText = red(statusText)
		case types.WorkflowProcessing:
			statusText = yellow(statusText)
		default:
			statusText = gray(statusText)
		}
		fmt.Printf("  Status:        %s\n", statusText)

		if wf.OverallScore != nil {
			fmt.Printf("  Overall score: %.1f\n", *wf.OverallScore)
		}
		certText := string(wf.Certification)
		switch wf.Certification {
		case types.CertGold:
			certText = yellow(certText)
		case types.CertSilver, types.CertBronze:
			certText = cyan(certText)
		default:
			certText = gray(certText)
		}
		fmt.Printf("  Certification: %s\n", certText)

		if len(wf.CategoryScores) > 0 {
			fmt.Printf("\n  %s\n", yellow("Category scores:"))
			var names []string
			for name := range wf.CategoryScores {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				cs := wf.CategoryScores[name]
				if cs.HasClaims {
					fmt.Printf("    %-12s %.1f\n", name, cs.Score)
				} else {
					fmt.Printf("    %-12s %s\n", name, gray("no claims"))
				}
			}
		}

		if len(wf.Claims) == 0 {
			fmt.Printf("\n  %s\n\n", gray("No evidence claims"))
			return
		}

		fmt.Printf("\n  %s\n", yellow("Evidence claims:"))
		for _, wc := range wf.Claims {
			icon := gray("○")
			if wc.Status == types.ClaimSatisfied {
				icon = green("●")
			}
			flag := "optional"
			if wc.Required {
				flag = "required"
			}
			fmt.Printf("    %s %s/%s  %s (%s)\n", icon, wc.Claim.Category, wc.Claim.Type, wc.Claim.Name, flag)

			subs, err := store.ListSubmissions(ctx, types.SubmissionFilter{WorkflowID: wf.ID})
			if err != nil {
				continue
			}
			for _, sub := range subs {
				if sub.WorkflowClaimID != wc.ID {
					continue
				}
				line := fmt.Sprintf("%s  %s", sub.FileName, sub.Status)
				switch sub.Status {
				case types.SubmissionProcessingComplete:
					if sub.MatchDecision == types.DecisionMatch {
						line = green(line)
					} else {
						line = red(line + " (" + string(sub.MatchDecision) + ")")
					}
				case types.SubmissionProcessingFailed:
					line = red(line + ": " + sub.ErrorMessage)
				case types.SubmissionNeedsReview:
					line = yellow(line)
				default:
					line = gray(line)
				}
				fmt.Printf("      %s %s\n", gray(sub.ID), line)
			}
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
