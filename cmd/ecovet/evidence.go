package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ecovet/ecovet/internal/analysis"
	"github.com/ecovet/ecovet/internal/files"
	"github.com/ecovet/ecovet/internal/pipeline"
	"github.com/ecovet/ecovet/internal/types"
)

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Submit, process, and review evidence",
}

var evidenceSubmitCmd = &cobra.Command{
	Use:   "submit <workflow-claim-id> <file>",
	Short: "Submit an evidence file for a workflow claim",
	Long: `Copy an evidence file into the file root and create a pending
submission for the given workflow claim.

Example:
  ecovet evidence submit <workflow-claim-id> ./certificates/gots-2026.pdf`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		workflowClaimID, srcPath := args[0], args[1]

		data, err := os.ReadFile(srcPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read %s: %v\n", srcPath, err)
			os.Exit(1)
		}

		fileName := filepath.Base(srcPath)
		relPath := filepath.ToSlash(filepath.Join(workflowClaimID, fileName))
		destPath := filepath.Join(cfg.FileRoot, workflowClaimID, fileName)
		if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(destPath, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to store evidence file: %v\n", err)
			os.Exit(1)
		}

		mimeType := mime.TypeByExtension(filepath.Ext(fileName))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		sub := &types.EvidenceSubmission{
			WorkflowClaimID: workflowClaimID,
			FilePath:        relPath,
			FileName:        fileName,
			MimeType:        mimeType,
		}
		if err := store.CreateSubmission(context.Background(), sub); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Submitted %s as %s (pending processing)\n", color.GreenString("✓"), fileName, sub.ID)
	},
}

var evidenceProcessCmd = &cobra.Command{
	Use:   "process <workflow-id>",
	Short: "Process all pending submissions for a workflow",
	Long: `Run every pending submission of the workflow through document
analysis under the configured concurrency ceiling, then roll scores and
certification up onto the workflow.

Requires ANTHROPIC_API_KEY.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pipe := mustPipeline()
		if err := pipe.ProcessWorkflowSubmissions(context.Background(), args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Processed workflow %s\n", color.GreenString("✓"), args[0])
	},
}

var evidenceReviewDecision string

var evidenceReviewCmd = &cobra.Command{
	Use:   "review <submission-id>",
	Short: "Record an auditor decision on a submission",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		decision := types.ReviewDecision(evidenceReviewDecision)
		if decision != types.ReviewAccepted && decision != types.ReviewRejected {
			fmt.Fprintf(os.Stderr, "Error: --decision must be accepted or rejected\n")
			os.Exit(1)
		}

		pipe := mustPipeline()
		reviewer := os.Getenv("USER")
		if reviewer == "" {
			reviewer = "cli"
		}
		if err := pipe.Review(context.Background(), args[0], decision, reviewer); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Recorded %s for submission %s\n", color.GreenString("✓"), decision, args[0])
	},
}

var evidenceStaleAfter time.Duration

var evidenceRequeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Requeue submissions stuck in processing",
	Long: `Return submissions stuck in PROCESSING longer than the threshold to
PENDING_PROCESSING. Covers runs interrupted mid-analysis.`,
	Run: func(cmd *cobra.Command, args []string) {
		n, err := store.RequeueStaleSubmissions(context.Background(), evidenceStaleAfter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Requeued %d stale submissions\n", color.GreenString("✓"), n)
	},
}

func mustPipeline() *pipeline.Pipeline {
	fileStore, err := files.NewLocalStore(cfg.FileRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	retry := analysis.DefaultRetryConfig()
	if cfg.Analyzer.MaxRetries > 0 {
		retry.MaxRetries = cfg.Analyzer.MaxRetries
	}
	if cfg.Analyzer.RequestsPerSecond > 0 {
		retry.RequestsPerSecond = cfg.Analyzer.RequestsPerSecond
	}
	analyzer, err := analysis.NewAnalyzer(&analysis.Config{
		Model: cfg.Analyzer.Model,
		Retry: retry,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	pipe, err := pipeline.New(&pipeline.Config{
		Store:         store,
		FileStore:     fileStore,
		Analyzer:      analyzer,
		MaxConcurrent: cfg.Pipeline.MaxConcurrent,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return pipe
}

func init() {
	evidenceReviewCmd.Flags().StringVar(&evidenceReviewDecision, "decision", "", "accepted or rejected")
	_ = evidenceReviewCmd.MarkFlagRequired("decision")

	evidenceRequeueCmd.Flags().DurationVar(&evidenceStaleAfter, "older-than", time.Hour, "Processing age threshold")

	evidenceCmd.AddCommand(evidenceSubmitCmd, evidenceProcessCmd, evidenceReviewCmd, evidenceRequeueCmd)
	rootCmd.AddCommand(evidenceCmd)
}
