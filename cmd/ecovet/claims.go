package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ecovet/ecovet/internal/types"
)

var claimsCmd = &cobra.Command{
	Use:   "claims",
	Short: "Manage reusable evidence claims",
}

var (
	claimCategory string
	claimType     string
	claimName     string
	claimWeight   float64
	claimCriteria []string
)

var claimsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List evidence claims",
	Run: func(cmd *cobra.Command, args []string) {
		claims, err := store.ListClaims(context.Background(), claimCategory)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(claims) == 0 {
			fmt.Println("No claims found")
			return
		}
		for _, claim := range claims {
			fmt.Printf("%s  %s/%s  %s (weight %.2f, %d criteria)\n",
				claim.ID, claim.Category, claim.Type, claim.Name, claim.Weight, len(claim.Criteria))
		}
	},
}

var claimsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an evidence claim",
	Long: `Create a reusable evidence claim.

Example:
  ecovet claims create --category materials --type certificate \
    --name "Organic cotton certificate" --weight 0.6 \
    --criterion "issued by an accredited body" --criterion "currently valid"`,
	Run: func(cmd *cobra.Command, args []string) {
		claim := &types.EvidenceClaim{
			Category: claimCategory,
			Type:     claimType,
			Name:     claimName,
			Weight:   claimWeight,
			Criteria: claimCriteria,
		}
		if err := store.CreateClaim(context.Background(), claim); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Created claim %s (%s/%s)\n", color.GreenString("✓"), claim.ID, claim.Category, claim.Type)
	},
}

var claimsDeleteCmd = &cobra.Command{
	Use:   "delete <claim-id>",
	Short: "Delete an unreferenced evidence claim",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := store.DeleteClaim(context.Background(), args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Deleted claim %s\n", color.GreenString("✓"), args[0])
	},
}

func init() {
	claimsCreateCmd.Flags().StringVar(&claimCategory, "category", "", "Sustainability category (e.g. materials, labor)")
	claimsCreateCmd.Flags().StringVar(&claimType, "type", "", "Expected document type (e.g. certificate, report)")
	claimsCreateCmd.Flags().StringVar(&claimName, "name", "", "Claim name")
	claimsCreateCmd.Flags().Float64Var(&claimWeight, "weight", 0.5, "Scoring weight in 0..1")
	claimsCreateCmd.Flags().StringArrayVar(&claimCriteria, "criterion", nil, "Acceptance criterion (repeatable)")
	_ = claimsCreateCmd.MarkFlagRequired("category")
	_ = claimsCreateCmd.MarkFlagRequired("type")
	_ = claimsCreateCmd.MarkFlagRequired("name")

	claimsListCmd.Flags().StringVar(&claimCategory, "category", "", "Filter by category")

	claimsCmd.AddCommand(claimsListCmd, claimsCreateCmd, claimsDeleteCmd)
	rootCmd.AddCommand(claimsCmd)
}
