package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ecovet/ecovet/internal/catalog"
	"github.com/ecovet/ecovet/internal/types"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage the rule catalog",
}

var (
	ruleCode        string
	ruleName        string
	ruleDescription string
	ruleTree        string
	ruleTreeFile    string
	ruleActor       string
	ruleStateFilter string
	ruleClaimSpecs  []string
)

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		filter := types.RuleFilter{}
		if ruleStateFilter != "" {
			state := types.RuleState(ruleStateFilter)
			if !state.IsValid() {
				fmt.Fprintf(os.Stderr, "Error: invalid state %q (draft, published, disabled)\n", ruleStateFilter)
				os.Exit(1)
			}
			filter.State = &state
		}

		cat := mustCatalog()
		rules, err := cat.List(ctx, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if len(rules) == 0 {
			fmt.Println("No rules found")
			return
		}
		for _, rule := range rules {
			fmt.Printf("%s  %s v%d  %s  %s\n",
				rule.ID, rule.Code, rule.Version, colorState(rule.State), rule.Name)
		}
	},
}

var rulesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new draft rule",
	Long: `Create a new draft rule from a condition tree.

The tree is a JSON document of nested group and condition nodes:

  {"kind":"group","logical":"AND","children":[
    {"kind":"condition","field_path":"brand.country","operator":"equals",
     "value":"DE","field_type":"string"}]}

Example:
  ecovet rules create --code R-DE-ORGANIC --name "German organic brands" --tree-file tree.json`,
	Run: func(cmd *cobra.Command, args []string) {
		tree, err := loadTree()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cat := mustCatalog()
		rule, err := cat.Create(context.Background(), catalog.RuleSpec{
			Code:          ruleCode,
			Name:          ruleName,
			Description:   ruleDescription,
			ConditionTree: tree,
		}, ruleActor)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Created rule %s (%s v%d, draft)\n", green("✓"), rule.ID, rule.Code, rule.Version)
	},
}

var rulesPublishCmd = &cobra.Command{
	Use:   "publish <rule-id>",
	Short: "Publish a draft rule",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cat := mustCatalog()
		if err := cat.Publish(context.Background(), args[0], ruleActor); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Published rule %s\n", color.GreenString("✓"), args[0])
	},
}

var rulesDisableCmd = &cobra.Command{
	Use:   "disable <rule-id>",
	Short: "Disable a rule",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cat := mustCatalog()
		if err := cat.Disable(context.Background(), args[0], ruleActor); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Disabled rule %s\n", color.GreenString("✓"), args[0])
	},
}

var rulesCloneCmd = &cobra.Command{
	Use:   "clone <rule-id>",
	Short: "Clone a rule into a new draft version",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cat := mustCatalog()
		clone, err := cat.Clone(context.Background(), args[0], ruleActor)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Cloned into %s (%s v%d, draft)\n",
			color.GreenString("✓"), clone.ID, clone.Code, clone.Version)
	},
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <rule-id>",
	Short: "Delete a draft or disabled rule",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cat := mustCatalog()
		if err := cat.Delete(context.Background(), args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Deleted rule %s\n", color.GreenString("✓"), args[0])
	},
}

var rulesAttachCmd = &cobra.Command{
	Use:   "attach <rule-id>",
	Short: "Replace a rule's claim associations",
	Long: `Replace a rule's claim associations. Each --claim takes
claim-id[:required[:sort-order]], e.g. --claim 4f2c...:required:1.

Example:
  ecovet rules attach <rule-id> --claim <claim-id>:required --claim <claim-id>`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		attachments := make([]types.ClaimAttachment, 0, len(ruleClaimSpecs))
		for _, spec := range ruleClaimSpecs {
			att, err := parseClaimSpec(spec)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			attachments = append(attachments, att)
		}

		cat := mustCatalog()
		if err := cat.AttachClaims(context.Background(), args[0], attachments, ruleActor); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Attached %d claims to rule %s\n", color.GreenString("✓"), len(attachments), args[0])
	},
}

var rulesShowCmd = &cobra.Command{
	Use:   "show <rule-id>",
	Short: "Show a rule with its condition tree and claims",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cat := mustCatalog()
		rule, err := cat.Get(context.Background(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s %s v%d  %s\n", cyan(rule.Code), rule.Name, rule.Version, colorState(rule.State))
		if rule.Description != "" {
			fmt.Printf("  %s\n", rule.Description)
		}
		if rule.ReplacesRuleID != "" {
			fmt.Printf("  Replaces: %s\n", rule.ReplacesRuleID)
		}

		treeJSON, _ := json.MarshalIndent(rule.ConditionTree, "  ", "  ")
		fmt.Printf("  Condition tree:\n  %s\n", string(treeJSON))

		if len(rule.Claims) > 0 {
			fmt.Println("  Claims:")
			for _, rc := range rule.Claims {
				flag := "optional"
				if rc.Required {
					flag = "required"
				}
				fmt.Printf("    %s  %s/%s  %s (%s, weight %.2f)\n",
					rc.Claim.ID, rc.Claim.Category, rc.Claim.Type, rc.Claim.Name, flag, rc.Claim.Weight)
			}
		}
	},
}

func loadTree() (*types.ConditionNode, error) {
	raw := ruleTree
	if ruleTreeFile != "" {
		data, err := os.ReadFile(ruleTreeFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read tree file: %w", err)
		}
		raw = string(data)
	}
	if raw == "" {
		return nil, fmt.Errorf("a condition tree is required (--tree or --tree-file)")
	}
	var tree types.ConditionNode
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		return nil, fmt.Errorf("invalid condition tree JSON: %w", err)
	}
	return &tree, nil
}

func parseClaimSpec(spec string) (types.ClaimAttachment, error) {
	parts := strings.Split(spec, ":")
	att := types.ClaimAttachment{ClaimID: parts[0]}
	if att.ClaimID == "" {
		return att, fmt.Errorf("empty claim id in %q", spec)
	}
	if len(parts) > 1 {
		switch parts[1] {
		case "required":
			att.Required = true
		case "optional", "":
		default:
			return att, fmt.Errorf("invalid flag %q in %q (required or optional)", parts[1], spec)
		}
	}
	if len(parts) > 2 {
		order, err := strconv.Atoi(parts[2])
		if err != nil {
			return att, fmt.Errorf("invalid sort order in %q", spec)
		}
		att.SortOrder = order
	}
	return att, nil
}

func colorState(state types.RuleState) string {
	switch state {
	case types.RuleStatePublished:
		return color.GreenString(string(state))
	case types.RuleStateDisabled:
		return color.New(color.FgHiBlack).Sprint(string(state))
	default:
		return color.YellowString(string(state))
	}
}

func mustCatalog() *catalog.Catalog {
	cat, err := catalog.New(store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cat
}

func init() {
	rulesCreateCmd.Flags().StringVar(&ruleCode, "code", "", "Stable rule code, shared across versions")
	rulesCreateCmd.Flags().StringVar(&ruleName, "name", "", "Human-readable rule name")
	rulesCreateCmd.Flags().StringVar(&ruleDescription, "description", "", "Rule description")
	rulesCreateCmd.Flags().StringVar(&ruleTree, "tree", "", "Condition tree JSON")
	rulesCreateCmd.Flags().StringVar(&ruleTreeFile, "tree-file", "", "File containing condition tree JSON")
	_ = rulesCreateCmd.MarkFlagRequired("code")
	_ = rulesCreateCmd.MarkFlagRequired("name")

	rulesListCmd.Flags().StringVar(&ruleStateFilter, "state", "", "Filter by state (draft, published, disabled)")
	rulesAttachCmd.Flags().StringArrayVar(&ruleClaimSpecs, "claim", nil, "claim-id[:required[:sort-order]] (repeatable)")

	rulesCmd.PersistentFlags().StringVar(&ruleActor, "actor", "cli", "Actor recorded on catalog changes")
	rulesCmd.AddCommand(rulesListCmd, rulesCreateCmd, rulesPublishCmd, rulesDisableCmd,
		rulesCloneCmd, rulesDeleteCmd, rulesAttachCmd, rulesShowCmd)
	rootCmd.AddCommand(rulesCmd)
}
