package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// GuidanceLogItem is one audit log row from the admin API.
type GuidanceLogItem struct {
	ID            string  `json:"id"`
	Query         string  `json:"query"`
	Grade         int     `json:"grade"`
	Decision      string  `json:"decision"`
	Confidence    float64 `json:"confidence"`
	RequiresHuman bool    `json:"requires_human"`
	IssueCount    int     `json:"issue_count"`
	CreatedAt     string  `json:"created_at"`
}

// RecentCmd creates the recent command.
func RecentCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recent guidance outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runRecent(cmd, limit, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries")

	return cmd
}

func runRecent(cmd *cobra.Command, limit int, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get(fmt.Sprintf("/admin/guidance?limit=%d", limit))
	if err != nil {
		return err
	}

	var result struct {
		Items []GuidanceLogItem `json:"items"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		encoded, err := json.MarshalIndent(result.Items, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
		return nil
	}

	if len(result.Items) == 0 {
		fmt.Println("no guidance recorded yet")
		return nil
	}

	for _, item := range result.Items {
		flag := ""
		if item.RequiresHuman {
			flag = "  [needs review]"
		}
		fmt.Printf("%s  grade %d  %-8s  conf %.2f  issues %d%s\n    %s\n",
			item.CreatedAt, item.Grade, item.Decision, item.Confidence, item.IssueCount, flag, item.Query)
	}

	return nil
}

// StatsCmd creates the stats command.
func StatsCmd() *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show decision counts for a recent window",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runStats(cmd, hours, outputJSON)
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 24, "Window size in hours")

	return cmd
}

func runStats(cmd *cobra.Command, hours int, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get(fmt.Sprintf("/admin/guidance/stats?hours=%d", hours))
	if err != nil {
		return err
	}

	var result struct {
		Since     string           `json:"since"`
		Decisions map[string]int64 `json:"decisions"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		encoded, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
		return nil
	}

	fmt.Printf("since %s\n", result.Since)
	for _, decision := range []string{"approved", "revised", "rejected", "fallback"} {
		fmt.Printf("  %-8s %d\n", decision, result.Decisions[decision])
	}

	return nil
}
