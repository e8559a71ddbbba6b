package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hindsightdb/hindsight/internal/config"
	"github.com/hindsightdb/hindsight/pkg/hindsight"
)

var (
	recallTags   string
	recallBudget string
	recallTrace  bool
)

var recallCmd = &cobra.Command{
	Use:   "recall <bank-id> <query>",
	Short: "Run the recall pipeline over a bank's memories",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close(ctx)

		req := hindsight.RecallRequest{
			BankID:      args[0],
			Query:       args[1],
			Tags:        splitTags(recallTags),
			Budget:      config.RecallBudgetLevel(recallBudget),
			EnableTrace: recallTrace,
		}
		res, err := e.Recall(ctx, req)
		if err != nil {
			return err
		}
		return printRecallResult(res)
	},
}

func init() {
	recallCmd.Flags().StringVar(&recallTags, "tags", "", "comma-separated tags to filter by")
	recallCmd.Flags().StringVar(&recallBudget, "budget", string(config.BudgetMid), "recall budget: low, mid, or high")
	recallCmd.Flags().BoolVar(&recallTrace, "trace", false, "include the stage-by-stage recall trace")
}

func printRecallResult(res *hindsight.RecallResult) error {
	if jsonOutput {
		body, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(body))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFACT_TYPE\tTEXT")
	for _, u := range res.Results {
		fmt.Fprintf(w, "%s\t%s\t%s\n", u.ID, u.FactType, truncate(u.Text, 80))
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
