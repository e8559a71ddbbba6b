package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hindsightdb/hindsight/internal/config"
	"github.com/hindsightdb/hindsight/pkg/hindsight"
)

var (
	reflectTags   string
	reflectBudget string
	reflectCtx    string
)

var reflectCmd = &cobra.Command{
	Use:   "reflect <bank-id> <query>",
	Short: "Ask the reflect agent a question over a bank's memories",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close(ctx)

		req := hindsight.ReflectRequest{
			BankID:  args[0],
			Query:   args[1],
			Tags:    splitTags(reflectTags),
			Budget:  config.RecallBudgetLevel(reflectBudget),
			Context: reflectCtx,
		}
		res, err := e.Reflect(ctx, req)
		if err != nil {
			return err
		}
		if jsonOutput {
			body, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(body))
			return nil
		}
		fmt.Println(res.Text)
		if len(res.BasedOn) > 0 {
			fmt.Printf("\nbased on: %v\n", res.BasedOn)
		}
		return nil
	},
}

func init() {
	reflectCmd.Flags().StringVar(&reflectTags, "tags", "", "comma-separated tags to filter by")
	reflectCmd.Flags().StringVar(&reflectBudget, "budget", string(config.BudgetMid), "reflect step budget: low, mid, or high")
	reflectCmd.Flags().StringVar(&reflectCtx, "context", "", "additional context appended to the query")
}
