package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Manage consolidation",
}

var consolidateRunCmd = &cobra.Command{
	Use:   "run <bank-id>",
	Short: "Run one consolidation pass for a bank outside the normal retain-triggered schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close(ctx)

		res, err := e.ConsolidateNow(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("status: %s, memories_processed: %d\n", res.Status, res.MemoriesProcessed)
		return nil
	},
}

func init() {
	consolidateCmd.AddCommand(consolidateRunCmd)
}
