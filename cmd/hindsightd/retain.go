package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hindsightdb/hindsight/pkg/hindsight"
)

var (
	retainContext string
	retainTags    string
)

var retainCmd = &cobra.Command{
	Use:   "retain <bank-id> <text>",
	Short: "Submit a piece of content to the retention pipeline",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close(ctx)

		item := hindsight.RetainItem{Text: args[1], Context: retainContext, Tags: splitTags(retainTags)}
		opID, err := e.Retain(ctx, args[0], item)
		if err != nil {
			return err
		}
		fmt.Printf("operation_id: %s\n", opID)
		return nil
	},
}

func init() {
	retainCmd.Flags().StringVar(&retainContext, "context", "", "surrounding context for extraction")
	retainCmd.Flags().StringVar(&retainTags, "tags", "", "comma-separated tags")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}
