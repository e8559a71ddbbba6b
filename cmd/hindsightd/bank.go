package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hindsightdb/hindsight/internal/model"
)

var (
	bankName    string
	bankMission string
)

var bankCmd = &cobra.Command{
	Use:   "bank",
	Short: "Manage banks",
}

func init() {
	bankCmd.AddCommand(bankCreateCmd)
	bankCmd.AddCommand(bankGetCmd)
	bankCmd.AddCommand(bankDeleteCmd)

	bankCreateCmd.Flags().StringVar(&bankName, "name", "", "display name (defaults to bank-id)")
	bankCreateCmd.Flags().StringVar(&bankMission, "mission", "", "mission statement")
}

var bankCreateCmd = &cobra.Command{
	Use:   "create <bank-id>",
	Short: "Create a bank",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close(ctx)

		b, err := e.CreateBank(ctx, args[0], bankName, bankMission, model.Disposition{})
		if err != nil {
			return err
		}
		return printBank(b)
	},
}

var bankGetCmd = &cobra.Command{
	Use:   "get <bank-id>",
	Short: "Show a bank's profile, auto-creating it if it doesn't exist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close(ctx)

		b, err := e.GetBankProfile(ctx, args[0])
		if err != nil {
			return err
		}
		return printBank(b)
	},
}

var bankDeleteCmd = &cobra.Command{
	Use:   "delete <bank-id>",
	Short: "Delete a bank and everything it owns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close(ctx)

		if err := e.DeleteBank(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted bank %q\n", args[0])
		return nil
	},
}

func printBank(b *model.Bank) error {
	if jsonOutput {
		body, err := json.MarshalIndent(b, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(body))
		return nil
	}
	fmt.Printf("bank_id:  %s\n", b.BankID)
	fmt.Printf("name:     %s\n", b.Name)
	fmt.Printf("mission:  %s\n", b.Mission)
	fmt.Printf("created:  %s\n", b.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}
