// Package main implements the hindsightd CLI for operating a hindsight
// memory engine instance directly against its Postgres/Qdrant backends,
// without going through a server process.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	jsonOutput bool
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "hindsightd",
	Short:   "CLI for operating a hindsight memory engine",
	Long:    `hindsightd manages banks and exercises the retain/recall/reflect pipeline directly against its storage backends.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults layered under env vars)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output results as JSON")

	rootCmd.AddCommand(bankCmd)
	rootCmd.AddCommand(retainCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(reflectCmd)
	rootCmd.AddCommand(consolidateCmd)
}
