// Command hubd runs a Hub node: the message-store engine, its background
// workers, and the JSON HTTP edge, matching the teacher's
// cmd/synnergy/main.go cobra-root-command idiom.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{Use: "hubd"}
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(identityCmd())
	rootCmd.AddCommand(migrationCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
