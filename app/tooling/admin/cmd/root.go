// Package cmd contains the admin CLI's subcommands.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/essential-contributions/essential-node/foundation/store"
)

var dbPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db-path", "d", "zblock/node.db", "Path to the node's sqlite database.")
}

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Inspect and administer an essential-node store",
}

// Execute runs the CLI, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, dbPath, 1)
}
