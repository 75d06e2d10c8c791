package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/essential-contributions/essential-node/foundation/hash"
)

func init() {
	rootCmd.AddCommand(finalizeCmd)
}

var finalizeCmd = &cobra.Command{
	Use:   "finalize <block-address>",
	Short: "Mark a block finalized by its content address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := hash.ParseAddress(args[0])
		if err != nil {
			return fmt.Errorf("parsing block address: %w", err)
		}

		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		if err := st.FinalizeBlock(ctx, addr); err != nil {
			return fmt.Errorf("finalizing block: %w", err)
		}

		fmt.Printf("finalized %s\n", addr)
		return nil
	},
}
