package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var contractsLimit int64

func init() {
	contractsCmd.Flags().Int64Var(&contractsLimit, "limit", 50, "Maximum number of contracts to list.")
	rootCmd.AddCommand(contractsCmd)
}

var contractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "List registered contracts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		contracts, err := st.ListContracts(ctx, 0, ^uint64(0), contractsLimit, 0)
		if err != nil {
			return fmt.Errorf("listing contracts: %w", err)
		}

		for _, c := range contracts {
			fmt.Printf("content_hash=%s predicates=%d created_at=%d.%09d\n", c.ContentHash, len(c.Predicates), c.CreatedAt.Secs, c.CreatedAt.Nanos)
		}
		return nil
	},
}
