package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	blocksStart uint64
	blocksEnd   uint64
	blocksLimit int64
)

func init() {
	blocksCmd.Flags().Uint64Var(&blocksStart, "start", 0, "First block number to list (inclusive).")
	blocksCmd.Flags().Uint64Var(&blocksEnd, "end", ^uint64(0), "Last block number to list (exclusive).")
	blocksCmd.Flags().Int64Var(&blocksLimit, "limit", 50, "Maximum number of blocks to list.")
	rootCmd.AddCommand(blocksCmd)
}

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List blocks by number range",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		blocks, err := st.ListBlocks(ctx, blocksStart, blocksEnd, blocksLimit, 0)
		if err != nil {
			return fmt.Errorf("listing blocks: %w", err)
		}

		for _, b := range blocks {
			fmt.Printf("number=%d address=%s parent_id=%d solution_sets=%d\n", b.Number, b.Address, b.ParentBlockID, len(b.SolutionSets))
		}
		return nil
	},
}
