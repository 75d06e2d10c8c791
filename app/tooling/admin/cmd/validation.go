package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(validationCmd)
}

var validationCmd = &cobra.Command{
	Use:   "validation-progress",
	Short: "Show the validation stream's current progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		vp, ok, err := st.GetValidationProgress(ctx)
		if err != nil {
			return fmt.Errorf("reading validation progress: %w", err)
		}
		if !ok {
			fmt.Println("no blocks checked yet")
			return nil
		}

		fmt.Printf("checked through block_number=%d block_id=%d\n", vp.BlockNumber, vp.BlockID)

		failedSets, err := st.GetFailedSets(ctx, vp.BlockID)
		if err != nil {
			return fmt.Errorf("reading failed sets: %w", err)
		}
		if len(failedSets) > 0 {
			fmt.Printf("block %d has %d failed solution set(s): %v\n", vp.BlockNumber, len(failedSets), failedSets)
		}
		return nil
	},
}
