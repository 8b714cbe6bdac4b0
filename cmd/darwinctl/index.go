package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"darwin.app/engine/internal/store"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Create the vector search indexes if they are missing",
	Long: `Create the topic and successful-fix vector indexes.

The dimension must match the embedding model. Existing indexes are left
untouched, so changing the model requires dropping them by hand first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dims, _ := cmd.Flags().GetInt("dimensions")
		if dims <= 0 {
			dims = cfg.Embedding.Dimensions
		}
		if err := store.EnsureIndexes(cmd.Context(), rdb, dims); err != nil {
			return err
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Indexes ready (%d dimensions)\n", green("✓"), dims)
		return nil
	},
}

func init() {
	indexCmd.Flags().Int("dimensions", 0, "Vector dimension (defaults to EMBEDDING_DIMENSIONS)")
	rootCmd.AddCommand(indexCmd)
}
