package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"darwin.app/engine/internal/queue"
)

var queuesCmd = &cobra.Command{
	Use:   "queues",
	Short: "Show work queue depths",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		yellow := color.New(color.FgYellow).SprintFunc()

		fmt.Printf("%s\n", yellow("Lists:"))
		for _, key := range []string{queue.ToEmbed, queue.ToClassify} {
			n, err := queue.NewListQueue(rdb, key).Len(ctx)
			if err != nil {
				return fmt.Errorf("reading %s: %w", key, err)
			}
			fmt.Printf("  %-20s %s\n", key, depth(n))
		}
		n, err := queue.NewTriageQueue(rdb).Len(ctx)
		if err != nil {
			return fmt.Errorf("reading %s: %w", queue.Triage, err)
		}
		fmt.Printf("  %-20s %s\n", queue.Triage, depth(n))

		fmt.Printf("\n%s\n", yellow("Fix jobs:"))
		for _, stream := range []string{cfg.Worker.FixStream, cfg.Worker.FixDLQStream} {
			n, err := rdb.XLen(ctx, stream).Result()
			if err != nil {
				return fmt.Errorf("reading %s: %w", stream, err)
			}
			fmt.Printf("  %-20s %s\n", stream, depth(n))
		}

		pending, err := rdb.XPending(ctx, cfg.Worker.FixStream, cfg.Worker.FixGroup).Result()
		if err != nil {
			fmt.Printf("  %-20s %s\n", "pending", color.New(color.FgHiBlack).Sprint("no consumer group yet"))
			return nil
		}
		fmt.Printf("  %-20s %s\n", "pending", depth(pending.Count))
		for consumer, count := range pending.Consumers {
			fmt.Printf("    %-18s %d\n", consumer, count)
		}
		return nil
	},
}

func depth(n int64) string {
	if n == 0 {
		return color.New(color.FgGreen).Sprint(n)
	}
	return color.New(color.FgYellow, color.Bold).Sprint(n)
}

func init() {
	rootCmd.AddCommand(queuesCmd)
}
