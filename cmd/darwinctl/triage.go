package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"darwin.app/engine/internal/cluster"
	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/queue"
)

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Inspect and resolve signals parked in the triage queue",
}

var triageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending triage entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		ctx := cmd.Context()

		entries, err := queue.NewTriageQueue(rdb).List(ctx, limit)
		if err != nil {
			return fmt.Errorf("listing triage entries: %w", err)
		}
		if len(entries) == 0 {
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s Triage queue is empty\n", green("✓"))
			return nil
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		for _, e := range entries {
			title := gray("(topic missing)")
			if topic, err := stores.Topics().Get(ctx, e.TopicID); err == nil {
				title = topic.Title
			}
			text := ""
			if sig, err := stores.Signals().Get(ctx, e.SignalID); err == nil {
				text = truncate(sig.Text, 80)
			}
			fmt.Printf("%s -> %s\n", e.SignalID, e.TopicID)
			fmt.Printf("    Signal: %s\n", text)
			fmt.Printf("    Topic:  %s\n", title)
		}
		fmt.Printf("\n%d entries\n", len(entries))
		return nil
	},
}

var triageResolveCmd = &cobra.Command{
	Use:   "resolve <signal-id> <topic-id> <attach|create|dismiss>",
	Short: "Resolve one triage entry",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		action := model.TriageAction(args[2])
		if !action.Valid() {
			return fmt.Errorf("action must be one of attach, create, dismiss (got %q)", args[2])
		}

		engine := cluster.New(
			stores.TopicIndex(),
			stores.Topics(),
			stores.Signals(),
			queue.NewTriageQueue(rdb),
			queue.NewListQueue(rdb, queue.ToClassify),
			cluster.Config{
				K:             cfg.Cluster.K,
				HighThreshold: cfg.Cluster.HighThreshold,
				LowThreshold:  cfg.Cluster.LowThreshold,
			},
		)

		res, err := engine.Resolve(cmd.Context(), model.TriageEntry{SignalID: args[0], TopicID: args[1]}, action)
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		if res.TopicID == "" {
			fmt.Printf("%s Signal %s %s\n", green("✓"), args[0], res.Action)
		} else {
			fmt.Printf("%s Signal %s %s to topic %s\n", green("✓"), args[0], res.Action, res.TopicID)
		}
		return nil
	},
}

func init() {
	triageListCmd.Flags().Int("limit", 50, "Maximum entries to show")
	triageCmd.AddCommand(triageListCmd, triageResolveCmd)
	rootCmd.AddCommand(triageCmd)
}
