package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"darwin.app/engine/internal/fixer"
	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/queue"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks and trigger fixes",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		category, _ := cmd.Flags().GetString("category")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := model.TaskFilter{
			Status:   model.TaskStatus(status),
			Category: model.Category(category),
			Limit:    limit,
		}
		if status != "" && !filter.Status.Valid() {
			return fmt.Errorf("invalid status %q", status)
		}
		if category != "" && !filter.Category.Valid() {
			return fmt.Errorf("invalid category %q", category)
		}

		tasks, err := stores.Tasks().List(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("listing tasks: %w", err)
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks")
			return nil
		}
		for i := range tasks {
			fmt.Println(formatTask(&tasks[i]))
		}
		return nil
	},
}

var tasksFixCmd = &cobra.Command{
	Use:   "fix <task-id>",
	Short: "Queue a fix for a task regardless of the trigger policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		producer := queue.NewRedisProducer(rdb, cfg.Worker.FixStream, nil)
		scheduler := fixer.NewScheduler(stores.Tasks(), producer, fixer.NewPolicy(fixer.TriggerOff, nil, 0))
		if err := scheduler.Request(cmd.Context(), args[0]); err != nil {
			return err
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Fix queued for task %s\n", green("✓"), args[0])
		return nil
	},
}

// formatTask renders one task as a single line: id, status, fix state, title
// and the PR or issue link when present.
func formatTask(t *model.Task) string {
	line := fmt.Sprintf("%s  %-11s %-9s %-10s %s",
		t.ID, statusColor(t.Status), t.FixStatus, t.Category, truncate(t.Title, 60))
	switch {
	case t.HasPR():
		line += color.New(color.FgHiBlack).Sprintf("  %s", *t.FixPRURL)
	case t.IssueURL != nil:
		line += color.New(color.FgHiBlack).Sprintf("  %s", *t.IssueURL)
	}
	return line
}

func statusColor(s model.TaskStatus) string {
	switch s {
	case model.TaskStatusDone:
		return color.GreenString(string(s))
	case model.TaskStatusInProgress:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

// truncate cuts s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func init() {
	tasksListCmd.Flags().String("status", "", "Filter by status (open, in_progress, done)")
	tasksListCmd.Flags().String("category", "", "Filter by category")
	tasksListCmd.Flags().Int("limit", 50, "Maximum tasks to show")
	tasksCmd.AddCommand(tasksListCmd, tasksFixCmd)
	rootCmd.AddCommand(tasksCmd)
}
