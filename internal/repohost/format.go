package repohost

import (
	"fmt"
	"math"
	"strings"

	"darwin.app/engine/internal/model"
)

const issueTitleMaxLen = 100

var categoryLabels = map[model.Category][]string{
	model.CategoryBug:     {"bug"},
	model.CategoryFeature: {"enhancement"},
	model.CategoryUX:      {"ux", "enhancement"},
}

var severityLabels = map[model.Severity]string{
	model.SeverityCritical: "priority: critical",
	model.SeverityMajor:    "priority: high",
}

// IssueTitle prefers the task title and falls back to its summary.
func IssueTitle(task *model.Task) string {
	title := strings.TrimSpace(task.Title)
	if title == "" {
		title = strings.TrimSpace(task.Summary)
	}
	r := []rune(title)
	if len(r) > issueTitleMaxLen {
		return string(r[:issueTitleMaxLen-3]) + "..."
	}
	return title
}

// IssueLabels maps category and, for bugs, severity onto labels. extra is
// appended after de-duplication.
func IssueLabels(task *model.Task, extra ...string) []string {
	var labels []string
	seen := map[string]bool{}
	add := func(l string) {
		if l == "" || seen[l] {
			return
		}
		seen[l] = true
		labels = append(labels, l)
	}

	for _, l := range categoryLabels[task.Category] {
		add(l)
	}
	if task.Category == model.CategoryBug && task.Severity != nil {
		add(severityLabels[*task.Severity])
	}
	for _, l := range extra {
		add(l)
	}
	return labels
}

func IssueBody(task *model.Task, signalCount int) string {
	var b strings.Builder

	summary := task.Summary
	if strings.TrimSpace(summary) == "" {
		summary = "No summary available"
	}
	b.WriteString("## Summary\n")
	b.WriteString(summary)
	b.WriteString("\n\n## Category\n")
	fmt.Fprintf(&b, "**%s**", task.Category)
	if task.Severity != nil {
		s := string(*task.Severity)
		fmt.Fprintf(&b, " (Severity: %s)", strings.ToUpper(s[:1])+s[1:])
	}
	b.WriteString("\n")

	if action := strings.TrimSpace(task.SuggestedAction); action != "" {
		b.WriteString("\n## Suggested Action\n")
		b.WriteString(action)
		b.WriteString("\n")
	}

	if signalCount < 1 {
		signalCount = 1
	}
	footer := []string{
		fmt.Sprintf("Confidence: %d%%", int(math.Round(task.Confidence*100))),
		fmt.Sprintf("Signals: %d", signalCount),
	}
	if task.TopicID != "" {
		footer = append(footer, fmt.Sprintf("Topic: `%s`", task.TopicID))
	}
	b.WriteString("\n---\n")
	fmt.Fprintf(&b, "*Created by Darwin | %s*\n", strings.Join(footer, " | "))
	fmt.Fprintf(&b, "\nTask ID: %s\n", task.ID)

	return b.String()
}

// BranchName is the fix branch for a task. The feedback handler recognises
// PRs by this shape when the body marker is missing.
func BranchName(prefix, taskID string) string {
	if prefix == "" {
		return "fix-" + taskID
	}
	return strings.TrimSuffix(prefix, "/") + "/fix-" + taskID
}

func PRTitle(task *model.Task) string {
	return "fix: " + IssueTitle(task)
}

// PRBody always ends with the Task ID marker so webhooks can be correlated
// back to the task.
func PRBody(task *model.Task, filesChanged []string) string {
	var b strings.Builder

	b.WriteString("## Summary\n")
	if s := strings.TrimSpace(task.Summary); s != "" {
		b.WriteString(s)
	} else {
		b.WriteString(task.Title)
	}
	b.WriteString("\n")

	if len(filesChanged) > 0 {
		b.WriteString("\n## Files changed\n")
		for _, f := range filesChanged {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
	}

	if task.IssueNumber != nil && *task.IssueNumber > 0 {
		fmt.Fprintf(&b, "\nFixes #%d\n", *task.IssueNumber)
	}

	b.WriteString("\n---\n")
	b.WriteString("*Automated fix generated by Darwin.*\n\n")
	fmt.Fprintf(&b, "Task ID: %s\n", task.ID)

	return b.String()
}
