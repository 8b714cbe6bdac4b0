package agent

import (
	"fmt"
	"strings"

	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/repohost"
)

const systemPrompt = `You are a skilled software engineer working inside a cloned repository. You fix bugs and implement small features reported by users.

## Workflow
1. Explore: use list_files and search to find the code involved.
2. Analyze: read the relevant files before changing anything.
3. Fix: make the smallest change that resolves the problem with edit_file (or write_file for new files).
4. Verify: re-read what you changed.
5. Call finish with a short summary of the change.

## Guidelines
- Follow the existing code style and conventions.
- Keep changes focused. Do not reformat unrelated code.
- Do not run tests, commit or push. The system does that after you finish.
- If you are unsure, prefer the smaller change.`

func initialPrompt(task *model.Task, extra string) string {
	var b strings.Builder
	b.WriteString("## Task\n")
	writeTask(&b, task)
	if strings.TrimSpace(extra) != "" {
		b.WriteString("\n")
		b.WriteString(extra)
		b.WriteString("\n")
	}
	b.WriteString("\nBegin by exploring the codebase to find the code relevant to this task.")
	return b.String()
}

func feedbackPrompt(task *model.Task, fb *repohost.Feedback, extra string) string {
	var b strings.Builder
	b.WriteString("A pull request you opened for this task received review feedback. This checkout is the PR branch with your previous change applied.\n\n## Task\n")
	writeTask(&b, task)

	b.WriteString("\n## Review feedback\n")
	for _, r := range fb.Reviews {
		if strings.TrimSpace(r.Body) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n### Review by %s (%s)\n%s\n", orUnknown(r.Author), r.State, strings.TrimSpace(r.Body))
	}
	for _, c := range fb.Comments {
		if strings.TrimSpace(c.Body) == "" {
			continue
		}
		if c.Path != "" {
			fmt.Fprintf(&b, "\n### Comment by %s on `%s`\n%s\n", orUnknown(c.Author), c.Path, strings.TrimSpace(c.Body))
		} else {
			fmt.Fprintf(&b, "\n### Comment by %s\n%s\n", orUnknown(c.Author), strings.TrimSpace(c.Body))
		}
	}

	if strings.TrimSpace(extra) != "" {
		b.WriteString("\n")
		b.WriteString(extra)
		b.WriteString("\n")
	}
	b.WriteString("\nAddress every point the reviewers raised. Do not revert unrelated parts of the existing change.")
	return b.String()
}

func writeTask(b *strings.Builder, task *model.Task) {
	fmt.Fprintf(b, "- **Category**: %s\n", task.Category)
	fmt.Fprintf(b, "- **Title**: %s\n", task.Title)
	fmt.Fprintf(b, "- **Summary**: %s\n", task.Summary)
	if task.Severity != nil {
		fmt.Fprintf(b, "- **Severity**: %s\n", *task.Severity)
	}
	if task.SuggestedAction != "" {
		fmt.Fprintf(b, "- **Suggested Action**: %s\n", task.SuggestedAction)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
