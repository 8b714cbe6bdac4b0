package learning

import (
	"fmt"
	"strings"

	"darwin.app/engine/internal/model"
)

const (
	maxListedFiles    = 5
	maxSummaryPreview = 200
)

// FormatContext renders similar fixes and rules as the agent's extra
// context. An empty result means there is nothing to add.
func FormatContext(fixes []model.SuccessfulFix, rules []model.Rule) string {
	var parts []string
	if len(fixes) > 0 {
		parts = append(parts, "## Similar past fixes\n\n"+FormatSimilarFixes(fixes))
	}
	if len(rules) > 0 {
		parts = append(parts, "## Project rules from past code reviews\n\n"+FormatRules(rules))
	}
	return strings.Join(parts, "\n\n")
}

func FormatSimilarFixes(fixes []model.SuccessfulFix) string {
	sections := make([]string, 0, len(fixes))
	for i, f := range fixes {
		files := "N/A"
		if len(f.FilesChanged) > 0 {
			shown := f.FilesChanged
			if len(shown) > maxListedFiles {
				shown = shown[:maxListedFiles]
			}
			files = strings.Join(shown, ", ")
			if extra := len(f.FilesChanged) - len(shown); extra > 0 {
				files += fmt.Sprintf(" (+%d more)", extra)
			}
		}

		summary := f.Summary
		if r := []rune(summary); len(r) > maxSummaryPreview {
			summary = string(r[:maxSummaryPreview]) + "..."
		}

		var b strings.Builder
		fmt.Fprintf(&b, "### Similar Fix #%d (merged)\n", i+1)
		fmt.Fprintf(&b, "- **Category**: %s\n", f.Category)
		fmt.Fprintf(&b, "- **Title**: %s\n", f.Title)
		fmt.Fprintf(&b, "- **Summary**: %s\n", summary)
		fmt.Fprintf(&b, "- **Files Changed**: %s\n", files)
		fmt.Fprintf(&b, "- **Similarity**: %.0f%%", f.Score*100)
		if f.PRURL != "" {
			fmt.Fprintf(&b, "\n- **PR**: %s", f.PRURL)
		}
		sections = append(sections, b.String())
	}
	return strings.Join(sections, "\n\n")
}

func FormatRules(rules []model.Rule) string {
	var b strings.Builder
	for _, r := range rules {
		fmt.Fprintf(&b, "- [%s] %s\n", r.Category, r.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
