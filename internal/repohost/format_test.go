package repohost_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/repohost"
)

var _ = Describe("issue and PR formatting", func() {
	critical := model.SeverityCritical
	minor := model.SeverityMinor

	It("truncates long titles to 100 characters", func() {
		task := &model.Task{Title: strings.Repeat("a", 150)}
		title := repohost.IssueTitle(task)
		Expect([]rune(title)).To(HaveLen(100))
		Expect(title).To(HaveSuffix("..."))
	})

	It("falls back to the summary when the title is empty", func() {
		Expect(repohost.IssueTitle(&model.Task{Summary: "Users cannot log in"})).To(Equal("Users cannot log in"))
	})

	DescribeTable("labels",
		func(category model.Category, severity *model.Severity, expected []string) {
			Expect(repohost.IssueLabels(&model.Task{Category: category, Severity: severity})).To(Equal(expected))
		},
		Entry("critical bug", model.CategoryBug, &critical, []string{"bug", "priority: critical"}),
		Entry("minor bug", model.CategoryBug, &minor, []string{"bug"}),
		Entry("feature", model.CategoryFeature, nil, []string{"enhancement"}),
		Entry("ux ignores severity", model.CategoryUX, &critical, []string{"ux", "enhancement"}),
	)

	It("appends product labels without duplicates", func() {
		labels := repohost.IssueLabels(&model.Task{Category: model.CategoryFeature}, "enhancement", "from-feedback")
		Expect(labels).To(Equal([]string{"enhancement", "from-feedback"}))
	})

	It("renders the issue body sections and footer", func() {
		task := &model.Task{
			ID: "abc123", TopicID: "t9", Category: model.CategoryBug, Severity: &critical,
			Summary: "Crash on save", SuggestedAction: "Guard the nil config", Confidence: 0.9,
		}
		body := repohost.IssueBody(task, 4)
		Expect(body).To(ContainSubstring("## Summary\nCrash on save"))
		Expect(body).To(ContainSubstring("**BUG** (Severity: Critical)"))
		Expect(body).To(ContainSubstring("## Suggested Action\nGuard the nil config"))
		Expect(body).To(ContainSubstring("Confidence: 90% | Signals: 4 | Topic: `t9`"))
		Expect(body).To(ContainSubstring("Task ID: abc123"))
	})

	It("marks PRs with the task id and issue reference", func() {
		issue := 42
		task := &model.Task{ID: "deadbeef", Title: "Login fails", Summary: "OAuth callback drops state", IssueNumber: &issue}
		Expect(repohost.PRTitle(task)).To(Equal("fix: Login fails"))

		body := repohost.PRBody(task, []string{"auth/callback.go"})
		Expect(body).To(ContainSubstring("- `auth/callback.go`"))
		Expect(body).To(ContainSubstring("Fixes #42"))
		Expect(body).To(HaveSuffix("Task ID: deadbeef\n"))
	})

	It("builds branch names under the prefix", func() {
		Expect(repohost.BranchName("darwin", "abc")).To(Equal("darwin/fix-abc"))
		Expect(repohost.BranchName("", "abc")).To(Equal("fix-abc"))
	})
})
