package mapper_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"darwin.app/engine/internal/feedback"
	"darwin.app/engine/internal/mapper"
)

var _ = Describe("GitLabEventMapper", func() {
	var (
		gitlabMapper mapper.EventMapper
		ctx          context.Context
	)

	BeforeEach(func() {
		gitlabMapper = mapper.NewGitLabEventMapper("darwin-bot")
		ctx = context.Background()
	})

	mergeRequest := func(action string) []byte {
		return []byte(`{
			"object_kind": "merge_request",
			"user": {"username": "maria"},
			"project": {"path_with_namespace": "acme/web"},
			"object_attributes": {
				"iid": 12,
				"title": "fix: Checkout total is wrong",
				"description": "Task ID: 0a1b",
				"source_branch": "darwin/fix-0a1b",
				"url": "https://gitlab.com/acme/web/-/merge_requests/12",
				"action": "` + action + `"
			}
		}`)
	}

	DescribeTable("merge request actions",
		func(action string, kind feedback.EventKind, merged bool) {
			ev, err := gitlabMapper.Map(ctx, mergeRequest(action), map[string]string{"X-Gitlab-Event": "Merge Request Hook"})
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Kind).To(Equal(kind))
			Expect(ev.Merged).To(Equal(merged))
			Expect(ev.PRNumber).To(Equal(12))
			Expect(ev.Branch).To(Equal("darwin/fix-0a1b"))
			Expect(ev.Repo).To(Equal("acme/web"))
		},
		Entry("merge", "merge", feedback.EventPRClosed, true),
		Entry("close", "close", feedback.EventPRClosed, false),
		Entry("reopen", "reopen", feedback.EventPRReopened, false),
		Entry("approved", "approved", feedback.EventReviewSubmitted, false),
	)

	It("ignores other merge request actions", func() {
		_, err := gitlabMapper.Map(ctx, mergeRequest("update"), map[string]string{"X-Gitlab-Event": "Merge Request Hook"})
		Expect(err).To(MatchError(mapper.ErrUnsupportedEvent))
	})

	It("treats a merge request note as requested changes", func() {
		body := []byte(`{
			"object_kind": "note",
			"user": {"username": "maria"},
			"project": {"path_with_namespace": "acme/web"},
			"object_attributes": {"note": "Use the shared formatter here", "noteable_type": "MergeRequest"},
			"merge_request": {"iid": 12, "description": "Task ID: 0a1b", "source_branch": "darwin/fix-0a1b"}
		}`)

		ev, err := gitlabMapper.Map(ctx, body, map[string]string{})
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Kind).To(Equal(feedback.EventReviewSubmitted))
		Expect(ev.ReviewState).To(Equal(feedback.ReviewChangesRequested))
		Expect(ev.ReviewBody).To(Equal("Use the shared formatter here"))
		Expect(ev.Reviewer).To(Equal("maria"))
	})

	It("skips system notes and notes on issues", func() {
		system := []byte(`{"object_kind":"note","object_attributes":{"note":"added 1 commit","noteable_type":"MergeRequest","system":true},"merge_request":{"iid":3}}`)
		_, err := gitlabMapper.Map(ctx, system, map[string]string{})
		Expect(err).To(MatchError(mapper.ErrUnsupportedEvent))

		issue := []byte(`{"object_kind":"note","object_attributes":{"note":"+1","noteable_type":"Issue"}}`)
		_, err = gitlabMapper.Map(ctx, issue, map[string]string{})
		Expect(err).To(MatchError(mapper.ErrUnsupportedEvent))
	})

	It("skips notes the bot wrote on its own merge request", func() {
		note := func(author string) []byte {
			return []byte(`{
				"object_kind": "note",
				"user": {"username": "` + author + `"},
				"project": {"path_with_namespace": "acme/web"},
				"object_attributes": {"note": "Pushed a fix for the review", "noteable_type": "MergeRequest"},
				"merge_request": {"iid": 12, "description": "Task ID: 0a1b", "source_branch": "darwin/fix-0a1b"}
			}`)
		}

		_, err := gitlabMapper.Map(ctx, note("darwin-bot"), map[string]string{"X-Gitlab-Event": "Note Hook"})
		Expect(err).To(MatchError(mapper.ErrUnsupportedEvent))

		_, err = gitlabMapper.Map(ctx, note("Darwin-Bot"), map[string]string{"X-Gitlab-Event": "Note Hook"})
		Expect(err).To(MatchError(mapper.ErrUnsupportedEvent))

		ev, err := mapper.NewGitLabEventMapper("").Map(ctx, note("darwin-bot"), map[string]string{"X-Gitlab-Event": "Note Hook"})
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.ReviewState).To(Equal(feedback.ReviewChangesRequested))
	})

	It("rejects unknown hooks", func() {
		_, err := gitlabMapper.Map(ctx, []byte(`{"object_kind":"pipeline"}`), map[string]string{"X-Gitlab-Event": "Pipeline Hook"})
		Expect(err).To(MatchError(mapper.ErrUnsupportedEvent))
	})
})
