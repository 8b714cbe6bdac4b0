package feedback

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

var ErrNoTaskID = errors.New("no task id in pull request")

type EventKind string

const (
	EventPRClosed        EventKind = "pr_closed"
	EventPRReopened      EventKind = "pr_reopened"
	EventReviewSubmitted EventKind = "review_submitted"
)

// Review states, normalized across hosts.
const (
	ReviewApproved         = "approved"
	ReviewChangesRequested = "changes_requested"
	ReviewCommented        = "commented"
)

// Event is a pull request or review webhook reduced to what the lifecycle
// needs. Host webhooks are mapped onto it before handling.
type Event struct {
	Kind     EventKind
	Host     string
	Repo     string
	PRNumber int
	PRURL    string
	PRTitle  string
	PRBody   string
	Branch   string

	Merged   bool
	MergedAt *time.Time

	ReviewState string
	ReviewBody  string
	Reviewer    string
}

var (
	taskIDPattern    = regexp.MustCompile(`(?i)Task ID:\s*([a-f0-9]+)`)
	fixBranchPattern = regexp.MustCompile(`(?:^|/)fix-([a-f0-9]+)$`)
)

// TaskID finds the task a PR belongs to: the "Task ID:" marker in the body
// first, then the fix branch name.
func TaskID(body, branch string) (string, error) {
	if m := taskIDPattern.FindStringSubmatch(body); m != nil {
		return strings.ToLower(m[1]), nil
	}
	if m := fixBranchPattern.FindStringSubmatch(branch); m != nil {
		return m[1], nil
	}
	return "", ErrNoTaskID
}
