package model

import "time"

type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "open"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusOpen, TaskStatusInProgress, TaskStatusDone:
		return true
	default:
		return false
	}
}

type FixStatus string

const (
	FixStatusIdle      FixStatus = "idle"
	FixStatusRunning   FixStatus = "running"
	FixStatusCompleted FixStatus = "completed"
	FixStatusFailed    FixStatus = "failed"
)

type PRStatus string

const (
	PRStatusOpen   PRStatus = "open"
	PRStatusMerged PRStatus = "merged"
	PRStatusClosed PRStatus = "closed"
)

type FixOutcome string

const (
	FixOutcomePending  FixOutcome = "pending"
	FixOutcomeSuccess  FixOutcome = "success"
	FixOutcomeRejected FixOutcome = "rejected"
)

// Task is the actionable work item created once per actionable
// classification. TopicID is a weak reference; the topic keeps evolving.
type Task struct {
	ID              string      `json:"id"`
	TopicID         string      `json:"topic_id"`
	Category        Category    `json:"category"`
	Title           string      `json:"title"`
	Summary         string      `json:"summary"`
	Severity        *Severity   `json:"severity,omitempty"`
	SuggestedAction string      `json:"suggested_action"`
	Confidence      float64     `json:"confidence"`
	Product         *string     `json:"product,omitempty"`
	Status          TaskStatus  `json:"status"`
	IssueURL        *string     `json:"github_issue_url,omitempty"`
	IssueNumber     *int        `json:"github_issue_number,omitempty"`
	FixStatus       FixStatus   `json:"fix_status"`
	FixPRURL        *string     `json:"fix_pr_url,omitempty"`
	FixPRNumber     *int        `json:"fix_pr_number,omitempty"`
	FixBranch       *string     `json:"fix_branch,omitempty"`
	FixIterations   int         `json:"fix_iterations"`
	FixPRStatus     *PRStatus   `json:"fix_pr_status,omitempty"`
	FixOutcome      *FixOutcome `json:"fix_outcome,omitempty"`
	FixError        *string     `json:"fix_error,omitempty"`
	FilesChanged    []string    `json:"files_changed,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// HasPR reports whether a fix PR was already opened for the task.
func (t *Task) HasPR() bool {
	return t.FixPRURL != nil && *t.FixPRURL != ""
}

// TaskFilter narrows task listings. Zero values match everything.
type TaskFilter struct {
	Status   TaskStatus
	Category Category
	Limit    int
}

// FixUpdate is a field-level patch of a task's fix state. Nil fields are left
// untouched. ClearError removes a previous fix_error and IterationDelta is
// added to fix_iterations with HINCRBY.
type FixUpdate struct {
	Status         *FixStatus
	PRURL          *string
	PRNumber       *int
	Branch         *string
	PRStatus       *PRStatus
	Outcome        *FixOutcome
	Error          *string
	ClearError     bool
	FilesChanged   []string
	IterationDelta int
}

// FixClaim is the precondition set checked and applied in one step before a
// fix run. A claim always fails while another fix is running.
type FixClaim struct {
	// RequireNoPR rejects tasks that already have a fix PR.
	RequireNoPR bool
	// MaxIterations, when positive, rejects tasks at the cap and reserves
	// one iteration for the run.
	MaxIterations int
}
