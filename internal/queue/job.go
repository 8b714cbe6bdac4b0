package queue

import "fmt"

type JobKind string

const (
	// JobKindInitial opens a new fix branch and PR for a task.
	JobKindInitial JobKind = "initial"
	// JobKindRemediate pushes another iteration onto an existing PR branch.
	JobKindRemediate JobKind = "remediate"
)

func (k JobKind) Valid() bool {
	return k == JobKindInitial || k == JobKindRemediate
}

// FixJob is one unit of fix work on the fix-job stream.
type FixJob struct {
	Kind     JobKind
	TaskID   string
	PRNumber int    // remediate only
	Branch   string // remediate only
	TraceID  string
	Attempt  int
}

func (j FixJob) validate() error {
	if !j.Kind.Valid() {
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
	if j.TaskID == "" {
		return fmt.Errorf("missing task_id")
	}
	if j.Kind == JobKindRemediate && (j.PRNumber <= 0 || j.Branch == "") {
		return fmt.Errorf("remediate job for task %s needs pr_number and branch", j.TaskID)
	}
	return nil
}
