package fixer

import (
	"fmt"

	"darwin.app/engine/internal/repohost"
	"darwin.app/engine/internal/store"
)

var (
	ErrFixInProgress = store.ErrFixRunning
	ErrAlreadyHasPR  = store.ErrHasPR
	ErrNoRepository  = repohost.ErrNoRepository
)

// StageError is a failed pipeline stage. The task already carries
// fix_status=failed and the message in fix_error when one is returned.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
