package agent

import "errors"

var (
	// ErrRunInProgress rejects a run while another one holds the run lock.
	ErrRunInProgress = errors.New("agent run already in progress")
	// ErrSystem wraps failures that abort a whole run, such as an unavailable store.
	ErrSystem = errors.New("agent run failed")
)
