package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	fileutil "uploadqueue/internal/file"
)

type RunStatus string

const (
	RunIdle    RunStatus = "idle"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// State summarises run history. Counters only grow.
type State struct {
	LastRun       *time.Time `json:"lastRun"`
	LastRunStatus RunStatus  `json:"lastRunStatus"`
	LastError     string     `json:"lastError,omitempty"`
	TotalRuns     int64      `json:"totalRuns"`
	TotalUploads  int64      `json:"totalUploads"`
	TotalFailures int64      `json:"totalFailures"`
}

// DefaultState is the state of an agent that has never run.
func DefaultState() State {
	return State{LastRunStatus: RunIdle}
}

func (s State) clone() State {
	if s.LastRun != nil {
		t := *s.LastRun
		s.LastRun = &t
	}
	return s
}

// StateStore persists the agent state. LoadState reports found=false when
// nothing has been saved yet.
type StateStore interface {
	LoadState(ctx context.Context) (State, bool, error)
	SaveState(ctx context.Context, s State) error
}

type fileStateStore struct {
	path string
}

// NewFileStateStore keeps the state in dataDir/agent_state.json.
func NewFileStateStore(dataDir string) StateStore { //nolint:ireturn
	if dataDir == "" {
		dataDir = "data"
	}
	return &fileStateStore{path: filepath.Join(dataDir, "agent_state.json")}
}

func (s *fileStateStore) LoadState(ctx context.Context) (State, bool, error) { //nolint:revive // context reserved for future use
	var st State
	if err := fileutil.ReadJSON(s.path, &st); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultState(), false, nil
		}
		return DefaultState(), false, err //nolint:wrapcheck
	}
	if st.LastRunStatus == "" {
		st.LastRunStatus = RunIdle
	}
	return st, true, nil
}

func (s *fileStateStore) SaveState(ctx context.Context, st State) error { //nolint:revive // context reserved for future use
	return fileutil.WriteJSONAtomic(s.path, st) //nolint:wrapcheck
}

// StateTracker owns the agent state for one process. Only the engine mutates it.
type StateTracker struct {
	mu    sync.Mutex
	state State
	store StateStore
	now   func() time.Time
}

// NewStateTracker loads the persisted state, or starts from DefaultState.
// A nil store keeps the state in memory only.
func NewStateTracker(ctx context.Context, store StateStore, now func() time.Time) (*StateTracker, error) {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	tracker := &StateTracker{state: DefaultState(), store: store, now: now}
	if store == nil {
		return tracker, nil
	}
	loaded, found, err := store.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load agent state: %w", err)
	}
	if found {
		tracker.state = loaded
	}
	return tracker, nil
}

// State returns a snapshot of the current state.
func (t *StateTracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.clone()
}

// RecordError marks a run that failed as a whole.
func (t *StateTracker) RecordError(ctx context.Context, message string) error {
	return t.recordFailure(ctx, runOutcome{finished: t.now()}, message)
}

// recordFailure counts the tasks a run finished before it was aborted and
// marks the run as failed with message.
func (t *StateTracker) recordFailure(ctx context.Context, o runOutcome, message string) error {
	return t.update(ctx, func(s *State) {
		finished := o.finished
		s.LastRun = &finished
		s.LastRunStatus = RunError
		s.LastError = message
		s.TotalRuns++
		s.TotalUploads += int64(o.uploads)
		s.TotalFailures += int64(o.failures)
	})
}

// runOutcome is what one completed run contributes to the state.
type runOutcome struct {
	uploads   int
	failures  int
	lastError string
	finished  time.Time
}

func (t *StateTracker) commit(ctx context.Context, o runOutcome) error {
	return t.update(ctx, func(s *State) {
		finished := o.finished
		s.LastRun = &finished
		s.TotalRuns++
		s.TotalUploads += int64(o.uploads)
		s.TotalFailures += int64(o.failures)
		if o.failures > 0 {
			s.LastRunStatus = RunError
			s.LastError = o.lastError
		} else {
			s.LastRunStatus = RunSuccess
			s.LastError = ""
		}
	})
}

// update applies fn to a copy, persists it and only then makes it current.
func (t *StateTracker) update(ctx context.Context, fn func(s *State)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := t.state.clone()
	fn(&next)
	if t.store != nil {
		if err := t.store.SaveState(ctx, next); err != nil {
			return fmt.Errorf("save agent state: %w", err)
		}
	}
	t.state = next
	return nil
}
