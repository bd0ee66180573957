package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"uploadqueue/internal/task"
)

// TaskQueue is the part of the task queue the engine drives.
type TaskQueue interface {
	DueTasks(now time.Time) []*task.VideoTask
	Transition(ctx context.Context, taskID string, to task.Status, errMsg string) (*task.VideoTask, error)
}

// Uploader publishes one task to the video platform.
type Uploader interface {
	Upload(ctx context.Context, t *task.VideoTask) error
}

// ChapterGenerator produces a chapter block for tasks with autoChapters set.
type ChapterGenerator interface {
	Chapters(ctx context.Context, t *task.VideoTask) (string, error)
}

// DescriptionWriter rewrites the description for tasks with aiDescription set.
type DescriptionWriter interface {
	Describe(ctx context.Context, t *task.VideoTask) (string, error)
}

type Options struct {
	Queue    TaskQueue
	State    *StateTracker
	Uploader Uploader
	// Optional enrichment; a flagged task is published unenriched when nil.
	Chapters     ChapterGenerator
	Descriptions DescriptionWriter
	// PublishTimeout bounds each enrichment+upload attempt. Zero disables it.
	PublishTimeout time.Duration
	Now            func() time.Time
}

// TaskResult is the outcome for one task within a run.
type TaskResult struct {
	TaskID string      `json:"taskId"`
	Title  string      `json:"title"`
	Status task.Status `json:"status"`
	Error  string      `json:"error,omitempty"`
}

// Summary describes one run.
type Summary struct {
	Processed  int          `json:"processed"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	Results    []TaskResult `json:"results"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
}

// Engine promotes due tasks and publishes them, one run at a time.
type Engine struct {
	queue          TaskQueue
	state          *StateTracker
	uploader       Uploader
	chapters       ChapterGenerator
	descriptions   DescriptionWriter
	publishTimeout time.Duration
	now            func() time.Time

	runMu sync.Mutex
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Queue == nil || opts.State == nil || opts.Uploader == nil {
		return nil, errors.New("engine requires queue, state tracker, and uploader")
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		queue:          opts.Queue,
		state:          opts.State,
		uploader:       opts.Uploader,
		chapters:       opts.Chapters,
		descriptions:   opts.Descriptions,
		publishTimeout: opts.PublishTimeout,
		now:            now,
	}, nil
}

// State returns the agent state tracked by this engine.
func (e *Engine) State() State {
	return e.state.State()
}

// Run processes every task that is due now. Individual task failures are
// recorded on the task and in the summary; only failures that stop the run
// are returned, wrapped in ErrSystem, after being recorded on the state.
// A run with nothing due leaves the state untouched.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	if !e.runMu.TryLock() {
		return Summary{}, ErrRunInProgress
	}
	defer e.runMu.Unlock()

	summary := Summary{StartedAt: e.now(), Results: make([]TaskResult, 0)}
	due := e.queue.DueTasks(summary.StartedAt)
	if len(due) == 0 {
		summary.FinishedAt = e.now()
		log.Debug().Msg("agent run found no due tasks")
		return summary, nil
	}
	log.Info().Int("due", len(due)).Msg("agent run started")

	var (
		lastError   string
		interrupted error
	)
	for _, dueTask := range due {
		if err := ctx.Err(); err != nil {
			interrupted = err
			break
		}
		result, err := e.execute(ctx, dueTask)
		if err != nil {
			summary.FinishedAt = e.now()
			return summary, e.fail(ctx, summary, err)
		}
		summary.Results = append(summary.Results, result)
		switch result.Status {
		case task.StatusUploaded:
			summary.Processed++
			summary.Succeeded++
		case task.StatusFailed:
			summary.Processed++
			summary.Failed++
			lastError = result.Error
		default:
			summary.Skipped++
		}
	}

	summary.FinishedAt = e.now()
	if summary.Processed > 0 {
		outcome := runOutcome{
			uploads:   summary.Succeeded,
			failures:  summary.Failed,
			lastError: lastError,
			finished:  summary.FinishedAt,
		}
		if err := e.state.commit(context.WithoutCancel(ctx), outcome); err != nil {
			return summary, e.fail(ctx, summary, err)
		}
	}

	log.Info().
		Int("processed", summary.Processed).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("duration", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("agent run finished")

	if interrupted != nil {
		return summary, fmt.Errorf("agent run interrupted: %w", interrupted)
	}
	return summary, nil
}

// execute drives one task through uploading to its terminal status.
// The returned error is non-nil only for failures that must stop the run.
func (e *Engine) execute(ctx context.Context, dueTask *task.VideoTask) (TaskResult, error) {
	result := TaskResult{TaskID: dueTask.ID, Title: dueTask.Title}

	inFlight, err := e.queue.Transition(ctx, dueTask.ID, task.StatusUploading, "")
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) || errors.Is(err, task.ErrInvalidTransition) {
			// deleted or already picked up since DueTasks was read
			log.Warn().Str("task_id", dueTask.ID).Err(err).Msg("skipping task changed during run")
			result.Status = dueTask.Status
			return result, nil
		}
		return result, fmt.Errorf("mark task %s uploading: %w", dueTask.ID, err)
	}

	final, message := task.StatusUploaded, ""
	if publishErr := e.publish(ctx, inFlight); publishErr != nil {
		final, message = task.StatusFailed, publishErr.Error()
		log.Warn().Str("task_id", inFlight.ID).Err(publishErr).Msg("task upload failed")
	} else {
		log.Info().Str("task_id", inFlight.ID).Str("title", inFlight.Title).Msg("task uploaded")
	}

	result.Status = final
	result.Error = message
	// the terminal status is written even when the run context was cancelled
	if _, err := e.queue.Transition(context.WithoutCancel(ctx), inFlight.ID, final, message); err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			log.Warn().Str("task_id", inFlight.ID).Msg("task removed while uploading")
			return result, nil
		}
		return result, fmt.Errorf("mark task %s %s: %w", inFlight.ID, final, err)
	}
	return result, nil
}

// publish enriches a copy of the task when requested, then uploads it.
func (e *Engine) publish(ctx context.Context, t *task.VideoTask) error {
	if e.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.publishTimeout)
		defer cancel()
	}

	outgoing := t.Clone()
	if outgoing.AIDescription && e.descriptions != nil {
		description, err := e.descriptions.Describe(ctx, outgoing)
		if err != nil {
			return fmt.Errorf("write description: %w", err)
		}
		outgoing.Description = description
	}
	if outgoing.AutoChapters && e.chapters != nil {
		chapters, err := e.chapters.Chapters(ctx, outgoing)
		if err != nil {
			return fmt.Errorf("generate chapters: %w", err)
		}
		if chapters != "" {
			outgoing.Description += "\n\n" + chapters
		}
	}
	return e.uploader.Upload(ctx, outgoing) //nolint:wrapcheck
}

// fail records a run-level failure, keeping the counts of tasks the run
// already finished, and returns it wrapped in ErrSystem.
func (e *Engine) fail(ctx context.Context, partial Summary, cause error) error {
	log.Error().Err(cause).Msg("agent run failed")
	finished := partial.FinishedAt
	if finished.IsZero() {
		finished = e.now()
	}
	outcome := runOutcome{uploads: partial.Succeeded, failures: partial.Failed, finished: finished}
	if err := e.state.recordFailure(context.WithoutCancel(ctx), outcome, cause.Error()); err != nil {
		log.Error().Err(err).Msg("record agent error failed")
	}
	return fmt.Errorf("%w: %w", ErrSystem, cause)
}

// Loop runs the engine every interval until ctx is cancelled. Ticks that
// find a run in progress are skipped.
func (e *Engine) Loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Info().Dur("interval", interval).Msg("agent autopilot started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("agent autopilot stopped")
			return
		case <-ticker.C:
			if _, err := e.Run(ctx); err != nil {
				switch {
				case errors.Is(err, ErrRunInProgress):
					log.Debug().Msg("autopilot tick skipped: run in progress")
				case errors.Is(err, context.Canceled):
				default:
					log.Error().Err(err).Msg("autopilot run failed")
				}
			}
		}
	}
}
