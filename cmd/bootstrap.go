package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"

	"uploadqueue/internal/agent"
	"uploadqueue/internal/config"
	fileutil "uploadqueue/internal/file"
	"uploadqueue/internal/publish"
	"uploadqueue/internal/sqlitestore"
	"uploadqueue/internal/task"
)

const (
	lockFileName   = "uploadqueue.lock"
	sqliteFileName = "queue.db"
)

var errInstanceRunning = errors.New("another uploadqueue process owns this data directory")

// app is the wired queue and engine for one process that owns the data dir.
type app struct {
	queue  *task.Queue
	engine *agent.Engine

	lock      *flock.Flock
	closeData func() error
}

type stores struct {
	tasks task.Store
	state agent.StateStore
	close func() error
}

func openStores(cfg config.Config) (stores, error) {
	if err := fileutil.EnsureDir(cfg.DataDir); err != nil {
		return stores{}, fmt.Errorf("ensure data dir: %w", err)
	}
	switch cfg.Storage {
	case config.StorageSQLite:
		db, err := sqlitestore.Open(filepath.Join(cfg.DataDir, sqliteFileName))
		if err != nil {
			return stores{}, fmt.Errorf("open sqlite store: %w", err)
		}
		return stores{tasks: db, state: db, close: db.Close}, nil
	default:
		return stores{
			tasks: task.NewFileStore(cfg.DataDir),
			state: agent.NewFileStateStore(cfg.DataDir),
			close: func() error { return nil },
		}, nil
	}
}

func buildUploader(cfg config.Uploader) (agent.Uploader, error) { //nolint:ireturn
	if cfg.Kind == config.UploaderWebhook {
		uploader, err := publish.NewWebhookUploader(cfg.WebhookURL, cfg.Timeout)
		if err != nil {
			return nil, err //nolint:wrapcheck
		}
		return uploader, nil
	}
	return publish.SimulatedUploader{}, nil
}

// openApp takes the data dir lock, restores the queue and builds the engine.
// Only one process at a time may own a data directory, so the in-memory
// queue stays the single writer of its store.
func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	if err := fileutil.EnsureDir(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}
	lock := flock.New(filepath.Join(cfg.DataDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", errInstanceRunning, cfg.DataDir)
	}

	a, err := wire(ctx, cfg)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	a.lock = lock
	return a, nil
}

func wire(ctx context.Context, cfg config.Config) (*app, error) {
	st, err := openStores(cfg)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*app, error) {
		_ = st.close()
		return nil, err
	}

	queue := task.NewQueueWithOptions(task.Options{Store: st.tasks})
	if err := queue.LoadFromDisk(ctx); err != nil {
		return fail(err)
	}
	tracker, err := agent.NewStateTracker(ctx, st.state, nil)
	if err != nil {
		return fail(fmt.Errorf("load agent state: %w", err))
	}
	uploader, err := buildUploader(cfg.Uploader)
	if err != nil {
		return fail(err)
	}
	engine, err := agent.NewEngine(agent.Options{
		Queue:          queue,
		State:          tracker,
		Uploader:       uploader,
		Chapters:       publish.LocalChapters{StepSeconds: int(cfg.Agent.ChapterSpacing.Seconds())},
		Descriptions:   publish.HashtagDescriber{},
		PublishTimeout: cfg.Agent.PublishTimeout,
	})
	if err != nil {
		return fail(err)
	}

	log.Debug().
		Str("data_dir", cfg.DataDir).
		Str("storage", cfg.Storage).
		Str("uploader", cfg.Uploader.Kind).
		Int("tasks", len(queue.GetQueue())).
		Msg("queue restored")
	return &app{queue: queue, engine: engine, closeData: st.close}, nil
}

func (a *app) Close() {
	if a.closeData != nil {
		if err := a.closeData(); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}
	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil {
			log.Warn().Err(err).Msg("failed to release data dir lock")
		}
	}
}
