package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	fileutil "uploadqueue/internal/file"
)

// Store abstracts persistence for tasks. The queue keeps the authoritative
// in-memory copy and writes through on every mutation.
type Store interface {
	SaveTask(ctx context.Context, t *VideoTask) error
	DeleteTask(ctx context.Context, taskID string) error
	LoadTasks(ctx context.Context) ([]*VideoTask, error)
}

// fileStore implements Store with one JSON document per task under dataDir/tasks.
type fileStore struct {
	dataDir string
}

func NewFileStore(dataDir string) Store { //nolint:ireturn
	if dataDir == "" {
		dataDir = "data"
	}
	return &fileStore{dataDir: dataDir}
}

func (s *fileStore) tasksDir() string {
	return filepath.Join(s.dataDir, "tasks")
}

func (s *fileStore) taskPath(taskID string) string {
	return filepath.Join(s.tasksDir(), taskID+".json")
}

func (s *fileStore) SaveTask(ctx context.Context, t *VideoTask) error { //nolint:revive // context reserved for future use
	if t == nil || t.ID == "" {
		return errors.New("save task: missing id")
	}
	if err := fileutil.WriteJSONAtomic(s.taskPath(t.ID), t); err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

func (s *fileStore) DeleteTask(ctx context.Context, taskID string) error { //nolint:revive // context reserved for future use
	if err := os.Remove(s.taskPath(taskID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}
	return nil
}

func (s *fileStore) LoadTasks(ctx context.Context) ([]*VideoTask, error) { //nolint:revive // context reserved for future use
	entries, err := os.ReadDir(s.tasksDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	tasks := make([]*VideoTask, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.tasksDir(), e.Name())) //nolint:gosec // path is controlled by application
		if err != nil {
			continue
		}
		var t VideoTask
		if err := json.Unmarshal(b, &t); err != nil || t.ID == "" {
			continue
		}
		tasks = append(tasks, &t)
	}
	return tasks, nil
}
