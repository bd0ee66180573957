package task

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

const interruptedMessage = "interrupted during upload"

// LoadFromDisk reads persisted tasks into memory in creation order.
// A task still marked uploading was cut off by a previous shutdown and is marked failed.
func (q *Queue) LoadFromDisk(ctx context.Context) error {
	if q.store == nil {
		return nil
	}
	loadedTasks, err := q.store.LoadTasks(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	SortByCreation(loadedTasks)

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, taskEntity := range loadedTasks {
		if _, exists := q.tasks[taskEntity.ID]; exists {
			continue
		}
		if taskEntity.Status == StatusUploading {
			taskEntity.Status = StatusFailed
			taskEntity.Error = interruptedMessage
			taskEntity.UpdatedAt = q.now()
			if err := q.persist(ctx, taskEntity); err != nil {
				return err
			}
			log.Warn().Str("task_id", taskEntity.ID).Msg("task interrupted during upload marked failed")
		}
		q.tasks[taskEntity.ID] = taskEntity
		q.order = append(q.order, taskEntity.ID)
	}
	return nil
}

// SortByCreation orders tasks by createdAt, breaking ties by id.
func SortByCreation(tasks []*VideoTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
