package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"uploadqueue/internal/task"
)

const upsertTaskSQL = `
INSERT INTO tasks (
    id, title, description, tags, visibility, scheduled_time, source_url, thumbnail_url,
    playlist_ids, auto_chapters, ai_description, status, error, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    title = excluded.title,
    description = excluded.description,
    tags = excluded.tags,
    visibility = excluded.visibility,
    scheduled_time = excluded.scheduled_time,
    source_url = excluded.source_url,
    thumbnail_url = excluded.thumbnail_url,
    playlist_ids = excluded.playlist_ids,
    auto_chapters = excluded.auto_chapters,
    ai_description = excluded.ai_description,
    status = excluded.status,
    error = excluded.error,
    updated_at = excluded.updated_at`

const selectTasksSQL = `
SELECT id, title, description, tags, visibility, scheduled_time, source_url, thumbnail_url,
       playlist_ids, auto_chapters, ai_description, status, error, created_at, updated_at
FROM tasks ORDER BY seq`

// SaveTask inserts or updates a task row. The insertion sequence is kept on update.
func (s *Store) SaveTask(ctx context.Context, t *task.VideoTask) error {
	tags, err := json.Marshal(nonNil(t.Tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	var playlists sql.NullString
	if t.PlaylistIDs != nil {
		b, err := json.Marshal(t.PlaylistIDs)
		if err != nil {
			return fmt.Errorf("encode playlist ids: %w", err)
		}
		playlists = sql.NullString{String: string(b), Valid: true}
	}
	err = s.exec(ctx, upsertTaskSQL,
		t.ID, t.Title, t.Description, string(tags), string(t.Visibility),
		formatTime(t.ScheduledTime), t.SourceURL, t.ThumbnailURL, playlists,
		boolToInt(t.AutoChapters), boolToInt(t.AIDescription),
		string(t.Status), t.Error, formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

// DeleteTask removes the task row; a missing row is not an error.
func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	if err := s.exec(ctx, "DELETE FROM tasks WHERE id = ?", taskID); err != nil {
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}
	return nil
}

// LoadTasks returns all tasks in insertion order.
func (s *Store) LoadTasks(ctx context.Context) ([]*task.VideoTask, error) {
	rows, err := s.db.QueryContext(ctx, selectTasksSQL)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*task.VideoTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(rows *sql.Rows) (*task.VideoTask, error) {
	var (
		t                           task.VideoTask
		tags, visibility, status    string
		scheduled, created, updated string
		playlists                   sql.NullString
		autoChapters, aiDescription int
	)
	if err := rows.Scan(
		&t.ID, &t.Title, &t.Description, &tags, &visibility, &scheduled, &t.SourceURL, &t.ThumbnailURL,
		&playlists, &autoChapters, &aiDescription, &status, &t.Error, &created, &updated,
	); err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("decode tags for %s: %w", t.ID, err)
	}
	if playlists.Valid {
		if err := json.Unmarshal([]byte(playlists.String), &t.PlaylistIDs); err != nil {
			return nil, fmt.Errorf("decode playlist ids for %s: %w", t.ID, err)
		}
	}
	var err error
	if t.ScheduledTime, err = parseTime(scheduled); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	t.Visibility = task.Visibility(visibility)
	t.Status = task.Status(status)
	t.AutoChapters = autoChapters != 0
	t.AIDescription = aiDescription != 0
	return &t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", raw, err)
	}
	return t, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
