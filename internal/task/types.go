package task

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusUploaded  Status = "uploaded"
	StatusFailed    Status = "failed"
)

type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
)

// VideoTask is one scheduled publication of a source asset.
type VideoTask struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Tags          []string   `json:"tags"`
	Visibility    Visibility `json:"visibility"`
	ScheduledTime time.Time  `json:"scheduledTime"`
	SourceURL     string     `json:"sourceUrl"`
	ThumbnailURL  string     `json:"thumbnailUrl,omitempty"`
	PlaylistIDs   []string   `json:"playlistIds,omitempty"`
	AutoChapters  bool       `json:"autoChapters"`
	AIDescription bool       `json:"aiDescription"`
	Status        Status     `json:"status"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share slices with the queue.
func (t *VideoTask) Clone() *VideoTask {
	if t == nil {
		return nil
	}
	c := *t
	c.Tags = append([]string(nil), t.Tags...)
	if t.PlaylistIDs != nil {
		c.PlaylistIDs = append([]string(nil), t.PlaylistIDs...)
	}
	return &c
}

// Due reports whether the task is pending and its schedule has passed.
func (t *VideoTask) Due(now time.Time) bool {
	return t.Status == StatusPending && !t.ScheduledTime.After(now)
}

// CreateInput carries the fields a caller supplies for a new task.
type CreateInput struct {
	Title         string `validate:"min=3"`
	Description   string `validate:"min=10"`
	Tags          []string
	Visibility    Visibility `validate:"oneof=public unlisted private"`
	ScheduledTime time.Time
	SourceURL     string `validate:"required,url"`
	ThumbnailURL  string `validate:"omitempty,url"`
	PlaylistIDs   []string
	AutoChapters  bool
	AIDescription bool
}

// Update is a partial edit of user-owned fields. Nil fields are left untouched.
// Scheduling goes through Queue.RescheduleTask; status and error are engine-owned.
type Update struct {
	Title         *string `validate:"omitnil,min=3"`
	Description   *string `validate:"omitnil,min=10"`
	Tags          *[]string
	Visibility    *Visibility `validate:"omitnil,oneof=public unlisted private"`
	SourceURL     *string `validate:"omitnil,url"`
	ThumbnailURL  *string `validate:"omitnil,url"`
	PlaylistIDs   *[]string
	AutoChapters  *bool
	AIDescription *bool
}

// IsEmpty reports whether the update carries no fields.
func (u Update) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Tags == nil && u.Visibility == nil &&
		u.SourceURL == nil && u.ThumbnailURL == nil && u.PlaylistIDs == nil &&
		u.AutoChapters == nil && u.AIDescription == nil
}

func (u Update) apply(t *VideoTask) {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Tags != nil {
		t.Tags = append([]string(nil), (*u.Tags)...)
	}
	if u.Visibility != nil {
		t.Visibility = *u.Visibility
	}
	if u.SourceURL != nil {
		t.SourceURL = *u.SourceURL
	}
	if u.ThumbnailURL != nil {
		t.ThumbnailURL = *u.ThumbnailURL
	}
	if u.PlaylistIDs != nil {
		t.PlaylistIDs = append([]string(nil), (*u.PlaylistIDs)...)
	}
	if u.AutoChapters != nil {
		t.AutoChapters = *u.AutoChapters
	}
	if u.AIDescription != nil {
		t.AIDescription = *u.AIDescription
	}
}

type Options struct {
	Store Store
	Now   func() time.Time
}
