package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"uploadqueue/internal/agent"
	"uploadqueue/internal/task"
)

type createTaskRequest struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	Visibility    string   `json:"visibility"`
	ScheduledTime string   `json:"scheduledTime"`
	SourceURL     string   `json:"sourceUrl"`
	ThumbnailURL  string   `json:"thumbnailUrl"`
	PlaylistIDs   []string `json:"playlistIds"`
	AutoChapters  bool     `json:"autoChapters"`
	AIDescription bool     `json:"aiDescription"`
}

type updateTaskRequest struct {
	Title         *string   `json:"title"`
	Description   *string   `json:"description"`
	Tags          *[]string `json:"tags"`
	Visibility    *string   `json:"visibility"`
	ScheduledTime *string   `json:"scheduledTime"`
	SourceURL     *string   `json:"sourceUrl"`
	ThumbnailURL  *string   `json:"thumbnailUrl"`
	PlaylistIDs   *[]string `json:"playlistIds"`
	AutoChapters  *bool     `json:"autoChapters"`
	AIDescription *bool     `json:"aiDescription"`
}

type taskResponse struct {
	Task *task.VideoTask `json:"task"`
}

type queueResponse struct {
	Queue []*task.VideoTask `json:"queue"`
}

type statusResponse struct {
	Queue  []*task.VideoTask   `json:"queue"`
	State  agent.State         `json:"state"`
	Counts map[task.Status]int `json:"counts"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type API struct {
	queue  *task.Queue
	engine *agent.Engine

	mu      sync.RWMutex
	baseCtx context.Context
}

func NewAPI(queue *task.Queue, engine *agent.Engine) *API {
	return &API{queue: queue, engine: engine, baseCtx: context.Background()}
}

// SetBaseContext sets the context agent runs started over HTTP inherit, so a
// run outlives the triggering request but stops on shutdown.
func (a *API) SetBaseContext(ctx context.Context) {
	a.mu.Lock()
	a.baseCtx = ctx
	a.mu.Unlock()
}

func (a *API) runContext() context.Context {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.baseCtx
}

// RegisterRoutes registers API routes on the provided gin engine
func (a *API) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", a.Health)
	api := router.Group("/api")
	{
		api.GET("/queue", a.ListTasks)
		api.POST("/queue", a.CreateTask)
		api.GET("/queue/:id", a.GetTask)
		api.PATCH("/queue/:id", a.UpdateTask)
		api.DELETE("/queue/:id", a.DeleteTask)
		api.POST("/agent/run", a.RunAgent)
		api.GET("/agent/status", a.Status)
	}
}

func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListTasks returns the whole queue in insertion order
func (a *API) ListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, queueResponse{Queue: a.queue.GetQueue()})
}

// CreateTask validates the payload and queues a new pending task
func (a *API) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn().Err(err).Msg("invalid create task request")
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
		return
	}
	in := task.CreateInput{
		Title:         req.Title,
		Description:   req.Description,
		Tags:          req.Tags,
		Visibility:    task.Visibility(strings.ToLower(strings.TrimSpace(req.Visibility))),
		SourceURL:     strings.TrimSpace(req.SourceURL),
		ThumbnailURL:  strings.TrimSpace(req.ThumbnailURL),
		PlaylistIDs:   req.PlaylistIDs,
		AutoChapters:  req.AutoChapters,
		AIDescription: req.AIDescription,
	}
	scheduled, err := task.ParseScheduledTime(req.ScheduledTime)
	if err != nil {
		a.writeError(c, "", err)
		return
	}
	in.ScheduledTime = scheduled

	createdTask, err := a.queue.AddTask(c.Request.Context(), in)
	if err != nil {
		a.writeError(c, "", err)
		return
	}
	log.Info().Str("task_id", createdTask.ID).Time("scheduled_time", createdTask.ScheduledTime).Msg("task created")
	c.JSON(http.StatusCreated, taskResponse{Task: createdTask})
}

// GetTask returns a single task
func (a *API) GetTask(c *gin.Context) {
	id := c.Param("id")
	if foundTask, ok := a.queue.GetTask(id); ok {
		c.JSON(http.StatusOK, taskResponse{Task: foundTask})
		return
	}
	log.Warn().Str("task_id", id).Msg("task not found on get")
	c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
}

// UpdateTask applies a partial edit. A scheduledTime in the body reschedules
// the task; the remaining fields, if any, are merged afterwards.
func (a *API) UpdateTask(c *gin.Context) {
	id := c.Param("id")
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn().Str("task_id", id).Err(err).Msg("invalid update task request")
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
		return
	}
	update := req.toUpdate()
	if req.ScheduledTime == nil || !update.IsEmpty() {
		if err := task.ValidateUpdate(update); err != nil {
			a.writeError(c, id, err)
			return
		}
	}

	ctx := c.Request.Context()
	var (
		updated *task.VideoTask
		err     error
	)
	if req.ScheduledTime != nil {
		when, parseErr := task.ParseScheduledTime(*req.ScheduledTime)
		if parseErr != nil {
			a.writeError(c, id, parseErr)
			return
		}
		if updated, err = a.queue.RescheduleTask(ctx, id, when); err != nil {
			a.writeError(c, id, err)
			return
		}
		log.Info().Str("task_id", id).Time("scheduled_time", updated.ScheduledTime).Msg("task rescheduled")
	}
	if !update.IsEmpty() {
		if updated, err = a.queue.UpdateTask(ctx, id, update); err != nil {
			a.writeError(c, id, err)
			return
		}
		log.Info().Str("task_id", id).Msg("task updated")
	}
	c.JSON(http.StatusOK, taskResponse{Task: updated})
}

// DeleteTask removes a task; repeated deletes report not found
func (a *API) DeleteTask(c *gin.Context) {
	id := c.Param("id")
	if err := a.queue.RemoveTask(c.Request.Context(), id); err != nil {
		a.writeError(c, id, err)
		return
	}
	log.Info().Str("task_id", id).Msg("task removed")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RunAgent performs one engine run and returns its summary
func (a *API) RunAgent(c *gin.Context) {
	summary, err := a.engine.Run(a.runContext())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, summary)
	case errors.Is(err, agent.ErrRunInProgress):
		log.Warn().Msg("rejecting agent run: another run is in progress")
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "server shutting down"})
	default:
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

// Status returns the queue together with the agent state
func (a *API) Status(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		Queue:  a.queue.GetQueue(),
		State:  a.engine.State(),
		Counts: a.queue.Counts(),
	})
}

func (a *API) writeError(c *gin.Context, taskID string, err error) {
	var verr *task.ValidationError
	switch {
	case errors.As(err, &verr):
		log.Warn().Str("task_id", taskID).Err(err).Msg("request rejected by validation")
		c.JSON(http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, task.ErrTaskNotFound):
		log.Warn().Str("task_id", taskID).Msg("task not found")
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		log.Error().Str("task_id", taskID).Err(err).Msg("request failed")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (r updateTaskRequest) toUpdate() task.Update {
	u := task.Update{
		Title:         r.Title,
		Description:   r.Description,
		Tags:          r.Tags,
		SourceURL:     r.SourceURL,
		ThumbnailURL:  r.ThumbnailURL,
		PlaylistIDs:   r.PlaylistIDs,
		AutoChapters:  r.AutoChapters,
		AIDescription: r.AIDescription,
	}
	if r.Visibility != nil {
		v := task.Visibility(strings.ToLower(strings.TrimSpace(*r.Visibility)))
		u.Visibility = &v
	}
	return u
}
