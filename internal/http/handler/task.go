package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"darwin.app/engine/internal/fixer"
	"darwin.app/engine/internal/http/dto"
	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/repohost"
	"darwin.app/engine/internal/store"
)

type TaskHandler struct {
	tasks  store.TaskStore
	issues repohost.IssueService
	fixes  FixRequester
}

func NewTaskHandler(tasks store.TaskStore, issues repohost.IssueService, fixes FixRequester) *TaskHandler {
	return &TaskHandler{
		tasks:  tasks,
		issues: issues,
		fixes:  fixes,
	}
}

// List returns tasks newest first, optionally filtered by status and category.
func (h *TaskHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	filter := model.TaskFilter{
		Status:   model.TaskStatus(c.Query("status")),
		Category: model.Category(c.Query("category")),
		Limit:    limit,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	if filter.Category != "" && !filter.Category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
		return
	}

	tasks, err := h.tasks.List(ctx, filter)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list tasks", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tasks"})
		return
	}

	c.JSON(http.StatusOK, dto.TaskListResponse{Tasks: tasks, Count: len(tasks)})
}

func (h *TaskHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	task, err := h.tasks.Get(ctx, c.Param("id"))
	if err != nil {
		h.writeLoadError(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	ctx := c.Request.Context()
	taskID := c.Param("id")

	var req dto.UpdateTaskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := model.TaskStatus(req.Status)
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of open, in_progress, done"})
		return
	}

	if err := h.tasks.UpdateStatus(ctx, taskID, status); err != nil {
		h.writeLoadError(c, err)
		return
	}

	task, err := h.tasks.Get(ctx, taskID)
	if err != nil {
		h.writeLoadError(c, err)
		return
	}
	slog.InfoContext(ctx, "task status updated", "task_id", taskID, "status", status)
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) CreateIssue(c *gin.Context) {
	ctx := c.Request.Context()

	task, err := h.tasks.Get(ctx, c.Param("id"))
	if err != nil {
		h.writeLoadError(c, err)
		return
	}

	issue, err := h.issues.CreateForTask(ctx, task)
	if err != nil {
		switch {
		case errors.Is(err, repohost.ErrIssueExists):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, repohost.ErrNoRepository):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			slog.ErrorContext(ctx, "failed to create issue", "error", err, "task_id", task.ID)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to create issue"})
		}
		return
	}

	c.JSON(http.StatusCreated, dto.CreateIssueResponse{
		IssueURL:    issue.URL,
		IssueNumber: issue.Number,
	})
}

// Fix queues an initial fix. Nothing about the task changes until the fix
// worker picks the job up.
func (h *TaskHandler) Fix(c *gin.Context) {
	ctx := c.Request.Context()
	taskID := c.Param("id")

	if err := h.fixes.Request(ctx, taskID); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		case errors.Is(err, fixer.ErrFixInProgress), errors.Is(err, fixer.ErrAlreadyHasPR):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			slog.ErrorContext(ctx, "failed to queue fix", "error", err, "task_id", taskID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue fix"})
		}
		return
	}

	slog.InfoContext(ctx, "fix queued", "task_id", taskID)
	c.JSON(http.StatusAccepted, dto.FixQueuedResponse{TaskID: taskID, Status: "queued"})
}

func (h *TaskHandler) writeLoadError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	slog.ErrorContext(c.Request.Context(), "task store error", "error", err, "task_id", c.Param("id"))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
