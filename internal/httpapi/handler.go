package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/corrigan-tasks/engine/internal/follower"
	"github.com/corrigan-tasks/engine/internal/frame"
	"github.com/corrigan-tasks/engine/internal/platform/logger"
	"github.com/corrigan-tasks/engine/internal/store"
)

type handler struct {
	store    store.TaskStore
	follower *follower.Follower
	log      *logger.Logger
}

type createTaskRequest struct {
	Name       string         `json:"name" binding:"required"`
	Parameters map[string]any `json:"parameters"`
}

type createTaskResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (h *handler) createTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := h.store.Create(c.Request.Context(), req.Name, req.Parameters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, createTaskResponse{ID: t.ID(), Name: t.Name()})
}

// followFrames streams a task's frames as SSE, in the same chunked-write style as the
// teacher's sse.Hub.ServeHTTP: text/event-stream headers, a Flusher, and a select loop
// that ends when the context is done or the Follower's channel closes.
func (h *handler) followFrames(c *gin.Context) {
	taskID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	var resumeFromID int64 = follower.DefaultResumeFromID
	if raw := c.Query("resume_from_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resume_from_id"})
			return
		}
		resumeFromID = v
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	ctx := c.Request.Context()
	events := h.follower.Follow(ctx, taskID, follower.WithResumeFromID(resumeFromID))

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		if ev.Err != nil {
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", jsonString(gin.H{"error": ev.Err.Error()}))
			flusher.Flush()
			return
		}
		payload, err := json.Marshal(toFrameEnvelope(ev.Frame))
		if err != nil {
			h.log.Warn("failed to marshal frame for SSE", "task_id", taskID, "error", err)
			continue
		}
		fmt.Fprintf(w, "id: %d\nevent: frame\ndata: %s\n\n", ev.Frame.ID, payload)
		flusher.Flush()
	}
}

type frameEnvelope struct {
	ID     int64  `json:"id"`
	TaskID int64  `json:"task_id"`
	Type   string `json:"type"`
	Data   any    `json:"data"`
	Time   string `json:"time"`
}

func toFrameEnvelope(f frame.Frame) frameEnvelope {
	return frameEnvelope{
		ID:     f.ID,
		TaskID: f.TaskID,
		Type:   string(f.Type),
		Data:   f.Data,
		Time:   f.Time.Format(timeFormat),
	}
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

func jsonString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
