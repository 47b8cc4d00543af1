package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/service/progress"
)

// ProgressHandler handles live task progress and its SSE stream.
type ProgressHandler struct {
	service           *progress.Service
	heartbeatInterval time.Duration
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(service *progress.Service) *ProgressHandler {
	return &ProgressHandler{
		service:           service,
		heartbeatInterval: 30 * time.Second,
	}
}

// SetHeartbeatInterval sets the SSE heartbeat interval (for testing).
func (h *ProgressHandler) SetHeartbeatInterval(interval time.Duration) {
	h.heartbeatInterval = interval
}

// ListProgressInput is the input for listing active task progress.
type ListProgressInput struct {
	JobID  string `query:"job_id" doc:"Filter by job ID"`
	TaskID string `query:"task_id" doc:"Filter by task ID"`
}

// ListProgressOutput is the output for listing active task progress.
type ListProgressOutput struct {
	Body struct {
		Tasks []progress.TaskProgress `json:"tasks"`
	}
}

// Register registers the progress routes with the API.
func (h *ProgressHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listProgress",
		Method:      "GET",
		Path:        "/api/v1/progress",
		Summary:     "List task progress",
		Description: "Returns the latest progress of every running task",
		Tags:        []string{"Progress"},
	}, h.List)
}

// RegisterSSE registers the SSE endpoint on a chi router.
// This is separate from Register because Huma doesn't support SSE streaming natively.
func (h *ProgressHandler) RegisterSSE(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/api/v1/progress/events", h.handleSSEEvents)
}

// List returns the active task progress.
func (h *ProgressHandler) List(ctx context.Context, input *ListProgressInput) (*ListProgressOutput, error) {
	filter, err := parseProgressFilter(input.JobID, input.TaskID)
	if err != nil {
		return nil, err
	}

	resp := &ListProgressOutput{}
	resp.Body.Tasks = h.service.Active(filter)
	if resp.Body.Tasks == nil {
		resp.Body.Tasks = []progress.TaskProgress{}
	}
	return resp, nil
}

func parseProgressFilter(jobID, taskID string) (*progress.Filter, error) {
	filter := &progress.Filter{}
	if jobID != "" {
		id, err := models.ParseULID(jobID)
		if err != nil {
			return nil, huma.Error400BadRequest("invalid job_id format", err)
		}
		filter.JobID = &id
	}
	if taskID != "" {
		id, err := models.ParseULID(taskID)
		if err != nil {
			return nil, huma.Error400BadRequest("invalid task_id format", err)
		}
		filter.TaskID = &id
	}
	return filter, nil
}

// handleSSEEvents is the raw HTTP handler for SSE streaming.
func (h *ProgressHandler) handleSSEEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter, err := parseProgressFilter(query.Get("job_id"), query.Get("task_id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := h.service.Subscribe(filter)
	defer h.service.Unsubscribe(sub.ID)

	rc := http.NewResponseController(w)

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()

	// Initial comment so browsers fire onopen.
	fmt.Fprintf(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		slog.Error("failed to flush initial SSE connection", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix())
			if err := rc.Flush(); err != nil {
				slog.Debug("heartbeat flush failed, client likely disconnected", "error", err)
				return
			}
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("failed to write SSE event",
					"event_type", event.EventType,
					"task_id", event.Task.TaskID.String(),
					"error", err,
				)
				return
			}
			if err := rc.Flush(); err != nil {
				slog.Debug("event flush failed, client likely disconnected",
					"event_type", event.EventType,
					"error", err,
				)
				return
			}
		}
	}
}

// writeSSEEvent writes a progress event as a single SSE message.
func writeSSEEvent(w http.ResponseWriter, event *progress.ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	message := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.EventType, data))

	n, err := w.Write(message)
	if err != nil {
		return err
	}
	if n < len(message) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(message))
	}
	return nil
}
