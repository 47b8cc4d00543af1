package handlers_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/jmylchreest/dashingest/internal/http/handlers"
	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/service/progress"
	"github.com/jmylchreest/dashingest/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProgressRouter(t *testing.T) (*chi.Mux, *handlers.ProgressHandler, *progress.Service) {
	t.Helper()

	svc := progress.NewService(testutil.QuietLogger())
	handler := handlers.NewProgressHandler(svc)
	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("Test API", "1.0.0"))
	handler.Register(api)
	handler.RegisterSSE(router)
	return router, handler, svc
}

// streamEvents serves the SSE endpoint until ctx ends while publish runs,
// then returns the recorded body.
func streamEvents(t *testing.T, router http.Handler, ctx context.Context, query string, publish func()) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/progress/events"+query, nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	var wg sync.WaitGroup
	wg.Go(func() {
		router.ServeHTTP(rec, req)
	})

	// Give the handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	publish()
	wg.Wait()

	return rec.Body.String()
}

func parseSSEEvents(body string) []map[string]string {
	var events []map[string]string
	var current map[string]string

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if current != nil {
				events = append(events, current)
				current = nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if current == nil {
			current = map[string]string{}
		}
		current[key] = strings.TrimSpace(value)
	}
	return events
}

func TestProgressHandler_List(t *testing.T) {
	router, _, svc := newProgressRouter(t)
	jobID := models.NewULID()
	running := models.NewULID()

	svc.Publish(progress.TaskProgress{JobID: jobID, TaskID: running, Status: models.TaskStatusIncomplete, Progress: 40})
	svc.Publish(progress.TaskProgress{JobID: models.NewULID(), TaskID: models.NewULID(), Status: models.TaskStatusIncomplete, Progress: 10})
	svc.Publish(progress.TaskProgress{JobID: jobID, TaskID: models.NewULID(), Status: models.TaskStatusCompleted, Progress: 100})

	type listResponse struct {
		Tasks []progress.TaskProgress `json:"tasks"`
	}

	t.Run("all active tasks", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/progress", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp listResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Len(t, resp.Tasks, 2)
	})

	t.Run("filtered by job", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/progress?job_id="+jobID.String(), nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp listResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Len(t, resp.Tasks, 1)
		assert.Equal(t, running, resp.Tasks[0].TaskID)
		assert.Equal(t, 40, resp.Tasks[0].Progress)
	})

	t.Run("bad filter", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/progress?task_id=nope", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestProgressHandler_SSEEvents(t *testing.T) {
	t.Run("streams task events", func(t *testing.T) {
		router, _, svc := newProgressRouter(t)
		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()

		jobID := models.NewULID()
		taskID := models.NewULID()
		body := streamEvents(t, router, ctx, "", func() {
			svc.Publish(progress.TaskProgress{JobID: jobID, TaskID: taskID, Status: models.TaskStatusIncomplete, Progress: 25, Message: "encoding 1080p (1/3)"})
			svc.Publish(progress.TaskProgress{JobID: jobID, TaskID: taskID, Status: models.TaskStatusCompleted, Progress: 100})
		})

		assert.True(t, strings.HasPrefix(body, ":connected"))
		events := parseSSEEvents(body)
		require.Len(t, events, 2)
		assert.NotEqual(t, events[0]["event"], events[1]["event"])

		var first progress.ProgressEvent
		require.NoError(t, json.Unmarshal([]byte(events[0]["data"]), &first))
		assert.Equal(t, taskID, first.Task.TaskID)
		assert.Equal(t, 25, first.Task.Progress)
		assert.Equal(t, "encoding 1080p (1/3)", first.Task.Message)
	})

	t.Run("filters by job", func(t *testing.T) {
		router, _, svc := newProgressRouter(t)
		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()

		watched := models.NewULID()
		other := models.NewULID()
		body := streamEvents(t, router, ctx, "?job_id="+watched.String(), func() {
			svc.Publish(progress.TaskProgress{JobID: other, TaskID: models.NewULID(), Status: models.TaskStatusIncomplete, Progress: 5})
			svc.Publish(progress.TaskProgress{JobID: watched, TaskID: models.NewULID(), Status: models.TaskStatusIncomplete, Progress: 7})
		})

		assert.Contains(t, body, watched.String())
		assert.NotContains(t, body, other.String())
	})

	t.Run("rejects a malformed filter", func(t *testing.T) {
		router, _, _ := newProgressRouter(t)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/progress/events?job_id=bad", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unsubscribes when the client leaves", func(t *testing.T) {
		router, _, svc := newProgressRouter(t)
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		streamEvents(t, router, ctx, "", func() {
			assert.Equal(t, 1, svc.SubscriberCount())
		})
		assert.Equal(t, 0, svc.SubscriberCount())
	})
}

func TestProgressHandler_SSEHeartbeat(t *testing.T) {
	router, handler, _ := newProgressRouter(t)
	handler.SetHeartbeatInterval(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	body := streamEvents(t, router, ctx, "", func() {})
	assert.Contains(t, body, ":heartbeat")
}
