package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/dashingest/internal/service/logs"
)

// LogsHandler exposes the in-memory log buffer.
type LogsHandler struct {
	service *logs.Service
}

// NewLogsHandler creates a new logs handler.
func NewLogsHandler(service *logs.Service) *LogsHandler {
	return &LogsHandler{service: service}
}

// GetRecentLogsInput is the input for getting recent logs.
type GetRecentLogsInput struct {
	Limit int    `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Maximum number of entries"`
	JobID string `query:"job_id" doc:"Only entries logged for this job"`
}

// GetRecentLogsOutput is the output for getting recent logs.
type GetRecentLogsOutput struct {
	Body struct {
		Logs []logs.Entry `json:"logs"`
	}
}

// GetLogStatsInput is the input for getting log statistics.
type GetLogStatsInput struct{}

// GetLogStatsOutput is the output for getting log statistics.
type GetLogStatsOutput struct {
	Body logs.Stats
}

// Register registers the logs routes with the API.
func (h *LogsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getRecentLogs",
		Method:      "GET",
		Path:        "/api/v1/logs",
		Summary:     "Get recent logs",
		Description: "Returns the most recent log entries, oldest first",
		Tags:        []string{"Logs"},
	}, h.GetRecentLogs)

	huma.Register(api, huma.Operation{
		OperationID: "getLogStats",
		Method:      "GET",
		Path:        "/api/v1/logs/stats",
		Summary:     "Get log statistics",
		Description: "Returns counts by level and component and the latest errors",
		Tags:        []string{"Logs"},
	}, h.GetStats)
}

// GetRecentLogs returns the most recent log entries.
func (h *LogsHandler) GetRecentLogs(ctx context.Context, input *GetRecentLogsInput) (*GetRecentLogsOutput, error) {
	resp := &GetRecentLogsOutput{}
	resp.Body.Logs = h.service.Recent(input.Limit, input.JobID)
	if resp.Body.Logs == nil {
		resp.Body.Logs = []logs.Entry{}
	}
	return resp, nil
}

// GetStats returns current log statistics.
func (h *LogsHandler) GetStats(ctx context.Context, input *GetLogStatsInput) (*GetLogStatsOutput, error) {
	return &GetLogStatsOutput{Body: h.service.Stats()}, nil
}
