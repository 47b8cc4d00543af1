package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/service"
)

// IngestHandler handles source folder inspection.
type IngestHandler struct {
	ingestService *service.IngestService
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(ingestService *service.IngestService) *IngestHandler {
	return &IngestHandler{ingestService: ingestService}
}

// Register registers the ingest routes with the API.
func (h *IngestHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "countMedia",
		Method:      "POST",
		Path:        "/api/v1/ingest/count",
		Summary:     "Count media",
		Description: "Counts the images and videos below a directory",
		Tags:        []string{"Ingest"},
	}, h.Count)

	huma.Register(api, huma.Operation{
		OperationID:   "parseMetadata",
		Method:        "POST",
		Path:          "/api/v1/ingest/parse",
		Summary:       "Parse video metadata",
		Description:   "Creates a metadata job that probes and validates every video below a directory",
		Tags:          []string{"Ingest"},
		DefaultStatus: 202,
	}, h.Parse)

	huma.Register(api, huma.Operation{
		OperationID: "getParsedMetadata",
		Method:      "GET",
		Path:        "/api/v1/ingest/parse/{id}",
		Summary:     "Get parsed metadata",
		Description: "Returns a metadata job and the videos it found",
		Tags:        []string{"Ingest"},
	}, h.GetParsed)
}

// DirectoryInput names a source directory.
type DirectoryInput struct {
	Body struct {
		Path string `json:"path" doc:"Absolute directory path" minLength:"1"`
	}
}

// CountMediaOutput is the output for counting media.
type CountMediaOutput struct {
	Body *service.MediaCount
}

// Count counts the media files of a directory.
func (h *IngestHandler) Count(ctx context.Context, input *DirectoryInput) (*CountMediaOutput, error) {
	count, err := h.ingestService.CountMedia(input.Body.Path)
	if err != nil {
		return nil, serviceError("failed to count media", err)
	}
	return &CountMediaOutput{Body: count}, nil
}

// ParseOutput is the output for submitting a metadata job.
type ParseOutput struct {
	Body struct {
		JobID models.ULID `json:"job_id"`
	}
}

// Parse submits a metadata job.
func (h *IngestHandler) Parse(ctx context.Context, input *DirectoryInput) (*ParseOutput, error) {
	job, err := h.ingestService.SubmitParse(ctx, input.Body.Path)
	if err != nil {
		return nil, serviceError("failed to submit metadata job", err)
	}
	resp := &ParseOutput{}
	resp.Body.JobID = job.ID
	return resp, nil
}

// GetParsedInput is the input for getting parsed metadata.
type GetParsedInput struct {
	ID string `path:"id" doc:"Metadata job ID (ULID)"`
}

// GetParsedOutput is the output for getting parsed metadata.
type GetParsedOutput struct {
	Body struct {
		Job    JobResponse            `json:"job"`
		Videos []models.VideoMetadata `json:"videos"`
	}
}

// GetParsed returns the result of a metadata job.
func (h *IngestHandler) GetParsed(ctx context.Context, input *GetParsedInput) (*GetParsedOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}

	parsed, err := h.ingestService.GetParsed(ctx, id)
	if err != nil {
		return nil, serviceError("failed to get parsed metadata", err)
	}

	resp := &GetParsedOutput{}
	resp.Body.Job = JobFromModel(parsed.Job)
	resp.Body.Videos = parsed.Videos
	return resp, nil
}
