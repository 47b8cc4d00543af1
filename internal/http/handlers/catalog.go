package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/service"
)

// CatalogHandler exposes the catalog of packaged videos.
type CatalogHandler struct {
	catalogService *service.CatalogService
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(catalogService *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

// Register registers the catalog routes with the API.
func (h *CatalogHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listCatalogFolders",
		Method:      "GET",
		Path:        "/api/v1/catalog/folders",
		Summary:     "List catalog folders",
		Description: "Returns every observation folder that holds packaged videos",
		Tags:        []string{"Catalog"},
	}, h.ListFolders)

	huma.Register(api, huma.Operation{
		OperationID: "listCatalogVideos",
		Method:      "GET",
		Path:        "/api/v1/catalog/folders/{id}/videos",
		Summary:     "List catalog videos",
		Description: "Returns the visible videos of a catalog folder",
		Tags:        []string{"Catalog"},
	}, h.ListVideos)

	huma.Register(api, huma.Operation{
		OperationID: "getCatalogFolderPaths",
		Method:      "GET",
		Path:        "/api/v1/catalog/folders/{id}/paths",
		Summary:     "Get catalog folder paths",
		Description: "Returns the optimized and original directories of a catalog folder",
		Tags:        []string{"Catalog"},
	}, h.GetPaths)
}

// ListFoldersInput is the input for listing catalog folders.
type ListFoldersInput struct{}

// ListFoldersOutput is the output for listing catalog folders.
type ListFoldersOutput struct {
	Body struct {
		Folders []*models.CatalogFolder `json:"folders"`
	}
}

// ListFolders returns every catalog folder.
func (h *CatalogHandler) ListFolders(ctx context.Context, input *ListFoldersInput) (*ListFoldersOutput, error) {
	folders, err := h.catalogService.ListFolders(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list catalog folders", err)
	}
	resp := &ListFoldersOutput{}
	resp.Body.Folders = folders
	if resp.Body.Folders == nil {
		resp.Body.Folders = []*models.CatalogFolder{}
	}
	return resp, nil
}

// FolderInput identifies a catalog folder.
type FolderInput struct {
	ID string `path:"id" doc:"Catalog folder ID (ULID)"`
}

// ListVideosOutput is the output for listing catalog videos.
type ListVideosOutput struct {
	Body struct {
		Videos []*models.CatalogVideo `json:"videos"`
	}
}

// ListVideos returns the visible videos of a folder.
func (h *CatalogHandler) ListVideos(ctx context.Context, input *FolderInput) (*ListVideosOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	videos, err := h.catalogService.ListVideos(ctx, id)
	if err != nil {
		return nil, serviceError("failed to list catalog videos", err)
	}
	resp := &ListVideosOutput{}
	resp.Body.Videos = videos
	if resp.Body.Videos == nil {
		resp.Body.Videos = []*models.CatalogVideo{}
	}
	return resp, nil
}

// FolderPathsOutput is the output for getting catalog folder paths.
type FolderPathsOutput struct {
	Body *service.FolderPaths
}

// GetPaths returns the directories of a folder.
func (h *CatalogHandler) GetPaths(ctx context.Context, input *FolderInput) (*FolderPathsOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	paths, err := h.catalogService.FolderPaths(ctx, id)
	if err != nil {
		return nil, serviceError("failed to resolve catalog folder paths", err)
	}
	return &FolderPathsOutput{Body: paths}, nil
}
