package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/service"
)

// SettingsHandler handles the persisted key/value settings.
type SettingsHandler struct {
	settingsService *service.SettingsService
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(settingsService *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

// Register registers the settings routes with the API.
func (h *SettingsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listSettings",
		Method:      "GET",
		Path:        "/api/v1/settings",
		Summary:     "List settings",
		Description: "Returns every stored setting",
		Tags:        []string{"Settings"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getSetting",
		Method:      "GET",
		Path:        "/api/v1/settings/{key}",
		Summary:     "Get setting",
		Description: "Returns the value of one setting",
		Tags:        []string{"Settings"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "setSetting",
		Method:      "PUT",
		Path:        "/api/v1/settings/{key}",
		Summary:     "Set setting",
		Description: "Stores the value of one setting. Directory settings must be absolute paths",
		Tags:        []string{"Settings"},
	}, h.Set)
}

// ListSettingsInput is the input for listing settings.
type ListSettingsInput struct{}

// ListSettingsOutput is the output for listing settings.
type ListSettingsOutput struct {
	Body struct {
		Settings []*models.Setting `json:"settings"`
	}
}

// List returns every stored setting.
func (h *SettingsHandler) List(ctx context.Context, input *ListSettingsInput) (*ListSettingsOutput, error) {
	settings, err := h.settingsService.GetAll(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list settings", err)
	}
	resp := &ListSettingsOutput{}
	resp.Body.Settings = settings
	if resp.Body.Settings == nil {
		resp.Body.Settings = []*models.Setting{}
	}
	return resp, nil
}

// GetSettingInput is the input for getting a setting.
type GetSettingInput struct {
	Key string `path:"key" doc:"Setting key" enum:"optimized_videos_dir,original_videos_dir"`
}

// SettingOutput carries one setting.
type SettingOutput struct {
	Body *models.Setting
}

// Get returns one setting.
func (h *SettingsHandler) Get(ctx context.Context, input *GetSettingInput) (*SettingOutput, error) {
	setting, err := h.settingsService.Get(ctx, input.Key)
	if errors.Is(err, service.ErrSettingNotFound) {
		return nil, huma.Error404NotFound(err.Error())
	}
	if err != nil {
		return nil, serviceError("failed to get setting", err)
	}
	return &SettingOutput{Body: setting}, nil
}

// SetSettingInput is the input for setting a value.
type SetSettingInput struct {
	Key  string `path:"key" doc:"Setting key" enum:"optimized_videos_dir,original_videos_dir"`
	Body struct {
		Value string `json:"value" doc:"New value" minLength:"1"`
	}
}

// Set stores one setting and returns it.
func (h *SettingsHandler) Set(ctx context.Context, input *SetSettingInput) (*SettingOutput, error) {
	if err := h.settingsService.Set(ctx, input.Key, input.Body.Value); err != nil {
		return nil, serviceError("failed to set setting", err)
	}
	setting, err := h.settingsService.Get(ctx, input.Key)
	if err != nil {
		return nil, serviceError("failed to get setting", err)
	}
	return &SettingOutput{Body: setting}, nil
}
