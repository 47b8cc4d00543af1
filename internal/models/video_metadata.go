package models

// Validation codes reported for ingested videos.
const (
	ValidationLengthError          = "LENGTH_ERROR"
	ValidationVideoPathWarning     = "VIDEO_PATH_WARNING"
	ValidationVideoPathError       = "VIDEO_PATH_ERROR"
	ValidationIncorrectCreatedTime = "INCORRECT_CREATED_TIME"
)

// ValidationStatus collects the problems found for one video.
type ValidationStatus struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// IsValid returns true if no errors were recorded. Warnings do not invalidate a video.
func (v ValidationStatus) IsValid() bool {
	return len(v.Errors) == 0
}

// VideoMetadata is the probe result for one ingested video. A METADATA job
// stores an array of these as its data payload.
type VideoMetadata struct {
	FileName         string           `json:"file_name"`
	FilePath         string           `json:"file_path"`
	Width            int              `json:"width"`
	Height           int              `json:"height"`
	Duration         string           `json:"duration"`
	FrameRate        string           `json:"frame_rate"`
	NumFrames        int              `json:"num_frames,omitempty"`
	Size             int64            `json:"size"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	// CreatedDate and ModifiedDate are unix seconds.
	CreatedDate  int64 `json:"created_date"`
	ModifiedDate int64 `json:"modified_date"`
}
