package dto

import "time"

// CreateExportRequest is the payload for starting an export run.
type CreateExportRequest struct {
	SurveyName   string `json:"survey_name" validate:"required"`
	IncludeMedia bool   `json:"include_media"`
}

// ExportJobResponse describes an export job to API consumers.
type ExportJobResponse struct {
	ID           string     `json:"id"`
	SurveyName   *string    `json:"survey_name,omitempty"`
	Status       string     `json:"status"`
	IncludeMedia bool       `json:"include_media"`
	DownloadURL  *string    `json:"download_url,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}
