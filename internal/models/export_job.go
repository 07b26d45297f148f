package models

import "time"

// Export job states.
const (
	ExportStatusPending   = "PENDING"
	ExportStatusRunning   = "RUNNING"
	ExportStatusCompleted = "COMPLETED"
	ExportStatusFailed    = "FAILED"
)

// ExportJob tracks one asynchronous CSV/zip export run.
type ExportJob struct {
	ID           string     `db:"id" json:"id"`
	SurveyName   *string    `db:"survey_name" json:"survey_name,omitempty"`
	Status       string     `db:"status" json:"status"`
	IncludeMedia bool       `db:"include_media" json:"include_media"`
	FilePath     *string    `db:"file_path" json:"file_path,omitempty"`
	Error        *string    `db:"error" json:"error,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}
