package models

import (
	"encoding/json"
	"time"
)

// Response is one answered question by one participant. Rows are created
// once per answer and never mutated.
type Response struct {
	ID            string          `db:"id" json:"id"`
	ParticipantID *string         `db:"participant_id" json:"participant_id,omitempty"`
	QuestionID    string          `db:"question_id" json:"question_id"`
	ResponseType  string          `db:"response_type" json:"response_type"`
	ResponseValue *string         `db:"response_value" json:"response_value,omitempty"`
	FilePath      *string         `db:"file_path" json:"file_path,omitempty"`
	Metadata      json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	Timestamp     time.Time       `db:"timestamp" json:"timestamp"`
}

// ExportRow is a Response joined with its participant demographics,
// question and survey, shaped for the CSV export.
type ExportRow struct {
	ResponseID     string    `db:"response_id"`
	ParticipantID  *string   `db:"participant_id"`
	QuestionID     string    `db:"question_id"`
	QuestionPrompt string    `db:"question_prompt"`
	SurveyID       string    `db:"survey_id"`
	SurveyName     string    `db:"survey_name"`
	ResponseType   string    `db:"response_type"`
	ResponseValue  *string   `db:"response_value"`
	FilePath       *string   `db:"file_path"`
	Timestamp      time.Time `db:"timestamp"`

	Citizenship        *bool   `db:"emirati_citizenship"`
	AgeGroup           *int    `db:"age_group"`
	PlaceOfBirth       *string `db:"place_of_birth"`
	CurrentResidence   *string `db:"current_residence"`
	ConsentReadForm    *bool   `db:"consent_read_form"`
	ConsentRequired    *bool   `db:"consent_required"`
	ConsentOptional    *bool   `db:"consent_optional"`
	ConsentOptionalAlt *bool   `db:"consent_optional_alternative"`
}
