package models

import (
	"encoding/json"
	"time"
)

// Survey is a named, immutable collection of questions.
type Survey struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Group types. A group clusters questions sharing one prompt number.
const (
	GroupSequential = "sequential"
	GroupRandom     = "random"
	GroupSelect     = "select"
)

// QuestionGroup clusters questions that share a prompt number and a
// resolution strategy.
type QuestionGroup struct {
	ID           string    `db:"id" json:"id"`
	SurveyID     string    `db:"survey_id" json:"survey_id"`
	Name         string    `db:"name" json:"name"`
	Description  *string   `db:"description" json:"description,omitempty"`
	GroupType    string    `db:"group_type" json:"group_type"`
	PromptNumber *int      `db:"prompt_number" json:"prompt_number,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Question types.
const (
	QuestionText        = "text"
	QuestionAudio       = "audio"
	QuestionInteractive = "interactive"
)

// Question belongs to a Survey and optionally one QuestionGroup.
// PromptNumber is its position in the survey's sequential spine, shared
// across a group. Options carries the rendering payload for interactive
// questions.
type Question struct {
	ID           string          `db:"id" json:"id"`
	SurveyID     string          `db:"survey_id" json:"survey_id"`
	GroupID      *string         `db:"question_group_id" json:"question_group_id,omitempty"`
	Prompt       string          `db:"prompt" json:"prompt"`
	QuestionType string          `db:"question_type" json:"question_type"`
	PromptNumber *int            `db:"prompt_number" json:"prompt_number,omitempty"`
	Options      json.RawMessage `db:"options" json:"options,omitempty"`
	Required     bool            `db:"required" json:"required"`
	Active       bool            `db:"active" json:"active"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// QuestionOptions is the decoded shape of Question.Options for interactive
// questions.
type QuestionOptions struct {
	InteractiveType string           `json:"interactive_type"`
	HeaderText      string           `json:"header_text,omitempty"`
	BodyText        string           `json:"body_text,omitempty"`
	FooterText      string           `json:"footer_text,omitempty"`
	Buttons         []OptionButton   `json:"buttons,omitempty"`
	Button          string           `json:"button,omitempty"`
	Sections        []OptionsSection `json:"sections,omitempty"`
}

// OptionButton is one reply button of an interactive question.
type OptionButton struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// OptionsSection is one section of a list question.
type OptionsSection struct {
	Title string       `json:"title"`
	Rows  []OptionsRow `json:"rows"`
}

// OptionsRow is one selectable row of a list question.
type OptionsRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// DecodeOptions parses the stored JSON payload. The payload may be either a
// single object or a one-element array of objects (the import process emits
// both shapes).
func (q *Question) DecodeOptions() (*QuestionOptions, error) {
	if len(q.Options) == 0 {
		return nil, nil
	}
	var many []QuestionOptions
	if err := json.Unmarshal(q.Options, &many); err == nil {
		if len(many) == 0 {
			return nil, nil
		}
		return &many[0], nil
	}
	var one QuestionOptions
	if err := json.Unmarshal(q.Options, &one); err != nil {
		return nil, err
	}
	return &one, nil
}

// SurveyLogic overrides the default "next prompt number" advance: when a
// participant answers question (or group) with the response option named
// here, the survey jumps to NextQuestionID's prompt number instead.
type SurveyLogic struct {
	ID               string  `db:"id" json:"id"`
	SurveyID         string  `db:"survey_id" json:"survey_id"`
	QuestionID       *string `db:"question_id" json:"question_id,omitempty"`
	QuestionGroupID  *string `db:"question_group_id" json:"question_group_id,omitempty"`
	ResponseOptionID string  `db:"response_option_id" json:"response_option_id"`
	NextQuestionID   *string `db:"next_question_id" json:"next_question_id,omitempty"`
}
