package models

import "time"

// OnboardingStep is the participant's position in the consent/demographic
// questionnaire. It is never stored: the step is computed from which
// nullable fields are still unanswered, in a fixed order.
type OnboardingStep int

const (
	StepUnknown OnboardingStep = iota
	StepConsentForm
	StepCitizenship
	StepAgeGroup
	StepPlaceOfBirth
	StepResidence
	StepOptionalInfo
	StepConsentRequired
	StepConsentOptional
	StepConsentOptionalAlt
	StepOnboardingComplete
)

// String names the step for logs.
func (s OnboardingStep) String() string {
	switch s {
	case StepConsentForm:
		return "awaiting_consent_form_ack"
	case StepCitizenship:
		return "awaiting_citizenship"
	case StepAgeGroup:
		return "awaiting_age_group"
	case StepPlaceOfBirth:
		return "awaiting_place_of_birth"
	case StepResidence:
		return "awaiting_residence"
	case StepOptionalInfo:
		return "awaiting_optional_info"
	case StepConsentRequired:
		return "awaiting_consent_required"
	case StepConsentOptional:
		return "awaiting_consent_optional"
	case StepConsentOptionalAlt:
		return "awaiting_consent_optional_alt"
	case StepOnboardingComplete:
		return "onboarding_complete"
	default:
		return "unknown"
	}
}

// Participant is one survey respondent, identified by phone number on the
// WhatsApp channel or by token on the web channel. The onboarding answers
// are nullable until answered; the set of non-null fields only grows.
type Participant struct {
	ID          string  `db:"id" json:"id"`
	PhoneNumber *string `db:"phone_number" json:"phone_number,omitempty"`
	Token       string  `db:"token" json:"token"`
	SurveyName  *string `db:"survey_name" json:"survey_name,omitempty"`

	// Conversation cursor. LastPromptSent is the last survey prompt index
	// successfully delivered; LastQuestionAsked is the concrete question,
	// which diverges from the prompt's default question inside random and
	// select groups.
	LastPromptSent    *int    `db:"last_prompt_sent" json:"last_prompt_sent,omitempty"`
	LastQuestionAsked *string `db:"last_question_asked" json:"last_question_asked,omitempty"`

	Citizenship      *bool   `db:"emirati_citizenship" json:"emirati_citizenship,omitempty"`
	AgeGroup         *int    `db:"age_group" json:"age_group,omitempty"`
	PlaceOfBirth     *string `db:"place_of_birth" json:"place_of_birth,omitempty"`
	CurrentResidence *string `db:"current_residence" json:"current_residence,omitempty"`
	OptionalName     *string `db:"real_name_optional_input" json:"-"`
	OptionalPhone    *string `db:"phone_number_optional_input" json:"-"`

	ConsentReadForm    *bool `db:"consent_read_form" json:"consent_read_form,omitempty"`
	ConsentRequired    *bool `db:"consent_required" json:"consent_required,omitempty"`
	ConsentOptional    *bool `db:"consent_optional" json:"consent_optional,omitempty"`
	ConsentOptionalAlt *bool `db:"consent_optional_alternative" json:"consent_optional_alternative,omitempty"`

	// OnboardingCompleted is monotonic: set exactly once, false to true.
	OnboardingCompleted bool `db:"demographics_and_consent_completed" json:"demographics_and_consent_completed"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CurrentOnboardingStep computes the step from the field-nullness vector.
// The second return value is false when the field combination matches no
// defined step; callers must surface that loudly rather than guess.
func (p *Participant) CurrentOnboardingStep() (OnboardingStep, bool) {
	if p.OnboardingCompleted {
		return StepOnboardingComplete, true
	}
	switch {
	case p.ConsentReadForm == nil || !*p.ConsentReadForm:
		return StepConsentForm, true
	case p.Citizenship == nil:
		return StepCitizenship, true
	case p.AgeGroup == nil:
		return StepAgeGroup, true
	case p.PlaceOfBirth == nil:
		return StepPlaceOfBirth, true
	case p.CurrentResidence == nil:
		return StepResidence, true
	case p.OptionalName == nil && p.OptionalPhone == nil:
		return StepOptionalInfo, true
	case p.ConsentRequired == nil:
		return StepConsentRequired, true
	case p.ConsentOptional == nil:
		return StepConsentOptional, true
	case p.ConsentOptionalAlt == nil:
		return StepConsentOptionalAlt, true
	default:
		return StepUnknown, false
	}
}
