package service

import "github.com/ramsalab/survey-api/internal/whatsapp"

// Onboarding reply identifiers. Inbound interactive replies are matched
// against these exact ids (buttons) or prefixes (lists).
const (
	ButtonConsentYes            = "consent_yes"
	ButtonConsentNo             = "consent_no"
	ButtonCitizenshipYes        = "citizenship_yes"
	ButtonCitizenshipNo         = "citizenship_no"
	ButtonConsentRequiredYes    = "consent_required_yes"
	ButtonConsentRequiredNo     = "consent_required_no"
	ButtonConsentOptionalYes    = "consent_optional_yes"
	ButtonConsentOptionalNo     = "consent_optional_no"
	ButtonConsentOptionalAltYes = "consent_optional_alt_yes"
	ButtonConsentOptionalAltNo  = "consent_optional_alt_no"

	AgeOptionPrefix       = "age_"
	PlaceOptionPrefix     = "place_"
	ResidenceOptionPrefix = "residence_"
	OtherOptionValue      = "other"
)

// buttonPrompt is a body plus two or three reply buttons.
type buttonPrompt struct {
	Body    string
	Buttons []whatsapp.Button
}

// listPrompt is a body plus a single-section option list.
type listPrompt struct {
	Body        string
	ButtonLabel string
	Section     whatsapp.Section
}

// Fixed onboarding copy. The texts are part of the study protocol and are
// kept verbatim; only the rendering is code.
var (
	consentFormPrompt = buttonPrompt{
		Body: "Please visit kaizoderp.com/participant-information to view our terms and conditions. Do you accept the terms and conditions?",
		Buttons: []whatsapp.Button{
			{ID: ButtonConsentYes, Title: "Yes"},
			{ID: ButtonConsentNo, Title: "No"},
		},
	}

	consentDeclineText = "Thank you for your interest. Unfortunately, we cannot proceed without your acceptance of the terms and conditions."

	citizenshipPrompt = buttonPrompt{
		Body: "Are you an Emirati citizen?",
		Buttons: []whatsapp.Button{
			{ID: ButtonCitizenshipYes, Title: "Yes"},
			{ID: ButtonCitizenshipNo, Title: "No"},
		},
	}

	ageGroupPrompt = listPrompt{
		Body:        "What is your age group?",
		ButtonLabel: "Select Age Group",
		Section: whatsapp.Section{
			Title: "Select age group",
			Rows: []whatsapp.Row{
				{ID: "age_1", Title: "18 to 25 years"},
				{ID: "age_2", Title: "26 to 35 years"},
				{ID: "age_3", Title: "36 to 45 years"},
				{ID: "age_4", Title: "46 to 55 years"},
				{ID: "age_5", Title: "56 to 65 years"},
				{ID: "age_6", Title: "65 years and above"},
			},
		},
	}

	placeOfBirthPrompt = listPrompt{
		Body:        "From which Emirate are you? Please select one:",
		ButtonLabel: "Select Birthplace",
		Section: whatsapp.Section{
			Title: "Select Emirate",
			Rows:  emirateRows(PlaceOptionPrefix),
		},
	}

	placeOfBirthOtherText = "Please specify your place of birth."

	residencePrompt = listPrompt{
		Body:        "In which Emirate do you currently reside? (for scheduling and distribution purposes)",
		ButtonLabel: "Select Residence",
		Section: whatsapp.Section{
			Title: "Select Emirate",
			Rows:  emirateRows(ResidenceOptionPrefix),
		},
	}

	residenceOtherText = "Please specify your current residence."

	optionalInfoText = "[Optional] Name:\n[Optional] Contact number:\n\n" +
		"Note: Your name and contact number, if provided, will be stored with your data until August 31, 2027. " +
		"After that, this information will be permanently deleted, and you won't be able to access your specific data by request.\n\n" +
		"You can reply with:\n- Just your name\n- Just your contact number\n- Both (name and contact on separate lines)\n" +
		"- Or simply send \"No\" to skip this question."

	consentRequiredPrompt = buttonPrompt{
		Body: "I agree to the use of my data for research and development purposes (including the extraction of linguistic features for building the dictionary and training AI models).",
		Buttons: []whatsapp.Button{
			{ID: ButtonConsentRequiredYes, Title: "Yes"},
			{ID: ButtonConsentRequiredNo, Title: "No"},
		},
	}

	consentOptionalPrompt = buttonPrompt{
		Body: "[Optional] I agree to the archiving and sharing of my audio recordings with researchers and/or their release on public platforms.",
		Buttons: []whatsapp.Button{
			{ID: ButtonConsentOptionalYes, Title: "Yes"},
			{ID: ButtonConsentOptionalNo, Title: "No"},
		},
	}

	consentOptionalAltPrompt = buttonPrompt{
		Body: "I agree to the archiving the text transcripts derived from my audio recordings and sharing them with researchers and/or public platforms (with the audio itself not being shared).",
		Buttons: []whatsapp.Button{
			{ID: ButtonConsentOptionalAltYes, Title: "Yes"},
			{ID: ButtonConsentOptionalAltNo, Title: "No"},
		},
	}

	onboardingCompleteText = "Thank you! You have finished the onboarding process.\n\nWhenever you are ready to begin the survey, respond with any message."

	surveyCompletionText = "Survey completed! Thank you for your responses.\n\n" +
		"If you'd like to delete your data later, please kaizoderp.com/manage_data and enter the following information."

	selectQuestionBody  = "Please select which question you would like to answer:"
	selectQuestionLabel = "Select Question"
	selectSectionTitle  = "Select a question"
)

func emirateRows(prefix string) []whatsapp.Row {
	return []whatsapp.Row{
		{ID: prefix + "abu_dhabi", Title: "Abu Dhabi"},
		{ID: prefix + "dubai", Title: "Dubai"},
		{ID: prefix + "sharjah", Title: "Sharjah"},
		{ID: prefix + "ajman", Title: "Ajman"},
		{ID: prefix + "umm_al_quwain", Title: "Umm Al Quwain"},
		{ID: prefix + "ras_al_khaimah", Title: "Ras Al Khaimah"},
		{ID: prefix + "fujairah", Title: "Fujairah"},
		{ID: prefix + "other", Title: "Other"},
	}
}
