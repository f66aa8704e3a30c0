package domain

import (
	"time"
)

// TriggerType enumerates the behavioral events that can start a campaign.
type TriggerType string

const (
	TriggerQuizCompletion     TriggerType = "quiz_completion"
	TriggerMeditationDownload TriggerType = "meditation_download"
	TriggerLeadCreated        TriggerType = "lead_created"
	TriggerManual             TriggerType = "manual"
)

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerQuizCompletion, TriggerMeditationDownload, TriggerLeadCreated, TriggerManual:
		return true
	}
	return false
}

// TargetAudience enumerates campaign audience selectors. Eligibility is a
// closed policy: unknown values never match (default-deny).
type TargetAudience string

const (
	AudienceAll                   TargetAudience = "all"
	AudienceQuizTakers            TargetAudience = "quiz_takers"
	AudienceMeditationDownloaders TargetAudience = "meditation_downloaders"
	AudienceSpecificArchetype     TargetAudience = "specific_archetype"
)

// AudienceFilter is the typed payload for audience selectors that need one.
// Only specific_archetype campaigns carry a filter today; the struct keeps
// the column from degenerating into an open JSON blob.
type AudienceFilter struct {
	Archetype string `json:"archetype,omitempty"`
}

// Campaign is a named trigger rule: which behavioral event, aimed at which
// audience, starts which sequence of templates. Campaigns are immutable in
// normal operation apart from the active flag.
type Campaign struct {
	ID                string         `json:"id" db:"id"`
	Name              string         `json:"name" db:"name"`
	TriggerType       TriggerType    `json:"trigger_type" db:"trigger_type"`
	TargetAudience    TargetAudience `json:"target_audience" db:"target_audience"`
	AudienceFilter    AudienceFilter `json:"audience_filter" db:"audience_filter"`
	Active            bool           `json:"active" db:"active"`
	AIPersonalization bool           `json:"ai_personalization" db:"ai_personalization"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// Eligible evaluates the campaign's audience selector against a lead.
// Unknown selectors are never eligible.
func (c *Campaign) Eligible(lead *Lead) bool {
	switch c.TargetAudience {
	case AudienceAll:
		return true
	case AudienceQuizTakers:
		return lead.QuizResult != nil && *lead.QuizResult != ""
	case AudienceMeditationDownloaders:
		return lead.Source == SourceMeditation
	case AudienceSpecificArchetype:
		return lead.QuizResult != nil && c.AudienceFilter.Archetype != "" &&
			*lead.QuizResult == c.AudienceFilter.Archetype
	default:
		return false
	}
}

// Template is one email step within a campaign's send sequence. Subject and
// body carry literal {{name}}-style merge tags resolved at drain time.
type Template struct {
	ID                    string    `json:"id" db:"id"`
	CampaignID            string    `json:"campaign_id" db:"campaign_id"`
	Subject               string    `json:"subject" db:"subject"`
	Body                  string    `json:"body" db:"body"`
	PersonalizationPrompt *string   `json:"personalization_prompt" db:"personalization_prompt"`
	SendDelayMinutes      int       `json:"send_delay_minutes" db:"send_delay_minutes"`
	Position              int       `json:"position" db:"position"`
	Active                bool      `json:"active" db:"active"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
}
