package trigger

import "encoding/json"

// Payload is the typed data attached to a trigger occurrence. It is recorded
// verbatim as the lead's behavior event body.
type Payload interface {
	EventType() string
}

// QuizCompletion is fired when a lead finishes the archetype quiz.
type QuizCompletion struct {
	Result  string          `json:"result"`
	Answers json.RawMessage `json:"answers,omitempty"`
}

func (QuizCompletion) EventType() string { return "quiz_completion" }

// MeditationDownload is fired when a lead downloads a guided meditation.
type MeditationDownload struct {
	Item string `json:"item"`
}

func (MeditationDownload) EventType() string { return "meditation_download" }

// LeadCreated is fired when a lead enters the system through any form.
type LeadCreated struct {
	Source string `json:"source"`
}

func (LeadCreated) EventType() string { return "lead_created" }

// ManualFire is fired by an admin for a specific campaign and lead.
type ManualFire struct {
	CampaignID  string `json:"campaign_id"`
	TriggeredBy string `json:"triggered_by"`
}

func (ManualFire) EventType() string { return "manual_trigger" }
