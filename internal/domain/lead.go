package domain

import "time"

// Lead represents a prospective client captured through any funnel entry
// point: the archetype quiz, a meditation download, a coaching application,
// or a workshop waitlist. Leads are insert-only; nothing ever mutates or
// deletes a lead row.
type Lead struct {
	ID          string     `json:"id" db:"id"`
	Email       string     `json:"email" db:"email"`
	Name        *string    `json:"name" db:"name"`
	Source      string     `json:"source" db:"source"`
	QuizResult  *string    `json:"quiz_result" db:"quiz_result"`
	QuizAnswers []byte     `json:"quiz_answers,omitempty" db:"quiz_answers"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Funnel source tags. The meditation download tag doubles as the audience
// marker for meditation_downloaders campaigns.
const (
	SourceQuiz        = "quiz"
	SourceMeditation  = "meditation_download"
	SourceApplication = "application"
	SourceWaitlist    = "waitlist"
	SourceContact     = "contact"
)

// DisplayName returns the lead's name, or "there" when none was captured.
// Used as the merge-tag default so emails never open with a blank greeting.
func (l *Lead) DisplayName() string {
	if l.Name == nil || *l.Name == "" {
		return "there"
	}
	return *l.Name
}

// FirstName returns the first whitespace-separated word of the name,
// falling back the same way as DisplayName.
func (l *Lead) FirstName() string {
	name := l.DisplayName()
	for i, r := range name {
		if r == ' ' {
			return name[:i]
		}
	}
	return name
}

// BehaviorEvent is an append-only record of a lead's funnel activity.
// Written unconditionally by the campaign trigger, whether or not any
// campaign matched.
type BehaviorEvent struct {
	ID        string    `json:"id" db:"id"`
	LeadID    string    `json:"lead_id" db:"lead_id"`
	EventType string    `json:"event_type" db:"event_type"`
	EventData []byte    `json:"event_data,omitempty" db:"event_data"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
