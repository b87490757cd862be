package domain

import (
	"fmt"
	"time"
)

// EventRecord is a single operational event pulled from one of the sources.
// Identity returns the fields that must be stamped onto the analysis result
// verbatim; they are never taken from model output.
type EventRecord interface {
	ID() string
	Kind() Mode
	Body() string
	ObservedAt() time.Time
	Identity() map[string]string
}

// SupportCase is a support interaction merged from case metadata and the
// customer/agent communication thread.
type SupportCase struct {
	CaseID      string    `json:"case_id"`
	DisplayID   string    `json:"display_id"`
	Subject     string    `json:"subject"`
	ServiceCode string    `json:"service_code"`
	Severity    string    `json:"severity"`
	Status      string    `json:"status"`
	SubmittedBy string    `json:"submitted_by"`
	CreatedAt   time.Time `json:"created_at"`
	Thread      string    `json:"thread"`
}

func (c SupportCase) ID() string            { return c.CaseID }
func (c SupportCase) Kind() Mode            { return ModeCases }
func (c SupportCase) ObservedAt() time.Time { return c.CreatedAt }

func (c SupportCase) Body() string {
	return fmt.Sprintf("Subject: %s\nService: %s\nSeverity: %s\nStatus: %s\n\n%s",
		c.Subject, c.ServiceCode, c.Severity, c.Status, c.Thread)
}

func (c SupportCase) Identity() map[string]string {
	return map[string]string{
		"case_id":      c.CaseID,
		"display_id":   c.DisplayID,
		"service_code": c.ServiceCode,
		"severity":     c.Severity,
		"status":       c.Status,
		"submitted_by": c.SubmittedBy,
	}
}

// HealthEvent is an infrastructure health notice from the searchable index.
type HealthEvent struct {
	ARN              string    `json:"arn"`
	Service          string    `json:"service"`
	EventTypeCode    string    `json:"event_type_code"`
	Region           string    `json:"region"`
	StatusCode       string    `json:"status_code"`
	Description      string    `json:"description"`
	AffectedEntities []string  `json:"affected_entities,omitempty"`
	LastUpdatedAt    time.Time `json:"last_updated_at"`
}

func (h HealthEvent) ID() string            { return h.ARN }
func (h HealthEvent) Kind() Mode            { return ModeHealth }
func (h HealthEvent) ObservedAt() time.Time { return h.LastUpdatedAt }

func (h HealthEvent) Body() string {
	return fmt.Sprintf("Event: %s\nService: %s\nRegion: %s\nStatus: %s\nAffected: %d\n\n%s",
		h.EventTypeCode, h.Service, h.Region, h.StatusCode, len(h.AffectedEntities), h.Description)
}

func (h HealthEvent) Identity() map[string]string {
	return map[string]string{
		"arn":             h.ARN,
		"service":         h.Service,
		"event_type_code": h.EventTypeCode,
		"region":          h.Region,
		"status_code":     h.StatusCode,
	}
}

// EventFailure records a single event that could not be analyzed. Failures
// never abort sibling events; they ride along in the run outcome.
type EventFailure struct {
	EventID string `json:"event_id"`
	Reason  string `json:"reason"`
}
