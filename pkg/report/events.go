package report

import (
	"context"
	"time"
)

type EventType string

const (
	EventCreated       EventType = "report.created"
	EventStatusChanged EventType = "report.status_changed"
	EventAssigned      EventType = "report.assigned"
)

// Event is published after a change has been persisted.
type Event struct {
	Type         EventType `json:"type"`
	ReportID     string    `json:"report_id"`
	TrackingCode string    `json:"tracking_code"`
	Title        string    `json:"title"`
	Category     Category  `json:"category"`
	Urgency      Urgency   `json:"urgency"`
	Status       Status    `json:"status"`
	Department   string    `json:"department,omitempty"`
	ReporterRef  string    `json:"reporter_ref,omitempty"`
	ActorRole    Role      `json:"actor_role"`
	Note         string    `json:"note,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewEvent describes the latest change of r.
func NewEvent(t EventType, r Report) Event {
	last := r.LastEvent()
	return Event{
		Type:         t,
		ReportID:     r.ID,
		TrackingCode: r.TrackingCode,
		Title:        r.Title,
		Category:     r.Category,
		Urgency:      r.Urgency,
		Status:       r.Status,
		Department:   r.AssignedDepartment,
		ReporterRef:  r.ReporterRef,
		ActorRole:    last.Role,
		Note:         last.Note,
		OccurredAt:   r.UpdatedAt,
	}
}

type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}
