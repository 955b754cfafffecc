package report

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
	MaxAttachments       = 10
)

type AttachmentKind string

const (
	AttachmentPhoto AttachmentKind = "photo"
	AttachmentVideo AttachmentKind = "video"
)

// Attachment is an opaque reference into media storage.
type Attachment struct {
	Kind AttachmentKind `json:"kind"`
	URL  string         `json:"url"`
}

type HistoryEntry struct {
	Status     Status    `json:"status"`
	Role       Role      `json:"role"`
	At         time.Time `json:"at"`
	Note       string    `json:"note,omitempty"`
	Department string    `json:"department,omitempty"`
}

type Report struct {
	ID                 string         `json:"id"`
	TrackingCode       string         `json:"tracking_code"`
	Category           Category       `json:"category"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	Location           string         `json:"location,omitempty"`
	Urgency            Urgency        `json:"urgency"`
	Status             Status         `json:"status"`
	Attachments        []Attachment   `json:"attachments"`
	ReporterRef        string         `json:"-"`
	AssignedDepartment string         `json:"assigned_department,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	ResolvedAt         *time.Time     `json:"resolved_at,omitempty"`
	History            []HistoryEntry `json:"history"`
	Version            int64          `json:"version"`
}

// Submission is what a reporter fills in.
type Submission struct {
	Category    string
	Title       string
	Description string
	Location    string
	Urgency     string
	Attachments []Attachment
}

// New builds a report in the received state with its creation event as the first history entry.
func New(sub Submission, reporter Actor, trackingCode string, now time.Time) (Report, error) {
	category, err := ParseCategory(sub.Category)
	if err != nil {
		return Report{}, err
	}
	urgency, err := ParseUrgency(sub.Urgency)
	if err != nil {
		return Report{}, err
	}
	title, description, location, err := validateText(sub.Title, sub.Description, sub.Location)
	if err != nil {
		return Report{}, err
	}
	attachments, err := validateAttachments(sub.Attachments)
	if err != nil {
		return Report{}, err
	}
	code, ok := NormalizeTrackingCode(trackingCode)
	if !ok {
		return Report{}, fmt.Errorf("%w: malformed tracking code", ErrValidation)
	}

	now = now.UTC()
	return Report{
		ID:           uuid.NewString(),
		TrackingCode: code,
		Category:     category,
		Title:        title,
		Description:  description,
		Location:     location,
		Urgency:      urgency,
		Status:       StatusReceived,
		Attachments:  attachments,
		ReporterRef:  strings.TrimSpace(reporter.Ref),
		CreatedAt:    now,
		UpdatedAt:    now,
		History: []HistoryEntry{
			{Status: StatusReceived, Role: reporter.Role, At: now, Note: "Report submitted"},
		},
		Version: 1,
	}, nil
}

// Validate checks the invariants a persisted report must hold. Stores call it when
// rehydrating rows.
func (r Report) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("%w: missing id", ErrValidation)
	case r.TrackingCode == "":
		return fmt.Errorf("%w: missing tracking code", ErrValidation)
	case !r.Category.IsValid():
		return fmt.Errorf("%w: invalid category %q", ErrValidation, r.Category)
	case !r.Urgency.IsValid():
		return fmt.Errorf("%w: invalid urgency %q", ErrValidation, r.Urgency)
	case !r.Status.IsValid():
		return fmt.Errorf("%w: invalid status %q", ErrValidation, r.Status)
	case len(r.History) == 0:
		return fmt.Errorf("%w: empty history", ErrValidation)
	case r.Status.IsResolved() != (r.ResolvedAt != nil):
		return fmt.Errorf("%w: resolved_at inconsistent with status %s", ErrValidation, r.Status)
	}
	return nil
}

// Clone returns a copy that shares no slices or pointers with r.
func (r Report) Clone() Report {
	c := r
	if r.Attachments != nil {
		c.Attachments = make([]Attachment, len(r.Attachments))
		copy(c.Attachments, r.Attachments)
	}
	if r.History != nil {
		c.History = make([]HistoryEntry, len(r.History))
		copy(c.History, r.History)
	}
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		c.ResolvedAt = &t
	}
	return c
}

// LastEvent is the most recent history entry.
func (r Report) LastEvent() HistoryEntry {
	if len(r.History) == 0 {
		return HistoryEntry{}
	}
	return r.History[len(r.History)-1]
}

func validateText(title, description, location string) (string, string, string, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	location = strings.TrimSpace(location)

	if title == "" {
		return "", "", "", fmt.Errorf("%w: title is required", ErrValidation)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", "", "", fmt.Errorf("%w: title exceeds %d characters", ErrValidation, MaxTitleLength)
	}
	if description == "" {
		return "", "", "", fmt.Errorf("%w: description is required", ErrValidation)
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return "", "", "", fmt.Errorf("%w: description exceeds %d characters", ErrValidation, MaxDescriptionLength)
	}
	return title, description, location, nil
}

func validateAttachments(in []Attachment) ([]Attachment, error) {
	if len(in) > MaxAttachments {
		return nil, fmt.Errorf("%w: at most %d attachments", ErrValidation, MaxAttachments)
	}
	out := make([]Attachment, 0, len(in))
	for i, a := range in {
		if a.Kind != AttachmentPhoto && a.Kind != AttachmentVideo {
			return nil, fmt.Errorf("%w: attachment %d has unknown kind %q", ErrValidation, i, a.Kind)
		}
		url := strings.TrimSpace(a.URL)
		if url == "" {
			return nil, fmt.Errorf("%w: attachment %d has no url", ErrValidation, i)
		}
		out = append(out, Attachment{Kind: a.Kind, URL: url})
	}
	return out, nil
}
