package report

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusReceived   Status = "received"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

// statusTransitions is the whole lifecycle graph. received cannot jump straight to resolved,
// and resolved can always be reopened.
var statusTransitions = map[Status][]Status{
	StatusReceived:   {StatusInProgress},
	StatusInProgress: {StatusResolved},
	StatusResolved:   {StatusInProgress},
}

// Presentation is the label and badge colour a dashboard shows for an enum value.
type Presentation struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

var statusPresentation = map[Status]Presentation{
	StatusReceived:   {Label: "Received", Color: "blue"},
	StatusInProgress: {Label: "In Progress", Color: "yellow"},
	StatusResolved:   {Label: "Resolved", Color: "green"},
}

func (s Status) String() string {
	return string(s)
}

func (s Status) IsValid() bool {
	_, ok := statusTransitions[s]
	return ok
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s Status) IsResolved() bool {
	return s == StatusResolved
}

func (s Status) Presentation() Presentation {
	if p, ok := statusPresentation[s]; ok {
		return p
	}
	return Presentation{Label: string(s), Color: "gray"}
}

// ParseStatus accepts the spellings seen on the wire ("in-progress", "In Progress",
// "IN_PROGRESS") and returns the canonical snake case value.
func ParseStatus(raw string) (Status, error) {
	s := Status(canonicalToken(raw))
	if !s.IsValid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, raw)
	}
	return s, nil
}

// Statuses returns every lifecycle state in lifecycle order.
func Statuses() []Status {
	return []Status{StatusReceived, StatusInProgress, StatusResolved}
}

func canonicalToken(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "-", "_")
	t = strings.ReplaceAll(t, " ", "_")
	return t
}
