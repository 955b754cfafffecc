package report

import (
	"fmt"
	"strings"
	"time"
)

// Engine applies lifecycle changes. It holds no mutable state: every method takes the current
// report by value and returns the next one, leaving the input untouched.
type Engine struct {
	authz Authorizer
	now   func() time.Time
}

type EngineOption func(*Engine)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(authz Authorizer, opts ...EngineOption) *Engine {
	e := &Engine{
		authz: authz,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Transition(r Report, to Status, actor Actor, note string) (Report, error) {
	if !to.IsValid() {
		return Report{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if to == r.Status {
		return Report{}, fmt.Errorf("%w: report is already %s", ErrInvalidTransition, to)
	}
	if !r.Status.CanTransitionTo(to) {
		return Report{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	if !e.authz.CanPerform(actor, ActionTransitionStatus, r) {
		return Report{}, fmt.Errorf("%w: %s may not change the status of this report", ErrForbidden, actor.Role)
	}

	now := e.now().UTC()
	next := r.Clone()
	next.Status = to
	next.UpdatedAt = now
	if to.IsResolved() {
		next.ResolvedAt = &now
	} else {
		next.ResolvedAt = nil
	}
	next.History = append(next.History, HistoryEntry{
		Status: to,
		Role:   actor.Role,
		At:     now,
		Note:   strings.TrimSpace(note),
	})
	next.Version++

	return next, nil
}

// Edit is the reporter's correction of the free-text fields before anyone has triaged the report.
type Edit struct {
	Title       string
	Description string
	Location    string
}

func (e *Engine) Edit(r Report, actor Actor, edit Edit) (Report, error) {
	if !e.authz.CanPerform(actor, ActionEditBeforeTriage, r) {
		return Report{}, fmt.Errorf("%w: report can no longer be edited by this actor", ErrForbidden)
	}
	title, description, location, err := validateText(edit.Title, edit.Description, edit.Location)
	if err != nil {
		return Report{}, err
	}

	next := r.Clone()
	next.Title = title
	next.Description = description
	next.Location = location
	next.UpdatedAt = e.now().UTC()
	next.Version++

	return next, nil
}

// Reassign hands the report to another department. An empty department clears the assignment.
// The status is unchanged but the move is recorded in the history.
func (e *Engine) Reassign(r Report, department string, actor Actor, note string) (Report, error) {
	if !e.authz.CanPerform(actor, ActionReassignDepartment, r) {
		return Report{}, fmt.Errorf("%w: %s may not reassign reports", ErrForbidden, actor.Role)
	}
	department = strings.TrimSpace(department)
	if strings.EqualFold(department, r.AssignedDepartment) {
		return Report{}, fmt.Errorf("%w: report is already assigned to %q", ErrInvalidTransition, department)
	}

	now := e.now().UTC()
	next := r.Clone()
	next.AssignedDepartment = department
	next.UpdatedAt = now
	next.History = append(next.History, HistoryEntry{
		Status:     r.Status,
		Role:       actor.Role,
		At:         now,
		Note:       strings.TrimSpace(note),
		Department: department,
	})
	next.Version++

	return next, nil
}
