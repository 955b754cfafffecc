package reporting

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"campus-issue-reporting/pkg/report"
)

const (
	maxCodeAttempts   = 5
	maxSanitizePasses = 4
	storeTimeout      = 5 * time.Second
)

// Service is the use-case layer between the HTTP handlers and the report core. It owns
// persistence round trips, optimistic-lock retries and event publication.
type Service struct {
	store      report.Store
	tracker    *report.Tracker
	engine     *report.Engine
	policy     report.Authorizer
	publisher  report.EventPublisher
	sanitizer  *bluemonday.Policy
	log        *slog.Logger
	maxRetries int
	now        func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func WithPublisher(p report.EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func NewService(store report.Store, policy report.Authorizer, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		tracker:    report.NewTracker(store),
		policy:     policy,
		sanitizer:  bluemonday.StrictPolicy(),
		log:        log,
		maxRetries: 3,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = report.NewEngine(policy, report.WithClock(s.now))
	return s
}

func (s *Service) Submit(ctx context.Context, actor report.Actor, sub report.Submission) (report.Report, error) {
	if !s.policy.CanPerform(actor, report.ActionCreate, report.Report{}) {
		return report.Report{}, fmt.Errorf("%w: %s may not submit reports", report.ErrForbidden, actor.Role)
	}

	sub.Title = s.plainText(sub.Title)
	sub.Description = s.plainText(sub.Description)
	sub.Location = s.plainText(sub.Location)

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := report.NewTrackingCode()
		if err != nil {
			return report.Report{}, err
		}
		r, err := report.New(sub, actor, code, s.now())
		if err != nil {
			return report.Report{}, err
		}

		dbCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		err = s.store.Create(dbCtx, r)
		cancel()
		if errors.Is(err, report.ErrDuplicateTrackingCode) {
			s.log.WarnContext(ctx, "tracking code collision, regenerating", "attempt", attempt)
			continue
		}
		if err != nil {
			return report.Report{}, fmt.Errorf("failed to create report: %w", err)
		}

		s.log.InfoContext(ctx, "report submitted",
			"report_id", r.ID,
			"tracking_code", r.TrackingCode,
			"category", r.Category,
			"urgency", r.Urgency,
		)
		s.publish(ctx, report.EventCreated, r)
		return r, nil
	}

	return report.Report{}, fmt.Errorf("no free tracking code after %d attempts: %w", maxCodeAttempts, report.ErrDuplicateTrackingCode)
}

// Track is the public lookup by tracking code.
func (s *Service) Track(ctx context.Context, actor report.Actor, code string) (report.Report, error) {
	if !s.policy.CanPerform(actor, report.ActionLookup, report.Report{}) {
		return report.Report{}, fmt.Errorf("%w: lookup not allowed", report.ErrForbidden)
	}

	dbCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return s.tracker.FindByTrackingCode(dbCtx, code)
}

func (s *Service) List(ctx context.Context, actor report.Actor, c report.Criteria) ([]report.Report, error) {
	if !s.policy.CanPerform(actor, report.ActionRead, report.Report{}) {
		return nil, fmt.Errorf("%w: %s may not list reports", report.ErrForbidden, actor.Role)
	}
	if actor.Role == report.RoleOfficer {
		c.Department = actor.Department
		if strings.TrimSpace(c.Department) == "" {
			return []report.Report{}, nil
		}
	}

	f := report.Filter{}
	if !isAll(string(c.Status)) {
		f.Status = c.Status
	}
	if !isAll(string(c.Category)) {
		f.Category = c.Category
	}
	if !isAll(c.Department) {
		f.Department = c.Department
	}

	dbCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	all, err := s.store.FetchAll(dbCtx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reports: %w", err)
	}
	return report.Query(all, c), nil
}

func (s *Service) Get(ctx context.Context, actor report.Actor, id string) (report.Report, error) {
	r, err := s.fetch(ctx, id)
	if err != nil {
		return report.Report{}, err
	}
	if !s.policy.CanPerform(actor, report.ActionRead, r) || !visibleTo(actor, r) {
		return report.Report{}, fmt.Errorf("%w: %s may not read this report", report.ErrForbidden, actor.Role)
	}
	return r, nil
}

func (s *Service) Transition(ctx context.Context, actor report.Actor, id string, to report.Status, note string) (report.Report, error) {
	note = s.plainText(note)
	next, err := s.mutate(ctx, id, func(current report.Report) (report.Report, error) {
		return s.engine.Transition(current, to, actor, note)
	})
	if err != nil {
		return report.Report{}, err
	}

	s.log.InfoContext(ctx, "report status changed",
		"report_id", next.ID,
		"status", next.Status,
		"actor_role", actor.Role,
	)
	s.publish(ctx, report.EventStatusChanged, next)
	return next, nil
}

func (s *Service) Edit(ctx context.Context, actor report.Actor, id string, edit report.Edit) (report.Report, error) {
	edit.Title = s.plainText(edit.Title)
	edit.Description = s.plainText(edit.Description)
	edit.Location = s.plainText(edit.Location)

	next, err := s.mutate(ctx, id, func(current report.Report) (report.Report, error) {
		return s.engine.Edit(current, actor, edit)
	})
	if err != nil {
		return report.Report{}, err
	}

	s.log.InfoContext(ctx, "report edited by reporter", "report_id", next.ID)
	return next, nil
}

func (s *Service) Reassign(ctx context.Context, actor report.Actor, id, department, note string) (report.Report, error) {
	department = s.plainText(department)
	note = s.plainText(note)
	next, err := s.mutate(ctx, id, func(current report.Report) (report.Report, error) {
		return s.engine.Reassign(current, department, actor, note)
	})
	if err != nil {
		return report.Report{}, err
	}

	s.log.InfoContext(ctx, "report reassigned",
		"report_id", next.ID,
		"department", next.AssignedDepartment,
	)
	s.publish(ctx, report.EventAssigned, next)
	return next, nil
}

func (s *Service) Stats(ctx context.Context, actor report.Actor, c report.Criteria) (report.Stats, error) {
	reports, err := s.List(ctx, actor, c)
	if err != nil {
		return report.Stats{}, err
	}
	return report.Summarize(reports), nil
}

// mutate runs a read-modify-write against the store. A stale write means someone else won the
// race; the change is recomputed from the fresh report, which may now reject it.
func (s *Service) mutate(ctx context.Context, id string, apply func(report.Report) (report.Report, error)) (report.Report, error) {
	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		var current, next report.Report
		current, err = s.fetch(ctx, id)
		if err != nil {
			return report.Report{}, err
		}
		next, err = apply(current)
		if err != nil {
			return report.Report{}, err
		}

		dbCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		err = s.store.Save(dbCtx, next, current.Version)
		cancel()
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, report.ErrStaleWrite) {
			return report.Report{}, fmt.Errorf("failed to save report: %w", err)
		}
		s.log.DebugContext(ctx, "stale write, retrying", "report_id", id, "attempt", attempt)
	}
	return report.Report{}, err
}

func (s *Service) fetch(ctx context.Context, id string) (report.Report, error) {
	dbCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return s.store.FetchByID(dbCtx, strings.TrimSpace(id))
}

// publish never fails the request: the change is already stored.
func (s *Service) publish(ctx context.Context, t report.EventType, r report.Report) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, report.NewEvent(t, r)); err != nil {
		s.log.WarnContext(ctx, "failed to publish report event",
			"event", t,
			"report_id", r.ID,
			"error", err,
		)
	}
}

// plainText drops any markup. The stored text is plain, so entities are decoded again, and
// sanitizing repeats until decoding no longer reveals new markup.
func (s *Service) plainText(v string) string {
	for i := 0; i < maxSanitizePasses; i++ {
		clean := html.UnescapeString(s.sanitizer.Sanitize(v))
		if clean == v {
			return clean
		}
		v = clean
	}
	return s.sanitizer.Sanitize(v)
}

func visibleTo(actor report.Actor, r report.Report) bool {
	if actor.Role != report.RoleOfficer {
		return true
	}
	return strings.TrimSpace(actor.Department) != "" &&
		strings.EqualFold(strings.TrimSpace(actor.Department), strings.TrimSpace(r.AssignedDepartment))
}

func isAll(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, report.All)
}
