package reporting

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"campus-issue-reporting/pkg/report"
	"campus-issue-reporting/pkg/store/sqlstore"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []report.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e report.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []report.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]report.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// collidingStore rejects the first n creates as if the tracking code were taken.
type collidingStore struct {
	report.Store
	collisions int
	creates    int
}

func (s *collidingStore) Create(ctx context.Context, r report.Report) error {
	s.creates++
	if s.creates <= s.collisions {
		return report.ErrDuplicateTrackingCode
	}
	return s.Store.Create(ctx, r)
}

// staleOnceStore fails the first save with a stale write.
type staleOnceStore struct {
	report.Store
	saves int
}

func (s *staleOnceStore) Save(ctx context.Context, r report.Report, expected int64) error {
	s.saves++
	if s.saves == 1 {
		return report.ErrStaleWrite
	}
	return s.Store.Save(ctx, r, expected)
}

func setupTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	s := sqlstore.New(db)
	require.NoError(t, s.AutoMigrate(context.Background()))
	return s
}

func newTestService(t *testing.T, store report.Store) (*Service, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	svc := NewService(store, report.MustNewPolicy(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithPublisher(pub),
		WithClock(func() time.Time { return testNow }),
	)
	return svc, pub
}

func validSubmission() report.Submission {
	return report.Submission{
		Category:    "infrastructure",
		Title:       "Ceiling fan not working",
		Description: "The fan in room 204 has stopped working",
		Location:    "Block A, Room 204",
		Urgency:     "high",
	}
}

var (
	citizen = report.Citizen("ref-citizen")
	staff   = report.Staff("staff-1")
	estates = report.Officer("officer-1", "estates")
	library = report.Officer("officer-2", "library")
)

// ----------------------------------------------------------------------------
// Submit / Track
// ----------------------------------------------------------------------------

func TestService_SubmitAndTrack(t *testing.T) {
	svc, pub := newTestService(t, setupTestStore(t))
	ctx := context.Background()

	r, err := svc.Submit(ctx, report.Anonymous(), validSubmission())
	require.NoError(t, err)
	assert.Equal(t, report.StatusReceived, r.Status)
	assert.Len(t, r.TrackingCode, report.TrackingCodeLength)
	assert.Equal(t, []report.EventType{report.EventCreated}, pub.types())

	found, err := svc.Track(ctx, report.Anonymous(), "#"+r.TrackingCode)
	require.NoError(t, err)
	assert.Equal(t, r.ID, found.ID)

	_, err = svc.Track(ctx, report.Anonymous(), "ZZZZZZZZ")
	assert.ErrorIs(t, err, report.ErrNotFound)
}

func TestService_SubmitStripsMarkup(t *testing.T) {
	svc, _ := newTestService(t, setupTestStore(t))

	sub := validSubmission()
	sub.Title = "<b>Fan</b> & light broken"
	sub.Description = `Sparks <script>alert("x")</script>near the switch`

	r, err := svc.Submit(context.Background(), citizen, sub)
	require.NoError(t, err)
	assert.Equal(t, "Fan & light broken", r.Title)
	assert.Equal(t, "Sparks near the switch", r.Description)
}

func TestService_SubmitStripsEscapedMarkup(t *testing.T) {
	svc, _ := newTestService(t, setupTestStore(t))

	sub := validSubmission()
	sub.Title = "&lt;b&gt;Leak&lt;/b&gt; in room 12"
	sub.Location = "&lt;script&gt;alert(1)&lt;/script&gt;Block C"

	r, err := svc.Submit(context.Background(), citizen, sub)
	require.NoError(t, err)
	assert.Equal(t, "Leak in room 12", r.Title)
	assert.Equal(t, "Block C", r.Location)
	assert.NotContains(t, r.Title+r.Location, "<")
}

func TestService_SubmitRejectsInvalid(t *testing.T) {
	svc, pub := newTestService(t, setupTestStore(t))

	sub := validSubmission()
	sub.Category = "weather"
	_, err := svc.Submit(context.Background(), citizen, sub)
	assert.ErrorIs(t, err, report.ErrValidation)
	assert.Empty(t, pub.types())
}

func TestService_SubmitRetriesTrackingCodeCollision(t *testing.T) {
	store := &collidingStore{Store: setupTestStore(t), collisions: 2}
	svc, _ := newTestService(t, store)

	_, err := svc.Submit(context.Background(), citizen, validSubmission())
	require.NoError(t, err)
	assert.Equal(t, 3, store.creates)

	exhausted := &collidingStore{Store: setupTestStore(t), collisions: maxCodeAttempts}
	svc, _ = newTestService(t, exhausted)
	_, err = svc.Submit(context.Background(), citizen, validSubmission())
	assert.ErrorIs(t, err, report.ErrDuplicateTrackingCode)
}

func TestService_PublishFailureDoesNotFailRequest(t *testing.T) {
	svc, pub := newTestService(t, setupTestStore(t))
	pub.err = errors.New("broker down")

	_, err := svc.Submit(context.Background(), citizen, validSubmission())
	require.NoError(t, err)
}

// ----------------------------------------------------------------------------
// Lifecycle
// ----------------------------------------------------------------------------

func TestService_Lifecycle(t *testing.T) {
	svc, pub := newTestService(t, setupTestStore(t))
	ctx := context.Background()

	r, err := svc.Submit(ctx, citizen, validSubmission())
	require.NoError(t, err)

	_, err = svc.Transition(ctx, staff, r.ID, report.StatusResolved, "")
	assert.ErrorIs(t, err, report.ErrInvalidTransition)

	_, err = svc.Transition(ctx, citizen, r.ID, report.StatusInProgress, "")
	assert.ErrorIs(t, err, report.ErrForbidden)

	r, err = svc.Reassign(ctx, staff, r.ID, "estates", "Routed to estates")
	require.NoError(t, err)

	r, err = svc.Transition(ctx, estates, r.ID, report.StatusInProgress, "Technician assigned")
	require.NoError(t, err)
	assert.Equal(t, report.StatusInProgress, r.Status)

	r, err = svc.Transition(ctx, estates, r.ID, report.StatusResolved, "Fan replaced")
	require.NoError(t, err)
	require.NotNil(t, r.ResolvedAt)

	stored, err := svc.Get(ctx, staff, r.ID)
	require.NoError(t, err)
	assert.Equal(t, report.StatusResolved, stored.Status)
	assert.Len(t, stored.History, 4)
	assert.Equal(t, int64(4), stored.Version)

	assert.Equal(t, []report.EventType{
		report.EventCreated,
		report.EventAssigned,
		report.EventStatusChanged,
		report.EventStatusChanged,
	}, pub.types())
}

func TestService_TransitionRetriesStaleWrite(t *testing.T) {
	store := &staleOnceStore{Store: setupTestStore(t)}
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	r, err := svc.Submit(ctx, citizen, validSubmission())
	require.NoError(t, err)

	r, err = svc.Transition(ctx, staff, r.ID, report.StatusInProgress, "")
	require.NoError(t, err)
	assert.Equal(t, report.StatusInProgress, r.Status)
	assert.Equal(t, 2, store.saves)
}

func TestService_ConcurrentTransitionsOneWins(t *testing.T) {
	svc, _ := newTestService(t, setupTestStore(t))
	ctx := context.Background()

	r, err := svc.Submit(ctx, citizen, validSubmission())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Transition(ctx, report.Staff("staff-"+string(rune('a'+i))), r.ID, report.StatusInProgress, "")
		}(i)
	}
	wg.Wait()

	var ok, conflict int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, report.ErrInvalidTransition), errors.Is(err, report.ErrStaleWrite):
			conflict++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflict)

	stored, err := svc.Get(ctx, staff, r.ID)
	require.NoError(t, err)
	assert.Len(t, stored.History, 2)
}

func TestService_Edit(t *testing.T) {
	svc, _ := newTestService(t, setupTestStore(t))
	ctx := context.Background()

	r, err := svc.Submit(ctx, citizen, validSubmission())
	require.NoError(t, err)

	edited, err := svc.Edit(ctx, citizen, r.ID, report.Edit{
		Title:       "Ceiling fan making noise",
		Description: "The fan rattles loudly",
		Location:    "Block A, Room 205",
	})
	require.NoError(t, err)
	assert.Equal(t, "Block A, Room 205", edited.Location)

	_, err = svc.Edit(ctx, report.Citizen("someone-else"), r.ID, report.Edit{Title: "x", Description: "y"})
	assert.ErrorIs(t, err, report.ErrForbidden)

	_, err = svc.Transition(ctx, staff, r.ID, report.StatusInProgress, "")
	require.NoError(t, err)
	_, err = svc.Edit(ctx, citizen, r.ID, report.Edit{Title: "late", Description: "too late"})
	assert.ErrorIs(t, err, report.ErrForbidden)
}

func TestService_MissingReport(t *testing.T) {
	svc, _ := newTestService(t, setupTestStore(t))

	_, err := svc.Transition(context.Background(), staff, "does-not-exist", report.StatusInProgress, "")
	assert.ErrorIs(t, err, report.ErrNotFound)
}

// ----------------------------------------------------------------------------
// List / Get / Stats
// ----------------------------------------------------------------------------

func TestService_ListAndVisibility(t *testing.T) {
	svc, _ := newTestService(t, setupTestStore(t))
	ctx := context.Background()

	first, err := svc.Submit(ctx, citizen, validSubmission())
	require.NoError(t, err)
	sub := validSubmission()
	sub.Category = "study_material"
	sub.Title = "Missing textbooks"
	second, err := svc.Submit(ctx, citizen, sub)
	require.NoError(t, err)

	_, err = svc.Reassign(ctx, staff, first.ID, "estates", "")
	require.NoError(t, err)
	_, err = svc.Reassign(ctx, staff, second.ID, "library", "")
	require.NoError(t, err)

	_, err = svc.List(ctx, citizen, report.Criteria{})
	assert.ErrorIs(t, err, report.ErrForbidden)
	_, err = svc.List(ctx, report.Anonymous(), report.Criteria{})
	assert.ErrorIs(t, err, report.ErrForbidden)

	all, err := svc.List(ctx, staff, report.Criteria{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Officers are pinned to their own department whatever they ask for.
	own, err := svc.List(ctx, estates, report.Criteria{Department: "library"})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, first.ID, own[0].ID)

	search, err := svc.List(ctx, staff, report.Criteria{SearchText: "TEXTBOOK"})
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, second.ID, search[0].ID)

	_, err = svc.Get(ctx, library, first.ID)
	assert.ErrorIs(t, err, report.ErrForbidden)
	_, err = svc.Get(ctx, citizen, first.ID)
	assert.ErrorIs(t, err, report.ErrForbidden)

	stats, err := svc.Stats(ctx, staff, report.Criteria{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.ByStatus[report.StatusReceived])
	assert.Equal(t, 0, stats.ByStatus[report.StatusResolved])
}
