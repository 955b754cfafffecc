package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-issue-reporting/pkg/auth"
	"campus-issue-reporting/pkg/report"
)

func testEvent(t report.EventType, dept, ref string) report.Event {
	return report.Event{
		Type:         t,
		ReportID:     "r-1",
		TrackingCode: "A1B2C3D4",
		Title:        "Broken bench",
		Category:     report.CategoryInfrastructure,
		Urgency:      report.UrgencyLow,
		Status:       report.StatusInProgress,
		Department:   dept,
		ReporterRef:  ref,
		OccurredAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestShouldDeliver(t *testing.T) {
	tests := []struct {
		name  string
		actor report.Actor
		event report.Event
		want  bool
	}{
		{"staff sees new reports", report.Staff("s"), testEvent(report.EventCreated, "", "ref"), true},
		{"staff sees status changes", report.Staff("s"), testEvent(report.EventStatusChanged, "estates", "ref"), true},
		{"officer sees suggested department while unassigned", report.Officer("o", "Estates"), testEvent(report.EventCreated, "", "ref"), true},
		{"officer of other department", report.Officer("o", "library"), testEvent(report.EventCreated, "", "ref"), false},
		{"officer sees assignment to own department", report.Officer("o", "library"), testEvent(report.EventAssigned, "library", "ref"), true},
		{"officer without department", report.Officer("o", ""), testEvent(report.EventCreated, "", "ref"), false},
		{"reporter sees own status change", report.Citizen("ref"), testEvent(report.EventStatusChanged, "", "ref"), true},
		{"reporter does not see other reports", report.Citizen("other"), testEvent(report.EventStatusChanged, "", "ref"), false},
		{"reporter not told about assignment", report.Citizen("ref"), testEvent(report.EventAssigned, "estates", "ref"), false},
		{"anonymous report has no follower", report.Citizen(""), testEvent(report.EventStatusChanged, "", ""), false},
		{"anonymous subscriber", report.Anonymous(), testEvent(report.EventCreated, "", ""), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, shouldDeliver(tc.actor, tc.event))
		})
	}
}

func TestNewNotification(t *testing.T) {
	e := testEvent(report.EventStatusChanged, "estates", "secret-ref")
	e.Note = "Technician on the way"

	n := newNotification(e)
	assert.Equal(t, "In Progress", n.StatusLabel)
	assert.Equal(t, "Report A1B2C3D4 is now In Progress: Technician on the way", n.Message)
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHub_FanOut(t *testing.T) {
	hub := startHub(t)
	ctx := context.Background()

	staff, unsubStaff, err := hub.Subscribe(ctx, report.Staff("s"))
	require.NoError(t, err)
	defer unsubStaff()
	reporter, unsubReporter, err := hub.Subscribe(ctx, report.Citizen("ref"))
	require.NoError(t, err)
	defer unsubReporter()

	require.NoError(t, hub.Publish(ctx, testEvent(report.EventCreated, "", "ref")))
	require.NoError(t, hub.Publish(ctx, testEvent(report.EventStatusChanged, "", "ref")))

	for _, want := range []report.EventType{report.EventCreated, report.EventStatusChanged} {
		select {
		case n := <-staff.send:
			assert.Equal(t, want, n.Type)
		case <-time.After(time.Second):
			t.Fatalf("staff did not receive %s", want)
		}
	}

	select {
	case n := <-reporter.send:
		assert.Equal(t, report.EventStatusChanged, n.Type)
	case <-time.After(time.Second):
		t.Fatal("reporter did not receive the status change")
	}
	select {
	case n := <-reporter.send:
		t.Fatalf("reporter received unexpected %s", n.Type)
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, 2, hub.Clients())
}

func TestSubscribe_RequiresToken(t *testing.T) {
	hub := startHub(t)
	h := NewHandler(hub, auth.NewTokenManager("secret", time.Hour), slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notifications/subscribe", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notifications/subscribe?token=garbage", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubscribe_StreamsToReporter(t *testing.T) {
	hub := startHub(t)
	tokens := auth.NewTokenManager("secret", time.Hour)
	h := NewHandler(hub, tokens, slog.New(slog.NewTextHandler(io.Discard, nil)))

	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	token, err := tokens.IssueVerification("ref", "email", "sealed", time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/notifications/subscribe?verification_token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Contains(t, lines.Text(), `"connected"`)

	// The subscriber is registered before the greeting is written.
	require.NoError(t, hub.Publish(ctx, testEvent(report.EventStatusChanged, "", "ref")))

	var got []string
	for lines.Scan() {
		line := lines.Text()
		if line == "" {
			if len(got) > 0 {
				break
			}
			continue
		}
		got = append(got, line)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "event: report.status_changed", got[0])
	assert.True(t, strings.HasPrefix(got[1], "data: "))
	assert.Contains(t, got[1], `"tracking_code":"A1B2C3D4"`)
	assert.NotContains(t, got[1], "reporter_ref")
}
