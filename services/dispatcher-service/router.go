package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"campus-issue-reporting/pkg/report"
)

// Router announces where each new report should be handled. It reads events only; the
// assignment itself stays a staff decision made through the report service.
type Router struct {
	routed *prometheus.CounterVec
	log    *slog.Logger
}

func NewRouter(reg prometheus.Registerer, log *slog.Logger) *Router {
	routed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reports_routed_total",
			Help: "New reports routed by suggested department and urgency",
		},
		[]string{"department", "urgency"},
	)
	reg.MustRegister(routed)
	return &Router{routed: routed, log: log}
}

// Route has the signature of a queue handler. Anything but report.created is acknowledged
// and ignored.
func (r *Router) Route(ctx context.Context, e report.Event) error {
	if e.Type != report.EventCreated {
		return nil
	}

	dept := e.Department
	if dept == "" {
		dept = e.Category.SuggestedDepartment()
	}
	r.routed.WithLabelValues(dept, string(e.Urgency)).Inc()

	attrs := []any{
		"report_id", e.ReportID,
		"tracking_code", e.TrackingCode,
		"category", e.Category,
		"urgency", e.Urgency,
		"department", dept,
		"anonymous", e.ReporterRef == "",
	}
	if e.Urgency == report.UrgencyUrgent {
		r.log.WarnContext(ctx, "urgent report routed", attrs...)
		return nil
	}
	r.log.InfoContext(ctx, "report routed", attrs...)
	return nil
}
