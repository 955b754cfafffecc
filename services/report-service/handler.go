package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"campus-issue-reporting/pkg/auth"
	"campus-issue-reporting/pkg/media"
	"campus-issue-reporting/pkg/middleware"
	"campus-issue-reporting/pkg/report"
	"campus-issue-reporting/pkg/reporting"
	"campus-issue-reporting/pkg/response"
)

const maxBodyBytes = 1 << 20

type mediaSigner interface {
	PresignUpload(ctx context.Context, contentType string) (media.Upload, error)
	PresignDownload(ctx context.Context, attachmentURL string) (string, error)
}

type Handler struct {
	reports  *reporting.Service
	media    mediaSigner
	tokens   *auth.TokenManager
	validate *validator.Validate
	log      *slog.Logger
}

func NewHandler(reports *reporting.Service, signer mediaSigner, tokens *auth.TokenManager, log *slog.Logger) *Handler {
	return &Handler{
		reports:  reports,
		media:    signer,
		tokens:   tokens,
		validate: validator.New(),
		log:      log,
	}
}

// Routes registers every endpoint. health may be nil in tests.
func (h *Handler) Routes(health http.Handler) http.Handler {
	mux := http.NewServeMux()
	optional := middleware.OptionalAuth(h.tokens)
	required := middleware.AuthMiddleware(h.tokens)
	staffOnly := middleware.RequireRole(report.RoleStaff, report.RoleOfficer)

	mux.Handle("/api/reports", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			middleware.Chain(http.HandlerFunc(h.createReport), optional).ServeHTTP(w, r)
		case http.MethodGet:
			middleware.Chain(http.HandlerFunc(h.listReports), required, staffOnly).ServeHTTP(w, r)
		default:
			response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		}
	}))
	mux.Handle("/api/reports/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			middleware.Chain(http.HandlerFunc(h.getReport), required).ServeHTTP(w, r)
		case http.MethodPut:
			middleware.Chain(http.HandlerFunc(h.editReport), optional).ServeHTTP(w, r)
		default:
			response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		}
	}))
	mux.Handle("POST /api/reports/{id}/status", middleware.Chain(http.HandlerFunc(h.updateStatus), required, staffOnly))
	mux.Handle("PUT /api/reports/{id}/department", middleware.Chain(http.HandlerFunc(h.reassign), required, staffOnly))
	mux.Handle("GET /api/track/{code}", middleware.Chain(http.HandlerFunc(h.track), optional))
	mux.Handle("POST /api/attachments", middleware.Chain(http.HandlerFunc(h.presignUpload), optional))
	mux.Handle("GET /api/stats", middleware.Chain(http.HandlerFunc(h.stats), required, staffOnly))
	mux.Handle("GET /api/meta", http.HandlerFunc(h.meta))
	if health != nil {
		mux.Handle("GET /health", health)
	}
	mux.Handle("GET /metrics", middleware.GetMetricsHandler())

	return middleware.Chain(mux,
		middleware.TraceMiddleware,
		middleware.LoggerMiddleware,
		middleware.MetricsMiddleware,
	)
}

type attachmentRequest struct {
	Kind string `json:"kind" validate:"required,oneof=photo video"`
	URL  string `json:"url" validate:"required,url"`
}

type createReportRequest struct {
	Category    string              `json:"category" validate:"required"`
	Title       string              `json:"title" validate:"required,max=200"`
	Description string              `json:"description" validate:"required,max=5000"`
	Location    string              `json:"location" validate:"max=500"`
	Urgency     string              `json:"urgency"`
	Attachments []attachmentRequest `json:"attachments" validate:"max=10,dive"`
}

type editReportRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"required,max=5000"`
	Location    string `json:"location" validate:"max=500"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=1000"`
}

type reassignRequest struct {
	Department string `json:"department" validate:"max=100"`
	Note       string `json:"note" validate:"max=1000"`
}

type uploadRequest struct {
	ContentType string `json:"content_type" validate:"required"`
}

// reportView is what staff dashboards get: the report plus display labels.
type reportView struct {
	report.Report
	CategoryLabel       string              `json:"category_label"`
	StatusPresentation  report.Presentation `json:"status_presentation"`
	UrgencyPresentation report.Presentation `json:"urgency_presentation"`
	SuggestedDepartment string              `json:"suggested_department"`
	Downloads           []string            `json:"downloads,omitempty"`
}

func newReportView(r report.Report) reportView {
	if r.Attachments == nil {
		r.Attachments = []report.Attachment{}
	}
	return reportView{
		Report:              r,
		CategoryLabel:       r.Category.Label(),
		StatusPresentation:  r.Status.Presentation(),
		UrgencyPresentation: r.Urgency.Presentation(),
		SuggestedDepartment: r.Category.SuggestedDepartment(),
	}
}

type trackEntry struct {
	Status report.Status `json:"status"`
	Label  string        `json:"label"`
	At     time.Time     `json:"at"`
	Note   string        `json:"note,omitempty"`
}

// trackView is the public projection shown on the tracking page.
type trackView struct {
	TrackingCode       string              `json:"tracking_code"`
	Title              string              `json:"title"`
	Category           report.Category     `json:"category"`
	CategoryLabel      string              `json:"category_label"`
	Status             report.Status       `json:"status"`
	StatusPresentation report.Presentation `json:"status_presentation"`
	Urgency            report.Urgency      `json:"urgency"`
	AssignedDepartment string              `json:"assigned_department,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	ResolvedAt         *time.Time          `json:"resolved_at,omitempty"`
	History            []trackEntry        `json:"history"`
}

func newTrackView(r report.Report) trackView {
	history := make([]trackEntry, 0, len(r.History))
	for _, e := range r.History {
		history = append(history, trackEntry{
			Status: e.Status,
			Label:  e.Status.Presentation().Label,
			At:     e.At,
			Note:   e.Note,
		})
	}
	return trackView{
		TrackingCode:       r.TrackingCode,
		Title:              r.Title,
		Category:           r.Category,
		CategoryLabel:      r.Category.Label(),
		Status:             r.Status,
		StatusPresentation: r.Status.Presentation(),
		Urgency:            r.Urgency,
		AssignedDepartment: r.AssignedDepartment,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		ResolvedAt:         r.ResolvedAt,
		History:            history,
	}
}

func (h *Handler) createReport(w http.ResponseWriter, r *http.Request) {
	var input createReportRequest
	if !h.decode(w, r, &input) {
		return
	}

	attachments := make([]report.Attachment, 0, len(input.Attachments))
	for _, a := range input.Attachments {
		attachments = append(attachments, report.Attachment{Kind: report.AttachmentKind(a.Kind), URL: a.URL})
	}

	created, err := h.reports.Submit(r.Context(), middleware.ActorFromContext(r.Context()), report.Submission{
		Category:    input.Category,
		Title:       input.Title,
		Description: input.Description,
		Location:    input.Location,
		Urgency:     input.Urgency,
		Attachments: attachments,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.Success(w, http.StatusCreated, "Report submitted successfully", map[string]interface{}{
		"id":            created.ID,
		"tracking_code": created.TrackingCode,
		"status":        created.Status,
		"created_at":    created.CreatedAt,
	})
}

func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	c, ok := parseCriteria(w, r)
	if !ok {
		return
	}

	reports, err := h.reports.List(r.Context(), middleware.ActorFromContext(r.Context()), c)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	views := make([]reportView, 0, len(reports))
	for _, rep := range reports {
		views = append(views, newReportView(rep))
	}
	response.Success(w, http.StatusOK, "Reports fetched successfully", views)
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reports.Get(r.Context(), middleware.ActorFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	view := newReportView(rep)
	for _, a := range rep.Attachments {
		u, err := h.media.PresignDownload(r.Context(), a.URL)
		if err != nil {
			h.log.DebugContext(r.Context(), "attachment not in media bucket", "report_id", rep.ID, "error", err)
			continue
		}
		view.Downloads = append(view.Downloads, u)
	}
	response.Success(w, http.StatusOK, "Report fetched successfully", view)
}

func (h *Handler) editReport(w http.ResponseWriter, r *http.Request) {
	var input editReportRequest
	if !h.decode(w, r, &input) {
		return
	}

	edited, err := h.reports.Edit(r.Context(), middleware.ActorFromContext(r.Context()), r.PathValue("id"), report.Edit{
		Title:       input.Title,
		Description: input.Description,
		Location:    input.Location,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, "Report updated", newTrackView(edited))
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var input statusRequest
	if !h.decode(w, r, &input) {
		return
	}
	to, err := report.ParseStatus(input.Status)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid status", err.Error())
		return
	}

	updated, err := h.reports.Transition(r.Context(), middleware.ActorFromContext(r.Context()), r.PathValue("id"), to, input.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, "Report status updated", newReportView(updated))
}

func (h *Handler) reassign(w http.ResponseWriter, r *http.Request) {
	var input reassignRequest
	if !h.decode(w, r, &input) {
		return
	}

	updated, err := h.reports.Reassign(r.Context(), middleware.ActorFromContext(r.Context()), r.PathValue("id"), input.Department, input.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, "Report reassigned", newReportView(updated))
}

func (h *Handler) track(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reports.Track(r.Context(), middleware.ActorFromContext(r.Context()), r.PathValue("code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, "Report found", newTrackView(rep))
}

func (h *Handler) presignUpload(w http.ResponseWriter, r *http.Request) {
	var input uploadRequest
	if !h.decode(w, r, &input) {
		return
	}

	up, err := h.media.PresignUpload(r.Context(), input.ContentType)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedType) {
			response.Error(w, http.StatusUnsupportedMediaType, "Only photos and videos can be attached", err.Error())
			return
		}
		h.fail(w, r, err)
		return
	}
	response.Success(w, http.StatusCreated, "Upload URL created", up)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	c, ok := parseCriteria(w, r)
	if !ok {
		return
	}

	stats, err := h.reports.Stats(r.Context(), middleware.ActorFromContext(r.Context()), c)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, "Statistics retrieved", stats)
}

type option struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

// meta lists the enum values and their labels so clients never hardcode them.
func (h *Handler) meta(w http.ResponseWriter, r *http.Request) {
	categories := make([]option, 0, len(report.Categories()))
	for _, c := range report.Categories() {
		categories = append(categories, option{Value: string(c), Label: c.Label()})
	}
	statuses := make([]option, 0, len(report.Statuses()))
	for _, s := range report.Statuses() {
		p := s.Presentation()
		statuses = append(statuses, option{Value: string(s), Label: p.Label, Color: p.Color})
	}
	urgencies := make([]option, 0, len(report.Urgencies()))
	for _, u := range report.Urgencies() {
		p := u.Presentation()
		urgencies = append(urgencies, option{Value: string(u), Label: p.Label, Color: p.Color})
	}

	response.Success(w, http.StatusOK, "Metadata", map[string]interface{}{
		"categories": categories,
		"statuses":   statuses,
		"urgencies":  urgencies,
	})
}

func parseCriteria(w http.ResponseWriter, r *http.Request) (report.Criteria, bool) {
	q := r.URL.Query()
	c := report.Criteria{
		Department: q.Get("department"),
		SearchText: q.Get("q"),
	}

	if v := q.Get("status"); v != "" && !strings.EqualFold(v, report.All) {
		s, err := report.ParseStatus(v)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid status filter", err.Error())
			return c, false
		}
		c.Status = s
	}
	if v := q.Get("category"); v != "" && !strings.EqualFold(v, report.All) {
		cat, err := report.ParseCategory(v)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid category filter", err.Error())
			return c, false
		}
		c.Category = cat
	}
	if v := q.Get("urgency"); v != "" && !strings.EqualFold(v, report.All) {
		u, err := report.ParseUrgency(v)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid urgency filter", err.Error())
			return c, false
		}
		c.Urgency = u
	}
	return c, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", err.Error())
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, _ := response.FromError(err)
	if code == http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "request failed",
			"trace_id", middleware.GetTraceID(r),
			"path", r.URL.Path,
			"error", err,
		)
	}
	response.Fail(w, err)
}
