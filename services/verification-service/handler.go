package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"campus-issue-reporting/pkg/auth"
	"campus-issue-reporting/pkg/middleware"
	"campus-issue-reporting/pkg/response"
	"campus-issue-reporting/pkg/verification"
)

type Handler struct {
	svc      *verification.Service
	validate *validator.Validate
	log      *slog.Logger
}

func NewHandler(svc *verification.Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, validate: validator.New(), log: log}
}

func (h *Handler) Routes(health http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/verify/send", h.send)
	mux.HandleFunc("POST /api/verify/confirm", h.confirm)
	mux.HandleFunc("POST /api/verify/id", h.checkID)
	mux.HandleFunc("GET /api/verify/session", h.session)
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

type sendRequest struct {
	Channel string `json:"channel" validate:"required,oneof=phone email"`
	Target  string `json:"target" validate:"required,max=254"`
}

type confirmRequest struct {
	Channel string `json:"channel" validate:"required,oneof=phone email"`
	Target  string `json:"target" validate:"required,max=254"`
	Code    string `json:"code" validate:"required,len=6,numeric"`
}

type idRequest struct {
	Type   string `json:"type" validate:"required,oneof=aadhaar pan passport visa"`
	Number string `json:"number" validate:"required,max=20"`
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	var input sendRequest
	if !h.decode(w, r, &input) {
		return
	}

	sent, err := h.svc.Send(r.Context(), verification.Channel(input.Channel), input.Target)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, "Verification code sent", sent)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	var input confirmRequest
	if !h.decode(w, r, &input) {
		return
	}

	confirmed, err := h.svc.Confirm(r.Context(), verification.Channel(input.Channel), input.Target, input.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, "Contact verified", confirmed)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(middleware.VerificationHeader)
	if token == "" {
		response.Error(w, http.StatusUnauthorized, "Unauthorized", "Missing verification token")
		return
	}

	session, err := h.svc.Session(token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, "Verification session", session)
}

func (h *Handler) checkID(w http.ResponseWriter, r *http.Request) {
	var input idRequest
	if !h.decode(w, r, &input) {
		return
	}

	if _, err := verification.ValidateID(verification.IDType(input.Type), input.Number); err != nil {
		response.Error(w, http.StatusUnprocessableEntity, "Document number is not valid", err.Error())
		return
	}
	response.Success(w, http.StatusOK, "Document number format is valid", map[string]interface{}{
		"type":  input.Type,
		"valid": true,
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, verification.ErrInvalidTarget):
		response.Error(w, http.StatusBadRequest, "Invalid contact", err.Error())
	case errors.Is(err, verification.ErrCodeInvalid):
		response.Error(w, http.StatusUnauthorized, "Invalid or expired code", "")
	case errors.Is(err, auth.ErrInvalidToken):
		response.Error(w, http.StatusUnauthorized, "Unauthorized", "Invalid or expired verification token")
	case errors.Is(err, verification.ErrTooManyAttempts), errors.Is(err, verification.ErrTooManySends):
		response.Error(w, http.StatusTooManyRequests, "Too many requests", err.Error())
	default:
		h.log.ErrorContext(r.Context(), "verification failed", "trace_id", middleware.GetTraceID(r), "error", err)
		response.Error(w, http.StatusInternalServerError, "Internal server error", "")
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 16<<10)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", "")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation failed", err.Error())
		return false
	}
	return true
}
