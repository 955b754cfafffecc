package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"campus-issue-reporting/pkg/auth"
	"campus-issue-reporting/pkg/middleware"
	"campus-issue-reporting/pkg/report"
	"campus-issue-reporting/pkg/response"
)

const keepAliveInterval = 25 * time.Second

type Handler struct {
	hub    *Hub
	tokens *auth.TokenManager
	log    *slog.Logger
}

func NewHandler(hub *Hub, tokens *auth.TokenManager, log *slog.Logger) *Handler {
	return &Handler{hub: hub, tokens: tokens, log: log}
}

func (h *Handler) Routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /health", h.health)
	api.Handle("GET /metrics", middleware.GetMetricsHandler())
	apiHandler := middleware.Chain(api,
		middleware.TraceMiddleware,
		middleware.MetricsMiddleware,
		middleware.LoggerMiddleware,
	)

	// The stream bypasses the access log: it would only be written when the client leaves.
	root := http.NewServeMux()
	root.Handle("GET /notifications/subscribe", middleware.TraceMiddleware(http.HandlerFunc(h.subscribe)))
	root.Handle("/", apiHandler)
	return root
}

// authenticate accepts a session token (staff, officers, registered citizens) or a
// verification token (reporters who confirmed a contact). EventSource cannot set headers,
// so both may come as query parameters.
func (h *Handler) authenticate(r *http.Request) (report.Actor, error) {
	session := r.URL.Query().Get("token")
	if session == "" {
		session, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if session != "" {
		claims, err := h.tokens.Parse(session)
		if err != nil {
			return report.Actor{}, err
		}
		return claims.Actor(), nil
	}

	v := r.URL.Query().Get("verification_token")
	if v == "" {
		v = r.Header.Get(middleware.VerificationHeader)
	}
	if v != "" {
		claims, err := h.tokens.ParseVerification(v)
		if err != nil {
			return report.Actor{}, err
		}
		return claims.Actor(), nil
	}

	return report.Actor{}, auth.ErrInvalidToken
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	actor, err := h.authenticate(r)
	if err != nil || actor.Role == report.RoleAnonymous {
		response.Error(w, http.StatusUnauthorized, "Unauthorized", "A valid token is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.Error(w, http.StatusInternalServerError, "Streaming unsupported", "")
		return
	}

	client, unsubscribe, err := h.hub.Subscribe(r.Context(), actor)
	if err != nil {
		response.Error(w, http.StatusServiceUnavailable, "Notifications unavailable", "")
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	fmt.Fprintf(w, "data: %s\n\n", `{"type":"connected","message":"Connection established"}`)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case n, ok := <-client.send:
			if !ok {
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				h.log.Warn("failed to encode notification", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Type, data)
			flusher.Flush()
		}
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":            "UP",
		"service":           serviceName,
		"connected_clients": h.hub.Clients(),
	})
}
