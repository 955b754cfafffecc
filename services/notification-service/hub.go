package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"campus-issue-reporting/pkg/report"
)

// Notification is what subscribers receive. It never carries the reporter reference.
type Notification struct {
	Type         report.EventType `json:"type"`
	ReportID     string           `json:"report_id"`
	TrackingCode string           `json:"tracking_code"`
	Title        string           `json:"title"`
	Status       report.Status    `json:"status"`
	StatusLabel  string           `json:"status_label"`
	Category     report.Category  `json:"category"`
	Department   string           `json:"department,omitempty"`
	Message      string           `json:"message"`
	CreatedAt    time.Time        `json:"created_at"`
}

func newNotification(e report.Event) Notification {
	label := e.Status.Presentation().Label
	var msg string
	switch e.Type {
	case report.EventCreated:
		msg = fmt.Sprintf("New %s report: %s", e.Category.Label(), e.Title)
	case report.EventStatusChanged:
		msg = fmt.Sprintf("Report %s is now %s", e.TrackingCode, label)
	case report.EventAssigned:
		msg = fmt.Sprintf("Report %s was assigned to %s", e.TrackingCode, e.Department)
	default:
		msg = fmt.Sprintf("Report %s was updated", e.TrackingCode)
	}
	if e.Note != "" {
		msg += ": " + e.Note
	}

	return Notification{
		Type:         e.Type,
		ReportID:     e.ReportID,
		TrackingCode: e.TrackingCode,
		Title:        e.Title,
		Status:       e.Status,
		StatusLabel:  label,
		Category:     e.Category,
		Department:   e.Department,
		Message:      msg,
		CreatedAt:    e.OccurredAt,
	}
}

// shouldDeliver decides who hears about an event. Reporters follow their own reports; staff
// see everything; officers see their department, or the suggested one while unassigned.
func shouldDeliver(actor report.Actor, e report.Event) bool {
	switch actor.Role {
	case report.RoleStaff:
		return true
	case report.RoleOfficer:
		dept := e.Department
		if dept == "" {
			dept = e.Category.SuggestedDepartment()
		}
		return actor.Department != "" && strings.EqualFold(strings.TrimSpace(actor.Department), dept)
	case report.RoleCitizen:
		return e.Type == report.EventStatusChanged && actor.Ref != "" && actor.Ref == e.ReporterRef
	default:
		return false
	}
}

var errHubStopped = errors.New("notification hub stopped")

type Client struct {
	actor report.Actor
	send  chan Notification
}

// Hub fans events out to connected subscribers. A single goroutine owns the client set.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan report.Event
	done       chan struct{}
	count      int
	mu         sync.RWMutex
	log        *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan report.Event, 100),
		done:       make(chan struct{}),
		log:        log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.setCount(0)
			return

		case c := <-h.register:
			h.clients[c] = true
			h.setCount(len(h.clients))
			h.log.Info("client registered", "role", c.actor.Role, "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.setCount(len(h.clients))
			h.log.Info("client unregistered", "role", c.actor.Role, "clients", len(h.clients))

		case e := <-h.broadcast:
			n := newNotification(e)
			for c := range h.clients {
				if !shouldDeliver(c.actor, e) {
					continue
				}
				select {
				case c.send <- n:
				default:
					h.log.Warn("subscriber too slow, dropping notification", "report_id", e.ReportID)
				}
			}
		}
	}
}

// Subscribe registers a client; the returned func unregisters it.
func (h *Hub) Subscribe(ctx context.Context, actor report.Actor) (*Client, func(), error) {
	c := &Client{actor: actor, send: make(chan Notification, 10)}
	select {
	case h.register <- c:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-h.done:
		return nil, nil, errHubStopped
	}
	return c, func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}, nil
}

// Publish queues an event for fan-out. It has the signature of a queue handler.
func (h *Hub) Publish(ctx context.Context, e report.Event) error {
	select {
	case h.broadcast <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return errHubStopped
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}
