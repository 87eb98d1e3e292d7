// Package notify delivers fire-and-forget ticket event notifications.
// Delivery failures are logged and dropped: alerting must never block a
// ticket state transition.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Severity classifies an event for the alerting sink.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is one ticket lifecycle notification.
type Event struct {
	ID       string   `json:"id"`
	TicketID string   `json:"ticket_id"`
	Event    string   `json:"event"`
	Severity Severity `json:"severity"`
}

// Notifier consumes ticket events.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// NewEvent builds an Event with a fresh id.
func NewEvent(ticketID, name string, severity Severity) Event {
	return Event{
		ID:       uuid.New().String(),
		TicketID: ticketID,
		Event:    name,
		Severity: severity,
	}
}

// LogNotifier writes events to the structured log. The default sink.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(_ context.Context, event Event) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("ticket event",
		"ticket_id", event.TicketID,
		"event", event.Event,
		"severity", event.Severity,
	)
}

// WebhookNotifier posts events as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
	Logger *slog.Logger
}

// NewWebhookNotifier creates a webhook sink with a short request timeout so
// a slow endpoint cannot stall the caller for long.
func NewWebhookNotifier(url string, logger *slog.Logger) *WebhookNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
		Logger: logger,
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		n.Logger.Warn("notify: marshal event", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		n.Logger.Warn("notify: build request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		n.Logger.Warn("notify: deliver event", "ticket_id", event.TicketID, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.Logger.Warn("notify: sink rejected event",
			"ticket_id", event.TicketID,
			"status", fmt.Sprintf("%d", resp.StatusCode),
		)
	}
}
