// Package ticket drives support tickets through a categorize/resolve state
// machine backed by the retrieval-augmented answer engine.
package ticket

import (
	"fmt"
	"time"
)

// Status is a ticket lifecycle state. Transitions are monotonic along
// open -> categorizing -> categorized -> resolving -> resolved -> closed,
// except for failed, which can be retried back into the state it failed from.
type Status string

const (
	StatusOpen         Status = "open"
	StatusCategorizing Status = "categorizing"
	StatusCategorized  Status = "categorized"
	StatusResolving    Status = "resolving"
	StatusResolved     Status = "resolved"
	StatusFailed       Status = "failed"
	StatusClosed       Status = "closed"
)

// rank orders the monotonic chain for past-stage checks. failed is outside
// the chain.
var rank = map[Status]int{
	StatusOpen:         0,
	StatusCategorizing: 1,
	StatusCategorized:  2,
	StatusResolving:    3,
	StatusResolved:     4,
	StatusClosed:       5,
}

// ParseStatus validates a raw status string. An empty value means open,
// matching rows the external store has not touched yet.
func ParseStatus(raw string) (Status, error) {
	if raw == "" {
		return StatusOpen, nil
	}
	s := Status(raw)
	if _, ok := rank[s]; !ok && s != StatusFailed {
		return "", fmt.Errorf("%w: unknown status %q", ErrSchema, raw)
	}
	return s, nil
}

// atLeast reports whether the status has reached the given chain stage.
// failed never counts as having reached anything.
func (s Status) atLeast(stage Status) bool {
	r, ok := rank[s]
	if !ok {
		return false
	}
	return r >= rank[stage]
}

// Terminal reports whether the resolver must skip the ticket entirely.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusClosed
}

// Ticket is the strongly-typed ticket entity. TicketID is the idempotency
// key: the resolver detects and skips tickets already resolved or closed.
type Ticket struct {
	ID             string
	Content        string
	Category       string // Empty until categorized
	Status         Status
	ResolutionText string // Empty until resolved
	Reporter       string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Failure bookkeeping. RollbackTo records the state a retry returns
	// the ticket to; Attempts bounds retries; LastError is kept for
	// diagnostics so failed tickets stay queryable, never silently dropped.
	RollbackTo Status
	Attempts   int
	LastError  string
}

// FromRow validates a loosely-typed row from the external ticket store into
// a Ticket. Missing required fields or an unknown status fail fast with
// ErrSchema rather than propagating untyped data.
func FromRow(row map[string]string) (*Ticket, error) {
	id := row["ticket_id"]
	if id == "" {
		return nil, fmt.Errorf("%w: missing ticket_id", ErrSchema)
	}
	content := row["content"]
	if content == "" {
		return nil, fmt.Errorf("%w: ticket %s has no content", ErrSchema, id)
	}

	status, err := ParseStatus(row["status"])
	if err != nil {
		return nil, fmt.Errorf("ticket %s: %w", id, err)
	}

	t := &Ticket{
		ID:       id,
		Content:  content,
		Category: row["category"],
		Status:   status,
		Reporter: row["reporter"],
	}
	if raw := row["timestamp"]; raw != "" {
		created, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: ticket %s has bad timestamp %q", ErrSchema, id, raw)
		}
		t.CreatedAt = created
	}
	return t, nil
}
