package ticket

import "errors"

var (
	// ErrSchema indicates a raw ticket row that fails boundary validation.
	ErrSchema = errors.New("ticket row failed schema validation")

	// ErrNotFound indicates the ticket id is unknown to the store.
	ErrNotFound = errors.New("ticket not found")

	// ErrClassification indicates the categorization model call failed
	// after retries were exhausted.
	ErrClassification = errors.New("classification failed")

	// ErrTicketConflict indicates a concurrent state transition was detected
	// for the same ticket id.
	ErrTicketConflict = errors.New("concurrent ticket transition detected")

	// ErrTransition indicates an operation invalid for the current status.
	ErrTransition = errors.New("invalid ticket transition")

	// ErrRetriesExhausted indicates the bounded retry budget is spent.
	ErrRetriesExhausted = errors.New("ticket retry budget exhausted")
)
