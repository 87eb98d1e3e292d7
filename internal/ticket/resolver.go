package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bull/ragdesk/internal/answer"
	"github.com/bull/ragdesk/internal/index"
	"github.com/bull/ragdesk/internal/notify"
	"github.com/bull/ragdesk/internal/retriever"
)

// DefaultMaxRetries bounds how often a failed ticket may be retried.
const DefaultMaxRetries = 3

// DefaultWorkers bounds concurrent ticket processing in ProcessPending.
const DefaultWorkers = 4

// lowConfidenceMarker prefixes resolutions produced without grounded
// context. Such tickets still resolve, but are flagged for human review.
const lowConfidenceMarker = "[low confidence, needs human review] "

// Resolver drives tickets through categorize -> retrieve -> resolve ->
// update. Tickets are processed concurrently across distinct ids with
// at-most-one in-flight transition per ticket id.
type Resolver struct {
	store      Store
	classifier Classifier
	retriever  *retriever.Retriever
	synth      *answer.Synthesizer
	notifier   notify.Notifier
	logger     *slog.Logger

	maxRetries int
	topK       int
	threshold  float64
	workers    int

	mu    sync.Mutex
	locks map[string]*ticketLock
}

// ticketLock is a refcounted per-ticket mutex. Entries leave the lock map
// when the last holder or contender releases, so a long-lived poller does
// not accumulate one entry per ticket id ever seen.
type ticketLock struct {
	mu   sync.Mutex
	refs int
}

// ResolverOption configures the Resolver.
type ResolverOption func(*Resolver)

// WithMaxRetries overrides the retry budget for failed tickets.
func WithMaxRetries(n int) ResolverOption {
	return func(r *Resolver) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithRetrieval overrides the top-k and score threshold used when
// retrieving context for a ticket.
func WithRetrieval(topK int, threshold float64) ResolverOption {
	return func(r *Resolver) {
		if topK > 0 {
			r.topK = topK
		}
		r.threshold = threshold
	}
}

// WithWorkers overrides the ProcessPending concurrency bound.
func WithWorkers(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.workers = n
		}
	}
}

// NewResolver wires the state machine to its collaborators. A nil notifier
// falls back to the structured log sink.
func NewResolver(
	store Store,
	classifier Classifier,
	ret *retriever.Retriever,
	synth *answer.Synthesizer,
	notifier notify.Notifier,
	logger *slog.Logger,
	opts ...ResolverOption,
) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = &notify.LogNotifier{Logger: logger}
	}
	r := &Resolver{
		store:      store,
		classifier: classifier,
		retriever:  ret,
		synth:      synth,
		notifier:   notifier,
		logger:     logger,
		maxRetries: DefaultMaxRetries,
		topK:       retriever.DefaultTopK,
		threshold:  retriever.DefaultScoreThreshold,
		workers:    DefaultWorkers,
		locks:      make(map[string]*ticketLock),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// acquire takes the per-ticket lock, failing with ErrTicketConflict when a
// transition for the same id is already in flight. Duplicate deliveries of
// one ticket therefore never race into divergent states.
func (r *Resolver) acquire(id string) (func(), error) {
	r.mu.Lock()
	lock, ok := r.locks[id]
	if !ok {
		lock = &ticketLock{}
		r.locks[id] = lock
	}
	lock.refs++
	r.mu.Unlock()

	if !lock.mu.TryLock() {
		r.releaseRef(id, lock)
		return nil, fmt.Errorf("%w: %s", ErrTicketConflict, id)
	}
	return func() {
		lock.mu.Unlock()
		r.releaseRef(id, lock)
	}, nil
}

func (r *Resolver) releaseRef(id string, lock *ticketLock) {
	r.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(r.locks, id)
	}
	r.mu.Unlock()
}

// Categorize moves an open ticket through categorizing to categorized.
// Calling it on a ticket already past that stage is a no-op returning the
// stored result without re-invoking the model: the external store delivers
// tickets at least once, and the model is non-deterministic across calls.
func (r *Resolver) Categorize(ctx context.Context, id string) (*Ticket, error) {
	release, err := r.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()
	return r.categorizeLocked(ctx, id)
}

func (r *Resolver) categorizeLocked(ctx context.Context, id string) (*Ticket, error) {
	t, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if t.Status.atLeast(StatusCategorized) {
		return t, nil
	}
	if t.Status == StatusFailed {
		return nil, fmt.Errorf("%w: ticket %s is failed, retry it", ErrTransition, id)
	}

	t.Status = StatusCategorizing
	t.UpdatedAt = time.Now()
	if err := r.store.Put(ctx, t); err != nil {
		return nil, fmt.Errorf("record categorizing: %w", err)
	}

	result, err := r.classifier.Classify(ctx, t.Content)
	if err != nil {
		return nil, r.fail(ctx, t, StatusOpen, err)
	}

	t.Category = result.Category
	t.Status = StatusCategorized
	t.UpdatedAt = time.Now()
	t.LastError = ""
	if err := r.store.Put(ctx, t); err != nil {
		return nil, fmt.Errorf("record category: %w", err)
	}

	r.logger.Info("ticket categorized", "ticket_id", t.ID, "category", t.Category, "confidence", result.Confidence)
	r.notifier.Notify(ctx, notify.NewEvent(t.ID, "categorized", notify.SeverityInfo))
	return t, nil
}

// Resolve moves a categorized ticket through resolving to resolved using
// the answer engine. A ticket found already in resolving is picked up and
// completed. A ticket already resolved or closed returns the stored
// resolution with no model call. An empty index or empty retrieval is not a
// failure: the ticket resolves ungrounded with a low-confidence marker.
func (r *Resolver) Resolve(ctx context.Context, id string) (*Ticket, error) {
	release, err := r.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()
	return r.resolveLocked(ctx, id)
}

func (r *Resolver) resolveLocked(ctx context.Context, id string) (*Ticket, error) {
	t, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if t.Status.Terminal() {
		return t, nil
	}
	if t.Status == StatusFailed {
		return nil, fmt.Errorf("%w: ticket %s is failed, retry it", ErrTransition, id)
	}
	// A ticket already in resolving was abandoned mid-transition (crash
	// between the status write and the resolution write); re-run synthesis
	// the same way categorizeLocked re-runs an abandoned categorizing.
	if t.Status != StatusCategorized && t.Status != StatusResolving {
		return nil, fmt.Errorf("%w: cannot resolve ticket %s in status %s", ErrTransition, id, t.Status)
	}

	t.Status = StatusResolving
	t.UpdatedAt = time.Now()
	if err := r.store.Put(ctx, t); err != nil {
		return nil, fmt.Errorf("record resolving: %w", err)
	}

	results, err := r.retriever.Retrieve(ctx, t.Content, r.topK, r.threshold)
	if err != nil {
		if !errors.Is(err, index.ErrEmptyIndex) {
			return nil, r.fail(ctx, t, StatusCategorized, err)
		}
		// No corpus at all still yields an answer, just ungrounded.
		results = nil
	}

	ans, err := r.synth.Answer(ctx, t.Content, results)
	if err != nil {
		return nil, r.fail(ctx, t, StatusCategorized, err)
	}

	t.ResolutionText = ans.Text
	if !ans.Grounded {
		t.ResolutionText = lowConfidenceMarker + ans.Text
	}
	t.Status = StatusResolved
	t.UpdatedAt = time.Now()
	t.LastError = ""
	if err := r.store.Put(ctx, t); err != nil {
		return nil, fmt.Errorf("record resolution: %w", err)
	}

	severity := notify.SeverityInfo
	if !ans.Grounded {
		severity = notify.SeverityWarning
	}
	r.logger.Info("ticket resolved", "ticket_id", t.ID, "grounded", ans.Grounded, "citations", len(ans.Citations))
	r.notifier.Notify(ctx, notify.NewEvent(t.ID, "resolved", severity))
	return t, nil
}

// Retry returns a failed ticket to the state it failed from and re-runs
// that step. The retry budget is bounded; once spent the ticket stays
// failed and queryable with its last error.
func (r *Resolver) Retry(ctx context.Context, id string) (*Ticket, error) {
	release, err := r.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	t, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusFailed {
		return nil, fmt.Errorf("%w: ticket %s is %s, not failed", ErrTransition, id, t.Status)
	}
	if t.Attempts >= r.maxRetries {
		return nil, fmt.Errorf("%w: ticket %s after %d attempts: %s", ErrRetriesExhausted, id, t.Attempts, t.LastError)
	}

	rollback := t.RollbackTo
	t.Status = rollback
	t.Attempts++
	t.UpdatedAt = time.Now()
	if err := r.store.Put(ctx, t); err != nil {
		return nil, fmt.Errorf("record retry: %w", err)
	}

	switch rollback {
	case StatusOpen:
		return r.categorizeLocked(ctx, id)
	case StatusCategorized:
		return r.resolveLocked(ctx, id)
	default:
		return nil, fmt.Errorf("%w: ticket %s has rollback target %s", ErrTransition, id, rollback)
	}
}

// Process runs a ticket end to end: categorize if needed, then resolve.
// Terminal tickets are skipped entirely (the id is the idempotency key).
func (r *Resolver) Process(ctx context.Context, id string) (*Ticket, error) {
	release, err := r.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	t, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status.Terminal() {
		return t, nil
	}

	if !t.Status.atLeast(StatusCategorized) && t.Status != StatusFailed {
		if _, err := r.categorizeLocked(ctx, id); err != nil {
			return nil, err
		}
	}
	return r.resolveLocked(ctx, id)
}

// ProcessPending processes every non-terminal ticket in the store under a
// bounded worker pool: parallel across tickets, serialized per ticket id.
// Failed tickets consume retry budget; tickets whose budget is spent are
// left failed. Returns the number of tickets that reached resolved.
func (r *Resolver) ProcessPending(ctx context.Context) (int, error) {
	tickets, err := r.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tickets: %w", err)
	}

	var mu sync.Mutex
	resolved := 0

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, t := range tickets {
		if t.Status.Terminal() {
			continue
		}
		id := t.ID
		failed := t.Status == StatusFailed
		g.Go(func() error {
			var out *Ticket
			var err error
			if failed {
				out, err = r.Retry(ctx, id)
			} else {
				out, err = r.Process(ctx, id)
			}
			if err != nil {
				// Ticket-level failures are recorded on the ticket;
				// they do not abort the batch.
				r.logger.Warn("ticket processing failed", "ticket_id", id, "error", err)
				return nil
			}
			if out.Status == StatusResolved {
				mu.Lock()
				resolved++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return resolved, err
	}
	return resolved, nil
}

// fail records the failed state with its rollback target and originating
// error, notifies the alerting sink, and returns the original error. The
// ticket stays queryable with its last error reason.
func (r *Resolver) fail(ctx context.Context, t *Ticket, rollback Status, cause error) error {
	t.Status = StatusFailed
	t.RollbackTo = rollback
	t.LastError = cause.Error()
	t.UpdatedAt = time.Now()
	if err := r.store.Put(ctx, t); err != nil {
		r.logger.Error("record failure", "ticket_id", t.ID, "error", err)
	}
	r.notifier.Notify(ctx, notify.NewEvent(t.ID, "failed", notify.SeverityError))
	return cause
}
