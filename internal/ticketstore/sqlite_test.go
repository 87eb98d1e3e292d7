package ticketstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/ragdesk/internal/ticket"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "tickets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := &ticket.Ticket{
		ID:        "T1",
		Content:   "my screen is cracked",
		Status:    ticket.StatusOpen,
		Reporter:  "alice",
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, store.Put(ctx, in))

	out, err := store.Get(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Content, out.Content)
	assert.Equal(t, ticket.StatusOpen, out.Status)
	assert.Equal(t, "alice", out.Reporter)
	assert.True(t, created.Equal(out.CreatedAt))
}

func TestSQLiteStore_UpsertUpdates(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	tk := &ticket.Ticket{ID: "T1", Content: "broken charger", Status: ticket.StatusOpen}
	require.NoError(t, store.Put(ctx, tk))

	tk.Status = ticket.StatusFailed
	tk.RollbackTo = ticket.StatusCategorized
	tk.Attempts = 2
	tk.LastError = "model timeout"
	require.NoError(t, store.Put(ctx, tk))

	out, err := store.Get(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusFailed, out.Status)
	assert.Equal(t, ticket.StatusCategorized, out.RollbackTo)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, "model timeout", out.LastError)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := newTestSQLiteStore(t)

	_, err := store.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ticket.ErrNotFound))
}

func TestSQLiteStore_ListSorted(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, id := range []string{"T3", "T1", "T2"} {
		require.NoError(t, store.Put(ctx, &ticket.Ticket{ID: id, Content: "c", Status: ticket.StatusOpen}))
	}

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "T1", all[0].ID)
	assert.Equal(t, "T2", all[1].ID)
	assert.Equal(t, "T3", all[2].ID)
}
