package ticketstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/ragdesk/internal/ticket"
)

type fakeSheetsAPI struct {
	values  [][]any
	writes  map[string][][]any
	readErr error
}

func (f *fakeSheetsAPI) Read(_ context.Context, _, _ string) ([][]any, error) {
	return f.values, f.readErr
}

func (f *fakeSheetsAPI) Write(_ context.Context, _, writeRange string, rows [][]any) error {
	if f.writes == nil {
		f.writes = make(map[string][][]any)
	}
	f.writes[writeRange] = rows
	return nil
}

func TestSheetsStore_List(t *testing.T) {
	api := &fakeSheetsAPI{values: [][]any{
		{"ticket_id", "content", "category", "status", "timestamp", "reporter"},
		{"T1", "cracked screen", "", "", "2026-03-01T10:00:00Z", "alice"},
		{"T2", "refund request", "billing", "categorized", "2026-03-02T11:00:00Z", "bob"},
	}}
	store := NewSheetsStore(api, "sheet-id", "Tickets")

	tickets, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, ticket.StatusOpen, tickets[0].Status)
	assert.Equal(t, ticket.StatusCategorized, tickets[1].Status)
	assert.Equal(t, "billing", tickets[1].Category)
}

func TestSheetsStore_ListMissingColumn(t *testing.T) {
	api := &fakeSheetsAPI{values: [][]any{
		{"ticket_id", "category", "status"},
		{"T1", "", ""},
	}}
	store := NewSheetsStore(api, "sheet-id", "Tickets")

	_, err := store.List(context.Background())
	assert.True(t, errors.Is(err, ticket.ErrSchema))
}

func TestSheetsStore_ListBadRow(t *testing.T) {
	api := &fakeSheetsAPI{values: [][]any{
		{"ticket_id", "content", "status"},
		{"T1", "fine", "bogus-status"},
	}}
	store := NewSheetsStore(api, "sheet-id", "Tickets")

	_, err := store.List(context.Background())
	assert.True(t, errors.Is(err, ticket.ErrSchema))
}

func TestSheetsStore_PutRewritesRow(t *testing.T) {
	api := &fakeSheetsAPI{values: [][]any{
		{"ticket_id", "content", "category", "status", "timestamp", "reporter"},
		{"T1", "cracked screen", "", "", "2026-03-01T10:00:00Z", "alice"},
	}}
	store := NewSheetsStore(api, "sheet-id", "Tickets")

	tickets, err := store.List(context.Background())
	require.NoError(t, err)
	tk := tickets[0]
	tk.Status = ticket.StatusResolved
	tk.Category = "product_defect"
	tk.ResolutionText = "replace the panel"
	require.NoError(t, store.Put(context.Background(), tk))

	rows, ok := api.writes["Tickets!A2"]
	require.True(t, ok, "expected a write to row 2")
	require.Len(t, rows, 1)
	assert.Equal(t, "T1", rows[0][0])
	assert.Equal(t, "product_defect", rows[0][2])
	assert.Equal(t, "resolved", rows[0][3])
}

func TestSheetsStore_PutWritesResolutionAndFailureColumns(t *testing.T) {
	api := &fakeSheetsAPI{values: [][]any{
		{"ticket_id", "content", "status", "resolution_text", "rollback_to", "attempts", "last_error"},
		{"T1", "cracked screen", "categorized", "", "", "", ""},
	}}
	store := NewSheetsStore(api, "sheet-id", "Tickets")
	ctx := context.Background()

	tickets, err := store.List(ctx)
	require.NoError(t, err)
	tk := tickets[0]
	tk.Status = ticket.StatusResolved
	tk.ResolutionText = "replace the panel"
	require.NoError(t, store.Put(ctx, tk))

	rows := api.writes["Tickets!A2"]
	require.Len(t, rows, 1)
	assert.Equal(t, "replace the panel", rows[0][3])

	fail := tickets[0]
	fail.Status = ticket.StatusFailed
	fail.RollbackTo = ticket.StatusCategorized
	fail.Attempts = 2
	fail.LastError = "model timeout"
	require.NoError(t, store.Put(ctx, fail))

	rows = api.writes["Tickets!A2"]
	require.Len(t, rows, 1)
	assert.Equal(t, "categorized", rows[0][4])
	assert.Equal(t, "2", rows[0][5])
	assert.Equal(t, "model timeout", rows[0][6])
}

func TestSheetsStore_ListReadsBookkeepingColumns(t *testing.T) {
	api := &fakeSheetsAPI{values: [][]any{
		{"ticket_id", "content", "status", "resolution_text", "rollback_to", "attempts", "last_error"},
		{"T1", "cracked screen", "failed", "", "categorized", "2", "model timeout"},
		{"T2", "refund request", "resolved", "refund approved", "", "", ""},
	}}
	store := NewSheetsStore(api, "sheet-id", "Tickets")

	tickets, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, ticket.StatusCategorized, tickets[0].RollbackTo)
	assert.Equal(t, 2, tickets[0].Attempts)
	assert.Equal(t, "model timeout", tickets[0].LastError)
	assert.Equal(t, "refund approved", tickets[1].ResolutionText)
}

func TestSheetsStore_ConcurrentGets(t *testing.T) {
	values := [][]any{
		{"ticket_id", "content", "status"},
	}
	for i := 0; i < 10; i++ {
		values = append(values, []any{fmt.Sprintf("T%d", i), "content", "open"})
	}
	api := &fakeSheetsAPI{values: values}
	store := NewSheetsStore(api, "sheet-id", "Tickets")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("T%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := store.Get(context.Background(), id)
			assert.NoError(t, err)
			assert.Equal(t, id, got.ID)
		}()
	}
	wg.Wait()
}
