package ticketstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/bull/ragdesk/internal/ticket"
)

// requiredColumns must appear in the header row of a ticket spreadsheet.
// Optional columns (category, timestamp, reporter, resolution_text,
// rollback_to, attempts, last_error) are read and written when present.
var requiredColumns = []string{"ticket_id", "content", "status"}

// SheetsAPI is the slice of the Sheets service the store needs. It exists so
// tests can substitute a fake without a live spreadsheet.
type SheetsAPI interface {
	Read(ctx context.Context, spreadsheetID, readRange string) ([][]any, error)
	Write(ctx context.Context, spreadsheetID, writeRange string, rows [][]any) error
}

// NewSheetsService creates a Sheets API service from a credentials file.
func NewSheetsService(ctx context.Context, credentialsPath string) (*sheets.Service, error) {
	svc, err := sheets.NewService(ctx, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}
	return svc, nil
}

type liveSheetsAPI struct {
	svc *sheets.Service
}

// WrapSheetsService adapts a real Sheets service to the SheetsAPI interface.
func WrapSheetsService(svc *sheets.Service) SheetsAPI {
	return &liveSheetsAPI{svc: svc}
}

func (a *liveSheetsAPI) Read(ctx context.Context, spreadsheetID, readRange string) ([][]any, error) {
	resp, err := a.svc.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("reading range %s: %w", readRange, err)
	}
	return resp.Values, nil
}

func (a *liveSheetsAPI) Write(ctx context.Context, spreadsheetID, writeRange string, rows [][]any) error {
	vr := &sheets.ValueRange{Values: rows}
	_, err := a.svc.Spreadsheets.Values.Update(spreadsheetID, writeRange, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("writing range %s: %w", writeRange, err)
	}
	return nil
}

// SheetsStore reads tickets from a Google Sheets spreadsheet. The first row
// is a header naming columns in any order. Put rewrites the whole mapped
// ticket row in place. Safe for concurrent use: resolver workers call
// Get/Put in parallel across ticket ids.
type SheetsStore struct {
	api           SheetsAPI
	spreadsheetID string
	sheetName     string

	// mu guards rowByID and cols, which are refreshed on every List.
	mu sync.Mutex
	// rowByID maps ticket IDs to 1-based sheet row numbers.
	rowByID map[string]int
	cols    map[string]int
}

// NewSheetsStore creates a store over one sheet of a spreadsheet.
func NewSheetsStore(api SheetsAPI, spreadsheetID, sheetName string) *SheetsStore {
	return &SheetsStore{
		api:           api,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		rowByID:       make(map[string]int),
	}
}

func (s *SheetsStore) List(ctx context.Context) ([]*ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(ctx)
}

// listLocked reloads the sheet and refreshes the column and row maps.
// Callers must hold s.mu.
func (s *SheetsStore) listLocked(ctx context.Context) ([]*ticket.Ticket, error) {
	values, err := s.api.Read(ctx, s.spreadsheetID, s.sheetName)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: sheet %s has no header row", ticket.ErrSchema, s.sheetName)
	}

	s.cols = make(map[string]int, len(values[0]))
	for i, cell := range values[0] {
		s.cols[fmt.Sprint(cell)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := s.cols[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ticket.ErrSchema, name)
		}
	}

	var tickets []*ticket.Ticket
	for i, row := range values[1:] {
		t, err := ticket.FromRow(s.rowMap(row))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		s.fillBookkeeping(t, row)
		s.rowByID[t.ID] = i + 2
		tickets = append(tickets, t)
	}
	return tickets, nil
}

func (s *SheetsStore) Get(ctx context.Context, id string) (*ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tickets, err := s.listLocked(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tickets {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ticket.ErrNotFound, id)
}

func (s *SheetsStore) Put(ctx context.Context, t *ticket.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rowNum, ok := s.rowByID[t.ID]
	if !ok {
		// Unknown ticket: reload the sheet to find or append it.
		if _, err := s.listLocked(ctx); err != nil {
			return err
		}
		rowNum, ok = s.rowByID[t.ID]
		if !ok {
			rowNum = len(s.rowByID) + 2
			s.rowByID[t.ID] = rowNum
		}
	}

	row := make([]any, len(s.cols))
	set := func(name string, value any) {
		if i, ok := s.cols[name]; ok {
			row[i] = value
		}
	}
	set("ticket_id", t.ID)
	set("content", t.Content)
	set("category", t.Category)
	set("status", string(t.Status))
	set("reporter", t.Reporter)
	set("resolution_text", t.ResolutionText)
	set("rollback_to", string(t.RollbackTo))
	set("attempts", strconv.Itoa(t.Attempts))
	set("last_error", t.LastError)
	ts := t.UpdatedAt
	if ts.IsZero() {
		ts = t.CreatedAt
	}
	set("timestamp", ts.UTC().Format(time.RFC3339))

	writeRange := fmt.Sprintf("%s!A%d", s.sheetName, rowNum)
	return s.api.Write(ctx, s.spreadsheetID, writeRange, [][]any{row})
}

func (s *SheetsStore) rowMap(row []any) map[string]string {
	m := make(map[string]string, len(s.cols))
	for name, i := range s.cols {
		if i < len(row) {
			m[name] = fmt.Sprint(row[i])
		}
	}
	return m
}

// fillBookkeeping reads the optional resolution and failure columns that
// FromRow, which validates only the boundary schema, does not cover.
func (s *SheetsStore) fillBookkeeping(t *ticket.Ticket, row []any) {
	m := s.rowMap(row)
	t.ResolutionText = m["resolution_text"]
	t.LastError = m["last_error"]
	if raw := m["rollback_to"]; raw != "" {
		if status, err := ticket.ParseStatus(raw); err == nil {
			t.RollbackTo = status
		}
	}
	if raw := m["attempts"]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			t.Attempts = n
		}
	}
}
