// Package history keeps an append-only log of question/answer exchanges.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Entry is one recorded exchange.
type Entry struct {
	AskedAt   time.Time `json:"asked_at"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Citations []string  `json:"citations,omitempty"`
	Grounded  bool      `json:"grounded"`
}

// Log persists entries as a JSON array on disk. A corrupt existing file is
// logged and replaced rather than blocking new exchanges.
type Log struct {
	path   string
	logger *slog.Logger
}

// NewLog creates a log at path. The file is created on first Append.
func NewLog(path string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{path: path, logger: logger}
}

// List returns all recorded entries, oldest first.
func (l *Log) List() ([]Entry, error) {
	entries, err := l.read()
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Append records an exchange. The write is atomic so a crash never leaves a
// half-written log behind.
func (l *Log) Append(entry Entry) error {
	entries, err := l.read()
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

func (l *Log) read() ([]Entry, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		l.logger.Warn("history file corrupt, starting fresh", "path", l.path, "error", err)
		return nil, nil
	}
	return entries, nil
}
