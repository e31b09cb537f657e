package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 1 << 20

// LocalBackend appends records to one JSONL file per document. Appends to
// the same document are serialized; different documents never contend.
type LocalBackend struct {
	dir   string
	locks sync.Map // int64 -> *sync.Mutex
}

// NewLocalBackend creates dir if needed.
func NewLocalBackend(dir string) (*LocalBackend, error) {
	if dir == "" {
		return nil, errors.New("audit: local directory must be set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create local directory: %w", err)
	}
	return &LocalBackend{dir: dir}, nil
}

func (b *LocalBackend) Name() string { return "local" }

// Dir is the directory records are written to.
func (b *LocalBackend) Dir() string { return b.dir }

func (b *LocalBackend) lock(documentID int64) *sync.Mutex {
	mu, _ := b.locks.LoadOrStore(documentID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (b *LocalBackend) path(documentID int64) string {
	return filepath.Join(b.dir, fmt.Sprintf("historico_%d.jsonl", documentID))
}

// legacyPath is the JSON array file of the previous system.
func (b *LocalBackend) legacyPath(documentID int64) string {
	return filepath.Join(b.dir, fmt.Sprintf("historico_local_%d.json", documentID))
}

// Append writes rec as one line. The line is complete on disk before
// Append returns.
func (b *LocalBackend) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: encode record: %w", err)
	}
	data = append(data, '\n')

	mu := b.lock(rec.DocumentID)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(b.path(rec.DocumentID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open local file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("audit: write local file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("audit: sync local file: %w", err)
	}
	return f.Close()
}

// List returns legacy records first, then JSONL records in append order.
// Unparseable lines are skipped and logged.
func (b *LocalBackend) List(ctx context.Context, documentID int64) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mu := b.lock(documentID)
	mu.Lock()
	defer mu.Unlock()

	records, err := b.readLegacy(documentID)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(b.path(documentID))
	if errors.Is(err, os.ErrNotExist) {
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: open local file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			slog.Warn("skipping unreadable audit line",
				"document_id", documentID,
				"line", line,
				"error", err,
			)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: read local file: %w", err)
	}
	return records, nil
}

func (b *LocalBackend) readLegacy(documentID int64) ([]Record, error) {
	data, err := os.ReadFile(b.legacyPath(documentID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: read legacy file: %w", err)
	}

	var legacy []legacyRecord
	if err := json.Unmarshal(data, &legacy); err != nil {
		slog.Warn("ignoring unreadable legacy audit file",
			"document_id", documentID,
			"error", err,
		)
		return nil, nil
	}

	records := make([]Record, 0, len(legacy))
	for i, l := range legacy {
		records = append(records, l.toRecord(documentID, i))
	}
	return records, nil
}
