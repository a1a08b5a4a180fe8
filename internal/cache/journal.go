package cache

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/google/uuid"
	"github.com/jmgilman/go/fs/core"
)

// Journal persists the cache index between runs.
type Journal interface {
	// Load returns every persisted entry. A journal that has never been
	// saved returns no entries and no error.
	Load(ctx context.Context) ([]*IndexEntry, error)
	// Save replaces the persisted index with entries.
	Save(ctx context.Context, entries []*IndexEntry) error
	// Close releases any handle held by the journal.
	Close() error
}

// FileJournal stores the index as JSON lines on a core.FS, one entry per
// line, rewritten atomically on every Save.
type FileJournal struct {
	fs   core.FS
	path string
}

// NewFileJournal creates a journal at p.
func NewFileJournal(fsys core.FS, p string) *FileJournal {
	return &FileJournal{fs: fsys, path: p}
}

// Load reads the journal. Lines that fail to decode are skipped.
func (j *FileJournal) Load(ctx context.Context) ([]*IndexEntry, error) {
	data, err := j.fs.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	var entries []*IndexEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var entry IndexEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if entry.Digest == "" || entry.Key.Validate() != nil {
			continue
		}
		entries = append(entries, &entry)

		if lineNum%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("context cancelled during journal load: %w", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading journal: %w", err)
	}
	return entries, nil
}

// Save writes entries sorted by digest to a temp file and renames it over
// the journal.
func (j *FileJournal) Save(ctx context.Context, entries []*IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	sorted := make([]*IndexEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].Digest < sorted[b].Digest })

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, entry := range sorted {
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("failed to marshal journal entry: %w", err)
		}
	}

	if err := j.fs.MkdirAll(path.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}
	tempPath := j.path + "." + uuid.NewString() + ".tmp"
	if err := j.fs.WriteFile(tempPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	if err := j.fs.Rename(tempPath, j.path); err != nil {
		_ = j.fs.Remove(tempPath)
		return fmt.Errorf("failed to rename journal: %w", err)
	}
	return nil
}

// Close is a no-op.
func (j *FileJournal) Close() error {
	return nil
}
