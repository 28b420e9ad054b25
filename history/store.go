// Package history owns the ordered, mutable sequence of conversation records.
// Indices are dense and stable as long as no clear occurs; ReplaceRecord
// overwrites in place without shifting neighbours and there is no
// delete-in-middle operation. All mutating access happens while the
// orchestrator's exclusive lock is held; the store carries its own RWMutex so
// best-effort snapshot reads used for status reporting stay race-free.
//
// Persistence is best-effort JSON write-through: every mutation rewrites the
// backing file via a temp-file rename, and write failures are logged and
// otherwise ignored. The in-memory state remains authoritative for the
// process lifetime.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/deskagent/deskagent/core"
	"github.com/deskagent/deskagent/logging"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// Path is the JSON file backing the store. Empty disables persistence.
	Path string
	// Logger receives persistence failure diagnostics.
	Logger logging.Logger
}

// Store is the conversation history container.
type Store struct {
	mu      sync.RWMutex
	records []core.ConversationRecord
	path    string
	logger  logging.Logger
}

// New constructs a Store, loading any previously persisted records. A corrupt
// or unreadable file yields an empty store rather than an error.
func New(optFns ...func(o *Options)) *Store {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	s := &Store{path: opts.Path, logger: opts.Logger}
	s.load()
	return s
}

func (s *Store) load() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("history load failed", "path", s.path, "error", err)
		}
		return
	}
	var records []core.ConversationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn("history file corrupt, starting empty", "path", s.path, "error", err)
		return
	}
	s.records = records
}

// saveLocked persists the current records. Caller must hold the write lock.
// Failures are logged and swallowed.
func (s *Store) saveLocked() {
	if s.path == "" {
		return
	}
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		s.logger.Warn("history marshal failed", "error", err)
		return
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.logger.Warn("history save failed", "path", s.path, "error", err)
		return
	}
	tmp, err := os.CreateTemp(dir, ".history-*")
	if err != nil {
		s.logger.Warn("history save failed", "path", s.path, "error", err)
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		s.logger.Warn("history save failed", "path", s.path, "error", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		s.logger.Warn("history save failed", "path", s.path, "error", err)
		return
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		s.logger.Warn("history save failed", "path", s.path, "error", err)
	}
}

// All returns a deep-copied snapshot of every record in conversational order.
func (s *Store) All() []core.ConversationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.ConversationRecord, len(s.records))
	for i, rec := range s.records {
		out[i] = rec.Clone()
	}
	return out
}

// Prefix returns a deep-copied snapshot of the first n records. Values of n
// outside [0, Len] are clamped.
func (s *Store) Prefix(n int) []core.ConversationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	if n > len(s.records) {
		n = len(s.records)
	}
	out := make([]core.ConversationRecord, n)
	for i, rec := range s.records[:n] {
		out[i] = rec.Clone()
	}
	return out
}

// Get returns a copy of the record at index i.
func (s *Store) Get(i int) (core.ConversationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.records) {
		return core.ConversationRecord{}, ErrInvalidRecord
	}
	return s.records[i].Clone(), nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// IsEmpty reports whether the history holds no records.
func (s *Store) IsEmpty() bool { return s.Len() == 0 }

// Append adds a record at the end of the history.
func (s *Store) Append(rec core.ConversationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec.Clone())
	s.saveLocked()
}

// UpdateMessage mutates one message's role and content within one record.
// With an explicit messageIndex the position must be valid (ErrInvalidIndex
// otherwise). With messageIndex nil the last message carrying the given role
// is targeted (ErrNotFound if none exists). Returns whether a mutation
// occurred.
func (s *Store) UpdateMessage(recordIndex int, messageIndex *int, role core.Role, content string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if recordIndex < 0 || recordIndex >= len(s.records) {
		return false, ErrInvalidRecord
	}
	rec := &s.records[recordIndex]

	target := -1
	if messageIndex != nil {
		if *messageIndex < 0 || *messageIndex >= len(rec.Messages) {
			return false, ErrInvalidIndex
		}
		target = *messageIndex
	} else {
		target = rec.LastMessage(role)
		if target < 0 {
			return false, ErrNotFound
		}
	}

	rec.Messages[target].Role = role
	rec.Messages[target].Content = content
	s.saveLocked()
	return true, nil
}

// ReplaceRecord overwrites the record at recordIndex in place, preserving its
// position. A fresh timestamp is assigned at replace time so the record
// reflects when its content was last regenerated.
func (s *Store) ReplaceRecord(recordIndex int, messages []core.Message, requestInput string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if recordIndex < 0 || recordIndex >= len(s.records) {
		return ErrInvalidRecord
	}
	s.records[recordIndex] = core.NewConversationRecord(requestInput, messages).Clone()
	s.saveLocked()
	return nil
}

// Clear empties the history. The orchestrator pairs this with a scheduler
// deadline reset; the store itself only owns the records.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.saveLocked()
}
