// Package journal keeps an append-only log of connect attempt outcomes.
package journal

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/hotdog/internal/domain"
)

const (
	segmentLimit = 1000
	maxSegments  = 100
	keyPrefix    = "connect_"
)

var errNotInitialized = errors.New("journal store is not initialized")

// WALStore persists connect records in a WAL so they survive restarts and can be streamed.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens (or creates) the journal under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		return nil, errors.New("journal dir is required")
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "journal_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init journal WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends rec and returns its index.
func (s *WALStore) Save(rec domain.ConnectRecord) (uint64, error) {
	if s == nil || s.wal == nil {
		return 0, errNotInitialized
	}
	if rec.Session == "" {
		return 0, errors.New("connect record session is required")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return 0, errors.Wrap(err, "marshal connect record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(next, fmt.Sprintf("%s%s", keyPrefix, rec.Session), payload); err != nil {
		return 0, errors.Wrap(err, "write connect record")
	}
	return next, nil
}

// EventsAfter returns every record written after index, oldest first.
func (s *WALStore) EventsAfter(index uint64) ([]domain.ConnectRecordEntry, error) {
	if s == nil || s.wal == nil {
		return nil, errNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	entries := make([]domain.ConnectRecordEntry, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			return nil, errors.Wrapf(err, "read connect record %d", idx)
		}
		if !strings.HasPrefix(key, keyPrefix) {
			continue
		}
		var rec domain.ConnectRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, errors.Wrapf(err, "decode connect record %d", idx)
		}
		entries = append(entries, domain.ConnectRecordEntry{Index: idx, Record: rec})
	}

	return entries, nil
}

// CurrentIndex returns the index of the latest record, 0 when empty.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
