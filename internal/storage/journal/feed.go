package journal

import (
	"sync"

	"go.uber.org/zap"

	"github.com/vadiminshakov/hotdog/internal/domain"
	"github.com/vadiminshakov/hotdog/internal/events"
)

// Feed saves connect records and pushes each stored entry to live subscribers.
type Feed struct {
	store   *WALStore
	updates *events.Broadcaster[domain.ConnectRecordEntry]
	logger  *zap.Logger

	// mu keeps publish order equal to journal order
	mu sync.Mutex
}

// NewFeed wraps store.
func NewFeed(store *WALStore, logger *zap.Logger) *Feed {
	return &Feed{
		store:   store,
		updates: events.NewBroadcaster[domain.ConnectRecordEntry](64),
		logger:  logger,
	}
}

// Record stores rec. Write failures are logged, the attempt itself already happened.
func (f *Feed) Record(rec domain.ConnectRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx, err := f.store.Save(rec)
	if err != nil {
		f.logger.Error("failed to journal connect attempt", zap.String("session", rec.Session), zap.Error(err))
		return
	}
	f.updates.Publish(domain.ConnectRecordEntry{Index: idx, Record: rec})
}

// Subscribe returns a channel of entries stored from now on.
func (f *Feed) Subscribe() chan domain.ConnectRecordEntry { return f.updates.Subscribe() }

// Unsubscribe stops delivery to ch.
func (f *Feed) Unsubscribe(ch chan domain.ConnectRecordEntry) { f.updates.Unsubscribe(ch) }

// EventsAfter replays stored entries after index.
func (f *Feed) EventsAfter(index uint64) ([]domain.ConnectRecordEntry, error) {
	return f.store.EventsAfter(index)
}

// Close ends every subscription and closes the store.
func (f *Feed) Close() error {
	f.updates.Close()
	return f.store.Close()
}
