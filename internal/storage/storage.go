// /internal/storage/storage.go
package storage

import (
	"context"
	"fmt"
	"time"

	"smart-secretary/datastore"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Storage is the cooldown log: correspondent id -> time of the last automatic reply.
// The log stays resident after the first load and every mutation is written through.
type Storage struct {
	ds     *datastore.DataStore
	window time.Duration
	now    func() time.Time
	log    zerolog.Logger
	locks  *KeyLock
}

type Option func(*Storage)

// WithClock replaces time.Now for eligibility checks.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) { s.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Storage) { s.log = l }
}

// New opens the log at filePath. A corrupted file is backed up and replaced with an
// empty log; an unreadable one fails with ErrStorageUnavailable.
func New(filePath string, window time.Duration, opts ...Option) (*Storage, error) {
	s := &Storage{
		window: window,
		now:    time.Now,
		log:    log.Logger.With().Str("component", "storage").Logger(),
		locks:  NewKeyLock(),
	}
	for _, opt := range opts {
		opt(s)
	}

	ds, err := datastore.NewWithConfig(&datastore.Config{
		FilePath: filePath,
		Logger:   s.log,
		Now:      s.now,
	})
	if err != nil {
		return nil, fmt.Errorf("open cooldown log: %w", err)
	}
	s.ds = ds

	s.log.Debug().Str("file", filePath).Int("entries", ds.Len()).Msg("Cooldown log loaded")
	return s, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

// Path returns the file backing the log.
func (s *Storage) Path() string {
	return s.ds.Path()
}

// Stats reports the entry count and the size of the last write.
func (s *Storage) Stats() datastore.Stats {
	return s.ds.Stats()
}

// Window returns the configured cooldown window.
func (s *Storage) Window() time.Duration {
	return s.window
}

// Lock serializes work for one correspondent. Hold it across the whole
// ShouldReply -> reply -> RecordReply sequence.
func (s *Storage) Lock(correspondentID string) (unlock func()) {
	return s.locks.Lock(correspondentID)
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
