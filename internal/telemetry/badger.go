package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
)

const eventKeyPrefix = "evt:"

// #region badger-sink

// BadgerConfig configures the embedded journal.
type BadgerConfig struct {
	// Path is the journal directory. Ignored when InMemory is set.
	Path       string `yaml:"path"`
	InMemory   bool   `yaml:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// BadgerSink journals events in an embedded key-value store, keyed by a
// monotonically increasing sequence number so Replay returns them in write
// order.
type BadgerSink struct {
	db     *badger.DB
	logger *slog.Logger
	seq    atomic.Uint64
	closed atomic.Bool
	mu     sync.RWMutex
}

// OpenBadgerSink opens the journal and restores the sequence counter from the
// highest key already present.
func OpenBadgerSink(cfg BadgerConfig, logger *slog.Logger) (*BadgerSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("open telemetry journal: path required when not in memory")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open telemetry journal: %w", err)
	}
	s := &BadgerSink{db: db, logger: logger.With("component", "telemetry.badger")}
	if err := s.initSeq(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal sequence: %w", err)
	}
	s.logger.Debug("journal opened", "path", cfg.Path, "in_memory", cfg.InMemory, "last_seq", s.seq.Load())
	return s, nil
}

func (s *BadgerSink) initSeq() error {
	prefix := []byte(eventKeyPrefix)
	var last uint64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte(eventKeyPrefix), 0xFF)
		it.Seek(seek)
		if it.ValidForPrefix(prefix) {
			seq, ok := parseEventKey(it.Item().Key())
			if ok {
				last = seq
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.seq.Store(last)
	return nil
}

func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%016d", eventKeyPrefix, seq))
}

func parseEventKey(key []byte) (uint64, bool) {
	var seq uint64
	if _, err := fmt.Sscanf(string(key[len(eventKeyPrefix):]), "%016d", &seq); err != nil {
		return 0, false
	}
	return seq, true
}

// Write appends e under the next sequence number.
func (s *BadgerSink) Write(ctx context.Context, e Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return ErrSinkClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode journal event: %w", err)
	}
	key := eventKey(s.seq.Add(1))
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		return fmt.Errorf("write journal event: %w", err)
	}
	return nil
}

// Replay calls fn for every journaled event in write order. Undecodable
// entries are skipped and logged. Returning an error from fn stops the replay.
func (s *BadgerSink) Replay(ctx context.Context, fn func(Event) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return ErrSinkClosed
	}
	prefix := []byte(eventKeyPrefix)
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var e Event
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				s.logger.Warn("skipping undecodable journal entry", "key", string(item.Key()), "error", err)
				continue
			}
			if err := fn(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Len is the number of events written to this journal.
func (s *BadgerSink) Len() uint64 {
	return s.seq.Load()
}

// Close closes the journal. Further writes return ErrSinkClosed.
func (s *BadgerSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close telemetry journal: %w", err)
	}
	return nil
}

// #endregion badger-sink
