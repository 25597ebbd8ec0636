package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/gnutt/cloudflare-aaaa-sync/internal/metrics"
)

const passPrefix = "pass:"

// Manager keeps a bounded history of runs. The history is informational
// and never consulted when deciding what to write.
type Manager interface {
	SavePass(ctx context.Context, pass Pass) error
	LoadHistory(ctx context.Context, limit int) ([]Pass, error)
	Close() error
}

type badgerManager struct {
	db      *badger.DB
	limit   int
	metrics *metrics.Metrics
}

// New opens the store at path. Saving trims the history to the newest limit
// passes; a limit of zero or less keeps everything.
func New(path string, limit int, metrics *metrics.Metrics) (Manager, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable Badger's internal logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	m := &badgerManager{db: db, limit: limit, metrics: metrics}
	return m, nil
}

// Keys sort by start time, zero padded so byte order matches time order.
func passKey(p Pass) []byte {
	return []byte(fmt.Sprintf("%s%020d", passPrefix, p.Started.UnixNano()))
}

func (m *badgerManager) SavePass(ctx context.Context, pass Pass) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(pass)
	if err != nil {
		m.metrics.IncStateRequest("update", false)
		return fmt.Errorf("marshal pass: %w", err)
	}

	txn := m.db.NewTransaction(true)
	defer txn.Discard()

	if err := txn.Set(passKey(pass), data); err != nil {
		m.metrics.IncStateRequest("update", false)
		return err
	}
	err = txn.Commit()
	m.metrics.IncStateRequest("update", err == nil)
	if err != nil {
		return err
	}

	return m.trim()
}

// trim deletes the oldest passes beyond the limit.
func (m *badgerManager) trim() error {
	if m.limit <= 0 {
		return nil
	}

	var keys [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(passPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		m.metrics.IncStateRequest("read", false)
		return err
	}
	if len(keys) <= m.limit {
		return nil
	}

	// Oldest first, so the head of keys is what falls out of the window.
	stale := keys[:len(keys)-m.limit]
	err = m.db.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	m.metrics.IncStateRequest("delete", err == nil)
	return err
}

// LoadHistory returns up to limit passes, newest first.
func (m *badgerManager) LoadHistory(ctx context.Context, limit int) ([]Pass, error) {
	var passes []Pass

	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(passPrefix)
		for it.Seek(append(prefix, 0xff)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(passes) >= limit {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			err := it.Item().Value(func(val []byte) error {
				var pass Pass
				if err := json.Unmarshal(val, &pass); err != nil {
					return fmt.Errorf("decode pass %s: %w", it.Item().Key(), err)
				}
				passes = append(passes, pass)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	m.metrics.IncStateRequest("read", err == nil)
	return passes, err
}

func (m *badgerManager) Close() error {
	return m.db.Close()
}
