package datastore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
)

// keyPrefix namespaces resource keys inside the Badger keyspace.
const keyPrefix = "res:"

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Dir is the data directory; ignored when InMemory is set.
	Dir string
	// InMemory keeps everything in memory. Data is lost on Close.
	InMemory bool
	// SyncWrites fsyncs every write.
	SyncWrites bool
	// GCInterval is the value log GC period (default: 10m, disk only).
	GCInterval time.Duration
	// GCThreshold is the discard ratio passed to RunValueLogGC (default: 0.5).
	GCThreshold float64
}

// BadgerStore implements Store on Badger v3.
type BadgerStore struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger
	closed atomic.Bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// OpenBadger opens (or creates) a Badger-backed store.
func OpenBadger(cfg BadgerConfig, logger *slog.Logger) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, fmt.Errorf("datastore: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = 10 * time.Minute
	}
	if cfg.GCThreshold <= 0 {
		cfg.GCThreshold = 0.5
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("datastore: open badger: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if cfg.InMemory {
		close(s.doneCh)
	} else {
		go s.gcLoop()
	}

	logger.Info("datastore opened", "dir", cfg.Dir, "in_memory", cfg.InMemory)
	return s, nil
}

func (s *BadgerStore) Get(ctx context.Context, p string) (*Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	p, err := CleanPath(p)
	if err != nil {
		return nil, err
	}

	var own *storedDoc
	children := make(map[string]storedDoc)

	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(resourceKey(p))
		switch {
		case err == nil:
			sd, err := readItem(item)
			if err != nil {
				return err
			}
			own = &sd
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		return scanPrefix(txn, subtreePrefix(p), true, func(key string, item *badger.Item) error {
			sd, err := readItem(item)
			if err != nil {
				return err
			}
			children[strings.TrimPrefix(key, childBase(p))] = sd
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if own == nil && len(children) == 0 {
		if p == "" {
			return &Entry{Path: p, Value: []byte("{}")}, nil
		}
		return nil, ErrNotFound
	}
	return assemble(p, own, children)
}

func (s *BadgerStore) Create(ctx context.Context, p string, doc []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	p, err := CleanPath(p)
	if err != nil {
		return err
	}
	if p == "" {
		return ErrBadInput
	}
	if err := validDoc(doc); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(resourceKey(p))
		if err == nil {
			return ErrExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(resourceKey(p), encodeValue(doc, time.Now()))
	})
}

func (s *BadgerStore) Replace(ctx context.Context, p string, doc []byte) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	p, err := CleanPath(p)
	if err != nil {
		return false, err
	}
	if p == "" {
		return false, ErrBadInput
	}
	if err := validDoc(doc); err != nil {
		return false, err
	}

	var created bool
	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(resourceKey(p))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			created = true
		case err != nil:
			return err
		}

		if err := deletePrefix(txn, subtreePrefix(p)); err != nil {
			return err
		}
		return txn.Set(resourceKey(p), encodeValue(doc, time.Now()))
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (s *BadgerStore) Delete(ctx context.Context, p string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	p, err := CleanPath(p)
	if err != nil {
		return err
	}
	if p == "" {
		return ErrBadInput
	}

	return s.db.Update(func(txn *badger.Txn) error {
		found := false
		_, err := txn.Get(resourceKey(p))
		switch {
		case err == nil:
			found = true
			if err := txn.Delete(resourceKey(p)); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		n, err := countPrefix(txn, subtreePrefix(p))
		if err != nil {
			return err
		}
		if !found && n == 0 {
			return ErrNotFound
		}
		return deletePrefix(txn, subtreePrefix(p))
	})
}

func (s *BadgerStore) List(ctx context.Context, prefix string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	prefix, err := CleanPath(prefix)
	if err != nil {
		return nil, err
	}

	var out []string
	err = s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(resourceKey(prefix)); err == nil && prefix != "" {
			out = append(out, prefix)
		}
		return scanPrefix(txn, subtreePrefix(prefix), false, func(key string, _ *badger.Item) error {
			out = append(out, key)
			return nil
		})
	})
	return out, err
}

// GC runs value log garbage collection until nothing is left to rewrite.
func (s *BadgerStore) GC() error {
	if s.cfg.InMemory {
		return nil
	}
	for {
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				return nil
			}
			return fmt.Errorf("datastore: gc: %w", err)
		}
	}
}

// Close stops background GC and closes the database.
func (s *BadgerStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if !s.cfg.InMemory {
		close(s.stopCh)
	}
	<-s.doneCh

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("datastore: close: %w", err)
	}
	s.logger.Info("datastore closed")
	return nil
}

func (s *BadgerStore) gcLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.GC(); err != nil {
				s.logger.Error("datastore gc failed", "error", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

// Key layout: "res:" + path for a resource; its descendants share the
// "res:" + path + "/" prefix. The data root's descendants are every key.

func resourceKey(p string) []byte {
	return []byte(keyPrefix + p)
}

func childBase(p string) string {
	if p == "" {
		return ""
	}
	return p + "/"
}

func subtreePrefix(p string) []byte {
	return []byte(keyPrefix + childBase(p))
}

// scanPrefix calls fn with the resource path of each key under prefix.
func scanPrefix(txn *badger.Txn, prefix []byte, values bool, fn func(p string, item *badger.Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = values
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := strings.TrimPrefix(string(item.Key()), keyPrefix)
		if key == "" {
			continue
		}
		if err := fn(key, item); err != nil {
			return err
		}
	}
	return nil
}

func countPrefix(txn *badger.Txn, prefix []byte) (int, error) {
	n := 0
	err := scanPrefix(txn, prefix, false, func(string, *badger.Item) error {
		n++
		return nil
	})
	return n, err
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	var keys [][]byte
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Values are an 8-byte big-endian UnixNano modification time followed by
// the JSON document.

func encodeValue(doc []byte, modified time.Time) []byte {
	buf := make([]byte, 8+len(doc))
	binary.BigEndian.PutUint64(buf, uint64(modified.UnixNano()))
	copy(buf[8:], doc)
	return buf
}

func readItem(item *badger.Item) (storedDoc, error) {
	val, err := item.ValueCopy(nil)
	if err != nil {
		return storedDoc{}, err
	}
	if len(val) < 8 {
		return storedDoc{}, fmt.Errorf("datastore: corrupt value for %q", item.Key())
	}
	return storedDoc{
		doc:      val[8:],
		modified: time.Unix(0, int64(binary.BigEndian.Uint64(val))),
	}, nil
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
