package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/webfetch/pkg/log"
	"github.com/Sriram-PR/webfetch/pkg/models"
	"github.com/Sriram-PR/webfetch/pkg/parse"
	"github.com/Sriram-PR/webfetch/pkg/utils"
)

const (
	outcomeKeyPrefix = "outcome:"   // Prefix for outcome keys in DB
	cacheDBDir       = "outcome_db" // Subdirectory name within the cache dir
)

// cacheRecord is the stored form of a successful outcome. Content is kept here
// because FetchOutcome does not serialize it.
type cacheRecord struct {
	Outcome  models.FetchOutcome `json:"outcome"`
	Content  []byte              `json:"content,omitempty"`
	StoredAt time.Time           `json:"stored_at"`
}

// BadgerCache implements OutcomeCache and CacheAdmin using BadgerDB with per-entry TTL
type BadgerCache struct {
	db  *badger.DB
	ttl time.Duration
	log *logrus.Entry
}

// NewBadgerCache opens (or creates) the cache under dir.
func NewBadgerCache(dir string, ttl time.Duration, logger *logrus.Entry) (*BadgerCache, error) {
	dbPath := filepath.Join(dir, cacheDBDir)
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("cannot create cache directory %s: %w", dbPath, err)
	}
	logger.Infof("Initializing outcome cache at: %s (TTL: %v)", dbPath, ttl)

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogger(logger.WithField("component", "badgerdb"))).
		WithNumVersionsToKeep(1)
	return openBadgerCache(opts, ttl, logger)
}

// NewInMemoryBadgerCache creates a cache that lives only for the process lifetime.
func NewInMemoryBadgerCache(ttl time.Duration, logger *logrus.Entry) (*BadgerCache, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(log.NewBadgerLogger(logger.WithField("component", "badgerdb")))
	return openBadgerCache(opts, ttl, logger)
}

func openBadgerCache(opts badger.Options, ttl time.Duration, logger *logrus.Entry) (*BadgerCache, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database: %w", utils.ErrDatabase, err)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &BadgerCache{db: db, ttl: ttl, log: logger}, nil
}

// cacheKey derives the DB key from the normalized URL; unfetchable URLs are used verbatim.
func cacheKey(rawURL string) []byte {
	normalized, _, err := parse.ParseAndNormalize(rawURL)
	if err != nil {
		normalized = rawURL
	}
	return []byte(outcomeKeyPrefix + normalized)
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
func (c *BadgerCache) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := c.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		c.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// Get implements OutcomeCache
func (c *BadgerCache) Get(ctx context.Context, rawURL string) (models.FetchOutcome, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.FetchOutcome{}, false, err
	}
	key := cacheKey(rawURL)
	var rec cacheRecord
	found := false

	err := c.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}
		return item.Value(func(val []byte) error {
			if errJson := json.Unmarshal(val, &rec); errJson != nil {
				c.log.Warnf("Failed to unmarshal cache record for key '%s': %v. Treating as miss.", string(key), errJson)
				return nil
			}
			found = true
			return nil
		})
	})
	if err != nil {
		c.log.Errorf("DB View error in Get for key '%s': %v", string(key), err)
		return models.FetchOutcome{}, false, err
	}
	if !found || !rec.Outcome.IsSuccess() {
		return models.FetchOutcome{}, false, nil
	}

	out := rec.Outcome
	out.Content = rec.Content
	out.URL = rawURL
	out.FromCache = true
	return out, true, nil
}

// Put implements OutcomeCache
func (c *BadgerCache) Put(ctx context.Context, rawURL string, outcome models.FetchOutcome) error {
	if !outcome.IsSuccess() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	key := cacheKey(rawURL)

	rec := cacheRecord{Outcome: outcome, Content: outcome.Content, StoredAt: time.Now()}
	rec.Outcome.FromCache = false
	recBytes, errJson := json.Marshal(rec)
	if errJson != nil {
		wrappedErr := fmt.Errorf("%w: failed to marshal cache record for key '%s': %w", utils.ErrParsing, string(key), errJson)
		c.log.Error(wrappedErr)
		return wrappedErr
	}

	err := c.dbUpdate(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, recBytes).WithTTL(c.ttl))
	})
	if err != nil {
		c.log.WithField("key", string(key)).Errorf("DB Update error in Put: %v", err)
		return fmt.Errorf("%w: failed storing key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	c.log.Debugf("Cached outcome for key '%s' (%d bytes)", string(key), len(outcome.Content))
	return nil
}

// Keys implements CacheAdmin
func (c *BadgerCache) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(outcomeKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			k := it.Item().KeyCopy(nil)
			keys = append(keys, string(k[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: key scan failed: %w", utils.ErrDatabase, err)
	}
	return keys, nil
}

// Len implements CacheAdmin
func (c *BadgerCache) Len() (int, error) {
	keys, err := c.Keys(context.Background())
	return len(keys), err
}

// Purge implements CacheAdmin
func (c *BadgerCache) Purge() error {
	if err := c.db.DropPrefix([]byte(outcomeKeyPrefix)); err != nil {
		return fmt.Errorf("%w: purge failed: %w", utils.ErrDatabase, err)
	}
	c.log.Info("Outcome cache purged.")
	return nil
}

// RunGC runs BadgerDB's value log garbage collection periodically. Should be run in a goroutine.
func (c *BadgerCache) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if c.db == nil || c.db.IsClosed() {
				continue
			}
			var err error
			for {
				// Run GC if log is at least 50% reclaimable space
				if err = c.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				c.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			c.log.Debugf("Stopping BadgerDB garbage collection: %v", ctx.Err())
			return
		}
	}
}

// Close implements OutcomeCache
func (c *BadgerCache) Close() error {
	if c.db != nil && !c.db.IsClosed() {
		if err := c.db.Close(); err != nil {
			c.log.Errorf("Error closing outcome cache: %v", err)
			return err
		}
		c.log.Debug("Outcome cache closed.")
	}
	return nil
}
