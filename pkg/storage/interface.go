package storage

import (
	"context"

	"github.com/Sriram-PR/webfetch/pkg/models"
)

// OutcomeCache remembers successful fetch outcomes so that repeated batches do not
// refetch the same URL. Only successes are stored; skips and failures are always
// recomputed.
type OutcomeCache interface {
	// Get returns the cached outcome for rawURL, with ok=false on a miss or expired entry
	Get(ctx context.Context, rawURL string) (outcome models.FetchOutcome, ok bool, err error)

	// Put stores a successful outcome; other statuses are ignored
	Put(ctx context.Context, rawURL string, outcome models.FetchOutcome) error

	// Close releases the underlying store
	Close() error
}

// CacheAdmin handles inspection and maintenance of a cache
type CacheAdmin interface {
	// Keys returns the normalized URLs currently cached
	Keys(ctx context.Context) ([]string, error)

	// Purge removes every cached entry
	Purge() error

	// Len returns the number of live entries
	Len() (int, error)
}
