// Package batch fans a URL list out to fetch workers and collects exactly one
// outcome per URL, in input order.
package batch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Sriram-PR/webfetch/pkg/models"
)

var (
	ErrAlreadyRecorded = errors.New("outcome already recorded for index")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrUnresolved      = errors.New("batch has unresolved indices")
)

// Aggregator collects outcomes into a slot per input URL. Recording is safe from
// many goroutines; each slot accepts exactly one outcome.
type Aggregator struct {
	mu       sync.Mutex
	urls     []string
	outcomes []models.FetchOutcome
	resolved []bool
	counts   models.BatchCounts
	pending  int
}

// NewAggregator sizes the aggregator for urls. An empty list finalizes immediately.
func NewAggregator(urls []string) *Aggregator {
	return &Aggregator{
		urls:     append([]string(nil), urls...),
		outcomes: make([]models.FetchOutcome, len(urls)),
		resolved: make([]bool, len(urls)),
		pending:  len(urls),
	}
}

// Record stores the outcome for index. A second outcome for the same index is
// rejected and the first one is kept.
func (a *Aggregator) Record(index int, outcome models.FetchOutcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if index < 0 || index >= len(a.outcomes) {
		return fmt.Errorf("%w: %d (batch size %d)", ErrIndexOutOfRange, index, len(a.outcomes))
	}
	if a.resolved[index] {
		return fmt.Errorf("%w: %d", ErrAlreadyRecorded, index)
	}
	if !outcome.Status.IsValid() {
		return fmt.Errorf("outcome for index %d has no terminal status", index)
	}
	a.record(index, outcome)
	return nil
}

func (a *Aggregator) record(index int, outcome models.FetchOutcome) {
	a.outcomes[index] = outcome
	a.resolved[index] = true
	a.pending--
	switch outcome.Status {
	case models.OutcomeSuccess:
		a.counts.Success++
	case models.OutcomeSkipped:
		a.counts.Skipped++
	case models.OutcomeFailed:
		a.counts.Failed++
	}
}

// FillUnresolved records synth(i, url) for every index still missing an outcome
// and returns how many were filled.
func (a *Aggregator) FillUnresolved(synth func(index int, url string) models.FetchOutcome) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	filled := 0
	for i, done := range a.resolved {
		if done {
			continue
		}
		a.record(i, synth(i, a.urls[i]))
		filled++
	}
	return filled
}

// Pending returns how many indices still lack an outcome.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

// Counts returns the running tally by status.
func (a *Aggregator) Counts() models.BatchCounts {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts
}

// Finalize builds the result in input order. It fails if any index is unresolved.
func (a *Aggregator) Finalize() (models.BatchResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pending > 0 {
		return models.BatchResult{}, fmt.Errorf("%w: %d of %d", ErrUnresolved, a.pending, len(a.outcomes))
	}
	items := make([]models.BatchItem, len(a.outcomes))
	for i, o := range a.outcomes {
		items[i] = models.BatchItem{Index: i, URL: a.urls[i], Outcome: o}
	}
	return models.BatchResult{Items: items}, nil
}
