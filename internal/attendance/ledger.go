package attendance

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyResolved is returned when a record call finds the key already in
// either set. Callers treat it as an idempotent no-op, never a failure.
var ErrAlreadyResolved = errors.New("occurrence already resolved")

// Resolution is what the ledger knows about one occurrence key.
type Resolution int

const (
	ResolvedNone Resolution = iota
	ResolvedCheckedIn
	ResolvedMissed
)

// Ledger is the durable two-set record of resolved occurrences. The sets are
// disjoint and append-only: once a key lands in one of them it stays there
// until an explicit Reset or an age-based prune.
type Ledger interface {
	Resolution(ctx context.Context, key string) (Resolution, error)
	// RecordCheckedIn places key in the checked-in set. ErrAlreadyResolved if
	// the key is already in either set.
	RecordCheckedIn(ctx context.Context, key string) error
	// RecordMissed places key in the missed set. A nil return signals the
	// caller to award exactly one penalty point.
	RecordMissed(ctx context.Context, key string) error
	// Reset clears both sets. Only an explicit full data reset calls this;
	// login/logout must not, or old occurrences would score again.
	Reset(ctx context.Context) error
	// PruneBefore drops keys whose encoded date sorts before cutoff
	// (YYYY-MM-DD). Pruned occurrences are simply forgotten.
	PruneBefore(ctx context.Context, cutoff string) error
}

// MemoryLedger keeps the sets in process memory. Used in tests and when no
// Redis is configured.
type MemoryLedger struct {
	mu        sync.Mutex
	checkedIn map[string]struct{}
	missed    map[string]struct{}
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		checkedIn: make(map[string]struct{}),
		missed:    make(map[string]struct{}),
	}
}

func (l *MemoryLedger) Resolution(_ context.Context, key string) (Resolution, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.checkedIn[key]; ok {
		return ResolvedCheckedIn, nil
	}
	if _, ok := l.missed[key]; ok {
		return ResolvedMissed, nil
	}
	return ResolvedNone, nil
}

func (l *MemoryLedger) RecordCheckedIn(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.has(key) {
		return ErrAlreadyResolved
	}
	l.checkedIn[key] = struct{}{}
	return nil
}

func (l *MemoryLedger) RecordMissed(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.has(key) {
		return ErrAlreadyResolved
	}
	l.missed[key] = struct{}{}
	return nil
}

func (l *MemoryLedger) Reset(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkedIn = make(map[string]struct{})
	l.missed = make(map[string]struct{})
	return nil
}

func (l *MemoryLedger) PruneBefore(_ context.Context, cutoff string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	pruneSet(l.checkedIn, cutoff)
	pruneSet(l.missed, cutoff)
	return nil
}

func (l *MemoryLedger) has(key string) bool {
	if _, ok := l.checkedIn[key]; ok {
		return true
	}
	_, ok := l.missed[key]
	return ok
}

func pruneSet(set map[string]struct{}, cutoff string) {
	for key := range set {
		d, ok := KeyDate(key)
		if !ok || d < cutoff {
			delete(set, key)
		}
	}
}
