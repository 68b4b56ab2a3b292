package scheduling

import (
	"context"
	"sync"
)

// Locker serializes booking mutations per (hospital, date). Slots and
// the waitlist for a day are only ever touched inside this boundary,
// so two concurrent bookings can never both observe spare capacity.
type Locker interface {
	WithDayLock(ctx context.Context, hospitalID, date string, fn func(ctx context.Context) error) error
}

// MutexLocker is the single-process Locker: one mutex per hospital day.
// Multi-instance deployments swap in the Redis-backed locker.
type MutexLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *MutexLocker) WithDayLock(ctx context.Context, hospitalID, date string, fn func(ctx context.Context) error) error {
	key := hospitalID + "|" + date

	l.mu.Lock()
	dayMu, ok := l.locks[key]
	if !ok {
		dayMu = &sync.Mutex{}
		l.locks[key] = dayMu
	}
	l.mu.Unlock()

	dayMu.Lock()
	defer dayMu.Unlock()

	return fn(ctx)
}
