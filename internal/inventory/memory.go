package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/blood-coordination/internal/bloodtype"
)

// MemoryRepository is an in-process Repository used by tests and demo
// mode. Safe for concurrent use.
type MemoryRepository struct {
	mu       sync.Mutex
	units    map[uuid.UUID]BloodUnit
	consumed map[uuid.UUID]bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		units:    make(map[uuid.UUID]BloodUnit),
		consumed: make(map[uuid.UUID]bool),
	}
}

func (r *MemoryRepository) AvailableUnits(_ context.Context, t bloodtype.Type, requiredTags []string) ([]BloodUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var out []BloodUnit
	for id, u := range r.units {
		if r.consumed[id] || u.Type != t || u.Expired(now) {
			continue
		}
		if !u.HasAllProperties(requiredTags) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *MemoryRepository) Consume(_ context.Context, unitID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.units[unitID]; !ok {
		return ErrUnitNotFound
	}
	if r.consumed[unitID] {
		return ErrAlreadyConsumed
	}
	r.consumed[unitID] = true
	return nil
}

func (r *MemoryRepository) Add(_ context.Context, unit BloodUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.units[unit.ID] = unit
	return nil
}

func (r *MemoryRepository) CountByHospital(_ context.Context, hospitalID string, t bloodtype.Type) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	n := 0
	for id, u := range r.units {
		if r.consumed[id] || u.Expired(now) {
			continue
		}
		if u.HospitalID == hospitalID && u.Type == t {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) PurgeExpired(_ context.Context, now time.Time) ([]BloodUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged []BloodUnit
	for id, u := range r.units {
		if !r.consumed[id] && u.Expired(now) {
			purged = append(purged, u)
			delete(r.units, id)
			delete(r.consumed, id)
		}
	}
	return purged, nil
}
