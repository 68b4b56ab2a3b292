package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/blood-coordination/internal/bloodtype"
)

var (
	ErrUnitNotFound    = errors.New("blood unit not found")
	ErrAlreadyConsumed = errors.New("blood unit already consumed")
)

// Repository is the inventory collaborator contract consumed by the
// matching engine and the emergency dispatcher.
type Repository interface {
	// AvailableUnits returns non-expired, unconsumed units of the given
	// type carrying every required tag.
	AvailableUnits(ctx context.Context, t bloodtype.Type, requiredTags []string) ([]BloodUnit, error)

	// Consume removes a unit from the available pool. Idempotent by
	// unit id: a second attempt fails with ErrAlreadyConsumed instead
	// of double-allocating.
	Consume(ctx context.Context, unitID uuid.UUID) error

	// Add records a new unit, normally after a completed donation.
	Add(ctx context.Context, unit BloodUnit) error

	// CountByHospital reports available units of one type at one
	// hospital, used by emergency source discovery.
	CountByHospital(ctx context.Context, hospitalID string, t bloodtype.Type) (int, error)

	// PurgeExpired drops every unit whose expiration has passed and
	// returns the dropped units so callers can emit expiry notices.
	PurgeExpired(ctx context.Context, now time.Time) ([]BloodUnit, error)
}
