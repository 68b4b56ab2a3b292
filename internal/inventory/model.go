package inventory

import (
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/blood-coordination/internal/bloodtype"
)

// BloodUnit is one collected, typed unit of blood. A unit is available
// from collection until it is either consumed by a match allocation or
// passes its expiration timestamp.
type BloodUnit struct {
	ID          uuid.UUID
	Type        bloodtype.Type
	CollectedAt time.Time
	ExpiresAt   time.Time
	Properties  []string // processing tags, e.g. "irradiated", "leukoreduced"
	HospitalID  string
}

// Expired reports whether the unit must no longer be selected.
func (u BloodUnit) Expired(now time.Time) bool {
	return !u.ExpiresAt.After(now)
}

// AgeDays is the whole number of days since collection, the freshness
// signal used by match ranking.
func (u BloodUnit) AgeDays(now time.Time) int {
	return int(now.Sub(u.CollectedAt).Hours() / 24)
}

// HasProperty reports whether the unit carries the given processing tag.
func (u BloodUnit) HasProperty(tag string) bool {
	for _, p := range u.Properties {
		if p == tag {
			return true
		}
	}
	return false
}

// HasAllProperties reports whether the unit carries every required tag.
func (u BloodUnit) HasAllProperties(tags []string) bool {
	for _, tag := range tags {
		if !u.HasProperty(tag) {
			return false
		}
	}
	return true
}
