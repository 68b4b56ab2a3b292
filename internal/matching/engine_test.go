package matching

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodlink/blood-coordination/internal/bloodtype"
	"github.com/bloodlink/blood-coordination/internal/inventory"
	"github.com/bloodlink/blood-coordination/internal/risk"
)

func addUnit(t *testing.T, repo *inventory.MemoryRepository, bt bloodtype.Type, collected time.Time, expires time.Time, tags ...string) inventory.BloodUnit {
	t.Helper()
	u := inventory.BloodUnit{
		ID:          uuid.New(),
		Type:        bt,
		CollectedAt: collected,
		ExpiresAt:   expires,
		Properties:  tags,
		HospitalID:  "hosp-1",
	}
	require.NoError(t, repo.Add(context.Background(), u))
	return u
}

func TestFindMatchInvalidBloodType(t *testing.T) {
	engine := NewEngine(inventory.NewMemoryRepository())

	_, err := engine.FindMatch(context.Background(), Request{
		RecipientType: bloodtype.Type("Z+"),
		UnitsNeeded:   1,
	})
	assert.ErrorIs(t, err, bloodtype.ErrInvalidBloodType)
}

func TestFindMatchRejectsNonPositiveUnits(t *testing.T) {
	engine := NewEngine(inventory.NewMemoryRepository())

	_, err := engine.FindMatch(context.Background(), Request{
		RecipientType: bloodtype.APos,
	})
	assert.Error(t, err)
}

func TestFindMatchSkipsExpiredAndReportsShortfall(t *testing.T) {
	repo := inventory.NewMemoryRepository()
	now := time.Now()

	fresh := addUnit(t, repo, bloodtype.ANeg, now.AddDate(0, 0, -2), now.AddDate(0, 0, 30))
	for i := 0; i < 3; i++ {
		addUnit(t, repo, bloodtype.ABNeg, now.AddDate(0, 0, -40), now.AddDate(0, 0, -1))
	}

	engine := NewEngine(repo)
	res, err := engine.FindMatch(context.Background(), Request{
		RecipientType: bloodtype.ABNeg,
		UnitsNeeded:   2,
		Urgency:       risk.UrgencyRoutine,
	})
	require.NoError(t, err)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, fresh.ID, res.Matches[0].ID)
	assert.Equal(t, 1, res.Shortfall)
}

func TestFindMatchRanking(t *testing.T) {
	repo := inventory.NewMemoryRepository()
	now := time.Now()
	expires := now.AddDate(0, 0, 30)

	crossFresh := addUnit(t, repo, bloodtype.ONeg, now.AddDate(0, 0, -1), expires)
	exactOld := addUnit(t, repo, bloodtype.APos, now.AddDate(0, 0, -20), expires)
	exactFresh := addUnit(t, repo, bloodtype.APos, now.AddDate(0, 0, -3), expires)

	engine := NewEngine(repo)
	res, err := engine.FindMatch(context.Background(), Request{
		RecipientType: bloodtype.APos,
		UnitsNeeded:   3,
	})
	require.NoError(t, err)
	require.Len(t, res.Matches, 3)

	// Exact-type matches precede cross-compatible ones; within exact,
	// fresher units first.
	assert.Equal(t, exactFresh.ID, res.Matches[0].ID)
	assert.Equal(t, exactOld.ID, res.Matches[1].ID)
	assert.Equal(t, crossFresh.ID, res.Matches[2].ID)
	assert.Zero(t, res.Shortfall)
}

func TestFindMatchSpecialRequirements(t *testing.T) {
	repo := inventory.NewMemoryRepository()
	now := time.Now()
	expires := now.AddDate(0, 0, 30)

	tagged := addUnit(t, repo, bloodtype.OPos, now.AddDate(0, 0, -5), expires, "irradiated", "leukoreduced")
	addUnit(t, repo, bloodtype.OPos, now.AddDate(0, 0, -1), expires) // untagged, must not qualify

	engine := NewEngine(repo)
	res, err := engine.FindMatch(context.Background(), Request{
		RecipientType:       bloodtype.OPos,
		UnitsNeeded:         2,
		SpecialRequirements: []string{"irradiated"},
	})
	require.NoError(t, err)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, tagged.ID, res.Matches[0].ID)
	assert.Equal(t, 1, res.Shortfall)
}

func TestFindMatchNoInventorySideEffects(t *testing.T) {
	repo := inventory.NewMemoryRepository()
	now := time.Now()
	u := addUnit(t, repo, bloodtype.BNeg, now.AddDate(0, 0, -1), now.AddDate(0, 0, 30))

	engine := NewEngine(repo)
	_, err := engine.FindMatch(context.Background(), Request{
		RecipientType: bloodtype.BNeg,
		UnitsNeeded:   1,
	})
	require.NoError(t, err)

	// The unit is still available until the caller consumes it.
	units, err := repo.AvailableUnits(context.Background(), bloodtype.BNeg, nil)
	require.NoError(t, err)
	assert.Len(t, units, 1)

	require.NoError(t, repo.Consume(context.Background(), u.ID))
	assert.ErrorIs(t, repo.Consume(context.Background(), u.ID), inventory.ErrAlreadyConsumed)
}

func TestFindMatchAlternatives(t *testing.T) {
	engine := NewEngine(inventory.NewMemoryRepository())

	res, err := engine.FindMatch(context.Background(), Request{
		RecipientType: bloodtype.ABPos,
		UnitsNeeded:   1,
	})
	require.NoError(t, err)

	types := make([]string, 0, len(res.Alternatives))
	for _, a := range res.Alternatives {
		types = append(types, a.Type)
	}
	assert.Equal(t, []string{"plasma", "platelets"}, types)
}

func TestValidateUnit(t *testing.T) {
	engine := NewEngine(inventory.NewMemoryRepository())
	now := time.Now()

	ok := inventory.BloodUnit{
		ID:          uuid.New(),
		Type:        bloodtype.APos,
		CollectedAt: now.AddDate(0, 0, -1),
		ExpiresAt:   now.AddDate(0, 0, 30),
		Properties:  []string{"irradiated"},
	}
	v := engine.ValidateUnit(ok, []string{"irradiated"})
	assert.True(t, v.Valid)
	assert.Empty(t, v.Issues)

	expired := ok
	expired.ExpiresAt = now.AddDate(0, 0, -1)
	v = engine.ValidateUnit(expired, []string{"irradiated", "cmv-negative"})
	assert.False(t, v.Valid)
	assert.Len(t, v.Issues, 2)
}
