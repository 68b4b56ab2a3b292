package matching

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bloodlink/blood-coordination/internal/bloodtype"
	"github.com/bloodlink/blood-coordination/internal/inventory"
	"github.com/bloodlink/blood-coordination/internal/risk"
)

// Request describes a routine blood need. The engine only reads it.
type Request struct {
	RecipientType       bloodtype.Type
	UnitsNeeded         int
	SpecialRequirements []string
	Patient             risk.PatientInfo
	Urgency             risk.Urgency
}

// Alternative is an advisory non-blood substitute. Alternatives are
// metadata only, never allocated.
type Alternative struct {
	Type           string `json:"type"`
	Compatibility  string `json:"compatibility"`
	Availability   string `json:"availability"`
	ProcessingTime string `json:"processing_time"`
}

// Result carries the selected units in rank order. A shortage is not an
// error: Shortfall reports how many requested units could not be
// covered. Allocation is a separate explicit step via the inventory
// Consume operation, so a failed downstream step never loses inventory.
type Result struct {
	Matches      []inventory.BloodUnit
	RiskScore    float64
	Shortfall    int
	Alternatives []Alternative
}

type Engine struct {
	inv inventory.Repository
	now func() time.Time
}

func NewEngine(inv inventory.Repository) *Engine {
	return &Engine{inv: inv, now: time.Now}
}

// FindMatch resolves compatible donor types, queries available
// inventory, and returns the top UnitsNeeded units in rank order.
func (e *Engine) FindMatch(ctx context.Context, req Request) (*Result, error) {
	if req.UnitsNeeded <= 0 {
		return nil, fmt.Errorf("units needed must be positive, got %d", req.UnitsNeeded)
	}

	donorTypes, err := bloodtype.CompatibleDonors(req.RecipientType)
	if err != nil {
		return nil, err
	}

	score := risk.Score(req.Patient, req.Urgency)

	var candidates []inventory.BloodUnit
	for _, t := range donorTypes {
		units, err := e.inv.AvailableUnits(ctx, t, req.SpecialRequirements)
		if err != nil {
			return nil, fmt.Errorf("query inventory for %s: %w", t, err)
		}
		candidates = append(candidates, units...)
	}

	ranked := e.rank(candidates, req)
	if len(ranked) > req.UnitsNeeded {
		ranked = ranked[:req.UnitsNeeded]
	}

	res := &Result{
		Matches:      ranked,
		RiskScore:    score,
		Alternatives: alternativesFor(req.RecipientType, req.UnitsNeeded),
	}
	if len(ranked) < req.UnitsNeeded {
		res.Shortfall = req.UnitsNeeded - len(ranked)
	}
	return res, nil
}

// rank orders candidates: exact blood-type match first, then freshest
// unit, then fuller special-requirement coverage. Ties break on unit id
// so results are deterministic.
func (e *Engine) rank(units []inventory.BloodUnit, req Request) []inventory.BloodUnit {
	now := e.now()

	sort.Slice(units, func(i, j int) bool {
		a, b := units[i], units[j]

		aExact := a.Type == req.RecipientType
		bExact := b.Type == req.RecipientType
		if aExact != bExact {
			return aExact
		}

		aAge, bAge := a.AgeDays(now), b.AgeDays(now)
		if aAge != bAge {
			return aAge < bAge
		}

		aCover := tagCoverage(a, req.SpecialRequirements)
		bCover := tagCoverage(b, req.SpecialRequirements)
		if aCover != bCover {
			return aCover > bCover
		}

		return a.ID.String() < b.ID.String()
	})

	return units
}

func tagCoverage(u inventory.BloodUnit, tags []string) int {
	n := 0
	for _, tag := range tags {
		if u.HasProperty(tag) {
			n++
		}
	}
	return n
}

// UnitValidation is the outcome of checking one unit against a set of
// required tags and the clock.
type UnitValidation struct {
	Valid  bool
	Issues []string
}

// ValidateUnit checks a single unit for expiry and tag coverage.
func (e *Engine) ValidateUnit(u inventory.BloodUnit, requiredTags []string) UnitValidation {
	v := UnitValidation{Valid: true}

	if u.Expired(e.now()) {
		v.Valid = false
		v.Issues = append(v.Issues, "unit expired")
	}
	for _, tag := range requiredTags {
		if !u.HasProperty(tag) {
			v.Valid = false
			v.Issues = append(v.Issues, fmt.Sprintf("missing requirement: %s", tag))
		}
	}
	return v
}

func alternativesFor(t bloodtype.Type, unitsNeeded int) []Alternative {
	var alts []Alternative

	if plasmaViable(t, unitsNeeded) {
		alts = append(alts, Alternative{
			Type:           "plasma",
			Compatibility:  "high",
			Availability:   "good",
			ProcessingTime: "24 hours",
		})
	}
	if plateletsViable(t, unitsNeeded) {
		alts = append(alts, Alternative{
			Type:           "platelets",
			Compatibility:  "medium",
			Availability:   "limited",
			ProcessingTime: "12 hours",
		})
	}
	if syntheticsViable(t, unitsNeeded) {
		alts = append(alts, Alternative{
			Type:           "synthetic",
			Compatibility:  "universal",
			Availability:   "limited",
			ProcessingTime: "1 hour",
		})
	}
	return alts
}

func plasmaViable(bloodtype.Type, int) bool { return true }

func plateletsViable(bloodtype.Type, int) bool { return true }

// Synthetic substitutes are not in clinical rotation yet.
func syntheticsViable(bloodtype.Type, int) bool { return false }
