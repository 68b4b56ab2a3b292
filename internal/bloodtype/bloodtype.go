package bloodtype

import "errors"

var ErrInvalidBloodType = errors.New("invalid blood type")

type Type string

const (
	APos  Type = "A+"
	ANeg  Type = "A-"
	BPos  Type = "B+"
	BNeg  Type = "B-"
	ABPos Type = "AB+"
	ABNeg Type = "AB-"
	OPos  Type = "O+"
	ONeg  Type = "O-"
)

// All lists every supported blood type in a stable order.
var All = []Type{APos, ANeg, BPos, BNeg, ABPos, ABNeg, OPos, ONeg}

// Record describes the transfusion compatibility of one blood type.
// Rarity is the approximate population share of the type, used as a
// ranking weight for scarce inventory.
type Record struct {
	CanDonateTo        []Type
	CanReceiveFrom     []Type
	UniversalDonor     bool
	UniversalRecipient bool
	Rarity             float64
}

var table = map[Type]Record{
	APos: {
		CanDonateTo:    []Type{APos, ABPos},
		CanReceiveFrom: []Type{APos, ANeg, OPos, ONeg},
		Rarity:         0.3,
	},
	ANeg: {
		CanDonateTo:    []Type{APos, ANeg, ABPos, ABNeg},
		CanReceiveFrom: []Type{ANeg, ONeg},
		Rarity:         0.06,
	},
	BPos: {
		CanDonateTo:    []Type{BPos, ABPos},
		CanReceiveFrom: []Type{BPos, BNeg, OPos, ONeg},
		Rarity:         0.08,
	},
	BNeg: {
		CanDonateTo:    []Type{BPos, BNeg, ABPos, ABNeg},
		CanReceiveFrom: []Type{BNeg, ONeg},
		Rarity:         0.02,
	},
	ABPos: {
		CanDonateTo:        []Type{ABPos},
		CanReceiveFrom:     []Type{APos, ANeg, BPos, BNeg, ABPos, ABNeg, OPos, ONeg},
		UniversalRecipient: true,
		Rarity:             0.03,
	},
	ABNeg: {
		CanDonateTo:    []Type{ABPos, ABNeg},
		CanReceiveFrom: []Type{ANeg, BNeg, ABNeg, ONeg},
		Rarity:         0.01,
	},
	OPos: {
		CanDonateTo:    []Type{APos, BPos, ABPos, OPos},
		CanReceiveFrom: []Type{OPos, ONeg},
		Rarity:         0.35,
	},
	ONeg: {
		CanDonateTo:    []Type{APos, ANeg, BPos, BNeg, ABPos, ABNeg, OPos, ONeg},
		CanReceiveFrom: []Type{ONeg},
		UniversalDonor: true,
		Rarity:         0.15,
	},
}

// Parse validates a raw blood type string.
func Parse(s string) (Type, error) {
	t := Type(s)
	if _, ok := table[t]; !ok {
		return "", ErrInvalidBloodType
	}
	return t, nil
}

// Lookup returns the compatibility record for t.
func Lookup(t Type) (Record, error) {
	rec, ok := table[t]
	if !ok {
		return Record{}, ErrInvalidBloodType
	}
	return rec, nil
}

// CompatibleDonors returns the set of donor types whose units may be
// transfused into a recipient of the given type.
func CompatibleDonors(recipient Type) ([]Type, error) {
	rec, ok := table[recipient]
	if !ok {
		return nil, ErrInvalidBloodType
	}
	donors := make([]Type, len(rec.CanReceiveFrom))
	copy(donors, rec.CanReceiveFrom)
	return donors, nil
}

// CanDonate reports whether donor units are compatible with the recipient.
func CanDonate(donor, recipient Type) bool {
	rec, ok := table[donor]
	if !ok {
		return false
	}
	for _, t := range rec.CanDonateTo {
		if t == recipient {
			return true
		}
	}
	return false
}

// Rarity returns the population rarity weight for t, or 0 for an
// unknown type.
func Rarity(t Type) float64 {
	return table[t].Rarity
}
