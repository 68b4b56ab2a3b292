package emergency

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/blood-coordination/internal/bloodtype"
	"github.com/bloodlink/blood-coordination/internal/risk"
)

type Condition string

const (
	ConditionCritical Condition = "CRITICAL"
	ConditionSevere   Condition = "SEVERE"
	ConditionSerious  Condition = "SERIOUS"
	ConditionStable   Condition = "STABLE"
)

type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Level is one of five severity tiers. Lower is more severe.
type Level int

const (
	LevelCritical Level = 1
	LevelUrgent   Level = 2
	LevelHigh     Level = 3
	LevelModerate Level = 4
	LevelRoutine  Level = 5
)

func (l Level) String() string {
	switch l {
	case LevelCritical:
		return "CRITICAL"
	case LevelUrgent:
		return "URGENT"
	case LevelHigh:
		return "HIGH"
	case LevelModerate:
		return "MODERATE"
	case LevelRoutine:
		return "ROUTINE"
	}
	return "UNKNOWN"
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DistanceKm is the great-circle distance between two points.
func (l Location) DistanceKm(other Location) float64 {
	const earthRadiusKm = 6371.0

	lat1 := l.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := (other.Latitude - l.Latitude) * math.Pi / 180
	dLon := (other.Longitude - l.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Intake is the caller-supplied portion of an emergency request.
type Intake struct {
	RecipientType        bloodtype.Type
	UnitsNeeded          int
	SpecialRequirements  []string
	Patient              risk.PatientInfo
	PatientCondition     Condition
	BloodLossVolumeML    float64
	RequiredWithinHours  float64
	IsTrauma             bool
	IsChildbirth         bool
	IsOrgan              bool
	RequestingHospitalID string
	Location             Location
}

type TimelineEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
}

// BloodSource is one hospital able to supply units for a request.
type BloodSource struct {
	HospitalID string                 `json:"hospital_id"`
	Name       string                 `json:"name"`
	DistanceKm float64                `json:"distance_km"`
	Inventory  map[bloodtype.Type]int `json:"inventory"`
	TotalUnits int                    `json:"total_units"`
}

// Request is an emergency blood request. Owned exclusively by the
// dispatcher for its lifetime; immutable once COMPLETED or CANCELLED.
type Request struct {
	ID            uuid.UUID
	Intake        Intake
	Status        Status
	PriorityScore int
	Priority      Level
	RiskScore     float64
	Sources       []BloodSource
	Responders    []Responder
	Timeline      []TimelineEvent
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r *Request) terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusCancelled
}

// clone returns a defensive copy so callers never share slices with the
// dispatcher-owned record.
func (r *Request) clone() *Request {
	cp := *r
	cp.Sources = append([]BloodSource(nil), r.Sources...)
	cp.Responders = append([]Responder(nil), r.Responders...)
	cp.Timeline = append([]TimelineEvent(nil), r.Timeline...)
	return &cp
}
