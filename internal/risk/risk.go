package risk

// Patient attribute categories. Unknown or empty values contribute a
// neutral factor rather than failing the request.
type MedicalHistory string

const (
	HistoryNone        MedicalHistory = "none"
	HistoryMinor       MedicalHistory = "minor"
	HistorySignificant MedicalHistory = "significant"
)

type TransfusionHistory string

const (
	TransfusionNone     TransfusionHistory = "none"
	TransfusionPrevious TransfusionHistory = "previous"
	TransfusionMultiple TransfusionHistory = "multiple"
)

type Pregnancy string

const (
	PregnancyNone     Pregnancy = "none"
	PregnancyPrevious Pregnancy = "previous"
	PregnancyCurrent  Pregnancy = "current"
)

type Urgency string

const (
	UrgencyRoutine   Urgency = "routine"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

type PatientInfo struct {
	Age                int
	MedicalHistory     MedicalHistory
	TransfusionHistory TransfusionHistory
	Pregnancy          Pregnancy
}

var (
	medicalFactors = map[MedicalHistory]float64{
		HistoryNone:        1.0,
		HistoryMinor:       1.1,
		HistorySignificant: 1.3,
	}
	transfusionFactors = map[TransfusionHistory]float64{
		TransfusionNone:     1.0,
		TransfusionPrevious: 1.2,
		TransfusionMultiple: 1.4,
	}
	pregnancyFactors = map[Pregnancy]float64{
		PregnancyNone:     1.0,
		PregnancyPrevious: 1.2,
		PregnancyCurrent:  1.5,
	}
	urgencyFactors = map[Urgency]float64{
		UrgencyRoutine:   1.0,
		UrgencyUrgent:    1.3,
		UrgencyEmergency: 1.5,
	}
)

// Score computes a multiplicative risk score from patient attributes and
// request urgency. The score is a ranking signal only, it never gates
// eligibility. Stateless: recomputed per request.
func Score(info PatientInfo, urgency Urgency) float64 {
	score := 1.0

	// Age brackets: child and adult are neutral, elderly raises risk.
	if info.Age > 65 {
		score *= 1.2
	}

	score *= factorOr(medicalFactors, info.MedicalHistory)
	score *= factorOr(transfusionFactors, info.TransfusionHistory)
	score *= factorOr(pregnancyFactors, info.Pregnancy)
	score *= factorOr(urgencyFactors, urgency)

	return score
}

func factorOr[K comparable](m map[K]float64, key K) float64 {
	if f, ok := m[key]; ok {
		return f
	}
	return 1.0
}
