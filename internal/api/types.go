package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/blood-coordination/internal/emergency"
	"github.com/bloodlink/blood-coordination/internal/matching"
	"github.com/bloodlink/blood-coordination/internal/scheduling"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Matching

type PatientInfoRequest struct {
	Age                int    `json:"age"`
	MedicalHistory     string `json:"medical_history,omitempty"`
	TransfusionHistory string `json:"transfusion_history,omitempty"`
	Pregnancy          string `json:"pregnancy,omitempty"`
}

type FindMatchRequest struct {
	RecipientBloodType  string             `json:"recipient_blood_type"`
	UnitsNeeded         int                `json:"units_needed"`
	SpecialRequirements []string           `json:"special_requirements,omitempty"`
	Patient             PatientInfoRequest `json:"patient_info"`
	Urgency             string             `json:"urgency,omitempty"`
}

type BloodUnitResponse struct {
	ID          uuid.UUID `json:"id"`
	BloodType   string    `json:"blood_type"`
	CollectedAt time.Time `json:"collected_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Properties  []string  `json:"properties,omitempty"`
	HospitalID  string    `json:"hospital_id"`
}

type FindMatchResponse struct {
	Matches      []BloodUnitResponse    `json:"matches"`
	RiskScore    float64                `json:"risk_score"`
	Shortfall    int                    `json:"shortfall"`
	Alternatives []matching.Alternative `json:"alternatives"`
}

type ConsumeUnitRequest struct {
	UnitID string `json:"unit_id"`
}

// Emergencies

type CreateEmergencyRequest struct {
	RecipientBloodType   string             `json:"recipient_blood_type"`
	UnitsNeeded          int                `json:"units_needed"`
	SpecialRequirements  []string           `json:"special_requirements,omitempty"`
	Patient              PatientInfoRequest `json:"patient_info"`
	PatientCondition     string             `json:"patient_condition"`
	BloodLossVolumeML    float64            `json:"blood_loss_volume_ml"`
	RequiredWithinHours  float64            `json:"required_within_hours"`
	IsTrauma             bool               `json:"is_trauma"`
	IsChildbirth         bool               `json:"is_childbirth"`
	IsOrgan              bool               `json:"is_organ"`
	RequestingHospitalID string             `json:"requesting_hospital_id"`
	Location             emergency.Location `json:"location"`
}

type UpdateEmergencyStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

type EmergencyResponse struct {
	ID            uuid.UUID                 `json:"id"`
	Status        string                    `json:"status"`
	PriorityScore int                       `json:"priority_score"`
	Priority      string                    `json:"priority"`
	RiskScore     float64                   `json:"risk_score"`
	Sources       []emergency.BloodSource   `json:"sources"`
	Responders    []emergency.Responder     `json:"responders"`
	Timeline      []emergency.TimelineEvent `json:"timeline"`
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

// Scheduling

type InitSlotsRequest struct {
	StartTime        string   `json:"start_time,omitempty"`
	EndTime          string   `json:"end_time,omitempty"`
	SlotDurationMin  int      `json:"slot_duration_minutes,omitempty"`
	MaxDonorsPerSlot int      `json:"max_donors_per_slot,omitempty"`
	BreakWindows     []string `json:"break_windows,omitempty"`
	DaysAhead        int      `json:"days_ahead,omitempty"`
}

type ScheduleAppointmentRequest struct {
	HospitalID string               `json:"hospital_id"`
	Date       string               `json:"date"`
	Time       string               `json:"time"`
	DonorID    string               `json:"donor_id"`
	DonorInfo  scheduling.DonorInfo `json:"donor_info"`
}

type RescheduleAppointmentRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type CompleteAppointmentRequest struct {
	Notes string `json:"notes,omitempty"`
}

type AppointmentResponse struct {
	ID          uuid.UUID            `json:"id"`
	HospitalID  string               `json:"hospital_id"`
	Date        string               `json:"date"`
	Time        string               `json:"time"`
	DonorID     string               `json:"donor_id"`
	DonorInfo   scheduling.DonorInfo `json:"donor_info"`
	Status      string               `json:"status"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	CheckInAt   *time.Time           `json:"check_in_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	Notes       []scheduling.Note    `json:"notes,omitempty"`
}

type CancelAppointmentResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	Promotion   PromotionResponse   `json:"promotion"`
}

type PromotionResponse struct {
	Outcome     string               `json:"outcome"`
	Appointment *AppointmentResponse `json:"appointment,omitempty"`
	Reason      string               `json:"reason,omitempty"`
}
