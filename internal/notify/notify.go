package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Notification types emitted by the core engines.
const (
	TypeEmergencyInitiated    = "EMERGENCY_REQUEST_INITIATED"
	TypeBloodUnitsNeeded      = "BLOOD_UNITS_NEEDED"
	TypeCoordinationNeeded    = "EMERGENCY_COORDINATION_NEEDED"
	TypeEmergencyStatusUpdate = "EMERGENCY_STATUS_UPDATE"
	TypeResponderAssigned     = "RESPONDER_ASSIGNED"
	TypeLowInventory          = "LOW_INVENTORY"
	TypeBloodExpiry           = "BLOOD_EXPIRY"
	TypeDonationSchedule      = "DONATION_SCHEDULE"
	TypeDonationRecorded      = "DONATION_RECORDED"
	TypeWaitlisted            = "WAITLISTED"
)

type Priority int

const (
	PriorityEmergency Priority = 1
	PriorityUrgent    Priority = 2
	PriorityHigh      Priority = 3
	PriorityMedium    Priority = 4
	PriorityLow       Priority = 5
)

type Notification struct {
	ID        uuid.UUID      `json:"id"`
	Type      string         `json:"type"`
	Priority  Priority       `json:"priority"`
	TargetID  string         `json:"target_id,omitempty"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Result reports the outcome of a delivery attempt. Delivery is
// best-effort: a failed result is observable to the caller but must
// never unwind the operation that produced the notification.
type Result struct {
	Delivered bool
	Reason    string
}

func Delivered() Result { return Result{Delivered: true} }

func Failed(reason string) Result { return Result{Reason: reason} }

// Sink receives structured notifications from the engines. Delivery to
// the outside world (SMS, email, push) lives behind this boundary and
// is not part of the core. Implementations must not block on external
// confirmation.
type Sink interface {
	Notify(ctx context.Context, n Notification) Result
}

// New stamps identity and creation time onto a notification.
func New(typ string, priority Priority, targetID, message string, payload map[string]any) Notification {
	return Notification{
		ID:        uuid.New(),
		Type:      typ,
		Priority:  priority,
		TargetID:  targetID,
		Message:   message,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

func LowInventory(hospitalID, bloodType string, units int) Notification {
	return New(TypeLowInventory, PriorityHigh, hospitalID,
		fmt.Sprintf("%s inventory is low (%d units remaining)", bloodType, units),
		map[string]any{"blood_type": bloodType, "units": units})
}

func BloodExpiry(hospitalID, bloodType string, units int, expiresAt time.Time) Notification {
	return New(TypeBloodExpiry, PriorityHigh, hospitalID,
		fmt.Sprintf("%d units of %s expire on %s", units, bloodType, expiresAt.Format("2006-01-02")),
		map[string]any{"blood_type": bloodType, "units": units, "expires_at": expiresAt})
}

func DonationSchedule(donorID, date, timeLabel string) Notification {
	return New(TypeDonationSchedule, PriorityMedium, donorID,
		fmt.Sprintf("donation appointment scheduled for %s %s", date, timeLabel),
		map[string]any{"date": date, "time": timeLabel})
}

func DonationRecorded(donorID, hospitalID string, appointmentID uuid.UUID) Notification {
	return New(TypeDonationRecorded, PriorityMedium, hospitalID,
		"donation completed, unit ready for inventory intake",
		map[string]any{"donor_id": donorID, "appointment_id": appointmentID.String()})
}
