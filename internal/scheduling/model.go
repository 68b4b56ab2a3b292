package scheduling

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNoSlotsForDate          = errors.New("no slots available for this date")
	ErrInvalidSlot             = errors.New("invalid time slot")
	ErrSlotFull                = errors.New("slot is full")
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrInvalidStatusTransition = errors.New("invalid appointment status transition")
)

// DateFormat is the canonical key for a hospital day.
const DateFormat = "2006-01-02"

// ScheduleConfig is the per-hospital slot generation policy.
type ScheduleConfig struct {
	StartTime        string        // "09:00"
	EndTime          string        // "17:00"
	SlotDuration     time.Duration // length of one slot
	MaxDonorsPerSlot int           // capacity per slot
	BreakWindows     []string      // "13:00-14:00"
	DaysAhead        int           // generation horizon
}

func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		StartTime:        "09:00",
		EndTime:          "17:00",
		SlotDuration:     30 * time.Minute,
		MaxDonorsPerSlot: 3,
		BreakWindows:     []string{"13:00-14:00"},
		DaysAhead:        30,
	}
}

// Slot is a bounded-capacity unit of donation time on one hospital day.
type Slot struct {
	Time     string   `json:"time"`
	Capacity int      `json:"capacity"`
	Booked   int      `json:"booked"`
	Donors   []string `json:"donors"`
}

func (s *Slot) full() bool { return s.Booked >= s.Capacity }

func (s *Slot) book(donorID string) {
	s.Booked++
	s.Donors = append(s.Donors, donorID)
}

// release frees the donor's seat. A donor not holding a seat in this
// slot frees nothing, so Booked always equals len(Donors).
func (s *Slot) release(donorID string) {
	for i, id := range s.Donors {
		if id == donorID {
			s.Donors = append(s.Donors[:i], s.Donors[i+1:]...)
			s.Booked--
			return
		}
	}
}

type AppointmentStatus string

const (
	StatusScheduled   AppointmentStatus = "scheduled"
	StatusRescheduled AppointmentStatus = "rescheduled"
	StatusCheckedIn   AppointmentStatus = "checked-in"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCancelled   AppointmentStatus = "cancelled"
)

type DonorInfo struct {
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	BloodType string `json:"blood_type,omitempty"`
}

type Note struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Appointment struct {
	ID          uuid.UUID
	HospitalID  string
	Date        string
	Time        string
	DonorID     string
	DonorInfo   DonorInfo
	Status      AppointmentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CheckInAt   *time.Time
	CompletedAt *time.Time
	Notes       []Note
}

func (a *Appointment) clone() *Appointment {
	cp := *a
	cp.Notes = append([]Note(nil), a.Notes...)
	return &cp
}

// WaitlistEntry queues a donor for a full hospital day, FIFO by
// request time.
type WaitlistEntry struct {
	DonorID       string    `json:"donor_id"`
	DonorInfo     DonorInfo `json:"donor_info"`
	PreferredTime string    `json:"preferred_time"`
	RequestedAt   time.Time `json:"requested_at"`
}

// clock helpers: slot times are minute-of-day labels like "13:30".

func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return h*60 + m, nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

type window struct{ start, end int }

func parseWindows(specs []string) ([]window, error) {
	var out []window
	for _, spec := range specs {
		parts := strings.SplitN(spec, "-", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid break window %q", spec)
		}
		start, err := parseClock(parts[0])
		if err != nil {
			return nil, err
		}
		end, err := parseClock(parts[1])
		if err != nil {
			return nil, err
		}
		out = append(out, window{start: start, end: end})
	}
	return out, nil
}

func (w window) contains(minute int) bool {
	return w.start <= minute && minute < w.end
}
