package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bloodlink/blood-coordination/internal/notify"
)

type PromotionOutcome string

const (
	PromotionNone     PromotionOutcome = "none"     // waitlist was empty
	PromotionPromoted PromotionOutcome = "promoted" // next donor booked into the freed slot
	PromotionFailed   PromotionOutcome = "failed"   // attempt failed, entry left queued
)

// PromotionResult reports what happened to the waitlist after a
// cancellation. Promotion is best-effort: a failure never rolls the
// cancellation back, but the outcome is returned so callers and tests
// can observe it.
type PromotionResult struct {
	Outcome     PromotionOutcome
	Appointment *Appointment
	Reason      string
}

// Scheduler allocates finite donation appointment capacity. It owns the
// slot arena, the appointment table, and the per-day waitlists; all
// access goes through its methods. Booking mutations for one hospital
// day are serialized by the Locker.
type Scheduler struct {
	locker Locker
	sink   notify.Sink
	logger *zap.Logger
	now    func() time.Time

	mu           sync.Mutex
	configs      map[string]ScheduleConfig
	slots        map[string]map[string][]*Slot // hospitalID -> date -> slots
	appointments map[uuid.UUID]*Appointment
	waitlists    map[string][]WaitlistEntry // hospitalID|date -> FIFO queue
}

func NewScheduler(locker Locker, sink notify.Sink, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		locker:       locker,
		sink:         sink,
		logger:       logger,
		now:          time.Now,
		configs:      make(map[string]ScheduleConfig),
		slots:        make(map[string]map[string][]*Slot),
		appointments: make(map[uuid.UUID]*Appointment),
		waitlists:    make(map[string][]WaitlistEntry),
	}
}

func waitlistKey(hospitalID, date string) string { return hospitalID + "|" + date }

// InitializeHospitalSlots generates the slot horizon for a hospital.
// Every non-Sunday day in the horizon gets one slot per time increment
// outside break windows, each starting empty. Re-running regenerates
// the horizon from scratch.
func (s *Scheduler) InitializeHospitalSlots(hospitalID string, cfg ScheduleConfig) error {
	day, err := generateDaySlots(cfg)
	if err != nil {
		return fmt.Errorf("generate slots for %s: %w", hospitalID, err)
	}

	days := make(map[string][]*Slot)
	start := s.now()
	for i := 0; i < cfg.DaysAhead; i++ {
		date := start.AddDate(0, 0, i)
		if date.Weekday() == time.Sunday {
			continue
		}

		slots := make([]*Slot, len(day))
		for j, template := range day {
			cp := *template
			slots[j] = &cp
		}
		days[date.Format(DateFormat)] = slots
	}

	s.mu.Lock()
	s.configs[hospitalID] = cfg
	s.slots[hospitalID] = days
	s.mu.Unlock()

	s.logger.Info("hospital slots initialized",
		zap.String("hospital_id", hospitalID),
		zap.Int("days", len(days)),
		zap.Int("slots_per_day", len(day)),
	)
	return nil
}

func generateDaySlots(cfg ScheduleConfig) ([]*Slot, error) {
	start, err := parseClock(cfg.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := parseClock(cfg.EndTime)
	if err != nil {
		return nil, err
	}
	breaks, err := parseWindows(cfg.BreakWindows)
	if err != nil {
		return nil, err
	}
	if cfg.SlotDuration <= 0 {
		return nil, fmt.Errorf("slot duration must be positive")
	}

	step := int(cfg.SlotDuration.Minutes())
	var slots []*Slot
	for m := start; m < end; m += step {
		inBreak := false
		for _, w := range breaks {
			if w.contains(m) {
				inBreak = true
				break
			}
		}
		if inBreak {
			continue
		}
		slots = append(slots, &Slot{
			Time:     formatClock(m),
			Capacity: cfg.MaxDonorsPerSlot,
		})
	}
	return slots, nil
}

// findSlot resolves one slot. Caller holds s.mu.
func (s *Scheduler) findSlot(hospitalID, date, timeLabel string) (*Slot, error) {
	daySlots, ok := s.slots[hospitalID][date]
	if !ok {
		return nil, fmt.Errorf("%w: hospital %s date %s", ErrNoSlotsForDate, hospitalID, date)
	}
	for _, slot := range daySlots {
		if slot.Time == timeLabel {
			return slot, nil
		}
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrInvalidSlot, timeLabel, date)
}

// bookLocked books a seat and creates the appointment record. Caller
// holds the day lock for (hospitalID, date).
func (s *Scheduler) bookLocked(hospitalID, date, timeLabel, donorID string, info DonorInfo, status AppointmentStatus) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, err := s.findSlot(hospitalID, date, timeLabel)
	if err != nil {
		return nil, err
	}
	if slot.full() {
		return nil, fmt.Errorf("%w: %s %s %s", ErrSlotFull, hospitalID, date, timeLabel)
	}

	slot.book(donorID)

	now := s.now()
	appt := &Appointment{
		ID:         uuid.New(),
		HospitalID: hospitalID,
		Date:       date,
		Time:       timeLabel,
		DonorID:    donorID,
		DonorInfo:  info,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.appointments[appt.ID] = appt
	return appt.clone(), nil
}

// ScheduleAppointment books a donor into a slot. When the slot is full
// the donor joins the (hospital, date) waitlist and ErrSlotFull is
// returned: a reported condition the caller relays to the donor, not a
// crash.
func (s *Scheduler) ScheduleAppointment(ctx context.Context, hospitalID, date, timeLabel, donorID string, info DonorInfo) (*Appointment, error) {
	var appt *Appointment

	err := s.locker.WithDayLock(ctx, hospitalID, date, func(ctx context.Context) error {
		booked, err := s.bookLocked(hospitalID, date, timeLabel, donorID, info, StatusScheduled)
		if err == nil {
			appt = booked
			return nil
		}
		if !isSlotFull(err) {
			return err
		}

		s.mu.Lock()
		key := waitlistKey(hospitalID, date)
		s.waitlists[key] = append(s.waitlists[key], WaitlistEntry{
			DonorID:       donorID,
			DonorInfo:     info,
			PreferredTime: timeLabel,
			RequestedAt:   s.now(),
		})
		s.mu.Unlock()
		return err
	})
	if err != nil {
		if isSlotFull(err) {
			s.deliver(ctx, notify.New(notify.TypeWaitlisted, notify.PriorityMedium, donorID,
				fmt.Sprintf("slot %s on %s is full, you were added to the waiting list", timeLabel, date),
				map[string]any{"hospital_id": hospitalID, "date": date, "time": timeLabel}))
		}
		return nil, err
	}

	s.deliver(ctx, notify.DonationSchedule(donorID, date, timeLabel))
	return appt, nil
}

func isSlotFull(err error) bool {
	return errors.Is(err, ErrSlotFull)
}

// RescheduleAppointment moves an appointment in two explicit phases:
// the old seat is released first, then the new seat is booked. If the
// new slot is full or invalid the old seat is NOT restored; the
// appointment is closed out as cancelled and the donor must rebook.
func (s *Scheduler) RescheduleAppointment(ctx context.Context, id uuid.UUID, newDate, newTime string) (*Appointment, error) {
	s.mu.Lock()
	appt, ok := s.appointments[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAppointmentNotFound, id)
	}
	if appt.Status != StatusScheduled && appt.Status != StatusRescheduled {
		status := appt.Status
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot reschedule from %s", ErrInvalidStatusTransition, status)
	}
	hospitalID, oldDate, oldTime, donorID := appt.HospitalID, appt.Date, appt.Time, appt.DonorID
	s.mu.Unlock()

	release := func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if slot, err := s.findSlot(hospitalID, oldDate, oldTime); err == nil {
			slot.release(donorID)
		}
		return nil
	}

	book := func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		slot, err := s.findSlot(hospitalID, newDate, newTime)
		if err != nil {
			return err
		}
		if slot.full() {
			return fmt.Errorf("%w: %s %s %s", ErrSlotFull, hospitalID, newDate, newTime)
		}
		slot.book(donorID)

		appt.Date = newDate
		appt.Time = newTime
		appt.Status = StatusRescheduled
		appt.UpdatedAt = s.now()
		return nil
	}

	var err error
	released := false
	if oldDate == newDate {
		err = s.locker.WithDayLock(ctx, hospitalID, oldDate, func(ctx context.Context) error {
			if e := release(ctx); e != nil {
				return e
			}
			released = true
			return book(ctx)
		})
	} else {
		err = s.locker.WithDayLock(ctx, hospitalID, oldDate, release)
		if err == nil {
			released = true
			err = s.locker.WithDayLock(ctx, hospitalID, newDate, book)
		}
	}
	if err != nil {
		// When the old seat was not released the appointment stands
		// untouched. When it was, the donor holds no seat anymore:
		// close the record out so later transitions cannot free a seat
		// that no longer exists.
		if released {
			s.mu.Lock()
			appt.Status = StatusCancelled
			appt.UpdatedAt = s.now()
			s.mu.Unlock()
		}
		return nil, err
	}

	s.mu.Lock()
	out := appt.clone()
	s.mu.Unlock()

	s.deliver(ctx, notify.DonationSchedule(donorID, newDate, newTime))
	return out, nil
}

// CancelAppointment releases the seat and, when the day's waitlist is
// non-empty, attempts to promote the earliest entry into the freed
// slot. The cancellation always completes once initiated; promotion is
// best-effort and its outcome is reported, with a failed entry kept at
// the head of the queue for a future attempt.
func (s *Scheduler) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, PromotionResult, error) {
	s.mu.Lock()
	appt, ok := s.appointments[id]
	if !ok {
		s.mu.Unlock()
		return nil, PromotionResult{}, fmt.Errorf("%w: %s", ErrAppointmentNotFound, id)
	}
	if appt.Status != StatusScheduled && appt.Status != StatusRescheduled {
		status := appt.Status
		s.mu.Unlock()
		return nil, PromotionResult{}, fmt.Errorf("%w: cannot cancel from %s", ErrInvalidStatusTransition, status)
	}
	hospitalID, date, timeLabel, donorID := appt.HospitalID, appt.Date, appt.Time, appt.DonorID
	s.mu.Unlock()

	var cancelled *Appointment
	promotion := PromotionResult{Outcome: PromotionNone}

	err := s.locker.WithDayLock(ctx, hospitalID, date, func(ctx context.Context) error {
		s.mu.Lock()
		if slot, err := s.findSlot(hospitalID, date, timeLabel); err == nil {
			slot.release(donorID)
		}
		appt.Status = StatusCancelled
		appt.UpdatedAt = s.now()
		cancelled = appt.clone()

		key := waitlistKey(hospitalID, date)
		queue := s.waitlists[key]
		s.mu.Unlock()

		if len(queue) == 0 {
			return nil
		}

		// Promote the earliest entry into the seat just freed. The
		// entry is only dequeued after the booking succeeds so that a
		// failed promotion leaves the queue intact.
		next := queue[0]
		promoted, err := s.bookLocked(hospitalID, date, timeLabel, next.DonorID, next.DonorInfo, StatusScheduled)
		if err != nil {
			promotion = PromotionResult{Outcome: PromotionFailed, Reason: err.Error()}
			s.logger.Warn("waitlist promotion failed",
				zap.String("hospital_id", hospitalID),
				zap.String("date", date),
				zap.String("donor_id", next.DonorID),
				zap.Error(err),
			)
			return nil
		}

		s.mu.Lock()
		s.waitlists[key] = s.waitlists[key][1:]
		s.mu.Unlock()

		promotion = PromotionResult{Outcome: PromotionPromoted, Appointment: promoted}
		return nil
	})
	if err != nil {
		return nil, PromotionResult{}, err
	}

	if promotion.Outcome == PromotionPromoted {
		s.deliver(ctx, notify.DonationSchedule(promotion.Appointment.DonorID, date, timeLabel))
	}
	return cancelled, promotion, nil
}

// CheckIn marks a donor as arrived. Legal only from scheduled or
// rescheduled.
func (s *Scheduler) CheckIn(id uuid.UUID) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appointments[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAppointmentNotFound, id)
	}
	if appt.Status != StatusScheduled && appt.Status != StatusRescheduled {
		return nil, fmt.Errorf("%w: cannot check in from %s", ErrInvalidStatusTransition, appt.Status)
	}

	now := s.now()
	appt.Status = StatusCheckedIn
	appt.CheckInAt = &now
	appt.UpdatedAt = now
	return appt.clone(), nil
}

// Complete finishes a donation. Legal only from checked-in. Emits a
// donation-recorded notification so the inventory side can intake a
// new unit from this donation.
func (s *Scheduler) Complete(ctx context.Context, id uuid.UUID, notes string) (*Appointment, error) {
	s.mu.Lock()
	appt, ok := s.appointments[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAppointmentNotFound, id)
	}
	if appt.Status != StatusCheckedIn {
		status := appt.Status
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot complete from %s", ErrInvalidStatusTransition, status)
	}

	now := s.now()
	appt.Status = StatusCompleted
	appt.CompletedAt = &now
	appt.UpdatedAt = now
	if notes != "" {
		appt.Notes = append(appt.Notes, Note{Content: notes, Timestamp: now})
	}
	out := appt.clone()
	s.mu.Unlock()

	s.deliver(ctx, notify.DonationRecorded(out.DonorID, out.HospitalID, out.ID))
	return out, nil
}

// GetAvailableSlots returns a snapshot of the day's slots.
func (s *Scheduler) GetAvailableSlots(hospitalID, date string) []Slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	daySlots := s.slots[hospitalID][date]
	out := make([]Slot, 0, len(daySlots))
	for _, slot := range daySlots {
		cp := *slot
		cp.Donors = append([]string(nil), slot.Donors...)
		out = append(out, cp)
	}
	return out
}

// GetDonorAppointments lists a donor's appointments, newest first.
func (s *Scheduler) GetDonorAppointments(donorID string) []*Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Appointment
	for _, appt := range s.appointments {
		if appt.DonorID == donorID {
			out = append(out, appt.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// GetHospitalAppointments lists one hospital day ordered by slot time.
func (s *Scheduler) GetHospitalAppointments(hospitalID, date string) []*Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Appointment
	for _, appt := range s.appointments {
		if appt.HospitalID == hospitalID && appt.Date == date {
			out = append(out, appt.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Time < out[j].Time
	})
	return out
}

// GetWaitingList returns a copy of the FIFO queue for a hospital day.
func (s *Scheduler) GetWaitingList(hospitalID, date string) []WaitlistEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := s.waitlists[waitlistKey(hospitalID, date)]
	out := make([]WaitlistEntry, len(queue))
	copy(out, queue)
	return out
}

func (s *Scheduler) deliver(ctx context.Context, n notify.Notification) {
	if res := s.sink.Notify(ctx, n); !res.Delivered {
		s.logger.Warn("notification delivery failed",
			zap.String("type", n.Type), zap.String("reason", res.Reason))
	}
}
