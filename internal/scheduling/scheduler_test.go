package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bloodlink/blood-coordination/internal/notify"
)

type failingSink struct {
	calls int
}

func (s *failingSink) Notify(context.Context, notify.Notification) notify.Result {
	s.calls++
	return notify.Failed("downstream unavailable")
}

type nopSink struct{}

func (nopSink) Notify(context.Context, notify.Notification) notify.Result {
	return notify.Delivered()
}

// newTestScheduler pins the clock to a Monday so generated dates are
// stable across test runs.
func newTestScheduler(t *testing.T) (*Scheduler, string) {
	t.Helper()

	s := NewScheduler(NewMutexLocker(), nopSink{}, zap.NewNop())
	monday := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return monday }

	require.NoError(t, s.InitializeHospitalSlots("hosp-1", DefaultScheduleConfig()))
	return s, monday.Format(DateFormat)
}

func TestGenerateDaySlots(t *testing.T) {
	slots, err := generateDaySlots(DefaultScheduleConfig())
	require.NoError(t, err)

	// 09:00-17:00 at 30 minutes is 16 increments; the 13:00-14:00
	// break removes 13:00 and 13:30.
	assert.Len(t, slots, 14)

	times := make(map[string]bool)
	for _, slot := range slots {
		times[slot.Time] = true
		assert.Equal(t, 3, slot.Capacity)
		assert.Zero(t, slot.Booked)
	}
	assert.True(t, times["09:00"])
	assert.True(t, times["12:30"])
	assert.True(t, times["14:00"])
	assert.True(t, times["16:30"])
	assert.False(t, times["13:00"])
	assert.False(t, times["13:30"])
	assert.False(t, times["17:00"])
}

func TestGenerateDaySlotsBadConfig(t *testing.T) {
	cfg := DefaultScheduleConfig()
	cfg.StartTime = "nine"
	_, err := generateDaySlots(cfg)
	assert.Error(t, err)

	cfg = DefaultScheduleConfig()
	cfg.BreakWindows = []string{"13:00"}
	_, err = generateDaySlots(cfg)
	assert.Error(t, err)

	cfg = DefaultScheduleConfig()
	cfg.SlotDuration = 0
	_, err = generateDaySlots(cfg)
	assert.Error(t, err)
}

func TestInitializeSkipsSundays(t *testing.T) {
	s, _ := newTestScheduler(t)

	days := s.slots["hosp-1"]
	// 30-day horizon from Monday 2025-01-06 spans 4 Sundays.
	assert.Len(t, days, 26)

	for date := range days {
		d, err := time.Parse(DateFormat, date)
		require.NoError(t, err)
		assert.NotEqual(t, time.Sunday, d.Weekday(), "slots generated on Sunday %s", date)
	}
}

func TestScheduleAppointment(t *testing.T) {
	s, date := newTestScheduler(t)
	ctx := context.Background()

	appt, err := s.ScheduleAppointment(ctx, "hosp-1", date, "09:00", "donor-1", DonorInfo{Name: "Asha"})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, "09:00", appt.Time)

	slots := s.GetAvailableSlots("hosp-1", date)
	require.NotEmpty(t, slots)
	assert.Equal(t, 1, slots[0].Booked)
	assert.Equal(t, []string{"donor-1"}, slots[0].Donors)
}

func TestScheduleAppointmentErrors(t *testing.T) {
	s, date := newTestScheduler(t)
	ctx := context.Background()

	_, err := s.ScheduleAppointment(ctx, "hosp-1", "2030-01-01", "09:00", "d", DonorInfo{})
	assert.ErrorIs(t, err, ErrNoSlotsForDate)

	_, err = s.ScheduleAppointment(ctx, "hosp-1", date, "13:00", "d", DonorInfo{})
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = s.ScheduleAppointment(ctx, "hosp-unknown", date, "09:00", "d", DonorInfo{})
	assert.ErrorIs(t, err, ErrNoSlotsForDate)
}

func TestSlotFullAddsToWaitlist(t *testing.T) {
	s, date := newTestScheduler(t)
	ctx := context.Background()

	// Capacity is 3: three bookings succeed, the fourth queues.
	for i, donor := range []string{"d1", "d2", "d3"} {
		_, err := s.ScheduleAppointment(ctx, "hosp-1", date, "10:00", donor, DonorInfo{})
		require.NoError(t, err, "booking %d should fit", i+1)
	}

	_, err := s.ScheduleAppointment(ctx, "hosp-1", date, "10:00", "d4", DonorInfo{Name: "Queued"})
	assert.ErrorIs(t, err, ErrSlotFull)

	queue := s.GetWaitingList("hosp-1", date)
	require.Len(t, queue, 1)
	assert.Equal(t, "d4", queue[0].DonorID)
	assert.Equal(t, "10:00", queue[0].PreferredTime)
}

func TestCancelPromotesFromWaitlist(t *testing.T) {
	s, date := newTestScheduler(t)
	ctx := context.Background()

	first, err := s.ScheduleAppointment(ctx, "hosp-1", date, "10:00", "d1", DonorInfo{})
	require.NoError(t, err)
	for _, donor := range []string{"d2", "d3"} {
		_, err := s.ScheduleAppointment(ctx, "hosp-1", date, "10:00", donor, DonorInfo{})
		require.NoError(t, err)
	}
	_, err = s.ScheduleAppointment(ctx, "hosp-1", date, "10:00", "d4", DonorInfo{})
	require.ErrorIs(t, err, ErrSlotFull)

	cancelled, promotion, err := s.CancelAppointment(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	require.Equal(t, PromotionPromoted, promotion.Outcome)
	require.NotNil(t, promotion.Appointment)
	assert.Equal(t, "d4", promotion.Appointment.DonorID)
	assert.Equal(t, StatusScheduled, promotion.Appointment.Status)
	assert.Equal(t, "10:00", promotion.Appointment.Time)

	// Seat released then immediately re-booked: occupancy unchanged,
	// queue drained.
	for _, slot := range s.GetAvailableSlots("hosp-1", date) {
		if slot.Time == "10:00" {
			assert.Equal(t, 3, slot.Booked)
			assert.NotContains(t, slot.Donors, "d1")
			assert.Contains(t, slot.Donors, "d4")
		}
	}
	assert.Empty(t, s.GetWaitingList("hosp-1", date))
}

func TestCancelWithEmptyWaitlist(t *testing.T) {
	s, date := newTestScheduler(t)
	ctx := context.Background()

	appt, err := s.ScheduleAppointment(ctx, "hosp-1", date, "11:00", "d1", DonorInfo{})
	require.NoError(t, err)

	_, promotion, err := s.CancelAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, PromotionNone, promotion.Outcome)

	_, _, err = s.CancelAppointment(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestCancelIllegalFromCheckedIn(t *testing.T) {
	s, date := newTestScheduler(t)
	ctx := context.Background()

	appt, err := s.ScheduleAppointment(ctx, "hosp-1", date, "11:00", "d1", DonorInfo{})
	require.NoError(t, err)
	_, err = s.CheckIn(appt.ID)
	require.NoError(t, err)

	_, _, err = s.CancelAppointment(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestRescheduleAppointment(t *testing.T) {
	s, date := newTestScheduler(t)
	ctx := context.Background()

	appt, err := s.ScheduleAppointment(ctx, "hosp-1", date, "09:00", "d1", DonorInfo{})
	require.NoError(t, err)

	moved, err := s.RescheduleAppointment(ctx, appt.ID, date, "14:30")
	require.NoError(t, err)
	assert.Equal(t, StatusRescheduled, moved.Status)
	assert.Equal(t, "14:30", moved.Time)

	for _, slot := range s.GetAvailableSlots("hosp-1", date) {
		switch slot.Time {
		case "09:00":
			assert.Zero(t, slot.Booked)
		case "14:30":
			assert.Equal(t, 1, slot.Booked)
		}
	}
}

// The old seat is released before the new booking is attempted. A full
// target slot therefore leaves the donor without any seat, and the
// record closes out as cancelled.
func TestRescheduleIntoFullSlotStrandsDonor(t *testing.T) {
	s, date := newTestScheduler(t)
	ctx := context.Background()

	appt, err := s.ScheduleAppointment(ctx, "hosp-1", date, "09:00", "mover", DonorInfo{})
	require.NoError(t, err)

	for _, donor := range []string{"d1", "d2", "d3"} {
		_, err := s.ScheduleAppointment(ctx, "hosp-1", date, "10:00", donor, DonorInfo{})
		require.NoError(t, err)
	}

	_, err = s.RescheduleAppointment(ctx, appt.ID, date, "10:00")
	assert.ErrorIs(t, err, ErrSlotFull)

	for _, slot := range s.GetAvailableSlots("hosp-1", date) {
		switch slot.Time {
		case "09:00":
			assert.Zero(t, slot.Booked, "old seat stays released")
		case "10:00":
			assert.Equal(t, 3, slot.Booked, "full slot never exceeds capacity")
		}
	}

	got := s.GetDonorAppointments("mover")
	require.Len(t, got, 1)
	assert.Equal(t, StatusCancelled, got[0].Status)
}

// A seatless record left over from a failed reschedule must not be
// able to free anyone else's seat. Cancelling or checking in the
// stranded appointment is rejected, the old slot keeps its remaining
// donor, and its spare capacity is exactly what it should be.
func TestFailedRescheduleDoesNotCorruptOldSlot(t *testing.T) {
	s, date := newTestScheduler(t)
	ctx := context.Background()

	mover, err := s.ScheduleAppointment(ctx, "hosp-1", date, "09:00", "mover", DonorInfo{})
	require.NoError(t, err)
	_, err = s.ScheduleAppointment(ctx, "hosp-1", date, "09:00", "stayer", DonorInfo{})
	require.NoError(t, err)

	for _, donor := range []string{"d1", "d2", "d3"} {
		_, err := s.ScheduleAppointment(ctx, "hosp-1", date, "10:00", donor, DonorInfo{})
		require.NoError(t, err)
	}

	_, err = s.RescheduleAppointment(ctx, mover.ID, date, "10:00")
	require.ErrorIs(t, err, ErrSlotFull)

	_, _, err = s.CancelAppointment(ctx, mover.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	_, err = s.CheckIn(mover.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	for _, slot := range s.GetAvailableSlots("hosp-1", date) {
		if slot.Time == "09:00" {
			assert.Equal(t, 1, slot.Booked)
			assert.Equal(t, []string{"stayer"}, slot.Donors)
		}
	}

	// Exactly two seats remain at 09:00, not three.
	for _, donor := range []string{"x1", "x2"} {
		_, err := s.ScheduleAppointment(ctx, "hosp-1", date, "09:00", donor, DonorInfo{})
		require.NoError(t, err)
	}
	_, err = s.ScheduleAppointment(ctx, "hosp-1", date, "09:00", "x3", DonorInfo{})
	assert.ErrorIs(t, err, ErrSlotFull)
}

// Releasing a donor who holds no seat frees nothing; Booked tracks
// len(Donors) exactly.
func TestReleaseUnknownDonorKeepsOccupancy(t *testing.T) {
	slot := &Slot{Time: "09:00", Capacity: 3}
	slot.book("d1")

	slot.release("ghost")
	assert.Equal(t, 1, slot.Booked)
	assert.Equal(t, []string{"d1"}, slot.Donors)

	slot.release("d1")
	slot.release("d1")
	assert.Zero(t, slot.Booked)
	assert.Empty(t, slot.Donors)
}

// flakyLocker refuses to lock one specific date, standing in for a
// Redis day lock that cannot be acquired.
type flakyLocker struct {
	inner Locker
	deny  string
}

func (l *flakyLocker) WithDayLock(ctx context.Context, hospitalID, date string, fn func(ctx context.Context) error) error {
	if date == l.deny {
		return errors.New("lock unavailable")
	}
	return l.inner.WithDayLock(ctx, hospitalID, date, fn)
}

// A failed lock on the release phase must abort the whole reschedule
// with nothing moved, never proceed to book a second seat.
func TestRescheduleAbortsWhenReleaseLockFails(t *testing.T) {
	lk := &flakyLocker{inner: NewMutexLocker()}
	s := NewScheduler(lk, nopSink{}, zap.NewNop())
	monday := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return monday }
	require.NoError(t, s.InitializeHospitalSlots("hosp-1", DefaultScheduleConfig()))

	ctx := context.Background()
	date := monday.Format(DateFormat)
	next := monday.AddDate(0, 0, 1).Format(DateFormat)

	appt, err := s.ScheduleAppointment(ctx, "hosp-1", date, "09:00", "d1", DonorInfo{})
	require.NoError(t, err)

	lk.deny = date
	_, err = s.RescheduleAppointment(ctx, appt.ID, next, "09:00")
	require.Error(t, err)

	for _, slot := range s.GetAvailableSlots("hosp-1", date) {
		if slot.Time == "09:00" {
			assert.Equal(t, 1, slot.Booked, "old seat untouched")
		}
	}
	for _, slot := range s.GetAvailableSlots("hosp-1", next) {
		assert.Zero(t, slot.Booked, "no seat booked on the target day")
	}

	got := s.GetDonorAppointments("d1")
	require.Len(t, got, 1)
	assert.Equal(t, StatusScheduled, got[0].Status)
}

func TestCheckInAndComplete(t *testing.T) {
	s, date := newTestScheduler(t)
	ctx := context.Background()

	appt, err := s.ScheduleAppointment(ctx, "hosp-1", date, "09:30", "d1", DonorInfo{})
	require.NoError(t, err)

	// Complete before check-in is illegal.
	_, err = s.Complete(ctx, appt.ID, "")
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	checked, err := s.CheckIn(appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckedIn, checked.Status)
	require.NotNil(t, checked.CheckInAt)

	// Double check-in is illegal.
	_, err = s.CheckIn(appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	done, err := s.Complete(ctx, appt.ID, "450ml collected, donor fine")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	require.Len(t, done.Notes, 1)
	assert.Equal(t, "450ml collected, donor fine", done.Notes[0].Content)
}

func TestGetDonorAppointments(t *testing.T) {
	s, date := newTestScheduler(t)
	ctx := context.Background()

	times := []string{"09:00", "10:30", "15:00"}
	stamp := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	for i, tl := range times {
		// advance the clock so CreatedAt ordering is observable
		tick := stamp.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return tick }
		_, err := s.ScheduleAppointment(ctx, "hosp-1", date, tl, "d1", DonorInfo{})
		require.NoError(t, err)
	}

	appts := s.GetDonorAppointments("d1")
	require.Len(t, appts, 3)
	assert.Equal(t, "15:00", appts[0].Time, "newest first")

	byDay := s.GetHospitalAppointments("hosp-1", date)
	require.Len(t, byDay, 3)
	assert.Equal(t, "09:00", byDay[0].Time, "hospital view ordered by slot time")
}

func TestFailedNotificationDoesNotFailBooking(t *testing.T) {
	sink := &failingSink{}
	s := NewScheduler(NewMutexLocker(), sink, zap.NewNop())
	monday := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return monday }
	require.NoError(t, s.InitializeHospitalSlots("hosp-1", DefaultScheduleConfig()))

	appt, err := s.ScheduleAppointment(context.Background(), "hosp-1", monday.Format(DateFormat), "09:00", "d1", DonorInfo{})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Positive(t, sink.calls)
}

// Hammer one slot from many goroutines: bookings must never exceed
// capacity and every loser must land on the waitlist exactly once.
func TestConcurrentBookingNeverExceedsCapacity(t *testing.T) {
	s, date := newTestScheduler(t)
	ctx := context.Background()

	const attempts = 20
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = s.ScheduleAppointment(ctx, "hosp-1", date, "12:00", uuid.NewString(), DonorInfo{})
		}(i)
	}
	wg.Wait()

	booked := 0
	for _, err := range errs {
		if err == nil {
			booked++
		} else {
			require.ErrorIs(t, err, ErrSlotFull)
		}
	}
	assert.Equal(t, 3, booked)

	for _, slot := range s.GetAvailableSlots("hosp-1", date) {
		if slot.Time == "12:00" {
			assert.Equal(t, 3, slot.Booked)
		}
	}
	assert.Len(t, s.GetWaitingList("hosp-1", date), attempts-3)
}
