package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bloodlink/blood-coordination/internal/scheduling"
)

func initSlotsHandler(s *scheduling.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hospitalID := chi.URLParam(r, "hospitalID")

		// All fields are optional; an empty body takes the defaults.
		var req InitSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		cfg := scheduling.DefaultScheduleConfig()
		if req.StartTime != "" {
			cfg.StartTime = req.StartTime
		}
		if req.EndTime != "" {
			cfg.EndTime = req.EndTime
		}
		if req.SlotDurationMin > 0 {
			cfg.SlotDuration = time.Duration(req.SlotDurationMin) * time.Minute
		}
		if req.MaxDonorsPerSlot > 0 {
			cfg.MaxDonorsPerSlot = req.MaxDonorsPerSlot
		}
		if req.BreakWindows != nil {
			cfg.BreakWindows = req.BreakWindows
		}
		if req.DaysAhead > 0 {
			cfg.DaysAhead = req.DaysAhead
		}

		if err := s.InitializeHospitalSlots(hospitalID, cfg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule_config", err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"status": "initialized", "hospital_id": hospitalID})
	}
}

func scheduleAppointmentHandler(s *scheduling.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.HospitalID == "" || req.Date == "" || req.Time == "" || req.DonorID == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "hospital_id, date, time, and donor_id are required")
			return
		}

		appt, err := s.ScheduleAppointment(r.Context(), req.HospitalID, req.Date, req.Time, req.DonorID, req.DonorInfo)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(s *scheduling.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := s.RescheduleAppointment(r.Context(), id, req.Date, req.Time)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(s *scheduling.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, promotion, err := s.CancelAppointment(r.Context(), id)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		resp := CancelAppointmentResponse{
			Appointment: toAppointmentResponse(appt),
			Promotion: PromotionResponse{
				Outcome: string(promotion.Outcome),
				Reason:  promotion.Reason,
			},
		}
		if promotion.Appointment != nil {
			promoted := toAppointmentResponse(promotion.Appointment)
			resp.Promotion.Appointment = &promoted
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func checkInHandler(s *scheduling.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := s.CheckIn(id)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeHandler(s *scheduling.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		// Notes are optional; an empty body means none.
		var req CompleteAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := s.Complete(r.Context(), id, req.Notes)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func availableSlotsHandler(s *scheduling.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hospitalID := chi.URLParam(r, "hospitalID")
		date := r.URL.Query().Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required")
			return
		}
		writeJSON(w, http.StatusOK, s.GetAvailableSlots(hospitalID, date))
	}
}

func waitingListHandler(s *scheduling.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hospitalID := chi.URLParam(r, "hospitalID")
		date := r.URL.Query().Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required")
			return
		}
		writeJSON(w, http.StatusOK, s.GetWaitingList(hospitalID, date))
	}
}

func hospitalAppointmentsHandler(s *scheduling.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hospitalID := chi.URLParam(r, "hospitalID")
		date := r.URL.Query().Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required")
			return
		}

		appts := s.GetHospitalAppointments(hospitalID, date)
		out := make([]AppointmentResponse, 0, len(appts))
		for _, a := range appts {
			out = append(out, toAppointmentResponse(a))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func donorAppointmentsHandler(s *scheduling.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		donorID := chi.URLParam(r, "donorID")

		appts := s.GetDonorAppointments(donorID)
		out := make([]AppointmentResponse, 0, len(appts))
		for _, a := range appts {
			out = append(out, toAppointmentResponse(a))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleSchedulingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrNoSlotsForDate):
		writeError(w, http.StatusNotFound, "no_slots_for_date", err.Error())
	case errors.Is(err, scheduling.ErrInvalidSlot):
		writeError(w, http.StatusNotFound, "invalid_slot", err.Error())
	case errors.Is(err, scheduling.ErrSlotFull):
		writeError(w, http.StatusConflict, "slot_full", err.Error())
	case errors.Is(err, scheduling.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		HospitalID:  a.HospitalID,
		Date:        a.Date,
		Time:        a.Time,
		DonorID:     a.DonorID,
		DonorInfo:   a.DonorInfo,
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
		CheckInAt:   a.CheckInAt,
		CompletedAt: a.CompletedAt,
		Notes:       a.Notes,
	}
}
