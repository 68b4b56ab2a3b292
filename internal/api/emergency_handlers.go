package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bloodlink/blood-coordination/internal/bloodtype"
	"github.com/bloodlink/blood-coordination/internal/emergency"
)

func createEmergencyHandler(d *emergency.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateEmergencyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		bt, err := bloodtype.Parse(req.RecipientBloodType)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_blood_type", err.Error())
			return
		}
		if req.UnitsNeeded <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_units_needed", "units_needed must be a positive integer")
			return
		}

		created, err := d.CreateEmergencyRequest(r.Context(), emergency.Intake{
			RecipientType:        bt,
			UnitsNeeded:          req.UnitsNeeded,
			SpecialRequirements:  req.SpecialRequirements,
			Patient:              toPatientInfo(req.Patient),
			PatientCondition:     emergency.Condition(req.PatientCondition),
			BloodLossVolumeML:    req.BloodLossVolumeML,
			RequiredWithinHours:  req.RequiredWithinHours,
			IsTrauma:             req.IsTrauma,
			IsChildbirth:         req.IsChildbirth,
			IsOrgan:              req.IsOrgan,
			RequestingHospitalID: req.RequestingHospitalID,
			Location:             req.Location,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, toEmergencyResponse(created))
	}
}

func updateEmergencyStatusHandler(d *emergency.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_emergency_id", "id must be a valid UUID")
			return
		}

		var req UpdateEmergencyStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		err = d.UpdateRequestStatus(r.Context(), id, emergency.Status(req.Status), req.Notes)
		if err != nil {
			handleEmergencyError(w, err)
			return
		}

		updated, err := d.GetEmergencyDetails(id)
		if err != nil {
			handleEmergencyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toEmergencyResponse(updated))
	}
}

func getEmergencyHandler(d *emergency.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_emergency_id", "id must be a valid UUID")
			return
		}

		req, err := d.GetEmergencyDetails(id)
		if err != nil {
			handleEmergencyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toEmergencyResponse(req))
	}
}

func listActiveEmergenciesHandler(d *emergency.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active := d.GetActiveEmergencies()
		out := make([]EmergencyResponse, 0, len(active))
		for _, req := range active {
			out = append(out, toEmergencyResponse(req))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleEmergencyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, emergency.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "emergency_not_found", err.Error())
	case errors.Is(err, emergency.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func toEmergencyResponse(req *emergency.Request) EmergencyResponse {
	return EmergencyResponse{
		ID:            req.ID,
		Status:        string(req.Status),
		PriorityScore: req.PriorityScore,
		Priority:      req.Priority.String(),
		RiskScore:     req.RiskScore,
		Sources:       req.Sources,
		Responders:    req.Responders,
		Timeline:      req.Timeline,
		CreatedAt:     req.CreatedAt,
		UpdatedAt:     req.UpdatedAt,
	}
}
