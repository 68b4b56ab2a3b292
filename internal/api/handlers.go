package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/bloodlink/blood-coordination/internal/bloodtype"
	"github.com/bloodlink/blood-coordination/internal/inventory"
	"github.com/bloodlink/blood-coordination/internal/matching"
	"github.com/bloodlink/blood-coordination/internal/risk"
)

func findMatchHandler(engine *matching.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FindMatchRequest
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

		res, err := engine.FindMatch(r.Context(), matching.Request{
			RecipientType:       bt,
			UnitsNeeded:         req.UnitsNeeded,
			SpecialRequirements: req.SpecialRequirements,
			Patient:             toPatientInfo(req.Patient),
			Urgency:             risk.Urgency(req.Urgency),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := FindMatchResponse{
			Matches:      make([]BloodUnitResponse, 0, len(res.Matches)),
			RiskScore:    res.RiskScore,
			Shortfall:    res.Shortfall,
			Alternatives: res.Alternatives,
		}
		for _, u := range res.Matches {
			resp.Matches = append(resp.Matches, toUnitResponse(u))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// consumeUnitHandler is the explicit allocation step after a confirmed
// match.
func consumeUnitHandler(repo inventory.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConsumeUnitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		unitID, err := uuid.Parse(req.UnitID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_unit_id", "unit_id must be a valid UUID")
			return
		}

		if err := repo.Consume(r.Context(), unitID); err != nil {
			switch {
			case errors.Is(err, inventory.ErrUnitNotFound):
				writeError(w, http.StatusNotFound, "unit_not_found", err.Error())
			case errors.Is(err, inventory.ErrAlreadyConsumed):
				writeError(w, http.StatusConflict, "unit_already_consumed", err.Error())
			default:
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			}
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "consumed", "unit_id": unitID.String()})
	}
}

func toPatientInfo(p PatientInfoRequest) risk.PatientInfo {
	return risk.PatientInfo{
		Age:                p.Age,
		MedicalHistory:     risk.MedicalHistory(p.MedicalHistory),
		TransfusionHistory: risk.TransfusionHistory(p.TransfusionHistory),
		Pregnancy:          risk.Pregnancy(p.Pregnancy),
	}
}

func toUnitResponse(u inventory.BloodUnit) BloodUnitResponse {
	return BloodUnitResponse{
		ID:          u.ID,
		BloodType:   string(u.Type),
		CollectedAt: u.CollectedAt,
		ExpiresAt:   u.ExpiresAt,
		Properties:  u.Properties,
		HospitalID:  u.HospitalID,
	}
}
