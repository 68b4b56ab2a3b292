package emergency

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bloodlink/blood-coordination/internal/bloodtype"
	"github.com/bloodlink/blood-coordination/internal/inventory"
	"github.com/bloodlink/blood-coordination/internal/notify"
	"github.com/bloodlink/blood-coordination/internal/risk"
)

var (
	ErrRequestNotFound   = errors.New("emergency request not found")
	ErrInvalidTransition = errors.New("invalid emergency status transition")
)

// Timeline event types.
const (
	EventRequestCreated     = "REQUEST_CREATED"
	EventPriorityAssigned   = "PRIORITY_ASSIGNED"
	EventSourcesIdentified  = "SOURCES_IDENTIFIED"
	EventStakeholdersAlert  = "STAKEHOLDERS_NOTIFIED"
	EventRespondersAssigned = "RESPONDERS_ASSIGNED"
)

// Dispatcher triages emergency blood requests: priority classification,
// source discovery across the hospital network, responder assignment,
// and the request state machine. It owns an id-indexed arena of
// requests; callers only ever see copies.
type Dispatcher struct {
	inv       inventory.Repository
	directory Directory
	registry  Registry
	sink      notify.Sink
	logger    *zap.Logger

	searchRadiusKm float64
	now            func() time.Time

	mu       sync.Mutex
	requests map[uuid.UUID]*Request
}

func NewDispatcher(inv inventory.Repository, directory Directory, registry Registry, sink notify.Sink, searchRadiusKm float64, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		inv:            inv,
		directory:      directory,
		registry:       registry,
		sink:           sink,
		logger:         logger,
		searchRadiusKm: searchRadiusKm,
		now:            time.Now,
		requests:       make(map[uuid.UUID]*Request),
	}
}

// CreateEmergencyRequest registers a request at ACTIVE and immediately
// runs the response sequence: classification, source discovery,
// stakeholder notification, responder assignment, then IN_PROGRESS.
func (d *Dispatcher) CreateEmergencyRequest(ctx context.Context, in Intake) (*Request, error) {
	if _, err := bloodtype.Lookup(in.RecipientType); err != nil {
		return nil, err
	}
	if in.UnitsNeeded <= 0 {
		return nil, fmt.Errorf("units needed must be positive, got %d", in.UnitsNeeded)
	}

	now := d.now()
	req := &Request{
		ID:        uuid.New(),
		Intake:    in,
		Status:    StatusActive,
		RiskScore: risk.Score(in.Patient, risk.UrgencyEmergency),
		CreatedAt: now,
		UpdatedAt: now,
	}

	d.mu.Lock()
	d.requests[req.ID] = req
	d.mu.Unlock()

	d.appendEvent(req.ID, EventRequestCreated, "emergency request initiated")

	if err := d.initiateResponse(ctx, req.ID); err != nil {
		return nil, err
	}

	return d.GetEmergencyDetails(req.ID)
}

func (d *Dispatcher) initiateResponse(ctx context.Context, id uuid.UUID) error {
	d.mu.Lock()
	req, ok := d.requests[id]
	if !ok {
		d.mu.Unlock()
		return ErrRequestNotFound
	}
	in := req.Intake
	d.mu.Unlock()

	score := CalculatePriority(in)
	level := levelFor(score)

	d.mu.Lock()
	req.PriorityScore = score
	req.Priority = level
	d.mu.Unlock()
	d.appendEvent(id, EventPriorityAssigned, fmt.Sprintf("priority %s (score %d)", level, score))

	sources, err := d.findBloodSources(ctx, in)
	if err != nil {
		return fmt.Errorf("find blood sources: %w", err)
	}
	d.mu.Lock()
	req.Sources = sources
	d.mu.Unlock()
	d.appendEvent(id, EventSourcesIdentified, fmt.Sprintf("%d candidate source hospitals", len(sources)))

	d.notifyStakeholders(ctx, id, in, level, sources)
	d.appendEvent(id, EventStakeholdersAlert, "stakeholders notified")

	assigned := d.assignResponders(ctx, in, level)
	d.mu.Lock()
	req.Responders = assigned
	d.mu.Unlock()
	d.appendEvent(id, EventRespondersAssigned, fmt.Sprintf("%d responders assigned", len(assigned)))

	return d.UpdateRequestStatus(ctx, id, StatusInProgress, "emergency response underway")
}

// CalculatePriority scores an intake: patient condition, blood loss
// bands, time-to-need bands, and flat trauma/childbirth/organ bonuses.
// Computed once at intake; it does not decay as time-to-need shrinks.
func CalculatePriority(in Intake) int {
	score := 0

	switch in.PatientCondition {
	case ConditionCritical:
		score += 100
	case ConditionSevere:
		score += 75
	case ConditionSerious:
		score += 50
	case ConditionStable:
		score += 25
	}

	switch {
	case in.BloodLossVolumeML > 2000:
		score += 50
	case in.BloodLossVolumeML > 1000:
		score += 30
	case in.BloodLossVolumeML > 500:
		score += 15
	}

	switch {
	case in.RequiredWithinHours <= 0:
		// no deadline given
	case in.RequiredWithinHours <= 1:
		score += 50
	case in.RequiredWithinHours <= 3:
		score += 30
	case in.RequiredWithinHours <= 6:
		score += 15
	}

	if in.IsTrauma {
		score += 25
	}
	if in.IsChildbirth {
		score += 20
	}
	if in.IsOrgan {
		score += 20
	}

	return score
}

func levelFor(score int) Level {
	switch {
	case score >= 150:
		return LevelCritical
	case score >= 100:
		return LevelUrgent
	case score >= 75:
		return LevelHigh
	case score >= 50:
		return LevelModerate
	}
	return LevelRoutine
}

// findBloodSources enumerates hospitals within the search radius and
// ranks them: any hospital covering the full request in one stop beats
// a partial one, ties broken by ascending distance.
func (d *Dispatcher) findBloodSources(ctx context.Context, in Intake) ([]BloodSource, error) {
	donorTypes, err := bloodtype.CompatibleDonors(in.RecipientType)
	if err != nil {
		return nil, err
	}

	hospitals, err := d.directory.HospitalsWithin(ctx, in.Location, d.searchRadiusKm)
	if err != nil {
		return nil, err
	}

	var sources []BloodSource
	for _, h := range hospitals {
		inv := make(map[bloodtype.Type]int)
		total := 0
		for _, t := range donorTypes {
			n, err := d.inv.CountByHospital(ctx, h.ID, t)
			if err != nil {
				return nil, fmt.Errorf("count inventory at %s: %w", h.ID, err)
			}
			if n > 0 {
				inv[t] = n
				total += n
			}
		}
		if total > 0 {
			sources = append(sources, BloodSource{
				HospitalID: h.ID,
				Name:       h.Name,
				DistanceKm: in.Location.DistanceKm(h.Location),
				Inventory:  inv,
				TotalUnits: total,
			})
		}
	}

	sort.Slice(sources, func(i, j int) bool {
		aFull := sources[i].TotalUnits >= in.UnitsNeeded
		bFull := sources[j].TotalUnits >= in.UnitsNeeded
		if aFull != bFull {
			return aFull
		}
		return sources[i].DistanceKm < sources[j].DistanceKm
	})

	return sources, nil
}

// RequiredRoles maps a priority level to the responder roles it needs.
// Blood transport is always required; escorts and officers join as
// severity increases.
func RequiredRoles(level Level) []ResponderRole {
	roles := []ResponderRole{RoleBloodTransport}
	if level <= LevelHigh {
		roles = append(roles, RoleMedicalEscort)
	}
	if level == LevelCritical {
		roles = append(roles, RoleEmergencyOfficer)
	}
	return roles
}

// assignResponders picks the nearest available responder per required
// role. A role with nobody available is omitted rather than failing the
// response; the gap shows as a shorter responder list.
func (d *Dispatcher) assignResponders(ctx context.Context, in Intake, level Level) []Responder {
	var assigned []Responder

	for _, role := range RequiredRoles(level) {
		candidates, err := d.registry.AvailableResponders(ctx, role)
		if err != nil {
			d.logger.Warn("responder lookup failed",
				zap.String("role", string(role)), zap.Error(err))
			continue
		}
		if len(candidates) == 0 {
			d.logger.Warn("no responder available for role", zap.String("role", string(role)))
			continue
		}

		sort.Slice(candidates, func(i, j int) bool {
			di := in.Location.DistanceKm(candidates[i].Location)
			dj := in.Location.DistanceKm(candidates[j].Location)
			if di != dj {
				return di < dj
			}
			return candidates[i].ID < candidates[j].ID
		})

		picked := candidates[0]
		if err := d.registry.SetStatus(ctx, picked.ID, ResponderAssigned); err != nil {
			d.logger.Warn("responder status update failed",
				zap.String("responder_id", picked.ID), zap.Error(err))
			continue
		}
		picked.Status = ResponderAssigned
		assigned = append(assigned, picked)

		d.deliver(ctx, notify.New(notify.TypeResponderAssigned, priorityFor(level), picked.ID,
			fmt.Sprintf("assigned to emergency transport as %s", role), nil))
	}

	return assigned
}

func (d *Dispatcher) notifyStakeholders(ctx context.Context, id uuid.UUID, in Intake, level Level, sources []BloodSource) {
	p := priorityFor(level)

	d.deliver(ctx, notify.New(notify.TypeEmergencyInitiated, p, in.RequestingHospitalID,
		fmt.Sprintf("emergency blood request initiated for %s", in.RecipientType),
		map[string]any{"emergency_id": id.String()}))

	for _, src := range sources {
		d.deliver(ctx, notify.New(notify.TypeBloodUnitsNeeded, p, src.HospitalID,
			fmt.Sprintf("emergency request for %s blood units", in.RecipientType),
			map[string]any{"emergency_id": id.String(), "units_needed": in.UnitsNeeded}))
	}

	d.deliver(ctx, notify.New(notify.TypeCoordinationNeeded, p, "",
		"emergency blood transport coordination required",
		map[string]any{"emergency_id": id.String()}))
}

// deliver is fire-and-forget: a failed delivery is logged and never
// unwinds dispatcher state.
func (d *Dispatcher) deliver(ctx context.Context, n notify.Notification) {
	if res := d.sink.Notify(ctx, n); !res.Delivered {
		d.logger.Warn("notification delivery failed",
			zap.String("type", n.Type), zap.String("reason", res.Reason))
	}
}

func priorityFor(level Level) notify.Priority {
	switch level {
	case LevelCritical:
		return notify.PriorityEmergency
	case LevelUrgent:
		return notify.PriorityUrgent
	case LevelHigh:
		return notify.PriorityHigh
	case LevelModerate:
		return notify.PriorityMedium
	}
	return notify.PriorityLow
}

// UpdateRequestStatus advances the request state machine. Once a
// request is COMPLETED or CANCELLED it is immutable.
func (d *Dispatcher) UpdateRequestStatus(ctx context.Context, id uuid.UUID, status Status, note string) error {
	d.mu.Lock()
	req, ok := d.requests[id]
	if !ok {
		d.mu.Unlock()
		return ErrRequestNotFound
	}
	if !validTransition(req.Status, status) {
		from := req.Status
		d.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
	}
	req.Status = status
	req.UpdatedAt = d.now()
	level := req.Priority
	d.mu.Unlock()

	d.appendEvent(id, string(status), note)

	d.deliver(ctx, notify.New(notify.TypeEmergencyStatusUpdate, priorityFor(level), "",
		fmt.Sprintf("emergency request status updated to %s", status),
		map[string]any{"emergency_id": id.String(), "status": string(status)}))

	return nil
}

func validTransition(from, to Status) bool {
	switch from {
	case StatusActive:
		return to == StatusInProgress || to == StatusCancelled
	case StatusInProgress:
		return to == StatusCompleted || to == StatusCancelled
	}
	return false
}

func (d *Dispatcher) appendEvent(id uuid.UUID, eventType, description string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	req, ok := d.requests[id]
	if !ok {
		return
	}
	req.Timeline = append(req.Timeline, TimelineEvent{
		Timestamp:   d.now(),
		Type:        eventType,
		Description: description,
	})
}

// GetEmergencyDetails returns a copy of one request.
func (d *Dispatcher) GetEmergencyDetails(id uuid.UUID) (*Request, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	req, ok := d.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return req.clone(), nil
}

// GetActiveEmergencies lists non-terminal requests, most severe first.
func (d *Dispatcher) GetActiveEmergencies() []*Request {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*Request
	for _, req := range d.requests {
		if !req.terminal() {
			out = append(out, req.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
