package emergency

import (
	"context"
	"sync"
)

type Hospital struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Location Location `json:"location"`
}

// Directory locates hospitals near a point. Geographic search is a
// pluggable capability, not implemented by the core.
type Directory interface {
	HospitalsWithin(ctx context.Context, loc Location, radiusKm float64) ([]Hospital, error)
}

type ResponderRole string

const (
	RoleBloodTransport   ResponderRole = "BLOOD_TRANSPORT"
	RoleMedicalEscort    ResponderRole = "MEDICAL_ESCORT"
	RoleEmergencyOfficer ResponderRole = "EMERGENCY_MEDICAL_OFFICER"
)

type ResponderStatus string

const (
	ResponderAvailable ResponderStatus = "AVAILABLE"
	ResponderAssigned  ResponderStatus = "ASSIGNED"
)

type Responder struct {
	ID       string          `json:"id"`
	Role     ResponderRole   `json:"role"`
	Status   ResponderStatus `json:"status"`
	Location Location        `json:"location"`
}

// Registry tracks emergency responders and their availability.
type Registry interface {
	AvailableResponders(ctx context.Context, role ResponderRole) ([]Responder, error)
	SetStatus(ctx context.Context, responderID string, status ResponderStatus) error
}

// MemoryDirectory serves a fixed hospital list, used by tests and demo
// mode.
type MemoryDirectory struct {
	mu        sync.RWMutex
	hospitals []Hospital
}

func NewMemoryDirectory(hospitals ...Hospital) *MemoryDirectory {
	return &MemoryDirectory{hospitals: hospitals}
}

func (d *MemoryDirectory) Add(h Hospital) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hospitals = append(d.hospitals, h)
}

func (d *MemoryDirectory) HospitalsWithin(_ context.Context, loc Location, radiusKm float64) ([]Hospital, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Hospital
	for _, h := range d.hospitals {
		if loc.DistanceKm(h.Location) <= radiusKm {
			out = append(out, h)
		}
	}
	return out, nil
}

// MemoryRegistry is an in-process responder registry.
type MemoryRegistry struct {
	mu         sync.Mutex
	responders map[string]*Responder
}

func NewMemoryRegistry(responders ...Responder) *MemoryRegistry {
	r := &MemoryRegistry{responders: make(map[string]*Responder)}
	for i := range responders {
		resp := responders[i]
		r.responders[resp.ID] = &resp
	}
	return r
}

func (r *MemoryRegistry) AvailableResponders(_ context.Context, role ResponderRole) ([]Responder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Responder
	for _, resp := range r.responders {
		if resp.Role == role && resp.Status == ResponderAvailable {
			out = append(out, *resp)
		}
	}
	return out, nil
}

func (r *MemoryRegistry) SetStatus(_ context.Context, responderID string, status ResponderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if resp, ok := r.responders[responderID]; ok {
		resp.Status = status
	}
	return nil
}
