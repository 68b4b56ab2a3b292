package emergency

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bloodlink/blood-coordination/internal/bloodtype"
	"github.com/bloodlink/blood-coordination/internal/inventory"
	"github.com/bloodlink/blood-coordination/internal/notify"
)

type recordingSink struct {
	notifications []notify.Notification
}

func (s *recordingSink) Notify(_ context.Context, n notify.Notification) notify.Result {
	s.notifications = append(s.notifications, n)
	return notify.Delivered()
}

func (s *recordingSink) typesSeen() map[string]int {
	out := make(map[string]int)
	for _, n := range s.notifications {
		out[n.Type]++
	}
	return out
}

func testDispatcher(t *testing.T) (*Dispatcher, *inventory.MemoryRepository, *MemoryRegistry, *recordingSink) {
	t.Helper()

	repo := inventory.NewMemoryRepository()
	now := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Add(context.Background(), inventory.BloodUnit{
			ID:          uuid.New(),
			Type:        bloodtype.ONeg,
			CollectedAt: now.AddDate(0, 0, -1),
			ExpiresAt:   now.AddDate(0, 0, 30),
			HospitalID:  "hosp-near",
		}))
	}
	require.NoError(t, repo.Add(context.Background(), inventory.BloodUnit{
		ID:          uuid.New(),
		Type:        bloodtype.ONeg,
		CollectedAt: now.AddDate(0, 0, -1),
		ExpiresAt:   now.AddDate(0, 0, 30),
		HospitalID:  "hosp-far",
	}))

	directory := NewMemoryDirectory(
		Hospital{ID: "hosp-near", Name: "Near General", Location: Location{Latitude: 28.61, Longitude: 77.21}},
		Hospital{ID: "hosp-far", Name: "Far Central", Location: Location{Latitude: 28.75, Longitude: 77.30}},
		Hospital{ID: "hosp-out", Name: "Out Of Range", Location: Location{Latitude: 31.0, Longitude: 80.0}},
	)

	registry := NewMemoryRegistry(
		Responder{ID: "resp-transport-1", Role: RoleBloodTransport, Status: ResponderAvailable, Location: Location{Latitude: 28.60, Longitude: 77.20}},
		Responder{ID: "resp-transport-2", Role: RoleBloodTransport, Status: ResponderAvailable, Location: Location{Latitude: 28.90, Longitude: 77.50}},
		Responder{ID: "resp-escort-1", Role: RoleMedicalEscort, Status: ResponderAvailable, Location: Location{Latitude: 28.62, Longitude: 77.22}},
		Responder{ID: "resp-officer-1", Role: RoleEmergencyOfficer, Status: ResponderAvailable, Location: Location{Latitude: 28.63, Longitude: 77.23}},
	)

	sink := &recordingSink{}
	d := NewDispatcher(repo, directory, registry, sink, 50, zap.NewNop())
	return d, repo, registry, sink
}

func criticalIntake() Intake {
	return Intake{
		RecipientType:        bloodtype.ONeg,
		UnitsNeeded:          3,
		PatientCondition:     ConditionCritical,
		BloodLossVolumeML:    2500,
		RequiredWithinHours:  1,
		IsTrauma:             true,
		RequestingHospitalID: "hosp-req",
		Location:             Location{Latitude: 28.6139, Longitude: 77.2090},
	}
}

func TestCalculatePriority(t *testing.T) {
	tests := []struct {
		name      string
		in        Intake
		wantScore int
		wantLevel Level
	}{
		{
			name:      "critical trauma",
			in:        criticalIntake(),
			wantScore: 100 + 50 + 50 + 25,
			wantLevel: LevelCritical,
		},
		{
			name:      "stable no extras",
			in:        Intake{PatientCondition: ConditionStable},
			wantScore: 25,
			wantLevel: LevelRoutine,
		},
		{
			name:      "serious with moderate loss",
			in:        Intake{PatientCondition: ConditionSerious, BloodLossVolumeML: 1200},
			wantScore: 50 + 30,
			wantLevel: LevelHigh,
		},
		{
			name:      "severe childbirth within three hours",
			in:        Intake{PatientCondition: ConditionSevere, RequiredWithinHours: 3, IsChildbirth: true},
			wantScore: 75 + 30 + 20,
			wantLevel: LevelUrgent,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			score := CalculatePriority(tc.in)
			assert.Equal(t, tc.wantScore, score)
			assert.Equal(t, tc.wantLevel, levelFor(score))
		})
	}
}

// Raising blood loss volume while holding everything else fixed must
// never lower the score.
func TestCalculatePriorityMonotonicInBloodLoss(t *testing.T) {
	base := Intake{PatientCondition: ConditionSerious, RequiredWithinHours: 5}

	prev := -1
	for _, vol := range []float64{0, 200, 501, 800, 1001, 1500, 2001, 4000} {
		in := base
		in.BloodLossVolumeML = vol
		score := CalculatePriority(in)
		assert.GreaterOrEqual(t, score, prev, "score dropped at volume %.0f", vol)
		prev = score
	}
}

func TestCreateEmergencyRequestCriticalFlow(t *testing.T) {
	d, _, _, sink := testDispatcher(t)

	req, err := d.CreateEmergencyRequest(context.Background(), criticalIntake())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, req.PriorityScore, 200)
	assert.Equal(t, LevelCritical, req.Priority)
	assert.Equal(t, StatusInProgress, req.Status)

	roles := make([]ResponderRole, 0, len(req.Responders))
	for _, r := range req.Responders {
		roles = append(roles, r.Role)
		assert.Equal(t, ResponderAssigned, r.Status)
	}
	assert.ElementsMatch(t, []ResponderRole{RoleBloodTransport, RoleMedicalEscort, RoleEmergencyOfficer}, roles)

	// Nearest transport responder wins.
	assert.Equal(t, "resp-transport-1", req.Responders[0].ID)

	// Sources: near hospital covers all 3 units in one stop and is
	// closer, so it ranks first; out-of-range hospital never appears.
	require.Len(t, req.Sources, 2)
	assert.Equal(t, "hosp-near", req.Sources[0].HospitalID)
	for _, src := range req.Sources {
		assert.NotEqual(t, "hosp-out", src.HospitalID)
	}

	seen := sink.typesSeen()
	assert.Equal(t, 1, seen[notify.TypeEmergencyInitiated])
	assert.Equal(t, 2, seen[notify.TypeBloodUnitsNeeded])
	assert.Equal(t, 1, seen[notify.TypeCoordinationNeeded])
	assert.Equal(t, 3, seen[notify.TypeResponderAssigned])

	// One timeline event per response step, in order of occurrence.
	var eventTypes []string
	for _, ev := range req.Timeline {
		eventTypes = append(eventTypes, ev.Type)
	}
	assert.Equal(t, []string{
		EventRequestCreated,
		EventPriorityAssigned,
		EventSourcesIdentified,
		EventStakeholdersAlert,
		EventRespondersAssigned,
		string(StatusInProgress),
	}, eventTypes)
}

func TestMissingResponderRoleIsOmitted(t *testing.T) {
	d, _, registry, _ := testDispatcher(t)

	// Exhaust the officer pool before the request comes in.
	require.NoError(t, registry.SetStatus(context.Background(), "resp-officer-1", ResponderAssigned))

	req, err := d.CreateEmergencyRequest(context.Background(), criticalIntake())
	require.NoError(t, err)

	assert.Len(t, req.Responders, 2)
	assert.Less(t, len(req.Responders), len(RequiredRoles(req.Priority)))
}

func TestRequiredRoles(t *testing.T) {
	assert.Equal(t, []ResponderRole{RoleBloodTransport}, RequiredRoles(LevelRoutine))
	assert.Equal(t, []ResponderRole{RoleBloodTransport}, RequiredRoles(LevelModerate))
	assert.Equal(t, []ResponderRole{RoleBloodTransport, RoleMedicalEscort}, RequiredRoles(LevelHigh))
	assert.Equal(t, []ResponderRole{RoleBloodTransport, RoleMedicalEscort}, RequiredRoles(LevelUrgent))
	assert.Equal(t, []ResponderRole{RoleBloodTransport, RoleMedicalEscort, RoleEmergencyOfficer}, RequiredRoles(LevelCritical))
}

func TestStatusTransitions(t *testing.T) {
	d, _, _, _ := testDispatcher(t)
	ctx := context.Background()

	req, err := d.CreateEmergencyRequest(ctx, criticalIntake())
	require.NoError(t, err)

	require.NoError(t, d.UpdateRequestStatus(ctx, req.ID, StatusCompleted, "units delivered"))

	// Terminal states are immutable.
	err = d.UpdateRequestStatus(ctx, req.ID, StatusCancelled, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = d.UpdateRequestStatus(ctx, req.ID, StatusInProgress, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = d.UpdateRequestStatus(ctx, uuid.New(), StatusCancelled, "")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestGetActiveEmergencies(t *testing.T) {
	d, _, _, _ := testDispatcher(t)
	ctx := context.Background()

	critical, err := d.CreateEmergencyRequest(ctx, criticalIntake())
	require.NoError(t, err)

	routineIn := criticalIntake()
	routineIn.PatientCondition = ConditionStable
	routineIn.BloodLossVolumeML = 0
	routineIn.RequiredWithinHours = 0
	routineIn.IsTrauma = false
	routine, err := d.CreateEmergencyRequest(ctx, routineIn)
	require.NoError(t, err)

	done, err := d.CreateEmergencyRequest(ctx, criticalIntake())
	require.NoError(t, err)
	require.NoError(t, d.UpdateRequestStatus(ctx, done.ID, StatusCompleted, ""))

	active := d.GetActiveEmergencies()
	require.Len(t, active, 2)
	assert.Equal(t, critical.ID, active[0].ID)
	assert.Equal(t, routine.ID, active[1].ID)

	_, err = d.GetEmergencyDetails(uuid.New())
	assert.ErrorIs(t, err, ErrRequestNotFound)
}
