package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bloodlink/blood-coordination/internal/emergency"
	"github.com/bloodlink/blood-coordination/internal/inventory"
	"github.com/bloodlink/blood-coordination/internal/matching"
	"github.com/bloodlink/blood-coordination/internal/scheduling"
)

type RouterConfig struct {
	Matcher    *matching.Engine
	Inventory  inventory.Repository
	Dispatcher *emergency.Dispatcher
	Scheduler  *scheduling.Scheduler
	Logger     *zap.Logger

	// PgPool and Redis may be nil in demo mode; health checks skip
	// what is not wired.
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Matching
	r.Post("/matches", findMatchHandler(cfg.Matcher))
	r.Post("/inventory/consume", consumeUnitHandler(cfg.Inventory))

	// Emergencies
	r.Post("/emergencies", createEmergencyHandler(cfg.Dispatcher))
	r.Get("/emergencies", listActiveEmergenciesHandler(cfg.Dispatcher))
	r.Get("/emergencies/{id}", getEmergencyHandler(cfg.Dispatcher))
	r.Post("/emergencies/{id}/status", updateEmergencyStatusHandler(cfg.Dispatcher))

	// Appointments
	r.Post("/hospitals/{hospitalID}/slots", initSlotsHandler(cfg.Scheduler))
	r.Get("/hospitals/{hospitalID}/slots", availableSlotsHandler(cfg.Scheduler))
	r.Get("/hospitals/{hospitalID}/waitlist", waitingListHandler(cfg.Scheduler))
	r.Get("/hospitals/{hospitalID}/appointments", hospitalAppointmentsHandler(cfg.Scheduler))
	r.Post("/appointments", scheduleAppointmentHandler(cfg.Scheduler))
	r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Scheduler))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Scheduler))
	r.Post("/appointments/{id}/checkin", checkInHandler(cfg.Scheduler))
	r.Post("/appointments/{id}/complete", completeHandler(cfg.Scheduler))
	r.Get("/donors/{donorID}/appointments", donorAppointmentsHandler(cfg.Scheduler))

	return r
}
