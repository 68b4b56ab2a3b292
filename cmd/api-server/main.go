package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bloodlink/blood-coordination/internal/api"
	"github.com/bloodlink/blood-coordination/internal/bloodtype"
	"github.com/bloodlink/blood-coordination/internal/config"
	"github.com/bloodlink/blood-coordination/internal/db"
	"github.com/bloodlink/blood-coordination/internal/emergency"
	"github.com/bloodlink/blood-coordination/internal/inventory"
	"github.com/bloodlink/blood-coordination/internal/logger"
	"github.com/bloodlink/blood-coordination/internal/matching"
	"github.com/bloodlink/blood-coordination/internal/notify"
	redisclient "github.com/bloodlink/blood-coordination/internal/redis"
	"github.com/bloodlink/blood-coordination/internal/scheduling"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel, "api-server")
	if err != nil {
		os.Stderr.WriteString("logger error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.Bool("demo_mode", cfg.DemoMode),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	routerCfg := api.RouterConfig{
		Logger:  log,
		Env:     cfg.Env,
		Version: version,
	}

	var (
		inv    inventory.Repository
		locker scheduling.Locker
		sink   notify.Sink
	)

	if cfg.DemoMode {
		mem := inventory.NewMemoryRepository()
		directory, registry := seedDemoNetwork(rootCtx, mem, log)
		inv = mem
		locker = scheduling.NewMutexLocker()
		sink = notify.NewLogSink(log)

		routerCfg.Dispatcher = emergency.NewDispatcher(inv, directory, registry, sink, cfg.SearchRadiusKm, log)
	} else {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			log.Fatal("postgres connection error", zap.Error(err))
		}
		defer pgPool.Close()
		log.Info("connected to Postgres")

		rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Fatal("redis connection error", zap.Error(err))
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("error closing redis", zap.Error(err))
			}
		}()
		log.Info("connected to Redis")

		inv = inventory.NewPgRepository(pgPool)
		locker = redisclient.NewDayLocker(rdb, cfg.LockTTL)
		sink = notify.MultiSink{
			notify.NewLogSink(log),
			notify.NewRedisSink(rdb, cfg.NotifyChannel),
		}

		directory, registry := demoDirectoryAndRegistry()
		routerCfg.Dispatcher = emergency.NewDispatcher(inv, directory, registry, sink, cfg.SearchRadiusKm, log)
		routerCfg.PgPool = pgPool
		routerCfg.Redis = rdb
	}

	routerCfg.Inventory = inv
	routerCfg.Matcher = matching.NewEngine(inv)
	routerCfg.Scheduler = scheduling.NewScheduler(locker, sink, log)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
}

// demoDirectoryAndRegistry provides the hospital network and responder
// pool. These are static reference data in this deployment; a real
// rollout wires a directory service instead.
func demoDirectoryAndRegistry() (*emergency.MemoryDirectory, *emergency.MemoryRegistry) {
	directory := emergency.NewMemoryDirectory(
		emergency.Hospital{ID: "aiims-delhi", Name: "AIIMS Delhi", Location: emergency.Location{Latitude: 28.5672, Longitude: 77.2100}},
		emergency.Hospital{ID: "apollo-delhi", Name: "Apollo Hospitals", Location: emergency.Location{Latitude: 28.5400, Longitude: 77.2830}},
		emergency.Hospital{ID: "fortis-vk", Name: "Fortis Hospital Vasant Kunj", Location: emergency.Location{Latitude: 28.5200, Longitude: 77.1580}},
		emergency.Hospital{ID: "lilavati-mumbai", Name: "Lilavati Hospital", Location: emergency.Location{Latitude: 19.0510, Longitude: 72.8290}},
	)

	registry := emergency.NewMemoryRegistry(
		emergency.Responder{ID: "transport-01", Role: emergency.RoleBloodTransport, Status: emergency.ResponderAvailable, Location: emergency.Location{Latitude: 28.56, Longitude: 77.21}},
		emergency.Responder{ID: "transport-02", Role: emergency.RoleBloodTransport, Status: emergency.ResponderAvailable, Location: emergency.Location{Latitude: 28.54, Longitude: 77.28}},
		emergency.Responder{ID: "escort-01", Role: emergency.RoleMedicalEscort, Status: emergency.ResponderAvailable, Location: emergency.Location{Latitude: 28.55, Longitude: 77.20}},
		emergency.Responder{ID: "officer-01", Role: emergency.RoleEmergencyOfficer, Status: emergency.ResponderAvailable, Location: emergency.Location{Latitude: 28.57, Longitude: 77.22}},
	)

	return directory, registry
}

// seedDemoNetwork fills the in-memory inventory so demo mode has
// something to match against.
func seedDemoNetwork(ctx context.Context, repo *inventory.MemoryRepository, log *zap.Logger) (*emergency.MemoryDirectory, *emergency.MemoryRegistry) {
	directory, registry := demoDirectoryAndRegistry()

	now := time.Now()
	hospitals := []string{"aiims-delhi", "apollo-delhi", "fortis-vk"}
	perType := map[bloodtype.Type]int{
		bloodtype.APos: 6, bloodtype.ANeg: 2,
		bloodtype.BPos: 5, bloodtype.BNeg: 1,
		bloodtype.ABPos: 3, bloodtype.ABNeg: 1,
		bloodtype.OPos: 8, bloodtype.ONeg: 4,
	}

	total := 0
	for _, hospitalID := range hospitals {
		for bt, count := range perType {
			for i := 0; i < count; i++ {
				unit := inventory.BloodUnit{
					ID:          uuid.New(),
					Type:        bt,
					CollectedAt: now.AddDate(0, 0, -(i % 20)),
					ExpiresAt:   now.AddDate(0, 0, 42-(i%20)),
					HospitalID:  hospitalID,
				}
				if i%3 == 0 {
					unit.Properties = []string{"leukoreduced"}
				}
				if err := repo.Add(ctx, unit); err != nil {
					log.Warn("demo seed failed", zap.Error(err))
					continue
				}
				total++
			}
		}
	}

	log.Info("demo inventory seeded", zap.Int("units", total), zap.Int("hospitals", len(hospitals)))
	return directory, registry
}
