package main

import (
	"context"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bloodlink/blood-coordination/internal/bloodtype"
	"github.com/bloodlink/blood-coordination/internal/config"
	"github.com/bloodlink/blood-coordination/internal/db"
	"github.com/bloodlink/blood-coordination/internal/inventory"
	"github.com/bloodlink/blood-coordination/internal/logger"
	"github.com/bloodlink/blood-coordination/internal/notify"
	redisclient "github.com/bloodlink/blood-coordination/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel, "expiry-worker")
	if err != nil {
		os.Stderr.WriteString("logger error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("expiry-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	repo := inventory.NewPgRepository(pgPool)
	sink := notify.MultiSink{
		notify.NewLogSink(log),
		notify.NewRedisSink(rdb, cfg.NotifyChannel),
	}

	// Run once at startup
	runOnce(rootCtx, repo, sink, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, repo, sink, log)
		}
	}
}

// runOnce drops every expired unit and tells each affected hospital
// what it lost, grouped by blood type.
func runOnce(ctx context.Context, repo inventory.Repository, sink notify.Sink, log *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	purged, err := repo.PurgeExpired(runCtx, start)
	if err != nil {
		log.Error("expiry run error", zap.Error(err))
		return
	}

	type group struct {
		count  int
		latest time.Time
	}
	byHospitalType := make(map[[2]string]*group)
	for _, u := range purged {
		key := [2]string{u.HospitalID, string(u.Type)}
		g, ok := byHospitalType[key]
		if !ok {
			g = &group{}
			byHospitalType[key] = g
		}
		g.count++
		if u.ExpiresAt.After(g.latest) {
			g.latest = u.ExpiresAt
		}
	}

	for key, g := range byHospitalType {
		n := notify.BloodExpiry(key[0], key[1], g.count, g.latest)
		if res := sink.Notify(runCtx, n); !res.Delivered {
			log.Warn("expiry notification failed",
				zap.String("hospital_id", key[0]),
				zap.String("reason", res.Reason),
			)
		}

		checkStockFloor(runCtx, repo, sink, key[0], bloodtype.Type(key[1]), log)
	}

	log.Info("expiry run complete",
		zap.Int("purged", len(purged)),
		zap.Duration("took", time.Since(start)),
	)
}

// checkStockFloor alerts a hospital whose remaining stock of a type
// fell under its floor after a purge. The floor scales with the type's
// population share: common types need deeper stock than rare ones.
func checkStockFloor(ctx context.Context, repo inventory.Repository, sink notify.Sink, hospitalID string, bt bloodtype.Type, log *zap.Logger) {
	remaining, err := repo.CountByHospital(ctx, hospitalID, bt)
	if err != nil {
		log.Error("stock check error",
			zap.String("hospital_id", hospitalID),
			zap.String("blood_type", string(bt)),
			zap.Error(err),
		)
		return
	}

	floor := int(math.Ceil(bloodtype.Rarity(bt) * 20))
	if floor < 2 {
		floor = 2
	}
	if remaining >= floor {
		return
	}

	n := notify.LowInventory(hospitalID, string(bt), remaining)
	if res := sink.Notify(ctx, n); !res.Delivered {
		log.Warn("low inventory notification failed",
			zap.String("hospital_id", hospitalID),
			zap.String("reason", res.Reason),
		)
	}
}
