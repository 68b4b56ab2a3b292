package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/blood-coordination/internal/bloodtype"
	"github.com/bloodlink/blood-coordination/internal/db"
)

// Whole blood keeps for six weeks under refrigeration.
const shelfLifeDays = 42

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	hospitalIDs, err := seedHospitals(context.Background(), pool, 12)
	if err != nil {
		log.Fatalf("seed hospitals: %v", err)
	}
	if err := seedBloodUnits(context.Background(), pool, hospitalIDs, 3000); err != nil {
		log.Fatalf("seed blood units: %v", err)
	}

	log.Println("seed complete")
}

func seedHospitals(ctx context.Context, pool *pgxpool.Pool, count int) ([]string, error) {
	log.Printf("seeding %d hospitals", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.NewString()
		name := gofakeit.Company() + " Hospital"
		lat := gofakeit.Float64Range(28.40, 28.80)
		lon := gofakeit.Float64Range(76.90, 77.40)

		_, err := tx.Exec(ctx, `
			INSERT INTO hospitals (id, name, latitude, longitude, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, lat, lon)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("hospitals seeded")
	return ids, nil
}

func seedBloodUnits(ctx context.Context, pool *pgxpool.Pool, hospitalIDs []string, count int) error {
	log.Printf("seeding %d blood units", count)

	properties := [][]string{
		{},
		{"leukoreduced"},
		{"irradiated"},
		{"leukoreduced", "irradiated"},
		{"cmv-negative"},
	}

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			bt := bloodtype.All[gofakeit.Number(0, len(bloodtype.All)-1)]
			hospitalID := hospitalIDs[gofakeit.Number(0, len(hospitalIDs)-1)]
			ageDays := gofakeit.Number(0, shelfLifeDays-1)
			collected := time.Now().AddDate(0, 0, -ageDays)
			props := properties[gofakeit.Number(0, len(properties)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO blood_units (id, blood_type, collected_at, expires_at, properties, hospital_id)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, uuid.New(), string(bt), collected, collected.AddDate(0, 0, shelfLifeDays), props, hospitalID)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("blood units seeded: %d/%d", end, count)
	}

	log.Println("blood units seeded")
	return nil
}
