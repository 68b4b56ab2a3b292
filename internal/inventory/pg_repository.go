package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/blood-coordination/internal/bloodtype"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanUnit(row pgx.Row) (*BloodUnit, error) {
	var u BloodUnit
	var typ string

	err := row.Scan(
		&u.ID,
		&typ,
		&u.CollectedAt,
		&u.ExpiresAt,
		&u.Properties,
		&u.HospitalID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnitNotFound
		}
		return nil, err
	}

	u.Type = bloodtype.Type(typ)
	return &u, nil
}

func (r *PgRepository) AvailableUnits(ctx context.Context, t bloodtype.Type, requiredTags []string) ([]BloodUnit, error) {
	if requiredTags == nil {
		requiredTags = []string{}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, blood_type, collected_at, expires_at, properties, hospital_id
		FROM blood_units
		WHERE blood_type = $1
		  AND consumed_at IS NULL
		  AND expires_at > now()
		  AND properties @> $2
		ORDER BY collected_at DESC, id
	`, string(t), requiredTags)
	if err != nil {
		return nil, fmt.Errorf("query available units: %w", err)
	}
	defer rows.Close()

	var units []BloodUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, *u)
	}
	return units, rows.Err()
}

func (r *PgRepository) Consume(ctx context.Context, unitID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE blood_units
		SET consumed_at = now()
		WHERE id = $1 AND consumed_at IS NULL
	`, unitID)
	if err != nil {
		return fmt.Errorf("consume unit: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Distinguish an unknown unit from a repeated consume.
	var exists bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM blood_units WHERE id = $1)`, unitID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check unit: %w", err)
	}
	if !exists {
		return ErrUnitNotFound
	}
	return ErrAlreadyConsumed
}

func (r *PgRepository) Add(ctx context.Context, unit BloodUnit) error {
	props := unit.Properties
	if props == nil {
		props = []string{}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO blood_units (id, blood_type, collected_at, expires_at, properties, hospital_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, unit.ID, string(unit.Type), unit.CollectedAt, unit.ExpiresAt, props, unit.HospitalID)
	if err != nil {
		return fmt.Errorf("insert unit: %w", err)
	}
	return nil
}

func (r *PgRepository) CountByHospital(ctx context.Context, hospitalID string, t bloodtype.Type) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM blood_units
		WHERE hospital_id = $1
		  AND blood_type = $2
		  AND consumed_at IS NULL
		  AND expires_at > now()
	`, hospitalID, string(t)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count units: %w", err)
	}
	return n, nil
}

func (r *PgRepository) PurgeExpired(ctx context.Context, now time.Time) ([]BloodUnit, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM blood_units
		WHERE consumed_at IS NULL AND expires_at <= $1
		RETURNING id, blood_type, collected_at, expires_at, properties, hospital_id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("purge expired units: %w", err)
	}
	defer rows.Close()

	var purged []BloodUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		purged = append(purged, *u)
	}
	return purged, rows.Err()
}
