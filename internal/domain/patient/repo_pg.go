package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shr/shr/internal/platform/fhir"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const patientCols = `health_id, confidentiality, catchment, created_at, updated_at`

func (r *repoPG) Find(ctx context.Context, healthID string) (*Patient, error) {
	var (
		p         Patient
		conf      string
		catchment string
	)
	err := r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE health_id = $1`, healthID).
		Scan(&p.HealthID, &conf, &catchment, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find patient %s: %w", healthID, err)
	}
	p.Confidentiality = fhir.ConfidentialityOrDefault(conf)
	p.Address = AddressFromCatchment(catchment)
	return &p, nil
}

func (r *repoPG) Save(ctx context.Context, p *Patient) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := r.pool.Exec(ctx, `
		INSERT INTO patient (`+patientCols+`)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (health_id) DO UPDATE SET
			confidentiality = EXCLUDED.confidentiality,
			catchment = EXCLUDED.catchment,
			updated_at = EXCLUDED.updated_at`,
		p.HealthID, p.Confidentiality.Code(), p.Catchment(), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save patient %s: %w", p.HealthID, err)
	}
	return nil
}
