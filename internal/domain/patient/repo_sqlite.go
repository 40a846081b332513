package patient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shr/shr/internal/platform/fhir"
)

type repoSQLite struct {
	db *sql.DB
}

// NewSQLiteRepo returns a Repository over a database opened with db.OpenSQLite.
// Timestamps are stored as unix nanoseconds.
func NewSQLiteRepo(db *sql.DB) Repository {
	return &repoSQLite{db: db}
}

func (r *repoSQLite) Find(ctx context.Context, healthID string) (*Patient, error) {
	var (
		p                    Patient
		conf, catchment      string
		createdAt, updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT `+patientCols+` FROM patient WHERE health_id = ?`, healthID).
		Scan(&p.HealthID, &conf, &catchment, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find patient %s: %w", healthID, err)
	}
	p.Confidentiality = fhir.ConfidentialityOrDefault(conf)
	p.Address = AddressFromCatchment(catchment)
	p.CreatedAt = time.Unix(0, createdAt).UTC()
	p.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &p, nil
}

func (r *repoSQLite) Save(ctx context.Context, p *Patient) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO patient (`+patientCols+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(health_id) DO UPDATE SET
			confidentiality = excluded.confidentiality,
			catchment = excluded.catchment,
			updated_at = excluded.updated_at`,
		p.HealthID, p.Confidentiality.Code(), p.Catchment(), p.CreatedAt.UnixNano(), p.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save patient %s: %w", p.HealthID, err)
	}
	return nil
}
