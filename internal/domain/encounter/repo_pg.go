package encounter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shr/shr/internal/domain/feed"
	"github.com/shr/shr/internal/platform/fhir"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const encCols = `encounter_id, sort_key, health_id, catchment, content,
	patient_confidentiality, encounter_confidentiality,
	created_by_facility, created_by_provider, updated_by_facility, updated_by_provider,
	received_at, updated_at`

func (r *repoPG) Save(ctx context.Context, e *Event) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO encounter (`+encCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		e.ID, e.SortKey, e.HealthID, e.Catchment, string(e.Content),
		e.PatientConfidentiality.Code(), e.EncounterConfidentiality.Code(),
		e.CreatedBy.FacilityID, e.CreatedBy.ProviderID, e.UpdatedBy.FacilityID, e.UpdatedBy.ProviderID,
		e.ReceivedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save encounter %s: %w", e.ID, err)
	}
	return nil
}

func (r *repoPG) FindByID(ctx context.Context, healthID, encounterID string) (*Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx,
		`SELECT `+encCols+` FROM encounter WHERE encounter_id = $1 AND health_id = $2`,
		encounterID, healthID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find encounter %s: %w", encounterID, err)
	}
	return e, nil
}

func (r *repoPG) FindByTimeRange(ctx context.Context, scope feed.Scope, since time.Time, from string, limit int) ([]*Event, error) {
	where, args := `catchment LIKE $1`, []any{prefixPattern(scope.Key)}
	if scope.Kind == feed.ScopePatient {
		where, args = `health_id = $1`, []any{scope.Key}
	}
	where += ` AND received_at >= $2`
	args = append(args, since)
	if from != "" {
		where += ` AND (received_at, sort_key) >= ($2, $3)`
		args = append(args, from)
	}
	args = append(args, limit)
	rows, err := r.pool.Query(ctx, `
		SELECT `+encCols+` FROM encounter
		WHERE `+where+`
		ORDER BY received_at, sort_key LIMIT $`+strconv.Itoa(len(args)),
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(row pgx.Row) (*Event, error) {
	var (
		e                Event
		content          string
		patConf, encConf string
	)
	err := row.Scan(
		&e.ID, &e.SortKey, &e.HealthID, &e.Catchment, &content,
		&patConf, &encConf,
		&e.CreatedBy.FacilityID, &e.CreatedBy.ProviderID, &e.UpdatedBy.FacilityID, &e.UpdatedBy.ProviderID,
		&e.ReceivedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Content = []byte(content)
	e.PatientConfidentiality = fhir.ConfidentialityOrDefault(patConf)
	e.EncounterConfidentiality = fhir.ConfidentialityOrDefault(encConf)
	return &e, nil
}
