package encounter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shr/shr/internal/domain/feed"
	"github.com/shr/shr/internal/platform/fhir"
)

type repoSQLite struct {
	db *sql.DB
}

// NewSQLiteRepo returns a Repository over a database opened with db.OpenSQLite.
func NewSQLiteRepo(db *sql.DB) Repository {
	return &repoSQLite{db: db}
}

// nanos stores times as unix nanoseconds. The zero time sorts before
// everything.
func nanos(t time.Time) int64 {
	if t.IsZero() {
		return math.MinInt64
	}
	return t.UnixNano()
}

func (r *repoSQLite) Save(ctx context.Context, e *Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO encounter (`+encCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SortKey, e.HealthID, e.Catchment, string(e.Content),
		e.PatientConfidentiality.Code(), e.EncounterConfidentiality.Code(),
		e.CreatedBy.FacilityID, e.CreatedBy.ProviderID, e.UpdatedBy.FacilityID, e.UpdatedBy.ProviderID,
		nanos(e.ReceivedAt), nanos(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save encounter %s: %w", e.ID, err)
	}
	return nil
}

func (r *repoSQLite) FindByID(ctx context.Context, healthID, encounterID string) (*Event, error) {
	e, err := scanSQLiteEvent(r.db.QueryRowContext(ctx,
		`SELECT `+encCols+` FROM encounter WHERE encounter_id = ? AND health_id = ?`,
		encounterID, healthID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find encounter %s: %w", encounterID, err)
	}
	return e, nil
}

func (r *repoSQLite) FindByTimeRange(ctx context.Context, scope feed.Scope, since time.Time, from string, limit int) ([]*Event, error) {
	where, args := `catchment LIKE ? ESCAPE '\'`, []any{prefixPattern(scope.Key)}
	if scope.Kind == feed.ScopePatient {
		where, args = `health_id = ?`, []any{scope.Key}
	}
	where += ` AND received_at >= ?`
	args = append(args, nanos(since))
	if from != "" {
		where += ` AND (received_at, sort_key) >= (?, ?)`
		args = append(args, nanos(since), from)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+encCols+` FROM encounter
		WHERE `+where+`
		ORDER BY received_at, sort_key LIMIT ?`,
		append(args, limit)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanSQLiteEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEvent(row scanner) (*Event, error) {
	var (
		e                   Event
		content             string
		patConf, encConf    string
		receivedAt, updated int64
	)
	err := row.Scan(
		&e.ID, &e.SortKey, &e.HealthID, &e.Catchment, &content,
		&patConf, &encConf,
		&e.CreatedBy.FacilityID, &e.CreatedBy.ProviderID, &e.UpdatedBy.FacilityID, &e.UpdatedBy.ProviderID,
		&receivedAt, &updated,
	)
	if err != nil {
		return nil, err
	}
	e.Content = []byte(content)
	e.PatientConfidentiality = fhir.ConfidentialityOrDefault(patConf)
	e.EncounterConfidentiality = fhir.ConfidentialityOrDefault(encConf)
	e.ReceivedAt = time.Unix(0, receivedAt).UTC()
	e.UpdatedAt = time.Unix(0, updated).UTC()
	return &e, nil
}
