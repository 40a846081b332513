package encounter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shr/shr/internal/domain/feed"
	"github.com/shr/shr/internal/domain/patient"
	"github.com/shr/shr/internal/domain/validation"
	"github.com/shr/shr/internal/platform/access"
	"github.com/shr/shr/internal/platform/events"
)

const (
	DefaultFetchLimit       = 20
	DefaultPatientFeedLimit = 200
)

var (
	ErrNotFound        = errors.New("encounter not found")
	ErrPatientNotFound = errors.New("patient not available in patient registry")
	// ErrUnavailable marks a collaborator failure outside validation.
	ErrUnavailable = errors.New("service temporarily unavailable")
)

// RejectedError carries the validation result of a document that was not
// accepted. It unwraps to ErrUnavailable when every blocking issue was caused
// by a collaborator outage, so callers can ask the client to retry.
type RejectedError struct {
	Result *validation.Result
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("encounter rejected with %d blocking issue(s)", len(e.Result.Errors()))
}

func (e *RejectedError) Unwrap() error {
	if e.Result.Transient() {
		return ErrUnavailable
	}
	return nil
}

// Validator runs the encounter validation pipeline.
type Validator interface {
	Validate(ctx context.Context, sub validation.Submission) *validation.Result
}

// PatientRegistry confirms the patient exists before a document is stored.
type PatientRegistry interface {
	EnsurePresent(ctx context.Context, healthID string) (*patient.Patient, error)
}

type Config struct {
	FetchLimit       int
	PatientFeedLimit int
}

type Service struct {
	repo      Repository
	validator Validator
	registry  PatientRegistry
	publisher events.Publisher
	feeds     *feed.Engine[*Event]
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, validator Validator, registry PatientRegistry, publisher events.Publisher, cfg Config, logger zerolog.Logger) *Service {
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = DefaultFetchLimit
	}
	if cfg.PatientFeedLimit <= 0 {
		cfg.PatientFeedLimit = DefaultPatientFeedLimit
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		repo:      repo,
		validator: validator,
		registry:  registry,
		publisher: publisher,
		feeds:     feed.NewEngine[*Event](repo),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the clock used for timestamps and feed rollover.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.feeds.WithClock(now)
	return s
}

func (s *Service) audit(id access.Identity, action, target string, d access.Decision) {
	roles := make([]string, len(id.Roles))
	for i, r := range id.Roles {
		roles[i] = string(r.Kind)
	}
	s.logger.Info().
		Str("caller", id.ID).
		Strs("roles", roles).
		Str("action", action).
		Str("target", target).
		Stringer("decision", d).
		Msg("access")
}

// CreateEncounter validates content, confirms the patient and stores the
// document. A rejected document returns *RejectedError.
func (s *Service) CreateEncounter(ctx context.Context, id access.Identity, healthID string, content []byte) (*Event, error) {
	d := access.DecideAccess(id, access.Patient(healthID))
	s.audit(id, "create", healthID, d)
	if d == access.Denied {
		return nil, access.ErrDenied
	}

	encounterID := uuid.NewString()
	res := s.validator.Validate(ctx, validation.Submission{
		EncounterID: encounterID,
		HealthID:    healthID,
		Content:     content,
	})
	if !res.Successful() {
		s.logger.Info().
			Str("health_id", healthID).
			Str("encounter_id", encounterID).
			Int("issues", len(res.Errors())).
			Bool("transient", res.Transient()).
			Msg("encounter rejected")
		return nil, &RejectedError{Result: res}
	}

	p, err := s.registry.EnsurePresent(ctx, healthID)
	if errors.Is(err, patient.ErrNotFound) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sortKey, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate sort key: %w", err)
	}
	now := s.now().UTC()
	requester := RequesterFrom(id)
	evt := &Event{
		SortKey: sortKey.String(),
		Document: Document{
			ID:                       encounterID,
			HealthID:                 healthID,
			Catchment:                p.Catchment(),
			Content:                  content,
			ReceivedAt:               now,
			UpdatedAt:                now,
			PatientConfidentiality:   p.Confidentiality,
			EncounterConfidentiality: res.Confidentiality,
			CreatedBy:                requester,
			UpdatedBy:                requester,
		},
	}
	if err := s.repo.Save(ctx, evt); err != nil {
		return nil, err
	}

	err = s.publisher.PublishEncounterAccepted(ctx, events.EncounterAccepted{
		EncounterID:              evt.ID,
		HealthID:                 evt.HealthID,
		Catchment:                evt.Catchment,
		SortKey:                  evt.SortKey,
		ReceivedAt:               evt.ReceivedAt,
		PatientConfidentiality:   evt.PatientConfidentiality.Code(),
		EncounterConfidentiality: evt.EncounterConfidentiality.Code(),
		FacilityID:               requester.FacilityID,
	})
	if err != nil {
		// the document is stored; feed readers still see it
		s.logger.Warn().Err(err).Str("encounter_id", evt.ID).Msg("publish encounter accepted")
	}

	s.logger.Info().
		Str("health_id", healthID).
		Str("encounter_id", evt.ID).
		Str("catchment", evt.Catchment).
		Msg("encounter accepted")
	return evt, nil
}

// GetEncounter returns one of the patient's encounters. A confidential
// encounter is only returned to callers with unrestricted access.
func (s *Service) GetEncounter(ctx context.Context, id access.Identity, healthID, encounterID string) (*Event, error) {
	d := access.DecideAccess(id, access.Patient(healthID))
	s.audit(id, "fetch", healthID+"/"+encounterID, d)
	if d == access.Denied {
		return nil, access.ErrDenied
	}

	evt, err := s.repo.FindByID(ctx, healthID, encounterID)
	if err != nil {
		return nil, err
	}
	if d != access.Unrestricted && evt.Confidential() {
		return nil, access.ErrDenied
	}
	return evt, nil
}

// PatientFeed pages through a patient's encounters. Callers with restricted
// access are denied outright when the patient is confidential; otherwise
// confidential documents are dropped from the page.
func (s *Service) PatientFeed(ctx context.Context, id access.Identity, healthID string, since time.Time, marker string) (feed.Page[*Event], error) {
	d := access.DecideAccess(id, access.Patient(healthID))
	s.audit(id, "patient-feed", healthID, d)
	if d == access.Denied {
		return feed.Page[*Event]{}, access.ErrDenied
	}

	page, err := s.feeds.ListPatientFeed(ctx, healthID, since, marker, s.cfg.PatientFeedLimit)
	if err != nil {
		return feed.Page[*Event]{}, err
	}
	if d == access.Restricted && access.HasConfidentialPatient(page.Entries) {
		return feed.Page[*Event]{}, access.ErrDenied
	}
	page.Entries = access.FilterEvents(d, page.Entries)
	return page, nil
}

// CatchmentFeed pages through the encounters of patients in a catchment. The
// next cursor is taken before confidentiality filtering so hidden documents
// cannot stall the feed.
func (s *Service) CatchmentFeed(ctx context.Context, id access.Identity, catchment string, since time.Time, marker string) (feed.Page[*Event], error) {
	catchment, err := feed.ValidateCatchment(catchment)
	if err != nil {
		return feed.Page[*Event]{}, err
	}

	d := access.DecideAccess(id, access.Catchment(catchment))
	s.audit(id, "catchment-feed", catchment, d)
	if d == access.Denied {
		return feed.Page[*Event]{}, access.ErrDenied
	}

	page, err := s.feeds.ListCatchmentFeed(ctx, catchment, since, marker, s.cfg.FetchLimit)
	if err != nil {
		return feed.Page[*Event]{}, err
	}
	page.Entries = access.FilterEvents(d, page.Entries)
	return page, nil
}

// DefaultCatchmentSince is the updatedSince used when a catchment feed
// request names none: the start of the current month.
func (s *Service) DefaultCatchmentSince() time.Time {
	return feed.FirstOfMonth(s.now().UTC())
}
