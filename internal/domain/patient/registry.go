package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Registry confirms a patient exists before an encounter is accepted. The
// local repository is consulted first; misses go to the master client index
// and hits from there are cached locally.
type Registry struct {
	repo   Repository
	remote Remote
	logger zerolog.Logger
}

func NewRegistry(repo Repository, remote Remote, logger zerolog.Logger) *Registry {
	return &Registry{repo: repo, remote: remote, logger: logger}
}

// EnsurePresent returns the patient or ErrNotFound. Failures reaching either
// store are returned wrapped so callers can tell them apart from a miss.
func (r *Registry) EnsurePresent(ctx context.Context, healthID string) (*Patient, error) {
	p, err := r.repo.Find(ctx, healthID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if r.remote == nil {
		return nil, ErrNotFound
	}
	p, err = r.remote.Fetch(ctx, healthID)
	if errors.Is(err, ErrNotFound) {
		r.logger.Debug().Str("health_id", healthID).Msg("patient not found in master client index")
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := r.repo.Save(ctx, p); err != nil {
		r.logger.Warn().Err(err).Str("health_id", healthID).Msg("unable to cache patient")
	}
	return p, nil
}
