package patient

import "context"

// Repository is the local patient cache. Find returns ErrNotFound on a miss.
// Save inserts or refreshes the record keyed by health id.
type Repository interface {
	Find(ctx context.Context, healthID string) (*Patient, error)
	Save(ctx context.Context, p *Patient) error
}
