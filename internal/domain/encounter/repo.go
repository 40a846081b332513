package encounter

import (
	"context"
	"strings"

	"github.com/shr/shr/internal/domain/feed"
)

// Repository persists accepted encounters. FindByTimeRange returns events
// received at or after since, ascending by receipt time and sort key, resuming
// at sort key from when one is given; a catchment scope matches every event
// whose catchment starts with the key.
type Repository interface {
	feed.Store[*Event]
	Save(ctx context.Context, e *Event) error
	FindByID(ctx context.Context, healthID, encounterID string) (*Event, error)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// prefixPattern returns a LIKE pattern matching strings that start with s.
func prefixPattern(s string) string {
	return likeEscaper.Replace(s) + "%"
}
