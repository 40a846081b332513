// Package refdata holds reference lists that validation reads but does not
// own. Lists are populated out of band by Refresher and read through a
// Source on every validation.
package refdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultEncounterTypesKey is the redis set holding encounter type names.
const DefaultEncounterTypesKey = "shr:refdata:encounter-types"

// ErrUnavailable is returned when the cache cannot be read.
var ErrUnavailable = errors.New("reference data unavailable")

// Source returns the currently known encounter types. An empty list is a
// valid answer and means no type is acceptable.
type Source interface {
	EncounterTypes(ctx context.Context) ([]string, error)
}

// Store is a Source that can also be overwritten.
type Store interface {
	Source
	ReplaceEncounterTypes(ctx context.Context, types []string) error
}

// RedisStore keeps encounter types in a redis set.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if key == "" {
		key = DefaultEncounterTypesKey
	}
	return &RedisStore{client: client, key: key}
}

// Connect parses a redis URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) EncounterTypes(ctx context.Context) ([]string, error) {
	types, err := s.client.SMembers(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	sort.Strings(types)
	return types, nil
}

// ReplaceEncounterTypes swaps the whole set atomically.
func (s *RedisStore) ReplaceEncounterTypes(ctx context.Context, types []string) error {
	members := make([]interface{}, 0, len(types))
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			members = append(members, t)
		}
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(members) > 0 {
			pipe.SAdd(ctx, s.key, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replacing encounter types: %w", err)
	}
	return nil
}

// StaticSource serves a fixed list. Used when no redis is configured.
type StaticSource []string

func (s StaticSource) EncounterTypes(context.Context) ([]string, error) {
	return []string(s), nil
}

// Contains reports whether name is in types, ignoring case and surrounding
// space.
func Contains(types []string, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	for _, t := range types {
		if strings.EqualFold(strings.TrimSpace(t), name) {
			return true
		}
	}
	return false
}
