package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hogliux/collect/internal/domain"
)

const keyPrefix = "collect:prefs:"

// PreferenceStore keeps one scope in a hash. Each field holds
// "<kind>:<text>".
type PreferenceStore struct {
	rdb *goredis.Client
	key string
}

var _ domain.PreferenceStore = (*PreferenceStore)(nil)

func NewPreferenceStore(rdb *goredis.Client, scope domain.Scope) *PreferenceStore {
	return &PreferenceStore{rdb: rdb, key: keyPrefix + string(scope)}
}

func (s *PreferenceStore) Get(ctx context.Context, key string) (domain.Value, bool, error) {
	raw, err := s.rdb.HGet(ctx, s.key, key).Result()
	if errors.Is(err, goredis.Nil) {
		return domain.Value{}, false, nil
	}
	if err != nil {
		return domain.Value{}, false, fmt.Errorf("failed to read preference %q: %w", key, err)
	}
	v, err := decodeValue(raw)
	if err != nil {
		return domain.Value{}, false, fmt.Errorf("preference %q: %w", key, err)
	}
	return v, true, nil
}

func (s *PreferenceStore) All(ctx context.Context) (map[string]domain.Value, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}
	out := make(map[string]domain.Value, len(fields))
	for k, raw := range fields {
		v, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("preference %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func (s *PreferenceStore) Set(ctx context.Context, key string, v domain.Value) error {
	if err := s.rdb.HSet(ctx, s.key, key, encodeValue(v)).Err(); err != nil {
		return fmt.Errorf("failed to write preference %q: %w", key, err)
	}
	return nil
}

// Replace swaps the whole hash in one MULTI/EXEC.
func (s *PreferenceStore) Replace(ctx context.Context, values map[string]domain.Value) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			fields := make(map[string]any, len(values))
			for k, v := range values {
				fields[k] = encodeValue(v)
			}
			pipe.HSet(ctx, s.key, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace preferences: %w", err)
	}
	return nil
}

func (s *PreferenceStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear preferences: %w", err)
	}
	return nil
}

func encodeValue(v domain.Value) string {
	return string(v.Kind) + ":" + v.Text()
}

func decodeValue(raw string) (domain.Value, error) {
	kind, text, ok := strings.Cut(raw, ":")
	if !ok {
		return domain.Value{}, fmt.Errorf("%w: malformed stored value %q", domain.ErrInvalidPreference, raw)
	}
	return domain.ParseValue(domain.Kind(kind), text)
}
