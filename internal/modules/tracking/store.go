// README: Last-known location store backed by Redis.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"porter/internal/types"
)

const (
	lastKeyPattern = "porter:track:%s:%s"
	// Positions outlive any plausible tracking session; rooms rehydrate from
	// them after a restart.
	lastKeyTTL = 24 * time.Hour
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

func (s *Store) SaveLast(ctx context.Context, orderID types.ID, role Role, pos Position) error {
	payload, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, lastKey(orderID, role), payload, lastKeyTTL).Err()
}

func (s *Store) LoadLast(ctx context.Context, orderID types.ID) (map[Role]Position, error) {
	out := make(map[Role]Position)
	for _, role := range []Role{RoleMover, RoleCustomer} {
		val, err := s.redis.Get(ctx, lastKey(orderID, role)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var pos Position
		if err := json.Unmarshal([]byte(val), &pos); err != nil {
			continue
		}
		out[role] = pos
	}
	return out, nil
}

func lastKey(orderID types.ID, role Role) string {
	return fmt.Sprintf(lastKeyPattern, string(orderID), string(role))
}
