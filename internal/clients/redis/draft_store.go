package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DraftStore keeps the client's in-progress quiz buffer under a TTL.
type DraftStore struct {
	rdb    goredis.UniversalClient
	prefix string
}

func NewDraftStore(rdb goredis.UniversalClient, prefix string) *DraftStore {
	if prefix == "" {
		prefix = "quiz:draft:"
	}
	return &DraftStore{rdb: rdb, prefix: prefix}
}

func (s *DraftStore) Get(ctx context.Context, token string) ([]byte, bool, error) {
	raw, err := s.rdb.Get(ctx, s.prefix+token).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *DraftStore) Set(ctx context.Context, token string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.prefix+token, value, ttl).Err()
}

func (s *DraftStore) Clear(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, s.prefix+token).Err()
}
