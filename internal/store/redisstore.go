package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonasehrlich/ek-scraper/internal/model"
)

const (
	redisVersionKey      = "ek-scraper:store:version"
	redisPartitionKeyFmt = "ek-scraper:store:search:%s"
)

// RedisStore keeps one hash per search partition, field = ad id, value =
// last-seen timestamp. Useful when several hosts share one store or the
// scraper runs in a container without a persistent volume.
type RedisStore struct {
	rdb    *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// OpenRedis connects to addr, verifies connectivity and checks the schema
// version marker. A marker written by a different version yields a
// *VersionError.
func OpenRedis(ctx context.Context, addr, password string, logger *slog.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	st := &RedisStore{rdb: rdb, logger: logger, now: time.Now}
	if err := st.checkVersion(ctx); err != nil {
		rdb.Close()
		return nil, err
	}
	return st, nil
}

func (s *RedisStore) checkVersion(ctx context.Context) error {
	val, err := s.rdb.Get(ctx, redisVersionKey).Result()
	if err == redis.Nil {
		if err := s.rdb.Set(ctx, redisVersionKey, SchemaVersion, 0).Err(); err != nil {
			return fmt.Errorf("write store version marker: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store version marker: %w", err)
	}
	got, err := strconv.Atoi(val)
	if err != nil || got != SchemaVersion {
		if err != nil {
			got = -1
		}
		return &VersionError{Source: "redis", Got: got, Want: SchemaVersion}
	}
	return nil
}

func partitionKey(search string) string {
	return fmt.Sprintf(redisPartitionKeyFmt, search)
}

// Seen implements Store.
func (s *RedisStore) Seen(ctx context.Context, search string, ids []string) (map[string]bool, error) {
	seen := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return seen, nil
	}
	vals, err := s.rdb.HMGet(ctx, partitionKey(search), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("store seen lookup: %w", err)
	}
	for i, id := range ids {
		seen[id] = vals[i] != nil
	}
	return seen, nil
}

// Record implements Store.
func (s *RedisStore) Record(ctx context.Context, search string, ads []model.AdRecord) error {
	if len(ads) == 0 {
		return nil
	}
	now := s.now().UTC().Format(time.RFC3339)
	fields := make([]any, 0, len(ads)*2)
	for _, ad := range ads {
		fields = append(fields, ad.ID, now)
	}
	if err := s.rdb.HSet(ctx, partitionKey(search), fields...).Err(); err != nil {
		return fmt.Errorf("store record: %w", err)
	}
	return nil
}

// Prune implements Store.
func (s *RedisStore) Prune(ctx context.Context, search string, observed []string) (int, error) {
	keep := make(map[string]struct{}, len(observed))
	for _, id := range observed {
		keep[id] = struct{}{}
	}

	ids, err := s.rdb.HKeys(ctx, partitionKey(search)).Result()
	if err != nil {
		return 0, fmt.Errorf("store prune scan: %w", err)
	}
	var drop []string
	for _, id := range ids {
		if _, ok := keep[id]; !ok {
			drop = append(drop, id)
		}
	}
	if len(drop) == 0 {
		return 0, nil
	}
	if err := s.rdb.HDel(ctx, partitionKey(search), drop...).Err(); err != nil {
		return 0, fmt.Errorf("store prune: %w", err)
	}
	return len(drop), nil
}

// Close implements Store. Redis writes are durable immediately, so Close
// only releases the connection.
func (s *RedisStore) Close(_ context.Context) error {
	return s.rdb.Close()
}
