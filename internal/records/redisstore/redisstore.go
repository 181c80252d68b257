package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/records"
)

// Store keeps records as JSON documents in a Redis list. Ids come from an
// INCR counter stored next to the list.
type Store struct {
	rdb    redis.UniversalClient
	key    string
	logger *log.Logger
	now    func() time.Time
}

var _ records.Store = (*Store)(nil)

func New(rdb redis.UniversalClient, key string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Discard()
	}
	return &Store{
		rdb:    rdb,
		key:    key,
		logger: logger.WithComponent(log.ComponentRedis),
		now:    time.Now,
	}
}

func (s *Store) seqKey() string {
	return s.key + ":seq"
}

// Insert assigns the next id and appends the record to the list.
func (s *Store) Insert(ctx context.Context, it core.LineItem) (string, error) {
	n, err := s.rdb.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return "", fmt.Errorf("allocate record id: %w", err)
	}

	rec := core.Record{
		ID:        strconv.FormatInt(n, 10),
		Item:      it.Item,
		Category:  it.Category,
		Price:     it.Price,
		CreatedAt: s.now().UTC(),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	if err := s.rdb.RPush(ctx, s.key, payload).Err(); err != nil {
		return "", fmt.Errorf("push record %s: %w", rec.ID, err)
	}
	return "redis:" + rec.ID, nil
}

// List returns every record in insertion order. Entries that do not decode
// are logged and skipped.
func (s *Store) List(ctx context.Context) ([]core.Record, error) {
	raw, err := s.rdb.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	out := make([]core.Record, 0, len(raw))
	for i, entry := range raw {
		var rec core.Record
		if err := json.Unmarshal([]byte(entry), &rec); err != nil {
			s.logger.WarnContext(ctx, "Skipping malformed record", log.FieldRowIndex, i, log.FieldError, err.Error())
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
