package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"ghidra_auto_analysis/analysis-service/pkg/task"
)

// ErrNotFound is returned by Get for an unknown or expired SID.
var ErrNotFound = errors.New("record not found")

// ResultStore keeps task records in redis.
type ResultStore struct {
	rdb  redis.Cmdable
	keys Keys
	ttl  time.Duration
}

// NewResultStore keeps records for ttl; zero keeps them forever.
func NewResultStore(rdb redis.Cmdable, prefix string, ttl time.Duration) *ResultStore {
	return &ResultStore{
		rdb:  rdb,
		keys: Keys{Prefix: prefix},
		ttl:  ttl,
	}
}

// Save stores the record and appends its sid to the done or failed list.
func (s *ResultStore) Save(ctx context.Context, rec task.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.SID, err)
	}

	list := s.keys.Done()
	if rec.Failed() {
		list = s.keys.Failed()
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, s.keys.Result(rec.SID), data, s.ttl)
	pipe.RPush(ctx, list, rec.SID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving record %s: %w", rec.SID, err)
	}
	return nil
}

// Get returns the record stored for sid.
func (s *ResultStore) Get(ctx context.Context, sid string) (*task.Record, error) {
	data, err := s.rdb.Get(ctx, s.keys.Result(sid)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec task.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", sid, err)
	}
	return &rec, nil
}
