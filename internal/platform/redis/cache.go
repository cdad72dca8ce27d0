// Package redis provides the company-scoped read-through cache for record
// list queries. The record persister invalidates a company's entry on every
// write so list queries are immediately consistent.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/voxnote/voxnote-api/internal/config"
	"github.com/voxnote/voxnote-api/internal/domain"
)

// ErrCacheMiss is returned when no cached entry exists for the key.
var ErrCacheMiss = errors.New("cache miss")

// RecordCache caches record lists per company.
type RecordCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRecordCache builds a cache over the given client.
func NewRecordCache(client *redis.Client, ttl time.Duration) *RecordCache {
	return &RecordCache{client: client, ttl: ttl}
}

// NewClient connects a go-redis client from config.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// GetRecords returns the cached record list for the company, or ErrCacheMiss.
func (c *RecordCache) GetRecords(ctx context.Context, companyID uuid.UUID) ([]*domain.ProcessedRecord, error) {
	data, err := c.client.Get(ctx, recordsKey(companyID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read record cache: %w", err)
	}

	var records []*domain.ProcessedRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode cached records: %w", err)
	}

	return records, nil
}

// SetRecords stores the record list for the company.
func (c *RecordCache) SetRecords(ctx context.Context, companyID uuid.UUID, records []*domain.ProcessedRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode records for cache: %w", err)
	}

	if err := c.client.Set(ctx, recordsKey(companyID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write record cache: %w", err)
	}

	return nil
}

// Invalidate drops the company's cached record list.
func (c *RecordCache) Invalidate(ctx context.Context, companyID uuid.UUID) error {
	if err := c.client.Del(ctx, recordsKey(companyID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate record cache: %w", err)
	}
	return nil
}

func recordsKey(companyID uuid.UUID) string {
	return "records:company:" + companyID.String()
}
