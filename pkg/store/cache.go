package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jordigilh/rounds/pkg/model"
	"github.com/jordigilh/rounds/pkg/ports"
)

// RedisCache wraps a SignatureStorePort with a read-through cache on
// GetByID/GetByFingerprint, invalidated on every Save/Update. Reads
// that miss Redis, or that hit a Redis error, fall through to the
// wrapped store so a cache outage degrades latency, not correctness.
type RedisCache struct {
	next   ports.SignatureStorePort
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps next with a Redis read-through cache at addr,
// keyed entries expiring after ttl.
func NewRedisCache(next ports.SignatureStorePort, addr string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		next:   next,
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

// Close releases the Redis client connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func idKey(id string) string           { return "rounds:sig:id:" + id }
func fingerprintKey(fp string) string  { return "rounds:sig:fp:" + fp }

func (c *RedisCache) readThrough(ctx context.Context, key string, fetch func() (*model.Signature, error)) (*model.Signature, error) {
	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var sig model.Signature
		if err := json.Unmarshal(cached, &sig); err == nil {
			return &sig, nil
		}
	}

	sig, err := fetch()
	if err != nil || sig == nil {
		return sig, err
	}

	if encoded, err := json.Marshal(sig); err == nil {
		c.client.Set(ctx, key, encoded, c.ttl)
	}
	return sig, nil
}

// GetByID is read-through cached by id.
func (c *RedisCache) GetByID(ctx context.Context, id string) (*model.Signature, error) {
	return c.readThrough(ctx, idKey(id), func() (*model.Signature, error) {
		return c.next.GetByID(ctx, id)
	})
}

// GetByFingerprint is read-through cached by fingerprint.
func (c *RedisCache) GetByFingerprint(ctx context.Context, fingerprint string) (*model.Signature, error) {
	return c.readThrough(ctx, fingerprintKey(fingerprint), func() (*model.Signature, error) {
		return c.next.GetByFingerprint(ctx, fingerprint)
	})
}

func (c *RedisCache) invalidate(ctx context.Context, sig *model.Signature) {
	c.client.Del(ctx, idKey(sig.ID), fingerprintKey(sig.Fingerprint))
}

// Save delegates then invalidates any cached entry for sig, so the
// next read repopulates with fresh data rather than serving stale.
func (c *RedisCache) Save(ctx context.Context, sig *model.Signature) error {
	if err := c.next.Save(ctx, sig); err != nil {
		return err
	}
	c.invalidate(ctx, sig)
	return nil
}

// Update delegates then invalidates, like Save.
func (c *RedisCache) Update(ctx context.Context, sig *model.Signature) error {
	if err := c.next.Update(ctx, sig); err != nil {
		return err
	}
	c.invalidate(ctx, sig)
	return nil
}

// GetPendingInvestigation is never cached: it is called once per
// investigation cycle and must always reflect the latest statuses.
func (c *RedisCache) GetPendingInvestigation(ctx context.Context) ([]model.Signature, error) {
	return c.next.GetPendingInvestigation(ctx)
}

// GetAll is never cached, for the same reason as GetPendingInvestigation.
func (c *RedisCache) GetAll(ctx context.Context) ([]model.Signature, error) {
	return c.next.GetAll(ctx)
}

// GetSimilar is never cached: its result set depends on the full
// current table, not a single key.
func (c *RedisCache) GetSimilar(ctx context.Context, sig *model.Signature, limit int) ([]model.Signature, error) {
	return c.next.GetSimilar(ctx, sig, limit)
}

// GetStats is never cached: callers expect an up-to-date aggregate.
func (c *RedisCache) GetStats(ctx context.Context) (model.StoreStats, error) {
	return c.next.GetStats(ctx)
}

var _ ports.SignatureStorePort = (*RedisCache)(nil)
