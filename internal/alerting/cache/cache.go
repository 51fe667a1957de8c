package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/qiniu/venueops/internal/alerting/model"
	"github.com/redis/go-redis/v9"
)

// AlertCache is a write-through mirror of alerts and incidents for readers outside
// this process. The monitor never reads it back. Writes are best effort.
type AlertCache interface {
	WriteAlert(ctx context.Context, a *model.Alert) error
	ResolveAlert(ctx context.Context, alertID string, resolvedAt time.Time) error
	WriteIncident(ctx context.Context, inc *model.Incident) error
	ResolveIncident(ctx context.Context, incidentID string, resolvedAt time.Time, mttr float64) error
}

// NoopCache is used when no Redis is configured.
type NoopCache struct{}

func (NoopCache) WriteAlert(context.Context, *model.Alert) error { return nil }
func (NoopCache) ResolveAlert(context.Context, string, time.Time) error { return nil }
func (NoopCache) WriteIncident(context.Context, *model.Incident) error { return nil }
func (NoopCache) ResolveIncident(context.Context, string, time.Time, float64) error { return nil }

const (
	alertKeyPrefix      = "alert:live:"
	alertIndexActive    = "alert:index:status:active"
	alertIndexAck       = "alert:index:status:acknowledged"
	alertIndexResolved  = "alert:index:status:resolved"
	incidentKeyPrefix   = "incident:"
	incidentIndexOpen   = "incident:index:open"
	incidentIndexClosed = "incident:index:closed"
	defaultRetention    = 7 * 24 * time.Hour
)

// RedisCache stores each alert and incident as a JSON string plus status index sets.
type RedisCache struct {
	R   *redis.Client
	TTL time.Duration
}

func NewRedisCache(rdb *redis.Client) AlertCache {
	if rdb == nil {
		return NoopCache{}
	}
	return &RedisCache{R: rdb, TTL: defaultRetention}
}

// NewRedisClient builds a client from address settings; an empty addr yields nil.
func NewRedisClient(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

var writeAlertScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[4])
redis.call('SREM', KEYS[2], ARGV[2])
redis.call('SREM', KEYS[3], ARGV[2])
redis.call('SREM', KEYS[4], ARGV[2])
if ARGV[3] == 'active' then redis.call('SADD', KEYS[2], ARGV[2])
elseif ARGV[3] == 'acknowledged' then redis.call('SADD', KEYS[3], ARGV[2])
else redis.call('SADD', KEYS[4], ARGV[2]) end
return 1
`)

func (c *RedisCache) WriteAlert(ctx context.Context, a *model.Alert) error {
	if c == nil || c.R == nil || a == nil {
		return nil
	}
	bs, err := json.Marshal(a)
	if err != nil {
		return err
	}
	keys := []string{alertKeyPrefix + a.AlertID, alertIndexActive, alertIndexAck, alertIndexResolved}
	return writeAlertScript.Run(ctx, c.R, keys, string(bs), a.AlertID, string(a.Status), c.ttlSeconds()).Err()
}

var resolveAlertScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
local obj = cjson.decode(v)
obj.status = 'resolved'
obj.resolved_at = ARGV[2]
redis.call('SET', KEYS[1], cjson.encode(obj), 'KEEPTTL')
redis.call('SREM', KEYS[2], ARGV[1])
redis.call('SREM', KEYS[3], ARGV[1])
redis.call('SADD', KEYS[4], ARGV[1])
return 1
`)

// ResolveAlert flips the cached record to resolved and moves it between index sets.
func (c *RedisCache) ResolveAlert(ctx context.Context, alertID string, resolvedAt time.Time) error {
	if c == nil || c.R == nil {
		return nil
	}
	keys := []string{alertKeyPrefix + alertID, alertIndexActive, alertIndexAck, alertIndexResolved}
	return resolveAlertScript.Run(ctx, c.R, keys, alertID, resolvedAt.UTC().Format(time.RFC3339Nano)).Err()
}

func (c *RedisCache) WriteIncident(ctx context.Context, inc *model.Incident) error {
	if c == nil || c.R == nil || inc == nil {
		return nil
	}
	bs, err := json.Marshal(inc)
	if err != nil {
		return err
	}
	key := incidentKeyPrefix + inc.IncidentID
	pipe := c.R.TxPipeline()
	pipe.Set(ctx, key, bs, c.ttl())
	if inc.Status == model.IncidentResolved {
		pipe.SRem(ctx, incidentIndexOpen, inc.IncidentID)
		pipe.SAdd(ctx, incidentIndexClosed, inc.IncidentID)
	} else {
		pipe.SAdd(ctx, incidentIndexOpen, inc.IncidentID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

var resolveIncidentScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
local obj = cjson.decode(v)
obj.status = 'resolved'
obj.resolved_at = ARGV[2]
obj.mttr_seconds = tonumber(ARGV[3])
redis.call('SET', KEYS[1], cjson.encode(obj), 'KEEPTTL')
redis.call('SREM', KEYS[2], ARGV[1])
redis.call('SADD', KEYS[3], ARGV[1])
return 1
`)

func (c *RedisCache) ResolveIncident(ctx context.Context, incidentID string, resolvedAt time.Time, mttr float64) error {
	if c == nil || c.R == nil {
		return nil
	}
	keys := []string{incidentKeyPrefix + incidentID, incidentIndexOpen, incidentIndexClosed}
	return resolveIncidentScript.Run(ctx, c.R, keys, incidentID, resolvedAt.UTC().Format(time.RFC3339Nano), mttr).Err()
}

func (c *RedisCache) ttl() time.Duration {
	if c.TTL <= 0 {
		return defaultRetention
	}
	return c.TTL
}

func (c *RedisCache) ttlSeconds() int64 { return int64(c.ttl() / time.Second) }
