package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zsiec/reelcam/internal/config"
	"github.com/zsiec/reelcam/internal/logger"
	"github.com/zsiec/reelcam/internal/metrics"
)

// publishScript stores the recording and queues its id in one step so the
// uploader never sees an id without a record.
var publishScript = redis.NewScript(`
	local key = KEYS[1]
	local queue = KEYS[2]
	local data = ARGV[1]
	local ttl = tonumber(ARGV[2])
	local id = ARGV[3]
	local ok = redis.call('SET', key, data, 'PX', ttl, 'NX')
	if not ok then
		return 0
	end
	redis.call('LPUSH', queue, id)
	return 1
`)

// pendingScript lists queued ids oldest first and prunes ids whose record
// has expired.
var pendingScript = redis.NewScript(`
	local queue = KEYS[1]
	local prefix = ARGV[1]
	local ids = redis.call('LRANGE', queue, 0, -1)
	local result = {}
	for i = #ids, 1, -1 do
		local id = ids[i]
		if redis.call('EXISTS', prefix .. id) == 1 then
			table.insert(result, id)
		else
			redis.call('LREM', queue, 0, id)
		end
	end
	return result
`)

// RedisPublisher keeps recordings under <prefix>recording:<id> and their ids
// on the <prefix>uploads list.
type RedisPublisher struct {
	client *redis.Client
	logger logger.Logger
	prefix string
	ttl    time.Duration
}

func NewRedisPublisher(client *redis.Client, prefix string, ttl time.Duration, log logger.Logger) *RedisPublisher {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisPublisher{
		client: client,
		logger: logger.WithComponent(log, "handoff"),
		prefix: prefix,
		ttl:    ttl,
	}
}

// NewClient opens a Redis client for cfg and checks it is reachable.
func NewClient(ctx context.Context, cfg *config.HandoffConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

func (p *RedisPublisher) recordKey(id string) string {
	return p.prefix + "recording:" + id
}

func (p *RedisPublisher) queueKey() string {
	return p.prefix + "uploads"
}

// Publish queues rec for upload. Publishing the same id twice is an error.
func (p *RedisPublisher) Publish(ctx context.Context, rec *Recording) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal recording: %w", err)
	}

	result, err := publishScript.Run(ctx, p.client,
		[]string{p.recordKey(rec.ID), p.queueKey()},
		data, p.ttl.Milliseconds(), rec.ID).Int()
	if err != nil {
		metrics.IncHandoff("error")
		return fmt.Errorf("failed to publish recording: %w", err)
	}
	if result == 0 {
		metrics.IncHandoff("duplicate")
		return fmt.Errorf("recording %s already published", rec.ID)
	}

	metrics.IncHandoff("published")
	p.logger.WithFields(map[string]interface{}{
		"recording_id": rec.ID,
		"path":         rec.Path,
		"size":         rec.Size,
	}).Info("Recording queued for upload")
	return nil
}

// Get returns a published recording.
func (p *RedisPublisher) Get(ctx context.Context, id string) (*Recording, error) {
	data, err := p.client.Get(ctx, p.recordKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get recording: %w", err)
	}

	var rec Recording
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recording: %w", err)
	}
	return &rec, nil
}

// Pending lists ids waiting for upload, oldest first.
func (p *RedisPublisher) Pending(ctx context.Context) ([]string, error) {
	res, err := pendingScript.Run(ctx, p.client, []string{p.queueKey()}, p.recordKey("")).StringSlice()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to list pending uploads: %w", err)
	}
	return res, nil
}

// Complete removes a recording once the uploader is done with it.
func (p *RedisPublisher) Complete(ctx context.Context, id string) error {
	pipe := p.client.TxPipeline()
	del := pipe.Del(ctx, p.recordKey(id))
	pipe.LRem(ctx, p.queueKey(), 0, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete recording: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	p.logger.WithField("recording_id", id).Debug("Upload completed")
	return nil
}
