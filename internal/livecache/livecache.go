// Package livecache keeps the latest annotated packet and the active
// flight's metadata in Redis, so sibling services (dashboards, alerting) can
// poll current state without touching the storage engine. Like the NATS
// mirror, it is optional and best-effort.
package livecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saviobatista/telemetry-server/internal/tracker"
	"github.com/saviobatista/telemetry-server/internal/types"
)

const (
	keyLatestPacket = "telemetry:latest"
	keyActiveFlight = "telemetry:active_flight"

	packetTTL = time.Hour
	flightTTL = 24 * time.Hour
)

// RedisClient defines the Redis operations used by the cache.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Client manages the Redis live-state cache.
type Client struct {
	client RedisClient
}

// New creates a cache client and verifies connectivity.
func New(addr string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client}, nil
}

// NewWithClient creates a cache around a custom RedisClient (useful for testing).
func NewWithClient(client RedisClient) *Client {
	return &Client{client: client}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Publish updates the cached latest packet and active-flight record. It
// satisfies the ingest mirror interface.
func (c *Client) Publish(ctx context.Context, pkt *types.AnnotatedPacket, res tracker.Result) error {
	data, err := json.Marshal(pkt)
	if err != nil {
		return fmt.Errorf("failed to marshal packet: %w", err)
	}
	if err := c.client.Set(ctx, keyLatestPacket, data, packetTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache latest packet: %w", err)
	}

	if res.Meta == nil {
		if err := c.client.Del(ctx, keyActiveFlight).Err(); err != nil {
			return fmt.Errorf("failed to clear active flight: %w", err)
		}
		return nil
	}

	meta, err := json.Marshal(res.Meta)
	if err != nil {
		return fmt.Errorf("failed to marshal flight metadata: %w", err)
	}
	if err := c.client.Set(ctx, keyActiveFlight, meta, flightTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache active flight: %w", err)
	}
	return nil
}

// GetLatestPacket returns the most recent annotated packet, nil if none.
func (c *Client) GetLatestPacket(ctx context.Context) (*types.AnnotatedPacket, error) {
	data, err := c.client.Get(ctx, keyLatestPacket).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest packet: %w", err)
	}

	var pkt types.AnnotatedPacket
	if err := json.Unmarshal(data, &pkt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal latest packet: %w", err)
	}
	return &pkt, nil
}

// GetActiveFlight returns the cached active flight metadata, nil if idle.
func (c *Client) GetActiveFlight(ctx context.Context) (*types.FlightMetadata, error) {
	data, err := c.client.Get(ctx, keyActiveFlight).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active flight: %w", err)
	}

	var meta types.FlightMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal active flight: %w", err)
	}
	return &meta, nil
}
