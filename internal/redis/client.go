package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ognbridge/ogn2fanet/internal/types"
)

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Client mirrors the latest accepted fix per device into Redis
type Client struct {
	client RedisClientInterface
	ttl    time.Duration
}

// New creates a new Redis client; ttl bounds how long a device state lives
func New(addr string, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if ttl == 0 {
		ttl = time.Hour
	}
	return &Client{client: client, ttl: ttl}, nil
}

// NewWithClient creates a client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface, ttl time.Duration) *Client {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &Client{client: client, ttl: ttl}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// StoreDeviceState stores the latest accepted fix for a device
func (c *Client) StoreDeviceState(ctx context.Context, state *types.DeviceState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal device state: %w", err)
	}

	key := fmt.Sprintf("device:%s", state.DeviceID)
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// GetDeviceState retrieves the latest fix for a device; nil when absent
func (c *Client) GetDeviceState(ctx context.Context, deviceID string) (*types.DeviceState, error) {
	key := fmt.Sprintf("device:%s", deviceID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device state: %w", err)
	}

	var state types.DeviceState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device state: %w", err)
	}
	return &state, nil
}

// DeleteDeviceState removes a device state
func (c *Client) DeleteDeviceState(ctx context.Context, deviceID string) error {
	key := fmt.Sprintf("device:%s", deviceID)
	return c.client.Del(ctx, key).Err()
}
