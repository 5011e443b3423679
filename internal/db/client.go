package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/ognbridge/ogn2fanet/internal/types"
)

// Client persists bridge statistics snapshots to Postgres
type Client struct {
	db *sql.DB
}

// New creates a new database client
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Client{db: db}, nil
}

// NewWithDB creates a client around an existing handle (useful for testing)
func NewWithDB(db *sql.DB) *Client {
	return &Client{db: db}
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// StoreSnapshot stores one statistics snapshot
func (c *Client) StoreSnapshot(s *types.StatsSnapshot) error {
	query := `
		INSERT INTO bridge_stats (
			time, session_id, received, parsed, converted, published, errors,
			rate_limited, duplicate, too_old, invalid,
			active_devices, cache_size, connected, reconnect_attempts, uptime_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := c.db.Exec(query,
		s.Time, s.SessionID, s.Received, s.Parsed, s.Converted, s.Published, s.Errors,
		s.RateLimited, s.Duplicate, s.TooOld, s.Invalid,
		s.ActiveDevices, s.CacheSize, s.Connected, s.ReconnectAttempts, s.UptimeSeconds,
	)
	return err
}

// RecentSnapshots returns the most recent snapshots, newest first
func (c *Client) RecentSnapshots(limit int) ([]*types.StatsSnapshot, error) {
	query := `
		SELECT time, session_id, received, parsed, converted, published, errors,
			rate_limited, duplicate, too_old, invalid,
			active_devices, cache_size, connected, reconnect_attempts, uptime_seconds
		FROM bridge_stats
		ORDER BY time DESC
		LIMIT $1
	`
	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*types.StatsSnapshot
	for rows.Next() {
		var s types.StatsSnapshot
		if err := rows.Scan(
			&s.Time, &s.SessionID, &s.Received, &s.Parsed, &s.Converted, &s.Published, &s.Errors,
			&s.RateLimited, &s.Duplicate, &s.TooOld, &s.Invalid,
			&s.ActiveDevices, &s.CacheSize, &s.Connected, &s.ReconnectAttempts, &s.UptimeSeconds,
		); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, &s)
	}
	return snapshots, rows.Err()
}
