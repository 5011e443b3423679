package stats

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ognbridge/ogn2fanet/internal/db"
	"github.com/ognbridge/ogn2fanet/internal/filter"
	"github.com/ognbridge/ogn2fanet/internal/types"
)

// Stats tracks pipeline processing counters
type Stats struct {
	startTime time.Time

	received  uint64
	parsed    uint64
	converted uint64
	published uint64
	errors    uint64

	mu        sync.RWMutex
	sessionID string
	db        *db.Client
}

// New creates a new Stats instance
func New() *Stats {
	return &Stats{startTime: time.Now()}
}

// SetDB sets the database client for persistence
func (s *Stats) SetDB(client *db.Client) {
	s.mu.Lock()
	s.db = client
	s.mu.Unlock()
}

// SetSessionID records the current transport session id
func (s *Stats) SetSessionID(id string) {
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
}

func (s *Stats) IncrementReceived()  { atomic.AddUint64(&s.received, 1) }
func (s *Stats) IncrementParsed()    { atomic.AddUint64(&s.parsed, 1) }
func (s *Stats) IncrementConverted() { atomic.AddUint64(&s.converted, 1) }
func (s *Stats) IncrementPublished() { atomic.AddUint64(&s.published, 1) }
func (s *Stats) IncrementErrors()    { atomic.AddUint64(&s.errors, 1) }

// Uptime returns the elapsed time since the bridge started
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// TransportStatus is the subset of the session snapshot the stats need
type TransportStatus struct {
	SessionID         string
	Connected         bool
	ReconnectAttempts int
}

// BuildSnapshot assembles a point-in-time snapshot from the pipeline counters
// plus the filter and transport views
func (s *Stats) BuildSnapshot(fs filter.Stats, ts TransportStatus, activeDevices int) *types.StatsSnapshot {
	s.mu.RLock()
	sessionID := s.sessionID
	s.mu.RUnlock()
	if ts.SessionID != "" {
		sessionID = ts.SessionID
	}

	return &types.StatsSnapshot{
		Time:              time.Now().UTC(),
		SessionID:         sessionID,
		Received:          atomic.LoadUint64(&s.received),
		Parsed:            atomic.LoadUint64(&s.parsed),
		Converted:         atomic.LoadUint64(&s.converted),
		Published:         atomic.LoadUint64(&s.published),
		Errors:            atomic.LoadUint64(&s.errors),
		RateLimited:       fs.RateLimited,
		Duplicate:         fs.Duplicate,
		TooOld:            fs.TooOld,
		Invalid:           fs.Invalid,
		ActiveDevices:     activeDevices,
		CacheSize:         fs.CacheSize,
		Connected:         ts.Connected,
		ReconnectAttempts: ts.ReconnectAttempts,
		UptimeSeconds:     s.Uptime().Seconds(),
	}
}

// Persist stores a snapshot in the database
func (s *Stats) Persist(snapshot *types.StatsSnapshot) error {
	s.mu.RLock()
	client := s.db
	s.mu.RUnlock()

	if client == nil {
		return fmt.Errorf("database client not set")
	}
	return client.StoreSnapshot(snapshot)
}

// StartPersistence periodically persists snapshots until the context ends.
// It is a no-op when no database client is configured.
func (s *Stats) StartPersistence(ctx context.Context, interval time.Duration, build func() *types.StatsSnapshot) {
	s.mu.RLock()
	client := s.db
	s.mu.RUnlock()
	if client == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Persist(build()); err != nil {
				fmt.Printf("Failed to persist stats: %v\n", err)
			}
		}
	}
}
