package filter

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ognbridge/ogn2fanet/internal/types"
)

// Decision classifies the outcome of filtering one message
type Decision int

const (
	Accept Decision = iota
	RejectInvalid
	RejectTooOld
	RejectRateLimited
	RejectDuplicate
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case RejectTooOld:
		return "too-old"
	case RejectRateLimited:
		return "rate-limited"
	case RejectDuplicate:
		return "duplicate"
	default:
		return "invalid"
	}
}

// Duplicate tolerances: ~10 m in coordinates and altitude
const (
	coordTolerance = 0.0001
	altTolerance   = 10.0

	activeWindow = 5 * time.Minute
)

// Config holds the traffic-filter policy
type Config struct {
	RateLimit       time.Duration
	MaxMessageAge   time.Duration
	CleanupInterval time.Duration
	MaxCacheSize    int
}

// DeviceEntry is the cached last-accepted state for one device
type DeviceEntry struct {
	DeviceID        string    `json:"device_id"`
	LastMessageTime time.Time `json:"last_message_time"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	Altitude        float64   `json:"altitude"`
	MessageCount    int       `json:"message_count"`
}

// ActiveDevice is one entry of the recently-seen device listing
type ActiveDevice struct {
	DeviceID     string    `json:"device_id"`
	LastSeen     time.Time `json:"last_seen"`
	MessageCount int       `json:"message_count"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Altitude     float64   `json:"altitude"`
}

// Stats is the cumulative filtering breakdown
type Stats struct {
	Processed   uint64 `json:"processed"`
	Passed      uint64 `json:"passed"`
	RateLimited uint64 `json:"rate_limited"`
	Duplicate   uint64 `json:"duplicate"`
	TooOld      uint64 `json:"too_old"`
	Invalid     uint64 `json:"invalid"`
	CacheSize   int    `json:"cache_size"`
	PassRate    string `json:"pass_rate"`
}

// Filter decides whether a parsed message continues through the pipeline,
// suppressing stale, over-frequent, and near-identical traffic per device.
// The cache entry for a device only ever advances on accepted messages, so a
// run of rejections is always measured against the last accepted fix.
type Filter struct {
	cfg Config
	log *logrus.Logger

	mu          sync.Mutex
	devices     map[string]*DeviceEntry
	processed   uint64
	passed      uint64
	rateLimited uint64
	duplicate   uint64
	tooOld      uint64
	invalid     uint64

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a traffic filter and starts its periodic eviction sweep
func New(cfg Config, log *logrus.Logger) *Filter {
	if cfg.RateLimit == 0 {
		cfg.RateLimit = time.Second
	}
	if cfg.MaxMessageAge == 0 {
		cfg.MaxMessageAge = time.Hour
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.MaxCacheSize == 0 {
		cfg.MaxCacheSize = 10000
	}

	f := &Filter{
		cfg:     cfg,
		log:     log,
		devices: make(map[string]*DeviceEntry),
		stop:    make(chan struct{}),
	}

	f.wg.Add(1)
	go f.sweepLoop()
	return f
}

// Stop cancels the eviction sweep
func (f *Filter) Stop() {
	f.stopOnce.Do(func() {
		close(f.stop)
	})
	f.wg.Wait()
}

// ShouldProcess reports whether the message passes the filter
func (f *Filter) ShouldProcess(msg *types.Message) bool {
	return f.Decide(msg) == Accept
}

// Decide runs the filtering policy for one message. Status messages bypass
// age, rate, and duplicate checks entirely.
func (f *Filter) Decide(msg *types.Message) Decision {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.processed++

	if msg == nil {
		f.invalid++
		return RejectInvalid
	}
	if msg.Type != types.MessagePosition {
		f.passed++
		return Accept
	}

	if time.Since(msg.Received) > f.cfg.MaxMessageAge {
		f.tooOld++
		return RejectTooOld
	}

	entry, exists := f.devices[msg.DeviceID]
	if !exists {
		f.devices[msg.DeviceID] = &DeviceEntry{
			DeviceID:        msg.DeviceID,
			LastMessageTime: msg.Received,
			Latitude:        msg.Latitude,
			Longitude:       msg.Longitude,
			Altitude:        msg.Altitude,
			MessageCount:    1,
		}
		f.passed++
		f.enforceSizeCapLocked()
		return Accept
	}

	if msg.Received.Sub(entry.LastMessageTime) >= f.cfg.RateLimit {
		entry.LastMessageTime = msg.Received
		entry.Latitude = msg.Latitude
		entry.Longitude = msg.Longitude
		entry.Altitude = msg.Altitude
		entry.MessageCount++
		f.passed++
		return Accept
	}

	if isDuplicate(msg, entry) {
		f.duplicate++
		return RejectDuplicate
	}
	f.rateLimited++
	return RejectRateLimited
}

// MarkInvalid counts a message that failed parsing or validation upstream
func (f *Filter) MarkInvalid() {
	f.mu.Lock()
	f.processed++
	f.invalid++
	f.mu.Unlock()
}

func isDuplicate(msg *types.Message, entry *DeviceEntry) bool {
	return abs(msg.Latitude-entry.Latitude) < coordTolerance &&
		abs(msg.Longitude-entry.Longitude) < coordTolerance &&
		abs(msg.Altitude-entry.Altitude) < altTolerance
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// enforceSizeCapLocked sweeps eagerly when the cache exceeds its size cap
func (f *Filter) enforceSizeCapLocked() {
	if len(f.devices) > f.cfg.MaxCacheSize {
		f.evictLocked()
	}
}

func (f *Filter) sweepLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			f.Sweep()
		}
	}
}

// Sweep removes cache entries whose last accepted message is older than the
// maximum message age
func (f *Filter) Sweep() {
	f.mu.Lock()
	removed := f.evictLocked()
	size := len(f.devices)
	f.mu.Unlock()

	if removed > 0 {
		f.log.WithFields(logrus.Fields{
			"removed":    removed,
			"cache_size": size,
		}).Debug("evicted stale device cache entries")
	}
}

func (f *Filter) evictLocked() int {
	cutoff := time.Now().Add(-f.cfg.MaxMessageAge)
	removed := 0
	for id, entry := range f.devices {
		if entry.LastMessageTime.Before(cutoff) {
			delete(f.devices, id)
			removed++
		}
	}
	return removed
}

// DeviceInfo returns the cached entry for a device
func (f *Filter) DeviceInfo(deviceID string) (DeviceEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.devices[deviceID]
	if !ok {
		return DeviceEntry{}, false
	}
	return *entry, true
}

// ActiveDevices lists devices seen within the last five minutes, most
// recent first
func (f *Filter) ActiveDevices() []ActiveDevice {
	threshold := time.Now().Add(-activeWindow)

	f.mu.Lock()
	active := make([]ActiveDevice, 0)
	for _, entry := range f.devices {
		if entry.LastMessageTime.After(threshold) {
			active = append(active, ActiveDevice{
				DeviceID:     entry.DeviceID,
				LastSeen:     entry.LastMessageTime,
				MessageCount: entry.MessageCount,
				Latitude:     entry.Latitude,
				Longitude:    entry.Longitude,
				Altitude:     entry.Altitude,
			})
		}
	}
	f.mu.Unlock()

	sort.Slice(active, func(i, j int) bool {
		return active[i].LastSeen.After(active[j].LastSeen)
	})
	return active
}

// Stats returns the cumulative filtering counters
func (f *Filter) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := Stats{
		Processed:   f.processed,
		Passed:      f.passed,
		RateLimited: f.rateLimited,
		Duplicate:   f.duplicate,
		TooOld:      f.tooOld,
		Invalid:     f.invalid,
		CacheSize:   len(f.devices),
		PassRate:    "0%",
	}
	if f.processed > 0 {
		s.PassRate = fmt.Sprintf("%.2f%%", float64(f.passed)/float64(f.processed)*100)
	}
	return s
}

// ResetStats clears the cumulative counters, leaving the cache intact
func (f *Filter) ResetStats() {
	f.mu.Lock()
	f.processed = 0
	f.passed = 0
	f.rateLimited = 0
	f.duplicate = 0
	f.tooOld = 0
	f.invalid = 0
	f.mu.Unlock()
}
