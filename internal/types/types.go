package types

import (
	"time"
)

// Message types
const (
	MessagePosition = "position"
	MessageStatus   = "status"
)

// OGN aircraft categories (bits 5-2 of the id byte)
const (
	CategoryUnknown        = 0
	CategoryGlider         = 1
	CategoryTowPlane       = 2
	CategoryHelicopter     = 3
	CategoryParachute      = 4
	CategoryDropPlane      = 5
	CategoryHangGlider     = 6
	CategoryParaglider     = 7
	CategoryPistonAircraft = 8
	CategoryJetAircraft    = 9
	CategoryBalloon        = 10
	CategoryAirship        = 11
	CategoryUAV            = 12
	CategoryStaticObstacle = 13
)

// CategoryNames maps OGN aircraft categories to readable names
var CategoryNames = map[int]string{
	CategoryUnknown:        "unknown",
	CategoryGlider:         "glider",
	CategoryTowPlane:       "tow_plane",
	CategoryHelicopter:     "helicopter",
	CategoryParachute:      "parachute",
	CategoryDropPlane:      "drop_plane",
	CategoryHangGlider:     "hang_glider",
	CategoryParaglider:     "paraglider",
	CategoryPistonAircraft: "aircraft_reciprocating",
	CategoryJetAircraft:    "aircraft_jet",
	CategoryBalloon:        "balloon",
	CategoryAirship:        "airship",
	CategoryUAV:            "uav",
	CategoryStaticObstacle: "static_obstacle",
}

// GPSAccuracy holds the horizontal/vertical accuracy pair from the gps token
type GPSAccuracy struct {
	Horizontal int `json:"horizontal"`
	Vertical   int `json:"vertical"`
}

// Message represents one parsed APRS message, either a position fix or a
// status beacon. Position-only fields are zero for status messages.
type Message struct {
	Type       string `json:"type"`
	SourceCall string `json:"source_call"`

	// Position fix fields. Timestamp is the raw 6-character time token from
	// the body, when present. Speed is km/h, Altitude meters.
	Timestamp string  `json:"timestamp,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Altitude  float64 `json:"altitude,omitempty"`
	Course    float64 `json:"course,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	Symbol    string  `json:"symbol,omitempty"`
	Comment   string  `json:"comment,omitempty"`

	// OGN telemetry block decoded from the comment
	DeviceID        string       `json:"device_id,omitempty"`
	AddressType     int          `json:"address_type,omitempty"`
	Stealth         bool         `json:"stealth,omitempty"`
	NoTracking      bool         `json:"no_tracking,omitempty"`
	Category        int          `json:"category,omitempty"`
	CategoryName    string       `json:"category_name,omitempty"`
	ClimbRate       float64      `json:"climb_rate,omitempty"`
	TurnRate        float64      `json:"turn_rate,omitempty"`
	SignalStrength  float64      `json:"signal_strength,omitempty"`
	FrequencyOffset float64      `json:"frequency_offset,omitempty"`
	GPSAccuracy     *GPSAccuracy `json:"gps_accuracy,omitempty"`

	// Status message payload
	Text string `json:"text,omitempty"`

	Received time.Time `json:"received"`
}

// IsPosition reports whether the message is a position fix
func (m *Message) IsPosition() bool {
	return m != nil && m.Type == MessagePosition
}

// DeviceState is the latest accepted fix for a device, mirrored into Redis
type DeviceState struct {
	DeviceID     string    `json:"device_id"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Altitude     float64   `json:"altitude"`
	Category     int       `json:"category"`
	CategoryName string    `json:"category_name"`
	ClimbRate    float64   `json:"climb_rate"`
	LastSeen     time.Time `json:"last_seen"`
}

// StatsSnapshot is one point-in-time view of bridge counters, persisted
// periodically when a database is configured
type StatsSnapshot struct {
	Time              time.Time `json:"time"`
	SessionID         string    `json:"session_id"`
	Received          uint64    `json:"received"`
	Parsed            uint64    `json:"parsed"`
	Converted         uint64    `json:"converted"`
	Published         uint64    `json:"published"`
	Errors            uint64    `json:"errors"`
	RateLimited       uint64    `json:"rate_limited"`
	Duplicate         uint64    `json:"duplicate"`
	TooOld            uint64    `json:"too_old"`
	Invalid           uint64    `json:"invalid"`
	ActiveDevices     int       `json:"active_devices"`
	CacheSize         int       `json:"cache_size"`
	Connected         bool      `json:"connected"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	UptimeSeconds     float64   `json:"uptime_seconds"`
}
