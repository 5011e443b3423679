package fanet

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/ognbridge/ogn2fanet/internal/testutils"
	"github.com/ognbridge/ogn2fanet/internal/types"
)

func readInt24(b []byte) int32 {
	v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	if v&0x800000 != 0 {
		v -= 0x1000000
	}
	return v
}

func TestEncode_FrameLayout(t *testing.T) {
	received := time.Unix(1756550400, 0)
	msg := testutils.MockPositionFix("3F1234", received)

	buf, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(buf) != EnvelopeSize+FrameSize {
		t.Fatalf("Expected %d bytes, got %d", EnvelopeSize+FrameSize, len(buf))
	}

	frame := buf[EnvelopeSize:]

	if frame[0] != 0x01 {
		t.Errorf("Expected tracking header 0x01, got 0x%02X", frame[0])
	}

	// Address 0x3F1234 little-endian
	if frame[1] != 0x34 || frame[2] != 0x12 || frame[3] != 0x3F {
		t.Errorf("Expected address bytes 34 12 3F, got %02X %02X %02X", frame[1], frame[2], frame[3])
	}

	// Coordinates survive a round-trip through the fixed-point encoding
	lat := float64(readInt24(frame[4:7])) / 93206.04
	if math.Abs(lat-msg.Latitude) > 1e-4 {
		t.Errorf("Latitude round-trip drifted: got %f, want %f", lat, msg.Latitude)
	}
	lon := float64(readInt24(frame[7:10])) / 46603.02
	if math.Abs(lon-msg.Longitude) > 1e-4 {
		t.Errorf("Longitude round-trip drifted: got %f, want %f", lon, msg.Longitude)
	}

	// Online bit, paraglider type 1, no altitude scaling, 762 m
	altStatus := binary.LittleEndian.Uint16(frame[10:12])
	if altStatus != 0x8000|uint16(TypeParaglider)<<12|762 {
		t.Errorf("Unexpected altitude/status word 0x%04X", altStatus)
	}

	// 46.3 km/h in half km/h units rounds to 93
	if frame[12] != 93 {
		t.Errorf("Expected speed byte 93, got %d", frame[12])
	}
	// 0.762 m/s in 0.1 m/s units rounds to 8
	if frame[13] != 8 {
		t.Errorf("Expected climb byte 8, got %d", frame[13])
	}
	// 180 degrees maps to 128
	if frame[14] != 128 {
		t.Errorf("Expected heading byte 128, got %d", frame[14])
	}
}

func TestEncode_Envelope(t *testing.T) {
	received := time.Unix(1756550400, 0)
	msg := testutils.MockPositionFix("3F1234", received)

	buf, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if ts := binary.LittleEndian.Uint32(buf[0:4]); ts != 1756550400 {
		t.Errorf("Expected timestamp 1756550400, got %d", ts)
	}
	// The fixture carries a signal strength, so RSSI comes from the fix
	if rssi := int16(binary.LittleEndian.Uint16(buf[4:6])); rssi != 45 {
		t.Errorf("Expected RSSI 45, got %d", rssi)
	}
	if snr := int16(binary.LittleEndian.Uint16(buf[6:8])); snr != 10 {
		t.Errorf("Expected SNR 10, got %d", snr)
	}
}

func TestEncode_DefaultRSSI(t *testing.T) {
	msg := testutils.MockPositionFix("3F1234", time.Now())
	msg.SignalStrength = 0

	buf, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if rssi := int16(binary.LittleEndian.Uint16(buf[4:6])); rssi != -70 {
		t.Errorf("Expected default RSSI -70, got %d", rssi)
	}
}

func TestEncode_CoordinateSigns(t *testing.T) {
	msg := testutils.MockPositionFix("3F1234", time.Now())
	msg.Latitude = 1.0
	msg.Longitude = -1.0

	frame, err := EncodeTracking(msg)
	if err != nil {
		t.Fatalf("EncodeTracking failed: %v", err)
	}
	if got := readInt24(frame[4:7]); got != 93206 {
		t.Errorf("Expected latitude field 93206, got %d", got)
	}
	if got := readInt24(frame[7:10]); got != -46603 {
		t.Errorf("Expected longitude field -46603, got %d", got)
	}
}

func TestEncodeAltitudeStatus(t *testing.T) {
	tests := []struct {
		name     string
		altitude float64
		want     uint16
	}{
		{"sea level", 0, 0x8000 | uint16(TypeParaglider)<<12},
		{"unscaled", 2047, 0x8000 | uint16(TypeParaglider)<<12 | 2047},
		{"scaled by four", 4000, 0x8000 | uint16(TypeParaglider)<<12 | 0x0800 | 1000},
		{"clamped", 50000, 0x8000 | uint16(TypeParaglider)<<12 | 0x0800 | 2047},
		{"below zero clamps up", -100, 0x8000 | uint16(TypeParaglider)<<12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := testutils.MockPositionFix("3F1234", time.Now())
			msg.Altitude = tt.altitude
			if got := encodeAltitudeStatus(msg); got != tt.want {
				t.Errorf("Expected 0x%04X, got 0x%04X", tt.want, got)
			}
		})
	}
}

func TestEncodeSpeed(t *testing.T) {
	tests := []struct {
		name  string
		speed float64
		want  byte
	}{
		{"zero", 0, 0},
		{"walking pace", 5, 10},
		{"typical paraglider", 46.3, 93},
		{"boundary unscaled", 63.5, 127},
		{"scaled", 200, 0x80 | 80},
		{"clamped", 1000, 0x80 | 127},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := encodeSpeed(tt.speed); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestEncodeClimb(t *testing.T) {
	tests := []struct {
		name  string
		climb float64
		want  byte
	}{
		{"zero", 0, 0},
		{"weak lift", 0.762, 8},
		{"one down", -1.0, 118},
		{"strong lift scaled", 10.0, 0x80 | 20},
		{"strong sink scaled", -10.0, 0x80 | 108},
		{"clamped lift", 100.0, 0x80 | 63},
		{"clamped sink", -100.0, 0x80 | 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := encodeClimb(tt.climb); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestEncodeHeading(t *testing.T) {
	tests := []struct {
		name   string
		course float64
		want   byte
	}{
		{"north", 0, 0},
		{"east", 90, 64},
		{"south", 180, 128},
		{"west", 270, 192},
		{"full circle wraps", 360, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := encodeHeading(tt.course); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestConvertible(t *testing.T) {
	valid := testutils.MockPositionFix("3F1234", time.Now())

	status := &types.Message{Type: types.MessageStatus, SourceCall: "Kamnik"}
	noDevice := testutils.MockPositionFix("3F1234", time.Now())
	noDevice.DeviceID = ""
	badDevice := testutils.MockPositionFix("3F1234", time.Now())
	badDevice.DeviceID = "ZZZZZZ"

	tests := []struct {
		name string
		msg  *types.Message
		want bool
	}{
		{"valid fix", valid, true},
		{"status message", status, false},
		{"missing device id", noDevice, false},
		{"non-hex device id", badDevice, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Convertible(tt.msg); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEncode_NotConvertible(t *testing.T) {
	status := &types.Message{Type: types.MessageStatus, SourceCall: "Kamnik"}
	if _, err := Encode(status); err == nil {
		t.Error("Expected an error for a status message")
	}
}

func TestCategoryMapping(t *testing.T) {
	tests := []struct {
		category int
		want     byte
	}{
		{types.CategoryGlider, TypeGlider},
		{types.CategoryHangGlider, TypeHangglider},
		{types.CategoryParaglider, TypeParaglider},
		{types.CategoryJetAircraft, TypeAircraft},
		{types.CategoryHelicopter, TypeHelicopter},
		{types.CategoryBalloon, TypeBalloon},
		{types.CategoryUAV, TypeUAV},
		{types.CategoryUnknown, TypeOther},
	}

	for _, tt := range tests {
		t.Run(types.CategoryNames[tt.category], func(t *testing.T) {
			msg := testutils.MockPositionFix("3F1234", time.Now())
			msg.Category = tt.category

			frame, err := EncodeTracking(msg)
			if err != nil {
				t.Fatalf("EncodeTracking failed: %v", err)
			}
			altStatus := binary.LittleEndian.Uint16(frame[10:12])
			if got := byte(altStatus >> 12 & 0x07); got != tt.want {
				t.Errorf("Expected FANET type %d, got %d", tt.want, got)
			}
		})
	}
}
