package fanet

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/ognbridge/ogn2fanet/internal/types"
)

// FANET aircraft types (3-bit field in the altitude/status word)
const (
	TypeOther      = 0
	TypeParaglider = 1
	TypeHangglider = 2
	TypeBalloon    = 3
	TypeGlider     = 4
	TypeAircraft   = 5
	TypeHelicopter = 6
	TypeUAV        = 7
)

// Wire format constants. The coordinate scales are part of the FANET
// contract: degrees are fixed-point with these multipliers in a 24-bit
// two's-complement field.
const (
	packetTypeTracking = 1
	latScale           = 93206.04
	lonScale           = 46603.02

	FrameSize    = 15
	EnvelopeSize = 8

	defaultRSSI    = -70
	placeholderSNR = 10
)

// categoryMap maps OGN aircraft categories onto FANET's 8-value space
var categoryMap = map[int]byte{
	types.CategoryUnknown:        TypeOther,
	types.CategoryGlider:         TypeGlider,
	types.CategoryTowPlane:       TypeAircraft,
	types.CategoryHelicopter:     TypeHelicopter,
	types.CategoryParachute:      TypeOther,
	types.CategoryDropPlane:      TypeAircraft,
	types.CategoryHangGlider:     TypeHangglider,
	types.CategoryParaglider:     TypeParaglider,
	types.CategoryPistonAircraft: TypeAircraft,
	types.CategoryJetAircraft:    TypeAircraft,
	types.CategoryBalloon:        TypeBalloon,
	types.CategoryAirship:        TypeAircraft,
	types.CategoryUAV:            TypeUAV,
	types.CategoryStaticObstacle: TypeOther,
}

// Convertible reports whether a message carries everything a tracking frame
// needs: a position, a hex device id, and a mapped aircraft category.
func Convertible(msg *types.Message) bool {
	if !msg.IsPosition() {
		return false
	}
	if msg.DeviceID == "" {
		return false
	}
	if _, err := strconv.ParseUint(msg.DeviceID, 16, 32); err != nil {
		return false
	}
	_, ok := categoryMap[msg.Category]
	return ok
}

// Encode produces the published byte sequence: the 8-byte envelope followed
// by the FANET Type-1 tracking frame. It never panics; a message
// that cannot be encoded yields an error and no frame.
func Encode(msg *types.Message) ([]byte, error) {
	frame, err := EncodeTracking(msg)
	if err != nil {
		return nil, err
	}
	return wrapEnvelope(frame, msg), nil
}

// EncodeTracking packs a position fix into a FANET Type-1 frame:
// [header:1][addr:3][lat:3][lon:3][alt+status:2][speed:1][climb:1][heading:1]
// all little-endian.
func EncodeTracking(msg *types.Message) ([]byte, error) {
	if !Convertible(msg) {
		return nil, fmt.Errorf("message is not convertible to a tracking frame")
	}

	frame := make([]byte, FrameSize)

	// Header: low 6 bits packet type, forward/extended flags cleared
	frame[0] = packetTypeTracking & 0x3F

	addr, _ := strconv.ParseUint(msg.DeviceID, 16, 32)
	putUint24(frame[1:4], uint32(addr)&0xFFFFFF)

	putInt24(frame[4:7], int32(math.Round(msg.Latitude*latScale)))
	putInt24(frame[7:10], int32(math.Round(msg.Longitude*lonScale)))

	binary.LittleEndian.PutUint16(frame[10:12], encodeAltitudeStatus(msg))
	frame[12] = encodeSpeed(msg.Speed)
	frame[13] = encodeClimb(msg.ClimbRate)
	frame[14] = encodeHeading(msg.Course)

	return frame, nil
}

// encodeAltitudeStatus builds the 16-bit word: bit 15 online, bits 14-12
// FANET category, bit 11 altitude scale (4x), bits 10-0 magnitude
func encodeAltitudeStatus(msg *types.Message) uint16 {
	altStatus := uint16(0x8000)
	altStatus |= uint16(categoryMap[msg.Category]&0x07) << 12

	alt := int(math.Round(msg.Altitude))
	scale := uint16(0)
	if alt > 2047 {
		alt = int(math.Round(float64(alt) / 4))
		scale = 1
		if alt > 2047 {
			alt = 2047
		}
	}
	if alt < 0 {
		alt = 0
	}
	altStatus |= scale << 11
	altStatus |= uint16(alt) & 0x07FF
	return altStatus
}

// encodeSpeed converts km/h to 0.5 km/h units with a 5x scale flag in bit 7
func encodeSpeed(speedKmh float64) byte {
	if speedKmh == 0 {
		return 0
	}
	speed := int(math.Round(speedKmh / 0.5))
	scale := byte(0)
	if speed > 127 {
		speed = int(math.Round(float64(speed) / 5))
		scale = 1
		if speed > 127 {
			speed = 127
		}
	}
	return scale<<7 | byte(speed)&0x7F
}

// encodeClimb converts m/s to 0.1 m/s units, 7-bit two's complement, with a
// 5x scale flag in bit 7
func encodeClimb(climbMs float64) byte {
	if climbMs == 0 {
		return 0
	}
	climb := int(math.Round(climbMs / 0.1))
	scale := byte(0)
	if climb > 63 || climb < -63 {
		climb = int(math.Round(float64(climb) / 5))
		scale = 1
		if climb > 63 {
			climb = 63
		}
		if climb < -64 {
			climb = -64
		}
	}
	if climb < 0 {
		climb = 128 + climb
	}
	return scale<<7 | byte(climb)&0x7F
}

// encodeHeading maps 0-360 degrees linearly onto 0-255
func encodeHeading(course float64) byte {
	if course == 0 {
		return 0
	}
	return byte(int(math.Round(course*256/360)) & 0xFF)
}

// wrapEnvelope prefixes the frame with [unix-timestamp:4][rssi:2][snr:2],
// little-endian. RSSI falls back to a default when the fix carries no signal
// strength; SNR is a fixed placeholder.
func wrapEnvelope(frame []byte, msg *types.Message) []byte {
	buf := make([]byte, EnvelopeSize+len(frame))

	binary.LittleEndian.PutUint32(buf[0:4], uint32(msg.Received.Unix()))

	rssi := int16(defaultRSSI)
	if msg.SignalStrength != 0 {
		rssi = int16(math.Round(msg.SignalStrength))
	}
	binary.LittleEndian.PutUint16(buf[4:6], uint16(rssi))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(int16(placeholderSNR)))

	copy(buf[EnvelopeSize:], frame)
	return buf
}

// putUint24 writes a 24-bit unsigned little-endian value
func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

// putInt24 writes a 24-bit two's-complement little-endian value
func putInt24(b []byte, v int32) {
	putUint24(b, uint32(v)&0xFFFFFF)
}
