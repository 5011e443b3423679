package aprs

import (
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ognbridge/ogn2fanet/internal/config"
	"github.com/ognbridge/ogn2fanet/internal/types"
)

// Unit conversions used while parsing
const (
	knotsToKmh   = 1.852
	feetToMeters = 0.3048
	fpmToMs      = 0.00508
)

// Parser turns raw APRS traffic lines into structured messages, applying
// region and aircraft-category policy inline. A line that fails the grammar
// or the policy yields nil, never an error.
type Parser struct {
	allowed map[int]bool
	region  config.RegionBounds
	log     *logrus.Logger
}

// NewParser creates a parser with the given category allow-list and region
func NewParser(aircraftTypes []int, region config.RegionBounds, log *logrus.Logger) *Parser {
	allowed := make(map[int]bool, len(aircraftTypes))
	for _, t := range aircraftTypes {
		allowed[t] = true
	}
	return &Parser{allowed: allowed, region: region, log: log}
}

// Parse parses one raw APRS line. It returns nil for anything that is not a
// well-formed position or status message from an allowed device inside the
// configured region.
func (p *Parser) Parse(line string, received time.Time) (msg *types.Message) {
	// A malformed line must never take down the session loop
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("line", line).Debugf("parser panic recovered: %v", r)
			msg = nil
		}
	}()

	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return nil
	}
	header := line[:colon]
	body := line[colon+1:]

	sourceCall, ok := parseHeader(header)
	if !ok || body == "" {
		return nil
	}

	switch body[0] {
	case '/', '!', '=':
		return p.parsePosition(sourceCall, body, received)
	case '>':
		return &types.Message{
			Type:       types.MessageStatus,
			SourceCall: sourceCall,
			Text:       body[1:],
			Received:   received,
		}
	}
	return nil
}

// parseHeader extracts the source call-sign from SOURCE>DEST,VIA1,VIA2,...
func parseHeader(header string) (string, bool) {
	parts := strings.Split(header, ">")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	return parts[0], true
}

func (p *Parser) parsePosition(sourceCall, body string, received time.Time) *types.Message {
	data := body[1:]

	// A leading / carries a 6-character time token terminated by 'h'
	var timestamp string
	if body[0] == '/' && len(data) >= 7 && data[6] == 'h' {
		timestamp = data[:6]
		data = data[7:]
	}

	pos, ok := parseCoordinates(data)
	if !ok {
		return nil
	}

	if !p.inRegion(pos.latitude, pos.longitude) {
		return nil
	}

	tel, ok := parseTelemetry(pos.comment)
	if !ok {
		p.log.WithFields(logrus.Fields{
			"source_call": sourceCall,
			"comment":     pos.comment,
		}).Debug("no OGN telemetry block in comment")
		return nil
	}

	if !p.allowed[tel.category] {
		p.log.WithFields(logrus.Fields{
			"device_id": tel.deviceID,
			"category":  tel.category,
		}).Debug("aircraft category not allowed")
		return nil
	}

	return &types.Message{
		Type:            types.MessagePosition,
		SourceCall:      sourceCall,
		Timestamp:       timestamp,
		Latitude:        pos.latitude,
		Longitude:       pos.longitude,
		Altitude:        pos.altitude,
		Course:          pos.course,
		Speed:           pos.speed,
		Symbol:          pos.symbol,
		Comment:         pos.comment,
		DeviceID:        tel.deviceID,
		AddressType:     tel.addressType,
		Stealth:         tel.stealth,
		NoTracking:      tel.noTracking,
		Category:        tel.category,
		CategoryName:    types.CategoryNames[tel.category],
		ClimbRate:       tel.climbRate,
		TurnRate:        tel.turnRate,
		SignalStrength:  tel.signalStrength,
		FrequencyOffset: tel.frequencyOffset,
		GPSAccuracy:     tel.gpsAccuracy,
		Received:        received,
	}
}

func (p *Parser) inRegion(lat, lon float64) bool {
	return lat >= p.region.LatMin && lat <= p.region.LatMax &&
		lon >= p.region.LonMin && lon <= p.region.LonMax
}

// Validate applies the range checks that run after parsing. Status messages
// always validate.
func (p *Parser) Validate(msg *types.Message) bool {
	if msg == nil {
		return false
	}
	if msg.Type != types.MessagePosition {
		return true
	}
	if msg.Latitude < -90 || msg.Latitude > 90 || msg.Longitude < -180 || msg.Longitude > 180 {
		return false
	}
	if msg.Altitude < -500 || msg.Altitude > 15000 {
		return false
	}
	maxSpeed := 1000.0
	if msg.Category == types.CategoryPistonAircraft || msg.Category == types.CategoryJetAircraft {
		maxSpeed = 2000.0
	}
	return msg.Speed <= maxSpeed
}

// position holds the intermediate result of the coordinate scan
type position struct {
	latitude  float64
	longitude float64
	altitude  float64
	course    float64
	speed     float64
	symbol    string
	comment   string
}

// parseCoordinates locates and decodes the fixed-grammar coordinate token
// DDMM.mmm[N|S]/DDDMM.mmm[E|W]<symbol> and the course/speed and altitude
// tokens following it. Everything after the first whitespace is the comment.
func parseCoordinates(s string) (position, bool) {
	var pos position
	for i := 0; i+19 <= len(s); i++ {
		lat, lon, symbol, n, ok := matchCoordToken(s[i:])
		if !ok {
			continue
		}
		pos.latitude = lat
		pos.longitude = lon
		pos.symbol = symbol
		rest := s[i+n:]

		if course, speed, ok := findCourseSpeed(rest); ok {
			pos.course = course
			pos.speed = speed * knotsToKmh
		}
		if alt, ok := findAltitude(rest); ok {
			pos.altitude = alt * feetToMeters
		}
		if ws := strings.IndexAny(rest, " \t"); ws >= 0 {
			pos.comment = rest[ws+1:]
		}
		return pos, true
	}
	return pos, false
}

// matchCoordToken attempts to decode a coordinate token at the start of s,
// returning decimal degrees and the number of bytes consumed
func matchCoordToken(s string) (lat, lon float64, symbol string, n int, ok bool) {
	latStr, latN := scanDegMin(s, 4)
	if latN == 0 {
		return
	}
	i := latN
	if i >= len(s) || (s[i] != 'N' && s[i] != 'S') {
		return
	}
	latDir := s[i]
	i++
	if i >= len(s) || s[i] != '/' {
		return
	}
	i++
	lonStr, lonN := scanDegMin(s[i:], 5)
	if lonN == 0 {
		return
	}
	i += lonN
	if i >= len(s) || (s[i] != 'E' && s[i] != 'W') {
		return
	}
	lonDir := s[i]
	i++
	if i >= len(s) || !isSymbolChar(s[i]) {
		return
	}
	symbol = string(s[i])
	i++

	lat = degMinToDecimal(latStr, 2)
	if latDir == 'S' {
		lat = -lat
	}
	lon = degMinToDecimal(lonStr, 3)
	if lonDir == 'W' {
		lon = -lon
	}
	return lat, lon, symbol, i, true
}

// scanDegMin matches <intDigits digits>.<2-3 digits> at the start of s and
// returns the matched string and its length, or 0 when there is no match
func scanDegMin(s string, intDigits int) (string, int) {
	if len(s) < intDigits+3 {
		return "", 0
	}
	for k := 0; k < intDigits; k++ {
		if !isDigit(s[k]) {
			return "", 0
		}
	}
	if s[intDigits] != '.' {
		return "", 0
	}
	n := intDigits + 1
	frac := 0
	for n < len(s) && frac < 3 && isDigit(s[n]) {
		n++
		frac++
	}
	if frac < 2 {
		return "", 0
	}
	// The fraction must end before the hemisphere letter
	if n < len(s) && isDigit(s[n]) {
		return "", 0
	}
	return s[:n], n
}

// degMinToDecimal converts DDMM.mmm (degDigits degree digits) to decimal degrees
func degMinToDecimal(s string, degDigits int) float64 {
	deg, _ := strconv.ParseFloat(s[:degDigits], 64)
	min, _ := strconv.ParseFloat(s[degDigits:], 64)
	return deg + min/60.0
}

// findCourseSpeed locates the first CCC/SSS token (course degrees, speed knots)
func findCourseSpeed(s string) (course, speed float64, ok bool) {
	for i := 0; i+7 <= len(s); i++ {
		if s[i+3] != '/' {
			continue
		}
		if !allDigits(s[i:i+3]) || !allDigits(s[i+4:i+7]) {
			continue
		}
		c, _ := strconv.Atoi(s[i : i+3])
		v, _ := strconv.Atoi(s[i+4 : i+7])
		return float64(c), float64(v), true
	}
	return 0, 0, false
}

// findAltitude locates the first A=FFFFFF token (altitude in feet)
func findAltitude(s string) (float64, bool) {
	for i := 0; i+8 <= len(s); i++ {
		if s[i] != 'A' || s[i+1] != '=' {
			continue
		}
		if !allDigits(s[i+2 : i+8]) {
			continue
		}
		ft, _ := strconv.Atoi(s[i+2 : i+8])
		return float64(ft), true
	}
	return 0, false
}

// telemetry is the decoded OGN extension block
type telemetry struct {
	deviceID        string
	addressType     int
	stealth         bool
	noTracking      bool
	category        int
	climbRate       float64
	turnRate        float64
	signalStrength  float64
	frequencyOffset float64
	gpsAccuracy     *types.GPSAccuracy
}

// parseTelemetry extracts the OGN extension from the comment. The id token is
// mandatory; every other token is optional and independent.
func parseTelemetry(comment string) (telemetry, bool) {
	var tel telemetry
	if comment == "" {
		return tel, false
	}

	fields := strings.Fields(comment)
	found := false
	for _, f := range fields {
		if !found && len(f) >= 10 && strings.HasPrefix(f, "id") && isHex(f[2:10]) {
			idByte, err := strconv.ParseUint(f[2:4], 16, 8)
			if err != nil {
				continue
			}
			// STttttaa: stealth, no-tracking, 4-bit category, 2-bit address type
			tel.stealth = idByte&0x80 != 0
			tel.noTracking = idByte&0x40 != 0
			tel.category = int(idByte&0x3C) >> 2
			tel.addressType = int(idByte & 0x03)
			tel.deviceID = f[4:10]
			found = true
			continue
		}

		switch {
		case strings.HasSuffix(f, "fpm"):
			v := strings.TrimSuffix(f, "fpm")
			if len(v) > 1 && (v[0] == '+' || v[0] == '-') {
				if fpm, err := strconv.Atoi(v); err == nil {
					tel.climbRate = float64(fpm) * fpmToMs
				}
			}
		case strings.HasSuffix(f, "rot"):
			v := strings.TrimSuffix(f, "rot")
			if strings.Contains(v, ".") {
				if rot, err := strconv.ParseFloat(v, 64); err == nil {
					tel.turnRate = rot
				}
			}
		case strings.HasSuffix(f, "dB"):
			v := strings.TrimSuffix(f, "dB")
			if len(v) > 0 && isDigit(v[0]) && strings.Contains(v, ".") {
				if db, err := strconv.ParseFloat(v, 64); err == nil {
					tel.signalStrength = db
				}
			}
		case strings.HasSuffix(f, "kHz"):
			v := strings.TrimSuffix(f, "kHz")
			if len(v) > 1 && (v[0] == '+' || v[0] == '-') && strings.Contains(v, ".") {
				if khz, err := strconv.ParseFloat(v, 64); err == nil {
					tel.frequencyOffset = khz
				}
			}
		case strings.HasPrefix(f, "gps"):
			if acc := parseGPSAccuracy(f[3:]); acc != nil {
				tel.gpsAccuracy = acc
			}
		}
	}
	return tel, found
}

// parseGPSAccuracy decodes the <H>x<V> pair following the gps prefix
func parseGPSAccuracy(s string) *types.GPSAccuracy {
	x := strings.IndexByte(s, 'x')
	if x <= 0 || x == len(s)-1 {
		return nil
	}
	h, err := strconv.Atoi(s[:x])
	if err != nil {
		return nil
	}
	v, err := strconv.Atoi(s[x+1:])
	if err != nil {
		return nil
	}
	return &types.GPSAccuracy{Horizontal: h, Vertical: v}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return len(s) > 0
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if !isDigit(b) && (b < 'A' || b > 'F') && (b < 'a' || b > 'f') {
			return false
		}
	}
	return len(s) > 0
}

func isSymbolChar(b byte) bool {
	return b == '\'' || b == '^' || b == '\\' || b == '/'
}
