package aprs

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ognbridge/ogn2fanet/internal/config"
)

// State is the session state of the transport client
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateLoggingIn
	StateActive
	StateReconnectWait
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLoggingIn:
		return "logging-in"
	case StateActive:
		return "active"
	case StateReconnectWait:
		return "reconnect-wait"
	case StateExhausted:
		return "exhausted"
	default:
		return "disconnected"
	}
}

// Session staleness and backoff limits
const (
	staleAfter      = 90 * time.Second
	maxBackoffDelay = 5 * time.Minute
	lineBufferSize  = 1000
)

// Line is one raw APRS traffic line received over the session
type Line struct {
	Text     string
	Received time.Time
}

// Status is a point-in-time snapshot of the session
type Status struct {
	SessionID            string        `json:"session_id"`
	State                string        `json:"state"`
	Connected            bool          `json:"connected"`
	Verified             bool          `json:"verified"`
	MessageCount         uint64        `json:"message_count"`
	ReconnectAttempts    int           `json:"reconnect_attempts"`
	LastMessageTime      time.Time     `json:"last_message_time"`
	TimeSinceLastMessage time.Duration `json:"time_since_last_message"`
}

// Client maintains a single authenticated APRS-IS session to an OGN server.
// Raw traffic lines are surfaced in arrival order on Lines(); exhausting the
// reconnect budget is reported once on Fatal().
type Client struct {
	cfg config.OGNConfig
	log *logrus.Logger

	lines chan Line
	fatal chan error

	mu             sync.Mutex
	conn           net.Conn
	state          State
	sessionID      string
	verified       bool
	lastMessage    time.Time
	messageCount   uint64
	attempts       int
	reconnectTimer *time.Timer
	stopped        bool

	done chan struct{}
	wg   sync.WaitGroup

	keepAliveOnce sync.Once
}

// NewClient creates a transport client; Connect starts the session
func NewClient(cfg config.OGNConfig, log *logrus.Logger) *Client {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = 30 * time.Second
	}
	if cfg.KeepAliveInterval == 0 {
		cfg.KeepAliveInterval = 5 * time.Minute
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = 10
	}
	return &Client{
		cfg:   cfg,
		log:   log,
		lines: make(chan Line, lineBufferSize),
		fatal: make(chan error, 1),
		done:  make(chan struct{}),
	}
}

// Lines returns the channel of raw traffic lines
func (c *Client) Lines() <-chan Line {
	return c.lines
}

// Fatal reports session exhaustion (reconnect ceiling reached)
func (c *Client) Fatal() <-chan error {
	return c.fatal
}

// Connect opens the TCP session and sends the login line. It returns once the
// connection is established; login acknowledgment arrives asynchronously via
// the server's logresp comment line.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return fmt.Errorf("client is stopped")
	}
	c.state = StateConnecting
	attempt := c.attempts + 1
	c.mu.Unlock()

	addr := net.JoinHostPort(c.cfg.Server, fmt.Sprintf("%d", c.cfg.Port))
	c.log.WithFields(logrus.Fields{
		"server":  addr,
		"attempt": attempt,
	}).Info("connecting to OGN APRS server")

	conn, err := net.DialTimeout("tcp", addr, c.cfg.ConnectTimeout)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	login := fmt.Sprintf("user %s pass %s vers %s %s filter %s\r\n",
		c.cfg.Callsign, c.cfg.Passcode, c.cfg.AppName, c.cfg.AppVersion, c.cfg.Filter)
	if _, err := conn.Write([]byte(login)); err != nil {
		conn.Close()
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("failed to send login: %w", err)
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("client is stopped")
	}
	c.conn = conn
	c.state = StateLoggingIn
	c.sessionID = uuid.New().String()
	c.verified = false
	c.attempts = 0
	c.lastMessage = time.Now()
	sessionID := c.sessionID
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"callsign":   c.cfg.Callsign,
		"filter":     c.cfg.Filter,
	}).Info("TCP session established, login sent")

	c.wg.Add(1)
	go c.readerLoop(conn)

	c.keepAliveOnce.Do(func() {
		c.wg.Add(1)
		go c.keepAliveLoop()
	})

	return nil
}

// readerLoop splits the incoming byte stream into lines and routes them
func (c *Client) readerLoop(conn net.Conn) {
	defer c.wg.Done()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), 64*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		received := time.Now()
		c.mu.Lock()
		c.lastMessage = received
		c.messageCount++
		c.mu.Unlock()

		if line[0] == '#' {
			c.handleSystemMessage(line)
			continue
		}

		select {
		case c.lines <- Line{Text: line, Received: received}:
		case <-c.done:
			return
		}
	}

	c.handleDisconnect(scanner.Err())
}

// handleSystemMessage processes server comment lines, including the login ack
func (c *Client) handleSystemMessage(line string) {
	c.log.WithField("line", line).Debug("system message")

	if !strings.Contains(line, "logresp") {
		return
	}

	c.mu.Lock()
	c.state = StateActive
	if strings.Contains(line, "unverified") {
		c.verified = false
	} else if strings.Contains(line, "verified") {
		c.verified = true
	}
	verified := c.verified
	c.mu.Unlock()

	if verified {
		c.log.Info("OGN login verified")
	} else {
		c.log.Warn("OGN login unverified, passcode not accepted; feed remains read-only")
	}
}

// keepAliveLoop periodically checks session staleness and writes a heartbeat
// comment. A session with no traffic for staleAfter is torn down so the
// reconnect path replaces a silently-dead socket.
func (c *Client) keepAliveLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			idle := time.Since(c.lastMessage)
			c.mu.Unlock()

			if conn == nil {
				continue
			}
			if idle > staleAfter {
				c.log.WithField("idle", idle.String()).Warn("no traffic from OGN server, forcing reconnect")
				conn.Close() // reader loop will schedule the reconnect
				continue
			}

			heartbeat := fmt.Sprintf("# %s keep-alive %s\r\n", c.cfg.AppName, time.Now().UTC().Format(time.RFC3339))
			if _, err := conn.Write([]byte(heartbeat)); err != nil {
				c.log.WithError(err).Warn("keep-alive write failed")
			} else {
				c.log.Debug("keep-alive sent")
			}
		}
	}
}

// handleDisconnect tears down the current connection and schedules a reconnect
func (c *Client) handleDisconnect(err error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateReconnectWait
	c.mu.Unlock()

	if err != nil {
		c.log.WithError(err).Warn("OGN session closed")
	} else {
		c.log.Warn("OGN session closed by server")
	}

	c.scheduleReconnect()
}

// scheduleReconnect arms the backoff timer or gives up after the attempt ceiling
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.state = StateExhausted
		c.mu.Unlock()
		c.log.Error("maximum reconnect attempts exceeded")
		select {
		case c.fatal <- fmt.Errorf("reconnect attempts exhausted after %d tries", c.cfg.MaxReconnectAttempts):
		default:
		}
		return
	}

	delay := c.cfg.ReconnectInterval << uint(c.attempts)
	if delay > maxBackoffDelay || delay <= 0 {
		delay = maxBackoffDelay
	}
	attempt := c.attempts + 1
	c.reconnectTimer = time.AfterFunc(delay, c.retryConnect)
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"delay":   delay.String(),
		"attempt": attempt,
		"max":     c.cfg.MaxReconnectAttempts,
	}).Info("reconnect scheduled")
}

func (c *Client) retryConnect() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.attempts++
	c.mu.Unlock()

	if err := c.Connect(); err != nil {
		c.log.WithError(err).Warn("reconnect attempt failed")
		c.scheduleReconnect()
	}
}

// Disconnect closes the session, cancels the keep-alive and any pending
// reconnect, and stops all background activity. It is safe to call more than
// once and at any time, including mid-backoff.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	c.mu.Unlock()

	close(c.done)
	c.wg.Wait()
	close(c.lines)

	c.log.Info("disconnected from OGN server")
}

// Status returns a snapshot of the session state
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	var since time.Duration
	if !c.lastMessage.IsZero() {
		since = time.Since(c.lastMessage)
	}
	return Status{
		SessionID:            c.sessionID,
		State:                c.state.String(),
		Connected:            c.conn != nil,
		Verified:             c.verified,
		MessageCount:         c.messageCount,
		ReconnectAttempts:    c.attempts,
		LastMessageTime:      c.lastMessage,
		TimeSinceLastMessage: since,
	}
}
