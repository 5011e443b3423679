package nats

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// DefaultSubject is where encoded tracking buffers are published
	DefaultSubject = "fanet.tracking"

	streamName = "FANET"
)

// Client publishes encoded FANET buffers to a JetStream subject
type Client struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	subject string
}

// New connects to NATS and ensures the FANET stream exists
func New(url, subject string) (*Client, error) {
	if subject == "" {
		subject = DefaultSubject
	}

	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{subject},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn:    nc,
		js:      js,
		subject: subject,
	}, nil
}

// Subject returns the publish subject
func (c *Client) Subject() string {
	return c.subject
}

// PublishFrame publishes one encoded buffer (envelope plus tracking frame)
func (c *Client) PublishFrame(data []byte) error {
	if _, err := c.js.Publish(c.subject, data); err != nil {
		return fmt.Errorf("failed to publish frame: %w", err)
	}
	return nil
}

// SubscribeFrames subscribes to published buffers; used by downstream
// consumers and the integration tests
func (c *Client) SubscribeFrames(handler func([]byte)) error {
	_, err := c.js.Subscribe(c.subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	return nil
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
