package nats

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	natscontainer "github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ognbridge/ogn2fanet/internal/fanet"
	"github.com/ognbridge/ogn2fanet/internal/testutils"
)

func startNATS(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := natscontainer.Run(ctx, "nats:2.9-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server is ready"),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start NATS container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate NATS container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get NATS connection string: %v", err)
	}
	return url
}

func TestIntegration_Connection(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client, err := New(startNATS(t), "")
	if err != nil {
		t.Fatalf("Failed to create NATS client: %v", err)
	}
	defer client.Close()

	if client.conn == nil {
		t.Error("Expected connection to be initialized")
	}
	if client.js == nil {
		t.Error("Expected JetStream context to be initialized")
	}
	if client.Subject() != DefaultSubject {
		t.Errorf("Expected default subject %s, got %s", DefaultSubject, client.Subject())
	}
}

func TestIntegration_PublishAndSubscribe(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client, err := New(startNATS(t), "fanet.test")
	if err != nil {
		t.Fatalf("Failed to create NATS client: %v", err)
	}
	defer client.Close()

	fix := testutils.MockPositionFix("3F1234", time.Now())
	buf, err := fanet.Encode(fix)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	received := make(chan []byte, 1)
	if err := client.SubscribeFrames(func(data []byte) {
		received <- data
	}); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	// Give the subscription time to establish
	time.Sleep(100 * time.Millisecond)

	if err := client.PublishFrame(buf); err != nil {
		t.Fatalf("Failed to publish frame: %v", err)
	}

	select {
	case got := <-received:
		if !bytes.Equal(got, buf) {
			t.Errorf("Frame altered in transit: got %x, want %x", got, buf)
		}
		if len(got) != fanet.EnvelopeSize+fanet.FrameSize {
			t.Errorf("Expected %d bytes, got %d", fanet.EnvelopeSize+fanet.FrameSize, len(got))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the frame")
	}
}

func TestIntegration_MultipleFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client, err := New(startNATS(t), "fanet.test")
	if err != nil {
		t.Fatalf("Failed to create NATS client: %v", err)
	}
	defer client.Close()

	received := make(chan []byte, 10)
	if err := client.SubscribeFrames(func(data []byte) {
		received <- data
	}); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	deviceIDs := []string{"3F1234", "DD5678", "AB0001"}
	for _, id := range deviceIDs {
		fix := testutils.MockPositionFix(id, time.Now())
		buf, err := fanet.Encode(fix)
		if err != nil {
			t.Fatalf("Encode failed for %s: %v", id, err)
		}
		if err := client.PublishFrame(buf); err != nil {
			t.Fatalf("Failed to publish frame for %s: %v", id, err)
		}
	}

	got := 0
	deadline := time.After(5 * time.Second)
	for got < len(deviceIDs) {
		select {
		case <-received:
			got++
		case <-deadline:
			t.Fatalf("Timed out, received %d of %d frames", got, len(deviceIDs))
		}
	}
}

func TestIntegration_PublishAfterClose(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client, err := New(startNATS(t), "fanet.test")
	if err != nil {
		t.Fatalf("Failed to create NATS client: %v", err)
	}

	fix := testutils.MockPositionFix("3F1234", time.Now())
	buf, err := fanet.Encode(fix)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	client.Close()

	if err := client.PublishFrame(buf); err == nil {
		t.Error("Expected an error publishing on a closed connection")
	}
}
