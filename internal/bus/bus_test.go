package bus

import (
	"context"
	"testing"
	"time"

	"github.com/saviobatista/telemetry-server/internal/tracker"
	"github.com/saviobatista/telemetry-server/internal/types"
)

func TestNew_InvalidURL(t *testing.T) {
	client, err := New("nats://127.0.0.1:1")
	if err == nil {
		client.Close()
		t.Fatal("New() should fail when no NATS server is reachable")
	}
}

func TestNew_MalformedURL(t *testing.T) {
	client, err := New("not a url")
	if err == nil {
		client.Close()
		t.Fatal("New() should fail with a malformed URL")
	}
}

func TestClient_Close_NilConnection(t *testing.T) {
	client := &Client{}
	client.Close() // must not panic
}

func TestClient_PublishAndSubscribe(t *testing.T) {
	// Requires a NATS server with JetStream on the default port.
	client, err := New("nats://localhost:4222")
	if err != nil {
		t.Skip("NATS not available, skipping test")
	}
	defer client.Close()

	received := make(chan *types.AnnotatedPacket, 1)
	if err := client.SubscribePackets(func(pkt *types.AnnotatedPacket) {
		received <- pkt
	}); err != nil {
		t.Fatalf("SubscribePackets() failed: %v", err)
	}

	sent := &types.AnnotatedPacket{
		TelemetryPacket: types.TelemetryPacket{
			AltitudeBaro:   150.0,
			GroundSpeed:    15.0,
			Timestamp:      42000,
			PacketSequence: 7,
		},
		FlightPhase: "Cruise",
	}
	if err := client.Publish(context.Background(), sent, tracker.Result{}); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}

	select {
	case got := <-received:
		if got.PacketSequence != sent.PacketSequence {
			t.Errorf("PacketSequence = %d, want %d", got.PacketSequence, sent.PacketSequence)
		}
		if got.FlightPhase != "Cruise" {
			t.Errorf("FlightPhase = %q, want Cruise", got.FlightPhase)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for mirrored packet")
	}
}
