package natsbus

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"licenselink/internal/bootstrap/logging"
)

func TestEncodeDecode(t *testing.T) {
	data, err := Encode(RecordInserted{RecordID: 42, PublishedAt: "2025-06-01T00:00:00Z"})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.RecordID != 42 {
		t.Fatalf("Decode() record_id = %d", got.RecordID)
	}

	if _, err := Encode(RecordInserted{}); err == nil {
		t.Fatalf("Encode() without record id error = nil")
	}
	if _, err := Decode([]byte(`{"published_at":"x"}`)); err == nil {
		t.Fatalf("Decode() without record id error = nil")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("Decode() of garbage error = nil")
	}
}

func TestSubscriberHandleMessage(t *testing.T) {
	var handled []uint64
	events := 0
	sub := NewSubscriber(nil, "licensing.records.inserted", "linker", func(_ context.Context, id uint64) error {
		handled = append(handled, id)
		if id == 2 {
			return errors.New("database is locked")
		}
		return nil
	})
	sub.OnEvent(func() { events++ })

	ctx := context.Background()
	sub.HandleMessage(ctx, &nats.Msg{Data: []byte(`{"record_id":1}`)})
	sub.HandleMessage(ctx, &nats.Msg{Data: []byte(`{"record_id":2}`)})
	sub.HandleMessage(ctx, &nats.Msg{Data: []byte(`garbage`)})
	sub.HandleMessage(ctx, &nats.Msg{Data: []byte(`{"record_id":3}`)})

	if events != 4 {
		t.Fatalf("events = %d, want 4", events)
	}
	if len(handled) != 3 || handled[0] != 1 || handled[1] != 2 || handled[2] != 3 {
		t.Fatalf("handled = %v", handled)
	}
}

func TestHandleMessageAfterShutdownStillLinks(t *testing.T) {
	var handlerErr error
	linked := 0
	sub := NewSubscriber(nil, "licensing.records.inserted", "linker", func(ctx context.Context, id uint64) error {
		if err := ctx.Err(); err != nil {
			handlerErr = err
			return err
		}
		if attrs := logging.Attrs(ctx); len(attrs) == 0 {
			t.Fatalf("handler ctx lost logging attrs")
		}
		linked++
		return nil
	})

	ctx, cancel := context.WithCancel(logging.WithAttrs(context.Background(), slog.String("component", "natsbus.subscriber")))
	cancel()
	sub.HandleMessage(ctx, &nats.Msg{Data: []byte(`{"record_id":1}`)})

	if handlerErr != nil {
		t.Fatalf("handler ctx err = %v, want nil", handlerErr)
	}
	if linked != 1 {
		t.Fatalf("linked = %d, want 1", linked)
	}
}

func TestWaitClosed(t *testing.T) {
	polls := 0
	valid := func() bool {
		polls++
		return polls < 3
	}
	if err := waitClosed(valid, time.Second, time.Millisecond); err != nil {
		t.Fatalf("waitClosed() error = %v", err)
	}
	if polls != 3 {
		t.Fatalf("polls = %d, want 3", polls)
	}

	if err := waitClosed(func() bool { return true }, 5*time.Millisecond, time.Millisecond); err == nil {
		t.Fatalf("waitClosed() on a subscription that never closes error = nil")
	}
}
