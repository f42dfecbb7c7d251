package notify

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

type gateSender struct {
	gate chan struct{}
}

func newGateSender() *gateSender {
	return &gateSender{gate: make(chan struct{})}
}

func (s *gateSender) Send(context.Context, Message) error {
	<-s.gate
	return nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &Recorder{}
	d := NewDispatcher(Config{BufferSize: 8}, rec)

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		if err := d.Send(context.Background(), Message{Kind: KindMagicLogin, Email: email, Token: "t-" + email}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	d.Close()

	msgs := rec.Messages()
	if len(msgs) != 3 {
		t.Fatalf("delivered %d messages, want 3", len(msgs))
	}
	last, ok := rec.Last(KindMagicLogin, "b@example.com")
	if !ok || last.Token != "t-b@example.com" {
		t.Fatalf("Last = %+v, %v", last, ok)
	}
	if _, ok := rec.Last(KindPasswordReset, "b@example.com"); ok {
		t.Fatal("no password reset message was sent")
	}
}

func TestDispatcherDropIfFullDoesNotBlock(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := newGateSender()
	d := NewDispatcher(Config{BufferSize: 1, DropIfFull: true}, sender)
	defer func() {
		close(sender.gate)
		d.Close()
	}()

	_ = d.Send(context.Background(), Message{Kind: KindPasswordReset})
	_ = d.Send(context.Background(), Message{Kind: KindPasswordReset})

	start := time.Now()
	_ = d.Send(context.Background(), Message{Kind: KindPasswordReset})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking send when DropIfFull is true")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestDispatcherBlocksUntilContextDone(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := newGateSender()
	d := NewDispatcher(Config{BufferSize: 1}, sender)
	defer func() {
		close(sender.gate)
		d.Close()
	}()

	_ = d.Send(context.Background(), Message{Kind: KindEmailVerification})
	_ = d.Send(context.Background(), Message{Kind: KindEmailVerification})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := d.Send(ctx, Message{Kind: KindEmailVerification})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if d.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", d.Dropped())
	}
}

func TestDispatcherLogsAndCountsFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	var logs syncBuffer
	var mu sync.Mutex
	var results []error

	failing := SenderFunc(func(context.Context, Message) error {
		return errors.New("smtp: connection refused")
	})
	d := NewDispatcher(Config{BufferSize: 4}, failing,
		WithLogger(zerolog.New(&logs)),
		WithResultHook(func(_ Kind, err error) {
			mu.Lock()
			results = append(results, err)
			mu.Unlock()
		}),
	)

	_ = d.Send(context.Background(), Message{Kind: KindPasswordReset, AccountID: "acc-1", Token: "secret-token"})
	d.Close()

	if d.Failed() != 1 {
		t.Fatalf("failed = %d, want 1", d.Failed())
	}
	mu.Lock()
	if len(results) != 1 || results[0] == nil {
		t.Fatalf("result hook saw %v", results)
	}
	mu.Unlock()

	out := logs.String()
	if !bytes.Contains([]byte(out), []byte("notification delivery failed")) {
		t.Fatalf("missing failure log: %s", out)
	}
	if bytes.Contains([]byte(out), []byte("secret-token")) {
		t.Fatal("token leaked into logs")
	}
}

func TestDispatcherCloseIdempotentAndSendAfterCloseSafe(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(Config{BufferSize: 4, DropIfFull: true}, &Recorder{})
	_ = d.Send(context.Background(), Message{Kind: KindMagicLogin})
	d.Close()
	d.Close()
	if err := d.Send(context.Background(), Message{Kind: KindMagicLogin}); err != nil {
		t.Fatalf("send after close: %v", err)
	}

	var nilDispatcher *Dispatcher
	nilDispatcher.Close()
	if err := nilDispatcher.Send(context.Background(), Message{}); err != nil {
		t.Fatalf("nil dispatcher send: %v", err)
	}
	if nilDispatcher.Dropped() != 0 || nilDispatcher.Failed() != 0 {
		t.Fatal("nil dispatcher counters should be zero")
	}
}
