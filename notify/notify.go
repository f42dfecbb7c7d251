package notify

import (
	"context"
	"sync"
)

// Kind identifies which out-of-band message an auth flow produced.
type Kind string

const (
	KindEmailVerification Kind = "emailVerification"
	KindPasswordReset     Kind = "passwordReset"
	KindMagicLogin        Kind = "magicLogin"
)

// Message carries a freshly issued single-use token to its recipient.
type Message struct {
	Kind      Kind
	AccountID string
	Username  string
	Email     string
	Token     string
}

// Sender delivers messages. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Discard drops every message.
type Discard struct{}

func (Discard) Send(context.Context, Message) error { return nil }

// Recorder keeps every message it receives. Used in tests and local development.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	return nil
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Last returns the most recent message of kind k sent to email.
func (r *Recorder) Last(k Kind, email string) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		m := r.messages[i]
		if m.Kind == k && m.Email == email {
			return m, true
		}
	}
	return Message{}, false
}
