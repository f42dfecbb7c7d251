package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	BufferSize  int
	DropIfFull  bool
	SendTimeout time.Duration
}

// Dispatcher hands messages to a Sender on a background goroutine so that
// flows never wait on SMTP.
type Dispatcher struct {
	cfg       Config
	sender    Sender
	log       zerolog.Logger
	onResult  func(kind Kind, err error)
	ch        chan Message
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for delivery failures.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithResultHook registers a callback invoked after every delivery attempt.
func WithResultHook(fn func(kind Kind, err error)) Option {
	return func(d *Dispatcher) { d.onResult = fn }
}

func NewDispatcher(cfg Config, sender Sender, opts ...Option) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if sender == nil {
		sender = Discard{}
	}

	d := &Dispatcher{
		cfg:    cfg,
		sender: sender,
		log:    zerolog.Nop(),
		ch:     make(chan Message, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	err := d.sender.Send(ctx, msg)
	if err != nil {
		d.failed.Add(1)
		d.log.Warn().Err(err).
			Str("kind", string(msg.Kind)).
			Str("account_id", msg.AccountID).
			Msg("notification delivery failed")
	}
	if d.onResult != nil {
		d.onResult(msg.Kind, err)
	}
}

// Send enqueues msg. It never reports delivery errors; a full buffer either
// drops the message (DropIfFull) or waits for ctx.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- msg:
		case <-d.done:
		default:
			d.dropped.Add(1)
			d.log.Warn().Str("kind", string(msg.Kind)).Msg("notification dropped, buffer full")
		}
		return nil
	}

	select {
	case d.ch <- msg:
		return nil
	case <-ctx.Done():
		d.dropped.Add(1)
		return ctx.Err()
	case <-d.done:
		return nil
	}
}

// Close stops accepting messages and drains the buffer.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
