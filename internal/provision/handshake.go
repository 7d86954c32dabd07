package provision

import (
	"context"
	"sync"
	"time"

	"github.com/atinyakov/smsglue/internal/store"
	"go.uber.org/zap"
)

// DefaultTTL is how long an armed descriptor stays retrievable.
const DefaultTTL = 10 * time.Minute

// Codec encrypts descriptors at rest. *codec.Codec satisfies it.
type Codec interface {
	Encrypt(value any, salt ...string) (string, error)
	Decrypt(ciphertext string, v any, salt ...string) bool
}

// Timer is the part of *time.Timer the handshake needs.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. time.AfterFunc is the production scheduler.
type Scheduler func(d time.Duration, f func()) Timer

func afterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Handshake stores descriptors under store.CategoryProvisions and owns the
// in-memory expiry timers, one per account id. Timers do not survive a
// restart: a descriptor armed before a restart stays until consumed or
// re-armed.
type Handshake struct {
	store    store.Store
	codec    Codec
	ttl      time.Duration
	schedule Scheduler
	log      *zap.Logger

	mu     sync.Mutex
	timers map[string]*expiry
}

// expiry is the single timer slot of one account.
type expiry struct {
	timer Timer
}

// Option configures a Handshake.
type Option func(*Handshake)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(h *Handshake) {
		if d > 0 {
			h.ttl = d
		}
	}
}

// WithScheduler replaces time.AfterFunc, mainly for tests.
func WithScheduler(s Scheduler) Option {
	return func(h *Handshake) { h.schedule = s }
}

// WithLogger sets the logger used for expiry failures.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handshake) { h.log = l }
}

// NewHandshake returns a Handshake over s and c.
func NewHandshake(s store.Store, c Codec, opts ...Option) *Handshake {
	h := &Handshake{
		store:    s,
		codec:    c,
		ttl:      DefaultTTL,
		schedule: afterFunc,
		log:      zap.NewNop(),
		timers:   make(map[string]*expiry),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handshake) save(ctx context.Context, id, descriptor string) error {
	blob, err := h.codec.Encrypt(descriptor)
	if err != nil {
		return err
	}
	return h.store.Save(ctx, store.CategoryProvisions, id, blob)
}

// Arm persists descriptor for id and restarts its expiry window.
// Saves to the provisions slot happen under h.mu so a superseded timer
// can never overwrite a newer descriptor.
func (h *Handshake) Arm(ctx context.Context, id, descriptor string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.save(ctx, id, descriptor); err != nil {
		return err
	}

	if prev, ok := h.timers[id]; ok {
		prev.timer.Stop()
	}
	e := &expiry{}
	e.timer = h.schedule(h.ttl, func() { h.expire(id, e) })
	h.timers[id] = e
	return nil
}

// expire clears the descriptor unless e has been replaced or cancelled.
func (h *Handshake) expire(id string, e *expiry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timers[id] != e {
		return
	}
	delete(h.timers, id)

	if err := h.save(context.Background(), id, EmptyDescriptor); err != nil {
		h.log.Error("failed to expire provision", zap.Error(err))
		return
	}
	h.log.Info("provision expired unfetched")
}

func (h *Handshake) cancel(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.timers[id]; ok {
		e.timer.Stop()
		delete(h.timers, id)
	}
}

// Consume returns the descriptor stored for id and replaces it with
// EmptyDescriptor. Absent or undecryptable descriptors yield
// EmptyDescriptor without touching storage.
func (h *Handshake) Consume(ctx context.Context, id string) (string, error) {
	blob, ok := h.store.Load(ctx, store.CategoryProvisions, id)
	if !ok {
		return EmptyDescriptor, nil
	}
	var descriptor string
	if !h.codec.Decrypt(blob, &descriptor) {
		return EmptyDescriptor, nil
	}

	h.cancel(id)
	if descriptor == EmptyDescriptor {
		return descriptor, nil
	}
	if err := h.save(ctx, id, EmptyDescriptor); err != nil {
		return "", err
	}
	return descriptor, nil
}

// Pending reports how many accounts have an expiry timer armed.
func (h *Handshake) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.timers)
}
