package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oggyb/npc-swipe/internal/cache"
)

// Surface delivers obligations to whatever front end renders them.
type Surface interface {
	Deliver(ctx context.Context, o Obligation) error
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(ctx context.Context, o Obligation) error

func (f SurfaceFunc) Deliver(ctx context.Context, o Obligation) error { return f(ctx, o) }

// UserChannel is the pub/sub channel carrying cards and terminal messages for one user.
func UserChannel(userID string) string {
	return "swipe:user:" + userID
}

// RedisSurface publishes obligations as JSON. Match announcements go to one
// shared channel; everything else goes to the user's own channel.
type RedisSurface struct {
	cache        *cache.RedisCache
	matchChannel string
}

// NewRedisSurface creates a surface publishing matches on matchChannel.
func NewRedisSurface(c *cache.RedisCache, matchChannel string) *RedisSurface {
	return &RedisSurface{cache: c, matchChannel: matchChannel}
}

func (s *RedisSurface) Deliver(ctx context.Context, o Obligation) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to encode %s obligation: %w", o.Kind, err)
	}

	channel := UserChannel(o.UserID)
	if o.Kind == KindAnnounceMatch {
		channel = s.matchChannel
	}
	if _, err := s.cache.Publish(ctx, channel, payload); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", channel, err)
	}
	return nil
}

// Dispatcher hands obligations to a Surface without making the caller wait.
// One worker delivers every batch, so batches reach the surface in the order
// Dispatch was called. Delivery failures are logged and dropped.
type Dispatcher struct {
	surface Surface
	log     *slog.Logger
	queue   chan batch
	start   sync.Once
	pending sync.WaitGroup
}

type batch struct {
	ctx         context.Context
	obligations []Obligation
}

// QueueSize is how many batches may wait for the worker before Dispatch blocks.
const QueueSize = 256

// NewDispatcher creates a dispatcher. A nil surface discards everything.
func NewDispatcher(surface Surface, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{surface: surface, log: log, queue: make(chan batch, QueueSize)}
}

// Dispatch queues obligations for delivery after every earlier batch.
// The caller's cancellation does not reach delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, obligations ...Obligation) {
	if d == nil || d.surface == nil || len(obligations) == 0 {
		return
	}
	d.start.Do(func() { go d.run() })

	d.pending.Add(1)
	d.queue <- batch{ctx: context.WithoutCancel(ctx), obligations: obligations}
}

func (d *Dispatcher) run() {
	for b := range d.queue {
		for _, o := range b.obligations {
			if err := d.surface.Deliver(b.ctx, o); err != nil {
				d.log.Warn("obligation delivery failed",
					"kind", o.Kind,
					"user_id", o.UserID,
					"profile_id", o.ProfileID,
					"err", err,
				)
			}
		}
		d.pending.Done()
	}
}

// Wait blocks until every queued batch has been attempted.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.pending.Wait()
}

// Recorder is an in-memory Surface. Handy for tests and trial runs.
type Recorder struct {
	mu  sync.Mutex
	got []Obligation
}

func (r *Recorder) Deliver(_ context.Context, o Obligation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, o)
	return nil
}

// Delivered returns a copy of everything delivered so far.
func (r *Recorder) Delivered() []Obligation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Obligation(nil), r.got...)
}

// OfKind returns the delivered obligations of one kind.
func (r *Recorder) OfKind(k Kind) []Obligation {
	var out []Obligation
	for _, o := range r.Delivered() {
		if o.Kind == k {
			out = append(out, o)
		}
	}
	return out
}
