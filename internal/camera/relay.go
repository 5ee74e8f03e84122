// Package camera relays one upstream MJPEG stream per printer to any number of viewers.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultBuffer is the per-subscriber frame queue length
const DefaultBuffer = 4

var (
	// ErrNoCamera is returned for printers without a configured camera
	ErrNoCamera = errors.New("printer has no camera")
	// ErrClosed is returned by Subscribe after the relay has been shut down
	ErrClosed = errors.New("camera relay closed")
)

// StreamError reports that the upstream stream failed or ended
type StreamError struct {
	Printer string
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("camera stream of %s failed: %v", e.Printer, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// State of a relay
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
)

// Stats is a point-in-time view of a relay
type Stats struct {
	State       State  `json:"state"`
	Subscribers int    `json:"subscribers"`
	Frames      uint64 `json:"frames"`
	Sessions    uint64 `json:"sessions"`
	Dropped     uint64 `json:"dropped"`
}

type session struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Relay holds at most one upstream session, open exactly while it has subscribers
type Relay struct {
	name   string
	source Source
	buffer int
	logger *slog.Logger

	mu      sync.Mutex
	session *session
	last    *session // most recently started, possibly still closing
	running sync.WaitGroup
	subs    map[uuid.UUID]*Subscription
	latest  []byte
	closed  bool

	frames   atomic.Uint64
	sessions atomic.Uint64
	dropped  atomic.Uint64
}

// NewRelay creates an idle relay reading from source
func NewRelay(name string, source Source, buffer int, logger *slog.Logger) *Relay {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		name:   name,
		source: source,
		buffer: buffer,
		logger: logger.With("printer", name),
		subs:   make(map[uuid.UUID]*Subscription),
	}
}

// Subscription receives frames from a relay. Frames are shared between
// subscribers and must not be modified.
type Subscription struct {
	id     uuid.UUID
	relay  *Relay
	frames chan []byte

	// guarded by relay.mu
	closed bool
	err    error
	stop   func() bool

	dropped atomic.Uint64
}

// Subscribe registers a viewer, opening the upstream if the relay is idle.
// The subscription is closed when ctx is done or Close is called.
func (r *Relay) Subscribe(ctx context.Context) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	sub := &Subscription{
		id:     uuid.New(),
		relay:  r,
		frames: make(chan []byte, r.buffer),
	}
	r.subs[sub.id] = sub
	if r.session == nil {
		r.start()
	}
	sub.stop = context.AfterFunc(ctx, func() {
		sub.Close()
	})

	r.logger.Debug("camera subscriber added", "subscriber", sub.id, "subscribers", len(r.subs))
	return sub, nil
}

// start opens a new upstream session. Caller holds r.mu.
func (r *Relay) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{cancel: cancel, done: make(chan struct{})}
	prev := r.last
	r.session = s
	r.last = s
	r.sessions.Add(1)
	r.running.Add(1)
	go r.run(ctx, s, prev)
}

// run reads frames for session s. A replaced session may still be closing its
// upstream, so run waits for prev to finish before opening a new one.
func (r *Relay) run(ctx context.Context, s *session, prev *session) {
	defer r.running.Done()
	defer close(s.done)

	// prev is already cancelled, so this wait is bounded by its reader's Close
	if prev != nil {
		<-prev.done
	}
	if ctx.Err() != nil {
		return
	}

	reader, err := r.source.Open(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.fail(s, err)
		}
		return
	}
	defer reader.Close()
	r.logger.Info("camera stream opened")

	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info("camera stream closed")
				return
			}
			r.fail(s, err)
			return
		}
		r.broadcast(s, frame)
	}
}

func (r *Relay) broadcast(s *session, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != s {
		return
	}
	r.latest = frame
	r.frames.Add(1)

	for _, sub := range r.subs {
		select {
		case sub.frames <- frame:
			continue
		default:
		}
		// queue full: drop the oldest frame to make room
		select {
		case <-sub.frames:
			sub.dropped.Add(1)
			r.dropped.Add(1)
		default:
		}
		select {
		case sub.frames <- frame:
		default:
			sub.dropped.Add(1)
			r.dropped.Add(1)
		}
	}
}

// fail ends session s and every subscription with a StreamError
func (r *Relay) fail(s *session, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != s {
		return
	}
	r.logger.Warn("camera stream failed", "error", err, "subscribers", len(r.subs))

	s.cancel()
	r.session = nil
	r.latest = nil

	streamErr := &StreamError{Printer: r.name, Err: err}
	for _, sub := range r.subs {
		sub.err = streamErr
		r.detach(sub)
	}
}

// detach removes sub and closes its channel. Caller holds r.mu.
func (r *Relay) detach(sub *Subscription) {
	sub.closed = true
	delete(r.subs, sub.id)
	close(sub.frames)
	if sub.stop != nil {
		sub.stop()
	}
}

// Snapshot returns the most recent frame of an active stream, or opens a
// short-lived session for a single frame.
func (r *Relay) Snapshot(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	if r.session != nil && r.latest != nil {
		frame := r.latest
		r.mu.Unlock()
		return frame, nil
	}
	r.mu.Unlock()

	sub, err := r.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	select {
	case frame, ok := <-sub.Frames():
		if !ok {
			if err := sub.Err(); err != nil {
				return nil, err
			}
			return nil, &StreamError{Printer: r.name, Err: errors.New("stream closed before the first frame")}
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// State reports whether an upstream session is open
func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		return StateActive
	}
	return StateIdle
}

// Stats returns counters for the health endpoint
func (r *Relay) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := StateIdle
	if r.session != nil {
		state = StateActive
	}
	return Stats{
		State:       state,
		Subscribers: len(r.subs),
		Frames:      r.frames.Load(),
		Sessions:    r.sessions.Load(),
		Dropped:     r.dropped.Load(),
	}
}

// Close ends every subscription and the upstream session. Subscriptions end without an error.
func (r *Relay) Close() {
	r.mu.Lock()
	r.closed = true
	s := r.session
	r.session = nil
	r.latest = nil
	for _, sub := range r.subs {
		r.detach(sub)
	}
	r.mu.Unlock()

	if s != nil {
		s.cancel()
	}
	r.running.Wait()
}

// Frames returns the channel of frames. It is closed when the subscription ends.
func (s *Subscription) Frames() <-chan []byte {
	return s.frames
}

// ID identifies the subscription
func (s *Subscription) ID() uuid.UUID {
	return s.id
}

// Err returns the StreamError that ended the subscription, if any
func (s *Subscription) Err() error {
	s.relay.mu.Lock()
	defer s.relay.mu.Unlock()
	return s.err
}

// Dropped returns how many frames this subscriber missed because it fell behind
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close releases the subscription. The upstream is closed with the last subscriber.
// It is safe to call more than once.
func (s *Subscription) Close() {
	r := s.relay
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.closed {
		return
	}
	r.detach(s)
	r.logger.Debug("camera subscriber removed", "subscriber", s.id, "subscribers", len(r.subs))

	if len(r.subs) == 0 && r.session != nil {
		r.session.cancel()
		r.session = nil
		r.latest = nil
	}
}
