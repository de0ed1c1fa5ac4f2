package app

import (
	"context"
	"sync"
	"time"

	"github.com/pawtograder/platform-sub008/pkg/logger"
	"github.com/pawtograder/platform-sub008/pkg/metrics"

	"go.uber.org/zap"
)

const (
	// DefaultDwellTime how long a message must stay visible before it counts as read
	DefaultDwellTime = time.Second
	// DefaultVisibilityThreshold minimum visible area ratio
	DefaultVisibilityThreshold = 0.5
)

// ReadState per message state of a ReadTracker
type ReadState int

const (
	// Unseen not visible, or visibility lost before confirmation
	Unseen ReadState = iota
	// PendingConfirmation visible, dwell timer armed
	PendingConfirmation
	// Requested markAsRead issued, terminal
	Requested
)

func (s ReadState) String() string {
	switch s {
	case PendingConfirmation:
		return "pending_confirmation"
	case Requested:
		return "requested"
	default:
		return "unseen"
	}
}

// MarkReadFunc issues one read receipt
type MarkReadFunc func(ctx context.Context, messageID int64, authorID string) error

type trackedMessage struct {
	state    ReadState
	authorID string
	timer    Timer
	// gen 每次 arm/cancel 都遞增, 讓過期的 timer callback 失效
	gen uint64
}

// ReadTracker turns visibility crossings into at most one markAsRead per
// message id while the id stays in the timeline. One instance belongs to one
// room view.
type ReadTracker struct {
	mu        sync.Mutex
	clock     Clock
	dwell     time.Duration
	threshold float64
	markRead  MarkReadFunc

	entries   map[int64]*trackedMessage
	requested map[int64]struct{}
	closed    bool

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

// ReadTrackerOption tune a ReadTracker
type ReadTrackerOption func(*ReadTracker)

// WithClock replace SystemClock
func WithClock(c Clock) ReadTrackerOption {
	return func(t *ReadTracker) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithDwellTime override DefaultDwellTime
func WithDwellTime(d time.Duration) ReadTrackerOption {
	return func(t *ReadTracker) {
		if d > 0 {
			t.dwell = d
		}
	}
}

// WithVisibilityThreshold override DefaultVisibilityThreshold
func WithVisibilityThreshold(ratio float64) ReadTrackerOption {
	return func(t *ReadTracker) {
		if ratio > 0 && ratio <= 1 {
			t.threshold = ratio
		}
	}
}

// NewReadTracker create ReadTracker calling markRead on confirmed reads
func NewReadTracker(markRead MarkReadFunc, opts ...ReadTrackerOption) *ReadTracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &ReadTracker{
		clock:     SystemClock,
		dwell:     DefaultDwellTime,
		threshold: DefaultVisibilityThreshold,
		markRead:  markRead,
		entries:   make(map[int64]*trackedMessage),
		requested: make(map[int64]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe report the visible area ratio of a message. A ratio below the
// threshold, or NaN, counts as a visibility loss.
func (t *ReadTracker) Observe(messageID int64, authorID string, ratio float64) {
	if !(ratio >= t.threshold) {
		t.Hide(messageID)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if _, done := t.requested[messageID]; done {
		return
	}

	e, ok := t.entries[messageID]
	if !ok {
		e = &trackedMessage{}
		t.entries[messageID] = e
	}
	if e.state != Unseen {
		return
	}

	e.state = PendingConfirmation
	e.authorID = authorID
	e.gen++
	gen := e.gen
	e.timer = t.clock.AfterFunc(t.dwell, func() {
		t.confirm(messageID, gen)
	})
}

// Hide report that a message left the viewport
func (t *ReadTracker) Hide(messageID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[messageID]
	if !ok || e.state != PendingConfirmation {
		return
	}
	t.disarm(e)
	e.state = Unseen
}

func (t *ReadTracker) disarm(e *trackedMessage) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
}

func (t *ReadTracker) confirm(messageID int64, gen uint64) {
	t.mu.Lock()
	e, ok := t.entries[messageID]
	if t.closed || !ok || e.state != PendingConfirmation || e.gen != gen {
		t.mu.Unlock()
		return
	}
	e.state = Requested
	e.timer = nil
	t.requested[messageID] = struct{}{}
	authorID := e.authorID
	ctx := t.ctx
	t.inflight.Add(1)
	t.mu.Unlock()

	defer t.inflight.Done()
	if err := t.markRead(ctx, messageID, authorID); err != nil {
		// 不重試, 也不退回 Unseen
		metrics.ReadReceipts.WithLabelValues("failed").Inc()
		logger.Log.Warn("mark as read failed",
			zap.Int64("message_id", messageID),
			zap.String("author_id", authorID),
			zap.Error(err),
		)
		return
	}
	metrics.ReadReceipts.WithLabelValues("ok").Inc()
}

// Reserve move messageID straight to Requested, cancelling a pending dwell
// timer. False when it was already requested or the tracker is closed, in
// which case the caller must not send another request.
func (t *ReadTracker) Reserve(messageID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	if _, done := t.requested[messageID]; done {
		return false
	}
	if e, ok := t.entries[messageID]; ok {
		t.disarm(e)
		e.state = Requested
	}
	t.requested[messageID] = struct{}{}
	return true
}

// Retain drop tracking state and requested markers of ids absent from the
// current timeline and cancel their timers.
func (t *ReadTracker) Retain(ids []int64) {
	keep := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for id, e := range t.entries {
		if _, ok := keep[id]; ok {
			continue
		}
		t.disarm(e)
		delete(t.entries, id)
	}
	for id := range t.requested {
		if _, ok := keep[id]; !ok {
			delete(t.requested, id)
		}
	}
}

// State current state of messageID
func (t *ReadTracker) State(messageID int64) ReadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, done := t.requested[messageID]; done {
		return Requested
	}
	if e, ok := t.entries[messageID]; ok {
		return e.state
	}
	return Unseen
}

// Tracked number of ids with live tracking state
func (t *ReadTracker) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Close cancel every timer and in-flight request, then wait for them.
// No markAsRead starts after Close returns.
func (t *ReadTracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	for id, e := range t.entries {
		t.disarm(e)
		delete(t.entries, id)
	}
	t.mu.Unlock()

	t.cancel()
	t.inflight.Wait()
}
