package app

import (
	"sort"
	"time"

	"github.com/pawtograder/platform-sub008/internal/chat/domain"
)

// DefaultDedupWindow max clock distance between a broadcast and its stored copy
const DefaultDedupWindow = 5 * time.Second

type reconcileOptions struct {
	window time.Duration
	stats  *ReconcileStats
}

// ReconcileOption tune Reconcile
type ReconcileOption func(*reconcileOptions)

// WithDedupWindow override DefaultDedupWindow
func WithDedupWindow(d time.Duration) ReconcileOption {
	return func(o *reconcileOptions) {
		if d > 0 {
			o.window = d
		}
	}
}

// ReconcileStats counts what Reconcile dropped
type ReconcileStats struct {
	Superseded  int
	Redelivered int
}

// WithStats collect drop counts into s
func WithStats(s *ReconcileStats) ReconcileOption {
	return func(o *reconcileOptions) {
		o.stats = s
	}
}

// SameMessage reports whether broadcast evt is the optimistic copy of stored.
// A broadcast sent from the viewer's own connection only matches a stored row
// authored by the viewer's profile; other senders match on content and time.
func SameMessage(stored domain.StoredMessage, evt domain.BroadcastEvent, viewer domain.Viewer, window time.Duration) bool {
	if stored.Content != evt.Content {
		return false
	}
	if !withinWindow(stored.CreatedAt, evt.Timestamp(), window) {
		return false
	}
	if evt.SenderIdentity == viewer.ConnectionID {
		return stored.AuthorID == viewer.ProfileID
	}
	return true
}

func withinWindow(a, b time.Time, window time.Duration) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < window
}

// Reconcile merges the stored log and the broadcast stream of one room into a
// deduplicated timeline sorted by timestamp. Stored rows win over matching
// broadcasts. Entries with a missing timestamp are kept and sorted last.
func Reconcile(stored []domain.StoredMessage, broadcasts []domain.BroadcastEvent, viewer domain.Viewer, opts ...ReconcileOption) []domain.UnifiedMessage {
	o := reconcileOptions{window: DefaultDedupWindow}
	for _, opt := range opts {
		opt(&o)
	}
	stats := o.stats
	if stats == nil {
		stats = &ReconcileStats{}
	}

	timeline := make([]domain.UnifiedMessage, 0, len(stored)+len(broadcasts))
	for _, m := range stored {
		timeline = append(timeline, fromStored(m))
	}

	type deliveryKey struct{ sender, local string }
	delivered := make(map[deliveryKey]struct{}, len(broadcasts))

	for _, evt := range broadcasts {
		if evt.LocalID != "" {
			k := deliveryKey{evt.SenderIdentity, evt.LocalID}
			if _, dup := delivered[k]; dup {
				stats.Redelivered++
				continue
			}
			delivered[k] = struct{}{}
		}
		if hasStoredCopy(stored, evt, viewer, o.window) {
			stats.Superseded++
			continue
		}
		timeline = append(timeline, fromBroadcast(evt, viewer))
	}

	sort.SliceStable(timeline, func(i, j int) bool {
		return timestampLess(timeline[i].CreatedAt, timeline[j].CreatedAt)
	})
	return timeline
}

func hasStoredCopy(stored []domain.StoredMessage, evt domain.BroadcastEvent, viewer domain.Viewer, window time.Duration) bool {
	for _, m := range stored {
		if SameMessage(m, evt, viewer, window) {
			return true
		}
	}
	return false
}

// timestampLess ascending, zero time after everything else
func timestampLess(a, b time.Time) bool {
	switch {
	case a.IsZero():
		return false
	case b.IsZero():
		return true
	default:
		return a.Before(b)
	}
}

func fromStored(m domain.StoredMessage) domain.UnifiedMessage {
	return domain.UnifiedMessage{
		Source:          domain.SourceStored,
		ID:              m.ID,
		AuthorID:        m.AuthorID,
		Content:         m.Content,
		CreatedAt:       m.CreatedAt,
		ReplyToID:       m.ReplyToID,
		InstructorsOnly: m.InstructorsOnly,
		ReadBy:          append([]string(nil), m.ReadBy...),
	}
}

func fromBroadcast(evt domain.BroadcastEvent, viewer domain.Viewer) domain.UnifiedMessage {
	author := evt.SenderIdentity
	switch {
	case evt.SenderIdentity == viewer.ConnectionID:
		author = viewer.ProfileID
	case evt.AuthorProfileID != "":
		author = evt.AuthorProfileID
	}
	return domain.UnifiedMessage{
		Source:          domain.SourceBroadcast,
		LocalID:         evt.LocalID,
		AuthorID:        author,
		Content:         evt.Content,
		CreatedAt:       evt.Timestamp(),
		ReplyToID:       evt.ReplyToID,
		InstructorsOnly: evt.InstructorsOnly,
	}
}
