package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pawtograder/platform-sub008/internal/chat/domain"
	"github.com/pawtograder/platform-sub008/internal/chat/repository"
	"github.com/pawtograder/platform-sub008/pkg"
	"github.com/pawtograder/platform-sub008/pkg/config"
	"github.com/pawtograder/platform-sub008/pkg/logger"
	"github.com/pawtograder/platform-sub008/pkg/metrics"

	"go.uber.org/zap"
)

// ErrRoomViewClosed operation on a closed RoomView
var ErrRoomViewClosed = errors.New("room view is closed")

const refreshTimeout = 5 * time.Second

// RoomViewConfig one viewer in one room
type RoomViewConfig struct {
	RoomID string
	Viewer domain.Viewer
	Engine config.EngineConfig
	// Clock nil 時使用 SystemClock
	Clock Clock
}

// TimelineEntry message plus its parent when the parent is loaded
type TimelineEntry struct {
	domain.UnifiedMessage
	ReplyTo *domain.UnifiedMessage `json:"reply_to,omitempty"`
}

// Snapshot timeline and compose state pushed on every change
type Snapshot struct {
	RoomID     string                 `json:"room_id"`
	Messages   []TimelineEntry        `json:"messages"`
	Connection domain.ConnectionState `json:"connection"`
	Moderation domain.ModerationState `json:"moderation"`
	CanSend    bool                   `json:"can_send"`
	Notice     string                 `json:"notice,omitempty"`
}

// RoomView 每個連線每個房間一份, 合併 store 與廣播並追蹤已讀.
// The timeline is rebuilt from scratch whenever either source changes.
type RoomView struct {
	cfg      RoomViewConfig
	rooms    *RoomUseCase
	messages *MessageUseCase
	onChange func(Snapshot)
	tracker  *ReadTracker

	mu         sync.Mutex
	stored     []domain.StoredMessage
	broadcasts []domain.BroadcastEvent
	receipts   map[int64][]string
	conn       domain.ConnectionState
	mod        domain.ModerationState
	timeline   []domain.UnifiedMessage
	index      *ReplyIndex
	fetchSeq   uint64
	appliedSeq uint64
	opened     bool
	closed     bool
	ctx        context.Context
	cancel     context.CancelFunc

	// refresh 合併
	refreshing   bool
	refreshDirty bool

	notifyMu sync.Mutex
}

// NewRoomView create RoomView, onChange may be nil
func NewRoomView(cfg RoomViewConfig, rooms *RoomUseCase, messages *MessageUseCase, onChange func(Snapshot)) *RoomView {
	cfg.Engine = cfg.Engine.WithDefaults()
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	ctx, cancel := context.WithCancel(context.Background())
	v := &RoomView{
		cfg:      cfg,
		rooms:    rooms,
		messages: messages,
		onChange: onChange,
		receipts: make(map[int64][]string),
		conn:     domain.Disconnected,
		ctx:      ctx,
		cancel:   cancel,
	}
	v.tracker = NewReadTracker(v.markRead,
		WithClock(cfg.Clock),
		WithDwellTime(cfg.Engine.DwellTime),
		WithVisibilityThreshold(cfg.Engine.VisibilityThreshold),
	)
	return v
}

// Open authorize the viewer, subscribe to the room and load stored messages
func (v *RoomView) Open(ctx context.Context) error {
	roomID, viewer := v.cfg.RoomID, v.cfg.Viewer
	if _, err := v.rooms.Authorize(ctx, roomID, viewer); err != nil {
		return err
	}

	mod, err := v.rooms.Moderation(ctx, roomID, viewer.ProfileID)
	if err != nil {
		// 送出前會再查一次
		logger.Log.Warn("load moderation failed", zap.String("room_id", roomID), zap.Error(err))
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrRoomViewClosed
	}
	v.mod = mod
	v.opened = true
	v.mu.Unlock()
	metrics.ActiveRoomViews.Inc()

	err = v.messages.Subscribe(v.ctx, roomID, repository.BroadcastHandler{
		OnMessage:     v.onBroadcast,
		OnReadReceipt: v.onReadReceipt,
		OnRefresh:     v.onRefresh,
		OnState:       v.onState,
	})
	if err != nil {
		v.publish()
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	return v.Refetch(ctx)
}

// Refetch reload the stored log. A result older than one already applied is
// discarded.
func (v *RoomView) Refetch(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrRoomViewClosed
	}
	v.fetchSeq++
	seq := v.fetchSeq
	v.mu.Unlock()

	msgs, err := v.messages.Fetch(ctx, v.cfg.RoomID, v.cfg.Viewer)
	if err != nil {
		return fmt.Errorf("fetch room messages: %w", err)
	}

	v.mu.Lock()
	if v.closed || seq < v.appliedSeq {
		v.mu.Unlock()
		return nil
	}
	v.appliedSeq = seq
	v.stored = msgs
	v.rebuildLocked()
	v.mu.Unlock()

	v.publish()
	return nil
}

func (v *RoomView) onBroadcast(evt domain.BroadcastEvent) {
	if evt.RoomID != "" && evt.RoomID != v.cfg.RoomID {
		return
	}
	if evt.InstructorsOnly && !v.cfg.Viewer.IsStaff {
		return
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.broadcasts = append(v.broadcasts, evt)
	if over := len(v.broadcasts) - v.cfg.Engine.BroadcastBuffer; over > 0 {
		v.broadcasts = append([]domain.BroadcastEvent(nil), v.broadcasts[over:]...)
	}
	v.rebuildLocked()
	v.mu.Unlock()

	v.publish()
}

func (v *RoomView) onReadReceipt(r domain.ReadReceipt) {
	if r.ReaderID == "" {
		return
	}
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	before := len(v.receipts[r.MessageID])
	v.receipts[r.MessageID] = pkg.AppendUnique(v.receipts[r.MessageID], r.ReaderID)
	changed := len(v.receipts[r.MessageID]) != before
	if changed {
		v.rebuildLocked()
	}
	v.mu.Unlock()

	if changed {
		v.publish()
	}
}

// onRefresh 同時最多一個 refetch, 期間收到的 refresh 合併成一次後續 refetch
func (v *RoomView) onRefresh() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	if v.refreshing {
		v.refreshDirty = true
		v.mu.Unlock()
		return
	}
	v.refreshing = true
	v.mu.Unlock()

	go v.refreshLoop()
}

func (v *RoomView) refreshLoop() {
	for {
		ctx, cancel := context.WithTimeout(v.ctx, refreshTimeout)
		err := v.Refetch(ctx)
		cancel()
		if err != nil && !errors.Is(err, ErrRoomViewClosed) {
			logger.Log.Warn("refetch after refresh failed", zap.String("room_id", v.cfg.RoomID), zap.Error(err))
		}

		v.mu.Lock()
		if v.refreshDirty && !v.closed {
			v.refreshDirty = false
			v.mu.Unlock()
			continue
		}
		v.refreshing = false
		v.refreshDirty = false
		v.mu.Unlock()
		return
	}
}

func (v *RoomView) onState(s domain.ConnectionState) {
	v.mu.Lock()
	if v.closed || v.conn == s {
		v.mu.Unlock()
		return
	}
	v.conn = s
	v.mu.Unlock()

	logger.Log.Info("room connection state", zap.String("room_id", v.cfg.RoomID), zap.String("state", string(s)))
	v.publish()
}

// rebuildLocked caller holds v.mu
func (v *RoomView) rebuildLocked() {
	var stats ReconcileStats
	tl := Reconcile(v.stored, v.broadcasts, v.cfg.Viewer,
		WithDedupWindow(v.cfg.Engine.DedupWindow),
		WithStats(&stats),
	)

	ids := make([]int64, 0, len(v.stored))
	for i := range tl {
		if !tl[i].IsStored() {
			continue
		}
		ids = append(ids, tl[i].ID)
		for _, reader := range v.receipts[tl[i].ID] {
			tl[i].ReadBy = pkg.AppendUnique(tl[i].ReadBy, reader)
		}
	}

	v.timeline = tl
	v.index = NewReplyIndex(tl)
	v.tracker.Retain(ids)

	metrics.ReconcileTotal.Inc()
	metrics.BroadcastSuperseded.Add(float64(stats.Superseded))
	metrics.BroadcastRedelivered.Add(float64(stats.Redelivered))
}

func (v *RoomView) snapshotLocked() Snapshot {
	snap := Snapshot{
		RoomID:     v.cfg.RoomID,
		Messages:   make([]TimelineEntry, 0, len(v.timeline)),
		Connection: v.conn,
		Moderation: v.mod,
	}
	for _, m := range v.timeline {
		snap.Messages = append(snap.Messages, TimelineEntry{UnifiedMessage: m, ReplyTo: v.index.Resolve(m)})
	}
	if err := CheckCompose(v.conn, v.mod); err != nil {
		snap.Notice = err.Error()
	} else {
		snap.CanSend = true
	}
	return snap
}

// Snapshot current state
func (v *RoomView) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

// Timeline current reconciled timeline
func (v *RoomView) Timeline() []domain.UnifiedMessage {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.UnifiedMessage(nil), v.timeline...)
}

// publish 不可在持有 v.mu 時呼叫
func (v *RoomView) publish() {
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()

	v.mu.Lock()
	if v.closed || v.onChange == nil {
		v.mu.Unlock()
		return
	}
	snap := v.snapshotLocked()
	v.mu.Unlock()

	v.onChange(snap)
}

// ResolveReply parent of m in the current timeline
func (v *RoomView) ResolveReply(m domain.UnifiedMessage) *domain.UnifiedMessage {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.index.Resolve(m)
}

// SendMessage check the compose gate with fresh moderation state, then send
func (v *RoomView) SendMessage(ctx context.Context, content string, replyToID *int64, instructorsOnly bool) (*domain.StoredMessage, error) {
	roomID, viewer := v.cfg.RoomID, v.cfg.Viewer

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, ErrRoomViewClosed
	}
	conn := v.conn
	v.mu.Unlock()

	mod, err := v.rooms.Moderation(ctx, roomID, viewer.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("load moderation: %w", err)
	}

	v.mu.Lock()
	changed := v.mod.IsBanned != mod.IsBanned || v.mod.IsPermanent != mod.IsPermanent
	v.mod = mod
	v.mu.Unlock()

	if err := CheckCompose(conn, mod); err != nil {
		metrics.SendDenied.WithLabelValues(DenyReason(err)).Inc()
		v.publish()
		return nil, err
	}
	if changed {
		v.publish()
	}

	// 連線狀態只由訂閱回報, publish 失敗只回傳錯誤
	msg, err := v.messages.Send(ctx, roomID, viewer, content, replyToID, instructorsOnly)
	if msg != nil {
		// refresh 廣播可能遺失, 自己先 refetch
		if ferr := v.Refetch(ctx); ferr != nil && !errors.Is(ferr, ErrRoomViewClosed) {
			logger.Log.Warn("refetch after send failed", zap.String("room_id", roomID), zap.Error(ferr))
		}
	}
	return msg, err
}

// MarkMessageAsRead record a read of messageID by the viewer. An id the read
// tracker already requested is not sent again.
func (v *RoomView) MarkMessageAsRead(ctx context.Context, messageID int64, authorID string) error {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return ErrRoomViewClosed
	}
	if authorID == v.cfg.Viewer.ProfileID {
		return nil
	}
	if !v.tracker.Reserve(messageID) {
		return nil
	}
	return v.messages.MarkRead(ctx, v.cfg.RoomID, messageID, authorID, v.cfg.Viewer.ProfileID)
}

func (v *RoomView) markRead(ctx context.Context, messageID int64, authorID string) error {
	return v.messages.MarkRead(ctx, v.cfg.RoomID, messageID, authorID, v.cfg.Viewer.ProfileID)
}

// ReportVisibility visible area ratio of a rendered stored message. Own
// messages and messages already read by the viewer are not tracked.
func (v *RoomView) ReportVisibility(messageID int64, ratio float64) {
	v.mu.Lock()
	m, ok := v.index.Lookup(messageID)
	v.mu.Unlock()
	if !ok {
		return
	}
	if m.AuthorID == v.cfg.Viewer.ProfileID || pkg.Contains(m.ReadBy, v.cfg.Viewer.ProfileID) {
		return
	}
	v.tracker.Observe(messageID, m.AuthorID, ratio)
}

// ReportHidden message left the viewport
func (v *RoomView) ReportHidden(messageID int64) {
	v.tracker.Hide(messageID)
}

// ReadState read tracking state of messageID
func (v *RoomView) ReadState(messageID int64) ReadState {
	return v.tracker.State(messageID)
}

// Close unsubscribe and stop read tracking. Safe to call more than once.
func (v *RoomView) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	opened := v.opened
	v.mu.Unlock()

	v.cancel()
	v.tracker.Close()
	if opened {
		metrics.ActiveRoomViews.Dec()
	}
}
