package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pawtograder/platform-sub008/internal/chat/domain"
	"github.com/pawtograder/platform-sub008/internal/chat/repository"

	"github.com/stretchr/testify/mock"
)

// MockRoomRepository Mock RoomRepository
type MockRoomRepository struct {
	mock.Mock
}

// CreateRoom moke create room
func (m *MockRoomRepository) CreateRoom(ctx context.Context, room *domain.HelpRoom) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

// FindByID moke find room by room id
func (m *MockRoomRepository) FindByID(ctx context.Context, roomID string) (*domain.HelpRoom, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.HelpRoom), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByMember moke find rooms of a member
func (m *MockRoomRepository) FindByMember(ctx context.Context, profileID string) ([]domain.HelpRoom, error) {
	args := m.Called(ctx, profileID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.HelpRoom), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// FetchRoomMessages moke fetch stored messages
func (m *MockMessageRepository) FetchRoomMessages(ctx context.Context, roomID string, includeInstructorsOnly bool) ([]domain.StoredMessage, error) {
	args := m.Called(ctx, roomID, includeInstructorsOnly)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.StoredMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

// InsertMessage moke insert msg
func (m *MockMessageRepository) InsertMessage(ctx context.Context, msg *domain.StoredMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MarkAsRead moke mark as read
func (m *MockMessageRepository) MarkAsRead(ctx context.Context, roomID string, messageID int64, readerID string) error {
	args := m.Called(ctx, roomID, messageID, readerID)
	return args.Error(0)
}

// CountUnreadByRoom moke get count unread by user id
func (m *MockMessageRepository) CountUnreadByRoom(ctx context.Context, userID string, roomIDs []string, includeInstructorsOnly bool) ([]domain.RoomUnreadInfo, error) {
	args := m.Called(ctx, userID, roomIDs, includeInstructorsOnly)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.RoomUnreadInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockModerationRepository Mock ModerationRepository
type MockModerationRepository struct {
	mock.Mock
}

// CreateBan moke create ban
func (m *MockModerationRepository) CreateBan(ctx context.Context, ban *domain.Ban) error {
	args := m.Called(ctx, ban)
	return args.Error(0)
}

// FindActiveBan moke find active ban
func (m *MockModerationRepository) FindActiveBan(ctx context.Context, roomID, profileID string, now time.Time) (*domain.Ban, error) {
	args := m.Called(ctx, roomID, profileID, now)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Ban), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockBroadcastChannel Mock BroadcastChannel, keeps the last subscribed handler
type MockBroadcastChannel struct {
	mock.Mock

	mu      sync.Mutex
	handler repository.BroadcastHandler
}

// PublishMessage moke publish message
func (m *MockBroadcastChannel) PublishMessage(ctx context.Context, roomID string, evt domain.BroadcastEvent) error {
	args := m.Called(ctx, roomID, evt)
	return args.Error(0)
}

// PublishReadReceipt moke publish read receipt
func (m *MockBroadcastChannel) PublishReadReceipt(ctx context.Context, roomID string, receipt domain.ReadReceipt) error {
	args := m.Called(ctx, roomID, receipt)
	return args.Error(0)
}

// PublishRefresh moke publish refresh
func (m *MockBroadcastChannel) PublishRefresh(ctx context.Context, roomID string) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

// Subscribe moke subscribe, reports Connected on success like the redis implementation
func (m *MockBroadcastChannel) Subscribe(ctx context.Context, roomID string, h repository.BroadcastHandler) error {
	args := m.Called(ctx, roomID, h)
	if err := args.Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
	if h.OnState != nil {
		h.OnState(domain.Connected)
	}
	return nil
}

// Handler last subscribed handler
func (m *MockBroadcastChannel) Handler() repository.BroadcastHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler
}

// fakeClock manual clock, timers fire only on Advance
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance move the clock and run due timers in deadline order
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// Pending timers not yet fired or stopped
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}
