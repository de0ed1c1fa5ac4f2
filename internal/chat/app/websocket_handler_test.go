package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/pawtograder/platform-sub008/internal/chat/domain"
	"github.com/pawtograder/platform-sub008/pkg/config"
	"github.com/pawtograder/platform-sub008/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	sent []domain.WSResponse
}

func (w *fakeWriter) WriteMessage(_ int, data []byte) error {
	var resp domain.WSResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent = append(w.sent, resp)
	return nil
}

func (w *fakeWriter) lastAction(action string) (domain.WSResponse, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := len(w.sent) - 1; i >= 0; i-- {
		if w.sent[i].Action == action {
			return w.sent[i], true
		}
	}
	return domain.WSResponse{}, false
}

func newTestSession(t *testing.T, env *roomViewEnv) (*session, *fakeWriter) {
	t.Helper()
	h := NewChatWebsocketHandler(env.roomUC, env.msgUC, env.engine)
	w := &fakeWriter{}
	s := h.newSession(w, env.viewer.ProfileID, token.RoleStudent)
	// 讓 broadcast 的 sender 與 env.viewer 一致
	s.viewer.ConnectionID = env.viewer.ConnectionID
	t.Cleanup(s.closeAll)
	return s, w
}

func request(t *testing.T, s *session, req domain.WSRequest) {
	t.Helper()
	b, err := json.Marshal(req)
	require.NoError(t, err)
	s.textMessageAction(context.Background(), b)
}

func TestSession_EnterRoomPushesTimeline(t *testing.T) {
	env := newRoomViewEnv(t, viewer)
	env.expectOpen([]domain.StoredMessage{storedAt(1, "profile-ta", "hi there", 0)})
	s, w := newTestSession(t, env)

	request(t, s, domain.WSRequest{Action: string(domain.EnterRoom), RoomID: testRoomID})

	resp, ok := w.lastAction(string(domain.EnterRoom))
	require.True(t, ok)
	assert.True(t, resp.Success, resp.Error)

	tl, ok := w.lastAction(string(domain.Timeline))
	require.True(t, ok)
	assert.Equal(t, testRoomID, tl.Payload["room_id"])
	assert.Equal(t, true, tl.Payload["can_send"])
	msgs, ok := tl.Payload["messages"].([]interface{})
	require.True(t, ok)
	assert.Len(t, msgs, 1)

	// 重複 enter 不會再開一份
	request(t, s, domain.WSRequest{Action: string(domain.EnterRoom), RoomID: testRoomID})
	env.pub.AssertNumberOfCalls(t, "Subscribe", 1)
}

func TestSession_VisibilityAndLeave(t *testing.T) {
	env := newRoomViewEnv(t, viewer)
	env.expectOpen([]domain.StoredMessage{storedAt(1, "profile-ta", "hi there", 0)})
	s, _ := newTestSession(t, env)

	request(t, s, domain.WSRequest{Action: string(domain.EnterRoom), RoomID: testRoomID})
	v, err := s.view(testRoomID)
	require.NoError(t, err)

	request(t, s, domain.WSRequest{Action: string(domain.MessageVisible), RoomID: testRoomID, MessageID: 1, Ratio: 0.9})
	assert.Equal(t, PendingConfirmation, v.ReadState(1))

	request(t, s, domain.WSRequest{Action: string(domain.MessageHidden), RoomID: testRoomID, MessageID: 1})
	assert.Equal(t, Unseen, v.ReadState(1))

	request(t, s, domain.WSRequest{Action: string(domain.LeaveRoom), RoomID: testRoomID})
	_, err = s.view(testRoomID)
	assert.ErrorIs(t, err, errNotInRoom)
}

func TestSession_ActionBeforeEnter(t *testing.T) {
	env := newRoomViewEnv(t, viewer)
	s, w := newTestSession(t, env)

	request(t, s, domain.WSRequest{Action: string(domain.SendMessage), RoomID: testRoomID, Content: "hi"})

	resp, ok := w.lastAction(string(domain.SendMessage))
	require.True(t, ok)
	assert.False(t, resp.Success)
	assert.Equal(t, errNotInRoom.Error(), resp.Error)
}

func TestSession_EnterRoomRequiresID(t *testing.T) {
	env := newRoomViewEnv(t, viewer)
	s, w := newTestSession(t, env)

	request(t, s, domain.WSRequest{Action: string(domain.EnterRoom)})

	resp, ok := w.lastAction(string(domain.EnterRoom))
	require.True(t, ok)
	assert.False(t, resp.Success)
}

func TestSession_GetUnread(t *testing.T) {
	env := newRoomViewEnv(t, viewer)
	env.roomRepo.On("FindByMember", mock.Anything, viewer.ProfileID).Return([]domain.HelpRoom{{ID: "r1"}}, nil)
	env.msgRepo.On("CountUnreadByRoom", mock.Anything, viewer.ProfileID, []string{"r1"}, false).
		Return([]domain.RoomUnreadInfo{{RoomID: "r1", UnreadCount: 3}}, nil)
	s, w := newTestSession(t, env)

	request(t, s, domain.WSRequest{Action: string(domain.GetUnread)})

	resp, ok := w.lastAction(string(domain.GetUnread))
	require.True(t, ok)
	assert.True(t, resp.Success)
	assert.Equal(t, float64(3), resp.Payload["r1"])
}

func TestSession_BadRequests(t *testing.T) {
	env := newRoomViewEnv(t, viewer)
	s, w := newTestSession(t, env)

	s.textMessageAction(context.Background(), []byte("{not json"))
	resp, ok := w.lastAction("error")
	require.True(t, ok)
	assert.Equal(t, "invalid request", resp.Error)

	request(t, s, domain.WSRequest{Action: "create_room"})
	resp, ok = w.lastAction("error")
	require.True(t, ok)
	assert.Equal(t, "unknown action", resp.Error)
}

func TestNewSession_StaffRole(t *testing.T) {
	h := NewChatWebsocketHandler(nil, nil, config.EngineConfig{})
	s := h.newSession(&fakeWriter{}, "ta", token.RoleInstructor)

	assert.True(t, s.viewer.IsStaff)
	assert.NotEmpty(t, s.viewer.ConnectionID)
	assert.NotEqual(t, s.viewer.ConnectionID, h.newSession(&fakeWriter{}, "ta", token.RoleInstructor).viewer.ConnectionID)
}
