package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/pawtograder/platform-sub008/internal/chat/domain"
	"github.com/pawtograder/platform-sub008/pkg/config"
	errprocess "github.com/pawtograder/platform-sub008/pkg/err"
	"github.com/pawtograder/platform-sub008/pkg/logger"
	"github.com/pawtograder/platform-sub008/pkg/middlewares"
	"github.com/pawtograder/platform-sub008/pkg/token"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const pingInterval = 30 * time.Second

// ChatWebsocketHandler 可包含所有需要的 UseCase
type ChatWebsocketHandler struct {
	roomUC    *RoomUseCase
	messageUC *MessageUseCase
	engine    config.EngineConfig
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(roomUC *RoomUseCase, messageUC *MessageUseCase, engine config.EngineConfig) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{
		roomUC:    roomUC,
		messageUC: messageUC,
		engine:    engine.WithDefaults(),
	}
}

// wsWriter 同一個連線只能有一個 writer
type wsWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// session one websocket connection, holds one RoomView per entered room
type session struct {
	h      *ChatWebsocketHandler
	viewer domain.Viewer

	writeMu sync.Mutex
	conn    wsWriter

	mu    sync.Mutex
	views map[string]*RoomView
}

func (h *ChatWebsocketHandler) newSession(conn wsWriter, memberID string, role token.RoleType) *session {
	return &session{
		h: h,
		viewer: domain.Viewer{
			ConnectionID: uuid.New().String(),
			ProfileID:    memberID,
			IsStaff:      role.IsStaff(),
		},
		conn:  conn,
		views: make(map[string]*RoomView),
	}
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	memberID, _ := conn.Locals(middlewares.TokenMemberID).(string)
	role, _ := conn.Locals(middlewares.TokenRole).(string)
	s := h.newSession(conn, memberID, token.RoleType(role))
	logger.Log.Info("websocket open", zap.String("userID", memberID), zap.String("connection_id", s.viewer.ConnectionID))

	ctxClose, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.closeAll()
		logger.Log.Info("websocket close", zap.String("userID", memberID))
		conn.Close()
	}()

	//server發出ping之後client連線正常會回pong
	conn.SetPongHandler(func(appData string) error {
		logger.Log.Debug("received pong", zap.String("userID", memberID))
		return nil
	})

	// 定期發送 Ping
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second))
				s.writeMu.Unlock()
				if err != nil {
					logger.Log.Warn("ping error", zap.String("userID", memberID), zap.Error(err))
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		// 1. 讀取前端訊息
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Info("connection closed", zap.String("userID", memberID))
			} else {
				//直接斷線 1006
				logger.Log.Warn("websocket read error", zap.String("userID", memberID), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			s.sendError("unsupported message type")
			continue
		}
		s.textMessageAction(ctxClose, message)
	}
}

func (s *session) textMessageAction(ctx context.Context, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		logger.Log.Warn("json unmarshal error", zap.String("userID", s.viewer.ProfileID), zap.Error(err))
		s.sendError("invalid request")
		return
	}

	resp := domain.WSResponse{Action: req.Action, Success: false, Payload: map[string]interface{}{}}
	var err error

	switch domain.Action(req.Action) {
	//進入聊天室, 建立 RoomView 並推送 timeline
	case domain.EnterRoom:
		err = s.enterRoom(ctx, req.RoomID)
		resp.Payload["room_id"] = req.RoomID

	//離開聊天室
	case domain.LeaveRoom:
		s.leaveRoom(req.RoomID)
		resp.Payload["room_id"] = req.RoomID

	//傳送訊息
	case domain.SendMessage:
		var v *RoomView
		if v, err = s.view(req.RoomID); err == nil {
			var stored *domain.StoredMessage
			stored, err = v.SendMessage(ctx, req.Content, req.ReplyToID, req.InstructorsOnly)
			if stored != nil {
				resp.Payload["message_id"] = stored.ID
			}
		}

	//明確標記已讀
	case domain.ReadMessage:
		var v *RoomView
		if v, err = s.view(req.RoomID); err == nil {
			err = v.MarkMessageAsRead(ctx, req.MessageID, req.AuthorID)
		}

	//畫面可見比例
	case domain.MessageVisible:
		var v *RoomView
		if v, err = s.view(req.RoomID); err == nil {
			v.ReportVisibility(req.MessageID, req.Ratio)
		}

	case domain.MessageHidden:
		var v *RoomView
		if v, err = s.view(req.RoomID); err == nil {
			v.ReportHidden(req.MessageID)
		}

	case domain.Refetch:
		var v *RoomView
		if v, err = s.view(req.RoomID); err == nil {
			err = v.Refetch(ctx)
		}

	//搜尋所有未讀訊息
	case domain.GetUnread:
		var unread []domain.RoomUnreadInfo
		unread, err = s.h.roomUC.UnreadCounts(ctx, s.viewer)
		for _, u := range unread {
			resp.Payload[u.RoomID] = u.UnreadCount
		}

	default:
		s.sendError("unknown action")
		return
	}

	if err != nil {
		resp.Error = err.Error()
		logger.Log.Warn("websocket action failed",
			zap.String("MemberID", s.viewer.ProfileID),
			zap.String("Action", req.Action),
			zap.String("RoomID", req.RoomID),
			zap.Error(err),
		)
	} else {
		resp.Success = true
	}
	s.sendResponse(resp)
}

func (s *session) enterRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return errprocess.Set("room_id is required", zap.String("userID", s.viewer.ProfileID))
	}
	s.mu.Lock()
	if _, ok := s.views[roomID]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	v := NewRoomView(RoomViewConfig{
		RoomID: roomID,
		Viewer: s.viewer,
		Engine: s.h.engine,
	}, s.h.roomUC, s.h.messageUC, s.pushTimeline)

	if err := v.Open(ctx); err != nil {
		v.Close()
		return err
	}

	s.mu.Lock()
	if _, ok := s.views[roomID]; ok {
		// 同時兩次 enter_room, 保留先到的
		s.mu.Unlock()
		v.Close()
		return nil
	}
	s.views[roomID] = v
	s.mu.Unlock()
	return nil
}

func (s *session) leaveRoom(roomID string) {
	s.mu.Lock()
	v, ok := s.views[roomID]
	delete(s.views, roomID)
	s.mu.Unlock()
	if ok {
		v.Close()
	}
}

var errNotInRoom = errors.New("enter the room first")

func (s *session) view(roomID string) (*RoomView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[roomID]
	if !ok {
		return nil, errNotInRoom
	}
	return v, nil
}

func (s *session) closeAll() {
	s.mu.Lock()
	views := s.views
	s.views = make(map[string]*RoomView)
	s.mu.Unlock()
	for _, v := range views {
		v.Close()
	}
}

func (s *session) pushTimeline(snap Snapshot) {
	s.sendResponse(domain.WSResponse{
		Action:  string(domain.Timeline),
		Success: true,
		Payload: map[string]interface{}{
			"room_id":    snap.RoomID,
			"messages":   snap.Messages,
			"connection": snap.Connection,
			"moderation": snap.Moderation,
			"can_send":   snap.CanSend,
			"notice":     snap.Notice,
		},
	})
}

// sendResponse - 發送 JSON 給前端
func (s *session) sendResponse(resp domain.WSResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		logger.Log.Error("marshal response error", zap.Error(err))
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		logger.Log.Warn("write message error", zap.String("userID", s.viewer.ProfileID), zap.Error(err))
	}
}

func (s *session) sendError(errorMsg string) {
	s.sendResponse(domain.WSResponse{
		Action:  "error",
		Success: false,
		Error:   errorMsg,
	})
}
