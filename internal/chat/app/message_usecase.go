package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pawtograder/platform-sub008/internal/chat/domain"
	"github.com/pawtograder/platform-sub008/internal/chat/repository"
	"github.com/pawtograder/platform-sub008/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrTransport broadcast channel failed to deliver
	ErrTransport = errors.New("broadcast transport error")
	// ErrEmptyMessage content is blank
	ErrEmptyMessage = errors.New("message content is empty")
	// ErrInstructorsOnly only staff may post instructors only messages
	ErrInstructorsOnly = errors.New("only instructors can post instructors only messages")
)

// MessageUseCase 負責訊息讀寫與廣播
type MessageUseCase struct {
	msgRepo repository.MessageRepository
	pubSub  repository.BroadcastChannel
	clock   Clock
}

// NewMessageUseCase init message use case
func NewMessageUseCase(msgRepo repository.MessageRepository, pub repository.BroadcastChannel) *MessageUseCase {
	return &MessageUseCase{
		msgRepo: msgRepo,
		pubSub:  pub,
		clock:   SystemClock,
	}
}

// Fetch stored messages of roomID visible to viewer
func (uc *MessageUseCase) Fetch(ctx context.Context, roomID string, viewer domain.Viewer) ([]domain.StoredMessage, error) {
	return uc.msgRepo.FetchRoomMessages(ctx, roomID, viewer.IsStaff)
}

// Subscribe room broadcast passthrough
func (uc *MessageUseCase) Subscribe(ctx context.Context, roomID string, h repository.BroadcastHandler) error {
	return uc.pubSub.Subscribe(ctx, roomID, h)
}

// Send 先廣播樂觀訊息, 再寫入 store, 最後通知所有訂閱者 refetch.
// A persisted message with a failed broadcast returns the message and an
// error wrapping ErrTransport.
func (uc *MessageUseCase) Send(ctx context.Context, roomID string, viewer domain.Viewer, content string, replyToID *int64, instructorsOnly bool) (*domain.StoredMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	if instructorsOnly && !viewer.IsStaff {
		return nil, ErrInstructorsOnly
	}

	now := uc.clock.Now()
	evt := domain.BroadcastEvent{
		LocalID:         uuid.New().String(),
		SenderIdentity:  viewer.ConnectionID,
		AuthorProfileID: viewer.ProfileID,
		Content:         content,
		CreatedAt:       now.UnixMilli(),
		ReplyToID:       replyToID,
		RoomID:          roomID,
		InstructorsOnly: instructorsOnly,
	}

	var transportErr error
	if err := uc.pubSub.PublishMessage(ctx, roomID, evt); err != nil {
		logger.Log.Warn("publish message failed", zap.String("room_id", roomID), zap.Error(err))
		transportErr = err
	}

	msg := &domain.StoredMessage{
		RoomID:          roomID,
		AuthorID:        viewer.ProfileID,
		Content:         content,
		CreatedAt:       now,
		ReplyToID:       replyToID,
		InstructorsOnly: instructorsOnly,
		ReadBy:          []string{viewer.ProfileID},
	}
	if err := uc.msgRepo.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	if err := uc.pubSub.PublishRefresh(ctx, roomID); err != nil && transportErr == nil {
		transportErr = err
	}
	if transportErr != nil {
		return msg, fmt.Errorf("%w: %v", ErrTransport, transportErr)
	}
	return msg, nil
}

// MarkRead 已讀, 寫入 store 後廣播 read receipt. 自己的訊息不需要標記
func (uc *MessageUseCase) MarkRead(ctx context.Context, roomID string, messageID int64, authorID, readerID string) error {
	if authorID == readerID {
		return nil
	}
	if err := uc.msgRepo.MarkAsRead(ctx, roomID, messageID, readerID); err != nil {
		return err
	}

	receipt := domain.ReadReceipt{RoomID: roomID, MessageID: messageID, ReaderID: readerID}
	if err := uc.pubSub.PublishReadReceipt(ctx, roomID, receipt); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}
