package app

import (
	"context"
	"errors"

	"github.com/pawtograder/platform-sub008/internal/chat/domain"
	"github.com/pawtograder/platform-sub008/internal/chat/repository"
)

// ErrRoomForbidden viewer is not part of the room
var ErrRoomForbidden = errors.New("not allowed to open this room")

// RoomUseCase room access, moderation and unread lookups
type RoomUseCase struct {
	roomRepo repository.RoomRepository
	modRepo  repository.ModerationRepository
	msgRepo  repository.MessageRepository
	clock    Clock
}

// NewRoomUseCase init room use case
func NewRoomUseCase(r repository.RoomRepository, m repository.ModerationRepository, msg repository.MessageRepository) *RoomUseCase {
	return &RoomUseCase{
		roomRepo: r,
		modRepo:  m,
		msgRepo:  msg,
		clock:    SystemClock,
	}
}

// Authorize load roomID and check viewer may open it
func (uc *RoomUseCase) Authorize(ctx context.Context, roomID string, viewer domain.Viewer) (*domain.HelpRoom, error) {
	room, err := uc.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.CanAccess(viewer.ProfileID, viewer.IsStaff) {
		return nil, ErrRoomForbidden
	}
	return room, nil
}

// Moderation ban state of profileID in roomID now
func (uc *RoomUseCase) Moderation(ctx context.Context, roomID, profileID string) (domain.ModerationState, error) {
	now := uc.clock.Now()
	ban, err := uc.modRepo.FindActiveBan(ctx, roomID, profileID, now)
	if err != nil {
		return domain.ModerationState{}, err
	}
	return ban.ModerationState(now), nil
}

// UnreadCounts unread messages per room of the viewer
func (uc *RoomUseCase) UnreadCounts(ctx context.Context, viewer domain.Viewer) ([]domain.RoomUnreadInfo, error) {
	rooms, err := uc.roomRepo.FindByMember(ctx, viewer.ProfileID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	return uc.msgRepo.CountUnreadByRoom(ctx, viewer.ProfileID, ids, viewer.IsStaff)
}
