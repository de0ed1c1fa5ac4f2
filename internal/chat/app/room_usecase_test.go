package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pawtograder/platform-sub008/internal/chat/domain"
	"github.com/pawtograder/platform-sub008/internal/chat/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestRoomUseCase() (*RoomUseCase, *MockRoomRepository, *MockModerationRepository, *MockMessageRepository) {
	roomRepo := new(MockRoomRepository)
	modRepo := new(MockModerationRepository)
	msgRepo := new(MockMessageRepository)
	uc := NewRoomUseCase(roomRepo, modRepo, msgRepo)
	uc.clock = newFakeClock(baseTime)
	return uc, roomRepo, modRepo, msgRepo
}

func TestRoomUseCase_Authorize(t *testing.T) {
	ctx := context.Background()
	room := &domain.HelpRoom{ID: "room", Members: []string{"student"}, Instructors: []string{"ta"}}

	tests := []struct {
		name    string
		viewer  domain.Viewer
		wantErr error
	}{
		{"member", domain.Viewer{ProfileID: "student"}, nil},
		{"room instructor", domain.Viewer{ProfileID: "ta"}, nil},
		{"course staff", domain.Viewer{ProfileID: "other-ta", IsStaff: true}, nil},
		{"stranger", domain.Viewer{ProfileID: "stranger"}, ErrRoomForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc, roomRepo, _, _ := newTestRoomUseCase()
			roomRepo.On("FindByID", ctx, "room").Return(room, nil)

			got, err := uc.Authorize(ctx, "room", tt.viewer)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, room, got)
		})
	}
}

func TestRoomUseCase_AuthorizeNotFound(t *testing.T) {
	ctx := context.Background()
	uc, roomRepo, _, _ := newTestRoomUseCase()
	roomRepo.On("FindByID", ctx, "missing").Return(nil, repository.ErrRoomNotFound)

	_, err := uc.Authorize(ctx, "missing", viewer)
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)
}

func TestRoomUseCase_Moderation(t *testing.T) {
	ctx := context.Background()
	expires := baseTime.Add(90 * time.Second)

	tests := []struct {
		name string
		ban  *domain.Ban
		want domain.ModerationState
	}{
		{"no ban", nil, domain.ModerationState{}},
		{"permanent", &domain.Ban{}, domain.ModerationState{IsBanned: true, IsPermanent: true}},
		{"temporary", &domain.Ban{ExpiresAt: &expires}, domain.ModerationState{IsBanned: true, RemainingMs: msPtr(90000)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc, _, modRepo, _ := newTestRoomUseCase()
			modRepo.On("FindActiveBan", ctx, "room", "student", baseTime).Return(tt.ban, nil)

			got, err := uc.Moderation(ctx, "room", "student")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoomUseCase_ModerationError(t *testing.T) {
	ctx := context.Background()
	uc, _, modRepo, _ := newTestRoomUseCase()
	modRepo.On("FindActiveBan", ctx, "room", "student", mock.Anything).Return(nil, errors.New("timeout"))

	_, err := uc.Moderation(ctx, "room", "student")
	assert.Error(t, err)
}

// 測試 UnreadCounts
func TestRoomUseCase_UnreadCounts(t *testing.T) {
	ctx := context.Background()
	uc, roomRepo, _, msgRepo := newTestRoomUseCase()

	roomRepo.On("FindByMember", ctx, "student").Return([]domain.HelpRoom{{ID: "room-1"}, {ID: "room-2"}}, nil)
	want := []domain.RoomUnreadInfo{
		{RoomID: "room-1", UnreadCount: 5},
		{RoomID: "room-2", UnreadCount: 2},
	}
	msgRepo.On("CountUnreadByRoom", ctx, "student", []string{"room-1", "room-2"}, false).Return(want, nil)

	got, err := uc.UnreadCounts(ctx, domain.Viewer{ProfileID: "student"})

	assert.NoError(t, err)
	assert.Equal(t, want, got)
	roomRepo.AssertExpectations(t)
	msgRepo.AssertExpectations(t)
}
