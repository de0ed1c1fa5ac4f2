package app

import (
	"errors"
	"testing"
	"time"

	"github.com/pawtograder/platform-sub008/internal/chat/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msPtr(v int64) *int64 { return &v }

func TestCheckCompose(t *testing.T) {
	tests := []struct {
		name    string
		conn    domain.ConnectionState
		mod     domain.ModerationState
		wantErr error
		reason  string
	}{
		{"connected not banned", domain.Connected, domain.ModerationState{}, nil, ""},
		{"disconnected", domain.Disconnected, domain.ModerationState{}, ErrDisconnected, "disconnected"},
		{"disconnected wins over ban", domain.Disconnected, domain.ModerationState{IsBanned: true, IsPermanent: true}, ErrDisconnected, "disconnected"},
		{"permanent", domain.Connected, domain.ModerationState{IsBanned: true, IsPermanent: true}, ErrPermanentlyBanned, "permanent_ban"},
		{"expired temporary", domain.Connected, domain.ModerationState{IsBanned: true, RemainingMs: msPtr(0)}, nil, ""},
		{"negative remaining", domain.Connected, domain.ModerationState{IsBanned: true, RemainingMs: msPtr(-10)}, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCompose(tt.conn, tt.mod)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				assert.True(t, CanSend(tt.conn, tt.mod))
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, CanSend(tt.conn, tt.mod))
			}
			assert.Equal(t, tt.reason, DenyReason(err))
		})
	}
}

func TestCheckCompose_TemporaryBan(t *testing.T) {
	mod := domain.ModerationState{IsBanned: true, RemainingMs: msPtr(8100000)}

	err := CheckCompose(domain.Connected, mod)

	var tmp *TemporaryBanError
	require.True(t, errors.As(err, &tmp))
	assert.Equal(t, 8100*time.Second, tmp.Remaining)
	assert.Equal(t, "you are banned from this chat for another 2h 15m", err.Error())
	assert.Equal(t, "temporary_ban", DenyReason(err))
	assert.False(t, CanSend(domain.Connected, mod))
}

func TestCheckCompose_TemporaryBanUnknownRemaining(t *testing.T) {
	err := CheckCompose(domain.Connected, domain.ModerationState{IsBanned: true})

	var tmp *TemporaryBanError
	require.True(t, errors.As(err, &tmp))
	assert.Equal(t, "you are temporarily banned from this chat", err.Error())
}

func TestBanNotice(t *testing.T) {
	assert.Equal(t, "", BanNotice(domain.ModerationState{}))
	assert.Equal(t, ErrPermanentlyBanned.Error(), BanNotice(domain.ModerationState{IsBanned: true, IsPermanent: true}))
	assert.Equal(t, "you are banned from this chat for another 45s",
		BanNotice(domain.ModerationState{IsBanned: true, RemainingMs: msPtr(45000)}))
	// 已到期
	assert.Equal(t, "", BanNotice(domain.ModerationState{IsBanned: true, RemainingMs: msPtr(0)}))
}

func TestDenyReason_Unknown(t *testing.T) {
	assert.Equal(t, "unknown", DenyReason(errors.New("boom")))
}

func TestFormatRemaining(t *testing.T) {
	const (
		sec  = int64(1000)
		min  = 60 * sec
		hour = 60 * min
		day  = 24 * hour
	)
	tests := []struct {
		ms   int64
		want string
	}{
		{8100000, "2h 15m"},
		{3 * day, "3d"},
		{45 * sec, "45s"},
		{500, "1s"},
		{1001, "2s"},
		{day + hour + min + sec, "1d 1h"},
		{day + min, "1d"},
		{hour + 30*sec, "1h"},
		{90 * sec, "1m 30s"},
		{59*min + 59*sec + 1, "1h"},
		{0, ""},
		{-5, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRemaining(tt.ms), "ms=%d", tt.ms)
	}
}
