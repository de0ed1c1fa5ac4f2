package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pawtograder/platform-sub008/internal/chat/domain"
)

var (
	// ErrDisconnected broadcast channel is not connected
	ErrDisconnected = errors.New("chat is disconnected, messages cannot be sent right now")
	// ErrPermanentlyBanned viewer is permanently banned from the room
	ErrPermanentlyBanned = errors.New("you are permanently banned from this chat")
)

// TemporaryBanError viewer banned for a limited time, Remaining 0 when unknown
type TemporaryBanError struct {
	Remaining time.Duration
}

func (e *TemporaryBanError) Error() string {
	if left := FormatRemaining(e.Remaining.Milliseconds()); left != "" {
		return "you are banned from this chat for another " + left
	}
	return "you are temporarily banned from this chat"
}

// CanSend connected and not banned
func CanSend(conn domain.ConnectionState, mod domain.ModerationState) bool {
	return CheckCompose(conn, mod) == nil
}

// CheckCompose nil when sending is allowed, otherwise the reason it is not
func CheckCompose(conn domain.ConnectionState, mod domain.ModerationState) error {
	if conn != domain.Connected {
		return ErrDisconnected
	}
	return checkModeration(mod)
}

func checkModeration(mod domain.ModerationState) error {
	if !mod.IsBanned {
		return nil
	}
	if mod.IsPermanent {
		return ErrPermanentlyBanned
	}
	if mod.RemainingMs == nil {
		return &TemporaryBanError{}
	}
	if *mod.RemainingMs <= 0 {
		// 已到期, 視為未被禁言
		return nil
	}
	return &TemporaryBanError{Remaining: time.Duration(*mod.RemainingMs) * time.Millisecond}
}

// DenyReason short label of a CheckCompose error
func DenyReason(err error) string {
	var tmp *TemporaryBanError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDisconnected):
		return "disconnected"
	case errors.Is(err, ErrPermanentlyBanned):
		return "permanent_ban"
	case errors.As(err, &tmp):
		return "temporary_ban"
	default:
		return "unknown"
	}
}

// BanNotice user visible ban copy, empty when not banned
func BanNotice(mod domain.ModerationState) string {
	if err := checkModeration(mod); err != nil {
		return err.Error()
	}
	return ""
}

var durationUnits = []struct {
	suffix string
	size   int64
}{
	{"d", 24 * 60 * 60},
	{"h", 60 * 60},
	{"m", 60},
	{"s", 1},
}

// FormatRemaining render ms as its largest unit plus the next one when
// non-zero, e.g. "2h 15m", "3d", "45s". Seconds round up. ms <= 0 gives "".
func FormatRemaining(ms int64) string {
	if ms <= 0 {
		return ""
	}
	secs := (ms + 999) / 1000

	for i, u := range durationUnits {
		n := secs / u.size
		if n == 0 {
			continue
		}
		parts := []string{fmt.Sprintf("%d%s", n, u.suffix)}
		if i+1 < len(durationUnits) {
			next := durationUnits[i+1]
			if rest := (secs % u.size) / next.size; rest > 0 {
				parts = append(parts, fmt.Sprintf("%d%s", rest, next.suffix))
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}
