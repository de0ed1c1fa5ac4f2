package domain

import "time"

// HelpRoom 一個 help request 的對話室
type HelpRoom struct {
	ID            string   `bson:"_id,omitempty" json:"id"`
	CourseID      string   `bson:"course_id" json:"course_id"`
	HelpRequestID string   `bson:"help_request_id,omitempty" json:"help_request_id,omitempty"`
	Members       []string `bson:"members,omitempty" json:"members,omitempty"`
	Instructors   []string `bson:"instructors,omitempty" json:"instructors,omitempty"`
	CreatedAt     int64    `bson:"created_at,omitempty" json:"created_at,omitempty"`
}

// CanAccess members, room instructors and staff may open the room
func (r *HelpRoom) CanAccess(profileID string, staff bool) bool {
	if staff {
		return true
	}
	for _, id := range r.Members {
		if id == profileID {
			return true
		}
	}
	for _, id := range r.Instructors {
		if id == profileID {
			return true
		}
	}
	return false
}

// ConnectionState broadcast channel connectivity
type ConnectionState string

const (
	// Connected subscription confirmed
	Connected ConnectionState = "connected"
	// Disconnected subscription lost or not yet confirmed
	Disconnected ConnectionState = "disconnected"
)

// ModerationState viewer's ban status in a room
type ModerationState struct {
	IsBanned    bool   `json:"is_banned"`
	IsPermanent bool   `json:"is_permanent"`
	RemainingMs *int64 `json:"remaining_ms,omitempty"`
}

// Ban 禁言紀錄, ExpiresAt 為 nil 表示永久
type Ban struct {
	ID        string     `bson:"_id,omitempty" json:"id"`
	RoomID    string     `bson:"room_id" json:"room_id"`
	ProfileID string     `bson:"profile_id" json:"profile_id"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	Reason    string     `bson:"reason,omitempty" json:"reason,omitempty"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
}

// ModerationState ban status at now, nil ban means not banned
func (b *Ban) ModerationState(now time.Time) ModerationState {
	if b == nil {
		return ModerationState{}
	}
	if b.ExpiresAt == nil {
		return ModerationState{IsBanned: true, IsPermanent: true}
	}
	remaining := b.ExpiresAt.Sub(now).Milliseconds()
	if remaining <= 0 {
		return ModerationState{}
	}
	return ModerationState{IsBanned: true, RemainingMs: &remaining}
}
