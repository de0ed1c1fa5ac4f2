package domain

import "time"

// Source 訊息來源
type Source string

const (
	// SourceStored message comes from the durable store, carries a stable id
	SourceStored Source = "stored"
	// SourceBroadcast optimistic message seen only on the broadcast channel
	SourceBroadcast Source = "broadcast"
)

// StoredMessage 持久化的聊天訊息, ID 由 store 指派且不會變動
type StoredMessage struct {
	ID              int64     `bson:"_id" json:"id"`
	RoomID          string    `bson:"room_id" json:"room_id"`
	AuthorID        string    `bson:"author_id" json:"author_id"`
	Content         string    `bson:"content" json:"content"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
	ReplyToID       *int64    `bson:"reply_to_id,omitempty" json:"reply_to_id,omitempty"`
	InstructorsOnly bool      `bson:"instructors_only" json:"instructors_only"`
	Requestor       *string   `bson:"requestor,omitempty" json:"requestor,omitempty"`
	ReadBy          []string  `bson:"read_by,omitempty" json:"read_by,omitempty"`
}

// BroadcastEvent 剛送出、尚未持久化的訊息 (at-least-once, 可能重複或亂序)
type BroadcastEvent struct {
	LocalID         string `json:"local_id"`
	SenderIdentity  string `json:"sender_identity"`
	AuthorProfileID string `json:"author_profile_id,omitempty"`
	Content         string `json:"content"`
	// CreatedAt client clock, unix milliseconds
	CreatedAt       int64  `json:"created_at"`
	ReplyToID       *int64 `json:"reply_to_id,omitempty"`
	RoomID          string `json:"room_id"`
	InstructorsOnly bool   `json:"instructors_only,omitempty"`
}

// Timestamp client timestamp, zero when missing or malformed
func (e BroadcastEvent) Timestamp() time.Time {
	if e.CreatedAt <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(e.CreatedAt)
}

// ReadReceipt read receipt event on the broadcast channel
type ReadReceipt struct {
	RoomID    string `json:"room_id"`
	MessageID int64  `json:"message_id"`
	ReaderID  string `json:"reader_id"`
}

// UnifiedMessage 合併後顯示用的訊息
type UnifiedMessage struct {
	Source          Source    `json:"source"`
	ID              int64     `json:"id,omitempty"`
	LocalID         string    `json:"local_id,omitempty"`
	AuthorID        string    `json:"author_id"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
	ReplyToID       *int64    `json:"reply_to_id,omitempty"`
	InstructorsOnly bool      `json:"instructors_only,omitempty"`
	ReadBy          []string  `json:"read_by,omitempty"`
}

// IsStored has a stable id
func (m UnifiedMessage) IsStored() bool {
	return m.Source == SourceStored
}

// Viewer the user looking at a room through one connection
type Viewer struct {
	ConnectionID string
	ProfileID    string
	IsStaff      bool
}

// RoomUnreadInfo definition unread by room
type RoomUnreadInfo struct {
	RoomID              string    `bson:"_id" json:"room_id"`
	UnreadCount         int       `bson:"unread_count" json:"unread_count"`
	LastUnreadTimeStamp time.Time `bson:"last_unread_timestamp" json:"last_unread_timestamp"`
}
