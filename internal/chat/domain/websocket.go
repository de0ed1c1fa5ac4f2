package domain

// Action websocket request action
type Action string

const (
	// EnterRoom websocket action enter_room
	EnterRoom Action = "enter_room"
	// LeaveRoom websocket action leave_room
	LeaveRoom Action = "leave_room"

	// SendMessage websocket action send_message
	SendMessage Action = "send_message"
	// ReadMessage websocket action read_message, explicit mark as read
	ReadMessage Action = "read_message"

	// MessageVisible websocket action message_visible
	MessageVisible Action = "message_visible"
	// MessageHidden websocket action message_hidden
	MessageHidden Action = "message_hidden"

	// Refetch websocket action refetch
	Refetch Action = "refetch"

	// GetUnread websocket action get_unread
	GetUnread Action = "get_unread"

	// Timeline pushed to client on every timeline change
	Timeline Action = "timeline"
)

// WSRequest websocket Request
type WSRequest struct {
	Action          string  `json:"action"`
	RoomID          string  `json:"room_id"`
	Content         string  `json:"content"`
	MessageID       int64   `json:"message_id"`
	ReplyToID       *int64  `json:"reply_to_id"`
	AuthorID        string  `json:"author_id"`
	Ratio           float64 `json:"ratio"`
	InstructorsOnly bool    `json:"instructors_only"`
}

// WSResponse websocket Response
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// EnvelopeType redis pub/sub payload type
type EnvelopeType string

const (
	// EnvelopeMessage carries a BroadcastEvent
	EnvelopeMessage EnvelopeType = "message"
	// EnvelopeReadReceipt carries a ReadReceipt
	EnvelopeReadReceipt EnvelopeType = "read_receipt"
	// EnvelopeRefresh stored messages changed, subscribers should refetch
	EnvelopeRefresh EnvelopeType = "refresh"
)

// Envelope redis pub/sub payload
type Envelope struct {
	Type    EnvelopeType    `json:"type"`
	Message *BroadcastEvent `json:"message,omitempty"`
	Receipt *ReadReceipt    `json:"receipt,omitempty"`
	RoomID  string          `json:"room_id"`
}
