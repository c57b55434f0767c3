package hub

import "time"

// MessageKind discriminates persisted message rows (§3 Message).
type MessageKind string

const (
	KindRoom   MessageKind = "Room"
	KindDirect MessageKind = "Direct"
	KindSystem MessageKind = "System"
)

// MessageStatus is the lifecycle status of a persisted message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "Sent"
	StatusDelivered MessageStatus = "Delivered"
	StatusRead      MessageStatus = "Read"
	StatusEdited    MessageStatus = "Edited"
	StatusDeleted   MessageStatus = "Deleted"
)

// Message is the persisted shape described in §3.
type Message struct {
	ID              string            `json:"id"`
	Kind            MessageKind       `json:"kind"`
	AuthorID        int64             `json:"author_id"`
	AuthorUsername  string            `json:"author_username"`
	RoomID          string            `json:"room_id,omitempty"`
	RecipientID     int64             `json:"recipient_id,omitempty"`
	Content         string            `json:"content"`
	OriginalContent string            `json:"original_content,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       *time.Time        `json:"updated_at,omitempty"`
	Status          MessageStatus     `json:"status"`
	Pinned          bool              `json:"pinned"`
	ParentID        string            `json:"parent_id,omitempty"`
	ThreadCount     int               `json:"thread_count"`
	Mentions        []int64           `json:"mentions,omitempty"`
	Reactions       map[string][]int64 `json:"reactions,omitempty"`
}

// --- Inbound wire schema (§4.H, §6) ---

// InboundEnvelope is decoded first to read the discriminant type field;
// Data is re-decoded into the concrete payload once Type is known.
type InboundEnvelope struct {
	Type string          `json:"type"`
	Data InboundPayload  `json:"data"`
}

// InboundPayload is a union of every inbound payload shape. Only the
// fields relevant to Type are populated by the client; unused fields
// are simply absent from the JSON.
type InboundPayload struct {
	Room    string `json:"room"`
	Content string `json:"content"`
	ToUser  int64  `json:"to_user_id"`
	Limit   int    `json:"limit"`
	With    int64  `json:"with"`
}

// --- Outbound wire schema ---

// OutboundEnvelope is the uniform shape every server->client frame
// takes: {"type": ..., "data": ...}.
type OutboundEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type JoinAck struct {
	Room   string `json:"room"`
	Status string `json:"status"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type NewMessagePayload struct {
	Room           string `json:"room,omitempty"`
	AuthorID       int64  `json:"author_id"`
	AuthorUsername string `json:"author_username"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"created_at"`
}

type HistoryPayload struct {
	Room     string     `json:"room,omitempty"`
	With     int64      `json:"with,omitempty"`
	Messages []*Message `json:"messages"`
}
