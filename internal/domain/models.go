package domain

import "time"

// MessageStatus is the delivery state of a message. States only ever move
// forward: Sent -> Received -> Seen.
type MessageStatus int

const (
	StatusSent MessageStatus = iota
	StatusReceived
	StatusSeen
)

func (s MessageStatus) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusReceived:
		return "received"
	case StatusSeen:
		return "seen"
	}
	return "unknown"
}

// User represents an application user.
type User struct {
	ID             int64     `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	AvatarURL      *string   `db:"avatar_url" json:"avatar_url,omitempty"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	LastSeen       time.Time `db:"last_seen" json:"last_seen"`
}

// Conversation is a direct conversation between exactly two users.
// UserLoID < UserHiID always holds; the pair is stored in canonical order so
// a single unique index covers both call orders.
type Conversation struct {
	ID           int64     `db:"id"`
	UserLoID     int64     `db:"user_lo_id"`
	UserHiID     int64     `db:"user_hi_id"`
	CreatedAt    time.Time `db:"created_at"`
	DeletedForLo bool      `db:"deleted_for_lo"`
	DeletedForHi bool      `db:"deleted_for_hi"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID int64) bool {
	return c.UserLoID == userID || c.UserHiID == userID
}

// PeerOf returns the other participant. Callers must have checked
// HasParticipant first.
func (c *Conversation) PeerOf(userID int64) int64 {
	if c.UserLoID == userID {
		return c.UserHiID
	}
	return c.UserLoID
}

// DeletedFor reports whether userID has soft-deleted the conversation.
func (c *Conversation) DeletedFor(userID int64) bool {
	if c.UserLoID == userID {
		return c.DeletedForLo
	}
	return c.DeletedForHi
}

// DeletedByBoth reports whether both participants have soft-deleted the
// conversation, which makes it eligible for the hard-delete cascade.
func (c *Conversation) DeletedByBoth() bool {
	return c.DeletedForLo && c.DeletedForHi
}

// NormalizePair returns the two user ids in canonical (lo, hi) order.
func NormalizePair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

// Message represents a single chat message.
type Message struct {
	ID             int64         `db:"id"`
	ConversationID int64         `db:"conversation_id"`
	SenderID       int64         `db:"sender_id"`
	ReceiverID     int64         `db:"receiver_id"`
	Content        string        `db:"content"`
	SentAt         time.Time     `db:"sent_at"`
	Status         MessageStatus `db:"status"`
}

// ConversationPreview is the rendered per-user view of a conversation used by
// the conversation list: peer display data plus last message and unread count.
type ConversationPreview struct {
	ConversationID int64      `json:"conversation_id"`
	PeerID         int64      `json:"peer_id"`
	PeerName       string     `json:"peer_name"`
	PeerAvatarURL  *string    `json:"peer_avatar_url,omitempty"`
	LastContent    *string    `json:"last_content,omitempty"`
	LastSentAt     *time.Time `json:"last_sent_at,omitempty"`
	LastStatus     *string    `json:"last_status,omitempty"`
	UnreadCount    int        `json:"unread_count"`
}
