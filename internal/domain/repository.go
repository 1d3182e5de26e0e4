package domain

import (
	"context"
	"time"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Exists(ctx context.Context, id int64) (bool, error)
	ListActive(ctx context.Context, offset, limit int) ([]*User, error)
	TouchLastSeen(ctx context.Context, id int64) error
}

// ConversationRepository defines persistence operations for conversations.
type ConversationRepository interface {
	// Insert persists a new conversation. It returns ErrConflict if a live
	// conversation for the same pair already exists.
	Insert(ctx context.Context, c *Conversation) error
	GetByID(ctx context.Context, id int64) (*Conversation, error)
	// FindByPair looks up the conversation for a canonical (lo, hi) pair.
	// Returns (nil, nil) when none exists.
	FindByPair(ctx context.Context, lo, hi int64) (*Conversation, error)
	// SetDeleteFlag sets or clears userID's delete flag. The write targets
	// only the caller's own column, so the two participants flagging
	// concurrently never overwrite each other. Returns the row as it stands
	// after the update, or (nil, nil) when the conversation is gone.
	SetDeleteFlag(ctx context.Context, id, userID int64, deleted bool) (*Conversation, error)
	// PurgeWithMessages removes the conversation and all of its messages in
	// a single transaction.
	PurgeWithMessages(ctx context.Context, id int64) error
	// ListForUser returns every conversation the user participates in,
	// including ones they soft-deleted themselves.
	ListForUser(ctx context.Context, userID int64) ([]*Conversation, error)
	// ListPreviews returns the rendered conversation list for the user:
	// conversations not soft-deleted by them, joined with peer display data,
	// last message, and unread count, ordered by last message time
	// descending with conversation id ascending as tie-break.
	ListPreviews(ctx context.Context, userID int64) ([]*ConversationPreview, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	// ListForConversation returns messages ordered by sent_at ascending,
	// id ascending for equal timestamps.
	ListForConversation(ctx context.Context, conversationID int64) ([]*Message, error)
	UpdateContent(ctx context.Context, id int64, content string, sentAt time.Time) error
	Delete(ctx context.Context, id int64) error
	// ListUndeliveredTo returns all messages addressed to the receiver that
	// are still in Sent status, across conversations.
	ListUndeliveredTo(ctx context.Context, receiverID int64) ([]*Message, error)
	// ListUnseenIn returns messages in the conversation addressed to the
	// receiver that have not reached Seen.
	ListUnseenIn(ctx context.Context, conversationID, receiverID int64) ([]*Message, error)
	// AdvanceStatus raises the message status to target if and only if the
	// current status is lower (compare-and-set). Returns whether a row
	// changed; a no-op on an equal or higher status is not an error.
	AdvanceStatus(ctx context.Context, id int64, target MessageStatus) (bool, error)
	// AdvanceStatusBatch applies the same compare-and-set to many messages.
	AdvanceStatusBatch(ctx context.Context, ids []int64, target MessageStatus) error
	// Search returns messages where the user is sender or receiver and the
	// content contains the query (case-insensitive), newest first.
	Search(ctx context.Context, userID int64, query string) ([]*Message, error)
}
