package delivery

import "time"

// Event names pushed to clients. The catalog is fixed and versionless; an
// unknown name passed to Notify is a programming error.
const (
	EventReceiveMessage             = "ReceiveMessage"
	EventNewMessageNotification     = "NewMessageNotification"
	EventMessageEdited              = "MessageEdited"
	EventMessageDeleted             = "MessageDeleted"
	EventMessagesSeen               = "MessagesSeen"
	EventMessageSeen                = "MessageSeen"
	EventMessagesReceived           = "MessagesReceived"
	EventConversationDeletedByOther = "ConversationDeletedByOther"
	EventConversationFullyDeleted   = "ConversationFullyDeleted"
	EventUserStatusChanged          = "UserStatusChanged"
)

// MessagePayload accompanies ReceiveMessage.
type MessagePayload struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	ReceiverID     int64     `json:"receiver_id"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sent_at"`
	Status         string    `json:"status"`
}

// NewMessagePayload accompanies NewMessageNotification.
type NewMessagePayload struct {
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
}

// EditedPayload accompanies MessageEdited.
type EditedPayload struct {
	MessageID int64     `json:"message_id"`
	Content   string    `json:"content"`
	SentAt    time.Time `json:"sent_at"`
}

// DeletedPayload accompanies MessageDeleted.
type DeletedPayload struct {
	MessageID      int64 `json:"message_id"`
	ConversationID int64 `json:"conversation_id"`
}

// BatchIDsPayload accompanies MessagesReceived and MessagesSeen.
type BatchIDsPayload struct {
	MessageIDs []int64 `json:"message_ids"`
}

// SingleIDPayload accompanies MessageSeen.
type SingleIDPayload struct {
	MessageID int64 `json:"message_id"`
}

// ConversationPayload accompanies ConversationDeletedByOther and
// ConversationFullyDeleted.
type ConversationPayload struct {
	ConversationID int64 `json:"conversation_id"`
}

// StatusPayload accompanies UserStatusChanged.
type StatusPayload struct {
	UserID int64 `json:"user_id"`
	Online bool  `json:"online"`
}
