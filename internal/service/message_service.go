package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dmchat/internal/cache"
	"dmchat/internal/delivery"
	"dmchat/internal/domain"
)

// DefaultMaxContentLength is the longest accepted message content, in runes,
// unless configured otherwise.
const DefaultMaxContentLength = 1000

// MessageService owns message persistence and the operations senders may
// perform on their own messages: send, edit, delete, status lookup, search.
type MessageService struct {
	conversations *ConversationService
	messages      domain.MessageRepository
	users         domain.UserRepository
	state         *delivery.StateMachine
	dispatcher    *delivery.Dispatcher
	presence      delivery.Presence
	lists         *cache.ConversationLists
	logger        *slog.Logger

	maxContentLength int
}

func NewMessageService(
	conversations *ConversationService,
	messages domain.MessageRepository,
	users domain.UserRepository,
	state *delivery.StateMachine,
	dispatcher *delivery.Dispatcher,
	presence delivery.Presence,
	lists *cache.ConversationLists,
	logger *slog.Logger,
	maxContentLength int,
) *MessageService {
	if maxContentLength <= 0 {
		maxContentLength = DefaultMaxContentLength
	}
	return &MessageService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		state:         state,
		dispatcher:    dispatcher,
		presence:      presence,
		lists:         lists,
		logger:        logger,

		maxContentLength: maxContentLength,
	}
}

// Send creates a message from sender to receiver, lazily creating the
// conversation. The message starts at Sent, or directly at Received when the
// receiver is online at creation time. Live notifications go out only after
// the insert committed; a failed push never fails the send.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID int64, content string) (*domain.Message, error) {
	if err := s.validateContent(content); err != nil {
		return nil, err
	}

	conv, err := s.conversations.GetOrCreate(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		SentAt:         time.Now().UTC(),
		Status:         s.state.InitialStatus(receiverID),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	s.lists.Invalidate(senderID)
	s.lists.Invalidate(receiverID)

	if s.presence.IsOnline(receiverID) {
		sender, err := s.users.GetByID(ctx, senderID)
		senderName := ""
		if err == nil && sender != nil {
			senderName = sender.Username
		}
		s.dispatcher.Notify(receiverID, delivery.EventReceiveMessage, delivery.MessagePayload{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			SenderName:     senderName,
			ReceiverID:     msg.ReceiverID,
			Content:        msg.Content,
			SentAt:         msg.SentAt,
			Status:         msg.Status.String(),
		})
		s.dispatcher.Notify(receiverID, delivery.EventNewMessageNotification, delivery.NewMessagePayload{
			SenderName: senderName,
			Content:    msg.Content,
		})
	}

	s.logger.Info("message sent",
		"message_id", msg.ID,
		"conversation_id", msg.ConversationID,
		"sender_id", senderID,
		"status", msg.Status.String(),
	)
	return msg, nil
}

// Edit replaces the content of the caller's own message and refreshes its
// sent_at. The delivery status is left untouched. The receiver is notified
// if online.
func (s *MessageService) Edit(ctx context.Context, messageID, callerID int64, newContent string) (*domain.Message, error) {
	if err := s.validateContent(newContent); err != nil {
		return nil, err
	}

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return nil, domain.ErrNotFound
	}
	if msg.SenderID != callerID {
		return nil, domain.ErrUnauthorized
	}

	msg.Content = newContent
	msg.SentAt = time.Now().UTC()
	if err := s.messages.UpdateContent(ctx, msg.ID, msg.Content, msg.SentAt); err != nil {
		return nil, err
	}

	s.lists.Invalidate(msg.SenderID)
	s.lists.Invalidate(msg.ReceiverID)

	if s.presence.IsOnline(msg.ReceiverID) {
		s.dispatcher.Notify(msg.ReceiverID, delivery.EventMessageEdited, delivery.EditedPayload{
			MessageID: msg.ID,
			Content:   msg.Content,
			SentAt:    msg.SentAt,
		})
	}
	return msg, nil
}

// Delete removes the caller's own message. The receiver is notified if
// online.
func (s *MessageService) Delete(ctx context.Context, messageID, callerID int64) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return domain.ErrNotFound
	}
	if msg.SenderID != callerID {
		return domain.ErrUnauthorized
	}

	if err := s.messages.Delete(ctx, msg.ID); err != nil {
		return err
	}

	s.lists.Invalidate(msg.SenderID)
	s.lists.Invalidate(msg.ReceiverID)

	if s.presence.IsOnline(msg.ReceiverID) {
		s.dispatcher.Notify(msg.ReceiverID, delivery.EventMessageDeleted, delivery.DeletedPayload{
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
		})
	}
	return nil
}

// DeliveryStatusResponse reports where a message sits in the delivery state
// machine, for the sender's status check.
type DeliveryStatusResponse struct {
	MessageID  int64  `json:"message_id"`
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Status     string `json:"status"`
}

// Status returns the delivery status of the caller's own message.
func (s *MessageService) Status(ctx context.Context, messageID, callerID int64) (*DeliveryStatusResponse, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return nil, domain.ErrNotFound
	}
	if msg.SenderID != callerID {
		return nil, domain.ErrUnauthorized
	}
	return &DeliveryStatusResponse{
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Status:     msg.Status.String(),
	}, nil
}

// Search returns the caller's messages whose content contains the query,
// newest first. Matching is case-insensitive. Messages of purged
// conversations are gone from storage and cannot appear.
func (s *MessageService) Search(ctx context.Context, userID int64, query string) ([]*MessageResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query is required", domain.ErrValidation)
	}
	msgs, err := s.messages.Search(ctx, userID, query)
	if err != nil {
		return nil, err
	}
	return toMessageResponses(msgs), nil
}

func (s *MessageService) validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: message content cannot be empty", domain.ErrValidation)
	}
	if len([]rune(content)) > s.maxContentLength {
		return fmt.Errorf("%w: message content exceeds %d characters", domain.ErrValidation, s.maxContentLength)
	}
	return nil
}

// MessageResponse mirrors the API representation of a message.
type MessageResponse struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	ReceiverID     int64     `json:"receiver_id"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sent_at"`
	Status         string    `json:"status"`
}

// ToMessageResponse converts a domain message to its API shape.
func ToMessageResponse(m *domain.Message) *MessageResponse {
	return &MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Content:        m.Content,
		SentAt:         m.SentAt,
		Status:         m.Status.String(),
	}
}

func toMessageResponses(msgs []*domain.Message) []*MessageResponse {
	res := make([]*MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		res = append(res, ToMessageResponse(m))
	}
	return res
}
