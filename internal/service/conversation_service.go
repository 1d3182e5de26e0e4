package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dmchat/internal/cache"
	"dmchat/internal/delivery"
	"dmchat/internal/domain"
)

// ConversationService owns conversation identity and lifecycle: pairwise
// uniqueness, soft delete per participant, and the hard-delete cascade once
// both sides have deleted.
type ConversationService struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	users         domain.UserRepository
	state         *delivery.StateMachine
	dispatcher    *delivery.Dispatcher
	presence      delivery.Presence
	lists         *cache.ConversationLists
	logger        *slog.Logger
}

func NewConversationService(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	users domain.UserRepository,
	state *delivery.StateMachine,
	dispatcher *delivery.Dispatcher,
	presence delivery.Presence,
	lists *cache.ConversationLists,
	logger *slog.Logger,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		state:         state,
		dispatcher:    dispatcher,
		presence:      presence,
		lists:         lists,
		logger:        logger,
	}
}

// GetOrCreate returns the live conversation for the pair, creating it when
// none exists. A leftover conversation that both sides soft-deleted is purged
// and replaced with a fresh one. Races between two first messages for the
// same pair are arbitrated by the unique index on the canonical pair: the
// loser's insert conflicts and the lookup is retried once.
func (s *ConversationService) GetOrCreate(ctx context.Context, senderID, receiverID int64) (*domain.Conversation, error) {
	if senderID == receiverID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", domain.ErrValidation)
	}
	exists, err := s.users.Exists(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("check receiver: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: receiver does not exist", domain.ErrNotFound)
	}

	lo, hi := domain.NormalizePair(senderID, receiverID)

	conv, err := s.conversations.FindByPair(ctx, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if conv != nil && conv.DeletedByBoth() {
		// Both sides deleted but the purge never ran; finish it now and
		// start over with a fresh conversation.
		if err := s.conversations.PurgeWithMessages(ctx, conv.ID); err != nil {
			return nil, fmt.Errorf("purge stale conversation: %w", err)
		}
		conv = nil
	}
	if conv != nil && conv.DeletedFor(senderID) {
		// Sending into a conversation the sender deleted earlier
		// resurrects their view of it; otherwise their own new message
		// would never show up in their list.
		conv, err = s.conversations.SetDeleteFlag(ctx, conv.ID, senderID, false)
		if err != nil {
			return nil, fmt.Errorf("restore conversation: %w", err)
		}
	}
	if conv != nil {
		return conv, nil
	}

	conv = &domain.Conversation{UserLoID: lo, UserHiID: hi}
	err = s.conversations.Insert(ctx, conv)
	if errors.Is(err, domain.ErrConflict) {
		// Lost the creation race; the winner's row is the conversation.
		conv, err = s.conversations.FindByPair(ctx, lo, hi)
		if err != nil {
			return nil, fmt.Errorf("find after conflict: %w", err)
		}
		if conv == nil {
			return nil, fmt.Errorf("conversation vanished after conflict: %w", domain.ErrInternal)
		}
		return conv, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("conversation created", "conversation_id", conv.ID, "user_lo", lo, "user_hi", hi)
	return conv, nil
}

// OpenConversationResponse is the full view returned when a user opens a
// conversation.
type OpenConversationResponse struct {
	ConversationID int64              `json:"conversation_id"`
	PeerID         int64              `json:"peer_id"`
	PeerName       string             `json:"peer_name"`
	PeerAvatarURL  *string            `json:"peer_avatar_url,omitempty"`
	Messages       []*MessageResponse `json:"messages"`
}

// Open returns the conversation's message history for a participant and
// marks every message addressed to them as seen. Missing conversations,
// non-participants, and callers who soft-deleted the conversation all get
// ErrNotFound.
func (s *ConversationService) Open(ctx context.Context, conversationID, userID int64) (*OpenConversationResponse, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil || !conv.HasParticipant(userID) || conv.DeletedFor(userID) {
		return nil, domain.ErrNotFound
	}

	if err := s.state.MarkConversationSeen(ctx, conv, userID); err != nil {
		return nil, fmt.Errorf("mark seen: %w", err)
	}

	peerID := conv.PeerOf(userID)
	peer, err := s.users.GetByID(ctx, peerID)
	if err != nil {
		return nil, fmt.Errorf("get peer: %w", err)
	}
	if peer == nil {
		return nil, domain.ErrNotFound
	}

	msgs, err := s.messages.ListForConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	resp := &OpenConversationResponse{
		ConversationID: conv.ID,
		PeerID:         peer.ID,
		PeerName:       peer.Username,
		PeerAvatarURL:  peer.AvatarURL,
		Messages:       toMessageResponses(msgs),
	}
	return resp, nil
}

// List returns the user's rendered conversation list through the TTL cache.
func (s *ConversationService) List(ctx context.Context, userID int64) ([]*domain.ConversationPreview, error) {
	if previews, ok := s.lists.Get(userID); ok {
		return previews, nil
	}
	previews, err := s.conversations.ListPreviews(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list previews: %w", err)
	}
	s.lists.Set(userID, previews)
	return previews, nil
}

// Delete sets the caller's soft-delete flag. Once both participants have
// deleted, the conversation and its messages are purged in one transaction
// and the peer is told ConversationFullyDeleted; otherwise the peer is told
// ConversationDeletedByOther. Either way the peer is only notified if online.
func (s *ConversationService) Delete(ctx context.Context, conversationID, userID int64) error {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil || !conv.HasParticipant(userID) {
		return domain.ErrNotFound
	}

	// The flag write is column-targeted so two participants deleting at the
	// same time both land; the returned row decides whether this delete was
	// the second one.
	conv, err = s.conversations.SetDeleteFlag(ctx, conversationID, userID, true)
	if err != nil {
		return err
	}
	if conv == nil {
		// The peer's concurrent delete already purged it.
		return nil
	}

	peerID := conv.PeerOf(userID)
	event := EventForDelete(conv)
	if conv.DeletedByBoth() {
		if err := s.conversations.PurgeWithMessages(ctx, conv.ID); err != nil {
			return fmt.Errorf("purge conversation: %w", err)
		}
		s.logger.Info("conversation purged", "conversation_id", conv.ID)
	}

	s.lists.Invalidate(userID)
	s.lists.Invalidate(peerID)

	if s.presence.IsOnline(peerID) {
		s.dispatcher.Notify(peerID, event, delivery.ConversationPayload{ConversationID: conv.ID})
	}
	return nil
}

// EventForDelete picks the event the peer should see for a delete that just
// set one of the flags on conv.
func EventForDelete(conv *domain.Conversation) string {
	if conv.DeletedByBoth() {
		return delivery.EventConversationFullyDeleted
	}
	return delivery.EventConversationDeletedByOther
}
