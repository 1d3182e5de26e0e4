package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"dmchat/internal/domain"
)

// ListCache invalidates a user's cached conversation list. Status transitions
// change unread counts and preview status, so they must evict before clients
// can re-read.
type ListCache interface {
	Invalidate(userID int64)
}

// StateMachine applies delivery-state transitions to messages and emits the
// corresponding notifications. All transitions go through the repository's
// compare-and-set, so concurrent handlers can race freely without ever
// regressing a status.
type StateMachine struct {
	messages   domain.MessageRepository
	presence   Presence
	dispatcher *Dispatcher
	cache      ListCache
	logger     *slog.Logger
}

func NewStateMachine(
	messages domain.MessageRepository,
	presence Presence,
	dispatcher *Dispatcher,
	cache ListCache,
	logger *slog.Logger,
) *StateMachine {
	return &StateMachine{
		messages:   messages,
		presence:   presence,
		dispatcher: dispatcher,
		cache:      cache,
		logger:     logger,
	}
}

// InitialStatus decides the status of a freshly sent message: Received if the
// receiver is online at creation time, Sent otherwise. This saves the
// round trip of a separate delivery acknowledgment for online receivers.
func (sm *StateMachine) InitialStatus(receiverID int64) domain.MessageStatus {
	if sm.presence.IsOnline(receiverID) {
		return domain.StatusReceived
	}
	return domain.StatusSent
}

// CatchUp runs when a user transitions offline -> online: every message still
// addressed to them in Sent status becomes Received, and each distinct sender
// that is currently online gets one batched MessagesReceived notification
// covering all of their affected message ids.
func (sm *StateMachine) CatchUp(ctx context.Context, userID int64) error {
	pending, err := sm.messages.ListUndeliveredTo(ctx, userID)
	if err != nil {
		return fmt.Errorf("list undelivered: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	ids := make([]int64, len(pending))
	bySender := make(map[int64][]int64)
	for i, m := range pending {
		ids[i] = m.ID
		bySender[m.SenderID] = append(bySender[m.SenderID], m.ID)
	}

	if err := sm.messages.AdvanceStatusBatch(ctx, ids, domain.StatusReceived); err != nil {
		return fmt.Errorf("advance to received: %w", err)
	}
	sm.cache.Invalidate(userID)

	for senderID, senderIDs := range bySender {
		sm.cache.Invalidate(senderID)
		if sm.presence.IsOnline(senderID) {
			sm.dispatcher.Notify(senderID, EventMessagesReceived, BatchIDsPayload{MessageIDs: senderIDs})
		}
	}

	sm.logger.Info("catch-up delivered", "user_id", userID, "count", len(ids))
	return nil
}

// MarkConversationSeen runs when a user opens a conversation: every message
// addressed to them not yet at Seen is raised straight to Seen. Seen subsumes
// Received, so messages that never went through an online-delivery path skip
// the intermediate state. The peer gets one batched MessagesSeen if online.
func (sm *StateMachine) MarkConversationSeen(ctx context.Context, conv *domain.Conversation, userID int64) error {
	unseen, err := sm.messages.ListUnseenIn(ctx, conv.ID, userID)
	if err != nil {
		return fmt.Errorf("list unseen: %w", err)
	}
	if len(unseen) == 0 {
		return nil
	}

	ids := make([]int64, len(unseen))
	for i, m := range unseen {
		ids[i] = m.ID
	}
	if err := sm.messages.AdvanceStatusBatch(ctx, ids, domain.StatusSeen); err != nil {
		return fmt.Errorf("advance to seen: %w", err)
	}
	sm.cache.Invalidate(userID)

	peerID := conv.PeerOf(userID)
	sm.cache.Invalidate(peerID)
	if sm.presence.IsOnline(peerID) {
		sm.dispatcher.Notify(peerID, EventMessagesSeen, BatchIDsPayload{MessageIDs: ids})
	}
	return nil
}

// MarkMessageSeen raises a single message to Seen on behalf of its receiver.
// Callers that are not the intended receiver get ErrUnauthorized and nothing
// is mutated. A message already at Seen is a silent no-op.
func (sm *StateMachine) MarkMessageSeen(ctx context.Context, messageID, callerID int64) error {
	msg, err := sm.messages.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return domain.ErrNotFound
	}
	if msg.ReceiverID != callerID {
		return domain.ErrUnauthorized
	}

	changed, err := sm.messages.AdvanceStatus(ctx, messageID, domain.StatusSeen)
	if err != nil {
		return fmt.Errorf("advance to seen: %w", err)
	}
	if !changed {
		return nil
	}
	sm.cache.Invalidate(callerID)
	sm.cache.Invalidate(msg.SenderID)

	if sm.presence.IsOnline(msg.SenderID) {
		sm.dispatcher.Notify(msg.SenderID, EventMessageSeen, SingleIDPayload{MessageID: messageID})
	}
	return nil
}
