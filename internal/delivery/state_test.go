package delivery_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/cache"
	"dmchat/internal/delivery"
	"dmchat/internal/domain"
	"dmchat/internal/presence"
	"dmchat/internal/store/sqlite"
	"dmchat/internal/testutil"
)

type stateFixture struct {
	db       *sql.DB
	messages *sqlite.MessageRepo
	convs    *sqlite.ConversationRepo
	registry *presence.Registry
	rec      *recorder
	state    *delivery.StateMachine
}

func newStateFixture(t *testing.T) *stateFixture {
	db := testutil.OpenDB(t)
	logger := testutil.Logger()

	f := &stateFixture{
		db:       db,
		messages: sqlite.NewMessageRepo(db),
		convs:    sqlite.NewConversationRepo(db),
		registry: presence.NewRegistry(sqlite.NewUserRepo(db), logger),
		rec:      newRecorder(),
	}
	dispatcher := delivery.NewDispatcher(f.registry, f.rec, logger)
	lists := cache.NewConversationLists(time.Minute)
	t.Cleanup(lists.Close)
	f.state = delivery.NewStateMachine(f.messages, f.registry, dispatcher, lists, logger)
	return f
}

func (f *stateFixture) seedConversation(t *testing.T, a, b int64) *domain.Conversation {
	t.Helper()
	lo, hi := domain.NormalizePair(a, b)
	conv := &domain.Conversation{UserLoID: lo, UserHiID: hi}
	require.NoError(t, f.convs.Insert(context.Background(), conv))
	return conv
}

func (f *stateFixture) seedMessage(t *testing.T, conv *domain.Conversation, sender, receiver int64, content string, status domain.MessageStatus) *domain.Message {
	t.Helper()
	m := &domain.Message{
		ConversationID: conv.ID,
		SenderID:       sender,
		ReceiverID:     receiver,
		Content:        content,
		Status:         status,
	}
	require.NoError(t, f.messages.Create(context.Background(), m))
	return m
}

func (f *stateFixture) status(t *testing.T, id int64) domain.MessageStatus {
	t.Helper()
	m, err := f.messages.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m.Status
}

func TestInitialStatusDependsOnReceiverPresence(t *testing.T) {
	f := newStateFixture(t)

	assert.Equal(t, domain.StatusSent, f.state.InitialStatus(2))

	f.registry.Connect(2, "conn")
	assert.Equal(t, domain.StatusReceived, f.state.InitialStatus(2))
}

func TestCatchUpDeliversAllPendingAndBatchesPerSender(t *testing.T) {
	f := newStateFixture(t)
	ctx := context.Background()

	alice := testutil.SeedUser(t, f.db, "alice")
	bob := testutil.SeedUser(t, f.db, "bob")
	carol := testutil.SeedUser(t, f.db, "carol")

	convAB := f.seedConversation(t, alice, bob)
	convCB := f.seedConversation(t, carol, bob)

	m1 := f.seedMessage(t, convAB, alice, bob, "hi", domain.StatusSent)
	m2 := f.seedMessage(t, convAB, alice, bob, "there", domain.StatusSent)
	m3 := f.seedMessage(t, convCB, carol, bob, "yo", domain.StatusSent)
	already := f.seedMessage(t, convAB, alice, bob, "old", domain.StatusSeen)

	// alice online, carol offline
	f.registry.Connect(alice, "alice-conn")

	require.NoError(t, f.state.CatchUp(ctx, bob))

	assert.Equal(t, domain.StatusReceived, f.status(t, m1.ID))
	assert.Equal(t, domain.StatusReceived, f.status(t, m2.ID))
	assert.Equal(t, domain.StatusReceived, f.status(t, m3.ID))
	assert.Equal(t, domain.StatusSeen, f.status(t, already.ID)) // never regresses

	// alice got exactly one batched notification covering both of her ids
	frames := f.rec.sent()
	require.Len(t, frames, 1)
	assert.Equal(t, "alice-conn", frames[0].connID)
	assert.Equal(t, delivery.EventMessagesReceived, frames[0].event)
	payload, ok := frames[0].payload.(delivery.BatchIDsPayload)
	require.True(t, ok)
	assert.ElementsMatch(t, []int64{m1.ID, m2.ID}, payload.MessageIDs)
}

func TestCatchUpWithNothingPendingIsQuiet(t *testing.T) {
	f := newStateFixture(t)
	require.NoError(t, f.state.CatchUp(context.Background(), 42))
	assert.Empty(t, f.rec.sent())
}

func TestMarkConversationSeenSubsumesReceived(t *testing.T) {
	f := newStateFixture(t)
	ctx := context.Background()

	alice := testutil.SeedUser(t, f.db, "alice")
	bob := testutil.SeedUser(t, f.db, "bob")
	conv := f.seedConversation(t, alice, bob)

	// one message skipped the Received state entirely
	skipped := f.seedMessage(t, conv, alice, bob, "offline send", domain.StatusSent)
	received := f.seedMessage(t, conv, alice, bob, "online send", domain.StatusReceived)
	ownMsg := f.seedMessage(t, conv, bob, alice, "mine", domain.StatusSent)

	f.registry.Connect(alice, "alice-conn")

	require.NoError(t, f.state.MarkConversationSeen(ctx, conv, bob))

	assert.Equal(t, domain.StatusSeen, f.status(t, skipped.ID))
	assert.Equal(t, domain.StatusSeen, f.status(t, received.ID))
	// messages bob sent himself are untouched
	assert.Equal(t, domain.StatusSent, f.status(t, ownMsg.ID))

	frames := f.rec.sent()
	require.Len(t, frames, 1)
	assert.Equal(t, delivery.EventMessagesSeen, frames[0].event)
	payload := frames[0].payload.(delivery.BatchIDsPayload)
	assert.ElementsMatch(t, []int64{skipped.ID, received.ID}, payload.MessageIDs)

	// opening again is a no-op with no further notifications
	require.NoError(t, f.state.MarkConversationSeen(ctx, conv, bob))
	assert.Len(t, f.rec.sent(), 1)
}

func TestMarkMessageSeenValidatesReceiver(t *testing.T) {
	f := newStateFixture(t)
	ctx := context.Background()

	alice := testutil.SeedUser(t, f.db, "alice")
	bob := testutil.SeedUser(t, f.db, "bob")
	mallory := testutil.SeedUser(t, f.db, "mallory")
	conv := f.seedConversation(t, alice, bob)
	msg := f.seedMessage(t, conv, alice, bob, "hi", domain.StatusReceived)

	f.registry.Connect(alice, "alice-conn")

	// neither the sender nor a third party may mark it
	assert.ErrorIs(t, f.state.MarkMessageSeen(ctx, msg.ID, alice), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.state.MarkMessageSeen(ctx, msg.ID, mallory), domain.ErrUnauthorized)
	assert.Equal(t, domain.StatusReceived, f.status(t, msg.ID))

	require.NoError(t, f.state.MarkMessageSeen(ctx, msg.ID, bob))
	assert.Equal(t, domain.StatusSeen, f.status(t, msg.ID))

	frames := f.rec.sent()
	require.Len(t, frames, 1)
	assert.Equal(t, delivery.EventMessageSeen, frames[0].event)

	// repeating is a silent no-op
	require.NoError(t, f.state.MarkMessageSeen(ctx, msg.ID, bob))
	assert.Len(t, f.rec.sent(), 1)

	assert.ErrorIs(t, f.state.MarkMessageSeen(ctx, 9999, bob), domain.ErrNotFound)
}
