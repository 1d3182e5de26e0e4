package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/domain"
	"dmchat/internal/store/sqlite"
	"dmchat/internal/testutil"
)

func seedConversation(t *testing.T, repo *sqlite.ConversationRepo, a, b int64) *domain.Conversation {
	t.Helper()
	lo, hi := domain.NormalizePair(a, b)
	c := &domain.Conversation{UserLoID: lo, UserHiID: hi}
	require.NoError(t, repo.Insert(context.Background(), c))
	return c
}

func seedMessage(t *testing.T, repo *sqlite.MessageRepo, conv *domain.Conversation, sender, receiver int64, content string, status domain.MessageStatus, at time.Time) *domain.Message {
	t.Helper()
	m := &domain.Message{
		ConversationID: conv.ID,
		SenderID:       sender,
		ReceiverID:     receiver,
		Content:        content,
		SentAt:         at,
		Status:         status,
	}
	require.NoError(t, repo.Create(context.Background(), m))
	return m
}

func TestConversationInsertRejectsDuplicatePair(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := sqlite.NewConversationRepo(db)
	ctx := context.Background()

	alice := testutil.SeedUser(t, db, "alice")
	bob := testutil.SeedUser(t, db, "bob")

	first := seedConversation(t, repo, alice, bob)
	require.NotZero(t, first.ID)

	lo, hi := domain.NormalizePair(bob, alice)
	dup := &domain.Conversation{UserLoID: lo, UserHiID: hi}
	assert.ErrorIs(t, repo.Insert(ctx, dup), domain.ErrConflict)

	found, err := repo.FindByPair(ctx, lo, hi)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)
}

func TestConversationFindByPairMissing(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := sqlite.NewConversationRepo(db)

	found, err := repo.FindByPair(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestSetDeleteFlagTargetsCallersColumn(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := sqlite.NewConversationRepo(db)
	ctx := context.Background()

	alice := testutil.SeedUser(t, db, "alice")
	bob := testutil.SeedUser(t, db, "bob")
	conv := seedConversation(t, repo, alice, bob)

	got, err := repo.SetDeleteFlag(ctx, conv.ID, alice, true)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.DeletedFor(alice))
	assert.False(t, got.DeletedFor(bob))
	assert.False(t, got.DeletedByBoth())

	// bob's write lands on his own column only; alice's flag survives even
	// though bob never saw it
	got, err = repo.SetDeleteFlag(ctx, conv.ID, bob, true)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.DeletedByBoth())

	// clearing is just as targeted
	got, err = repo.SetDeleteFlag(ctx, conv.ID, alice, false)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.DeletedFor(alice))
	assert.True(t, got.DeletedFor(bob))

	gone, err := repo.SetDeleteFlag(ctx, 9999, alice, true)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestConversationPurgeRemovesMessages(t *testing.T) {
	db := testutil.OpenDB(t)
	convs := sqlite.NewConversationRepo(db)
	msgs := sqlite.NewMessageRepo(db)
	ctx := context.Background()

	alice := testutil.SeedUser(t, db, "alice")
	bob := testutil.SeedUser(t, db, "bob")
	conv := seedConversation(t, convs, alice, bob)
	m := seedMessage(t, msgs, conv, alice, bob, "hi", domain.StatusSent, time.Now().UTC())

	require.NoError(t, convs.PurgeWithMessages(ctx, conv.ID))

	gone, err := convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	msgGone, err := msgs.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, msgGone)
}

func TestListPreviews(t *testing.T) {
	db := testutil.OpenDB(t)
	convs := sqlite.NewConversationRepo(db)
	msgs := sqlite.NewMessageRepo(db)
	ctx := context.Background()

	alice := testutil.SeedUser(t, db, "alice")
	bob := testutil.SeedUser(t, db, "bob")
	carol := testutil.SeedUser(t, db, "carol")
	dave := testutil.SeedUser(t, db, "dave")

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// bob: older last message, two unread for alice
	convAB := seedConversation(t, convs, alice, bob)
	seedMessage(t, msgs, convAB, bob, alice, "first", domain.StatusSeen, base)
	seedMessage(t, msgs, convAB, bob, alice, "second", domain.StatusSent, base.Add(time.Minute))
	seedMessage(t, msgs, convAB, bob, alice, "third", domain.StatusReceived, base.Add(2*time.Minute))

	// carol: most recent last message, already seen
	convAC := seedConversation(t, convs, alice, carol)
	seedMessage(t, msgs, convAC, carol, alice, "hello", domain.StatusSeen, base.Add(time.Hour))

	// dave: empty conversation, and deleted on alice's side
	convAD := seedConversation(t, convs, alice, dave)
	_, err := convs.SetDeleteFlag(ctx, convAD.ID, alice, true)
	require.NoError(t, err)

	previews, err := convs.ListPreviews(ctx, alice)
	require.NoError(t, err)
	require.Len(t, previews, 2)

	assert.Equal(t, convAC.ID, previews[0].ConversationID)
	assert.Equal(t, "carol", previews[0].PeerName)
	assert.Equal(t, 0, previews[0].UnreadCount)
	require.NotNil(t, previews[0].LastContent)
	assert.Equal(t, "hello", *previews[0].LastContent)

	assert.Equal(t, convAB.ID, previews[1].ConversationID)
	assert.Equal(t, "bob", previews[1].PeerName)
	assert.Equal(t, 2, previews[1].UnreadCount)
	require.NotNil(t, previews[1].LastContent)
	assert.Equal(t, "third", *previews[1].LastContent)
	require.NotNil(t, previews[1].LastStatus)
	assert.Equal(t, domain.StatusReceived.String(), *previews[1].LastStatus)

	// the deleted side is filtered, the surviving side still sees it
	davePreviews, err := convs.ListPreviews(ctx, dave)
	require.NoError(t, err)
	require.Len(t, davePreviews, 1)
	assert.Equal(t, convAD.ID, davePreviews[0].ConversationID)
	assert.Nil(t, davePreviews[0].LastContent)
}

func TestListForUserIncludesSoftDeleted(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := sqlite.NewConversationRepo(db)
	ctx := context.Background()

	alice := testutil.SeedUser(t, db, "alice")
	bob := testutil.SeedUser(t, db, "bob")
	carol := testutil.SeedUser(t, db, "carol")

	seedConversation(t, repo, alice, bob)
	convAC := seedConversation(t, repo, alice, carol)
	_, err := repo.SetDeleteFlag(ctx, convAC.ID, alice, true)
	require.NoError(t, err)
	seedConversation(t, repo, bob, carol)

	// soft-deleted rows stay visible here so callers can still resolve and
	// resurrect the pair; only previews filter on the flags
	list, err := repo.ListForUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, c := range list {
		assert.True(t, c.HasParticipant(alice))
	}
}
