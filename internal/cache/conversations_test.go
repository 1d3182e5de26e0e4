package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"dmchat/internal/cache"
	"dmchat/internal/domain"
)

func previews(ids ...int64) []*domain.ConversationPreview {
	res := make([]*domain.ConversationPreview, 0, len(ids))
	for _, id := range ids {
		res = append(res, &domain.ConversationPreview{ConversationID: id})
	}
	return res
}

func TestGetAfterSet(t *testing.T) {
	c := cache.NewConversationLists(time.Minute)
	defer c.Close()

	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Set(1, previews(10, 11))
	got, ok := c.Get(1)
	assert.True(t, ok)
	assert.Len(t, got, 2)

	// other users are unaffected
	_, ok = c.Get(2)
	assert.False(t, ok)
}

func TestEntryExpires(t *testing.T) {
	c := cache.NewConversationLists(20 * time.Millisecond)
	defer c.Close()

	c.Set(1, previews(10))
	_, ok := c.Get(1)
	assert.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = c.Get(1)
	assert.False(t, ok)
}

func TestInvalidateEvictsOnlyThatUser(t *testing.T) {
	c := cache.NewConversationLists(time.Minute)
	defer c.Close()

	c.Set(1, previews(10))
	c.Set(2, previews(20))

	c.Invalidate(1)

	_, ok := c.Get(1)
	assert.False(t, ok)
	_, ok = c.Get(2)
	assert.True(t, ok)

	// invalidating an absent key is a no-op
	c.Invalidate(42)
}

func TestLastWriterWins(t *testing.T) {
	c := cache.NewConversationLists(time.Minute)
	defer c.Close()

	c.Set(1, previews(10))
	c.Set(1, previews(20, 21))

	got, ok := c.Get(1)
	assert.True(t, ok)
	assert.Len(t, got, 2)
	assert.Equal(t, int64(20), got[0].ConversationID)
}
