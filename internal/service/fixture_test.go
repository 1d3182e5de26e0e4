package service_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dmchat/internal/cache"
	"dmchat/internal/delivery"
	"dmchat/internal/domain"
	"dmchat/internal/presence"
	"dmchat/internal/service"
	"dmchat/internal/store/sqlite"
	"dmchat/internal/testutil"
)

// recorder implements delivery.Transport and captures every frame sent.
type recorder struct {
	mu     sync.Mutex
	frames []frame
}

type frame struct {
	connID  string
	event   string
	payload any
}

func (r *recorder) SendToConnection(connID string, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame{connID: connID, event: event, payload: payload})
	return nil
}

func (r *recorder) sent() []frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]frame(nil), r.frames...)
}

func (r *recorder) eventsFor(connID string) []string {
	var res []string
	for _, f := range r.sent() {
		if f.connID == connID {
			res = append(res, f.event)
		}
	}
	return res
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}

// fixture wires the full service stack over an in-memory database with a
// recording transport, so tests can drive real flows end to end.
type fixture struct {
	db       *sql.DB
	users    *sqlite.UserRepo
	convRepo *sqlite.ConversationRepo
	msgRepo  *sqlite.MessageRepo
	registry *presence.Registry
	rec      *recorder
	state    *delivery.StateMachine
	lists    *cache.ConversationLists
	convs    *service.ConversationService
	msgs     *service.MessageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.OpenDB(t)
	logger := testutil.Logger()

	f := &fixture{
		db:       db,
		users:    sqlite.NewUserRepo(db),
		convRepo: sqlite.NewConversationRepo(db),
		msgRepo:  sqlite.NewMessageRepo(db),
		rec:      &recorder{},
	}
	f.registry = presence.NewRegistry(f.users, logger)
	dispatcher := delivery.NewDispatcher(f.registry, f.rec, logger)
	f.lists = cache.NewConversationLists(time.Minute)
	t.Cleanup(f.lists.Close)
	f.state = delivery.NewStateMachine(f.msgRepo, f.registry, dispatcher, f.lists, logger)

	f.convs = service.NewConversationService(
		f.convRepo, f.msgRepo, f.users, f.state, dispatcher, f.registry, f.lists, logger)
	f.msgs = service.NewMessageService(
		f.convs, f.msgRepo, f.users, f.state, dispatcher, f.registry, f.lists, logger, 0)
	return f
}

func (f *fixture) seedUser(t *testing.T, username string) int64 {
	return testutil.SeedUser(t, f.db, username)
}

func (f *fixture) messageStatus(t *testing.T, id int64) domain.MessageStatus {
	t.Helper()
	m, err := f.msgRepo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m.Status
}
