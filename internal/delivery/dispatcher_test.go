package delivery_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"dmchat/internal/delivery"
	"dmchat/internal/presence"
	"dmchat/internal/testutil"
)

// recorder implements delivery.Transport and captures every frame.
type recorder struct {
	mu     sync.Mutex
	frames []frame
	fail   map[string]error
}

type frame struct {
	connID  string
	event   string
	payload any
}

func newRecorder() *recorder {
	return &recorder{fail: make(map[string]error)}
}

func (r *recorder) SendToConnection(connID string, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.fail[connID]; ok {
		return err
	}
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

func TestNotifyFansOutToAllConnections(t *testing.T) {
	reg := presence.NewRegistry(nil, testutil.Logger())
	rec := newRecorder()
	d := delivery.NewDispatcher(reg, rec, testutil.Logger())

	reg.Connect(1, "phone")
	reg.Connect(1, "laptop")

	d.Notify(1, delivery.EventMessageSeen, delivery.SingleIDPayload{MessageID: 42})

	assert.Len(t, rec.sent(), 2)
	assert.Equal(t, []string{delivery.EventMessageSeen}, rec.eventsFor("phone"))
	assert.Equal(t, []string{delivery.EventMessageSeen}, rec.eventsFor("laptop"))
}

func TestNotifyOfflineUserIsDroppedSilently(t *testing.T) {
	reg := presence.NewRegistry(nil, testutil.Logger())
	rec := newRecorder()
	d := delivery.NewDispatcher(reg, rec, testutil.Logger())

	d.Notify(99, delivery.EventMessagesSeen, delivery.BatchIDsPayload{MessageIDs: []int64{1}})

	assert.Empty(t, rec.sent())
}

func TestNotifySwallowsWriteFailures(t *testing.T) {
	reg := presence.NewRegistry(nil, testutil.Logger())
	rec := newRecorder()
	rec.fail["phone"] = errors.New("connection reset")
	d := delivery.NewDispatcher(reg, rec, testutil.Logger())

	reg.Connect(1, "phone")
	reg.Connect(1, "laptop")

	// must not panic; the healthy connection still gets the event
	d.Notify(1, delivery.EventMessageDeleted, delivery.DeletedPayload{MessageID: 7})

	assert.Equal(t, []string{delivery.EventMessageDeleted}, rec.eventsFor("laptop"))
	assert.Empty(t, rec.eventsFor("phone"))
}
