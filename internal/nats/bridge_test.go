package nats

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/realtime-relay/internal/model"
	"github.com/capitalize-ai/realtime-relay/internal/rooms"
	"github.com/capitalize-ai/realtime-relay/pkg/logger"
)

// loopback routes every publish straight back to the subscribers, acting as
// a single-node NATS for two or more bridges.
type loopback struct {
	mu         sync.Mutex
	handlers   []nats.MsgHandler
	subjects   []string
	publishErr error
}

func (l *loopback) Publish(subject string, data []byte) error {
	if l.publishErr != nil {
		return l.publishErr
	}
	l.mu.Lock()
	l.subjects = append(l.subjects, subject)
	handlers := append([]nats.MsgHandler(nil), l.handlers...)
	l.mu.Unlock()

	for _, h := range handlers {
		h(&nats.Msg{Subject: subject, Data: data})
	}
	return nil
}

func (l *loopback) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, cb)
	return nil, nil
}

type fakeConn struct {
	id     string
	events []string
	data   []string
}

func (c *fakeConn) ID() string { return c.id }
func (c *fakeConn) Send(event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.events = append(c.events, event)
	c.data = append(c.data, string(b))
	return nil
}

func TestGroupSubjectEncodesMetacharacters(t *testing.T) {
	subj := GroupSubject("a.b *>")
	assert.NotContains(t, subj[len(SubjectPrefix)+1:], ".")
	assert.NotContains(t, subj, "*")
	assert.NotContains(t, subj, ">")
	assert.NotEqual(t, GroupSubject("u1"), GroupSubject("u2"))
}

func TestBridge_FansOutAcrossInstances(t *testing.T) {
	bus := &loopback{}
	dirA := rooms.NewDirectory(logger.NewNop())
	dirB := rooms.NewDirectory(logger.NewNop())
	a := NewBridge(bus, dirA, "a", logger.NewNop())
	b := NewBridge(bus, dirB, "b", logger.NewNop())
	require.NoError(t, a.Start())
	require.NoError(t, b.Start())

	onA := &fakeConn{id: "ca"}
	onB := &fakeConn{id: "cb"}
	stranger := &fakeConn{id: "cs"}
	dirA.Join(onA, "u1", false)
	dirB.Join(onB, "u1", false)
	dirB.Join(stranger, "u2", false)

	a.DeliverToIdentity("u1", model.Notification{Message: model.ChatAnswered})

	require.Len(t, onA.events, 2)
	require.Len(t, onB.events, 2)
	assert.Equal(t, model.EventNotification, onB.events[1])
	assert.JSONEq(t, `{"message":"We responded to your chat."}`, onB.data[1])
	assert.Len(t, stranger.events, 1)
	assert.Equal(t, []string{GroupSubject("u1")}, bus.subjects)
}

func TestBridge_AdminBroadcast(t *testing.T) {
	bus := &loopback{}
	dir := rooms.NewDirectory(logger.NewNop())
	br := NewBridge(bus, dir, "a", logger.NewNop())
	require.NoError(t, br.Start())

	admin := &fakeConn{id: "x"}
	dir.Join(admin, "", true)

	br.DeliverToAdmins(model.AnalyticsPayload{model.SeriesOrders: {Labels: []string{"now"}, Values: []int{4}}})

	require.Len(t, admin.events, 2)
	assert.Equal(t, model.EventAnalyticsUpdate, admin.events[1])
	assert.JSONEq(t, `{"orders":{"labels":["now"],"values":[4]}}`, admin.data[1])
}

func TestBridge_PublishFailureFallsBackToLocal(t *testing.T) {
	bus := &loopback{publishErr: errors.New("nats: connection closed")}
	dir := rooms.NewDirectory(logger.NewNop())
	br := NewBridge(bus, dir, "a", logger.NewNop())

	c := &fakeConn{id: "c"}
	dir.Join(c, "u1", false)

	br.DeliverToIdentity("u1", model.Notification{Message: "hi"})

	require.Len(t, c.events, 2)
	assert.JSONEq(t, `{"message":"hi"}`, c.data[1])
}

func TestBridge_DropsMalformed(t *testing.T) {
	dir := rooms.NewDirectory(logger.NewNop())
	br := NewBridge(&loopback{}, dir, "a", logger.NewNop())
	c := &fakeConn{id: "c"}
	dir.Join(c, "u1", false)

	br.handle(&nats.Msg{Subject: GroupSubject("u1"), Data: []byte("{oops")})
	br.handle(&nats.Msg{Subject: GroupSubject("u2"), Data: []byte(`{"group":"u1","event":"notification","data":{}}`)})

	assert.Len(t, c.events, 1)
}

func TestBridge_EmptyIdentityIsNoop(t *testing.T) {
	bus := &loopback{}
	br := NewBridge(bus, rooms.NewDirectory(logger.NewNop()), "a", logger.NewNop())
	br.DeliverToIdentity("", model.Notification{})
	assert.Empty(t, bus.subjects)
	assert.NoError(t, br.Close())
}
