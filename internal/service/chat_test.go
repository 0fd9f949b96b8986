package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/realtime-relay/internal/model"
	"github.com/capitalize-ai/realtime-relay/internal/responder"
	"github.com/capitalize-ai/realtime-relay/internal/rooms"
	"github.com/capitalize-ai/realtime-relay/internal/store"
	"github.com/capitalize-ai/realtime-relay/pkg/logger"
)

type recordingNotifier struct {
	mu         sync.Mutex
	identities []string
	payloads   []any
	panics     bool
}

func (n *recordingNotifier) DeliverToIdentity(identity string, payload any) {
	if n.panics {
		panic("bridge down")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.identities = append(n.identities, identity)
	n.payloads = append(n.payloads, payload)
}

func (n *recordingNotifier) DeliverToAdmins(any) {}

type stubResponder struct {
	reply string
	err   error
	calls int
	seen  [][]model.Message
}

func (r *stubResponder) Name() string { return "stub" }

func (r *stubResponder) Reply(_ context.Context, history []model.Message, _ string) (string, error) {
	r.calls++
	r.seen = append(r.seen, history)
	if r.err != nil {
		return "", r.err
	}
	return r.reply, nil
}

type panicResponder struct{}

func (panicResponder) Name() string { return "panic" }
func (panicResponder) Reply(context.Context, []model.Message, string) (string, error) {
	panic("nil map")
}

func ptr(s string) *string { return &s }

func newService(resp responder.Responder, n rooms.Notifier) (*ChatService, *store.MemoryStore) {
	st := store.NewMemoryStore()
	return NewChatService(st, resp, n, 8, logger.NewNop()), st
}

func TestChat_EchoAppendsTurnAndNotifies(t *testing.T) {
	n := &recordingNotifier{}
	svc, st := newService(responder.Echo{}, n)

	resp, err := svc.Chat(context.Background(), &model.ChatRequest{
		UserID: ptr("u1"), ThreadID: ptr("t1"), Message: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "Echo: hi", resp.Reply)

	hist := st.History("t1")
	require.Len(t, hist, 2)
	assert.Equal(t, model.UserMessage("hi"), hist[0])
	assert.Equal(t, model.AssistantMessage("Echo: hi"), hist[1])

	assert.Equal(t, []string{"u1"}, n.identities)
	assert.Equal(t, model.Notification{Message: "We responded to your chat."}, n.payloads[0])
}

func TestChat_DefaultsIdentityAndThread(t *testing.T) {
	n := &recordingNotifier{}
	svc, st := newService(responder.Echo{}, n)

	_, err := svc.Chat(context.Background(), &model.ChatRequest{Message: "hello"})
	require.NoError(t, err)

	assert.Len(t, st.History(model.DefaultThreadID), 2)
	assert.Equal(t, []string{model.DefaultUserID}, n.identities)
}

func TestChat_ExplicitEmptyIdentitySkipsNotification(t *testing.T) {
	n := &recordingNotifier{}
	svc, _ := newService(responder.Echo{}, n)

	_, err := svc.Chat(context.Background(), &model.ChatRequest{UserID: ptr(""), Message: "hello"})
	require.NoError(t, err)
	assert.Empty(t, n.identities)
}

func TestChat_BlankMessage(t *testing.T) {
	for _, msg := range []string{"", "   ", "\n\t"} {
		r := &stubResponder{reply: "nope"}
		n := &recordingNotifier{}
		svc, st := newService(r, n)

		resp, err := svc.Chat(context.Background(), &model.ChatRequest{ThreadID: ptr("t1"), Message: msg})
		require.NoError(t, err)
		assert.Equal(t, "Please send a non-empty message.", resp.Reply)
		assert.Zero(t, r.calls)
		assert.Empty(t, st.History("t1"))
		assert.Empty(t, n.identities)
	}
}

func TestChat_ResponderErrorIsDegraded(t *testing.T) {
	r := &stubResponder{err: errors.New("timeout talking to model")}
	n := &recordingNotifier{}
	svc, st := newService(r, n)

	resp, err := svc.Chat(context.Background(), &model.ChatRequest{UserID: ptr("u1"), ThreadID: ptr("t1"), Message: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDegraded)
	assert.Equal(t, "Sorry, something went wrong on the server.", resp.Reply)
	assert.Empty(t, st.History("t1"))
	assert.Empty(t, n.identities)
}

func TestChat_ResponderPanicIsDegraded(t *testing.T) {
	svc, st := newService(panicResponder{}, nil)

	resp, err := svc.Chat(context.Background(), &model.ChatRequest{ThreadID: ptr("t1"), Message: "hi"})
	assert.ErrorIs(t, err, ErrDegraded)
	assert.Equal(t, DegradedReply, resp.Reply)
	assert.Empty(t, st.History("t1"))
	assert.Zero(t, svc.locks.size())
}

func TestChat_NotificationPanicDoesNotAffectReply(t *testing.T) {
	svc, st := newService(responder.Echo{}, &recordingNotifier{panics: true})

	resp, err := svc.Chat(context.Background(), &model.ChatRequest{UserID: ptr("u1"), ThreadID: ptr("t1"), Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Echo: hi", resp.Reply)
	assert.Len(t, st.History("t1"), 2)
}

func TestChat_ContextWindowIsBounded(t *testing.T) {
	r := &stubResponder{reply: "ok"}
	svc, st := newService(r, nil)

	for i := 0; i < 6; i++ {
		_, err := svc.Chat(context.Background(), &model.ChatRequest{ThreadID: ptr("t"), Message: "m"})
		require.NoError(t, err)
	}

	assert.Len(t, st.History("t"), 12)
	assert.Empty(t, r.seen[0])
	assert.Len(t, r.seen[1], 2)
	assert.Len(t, r.seen[5], 8)
}

// slowResponder blocks its first call until released so a second request on
// the same thread can queue behind it.
type slowResponder struct {
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (r *slowResponder) Name() string { return "slow" }

func (r *slowResponder) Reply(_ context.Context, history []model.Message, message string) (string, error) {
	r.mu.Lock()
	r.calls++
	first := r.calls == 1
	r.mu.Unlock()

	if first {
		close(r.started)
		<-r.release
	}
	return "re:" + message, nil
}

func TestChat_SameThreadIsSerialized(t *testing.T) {
	r := &slowResponder{started: make(chan struct{}), release: make(chan struct{})}
	svc, st := newService(r, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = svc.Chat(context.Background(), &model.ChatRequest{ThreadID: ptr("t"), Message: "first"})
	}()
	<-r.started
	go func() {
		defer wg.Done()
		_, _ = svc.Chat(context.Background(), &model.ChatRequest{ThreadID: ptr("t"), Message: "second"})
	}()

	// an unrelated thread is not blocked
	resp, err := svc.Chat(context.Background(), &model.ChatRequest{ThreadID: ptr("other"), Message: "x"})
	require.NoError(t, err)
	assert.Equal(t, "re:x", resp.Reply)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, st.History("t"))

	close(r.release)
	wg.Wait()

	hist := st.History("t")
	require.Len(t, hist, 4)
	assert.Equal(t, "first", hist[0].Content)
	assert.Equal(t, "re:first", hist[1].Content)
	assert.Equal(t, "second", hist[2].Content)
	assert.Equal(t, "re:second", hist[3].Content)
	assert.Zero(t, svc.locks.size())
}

func TestChat_WithDirectoryDeliversOnlyToSender(t *testing.T) {
	dir := rooms.NewDirectory(logger.NewNop())
	u1 := &conn{id: "c1"}
	u2 := &conn{id: "c2"}
	dir.Join(u1, "u1", false)
	dir.Join(u2, "u2", false)

	svc, _ := newService(responder.Echo{}, dir)
	resp, err := svc.Chat(context.Background(), &model.ChatRequest{UserID: ptr("u1"), ThreadID: ptr("t1"), Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Echo: hi", resp.Reply)

	require.Len(t, u1.events, 2)
	assert.Equal(t, model.Notification{Message: model.JoinAcknowledgement}, u1.events[0])
	assert.Equal(t, model.Notification{Message: model.ChatAnswered}, u1.events[1])
	assert.Len(t, u2.events, 1)
}

type conn struct {
	id     string
	events []any
}

func (c *conn) ID() string { return c.id }
func (c *conn) Send(_ string, payload any) error {
	c.events = append(c.events, payload)
	return nil
}

func TestThreadLocks_Release(t *testing.T) {
	l := newThreadLocks()
	release, err := l.lock(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, l.size())
	release()
	assert.Zero(t, l.size())
}

func TestThreadLocks_WaiterGivesUpOnCancel(t *testing.T) {
	l := newThreadLocks()
	release, err := l.lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.size())

	release()
	assert.Zero(t, l.size())

	release, err = l.lock(context.Background(), "a")
	require.NoError(t, err)
	release()
}

func TestChat_QueuedRequestCancelledIsDegraded(t *testing.T) {
	r := &slowResponder{started: make(chan struct{}), release: make(chan struct{})}
	svc, st := newService(r, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.Chat(context.Background(), &model.ChatRequest{ThreadID: ptr("global"), Message: "first"})
	}()
	<-r.started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp, err := svc.Chat(ctx, &model.ChatRequest{ThreadID: ptr("global"), Message: "second"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDegraded)
	assert.Equal(t, DegradedReply, resp.Reply)

	close(r.release)
	<-done

	hist := st.History("global")
	require.Len(t, hist, 2)
	assert.Equal(t, "first", hist[0].Content)
	assert.Zero(t, svc.locks.size())
}
