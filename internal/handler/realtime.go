package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/realtime-relay/internal/model"
	"github.com/capitalize-ai/realtime-relay/internal/rooms"
	"github.com/capitalize-ai/realtime-relay/pkg/logger"
	"github.com/capitalize-ai/realtime-relay/pkg/metrics"
)

const (
	// sendBufferSize is the per-connection outbound queue length.
	sendBufferSize = 64

	writeTimeout = 10 * time.Second
)

var (
	errConnClosed = errors.New("connection closed")
	errQueueFull  = errors.New("send queue full")
)

// RealtimeHandler upgrades clients to WebSocket and routes their frames
// into the room directory.
type RealtimeHandler struct {
	directory *rooms.Directory
	origins   []string
	logger    *logger.Logger

	// shutdown ends every open connection once cancelled.
	shutdown context.Context
	cancel   context.CancelFunc
}

// NewRealtimeHandler creates a realtime handler. allowedOrigins follows the
// CORS configuration; "*" accepts any origin.
func NewRealtimeHandler(dir *rooms.Directory, allowedOrigins []string, log *logger.Logger) *RealtimeHandler {
	shutdown, cancel := context.WithCancel(context.Background())
	return &RealtimeHandler{
		directory: dir,
		origins:   originPatterns(allowedOrigins),
		logger:    log.Component("realtime"),
		shutdown:  shutdown,
		cancel:    cancel,
	}
}

// Close ends all open connections. Hijacked connections are not tracked by
// http.Server, so register it with RegisterOnShutdown.
func (h *RealtimeHandler) Close() {
	h.cancel()
}

// originPatterns turns configured origins into host patterns.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			patterns = append(patterns, "*")
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}

// Connect handles GET /socket
func (h *RealtimeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	// Server timeouts would otherwise outlive the upgrade.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(h.shutdown, cancel)
	defer stop()

	conn := newSocketConn(ws)
	log := h.logger.With(zap.String("conn_id", conn.id))

	metrics.IncrementConnections()
	defer metrics.DecrementConnections()

	go conn.writeLoop(ctx, log)

	log.Debug("connection opened")

	defer func() {
		conn.close()
		identity := h.directory.Identity(conn.id)
		h.directory.Remove(conn)
		log.Debug("connection closed", zap.String("user_id", identity))
	}()

	for {
		var env model.Envelope
		if err := wsjson.Read(ctx, ws, &env); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				log.Debug("read failed", zap.Error(err))
			}
			if h.shutdown.Err() != nil {
				ws.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			ws.Close(websocket.StatusNormalClosure, "")
			return
		}
		h.dispatch(conn, env, log)
	}
}

func (h *RealtimeHandler) dispatch(conn *socketConn, env model.Envelope, log *logger.Logger) {
	switch env.Event {
	case model.EventJoin:
		req, err := model.DecodeJoin(env.Data)
		if err != nil {
			log.Warn("malformed join payload", zap.Error(err))
		}
		h.directory.Join(conn, req.UserID, bool(req.IsAdmin))
	default:
		log.Debug("ignoring event", zap.String("event", env.Event))
	}
}

// socketConn implements rooms.Conn on top of a WebSocket. Frames are queued
// and written by a single goroutine; a full queue drops the frame.
type socketConn struct {
	id     string
	ws     *websocket.Conn
	out    chan model.Envelope
	done   chan struct{}
	closed sync.Once
}

func newSocketConn(ws *websocket.Conn) *socketConn {
	return &socketConn{
		id:   uuid.New().String(),
		ws:   ws,
		out:  make(chan model.Envelope, sendBufferSize),
		done: make(chan struct{}),
	}
}

// ID implements rooms.Conn.
func (c *socketConn) ID() string { return c.id }

// Send implements rooms.Conn.
func (c *socketConn) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	select {
	case c.out <- model.Envelope{Event: event, Data: data}:
		return nil
	default:
		return errQueueFull
	}
}

func (c *socketConn) close() {
	c.closed.Do(func() { close(c.done) })
}

func (c *socketConn) writeLoop(ctx context.Context, log *logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case env := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.ws, env)
			cancel()
			if err != nil {
				log.Debug("write failed", zap.Error(err))
				c.close()
				c.ws.CloseNow()
				return
			}
		}
	}
}
