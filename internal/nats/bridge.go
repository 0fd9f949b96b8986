package nats

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/capitalize-ai/realtime-relay/internal/model"
	"github.com/capitalize-ai/realtime-relay/internal/rooms"
	"github.com/capitalize-ai/realtime-relay/pkg/logger"
)

// SubjectPrefix is the prefix of every room delivery subject.
const SubjectPrefix = "relay.rooms"

// Conn is the subset of *nats.Conn the bridge uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// delivery is the wire form of one room delivery.
type delivery struct {
	Group  string          `json:"group"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	Origin string          `json:"origin"`
}

// Bridge publishes room deliveries to NATS and delivers every delivery it
// receives to the local directory, so an identity group spans instances.
type Bridge struct {
	conn   Conn
	dir    *rooms.Directory
	origin string
	sub    *nats.Subscription
	logger *logger.Logger
}

// NewBridge creates a bridge for dir. origin names this instance in
// published envelopes.
func NewBridge(conn Conn, dir *rooms.Directory, origin string, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.Global()
	}
	return &Bridge{
		conn:   conn,
		dir:    dir,
		origin: origin,
		logger: log.Component("room-bridge"),
	}
}

// GroupSubject maps a group name to its subject. Group names are encoded
// since identity tokens may contain subject metacharacters.
func GroupSubject(group string) string {
	return SubjectPrefix + "." + base64.RawURLEncoding.EncodeToString([]byte(group))
}

// Start subscribes to every room subject.
func (b *Bridge) Start() error {
	sub, err := b.conn.Subscribe(SubjectPrefix+".>", b.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to rooms: %w", err)
	}
	b.sub = sub
	return nil
}

// Close removes the subscription.
func (b *Bridge) Close() error {
	if b.sub == nil {
		return nil
	}
	return b.sub.Unsubscribe()
}

// DeliverToIdentity implements rooms.Notifier.
func (b *Bridge) DeliverToIdentity(identity string, payload any) {
	if identity == "" {
		return
	}
	b.publish(identity, model.EventNotification, payload)
}

// DeliverToAdmins implements rooms.Notifier.
func (b *Bridge) DeliverToAdmins(payload any) {
	b.publish(rooms.AdminGroup, model.EventAnalyticsUpdate, payload)
}

func (b *Bridge) publish(group, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Warn("failed to encode delivery", zap.String("group", group), zap.Error(err))
		return
	}

	msg, err := json.Marshal(delivery{Group: group, Event: event, Data: data, Origin: b.origin})
	if err == nil {
		err = b.conn.Publish(GroupSubject(group), msg)
	}
	if err != nil {
		b.logger.Warn("publish failed, delivering locally",
			zap.String("group", group),
			zap.String("event", event),
			zap.Error(err),
		)
		b.dir.Deliver(group, event, json.RawMessage(data))
	}
}

func (b *Bridge) handle(msg *nats.Msg) {
	var d delivery
	if err := json.Unmarshal(msg.Data, &d); err != nil {
		b.logger.Warn("dropping malformed delivery", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if !strings.HasPrefix(msg.Subject, SubjectPrefix+".") || msg.Subject != GroupSubject(d.Group) {
		b.logger.Warn("dropping delivery with mismatched subject", zap.String("subject", msg.Subject))
		return
	}

	n := b.dir.Deliver(d.Group, d.Event, d.Data)
	b.logger.Debug("delivered remote event",
		zap.String("group", d.Group),
		zap.String("event", d.Event),
		zap.String("origin", d.Origin),
		zap.Int("recipients", n),
	)
}
