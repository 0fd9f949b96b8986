// Package rooms maps identity and role tokens to push delivery groups.
package rooms

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/realtime-relay/internal/model"
	"github.com/capitalize-ai/realtime-relay/pkg/logger"
	"github.com/capitalize-ai/realtime-relay/pkg/metrics"
)

// AdminGroup is the singleton group receiving analytics broadcasts.
const AdminGroup = "admins"

// Conn is a live duplex connection as seen by the directory. Send must not
// block on a slow peer; implementations queue or drop.
type Conn interface {
	ID() string
	Send(event string, payload any) error
}

// Notifier delivers payloads to groups. It is satisfied by *Directory and by
// the NATS bridge that fans deliveries out across instances.
type Notifier interface {
	DeliverToIdentity(identity string, payload any)
	DeliverToAdmins(payload any)
}

// Directory owns group membership for all local connections.
type Directory struct {
	mu         sync.RWMutex
	groups     map[string]map[string]Conn // group -> conn id -> conn
	memberOf   map[string]map[string]struct{}
	identities map[string]string // conn id -> identity token
	logger     *logger.Logger
}

// NewDirectory creates an empty directory.
func NewDirectory(log *logger.Logger) *Directory {
	if log == nil {
		log = logger.Global()
	}
	return &Directory{
		groups:     make(map[string]map[string]Conn),
		memberOf:   make(map[string]map[string]struct{}),
		identities: make(map[string]string),
		logger:     log.Component("rooms"),
	}
}

// Join adds conn to the identity group when identity is non-empty and to the
// admin group when isAdmin is set, then acknowledges on conn. Repeating a
// join with the same arguments changes nothing. Faults are logged, never
// returned.
func (d *Directory) Join(conn Conn, identity string, isAdmin bool) {
	d.safely("join", conn, func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		if identity != "" {
			d.identities[conn.ID()] = identity
			d.add(identity, conn)
		}
		if isAdmin {
			d.add(AdminGroup, conn)
		}
	})

	d.logger.Info("connection joined",
		zap.String("conn_id", conn.ID()),
		zap.String("user_id", identity),
		zap.Bool("admin", isAdmin),
	)

	d.safely("join acknowledgement", conn, func() {
		d.send(conn, model.EventNotification, model.Notification{Message: model.JoinAcknowledgement})
	})
}

// add must be called with d.mu held.
func (d *Directory) add(group string, conn Conn) {
	members, ok := d.groups[group]
	if !ok {
		members = make(map[string]Conn)
		d.groups[group] = members
	}
	members[conn.ID()] = conn

	joined, ok := d.memberOf[conn.ID()]
	if !ok {
		joined = make(map[string]struct{})
		d.memberOf[conn.ID()] = joined
	}
	joined[group] = struct{}{}
}

// Remove drops conn from every group it joined. Called by the transport when
// the channel closes.
func (d *Directory) Remove(conn Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := conn.ID()
	for group := range d.memberOf[id] {
		members := d.groups[group]
		delete(members, id)
		if len(members) == 0 {
			delete(d.groups, group)
		}
	}
	delete(d.memberOf, id)
	delete(d.identities, id)
}

// Deliver pushes payload as event to every member of group and returns the
// number of connections that accepted it. Unknown or empty groups are a
// no-op.
func (d *Directory) Deliver(group, event string, payload any) int {
	d.mu.RLock()
	members := d.groups[group]
	targets := make([]Conn, 0, len(members))
	for _, conn := range members {
		targets = append(targets, conn)
	}
	d.mu.RUnlock()

	sent := 0
	for _, conn := range targets {
		d.safely("deliver", conn, func() {
			if d.send(conn, event, payload) {
				sent++
			}
		})
	}
	return sent
}

// DeliverToIdentity pushes a "notification" event to an identity group.
func (d *Directory) DeliverToIdentity(identity string, payload any) {
	if identity == "" {
		return
	}
	d.Deliver(identity, model.EventNotification, payload)
}

// DeliverToAdmins pushes an "analyticsUpdate" event to the admin group.
func (d *Directory) DeliverToAdmins(payload any) {
	d.Deliver(AdminGroup, model.EventAnalyticsUpdate, payload)
}

// Members returns the connection ids currently in group.
func (d *Directory) Members(group string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.groups[group]))
	for id := range d.groups[group] {
		ids = append(ids, id)
	}
	return ids
}

// Identity returns the identity token recorded on a connection, if any.
func (d *Directory) Identity(connID string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.identities[connID]
}

func (d *Directory) send(conn Conn, event string, payload any) bool {
	if err := conn.Send(event, payload); err != nil {
		d.logger.Debug("delivery dropped",
			zap.String("conn_id", conn.ID()),
			zap.String("event", event),
			zap.Error(err),
		)
		metrics.RecordDelivery(event, false)
		return false
	}
	metrics.RecordDelivery(event, true)
	return true
}

func (d *Directory) safely(op string, conn Conn, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn(op+" failed",
				zap.String("conn_id", conn.ID()),
				zap.Error(fmt.Errorf("panic: %v", r)),
			)
		}
	}()
	fn()
}
