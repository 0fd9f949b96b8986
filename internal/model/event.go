package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Event names carried on the realtime channel.
const (
	EventJoin            = "join"
	EventNotification    = "notification"
	EventAnalyticsUpdate = "analyticsUpdate"
)

// Notification messages pushed to identity groups.
const (
	JoinAcknowledgement = "Connected to realtime server ✅"
	ChatAnswered        = "We responded to your chat."
)

// Envelope is a single realtime frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Notification is the payload of a "notification" event.
type Notification struct {
	Message string `json:"message"`
}

// JoinRequest is the payload of an inbound "join" event.
type JoinRequest struct {
	UserID  string `json:"userId,omitempty"`
	IsAdmin Flag   `json:"isAdmin,omitempty"`
}

// DecodeJoin reads a join payload field by field, so a mistyped field does
// not discard the others. The returned error lists every field that could
// not be decoded.
func DecodeJoin(data json.RawMessage) (JoinRequest, error) {
	var req JoinRequest
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return req, errors.New("join without payload")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return req, fmt.Errorf("join payload: %w", err)
	}

	var errs []error
	if raw, ok := fields["userId"]; ok {
		if err := json.Unmarshal(raw, &req.UserID); err != nil {
			errs = append(errs, fmt.Errorf("userId: %w", err))
		}
	}
	if raw, ok := fields["isAdmin"]; ok {
		if err := json.Unmarshal(raw, &req.IsAdmin); err != nil {
			errs = append(errs, fmt.Errorf("isAdmin: %w", err))
		}
	}
	return req, errors.Join(errs...)
}

// Flag decodes loosely typed booleans sent by browser clients: true,
// non-zero numbers and non-empty strings are truthy; false, 0, "", null
// are not.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")), bytes.Equal(b, []byte("false")):
		*f = false
	case bytes.Equal(b, []byte("true")):
		*f = true
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = s != ""
	case b[0] == '{', b[0] == '[':
		*f = true
	default:
		n, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return err
		}
		*f = n != 0
	}
	return nil
}
