// Package identity applies identity-provider events to the local user store.
package identity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Event types acted on by the synchronizer.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

var (
	// ErrMalformedEvent is returned when the body is not a JSON event envelope.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrMissingSubjectID is returned when no strategy finds a subject id.
	ErrMissingSubjectID = errors.New("missing user id")
)

// object is a JSON object with its members left undecoded.
type object map[string]json.RawMessage

// Event is a decoded webhook envelope. Members other than type and data are ignored.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`

	data    object
	subject object
	rawSubj json.RawMessage
}

// DecodeEvent parses a verified webhook body and locates its subject.
func DecodeEvent(body []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	e.data = asObject(e.Data)
	e.rawSubj = locateSubject(e.data, e.Data)
	e.subject = asObject(e.rawSubj)
	return &e, nil
}

// Subject returns the raw JSON of the located subject object, or nil.
func (e *Event) Subject() json.RawMessage {
	return e.rawSubj
}

// locateSubject picks data.object, then data.user, then data itself,
// taking the first that is a JSON object.
func locateSubject(data object, raw json.RawMessage) json.RawMessage {
	if data == nil {
		return nil
	}
	for _, key := range []string{"object", "user"} {
		if v, ok := data[key]; ok && isObject(v) {
			return v
		}
	}
	return raw
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func asObject(raw json.RawMessage) object {
	if !isObject(raw) {
		return nil
	}
	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil
	}
	return o
}

// str returns the member as a string when it is a JSON string.
func (o object) str(key string) (string, bool) {
	v, ok := o[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

// firstString returns the first member among keys holding a non-empty string.
func (o object) firstString(keys ...string) *string {
	for _, key := range keys {
		if s, ok := o.str(key); ok && s != "" {
			return &s
		}
	}
	return nil
}
