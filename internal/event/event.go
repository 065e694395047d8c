package event

import (
	"maps"
	"reflect"
	"time"
)

// Event is the unit of communication on the bus.
// The bus assigns ID and Timestamp at emission; nothing mutates an Event afterwards.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Data      any       `json:"data,omitempty"` // DTO registered for Type, map[string]any or nil
	Metadata  Metadata  `json:"metadata"`
	Timestamp time.Time `json:"timestamp"`
}

// Clone returns a copy of e that shares no mutable state with it. Generic
// map payloads are copied recursively and pointer DTOs are dereferenced.
func (e Event) Clone() Event {
	out := e
	out.Metadata = e.Metadata.Clone()
	out.Data = clonePayload(e.Data)
	return out
}

// Metadata describes where an event came from.
type Metadata struct {
	Source         string            `json:"source,omitempty" yaml:"source"`
	UserID         string            `json:"userId,omitempty" yaml:"user_id"`
	OrganizationID string            `json:"organizationId,omitempty" yaml:"organization_id"`
	CausationID    string            `json:"causationId,omitempty" yaml:"-"` // id of the event whose handling emitted this one
	Context        map[string]string `json:"context,omitempty" yaml:"context"`
}

// Clone returns a copy that shares no maps with m.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Context != nil {
		out.Context = maps.Clone(m.Context)
	}
	return out
}

func clonePayload(data any) any {
	switch d := data.(type) {
	case nil:
		return nil
	case map[string]any:
		return cloneMap(d)
	case Tick:
		d.Data = cloneMap(d.Data)
		return d
	}
	rv := reflect.ValueOf(data)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		return clonePayload(rv.Elem().Interface())
	}
	return data
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}
