package event

import (
	"encoding/json"
	"sync"
)

// View exposes an event's fields by dotted path for rule predicates and
// effect parameter templates:
//
//	payload.<field>...   the DTO, addressed by its JSON field names
//	meta.source | meta.userId | meta.organizationId | meta.causationId | meta.context.<key>
//	event.type | event.id | event.source
type View struct {
	ev      Event
	once    sync.Once
	payload map[string]any
}

// NewView wraps ev. The payload is flattened lazily on first access.
func NewView(ev Event) *View {
	return &View{ev: ev}
}

// Event returns the wrapped event.
func (v *View) Event() Event { return v.ev }

// Payload returns the event data as a generic map (nil when it has none).
func (v *View) Payload() map[string]any {
	v.once.Do(func() {
		v.payload = toMap(v.ev.Data)
	})
	return v.payload
}

// Resolve looks up a dotted path split into segments.
func (v *View) Resolve(path []string) (any, bool) {
	if len(path) < 2 {
		return nil, false
	}
	switch path[0] {
	case "payload":
		return lookup(v.Payload(), path[1:])
	case "meta":
		md := v.ev.Metadata
		switch path[1] {
		case "source":
			return md.Source, true
		case "userId":
			return md.UserID, true
		case "organizationId":
			return md.OrganizationID, true
		case "causationId":
			return md.CausationID, true
		case "context":
			if len(path) != 3 || md.Context == nil {
				return nil, false
			}
			val, ok := md.Context[path[2]]
			return val, ok
		}
	case "event":
		switch path[1] {
		case "type":
			return string(v.ev.Type), true
		case "id":
			return v.ev.ID, true
		case "source":
			return v.ev.Metadata.Source, true
		}
	}
	return nil, false
}

func lookup(m map[string]any, path []string) (any, bool) {
	if m == nil || len(path) == 0 {
		return nil, false
	}
	val, ok := m[path[0]]
	if !ok {
		return nil, false
	}
	if len(path) == 1 {
		return val, true
	}
	sub, ok := val.(map[string]any)
	if !ok {
		return nil, false
	}
	return lookup(sub, path[1:])
}

// toMap converts a DTO into its JSON object form so numbers surface as
// float64 the same way they do for payloads decoded from requests.
func toMap(data any) map[string]any {
	switch d := data.(type) {
	case nil:
		return nil
	case map[string]any:
		return d
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
