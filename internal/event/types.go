package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Type names an event kind as "domain:action".
type Type string

// All is the wildcard subscription type. It is never a valid emit type.
const All Type = "*"

const (
	SystemStartup  Type = "system:startup"
	SystemShutdown Type = "system:shutdown"
	SystemTick     Type = "system:tick"

	LeadCreated        Type = "lead:created"
	LeadConverted      Type = "lead:converted"
	OpportunityCreated Type = "opportunity:created"
	OpportunityWon     Type = "opportunity:won"
	QuoteAccepted      Type = "quote:accepted"

	InvoiceCreated  Type = "invoice:created"
	InvoiceSent     Type = "invoice:sent"
	InvoicePaid     Type = "invoice:paid"
	PaymentReceived Type = "payment:received"

	InventoryUpdated  Type = "inventory:updated"
	InventoryLowStock Type = "inventory:low-stock"

	EmployeeOnboarded Type = "employee:onboarded"
)

var (
	ErrUnknownType     = errors.New("unknown event type")
	ErrPayloadMismatch = errors.New("payload does not match event type")
)

// catalog binds every known Type to its payload DTO.
var catalog = struct {
	sync.RWMutex
	types map[Type]reflect.Type
}{types: map[Type]reflect.Type{}}

func init() {
	builtin := map[Type]any{
		SystemStartup:      Startup{},
		SystemShutdown:     Shutdown{},
		SystemTick:         Tick{},
		LeadCreated:        Lead{},
		LeadConverted:      Conversion{},
		OpportunityCreated: Opportunity{},
		OpportunityWon:     Opportunity{},
		QuoteAccepted:      Quote{},
		InvoiceCreated:     Invoice{},
		InvoiceSent:        Invoice{},
		InvoicePaid:        InvoicePayment{},
		PaymentReceived:    Payment{},
		InventoryUpdated:   StockLevel{},
		InventoryLowStock:  StockLevel{},
		EmployeeOnboarded:  Employee{},
	}
	for t, dto := range builtin {
		catalog.types[t] = reflect.TypeOf(dto)
	}
}

// Register adds a new event type bound to the DTO type of sample.
// Registering an existing type with a different DTO is an error.
func Register(t Type, sample any) error {
	if t == "" || t == All {
		return fmt.Errorf("register %q: invalid type name", t)
	}
	rt := reflect.TypeOf(sample)
	if rt == nil {
		return fmt.Errorf("register %q: nil sample", t)
	}
	if rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	catalog.Lock()
	defer catalog.Unlock()
	if prev, ok := catalog.types[t]; ok && prev != rt {
		return fmt.Errorf("register %q: already bound to %s", t, prev)
	}
	catalog.types[t] = rt
	return nil
}

// Known reports whether t is a registered event type.
func Known(t Type) bool {
	catalog.RLock()
	defer catalog.RUnlock()
	_, ok := catalog.types[t]
	return ok
}

// Types returns every registered type in lexical order.
func Types() []Type {
	catalog.RLock()
	out := make([]Type, 0, len(catalog.types))
	for t := range catalog.types {
		out = append(out, t)
	}
	catalog.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Check validates that data is an acceptable payload for t: nil, a
// map[string]any, or the registered DTO (by value or pointer).
func Check(t Type, data any) error {
	catalog.RLock()
	want, ok := catalog.types[t]
	catalog.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if data == nil {
		return nil
	}
	if _, ok := data.(map[string]any); ok {
		return nil
	}
	got := reflect.TypeOf(data)
	if got.Kind() == reflect.Pointer {
		got = got.Elem()
	}
	if got != want {
		return fmt.Errorf("%w: %q expects %s, got %T", ErrPayloadMismatch, t, want, data)
	}
	return nil
}

// Decode unmarshals raw JSON into the DTO registered for t.
// An empty or null payload decodes to nil.
func Decode(t Type, raw json.RawMessage) (any, error) {
	catalog.RLock()
	rt, ok := catalog.types[t]
	catalog.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	ptr := reflect.New(rt)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return ptr.Elem().Interface(), nil
}

// As returns data as a T. It accepts T, *T, or a generic map that is
// converted through its JSON form.
func As[T any](data any) (T, error) {
	var zero T
	switch d := data.(type) {
	case T:
		return d, nil
	case *T:
		if d == nil {
			return zero, fmt.Errorf("%w: nil %T", ErrPayloadMismatch, data)
		}
		return *d, nil
	case map[string]any:
		raw, err := json.Marshal(d)
		if err != nil {
			return zero, err
		}
		var out T
		if err := json.Unmarshal(raw, &out); err != nil {
			return zero, fmt.Errorf("%w: %v", ErrPayloadMismatch, err)
		}
		return out, nil
	}
	return zero, fmt.Errorf("%w: want %T, got %T", ErrPayloadMismatch, zero, data)
}
