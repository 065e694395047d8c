package condition

import (
	"testing"
)

// mapResolver resolves dotted paths against nested maps.
type mapResolver map[string]any

func (m mapResolver) Resolve(path []string) (any, bool) {
	var cur any = map[string]any(m)
	for _, seg := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func payload(kv ...any) mapResolver {
	inner := make(map[string]any)
	for i := 0; i+1 < len(kv); i += 2 {
		inner[kv[i].(string)] = kv[i+1]
	}
	return mapResolver{"payload": inner, "event": map[string]any{"type": "invoice:paid"}}
}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name    string
		expr    string
		r       Resolver
		want    bool
		wantErr bool
	}{
		{name: "gt true", expr: "payload.amount > 1000", r: payload("amount", float64(1500)), want: true},
		{name: "gt false", expr: "payload.amount > 1000", r: payload("amount", float64(500))},
		{name: "gte equal", expr: "payload.amount >= 1000", r: payload("amount", 1000), want: true},
		{name: "lte negative literal", expr: "payload.delta <= -2.5", r: payload("delta", float64(-3)), want: true},
		{name: "eq string", expr: `payload.status == "paid"`, r: payload("status", "paid"), want: true},
		{name: "neq string", expr: `payload.status != 'paid'`, r: payload("status", "draft"), want: true},
		{name: "bool literal", expr: "payload.recurring == true", r: payload("recurring", true), want: true},
		{name: "bool vs string", expr: `payload.recurring == "true"`, r: payload("recurring", true)},
		{name: "event field", expr: `event.type == "invoice:paid"`, r: payload(), want: true},
		{name: "AND short-circuit", expr: `payload.a == 1 AND payload.missing > 2`, r: payload("a", float64(2))},
		{name: "OR short-circuit", expr: `payload.a == 1 || payload.missing > 2`, r: payload("a", float64(1)), want: true},
		{name: "symbolic and", expr: `payload.a == 1 && payload.b == 2`, r: payload("a", 1, "b", 2), want: true},
		{name: "NOT", expr: `NOT payload.amount > 1000`, r: payload("amount", float64(10)), want: true},
		{name: "parens", expr: `(payload.a == 1 OR payload.b == 1) AND payload.c == 1`, r: payload("a", 0, "b", 1, "c", 1), want: true},
		{name: "contains", expr: `payload.email contains "@acme"`, r: payload("email", "ops@acme.io"), want: true},
		{name: "matches", expr: `payload.sku matches "^SKU-[0-9]+$"`, r: payload("sku", "SKU-42"), want: true},
		{name: "matches escaped", expr: `payload.email matches ".*@example\\.com"`, r: payload("email", "a@exampleXcom")},
		{name: "exists", expr: `payload.projectId exists`, r: payload("projectId", "P1"), want: true},
		{name: "not exists", expr: `NOT payload.projectId exists`, r: payload(), want: true},
		{name: "in list", expr: `payload.stage in ["won", "closed"]`, r: payload("stage", "won"), want: true},
		{name: "in numbers", expr: `payload.priority in [1, 2]`, r: payload("priority", 3)},
		{name: "missing field", expr: "payload.missing > 10", r: payload(), wantErr: true},
		{name: "numeric op on string", expr: `payload.status > 1`, r: payload("status", "x"), wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := Parse(tc.expr)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tc.expr, err)
			}
			got, err := Evaluate(e, tc.r)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil (result=%v)", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Evaluate error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tc.expr, got, tc.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		`"unterminated`,
		`payload.amount 1000`,
		``,
		`payload.a == `,
		`(payload.a == 1`,
		`payload.a == 1 extra`,
		`"x" exists`,
		`payload.a in [payload.b]`,
		`payload.a in ["x" "y"]`,
		`payload.a matches "("`,
		`payload.a # 1`,
	}
	for _, src := range cases {
		t.Run(src, func(t *testing.T) {
			if _, err := Parse(src); err == nil {
				t.Errorf("expected parse error for %q", src)
			}
		})
	}
}

func TestMustParsePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustParse did not panic on invalid input")
		}
	}()
	MustParse("payload.a ==")
}

func TestNumber(t *testing.T) {
	for _, v := range []any{1, int64(2), uint8(3), float32(4.5), 5.5} {
		if _, ok := Number(v); !ok {
			t.Errorf("Number(%T) not numeric", v)
		}
	}
	if _, ok := Number("7"); ok {
		t.Error("Number(string) should not be numeric")
	}
}
