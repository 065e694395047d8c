package condition

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Resolver supplies field values by path.
type Resolver interface {
	Resolve(path []string) (any, bool)
}

// Operator is a binary comparison.
type Operator string

const (
	OpEq       Operator = "=="
	OpNeq      Operator = "!="
	OpGt       Operator = ">"
	OpGte      Operator = ">="
	OpLt       Operator = "<"
	OpLte      Operator = "<="
	OpContains Operator = "contains"
	OpMatches  Operator = "matches"
)

// Evaluate reports whether e holds for r. A missing field is an error
// except under Exists.
func Evaluate(e Expr, r Resolver) (bool, error) {
	switch n := e.(type) {
	case *Logical:
		left, err := Evaluate(n.Left, r)
		if err != nil {
			return false, err
		}
		if n.Op == "AND" && !left {
			return false, nil
		}
		if n.Op == "OR" && left {
			return true, nil
		}
		return Evaluate(n.Right, r)
	case *Not:
		v, err := Evaluate(n.Inner, r)
		return !v && err == nil, err
	case *Exists:
		_, ok := r.Resolve(n.Field.Path)
		return ok, nil
	case *In:
		v, err := value(n.Field, r)
		if err != nil {
			return false, err
		}
		for _, candidate := range n.Values {
			if equal(v, candidate) {
				return true, nil
			}
		}
		return false, nil
	case *Compare:
		left, err := value(n.Left, r)
		if err != nil {
			return false, err
		}
		right, err := value(n.Right, r)
		if err != nil {
			return false, err
		}
		return compare(n, left, right)
	default:
		return false, fmt.Errorf("unknown expression %T", e)
	}
}

func value(o Operand, r Resolver) (any, error) {
	switch v := o.(type) {
	case Literal:
		return v.Value, nil
	case Field:
		val, ok := r.Resolve(v.Path)
		if !ok {
			return nil, fmt.Errorf("field %q not found", v.String())
		}
		return val, nil
	default:
		return nil, fmt.Errorf("unknown operand %T", o)
	}
}

func compare(c *Compare, left, right any) (bool, error) {
	switch c.Op {
	case OpEq:
		return equal(left, right), nil
	case OpNeq:
		return !equal(left, right), nil
	case OpGt, OpGte, OpLt, OpLte:
		lf, lok := Number(left)
		rf, rok := Number(right)
		if !lok || !rok {
			return false, fmt.Errorf("operator %s needs numbers, got %T and %T", c.Op, left, right)
		}
		switch c.Op {
		case OpGt:
			return lf > rf, nil
		case OpGte:
			return lf >= rf, nil
		case OpLt:
			return lf < rf, nil
		default:
			return lf <= rf, nil
		}
	case OpContains:
		s, ok := left.(string)
		if !ok {
			return false, fmt.Errorf("contains: left side must be a string, got %T", left)
		}
		return strings.Contains(s, fmt.Sprint(right)), nil
	case OpMatches:
		s, ok := left.(string)
		if !ok {
			return false, fmt.Errorf("matches: left side must be a string, got %T", left)
		}
		re := c.re
		if re == nil {
			pattern, ok := right.(string)
			if !ok {
				return false, fmt.Errorf("matches: pattern must be a string, got %T", right)
			}
			var err error
			if re, err = regexp.Compile(pattern); err != nil {
				return false, fmt.Errorf("matches: invalid regex %q: %w", pattern, err)
			}
		}
		return re.MatchString(s), nil
	}
	return false, fmt.Errorf("unknown operator %q", c.Op)
}

// equal compares numbers by value, bools strictly and everything else by
// string form.
func equal(left, right any) bool {
	lf, lok := Number(left)
	rf, rok := Number(right)
	if lok && rok {
		return math.Abs(lf-rf) < 1e-9
	}
	lb, lbool := left.(bool)
	rb, rbool := right.(bool)
	if lbool || rbool {
		return lbool && rbool && lb == rb
	}
	return fmt.Sprint(left) == fmt.Sprint(right)
}

// Number coerces Go numeric kinds to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
