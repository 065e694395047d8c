package condition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Expr is a compiled boolean expression.
type Expr interface {
	expr()
}

// Logical joins two expressions with AND or OR.
type Logical struct {
	Op    string // "AND" | "OR"
	Left  Expr
	Right Expr
}

// Not negates an expression.
type Not struct {
	Inner Expr
}

// Compare applies a binary operator to two operands.
type Compare struct {
	Left  Operand
	Op    Operator
	Right Operand
	re    *regexp.Regexp // precompiled for OpMatches with a literal pattern
}

// Exists is true when the field path resolves.
type Exists struct {
	Field Field
}

// In is true when the field value equals one of the listed literals.
type In struct {
	Field  Field
	Values []any
}

func (*Logical) expr() {}
func (*Not) expr()     {}
func (*Compare) expr() {}
func (*Exists) expr()  {}
func (*In) expr()      {}

// Operand is a Literal or a Field.
type Operand interface {
	operand()
}

// Literal is a constant: string, float64 or bool.
type Literal struct {
	Value any
}

// Field is a dotted path such as payload.amount.
type Field struct {
	Path []string
}

func (Literal) operand() {}
func (Field) operand()   {}

func (f Field) String() string { return strings.Join(f.Path, ".") }

// Parse compiles src. Grammar:
//
//	or      = and { ("OR" | "||") and }
//	and     = unary { ("AND" | "&&") unary }
//	unary   = "NOT" unary | "(" or ")" | term
//	term    = operand op operand | field "exists" | field "in" "[" literal { "," literal } "]"
//	op      = "==" | "!=" | ">" | ">=" | "<" | "<=" | "contains" | "matches"
func Parse(src string) (Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.or()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", t.text, t.pos)
	}
	return e, nil
}

// MustParse is Parse for expressions known at compile time.
func MustParse(src string) Expr {
	e, err := Parse(src)
	if err != nil {
		panic(fmt.Sprintf("condition: %q: %v", src, err))
	}
	return e
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// keyword reports whether the next token is the word kw (case-insensitive) or
// one of the symbolic aliases.
func (p *parser) keyword(kw string, aliases ...string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.text, kw) {
		return true
	}
	if t.kind == tokOp {
		for _, a := range aliases {
			if t.text == a {
				return true
			}
		}
	}
	return false
}

func (p *parser) or() (Expr, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.keyword("OR", "||") {
		p.advance()
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = &Logical{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) and() (Expr, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.keyword("AND", "&&") {
		p.advance()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = &Logical{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) unary() (Expr, error) {
	if p.keyword("NOT") {
		p.advance()
		inner, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &Not{Inner: inner}, nil
	}
	if p.peek().kind == tokLParen {
		p.advance()
		inner, err := p.or()
		if err != nil {
			return nil, err
		}
		if t := p.advance(); t.kind != tokRParen {
			return nil, fmt.Errorf("expected ) at position %d, got %q", t.pos, t.text)
		}
		return inner, nil
	}
	return p.term()
}

func (p *parser) term() (Expr, error) {
	left, err := p.operand()
	if err != nil {
		return nil, err
	}

	if p.keyword("exists") || p.keyword("in") {
		field, ok := left.(Field)
		if !ok {
			return nil, fmt.Errorf("%q needs a field on its left", p.peek().text)
		}
		if strings.EqualFold(p.advance().text, "exists") {
			return &Exists{Field: field}, nil
		}
		values, err := p.list()
		if err != nil {
			return nil, err
		}
		return &In{Field: field, Values: values}, nil
	}

	t := p.peek()
	var op Operator
	switch {
	case t.kind == tokOp && isComparison(t.text):
		op = Operator(t.text)
	case t.kind == tokIdent && strings.EqualFold(t.text, "contains"):
		op = OpContains
	case t.kind == tokIdent && strings.EqualFold(t.text, "matches"):
		op = OpMatches
	default:
		return nil, fmt.Errorf("expected comparison operator at position %d, got %q", t.pos, t.text)
	}
	p.advance()

	right, err := p.operand()
	if err != nil {
		return nil, err
	}
	c := &Compare{Left: left, Op: op, Right: right}
	if op == OpMatches {
		if lit, ok := right.(Literal); ok {
			pattern, ok := lit.Value.(string)
			if !ok {
				return nil, fmt.Errorf("matches: pattern must be a string")
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("matches: invalid regex %q: %w", pattern, err)
			}
			c.re = re
		}
	}
	return c, nil
}

func (p *parser) list() ([]any, error) {
	if t := p.advance(); t.kind != tokLBracket {
		return nil, fmt.Errorf("expected [ at position %d, got %q", t.pos, t.text)
	}
	var values []any
	for {
		op, err := p.operand()
		if err != nil {
			return nil, err
		}
		lit, ok := op.(Literal)
		if !ok {
			return nil, fmt.Errorf("list elements must be literals")
		}
		values = append(values, lit.Value)
		switch t := p.advance(); t.kind {
		case tokComma:
			continue
		case tokRBracket:
			return values, nil
		default:
			return nil, fmt.Errorf("expected , or ] at position %d, got %q", t.pos, t.text)
		}
	}
}

func (p *parser) operand() (Operand, error) {
	t := p.advance()
	switch t.kind {
	case tokString:
		return Literal{Value: t.text}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t.text)
		}
		return Literal{Value: f}, nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return Literal{Value: true}, nil
		case "false":
			return Literal{Value: false}, nil
		}
		return Field{Path: strings.Split(t.text, ".")}, nil
	default:
		if t.kind == tokEOF {
			return nil, fmt.Errorf("unexpected end of expression")
		}
		return nil, fmt.Errorf("expected operand at position %d, got %q", t.pos, t.text)
	}
}

func isComparison(op string) bool {
	switch Operator(op) {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
		return true
	}
	return false
}
