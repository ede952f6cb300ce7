package expr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrSyntax indicates an expression that cannot be compiled.
var ErrSyntax = errors.New("expression syntax error")

// BinaryOp compares two resolved values.
type BinaryOp func(left, right any) bool

// Compiler compiles expressions with optional custom operators.
type Compiler struct {
	customOps map[string]BinaryOp
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithCustomOperator registers a word operator usable between two values,
// for example "name matches '^a'". Built-in names cannot be overridden.
func WithCustomOperator(name string, fn BinaryOp) Option {
	return func(c *Compiler) {
		if c.customOps == nil {
			c.customOps = make(map[string]BinaryOp)
		}
		c.customOps[strings.ToLower(name)] = fn
	}
}

// New creates a Compiler.
func New(opts ...Option) *Compiler {
	c := &Compiler{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Program is a compiled expression. It is immutable and safe for
// concurrent use.
type Program struct {
	src  string
	root node
}

// Source returns the expression text.
func (p *Program) Source() string {
	return p.src
}

// Eval evaluates the program against payload and reports its truthiness.
// Operator panics from custom operators are returned as errors.
func (p *Program) Eval(payload any) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluate %q: %v", p.src, r)
		}
	}()
	return IsTruthy(p.root.eval(payload)), nil
}

// Compile parses src with the default compiler.
func Compile(src string) (*Program, error) {
	return New().Compile(src)
}

// Eval compiles and evaluates src in one step.
func Eval(src string, payload any) (bool, error) {
	p, err := Compile(src)
	if err != nil {
		return false, err
	}
	return p.Eval(payload)
}

// Compile parses src into a Program.
func (c *Compiler) Compile(src string) (*Program, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks, ops: c.customOps}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %s", ErrSyntax, t)
	}
	return &Program{src: src, root: root}, nil
}

type parser struct {
	toks []token
	pos  int
	ops  map[string]BinaryOp
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isWord(words ...string) bool {
	t := p.peek()
	if t.kind == tokIdent {
		for _, w := range words {
			if strings.EqualFold(t.text, w) {
				return true
			}
		}
	}
	if t.kind == tokOp {
		for _, w := range words {
			if t.text == w {
				return true
			}
		}
	}
	return false
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isWord("or", "||") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isWord("and", "&&") {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.isWord("not", "!") {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	t := p.peek()
	var cmp BinaryOp
	switch {
	case t.kind == tokOp:
		cmp = builtinOps[t.text]
	case t.kind == tokIdent && strings.EqualFold(t.text, "contains"):
		cmp = builtinOps["contains"]
	case t.kind == tokIdent:
		cmp = p.ops[strings.ToLower(t.text)]
	}
	if cmp == nil {
		return left, nil
	}
	p.next()

	right, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return cmpNode{op: t.text, fn: cmp, left: left, right: right}, nil
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("%w: expected ')' but found %s", ErrSyntax, closing)
		}
		return inner, nil

	case tokString:
		return literal{t.text}, nil

	case tokNumber:
		var num json.Number
		if err := json.Unmarshal([]byte(t.text), &num); err != nil {
			return nil, fmt.Errorf("%w: bad number %s", ErrSyntax, t)
		}
		if i, err := num.Int64(); err == nil {
			return literal{i}, nil
		}
		f, err := num.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %s", ErrSyntax, t)
		}
		return literal{f}, nil

	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return literal{true}, nil
		case "false":
			return literal{false}, nil
		case "null", "nil":
			return literal{nil}, nil
		case "and", "or", "not", "contains":
			return nil, fmt.Errorf("%w: unexpected keyword %s", ErrSyntax, t)
		}
		if _, custom := p.ops[strings.ToLower(t.text)]; custom {
			return nil, fmt.Errorf("%w: unexpected operator %s", ErrSyntax, t)
		}
		segs := strings.Split(t.text, ".")
		for _, s := range segs {
			if s == "" {
				return nil, fmt.Errorf("%w: bad path %s", ErrSyntax, t)
			}
		}
		return pathNode(segs), nil

	default:
		return nil, fmt.Errorf("%w: unexpected %s", ErrSyntax, t)
	}
}
