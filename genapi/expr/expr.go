// Package expr evaluates the arithmetic formulas of SwissKnife and converter
// features.
//
// The grammar is the usual C-like one: numbers (decimal, float, 0x hex),
// variable names, parentheses, unary - + ! ~, the binary operators
// ** * / % + - << >> & ^ | < <= > >= = == <> != && || and the ternary ?:.
// Comparisons and logic yield 1 or 0.  A few functions are available:
// ABS, SQRT, TRUNC, FLOOR, CEIL, ROUND, MIN, MAX.
//
// A formula is compiled once and evaluated against a variable lookup.
package expr

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Vars resolves variable names to values during evaluation
type Vars interface {
	Lookup(name string) (float64, error)
}

// Map is a Vars backed by a map
type Map map[string]float64

// Lookup satisfies Vars
func (m Map) Lookup(name string) (float64, error) {
	v, ok := m[name]
	if !ok {
		return 0, fmt.Errorf("expr: variable %s is not defined", name)
	}
	return v, nil
}

// Expr is a compiled formula
type Expr struct {
	src  string
	root node
	vars []string
}

// Compile parses a formula
func Compile(src string) (*Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, vars: map[string]struct{}{}}
	root, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("expr: unexpected %q at %d in %q", t.text, t.pos, src)
	}
	vars := make([]string, 0, len(p.vars))
	for k := range p.vars {
		vars = append(vars, k)
	}
	sort.Strings(vars)
	return &Expr{src: src, root: root, vars: vars}, nil
}

// MustCompile is like Compile but panics on error.  It is meant for
// formulas that are constants of the program.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns the source of the formula
func (e *Expr) String() string {
	return e.src
}

// Vars returns the sorted names of the variables the formula refers to
func (e *Expr) Vars() []string {
	return e.vars
}

// Eval evaluates the formula
func (e *Expr) Eval(v Vars) (float64, error) {
	return e.root.eval(v)
}

type node interface {
	eval(Vars) (float64, error)
}

type num float64

func (n num) eval(Vars) (float64, error) { return float64(n), nil }

type ident string

func (n ident) eval(v Vars) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("expr: variable %s is not defined", string(n))
	}
	return v.Lookup(string(n))
}

type unary struct {
	op string
	x  node
}

func (n unary) eval(v Vars) (float64, error) {
	x, err := n.x.eval(v)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case "-":
		return -x, nil
	case "+":
		return x, nil
	case "!":
		return b2f(x == 0), nil
	case "~":
		return float64(^int64(x)), nil
	}
	return 0, fmt.Errorf("expr: unknown unary operator %s", n.op)
}

type binary struct {
	op   string
	l, r node
}

func (n binary) eval(v Vars) (float64, error) {
	l, err := n.l.eval(v)
	if err != nil {
		return 0, err
	}
	// short circuit
	switch n.op {
	case "&&":
		if l == 0 {
			return 0, nil
		}
	case "||":
		if l != 0 {
			return 1, nil
		}
	}
	r, err := n.r.eval(v)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return 0, fmt.Errorf("expr: division by zero")
		}
		return l / r, nil
	case "%":
		if int64(r) == 0 {
			return 0, fmt.Errorf("expr: modulo by zero")
		}
		return float64(int64(l) % int64(r)), nil
	case "**":
		return math.Pow(l, r), nil
	case "<<":
		return float64(int64(l) << uint64(r)), nil
	case ">>":
		return float64(int64(l) >> uint64(r)), nil
	case "&":
		return float64(int64(l) & int64(r)), nil
	case "|":
		return float64(int64(l) | int64(r)), nil
	case "^":
		return float64(int64(l) ^ int64(r)), nil
	case "<":
		return b2f(l < r), nil
	case "<=":
		return b2f(l <= r), nil
	case ">":
		return b2f(l > r), nil
	case ">=":
		return b2f(l >= r), nil
	case "=", "==":
		return b2f(l == r), nil
	case "<>", "!=":
		return b2f(l != r), nil
	case "&&", "||":
		return b2f(r != 0), nil
	}
	return 0, fmt.Errorf("expr: unknown operator %s", n.op)
}

type ternary struct {
	cond, a, b node
}

func (n ternary) eval(v Vars) (float64, error) {
	c, err := n.cond.eval(v)
	if err != nil {
		return 0, err
	}
	if c != 0 {
		return n.a.eval(v)
	}
	return n.b.eval(v)
}

type call struct {
	fn   string
	args []node
}

var funcs = map[string]struct {
	arity int
	f     func(a []float64) float64
}{
	"ABS":   {1, func(a []float64) float64 { return math.Abs(a[0]) }},
	"SQRT":  {1, func(a []float64) float64 { return math.Sqrt(a[0]) }},
	"TRUNC": {1, func(a []float64) float64 { return math.Trunc(a[0]) }},
	"FLOOR": {1, func(a []float64) float64 { return math.Floor(a[0]) }},
	"CEIL":  {1, func(a []float64) float64 { return math.Ceil(a[0]) }},
	"ROUND": {1, func(a []float64) float64 { return math.Round(a[0]) }},
	"MIN":   {2, func(a []float64) float64 { return math.Min(a[0], a[1]) }},
	"MAX":   {2, func(a []float64) float64 { return math.Max(a[0], a[1]) }},
}

func (n call) eval(v Vars) (float64, error) {
	args := make([]float64, len(n.args))
	for i, a := range n.args {
		x, err := a.eval(v)
		if err != nil {
			return 0, err
		}
		args[i] = x
	}
	return funcs[n.fn].f(args), nil
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// binding powers, loosest first
var infix = map[string]int{
	"?":  1,
	"||": 2,
	"&&": 3,
	"|":  4,
	"^":  5,
	"&":  6,
	"=":  7, "==": 7, "<>": 7, "!=": 7,
	"<": 8, "<=": 8, ">": 8, ">=": 8,
	"<<": 9, ">>": 9,
	"+": 10, "-": 10,
	"*": 11, "/": 11, "%": 11,
	"**": 13,
}

const prefixPower = 12

type parser struct {
	toks []token
	i    int
	vars map[string]struct{}
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) expr(minPower int) (node, error) {
	left, err := p.prefix()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp {
			return left, nil
		}
		power, ok := infix[t.text]
		if !ok || power <= minPower {
			return left, nil
		}
		p.next()
		if t.text == "?" {
			a, err := p.expr(0)
			if err != nil {
				return nil, err
			}
			if c := p.next(); c.kind != tokOp || c.text != ":" {
				return nil, fmt.Errorf("expr: expected : at %d", c.pos)
			}
			b, err := p.expr(power - 1)
			if err != nil {
				return nil, err
			}
			left = ternary{cond: left, a: a, b: b}
			continue
		}
		rp := power
		if t.text == "**" {
			rp-- // right associative
		}
		right, err := p.expr(rp)
		if err != nil {
			return nil, err
		}
		left = binary{op: t.text, l: left, r: right}
	}
}

func (p *parser) prefix() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNum:
		return num(t.num), nil
	case tokIdent:
		if p.peek().kind == tokLParen {
			return p.call(t)
		}
		p.vars[t.text] = struct{}{}
		return ident(t.text), nil
	case tokLParen:
		n, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != tokRParen {
			return nil, fmt.Errorf("expr: expected ) at %d", c.pos)
		}
		return n, nil
	case tokOp:
		switch t.text {
		case "-", "+", "!", "~":
			x, err := p.expr(prefixPower)
			if err != nil {
				return nil, err
			}
			return unary{op: t.text, x: x}, nil
		}
	case tokEOF:
		return nil, fmt.Errorf("expr: unexpected end of formula")
	}
	return nil, fmt.Errorf("expr: unexpected %q at %d", t.text, t.pos)
}

func (p *parser) call(name token) (node, error) {
	fn := strings.ToUpper(name.text)
	def, ok := funcs[fn]
	if !ok {
		return nil, fmt.Errorf("expr: unknown function %s at %d", name.text, name.pos)
	}
	p.next() // (
	var args []node
	if p.peek().kind != tokRParen {
		for {
			a, err := p.expr(0)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if c := p.next(); c.kind != tokRParen {
		return nil, fmt.Errorf("expr: expected ) at %d", c.pos)
	}
	if len(args) != def.arity {
		return nil, fmt.Errorf("expr: %s takes %d arguments, got %d", fn, def.arity, len(args))
	}
	return call{fn: fn, args: args}, nil
}
