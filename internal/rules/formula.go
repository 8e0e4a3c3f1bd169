// Formula implements the closed expression grammar used by the "calculate"
// transform. The grammar is deliberately tiny:
//
//	expr   := term   (('+' | '-') term)*
//	term   := factor (('*' | '/') factor)*
//	factor := NUMBER | COLUMN | '-' factor | '(' expr ')'
//	COLUMN := [A-Za-z_][A-Za-z0-9_]*
//
// There are no function calls, no indexing, no strings, and no access to
// anything outside the supplied column lookup. This replaces the generic
// evaluate-arbitrary-expression approach with one that cannot execute
// data-driven code.
package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Formula is a parsed arithmetic expression over column references.
type Formula struct {
	src  string
	root node
	cols []string
}

// ParseFormula parses src. Any token outside the grammar is an error.
func ParseFormula(src string) (*Formula, error) {
	toks, err := lexFormula(src)
	if err != nil {
		return nil, err
	}
	p := &formulaParser{toks: toks}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, fmt.Errorf("formula %q: unexpected %q", src, p.peek().text)
	}

	seen := map[string]struct{}{}
	collectColumns(root, seen)
	cols := make([]string, 0, len(seen))
	for c := range seen {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	return &Formula{src: src, root: root, cols: cols}, nil
}

// Columns returns the sorted set of column names the formula references.
func (f *Formula) Columns() []string { return append([]string(nil), f.cols...) }

// String returns the original source text.
func (f *Formula) String() string { return f.src }

// Eval computes the formula for one row. get resolves a column reference to
// its numeric value; a false return (non-numeric or null cell) makes the whole
// evaluation report false, as does division by zero. The caller stores a null
// cell in that case, mirroring parse-as-date's coerce-to-null behavior.
func (f *Formula) Eval(get func(column string) (float64, bool)) (float64, bool) {
	return f.root.eval(get)
}

// ---- AST ----

type node interface {
	eval(get func(string) (float64, bool)) (float64, bool)
}

type numNode float64

func (n numNode) eval(func(string) (float64, bool)) (float64, bool) { return float64(n), true }

type colNode string

func (n colNode) eval(get func(string) (float64, bool)) (float64, bool) { return get(string(n)) }

type negNode struct{ x node }

func (n negNode) eval(get func(string) (float64, bool)) (float64, bool) {
	v, ok := n.x.eval(get)
	return -v, ok
}

type binNode struct {
	op   byte // '+', '-', '*', '/'
	l, r node
}

func (n binNode) eval(get func(string) (float64, bool)) (float64, bool) {
	l, ok := n.l.eval(get)
	if !ok {
		return 0, false
	}
	r, ok := n.r.eval(get)
	if !ok {
		return 0, false
	}
	switch n.op {
	case '+':
		return l + r, true
	case '-':
		return l - r, true
	case '*':
		return l * r, true
	default:
		if r == 0 {
			return 0, false
		}
		return l / r, true
	}
}

func collectColumns(n node, out map[string]struct{}) {
	switch t := n.(type) {
	case colNode:
		out[string(t)] = struct{}{}
	case negNode:
		collectColumns(t.x, out)
	case binNode:
		collectColumns(t.l, out)
		collectColumns(t.r, out)
	}
}

// ---- lexer ----

type tokKind uint8

const (
	tokEOF tokKind = iota
	tokNumber
	tokIdent
	tokOp     // + - * /
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	num  float64
}

func lexFormula(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '+' || r == '-' || r == '*' || r == '/':
			toks = append(toks, token{kind: tokOp, text: string(r)})
			i++
		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "("})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")"})
			i++
		case r >= '0' && r <= '9' || r == '.':
			j := i
			for j < len(rs) && (rs[j] >= '0' && rs[j] <= '9' || rs[j] == '.') {
				j++
			}
			text := string(rs[i:j])
			n, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("formula %q: bad number %q", src, text)
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: n})
			i = j
		case r == '_' || unicode.IsLetter(r):
			j := i
			for j < len(rs) && (rs[j] == '_' || unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j])) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: string(rs[i:j])})
			i = j
		default:
			return nil, fmt.Errorf("formula %q: illegal character %q", src, string(r))
		}
	}
	toks = append(toks, token{kind: tokEOF})
	return toks, nil
}

// ---- parser ----

type formulaParser struct {
	toks []token
	pos  int
}

func (p *formulaParser) peek() token { return p.toks[p.pos] }
func (p *formulaParser) next() token { t := p.toks[p.pos]; p.pos++; return t }
func (p *formulaParser) eof() bool   { return p.peek().kind == tokEOF }

func (p *formulaParser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && (p.peek().text == "+" || p.peek().text == "-") {
		op := p.next().text[0]
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binNode{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *formulaParser) parseTerm() (node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && (p.peek().text == "*" || p.peek().text == "/") {
		op := p.next().text[0]
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = binNode{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *formulaParser) parseFactor() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return numNode(t.num), nil
	case tokIdent:
		return colNode(t.text), nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("formula: missing closing parenthesis")
		}
		return inner, nil
	case tokOp:
		if t.text == "-" {
			x, err := p.parseFactor()
			if err != nil {
				return nil, err
			}
			return negNode{x: x}, nil
		}
	}
	if t.kind == tokEOF {
		return nil, fmt.Errorf("formula: unexpected end of expression")
	}
	return nil, fmt.Errorf("formula: unexpected %q", strings.TrimSpace(t.text))
}
