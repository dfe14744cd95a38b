package query

import (
	"strconv"
	"strings"

	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
)

// Parse interprets the restricted SQL dialect and produces a query IR.
// Accepted shape, keywords case-insensitive:
//
//	verb args FROM "<store>" [WHERE field op literal {AND ...}]
//	     [ORDER BY <idx> [DESC]] [LIMIT n] [OFFSET n]
//	verb := SELECT | [SELECT] agg
//	agg  := COUNT | SUM | AVG | MIN | MAX | CONCAT
//	args := * | <field> | ( <field> {, <field>} )
//	op   := = | > | >= | < | <=
//
// Literals are numbers or quoted strings; a ? placeholder consumes the next
// positional parameter. No joins, no subqueries, no grouping: anything else
// fails with SqlParseError naming the offending fragment.
func Parse(sql string, params ...interface{}) (*IR, error) {
	p := &parser{params: params}
	if err := p.tokenize(sql); err != nil {
		return nil, err
	}
	return p.parse()
}

type token struct {
	text  string
	str   bool // quoted string literal
	param bool // ? placeholder
}

type parser struct {
	tokens []token
	pos    int
	params []interface{}
	parami int
}

func (p *parser) tokenize(sql string) error {
	s := sql
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			for j < len(s) && s[j] != quote {
				j++
			}
			if j >= len(s) {
				return parseErr(s[i:])
			}
			p.tokens = append(p.tokens, token{text: s[i+1 : j], str: true})
			i = j + 1
		case c == '?':
			p.tokens = append(p.tokens, token{text: "?", param: true})
			i++
		case c == '*' || c == '(' || c == ')' || c == ',' || c == '=':
			p.tokens = append(p.tokens, token{text: string(c)})
			i++
		case c == '>' || c == '<':
			if i+1 < len(s) && s[i+1] == '=' {
				p.tokens = append(p.tokens, token{text: s[i : i+2]})
				i += 2
			} else {
				p.tokens = append(p.tokens, token{text: string(c)})
				i++
			}
		case isIdentByte(c) || c == '-':
			j := i + 1
			for j < len(s) && (isIdentByte(s[j]) || s[j] == '.') {
				j++
			}
			p.tokens = append(p.tokens, token{text: s[i:j]})
			i = j
		default:
			return parseErr(s[i:])
		}
	}
	return nil
}

func isIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

func parseErr(fragment string) error {
	if len(fragment) > 40 {
		fragment = fragment[:40]
	}
	return core.NewError(core.KindSqlParse, "cannot parse query near %q", fragment)
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) next() (token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *parser) keyword(want string) bool {
	t, ok := p.peek()
	if ok && !t.str && !t.param && strings.EqualFold(t.text, want) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) rest() string {
	if p.pos >= len(p.tokens) {
		return "<end of query>"
	}
	parts := make([]string, 0, len(p.tokens)-p.pos)
	for _, t := range p.tokens[p.pos:] {
		parts = append(parts, t.text)
	}
	return strings.Join(parts, " ")
}

var verbs = map[string]ReduceOp{
	"COUNT":  ReduceCount,
	"SUM":    ReduceSum,
	"AVG":    ReduceAvg,
	"MIN":    ReduceMin,
	"MAX":    ReduceMax,
	"CONCAT": ReduceConcat,
}

func (p *parser) parse() (*IR, error) {
	q := &IR{Direction: core.DirNext}

	verb, ok := p.next()
	if !ok {
		return nil, parseErr("<empty query>")
	}
	verbUpper := strings.ToUpper(verb.text)
	isSelect := verbUpper == "SELECT"
	reduceOp, isAggregate := verbs[verbUpper]
	if !isSelect && !isAggregate {
		return nil, parseErr(verb.text)
	}
	// SELECT may wrap an aggregate verb, as in SELECT SUM(price); the
	// aggregate form needs the verb to be followed by ( or *.
	if isSelect && p.pos+1 < len(p.tokens) {
		t, nt := p.tokens[p.pos], p.tokens[p.pos+1]
		if op, ok := verbs[strings.ToUpper(t.text)]; ok && !t.str && !nt.str && (nt.text == "(" || nt.text == "*") {
			p.pos++
			verbUpper = strings.ToUpper(t.text)
			isSelect, reduceOp, isAggregate = false, op, true
		}
	}

	fields, star, err := p.parseArgs()
	if err != nil {
		return nil, err
	}
	switch {
	case isSelect && !star && len(fields) > 0:
		q.Map = &MapSpec{Fields: fields}
	case isAggregate:
		spec := &ReduceSpec{Op: reduceOp}
		if len(fields) > 1 {
			return nil, parseErr(strings.Join(fields, ","))
		}
		if len(fields) == 1 {
			spec.Field = fields[0]
		}
		if !star && len(fields) == 0 {
			return nil, parseErr(p.rest())
		}
		if reduceOp != ReduceCount && spec.Field == "" {
			return nil, core.NewError(core.KindSqlParse, "%s requires a field argument", verbUpper)
		}
		q.Reduce = spec
	}

	if !p.keyword("FROM") {
		return nil, parseErr(p.rest())
	}
	store, ok := p.next()
	if !ok || store.param {
		return nil, parseErr(p.rest())
	}
	q.Store = store.text

	if p.keyword("WHERE") {
		if err := p.parseWheres(q); err != nil {
			return nil, err
		}
	}
	if p.keyword("ORDER") {
		if !p.keyword("BY") {
			return nil, parseErr(p.rest())
		}
		idx, ok := p.next()
		if !ok {
			return nil, parseErr("<end of query>")
		}
		q.Index = idx.text
		if p.keyword("DESC") {
			q.Direction = core.DirPrev
		} else {
			p.keyword("ASC")
		}
	}
	if p.keyword("LIMIT") {
		n, err := p.parseInt()
		if err != nil {
			return nil, err
		}
		q.Limit = n
	}
	if p.keyword("OFFSET") {
		n, err := p.parseInt()
		if err != nil {
			return nil, err
		}
		q.Offset = n
	}
	if t, ok := p.peek(); ok {
		return nil, parseErr(t.text)
	}
	return q, nil
}

// parseArgs reads the verb argument list: *, a single field, or a
// parenthesized field list. Returns (fields, sawStar).
func (p *parser) parseArgs() ([]string, bool, error) {
	t, ok := p.peek()
	if !ok {
		return nil, false, parseErr("<end of query>")
	}
	if t.text == "*" && !t.str {
		p.pos++
		return nil, true, nil
	}
	if t.text == "(" && !t.str {
		p.pos++
		var fields []string
		for {
			f, ok := p.next()
			if !ok || f.str || f.param {
				return nil, false, parseErr(p.rest())
			}
			fields = append(fields, f.text)
			sep, ok := p.next()
			if !ok {
				return nil, false, parseErr("<end of query>")
			}
			if sep.text == ")" {
				return fields, false, nil
			}
			if sep.text != "," {
				return nil, false, parseErr(sep.text)
			}
		}
	}
	// A bare field; FROM here means the args were omitted.
	if strings.EqualFold(t.text, "FROM") {
		return nil, false, nil
	}
	p.pos++
	return []string{t.text}, false, nil
}

func (p *parser) parseWheres(q *IR) error {
	for {
		field, ok := p.next()
		if !ok || field.str || field.param {
			return parseErr(p.rest())
		}
		op, ok := p.next()
		if !ok {
			return parseErr("<end of query>")
		}
		lit, err := p.parseLiteral()
		if err != nil {
			return err
		}
		var w key.Where
		switch op.text {
		case "=":
			w = key.WhereOnly(field.text, lit)
		case ">":
			w = key.Where{Field: field.text, Range: key.LowerBound(lit, true)}
		case ">=":
			w = key.Where{Field: field.text, Range: key.LowerBound(lit, false)}
		case "<":
			w = key.Where{Field: field.text, Range: key.UpperBound(lit, true)}
		case "<=":
			w = key.Where{Field: field.text, Range: key.UpperBound(lit, false)}
		default:
			return parseErr(op.text)
		}
		if err := q.AddWhere(w); err != nil {
			return err
		}
		if !p.keyword("AND") {
			return nil
		}
	}
}

func (p *parser) parseLiteral() (key.Key, error) {
	t, ok := p.next()
	if !ok {
		return key.Key{}, parseErr("<end of query>")
	}
	if t.param {
		if p.parami >= len(p.params) {
			return key.Key{}, core.NewError(core.KindArgument, "not enough parameters for placeholders")
		}
		v := p.params[p.parami]
		p.parami++
		return key.FromValue(v)
	}
	if t.str {
		return key.String(t.text), nil
	}
	if f, err := strconv.ParseFloat(t.text, 64); err == nil {
		return key.Number(f), nil
	}
	return key.Key{}, parseErr(t.text)
}

func (p *parser) parseInt() (int, error) {
	t, ok := p.next()
	if !ok {
		return 0, parseErr("<end of query>")
	}
	n, err := strconv.Atoi(t.text)
	if err != nil || n < 0 {
		return 0, parseErr(t.text)
	}
	return n, nil
}
