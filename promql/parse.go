package promql

import (
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/common/model"
	"golang.org/x/exp/slices"

	"github.com/wubin1989/gopromql/duration"
)

type parser struct {
	lex    *Lexer
	token  Item // One-token lookahead buffer, valid when peeked is set.
	peeked bool
	input  string
}

// Parse parses the input into an expression. It returns exactly one
// expression or the first error encountered; there is no recovery and
// no partial tree is returned alongside an error.
func Parse(input string) (expr Expr, err error) {
	p := newParser(input)
	defer p.recover(&err)

	// The named return is only assigned once all checks have passed.
	e := p.parseExpr()
	p.checkAST(e)
	return e, nil
}

// ParseMetricSelector parses the provided string into a metric
// selector and returns its label matcher groups.
func ParseMetricSelector(input string) (ms *Matchers, err error) {
	p := newParser(input)
	defer p.recover(&err)

	name := ""
	var start Pos
	if t := p.peek(); t.Typ == IDENTIFIER || t.Typ == METRIC_IDENTIFIER {
		start = t.Pos
		name = p.next().Val
	}
	vs := p.vectorSelector(name, start)
	if t := p.next(); t.Typ != EOF {
		p.errAt(ErrSyntax, t.PositionRange(), errors.Errorf("could not parse remaining input %q", p.input[t.Pos:]))
	}
	return vs.LabelMatchers, nil
}

func newParser(input string) *parser {
	return &parser{
		lex:   Lex(input),
		input: input,
	}
}

// parseExpr parses a single expression and requires it to consume the
// whole input.
func (p *parser) parseExpr() Expr {
	e := p.expr()
	if t := p.next(); t.Typ != EOF {
		p.errAt(ErrSyntax, t.PositionRange(), errors.Errorf("unexpected trailing input starting with %s", t.desc()))
	}
	return e
}

// next returns the next token.
func (p *parser) next() Item {
	if p.peeked {
		p.peeked = false
	} else {
		t := Item{}
		p.lex.NextItem(&t)
		// Skip comments.
		for t.Typ == COMMENT {
			p.lex.NextItem(&t)
		}
		p.token = t
	}
	if p.token.Typ == ERROR {
		p.errAt(ErrLex, PositionRange{Start: p.token.Pos, End: Pos(len(p.input))}, errors.New(p.token.Val))
	}
	return p.token
}

// peek returns but does not consume the next token.
func (p *parser) peek() Item {
	if p.peeked {
		return p.token
	}
	t := Item{}
	p.lex.NextItem(&t)
	for t.Typ == COMMENT {
		p.lex.NextItem(&t)
	}
	p.token = t
	p.peeked = true
	return p.token
}

// backup backs the input stream up one token. Can only be called once
// per call of next.
func (p *parser) backup() {
	p.peeked = true
}

// expect consumes the next token and guarantees it has the required type.
func (p *parser) expect(exp ItemType, context string) Item {
	t := p.next()
	if t.Typ != exp {
		p.errAt(ErrSyntax, t.PositionRange(), errors.Errorf("unexpected %s in %s, expected %s", t.desc(), context, exp.desc()))
	}
	return t
}

// errAt aborts the parse with an error of the given kind at the given
// range.
func (p *parser) errAt(kind ErrorKind, rng PositionRange, err error) {
	perr := &ParseErr{
		Kind:  kind,
		Range: rng,
		Err:   err,
		Query: p.input,
	}
	if kind == ErrLex {
		perr.Lex = p.lex.lexKind
	}
	panic(perr)
}

// typeErrorf aborts the parse with a type error at the node's range.
func (p *parser) typeErrorf(n Node, format string, args ...interface{}) {
	p.errAt(ErrType, n.PositionRange(), errors.Errorf(format, args...))
}

// recover is the handler that turns panics into returns from the top
// level of Parse.
func (p *parser) recover(errp *error) {
	e := recover()
	switch err := e.(type) {
	case nil:
	case runtime.Error:
		buf := make([]byte, 64<<10)
		buf = buf[:runtime.Stack(buf, false)]
		*errp = errors.Errorf("unexpected runtime panic: %v\n%s", e, buf)
	case *ParseErr:
		*errp = err
	default:
		panic(e)
	}
}

// expr parses any expression.
func (p *parser) expr() Expr {
	return p.binaryExpr(p.unaryExpr(), LowestPrec+1)
}

// binaryExpr climbs the operator precedence ladder starting from lhs,
// consuming operators whose precedence is at least minPrec.
func (p *parser) binaryExpr(lhs Expr, minPrec int) Expr {
	for {
		op := p.peek().Typ
		prec := op.Precedence()
		if prec < minPrec || prec == LowestPrec {
			return lhs
		}
		p.next()

		modifier := p.binModifiers(op)

		rhs := p.unaryExpr()
	climb:
		for {
			nextOp := p.peek().Typ
			nextPrec := nextOp.Precedence()
			switch {
			case nextPrec > prec:
				rhs = p.binaryExpr(rhs, prec+1)
			case nextPrec == prec && nextOp.IsRightAssociative():
				rhs = p.binaryExpr(rhs, prec)
			default:
				break climb
			}
		}

		lhs = &BinaryExpr{Op: op, LHS: lhs, RHS: rhs, Modifier: modifier}
	}
}

// binModifiers parses the bool, matching and grouping modifiers that
// may follow a binary operator. It returns nil when none are given and
// the operator does not force a cardinality.
func (p *parser) binModifiers(op ItemType) *BinModifier {
	mod := &BinModifier{Card: CardOneToOne}
	present := false

	if op.IsSetOperator() {
		mod.Card = CardManyToMany
		present = true
	}

	if p.peek().Typ == BOOL {
		boolItem := p.next()
		if !op.IsComparisonOperator() {
			p.errAt(ErrSyntax, boolItem.PositionRange(), errors.New("bool modifier can only be used on comparison operators"))
		}
		mod.ReturnBool = true
		present = true
	}

	switch t := p.peek().Typ; t {
	case ON, IGNORING:
		p.next()
		kind := LabelInclude
		if t == IGNORING {
			kind = LabelExclude
		}
		labels, _ := p.labelList("grouping opts")
		mod.Matching = &LabelModifier{Kind: kind, Labels: labels}
		present = true

		if g := p.peek().Typ; g == GROUP_LEFT || g == GROUP_RIGHT {
			p.next()
			if g == GROUP_LEFT {
				mod.Card = CardManyToOne
			} else {
				mod.Card = CardOneToMany
			}
			if p.peek().Typ == LEFT_PAREN {
				mod.Include, _ = p.labelList("grouping opts")
			}
		}
	case GROUP_LEFT, GROUP_RIGHT:
		g := p.next()
		p.errAt(ErrSyntax, g.PositionRange(), errors.Errorf("unexpected %s: grouping requires a preceding on or ignoring clause", g.desc()))
	}

	if !present {
		return nil
	}
	return mod
}

// unaryExpr parses a unary expression. The unary sign binds looser
// than exponentiation only, so -x^2 parses as -(x^2) but -x*2 parses
// as (-x)*2.
func (p *parser) unaryExpr() Expr {
	switch t := p.peek(); t.Typ {
	case ADD, SUB:
		p.next()
		next := p.unaryExpr()
		next = p.binaryExpr(next, POW.Precedence())

		// Simplify unary expressions for number literals.
		if nl, ok := next.(*NumberLiteral); ok {
			if t.Typ == SUB {
				nl.Val *= -1
			}
			nl.PosRange.Start = t.Pos
			return nl
		}
		return &UnaryExpr{Op: t.Typ, Expr: next, StartPos: t.Pos}
	}

	e := p.primaryExpr()

	// Parse subsequent range selectors, subqueries, offset and @
	// modifiers.
	for {
		switch p.peek().Typ {
		case LEFT_BRACKET:
			e = p.rangeOrSubquery(e)
		case OFFSET:
			e = p.offsetModifier(e)
		case AT:
			e = p.atModifier(e)
		default:
			return e
		}
	}
}

// primaryExpr parses literals, selectors, calls, aggregations and
// parenthesized expressions.
func (p *parser) primaryExpr() Expr {
	switch t := p.next(); {
	case t.Typ == NUMBER:
		return &NumberLiteral{Val: p.number(t), PosRange: t.PositionRange()}

	case t.Typ == STRING:
		return &StringLiteral{Val: p.unquoteString(t), PosRange: t.PositionRange()}

	case t.Typ == LEFT_PAREN:
		e := p.expr()
		end := p.expect(RIGHT_PAREN, "paren expression")
		return &ParenExpr{Expr: e, PosRange: PositionRange{Start: t.Pos, End: end.Pos + 1}}

	case t.Typ.IsAggregator():
		p.backup()
		return p.aggrExpr()

	case t.Typ == IDENTIFIER:
		if p.peek().Typ == LEFT_PAREN {
			return p.call(t)
		}
		return p.vectorSelector(t.Val, t.Pos)

	case t.Typ == METRIC_IDENTIFIER:
		return p.vectorSelector(t.Val, t.Pos)

	case t.Typ == LEFT_BRACE:
		p.backup()
		return p.vectorSelector("", t.Pos)

	default:
		p.errAt(ErrSyntax, t.PositionRange(), errors.Errorf("no valid expression found, unexpected %s", t.desc()))
	}
	return nil
}

// number parses a number literal token.
func (p *parser) number(t Item) float64 {
	n, err := strconv.ParseInt(t.Val, 0, 64)
	f := float64(n)
	if err != nil {
		f, err = strconv.ParseFloat(t.Val, 64)
	}
	if err != nil {
		p.errAt(ErrSyntax, t.PositionRange(), errors.Errorf("error parsing number %q", t.Val))
	}
	return f
}

// unquoteString resolves the quoting and escape sequences of a string
// literal token.
func (p *parser) unquoteString(t Item) string {
	s, err := unquote(t.Val)
	if err != nil {
		p.errAt(ErrSyntax, t.PositionRange(), errors.Wrapf(err, "error unquoting string %q", t.Val))
	}
	return s
}

// unquote interprets s as a string literal in any of the three quoting
// styles: double quotes and backticks are handled by strconv, single
// quotes by unquoting character-wise with ' as the quote rune.
func unquote(s string) (string, error) {
	if len(s) < 2 {
		return "", errors.New("string literal too short")
	}
	switch s[0] {
	case '"', '`':
		return strconv.Unquote(s)
	case '\'':
		body := s[1 : len(s)-1]
		var b strings.Builder
		for len(body) > 0 {
			c, _, rest, err := strconv.UnquoteChar(body, '\'')
			if err != nil {
				return "", err
			}
			b.WriteRune(c)
			body = rest
		}
		return b.String(), nil
	}
	return "", errors.Errorf("unknown quoting style in %q", s)
}

// parseDuration parses a duration literal token. Durations in queries
// must be positive.
func (p *parser) parseDuration(t Item) time.Duration {
	d, err := duration.Parse(t.Val)
	if err != nil {
		p.errAt(ErrDuration, t.PositionRange(), err)
	}
	if d == 0 {
		p.errAt(ErrDuration, t.PositionRange(), errors.New("duration must be greater than 0"))
	}
	return d
}

// call parses a function call. The function name has already been
// consumed.
func (p *parser) call(name Item) *Call {
	fn, ok := GetFunction(name.Val)
	if !ok {
		p.errAt(ErrSyntax, name.PositionRange(), errors.Errorf("unknown function with name %q", name.Val))
	}
	p.expect(LEFT_PAREN, "function call")

	var args Expressions
	if p.peek().Typ != RIGHT_PAREN {
		for {
			args = append(args, p.expr())
			if p.peek().Typ != COMMA {
				break
			}
			p.next()
		}
	}
	end := p.expect(RIGHT_PAREN, "function call")

	return &Call{
		Func:     fn,
		Args:     args,
		PosRange: PositionRange{Start: name.Pos, End: end.Pos + 1},
	}
}

// aggrExpr parses an aggregation expression. The grouping clause may
// precede or follow the parenthesized argument list; both forms yield
// the same node.
func (p *parser) aggrExpr() *AggregateExpr {
	agop := p.next()
	if !agop.Typ.IsAggregator() {
		p.errAt(ErrSyntax, agop.PositionRange(), errors.Errorf("expected aggregation operator but got %s", agop))
	}

	var mod *AggModifier
	modifiersFirst := false

	if t := p.peek().Typ; t == BY || t == WITHOUT {
		p.next()
		kind := AggBy
		if t == WITHOUT {
			kind = AggWithout
		}
		labels, _ := p.labelList("aggregation")
		mod = &AggModifier{Kind: kind, Labels: labels}
		modifiersFirst = true
	}

	p.expect(LEFT_PAREN, "aggregation")
	var param Expr
	if agop.Typ.IsAggregatorWithParam() {
		param = p.expr()
		p.expect(COMMA, "aggregation")
	}
	e := p.expr()
	endItem := p.expect(RIGHT_PAREN, "aggregation")
	end := endItem.Pos + 1

	if !modifiersFirst {
		if t := p.peek().Typ; t == BY || t == WITHOUT {
			p.next()
			kind := AggBy
			if t == WITHOUT {
				kind = AggWithout
			}
			var labels []string
			labels, end = p.labelList("aggregation")
			mod = &AggModifier{Kind: kind, Labels: labels}
		}
	}

	return &AggregateExpr{
		Op:       agop.Typ,
		Expr:     e,
		Param:    param,
		Modifier: mod,
		PosRange: PositionRange{Start: agop.Pos, End: end},
	}
}

// labelList parses a parenthesized list of label names, which may be
// empty. It returns the labels and the position just past the closing
// parenthesis.
func (p *parser) labelList(context string) ([]string, Pos) {
	p.expect(LEFT_PAREN, context)
	labels := []string{}
	if p.peek().Typ != RIGHT_PAREN {
		for {
			t := p.next()
			if !isLabel(t) {
				p.errAt(ErrSyntax, t.PositionRange(), errors.Errorf("unexpected %s in %s, expected label", t.desc(), context))
			}
			if slices.Contains(labels, t.Val) {
				p.errAt(ErrSyntax, t.PositionRange(), errors.Errorf("duplicate label %q in %s", t.Val, context))
			}
			labels = append(labels, t.Val)
			if p.peek().Typ != COMMA {
				break
			}
			p.next()
		}
	}
	end := p.expect(RIGHT_PAREN, context)
	return labels, end.Pos + 1
}

// isLabel reports whether the Item can serve as a label name in a
// grouping clause. Keywords, aggregators and word operators double as
// label names there.
func isLabel(t Item) bool {
	switch {
	case t.Typ == IDENTIFIER,
		t.Typ.IsKeyword(),
		t.Typ.IsAggregator(),
		t.Typ == LAND, t.Typ == LOR, t.Typ == LUNLESS, t.Typ == ATAN2:
		return model.LabelName(t.Val).IsValid()
	}
	return false
}

// vectorSelector parses a vector selector. The metric name, when
// present, has already been consumed.
func (p *parser) vectorSelector(name string, startPos Pos) *VectorSelector {
	ms := &Matchers{}
	end := startPos + Pos(len(name))
	if p.peek().Typ == LEFT_BRACE {
		ms, end = p.labelMatchers()
	}

	if name != "" {
		for _, group := range ms.groups() {
			for _, m := range group {
				if m.Name == model.MetricNameLabel {
					p.errAt(ErrSyntax, PositionRange{Start: startPos, End: end},
						errors.Errorf("metric name must not be set twice: %q or %q", name, m.Value))
				}
			}
		}
		nameMatcher, err := NewMatcher(MatchEqual, model.MetricNameLabel, name)
		if err != nil {
			// The lexer guarantees the name is a valid identifier.
			panic(err)
		}
		ms.Matchers = append(ms.Matchers, nameMatcher)
	}

	if !ms.hasNonEmpty() {
		p.errAt(ErrSyntax, PositionRange{Start: startPos, End: end},
			errors.New("vector selector must contain at least one non-empty matcher"))
	}

	return &VectorSelector{
		Name:          name,
		LabelMatchers: ms,
		PosRange:      PositionRange{Start: startPos, End: end},
	}
}

// labelMatchers parses the braced part of a vector selector into
// matcher groups separated by "or". Insertion order is preserved
// within each group.
func (p *parser) labelMatchers() (*Matchers, Pos) {
	p.expect(LEFT_BRACE, "label matching")
	ms := &Matchers{}
	var group []*Matcher

	flush := func() {
		if ms.Matchers == nil {
			ms.Matchers = group
		} else {
			ms.OrMatchers = append(ms.OrMatchers, group)
		}
		group = nil
	}

Loop:
	for p.peek().Typ != RIGHT_BRACE {
		if len(group) > 0 {
			switch t := p.next(); t.Typ {
			case COMMA:
				if p.peek().Typ == RIGHT_BRACE {
					// Trailing commas are allowed.
					break Loop
				}
			case LOR:
				flush()
				continue
			default:
				p.errAt(ErrSyntax, t.PositionRange(),
					errors.Errorf("unexpected %s in label matching, expected \",\", \"or\" or \"}\"", t.desc()))
			}
		}
		group = append(group, p.labelMatcher())
	}
	closeItem := p.expect(RIGHT_BRACE, "label matching")

	if len(group) > 0 {
		flush()
	} else if ms.Matchers != nil {
		p.errAt(ErrSyntax, closeItem.PositionRange(),
			errors.New("unexpected \"}\" in label matching, expected label matcher after \"or\""))
	}
	if ms.Matchers == nil {
		ms.Matchers = []*Matcher{}
	}

	return ms, closeItem.Pos + 1
}

// labelMatcher parses a single name-op-value matcher.
func (p *parser) labelMatcher() *Matcher {
	label := p.next()
	if label.Typ != IDENTIFIER {
		p.errAt(ErrSyntax, label.PositionRange(), errors.Errorf("unexpected %s in label matching, expected identifier", label.desc()))
	}

	opItem := p.next()
	var op MatchOp
	switch opItem.Typ {
	case EQL:
		op = MatchEqual
	case NEQ:
		op = MatchNotEqual
	case EQL_REGEX:
		op = MatchRegexp
	case NEQ_REGEX:
		op = MatchNotRegexp
	default:
		p.errAt(ErrSyntax, opItem.PositionRange(), errors.Errorf("unexpected %s in label matching, expected match operator", opItem.desc()))
	}

	valItem := p.expect(STRING, "label matching")
	val := p.unquoteString(valItem)

	m, err := NewMatcher(op, label.Val, val)
	if err != nil {
		kind := ErrSyntax
		if op == MatchRegexp || op == MatchNotRegexp {
			kind = ErrRegex
		}
		p.errAt(kind, valItem.PositionRange(), err)
	}
	return m
}

// rangeOrSubquery parses the [range] or [range:step] postfix of a
// selector or subquery.
func (p *parser) rangeOrSubquery(e Expr) Expr {
	p.next() // Consume '['.
	rangeItem := p.expect(DURATION, "range selection")
	rng := p.parseDuration(rangeItem)

	if p.peek().Typ == COLON {
		p.next()
		var step time.Duration
		if p.peek().Typ == DURATION {
			step = p.parseDuration(p.next())
		}
		end := p.expect(RIGHT_BRACKET, "subquery selection")
		return &SubqueryExpr{Expr: e, Range: rng, Step: step, EndPos: end.Pos + 1}
	}

	end := p.expect(RIGHT_BRACKET, "range selection")
	vs, ok := e.(*VectorSelector)
	if !ok {
		p.errAt(ErrSyntax, e.PositionRange(), errors.New("ranges only allowed for vector selectors"))
	}
	if vs.Offset != 0 || vs.At != nil {
		p.errAt(ErrSyntax, e.PositionRange(), errors.New("no offset or @ modifiers allowed before range"))
	}
	return &MatrixSelector{VectorSelector: vs, Range: rng, EndPos: end.Pos + 1}
}

// offsetModifier applies an offset modifier to the preceding selector.
func (p *parser) offsetModifier(e Expr) Expr {
	p.next() // Consume OFFSET.

	neg := false
	switch p.peek().Typ {
	case SUB:
		p.next()
		neg = true
	case ADD:
		p.next()
	}
	offItem := p.expect(DURATION, "offset")
	offset := p.parseDuration(offItem)
	if neg {
		offset = -offset
	}

	alreadySet := func() {
		p.errAt(ErrSyntax, offItem.PositionRange(), errors.New("offset may not be set multiple times"))
	}
	switch s := e.(type) {
	case *VectorSelector:
		if s.Offset != 0 {
			alreadySet()
		}
		s.Offset = offset
	case *MatrixSelector:
		if s.VectorSelector.Offset != 0 {
			alreadySet()
		}
		s.VectorSelector.Offset = offset
	case *SubqueryExpr:
		if s.Offset != 0 {
			alreadySet()
		}
		s.Offset = offset
	default:
		p.errAt(ErrSyntax, e.PositionRange(),
			errors.New("offset modifier must be preceded by an instant vector selector or range vector selector or a subquery"))
	}
	return e
}

// atModifier applies an @ modifier to the preceding selector.
func (p *parser) atModifier(e Expr) Expr {
	atItem := p.next() // Consume '@'.

	var at *AtModifier
	if t := p.peek(); t.Typ == IDENTIFIER && (t.Val == "start" || t.Val == "end") {
		p.next()
		p.expect(LEFT_PAREN, "@ modifier preprocessor")
		p.expect(RIGHT_PAREN, "@ modifier preprocessor")
		if t.Val == "start" {
			at = &AtModifier{Kind: AtStart}
		} else {
			at = &AtModifier{Kind: AtEnd}
		}
	} else {
		neg := false
		switch p.peek().Typ {
		case SUB:
			p.next()
			neg = true
		case ADD:
			p.next()
		}
		numItem := p.expect(NUMBER, "@ modifier")
		ts := p.number(numItem)
		if neg {
			ts = -ts
		}
		if math.IsInf(ts, 0) || math.IsNaN(ts) ||
			ts >= float64(math.MaxInt64)/1000 || ts <= float64(math.MinInt64)/1000 {
			p.errAt(ErrSyntax, numItem.PositionRange(), errors.Errorf("timestamp out of bounds for @ modifier: %f", ts))
		}
		at = &AtModifier{Kind: AtTimestamp, Timestamp: time.UnixMilli(int64(math.Round(ts * 1000))).UTC()}
	}

	alreadySet := func() {
		p.errAt(ErrSyntax, atItem.PositionRange(), errors.New("@ <timestamp> may not be set multiple times"))
	}
	switch s := e.(type) {
	case *VectorSelector:
		if s.At != nil {
			alreadySet()
		}
		s.At = at
	case *MatrixSelector:
		if s.VectorSelector.At != nil {
			alreadySet()
		}
		s.VectorSelector.At = at
	case *SubqueryExpr:
		if s.At != nil {
			alreadySet()
		}
		s.At = at
	default:
		p.errAt(ErrSyntax, e.PositionRange(),
			errors.New("@ modifier must be preceded by an instant vector selector or range vector selector or a subquery"))
	}
	return e
}

// checkAST performs the checks the grammar cannot express, mainly
// bottom-up value type checking, and returns the value type of the
// checked node.
func (p *parser) checkAST(node Node) ValueType {
	var typ ValueType
	if e, ok := node.(Expr); ok {
		typ = e.Type()
	}

	switch n := node.(type) {
	case Expressions:
		for _, e := range n {
			p.checkAST(e)
		}

	case *AggregateExpr:
		if !n.Op.IsAggregator() {
			p.typeErrorf(n, "aggregation operator expected in aggregation expression but got %q", n.Op)
		}
		p.expectType(n.Expr, ValueTypeVector, "aggregation expression")
		switch n.Op {
		case TOPK, BOTTOMK, QUANTILE:
			p.expectType(n.Param, ValueTypeScalar, "aggregation parameter")
		case COUNT_VALUES:
			p.expectType(n.Param, ValueTypeString, "aggregation parameter")
		}

	case *BinaryExpr:
		lt := p.checkAST(n.LHS)
		rt := p.checkAST(n.RHS)

		if !n.Op.IsOperator() {
			p.typeErrorf(n, "binary expression does not support operator %q", n.Op)
		}
		if lt != ValueTypeScalar && lt != ValueTypeVector {
			p.typeErrorf(n.LHS, "binary expression must contain only scalar and instant vector types")
		}
		if rt != ValueTypeScalar && rt != ValueTypeVector {
			p.typeErrorf(n.RHS, "binary expression must contain only scalar and instant vector types")
		}

		returnBool := n.Modifier != nil && n.Modifier.ReturnBool
		if n.Op.IsComparisonOperator() && !returnBool && lt == ValueTypeScalar && rt == ValueTypeScalar {
			p.typeErrorf(n, "comparisons between scalars must use BOOL modifier")
		}

		if n.Op.IsSetOperator() {
			if lt == ValueTypeScalar || rt == ValueTypeScalar {
				p.typeErrorf(n, "set operator %q not allowed in binary scalar expression", n.Op)
			}
			if n.Modifier != nil && (n.Modifier.Card == CardManyToOne || n.Modifier.Card == CardOneToMany) {
				p.typeErrorf(n, "no grouping allowed for %q operation", n.Op)
			}
		}

		if n.Modifier != nil && (lt != ValueTypeVector || rt != ValueTypeVector) {
			if n.Modifier.Matching != nil {
				p.typeErrorf(n, "vector matching only allowed between instant vectors")
			}
			if n.Modifier.Card == CardManyToOne || n.Modifier.Card == CardOneToMany {
				p.typeErrorf(n, "grouping only allowed between instant vectors")
			}
		}

		if n.Modifier != nil && n.Modifier.Matching != nil && n.Modifier.Matching.Kind == LabelInclude {
			for _, l := range n.Modifier.Include {
				if slices.Contains(n.Modifier.Matching.Labels, l) {
					p.typeErrorf(n, "label %q must not occur in ON and GROUP_LEFT/GROUP_RIGHT lists at the same time", l)
				}
			}
		}

	case *Call:
		nargs := len(n.Func.ArgTypes)
		switch {
		case n.Func.Variadic == 0:
			if nargs != len(n.Args) {
				p.typeErrorf(n, "expected %d argument(s) in call to %q, got %d", nargs, n.Func.Name, len(n.Args))
			}
		default:
			na := nargs - 1
			if na > len(n.Args) {
				p.typeErrorf(n, "expected at least %d argument(s) in call to %q, got %d", na, n.Func.Name, len(n.Args))
			} else if nargsmax := na + n.Func.Variadic; n.Func.Variadic > 0 && nargsmax < len(n.Args) {
				p.typeErrorf(n, "expected at most %d argument(s) in call to %q, got %d", nargsmax, n.Func.Name, len(n.Args))
			}
		}
		for i, arg := range n.Args {
			if i >= len(n.Func.ArgTypes) {
				i = len(n.Func.ArgTypes) - 1
			}
			p.expectType(arg, n.Func.ArgTypes[i], fmt.Sprintf("call to function %q", n.Func.Name))
		}

	case *MatrixSelector:
		p.checkAST(n.VectorSelector)

	case *SubqueryExpr:
		if t := p.checkAST(n.Expr); t != ValueTypeVector {
			p.typeErrorf(n, "subquery is only allowed on instant vector, got %s instead", DocumentedType(t))
		}

	case *ParenExpr:
		p.checkAST(n.Expr)

	case *UnaryExpr:
		if n.Op != ADD && n.Op != SUB {
			p.typeErrorf(n, "only + and - operators allowed for unary expressions")
		}
		if t := p.checkAST(n.Expr); t != ValueTypeScalar && t != ValueTypeVector {
			p.typeErrorf(n, "unary expression only allowed on expressions of type scalar or instant vector, got %s", DocumentedType(t))
		}

	case *NumberLiteral, *StringLiteral, *VectorSelector:
		// Checked during construction.

	default:
		p.typeErrorf(node, "unknown node type: %T", node)
	}
	return typ
}

// expectType checks the type of the node and raises an error if it is
// not the expected type.
func (p *parser) expectType(node Node, want ValueType, context string) {
	t := p.checkAST(node)
	if t != want {
		p.typeErrorf(node, "expected type %s in %s, got %s", DocumentedType(want), context, DocumentedType(t))
	}
}
