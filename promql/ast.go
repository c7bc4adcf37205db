package promql

import (
	"regexp"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/common/model"
)

// Node is a generic interface for all nodes in the AST.
//
// Nodes are immutable once the parse call that built them returns; a
// parent exclusively owns its children and trees never share subtrees.
type Node interface {
	// String renders the node as canonical PromQL.
	String() string

	// PositionRange returns the byte offsets the node covers in the
	// parsed input.
	PositionRange() PositionRange
}

// Expr is a generic interface for all expression types.
type Expr interface {
	Node

	// Type returns the value type the expression evaluates to. It is a
	// structural property fixed at construction time.
	Type() ValueType

	// expr ensures that no other types accidentally implement the interface.
	expr()
}

// Expressions is a list of expression nodes that implements Node.
type Expressions []Expr

// PositionRange describes a half-open interval of byte offsets in the
// query string.
type PositionRange struct {
	Start Pos
	End   Pos
}

// MatchOp is an operator matching a label value against a constraint.
type MatchOp int

// Possible MatchOps.
const (
	MatchEqual MatchOp = iota
	MatchNotEqual
	MatchRegexp
	MatchNotRegexp
)

func (op MatchOp) String() string {
	switch op {
	case MatchEqual:
		return "="
	case MatchNotEqual:
		return "!="
	case MatchRegexp:
		return "=~"
	case MatchNotRegexp:
		return "!~"
	}
	panic("unknown match operator")
}

// Matcher is a single label constraint of a vector selector.
type Matcher struct {
	Op    MatchOp
	Name  string
	Value string
}

// NewMatcher returns a matcher after validating the label name and,
// for regex operators, that the value compiles as an anchored regular
// expression.
func NewMatcher(op MatchOp, name, value string) (*Matcher, error) {
	if !model.LabelName(name).IsValid() {
		return nil, errors.Errorf("invalid label name %q", name)
	}
	if op == MatchRegexp || op == MatchNotRegexp {
		if _, err := compileMatcherRegexp(value); err != nil {
			return nil, err
		}
	}
	return &Matcher{Op: op, Name: name, Value: value}, nil
}

// compileMatcherRegexp anchors the value the way Prometheus matches
// label values: the expression must match the full value.
func compileMatcherRegexp(value string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?:" + value + ")$")
	if err != nil {
		return nil, errors.Wrapf(err, "invalid regular expression %q", value)
	}
	return re, nil
}

// Matches reports whether the matcher accepts the given label value.
func (m *Matcher) Matches(v string) bool {
	switch m.Op {
	case MatchEqual:
		return m.Value == v
	case MatchNotEqual:
		return m.Value != v
	case MatchRegexp, MatchNotRegexp:
		re, err := compileMatcherRegexp(m.Value)
		if err != nil {
			// NewMatcher validated the expression already.
			panic(err)
		}
		if m.Op == MatchRegexp {
			return re.MatchString(v)
		}
		return !re.MatchString(v)
	}
	panic("unknown match operator")
}

// Matchers groups the label constraints of one vector selector: a
// top-level AND-group plus zero or more alternative OR-groups. A
// series is selected if it matches the top-level group or any of the
// alternatives.
type Matchers struct {
	Matchers   []*Matcher
	OrMatchers [][]*Matcher
}

// groups returns all matcher groups, top-level group first.
func (ms *Matchers) groups() [][]*Matcher {
	gs := make([][]*Matcher, 0, 1+len(ms.OrMatchers))
	gs = append(gs, ms.Matchers)
	gs = append(gs, ms.OrMatchers...)
	return gs
}

// hasNonEmpty reports whether every group contains at least one
// matcher that cannot match the empty string, which is what keeps a
// selector from silently selecting all series.
func (ms *Matchers) hasNonEmpty() bool {
	for _, group := range ms.groups() {
		nonEmpty := false
		for _, m := range group {
			if m != nil && !m.Matches("") {
				nonEmpty = true
				break
			}
		}
		if !nonEmpty {
			return false
		}
	}
	return true
}

// AtKind tells which form of the @ modifier was used.
type AtKind int

// Possible AtKinds.
const (
	AtTimestamp AtKind = iota // @ <unix timestamp>
	AtStart                   // @ start()
	AtEnd                     // @ end()
)

// AtModifier pins the evaluation of a selector or subquery to an
// absolute timestamp or to the query range boundaries.
type AtModifier struct {
	Kind AtKind

	// Timestamp is only set when Kind is AtTimestamp.
	Timestamp time.Time
}

// VectorSelector selects an instant vector of series.
type VectorSelector struct {
	Name          string
	LabelMatchers *Matchers
	Offset        time.Duration
	At            *AtModifier

	PosRange PositionRange
}

// MatrixSelector selects a range of samples per selected series.
type MatrixSelector struct {
	// VectorSelector carries the selection criteria; its offset and @
	// modifier apply to the whole range selection.
	VectorSelector *VectorSelector
	Range          time.Duration

	EndPos Pos
}

// SubqueryExpr evaluates a vector expression repeatedly over a sliding
// range, producing a matrix.
type SubqueryExpr struct {
	Expr  Expr
	Range time.Duration
	// Step is 0 if no step was given, leaving the resolution to the engine.
	Step   time.Duration
	Offset time.Duration
	At     *AtModifier

	EndPos Pos
}

// Call is a function call.
type Call struct {
	Func *Function   // The function that was called.
	Args Expressions // Arguments used in the call.

	PosRange PositionRange
}

// AggModifierKind distinguishes by from without grouping.
type AggModifierKind int

// Possible AggModifierKinds.
const (
	AggBy AggModifierKind = iota
	AggWithout
)

// AggModifier is the by/without clause of an aggregation.
type AggModifier struct {
	Kind   AggModifierKind
	Labels []string
}

// AggregateExpr is an aggregation operation over a vector.
type AggregateExpr struct {
	Op   ItemType // The used aggregation operation.
	Expr Expr     // The vector expression over which is aggregated.
	// Param is the additional argument required by topk, bottomk,
	// quantile and count_values, nil for all other operators.
	Param    Expr
	Modifier *AggModifier // nil when no grouping clause was given.

	PosRange PositionRange
}

// LabelModifierKind distinguishes on (include) from ignoring (exclude).
type LabelModifierKind int

// Possible LabelModifierKinds.
const (
	LabelInclude LabelModifierKind = iota // on
	LabelExclude                          // ignoring
)

// LabelModifier is the on/ignoring clause of a vector match.
type LabelModifier struct {
	Kind   LabelModifierKind
	Labels []string
}

// VectorMatchCardinality describes the cardinality relationship of two
// vectors in a binary operation.
type VectorMatchCardinality int

// Possible VectorMatchCardinalities.
const (
	CardOneToOne VectorMatchCardinality = iota
	CardManyToOne
	CardOneToMany
	CardManyToMany
)

func (vmc VectorMatchCardinality) String() string {
	switch vmc {
	case CardOneToOne:
		return "one-to-one"
	case CardManyToOne:
		return "many-to-one"
	case CardOneToMany:
		return "one-to-many"
	case CardManyToMany:
		return "many-to-many"
	}
	panic("unknown match cardinality")
}

// BinModifier collects the matching behavior of a binary operation.
// It is only present on a BinaryExpr when the query spelled out a
// bool, on/ignoring or grouping clause, or when a set operator forced
// many-to-many matching.
type BinModifier struct {
	Card     VectorMatchCardinality
	Matching *LabelModifier // nil when no on/ignoring clause was given.
	// Include holds the extra labels of group_left/group_right.
	Include    []string
	ReturnBool bool
}

// BinaryExpr is a binary operation between two child expressions.
type BinaryExpr struct {
	Op       ItemType // The operation of the expression.
	LHS, RHS Expr     // The operands on the respective sides of the operator.

	// Modifier is nil for plain one-to-one operations.
	Modifier *BinModifier
}

// UnaryExpr is a unary operation on another expression. Unary
// operations apply to scalars and instant vectors only.
type UnaryExpr struct {
	Op   ItemType
	Expr Expr

	StartPos Pos
}

// ParenExpr wraps an expression so it cannot be disassembled as a
// consequence of operator precedence.
type ParenExpr struct {
	Expr Expr

	PosRange PositionRange
}

// NumberLiteral is a scalar literal.
type NumberLiteral struct {
	Val float64

	PosRange PositionRange
}

// StringLiteral is a string literal.
type StringLiteral struct {
	Val string

	PosRange PositionRange
}

func (*AggregateExpr) expr()  {}
func (*BinaryExpr) expr()     {}
func (*Call) expr()           {}
func (*MatrixSelector) expr() {}
func (*NumberLiteral) expr()  {}
func (*ParenExpr) expr()      {}
func (*StringLiteral) expr()  {}
func (*SubqueryExpr) expr()   {}
func (*UnaryExpr) expr()      {}
func (*VectorSelector) expr() {}

// Type implements Expr for all node variants. Binary expressions are
// scalar when both operands are scalar and vector otherwise; wrappers
// propagate the child type; everything else is determined by the
// variant.
func (e *AggregateExpr) Type() ValueType  { return ValueTypeVector }
func (e *Call) Type() ValueType           { return e.Func.ReturnType }
func (e *MatrixSelector) Type() ValueType { return ValueTypeMatrix }
func (e *NumberLiteral) Type() ValueType  { return ValueTypeScalar }
func (e *ParenExpr) Type() ValueType      { return e.Expr.Type() }
func (e *StringLiteral) Type() ValueType  { return ValueTypeString }
func (e *SubqueryExpr) Type() ValueType   { return ValueTypeMatrix }
func (e *UnaryExpr) Type() ValueType      { return e.Expr.Type() }
func (e *VectorSelector) Type() ValueType { return ValueTypeVector }
func (e *BinaryExpr) Type() ValueType {
	if e.LHS.Type() == ValueTypeScalar && e.RHS.Type() == ValueTypeScalar {
		return ValueTypeScalar
	}
	return ValueTypeVector
}

func (e *AggregateExpr) PositionRange() PositionRange { return e.PosRange }
func (e *Call) PositionRange() PositionRange          { return e.PosRange }
func (e *NumberLiteral) PositionRange() PositionRange { return e.PosRange }
func (e *ParenExpr) PositionRange() PositionRange     { return e.PosRange }
func (e *StringLiteral) PositionRange() PositionRange { return e.PosRange }
func (e *VectorSelector) PositionRange() PositionRange {
	return e.PosRange
}

func (e *BinaryExpr) PositionRange() PositionRange {
	return mergeRanges(e.LHS, e.RHS)
}

func (e *MatrixSelector) PositionRange() PositionRange {
	return PositionRange{
		Start: e.VectorSelector.PositionRange().Start,
		End:   e.EndPos,
	}
}

func (e *SubqueryExpr) PositionRange() PositionRange {
	return PositionRange{
		Start: e.Expr.PositionRange().Start,
		End:   e.EndPos,
	}
}

func (e *UnaryExpr) PositionRange() PositionRange {
	return PositionRange{
		Start: e.StartPos,
		End:   e.Expr.PositionRange().End,
	}
}

func (es Expressions) PositionRange() PositionRange {
	if len(es) == 0 {
		return PositionRange{}
	}
	return mergeRanges(es[0], es[len(es)-1])
}

// mergeRanges is a helper function to merge the PositionRanges of two Nodes.
// Note that the arguments must be in the same order as they occur in the input string.
func mergeRanges(first, last Node) PositionRange {
	return PositionRange{
		Start: first.PositionRange().Start,
		End:   last.PositionRange().End,
	}
}

// Children returns a list of all child nodes of node.
func Children(node Node) []Node {
	switch n := node.(type) {
	case *AggregateExpr:
		if n.Param != nil {
			return []Node{n.Param, n.Expr}
		}
		return []Node{n.Expr}
	case *BinaryExpr:
		return []Node{n.LHS, n.RHS}
	case *Call:
		children := make([]Node, 0, len(n.Args))
		for _, arg := range n.Args {
			children = append(children, arg)
		}
		return children
	case *MatrixSelector:
		return []Node{n.VectorSelector}
	case *ParenExpr:
		return []Node{n.Expr}
	case *SubqueryExpr:
		return []Node{n.Expr}
	case *UnaryExpr:
		return []Node{n.Expr}
	case *NumberLiteral, *StringLiteral, *VectorSelector:
		return nil
	case Expressions:
		children := make([]Node, 0, len(n))
		for _, e := range n {
			children = append(children, e)
		}
		return children
	default:
		panic(errors.Errorf("promql.Children: unhandled node type %T", node))
	}
}

// Visitor is invoked by Walk for each node encountered. If the result
// visitor w is not nil, Walk visits each of the children of node with
// the visitor w, followed by a call of w.Visit(nil).
type Visitor interface {
	Visit(node Node) (w Visitor)
}

// Walk traverses an AST in depth-first order: It starts by calling
// v.Visit(node); node must not be nil. If the visitor w returned by
// v.Visit(node) is not nil, Walk is invoked recursively with visitor
// w for each of the non-nil children of node, followed by a call of
// w.Visit(nil).
func Walk(v Visitor, node Node) {
	if v = v.Visit(node); v == nil {
		return
	}
	for _, child := range Children(node) {
		Walk(v, child)
	}
	v.Visit(nil)
}

type inspector func(Node) bool

func (f inspector) Visit(node Node) Visitor {
	if f(node) {
		return f
	}
	return nil
}

// Inspect traverses an AST in depth-first order: It starts by calling
// f(node); node must not be nil. If f returns true, Inspect invokes f
// for all the non-nil children of node, recursively.
func Inspect(node Node, f func(Node) bool) {
	Walk(inspector(f), node)
}
