package promql

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/common/model"

	"github.com/wubin1989/gopromql/duration"
)

// Prettify renders the expression as canonical PromQL text with
// minimal parenthesization. The result reparses to a structurally
// equal tree.
func Prettify(expr Expr) string {
	return expr.String()
}

// Tree returns a string of the tree structure of the given node.
func Tree(node Node) string {
	return tree(node, "")
}

func tree(node Node, level string) string {
	if node == nil {
		return fmt.Sprintf("%s |---- %T\n", level, node)
	}
	typs := strings.Split(fmt.Sprintf("%T", node), ".")[1]
	t := fmt.Sprintf("%s |---- %s :: %s\n", level, typs, node)
	level += " · · ·"
	for _, e := range Children(node) {
		t += tree(e, level)
	}
	return t
}

func (m *Matcher) String() string {
	return fmt.Sprintf("%s%s%s", m.Name, m.Op, strconv.Quote(m.Value))
}

func (ms *Matchers) String() string {
	segments := make([]string, 0, 1+len(ms.OrMatchers))
	segments = append(segments, joinMatchers(ms.Matchers))
	for _, g := range ms.OrMatchers {
		segments = append(segments, joinMatchers(g))
	}
	return "{" + strings.Join(segments, " or ") + "}"
}

func joinMatchers(group []*Matcher) string {
	strs := make([]string, 0, len(group))
	for _, m := range group {
		strs = append(strs, m.String())
	}
	return strings.Join(strs, ",")
}

func (e *VectorSelector) String() string {
	segments := make([]string, 0, 1+len(e.LabelMatchers.OrMatchers))

	top := make([]string, 0, len(e.LabelMatchers.Matchers))
	nameSkipped := false
	for _, m := range e.LabelMatchers.Matchers {
		// The implicit metric name matcher is carried by Name.
		if !nameSkipped && e.Name != "" && m.Op == MatchEqual &&
			m.Name == model.MetricNameLabel && m.Value == e.Name {
			nameSkipped = true
			continue
		}
		top = append(top, m.String())
	}
	segments = append(segments, strings.Join(top, ","))
	for _, g := range e.LabelMatchers.OrMatchers {
		segments = append(segments, joinMatchers(g))
	}
	inner := strings.Join(segments, " or ")

	suffix := offsetString(e.Offset) + atString(e.At)
	if inner == "" && e.Name != "" {
		return e.Name + suffix
	}
	return fmt.Sprintf("%s{%s}%s", e.Name, inner, suffix)
}

func (e *MatrixSelector) String() string {
	// The offset and @ modifier of the inner selector print after the
	// range.
	vs := *e.VectorSelector
	offset, at := vs.Offset, vs.At
	vs.Offset, vs.At = 0, nil

	return fmt.Sprintf("%s[%s]%s%s", vs.String(), duration.Display(e.Range), offsetString(offset), atString(at))
}

func (e *SubqueryExpr) String() string {
	step := ""
	if e.Step != 0 {
		step = duration.Display(e.Step)
	}
	inner := e.Expr.String()
	if _, ok := e.Expr.(*BinaryExpr); ok {
		inner = "(" + inner + ")"
	}
	return fmt.Sprintf("%s[%s:%s]%s%s", inner, duration.Display(e.Range), step, offsetString(e.Offset), atString(e.At))
}

func (e *Call) String() string {
	args := make([]string, 0, len(e.Args))
	for _, arg := range e.Args {
		args = append(args, arg.String())
	}
	return fmt.Sprintf("%s(%s)", e.Func.Name, strings.Join(args, ", "))
}

func (e *AggregateExpr) String() string {
	aggrString := e.Op.String()
	if m := e.Modifier; m != nil {
		switch m.Kind {
		case AggBy:
			aggrString += fmt.Sprintf(" by (%s) ", strings.Join(m.Labels, ", "))
		case AggWithout:
			aggrString += fmt.Sprintf(" without (%s) ", strings.Join(m.Labels, ", "))
		}
	}
	aggrString += "("
	if e.Op.IsAggregatorWithParam() {
		aggrString += fmt.Sprintf("%s, ", e.Param)
	}
	aggrString += fmt.Sprintf("%s)", e.Expr)
	return aggrString
}

func (e *BinaryExpr) String() string {
	returnBool := ""
	matching := ""
	if m := e.Modifier; m != nil {
		if m.ReturnBool {
			returnBool = " bool"
		}
		if m.Matching != nil {
			op := "on"
			if m.Matching.Kind == LabelExclude {
				op = "ignoring"
			}
			matching = fmt.Sprintf(" %s (%s)", op, strings.Join(m.Matching.Labels, ", "))
		}
		switch m.Card {
		case CardManyToOne:
			matching += " group_left"
		case CardOneToMany:
			matching += " group_right"
		}
		if (m.Card == CardManyToOne || m.Card == CardOneToMany) && len(m.Include) > 0 {
			matching += fmt.Sprintf(" (%s)", strings.Join(m.Include, ", "))
		}
	}

	lhs := wrapBinChild(e.LHS, e.Op, true)
	rhs := wrapBinChild(e.RHS, e.Op, false)
	return fmt.Sprintf("%s %s%s%s %s", lhs, e.Op, returnBool, matching, rhs)
}

func (e *UnaryExpr) String() string {
	// The unary sign binds looser than ^ only.
	return fmt.Sprintf("%s%s", e.Op, wrapChild(e.Expr, POW.Precedence()))
}

func (e *ParenExpr) String() string {
	return fmt.Sprintf("(%s)", e.Expr)
}

func (e *NumberLiteral) String() string {
	return fmt.Sprint(e.Val)
}

func (e *StringLiteral) String() string {
	return strconv.Quote(e.Val)
}

func (es Expressions) String() (s string) {
	if len(es) == 0 {
		return ""
	}
	for _, e := range es {
		s += e.String()
		s += ", "
	}
	return s[:len(s)-2]
}

func (r PositionRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// wrapBinChild parenthesizes a binary operand when precedence or
// associativity would otherwise reassign it during a reparse.
func wrapBinChild(child Expr, op ItemType, isLHS bool) string {
	b, ok := child.(*BinaryExpr)
	if !ok {
		return child.String()
	}
	prec, childPrec := op.Precedence(), b.Op.Precedence()
	if childPrec < prec || (childPrec == prec && isLHS == op.IsRightAssociative()) {
		return "(" + b.String() + ")"
	}
	return b.String()
}

// wrapChild parenthesizes the child when it is a binary expression
// binding looser than minPrec.
func wrapChild(child Expr, minPrec int) string {
	if b, ok := child.(*BinaryExpr); ok && b.Op.Precedence() < minPrec {
		return "(" + b.String() + ")"
	}
	return child.String()
}

func offsetString(off time.Duration) string {
	switch {
	case off > 0:
		return fmt.Sprintf(" offset %s", duration.Display(off))
	case off < 0:
		return fmt.Sprintf(" offset -%s", duration.Display(-off))
	}
	return ""
}

func atString(at *AtModifier) string {
	switch {
	case at == nil:
		return ""
	case at.Kind == AtStart:
		return " @ start()"
	case at.Kind == AtEnd:
		return " @ end()"
	}
	return fmt.Sprintf(" @ %.3f", float64(at.Timestamp.UnixMilli())/1000.0)
}
