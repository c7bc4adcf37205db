// Package gopromql parses PromQL query text into a typed, immutable
// AST and renders ASTs back to canonical PromQL. It performs no
// evaluation and no I/O; callers own the returned tree and may share
// it freely across goroutines for read-only use.
package gopromql

import (
	"time"

	"github.com/wubin1989/gopromql/duration"
	"github.com/wubin1989/gopromql/promql"
)

// Parse parses the input into an expression or returns the first
// error encountered. No partial tree is ever returned.
func Parse(input string) (promql.Expr, error) {
	return promql.Parse(input)
}

// ParseMetricSelector parses a bare metric selector such as
// foo{bar="baz"} into its label matcher groups.
func ParseMetricSelector(input string) (*promql.Matchers, error) {
	return promql.ParseMetricSelector(input)
}

// ParseDuration parses a PromQL duration string such as "1h30m".
func ParseDuration(s string) (time.Duration, error) {
	return duration.Parse(s)
}

// DisplayDuration renders d in canonical PromQL duration notation.
func DisplayDuration(d time.Duration) string {
	return duration.Display(d)
}

// Prettify renders the expression as canonical PromQL text.
func Prettify(expr promql.Expr) string {
	return promql.Prettify(expr)
}

// Tree renders the structure of the node for diagnostics.
func Tree(node promql.Node) string {
	return promql.Tree(node)
}
