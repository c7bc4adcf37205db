package promql

import (
	"reflect"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLabelMatcher(op MatchOp, name, value string) *Matcher {
	m, err := NewMatcher(op, name, value)
	if err != nil {
		panic(err)
	}
	return m
}

func metricNameMatcher(name string) *Matcher {
	return mustLabelMatcher(MatchEqual, model.MetricNameLabel, name)
}

// stripPositions clears the position fields of all nodes so expected
// trees can be written without byte offsets.
func stripPositions(e Expr) Expr {
	Inspect(e, func(n Node) bool {
		switch x := n.(type) {
		case *AggregateExpr:
			x.PosRange = PositionRange{}
		case *Call:
			x.PosRange = PositionRange{}
		case *MatrixSelector:
			x.EndPos = 0
		case *NumberLiteral:
			x.PosRange = PositionRange{}
		case *ParenExpr:
			x.PosRange = PositionRange{}
		case *StringLiteral:
			x.PosRange = PositionRange{}
		case *SubqueryExpr:
			x.EndPos = 0
		case *UnaryExpr:
			x.StartPos = 0
		case *VectorSelector:
			x.PosRange = PositionRange{}
		}
		return true
	})
	return e
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Expr
	}{
		{
			in:   "1",
			want: &NumberLiteral{Val: 1},
		},
		{
			in:   "-1",
			want: &NumberLiteral{Val: -1},
		},
		{
			in:   "0x42",
			want: &NumberLiteral{Val: 66},
		},
		{
			in:   `"double"`,
			want: &StringLiteral{Val: "double"},
		},
		{
			in:   `'single\''`,
			want: &StringLiteral{Val: "single'"},
		},
		{
			in: "1 + 2 * 3",
			want: &BinaryExpr{
				Op:  ADD,
				LHS: &NumberLiteral{Val: 1},
				RHS: &BinaryExpr{Op: MUL, LHS: &NumberLiteral{Val: 2}, RHS: &NumberLiteral{Val: 3}},
			},
		},
		{
			in: "2 ^ 3 ^ 2",
			want: &BinaryExpr{
				Op:  POW,
				LHS: &NumberLiteral{Val: 2},
				RHS: &BinaryExpr{Op: POW, LHS: &NumberLiteral{Val: 3}, RHS: &NumberLiteral{Val: 2}},
			},
		},
		{
			in: "1 - 2 - 3",
			want: &BinaryExpr{
				Op:  SUB,
				LHS: &BinaryExpr{Op: SUB, LHS: &NumberLiteral{Val: 1}, RHS: &NumberLiteral{Val: 2}},
				RHS: &NumberLiteral{Val: 3},
			},
		},
		{
			// The unary sign binds looser than ^.
			in: "-1 ^ 2",
			want: &UnaryExpr{
				Op:   SUB,
				Expr: &BinaryExpr{Op: POW, LHS: &NumberLiteral{Val: 1}, RHS: &NumberLiteral{Val: 2}},
			},
		},
		{
			in: "1 < bool 2",
			want: &BinaryExpr{
				Op:       LSS,
				LHS:      &NumberLiteral{Val: 1},
				RHS:      &NumberLiteral{Val: 2},
				Modifier: &BinModifier{Card: CardOneToOne, ReturnBool: true},
			},
		},
		{
			in: "some_metric",
			want: &VectorSelector{
				Name:          "some_metric",
				LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("some_metric")}},
			},
		},
		{
			in: "-some_metric",
			want: &UnaryExpr{
				Op: SUB,
				Expr: &VectorSelector{
					Name:          "some_metric",
					LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("some_metric")}},
				},
			},
		},
		{
			in: `foo{bar="baz"}`,
			want: &VectorSelector{
				Name: "foo",
				LabelMatchers: &Matchers{Matchers: []*Matcher{
					mustLabelMatcher(MatchEqual, "bar", "baz"),
					metricNameMatcher("foo"),
				}},
			},
		},
		{
			in: `foo{a!="1",b=~"x.*",c!~"y",}`,
			want: &VectorSelector{
				Name: "foo",
				LabelMatchers: &Matchers{Matchers: []*Matcher{
					mustLabelMatcher(MatchNotEqual, "a", "1"),
					mustLabelMatcher(MatchRegexp, "b", "x.*"),
					mustLabelMatcher(MatchNotRegexp, "c", "y"),
					metricNameMatcher("foo"),
				}},
			},
		},
		{
			// Duplicate matchers accumulate in insertion order.
			in: `foo{a="1",a="2"}`,
			want: &VectorSelector{
				Name: "foo",
				LabelMatchers: &Matchers{Matchers: []*Matcher{
					mustLabelMatcher(MatchEqual, "a", "1"),
					mustLabelMatcher(MatchEqual, "a", "2"),
					metricNameMatcher("foo"),
				}},
			},
		},
		{
			in: `{a="1" or b="2",c="3"}`,
			want: &VectorSelector{
				LabelMatchers: &Matchers{
					Matchers: []*Matcher{mustLabelMatcher(MatchEqual, "a", "1")},
					OrMatchers: [][]*Matcher{{
						mustLabelMatcher(MatchEqual, "b", "2"),
						mustLabelMatcher(MatchEqual, "c", "3"),
					}},
				},
			},
		},
		{
			in: `{__name__="bar"}`,
			want: &VectorSelector{
				LabelMatchers: &Matchers{Matchers: []*Matcher{
					mustLabelMatcher(MatchEqual, model.MetricNameLabel, "bar"),
				}},
			},
		},
		{
			in: "foo[5m]",
			want: &MatrixSelector{
				VectorSelector: &VectorSelector{
					Name:          "foo",
					LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("foo")}},
				},
				Range: 5 * time.Minute,
			},
		},
		{
			in: "foo offset 5m",
			want: &VectorSelector{
				Name:          "foo",
				LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("foo")}},
				Offset:        5 * time.Minute,
			},
		},
		{
			in: "foo offset -5m",
			want: &VectorSelector{
				Name:          "foo",
				LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("foo")}},
				Offset:        -5 * time.Minute,
			},
		},
		{
			in: "foo[5m] offset 1w",
			want: &MatrixSelector{
				VectorSelector: &VectorSelector{
					Name:          "foo",
					LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("foo")}},
					Offset:        7 * 24 * time.Hour,
				},
				Range: 5 * time.Minute,
			},
		},
		{
			in: "foo @ 1603774699",
			want: &VectorSelector{
				Name:          "foo",
				LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("foo")}},
				At:            &AtModifier{Kind: AtTimestamp, Timestamp: time.UnixMilli(1603774699000).UTC()},
			},
		},
		{
			in: "foo @ start() offset 1m",
			want: &VectorSelector{
				Name:          "foo",
				LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("foo")}},
				Offset:        time.Minute,
				At:            &AtModifier{Kind: AtStart},
			},
		},
		{
			in: "foo[5m] @ end()",
			want: &MatrixSelector{
				VectorSelector: &VectorSelector{
					Name:          "foo",
					LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("foo")}},
					At:            &AtModifier{Kind: AtEnd},
				},
				Range: 5 * time.Minute,
			},
		},
		{
			in: `rate(foo{bar="baz"}[2s])`,
			want: &Call{
				Func: Functions["rate"],
				Args: Expressions{&MatrixSelector{
					VectorSelector: &VectorSelector{
						Name: "foo",
						LabelMatchers: &Matchers{Matchers: []*Matcher{
							mustLabelMatcher(MatchEqual, "bar", "baz"),
							metricNameMatcher("foo"),
						}},
					},
					Range: 2 * time.Second,
				}},
			},
		},
		{
			in:   "time()",
			want: &Call{Func: Functions["time"]},
		},
		{
			// The optional argument may be omitted.
			in: "round(foo)",
			want: &Call{
				Func: Functions["round"],
				Args: Expressions{&VectorSelector{
					Name:          "foo",
					LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("foo")}},
				}},
			},
		},
		{
			in: "sum by (a, b) (foo)",
			want: &AggregateExpr{
				Op: SUM,
				Expr: &VectorSelector{
					Name:          "foo",
					LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("foo")}},
				},
				Modifier: &AggModifier{Kind: AggBy, Labels: []string{"a", "b"}},
			},
		},
		{
			in: "topk(5, foo)",
			want: &AggregateExpr{
				Op:    TOPK,
				Param: &NumberLiteral{Val: 5},
				Expr: &VectorSelector{
					Name:          "foo",
					LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("foo")}},
				},
			},
		},
		{
			in: `count_values("version", build)`,
			want: &AggregateExpr{
				Op:    COUNT_VALUES,
				Param: &StringLiteral{Val: "version"},
				Expr: &VectorSelector{
					Name:          "build",
					LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("build")}},
				},
			},
		},
		{
			in: "foo / on (a, b) group_left (x) bar",
			want: &BinaryExpr{
				Op: DIV,
				LHS: &VectorSelector{
					Name:          "foo",
					LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("foo")}},
				},
				RHS: &VectorSelector{
					Name:          "bar",
					LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("bar")}},
				},
				Modifier: &BinModifier{
					Card:     CardManyToOne,
					Matching: &LabelModifier{Kind: LabelInclude, Labels: []string{"a", "b"}},
					Include:  []string{"x"},
				},
			},
		},
		{
			in: "foo unless ignoring (a) bar",
			want: &BinaryExpr{
				Op: LUNLESS,
				LHS: &VectorSelector{
					Name:          "foo",
					LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("foo")}},
				},
				RHS: &VectorSelector{
					Name:          "bar",
					LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("bar")}},
				},
				Modifier: &BinModifier{
					Card:     CardManyToMany,
					Matching: &LabelModifier{Kind: LabelExclude, Labels: []string{"a"}},
				},
			},
		},
		{
			in: "foo[5m:1m]",
			want: &SubqueryExpr{
				Expr: &VectorSelector{
					Name:          "foo",
					LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("foo")}},
				},
				Range: 5 * time.Minute,
				Step:  time.Minute,
			},
		},
		{
			in: "(foo + bar)[5m:] offset 1m @ 1603774699",
			want: &SubqueryExpr{
				Expr: &ParenExpr{Expr: &BinaryExpr{
					Op: ADD,
					LHS: &VectorSelector{
						Name:          "foo",
						LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("foo")}},
					},
					RHS: &VectorSelector{
						Name:          "bar",
						LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("bar")}},
					},
				}},
				Range:  5 * time.Minute,
				Offset: time.Minute,
				At:     &AtModifier{Kind: AtTimestamp, Timestamp: time.UnixMilli(1603774699000).UTC()},
			},
		},
		{
			in: "min_over_time(rate(foo[2s])[5m:])[4m:3s]",
			want: &SubqueryExpr{
				Expr: &Call{
					Func: Functions["min_over_time"],
					Args: Expressions{&SubqueryExpr{
						Expr: &Call{
							Func: Functions["rate"],
							Args: Expressions{&MatrixSelector{
								VectorSelector: &VectorSelector{
									Name:          "foo",
									LabelMatchers: &Matchers{Matchers: []*Matcher{metricNameMatcher("foo")}},
								},
								Range: 2 * time.Second,
							}},
						},
						Range: 5 * time.Minute,
					}},
				},
				Range: 4 * time.Minute,
				Step:  3 * time.Second,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			if !reflect.DeepEqual(stripPositions(got), tt.want) {
				t.Errorf("Parse() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

// Aggregation modifiers before and after the argument list normalize
// to the same tree.
func TestParseAggregationModifierOrder(t *testing.T) {
	first, err := Parse("sum by (a) (foo)")
	require.NoError(t, err)
	second, err := Parse("sum(foo) by (a)")
	require.NoError(t, err)
	assert.Equal(t, stripPositions(first), stripPositions(second))

	first, err = Parse("quantile without (b) (0.9, bar)")
	require.NoError(t, err)
	second, err = Parse("quantile(0.9, bar) without (b)")
	require.NoError(t, err)
	assert.Equal(t, stripPositions(first), stripPositions(second))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		in       string
		kind     ErrorKind
		contains string
	}{
		{in: "", kind: ErrSyntax, contains: "no valid expression found"},
		{in: "1 +", kind: ErrSyntax, contains: "no valid expression found"},
		{in: "1 2", kind: ErrSyntax, contains: "trailing"},
		{in: "sum(foo) bar", kind: ErrSyntax, contains: "trailing"},
		{in: "(foo", kind: ErrLex, contains: "unclosed left parenthesis"},
		{in: "foo[5m", kind: ErrLex, contains: "unclosed left bracket"},
		{in: `foo{a="1"`, kind: ErrLex, contains: "unexpected end of input inside braces"},
		{in: `"unterminated`, kind: ErrLex, contains: "unterminated quoted string"},
		{in: "{}", kind: ErrSyntax, contains: "at least one non-empty matcher"},
		{in: `{a=~".*"}`, kind: ErrSyntax, contains: "at least one non-empty matcher"},
		{in: `foo{__name__="bar"}`, kind: ErrSyntax, contains: "metric name must not be set twice"},
		{in: `{a="1" or}`, kind: ErrSyntax, contains: "expected label matcher after \"or\""},
		{in: `{a="1" or b="2" or}`, kind: ErrSyntax, contains: "expected label matcher after \"or\""},
		{in: `foo{a=}`, kind: ErrSyntax, contains: "expected string"},
		{in: `foo{a=~"["}`, kind: ErrRegex, contains: "invalid regular expression"},
		{in: "foo[]", kind: ErrSyntax, contains: "expected duration"},
		{in: "foo[0s]", kind: ErrDuration, contains: "duration must be greater than 0"},
		{in: "foo[5m5m]", kind: ErrDuration, contains: "not a valid duration string"},
		{in: "foo offset 5m offset 1m", kind: ErrSyntax, contains: "offset may not be set multiple times"},
		{in: "foo @ 1 @ 2", kind: ErrSyntax, contains: "may not be set multiple times"},
		{in: "foo @ Inf", kind: ErrSyntax, contains: "timestamp out of bounds"},
		{in: "foo @ NaN", kind: ErrSyntax, contains: "timestamp out of bounds"},
		{in: "foo offset 5m[5m]", kind: ErrSyntax, contains: "no offset or @ modifiers allowed before range"},
		{in: "1[5m]", kind: ErrSyntax, contains: "ranges only allowed for vector selectors"},
		{in: "sum(foo) offset 5m", kind: ErrSyntax, contains: "offset modifier must be preceded by"},
		{in: "sum(foo) @ 1", kind: ErrSyntax, contains: "@ modifier must be preceded by"},
		{in: "foo * bool bar", kind: ErrSyntax, contains: "bool modifier can only be used on comparison operators"},
		{in: "foo + group_left bar", kind: ErrSyntax, contains: "grouping requires a preceding on or ignoring clause"},
		{in: "sum without (a, a) (foo)", kind: ErrSyntax, contains: "duplicate label"},
		{in: "unknown_func(1)", kind: ErrSyntax, contains: "unknown function"},
		{in: "1 < 2", kind: ErrType, contains: "comparisons between scalars must use BOOL modifier"},
		{in: "1 and 1", kind: ErrType, contains: "set operator"},
		{in: "1 and foo", kind: ErrType, contains: "set operator"},
		{in: `foo + "str"`, kind: ErrType, contains: "only scalar and instant vector types"},
		{in: "1 + on (a) 2", kind: ErrType, contains: "vector matching only allowed between instant vectors"},
		{in: "foo and on (a) group_left bar", kind: ErrType, contains: "no grouping allowed"},
		{in: "foo + on (a) group_left (a) bar", kind: ErrType, contains: "must not occur in ON and GROUP_LEFT/GROUP_RIGHT lists at the same time"},
		{in: "rate(foo)", kind: ErrType, contains: "expected type range vector"},
		{in: "rate(foo[5m], bar)", kind: ErrType, contains: "expected 1 argument(s)"},
		{in: "clamp(foo)", kind: ErrType, contains: "expected 3 argument(s)"},
		{in: "round(foo, 1, 2)", kind: ErrType, contains: "expected at most 2 argument(s)"},
		{in: "topk(foo, bar)", kind: ErrType, contains: "expected type scalar"},
		{in: `count_values(1, foo)`, kind: ErrType, contains: "expected type string"},
		{in: "sum(foo[5m])", kind: ErrType, contains: "expected type instant vector"},
		{in: "1[5m:]", kind: ErrType, contains: "subquery is only allowed on instant vector"},
		{in: "-foo[5m]", kind: ErrType, contains: "unary expression only allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := Parse(tt.in)
			require.Error(t, err)

			var perr *ParseErr
			require.True(t, errors.As(err, &perr), "expected *ParseErr, got %T", err)
			assert.Equal(t, tt.kind, perr.Kind)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

// Parse never hands back a partial tree alongside an error.
func TestParseNoPartialTree(t *testing.T) {
	expr, err := Parse("sum(rate(foo[5m])) + ")
	require.Error(t, err)
	assert.Nil(t, expr)

	// Type errors are raised after the grammar pass and must not leak
	// the fully built tree either.
	expr, err = Parse("1 and 1")
	require.Error(t, err)
	assert.Nil(t, expr)

	expr, err = Parse(`foo + "bar"`)
	require.Error(t, err)
	assert.Nil(t, expr)
}

func TestParseErrPosition(t *testing.T) {
	_, err := Parse("foo +\n  @")
	require.Error(t, err)

	var perr *ParseErr
	require.True(t, errors.As(err, &perr))
	// The @ sits on line 2, column 3.
	assert.Contains(t, perr.Error(), "2:3:")
	assert.Equal(t, Pos(8), perr.Range.Start)
}

func TestParseMetricSelector(t *testing.T) {
	ms, err := ParseMetricSelector(`foo{bar="baz"}`)
	require.NoError(t, err)
	assert.Equal(t, &Matchers{Matchers: []*Matcher{
		mustLabelMatcher(MatchEqual, "bar", "baz"),
		metricNameMatcher("foo"),
	}}, ms)

	_, err = ParseMetricSelector("foo[5m]")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not parse remaining input")
}

func TestMatcherMatches(t *testing.T) {
	assert.True(t, mustLabelMatcher(MatchEqual, "a", "x").Matches("x"))
	assert.False(t, mustLabelMatcher(MatchNotEqual, "a", "x").Matches("x"))
	assert.True(t, mustLabelMatcher(MatchRegexp, "a", "x.*").Matches("xyz"))
	// Regex matchers are anchored.
	assert.False(t, mustLabelMatcher(MatchRegexp, "a", "y").Matches("xyz"))
	assert.True(t, mustLabelMatcher(MatchNotRegexp, "a", "y").Matches("xyz"))
}
