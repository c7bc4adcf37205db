// Package testinghelper only for testing purpose
package testinghelper

import "github.com/wubin1989/gopromql/promql"

func UnaryExpr(input string) *promql.UnaryExpr {
	expr, err := promql.Parse(input)
	if err != nil {
		panic(err)
	}
	v, ok := expr.(*promql.UnaryExpr)
	if !ok {
		panic("bad input")
	}
	return v
}

func BinaryExpr(input string) *promql.BinaryExpr {
	expr, err := promql.Parse(input)
	if err != nil {
		panic(err)
	}
	v, ok := expr.(*promql.BinaryExpr)
	if !ok {
		panic("bad input")
	}
	return v
}

func AggregateExpr(input string) *promql.AggregateExpr {
	expr, err := promql.Parse(input)
	if err != nil {
		panic(err)
	}
	v, ok := expr.(*promql.AggregateExpr)
	if !ok {
		panic("bad input")
	}
	return v
}

func CallExpr(input string) *promql.Call {
	expr, err := promql.Parse(input)
	if err != nil {
		panic(err)
	}
	v, ok := expr.(*promql.Call)
	if !ok {
		panic("bad input")
	}
	return v
}

func SubqueryExpr(input string) *promql.SubqueryExpr {
	expr, err := promql.Parse(input)
	if err != nil {
		panic(err)
	}
	v, ok := expr.(*promql.SubqueryExpr)
	if !ok {
		panic("bad input")
	}
	return v
}

func StringLiteralExpr(input string) *promql.StringLiteral {
	expr, err := promql.Parse(input)
	if err != nil {
		panic(err)
	}
	v, ok := expr.(*promql.StringLiteral)
	if !ok {
		panic("bad input")
	}
	return v
}

func VectorSelector(input string) *promql.VectorSelector {
	expr, err := promql.Parse(input)
	if err != nil {
		panic(err)
	}
	v, ok := expr.(*promql.VectorSelector)
	if !ok {
		panic("bad input")
	}
	return v
}

func MatrixSelector(input string) *promql.MatrixSelector {
	expr, err := promql.Parse(input)
	if err != nil {
		panic(err)
	}
	v, ok := expr.(*promql.MatrixSelector)
	if !ok {
		panic("bad input")
	}
	return v
}
