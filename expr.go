package palette

import (
	"context"
	"errors"
	"io"
	"strings"
	texttemplate "text/template"
	"text/template/parse"
)

// ExprKind is the kind of value an Expr produces.
type ExprKind int

const (
	// Literal expressions are strings, numbers, booleans, and nil written
	// directly in the template. Their value is known at index time.
	Literal ExprKind = iota

	// Reference expressions are evaluated against the caller's context:
	// fields like .Title, variables like $item, function calls, and
	// parenthesised pipelines.
	Reference

	// InlineMarkup expressions are string literals containing template
	// actions, like "{{ .Title }}!". They're rendered as a template body
	// against the caller's dot, producing HTML.
	InlineMarkup
)

func (k ExprKind) String() string {
	switch k {
	case Literal:
		return "literal"
	case Reference:
		return "reference"
	case InlineMarkup:
		return "inline markup"
	}
	return "unknown"
}

// Undefined is what Resolve returns for an expression that couldn't be
// evaluated.
var Undefined = undefined{}

type undefined struct{}

func (undefined) String() string {
	return ""
}

// Expr is a compiled property, template, or component expression from an
// invocation. Exprs are built when a template is indexed and are immutable
// afterwards.
type Expr struct {
	Kind ExprKind

	// Text is the expression as it was written, for error messages.
	Text string

	// Value holds the value of a Literal.
	Value any

	// vars are the caller's variables a Reference reads, including "$".
	vars []string

	// capture is a tree that hands the value of a Reference to the
	// capture function.
	capture *parse.Tree

	// body is the compiled markup of an InlineMarkup.
	body *Body
}

// Caller is the context an expression is evaluated in: the value of dot at
// the point of the invocation, and the values of the lexical variables the
// invocation could see.
type Caller struct {
	Dot  any
	Vars map[string]any
}

func (c Caller) variable(name string) any {
	return c.Vars[name]
}

// errInlineMarkup is returned when an InlineMarkup Expr is evaluated
// without a render in progress.
var errInlineMarkup = errors.New("inline markup can only be evaluated while rendering")

// Evaluate returns the value of e in the context of caller. Inline markup
// can only be rendered as part of a component invocation, so evaluating it
// here returns an error.
func (e *Expr) Evaluate(_ context.Context, funcs map[string]any, caller Caller) (any, error) {
	switch e.Kind {
	case Literal:
		return e.Value, nil
	case InlineMarkup:
		return nil, &Error{Kind: ErrPropertyUnresolvable, Err: errInlineMarkup}
	}
	var captured any
	tmpl := texttemplate.New(e.capture.Name).
		Option("missingkey=error").
		Funcs(funcs).
		Funcs(texttemplate.FuncMap{
			varFunc: caller.variable,
			captureFunc: func(v any) string {
				captured = v
				return ""
			},
		})
	tmpl, err := tmpl.AddParseTree(e.capture.Name, e.capture)
	if err != nil {
		return nil, &Error{Kind: ErrPropertyUnresolvable, Err: err}
	}
	if err := tmpl.Execute(io.Discard, caller.Dot); err != nil {
		return nil, &Error{Kind: ErrPropertyUnresolvable, Err: err}
	}
	return captured, nil
}

// Resolve is Evaluate, but returns Undefined instead of failing.
func (e *Expr) Resolve(ctx context.Context, funcs map[string]any, caller Caller) any {
	v, err := e.Evaluate(ctx, funcs, caller)
	if err != nil {
		return Undefined
	}
	return v
}

// compileExpr turns a template argument into an Expr.
func (c *compiler) compileExpr(arg parse.Node) (*Expr, error) {
	expr := &Expr{Text: arg.String()}
	switch n := arg.(type) {
	case *parse.StringNode:
		if strings.Contains(n.Text, c.src.leftDelim()) {
			body, err := c.fragment(n.Text)
			if err != nil {
				return nil, err
			}
			expr.Kind = InlineMarkup
			expr.body = body
			return expr, nil
		}
		expr.Kind = Literal
		expr.Value = n.Text
		return expr, nil
	case *parse.NumberNode:
		expr.Kind = Literal
		switch {
		case n.IsInt:
			expr.Value = int(n.Int64)
		case n.IsFloat:
			expr.Value = n.Float64
		case n.IsComplex:
			expr.Value = n.Complex128
		default:
			expr.Value = n.Text
		}
		return expr, nil
	case *parse.BoolNode:
		expr.Kind = Literal
		expr.Value = n.True
		return expr, nil
	case *parse.NilNode:
		expr.Kind = Literal
		return expr, nil
	}
	expr.Kind = Reference
	expr.vars = freeVars(true, arg)
	expr.capture = captureTree(c.src.Name+"#expr", arg, expr.vars)
	return expr, nil
}

// captureTree builds the tree
//
//	{{$v := _palette_var "$v"}}...{{_palette_capture ARG}}
//
// which re-declares the caller's variables and hands the value of ARG to
// the capture function.
func captureTree(name string, arg parse.Node, vars []string) *parse.Tree {
	root := &parse.ListNode{NodeType: parse.NodeList}
	for _, v := range vars {
		root.Nodes = append(root.Nodes, declareVar(v))
	}
	root.Nodes = append(root.Nodes, &parse.ActionNode{
		NodeType: parse.NodeAction,
		Pipe:     newCall(captureFunc, arg.Copy()),
	})
	return &parse.Tree{Name: name, ParseName: name, Root: root}
}
