package palette

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"maps"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// invoke renders one component invocation. It never fails: anything that
// goes wrong is logged and rendered as a Diagnostic comment in place of the
// component.
func (st *renderState) invoke(ctx context.Context, inv *invocation, caller Caller) (out template.HTML) {
	ctx, span := st.engine.tracer.Start(ctx, "palette.Component",
		trace.WithAttributes(attribute.String("palette.render_id", st.id)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := &Error{Kind: ErrRenderFailure, Err: fmt.Errorf("panic: %v", r)}
			recordError(span, err)
			st.logger(ctx).ErrorContext(ctx, "panic rendering component", "error", err)
			out = Diagnostic(err)
		}
	}()

	out, err := st.tryInvoke(ctx, span, inv, caller)
	if err != nil {
		recordError(span, err)
		st.logger(ctx).WarnContext(ctx, "error rendering component", "error", err)
		return Diagnostic(err)
	}
	return out
}

func (st *renderState) tryInvoke(ctx context.Context, span trace.Span, inv *invocation, caller Caller) (template.HTML, error) {
	// resolving references
	file, err := st.reference(ctx, inv.template, caller)
	if err != nil {
		return "", err
	}
	name, err := st.reference(ctx, inv.component, caller)
	if err != nil {
		return "", err
	}
	span.SetAttributes(
		attribute.String("palette.template", file),
		attribute.String("palette.component", name),
	)

	// loading the template
	if _, err := st.engine.loader.Resolve(ctx, file); err != nil {
		return "", withComponent(err, file, name)
	}

	// looking up the component
	comp, origin, err := st.registry.Find(ctx, file, name)
	if err != nil {
		return "", err
	}

	// resolving properties
	props := make(map[string]any, len(inv.props))
	for _, prop := range inv.props {
		val := st.resolve(ctx, prop.expr, caller)
		if _, ok := val.(undefined); ok {
			st.logger(ctx).DebugContext(ctx, "property unresolvable, using nil",
				"template", file, "component", name, "property", prop.name, "expression", prop.expr.Text)
			val = nil
		}
		props[prop.name] = val
	}

	// collecting overrides
	blocks := st.engine.buildBlocks(ctx, origin, comp.Name)
	for _, o := range inv.overrides {
		blocks.PushFront(o.name, Entry{Body: o.body, Vars: caller.Vars})
	}

	return st.renderScoped(ctx, comp, props, blocks, inv.children, caller)
}

// renderScoped renders comp with its own scope and block context installed,
// restoring the caller's when it's done.
func (st *renderState) renderScoped(ctx context.Context, comp *Component, props map[string]any, blocks *BlockContext, children *Body, caller Caller) (template.HTML, error) {
	if st.depth >= st.engine.maxDepth {
		return "", &Error{
			Kind:      ErrRecursionLimit,
			Template:  comp.Template,
			Component: comp.Name,
			Err:       fmt.Errorf("more than %d nested components", st.engine.maxDepth),
		}
	}

	prevBlocks, prevScope := st.blocks, st.scope
	st.depth++
	defer func() {
		st.blocks, st.scope = prevBlocks, prevScope
		st.depth--
	}()

	scope := prevScope.Push(ambient(caller)).Push(props)
	scope.Set("component_name", comp.Name)
	scope.Set("children", template.HTML(""))
	if children != nil {
		// children see the component's properties, but any slots in
		// them are still filled by the caller's block context
		rendered, err := st.execute(ctx, children, scope.Flatten(), caller.Vars, nil)
		if err != nil {
			return "", &Error{Kind: ErrRenderFailure, Template: comp.Template, Component: comp.Name, Err: err}
		}
		scope.Set("children", rendered)
	}

	st.blocks = blocks
	st.scope = scope
	out, err := st.execute(ctx, comp.Body, scope.Flatten(), nil, nil)
	if err != nil {
		return "", &Error{Kind: ErrRenderFailure, Template: comp.Template, Component: comp.Name, Err: err}
	}
	return out, nil
}

// ambient returns the values visible where the component was invoked that
// the scope doesn't already hold: the caller's dot, when it's a map, on top
// of the variables the invocation captured, named without their "$".
func ambient(caller Caller) map[string]any {
	vals := map[string]any{}
	for name, val := range caller.Vars {
		if name == "$" {
			continue
		}
		vals[strings.TrimPrefix(name, "$")] = val
	}
	if dot, ok := caller.Dot.(map[string]any); ok {
		maps.Copy(vals, dot)
	}
	return vals
}

// preview renders a component definition in place, with nothing
// overriding its slots.
func (st *renderState) preview(ctx context.Context, comp *Component) template.HTML {
	blocks := st.engine.buildBlocks(ctx, comp.Template, comp.Name)
	out, err := st.renderScoped(ctx, comp, nil, blocks, nil, Caller{})
	if err != nil {
		st.logger(ctx).WarnContext(ctx, "error previewing component", "error", err)
		return Diagnostic(err)
	}
	return out
}

// reference resolves the template or component named by an invocation.
func (st *renderState) reference(ctx context.Context, expr *Expr, caller Caller) (string, error) {
	val := st.resolve(ctx, expr, caller)
	var s string
	switch v := val.(type) {
	case nil, undefined:
	case string:
		s = v
	case template.HTML:
		s = string(v)
	default:
		s = fmt.Sprint(v)
	}
	if s == "" {
		return "", &Error{Kind: ErrInvalidReference, Err: fmt.Errorf("%s is empty", expr.Text)}
	}
	return s, nil
}

// resolve returns the value of expr in the caller's context, or Undefined.
func (st *renderState) resolve(ctx context.Context, expr *Expr, caller Caller) any {
	if expr.Kind != InlineMarkup {
		return expr.Resolve(ctx, st.engine.funcs, caller)
	}
	out, err := st.execute(ctx, expr.body, caller.Dot, caller.Vars, nil)
	if err != nil {
		st.logger(ctx).DebugContext(ctx, "error rendering inline markup", "expression", expr.Text, "error", err)
		return Undefined
	}
	return out
}

func withComponent(err error, file, component string) error {
	var perr *Error
	if errors.As(err, &perr) {
		copied := *perr
		copied.Component = component
		if copied.Template == "" {
			copied.Template = file
		}
		return &copied
	}
	return &Error{Kind: ErrTemplateNotFound, Template: file, Component: component, Err: err}
}

// Call describes a component invocation made from Go rather than from a
// template.
type Call struct {
	// Template is the name of the template defining the component.
	Template string

	// Component is the name of the component.
	Component string

	// Props are the component's properties, used as-is.
	Props map[string]any

	// Overrides maps slot names to markup replacing the slot's content.
	// The markup can use {{super}}.
	Overrides map[string]string

	// Children is markup made available to the component as .children.
	Children string

	// Data is the scope the invocation happens in. The component can see
	// it, underneath its own properties.
	Data map[string]any
}

// RenderComponent renders a single component. Like a component invoked from
// a template, it never fails; problems are logged and rendered as a
// Diagnostic comment.
func (e *Engine) RenderComponent(ctx context.Context, call Call) template.HTML {
	st, ctx := e.state(ctx)
	ctx, span := e.tracer.Start(ctx, "palette.Render", trace.WithAttributes(
		attribute.String("palette.render_id", st.id),
		attribute.String("palette.template", call.Template),
		attribute.String("palette.component", call.Component),
	))
	defer span.End()

	inv, err := e.compileCall(call)
	if err != nil {
		recordError(span, err)
		st.logger(ctx).WarnContext(ctx, "error compiling component call", "error", err)
		return Diagnostic(err)
	}

	prevScope, prevBlocks := st.scope, st.blocks
	defer func() { st.scope, st.blocks = prevScope, prevBlocks }()
	if prevScope == nil {
		st.scope = NewScope(call.Data)
	} else {
		st.scope = prevScope.Push(call.Data)
	}
	st.blocks = NewBlockContext()
	return st.invoke(ctx, inv, Caller{Dot: st.scope.Flatten()})
}

// compileCall builds the invocation a template would have compiled for
// call.
func (e *Engine) compileCall(call Call) (*invocation, error) {
	inv := &invocation{
		template:  &Expr{Kind: Literal, Text: fmt.Sprintf("%q", call.Template), Value: call.Template},
		component: &Expr{Kind: Literal, Text: fmt.Sprintf("%q", call.Component), Value: call.Component},
	}
	for _, name := range sortedKeys(call.Props) {
		inv.props = append(inv.props, property{
			name: name,
			expr: &Expr{Kind: Literal, Text: name, Value: call.Props[name]},
		})
	}
	for _, name := range sortedKeys(call.Overrides) {
		body, err := compileMarkup(call.Template+"#override:"+name, call.Overrides[name])
		if err != nil {
			return nil, err
		}
		inv.overrides = append(inv.overrides, override{name: name, body: body})
	}
	if call.Children != "" {
		body, err := compileMarkup(call.Template+"#children", call.Children)
		if err != nil {
			return nil, err
		}
		inv.children = body
	}
	return inv, nil
}

// compileMarkup parses and indexes markup that isn't part of any file.
func compileMarkup(name, text string) (*Body, error) {
	src, err := Parse(name, text, "", "")
	if err != nil {
		return nil, err
	}
	idx, err := buildIndex(src)
	if err != nil {
		return nil, err
	}
	return idx.Root, nil
}
