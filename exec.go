package palette

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/google/uuid"
)

// renderState is everything one top-level render knows that the templates
// it executes don't: the components it has registered, the block context
// and scope of the component currently rendering, and how deeply
// components are nested.
type renderState struct {
	engine   *Engine
	id       string
	registry *Registry
	blocks   *BlockContext
	scope    *Scope
	depth    int
}

// state returns the render in progress on ctx for e, or starts a new one.
// The returned context carries the state, so renders started from inside
// it share its registry and nesting depth.
func (e *Engine) state(ctx context.Context) (*renderState, context.Context) {
	if st, ok := ctx.Value(stateCtxKey).(*renderState); ok && st.engine == e {
		return st, ctx
	}
	st := &renderState{
		engine:   e,
		id:       uuid.NewString(),
		registry: newRegistry(e.loader, e),
		blocks:   NewBlockContext(),
	}
	return st, context.WithValue(ctx, stateCtxKey, st)
}

func (st *renderState) logger(ctx context.Context) *slog.Logger {
	return Logger(ctx).With("render_id", st.id)
}

// execute runs body with data as dot. binding supplies the values of the
// variables the body captured from where it was written, and super renders
// whatever {{super}} should produce in it.
func (st *renderState) execute(ctx context.Context, body *Body, data any, binding map[string]any, super func() (template.HTML, error)) (template.HTML, error) {
	if body == nil {
		return "", nil
	}
	name := body.tree.Name
	tmpl := template.New(name).
		Funcs(st.engine.funcs).
		Funcs(st.funcs(ctx, body.index, binding, super))
	// html/template escapes trees in place, so every execution gets
	// its own copies.
	for helper, tree := range body.index.helpers {
		if _, err := tmpl.AddParseTree(helper, tree.Copy()); err != nil {
			return "", fmt.Errorf("error adding template %q: %w", helper, err)
		}
	}
	exec, err := tmpl.AddParseTree(name, body.tree.Copy())
	if err != nil {
		return "", fmt.Errorf("error adding template %q: %w", name, err)
	}
	var buf bytes.Buffer
	if err := exec.Execute(&buf, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil // #nosec G203
}

// funcs returns the functions the compiled regions of idx call back into.
func (st *renderState) funcs(ctx context.Context, idx *Index, binding map[string]any, super func() (template.HTML, error)) template.FuncMap {
	return template.FuncMap{
		varFunc: func(name string) any {
			return binding[name]
		},
		superFunc: func() (template.HTML, error) {
			if super == nil {
				return "", nil
			}
			return super()
		},
		markerSlot: func(id string, dot any, vals ...any) (template.HTML, error) {
			region, ok := idx.slots[id]
			if !ok {
				return "", fmt.Errorf("unknown slot %q", id)
			}
			return st.fillSlot(ctx, region, dot, bindVars(region.body.vars, vals))
		},
		markerRender: func(id string, dot any, vals ...any) template.HTML {
			inv, ok := idx.invocations[id]
			if !ok {
				return Diagnostic(fmt.Errorf("unknown invocation %q", id))
			}
			caller := Caller{Dot: dot, Vars: bindVars(inv.vars, vals)}
			return st.invoke(ctx, inv, caller)
		},
		markerComponent: func(id string) template.HTML {
			if !st.engine.preview {
				return ""
			}
			comp, ok := idx.definitions[id]
			if !ok {
				return ""
			}
			return st.preview(ctx, comp)
		},
	}
}

// fillSlot renders the top of the slot's block stack, or the slot's own
// content if nothing is stacked for it. Whatever renders gets the value of
// dot where the slot is.
func (st *renderState) fillSlot(ctx context.Context, region *slotRegion, dot any, vars map[string]any) (template.HTML, error) {
	stack := st.blocks.Stack(region.name)
	if stack.Len() < 1 {
		return st.execute(ctx, region.body, dot, vars, nil)
	}
	blocks := st.blocks
	return stack.RenderAt(0, func(i int, e Entry, super func() (template.HTML, error)) (template.HTML, error) {
		binding := make(map[string]any, len(vars)+len(e.Vars))
		for k, v := range vars {
			binding[k] = v
		}
		for k, v := range e.Vars {
			binding[k] = v
		}
		// a slot of the same name inside this entry renders what's
		// below it, not this entry again
		prev := st.blocks
		st.blocks = blocks.Beneath(region.name, i)
		defer func() { st.blocks = prev }()
		return st.execute(ctx, e.Body, dot, binding, super)
	})
}

func bindVars(names []string, vals []any) map[string]any {
	binding := make(map[string]any, len(names))
	for i, name := range names {
		if i >= len(vals) {
			break
		}
		binding[name] = vals[i]
	}
	return binding
}
