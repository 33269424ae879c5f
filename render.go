package palette

import (
	"bytes"
	"context"
	"html/template"
	"io"
	"maps"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Execute renders the template known as name to out, with data as dot. The
// components defined in the template are registered for the render, and
// component invocations in it are rendered in place.
//
// Errors in component invocations don't fail the render; they're logged and
// replaced with Diagnostic comments. Execute only returns an error if the
// template itself can't be loaded, indexed, or executed, in which case
// nothing is written to out.
func (e *Engine) Execute(ctx context.Context, out io.Writer, name string, data map[string]any) error {
	st, ctx := e.state(ctx)
	ctx, span := e.tracer.Start(ctx, "palette.Render", trace.WithAttributes(
		attribute.String("palette.render_id", st.id),
		attribute.String("palette.template", name),
	))
	defer span.End()

	idx, err := e.Index(ctx, name)
	if err != nil {
		recordError(span, err)
		return err
	}
	st.registry.Register(name, idx)
	if idx.Name != name {
		st.registry.Register(idx.Name, idx)
	}

	prevScope, prevBlocks := st.scope, st.blocks
	defer func() { st.scope, st.blocks = prevScope, prevBlocks }()
	if prevScope == nil {
		st.scope = NewScope(data)
	} else {
		st.scope = prevScope.Push(data)
	}
	// slots outside any component render their own content
	st.blocks = NewBlockContext()

	rendered, err := st.execute(ctx, idx.Root, st.scope.Flatten(), nil, nil)
	if err != nil {
		err = &Error{Kind: ErrRenderFailure, Template: idx.Name, Err: err}
		recordError(span, err)
		return err
	}
	if _, err := io.WriteString(out, string(rendered)); err != nil {
		recordError(span, err)
		return err
	}
	return nil
}

// Render renders the template known as name to out. If it can't, the
// Engine's error page is rendered instead, if it has one; if it doesn't, or
// that fails too, a simple text message indicating a server error is
// written.
//
// If out is an io.Closer, it's closed once rendering is done.
func (e *Engine) Render(ctx context.Context, out io.Writer, name string, data map[string]any) {
	defer func() {
		// if the ResponseWriter can be closed, let's try to close it
		if closer, ok := out.(io.Closer); ok {
			err := closer.Close()
			// if there's an error closing it, logging it's about all we can do
			if err != nil {
				Logger(ctx).ErrorContext(ctx, "error closing response writer", "error", err)
			}
		}
	}()

	// render into a buffer, so a failure doesn't leave half a page
	// written ahead of the error page
	var buf bytes.Buffer
	err := e.Execute(ctx, &buf, name, data)
	if err == nil {
		if _, err := buf.WriteTo(out); err != nil {
			Logger(ctx).ErrorContext(ctx, "error writing page", "template", name, "error", err)
		}
		return
	}

	// log whatever went wrong before trying the error page
	Logger(ctx).ErrorContext(ctx, "error rendering page", "template", name, "error", err)
	e.RenderErrorPage(ctx, out, err)
}

// RenderErrorPage writes the Engine's error page to out, with err as
// .error. If the Engine has no error page, or it can't be rendered, a
// simple text message indicating a server error is written instead.
func (e *Engine) RenderErrorPage(ctx context.Context, out io.Writer, err error) {
	if e.errorPage != "" {
		msg := "unknown error"
		if err != nil {
			msg = err.Error()
		}
		var buf bytes.Buffer
		pageErr := e.Execute(ctx, &buf, e.errorPage, map[string]any{"error": msg})
		if pageErr == nil {
			if _, err := buf.WriteTo(out); err != nil {
				Logger(ctx).ErrorContext(ctx, "error writing server error page", "error", err)
			}
			return
		}
		Logger(ctx).ErrorContext(ctx, "error rendering server error page",
			"template", e.errorPage, "error", pageErr)
	}

	// there's no usable server error page, write a server error message
	if _, err := out.Write([]byte("Server error.")); err != nil {
		Logger(ctx).ErrorContext(ctx, "error writing server error message", "error", err)
	}
}

// mergeFuncMaps flattens two FuncMaps into one, with the values in `added`
// overriding the values in `in` if they have the same keys.
func mergeFuncMaps(in template.FuncMap, added template.FuncMap) template.FuncMap {
	res := template.FuncMap{}
	for k, v := range in {
		res[k] = v
	}
	for k, v := range added {
		res[k] = v
	}
	return res
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
