package palette

import (
	"context"
	"html/template"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultMaxDepth is how deeply components can be nested inside each
	// other before rendering gives up.
	DefaultMaxDepth = 32

	tracerName = "impractical.co/palette"
)

// Engine renders templates and the components they define. An Engine holds
// no per-render state, so a single Engine should be shared by everything
// rendering from the same templates. It can safely be used by multiple
// goroutines.
//
// An Engine must be created with New; its empty value is not usable.
type Engine struct {
	loader    Loader
	funcs     template.FuncMap
	cache     *indexCache
	tracer    trace.Tracer
	maxDepth  int
	errorPage string
	preview   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithFuncs makes funcs available to every template the Engine executes.
// It can be passed more than once; later functions replace earlier ones
// with the same name. The component markers and super are reserved;
// functions using their names are ignored.
func WithFuncs(funcs template.FuncMap) Option {
	return func(e *Engine) {
		e.funcs = mergeFuncMaps(e.funcs, funcs)
		for _, name := range reservedFuncs {
			delete(e.funcs, name)
		}
	}
}

var reservedFuncs = []string{
	markerComponent, markerEndComponent,
	markerSlot, markerEndSlot,
	markerRender, markerEndRender,
	markerOverride, markerEndOverride,
	markerExtends, superFunc,
	varFunc, captureFunc,
}

// WithTracerProvider sets the OpenTelemetry TracerProvider the Engine uses
// to create spans. By default the global TracerProvider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		e.tracer = tp.Tracer(tracerName)
	}
}

// WithMaxDepth sets how deeply components can be nested. Values below 1 are
// ignored.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// WithErrorPage sets the template Render falls back to when a page can't
// be rendered. It's rendered with the error as .error.
func WithErrorPage(name string) Option {
	return func(e *Engine) {
		e.errorPage = name
	}
}

// WithDefinitionPreview makes component definitions render their default
// content in place when the file defining them is rendered, instead of
// rendering nothing. It's useful for previewing a file of components.
func WithDefinitionPreview(enabled bool) Option {
	return func(e *Engine) {
		e.preview = enabled
	}
}

// New returns an Engine loading templates from loader.
func New(loader Loader, opts ...Option) *Engine {
	e := &Engine{
		loader:   loader,
		funcs:    template.FuncMap{},
		cache:    newIndexCache(),
		tracer:   otel.GetTracerProvider().Tracer(tracerName),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Index returns the structural Index of the template known as name, building
// and caching it if it hasn't been built yet.
func (e *Engine) Index(ctx context.Context, name string) (*Index, error) {
	return e.cache.get(name, func() (*Index, error) {
		ctx, span := e.tracer.Start(ctx, "palette.Index",
			trace.WithAttributes(attribute.String("palette.template", name)))
		defer span.End()

		src, err := e.loader.Load(ctx, name)
		if err != nil {
			recordError(span, err)
			return nil, err
		}
		idx, err := buildIndex(src)
		if err != nil {
			recordError(span, err)
			return nil, err
		}
		span.SetAttributes(attribute.Int("palette.components", len(idx.Components)))
		Logger(ctx).DebugContext(ctx, "indexed template",
			"template", name, "canonical", idx.Name,
			"components", len(idx.Components), "parent", idx.Parent)
		return idx, nil
	})
}

// ClearCache drops every cached Index, so the next render sees the
// templates as they are now.
func (e *Engine) ClearCache() {
	e.cache.flush()
}

// CachedTemplates returns the number of Indexes currently cached.
func (e *Engine) CachedTemplates() int {
	return e.cache.len()
}

// buildBlocks assembles the block context for rendering component, found
// in the template origin. Starting at origin and following {{extends}}, each
// template defining the component contributes its slot defaults, nearest
// template first. A template seen twice ends the walk.
func (e *Engine) buildBlocks(ctx context.Context, origin, component string) *BlockContext {
	blocks := NewBlockContext()
	visited := map[string]struct{}{}
	for current := origin; current != ""; {
		idx, err := e.Index(ctx, current)
		if err != nil {
			Logger(ctx).DebugContext(ctx, "stopping extends walk at unloadable template",
				"template", current, "component", component, "error", err)
			break
		}
		if _, ok := visited[idx.Name]; ok {
			Logger(ctx).DebugContext(ctx, "stopping extends walk at cycle",
				"template", idx.Name, "component", component)
			break
		}
		visited[idx.Name] = struct{}{}
		if comp, ok := idx.Components[component]; ok {
			seen := map[string]struct{}{}
			for _, slot := range comp.Slots {
				if _, ok := seen[slot.Name]; ok {
					continue
				}
				seen[slot.Name] = struct{}{}
				blocks.PushBack(slot.Name, Entry{Body: slot.Body})
			}
		}
		current = idx.Parent
	}
	return blocks
}
