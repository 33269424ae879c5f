package palette

import (
	"context"
	"maps"
	"path"
	"slices"
)

// indexer is what a Registry uses to index templates it hasn't seen yet.
type indexer interface {
	Index(ctx context.Context, name string) (*Index, error)
}

// Registry records the components known to a single render, keyed by the
// name of the template that defines them and then by component name. It
// fills up as templates get rendered or invoked.
//
// A Registry is not safe for concurrent use; each top-level render gets its
// own.
type Registry struct {
	loader     Loader
	indexer    indexer
	components map[string]map[string]*Component
}

func newRegistry(loader Loader, idx indexer) *Registry {
	return &Registry{
		loader:     loader,
		indexer:    idx,
		components: map[string]map[string]*Component{},
	}
}

// Register adds every component in idx under name.
func (r *Registry) Register(name string, idx *Index) {
	for _, comp := range idx.Components {
		r.Add(name, comp)
	}
	if _, ok := r.components[name]; !ok {
		r.components[name] = map[string]*Component{}
	}
}

// Add adds comp under the template name.
func (r *Registry) Add(name string, comp *Component) {
	byName, ok := r.components[name]
	if !ok {
		byName = map[string]*Component{}
		r.components[name] = byName
	}
	byName[comp.Name] = comp
}

// Lookup returns the component registered under exactly name and
// component.
func (r *Registry) Lookup(name, component string) (*Component, bool) {
	comp, ok := r.components[name][component]
	return comp, ok
}

// Names returns every template name in the registry, sorted.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.components))
}

// Find locates component in the template known as name. It tries, in
// order: the name exactly as given, the name's canonical form according to
// the Loader, any registered template with the same base name, and finally
// indexing the template, registering everything it defines.
//
// It returns the component and the name it was found under, which is where
// the walk up the extends chain for it starts.
func (r *Registry) Find(ctx context.Context, name, component string) (*Component, string, error) {
	if comp, ok := r.Lookup(name, component); ok {
		return comp, name, nil
	}

	canonical, resolveErr := r.loader.Resolve(ctx, name)
	if resolveErr == nil && canonical != name {
		if comp, ok := r.Lookup(canonical, component); ok {
			return comp, canonical, nil
		}
	}

	base := path.Base(Canonicalize(name))
	for _, key := range r.Names() {
		if path.Base(key) != base {
			continue
		}
		if comp, ok := r.Lookup(key, component); ok {
			Logger(ctx).DebugContext(ctx, "found component by base name",
				"template", name, "component", component, "registered_as", key)
			return comp, key, nil
		}
	}

	idx, err := r.indexer.Index(ctx, name)
	if err != nil {
		return nil, "", &Error{Kind: ErrComponentNotFound, Template: name, Component: component, Err: err}
	}
	r.Register(name, idx)
	if idx.Name != name {
		r.Register(idx.Name, idx)
	}
	if comp, ok := r.Lookup(name, component); ok {
		return comp, name, nil
	}
	return nil, "", &Error{Kind: ErrComponentNotFound, Template: name, Component: component}
}
