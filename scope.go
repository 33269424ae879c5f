package palette

import "maps"

// Scope is a layered set of template variables. Each component invocation
// pushes a new layer holding its properties on top of the scope it was
// invoked in, so the component can see everything its caller could, but
// nothing it sets is visible once it returns.
//
// A Scope is not safe for concurrent mutation; each render builds its own.
type Scope struct {
	parent *Scope
	vars   map[string]any
}

// NewScope returns a root Scope containing a copy of vars.
func NewScope(vars map[string]any) *Scope {
	return &Scope{vars: maps.Clone(vars)}
}

// Push returns a new Scope layered on top of s, containing a copy of vars.
// s is not modified.
func (s *Scope) Push(vars map[string]any) *Scope {
	layer := maps.Clone(vars)
	if layer == nil {
		layer = map[string]any{}
	}
	return &Scope{parent: s, vars: layer}
}

// Parent returns the Scope s was pushed on top of, or nil for a root Scope.
func (s *Scope) Parent() *Scope {
	if s == nil {
		return nil
	}
	return s.parent
}

// Lookup returns the value of name in the innermost layer that defines it.
func (s *Scope) Lookup(name string) (any, bool) {
	for layer := s; layer != nil; layer = layer.parent {
		if v, ok := layer.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Set sets name in the top layer of s only.
func (s *Scope) Set(name string, value any) {
	if s.vars == nil {
		s.vars = map[string]any{}
	}
	s.vars[name] = value
}

// Depth returns the number of layers in s.
func (s *Scope) Depth() int {
	var depth int
	for layer := s; layer != nil; layer = layer.parent {
		depth++
	}
	return depth
}

// Flatten returns every visible variable in s as a single map, with inner
// layers shadowing outer ones. The result is a fresh map, and is what
// templates see as dot.
func (s *Scope) Flatten() map[string]any {
	var layers []*Scope
	for layer := s; layer != nil; layer = layer.parent {
		layers = append(layers, layer)
	}
	result := map[string]any{}
	for i := len(layers) - 1; i >= 0; i-- {
		maps.Copy(result, layers[i].vars)
	}
	return result
}
