package palette_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"impractical.co/palette"
)

func TestScopeShadowing(t *testing.T) {
	t.Parallel()

	root := palette.NewScope(map[string]any{"site": "S", "title": "page"})
	child := root.Push(map[string]any{"title": "card"})
	child.Set("children", "kids")

	v, ok := child.Lookup("title")
	require.True(t, ok)
	require.Equal(t, "card", v)

	v, ok = child.Lookup("site")
	require.True(t, ok)
	require.Equal(t, "S", v)

	_, ok = root.Lookup("children")
	require.False(t, ok, "Set on a child must not leak into its parent")

	require.Equal(t, 2, child.Depth())
	require.Same(t, root, child.Parent())
	require.Equal(t, map[string]any{"site": "S", "title": "card", "children": "kids"}, child.Flatten())
	require.Equal(t, map[string]any{"site": "S", "title": "page"}, root.Flatten())
}

func TestScopeCopiesInput(t *testing.T) {
	t.Parallel()

	vars := map[string]any{"a": 1}
	scope := palette.NewScope(vars)
	vars["a"] = 2
	v, _ := scope.Lookup("a")
	require.Equal(t, 1, v)
}

func TestScopeProperties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		keys := rapid.SampledFrom([]string{"a", "b", "c", "d"})
		drawn := rapid.SliceOfN(rapid.MapOf(keys, rapid.Int()), 1, 6).Draw(t, "layers")
		layers := make([]map[string]any, 0, len(drawn))
		for _, layer := range drawn {
			vars := make(map[string]any, len(layer))
			for k, v := range layer {
				vars[k] = v
			}
			layers = append(layers, vars)
		}

		scope := palette.NewScope(layers[0])
		for _, layer := range layers[1:] {
			scope = scope.Push(layer)
		}

		flat := scope.Flatten()
		for _, key := range []string{"a", "b", "c", "d"} {
			// the innermost layer defining a key wins
			var want any
			var defined bool
			for i := len(layers) - 1; i >= 0; i-- {
				if v, ok := layers[i][key]; ok {
					want, defined = v, true
					break
				}
			}
			got, ok := scope.Lookup(key)
			if ok != defined || got != want {
				t.Fatalf("Lookup(%q) = %v, %v; want %v, %v", key, got, ok, want, defined)
			}
			if flatVal, ok := flat[key]; ok != defined || flatVal != want {
				t.Fatalf("Flatten()[%q] = %v, %v; want %v, %v", key, flatVal, ok, want, defined)
			}
		}
		if scope.Depth() != len(layers) {
			t.Fatalf("expected depth %d, got %d", len(layers), scope.Depth())
		}
	})
}
