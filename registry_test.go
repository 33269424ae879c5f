package palette

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

type countingIndexer struct {
	engine *Engine
	calls  []string
}

func (c *countingIndexer) Index(ctx context.Context, name string) (*Index, error) {
	c.calls = append(c.calls, name)
	return c.engine.Index(ctx, name)
}

func newTestRegistry(t *testing.T, files map[string]string) (*Registry, *countingIndexer) {
	t.Helper()
	fsys := fstest.MapFS{}
	for name, contents := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(contents)}
	}
	loader := NewFSLoader(fsys)
	idx := &countingIndexer{engine: New(loader)}
	return newRegistry(loader, idx), idx
}

func TestRegistryFindStrategies(t *testing.T) {
	t.Parallel()

	reg, indexer := newTestRegistry(t, map[string]string{
		"ui/cards.html": `{{component "card"}}card{{endcomponent}}`,
		"cards.html":    `{{component "other"}}other{{endcomponent}}`,
	})
	ctx := context.Background()

	// nothing registered yet: index on demand, under the requested name
	// and the canonical one
	comp, origin, err := reg.Find(ctx, "./ui/cards.html", "card")
	require.NoError(t, err)
	require.Equal(t, "card", comp.Name)
	require.Equal(t, "./ui/cards.html", origin)
	require.Equal(t, []string{"./ui/cards.html"}, indexer.calls)
	require.Equal(t, []string{"./ui/cards.html", "ui/cards.html"}, reg.Names())

	// exact match
	comp, origin, err = reg.Find(ctx, "./ui/cards.html", "card")
	require.NoError(t, err)
	require.Equal(t, "card", comp.Name)
	require.Equal(t, "./ui/cards.html", origin)

	// canonical match
	comp, origin, err = reg.Find(ctx, "/ui/cards.html", "card")
	require.NoError(t, err)
	require.Equal(t, "card", comp.Name)
	require.Equal(t, "ui/cards.html", origin)

	// base name match: cards.html doesn't define card, but a registered
	// template with the same base name does
	comp, origin, err = reg.Find(ctx, "cards.html", "card")
	require.NoError(t, err)
	require.Equal(t, "card", comp.Name)
	require.Equal(t, "./ui/cards.html", origin)
	require.Len(t, indexer.calls, 1, "no strategy after the first should have needed an index")

	// everything fails
	_, _, err = reg.Find(ctx, "cards.html", "missing")
	require.ErrorIs(t, err, ErrComponentNotFound)
	require.Len(t, indexer.calls, 2)

	_, _, err = reg.Find(ctx, "nope.html", "card")
	require.ErrorIs(t, err, ErrComponentNotFound)
	require.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestRegistryRegister(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t, nil)
	idx := newIndex("a.html")
	idx.Components["x"] = &Component{Name: "x", Template: "a.html"}
	reg.Register("a.html", idx)
	reg.Register("empty.html", newIndex("empty.html"))

	comp, ok := reg.Lookup("a.html", "x")
	require.True(t, ok)
	require.Equal(t, "x", comp.Name)

	_, ok = reg.Lookup("a.html", "y")
	require.False(t, ok)
	require.Equal(t, []string{"a.html", "empty.html"}, reg.Names())
}
