package inspect_test

import (
	"bytes"
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"impractical.co/palette"
	"impractical.co/palette/internal/inspect"
)

func newEngine() *palette.Engine {
	return palette.New(palette.NewFSLoader(fstest.MapFS{
		"base.html": {Data: []byte(`{{component "layout"}}{{slot "title"}}T{{endslot}}{{slot "body"}}{{endslot}}{{endcomponent}}`)},
		"blog.html": {Data: []byte(`{{extends "base.html"}}{{component "layout"}}{{slot "title"}}Blog{{endslot}}{{endcomponent}}{{component "byline"}}{{endcomponent}}`)},
		"loop.html": {Data: []byte(`{{extends "loop.html"}}`)},
	}))
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	sum, err := inspect.Describe(context.Background(), newEngine(), "./blog.html")
	require.NoError(t, err)
	require.Equal(t, inspect.Summary{
		Template: "blog.html",
		Extends:  "base.html",
		Components: []inspect.Component{
			{Name: "byline", Slots: []string{}},
			{Name: "layout", Slots: []string{"title"}},
		},
		Chain: []string{"blog.html", "base.html"},
	}, sum)

	sum, err = inspect.Describe(context.Background(), newEngine(), "loop.html")
	require.NoError(t, err)
	require.Equal(t, []string{"loop.html"}, sum.Chain)

	_, err = inspect.Describe(context.Background(), newEngine(), "missing.html")
	require.ErrorIs(t, err, palette.ErrTemplateNotFound)
}

func TestYAML(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine := newEngine()
	base, err := inspect.Describe(ctx, engine, "base.html")
	require.NoError(t, err)
	blog, err := inspect.Describe(ctx, engine, "blog.html")
	require.NoError(t, err)

	out, err := inspect.YAML(base, blog)
	require.NoError(t, err)
	require.Contains(t, string(out), "---\n")

	dec := yaml.NewDecoder(bytes.NewReader(out))
	for _, want := range []inspect.Summary{base, blog} {
		var got inspect.Summary
		require.NoError(t, dec.Decode(&got))
		require.Equal(t, want, got)
	}
}
