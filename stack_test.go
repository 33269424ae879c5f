package palette_test

import (
	"html/template"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"impractical.co/palette"
)

// labelled returns an Entry whose Vars identify it, and a RenderFunc that
// renders an entry as its label followed by whatever super renders.
func labelled(label string) palette.Entry {
	return palette.Entry{Vars: map[string]any{"label": label}}
}

func renderLabels(_ int, e palette.Entry, super func() (template.HTML, error)) (template.HTML, error) {
	rest, err := super()
	if err != nil {
		return "", err
	}
	return template.HTML(e.Vars["label"].(string)) + rest, nil
}

func TestBlockStackRenderAt(t *testing.T) {
	t.Parallel()

	var stack palette.BlockStack
	stack.PushBack(labelled("B"))
	stack.PushBack(labelled("C"))
	stack.PushFront(labelled("A"))

	top, ok := stack.Top()
	require.True(t, ok)
	require.Equal(t, "A", top.Vars["label"])
	require.Equal(t, 3, stack.Len())

	out, err := stack.RenderAt(0, renderLabels)
	require.NoError(t, err)
	require.Equal(t, template.HTML("ABC"), out)

	out, err = stack.RenderAt(2, renderLabels)
	require.NoError(t, err)
	require.Equal(t, template.HTML("C"), out)

	out, err = stack.RenderAt(3, renderLabels)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestBlockStackEmpty(t *testing.T) {
	t.Parallel()

	var stack palette.BlockStack
	_, ok := stack.Top()
	require.False(t, ok)
	out, err := stack.RenderAt(0, renderLabels)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestBlockStackSuperIsLazy(t *testing.T) {
	t.Parallel()

	var stack palette.BlockStack
	stack.PushBack(labelled("top"))
	stack.PushBack(labelled("bottom"))

	var rendered []string
	out, err := stack.RenderAt(0, func(_ int, e palette.Entry, _ func() (template.HTML, error)) (template.HTML, error) {
		label := e.Vars["label"].(string)
		rendered = append(rendered, label)
		return template.HTML(label), nil
	})
	require.NoError(t, err)
	require.Equal(t, template.HTML("top"), out)
	require.Equal(t, []string{"top"}, rendered)
}

func TestBlockStackProperties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		front := rapid.SliceOf(rapid.StringMatching(`[a-z]{1,4}`)).Draw(t, "front")
		back := rapid.SliceOf(rapid.StringMatching(`[a-z]{1,4}`)).Draw(t, "back")

		var stack palette.BlockStack
		for _, label := range back {
			stack.PushBack(labelled(label))
		}
		for _, label := range front {
			stack.PushFront(labelled(label))
		}

		// the last entry pushed to the front renders first, then the
		// rest of the front entries in reverse, then the back entries
		// in order
		var want strings.Builder
		for i := len(front) - 1; i >= 0; i-- {
			want.WriteString(front[i])
		}
		for _, label := range back {
			want.WriteString(label)
		}

		if stack.Len() != len(front)+len(back) {
			t.Fatalf("expected %d entries, got %d", len(front)+len(back), stack.Len())
		}
		out, err := stack.RenderAt(0, renderLabels)
		if err != nil {
			t.Fatal(err)
		}
		if string(out) != want.String() {
			t.Fatalf("expected %q, got %q", want.String(), out)
		}
	})
}

func TestBlockContextClone(t *testing.T) {
	t.Parallel()

	blocks := palette.NewBlockContext()
	blocks.PushBack("header", labelled("default"))

	clone := blocks.Clone()
	clone.PushFront("header", labelled("override"))
	clone.PushBack("footer", labelled("footer"))

	require.Equal(t, 1, blocks.Stack("header").Len())
	require.Equal(t, 0, blocks.Stack("footer").Len())
	require.Equal(t, []string{"header"}, blocks.Names())

	require.Equal(t, 2, clone.Stack("header").Len())
	top, ok := clone.Stack("header").Top()
	require.True(t, ok)
	require.Equal(t, "override", top.Vars["label"])
	require.Equal(t, []string{"footer", "header"}, clone.Names())
}

func TestBlockStackRenderAtPassesIndex(t *testing.T) {
	t.Parallel()

	var stack palette.BlockStack
	stack.PushBack(labelled("a"))
	stack.PushBack(labelled("b"))

	var seen []int
	_, err := stack.RenderAt(0, func(i int, _ palette.Entry, super func() (template.HTML, error)) (template.HTML, error) {
		seen = append(seen, i)
		return super()
	})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, seen)
}

func TestBlockContextBeneath(t *testing.T) {
	t.Parallel()

	blocks := palette.NewBlockContext()
	blocks.PushBack("header", labelled("override"))
	blocks.PushBack("header", labelled("default"))
	blocks.PushBack("footer", labelled("footer"))

	below := blocks.Beneath("header", 0)
	require.Equal(t, 1, below.Stack("header").Len())
	top, ok := below.Stack("header").Top()
	require.True(t, ok)
	require.Equal(t, "default", top.Vars["label"])
	require.Equal(t, 1, below.Stack("footer").Len(), "other slots are untouched")

	require.Equal(t, 0, blocks.Beneath("header", 1).Stack("header").Len())
	require.Equal(t, 2, blocks.Stack("header").Len(), "the original isn't modified")
}
