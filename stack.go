package palette

import (
	"html/template"
	"maps"
	"slices"
)

// Entry is one candidate body for a slot: what to render, and the caller
// variables it was written against.
type Entry struct {
	Body *Body
	Vars map[string]any
}

// BlockStack is the ordered list of bodies competing to fill one slot. The
// entry at the top renders; {{super}} inside it renders the entry below it,
// and so on down to the slot's default content from the furthest ancestor
// template.
type BlockStack struct {
	entries []Entry
}

// PushFront adds an entry on top of the stack, making it the one that
// renders.
func (s *BlockStack) PushFront(e Entry) {
	s.entries = slices.Insert(s.entries, 0, e)
}

// PushBack adds an entry to the bottom of the stack.
func (s *BlockStack) PushBack(e Entry) {
	s.entries = append(s.entries, e)
}

// Top returns the entry that renders, if there is one.
func (s *BlockStack) Top() (Entry, bool) {
	if s == nil || len(s.entries) < 1 {
		return Entry{}, false
	}
	return s.entries[0], true
}

// Len returns the number of entries in the stack.
func (s *BlockStack) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// At returns entry i, counting from the top.
func (s *BlockStack) At(i int) Entry {
	return s.entries[i]
}

// RenderFunc renders entry i of a stack. super renders the entry below it.
type RenderFunc func(i int, e Entry, super func() (template.HTML, error)) (template.HTML, error)

// RenderAt renders entry i using render. Past the bottom of the stack it
// renders nothing, so {{super}} in the last entry is empty.
func (s *BlockStack) RenderAt(i int, render RenderFunc) (template.HTML, error) {
	if i < 0 || i >= s.Len() {
		return "", nil
	}
	return render(i, s.entries[i], func() (template.HTML, error) {
		return s.RenderAt(i+1, render)
	})
}

// BlockContext holds the BlockStack for every slot name of the component
// being rendered.
type BlockContext struct {
	stacks map[string]*BlockStack
}

// NewBlockContext returns an empty BlockContext.
func NewBlockContext() *BlockContext {
	return &BlockContext{stacks: map[string]*BlockStack{}}
}

// Stack returns the stack for name. It never returns nil; a name with no
// entries gets an empty stack.
func (b *BlockContext) Stack(name string) *BlockStack {
	if b == nil {
		return &BlockStack{}
	}
	if stack, ok := b.stacks[name]; ok {
		return stack
	}
	return &BlockStack{}
}

func (b *BlockContext) stack(name string) *BlockStack {
	stack, ok := b.stacks[name]
	if !ok {
		stack = &BlockStack{}
		b.stacks[name] = stack
	}
	return stack
}

// PushFront adds e on top of the stack for name.
func (b *BlockContext) PushFront(name string, e Entry) {
	b.stack(name).PushFront(e)
}

// PushBack adds e to the bottom of the stack for name.
func (b *BlockContext) PushBack(name string, e Entry) {
	b.stack(name).PushBack(e)
}

// Names returns the slot names with stacks, sorted.
func (b *BlockContext) Names() []string {
	if b == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(b.stacks))
}

// Beneath returns a BlockContext like b, except that the stack for name
// only holds the entries below entry i. A body rendering as entry i sees
// it, so a slot of the same name inside that body falls through to the
// rest of the stack instead of rendering the body again.
func (b *BlockContext) Beneath(name string, i int) *BlockContext {
	below := NewBlockContext()
	if b == nil {
		return below
	}
	maps.Copy(below.stacks, b.stacks)
	stack := b.Stack(name)
	if i+1 < stack.Len() {
		below.stacks[name] = &BlockStack{entries: slices.Clone(stack.entries[i+1:])}
	} else {
		delete(below.stacks, name)
	}
	return below
}

// Clone returns a copy of b that can be modified without affecting b.
func (b *BlockContext) Clone() *BlockContext {
	clone := NewBlockContext()
	if b == nil {
		return clone
	}
	for name, stack := range b.stacks {
		clone.stacks[name] = &BlockStack{entries: slices.Clone(stack.entries)}
	}
	return clone
}
