package palette

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"text/template/parse"
)

// Index is the structural summary of one template file: the components it
// defines, the template it extends, and its content compiled into trees
// html/template can execute.
//
// An Index is immutable once built and can be shared between renders.
type Index struct {
	// Name is the canonical name of the template.
	Name string

	// Parent is the template named by the file's first {{extends}}, or
	// empty if it doesn't extend anything.
	Parent string

	// Components holds every component the file defines, by name. When a
	// file defines the same name twice, the last definition wins.
	Components map[string]*Component

	// Root is the file's top-level content.
	Root *Body

	helpers     map[string]*parse.Tree
	slots       map[string]*slotRegion
	invocations map[string]*invocation
	definitions map[string]*Component
}

// Component is a named, reusable piece of markup defined with
// {{component "name"}}...{{endcomponent}}.
type Component struct {
	Name string

	// Template is the canonical name of the template that defines the
	// component.
	Template string

	Body *Body

	// Slots lists the slots in the component's body in document order,
	// not counting slots inside the content of invocations in the body.
	Slots []Slot
}

// SlotNames returns the names of the component's slots, in document order.
func (c *Component) SlotNames() []string {
	names := make([]string, 0, len(c.Slots))
	for _, slot := range c.Slots {
		names = append(names, slot.Name)
	}
	return names
}

// Slot is a named, overridable region of a component, and the content it
// renders when nothing overrides it.
type Slot struct {
	Name string
	Body *Body
}

// Body is a compiled piece of template content: a component's body, a
// slot's default content, an override, or the content of an invocation.
// Bodies can only be executed by the Engine.
type Body struct {
	index *Index
	tree  *parse.Tree

	// vars are the variables the body reads from the execution it was
	// written in.
	vars []string
}

// Name returns a name identifying the body within its template.
func (b *Body) Name() string {
	if b == nil || b.tree == nil {
		return ""
	}
	return b.tree.Name
}

// String returns the body's compiled template text.
func (b *Body) String() string {
	if b == nil || b.tree == nil || b.tree.Root == nil {
		return ""
	}
	return b.tree.Root.String()
}

type slotRegion struct {
	name string
	body *Body
}

type invocation struct {
	template  *Expr
	component *Expr
	props     []property
	overrides []override
	children  *Body

	// vars are the caller variables passed to the invocation, in the
	// order the compiled action passes them.
	vars []string
}

type property struct {
	name string
	expr *Expr
}

type override struct {
	name string
	body *Body
}

func newIndex(name string) *Index {
	return &Index{
		Name:        name,
		Components:  map[string]*Component{},
		helpers:     map[string]*parse.Tree{},
		slots:       map[string]*slotRegion{},
		invocations: map[string]*invocation{},
		definitions: map[string]*Component{},
	}
}

// buildIndex compiles src into an Index.
func buildIndex(src *Source) (*Index, error) {
	idx := newIndex(src.Name)
	c := &compiler{src: src, index: idx}

	root, ok := src.Trees[src.Name]
	if !ok || root.Root == nil {
		return nil, &Error{Kind: ErrTemplateSyntax, Template: src.Name, Err: fmt.Errorf("no template named %q in file", src.Name)}
	}
	body, err := c.body(root, root.Root.Nodes, root.Root.Position())
	if err != nil {
		return nil, err
	}
	idx.Root = body

	// define trees are compiled in name order so region ids are stable
	names := make([]string, 0, len(src.Trees))
	for name := range src.Trees {
		if name != src.Name {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	for _, name := range names {
		tree := src.Trees[name]
		if tree.Root == nil {
			continue
		}
		c.use(tree)
		nodes, err := c.nodes(tree.Root.Nodes)
		if err != nil {
			return nil, err
		}
		idx.helpers[name] = &parse.Tree{
			Name:      name,
			ParseName: tree.ParseName,
			Root:      listLike(c.proto, tree.Root.Position(), nodes),
		}
	}
	return idx, nil
}

// compiler turns the marker regions of a Source into Index entries,
// replacing each with an action that hands the region to the Engine at
// execution time.
type compiler struct {
	src   *Source
	index *Index

	tree  *parse.Tree
	proto *parse.ListNode

	// components are the component definitions enclosing the current
	// node, innermost last.
	components []*Component

	// invocations are the invocation regions enclosing the current node,
	// innermost last. A slot is only attributed to a component when it
	// isn't inside an invocation nested in that component.
	invocations []*invocation
	// definedIn records len(invocations) at the start of each component in
	// components.
	definedIn []int

	next int
}

func (c *compiler) use(tree *parse.Tree) {
	c.tree = tree
	proto := tree.Root.CopyList()
	proto.Nodes = nil
	c.proto = proto
}

func (c *compiler) id(prefix string) string {
	c.next++
	return prefix + strconv.Itoa(c.next)
}

func (c *compiler) errorf(node parse.Node, format string, args ...any) error {
	location, _ := c.tree.ErrorContext(node)
	return &Error{
		Kind:     ErrTemplateSyntax,
		Template: c.src.Name,
		Err:      fmt.Errorf("%s: %s", location, fmt.Sprintf(format, args...)),
	}
}

// body compiles nodes, which are part of tree, into a Body.
func (c *compiler) body(tree *parse.Tree, nodes []parse.Node, pos parse.Pos) (*Body, error) {
	prevTree, prevProto := c.tree, c.proto
	c.use(tree)
	defer func() { c.tree, c.proto = prevTree, prevProto }()

	compiled, err := c.nodes(nodes)
	if err != nil {
		return nil, err
	}
	return c.newBody(nodes, compiled, pos), nil
}

// region compiles the nodes between a pair of markers into a Body.
func (c *compiler) region(nodes []parse.Node, pos parse.Pos) (*Body, error) {
	compiled, err := c.nodes(nodes)
	if err != nil {
		return nil, err
	}
	return c.newBody(nodes, compiled, pos), nil
}

func (c *compiler) newBody(raw, compiled []parse.Node, pos parse.Pos) *Body {
	vars := freeVars(false, raw...)
	nodes := make([]parse.Node, 0, len(vars)+len(compiled))
	for _, v := range vars {
		nodes = append(nodes, declareVar(v))
	}
	nodes = append(nodes, compiled...)
	name := c.src.Name + "#" + c.id("b")
	return &Body{
		index: c.index,
		tree: &parse.Tree{
			Name:      name,
			ParseName: c.tree.ParseName,
			Root:      listLike(c.proto, pos, nodes),
		},
		vars: vars,
	}
}

// fragment parses and compiles a string of markup written inside an
// action, like the value of an inline markup property.
func (c *compiler) fragment(text string) (*Body, error) {
	name := c.src.Name + "#" + c.id("f")
	src, err := Parse(name, text, c.src.leftDelim(), c.src.rightDelim())
	if err != nil {
		return nil, err
	}
	tree := src.Trees[name]
	return c.body(tree, tree.Root.Nodes, tree.Root.Position())
}

func (c *compiler) list(list *parse.ListNode) (*parse.ListNode, error) {
	if list == nil {
		return nil, nil
	}
	nodes, err := c.nodes(list.Nodes)
	if err != nil {
		return nil, err
	}
	return listLike(c.proto, list.Position(), nodes), nil
}

func (c *compiler) nodes(nodes []parse.Node) ([]parse.Node, error) {
	out := make([]parse.Node, 0, len(nodes))
	for i := 0; i < len(nodes); i++ {
		m, ok := asMarker(nodes[i])
		if !ok {
			node, err := c.node(nodes[i])
			if err != nil {
				return nil, err
			}
			out = append(out, node)
			continue
		}
		if m.name == markerExtends {
			if err := c.extends(m); err != nil {
				return nil, err
			}
			continue
		}
		if isCloser(m.name) {
			return nil, c.errorf(m.action, "unexpected {{%s}}", m.name)
		}
		end, err := c.matchEnd(nodes, i)
		if err != nil {
			return nil, err
		}
		inner := nodes[i+1 : end]
		var node parse.Node
		switch m.name {
		case markerComponent:
			node, err = c.component(m, inner)
		case markerSlot:
			node, err = c.slot(m, inner)
		case markerRender:
			node, err = c.render(m, inner)
		case markerOverride:
			err = c.override(m, inner)
		}
		if err != nil {
			return nil, err
		}
		if node != nil {
			out = append(out, node)
		}
		i = end
	}
	return out, nil
}

func (c *compiler) node(node parse.Node) (parse.Node, error) {
	switch n := node.(type) {
	case *parse.IfNode:
		branch, err := c.branch(&n.BranchNode)
		if err != nil {
			return nil, err
		}
		copied := n.Copy().(*parse.IfNode)
		copied.List, copied.ElseList = branch.List, branch.ElseList
		return copied, nil
	case *parse.RangeNode:
		branch, err := c.branch(&n.BranchNode)
		if err != nil {
			return nil, err
		}
		copied := n.Copy().(*parse.RangeNode)
		copied.List, copied.ElseList = branch.List, branch.ElseList
		return copied, nil
	case *parse.WithNode:
		branch, err := c.branch(&n.BranchNode)
		if err != nil {
			return nil, err
		}
		copied := n.Copy().(*parse.WithNode)
		copied.List, copied.ElseList = branch.List, branch.ElseList
		return copied, nil
	}
	return node, nil
}

func (c *compiler) branch(b *parse.BranchNode) (parse.BranchNode, error) {
	var result parse.BranchNode
	list, err := c.list(b.List)
	if err != nil {
		return result, err
	}
	elseList, err := c.list(b.ElseList)
	if err != nil {
		return result, err
	}
	result.List, result.ElseList = list, elseList
	return result, nil
}

// matchEnd returns the index in nodes of the marker closing the region
// opened at nodes[start].
func (c *compiler) matchEnd(nodes []parse.Node, start int) (int, error) {
	opener, _ := asMarker(nodes[start])
	want := []string{closers[opener.name]}
	for i := start + 1; i < len(nodes); i++ {
		m, ok := asMarker(nodes[i])
		if !ok {
			continue
		}
		if closer, ok := closers[m.name]; ok {
			want = append(want, closer)
			continue
		}
		if !isCloser(m.name) {
			continue
		}
		if top := want[len(want)-1]; m.name != top {
			return 0, c.errorf(m.action, "unexpected {{%s}}, expected {{%s}}", m.name, top)
		}
		want = want[:len(want)-1]
		if len(want) == 0 {
			return i, nil
		}
	}
	return 0, c.errorf(opener.action, "{{%s}} has no matching {{%s}}", opener.name, closers[opener.name])
}

// literalName returns the single string literal argument of m.
func (c *compiler) literalName(m marker) (string, error) {
	if len(m.args) != 1 {
		return "", c.errorf(m.action, "{{%s}} takes exactly one name", m.name)
	}
	name, ok := m.args[0].(*parse.StringNode)
	if !ok || name.Text == "" {
		return "", c.errorf(m.action, "{{%s}} needs a non-empty string literal name", m.name)
	}
	return name.Text, nil
}

func (c *compiler) extends(m marker) error {
	parent, err := c.literalName(m)
	if err != nil {
		return err
	}
	if c.index.Parent == "" {
		c.index.Parent = parent
	}
	return nil
}

func (c *compiler) component(m marker, inner []parse.Node) (parse.Node, error) {
	name, err := c.literalName(m)
	if err != nil {
		return nil, err
	}
	comp := &Component{Name: name, Template: c.src.Name}
	c.components = append(c.components, comp)
	c.definedIn = append(c.definedIn, len(c.invocations))
	body, err := c.region(inner, m.action.Position())
	c.components = c.components[:len(c.components)-1]
	c.definedIn = c.definedIn[:len(c.definedIn)-1]
	if err != nil {
		return nil, err
	}
	comp.Body = body
	c.index.Components[name] = comp

	id := c.id("c")
	c.index.definitions[id] = comp
	return rewriteMarker(m, newString(id)), nil
}

func (c *compiler) slot(m marker, inner []parse.Node) (parse.Node, error) {
	name, err := c.literalName(m)
	if err != nil {
		return nil, err
	}
	// the slot takes its place before any slots nested in it, so Slots
	// stays in document order
	var comp *Component
	pos := -1
	if n := len(c.components); n > 0 && c.definedIn[n-1] == len(c.invocations) {
		comp = c.components[n-1]
		pos = len(comp.Slots)
		comp.Slots = append(comp.Slots, Slot{Name: name})
	}
	body, err := c.region(inner, m.action.Position())
	if err != nil {
		return nil, err
	}
	if comp != nil {
		comp.Slots[pos].Body = body
	}
	id := c.id("s")
	c.index.slots[id] = &slotRegion{name: name, body: body}
	args := append([]parse.Node{newString(id), newDot()}, variableArgs(body.vars)...)
	return rewriteMarker(m, args...), nil
}

func (c *compiler) render(m marker, inner []parse.Node) (parse.Node, error) {
	if len(m.args) < 2 {
		return nil, c.errorf(m.action, "{{render}} needs a template and a component")
	}
	if len(m.args)%2 != 0 {
		return nil, c.errorf(m.action, "{{render}} properties must be name and value pairs")
	}
	inv := &invocation{}
	var err error
	if inv.template, err = c.compileExpr(m.args[0]); err != nil {
		return nil, err
	}
	if inv.component, err = c.compileExpr(m.args[1]); err != nil {
		return nil, err
	}
	for i := 2; i < len(m.args); i += 2 {
		key, ok := m.args[i].(*parse.StringNode)
		if !ok || key.Text == "" {
			return nil, c.errorf(m.action, "{{render}} property names must be non-empty string literals, got %s", m.args[i])
		}
		expr, err := c.compileExpr(m.args[i+1])
		if err != nil {
			return nil, err
		}
		inv.props = append(inv.props, property{name: key.Text, expr: expr})
	}

	c.invocations = append(c.invocations, inv)
	children, err := c.region(inner, m.action.Position())
	c.invocations = c.invocations[:len(c.invocations)-1]
	if err != nil {
		return nil, err
	}
	if !blank(children) {
		inv.children = children
	}

	id := c.id("r")
	c.index.invocations[id] = inv
	inv.vars = freeVars(true, append([]parse.Node{m.action}, inner...)...)
	args := append([]parse.Node{newString(id), newDot()}, variableArgs(inv.vars)...)
	return rewriteMarker(m, args...), nil
}

func (c *compiler) override(m marker, inner []parse.Node) error {
	name, err := c.literalName(m)
	if err != nil {
		return err
	}
	if len(c.invocations) < 1 {
		return c.errorf(m.action, "{{override}} outside of {{render}}")
	}
	inv := c.invocations[len(c.invocations)-1]
	body, err := c.region(inner, m.action.Position())
	if err != nil {
		return err
	}
	// a repeated override replaces the earlier one
	for i, o := range inv.overrides {
		if o.name == name {
			inv.overrides[i].body = body
			return nil
		}
	}
	inv.overrides = append(inv.overrides, override{name: name, body: body})
	return nil
}

// blank reports whether b renders nothing but whitespace regardless of
// its data.
func blank(b *Body) bool {
	for _, node := range b.tree.Root.Nodes {
		text, ok := node.(*parse.TextNode)
		if !ok {
			if action, ok := node.(*parse.ActionNode); ok && len(action.Pipe.Decl) > 0 {
				continue
			}
			return false
		}
		if strings.TrimSpace(string(text.Text)) != "" {
			return false
		}
	}
	return true
}
