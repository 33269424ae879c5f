package palette

import (
	"strconv"
	"text/template/parse"
)

// The names of the actions template authors use to define and use
// components. They're plain function calls as far as text/template is
// concerned; the indexer pairs them up into regions.
const (
	markerComponent    = "component"
	markerEndComponent = "endcomponent"
	markerSlot         = "slot"
	markerEndSlot      = "endslot"
	markerRender       = "render"
	markerEndRender    = "endrender"
	markerOverride     = "override"
	markerEndOverride  = "endoverride"
	markerExtends      = "extends"

	// superFunc isn't a marker; it's bound at execution time to render
	// the next body down the block stack.
	superFunc = "super"

	// varFunc and captureFunc are only ever placed in trees by the
	// indexer, never written by template authors.
	varFunc     = "_palette_var"
	captureFunc = "_palette_capture"
)

// closers maps each opening marker to the marker that ends its region.
var closers = map[string]string{
	markerComponent: markerEndComponent,
	markerSlot:      markerEndSlot,
	markerRender:    markerEndRender,
	markerOverride:  markerEndOverride,
}

func isMarker(name string) bool {
	switch name {
	case markerComponent, markerEndComponent,
		markerSlot, markerEndSlot,
		markerRender, markerEndRender,
		markerOverride, markerEndOverride,
		markerExtends:
		return true
	}
	return false
}

func isCloser(name string) bool {
	for _, closer := range closers {
		if closer == name {
			return true
		}
	}
	return false
}

// marker is an action node calling one of the marker functions.
type marker struct {
	name   string
	action *parse.ActionNode
	args   []parse.Node
}

func asMarker(node parse.Node) (marker, bool) {
	action, ok := node.(*parse.ActionNode)
	if !ok || action.Pipe == nil {
		return marker{}, false
	}
	if len(action.Pipe.Decl) > 0 || len(action.Pipe.Cmds) != 1 {
		return marker{}, false
	}
	args := action.Pipe.Cmds[0].Args
	if len(args) < 1 {
		return marker{}, false
	}
	ident, ok := args[0].(*parse.IdentifierNode)
	if !ok || !isMarker(ident.Ident) {
		return marker{}, false
	}
	return marker{name: ident.Ident, action: action, args: args[1:]}, true
}

// rewriteMarker returns a copy of the marker's action node calling the same
// function with args instead of the arguments the author wrote. The copy
// keeps the original's position, so execution errors still point at the
// right place in the file.
func rewriteMarker(m marker, args ...parse.Node) *parse.ActionNode {
	action := m.action.Copy().(*parse.ActionNode)
	cmd := action.Pipe.Cmds[0]
	cmd.Args = append([]parse.Node{cmd.Args[0]}, args...)
	return action
}

// Nodes built from scratch have no tree and sit at position zero; text/template
// falls back to the executing tree for error context, and position zero is
// always valid there.

func newString(text string) *parse.StringNode {
	return &parse.StringNode{
		NodeType: parse.NodeString,
		Quoted:   strconv.Quote(text),
		Text:     text,
	}
}

func newVariable(name string) *parse.VariableNode {
	return &parse.VariableNode{
		NodeType: parse.NodeVariable,
		Ident:    []string{name},
	}
}

func newDot() *parse.DotNode {
	return &parse.DotNode{NodeType: parse.NodeDot}
}

func newCall(fn string, args ...parse.Node) *parse.PipeNode {
	return &parse.PipeNode{
		NodeType: parse.NodePipe,
		Cmds: []*parse.CommandNode{{
			NodeType: parse.NodeCommand,
			Args:     append([]parse.Node{parse.NewIdentifier(fn)}, args...),
		}},
	}
}

// declareVar builds {{$name := _palette_var "$name"}}, which re-declares a
// variable captured from another execution.
func declareVar(name string) *parse.ActionNode {
	pipe := newCall(varFunc, newString(name))
	pipe.Decl = []*parse.VariableNode{newVariable(name)}
	return &parse.ActionNode{NodeType: parse.NodeAction, Pipe: pipe}
}

func variableArgs(names []string) []parse.Node {
	args := make([]parse.Node, 0, len(names))
	for _, name := range names {
		args = append(args, newVariable(name))
	}
	return args
}

// listLike returns an empty list node belonging to the same tree as proto,
// positioned at pos. Lists carry their tree so html/template can describe
// errors on them.
func listLike(proto *parse.ListNode, pos parse.Pos, nodes []parse.Node) *parse.ListNode {
	list := proto.CopyList()
	list.Pos = pos
	list.Nodes = nodes
	return list
}

// freeVars returns the variables referenced in nodes that nodes don't
// declare themselves, in order of first reference. "$" is only included
// when withRoot is true.
func freeVars(withRoot bool, nodes ...parse.Node) []string {
	c := varCollector{
		referenced: map[string]struct{}{},
		declared:   map[string]struct{}{},
	}
	for _, node := range nodes {
		c.node(node)
	}
	var free []string
	for _, name := range c.order {
		if _, ok := c.declared[name]; ok {
			continue
		}
		if name == "$" && !withRoot {
			continue
		}
		free = append(free, name)
	}
	return free
}

type varCollector struct {
	referenced map[string]struct{}
	declared   map[string]struct{}
	order      []string
}

func (c *varCollector) node(node parse.Node) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			c.node(child)
		}
	case *parse.ActionNode:
		c.pipe(n.Pipe)
	case *parse.IfNode:
		c.branch(&n.BranchNode)
	case *parse.RangeNode:
		c.branch(&n.BranchNode)
	case *parse.WithNode:
		c.branch(&n.BranchNode)
	case *parse.TemplateNode:
		c.pipe(n.Pipe)
	case *parse.PipeNode:
		c.pipe(n)
	case *parse.ChainNode:
		c.node(n.Node)
	case *parse.VariableNode:
		c.reference(n.Ident[0])
	}
}

func (c *varCollector) branch(b *parse.BranchNode) {
	c.pipe(b.Pipe)
	if b.List != nil {
		c.node(b.List)
	}
	if b.ElseList != nil {
		c.node(b.ElseList)
	}
}

func (c *varCollector) pipe(p *parse.PipeNode) {
	if p == nil {
		return
	}
	for _, cmd := range p.Cmds {
		for _, arg := range cmd.Args {
			c.node(arg)
		}
	}
	for _, decl := range p.Decl {
		c.declared[decl.Ident[0]] = struct{}{}
	}
}

func (c *varCollector) reference(name string) {
	if _, ok := c.referenced[name]; ok {
		return
	}
	c.referenced[name] = struct{}{}
	c.order = append(c.order, name)
}
