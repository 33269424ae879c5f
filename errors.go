package palette

import (
	"errors"
	"fmt"
	"html/template"
	"strings"
)

var (
	// ErrTemplateNotFound is returned when the Loader can't find a
	// template by the name it was asked for.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrTemplateSyntax is returned when a template can't be parsed, or
	// when its component markers are malformed: an unpaired
	// {{endslot}}, a {{component}} without a literal name, and so on.
	ErrTemplateSyntax = errors.New("template syntax error")

	// ErrComponentNotFound is returned when every lookup strategy failed
	// to find the requested component.
	ErrComponentNotFound = errors.New("component not found")

	// ErrPropertyUnresolvable is returned when a property expression
	// can't be evaluated against the caller's context.
	ErrPropertyUnresolvable = errors.New("property unresolvable")

	// ErrRenderFailure is returned when executing a component body fails.
	ErrRenderFailure = errors.New("render failure")

	// ErrInvalidReference is returned when the template or component
	// named by an invocation resolves to something empty.
	ErrInvalidReference = errors.New("empty template or component reference")

	// ErrRecursionLimit is returned when components are nested deeper
	// than the Engine allows, usually because a component renders
	// itself.
	ErrRecursionLimit = errors.New("component nesting too deep")
)

// Error describes a failure while resolving or rendering a component. Kind
// is one of the sentinel errors in this package, and errors.Is matches
// against it as well as against the wrapped cause.
type Error struct {
	Kind      error
	Template  string
	Component string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Component != "" {
		fmt.Fprintf(&b, ": component %q", e.Component)
	}
	if e.Template != "" {
		if e.Component != "" {
			b.WriteString(" in")
		} else {
			b.WriteString(":")
		}
		fmt.Fprintf(&b, " template %q", e.Template)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// diagnosticPrefix starts every placeholder the renderer emits in place of a
// component it couldn't render.
const diagnosticPrefix = "<!-- palette: "

// Diagnostic converts err into an HTML comment suitable for leaving in the
// rendered output where a component should have been. The comment always
// begins with "<!-- palette: ".
func Diagnostic(err error) template.HTML {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	// "--" can't appear inside an HTML comment
	for strings.Contains(msg, "--") {
		msg = strings.ReplaceAll(msg, "--", "- -")
	}
	msg = strings.ReplaceAll(msg, ">", "&gt;")
	return template.HTML(diagnosticPrefix + msg + " -->") // #nosec G203
}

// IsDiagnostic reports whether s contains a placeholder produced by
// Diagnostic.
func IsDiagnostic(s string) bool {
	return strings.Contains(s, diagnosticPrefix)
}
