// Package palette provides reusable HTML components with overridable slots,
// built on top of the html/template package.
//
// A component is a named piece of markup defined inside any template file:
//
//	{{component "card"}}
//	<div class="card">
//		<h2>{{slot "header"}}Untitled{{endslot}}</h2>
//		{{.children}}
//	</div>
//	{{endcomponent}}
//
// Defining a component renders nothing. Components are used with render,
// naming the file that defines them, the component, and any properties:
//
//	{{render "cards.html" "card" "id" .ID}}
//		{{override "header"}}Report: {{super}}{{endoverride}}
//		<p>Anything outside an override is available as .children.</p>
//	{{endrender}}
//
// Inside the component, properties are available on dot alongside whatever
// the caller could see, plus .component_name. An override replaces the
// content of the slot it names; {{super}} inside it renders what the slot
// would have rendered without it.
//
// A file can extend another with {{extends "base.html"}}. When a component
// is defined in both, the slots of the nearer definition take precedence,
// and {{super}} in them renders the matching slot of the parent's
// definition. Overrides passed to render always take precedence over every
// definition's defaults.
//
// Rendering never fails because of a single component. A component that
// can't be found or rendered is replaced by an HTML comment starting with
// "<!-- palette: " describing the problem, and the problem is logged to the
// logger set with LoggingContext.
//
// To render, create an Engine with a Loader, usually an FSLoader, and call
// Render or Execute with the name of a page template.
package palette
