package palette

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"text/template/parse"
)

// Loader is how the Engine gets at templates. It's the only way the Engine
// touches storage, so anything that can produce parsed templates by name,
// a database, an embed.FS, something generated at build time, can back an
// Engine.
type Loader interface {
	// Resolve returns the canonical name of the template known as
	// name. Different names may resolve to the same canonical name; the
	// canonical name must be accepted by Load. If no such template
	// exists, the error must match ErrTemplateNotFound.
	Resolve(ctx context.Context, name string) (string, error)

	// Load returns the parsed template known as name. If no such
	// template exists, the error must match ErrTemplateNotFound; if it
	// exists but can't be parsed, the error should match
	// ErrTemplateSyntax.
	Load(ctx context.Context, name string) (*Source, error)
}

// Source is a parsed template file: every tree text/template/parse produced
// for it, keyed by tree name. The tree named Name holds the file's
// top-level content; any others came from {{define}} or {{block}} actions.
//
// A Source must not be modified once a Loader has returned it.
type Source struct {
	// Name is the canonical name of the template.
	Name string

	// Trees holds the parse trees for the file.
	Trees map[string]*parse.Tree

	// LeftDelim and RightDelim are the action delimiters the file was
	// parsed with. Empty means the text/template defaults.
	LeftDelim, RightDelim string
}

func (s *Source) leftDelim() string {
	if s.LeftDelim == "" {
		return "{{"
	}
	return s.LeftDelim
}

func (s *Source) rightDelim() string {
	if s.RightDelim == "" {
		return "}}"
	}
	return s.RightDelim
}

// Parse parses text as a template file named name. Functions are not
// checked at parse time, so the component markers and any FuncMap
// functions can be used without declaring them first; undefined functions
// surface when the template is executed.
func Parse(name, text, leftDelim, rightDelim string) (*Source, error) {
	trees := map[string]*parse.Tree{}
	tree := parse.New(name)
	tree.Mode = parse.SkipFuncCheck
	if _, err := tree.Parse(text, leftDelim, rightDelim, trees); err != nil {
		return nil, &Error{Kind: ErrTemplateSyntax, Template: name, Err: err}
	}
	if _, ok := trees[name]; !ok {
		// a file that's nothing but {{define}}s still gets an empty root
		trees[name] = tree
	}
	return &Source{
		Name:       name,
		Trees:      trees,
		LeftDelim:  leftDelim,
		RightDelim: rightDelim,
	}, nil
}

var _ Loader = &FSLoader{}

// FSLoader is a Loader that reads templates out of one or more fs.FS
// values, searched in order. The first fs.FS containing a template wins.
//
// Canonical names are cleaned, slash-separated paths relative to the root
// of the fs.FS, so "./cards.html", "/cards.html", and "cards.html" are all
// the same template.
type FSLoader struct {
	roots []fs.FS

	// LeftDelim and RightDelim override the action delimiters used when
	// parsing. Empty means the text/template defaults.
	LeftDelim, RightDelim string
}

// NewFSLoader returns an FSLoader searching roots in the order they're
// passed.
func NewFSLoader(roots ...fs.FS) *FSLoader {
	return &FSLoader{roots: roots}
}

// Canonicalize returns the canonical form of name, without checking that
// it exists.
func Canonicalize(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	cleaned := path.Clean("/" + name)
	return strings.TrimPrefix(cleaned, "/")
}

func (l *FSLoader) find(name string) (fs.FS, string, error) {
	canonical := Canonicalize(name)
	if canonical == "" || !fs.ValidPath(canonical) {
		return nil, "", &Error{Kind: ErrTemplateNotFound, Template: name}
	}
	for _, root := range l.roots {
		info, err := fs.Stat(root, canonical)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("error checking for %q: %w", canonical, err)
		}
		if info.IsDir() {
			continue
		}
		return root, canonical, nil
	}
	return nil, "", &Error{Kind: ErrTemplateNotFound, Template: name}
}

// Resolve returns the canonical name of the template known as name.
func (l *FSLoader) Resolve(_ context.Context, name string) (string, error) {
	_, canonical, err := l.find(name)
	if err != nil {
		return "", err
	}
	return canonical, nil
}

// Load reads and parses the template known as name.
func (l *FSLoader) Load(_ context.Context, name string) (*Source, error) {
	root, canonical, err := l.find(name)
	if err != nil {
		return nil, err
	}
	contents, err := fs.ReadFile(root, canonical)
	if err != nil {
		return nil, fmt.Errorf("error reading %q: %w", canonical, err)
	}
	return Parse(canonical, string(contents), l.LeftDelim, l.RightDelim)
}
