// Package inspect describes the structure palette finds in a template, for
// people debugging their templates.
package inspect

import (
	"context"
	"slices"

	"gopkg.in/yaml.v3"

	"impractical.co/palette"
)

// Summary is what a template declares: its parent and the components it
// defines, with their slots.
type Summary struct {
	Template   string      `yaml:"template" json:"template"`
	Extends    string      `yaml:"extends,omitempty" json:"extends,omitempty"`
	Components []Component `yaml:"components" json:"components"`

	// Chain is the template followed by every template it extends,
	// nearest first.
	Chain []string `yaml:"chain,omitempty" json:"chain,omitempty"`
}

// Component is one component definition.
type Component struct {
	Name  string   `yaml:"name" json:"name"`
	Slots []string `yaml:"slots" json:"slots"`
}

// Describe indexes name with engine and summarizes it.
func Describe(ctx context.Context, engine *palette.Engine, name string) (Summary, error) {
	idx, err := engine.Index(ctx, name)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{
		Template:   idx.Name,
		Extends:    idx.Parent,
		Components: []Component{},
		Chain:      []string{idx.Name},
	}
	names := make([]string, 0, len(idx.Components))
	for n := range idx.Components {
		names = append(names, n)
	}
	slices.Sort(names)
	for _, n := range names {
		sum.Components = append(sum.Components, Component{Name: n, Slots: idx.Components[n].SlotNames()})
	}

	for parent := idx.Parent; parent != ""; {
		pidx, err := engine.Index(ctx, parent)
		if err != nil || slices.Contains(sum.Chain, pidx.Name) {
			// a missing parent or a cycle ends the chain, same as rendering
			break
		}
		sum.Chain = append(sum.Chain, pidx.Name)
		parent = pidx.Parent
	}
	return sum, nil
}

// YAML encodes summaries as a YAML stream, one document per summary.
func YAML(summaries ...Summary) ([]byte, error) {
	var out []byte
	for i, sum := range summaries {
		doc, err := yaml.Marshal(sum)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			out = append(out, "---\n"...)
		}
		out = append(out, doc...)
	}
	return out, nil
}
