// Package catalog loads the school's sections, subjects and rosters.
package catalog

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"actas-cli/internal/model"
)

// Static is an immutable, in-memory catalog.
type Static struct {
	sections []model.Section
}

func New(sections []model.Section) (*Static, error) {
	seen := map[string]bool{}
	out := make([]model.Section, 0, len(sections))
	for _, s := range sections {
		s.ID = strings.TrimSpace(s.ID)
		if err := model.CheckSection(s); err != nil {
			return nil, errors.Wrapf(err, "section %q", s.ID)
		}
		if seen[s.ID] {
			return nil, errors.Errorf("duplicate section %q", s.ID)
		}
		seen[s.ID] = true
		s.Subjects = append([]string{}, s.Subjects...)
		s.Students = append([]string{}, s.Students...)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return &Static{sections: out}, nil
}

// Sections returns a copy of the catalog ordered by section id.
func (c *Static) Sections(context.Context) ([]model.Section, error) {
	out := make([]model.Section, len(c.sections))
	for i, s := range c.sections {
		s.Subjects = append([]string{}, s.Subjects...)
		s.Students = append([]string{}, s.Students...)
		out[i] = s
	}
	return out, nil
}

type fileDoc struct {
	Sections []model.Section `yaml:"sections"`
}

// Parse accepts YAML or JSON (a YAML subset), either {sections: [...]} or a bare list.
func Parse(b []byte) (*Static, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(b, &doc); err != nil || doc.Sections == nil {
		var list []model.Section
		if lerr := yaml.Unmarshal(b, &list); lerr != nil {
			if err != nil {
				return nil, errors.Wrap(err, "parse catalog")
			}
			return nil, errors.Wrap(lerr, "parse catalog")
		}
		doc.Sections = list
	}
	return New(doc.Sections)
}

func Load(path string) (*Static, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}
	c, err := Parse(b)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return c, nil
}
