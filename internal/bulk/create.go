package bulk

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"actas-cli/internal/model"
)

type Catalog interface {
	Sections(ctx context.Context) ([]model.Section, error)
}

// Creator inserts an acta unless one with the same ref already exists.
type Creator interface {
	Create(ctx context.Context, a model.Acta) (created bool, err error)
}

// CreateMissingActas creates a DRAFT acta with empty grades for every
// (section, subject) of the catalog matching f that has none for (year, term).
// Running it again with the same arguments creates nothing.
func CreateMissingActas(ctx context.Context, cat Catalog, cr Creator, year int, term string, f model.Filter) (int, error) {
	term = strings.TrimSpace(term)
	if year <= 0 {
		return 0, model.InputError{Err: errors.Errorf("invalid year %d", year)}
	}
	if term == "" || strings.Contains(term, ":") {
		return 0, model.InputError{Err: errors.Errorf("invalid term %q", term)}
	}

	sections, err := cat.Sections(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "load catalog")
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].ID < sections[j].ID })

	created := 0
	for _, sec := range sections {
		if !f.MatchSection(sec) {
			continue
		}
		subjects := append([]string{}, sec.Subjects...)
		sort.Strings(subjects)
		for _, subj := range subjects {
			if !f.MatchSubject(subj) {
				continue
			}
			ok, err := cr.Create(ctx, model.NewActa(year, sec, subj, term))
			if err != nil {
				return created, errors.Wrapf(err, "create %s", model.FormatRef(year, sec.ID, subj, term))
			}
			if ok {
				created++
			}
		}
	}
	return created, nil
}
