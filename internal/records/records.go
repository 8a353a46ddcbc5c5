// Package records is the server of record's acta persistence. Every write is a
// per-ref compare-and-set on the version; no other locking is needed.
package records

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"actas-cli/internal/model"
)

var ErrStale = errors.New("stale version")

// StaleError reports a failed compare-and-set.
type StaleError struct {
	Ref      string
	Expected int64
	Current  int64
}

func (e StaleError) Error() string {
	return fmt.Sprintf("acta %s is at version %d, expected %d", e.Ref, e.Current, e.Expected)
}

func (e StaleError) Is(target error) bool { return target == ErrStale }

type Store interface {
	List(ctx context.Context, f model.Filter) ([]model.Acta, error)
	Get(ctx context.Context, ref string) (model.Acta, error)
	// Create inserts a unless its ref exists. created is false for an existing ref.
	Create(ctx context.Context, a model.Acta) (created bool, err error)
	// CompareAndSwap replaces the stored acta with a only when the stored
	// version equals expected. a.Version must already carry the new version.
	CompareAndSwap(ctx context.Context, a model.Acta, expected int64) error
}

type Memory struct {
	mu    sync.RWMutex
	actas map[string]model.Acta
}

func NewMemory() *Memory {
	return &Memory{actas: map[string]model.Acta{}}
}

func (m *Memory) List(_ context.Context, f model.Filter) ([]model.Acta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.Acta{}
	for _, a := range m.actas {
		if f.Match(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out, nil
}

func (m *Memory) Get(_ context.Context, ref string) (model.Acta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.actas[ref]
	if !ok {
		return model.Acta{}, model.NotFoundError{Kind: "acta", ID: ref}
	}
	return a.Clone(), nil
}

func (m *Memory) Create(_ context.Context, a model.Acta) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.actas[a.Ref]; ok {
		return false, nil
	}
	a = a.Clone()
	a.Metrics = nil
	m.actas[a.Ref] = a
	return true, nil
}

func (m *Memory) CompareAndSwap(_ context.Context, a model.Acta, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.actas[a.Ref]
	if !ok {
		return model.NotFoundError{Kind: "acta", ID: a.Ref}
	}
	if cur.Version != expected {
		return StaleError{Ref: a.Ref, Expected: expected, Current: cur.Version}
	}
	a = a.Clone()
	a.Metrics = nil
	m.actas[a.Ref] = a
	return nil
}
