package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"actas-cli/internal/model"
	"actas-cli/internal/validate"
)

// Repository is the local snapshot cache of actas: the single source of truth
// for local reads. Metrics are recomputed on every read.
type Repository struct {
	kv     KeyValueStore
	keys   keyspace
	engine validate.Engine
	locks  *RefLocks
}

func NewRepository(kv KeyValueStore, scope string, engine validate.Engine) (*Repository, error) {
	scope, err := NormalizeScope(scope)
	if err != nil {
		return nil, err
	}
	return &Repository{kv: kv, keys: keyspace{scope: scope}, engine: engine, locks: &RefLocks{}}, nil
}

func (r *Repository) KV() KeyValueStore { return r.kv }

func (r *Repository) Engine() validate.Engine { return r.engine }

// Lock serializes read-modify-write cycles on one ref.
func (r *Repository) Lock(ref string) func() { return r.locks.Lock(ref) }

func (r *Repository) Get(ctx context.Context, ref string) (model.Acta, bool, error) {
	b, ok, err := r.kv.Get(ctx, r.keys.snapshot(ref))
	if err != nil || !ok {
		return model.Acta{}, false, err
	}
	a, err := r.decode(r.keys.snapshot(ref), b)
	if err != nil {
		return model.Acta{}, false, err
	}
	return a, true, nil
}

// MustGet is Get with a typed not-found error.
func (r *Repository) MustGet(ctx context.Context, ref string) (model.Acta, error) {
	a, ok, err := r.Get(ctx, ref)
	if err != nil {
		return model.Acta{}, err
	}
	if !ok {
		return model.Acta{}, model.NotFoundError{Kind: "acta", ID: ref}
	}
	return a, nil
}

// List returns matching snapshots ordered by ref.
func (r *Repository) List(ctx context.Context, f model.Filter) ([]model.Acta, error) {
	kvs, err := r.kv.List(ctx, r.keys.snapshotPrefix())
	if err != nil {
		return nil, err
	}
	out := []model.Acta{}
	for _, kv := range kvs {
		a, err := r.decode(kv.Key, kv.Value)
		if err != nil {
			return nil, err
		}
		if f.Match(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *Repository) Put(ctx context.Context, a model.Acta) error {
	op, err := r.PutOp(a)
	if err != nil {
		return err
	}
	return r.kv.Apply(ctx, []Op{op})
}

// PutOp encodes a snapshot write for use inside an atomic Apply.
func (r *Repository) PutOp(a model.Acta) (Op, error) {
	if strings.TrimSpace(a.Ref) == "" {
		return Op{}, errors.New("put acta: empty ref")
	}
	a.Metrics = nil
	b, err := json.Marshal(a)
	if err != nil {
		return Op{}, errors.Wrapf(err, "encode acta %s", a.Ref)
	}
	return SetOp(r.keys.snapshot(a.Ref), b), nil
}

func (r *Repository) Conflict(ctx context.Context, ref string) (model.Conflict, bool, error) {
	b, ok, err := r.kv.Get(ctx, r.keys.conflict(ref))
	if err != nil || !ok {
		return model.Conflict{}, false, err
	}
	var c model.Conflict
	if err := json.Unmarshal(b, &c); err != nil {
		return model.Conflict{}, false, errors.Wrapf(err, "decode conflict %s", ref)
	}
	return c, true, nil
}

func (r *Repository) Conflicts(ctx context.Context) ([]model.Conflict, error) {
	kvs, err := r.kv.List(ctx, r.keys.conflictPrefix())
	if err != nil {
		return nil, err
	}
	out := []model.Conflict{}
	for _, kv := range kvs {
		var c model.Conflict
		if err := json.Unmarshal(kv.Value, &c); err != nil {
			return nil, errors.Wrapf(err, "decode conflict at %s", kv.Key)
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Repository) MarkConflictOp(c model.Conflict) (Op, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return Op{}, errors.Wrapf(err, "encode conflict %s", c.Ref)
	}
	return SetOp(r.keys.conflict(c.Ref), b), nil
}

func (r *Repository) ClearConflictOp(ref string) Op {
	return DeleteOp(r.keys.conflict(ref))
}

func (r *Repository) decode(key string, b []byte) (model.Acta, error) {
	var a model.Acta
	if err := json.Unmarshal(b, &a); err != nil {
		return model.Acta{}, errors.Wrapf(err, "decode snapshot at %s", key)
	}
	if a.Grades == nil {
		a.Grades = model.Grades{}
	}
	m := r.engine.Compute(a)
	a.Metrics = &m
	return a, nil
}
