// Package server is the server of record: a version-guarded Backend over a
// records.Store and its fiber HTTP surface.
package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"actas-cli/internal/bulk"
	"actas-cli/internal/connectivity"
	"actas-cli/internal/lifecycle"
	"actas-cli/internal/model"
	"actas-cli/internal/observability"
	"actas-cli/internal/records"
	"actas-cli/internal/remote"
	"actas-cli/internal/report"
	"actas-cli/internal/validate"
)

var errNoCatalog = errors.New("no catalog configured")

type Config struct {
	Store   records.Store
	Catalog bulk.Catalog
	Engine  validate.Engine
	Clock   connectivity.Clock
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

type Backend struct {
	store   records.Store
	catalog bulk.Catalog
	machine lifecycle.Machine
	clock   connectivity.Clock
	log     *slog.Logger
	metrics *observability.Metrics
}

var (
	_ remote.Service = (*Backend)(nil)
	_ bulk.Target    = (*Backend)(nil)
)

func NewBackend(cfg Config) *Backend {
	if cfg.Store == nil {
		cfg.Store = records.NewMemory()
	}
	if cfg.Clock == nil {
		cfg.Clock = connectivity.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.Discard()
	}
	return &Backend{
		store:   cfg.Store,
		catalog: cfg.Catalog,
		machine: lifecycle.New(cfg.Engine),
		clock:   cfg.Clock,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}
}

func (b *Backend) withMetrics(a model.Acta) model.Acta {
	b.machine.Validate(&a)
	return a
}

func (b *Backend) ListActas(ctx context.Context, f model.Filter) ([]model.Acta, error) {
	actas, err := b.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range actas {
		actas[i] = b.withMetrics(actas[i])
	}
	return actas, nil
}

func (b *Backend) GetActa(ctx context.Context, ref string) (model.Acta, error) {
	a, err := b.store.Get(ctx, ref)
	if err != nil {
		return model.Acta{}, err
	}
	return b.withMetrics(a), nil
}

func (b *Backend) CreateMissingActas(ctx context.Context, year int, term string, f model.Filter) (int, error) {
	if b.catalog == nil {
		return 0, model.InputError{Err: errNoCatalog}
	}
	n, err := bulk.CreateMissingActas(ctx, b.catalog, b.store, year, term, f)
	if err != nil {
		return n, err
	}
	b.log.Info("created missing actas", slog.Int("year", year), slog.String("term", term), slog.Int("created", n))
	return n, nil
}

// mutate is the version compare-and-set: the operation applies only when
// baseVersion equals the stored version, and each accepted change advances it by one.
func (b *Backend) mutate(ctx context.Context, ref string, op model.Operation, payload *model.GradeSheet, baseVersion int64) (remote.Ack, error) {
	ack, err := b.doMutate(ctx, ref, op, payload, baseVersion)
	result := "ok"
	if err != nil {
		result = bulk.Reason(err)
	}
	b.metrics.ServerWrite(string(op), result)
	if err != nil {
		b.log.Debug("write rejected", slog.String("ref", ref), slog.String("op", string(op)),
			slog.Int64("base_version", baseVersion), slog.String("error", err.Error()))
	}
	return ack, err
}

func (b *Backend) doMutate(ctx context.Context, ref string, op model.Operation, payload *model.GradeSheet, baseVersion int64) (remote.Ack, error) {
	cur, err := b.store.Get(ctx, ref)
	if err != nil {
		return remote.Ack{}, err
	}
	if cur.Version != baseVersion {
		return remote.Ack{}, remote.ConflictError{Ref: ref, Expected: baseVersion, Current: cur.Version}
	}
	res, err := b.machine.Apply(&cur, op, payload)
	if err != nil {
		return remote.Ack{}, err
	}
	if !res.Changed {
		return remote.Ack{Ref: ref, Version: cur.Version, Status: cur.Status}, nil
	}

	next := *res.Acta
	next.Version = baseVersion + 1
	next.UpdatedAt = b.clock.Now().UTC()
	if err := b.store.CompareAndSwap(ctx, next, baseVersion); err != nil {
		var se records.StaleError
		if errors.As(err, &se) {
			return remote.Ack{}, remote.ConflictError{Ref: ref, Expected: baseVersion, Current: se.Current}
		}
		return remote.Ack{}, err
	}
	return remote.Ack{Ref: ref, Version: next.Version, Status: next.Status}, nil
}

func (b *Backend) SaveActa(ctx context.Context, ref string, sheet model.GradeSheet, baseVersion int64) (remote.Ack, error) {
	return b.mutate(ctx, ref, model.OpSave, &sheet, baseVersion)
}

func (b *Backend) LockActa(ctx context.Context, ref string, baseVersion int64) (remote.Ack, error) {
	return b.mutate(ctx, ref, model.OpLock, nil, baseVersion)
}

func (b *Backend) UnlockActa(ctx context.Context, ref string, baseVersion int64) (remote.Ack, error) {
	return b.mutate(ctx, ref, model.OpUnlock, nil, baseVersion)
}

func (b *Backend) PublishActa(ctx context.Context, ref string, baseVersion int64) (remote.Ack, error) {
	return b.mutate(ctx, ref, model.OpPublish, nil, baseVersion)
}

func (b *Backend) UnpublishActa(ctx context.Context, ref string, baseVersion int64) (remote.Ack, error) {
	return b.mutate(ctx, ref, model.OpUnpublish, nil, baseVersion)
}

func (b *Backend) ValidateActa(ctx context.Context, ref string) (model.Metrics, error) {
	a, err := b.store.Get(ctx, ref)
	if err != nil {
		return model.Metrics{}, err
	}
	return b.machine.Validate(&a), nil
}

// Validate and Transition make the backend a bulk.Target. Transitions apply
// to the stored version.
func (b *Backend) Validate(ctx context.Context, ref string) (model.Metrics, error) {
	return b.ValidateActa(ctx, ref)
}

func (b *Backend) Transition(ctx context.Context, op model.Operation, ref string) (model.Status, bool, error) {
	cur, err := b.store.Get(ctx, ref)
	if err != nil {
		return "", false, err
	}
	ack, err := b.mutate(ctx, ref, op, nil, cur.Version)
	if err != nil {
		return "", false, err
	}
	return ack.Status, ack.Version != cur.Version, nil
}

func (b *Backend) ApplyBulk(ctx context.Context, op bulk.Op, refs []string) (bulk.Result, error) {
	start := time.Now()
	res, err := bulk.Coordinator{Target: b}.Apply(ctx, op, refs)
	if err != nil {
		return res, err
	}
	b.log.Info("bulk applied", slog.String("op", string(op)), slog.Int("succeeded", res.Succeeded),
		slog.Int("failed", res.Failed), slog.Duration("duration", time.Since(start)))
	return res, nil
}

func (b *Backend) ValidateBulk(ctx context.Context, refs []string) (bulk.Result, error) {
	return b.ApplyBulk(ctx, bulk.OpValidate, refs)
}

func (b *Backend) LockBulk(ctx context.Context, refs []string) (bulk.Result, error) {
	return b.ApplyBulk(ctx, bulk.OpLock, refs)
}

func (b *Backend) PublishBulk(ctx context.Context, refs []string) (bulk.Result, error) {
	return b.ApplyBulk(ctx, bulk.OpPublish, refs)
}

func (b *Backend) ExportProjection(ctx context.Context, f model.Filter, kind report.Kind) (report.Projection, error) {
	if _, err := report.ParseKind(string(kind)); err != nil {
		return report.Projection{}, model.InputError{Err: err}
	}
	f.Status = model.StatusPublished
	actas, err := b.store.List(ctx, f)
	if err != nil {
		return report.Projection{}, err
	}
	return report.Project(actas, f, kind)
}

// Seed inserts actas as-is (used by tests and `serve --seed`).
func (b *Backend) Seed(ctx context.Context, actas ...model.Acta) error {
	for _, a := range actas {
		if strings.TrimSpace(a.Ref) == "" {
			a.Ref = model.FormatRef(a.Year, a.SectionID, a.SubjectID, a.Term)
		}
		if _, err := b.store.Create(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
