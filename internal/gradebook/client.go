// Package gradebook is the offline-first client facade. Local mutations are
// applied to the snapshot cache and queued in one atomic write, whatever the
// connectivity; the syncer later replays the queue against the server.
package gradebook

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"actas-cli/internal/bulk"
	"actas-cli/internal/connectivity"
	"actas-cli/internal/lifecycle"
	"actas-cli/internal/model"
	"actas-cli/internal/observability"
	"actas-cli/internal/remote"
	"actas-cli/internal/report"
	"actas-cli/internal/store"
)

type Client struct {
	repo    *store.Repository
	queue   *store.Queue
	remote  remote.Service
	machine lifecycle.Machine
	clock   connectivity.Clock
	log     *slog.Logger
}

var _ bulk.Target = (*Client)(nil)

type Options struct {
	Clock  connectivity.Clock
	Logger *slog.Logger
}

// New builds a client. svc may be nil for purely local use; remote-backed
// calls then fail with an input error.
func New(repo *store.Repository, queue *store.Queue, svc remote.Service, opt Options) *Client {
	if opt.Clock == nil {
		opt.Clock = connectivity.SystemClock{}
	}
	if opt.Logger == nil {
		opt.Logger = observability.Discard()
	}
	return &Client{
		repo:    repo,
		queue:   queue,
		remote:  svc,
		machine: lifecycle.New(repo.Engine()),
		clock:   opt.Clock,
		log:     opt.Logger,
	}
}

func (c *Client) Repository() *store.Repository { return c.repo }
func (c *Client) Queue() *store.Queue { return c.queue }

var errNoRemote = errors.New("no remote configured")

func (c *Client) svc() (remote.Service, error) {
	if c.remote == nil {
		return nil, model.InputError{Err: errNoRemote}
	}
	return c.remote, nil
}

type Outcome struct {
	Acta    model.Acta        `json:"acta"`
	From    model.Status      `json:"from"`
	To      model.Status      `json:"to"`
	Changed bool              `json:"changed"`
	Queued  *model.QueueEntry `json:"queued,omitempty"`
}

// Execute applies cmd to the cached snapshot and queues it for the server.
// The queued baseVersion is the last acknowledged version plus the entries
// already waiting for the ref, since each accepted write advances the server
// by exactly one. A no-op (e.g. lock on LOCKED) queues nothing.
func (c *Client) Execute(ctx context.Context, cmd Command) (Outcome, error) {
	ref := cmd.Target()
	if _, err := model.ParseRef(ref); err != nil {
		return Outcome{}, model.InputError{Err: err}
	}
	unlock := c.repo.Lock(ref)
	defer unlock()

	a, err := c.repo.MustGet(ctx, ref)
	if err != nil {
		return Outcome{}, err
	}
	if conflict, ok, err := c.repo.Conflict(ctx, ref); err != nil {
		return Outcome{}, err
	} else if ok {
		return Outcome{}, ConflictPendingError{Ref: ref, Conflict: conflict}
	}

	res, err := c.machine.Apply(&a, cmd.Operation(), cmd.Payload())
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Acta: *res.Acta, From: res.From, To: res.To, Changed: res.Changed}
	if !res.Changed {
		return out, nil
	}

	pending, err := c.queue.ForRef(ctx, ref)
	if err != nil {
		return Outcome{}, err
	}
	next := *res.Acta
	next.UpdatedAt = c.clock.Now().UTC()
	put, err := c.repo.PutOp(next)
	if err != nil {
		return Outcome{}, err
	}
	entry, err := c.queue.Append(ctx, model.QueueEntry{
		TargetRef:   ref,
		Operation:   cmd.Operation(),
		Payload:     cmd.Payload(),
		BaseVersion: a.Version + int64(len(pending)),
	}, put)
	if err != nil {
		return Outcome{}, err
	}
	c.log.Debug("queued", slog.String("ref", ref), slog.String("op", string(entry.Operation)),
		slog.Int64("base_version", entry.BaseVersion), slog.Uint64("seq", entry.Seq))

	out.Acta = next
	out.Queued = &entry
	return out, nil
}

func (c *Client) Save(ctx context.Context, ref string, sheet model.GradeSheet) (Outcome, error) {
	return c.Execute(ctx, SaveCommand{Ref: ref, Sheet: sheet})
}

// Validate recomputes metrics of the cached snapshot. It never changes status.
func (c *Client) Validate(ctx context.Context, ref string) (model.Metrics, error) {
	a, err := c.repo.MustGet(ctx, ref)
	if err != nil {
		return model.Metrics{}, err
	}
	return *a.Metrics, nil
}

// Transition makes the client a bulk.Target: each item is a queued command.
func (c *Client) Transition(ctx context.Context, op model.Operation, ref string) (model.Status, bool, error) {
	cmd, ok := CommandFor(op, ref, nil)
	if !ok {
		return "", false, model.InputError{Err: errors.Errorf("operation %s is not a transition", op)}
	}
	out, err := c.Execute(ctx, cmd)
	if err != nil {
		return "", false, err
	}
	return out.To, out.Changed, nil
}

func (c *Client) ApplyBulk(ctx context.Context, op bulk.Op, refs []string) (bulk.Result, error) {
	return bulk.Coordinator{Target: c}.Apply(ctx, op, refs)
}

func (c *Client) List(ctx context.Context, f model.Filter) ([]model.Acta, error) {
	return c.repo.List(ctx, f)
}

type View struct {
	Acta     model.Acta         `json:"acta"`
	Pending  []model.QueueEntry `json:"pending"`
	Conflict *model.Conflict    `json:"conflict,omitempty"`
}

func (c *Client) Show(ctx context.Context, ref string) (View, error) {
	a, err := c.repo.MustGet(ctx, ref)
	if err != nil {
		return View{}, err
	}
	pending, err := c.queue.ForRef(ctx, ref)
	if err != nil {
		return View{}, err
	}
	v := View{Acta: a, Pending: pending}
	if conflict, ok, err := c.repo.Conflict(ctx, ref); err != nil {
		return View{}, err
	} else if ok {
		v.Conflict = &conflict
	}
	return v, nil
}

// Refresh replaces the cached snapshot with the server copy and clears the
// conflict marker. Unsynced entries block it unless force, which discards them.
func (c *Client) Refresh(ctx context.Context, ref string, force bool) (model.Acta, error) {
	svc, err := c.svc()
	if err != nil {
		return model.Acta{}, err
	}
	unlock := c.repo.Lock(ref)
	defer unlock()

	pending, err := c.queue.ForRef(ctx, ref)
	if err != nil {
		return model.Acta{}, err
	}
	if len(pending) > 0 && !force {
		return model.Acta{}, PendingChangesError{Ref: ref, Count: len(pending)}
	}

	a, err := svc.GetActa(ctx, ref)
	if err != nil {
		return model.Acta{}, err
	}
	put, err := c.repo.PutOp(a)
	if err != nil {
		return model.Acta{}, err
	}
	ops := []store.Op{put, c.repo.ClearConflictOp(ref)}
	for _, e := range pending {
		ops = append(ops, c.queue.RemoveOp(e))
	}
	if err := c.repo.KV().Apply(ctx, ops); err != nil {
		return model.Acta{}, errors.Wrapf(err, "refresh %s", ref)
	}
	if len(pending) > 0 {
		c.log.Warn("discarded unsynced changes", slog.String("ref", ref), slog.Int("count", len(pending)))
	}
	return c.repo.MustGet(ctx, ref)
}

type PullResult struct {
	Updated   int      `json:"updated"`
	Unchanged int      `json:"unchanged"`
	Skipped   []string `json:"skipped"`
}

// Pull copies server actas matching f into the cache. Refs with unsynced
// entries or a conflict marker are left alone.
func (c *Client) Pull(ctx context.Context, f model.Filter) (PullResult, error) {
	svc, err := c.svc()
	if err != nil {
		return PullResult{}, err
	}
	actas, err := svc.ListActas(ctx, f)
	if err != nil {
		return PullResult{}, err
	}
	res := PullResult{Skipped: []string{}}
	for _, a := range actas {
		updated, skipped, err := c.pullOne(ctx, a)
		if err != nil {
			return res, err
		}
		switch {
		case skipped:
			res.Skipped = append(res.Skipped, a.Ref)
		case updated:
			res.Updated++
		default:
			res.Unchanged++
		}
	}
	return res, nil
}

func (c *Client) pullOne(ctx context.Context, a model.Acta) (updated, skipped bool, err error) {
	unlock := c.repo.Lock(a.Ref)
	defer unlock()

	pending, err := c.queue.ForRef(ctx, a.Ref)
	if err != nil {
		return false, false, err
	}
	_, conflicted, err := c.repo.Conflict(ctx, a.Ref)
	if err != nil {
		return false, false, err
	}
	if len(pending) > 0 || conflicted {
		return false, true, nil
	}
	local, ok, err := c.repo.Get(ctx, a.Ref)
	if err != nil {
		return false, false, err
	}
	if ok && local.Version == a.Version {
		return false, false, nil
	}
	return true, false, c.repo.Put(ctx, a)
}

// CreateMissing asks the server to create the missing actas, then pulls the
// (year, term) slice into the cache.
func (c *Client) CreateMissing(ctx context.Context, year int, term string, f model.Filter) (int, error) {
	svc, err := c.svc()
	if err != nil {
		return 0, err
	}
	n, err := svc.CreateMissingActas(ctx, year, term, f)
	if err != nil {
		return 0, err
	}
	f.Year, f.Term = year, term
	if _, err := c.Pull(ctx, f); err != nil {
		return n, errors.Wrap(err, "pull after create")
	}
	return n, nil
}

// Export projects the cached PUBLISHED snapshots.
func (c *Client) Export(ctx context.Context, f model.Filter, kind report.Kind) (report.Projection, error) {
	f.Status = model.StatusPublished
	actas, err := c.repo.List(ctx, f)
	if err != nil {
		return report.Projection{}, err
	}
	return report.Project(actas, f, kind)
}
