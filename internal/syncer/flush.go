package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"actas-cli/internal/model"
	"actas-cli/internal/remote"
	"actas-cli/internal/store"
)

// Report summarizes one flush. Processed counts entries that left the queue
// (acknowledged, rejected or dropped as stale).
type Report struct {
	Processed int    `json:"processed"`
	Remaining int    `json:"remaining"`
	Succeeded int    `json:"succeeded"`
	Conflicts int    `json:"conflicts"`
	Dropped   int    `json:"dropped"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	LastError string `json:"lastError,omitempty"`
}

// Flush replays the queue in FIFO order. Concurrent calls share one run.
func (c *Coordinator) Flush(ctx context.Context) (Report, error) {
	v, err, _ := c.group.Do("flush", func() (any, error) {
		return c.flush(ctx)
	})
	rep, _ := v.(Report)
	return rep, err
}

// flush is skip-and-continue: a failed call keeps the entry (attempts+1) and
// skips the rest of that ref for this run, while other refs go on. Per-ref
// order is therefore never violated. Only a protocol rejection
// (remote.IsRejection) drops the entry and the rest of its ref.
func (c *Coordinator) flush(ctx context.Context) (Report, error) {
	start := time.Now()
	var rep Report

	entries, err := c.queue.List(ctx)
	if err != nil {
		c.finish(rep, err, start)
		return rep, err
	}

	blocked := map[string]bool{}
	gone := map[string]bool{}
	var runErr error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		ref := e.TargetRef
		if gone[ref] {
			continue
		}
		if blocked[ref] {
			rep.Skipped++
			c.metrics.FlushEntry("skipped")
			continue
		}

		if conflict, ok, err := c.repo.Conflict(ctx, ref); err != nil {
			runErr = err
			break
		} else if ok {
			n, err := c.dropChain(ctx, e, conflict, false)
			if err != nil {
				runErr = err
				break
			}
			gone[ref] = true
			rep.Processed += n
			rep.Dropped += n
			c.metrics.FlushEntry("dropped")
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		ack, err := remote.Dispatch(callCtx, c.remote, e)
		cancel()

		switch {
		case err == nil:
			// The server applied the change: record it even if ctx is done.
			if err := c.acknowledge(context.WithoutCancel(ctx), e, ack); err != nil {
				runErr = err
				break
			}
			rep.Processed++
			rep.Succeeded++
			c.metrics.FlushEntry("succeeded")
			c.log.Debug("entry acknowledged", slog.String("ref", ref), slog.String("op", string(e.Operation)),
				slog.Int64("version", ack.Version))

		case ctx.Err() != nil:
			// Connectivity dropped or the caller gave up: the entry stays untouched.
			runErr = ctx.Err()

		case remote.IsRejection(err):
			conflict := c.conflictFor(e, err)
			n, derr := c.dropChain(ctx, e, conflict, true)
			if derr != nil {
				runErr = derr
				break
			}
			gone[ref] = true
			if n > 0 {
				rep.Processed += n
				rep.Conflicts++
				rep.Dropped += n - 1
			}
			rep.LastError = err.Error()
			c.metrics.FlushEntry("conflict")
			c.log.Warn("queued change rejected", slog.String("ref", ref), slog.String("op", string(e.Operation)),
				slog.Int64("base_version", e.BaseVersion), slog.Int("dropped", n), slog.String("error", err.Error()))

		default:
			// Network failures and answers the server did not explain keep the entry.
			if _, ierr := c.queue.IncrementAttempts(ctx, e); ierr != nil {
				runErr = ierr
				break
			}
			blocked[ref] = true
			rep.Failed++
			rep.LastError = err.Error()
			c.metrics.FlushEntry("failed")
			c.log.Warn("sync attempt failed", slog.String("ref", ref), slog.String("op", string(e.Operation)),
				slog.Int("attempts", e.Attempts+1), slog.Bool("transient", remote.IsTransient(err)),
				slog.String("error", err.Error()))
		}
		if runErr != nil {
			break
		}
	}

	if n, err := c.queue.Len(context.WithoutCancel(ctx)); err == nil {
		rep.Remaining = n
	}
	if runErr != nil && rep.LastError == "" {
		rep.LastError = runErr.Error()
	}
	c.finish(rep, runErr, start)
	return rep, runErr
}

func (c *Coordinator) conflictFor(e model.QueueEntry, err error) model.Conflict {
	conflict := model.Conflict{
		Ref:         e.TargetRef,
		EntryID:     e.ID,
		Operation:   e.Operation,
		BaseVersion: e.BaseVersion,
		Reason:      err.Error(),
		DetectedAt:  c.clock.Now().UTC(),
	}
	var ce remote.ConflictError
	if errors.As(err, &ce) {
		conflict.CurrentVersion = ce.Current
	}
	return conflict
}

// acknowledge records the server version on the snapshot and removes e, in
// one write under the ref lock. If e was discarded meanwhile (forced refresh)
// the ack is ignored.
func (c *Coordinator) acknowledge(ctx context.Context, e model.QueueEntry, ack remote.Ack) error {
	unlock := c.repo.Lock(e.TargetRef)
	defer unlock()

	still, err := c.queue.Exists(ctx, e)
	if err != nil || !still {
		return err
	}
	ops := []store.Op{c.queue.RemoveOp(e)}
	a, ok, err := c.repo.Get(ctx, e.TargetRef)
	if err != nil {
		return err
	}
	if ok {
		a.Version = ack.Version
		put, err := c.repo.PutOp(a)
		if err != nil {
			return err
		}
		ops = append(ops, put)
	}
	return c.repo.KV().Apply(ctx, ops)
}

// dropChain removes e and every later entry of its ref. With mark, it also
// persists the conflict marker in the same write. It returns the number of
// removed entries; when e is already gone (forced refresh) nothing is written.
func (c *Coordinator) dropChain(ctx context.Context, e model.QueueEntry, conflict model.Conflict, mark bool) (int, error) {
	unlock := c.repo.Lock(e.TargetRef)
	defer unlock()

	chain, err := c.queue.ForRef(ctx, e.TargetRef)
	if err != nil {
		return 0, err
	}
	var ops []store.Op
	present := false
	for _, x := range chain {
		if x.Seq < e.Seq {
			continue
		}
		present = present || x.ID == e.ID
		ops = append(ops, c.queue.RemoveOp(x))
	}
	// Entries queued after a forced refresh belong to a new chain.
	if !present {
		return 0, nil
	}
	n := len(ops)
	if mark {
		op, err := c.repo.MarkConflictOp(conflict)
		if err != nil {
			return 0, err
		}
		ops = append(ops, op)
	}
	return n, c.repo.KV().Apply(ctx, ops)
}
