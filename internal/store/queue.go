package store

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"actas-cli/internal/model"
)

// Queue is the durable FIFO of pending local mutations (the local queue store).
// Entries are appended at mutation time and removed only after the remote
// acknowledged or rejected them; the only in-place change is Attempts++.
type Queue struct {
	kv   KeyValueStore
	keys keyspace
	now  func() time.Time

	// mu serializes sequence allocation.
	mu sync.Mutex
}

func NewQueue(kv KeyValueStore, scope string, now func() time.Time) (*Queue, error) {
	scope, err := NormalizeScope(scope)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Queue{kv: kv, keys: keyspace{scope: scope}, now: now}, nil
}

// Append assigns id, seq and createdAt, then commits the entry together with
// extra (typically the snapshot write of the same mutation) in one Apply.
func (q *Queue) Append(ctx context.Context, e model.QueueEntry, extra ...Op) (model.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	seq, err := q.nextSeq(ctx)
	if err != nil {
		return model.QueueEntry{}, err
	}
	e.ID = newEntryID()
	e.Seq = seq
	e.Attempts = 0
	e.CreatedAt = q.now().UTC()
	if e.Payload != nil {
		cp := e.Payload.Clone()
		e.Payload = &cp
	}
	if err := e.Check(); err != nil {
		return model.QueueEntry{}, model.InputError{Err: err}
	}
	b, err := json.Marshal(e)
	if err != nil {
		return model.QueueEntry{}, errors.Wrap(err, "encode queue entry")
	}

	ops := make([]Op, 0, len(extra)+2)
	ops = append(ops, extra...)
	ops = append(ops,
		SetOp(q.keys.queue(seq), b),
		SetOp(q.keys.queueSeq(), []byte(strconv.FormatUint(seq, 10))),
	)
	if err := q.kv.Apply(ctx, ops); err != nil {
		return model.QueueEntry{}, errors.Wrap(err, "append queue entry")
	}
	return e, nil
}

func (q *Queue) nextSeq(ctx context.Context) (uint64, error) {
	var last uint64
	b, ok, err := q.kv.Get(ctx, q.keys.queueSeq())
	if err != nil {
		return 0, err
	}
	if ok {
		last, err = strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
		if err != nil {
			return 0, QueueCorruptionError{Key: q.keys.queueSeq(), Err: err}
		}
	}
	// Never reuse a seq still present, even if the counter was lost.
	kvs, err := q.kv.List(ctx, q.keys.queuePrefix())
	if err != nil {
		return 0, err
	}
	if n := len(kvs); n > 0 {
		if s, err := q.seqFromKey(kvs[n-1].Key); err == nil && s > last {
			last = s
		}
	}
	return last + 1, nil
}

// List returns all entries in FIFO order. It fails closed on the first entry
// that cannot be decoded.
func (q *Queue) List(ctx context.Context) ([]model.QueueEntry, error) {
	entries, bad, err := q.Inspect(ctx)
	if err != nil {
		return nil, err
	}
	if len(bad) > 0 {
		return nil, bad[0]
	}
	return entries, nil
}

// Inspect decodes every entry, returning the good ones alongside a report of
// the corrupted keys. Used for diagnostics; flushing goes through List.
func (q *Queue) Inspect(ctx context.Context) ([]model.QueueEntry, []QueueCorruptionError, error) {
	kvs, err := q.kv.List(ctx, q.keys.queuePrefix())
	if err != nil {
		return nil, nil, err
	}
	out := make([]model.QueueEntry, 0, len(kvs))
	var bad []QueueCorruptionError
	for _, kv := range kvs {
		e, err := q.decode(kv)
		if err != nil {
			bad = append(bad, QueueCorruptionError{Key: kv.Key, Err: err})
			continue
		}
		out = append(out, e)
	}
	return out, bad, nil
}

func (q *Queue) decode(kv KV) (model.QueueEntry, error) {
	seq, err := q.seqFromKey(kv.Key)
	if err != nil {
		return model.QueueEntry{}, err
	}
	var e model.QueueEntry
	dec := json.NewDecoder(strings.NewReader(string(kv.Value)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&e); err != nil {
		return model.QueueEntry{}, err
	}
	if e.Seq != seq {
		return model.QueueEntry{}, errors.Errorf("seq %d does not match key", e.Seq)
	}
	if err := e.Check(); err != nil {
		return model.QueueEntry{}, err
	}
	return e, nil
}

func (q *Queue) seqFromKey(key string) (uint64, error) {
	s := strings.TrimPrefix(key, q.keys.queuePrefix())
	if s == key {
		return 0, errors.Errorf("foreign key %q", key)
	}
	return strconv.ParseUint(s, 10, 64)
}

// ForRef returns the pending entries of one ref, in FIFO order.
func (q *Queue) ForRef(ctx context.Context, ref string) ([]model.QueueEntry, error) {
	all, err := q.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []model.QueueEntry{}
	for _, e := range all {
		if e.TargetRef == ref {
			out = append(out, e)
		}
	}
	return out, nil
}

// Len counts stored entries without decoding them.
func (q *Queue) Len(ctx context.Context) (int, error) {
	kvs, err := q.kv.List(ctx, q.keys.queuePrefix())
	if err != nil {
		return 0, err
	}
	return len(kvs), nil
}

func (q *Queue) RemoveOp(e model.QueueEntry) Op {
	return DeleteOp(q.keys.queue(e.Seq))
}

// Remove deletes e, committing extra in the same Apply.
func (q *Queue) Remove(ctx context.Context, e model.QueueEntry, extra ...Op) error {
	ops := append([]Op{q.RemoveOp(e)}, extra...)
	return errors.Wrapf(q.kv.Apply(ctx, ops), "remove queue entry %s", e.ID)
}

func (q *Queue) IncrementAttempts(ctx context.Context, e model.QueueEntry) (model.QueueEntry, error) {
	e.Attempts++
	b, err := json.Marshal(e)
	if err != nil {
		return e, errors.Wrap(err, "encode queue entry")
	}
	if err := q.kv.Apply(ctx, []Op{SetOp(q.keys.queue(e.Seq), b)}); err != nil {
		return e, errors.Wrapf(err, "bump attempts %s", e.ID)
	}
	return e, nil
}

// Discard removes a stored entry by key. It is the explicit operator action
// for corrupted entries reported by Inspect.
func (q *Queue) Discard(ctx context.Context, key string) error {
	if !strings.HasPrefix(key, q.keys.queuePrefix()) {
		return errors.Errorf("key %q is not a queue entry of this scope", key)
	}
	return q.kv.Delete(ctx, key)
}

// Exists reports whether e is still queued. The sync coordinator checks it
// under the ref lock before applying an acknowledgment.
func (q *Queue) Exists(ctx context.Context, e model.QueueEntry) (bool, error) {
	_, ok, err := q.kv.Get(ctx, q.keys.queue(e.Seq))
	return ok, err
}
