package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"actas-cli/internal/model"
)

func fixedNow() time.Time { return time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC) }

func newTestQueue(t *testing.T, kv KeyValueStore) *Queue {
	t.Helper()
	q, err := NewQueue(kv, "t1", fixedNow)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	return q
}

func mustAppend(t *testing.T, q *Queue, ref string, op model.Operation, base int64) model.QueueEntry {
	t.Helper()
	e := model.QueueEntry{TargetRef: ref, Operation: op, BaseVersion: base}
	if op == model.OpSave {
		e.Payload = &model.GradeSheet{Grades: model.Grades{}}
	}
	out, err := q.Append(context.Background(), e)
	if err != nil {
		t.Fatalf("append %s %s: %v", op, ref, err)
	}
	return out
}

func TestQueue_FIFOAndRemove(t *testing.T) {
	q := newTestQueue(t, NewMemoryKV())
	ctx := context.Background()

	a := mustAppend(t, q, "2024:5A:MAT:1", model.OpSave, 1)
	b := mustAppend(t, q, "2024:5B:MAT:1", model.OpLock, 3)
	c := mustAppend(t, q, "2024:5A:MAT:1", model.OpLock, 2)

	if a.ID == "" || a.Seq != 1 || b.Seq != 2 || c.Seq != 3 {
		t.Fatalf("unexpected ids/seqs: %+v %+v %+v", a, b, c)
	}
	if !a.CreatedAt.Equal(fixedNow()) {
		t.Fatalf("unexpected createdAt: %v", a.CreatedAt)
	}

	got, err := q.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 || got[0].ID != a.ID || got[1].ID != b.ID || got[2].ID != c.ID {
		t.Fatalf("unexpected order: %+v", got)
	}

	forRef, err := q.ForRef(ctx, "2024:5A:MAT:1")
	if err != nil || len(forRef) != 2 {
		t.Fatalf("for ref: %v %+v", err, forRef)
	}

	if err := q.Remove(ctx, a); err != nil {
		t.Fatalf("remove: %v", err)
	}
	d := mustAppend(t, q, "2024:5C:MAT:1", model.OpUnlock, 4)
	if d.Seq != 4 {
		t.Fatalf("seq must keep increasing after removal, got %d", d.Seq)
	}
	if n, _ := q.Len(ctx); n != 3 {
		t.Fatalf("expected 3 pending, got %d", n)
	}
}

func TestQueue_AppendCommitsExtraOpsAtomically(t *testing.T) {
	kv := NewMemoryKV()
	q := newTestQueue(t, kv)
	ctx := context.Background()
	if _, err := q.Append(ctx, model.QueueEntry{TargetRef: "2024:5A:MAT:1", Operation: model.OpLock}, SetOp("side", []byte("x"))); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "side"); !ok {
		t.Fatalf("extra op not committed")
	}
}

func TestQueue_RejectsMalformedAppend(t *testing.T) {
	q := newTestQueue(t, NewMemoryKV())
	_, err := q.Append(context.Background(), model.QueueEntry{TargetRef: "2024:5A:MAT:1", Operation: model.OpSave})
	if !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("expected invalid input for SAVE without payload, got %v", err)
	}
	if n, _ := q.Len(context.Background()); n != 0 {
		t.Fatalf("nothing should be stored")
	}
}

func TestQueue_IncrementAttempts(t *testing.T) {
	q := newTestQueue(t, NewMemoryKV())
	ctx := context.Background()
	e := mustAppend(t, q, "2024:5A:MAT:1", model.OpLock, 1)
	e, err := q.IncrementAttempts(ctx, e)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	got, _ := q.List(ctx)
	if got[0].Attempts != 1 || e.Attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", got[0].Attempts)
	}
}

func TestQueue_CorruptionFailsClosedAndNamesEntry(t *testing.T) {
	kv := NewMemoryKV()
	q := newTestQueue(t, kv)
	ctx := context.Background()

	good := mustAppend(t, q, "2024:5A:MAT:1", model.OpLock, 1)
	_ = kv.Set(ctx, q.keys.queue(7), []byte("{not json"))
	mustAppend(t, q, "2024:5B:MAT:1", model.OpLock, 1)

	_, err := q.List(ctx)
	var qc QueueCorruptionError
	if !errors.As(err, &qc) {
		t.Fatalf("expected QueueCorruptionError, got %v", err)
	}
	if !errors.Is(err, ErrQueueCorruption) {
		t.Fatalf("expected errors.Is ErrQueueCorruption")
	}
	if qc.Key != q.keys.queue(7) {
		t.Fatalf("expected corrupted key %s, got %s", q.keys.queue(7), qc.Key)
	}

	entries, bad, err := q.Inspect(ctx)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != good.ID || len(bad) != 1 {
		t.Fatalf("inspect should keep good entries: %d good, %d bad", len(entries), len(bad))
	}

	if err := q.Discard(ctx, qc.Key); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if got, err := q.List(ctx); err != nil || len(got) != 2 {
		t.Fatalf("after discard: %v %d", err, len(got))
	}
}

func TestQueue_SemanticCorruption(t *testing.T) {
	kv := NewMemoryKV()
	q := newTestQueue(t, kv)
	ctx := context.Background()
	_ = kv.Set(ctx, q.keys.queue(1), []byte(`{"id":"x","seq":1,"targetRef":"bad-ref","operation":"LOCK","baseVersion":1,"attempts":0,"createdAt":"2024-01-01T00:00:00Z"}`))
	if _, err := q.List(ctx); !errors.Is(err, ErrQueueCorruption) {
		t.Fatalf("expected corruption for bad ref, got %v", err)
	}
}

func TestQueue_ScopesAreIsolated(t *testing.T) {
	kv := NewMemoryKV()
	q1, _ := NewQueue(kv, "a", fixedNow)
	q2, _ := NewQueue(kv, "b", fixedNow)
	mustAppend(t, q1, "2024:5A:MAT:1", model.OpLock, 1)
	if n, _ := q2.Len(context.Background()); n != 0 {
		t.Fatalf("scope b should be empty, got %d", n)
	}
	if err := q2.Discard(context.Background(), q1.keys.queue(1)); err == nil {
		t.Fatalf("expected discard across scopes to be refused")
	}
}

func TestNormalizeScope(t *testing.T) {
	if _, err := NormalizeScope("  "); err == nil {
		t.Fatalf("expected error for empty scope")
	}
	if _, err := NormalizeScope("a/b"); err == nil {
		t.Fatalf("expected error for scope with slash")
	}
	if s, err := NormalizeScope(" prof-1 "); err != nil || s != "prof-1" {
		t.Fatalf("unexpected: %q %v", s, err)
	}
}
