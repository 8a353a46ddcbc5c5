package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// KeyValueStore is the durable local storage behind the repository and the queue.
// Keys are plain strings; List returns entries in ascending key order.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]KV, error)

	// Apply commits all ops atomically: either every op is visible afterwards or none is.
	Apply(ctx context.Context, ops []Op) error
}

type KV struct {
	Key   string
	Value []byte
}

// Op is a single write inside an atomic Apply. Delete ignores Value.
type Op struct {
	Key    string
	Value  []byte
	Delete bool
}

func SetOp(key string, value []byte) Op { return Op{Key: key, Value: value} }

func DeleteOp(key string) Op { return Op{Key: key, Delete: true} }

type MemoryKV struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{m: map[string][]byte{}}
}

func (s *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryKV) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *MemoryKV) List(_ context.Context, prefix string) ([]KV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []KV{}
	for k, v := range s.m {
		if strings.HasPrefix(k, prefix) {
			out = append(out, KV{Key: k, Value: append([]byte(nil), v...)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryKV) Apply(ctx context.Context, ops []Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		if op.Delete {
			delete(s.m, op.Key)
			continue
		}
		s.m[op.Key] = append([]byte(nil), op.Value...)
	}
	return nil
}
