package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store with the same merge semantics as Firestore's
// MergeAll option. It backs tests and STORE_BACKEND=memory.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]map[string]any
}

func NewMemory() *Memory {
	return &Memory{docs: map[string]map[string]any{}}
}

func (m *Memory) Get(ctx context.Context, path string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.docs[path]
	if !ok {
		return Snapshot{}, fmt.Errorf("get %s: %w", path, ErrNotFound)
	}
	return Snapshot{ID: lastSegment(path), Path: path, Data: copyMap(data)}, nil
}

func (m *Memory) Exists(ctx context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.docs[path]
	return ok, nil
}

func (m *Memory) Set(ctx context.Context, path string, data map[string]any) error {
	if err := validateDocPath(path); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[path] = copyMap(data)
	return nil
}

func (m *Memory) Merge(ctx context.Context, path string, data map[string]any) error {
	if err := validateDocPath(path); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeLocked(path, data)
	return nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, path)
	return nil
}

func (m *Memory) List(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	prefix := strings.TrimSuffix(collection, "/") + "/"

	m.mu.RLock()
	out := make([]Snapshot, 0)
	for path, data := range m.docs {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		id := strings.TrimPrefix(path, prefix)
		if id == "" || strings.Contains(id, "/") {
			continue
		}
		if !matches(data, q.Where) {
			continue
		}
		out = append(out, Snapshot{ID: id, Path: path, Data: copyMap(data)})
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if q.OrderBy == "" {
			return out[i].ID < out[j].ID
		}
		less := lessValue(out[i].Data[q.OrderBy], out[j].Data[q.OrderBy])
		if q.Desc {
			return lessValue(out[j].Data[q.OrderBy], out[i].Data[q.OrderBy])
		}
		return less
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) Batch() Batch {
	return &memoryBatch{store: m}
}

func (m *Memory) mergeLocked(path string, data map[string]any) {
	existing, ok := m.docs[path]
	if !ok {
		existing = map[string]any{}
		m.docs[path] = existing
	}
	mergeInto(existing, data)
}

type memoryOp struct {
	path  string
	data  map[string]any
	merge bool
}

type memoryBatch struct {
	store *Memory
	ops   []memoryOp
}

func (b *memoryBatch) Set(path string, data map[string]any) {
	b.ops = append(b.ops, memoryOp{path: path, data: copyMap(data)})
}

func (b *memoryBatch) Merge(path string, data map[string]any) {
	b.ops = append(b.ops, memoryOp{path: path, data: copyMap(data), merge: true})
}

// Commit applies every staged write under one lock, so readers never see a
// partially applied batch.
func (b *memoryBatch) Commit(ctx context.Context) error {
	for _, op := range b.ops {
		if err := validateDocPath(op.path); err != nil {
			return err
		}
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, op := range b.ops {
		if op.merge {
			b.store.mergeLocked(op.path, op.data)
			continue
		}
		b.store.docs[op.path] = op.data
	}
	b.ops = nil
	return nil
}

func validateDocPath(path string) error {
	parts := strings.Split(path, "/")
	if len(parts)%2 != 0 {
		return fmt.Errorf("invalid document path %q", path)
	}
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("invalid document path %q", path)
		}
	}
	return nil
}

func matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if !reflect.DeepEqual(data[f.Field], f.Value) {
			return false
		}
	}
	return true
}

func lessValue(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Before(bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	case int:
		if bv, ok := b.(int); ok {
			return av < bv
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return av < bv
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return av < bv
		}
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if _, ok := v.(fieldDelete); ok {
			delete(dst, k)
			continue
		}
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				mergeInto(dv, sv)
				continue
			}
		}
		dst[k] = copyValue(v)
	}
}

func copyMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
