package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Firestore adapts a *firestore.Client to Store.
type Firestore struct {
	client *firestore.Client
}

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

func (s *Firestore) doc(path string) (*firestore.DocumentRef, error) {
	ref := s.client.Doc(path)
	if ref == nil {
		return nil, fmt.Errorf("invalid document path %q", path)
	}
	return ref, nil
}

func (s *Firestore) Get(ctx context.Context, path string) (Snapshot, error) {
	ref, err := s.doc(path)
	if err != nil {
		return Snapshot{}, err
	}
	snap, err := ref.Get(ctx)
	if snap != nil && !snap.Exists() {
		return Snapshot{}, fmt.Errorf("get %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get %s: %w", path, err)
	}
	return Snapshot{ID: ref.ID, Path: path, Data: snap.Data()}, nil
}

func (s *Firestore) Exists(ctx context.Context, path string) (bool, error) {
	ref, err := s.doc(path)
	if err != nil {
		return false, err
	}
	snap, err := ref.Get(ctx)
	if snap != nil && !snap.Exists() {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", path, err)
	}
	return true, nil
}

func (s *Firestore) Set(ctx context.Context, path string, data map[string]any) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, data)
	return err
}

func (s *Firestore) Merge(ctx context.Context, path string, data map[string]any) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, mergeData(data), firestore.MergeAll)
	return err
}

// mergeData replaces DeleteField markers with the Firestore delete sentinel.
func mergeData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch t := v.(type) {
		case fieldDelete:
			out[k] = firestore.Delete
		case map[string]any:
			out[k] = mergeData(t)
		default:
			out[k] = v
		}
	}
	return out
}

func (s *Firestore) Delete(ctx context.Context, path string) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx)
	return err
}

func (s *Firestore) List(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	coll := s.client.Collection(collection)
	if coll == nil {
		return nil, fmt.Errorf("invalid collection path %q", collection)
	}

	query := coll.Query
	for _, f := range q.Where {
		query = query.Where(f.Field, "==", f.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Desc {
			dir = firestore.Desc
		}
		query = query.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []Snapshot
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate %s: %w", collection, err)
		}
		out = append(out, Snapshot{ID: doc.Ref.ID, Path: doc.Ref.Path, Data: doc.Data()})
	}
	return out, nil
}

func (s *Firestore) Batch() Batch {
	return &firestoreBatch{store: s}
}

// MaxBatchWrites is Firestore's limit on writes in one commit.
const MaxBatchWrites = 500

type batchOp struct {
	ref   *firestore.DocumentRef
	data  map[string]any
	merge bool
}

// firestoreBatch stages writes and commits them in chunks of MaxBatchWrites.
// Each chunk is atomic; a failure stops before later chunks are sent.
type firestoreBatch struct {
	store *Firestore
	ops   []batchOp
	err   error
}

func (b *firestoreBatch) Set(path string, data map[string]any) {
	b.stage(path, data, false)
}

func (b *firestoreBatch) Merge(path string, data map[string]any) {
	b.stage(path, data, true)
}

func (b *firestoreBatch) stage(path string, data map[string]any, merge bool) {
	ref, err := b.store.doc(path)
	if err != nil {
		b.err = err
		return
	}
	b.ops = append(b.ops, batchOp{ref: ref, data: data, merge: merge})
}

func (b *firestoreBatch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	chunks := chunk(b.ops, MaxBatchWrites)
	for i, ops := range chunks {
		wb := b.store.client.Batch()
		for _, op := range ops {
			if op.merge {
				wb.Set(op.ref, mergeData(op.data), firestore.MergeAll)
			} else {
				wb.Set(op.ref, op.data)
			}
		}
		if _, err := wb.Commit(ctx); err != nil {
			return fmt.Errorf("commit batch %d of %d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

// chunk splits items into consecutive slices of at most size elements.
func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for len(items) > size {
		out = append(out, items[:size:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
