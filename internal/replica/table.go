package replica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Row is a decoded record and its id.
type Row[T any] struct {
	ID    string
	Value T
}

// Table is a typed view over one channel of a Store, JSON-encoded.
type Table[T any] struct {
	store Store
	ch    Channel
}

// NewTable binds a typed table to a channel.
func NewTable[T any](store Store, ch Channel) *Table[T] {
	return &Table[T]{store: store, ch: ch}
}

// Channel returns the sync id this table is bound to.
func (t *Table[T]) Channel() Channel { return t.ch }

// Get returns the record and whether it exists.
func (t *Table[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var v T
	b, err := t.store.Get(ctx, t.ch, id)
	if errors.Is(err, ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, false, fmt.Errorf("decode %d/%s: %w", t.ch, id, err)
	}
	return v, true, nil
}

// Put overwrites the record.
func (t *Table[T]) Put(ctx context.Context, id string, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %d/%s: %w", t.ch, id, err)
	}
	return t.store.Put(ctx, t.ch, id, b)
}

// Mutate runs fn against the current value inside an atomic update. fn returns
// false to leave the record untouched, in which case Mutate reports false.
func (t *Table[T]) Mutate(ctx context.Context, id string, fn func(v *T, exists bool) bool) (bool, error) {
	err := t.store.Update(ctx, t.ch, id, func(old []byte, exists bool) ([]byte, error) {
		var v T
		if exists {
			if err := json.Unmarshal(old, &v); err != nil {
				return nil, fmt.Errorf("decode %d/%s: %w", t.ch, id, err)
			}
		}
		if !fn(&v, exists) {
			return nil, ErrSkipUpdate
		}
		return json.Marshal(v)
	})
	if errors.Is(err, ErrSkipUpdate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// All decodes every record of the channel, ordered by id. Undecodable records
// are skipped.
func (t *Table[T]) All(ctx context.Context) ([]Row[T], error) {
	entries, err := t.store.List(ctx, t.ch)
	if err != nil {
		return nil, err
	}
	rows := make([]Row[T], 0, len(entries))
	for _, e := range entries {
		var v T
		if err := json.Unmarshal(e.Data, &v); err != nil {
			continue
		}
		rows = append(rows, Row[T]{ID: e.ID, Value: v})
	}
	return rows, nil
}

// Find returns the first record, by id order, matching pred.
func (t *Table[T]) Find(ctx context.Context, pred func(T) bool) (Row[T], bool, error) {
	rows, err := t.All(ctx)
	if err != nil {
		return Row[T]{}, false, err
	}
	for _, r := range rows {
		if pred(r.Value) {
			return r, true, nil
		}
	}
	return Row[T]{}, false, nil
}

// Delete removes the record.
func (t *Table[T]) Delete(ctx context.Context, id string) error {
	return t.store.Delete(ctx, t.ch, id)
}

// Clear removes every record of the channel.
func (t *Table[T]) Clear(ctx context.Context) error {
	return t.store.DeleteAll(ctx, t.ch)
}

// OnChange calls fn for every write to the channel. v is nil for deletions or
// undecodable data.
func (t *Table[T]) OnChange(fn func(id string, v *T)) (cancel func()) {
	return t.store.Subscribe(t.ch, func(c Change) {
		if c.Deleted {
			fn(c.ID, nil)
			return
		}
		var v T
		if err := json.Unmarshal(c.Data, &v); err != nil {
			fn(c.ID, nil)
			return
		}
		fn(c.ID, &v)
	})
}
