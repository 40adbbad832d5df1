package network

import (
	"github.com/samber/lo"
)

// registry keeps entities by id while preserving insertion order.
type registry[T any] struct {
	ids   []string
	items map[string]*T
}

func newRegistry[T any]() registry[T] {
	return registry[T]{
		ids:   []string{},
		items: map[string]*T{},
	}
}

func (r *registry[T]) add(id string, item *T) error {
	if _, ok := r.items[id]; ok {
		return ErrDuplicateID
	}

	r.ids = append(r.ids, id)
	r.items[id] = item

	return nil
}

func (r *registry[T]) get(id string) (*T, bool) {
	item, ok := r.items[id]
	return item, ok
}

func (r *registry[T]) remove(id string) (*T, bool) {
	item, ok := r.items[id]
	if !ok {
		return nil, false
	}

	delete(r.items, id)
	r.ids = lo.Without(r.ids, id)

	return item, true
}

func (r *registry[T]) all() []*T {
	return lo.Map(r.ids, func(id string, _ int) *T {
		return r.items[id]
	})
}

func (r *registry[T]) len() int {
	return len(r.ids)
}
