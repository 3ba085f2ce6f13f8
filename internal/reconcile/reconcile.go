// Package reconcile merges an incoming list of child specifications into an
// ordered collection owned by one parent.
package reconcile

import (
	"context"

	"fleetops/internal/apperr"
)

// Plan describes one owned collection. T is the stored child, S the incoming
// specification.
type Plan[T, S any] struct {
	// Label names the child type in error messages.
	Label string
	// Key returns the identity carried by a spec; false means "create new".
	Key func(S) (int64, bool)
	// ID returns the identity of a stored child.
	ID func(T) int64
	// Fetch loads stored children by identity in a single call. Missing
	// identities are simply absent from the result.
	Fetch func(ctx context.Context, ids []int64) (map[int64]T, error)
	// New builds a child from a spec without an existing match.
	New func(S) (T, error)
	// Apply updates a matched child in place.
	Apply func(*T, S) error
	// SetIndex assigns the 0-based position.
	SetIndex func(*T, int)
}

// Result is the reconciled collection plus what changed.
type Result[T any] struct {
	Items []T
	// Created holds the positions in Items of newly built children.
	Created []int
	Updated []int64
	Removed []int64
}

// Reconcile walks incoming in order: specs whose identity matches a child of
// existing update it, all others create a new child. Children of existing
// that are not matched are reported as removed. Positions are renumbered
// 0..n-1 in incoming order.
//
// A spec naming a stored child of another parent, or repeating an identity,
// is a BadRequest. Errors from New and Apply are returned unchanged.
func (p Plan[T, S]) Reconcile(ctx context.Context, existing []T, incoming []S) (Result[T], error) {
	owned := make(map[int64]struct{}, len(existing))
	for _, c := range existing {
		owned[p.ID(c)] = struct{}{}
	}

	seen := map[int64]struct{}{}
	var ids []int64
	for _, s := range incoming {
		id, ok := p.Key(s)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			return Result[T]{}, apperr.BadRequest("Duplicate %s id '%d'", p.Label, id)
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	stored := map[int64]T{}
	if len(ids) > 0 {
		var err error
		if stored, err = p.Fetch(ctx, ids); err != nil {
			return Result[T]{}, err
		}
	}

	res := Result[T]{Items: make([]T, 0, len(incoming))}
	kept := map[int64]struct{}{}
	for _, s := range incoming {
		id, hasID := p.Key(s)
		if hasID {
			if child, ok := stored[id]; ok {
				if _, mine := owned[id]; !mine {
					return Result[T]{}, apperr.BadRequest("%s with id '%d' belongs to another parent", p.Label, id)
				}
				if err := p.Apply(&child, s); err != nil {
					return Result[T]{}, err
				}
				kept[id] = struct{}{}
				res.Updated = append(res.Updated, id)
				res.Items = append(res.Items, child)
				continue
			}
		}
		child, err := p.New(s)
		if err != nil {
			return Result[T]{}, err
		}
		res.Created = append(res.Created, len(res.Items))
		res.Items = append(res.Items, child)
	}

	for _, c := range existing {
		if _, ok := kept[p.ID(c)]; !ok {
			res.Removed = append(res.Removed, p.ID(c))
		}
	}
	Renumber(res.Items, p.SetIndex)
	return res, nil
}

// Renumber assigns each item its position.
func Renumber[T any](items []T, set func(*T, int)) {
	for i := range items {
		set(&items[i], i)
	}
}

// Remove drops the item with the given identity and renumbers the rest.
func Remove[T any](items []T, id int64, idOf func(T) int64, set func(*T, int)) ([]T, bool) {
	out := make([]T, 0, len(items))
	found := false
	for _, it := range items {
		if idOf(it) == id {
			found = true
			continue
		}
		out = append(out, it)
	}
	Renumber(out, set)
	return out, found
}

// Insert places item at pos, clamped to [0, len(items)], and renumbers.
func Insert[T any](items []T, item T, pos int, set func(*T, int)) []T {
	if pos < 0 || pos > len(items) {
		pos = len(items)
	}
	out := make([]T, 0, len(items)+1)
	out = append(out, items[:pos]...)
	out = append(out, item)
	out = append(out, items[pos:]...)
	Renumber(out, set)
	return out
}

// Resolve loads every referenced identity in one call and fails with
// NotFound on the first identity, in input order, that does not exist.
func Resolve[V any](ctx context.Context, label string, ids []int64, fetch func(context.Context, []int64) (map[int64]V, error)) (map[int64]V, error) {
	uniq := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	if len(uniq) == 0 {
		return map[int64]V{}, nil
	}
	found, err := fetch(ctx, uniq)
	if err != nil {
		return nil, err
	}
	for _, id := range uniq {
		if _, ok := found[id]; !ok {
			return nil, apperr.NotFound(label, id)
		}
	}
	return found, nil
}
