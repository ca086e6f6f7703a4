// Package votememory remembers, per client session, the last choice made on
// an anonymous activity so the client can change its vote without the stored
// rows naming it.
package votememory

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type key struct {
	session  string
	activity string
}

// Memory is a bounded, expiring map from (session, activity) to the last choice.
type Memory[V any] struct {
	cache *expirable.LRU[key, V]
}

// New creates a memory holding at most size entries for ttl each.
func New[V any](size int, ttl time.Duration) *Memory[V] {
	if size <= 0 {
		size = 10000
	}
	return &Memory[V]{cache: expirable.NewLRU[key, V](size, nil, ttl)}
}

// Remember stores the choice of session on activity.
func (m *Memory[V]) Remember(session, activity string, v V) {
	if session == "" {
		return
	}
	m.cache.Add(key{session, activity}, v)
}

// Recall returns the last choice of session on activity.
func (m *Memory[V]) Recall(session, activity string) (V, bool) {
	if session == "" {
		var zero V
		return zero, false
	}
	return m.cache.Get(key{session, activity})
}

// Len returns the number of remembered choices.
func (m *Memory[V]) Len() int { return m.cache.Len() }
