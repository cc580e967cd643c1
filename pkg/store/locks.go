package store

import (
	"hash/fnv"
	"sort"
	"sync"
)

const lockStripes = 256

// fixed set of mutexes selected by key hash
type stripedLocks struct {
	mu [lockStripes]sync.Mutex
}

func (l *stripedLocks) index(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % lockStripes)
}

// locks the stripe for key and returns its unlock func
func (l *stripedLocks) lock(key string) func() {
	m := &l.mu[l.index(key)]
	m.Lock()
	return m.Unlock
}

// locks every stripe covering keys in ascending stripe order so that
// overlapping batches cannot deadlock.
func (l *stripedLocks) lockAll(keys []string) func() {
	seen := make(map[int]struct{}, len(keys))
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		i := l.index(k)
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		l.mu[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			l.mu[idx[j]].Unlock()
		}
	}
}
