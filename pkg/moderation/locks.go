package moderation

import (
	"hash/fnv"
	"sort"
	"sync"
)

const batchStripes = 64

// batchLocks serializes batch operations that touch the same message ids.
type batchLocks struct {
	mu [batchStripes]sync.Mutex
}

func (l *batchLocks) lockAll(ids []string) func() {
	seen := make(map[uint32]struct{}, len(ids))
	idx := make([]int, 0, len(ids))
	for _, id := range ids {
		h := fnv.New32a()
		_, _ = h.Write([]byte(id))
		i := h.Sum32() % batchStripes
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		idx = append(idx, int(i))
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
