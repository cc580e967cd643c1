package session

import (
	"context"
	"sync"
)

// Group tracks running sessions. Once Drain starts, Enter refuses new ones.
type Group struct {
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
}

// Enter registers a session; it reports false after Drain has begun.
// A true result must be paired with Leave.
func (g *Group) Enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.draining {
		return false
	}
	g.wg.Add(1)
	return true
}

func (g *Group) Leave() { g.wg.Done() }

// Drain refuses new sessions and waits for running ones to leave, or for ctx.
func (g *Group) Drain(ctx context.Context) error {
	g.mu.Lock()
	g.draining = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
