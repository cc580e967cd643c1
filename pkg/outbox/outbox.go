package outbox

import (
	"errors"
	"sync"
	"sync/atomic"

	"courier/pkg/events"

	"github.com/valyala/bytebufferpool"
)

var (
	ErrQueueFull   = errors.New("outbox full")
	ErrQueueClosed = errors.New("outbox closed")
)

// Item is one encoded frame waiting to be written.
type Item struct {
	Event string
	buf   *bytebufferpool.ByteBuffer
	once  sync.Once
}

// Bytes returns the encoded frame; valid until Release.
func (it *Item) Bytes() []byte { return it.buf.B }

// Release returns the frame buffer to the pool. Safe to call twice.
func (it *Item) Release() {
	it.once.Do(func() {
		bytebufferpool.Put(it.buf)
		it.buf = nil
	})
}

// Queue is a bounded, non-blocking per-connection outbound queue.
type Queue struct {
	ch       chan *Item
	capacity int
	dropped  atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// New creates a Queue of the given capacity (>0).
func New(capacity int) *Queue {
	if capacity <= 0 {
		panic("outbox.New: capacity must be > 0; ensure config.ValidateConfig() applied defaults")
	}
	return &Queue{ch: make(chan *Item, capacity), capacity: capacity}
}

// Enqueue encodes event and payload and queues the frame without blocking.
func (q *Queue) Enqueue(event string, payload any) error {
	buf := bytebufferpool.Get()
	if err := events.EncodeTo(buf, event, payload); err != nil {
		bytebufferpool.Put(buf)
		return err
	}
	it := &Item{Event: event, buf: buf}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		it.Release()
		return ErrQueueClosed
	}
	select {
	case q.ch <- it:
		return nil
	default:
		q.dropped.Add(1)
		it.Release()
		return ErrQueueFull
	}
}

// Close stops accepting frames. Queued frames stay readable until drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// RunWorker hands frames to handler in order until the queue is closed and
// drained, stop fires, or handler fails. Unprocessed frames are released.
func (q *Queue) RunWorker(stop <-chan struct{}, handler func(*Item) error) error {
	defer q.discard()
	for {
		select {
		case it, ok := <-q.ch:
			if !ok {
				return nil
			}
			err := handler(it)
			it.Release()
			if err != nil {
				return err
			}
		case <-stop:
			return nil
		}
	}
}

// releases anything left once the queue is closed
func (q *Queue) discard() {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if !closed {
		return
	}
	for it := range q.ch {
		it.Release()
	}
}

func (q *Queue) Len() int        { return len(q.ch) }
func (q *Queue) Cap() int        { return q.capacity }
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
