// Package presencetest provides a recording connection for tests.
package presencetest

import "sync"

type Pushed struct {
	Event   string
	Payload any
}

// Conn records every pushed event. Setting Err makes Push fail.
type Conn struct {
	id string

	mu     sync.Mutex
	pushed []Pushed
	Err    error
}

func NewConn(id string) *Conn { return &Conn{id: id} }

func (c *Conn) ID() string { return c.id }

func (c *Conn) Push(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.pushed = append(c.pushed, Pushed{Event: event, Payload: payload})
	return nil
}

// Events returns a copy of everything pushed so far.
func (c *Conn) Events() []Pushed {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Pushed(nil), c.pushed...)
}

// Names returns the pushed event names in order.
func (c *Conn) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.pushed))
	for i, p := range c.pushed {
		out[i] = p.Event
	}
	return out
}

// Last returns the most recent push, if any.
func (c *Conn) Last() (Pushed, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pushed) == 0 {
		return Pushed{}, false
	}
	return c.pushed[len(c.pushed)-1], true
}

func (c *Conn) Reset() {
	c.mu.Lock()
	c.pushed = nil
	c.mu.Unlock()
}
