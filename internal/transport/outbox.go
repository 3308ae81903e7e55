package transport

import (
	"sync"

	"github.com/danmuck/cxlctl/internal/protocol/mctp"
)

// Outbox tracks in-flight actions by MCTP message tag.
type Outbox struct {
	mu    sync.Mutex
	items [mctp.Tags]*Action
	next  uint8
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

// Reserve assigns the next free tag to a and records it in a.Tag before a
// becomes visible to Take.
func (o *Outbox) Reserve(a *Action) (uint8, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := 0; i < mctp.Tags; i++ {
		tag := (o.next + uint8(i)) % mctp.Tags
		if o.items[tag] == nil {
			a.Tag = tag
			o.items[tag] = a
			o.next = (tag + 1) % mctp.Tags
			return tag, nil
		}
	}
	return 0, ErrBusy
}

// Take removes and returns the action waiting on tag for a message of type t.
func (o *Outbox) Take(tag uint8, t mctp.MessageType) (*Action, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a := o.items[tag%mctp.Tags]
	if a == nil || a.Type != t {
		return nil, false
	}
	o.items[tag%mctp.Tags] = nil
	return a, true
}

// Remove frees tag if it is still held by a.
func (o *Outbox) Remove(tag uint8, a *Action) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.items[tag%mctp.Tags] != a {
		return false
	}
	o.items[tag%mctp.Tags] = nil
	return true
}

// Drain empties the outbox and returns what was in flight.
func (o *Outbox) Drain() []*Action {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*Action
	for i, a := range o.items {
		if a != nil {
			out = append(out, a)
			o.items[i] = nil
		}
	}
	return out
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, a := range o.items {
		if a != nil {
			n++
		}
	}
	return n
}
