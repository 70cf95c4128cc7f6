package catalog

import (
	"sync"
	"sync/atomic"
)

// Notifier tracks a monotonically increasing change version and wakes
// subscribers when it moves. Slow subscribers see coalesced versions.
type Notifier struct {
	version atomic.Uint64

	mu   sync.Mutex
	subs map[int]chan uint64
	next int
}

// Version returns the current change version.
func (n *Notifier) Version() uint64 {
	return n.version.Load()
}

// Bump advances the version and notifies subscribers without blocking.
func (n *Notifier) Bump() uint64 {
	v := n.version.Add(1)

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- v:
		default:
			// drop the stale pending value and replace it
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
	return v
}

// Subscribe returns a channel receiving new versions and a cancel func that
// closes it.
func (n *Notifier) Subscribe() (<-chan uint64, func()) {
	ch := make(chan uint64, 1)

	n.mu.Lock()
	if n.subs == nil {
		n.subs = make(map[int]chan uint64)
	}
	id := n.next
	n.next++
	n.subs[id] = ch
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(ch)
		})
	}
}
