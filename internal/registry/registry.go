// Package registry tracks the outboxes of every connected peer.
//
// The registry is shared by the accept loop (insert), the send loops (remove
// themselves) and the broadcast scheduler (iterate). Iteration copies the
// entries out and releases the lock before calling back, so a stalled peer
// never holds up registration or removal of others.
package registry

import (
	"net"
	"sync"

	"github.com/cespare/xxhash/v2"
)

type Key uint64

func MakeKey(addr net.Addr) Key {
	return Key(xxhash.Sum64String(addr.String()))
}

type Entry struct {
	Addr   net.Addr
	Outbox *Outbox
}

type Registry struct {
	mu      sync.Mutex
	entries map[Key]Entry
}

func New() *Registry {
	return &Registry{
		entries: make(map[Key]Entry),
	}
}

// Insert registers out for addr. An outbox previously registered for the same
// address is closed and replaced.
func (r *Registry) Insert(addr net.Addr, out *Outbox) {
	key := MakeKey(addr)

	r.mu.Lock()
	prev, ok := r.entries[key]
	r.entries[key] = Entry{Addr: addr, Outbox: out}
	r.mu.Unlock()

	if ok && prev.Outbox != out {
		prev.Outbox.Close()
	}
}

// Remove deregisters addr. Removing an unknown address is a no-op.
func (r *Registry) Remove(addr net.Addr) {
	r.mu.Lock()
	delete(r.entries, MakeKey(addr))
	r.mu.Unlock()
}

// Release removes addr only if out is still what is registered for it. Write
// loops use it so that a loop that lost its slot to a newer connection from
// the same address doesn't deregister the newcomer.
func (r *Registry) Release(addr net.Addr, out *Outbox) bool {
	key := MakeKey(addr)

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || entry.Outbox != out {
		return false
	}
	delete(r.entries, key)
	return true
}

// Entries returns a point in time copy of the registered entries.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	return entries
}

// ForEach calls fn for every entry registered at the moment of the call.
// Entries inserted or removed while fn runs may or may not be visited.
func (r *Registry) ForEach(fn func(Entry)) {
	for _, entry := range r.Entries() {
		fn(entry)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CloseAll closes and removes every entry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[Key]Entry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.Outbox.Close()
	}
}
