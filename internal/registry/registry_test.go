package registry_test

import (
	"math/rand"
	"net"
	"sync"
	"testing"

	"github.com/blukai/pewpew/internal/registry"
	"github.com/matryer/is"
)

func addr(port int) net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func TestInsertRemove(t *testing.T) {
	is := is.New(t)

	reg := registry.New()
	out1 := registry.NewOutbox(1)
	out2 := registry.NewOutbox(1)

	reg.Insert(addr(1), out1)
	reg.Insert(addr(2), out2)
	is.Equal(reg.Len(), 2)

	reg.Remove(addr(1))
	is.Equal(reg.Len(), 1)

	// removing an absent identity is not an error
	reg.Remove(addr(1))
	reg.Remove(addr(3))
	is.Equal(reg.Len(), 1)

	entries := reg.Entries()
	is.Equal(len(entries), 1)
	is.Equal(entries[0].Outbox, out2)
	is.Equal(entries[0].Addr.String(), "127.0.0.1:2")
}

func TestInsertOverwrites(t *testing.T) {
	is := is.New(t)

	reg := registry.New()
	old := registry.NewOutbox(1)
	newer := registry.NewOutbox(1)

	reg.Insert(addr(1), old)
	reg.Insert(addr(1), newer)

	is.Equal(reg.Len(), 1)
	is.True(old.Closed())
	is.True(!newer.Closed())

	// the replaced loop must not take the new entry with it
	is.True(!reg.Release(addr(1), old))
	is.Equal(reg.Len(), 1)

	is.True(reg.Release(addr(1), newer))
	is.Equal(reg.Len(), 0)
}

func TestMakeKey(t *testing.T) {
	is := is.New(t)

	is.Equal(registry.MakeKey(addr(1)), registry.MakeKey(addr(1)))
	is.True(registry.MakeKey(addr(1)) != registry.MakeKey(addr(2)))
}

func TestForEachSnapshot(t *testing.T) {
	is := is.New(t)

	reg := registry.New()
	for port := 1; port <= 3; port++ {
		reg.Insert(addr(port), registry.NewOutbox(1))
	}

	// mutating the registry from the callback must not deadlock; the
	// iteration keeps visiting the entries it started with.
	visited := 0
	reg.ForEach(func(entry registry.Entry) {
		visited++
		reg.Remove(entry.Addr)
		reg.Insert(addr(100+visited), registry.NewOutbox(1))
	})
	is.Equal(visited, 3)
	is.Equal(reg.Len(), 3)

	reg.ForEach(func(entry registry.Entry) {
		is.True(entry.Addr.(*net.TCPAddr).Port > 100)
	})
}

func TestCloseAll(t *testing.T) {
	is := is.New(t)

	reg := registry.New()
	outs := []*registry.Outbox{registry.NewOutbox(1), registry.NewOutbox(1)}
	for i, out := range outs {
		reg.Insert(addr(i), out)
	}

	reg.CloseAll()
	is.Equal(reg.Len(), 0)
	for _, out := range outs {
		is.True(out.Closed())
	}
}

// Concurrent insert/remove/iterate in random order; run with -race.
func TestConcurrentMutation(t *testing.T) {
	is := is.New(t)

	reg := registry.New()
	const workers = 8
	const ops = 2000

	wg := sync.WaitGroup{}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < ops; i++ {
				a := addr(rng.Intn(32))
				switch rng.Intn(4) {
				case 0:
					reg.Insert(a, registry.NewOutbox(1))
				case 1:
					reg.Remove(a)
				case 2:
					reg.ForEach(func(entry registry.Entry) {
						_ = entry.Outbox.Send([]byte{byte(i)})
					})
				case 3:
					for _, entry := range reg.Entries() {
						reg.Release(entry.Addr, entry.Outbox)
					}
				}
			}
		}(int64(w))
	}
	wg.Wait()

	// whatever is left, removing it must make it unreachable
	for _, entry := range reg.Entries() {
		reg.Remove(entry.Addr)
	}
	is.Equal(reg.Len(), 0)
	reg.ForEach(func(registry.Entry) {
		t.Fatal("removed entry still reachable")
	})
}
