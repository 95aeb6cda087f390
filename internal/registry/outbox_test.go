package registry_test

import (
	"sync"
	"testing"

	"github.com/blukai/pewpew/internal/registry"
	"github.com/matryer/is"
)

func TestOutboxFIFO(t *testing.T) {
	is := is.New(t)

	out := registry.NewOutbox(3)
	is.NoErr(out.Send([]byte{1}))
	is.NoErr(out.Send([]byte{2}))
	is.NoErr(out.Send([]byte{3}))
	is.Equal(out.Len(), 3)

	is.Equal(<-out.C(), []byte{1})
	is.Equal(<-out.C(), []byte{2})
	is.Equal(<-out.C(), []byte{3})
}

func TestOutboxFull(t *testing.T) {
	is := is.New(t)

	out := registry.NewOutbox(1)
	is.NoErr(out.Send([]byte{1}))
	is.Equal(out.Send([]byte{2}), registry.ErrOutboxFull)

	<-out.C()
	is.NoErr(out.Send([]byte{3}))
}

func TestOutboxClosed(t *testing.T) {
	is := is.New(t)

	out := registry.NewOutbox(4)
	is.True(!out.Closed())

	out.Close()
	out.Close() // idempotent
	is.True(out.Closed())
	is.Equal(out.Send([]byte{1}), registry.ErrOutboxClosed)

	select {
	case <-out.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestOutboxSendRacingClose(t *testing.T) {
	out := registry.NewOutbox(1)

	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				_ = out.Send([]byte{byte(j)})
			}
		}()
	}
	out.Close()
	wg.Wait()
}
