package debug_test

import (
	"strings"
	"testing"

	"github.com/blukai/pewpew/internal/debug"
	"github.com/matryer/is"
)

func recovered(fn func()) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = r.(string)
		}
	}()
	fn()
	return ""
}

func TestAssert(t *testing.T) {
	is := is.New(t)

	is.Equal(recovered(func() { debug.Assert(true) }), "")

	msg := recovered(func() { debug.Assert(false, "boom") })
	is.True(strings.Contains(msg, "assertion failed([boom])"))
	is.True(strings.Contains(msg, "assert_test.go:"))

	is.Equal(recovered(func() { debug.Assert(true, "a", "b") }), "invalid assert args")
}

func TestAssertf(t *testing.T) {
	is := is.New(t)

	msg := recovered(func() { debug.Assertf(false, "%d left", 3) })
	is.True(strings.Contains(msg, "assertion failed(3 left)"))
	is.True(strings.Contains(msg, "assert_test.go:"))
}
