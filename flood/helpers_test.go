package flood

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Meander-Cloud/go-flood/arbiter"
	"github.com/Meander-Cloud/go-flood/config"
)

const testWait = time.Second * 5

var errTestSink = errors.New("test sink closed")

func newTestArbiter(t *testing.T, c *config.Config) *arbiter.Arbiter {
	t.Helper()
	a := arbiter.NewArbiter(c)
	t.Cleanup(func() {
		a.Shutdown() // wait
	})
	return a
}

// dispatchWait runs f on the arbiter goroutine and blocks until it returns.
func dispatchWait(t *testing.T, a *arbiter.Arbiter, f func()) {
	t.Helper()
	done := make(chan struct{})
	err := a.Dispatch(func() {
		f()
		close(done)
	})
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(testWait):
		t.Fatal("timed out waiting for arbiter dispatch")
	}
}
