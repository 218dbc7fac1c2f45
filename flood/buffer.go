package flood

import (
	"fmt"
	"log"

	"github.com/Meander-Cloud/go-flood/config"
)

// FrameSource answers one wire frame per pull, or declines.
type FrameSource interface {
	PullFrame() ([]byte, bool)
}

// Dispatcher marshals work onto the arbiter goroutine.
type Dispatcher interface {
	Dispatch(func()) error
}

// SinglePacketBuffer adapts the pull based frame producer to the push based
// connection sink while holding at most one frame in flight. Each kick pulls
// exactly one frame and hands it to the sink atomically; a new kick is
// dispatched only after the sink has accepted the previous frame, so the sink
// write completing is the capacity signal. When upstream declines the buffer
// goes idle; nothing in this process restarts it, production resumes only via
// a fresh session, which never happens since session errors are fatal.
//
// Any failure during a kick, a sink write error, a rearm dispatch error, or a
// pipeline invariant panic from upstream, releases the buffer and is reported
// through errh exactly once.
type SinglePacketBuffer struct {
	c      *config.Config
	d      Dispatcher
	source FrameSource
	sink   func([]byte) error
	errh   func(error)

	// guards against reentrant pulls, a contract violation
	busy bool

	released bool
}

func NewSinglePacketBuffer(
	c *config.Config,
	d Dispatcher,
	source FrameSource,
	sink func([]byte) error,
	errh func(error),
) *SinglePacketBuffer {
	b := &SinglePacketBuffer{
		c:      c,
		d:      d,
		source: source,
		sink:   sink,
		errh:   errh,

		busy:     false,
		released: false,
	}

	return b
}

// Start arms the buffer; the first pull happens on the arbiter goroutine.
func (b *SinglePacketBuffer) Start() error {
	return b.d.Dispatch(b.kick)
}

// invoked on arbiter goroutine
func (b *SinglePacketBuffer) kick() {
	if b.released {
		return
	}
	if b.busy {
		err := fmt.Errorf("%s: buffer kicked while frame in flight", b.c.LogPrefix)
		log.Printf("%s", err.Error())
		panic(err)
	}
	b.busy = true
	defer func() {
		b.busy = false

		rec := recover()
		if rec != nil {
			// pipeline invariant failed upstream; fatal to the session, must
			// not be swallowed by the arbiter's functor recovery
			err := fmt.Errorf("%s: flood pipeline invariant failed: %+v", b.c.LogPrefix, rec)
			log.Printf("%s", err.Error())
			b.released = true
			b.errh(err)
		}
	}()

	frame, ok := b.source.PullFrame()
	if !ok {
		// upstream declined; idle until production is externally restarted
		return
	}

	err := b.sink(frame)
	if err != nil {
		b.errh(err)
		return
	}

	// frame accepted downstream, rearm for the next one
	err = b.d.Dispatch(b.kick)
	if err != nil {
		b.errh(err)
	}
}

// invoked on arbiter goroutine; pending kicks become no-ops
func (b *SinglePacketBuffer) Release() {
	b.released = true
}
