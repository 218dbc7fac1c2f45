package flood

import (
	"log"
	"time"

	"github.com/Meander-Cloud/go-schedule/scheduler"

	"github.com/Meander-Cloud/go-flood/arbiter"
	"github.com/Meander-Cloud/go-flood/config"
	"github.com/Meander-Cloud/go-flood/net/tcp"
	tp "github.com/Meander-Cloud/go-flood/net/tcp/protocol"
)

// Flooder owns the session state machine and the flood pipeline. The
// pipeline, source -> encoder -> buffer, exists only between the session
// becoming ready and the session terminating; protocol callbacks drive both
// transitions on the arbiter goroutine.
type Flooder struct {
	c     *config.Config
	a     *arbiter.Arbiter
	state *State
	link  *tcp.Link

	// pipeline, non-nil only while state.Ready
	source  *Source
	encoder *Encoder
	buffer  *SinglePacketBuffer

	// outbound frame sink, defaults to the protocol write path
	sink func(*tp.Client, *tp.ConnState, []byte) error

	exitch chan struct{}
}

func NewFlooder(c *config.Config) (*Flooder, error) {
	err := c.Validate()
	if err != nil {
		return nil, err
	}

	tlsConfig, err := config.LoadTlsConfig(c)
	if err != nil {
		return nil, err
	}

	f := newFlooder(c)

	defer func() {
		if err != nil {
			f.Shutdown() // wait
		}
	}()

	f.link, err = tcp.NewLink(c, f.a, f, tlsConfig)
	if err != nil {
		return nil, err
	}

	// the transport redials forever; bound the wait for a ready session here
	err = f.a.Dispatch(f.scheduleHandshakeWait)
	if err != nil {
		return nil, err
	}

	return f, nil
}

func newFlooder(c *config.Config) *Flooder {
	f := &Flooder{
		c:     c,
		a:     arbiter.NewArbiter(c),
		state: NewState(c),
		link:  nil,

		source:  nil,
		encoder: nil,
		buffer:  nil,

		sink: nil,

		exitch: make(chan struct{}),
	}
	f.sink = func(p *tp.Client, connState *tp.ConnState, frame []byte) error {
		return p.WriteFrameSync(connState, frame)
	}

	return f
}

func (f *Flooder) Shutdown() {
	if f.link != nil {
		f.link.Shutdown() // wait
	}

	if f.a != nil {
		f.a.Shutdown() // wait
	}
}

// Done is closed once the session has terminated; the process must not
// outlive it for long.
func (f *Flooder) Done() <-chan struct{} {
	return f.exitch
}

// invoked on any goroutine
func (f *Flooder) RequestTerminate() {
	f.a.Dispatch(
		func() {
			// invoked on arbiter goroutine
			log.Printf("%s: termination requested", f.c.LogPrefix)
			f.terminate()
		},
	)
}

// invoked on arbiter goroutine
func (f *Flooder) scheduleHandshakeWait() {
	if f.state.HandshakeWaitScheduled {
		// no-op
		return
	}
	if f.state.Ready || f.state.Terminated {
		return
	}

	var wait time.Duration
	if f.c.HandshakeTimeout == 0 {
		wait = config.HandshakeTimeout
	} else {
		wait = time.Second * time.Duration(f.c.HandshakeTimeout)
	}

	f.a.Scheduler().ProcessSync(
		&scheduler.ScheduleAsyncEvent[arbiter.Group]{
			AsyncVariant: scheduler.TimerAsync(
				true,
				[]arbiter.Group{arbiter.GroupSession},
				wait,
				func() {
					// invoked on arbiter goroutine
					f.state.HandshakeWaitScheduled = false

					if f.state.Ready || f.state.Terminated {
						return
					}

					log.Printf("%s: server not ready within %v, exiting", f.c.LogPrefix, wait)
					f.terminate()
				},
				nil,
			),
		},
	)

	f.state.HandshakeWaitScheduled = true

	log.Printf(
		"%s: scheduled handshake wait for %v",
		f.c.LogPrefix,
		wait,
	)
}

// invoked on arbiter goroutine
func (f *Flooder) releaseHandshakeWait() {
	if !f.state.HandshakeWaitScheduled {
		// no-op
		return
	}

	f.a.Scheduler().ProcessSync(
		&scheduler.ReleaseGroupEvent[arbiter.Group]{
			Group: arbiter.GroupSession,
		},
	)

	f.state.HandshakeWaitScheduled = false

	log.Printf(
		"%s: released: %s",
		f.c.LogPrefix,
		arbiter.GroupSession,
	)
}

// invoked on arbiter goroutine; at most one invocation takes effect
func (f *Flooder) terminate() {
	if f.state.Terminated {
		log.Printf("%s: already terminated", f.c.LogPrefix)
		return
	}
	f.state.Terminated = true

	log.Printf("%s: tearing down", f.c.LogPrefix)

	f.releaseHandshakeWait()

	if f.state.Ready {
		// release pipeline in buffer, encoder, source order
		f.buffer.Release()
		f.buffer = nil

		f.encoder = nil

		f.source = nil

		f.state.Ready = false
	}

	// connection and arbiter are shut down by the owner after exitch closes
	close(f.exitch)
}
