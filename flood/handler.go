package flood

import (
	"fmt"
	"log"

	m "github.com/Meander-Cloud/go-flood/message"
	tp "github.com/Meander-Cloud/go-flood/net/tcp/protocol"
)

// Flooder implements tp.SessionHandler; all methods below are invoked on the
// arbiter goroutine.

func (f *Flooder) SessionReady(p *tp.Client, connState *tp.ConnState, hello *m.ServerHello) {
	if f.state.Terminated {
		log.Printf("%s: session ready after termination, ignoring", f.c.LogPrefix)
		return
	}
	if f.state.Ready {
		log.Printf("%s: duplicate session ready, state corrupt, exiting", f.c.LogPrefix)
		f.terminate()
		return
	}

	f.releaseHandshakeWait()

	// remember our assigned id
	f.state.SelfID = hello.ID

	// build pipeline: buffer pulls encoder pulls source
	f.source = NewSource(f.c, f.state)
	f.encoder = NewEncoder(f.c, f.source)
	f.buffer = NewSinglePacketBuffer(
		f.c,
		f.a,
		f.encoder,
		func(frame []byte) error {
			return f.sink(p, connState, frame)
		},
		func(err error) {
			log.Printf("%s: flood pipeline failed, exiting: %s", f.c.LogPrefix, err.Error())
			f.terminate()
		},
	)

	f.state.Ready = true

	log.Printf("%s: server ready, my id is %d, extIP=%d, flags=%#04x", f.c.LogPrefix, f.state.SelfID, hello.ExtIP, hello.Flags)

	err := f.buffer.Start()
	if err != nil {
		log.Printf("%s: failed to start flood buffer, exiting", f.c.LogPrefix)
		f.terminate()
	}
}

func (f *Flooder) SessionError(p *tp.Client, connState *tp.ConnState) {
	if f.state.Terminated {
		return
	}

	log.Printf("%s: server connection failed, exiting", f.c.LogPrefix)
	f.terminate()
}

func (f *Flooder) PeerJoined(p *tp.Client, connState *tp.ConnState, newClient *m.NewClient) {
	if f.state.Terminated {
		return
	}
	f.assertReady("PeerJoined")

	log.Printf("%s: newclient %d, flags=%#04x, certLen=%d", f.c.LogPrefix, newClient.ID, newClient.Flags, len(newClient.Cert))
}

func (f *Flooder) PeerLeft(p *tp.Client, connState *tp.ConnState, endClient *m.EndClient) {
	if f.state.Terminated {
		return
	}
	f.assertReady("PeerLeft")

	log.Printf("%s: endclient %d", f.c.LogPrefix, endClient.ID)
}

func (f *Flooder) PeerMessage(p *tp.Client, connState *tp.ConnState, inMsg *m.InMsg) {
	if f.state.Terminated {
		return
	}
	f.assertReady("PeerMessage")

	if f.c.LogDebug {
		log.Printf("%s: message from %d, %d bytes", f.c.LogPrefix, inMsg.ID, len(inMsg.Data))
	}
}

// invoked on arbiter goroutine
func (f *Flooder) assertReady(event string) {
	if !f.state.Ready {
		err := fmt.Errorf("%s: %s while session not ready", f.c.LogPrefix, event)
		log.Printf("%s", err.Error())
		panic(err)
	}
}
