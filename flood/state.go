package flood

import (
	"log"

	"github.com/Meander-Cloud/go-flood/config"
)

// State tracks the single relay session owned by this process. All fields are
// read and written on the arbiter goroutine only. The session is not
// reusable; once Terminated is set no transition back exists.
type State struct {
	Ready      bool
	SelfID     uint16 // assigned by the server, valid only once Ready
	Terminated bool

	HandshakeWaitScheduled bool
}

func NewState(c *config.Config) *State {
	log.Printf(
		"%s: floodTargets=%d, maxFloodTargets=%d",
		c.LogPrefix,
		len(c.FloodTargets),
		config.MaxFloodTargets,
	)

	s := &State{
		Ready:      false,
		SelfID:     0,
		Terminated: false,

		HandshakeWaitScheduled: false,
	}

	return s
}
