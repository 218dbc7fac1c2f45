package flood

import (
	"fmt"
	"log"

	"github.com/Meander-Cloud/go-flood/config"
	m "github.com/Meander-Cloud/go-flood/message"
)

// Source is the demand driven producer at the head of the flood pipeline. It
// is pulled only when the downstream buffer has room for exactly one more
// payload, and answers synchronously: either a fresh outbound message payload
// addressed to the next round robin target, or a decline which leaves the
// source blocked until something external restarts production. With an empty
// target list nothing ever does, which is the expected idle mode of a flooder
// configured with zero targets.
type Source struct {
	c     *config.Config
	state *State

	// ordered, fixed at startup, duplicates permitted
	targets []uint16

	// index of next peer to send a message to
	next int

	// true iff we were asked for a payload and declined
	blocked bool
}

func NewSource(c *config.Config, state *State) *Source {
	s := &Source{
		c:       c,
		state:   state,
		targets: c.FloodTargets,
		next:    0,
		blocked: false,
	}

	return s
}

// invoked on arbiter goroutine
func (s *Source) TryProduce() ([]byte, bool) {
	if !s.state.Ready {
		err := fmt.Errorf("%s: source pulled while session not ready", s.c.LogPrefix)
		log.Printf("%s", err.Error())
		panic(err)
	}
	if s.blocked {
		err := fmt.Errorf("%s: source pulled while blocked", s.c.LogPrefix)
		log.Printf("%s", err.Error())
		panic(err)
	}

	if len(s.targets) == 0 {
		s.blocked = true
		return nil, false
	}

	peerID := s.targets[s.next]
	s.next = (s.next + 1) % len(s.targets)

	if s.c.LogDebug {
		log.Printf("%s: message to %d", s.c.LogPrefix, peerID)
	}

	s.blocked = false
	return m.BuildOutMsg(peerID), true
}

// invoked on arbiter goroutine
func (s *Source) Blocked() bool {
	return s.blocked
}
