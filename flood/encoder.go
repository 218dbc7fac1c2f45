package flood

import (
	"encoding/binary"
	"fmt"
	"log"

	"github.com/Meander-Cloud/go-flood/config"
	m "github.com/Meander-Cloud/go-flood/message"
)

// PacketSource answers one payload per pull, or declines.
type PacketSource interface {
	TryProduce() ([]byte, bool)
}

// Encoder wraps each payload pulled from upstream in a length prefixed frame.
// One downstream pull performs exactly one upstream pull; a decline
// propagates without producing a frame. Stateless across calls, never holds
// more than the frame being built.
type Encoder struct {
	c      *config.Config
	source PacketSource
}

func NewEncoder(c *config.Config, source PacketSource) *Encoder {
	e := &Encoder{
		c:      c,
		source: source,
	}

	return e
}

// invoked on arbiter goroutine
func (e *Encoder) PullFrame() ([]byte, bool) {
	payload, ok := e.source.TryProduce()
	if !ok {
		return nil, false
	}

	payloadLen := len(payload)
	if payloadLen == 0 || payloadLen > int(m.MaxFramePayload) {
		err := fmt.Errorf("%s: upstream produced invalid payload of %d bytes", e.c.LogPrefix, payloadLen)
		log.Printf("%s", err.Error())
		panic(err)
	}

	frame := make([]byte, m.FrameHeaderLen+payloadLen)
	binary.LittleEndian.PutUint16(frame[0:m.FrameHeaderLen], uint16(payloadLen))
	copy(frame[m.FrameHeaderLen:], payload)

	return frame, true
}
