package protocol

import (
	"net"
	"sync/atomic"
	"time"

	m "github.com/Meander-Cloud/go-flood/message"
)

const (
	tcpWriteDeadline time.Duration = time.Second * 3
)

const (
	typicalBufferLen int = 1024 // 1 KB
)

type ConnVolatileData struct {
	// id assigned by the server, valid once session is ready
	AssignedID uint16
	Descriptor string
}

type ConnState struct {
	ConnID uint32
	Conn   net.Conn
	// callers can set pointers but must not modify pointed data, to allow concurrent immutable read
	Data  atomic.Pointer[ConnVolatileData]
	Ready atomic.Bool
}

// SessionHandler receives relay session lifecycle callbacks. All methods are
// invoked on the arbiter goroutine.
type SessionHandler interface {
	SessionReady(*Client, *ConnState, *m.ServerHello)
	SessionError(*Client, *ConnState)
	PeerJoined(*Client, *ConnState, *m.NewClient)
	PeerLeft(*Client, *ConnState, *m.EndClient)
	PeerMessage(*Client, *ConnState, *m.InMsg)
}
