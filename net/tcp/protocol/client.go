package protocol

import (
	"bytes"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Meander-Cloud/go-transport/tcp"

	"github.com/Meander-Cloud/go-flood/arbiter"
	m "github.com/Meander-Cloud/go-flood/message"
)

type ClientOptions struct {
	*tcp.Options
	Arbiter *arbiter.Arbiter
	SessionHandler

	// optional, connection runs in plaintext when nil
	TlsConfig *tls.Config
}

type Client struct {
	options           *ClientOptions
	defaultDescriptor string
	inShutdown        atomic.Bool

	// if increment overflow will wrap to zero
	connIDGen atomic.Uint32

	mutex     sync.Mutex
	connState *ConnState // current active tcp connection, if any
}

func NewClient(options *ClientOptions) (*Client, error) {
	if options.Arbiter == nil {
		err := fmt.Errorf("%s: nil Arbiter", options.LogPrefix)
		log.Printf("%s", err.Error())
		return nil, err
	}

	if options.SessionHandler == nil {
		err := fmt.Errorf("%s: nil SessionHandler", options.LogPrefix)
		log.Printf("%s", err.Error())
		return nil, err
	}

	p := &Client{
		options: options,
		defaultDescriptor: fmt.Sprintf(
			"<%s>",
			options.Address,
		),
		inShutdown: atomic.Bool{},

		connIDGen: atomic.Uint32{},

		mutex:     sync.Mutex{},
		connState: nil,
	}

	return p, nil
}

func (p *Client) Options() *ClientOptions {
	return p.options
}

func (p *Client) Close() {
	log.Printf("%s: %s: protocol closing", p.options.LogPrefix, p.defaultDescriptor)
	p.inShutdown.Store(true)

	func() {
		p.mutex.Lock()
		defer p.mutex.Unlock()

		if p.connState == nil {
			log.Printf("%s: %s: no active connection", p.options.LogPrefix, p.defaultDescriptor)
			return
		}

		p.connState.Conn.Close()
	}()

	log.Printf("%s: %s: protocol closed", p.options.LogPrefix, p.defaultDescriptor)
}

func (p *Client) ReadLoop(rawConn net.Conn) {
	network := rawConn.RemoteAddr().Network()

	conn := rawConn
	if p.options.TlsConfig != nil {
		tlsConn := tls.Client(rawConn, p.options.TlsConfig)
		err := tlsConn.Handshake()
		if err != nil {
			log.Printf("%s: %s: tls handshake failed, err=%s", p.options.LogPrefix, p.defaultDescriptor, err.Error())
			rawConn.Close()
			p.dispatchError(nil)
			return
		}
		conn = tlsConn
	}

	connState := &ConnState{
		ConnID: p.getNextConnID(),
		Conn:   conn,
		Data:   atomic.Pointer[ConnVolatileData]{},
		Ready:  atomic.Bool{},
	}
	cvd := &ConnVolatileData{
		// to be assigned by server during initial protocol
		AssignedID: 0,

		Descriptor: fmt.Sprintf(
			"[%d]<%s>",
			connState.ConnID,
			rawConn.RemoteAddr().String(),
		),
	}
	connState.Data.Store(cvd)

	helloReceived := false

	log.Printf("%s: %s: new %s connection", p.options.LogPrefix, cvd.Descriptor, network)

	defer func() {
		log.Printf("%s: %s: closing %s connection", p.options.LogPrefix, cvd.Descriptor, network)
		connState.Ready.Store(false)

		selfInShutdown := p.inShutdown.Load()

		if !selfInShutdown {
			p.dispatchError(connState)
		}

		func() {
			p.mutex.Lock()
			defer p.mutex.Unlock()

			if p.connState == nil {
				log.Printf("%s: %s: no connection cached, state corrupt", p.options.LogPrefix, cvd.Descriptor)
				return
			}

			if connState.ConnID != p.connState.ConnID {
				log.Printf("%s: %s: connID mismatch stack<%d>:cached<%d>, state corrupt", p.options.LogPrefix, cvd.Descriptor, connState.ConnID, p.connState.ConnID)
				return
			}

			p.connState = nil
		}()

		conn.Close()
		log.Printf("%s: %s: %s connection closed, selfInShutdown=%t", p.options.LogPrefix, cvd.Descriptor, network, selfInShutdown)
	}()

	func() {
		p.mutex.Lock()
		defer p.mutex.Unlock()

		if p.connState != nil {
			log.Printf("%s: %s: overriding stale connection %s", p.options.LogPrefix, cvd.Descriptor, p.connState.Data.Load().Descriptor)
		}
		p.connState = connState
	}()

	// initiate client hello
	err := p.options.Arbiter.Dispatch(
		func() {
			// invoked on arbiter goroutine
			writeWireMessage(
				p.options.LogPrefix,
				connState,
				m.TypeClientHello,
				&m.ClientHello{
					Version: m.ProtocolVersion,
				},
			)
		},
	)
	if err != nil {
		return
	}

	handlePayload := func(payload []byte) error {
		msgType := payload[0]
		body := payload[1:]

		switch msgType {
		case m.TypeKeepalive:
			if p.options.LogDebug {
				log.Printf("%s: %s: keepalive", p.options.LogPrefix, cvd.Descriptor)
			}
			return nil
		case m.TypeServerHello:
			if helloReceived {
				err := fmt.Errorf("%s: %s: duplicate server hello", p.options.LogPrefix, cvd.Descriptor)
				log.Printf("%s", err.Error())
				return err
			}

			hello := new(m.ServerHello)
			err := msgpack.Unmarshal(body, hello)
			if err != nil {
				log.Printf("%s: %s: failed to unmarshal server hello %X, err=%s", p.options.LogPrefix, cvd.Descriptor, body, err.Error())
				return err
			}

			// update volatile data
			cvd = &ConnVolatileData{
				AssignedID: hello.ID,
				Descriptor: fmt.Sprintf(
					"[%d]id-%d<%s>",
					connState.ConnID,
					hello.ID,
					rawConn.RemoteAddr().String(),
				),
			}
			connState.Data.Store(cvd) // atomic

			helloReceived = true

			scopedDescriptor := cvd.Descriptor
			return p.options.Arbiter.Dispatch(
				func() {
					// invoked on arbiter goroutine
					connState.Ready.Store(true)
					log.Printf("%s: %s: connection now ready", p.options.LogPrefix, scopedDescriptor)

					p.options.SessionReady(p, connState, hello)
				},
			)
		case m.TypeNewClient:
			if !helloReceived {
				err := fmt.Errorf("%s: %s: new client before server hello", p.options.LogPrefix, cvd.Descriptor)
				log.Printf("%s", err.Error())
				return err
			}

			newClient := new(m.NewClient)
			err := msgpack.Unmarshal(body, newClient)
			if err != nil {
				log.Printf("%s: %s: failed to unmarshal new client %X, err=%s", p.options.LogPrefix, cvd.Descriptor, body, err.Error())
				return err
			}

			return p.options.Arbiter.Dispatch(
				func() {
					// invoked on arbiter goroutine
					p.options.PeerJoined(p, connState, newClient)
				},
			)
		case m.TypeEndClient:
			if !helloReceived {
				err := fmt.Errorf("%s: %s: end client before server hello", p.options.LogPrefix, cvd.Descriptor)
				log.Printf("%s", err.Error())
				return err
			}

			endClient := new(m.EndClient)
			err := msgpack.Unmarshal(body, endClient)
			if err != nil {
				log.Printf("%s: %s: failed to unmarshal end client %X, err=%s", p.options.LogPrefix, cvd.Descriptor, body, err.Error())
				return err
			}

			return p.options.Arbiter.Dispatch(
				func() {
					// invoked on arbiter goroutine
					p.options.PeerLeft(p, connState, endClient)
				},
			)
		case m.TypeInMsg:
			if !helloReceived {
				err := fmt.Errorf("%s: %s: inbound message before server hello", p.options.LogPrefix, cvd.Descriptor)
				log.Printf("%s", err.Error())
				return err
			}

			inMsg := new(m.InMsg)
			err := msgpack.Unmarshal(body, inMsg)
			if err != nil {
				log.Printf("%s: %s: failed to unmarshal inbound message %X, err=%s", p.options.LogPrefix, cvd.Descriptor, body, err.Error())
				return err
			}

			if len(inMsg.Data) > m.MaxMsgLen {
				err := fmt.Errorf("%s: %s: inbound message of %d bytes exceeds maximum of %d", p.options.LogPrefix, cvd.Descriptor, len(inMsg.Data), m.MaxMsgLen)
				log.Printf("%s", err.Error())
				return err
			}

			return p.options.Arbiter.Dispatch(
				func() {
					// invoked on arbiter goroutine
					p.options.PeerMessage(p, connState, inMsg)
				},
			)
		default:
			err := fmt.Errorf("%s: %s: unsupported message type %#02x", p.options.LogPrefix, cvd.Descriptor, msgType)
			log.Printf("%s", err.Error())
			return err
		}
	}

	for {
		// frame header: payload length of type uint16, little endian byte order
		buf1 := make([]byte, m.FrameHeaderLen)
		if p.options.LogDebug {
			log.Printf("%s: %s: reading header bytes", p.options.LogPrefix, cvd.Descriptor)
		}
		n1, err := io.ReadFull(conn, buf1)
		if err != nil {
			log.Printf("%s: %s: failed to read header bytes, err=%s", p.options.LogPrefix, cvd.Descriptor, err.Error())
			return
		}

		payloadLen := binary.LittleEndian.Uint16(buf1)
		if payloadLen == 0 {
			log.Printf("%s: %s: empty payload in header bytes %X", p.options.LogPrefix, cvd.Descriptor, buf1[:n1])
			return
		}
		if payloadLen > m.MaxFramePayload {
			log.Printf("%s: %s: payloadLen=%d in header bytes %X is too large", p.options.LogPrefix, cvd.Descriptor, payloadLen, buf1[:n1])
			return
		}

		buf2 := make([]byte, payloadLen)
		n2, err := io.ReadFull(conn, buf2)
		if err != nil {
			log.Printf("%s: %s: failed to read payload bytes, err=%s", p.options.LogPrefix, cvd.Descriptor, err.Error())
			return
		}
		if p.options.LogDebug {
			log.Printf("%s: %s: read %d payload bytes", p.options.LogPrefix, cvd.Descriptor, n2)
		}

		err = handlePayload(buf2)
		if err != nil {
			return
		}
	}
}

// connState may be nil when the failure precedes connection registration
func (p *Client) dispatchError(connState *ConnState) {
	p.options.Arbiter.Dispatch(
		func() {
			// invoked on arbiter goroutine
			p.options.SessionError(p, connState)
		},
	)
}

// invoked on ReadLoop goroutine
func (p *Client) getNextConnID() uint32 {
	return p.connIDGen.Add(1)
}

// invoked on any goroutine
func (p *Client) CheckConnection() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.connState == nil {
		return false
	}

	return p.connState.Ready.Load()
}

// invoked on any goroutine
func (p *Client) GetConnection() (*ConnState, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.connState == nil {
		err := fmt.Errorf("%s: %s: no active connection", p.options.LogPrefix, p.defaultDescriptor)
		log.Printf("%s", err.Error())
		return nil, err
	}
	if !p.connState.Ready.Load() {
		err := fmt.Errorf("%s: %s: connection not ready", p.options.LogPrefix, p.connState.Data.Load().Descriptor)
		log.Printf("%s", err.Error())
		return nil, err
	}

	return p.connState, nil
}

// caller must be on arbiter goroutine; frame must already carry its length
// prefix, it is handed to the connection in a single write
func (p *Client) WriteFrameSync(connState *ConnState, frame []byte) error {
	descriptor := connState.Data.Load().Descriptor

	connState.Conn.SetWriteDeadline(time.Now().UTC().Add(tcpWriteDeadline))
	n, err := connState.Conn.Write(frame)
	if err != nil {
		log.Printf("%s: %s: failed to write %d bytes, err=%s", p.options.LogPrefix, descriptor, len(frame), err.Error())
		return err
	}
	if p.options.LogDebug {
		log.Printf("%s: %s: wrote %d bytes, header %X", p.options.LogPrefix, descriptor, n, frame[0:m.FrameHeaderLen])
	}

	return nil
}

// invoked on arbiter goroutine
func writeWireMessage[M any](logPrefix string, connState *ConnState, msgType byte, messageStruct *M) error {
	descriptor := connState.Data.Load().Descriptor

	buffer := new(bytes.Buffer)
	buffer.Grow(typicalBufferLen)

	// placeholder for frame length prefix of type uint16, little endian byte order
	buffer.WriteByte(0x00)
	buffer.WriteByte(0x00)

	// payload: message type tag followed by msgpack body
	buffer.WriteByte(msgType)

	err := msgpack.NewEncoder(buffer).Encode(messageStruct)
	if err != nil {
		log.Printf("%s: %s: msgpack failed to encode messageStruct=%+v, err=%s", logPrefix, descriptor, messageStruct, err.Error())
		return err
	}

	buf := buffer.Bytes()
	// do not access buffer beyond this point

	bufLen := len(buf)
	payloadLen := bufLen - m.FrameHeaderLen
	if payloadLen <= 0 || payloadLen > int(m.MaxFramePayload) {
		err = fmt.Errorf("%s: %s: invalid written buf=%X", logPrefix, descriptor, buf)
		log.Printf("%s", err.Error())
		return err
	}

	// update frame length placeholder
	binary.LittleEndian.PutUint16(buf[0:m.FrameHeaderLen], uint16(payloadLen))

	connState.Conn.SetWriteDeadline(time.Now().UTC().Add(tcpWriteDeadline))
	n, err := connState.Conn.Write(buf)
	if err != nil {
		log.Printf("%s: %s: failed to write %d bytes %X, err=%s", logPrefix, descriptor, bufLen, buf, err.Error())
		return err
	}
	log.Printf("%s: %s: wrote %d bytes, type %#02x", logPrefix, descriptor, n, msgType)

	return nil
}
