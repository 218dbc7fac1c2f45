package protocol

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Meander-Cloud/go-transport/tcp"

	"github.com/Meander-Cloud/go-flood/arbiter"
	"github.com/Meander-Cloud/go-flood/config"
	m "github.com/Meander-Cloud/go-flood/message"
)

const testWait = time.Second * 5

type recordingHandler struct {
	readych chan *m.ServerHello
	errch   chan struct{}
	joinch  chan *m.NewClient
	leftch  chan *m.EndClient
	msgch   chan *m.InMsg
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		readych: make(chan *m.ServerHello, 8),
		errch:   make(chan struct{}, 8),
		joinch:  make(chan *m.NewClient, 8),
		leftch:  make(chan *m.EndClient, 8),
		msgch:   make(chan *m.InMsg, 8),
	}
}

func (h *recordingHandler) SessionReady(p *Client, connState *ConnState, hello *m.ServerHello) {
	h.readych <- hello
}

func (h *recordingHandler) SessionError(p *Client, connState *ConnState) {
	h.errch <- struct{}{}
}

func (h *recordingHandler) PeerJoined(p *Client, connState *ConnState, newClient *m.NewClient) {
	h.joinch <- newClient
}

func (h *recordingHandler) PeerLeft(p *Client, connState *ConnState, endClient *m.EndClient) {
	h.leftch <- endClient
}

func (h *recordingHandler) PeerMessage(p *Client, connState *ConnState, inMsg *m.InMsg) {
	h.msgch <- inMsg
}

func newTestClient(t *testing.T) (*Client, *recordingHandler, net.Conn) {
	t.Helper()

	c := &config.Config{
		LogPrefix: "test",
	}
	a := arbiter.NewArbiter(c)
	t.Cleanup(func() {
		a.Shutdown() // wait
	})

	h := newRecordingHandler()
	p, err := NewClient(
		&ClientOptions{
			Options: &tcp.Options{
				Address:   "pipe",
				LogPrefix: "test",
			},
			Arbiter:        a,
			SessionHandler: h,
		},
	)
	require.NoError(t, err)

	clientConn, serverConn := net.Pipe()
	go p.ReadLoop(clientConn)
	t.Cleanup(func() {
		serverConn.Close()
	})

	return p, h, serverConn
}

func readFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(testWait))
	header := make([]byte, m.FrameHeaderLen)
	_, err := io.ReadFull(conn, header)
	require.NoError(t, err)
	payload := make([]byte, binary.LittleEndian.Uint16(header))
	_, err = io.ReadFull(conn, payload)
	require.NoError(t, err)
	return payload
}

func writeFrame(t *testing.T, conn net.Conn, msgType byte, body any) {
	t.Helper()
	encoded, err := msgpack.Marshal(body)
	require.NoError(t, err)
	frame := make([]byte, m.FrameHeaderLen+m.TypeLen+len(encoded))
	binary.LittleEndian.PutUint16(frame[0:m.FrameHeaderLen], uint16(m.TypeLen+len(encoded)))
	frame[m.FrameHeaderLen] = msgType
	copy(frame[m.FrameHeaderLen+m.TypeLen:], encoded)
	conn.SetWriteDeadline(time.Now().Add(testWait))
	_, err = conn.Write(frame)
	require.NoError(t, err)
}

func awaitReady(t *testing.T, h *recordingHandler, serverConn net.Conn, id uint16) {
	t.Helper()

	// client initiates with a hello carrying its protocol version
	payload := readFrame(t, serverConn)
	require.Equal(t, m.TypeClientHello, payload[0])
	helloOut := new(m.ClientHello)
	require.NoError(t, msgpack.Unmarshal(payload[m.TypeLen:], helloOut))
	require.Equal(t, m.ProtocolVersion, helloOut.Version)

	writeFrame(t, serverConn, m.TypeServerHello, &m.ServerHello{ID: id})

	select {
	case hello := <-h.readych:
		require.Equal(t, id, hello.ID)
	case <-time.After(testWait):
		t.Fatal("timed out waiting for session ready")
	}
}

func TestClientSessionLifecycle(t *testing.T) {
	p, h, serverConn := newTestClient(t)

	awaitReady(t, h, serverConn, 42)
	require.True(t, p.CheckConnection())

	writeFrame(t, serverConn, m.TypeNewClient, &m.NewClient{ID: 9, Flags: 1})
	select {
	case newClient := <-h.joinch:
		require.Equal(t, uint16(9), newClient.ID)
	case <-time.After(testWait):
		t.Fatal("timed out waiting for peer joined")
	}

	writeFrame(t, serverConn, m.TypeInMsg, &m.InMsg{ID: 9, Data: []byte{0xAA}})
	select {
	case inMsg := <-h.msgch:
		require.Equal(t, uint16(9), inMsg.ID)
		require.Equal(t, []byte{0xAA}, inMsg.Data)
	case <-time.After(testWait):
		t.Fatal("timed out waiting for peer message")
	}

	writeFrame(t, serverConn, m.TypeEndClient, &m.EndClient{ID: 9})
	select {
	case endClient := <-h.leftch:
		require.Equal(t, uint16(9), endClient.ID)
	case <-time.After(testWait):
		t.Fatal("timed out waiting for peer left")
	}

	// server dropping the connection is a session error
	serverConn.Close()
	select {
	case <-h.errch:
	case <-time.After(testWait):
		t.Fatal("timed out waiting for session error")
	}
	require.False(t, p.CheckConnection())
}

func TestClientWriteFrameSync(t *testing.T) {
	p, h, serverConn := newTestClient(t)

	awaitReady(t, h, serverConn, 7)

	connState, err := p.GetConnection()
	require.NoError(t, err)

	payload := m.BuildOutMsg(3)
	frame := make([]byte, m.FrameHeaderLen+len(payload))
	binary.LittleEndian.PutUint16(frame[0:m.FrameHeaderLen], uint16(len(payload)))
	copy(frame[m.FrameHeaderLen:], payload)

	writeDone := make(chan error, 1)
	err = p.options.Arbiter.Dispatch(func() {
		writeDone <- p.WriteFrameSync(connState, frame)
	})
	require.NoError(t, err)

	received := readFrame(t, serverConn)
	require.Equal(t, payload, received)

	select {
	case err := <-writeDone:
		require.NoError(t, err)
	case <-time.After(testWait):
		t.Fatal("timed out waiting for frame write")
	}
}

func TestClientRejectsOversizedFrame(t *testing.T) {
	_, h, serverConn := newTestClient(t)

	awaitReady(t, h, serverConn, 1)

	header := make([]byte, m.FrameHeaderLen)
	binary.LittleEndian.PutUint16(header, m.MaxFramePayload+1)
	serverConn.SetWriteDeadline(time.Now().Add(testWait))
	_, err := serverConn.Write(header)
	require.NoError(t, err)

	select {
	case <-h.errch:
	case <-time.After(testWait):
		t.Fatal("timed out waiting for session error")
	}
}

func TestClientRejectsDuplicateServerHello(t *testing.T) {
	_, h, serverConn := newTestClient(t)

	awaitReady(t, h, serverConn, 1)

	writeFrame(t, serverConn, m.TypeServerHello, &m.ServerHello{ID: 2})
	select {
	case <-h.errch:
	case <-time.After(testWait):
		t.Fatal("timed out waiting for session error")
	}
	require.Empty(t, h.readych)
}

func TestClientRejectsEventsBeforeHello(t *testing.T) {
	_, h, serverConn := newTestClient(t)

	// consume the client hello, then misbehave
	payload := readFrame(t, serverConn)
	require.Equal(t, m.TypeClientHello, payload[0])

	writeFrame(t, serverConn, m.TypeNewClient, &m.NewClient{ID: 5})
	select {
	case <-h.errch:
	case <-time.After(testWait):
		t.Fatal("timed out waiting for session error")
	}
	require.Empty(t, h.joinch)
}
