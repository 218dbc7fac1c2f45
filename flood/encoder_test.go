package flood

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	m "github.com/Meander-Cloud/go-flood/message"
)

type fakePacketSource struct {
	payloads [][]byte
	pulls    int
}

func (s *fakePacketSource) TryProduce() ([]byte, bool) {
	s.pulls++
	if len(s.payloads) == 0 {
		return nil, false
	}
	payload := s.payloads[0]
	s.payloads = s.payloads[1:]
	return payload, true
}

func TestEncoderFramesPayload(t *testing.T) {
	payload := m.BuildOutMsg(17)
	source := &fakePacketSource{payloads: [][]byte{payload}}
	e := NewEncoder(testConfig(nil), source)

	frame, ok := e.PullFrame()
	require.True(t, ok)
	require.Len(t, frame, m.FrameHeaderLen+len(payload))
	require.Equal(t, uint16(len(payload)), binary.LittleEndian.Uint16(frame[0:m.FrameHeaderLen]))
	require.Equal(t, payload, frame[m.FrameHeaderLen:])
}

func TestEncoderPropagatesDecline(t *testing.T) {
	source := &fakePacketSource{}
	e := NewEncoder(testConfig(nil), source)

	frame, ok := e.PullFrame()
	require.False(t, ok)
	require.Nil(t, frame)
	require.Equal(t, 1, source.pulls)
}

func TestEncoderOnePullPerPull(t *testing.T) {
	source := &fakePacketSource{payloads: [][]byte{
		m.BuildOutMsg(1),
		m.BuildOutMsg(2),
	}}
	e := NewEncoder(testConfig(nil), source)

	_, ok := e.PullFrame()
	require.True(t, ok)
	require.Equal(t, 1, source.pulls)

	_, ok = e.PullFrame()
	require.True(t, ok)
	require.Equal(t, 2, source.pulls)
}

func TestEncoderInvalidPayloadPanics(t *testing.T) {
	source := &fakePacketSource{payloads: [][]byte{{}}}
	e := NewEncoder(testConfig(nil), source)

	require.Panics(t, func() {
		e.PullFrame()
	})
}
