package message

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutMsgLayout(t *testing.T) {
	payload := BuildOutMsg(0xABCD)

	require.Len(t, payload, OutMsgPayloadLen)
	require.Equal(t, TypeOutMsg, payload[0])
	require.Equal(t, uint16(0xABCD), binary.LittleEndian.Uint16(payload[TypeLen:TypeLen+OutMsgHeaderLen]))

	// body must be zero filled, nothing may leak through
	for i := TypeLen + OutMsgHeaderLen; i < OutMsgPayloadLen; i++ {
		require.Zero(t, payload[i], "body byte %d", i)
	}
}

func TestOutMsgFresh(t *testing.T) {
	p1 := BuildOutMsg(1)
	p2 := BuildOutMsg(1)

	// each production is a fresh buffer, never reused
	p1[TypeLen+OutMsgHeaderLen] = 0xFF
	require.Zero(t, p2[TypeLen+OutMsgHeaderLen])
}

func TestOutMsgPayloadFitsFrame(t *testing.T) {
	require.Equal(t, TypeLen+OutMsgHeaderLen+MaxMsgLen, OutMsgPayloadLen)
	require.LessOrEqual(t, OutMsgPayloadLen, int(MaxFramePayload))
}
