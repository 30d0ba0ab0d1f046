package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeHeader(t *testing.T) {
	b := Encode(TypePosition, 5, EncodePosition(Position{PlayerID: 101, X: 1, Y: 2}))
	require.Len(t, b, PositionDatagramSize)
	require.Equal(t, []byte{3, 0, 0, 0, 5, 0, 0, 0}, b[:HeaderSize])

	h, payload, err := DecodeHeader(b)
	require.NoError(t, err)
	require.Equal(t, Header{Type: TypePosition, ID: 5}, h)

	pos, err := DecodePosition(payload)
	require.NoError(t, err)
	require.Equal(t, Position{PlayerID: 101, X: 1, Y: 2}, pos)
}

func TestDecodeHeaderShortPacket(t *testing.T) {
	for n := 0; n < HeaderSize; n++ {
		_, _, err := DecodeHeader(make([]byte, n))
		require.ErrorIs(t, err, ErrShortPacket, "len %d", n)
	}
	_, payload, err := DecodeHeader(make([]byte, HeaderSize))
	require.NoError(t, err)
	require.Empty(t, payload)
}

func TestWelcomeLayout(t *testing.T) {
	require.Equal(t, []byte{101, 0, 0, 0}, EncodeWelcome(101))
	id, err := DecodeWelcome([]byte{0x39, 0x30, 0, 0})
	require.NoError(t, err)
	require.Equal(t, uint32(12345), id)
}

func TestDecodeAck(t *testing.T) {
	a, err := DecodeAck(EncodeAck(Ack{Type: TypeWelcome, ID: 7}))
	require.NoError(t, err)
	require.Equal(t, Ack{Type: TypeWelcome, ID: 7}, a)

	_, err = DecodeAck([]byte{1, 0, 0, 0})
	require.ErrorIs(t, err, ErrShortPayload)

	// trailing bytes are tolerated
	a, err = DecodeAck(append(EncodeAck(Ack{Type: TypeMelee, ID: 9}), 0xff, 0xff))
	require.NoError(t, err)
	require.Equal(t, uint32(9), a.ID)
}

func TestPositionSizeMismatch(t *testing.T) {
	_, err := DecodePosition(make([]byte, 11))
	require.ErrorIs(t, err, ErrPayloadSize)
	_, err = DecodePosition(make([]byte, 13))
	require.ErrorIs(t, err, ErrPayloadSize)
}

func TestMeleeEncodingIsAsymmetric(t *testing.T) {
	req := EncodeMeleeRequest(42)
	require.Len(t, req, 12)
	require.Len(t, Encode(TypeMelee, 1, req), MeleeDatagramSize)
	id, err := DecodeMeleeRequest(req)
	require.NoError(t, err)
	require.Equal(t, uint32(42), id)

	out := EncodeMeleeBroadcast(Melee{PlayerID: 42, CanAttack: 1})
	require.Equal(t, []byte{42, 0, 0, 0, 0x00, 0x00, 0x80, 0x3f}, out)
	m, err := DecodeMeleeBroadcast(out)
	require.NoError(t, err)
	require.Equal(t, Melee{PlayerID: 42, CanAttack: 1}, m)
}

func TestTypeString(t *testing.T) {
	require.Equal(t, "JOIN", TypeJoin.String())
	require.Equal(t, "MELEE", TypeMelee.String())
	require.Equal(t, "UNKNOWN(9)", Type(9).String())
}
