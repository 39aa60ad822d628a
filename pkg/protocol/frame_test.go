package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequest_HeaderLayout(t *testing.T) {
	id := CorrelationID{0x01, 0x02, 0x03, 0x04}
	data, err := EncodeRequestWithID(CmdTotalsGet, 7, id, []byte{0xAA, 0xBB})
	require.NoError(t, err)

	want := []byte{
		0xE4, 0xA5, 0x5A, 0xE2, // magic, little-endian
		0x40,       // TOTALS_GET
		0x07,       // address
		0x02, 0x00, // payload length
		0x01, 0x02, 0x03, 0x04, // correlation id
		0xAA, 0xBB,
	}
	assert.Equal(t, want, data)
}

func TestRequest_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		addr    Address
		payload []byte
	}{
		{"no payload bus", CmdLoginGetInfo, AddressBus, nil},
		{"module 1", CmdModuleCheck, 1, []byte{0x01}},
		{"max module", CmdModuleReset, MaxModuleAddress, []byte("reset")},
		{"broadcast", CmdBusStop, AddressBroadcast, nil},
		{"subscriber set", CmdSubscriberSet, 0, bytes.Repeat([]byte{0x5A}, SubscriberSetSize)},
		{"max payload", CmdLogoWrite, 3, bytes.Repeat([]byte{0xFF}, MaxPayloadSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, id, err := EncodeRequest(tt.cmd, tt.addr, tt.payload)
			require.NoError(t, err)
			require.Len(t, data, HeaderSize+len(tt.payload))

			h, err := DecodeRequestHeader(data)
			require.NoError(t, err)
			assert.Equal(t, tt.cmd, h.Command)
			assert.Equal(t, tt.addr, h.Address)
			assert.Equal(t, uint16(len(tt.payload)), h.Length)
			assert.Equal(t, id, h.Correlation)
			assert.Equal(t, len(tt.payload), len(data[HeaderSize:]))
			assert.True(t, bytes.Equal(tt.payload, data[HeaderSize:]) || len(tt.payload) == 0)
		})
	}
}

func TestEncodeRequest_FreshCorrelationIDs(t *testing.T) {
	seen := make(map[CorrelationID]bool)
	for i := 0; i < 64; i++ {
		_, id, err := EncodeRequest(CmdLogout, 0, nil)
		require.NoError(t, err)
		seen[id] = true
	}
	// 64 draws from 2^32 colliding more than once is practically impossible.
	assert.GreaterOrEqual(t, len(seen), 63)
}

func TestEncodeRequest_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		addr    Address
		payload []byte
		cause   error
	}{
		{"unknown command", Command(0x99), 0, nil, ErrUnknownCommand},
		{"address 33", CmdStatusGet, 33, nil, ErrBadAddress},
		{"address 128", CmdStatusGet, 128, nil, ErrBadAddress},
		{"address 254", CmdStatusGet, 254, nil, ErrBadAddress},
		{"oversized payload", CmdLogoWrite, 0, make([]byte, MaxPayloadSize+1), ErrPayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := EncodeRequest(tt.cmd, tt.addr, tt.payload)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.ErrorIs(t, err, tt.cause)
			assert.NotErrorIs(t, err, ErrTransport)
		})
	}
}

func TestAddress_Valid(t *testing.T) {
	for a := 0; a <= 255; a++ {
		want := a <= 32 || a == 255
		assert.Equal(t, want, Address(a).Valid(), "address %d", a)
	}
}

func TestParseCorrelationID(t *testing.T) {
	id, err := ParseCorrelationID([]byte{9, 8, 7, 6})
	require.NoError(t, err)
	assert.Equal(t, "09080706", id.String())

	_, err = ParseCorrelationID([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, ErrBadCorrelationID)
}

func replyHeader(magic uint32, cmd, status byte, length uint16, id CorrelationID) []byte {
	data := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(data[0:4], magic)
	data[4] = cmd
	data[5] = status
	binary.LittleEndian.PutUint16(data[6:8], length)
	copy(data[8:12], id[:])
	return data
}

func TestDecodeReplyHeader(t *testing.T) {
	id := CorrelationID{0xDE, 0xAD, 0xBE, 0xEF}

	t.Run("valid", func(t *testing.T) {
		data, err := EncodeReply(CmdTotalsGet, StatusBusy, id, []byte{1, 2, 3, 4})
		require.NoError(t, err)

		h, err := DecodeReplyHeader(data[:HeaderSize])
		require.NoError(t, err)
		assert.Equal(t, CmdTotalsGet, h.Command)
		assert.Equal(t, StatusBusy, h.Status)
		assert.Equal(t, uint16(4), h.Length)
		assert.Equal(t, id, h.Correlation)
	})

	tests := []struct {
		name  string
		data  []byte
		cause error
	}{
		{"bad magic", replyHeader(0xE25AA5E5, 0x40, 0, 0, id), ErrBadMagic},
		{"big-endian magic", replyHeader(0xE4A55AE2, 0x40, 0, 0, id), ErrBadMagic},
		{"zero magic", replyHeader(0, 0x40, 0, 0, id), ErrBadMagic},
		{"unknown status", replyHeader(Magic, 0x40, 3, 0, id), ErrUnknownStatus},
		{"unknown command", replyHeader(Magic, 0x99, 0, 0, id), ErrUnknownCommand},
		{"short", []byte{0xE4, 0xA5, 0x5A}, ErrShortHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeReplyHeader(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTransport)
			assert.ErrorIs(t, err, tt.cause)
		})
	}
}

func TestReplyHeader_Match(t *testing.T) {
	id := CorrelationID{1, 1, 1, 1}
	h := ReplyHeader{Command: CmdDataGet, Status: StatusOK, Correlation: id}

	assert.NoError(t, h.Match(CmdDataGet, id))

	err := h.Match(CmdDataSet, id)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, ErrCommandMismatch)

	err = h.Match(CmdDataGet, CorrelationID{1, 1, 1, 2})
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, ErrCorrelationMismatch)
}

func TestCommand_String(t *testing.T) {
	assert.Equal(t, "LOGIN_GETINFO", CmdLoginGetInfo.String())
	assert.Equal(t, "ETHERNET_ADD_STOP", CmdEthernetStop.String())
	assert.Equal(t, "UNKNOWN(0x99)", Command(0x99).String())
	assert.True(t, CmdAddModule.Known())
	assert.False(t, Command(0x25).Known())
}

func TestErrorKinds(t *testing.T) {
	busy := NewServerError("count", StatusBusy, ErrRejected)
	fail := NewServerError("count", StatusError, ErrRejected)

	assert.ErrorIs(t, busy, ErrBusy)
	assert.ErrorIs(t, busy, ErrServer)
	assert.NotErrorIs(t, fail, ErrBusy)
	assert.ErrorIs(t, fail, ErrServer)

	var pe *Error
	require.True(t, errors.As(busy, &pe))
	assert.True(t, pe.Temporary())
	require.True(t, errors.As(fail, &pe))
	assert.False(t, pe.Temporary())

	assert.Equal(t, KindAuth, KindOf(NewAuthError("login", ErrWrongPassword)))
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	assert.Contains(t, fail.Error(), "status ERROR")
	assert.NotErrorIs(t, NewTransportError("x", ErrPeerClosed), ErrServer)
}

func TestEncodeRequest_EntropyFailure(t *testing.T) {
	entropy := errors.New("entropy source unavailable")
	orig := randRead
	randRead = func([]byte) (int, error) { return 0, entropy }
	defer func() { randRead = orig }()

	_, _, err := EncodeRequest(CmdTotalsGet, AddressBus, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, entropy)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, "unknown", KindOf(err).String())
}
