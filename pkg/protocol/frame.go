package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// CorrelationID is the random per-request token echoed by the head-end
type CorrelationID [CorrelationSize]byte

func (c CorrelationID) String() string {
	return hex.EncodeToString(c[:])
}

// randRead is the entropy source for correlation ids. Replaced in tests.
var randRead = rand.Read

// NewCorrelationID draws a fresh id from crypto/rand
func NewCorrelationID() (CorrelationID, error) {
	var id CorrelationID
	if _, err := randRead(id[:]); err != nil {
		return id, fmt.Errorf("failed to generate correlation id: %w", err)
	}
	return id, nil
}

// ParseCorrelationID converts raw bytes into a CorrelationID
func ParseCorrelationID(b []byte) (CorrelationID, error) {
	var id CorrelationID
	if len(b) != CorrelationSize {
		return id, validationError("parse correlation id",
			fmt.Errorf("%w: %d bytes (expected %d)", ErrBadCorrelationID, len(b), CorrelationSize))
	}
	copy(id[:], b)
	return id, nil
}

// RequestHeader is the fixed 12-byte header of a request frame
type RequestHeader struct {
	Command     Command
	Address     Address
	Length      uint16
	Correlation CorrelationID
}

// ReplyHeader is the fixed 12-byte header of a reply frame
type ReplyHeader struct {
	Command     Command
	Status      ReplyStatus
	Length      uint16
	Correlation CorrelationID
}

// EncodeRequest builds a complete request frame with a fresh correlation id.
// An entropy failure is returned as is: it is neither bad input nor I/O.
func EncodeRequest(cmd Command, addr Address, payload []byte) ([]byte, CorrelationID, error) {
	id, err := NewCorrelationID()
	if err != nil {
		return nil, id, err
	}
	frame, err := EncodeRequestWithID(cmd, addr, id, payload)
	return frame, id, err
}

// EncodeRequestWithID builds a request frame using the given correlation id
func EncodeRequestWithID(cmd Command, addr Address, id CorrelationID, payload []byte) ([]byte, error) {
	if !cmd.Known() {
		return nil, validationError("encode request", fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, uint8(cmd)))
	}
	if !addr.Valid() {
		return nil, validationError("encode request", fmt.Errorf("%w: %d", ErrBadAddress, addr))
	}
	if len(payload) > MaxPayloadSize {
		return nil, validationError("encode request",
			fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize))
	}

	data := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(data[HeaderOffsetMagic:], Magic)
	data[HeaderOffsetCommand] = byte(cmd)
	data[HeaderOffsetAddress] = byte(addr)
	binary.LittleEndian.PutUint16(data[HeaderOffsetLength:], uint16(len(payload)))
	copy(data[HeaderOffsetCorrelation:HeaderSize], id[:])
	copy(data[HeaderSize:], payload)
	return data, nil
}

// DecodeRequestHeader parses the leading 12 bytes of a request frame
func DecodeRequestHeader(data []byte) (RequestHeader, error) {
	var h RequestHeader
	if err := checkHeader("decode request header", data); err != nil {
		return h, err
	}

	h.Command = Command(data[HeaderOffsetCommand])
	h.Address = Address(data[HeaderOffsetAddress])
	h.Length = binary.LittleEndian.Uint16(data[HeaderOffsetLength:])
	copy(h.Correlation[:], data[HeaderOffsetCorrelation:HeaderSize])

	if !h.Command.Known() {
		return h, NewTransportError("decode request header",
			fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, uint8(h.Command)))
	}
	if !h.Address.Valid() {
		return h, NewTransportError("decode request header", fmt.Errorf("%w: %d", ErrBadAddress, h.Address))
	}
	return h, nil
}

// EncodeReply builds a complete reply frame
func EncodeReply(cmd Command, status ReplyStatus, id CorrelationID, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, validationError("encode reply",
			fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize))
	}

	data := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(data[HeaderOffsetMagic:], Magic)
	data[HeaderOffsetCommand] = byte(cmd)
	data[HeaderOffsetStatus] = byte(status)
	binary.LittleEndian.PutUint16(data[HeaderOffsetLength:], uint16(len(payload)))
	copy(data[HeaderOffsetCorrelation:HeaderSize], id[:])
	copy(data[HeaderSize:], payload)
	return data, nil
}

// DecodeReplyHeader parses the leading 12 bytes of a reply frame. A foreign
// magic, an unknown status or an unknown command are distinct transport errors.
func DecodeReplyHeader(data []byte) (ReplyHeader, error) {
	var h ReplyHeader
	if err := checkHeader("decode reply header", data); err != nil {
		return h, err
	}

	h.Command = Command(data[HeaderOffsetCommand])
	h.Status = ReplyStatus(data[HeaderOffsetStatus])
	h.Length = binary.LittleEndian.Uint16(data[HeaderOffsetLength:])
	copy(h.Correlation[:], data[HeaderOffsetCorrelation:HeaderSize])

	if !h.Status.Known() {
		return h, NewTransportError("decode reply header", fmt.Errorf("%w: %d", ErrUnknownStatus, uint8(h.Status)))
	}
	if !h.Command.Known() {
		return h, NewTransportError("decode reply header",
			fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, uint8(h.Command)))
	}
	return h, nil
}

// Match verifies that the reply answers the given request
func (h ReplyHeader) Match(cmd Command, id CorrelationID) error {
	if h.Command != cmd {
		return NewTransportError("match reply",
			fmt.Errorf("%w: got %s, sent %s", ErrCommandMismatch, h.Command, cmd))
	}
	if h.Correlation != id {
		return NewTransportError("match reply",
			fmt.Errorf("%w: got %s, sent %s", ErrCorrelationMismatch, h.Correlation, id))
	}
	return nil
}

func checkHeader(op string, data []byte) error {
	if len(data) < HeaderSize {
		return NewTransportError(op, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(data)))
	}
	if magic := binary.LittleEndian.Uint32(data[HeaderOffsetMagic:]); magic != Magic {
		return NewTransportError(op, fmt.Errorf("%w: 0x%08X", ErrBadMagic, magic))
	}
	return nil
}
