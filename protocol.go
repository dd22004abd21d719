package vaporlight

// This file contains the low level vaporlight protocol (llvp) codec.  Clients
// send a continuous stream of opcode+payload records, every opcode has a
// fixed payload length and there is no other framing.  Decoding and encoding
// are exact inverses of each other for every message kind.

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"
)

const (
	// OpSetLED sets a single LED with 8 bit per channel RGBA values
	OpSetLED byte = 0x01
	// OpAuth carries the 16 byte token secret used to authenticate a session
	OpAuth byte = 0x02
	// OpSetLEDHi sets a single LED with 16 bit per channel RGBA values
	OpSetLEDHi byte = 0x03
	// OpStrobe triggers the transient flash effect on the senders overlay
	OpStrobe byte = 0xFF
)

// payloadLen returns the fixed payload length for an opcode.  The second
// result is false for opcodes that are not part of the protocol.
func payloadLen(op byte) (n int, known bool) {
	switch op {
	case OpSetLED:
		return 6, true
	case OpAuth:
		return TokenLen, true
	case OpSetLEDHi:
		return 10, true
	case OpStrobe:
		return 0, true
	}
	return 0, false
}

// Message is implemented by every protocol message kind.  The set of
// implementations is closed, sealed by the unexported payload method, so
// that dispatch sites switching on the concrete type cover every opcode.
type Message interface {
	Opcode() byte

	// appendPayload appends the wire payload for this message to buf
	appendPayload(buf []byte) []byte
}

// AuthMsg authenticates the sending session with a token secret
type AuthMsg struct {
	Secret TokenSecret
}

func (AuthMsg) Opcode() byte { return OpAuth }

func (m AuthMsg) appendPayload(buf []byte) []byte {
	return append(buf, m.Secret[:]...)
}

// SetLEDMsg carries an 8 bit per channel color for one logical LED.  The
// color is held normalized, see Color, which is lossless in both directions
// for 8 bit wire values.
type SetLEDMsg struct {
	LED   uint16
	Color Color
}

func (SetLEDMsg) Opcode() byte { return OpSetLED }

func (m SetLEDMsg) appendPayload(buf []byte) []byte {
	r, g, b, a := m.Color.RGBA8()
	buf = binary.BigEndian.AppendUint16(buf, m.LED)
	return append(buf, r, g, b, a)
}

// SetLEDHiMsg carries a 16 bit per channel color for one logical LED
type SetLEDHiMsg struct {
	LED   uint16
	Color Color
}

func (SetLEDHiMsg) Opcode() byte { return OpSetLEDHi }

func (m SetLEDHiMsg) appendPayload(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, m.LED)
	buf = binary.BigEndian.AppendUint16(buf, m.Color.R)
	buf = binary.BigEndian.AppendUint16(buf, m.Color.G)
	buf = binary.BigEndian.AppendUint16(buf, m.Color.B)
	return binary.BigEndian.AppendUint16(buf, m.Color.A)
}

// StrobeMsg triggers the flash effect, it has no payload
type StrobeMsg struct{}

func (StrobeMsg) Opcode() byte { return OpStrobe }

func (StrobeMsg) appendPayload(buf []byte) []byte { return buf }

// Decode turns an opcode and its payload into a message.  Any error it
// returns is a protocol violation, unknown opcode or a payload whose length
// is not exactly the opcodes fixed length, and the connection that produced
// the bytes must be closed by the caller.
func Decode(op byte, payload []byte) (msg Message, err errors.Error) {
	want, known := payloadLen(op)
	if !known {
		return nil, errors.New("protocol violation unknown opcode").
			With("opcode", fmt.Sprintf("%#02x", op)).
			With("stack", stack.Trace().TrimRuntime())
	}
	if len(payload) != want {
		return nil, errors.New("protocol violation bad payload length").
			With("opcode", fmt.Sprintf("%#02x", op)).
			With("expected", want).With("actual", len(payload)).
			With("stack", stack.Trace().TrimRuntime())
	}

	switch op {
	case OpAuth:
		auth := AuthMsg{}
		copy(auth.Secret[:], payload)
		return auth, nil
	case OpSetLED:
		return SetLEDMsg{
			LED:   binary.BigEndian.Uint16(payload[0:2]),
			Color: ColorFrom8(payload[2], payload[3], payload[4], payload[5]),
		}, nil
	case OpSetLEDHi:
		return SetLEDHiMsg{
			LED: binary.BigEndian.Uint16(payload[0:2]),
			Color: Color{
				R: binary.BigEndian.Uint16(payload[2:4]),
				G: binary.BigEndian.Uint16(payload[4:6]),
				B: binary.BigEndian.Uint16(payload[6:8]),
				A: binary.BigEndian.Uint16(payload[8:10]),
			},
		}, nil
	case OpStrobe:
		return StrobeMsg{}, nil
	}
	// payloadLen and this switch cover the same opcodes
	panic("unreachable")
}

// Encode produces the wire bytes for a message, opcode first then the
// fixed length payload
func Encode(msg Message) (buf []byte) {
	n, _ := payloadLen(msg.Opcode())
	buf = make([]byte, 1, 1+n)
	buf[0] = msg.Opcode()
	return msg.appendPayload(buf)
}

// ReadMessage reads exactly one message from the stream.  It blocks only at
// the transport boundary, never mid message once the payload length is
// known.  io.EOF is passed through untouched so callers can distinguish a
// clean disconnect from a protocol violation.
func ReadMessage(r io.Reader) (msg Message, err error) {
	var op [1]byte
	if _, errGo := io.ReadFull(r, op[:]); errGo != nil {
		return nil, errGo
	}

	want, known := payloadLen(op[0])
	if !known {
		return nil, errors.New("protocol violation unknown opcode").
			With("opcode", fmt.Sprintf("%#02x", op[0])).
			With("stack", stack.Trace().TrimRuntime())
	}

	payload := make([]byte, want)
	if _, errGo := io.ReadFull(r, payload); errGo != nil {
		// A stream that ends inside a payload is malformed, not a
		// clean close
		return nil, errors.Wrap(errGo).
			With("opcode", fmt.Sprintf("%#02x", op[0])).
			With("stack", stack.Trace().TrimRuntime())
	}

	return Decode(op[0], payload)
}
