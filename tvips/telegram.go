package tvips

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/snksoft/crc"
)

// messages are encoded as [STX][MESSAGE][ETX].
// the message is formatted as
// [OPCODE] [STATUS] [0..n data bytes] [CRC]
// any STX, ETX, or DLE byte inside the message is escaped as described in
// sanitize().  Image pixel data is not carried inside telegrams; frame
// opcodes are answered by a telegram bearing the frame geometry, with the
// raw pixel stream following on the wire.

const (
	// telStart is the start of telegram byte
	telStart = 0x02

	// telEnd is the end of telegram byte
	telEnd = 0x03

	// escapeChar marks an escaped byte inside a telegram
	escapeChar = 0x10

	// escapeShift is the amount escaped bytes are shifted up.
	// escapable bytes max out at 0x10, so we will never overflow
	escapeShift = 0x40
)

// opcodes understood by the camera head
const (
	OpIdentify    = 0x01
	OpState       = 0x02
	OpInitialize  = 0x03
	OpStartLive   = 0x10
	OpStopLive    = 0x11
	OpLiveFrame   = 0x12
	OpAcquire     = 0x13
	OpGetExposure = 0x20
	OpSetExposure = 0x21
	OpTemperature = 0x22
	OpResolution  = 0x23
)

// status codes returned by the camera head
const (
	StatusOK       = 0x00
	StatusBusy     = 0x01
	StatusFault    = 0x02
	StatusBadOp    = 0x03
	StatusCRCError = 0x04
)

var (
	// escapable is the byte slice of values that must be escaped inside messages
	escapable = []byte{telStart, telEnd, escapeChar}

	crcTable = crc.NewTable(crc.XMODEM)

	// ErrTelegramIncomplete is generated when a byte stream does not hold a
	// full [STX]...[ETX] sequence
	ErrTelegramIncomplete = errors.New("tvips: telegram start or end byte not found")

	// ErrCRCMismatch is generated when the CRC of a received telegram does
	// not match its contents
	ErrCRCMismatch = errors.New("tvips: CRC mismatch, data lost in transmission")
)

// MessagePrimitive is a struct holding the raw pieces of a message before
// framing, escaping, and CRC
type MessagePrimitive struct {
	Op     byte
	Status byte
	Data   []byte
}

func crcHelper(buf []byte) []byte {
	c := crcTable.CalculateCRC(buf)
	return []byte{byte(c >> 8), byte(c & 0xFF)}
}

// sanitize escapes framing bytes inside a message.  Escaped bytes become
// [DLE][b+0x40]
func sanitize(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		if bytes.IndexByte(escapable, b) >= 0 {
			out = append(out, escapeChar, b+escapeShift)
		} else {
			out = append(out, b)
		}
	}
	return out
}

// reverseSanitize undoes sanitize
func reverseSanitize(data []byte) []byte {
	out := make([]byte, 0, len(data))
	subNext := false
	for _, b := range data {
		if b == escapeChar {
			// substitution marker, do nothing with this byte
			// and shift the next one down
			subNext = true
			continue
		}
		if subNext {
			b = b - escapeShift
			subNext = false
		}
		out = append(out, b)
	}
	return out
}

// MakeTelegram produces a wire-ready telegram from the constituent pieces:
// the body is assembled, its CRC-16 (CCITT/XMODEM) appended, the whole
// escaped, and the framing bytes added
func MakeTelegram(mp MessagePrimitive) []byte {
	body := append([]byte{mp.Op, mp.Status}, mp.Data...)
	body = append(body, crcHelper(body)...)
	body = sanitize(body)
	out := make([]byte, 0, len(body)+2)
	out = append(out, telStart)
	out = append(out, body...)
	out = append(out, telEnd)
	return out
}

// DecodeTelegram renders a raw byte stream into a MessagePrimitive
func DecodeTelegram(tele []byte) (MessagePrimitive, error) {
	iStart := bytes.IndexByte(tele, telStart)
	if iStart < 0 {
		return MessagePrimitive{}, ErrTelegramIncomplete
	}
	// ETX cannot occur inside an escaped body, so the first one terminates
	rest := tele[iStart+1:]
	iEnd := bytes.IndexByte(rest, telEnd)
	if iEnd < 0 {
		return MessagePrimitive{}, ErrTelegramIncomplete
	}
	body := reverseSanitize(rest[:iEnd])
	if len(body) < 4 { // op + status + 2 CRC bytes
		return MessagePrimitive{}, fmt.Errorf("tvips: telegram body too short (%d bytes)", len(body))
	}
	fidx := len(body) - 2
	crcRecv := body[fidx:]
	body = body[:fidx]
	if !bytes.Equal(crcRecv, crcHelper(body)) {
		return MessagePrimitive{}, ErrCRCMismatch
	}
	return MessagePrimitive{
		Op:     body[0],
		Status: body[1],
		Data:   body[2:],
	}, nil
}
