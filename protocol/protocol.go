// Package protocol delimits one logical message within a TCP byte stream.
//
// Three framings are supported:
//
//   - Line (default): each envelope is followed by '\n'. Encoded envelopes never
//     contain a raw newline, so the terminator is unambiguous.
//   - Length: a fixed 8-byte header followed by a variable-length body. The receiver
//     reads the header first to determine the body length, then reads exactly that many bytes.
//   - Legacy: no delimiter at all. A message ends when a read returns fewer bytes than
//     the buffer size. This is what the original Python peers speak; it assumes a message
//     is flushed within a few socket reads and it cannot carry more than one message
//     per connection.
//
// Length frame format:
//
//	0      3  4         8
//	┌──────┬──┬─────────┬───────────────┐
//	│magic │v │ bodyLen │    body ...   │
//	│ jrp  │01│ uint32  │ bodyLen bytes │
//	└──────┴──┴─────────┴───────────────┘
package protocol

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Framing selects how messages are delimited.
type Framing byte

const (
	FramingLine   Framing = 0
	FramingLength Framing = 1
	FramingLegacy Framing = 2
)

// DefaultMaxMessageSize bounds a single message on every framing.
const DefaultMaxMessageSize = 1 << 20

// ErrMessageTooLarge is returned when a peer sends more than the configured maximum.
var ErrMessageTooLarge = errors.New("protocol: message too large")

// ParseFraming maps a configuration value to a Framing.
func ParseFraming(s string) (Framing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "line":
		return FramingLine, nil
	case "length":
		return FramingLength, nil
	case "legacy":
		return FramingLegacy, nil
	}
	return 0, fmt.Errorf("unknown framing %q", s)
}

func (f Framing) String() string {
	switch f {
	case FramingLine:
		return "line"
	case FramingLength:
		return "length"
	case FramingLegacy:
		return "legacy"
	}
	return fmt.Sprintf("framing(%d)", byte(f))
}

// MultiMessage reports whether several messages can share one connection.
func (f Framing) MultiMessage() bool {
	return f != FramingLegacy
}

// UnmarshalText lets a Framing be read straight from configuration files.
func (f *Framing) UnmarshalText(text []byte) error {
	v, err := ParseFraming(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func (f Framing) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Reader yields one message per call. It returns io.EOF when the peer closed the
// connection without sending anything, which callers treat as "no request".
type Reader interface {
	ReadMessage() ([]byte, error)
}

// NewReader wraps r with the reader for f. A Reader must be created once per
// connection and reused: it may buffer bytes that belong to the next message.
// maxSize <= 0 means DefaultMaxMessageSize.
func (f Framing) NewReader(r io.Reader, maxSize int) Reader {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	switch f {
	case FramingLength:
		return &lengthReader{r: r, max: maxSize}
	case FramingLegacy:
		return &shortReadReader{r: r, max: maxSize, bufSize: LegacyBufferSize}
	default:
		return newLineReader(r, maxSize)
	}
}

// WriteMessage writes body with the framing's delimiter. The whole message goes
// out in a single Write so that concurrent writers serialized by the caller never interleave.
func (f Framing) WriteMessage(w io.Writer, body []byte) error {
	var frame []byte
	switch f {
	case FramingLength:
		frame = appendHeader(make([]byte, 0, HeaderSize+len(body)), uint32(len(body)))
		frame = append(frame, body...)
	case FramingLegacy:
		frame = body
	default:
		frame = make([]byte, 0, len(body)+1)
		frame = append(frame, body...)
		frame = append(frame, '\n')
	}
	_, err := w.Write(frame)
	return err
}
