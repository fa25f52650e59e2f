package protocol

import (
	"errors"
	"io"
)

// LegacyBufferSize is the receive buffer of the original peers. A read shorter
// than this ends the message.
const LegacyBufferSize = 4096

type shortReadReader struct {
	r       io.Reader
	max     int
	bufSize int
}

func (s *shortReadReader) ReadMessage() ([]byte, error) {
	var msg []byte
	buf := make([]byte, s.bufSize)
	for {
		n, err := s.r.Read(buf)
		msg = append(msg, buf[:n]...)
		if len(msg) > s.max {
			return nil, ErrMessageTooLarge
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(msg) > 0 {
				return msg, nil
			}
			return nil, err
		}
		if n < len(buf) {
			if n == 0 {
				continue
			}
			return msg, nil
		}
	}
}
