package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

type lineReader struct {
	br  *bufio.Reader
	max int
}

func newLineReader(r io.Reader, maxSize int) *lineReader {
	return &lineReader{br: bufio.NewReader(r), max: maxSize}
}

// ReadMessage returns the next line without its terminator. Blank lines are
// skipped. A final line cut off by EOF is still delivered, so a peer that half-closes
// after writing an unterminated envelope is understood.
func (l *lineReader) ReadMessage() ([]byte, error) {
	for {
		line, err := l.readLine()
		if len(bytes.TrimSpace(line)) > 0 {
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			return bytes.TrimRight(line, "\r\n"), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (l *lineReader) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := l.br.ReadSlice('\n')
		if len(line)+len(chunk) > l.max+1 {
			return nil, ErrMessageTooLarge
		}
		line = append(line, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, err
	}
}
