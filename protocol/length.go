package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic number bytes: "jrp" (JSON-RPC protocol).
// Used to quickly reject non-protocol connections on a length-framed port
// (e.g., HTTP clients hitting the wrong port).
const (
	MagicNumber byte = 0x6a // 'j'
	MagicByte2  byte = 0x72 // 'r'
	MagicByte3  byte = 0x70 // 'p'
	Version     byte = 0x01
	HeaderSize  int  = 8 // 3 (magic) + 1 (version) + 4 (bodyLen)
)

func appendHeader(buf []byte, bodyLen uint32) []byte {
	buf = append(buf, MagicNumber, MagicByte2, MagicByte3, Version)
	return binary.BigEndian.AppendUint32(buf, bodyLen)
}

type lengthReader struct {
	r   io.Reader
	max int
}

// ReadMessage reads a complete frame (header + body).
// Uses io.ReadFull to guarantee exactly N bytes are read, preventing partial reads.
func (l *lengthReader) ReadMessage() ([]byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(l.r, header); err != nil {
		// A clean EOF before the first header byte stays io.EOF.
		return nil, err
	}

	if header[0] != MagicNumber || header[1] != MagicByte2 || header[2] != MagicByte3 {
		return nil, fmt.Errorf("invalid magic number: %x", header[0:3])
	}
	if header[3] != Version {
		return nil, fmt.Errorf("unsupported version: %d", header[3])
	}

	bodyLen := binary.BigEndian.Uint32(header[4:8])
	if int64(bodyLen) > int64(l.max) {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(l.r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}
