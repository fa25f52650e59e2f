// Package codec converts JSON-RPC envelopes to and from wire bytes.
//
// Decoding distinguishes two failures that map to distinct protocol codes:
//   - the payload is not JSON (or not a JSON object): -32700 parse error
//   - the payload is JSON but misses required members: -32600 invalid request
package codec

import (
	"mini-jsonrpc/message"
)

// Codec is the boundary between in-memory envelopes and framed bytes.
type Codec interface {
	Encode(v any) ([]byte, error)
	DecodeRequest(data []byte) (*message.Request, error)
	DecodeResponse(data []byte) (*message.Response, error)
	Name() string
}

// Default is the codec used when none is configured.
var Default Codec = JSONCodec{}
