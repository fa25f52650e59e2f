// Package message defines the JSON-RPC 2.0 envelopes exchanged between client and server.
//
// A Request is the "envelope" for every call. It gets serialized by the codec layer
// and wrapped in a protocol frame for transmission over TCP. The server answers with a
// Response carrying either a result or an Error, never both.
//
//	--> {"jsonrpc":"2.0","id":1,"method":"add","params":[2,3]}
//	<-- {"jsonrpc":"2.0","id":1,"result":5}
package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Version is the only protocol tag accepted in the "jsonrpc" member.
const Version = "2.0"

// ID is a request identifier. The zero value is the null id, which marks a
// notification: the server sends no method-level response for it.
type ID struct {
	value int64
	valid bool
}

// NullID is the absent/null identifier.
var NullID = ID{}

// NewID returns a non-null identifier.
func NewID(v int64) ID {
	return ID{value: v, valid: true}
}

// IsNull reports whether the id is absent or null.
func (id ID) IsNull() bool {
	return !id.valid
}

// Int64 returns the numeric value. It is 0 for the null id.
func (id ID) Int64() int64 {
	return id.value
}

func (id ID) String() string {
	if !id.valid {
		return "null"
	}
	return strconv.FormatInt(id.value, 10)
}

// MarshalJSON encodes the id as a JSON number or null.
func (id ID) MarshalJSON() ([]byte, error) {
	if !id.valid {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, id.value, 10), nil
}

// UnmarshalJSON accepts an integer or null. Numeric strings such as "5" are
// rejected: json.Number would otherwise accept them.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = NullID
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return fmt.Errorf("id must be an integer or null, got string %s", data)
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be an integer or null: %w", err)
	}
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("id must be an integer or null: %w", err)
	}
	*id = NewID(v)
	return nil
}

// Request carries a single call.
//
//   - ID is null for notifications.
//   - Params is either positional or named, see Params.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      ID     `json:"id"`
	Method  string `json:"method"`
	Params  Params `json:"params"`
}

// NewRequest builds a request with the protocol tag set.
func NewRequest(id ID, method string, params Params) *Request {
	return &Request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// IsNotification reports whether no response is expected.
func (r *Request) IsNotification() bool {
	return r.ID.IsNull()
}

// MarshalJSON omits the id of a notification and absent params.
func (r Request) MarshalJSON() ([]byte, error) {
	type wire struct {
		JSONRPC string  `json:"jsonrpc"`
		ID      *ID     `json:"id,omitempty"`
		Method  string  `json:"method"`
		Params  *Params `json:"params,omitempty"`
	}
	w := wire{JSONRPC: r.JSONRPC, Method: r.Method}
	if !r.ID.IsNull() {
		id := r.ID
		w.ID = &id
	}
	if r.Params.Shape() != ShapeNone {
		params := r.Params
		w.Params = &params
	}
	return json.Marshal(w)
}

// Response carries the outcome of a call. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResponse builds a success response. The result is marshaled eagerly so that
// an unrepresentable value surfaces here and not halfway through a write.
func NewResponse(id ID, result any) (*Response, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Result:  data,
	}, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id ID, err *Error) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error:   err,
	}
}

// MarshalJSON writes "result":null for a success response whose result is JSON null,
// which omitempty on a RawMessage would otherwise drop.
func (r Response) MarshalJSON() ([]byte, error) {
	type wire struct {
		JSONRPC string           `json:"jsonrpc"`
		ID      ID               `json:"id"`
		Result  *json.RawMessage `json:"result,omitempty"`
		Error   *Error           `json:"error,omitempty"`
	}
	w := wire{JSONRPC: r.JSONRPC, ID: r.ID, Error: r.Error}
	if r.Error == nil {
		result := r.Result
		if len(result) == 0 {
			result = json.RawMessage("null")
		}
		w.Result = &result
	}
	return json.Marshal(w)
}
