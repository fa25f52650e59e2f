package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"mini-jsonrpc/message"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
// The encoder escapes control characters inside strings, so an encoded envelope
// never contains a raw newline and can be framed line by line.
type JSONCodec struct{}

func (JSONCodec) Name() string {
	return "json"
}

func (JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) DecodeRequest(data []byte) (*message.Request, error) {
	fields, err := decodeObject(data)
	if err != nil {
		return nil, err
	}

	var version string
	if raw, ok := fields["jsonrpc"]; !ok || json.Unmarshal(raw, &version) != nil || version != message.Version {
		return nil, message.NewInvalidRequest(`Invalid Request: jsonrpc must be "2.0"`)
	}
	raw, ok := fields["method"]
	if !ok {
		return nil, message.NewInvalidRequest("Invalid Request: missing method")
	}

	req := &message.Request{JSONRPC: message.Version}
	if json.Unmarshal(raw, &req.Method) != nil || isNull(raw) {
		return nil, message.NewInvalidRequest("Invalid Request: method must be a string")
	}
	if raw, ok := fields["id"]; ok {
		if err := json.Unmarshal(raw, &req.ID); err != nil {
			return nil, message.NewInvalidRequest("Invalid Request: " + err.Error())
		}
	}
	if raw, ok := fields["params"]; ok {
		if err := json.Unmarshal(raw, &req.Params); err != nil {
			return nil, message.NewInvalidRequest("Invalid Request: " + err.Error())
		}
	}
	return req, nil
}

func (JSONCodec) DecodeResponse(data []byte) (*message.Response, error) {
	fields, err := decodeObject(data)
	if err != nil {
		return nil, err
	}

	var resp message.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, message.NewInvalidRequest("invalid response: " + err.Error())
	}
	if resp.JSONRPC != message.Version {
		return nil, message.NewInvalidRequest(`invalid response: jsonrpc must be "2.0"`)
	}

	// Some peers send a null member next to the real one; treat it as absent.
	rawErr, hasError := fields["error"]
	hasError = hasError && !isNull(rawErr)
	rawResult, hasResult := fields["result"]
	hasResult = hasResult && !(hasError && isNull(rawResult))
	switch {
	case hasResult && hasError:
		return nil, message.NewInvalidRequest("invalid response: both result and error present")
	case !hasResult && !hasError:
		return nil, message.NewInvalidRequest("invalid response: neither result nor error present")
	case hasResult:
		// Keep the raw literal, including an explicit null.
		resp.Result = rawResult
	default:
		resp.Result = nil
	}
	return &resp, nil
}

// decodeObject checks the syntax layer first (valid JSON), then the top-level shape.
func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return nil, message.NewParseError("Parse error")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil || fields == nil {
		// Well-formed JSON, but not an envelope. Batches land here too.
		return nil, message.NewInvalidRequest(fmt.Sprintf("Invalid Request: expected a JSON object, got %s", describe(trimmed)))
	}
	return fields, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func describe(data []byte) string {
	if len(data) == 0 {
		return "nothing"
	}
	switch data[0] {
	case '[':
		return "an array"
	case '"':
		return "a string"
	case 'n':
		return "null"
	case 't', 'f':
		return "a boolean"
	default:
		return "a number"
	}
}
