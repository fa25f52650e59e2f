package message

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRequestEncoding(t *testing.T) {
	params, err := PositionalParams(2, 3)
	if err != nil {
		t.Fatal(err)
	}
	req := NewRequest(NewID(1), "add", params)

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	want := `{"jsonrpc":"2.0","id":1,"method":"add","params":[2,3]}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
}

func TestNotificationOmitsID(t *testing.T) {
	req := NewRequest(NullID, "log", Params{})

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `"id"`) {
		t.Fatalf("notification must not carry an id: %s", data)
	}
	if strings.Contains(string(data), `"params"`) {
		t.Fatalf("absent params must be omitted: %s", data)
	}

	var back Request
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.IsNotification() {
		t.Fatal("expect decoded request to be a notification")
	}
}

func TestIDNull(t *testing.T) {
	var id ID
	if err := json.Unmarshal([]byte("null"), &id); err != nil {
		t.Fatal(err)
	}
	if !id.IsNull() {
		t.Fatal("expect null id")
	}

	if err := json.Unmarshal([]byte("42"), &id); err != nil {
		t.Fatal(err)
	}
	if id.IsNull() || id.Int64() != 42 {
		t.Fatalf("expect 42, got %v", id)
	}

	if err := json.Unmarshal([]byte(`"abc"`), &id); err == nil {
		t.Fatal("expect error for string id")
	}
	if err := json.Unmarshal([]byte(`"5"`), &id); err == nil {
		t.Fatalf("expect error for numeric string id, got %v", id)
	}
	if err := json.Unmarshal([]byte(`1.5`), &id); err == nil {
		t.Fatal("expect error for fractional id")
	}
}

func TestResponseNullResult(t *testing.T) {
	resp, err := NewResponse(NewID(7), nil)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"jsonrpc":"2.0","id":7,"result":null}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
}

func TestErrorResponseCarriesNullID(t *testing.T) {
	resp := NewErrorResponse(NullID, NewParseError("Parse error"))
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
}

func TestParamsShape(t *testing.T) {
	cases := []struct {
		in    string
		shape ParamsShape
		n     int
	}{
		{`[1,"a",true]`, ShapePositional, 3},
		{`[]`, ShapePositional, 0},
		{`{"a":1,"b":2}`, ShapeNamed, 2},
		{`null`, ShapeNone, 0},
	}

	for _, tc := range cases {
		var p Params
		if err := json.Unmarshal([]byte(tc.in), &p); err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if p.Shape() != tc.shape {
			t.Errorf("%s: expect shape %d, got %d", tc.in, tc.shape, p.Shape())
		}
		if p.Len() != tc.n {
			t.Errorf("%s: expect %d params, got %d", tc.in, tc.n, p.Len())
		}
	}

	var p Params
	if err := json.Unmarshal([]byte(`"scalar"`), &p); err == nil {
		t.Fatal("expect error for scalar params")
	}
}

func TestErrorKinds(t *testing.T) {
	cases := []struct {
		err  *Error
		kind Kind
		is   error
	}{
		{NewParseError("x"), KindParse, ErrParse},
		{NewInvalidRequest("x"), KindInvalidRequest, ErrInvalidRequest},
		{NewMethodNotFound("x"), KindMethodNotFound, ErrMethodNotFound},
		{NewInvalidParams("x"), KindInvalidParams, ErrInvalidParams},
		{NewServerError("x"), KindServer, ErrServer},
		{&Error{Code: CodeInternalError}, KindServer, ErrServer},
		{&Error{Code: -32099}, KindServer, ErrServer},
		{&Error{Code: 7}, KindServer, ErrServer},
	}

	for _, tc := range cases {
		if tc.err.Kind() != tc.kind {
			t.Errorf("code %d: expect kind %v, got %v", tc.err.Code, tc.kind, tc.err.Kind())
		}
		if !errors.Is(tc.err, tc.is) {
			t.Errorf("code %d: expect errors.Is(%v)", tc.err.Code, tc.is)
		}
	}

	if errors.Is(NewMethodNotFound("x"), ErrInvalidParams) {
		t.Fatal("different kinds must not match")
	}
}
