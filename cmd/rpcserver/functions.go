package main

import (
	"errors"
	"fmt"

	"mini-jsonrpc/server"
)

var errDivisionByZero = errors.New("division by zero")

func hello() string {
	return "Hello, World!"
}

func greet(name string) string {
	return fmt.Sprintf("Hello, %s!", name)
}

func add(a, b float64) float64 { return a + b }
func sub(a, b float64) float64 { return a - b }
func mul(a, b float64) float64 { return a * b }

func div(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errDivisionByZero
	}
	return a / b, nil
}

// registerFunctions exposes the demo functions. The arithmetic ones accept
// named params a and b.
func registerFunctions(s *server.Server) error {
	type entry struct {
		name  string
		fn    any
		names []string
	}
	for _, e := range []entry{
		{"hello", hello, nil},
		{"greet", greet, []string{"name"}},
		{"add", add, []string{"a", "b"}},
		{"sub", sub, []string{"a", "b"}},
		{"mul", mul, []string{"a", "b"}},
		{"div", div, []string{"a", "b"}},
	} {
		if err := s.Register(e.name, e.fn, e.names...); err != nil {
			return err
		}
	}
	return nil
}
