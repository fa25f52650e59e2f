package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"mini-jsonrpc/message"
)

// Method is an invocable registered under a name.
type Method interface {
	Call(ctx context.Context, params message.Params) (any, error)
}

// MethodFunc adapts a plain function to Method.
type MethodFunc func(ctx context.Context, params message.Params) (any, error)

func (f MethodFunc) Call(ctx context.Context, params message.Params) (any, error) {
	return f(ctx, params)
}

// bindError marks a mismatch between the supplied params and the method's
// signature. The dispatcher maps it to -32602.
type bindError struct {
	msg string
}

func (e *bindError) Error() string {
	return e.msg
}

func bindErrorf(format string, args ...any) error {
	return &bindError{msg: fmt.Sprintf(format, args...)}
}

// IsBindError reports whether err came from parameter binding.
func IsBindError(err error) bool {
	var be *bindError
	return errors.As(err, &be)
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// funcMethod calls an arbitrary Go function through reflection.
type funcMethod struct {
	fn       reflect.Value
	typ      reflect.Type
	hasCtx   bool           // first argument is a context.Context
	argTypes []reflect.Type // excluding the context
	names    []string       // parameter names for named binding; may be empty
	hasValue bool           // returns a value besides an optional error
	hasErr   bool           // last return is an error
}

// NewFuncMethod wraps fn, which must be a function of the form
//
//	func([ctx context.Context,] args...) [T] [error]
//
// names, when given, must name every non-context argument in order and enable
// binding of named params.
func NewFuncMethod(fn any, names ...string) (Method, error) {
	val := reflect.ValueOf(fn)
	if !val.IsValid() || val.Kind() != reflect.Func || val.IsNil() {
		return nil, fmt.Errorf("rpc: method must be a non-nil func, got %T", fn)
	}
	typ := val.Type()

	m := &funcMethod{fn: val, typ: typ}

	first := 0
	if typ.NumIn() > 0 && typ.In(0) == contextType {
		m.hasCtx = true
		first = 1
	}
	for i := first; i < typ.NumIn(); i++ {
		m.argTypes = append(m.argTypes, typ.In(i))
	}

	switch typ.NumOut() {
	case 0:
	case 1:
		if typ.Out(0) == errorType {
			m.hasErr = true
		} else {
			m.hasValue = true
		}
	case 2:
		if typ.Out(1) != errorType {
			return nil, fmt.Errorf("rpc: second return value must be error, got %s", typ.Out(1))
		}
		m.hasValue, m.hasErr = true, true
	default:
		return nil, fmt.Errorf("rpc: method returns %d values, want at most 2", typ.NumOut())
	}

	if len(names) > 0 {
		if len(names) != len(m.argTypes) {
			return nil, fmt.Errorf("rpc: %d parameter names for %d arguments", len(names), len(m.argTypes))
		}
		seen := make(map[string]bool, len(names))
		for _, n := range names {
			if n == "" || seen[n] {
				return nil, fmt.Errorf("rpc: invalid or duplicate parameter name %q", n)
			}
			seen[n] = true
		}
		m.names = names
	}
	return m, nil
}

func (m *funcMethod) Call(ctx context.Context, params message.Params) (any, error) {
	args, err := m.bind(params)
	if err != nil {
		return nil, err
	}
	if m.hasCtx {
		args = append([]reflect.Value{reflect.ValueOf(ctx)}, args...)
	}

	var out []reflect.Value
	if m.typ.IsVariadic() && params.Shape() == message.ShapeNamed {
		// Named binding hands the variadic tail over as one slice.
		out = m.fn.CallSlice(args)
	} else {
		out = m.fn.Call(args)
	}

	var result any
	if m.hasValue {
		result = out[0].Interface()
	}
	if m.hasErr {
		if errVal := out[len(out)-1]; !errVal.IsNil() {
			return nil, errVal.Interface().(error)
		}
	}
	return result, nil
}

// bind decodes params into argument values.
func (m *funcMethod) bind(params message.Params) ([]reflect.Value, error) {
	switch params.Shape() {
	case message.ShapeNamed:
		return m.bindNamed(params.Named)
	default:
		return m.bindPositional(params.Positional)
	}
}

func (m *funcMethod) bindPositional(raw []json.RawMessage) ([]reflect.Value, error) {
	n := len(m.argTypes)
	variadic := m.typ.IsVariadic()
	switch {
	case variadic && len(raw) < n-1:
		return nil, bindErrorf("takes at least %d positional arguments but %d were given", n-1, len(raw))
	case !variadic && len(raw) != n:
		return nil, bindErrorf("takes %d positional arguments but %d were given", n, len(raw))
	}

	args := make([]reflect.Value, 0, len(raw))
	for i, r := range raw {
		t := m.argType(i)
		v, err := decodeArg(r, t)
		if err != nil {
			return nil, bindErrorf("argument %d: %v", i+1, err)
		}
		args = append(args, v)
	}
	return args, nil
}

// argType returns the type of positional argument i, unrolling a variadic tail.
func (m *funcMethod) argType(i int) reflect.Type {
	last := len(m.argTypes) - 1
	if m.typ.IsVariadic() && i >= last {
		return m.argTypes[last].Elem()
	}
	return m.argTypes[i]
}

func (m *funcMethod) bindNamed(raw map[string]json.RawMessage) ([]reflect.Value, error) {
	if len(m.names) == 0 {
		if len(raw) == 0 && len(m.argTypes) == 0 {
			return nil, nil
		}
		return nil, bindErrorf("does not accept named arguments")
	}
	for k := range raw {
		if !m.hasName(k) {
			return nil, bindErrorf("got an unexpected keyword argument %q", k)
		}
	}

	args := make([]reflect.Value, 0, len(m.names))
	for i, name := range m.names {
		r, ok := raw[name]
		if !ok {
			return nil, bindErrorf("missing required argument %q", name)
		}
		v, err := decodeArg(r, m.argTypes[i])
		if err != nil {
			return nil, bindErrorf("argument %q: %v", name, err)
		}
		args = append(args, v)
	}
	return args, nil
}

func (m *funcMethod) hasName(name string) bool {
	for _, n := range m.names {
		if n == name {
			return true
		}
	}
	return false
}

func decodeArg(raw json.RawMessage, t reflect.Type) (reflect.Value, error) {
	ptr := reflect.New(t)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

// methodRegistry maps method names to invocables. Lookups take a read lock so
// that registration after Serve stays safe.
type methodRegistry struct {
	mu      sync.RWMutex
	methods map[string]Method
}

func newMethodRegistry() *methodRegistry {
	return &methodRegistry{methods: make(map[string]Method)}
}

func (r *methodRegistry) add(name string, m Method) error {
	if name == "" {
		return errors.New("rpc: method name must not be empty")
	}
	if m == nil {
		return fmt.Errorf("rpc: method %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.methods[name]; dup {
		return fmt.Errorf("rpc: method already registered: %s", name)
	}
	r.methods[name] = m
	return nil
}

func (r *methodRegistry) lookup(name string) (Method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[name]
	return m, ok
}

func (r *methodRegistry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.methods))
	for n := range r.methods {
		names = append(names, n)
	}
	return names
}
