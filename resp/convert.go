package resp

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrNil is returned by accessors for a null reply (and by numeric
	// accessors for an empty string)
	ErrNil = errors.New("resp: nil reply")

	// ErrUnexpectedType means the reply type cannot be converted as asked
	ErrUnexpectedType = errors.New("resp: unexpected reply type")
)

// ServerError is an error reply sent by the server
type ServerError struct {
	Msg string
}

func (e *ServerError) Error() string {
	return e.Msg
}

// Prefix returns the first word of the message, e.g. "ERR" or "WRONGTYPE"
func (e *ServerError) Prefix() string {
	for i := 0; i < len(e.Msg); i++ {
		if e.Msg[i] == ' ' {
			return e.Msg[:i]
		}
	}
	return e.Msg
}

// Err returns a *ServerError for error replies and nil otherwise
func (v Value) Err() error {
	if v.Type != TypeError {
		return nil
	}
	msg := string(v.String)
	if msg == "" {
		msg = "error response"
	}
	return &ServerError{Msg: msg}
}

func (v Value) mismatch(want string) error {
	return fmt.Errorf("%w: %s, want %s", ErrUnexpectedType, typeName(v.Type), want)
}

// Bool converts an integer reply, non-zero is true
func (v Value) Bool() (bool, error) {
	if err := v.Err(); err != nil {
		return false, err
	}
	if v.Type != TypeInteger {
		return false, v.mismatch("integer")
	}
	return v.Integer != 0, nil
}

// Int converts an integer reply or a numeric string
func (v Value) Int() (int64, error) {
	if err := v.Err(); err != nil {
		return 0, err
	}
	switch {
	case v.Type == TypeInteger:
		return v.Integer, nil
	case v.IsString():
		if v.IsNull || len(v.String) == 0 {
			return 0, ErrNil
		}
		n, err := strconv.ParseInt(string(v.String), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("resp: failed to convert %q to int: %w", v.String, err)
		}
		return n, nil
	}
	return 0, v.mismatch("integer")
}

// Uint is Int restricted to non-negative values
func (v Value) Uint() (uint64, error) {
	n, err := v.Int()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("resp: negative value %d for uint", n)
	}
	return uint64(n), nil
}

// Float converts an integer reply or a numeric string
func (v Value) Float() (float64, error) {
	if err := v.Err(); err != nil {
		return 0, err
	}
	switch {
	case v.Type == TypeInteger:
		return float64(v.Integer), nil
	case v.IsString():
		if v.IsNull || len(v.String) == 0 {
			return 0, ErrNil
		}
		f, err := strconv.ParseFloat(string(v.String), 64)
		if err != nil {
			return 0, fmt.Errorf("resp: failed to convert %q to float: %w", v.String, err)
		}
		return f, nil
	}
	return 0, v.mismatch("number")
}

// Str converts a simple or bulk string reply
func (v Value) Str() (string, error) {
	if err := v.Err(); err != nil {
		return "", err
	}
	if !v.IsString() {
		return "", v.mismatch("string")
	}
	if v.IsNull {
		return "", ErrNil
	}
	return string(v.String), nil
}

// Items returns the elements of an array reply
func (v Value) Items() ([]Value, error) {
	if err := v.Err(); err != nil {
		return nil, err
	}
	if v.Type != TypeArray {
		return nil, v.mismatch("array")
	}
	if v.IsNull {
		return nil, ErrNil
	}
	return v.Array, nil
}

// Strings converts an array reply whose elements are all non-null strings
func (v Value) Strings() ([]string, error) {
	items, err := v.Items()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, item := range items {
		if !item.IsString() || item.IsNull {
			return nil, fmt.Errorf("%w: array member %d is %s", ErrUnexpectedType, i, typeName(item.Type))
		}
		out[i] = string(item.String)
	}
	return out, nil
}

// StringMap converts a flat [k1, v1, k2, v2...] array reply
func (v Value) StringMap() (map[string]string, error) {
	items, err := v.Strings()
	if err != nil {
		return nil, err
	}
	if len(items)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of elements (%d) for a map", ErrUnexpectedType, len(items))
	}
	out := make(map[string]string, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		out[items[i]] = items[i+1]
	}
	return out, nil
}

func typeName(t byte) string {
	switch t {
	case TypeSimpleString:
		return "simple string"
	case TypeError:
		return "error"
	case TypeInteger:
		return "integer"
	case TypeBulkString:
		return "bulk string"
	case TypeArray:
		return "array"
	}
	return fmt.Sprintf("type %q", t)
}
