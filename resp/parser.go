package resp

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrIncomplete means the buffer does not hold a complete value yet.
	// It is not a failure: append more bytes and parse again
	ErrIncomplete = errors.New("resp: incomplete data")

	// ErrInvalid is matched by every *InvalidError
	ErrInvalid = errors.New("resp: invalid data")
)

const (
	maxBulkLength = 512 * 1024 * 1024 // 512 MiB, same as the server side limit
	maxPrealloc   = 1024
)

var crlf = []byte("\r\n")

// InvalidError reports malformed input at a byte offset of the parsed buffer
type InvalidError struct {
	Pos    int
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("resp: invalid data at position %d: %s", e.Pos, e.Reason)
}

// Is makes errors.Is(err, ErrInvalid) true for any InvalidError
func (e *InvalidError) Is(target error) bool {
	return target == ErrInvalid
}

// frame is an array still collecting its elements
type frame struct {
	items []Value
	want  int
}

// Parse decodes the first complete top-level value of buf and returns it
// together with the number of bytes it occupies.
// buf is never modified. On ErrIncomplete nothing is consumed, so the caller
// keeps the buffer, appends the next chunk and calls Parse again from the start.
// Bulk strings longer than 512 MiB are invalid. Array lengths are not limited;
// elements are only allocated as they arrive
func Parse(buf []byte) (Value, int, error) {
	var stack []frame
	pos := 0

	for {
		if pos >= len(buf) {
			return Value{}, 0, ErrIncomplete
		}

		idx := bytes.Index(buf[pos:], crlf)
		if idx < 0 {
			return Value{}, 0, ErrIncomplete
		}
		end := pos + idx

		kind := buf[pos]
		line := buf[pos+1 : end]
		next := end + 2

		var val Value
		open := false

		switch kind {
		case TypeSimpleString, TypeError:
			val = Value{Type: kind, String: clone(line)}

		case TypeInteger:
			n, err := strconv.ParseInt(string(line), 10, 64)
			if err != nil {
				return Value{}, 0, &InvalidError{Pos: pos + 1, Reason: "bad integer"}
			}
			val = MakeInteger(n)

		case TypeBulkString:
			n, err := parseLength(line, maxBulkLength)
			if err != nil {
				return Value{}, 0, &InvalidError{Pos: pos + 1, Reason: "bad bulk string length"}
			}
			if n == -1 {
				val = MakeNilBulkString()
				break
			}
			stop := next + n
			if stop+2 > len(buf) {
				return Value{}, 0, ErrIncomplete
			}
			if buf[stop] != '\r' || buf[stop+1] != '\n' {
				return Value{}, 0, &InvalidError{Pos: stop, Reason: "bulk string not terminated by CRLF"}
			}
			val = Value{Type: TypeBulkString, String: clone(buf[next:stop])}
			next = stop + 2

		case TypeArray:
			n, err := parseLength(line, math.MaxInt)
			if err != nil {
				return Value{}, 0, &InvalidError{Pos: pos + 1, Reason: "bad array length"}
			}
			switch n {
			case -1:
				val = MakeNilArray()
			case 0:
				val = MakeArray(nil)
			default:
				stack = append(stack, frame{items: make([]Value, 0, min(n, maxPrealloc)), want: n})
				open = true
			}

		default:
			return Value{}, 0, &InvalidError{Pos: pos, Reason: fmt.Sprintf("unknown type byte %q", kind)}
		}

		pos = next
		if open {
			continue
		}

		// fold the finished value into the arrays waiting for it
		for {
			if len(stack) == 0 {
				return val, pos, nil
			}
			top := &stack[len(stack)-1]
			top.items = append(top.items, val)
			if len(top.items) < top.want {
				break
			}
			val = MakeArray(top.items)
			stack = stack[:len(stack)-1]
		}
	}
}

// parseLength accepts -1 (null) or a length in [0, limit]
func parseLength(line []byte, limit int) (int, error) {
	n, err := strconv.Atoi(string(line))
	if err != nil {
		return 0, err
	}
	if n < -1 || n > limit {
		return 0, fmt.Errorf("length %d out of range", n)
	}
	return n, nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
