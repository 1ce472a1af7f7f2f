package resp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// Encoder writes values and commands in wire format. Output is buffered
// until Flush
type Encoder struct {
	w       *bufio.Writer
	scratch []byte
}

// NewEncoder initializes an Encoder with a buffered writer
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Write encodes v. Simple strings and errors cannot carry CR or LF,
// and a value without a known type is rejected
func (e *Encoder) Write(v Value) error {
	e.scratch = appendValue(e.scratch[:0], v)
	if len(e.scratch) == 0 {
		return e.invalid(v)
	}
	if err := checkLines(v); err != nil {
		return err
	}

	_, err := e.w.Write(e.scratch)
	return err
}

// WriteCommand encodes a request the way a client sends it
func (e *Encoder) WriteCommand(name string, args ...string) error {
	e.scratch = AppendCommand(e.scratch[:0], name, args...)
	_, err := e.w.Write(e.scratch)
	return err
}

// Flush sends everything written so far to the underlying stream
func (e *Encoder) Flush() error {
	return e.w.Flush()
}

// Buffered returns the number of encoded bytes not flushed yet
func (e *Encoder) Buffered() int {
	return e.w.Buffered()
}

func (e *Encoder) invalid(v Value) error {
	t, _ := unknownType(v)
	return fmt.Errorf("resp: cannot encode %s", typeName(t))
}

// unknownType finds the first type byte in v that has no wire form
func unknownType(v Value) (byte, bool) {
	switch v.Type {
	case TypeInteger, TypeSimpleString, TypeError, TypeBulkString:
		return 0, false
	case TypeArray:
		for _, el := range v.Array {
			if t, ok := unknownType(el); ok {
				return t, true
			}
		}
		return 0, false
	}
	return v.Type, true
}

// appendValue appends the wire form of v to dst. An unknown type anywhere
// in v leaves dst as it was
func appendValue(dst []byte, v Value) []byte {
	start := len(dst)

	switch v.Type {
	case TypeInteger:
		dst = appendHeader(dst, TypeInteger, v.Integer)

	case TypeSimpleString, TypeError:
		dst = append(dst, v.Type)
		dst = append(dst, v.String...)
		dst = append(dst, '\r', '\n')

	case TypeBulkString:
		if v.IsNull {
			return append(dst, "$-1\r\n"...)
		}
		dst = appendHeader(dst, TypeBulkString, int64(len(v.String)))
		dst = append(dst, v.String...)
		dst = append(dst, '\r', '\n')

	case TypeArray:
		if v.IsNull {
			return append(dst, "*-1\r\n"...)
		}
		dst = appendHeader(dst, TypeArray, int64(len(v.Array)))
		for _, el := range v.Array {
			n := len(dst)
			if dst = appendValue(dst, el); len(dst) == n {
				return dst[:start]
			}
		}

	default:
		return dst
	}

	return dst
}

func appendHeader(dst []byte, prefix byte, n int64) []byte {
	dst = append(dst, prefix)
	dst = strconv.AppendInt(dst, n, 10)
	return append(dst, '\r', '\n')
}

// checkLines rejects line-based values that would break framing
func checkLines(v Value) error {
	switch v.Type {
	case TypeSimpleString, TypeError:
		if bytes.ContainsAny(v.String, "\r\n") {
			return fmt.Errorf("resp: %s cannot contain CR or LF", typeName(v.Type))
		}
	case TypeArray:
		for _, el := range v.Array {
			if err := checkLines(el); err != nil {
				return err
			}
		}
	}
	return nil
}
