package resp

import (
	"errors"
	"io"
)

const readChunk = 16 * 1024

// Decoder reads consecutive RESP values from a stream.
// It accumulates raw bytes and runs Parse over them, so a value split across
// several reads is decoded once its last byte arrives
type Decoder struct {
	rd    io.Reader
	buf   []byte
	chunk []byte
	err   error
}

// NewDecoder creates a Decoder on top of rd
func NewDecoder(rd io.Reader) *Decoder {
	return &Decoder{
		rd:    rd,
		chunk: make([]byte, readChunk),
	}
}

// Read returns the next complete value.
// io.EOF is returned only on a clean boundary; a stream cut in the middle of
// a value yields io.ErrUnexpectedEOF
func (d *Decoder) Read() (Value, error) {
	for {
		if len(d.buf) > 0 {
			val, n, err := Parse(d.buf)
			if err == nil {
				d.consume(n)
				return val, nil
			}
			if !errors.Is(err, ErrIncomplete) {
				return Value{}, err
			}
		}

		if d.err != nil {
			if d.err == io.EOF && len(d.buf) > 0 {
				return Value{}, io.ErrUnexpectedEOF
			}
			return Value{}, d.err
		}

		n, err := d.rd.Read(d.chunk)
		d.buf = append(d.buf, d.chunk[:n]...)
		if err != nil {
			d.err = err
		}
	}
}

// Buffered returns the number of received bytes not consumed by Read yet
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) consume(n int) {
	rest := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:rest]
}
