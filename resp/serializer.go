package resp

import (
	"strconv"
)

// AppendCommand appends the request "name args..." to dst as a RESP array of
// bulk strings and returns the extended slice
func AppendCommand(dst []byte, name string, args ...string) []byte {
	dst = append(dst, TypeArray)
	dst = strconv.AppendInt(dst, int64(len(args)+1), 10)
	dst = append(dst, '\r', '\n')

	dst = appendBulk(dst, name)
	for _, arg := range args {
		dst = appendBulk(dst, arg)
	}

	return dst
}

// SerializeCommand returns a standalone encoding of one command
func SerializeCommand(name string, args ...string) []byte {
	return AppendCommand(nil, name, args...)
}

func appendBulk(dst []byte, s string) []byte {
	dst = append(dst, TypeBulkString)
	dst = strconv.AppendInt(dst, int64(len(s)), 10)
	dst = append(dst, '\r', '\n')
	dst = append(dst, s...)
	return append(dst, '\r', '\n')
}
