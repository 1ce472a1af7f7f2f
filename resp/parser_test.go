package resp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Value
	}{
		{"Simple string", "+OK\r\n", MakeSimpleString("OK")},
		{"Error", "-ERR unknown command\r\n", MakeError("ERR unknown command")},
		{"Integer", ":4\r\n", MakeInteger(4)},
		{"Negative integer", ":-100\r\n", MakeInteger(-100)},
		{"Bulk string", "$5\r\nhello\r\n", MakeBulkString("hello")},
		{"Bulk string with CRLF inside", "$4\r\na\r\nb\r\n", MakeBulkString("a\r\nb")},
		{"Empty bulk string", "$0\r\n\r\n", MakeBulkString("")},
		{"Null bulk string", "$-1\r\n", MakeNilBulkString()},
		{"Empty array", "*0\r\n", MakeArray(nil)},
		{"Null array", "*-1\r\n", MakeNilArray()},
		{"Flat array", "*2\r\n$3\r\nfoo\r\n:7\r\n", MakeArray([]Value{MakeBulkString("foo"), MakeInteger(7)})},
		{
			"Pub/sub frame",
			"*3\r\n$7\r\nmessage\r\n$2\r\nch\r\n$5\r\nhello\r\n",
			MakeBulkStrings("message", "ch", "hello"),
		},
		{
			"EXEC reply with nested array",
			"*3\r\n+OK\r\n*2\r\n$1\r\na\r\n$-1\r\n:1\r\n",
			MakeArray([]Value{
				MakeSimpleString("OK"),
				MakeArray([]Value{MakeBulkString("a"), MakeNilBulkString()}),
				MakeInteger(1),
			}),
		},
		{
			"Deep nesting",
			"*1\r\n*1\r\n*1\r\n*2\r\n:1\r\n*0\r\n",
			MakeArray([]Value{MakeArray([]Value{MakeArray([]Value{
				MakeArray([]Value{MakeInteger(1), MakeArray(nil)}),
			})})}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, err := Parse([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, len(tt.input), n)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got.Text(), tt.want.Text())
		})
	}
}

func TestParse_NullIsNotEmpty(t *testing.T) {
	null, _, err := Parse([]byte("$-1\r\n"))
	require.NoError(t, err)
	empty, _, err := Parse([]byte("$0\r\n\r\n"))
	require.NoError(t, err)

	assert.False(t, null.Equal(empty))
	_, err = null.Str()
	assert.ErrorIs(t, err, ErrNil)
	s, err := empty.Str()
	require.NoError(t, err)
	assert.Equal(t, "", s)

	nullArr, _, err := Parse([]byte("*-1\r\n"))
	require.NoError(t, err)
	emptyArr, _, err := Parse([]byte("*0\r\n"))
	require.NoError(t, err)

	assert.True(t, nullArr.IsNull)
	assert.False(t, emptyArr.IsNull)
	assert.NotNil(t, emptyArr.Array)
	assert.Empty(t, emptyArr.Array)
}

func TestParse_Resumable(t *testing.T) {
	inputs := []string{
		"+OK\r\n",
		":4\r\n",
		"$5\r\nhello\r\n",
		"$-1\r\n",
		"*3\r\n$7\r\nmessage\r\n$2\r\nch\r\n$5\r\nhello\r\n",
		"*4\r\n$8\r\npmessage\r\n$2\r\nc*\r\n$2\r\nch\r\n$0\r\n\r\n",
		"*2\r\n*2\r\n:1\r\n:2\r\n*1\r\n$3\r\nabc\r\n",
	}

	for _, input := range inputs {
		whole, _, err := Parse([]byte(input))
		require.NoError(t, err)

		var buf []byte
		for i := 0; i < len(input); i++ {
			buf = append(buf, input[i])
			got, n, err := Parse(buf)
			if i < len(input)-1 {
				require.ErrorIs(t, err, ErrIncomplete, "input %q after %d bytes", input, i+1)
				continue
			}
			require.NoError(t, err)
			assert.Equal(t, len(input), n)
			assert.True(t, whole.Equal(got), "input %q: got %s", input, got.Text())
		}
	}
}

func TestParse_LeavesTrailingBytes(t *testing.T) {
	buf := []byte("+OK\r\n:1\r\n$3\r\nab")

	v, n, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(v.String))

	buf = buf[n:]
	v, n, err = Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Integer)

	buf = buf[n:]
	_, _, err = Parse(buf)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, "$3\r\nab", string(buf))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		pos   int
	}{
		{"Unknown type", "?foo\r\n", 0},
		{"Bad integer", ":12a\r\n", 1},
		{"Bad bulk length", "$x\r\nab\r\n", 1},
		{"Negative bulk length", "$-2\r\n", 1},
		{"Bulk without CRLF", "$2\r\nabXY", 6},
		{"Bad array length", "*?\r\n", 1},
		{"Bad element inside array", "*2\r\n:1\r\n:z\r\n", 9},
		{"Bulk over 512 MiB", "$536870913\r\n", 1},
		{"Negative array length", "*-2\r\n", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse([]byte(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.False(t, errors.Is(err, ErrIncomplete))

			var inv *InvalidError
			require.ErrorAs(t, err, &inv)
			assert.Equal(t, tt.pos, inv.Pos)
		})
	}
}

func TestParse_LargeArrayHeader(t *testing.T) {
	for _, input := range []string{"*20000000\r\n", "*20000000\r\n:1\r\n$3\r\nabc\r\n", "*9223372036854775807\r\n"} {
		_, n, err := Parse([]byte(input))
		assert.ErrorIs(t, err, ErrIncomplete, "input %q", input)
		assert.Zero(t, n)
	}

	// many elements arrive eventually
	const count = 1<<16 + 1
	wire := AppendCommand(nil, "MSET", make([]string, count-1)...)
	v, n, err := Parse(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n)
	assert.Len(t, v.Array, count)
}

func TestAppendCommand(t *testing.T) {
	got := AppendCommand(nil, "SET", "key", "3")
	assert.Equal(t, "*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$1\r\n3\r\n", string(got))

	got = AppendCommand(got[:0], "PING")
	assert.Equal(t, "*1\r\n$4\r\nPING\r\n", string(got))

	// lengths are in bytes, not runes
	got = SerializeCommand("SET", "klíč", "")
	assert.Equal(t, "*3\r\n$3\r\nSET\r\n$6\r\nklíč\r\n$0\r\n\r\n", string(got))
}

func TestAppendCommand_RoundTrip(t *testing.T) {
	args := []string{"key", "va\r\nlue", "", "ünïcode"}
	wire := AppendCommand(nil, "HSET", args...)

	v, n, err := Parse(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n)

	got, err := v.Strings()
	require.NoError(t, err)
	assert.Equal(t, append([]string{"HSET"}, args...), got)
}
