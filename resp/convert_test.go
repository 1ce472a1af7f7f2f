package resp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_ErrorTagWins(t *testing.T) {
	v := MakeError("WRONGTYPE Operation against a key holding the wrong kind of value")

	checks := map[string]func() error{
		"Bool":      func() error { _, err := v.Bool(); return err },
		"Int":       func() error { _, err := v.Int(); return err },
		"Uint":      func() error { _, err := v.Uint(); return err },
		"Float":     func() error { _, err := v.Float(); return err },
		"Str":       func() error { _, err := v.Str(); return err },
		"Items":     func() error { _, err := v.Items(); return err },
		"Strings":   func() error { _, err := v.Strings(); return err },
		"StringMap": func() error { _, err := v.StringMap(); return err },
	}

	for name, check := range checks {
		t.Run(name, func(t *testing.T) {
			err := check()
			var srvErr *ServerError
			require.ErrorAs(t, err, &srvErr)
			assert.Equal(t, "WRONGTYPE", srvErr.Prefix())
			assert.NotErrorIs(t, err, ErrUnexpectedType)
		})
	}
}

func TestValue_Numbers(t *testing.T) {
	tests := []struct {
		name    string
		input   Value
		wantInt int64
		wantErr error
	}{
		{"Integer", MakeInteger(6), 6, nil},
		{"Numeric bulk", MakeBulkString("42"), 42, nil},
		{"Numeric simple", MakeSimpleString("-3"), -3, nil},
		{"Null bulk", MakeNilBulkString(), 0, ErrNil},
		{"Empty bulk", MakeBulkString(""), 0, ErrNil},
		{"Array", MakeArray(nil), 0, ErrUnexpectedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.input.Int()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantInt, got)
		})
	}

	_, err := MakeBulkString("nope").Int()
	assert.Error(t, err)

	u, err := MakeInteger(6).Uint()
	require.NoError(t, err)
	assert.Equal(t, uint64(6), u)

	_, err = MakeInteger(-1).Uint()
	assert.Error(t, err)

	f, err := MakeBulkString("-1.65").Float()
	require.NoError(t, err)
	assert.InDelta(t, -1.65, f, 1e-9)

	f, err = MakeInteger(2).Float()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, f, 1e-9)
}

func TestValue_Bool(t *testing.T) {
	b, err := MakeInteger(1).Bool()
	require.NoError(t, err)
	assert.True(t, b)

	b, err = MakeInteger(0).Bool()
	require.NoError(t, err)
	assert.False(t, b)

	_, err = MakeBulkString("1").Bool()
	assert.ErrorIs(t, err, ErrUnexpectedType)
}

func TestValue_Collections(t *testing.T) {
	v := MakeBulkStrings("ip", "10.0.0.1", "port", "6380")

	list, err := v.Strings()
	require.NoError(t, err)
	assert.Equal(t, []string{"ip", "10.0.0.1", "port", "6380"}, list)

	m, err := v.StringMap()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ip": "10.0.0.1", "port": "6380"}, m)

	_, err = MakeBulkStrings("odd").StringMap()
	assert.ErrorIs(t, err, ErrUnexpectedType)

	_, err = MakeArray([]Value{MakeBulkString("a"), MakeInteger(1)}).Strings()
	assert.ErrorIs(t, err, ErrUnexpectedType)

	_, err = MakeArray([]Value{MakeNilBulkString()}).Strings()
	assert.ErrorIs(t, err, ErrUnexpectedType)

	_, err = MakeNilArray().Items()
	assert.ErrorIs(t, err, ErrNil)

	_, err = MakeSimpleString("OK").Items()
	assert.ErrorIs(t, err, ErrUnexpectedType)
}

func TestValue_String(t *testing.T) {
	v := MakeArray([]Value{
		MakeSimpleString("OK"),
		MakeInteger(4),
		MakeBulkString("4"),
		MakeNilBulkString(),
		MakeArray([]Value{MakeBulkString("a"), MakeError("ERR x")}),
	})

	want := "1) OK\n" +
		"2) (integer) 4\n" +
		"3) \"4\"\n" +
		"4) (nil)\n" +
		"5) 1) \"a\"\n" +
		"   2) (error) ERR x"
	assert.Equal(t, want, v.Text())
	assert.Equal(t, "(empty array)", MakeArray(nil).Text())
}
