package resp

const (
	TypeSimpleString = '+'
	TypeError        = '-'
	TypeInteger      = ':'
	TypeBulkString   = '$'
	TypeArray        = '*'
)

// Value is a single decoded RESP reply or an encodable request element.
// A null bulk string and a null array carry IsNull; an empty bulk string and
// an empty array do not
type Value struct {
	String  []byte  // SimpleString, Error, BulkString
	Array   []Value // Array, may nest
	Integer int64   // Integer
	Type    byte
	IsNull  bool // For nil BulkString and nil Array
}

// IsError reports whether the value is a server error reply
func (v Value) IsError() bool {
	return v.Type == TypeError
}

// IsString reports whether the value is a simple or bulk string (null included)
func (v Value) IsString() bool {
	return v.Type == TypeSimpleString || v.Type == TypeBulkString
}

// IsArray reports whether the value is an array (null included)
func (v Value) IsArray() bool {
	return v.Type == TypeArray
}

// Equal compares two values structurally
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type || v.IsNull != o.IsNull || v.Integer != o.Integer {
		return false
	}
	if string(v.String) != string(o.String) || len(v.Array) != len(o.Array) {
		return false
	}
	for i := range v.Array {
		if !v.Array[i].Equal(o.Array[i]) {
			return false
		}
	}
	return true
}
