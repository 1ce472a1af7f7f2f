package resp

import (
	"strconv"
	"strings"
)

// Text renders the value the way redis-cli prints replies
func (v Value) Text() string {
	var sb strings.Builder
	v.format(&sb, "")
	return sb.String()
}

func (v Value) format(sb *strings.Builder, indent string) {
	switch v.Type {
	case TypeSimpleString:
		sb.Write(v.String)
	case TypeError:
		sb.WriteString("(error) ")
		sb.Write(v.String)
	case TypeInteger:
		sb.WriteString("(integer) ")
		sb.WriteString(strconv.FormatInt(v.Integer, 10))
	case TypeBulkString:
		if v.IsNull {
			sb.WriteString("(nil)")
			return
		}
		sb.WriteString(strconv.Quote(string(v.String)))
	case TypeArray:
		if v.IsNull {
			sb.WriteString("(nil)")
			return
		}
		if len(v.Array) == 0 {
			sb.WriteString("(empty array)")
			return
		}
		for i, el := range v.Array {
			if i > 0 {
				sb.WriteByte('\n')
				sb.WriteString(indent)
			}
			prefix := strconv.Itoa(i+1) + ") "
			sb.WriteString(prefix)
			el.format(sb, indent+strings.Repeat(" ", len(prefix)))
		}
	default:
		sb.WriteString("(unknown)")
	}
}
