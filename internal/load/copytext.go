package load

import (
	"bytes"
	"math"
	"strconv"

	"github.com/JonMunkholm/retail-etl/internal/core"
)

// copyNull is the null marker of the COPY text format. Data backslashes are
// always escaped, so no encoded value can be mistaken for it.
const copyNull = `\N`

// EncodeCopyText appends rows to buf in PostgreSQL COPY text format: one line
// per row, tab separated columns, \N for null.
func EncodeCopyText(buf *bytes.Buffer, rows []core.Row) {
	var num []byte
	for _, row := range rows {
		for i, v := range row {
			if i > 0 {
				buf.WriteByte('\t')
			}
			if v.IsNull() {
				buf.WriteString(copyNull)
				continue
			}
			switch v.Type {
			case core.TypeInt:
				num = strconv.AppendInt(num[:0], v.Int, 10)
				buf.Write(num)
			case core.TypeFloat:
				num = appendFloat(num[:0], v.Float)
				buf.Write(num)
			default:
				writeEscaped(buf, v.Str)
			}
		}
		buf.WriteByte('\n')
	}
}

func appendFloat(dst []byte, f float64) []byte {
	switch {
	case math.IsInf(f, 1):
		return append(dst, "Infinity"...)
	case math.IsInf(f, -1):
		return append(dst, "-Infinity"...)
	}
	return strconv.AppendFloat(dst, f, 'g', -1, 64)
}

// writeEscaped writes s with backslash, tab, newline and carriage return escaped.
func writeEscaped(buf *bytes.Buffer, s string) {
	start := 0
	for i := 0; i < len(s); i++ {
		var esc string
		switch s[i] {
		case '\\':
			esc = `\\`
		case '\t':
			esc = `\t`
		case '\n':
			esc = `\n`
		case '\r':
			esc = `\r`
		default:
			continue
		}
		buf.WriteString(s[start:i])
		buf.WriteString(esc)
		start = i + 1
	}
	buf.WriteString(s[start:])
}
