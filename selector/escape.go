package selector

import (
	"strconv"
	"strings"
)

// Escape serialises s as a CSS identifier, following the CSSOM
// CSS.escape() algorithm.
func Escape(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == 0:
			b.WriteRune('�')
		case (r >= 0x01 && r <= 0x1f) || r == 0x7f,
			i == 0 && r >= '0' && r <= '9',
			i == 1 && r >= '0' && r <= '9' && runes[0] == '-':
			b.WriteByte('\\')
			b.WriteString(strconv.FormatInt(int64(r), 16))
			b.WriteByte(' ')
		case i == 0 && r == '-' && len(runes) == 1:
			b.WriteString(`\-`)
		case r >= 0x80 || r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}
