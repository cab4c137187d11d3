package codec

import (
	"fmt"
	"strings"
)

// isUnreserved reports whether b is in Postfix's unreserved set: A-Z a-z
// 0-9 . _ ~ -. Everything else gets percent-encoded.
func isUnreserved(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z':
		return true
	case b >= 'a' && b <= 'z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '.' || b == '_' || b == '~' || b == '-':
		return true
	default:
		return false
	}
}

// PercentEncode encodes s per Postfix's tcp_table convention: every byte
// outside the unreserved set becomes %XX with uppercase hex, including
// space (%20). Used for both outbound response values and, in reverse, for
// decoding inbound keys — the same table must back both directions or
// round-trips silently corrupt data (see spec §9's design note).
func PercentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// PercentDecode reverses PercentEncode. It also accepts lowercase hex
// digits, since Postfix's own encoder output isn't guaranteed to be the
// only producer of the keys this gateway receives.
func PercentDecode(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("truncated percent-escape at offset %d", i)
		}
		hi, err := hexVal(s[i+1])
		if err != nil {
			return "", fmt.Errorf("invalid percent-escape %q: %v", s[i:i+3], err)
		}
		lo, err := hexVal(s[i+2])
		if err != nil {
			return "", fmt.Errorf("invalid percent-escape %q: %v", s[i:i+3], err)
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), nil
}

func hexVal(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	default:
		return 0, fmt.Errorf("not a hex digit: %q", c)
	}
}
