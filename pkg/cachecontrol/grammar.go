package cachecontrol

// isTChar reports whether b is a valid RFC 7230 §3.2.6 tchar.
func isTChar(b byte) bool {
	switch b {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return (b >= '0' && b <= '9') || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// token scans a maximal run of tchar from the start of s.
func token(s string) (value string, rest string) {
	i := 0
	for i < len(s) && isTChar(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

// quotedString scans a RFC 7230 quoted-string starting at s[0] == '"'.
// Returns the unescaped inner content, the remainder after the closing
// quote, and whether the string was well-formed (terminated).
func quotedString(s string) (value string, rest string, ok bool) {
	if len(s) == 0 || s[0] != '"' {
		return "", s, false
	}
	var buf []byte
	i := 1
	for i < len(s) {
		c := s[i]
		switch {
		case c == '"':
			return string(buf), s[i+1:], true
		case c == '\\' && i+1 < len(s):
			buf = append(buf, s[i+1])
			i += 2
		default:
			buf = append(buf, c)
			i++
		}
	}
	return "", s, false // unterminated
}
