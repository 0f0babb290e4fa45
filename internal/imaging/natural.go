package imaging

import (
	"strings"
	"unicode"
)

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// naturalLess orders names the way an operator reads them: runs of digits
// compare by value and letters compare case-insensitively, so "steel2"
// sorts before "steel10".
func naturalLess(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ra) && j < len(rb) {
		if isDigit(ra[i]) && isDigit(rb[j]) {
			na, ni := digitRun(ra, i)
			nb, nj := digitRun(rb, j)
			if na != nb {
				return na < nb
			}
			i, j = ni, nj
			continue
		}
		ca, cb := unicode.ToUpper(ra[i]), unicode.ToUpper(rb[j])
		if ca != cb {
			return ca < cb
		}
		i++
		j++
	}
	if len(ra)-i != len(rb)-j {
		return len(ra)-i < len(rb)-j
	}
	// Equal under natural order; fall back to a stable byte order
	return strings.Compare(a, b) < 0
}

// digitRun parses the decimal run starting at s[i] and returns its value
// and the index just past it.
func digitRun(s []rune, i int) (int, int) {
	n := 0
	for ; i < len(s) && isDigit(s[i]); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n, i
}
