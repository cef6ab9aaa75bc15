package projection

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripDiacritics folds accented Latin letters to their base form
// ("Žan" -> "Zan") before Soundex coding, so names that differ only by
// diacritics still compare phonetically.
var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldDiacritics(s string) string {
	folded, _, err := transform.String(stripDiacritics, s)
	if err != nil {
		return s
	}
	return folded
}

// soundexCode maps a letter to its Soundex digit; vowels and h/w/y are
// dropped per the standard algorithm.
var soundexCode = map[byte]byte{
	'b': '1', 'f': '1', 'p': '1', 'v': '1',
	'c': '2', 'g': '2', 'j': '2', 'k': '2', 'q': '2', 's': '2', 'x': '2', 'z': '2',
	'd': '3', 't': '3',
	'l': '4',
	'm': '5', 'n': '5',
	'r': '6',
}

// soundex computes the classic 4-character Soundex code for a name,
// case-insensitive.
func soundex(name string) string {
	name = strings.ToLower(foldDiacritics(strings.TrimSpace(name)))
	if name == "" {
		return ""
	}

	var buf [4]byte
	buf[0] = name[0] - 'a' + 'A'
	pos := 1
	last := soundexCode[name[0]]

	for i := 1; i < len(name) && pos < 4; i++ {
		c := name[i]
		code, has := soundexCode[c]
		if c == 'h' || c == 'w' {
			continue // skip but don't reset `last`
		}
		if !has {
			last = 0
			continue
		}
		if code != last {
			buf[pos] = code
			pos++
		}
		last = code
	}
	for ; pos < 4; pos++ {
		buf[pos] = '0'
	}
	return string(buf[:])
}

// isPhoneticallySimilar reports whether two names share the same
// Soundex code, case-insensitively (spec 8: "Robert"/"Rupert" true,
// "Smith"/"Smyth" true, "Robert"/"Smith" false).
func isPhoneticallySimilar(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return soundex(a) == soundex(b)
}
