package importer

import (
	"strings"
	"unicode"
)

// illegalCharacters are characters not allowed in filenames on most filesystems.
var illegalCharacters = []rune{'\\', '/', ':', '*', '?', '"', '<', '>', '|'}

var reservedNames = []string{
	"CON", "PRN", "AUX", "NUL",
	"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
	"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9",
}

// SanitizeName makes a title safe to use as a single path element.
// Colons between words become " - ", other illegal characters are replaced
// with a close visual alternative.
func SanitizeName(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))

	for i, r := range runes {
		switch {
		case r == ':':
			b.WriteString(colonReplacement(runes, i))
		case isIllegal(r):
			b.WriteRune(replacementFor(r))
		case unicode.IsControl(r):
			// dropped
		default:
			b.WriteRune(r)
		}
	}

	out := collapseSpaces(b.String())
	out = strings.Trim(out, " .")
	return avoidReserved(out)
}

// colonReplacement uses " - " when the colon separates words and "-" otherwise.
func colonReplacement(runes []rune, pos int) string {
	var prevIsWord, nextIsWord, nextIsSpace bool
	if pos > 0 {
		prev := runes[pos-1]
		prevIsWord = unicode.IsLetter(prev) || unicode.IsDigit(prev)
	}
	if pos < len(runes)-1 {
		next := runes[pos+1]
		nextIsSpace = unicode.IsSpace(next)
		nextIsWord = unicode.IsLetter(next) || unicode.IsDigit(next)
	}

	if prevIsWord && (nextIsWord || nextIsSpace) {
		if nextIsSpace {
			return " -"
		}
		return " - "
	}
	return "-"
}

func isIllegal(r rune) bool {
	for _, c := range illegalCharacters {
		if r == c {
			return true
		}
	}
	return false
}

func replacementFor(r rune) rune {
	switch r {
	case '?':
		return ' '
	case '"':
		return '\''
	case '<':
		return '('
	case '>':
		return ')'
	default:
		return '-'
	}
}

func collapseSpaces(s string) string {
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return strings.TrimSpace(s)
}

func avoidReserved(s string) string {
	upper := strings.ToUpper(s)
	for _, r := range reservedNames {
		if upper == r {
			return s + "_"
		}
		if strings.HasPrefix(upper, r+".") {
			return s[:len(r)] + "_" + s[len(r):]
		}
	}
	return s
}
