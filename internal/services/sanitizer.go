package services

import (
	"strings"
	"unicode/utf8"
)

// smartCharReplacer maps common typographic characters to ASCII. Double
// quotes map to their escaped form so the replacement never reintroduces a
// bare quote after escaping has already run.
var smartCharReplacer = strings.NewReplacer(
	// bullets
	"•", "-",
	"‣", "-",
	"⁃", "-",
	"∙", "-",
	"●", "-",
	"◦", "-",
	"▪", "-",
	"▫", "-",
	// dashes and quotes
	"–", "-",
	"—", "-",
	"−", "-",
	"‘", "'",
	"’", "'",
	"“", `\"`,
	"”", `\"`,
	"…", "...",
	"\u00a0", " ",
	// marks
	"©", "(c)",
	"®", "(r)",
	"™", "(tm)",
	// currency
	"€", "EUR",
	"£", "GBP",
	"¥", "JPY",
	"¢", "c",
	// math and symbols
	"±", "+/-",
	"×", "x",
	"÷", "/",
	"✖", "x",
	"✗", "x",
	"✘", "x",
	"✚", "+",
	"✛", "+",
	"✜", "+",
	"✝", "+",
	"✞", "+",
	"✟", "+",
	"≈", "~",
	"≠", "!=",
	"≮", "<",
	"≯", ">",
)

var shellEscaper = strings.NewReplacer(
	`"`, `\"`,
	"`", "\\`",
	"$", `\$`,
)

var lineBreakReplacer = strings.NewReplacer(
	"\r\n", " ",
	"\r", " ",
	"\n", " ",
	"\t", " ",
)

var filenameEscaper = strings.NewReplacer(`"`, `\"`)

var filenameReplacer = strings.NewReplacer(
	"<", "_",
	">", "_",
	":", "_",
	`"`, "_",
	"|", "_",
	"?", "_",
	"*", "_",
)

// ReplacementFunc observes each character the sanitizer drops.
type ReplacementFunc func(r rune)

// Sanitize turns arbitrary text into printable ASCII that is safe to pass as
// a single quoted argument. It never fails.
func Sanitize(text string) string {
	return SanitizeWithReport(text, nil)
}

// SanitizeWithReport is Sanitize with a hook called for every character
// replaced by a blank in the non-ASCII pass.
func SanitizeWithReport(text string, onReplace ReplacementFunc) string {
	if text == "" {
		return ""
	}

	s := shellEscaper.Replace(text)
	s = lineBreakReplacer.Replace(s)
	s = smartCharReplacer.Replace(s)
	s = replaceNonPrintable(s, onReplace)
	s = collapseBackslashes(s)
	return strings.Join(strings.Fields(s), " ")
}

// SanitizeFilename prepares an uploaded filename for use as a command
// argument or in a served response.
func SanitizeFilename(name string) string {
	if name == "" {
		return ""
	}
	s := filenameEscaper.Replace(name)
	s = filenameReplacer.Replace(s)
	return lineBreakReplacer.Replace(s)
}

func replaceNonPrintable(s string, onReplace ReplacementFunc) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size

		switch {
		case r == utf8.RuneError && size == 1, r > 0x7E, r < 0x20:
			if onReplace != nil {
				onReplace(r)
			}
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// escapeTargets are the characters a backslash may legitimately precede.
const escapeTargets = "ntr$\"`"

// collapseBackslashes shortens backslash runs left by double escaping. A run
// before an escape target keeps at most two backslashes, any other run is
// reduced to one.
func collapseBackslashes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			i++
			continue
		}

		j := i
		for j < len(s) && s[j] == '\\' {
			j++
		}
		run := j - i

		keep := 1
		if j < len(s) && strings.IndexByte(escapeTargets, s[j]) >= 0 && run > 1 {
			keep = 2
		}
		b.WriteString(strings.Repeat(`\`, keep))
		i = j
	}
	return b.String()
}
