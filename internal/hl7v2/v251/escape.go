package v251

import "strings"

var (
	escaper = strings.NewReplacer(
		`\`, `\E\`,
		"|", `\F\`,
		"^", `\S\`,
		"~", `\R\`,
		"&", `\T\`,
	)
	unescaper = strings.NewReplacer(
		`\E\`, `\`,
		`\F\`, "|",
		`\S\`, "^",
		`\R\`, "~",
		`\T\`, "&",
	)
)

// Escape replaces reserved delimiter characters with HL7 escape sequences
func Escape(s string) string {
	return escaper.Replace(s)
}

// Unescape resolves HL7 escape sequences back to delimiter characters
func Unescape(s string) string {
	if !strings.Contains(s, EscapeCharacter) {
		return s
	}
	return unescaper.Replace(s)
}
