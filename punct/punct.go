// Package punct turns raw recognizer fragments into punctuated sentences.
package punct

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	spaceRun      = regexp.MustCompile(`\s+`)
	terminalRun   = regexp.MustCompile(`[.?!]{2,}`)
	trailingMarks = regexp.MustCompile(`[.?!]+$`)
	sentenceStart = regexp.MustCompile(`([.?!]\s+)(\p{Ll})`)
	pronounI      = regexp.MustCompile(`\bi\b`)
	firstWord     = regexp.MustCompile(`[\p{L}']+`)
)

var interrogatives = map[string]bool{
	"what": true, "where": true, "when": true, "why": true, "how": true,
	"who": true, "which": true, "can": true, "could": true, "would": true,
	"should": true, "is": true, "are": true, "do": true, "does": true, "did": true,
}

// Normalize capitalizes, punctuates and tidies a speech fragment.
// It has no state; the same input always yields the same output.
func Normalize(raw string) string {
	s := collapseSpace(raw)
	if s == "" {
		return ""
	}

	s = pronounI.ReplaceAllString(s, "I")
	s = upperFirst(s)

	if !endsWithTerminal(s) {
		s += "."
	}

	s = sentenceStart.ReplaceAllStringFunc(s, func(m string) string {
		r, size := utf8.DecodeLastRuneInString(m)
		return m[:len(m)-size] + string(unicode.ToUpper(r))
	})

	// a run keeps its last mark: "?!" reads as "!"
	s = terminalRun.ReplaceAllStringFunc(s, func(m string) string { return m[len(m)-1:] })

	if IsQuestion(s) {
		s = trailingMarks.ReplaceAllString(s, "") + "?"
	}

	return collapseSpace(s)
}

// IsQuestion reports whether the first significant word is an interrogative.
func IsQuestion(s string) bool {
	w := firstWord.FindString(s)
	return interrogatives[strings.ToLower(w)]
}

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

func endsWithTerminal(s string) bool {
	switch s[len(s)-1] {
	case '.', '?', '!':
		return true
	}
	return false
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
