// Package topic derives display topics and titles from request paths.
package topic

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ReservedPrefix is the namespace segment whose pages take their title from
// the following segment alone.
const ReservedPrefix = "topics"

// Extract returns the generation topic and the page title for a request path.
// It is pure and total: "/" and other empty paths yield ("", "").
func Extract(path string) (topicName, title string) {
	segments := Segments(path)
	if len(segments) == 0 {
		return "", ""
	}

	words := make([]string, 0, len(segments))
	for _, s := range segments {
		words = append(words, dehyphen(s))
	}
	topicName = strings.Join(words, " ")

	switch {
	case segments[0] == ReservedPrefix && len(segments) > 1:
		title = Capitalize(dehyphen(segments[1]))
	case len(segments) == 1:
		title = Capitalize(words[0])
	default:
		rest := make([]string, 0, len(segments)-1)
		for _, w := range words[1:] {
			rest = append(rest, Capitalize(w))
		}
		title = Capitalize(words[0]) + ": " + strings.Join(rest, " - ")
	}
	return topicName, title
}

// Segments splits a path on "/" and drops empty segments.
func Segments(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Humanize converts a root-relative path into a link title:
// "/maritime-navigation" -> "Maritime Navigation".
func Humanize(path string) string {
	s := strings.TrimPrefix(strings.TrimSpace(path), "/")
	return Capitalize(dehyphen(s))
}

// Capitalize upper-cases the first letter of every word, where a word starts
// after any character that is not a letter or digit. Other runes are kept.
func Capitalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	boundary := true
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		wordRune := unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
		if boundary && wordRune {
			r = unicode.ToUpper(r)
		}
		boundary = !wordRune
		b.WriteRune(r)
	}
	return b.String()
}

func dehyphen(s string) string {
	return strings.ReplaceAll(s, "-", " ")
}
