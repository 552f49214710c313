package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize bounds the length of one indexed text chunk.
const DefaultChunkSize = 4000

var whitespaceRE = regexp.MustCompile(`\s+`)

// Normalize collapses all whitespace runs to single spaces and trims the
// result. Applied to chunk input, section titles, and search queries alike.
func Normalize(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

// Split normalizes text and cuts it into chunks of at most max bytes,
// preferring to cut at the space nearest before the limit rather than
// mid-word. Cut spaces are dropped, so joining the chunks with single
// spaces reconstructs the normalized input.
func Split(text string, max int) []string {
	text = Normalize(text)
	if text == "" {
		return nil
	}
	if max <= 0 {
		max = DefaultChunkSize
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + max
		if end >= len(text) {
			end = len(text)
		} else if cut := strings.LastIndexByte(text[start:end], ' '); cut > 0 {
			end = start + cut
		} else {
			// No space in the window; hard cut, but never inside a rune.
			for end > start && !utf8.RuneStart(text[end]) {
				end--
			}
			if end == start {
				end = start + max
			}
		}

		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end < len(text) && text[end] == ' ' {
			start = end + 1
		} else {
			start = end
		}
	}
	return chunks
}
