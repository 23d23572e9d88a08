package clean

import (
	"strings"
	"unicode"
)

// WordCount returns the number of whitespace-delimited tokens in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// SentenceCount counts '.', '!' and '?' in text. Non-empty text counts as at
// least one sentence.
func SentenceCount(text string) int {
	if text == "" {
		return 0
	}
	count := 0
	for _, r := range text {
		if isTerminator(r) {
			count++
		}
	}
	if count == 0 {
		return 1
	}
	return count
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

var quoteFolder = strings.NewReplacer(
	"\u2018", "'", // left single quotation mark
	"\u2019", "'", // right single quotation mark
	"\u201a", "'", // single low-9 quotation mark
	"\u201b", "'", // single high-reversed-9 quotation mark
	"\u201c", `"`, // left double quotation mark
	"\u201d", `"`, // right double quotation mark
	"\u201e", `"`, // double low-9 quotation mark
	"\u201f", `"`, // double high-reversed-9 quotation mark
)

// foldQuotes replaces typographic quotes with their ASCII forms.
func foldQuotes(text string) string {
	return quoteFolder.Replace(text)
}

// collapseRuns replaces every run of runes matching match with a single
// replacement rune.
func collapseRuns(text string, match func(rune) bool, replacement rune) string {
	var b strings.Builder
	b.Grow(len(text))
	inRun := false
	for _, r := range text {
		if match(r) {
			if !inRun {
				b.WriteRune(replacement)
				inRun = true
			}
			continue
		}
		inRun = false
		b.WriteRune(r)
	}
	return b.String()
}

func isSpaceChar(r rune) bool { return r == ' ' }

// spaceAfterTerminators ensures a space follows every sentence terminator,
// unless whitespace or the same terminator already follows it.
func spaceAfterTerminators(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text) + 8)
	for i, r := range runes {
		b.WriteRune(r)
		if !isTerminator(r) {
			continue
		}
		if i+1 == len(runes) {
			b.WriteByte(' ')
			continue
		}
		next := runes[i+1]
		if next != r && !unicode.IsSpace(next) {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// collapseRepeatedTerminators folds runs of one repeated terminator ("??",
// "...", "!!!") into a single mark. It loops to a fixed point so no two
// adjacent identical terminators survive.
func collapseRepeatedTerminators(text string) string {
	for {
		next := dropRepeatedTerminators(text)
		if next == text {
			return text
		}
		text = next
	}
}

func dropRepeatedTerminators(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	var prev rune
	for _, r := range text {
		if isTerminator(r) && r == prev {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}
