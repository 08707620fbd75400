package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	defaultTitleNew      = "New Chat"
	defaultTitleUntitled = "Untitled"
)

// titleWordRE extracts word-ish tokens (letters with optional trailing digits).
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// titleStopWords are filler tokens skipped when deriving a title.
var titleStopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"i": {}, "you": {}, "he": {}, "she": {}, "it": {}, "we": {}, "they": {},
	"me": {}, "my": {}, "your": {}, "of": {}, "in": {}, "on": {}, "at": {},
	"to": {}, "for": {}, "with": {}, "about": {}, "please": {}, "can": {},
	"could": {}, "would": {}, "what": {}, "how": {}, "why": {}, "do": {},
	"does": {}, "tell": {},
}

// shouldAutoTitle reports whether the current title is a placeholder.
func shouldAutoTitle(current string) bool {
	t := strings.TrimSpace(strings.ToLower(current))
	return t == "" || t == strings.ToLower(defaultTitleNew) || t == strings.ToLower(defaultTitleUntitled)
}

// titleFromPrompt derives a concise session title from the first prompt.
func titleFromPrompt(prompt string, maxWords, maxRunes int) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ""
	}
	toks := titleWordRE.FindAllString(strings.ToLower(prompt), -1)
	if len(toks) == 0 {
		return ""
	}
	if maxWords <= 0 {
		maxWords = 6
	}

	titleCaser := cases.Title(language.English)
	out := make([]string, 0, maxWords)
	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, titleCaser.String(w))
		if len(out) >= maxWords {
			break
		}
	}
	if len(out) == 0 {
		return ""
	}
	return clipTitle(strings.Join(out, " "), maxRunes)
}

// clipTitle truncates a title to the given maximum rune length.
func clipTitle(title string, max int) string {
	if max <= 0 {
		max = 60
	}
	if utf8.RuneCountInString(title) > max {
		return string([]rune(title)[:max])
	}
	return title
}
