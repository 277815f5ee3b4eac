package news

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// errorSentinels mark block pages and interstitials served in place of an
// article.
var errorSentinels = []string{
	"access denied",
	"just a moment",
	"enable javascript",
	"403 forbidden",
	"are you a robot",
	"captcha",
}

// MatchKeywords returns the keywords from sets that occur in text as
// whole words, case-insensitively, in first-seen order.
func MatchKeywords(text string, sets ...[]string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	var out []string
	for _, set := range sets {
		for _, kw := range set {
			k := strings.ToLower(strings.TrimSpace(kw))
			if k == "" || seen[k] {
				continue
			}
			if containsWord(lower, k) {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// containsWord reports whether word occurs in s bounded by non-word runes.
func containsWord(s, word string) bool {
	for i := 0; i <= len(s)-len(word); {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(word)
		if boundaryBefore(s, start) && boundaryAfter(s, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		i = start + size
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// sentinelWindow is how much of the text leading a page is searched for
// sentinels.
const sentinelWindow = 1000

// IsErrorPage reports whether text looks like a bot wall or error page.
func IsErrorPage(text string) bool {
	if r := []rune(text); len(r) > sentinelWindow {
		text = string(r[:sentinelWindow])
	}
	lower := strings.ToLower(text)
	for _, s := range errorSentinels {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
