package helpers

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spaolacci/murmur3"
)

func DedupeStrings(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range in {
		if !seen[v] {
			out = append(out, v)
			seen[v] = true
		}
	}
	return out
}

// returns a fast, compact hash of a string
//
// current implementation uses murmur3, default seed, and hex encoding
func HashOfString(s string) string {
	val := murmur3.Sum64([]byte(s))
	return fmt.Sprintf("%016x", val)
}

// Fraction of alphabetic characters which are upper case. Returns 0 for empty text, or text with no letters at all.
func CapsRatio(text string) float64 {
	letters := 0
	upper := 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

// Cheap approximate similarity between two strings: the number of positions (by rune) where the shorter string matches the longer one, divided by the length of the longer string.
//
// This is not an edit distance. An insertion near the start of a message drops the score sharply, so thresholds should stay fairly high (0.8 or above) to avoid flagging unrelated short messages.
func TextSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	ra := []rune(a)
	rb := []rune(b)
	shorter, longer := ra, rb
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	matches := 0
	for i := range shorter {
		if shorter[i] == longer[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(longer))
}

var inviteRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)discord\.gg/([a-zA-Z0-9-]+)`),
	regexp.MustCompile(`(?i)discord(?:app)?\.com/invite/([a-zA-Z0-9-]+)`),
}

// Finds the first platform invite link in the text, and returns just the invite code.
func ExtractInviteCode(text string) (string, bool) {
	for _, re := range inviteRegexes {
		m := re.FindStringSubmatch(text)
		if len(m) >= 2 && m[1] != "" {
			return m[1], true
		}
	}
	return "", false
}

// Case-insensitive substring match against a word list. Returns the first configured word which matched.
func ContainsWord(text string, words []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(w)) {
			return w, true
		}
	}
	return "", false
}

var mentionRegex = regexp.MustCompile(`<(@[!&]?|#)(\d+)>`)

// Replaces user, role, and channel mention markup with inert placeholders, so stored snapshots don't ping anybody when displayed.
func CleanContent(text string) string {
	text = mentionRegex.ReplaceAllStringFunc(text, func(m string) string {
		sub := mentionRegex.FindStringSubmatch(m)
		switch sub[1] {
		case "#":
			return "#channel-" + sub[2]
		case "@&":
			return "@role-" + sub[2]
		default:
			return "@user-" + sub[2]
		}
	})
	text = strings.ReplaceAll(text, "@everyone", "@\u200beveryone")
	text = strings.ReplaceAll(text, "@here", "@\u200bhere")
	return text
}

// Truncates to at most max runes, marking truncation with a trailing ellipsis.
func TruncateContent(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
