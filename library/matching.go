package library

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// keywordSeparators splits titles into keywords: ASCII whitespace, the
// ideographic space and Japanese punctuation.
var keywordSeparators = regexp.MustCompile(`[\s　、。・]+`)

const minKeywordRunes = 2

// MatchesRequest reports whether a newly catalogued book satisfies a
// pending request. Titles match when either contains the other, or when a
// keyword of at least two characters from one title occurs in the other.
// A request that names an author additionally needs the authors to overlap.
func MatchesRequest(req *BookRequest, book *Book) bool {
	if !titlesMatch(req.Title, book.Title) {
		return false
	}
	author := strings.TrimSpace(req.Author)
	if author == "" {
		return true
	}
	return containsEither(strings.ToLower(author), strings.ToLower(strings.TrimSpace(book.Author)))
}

func titlesMatch(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	if containsEither(a, b) {
		return true
	}
	return keywordIn(a, b) || keywordIn(b, a)
}

// containsEither reports a substring match in either direction. Empty
// strings never match.
func containsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// keywordIn reports whether any keyword of src appears in dst.
func keywordIn(src, dst string) bool {
	for _, kw := range keywords(src) {
		if strings.Contains(dst, kw) {
			return true
		}
	}
	return false
}

func keywords(title string) []string {
	var out []string
	for _, part := range keywordSeparators.Split(title, -1) {
		if utf8.RuneCountInString(part) >= minKeywordRunes {
			out = append(out, part)
		}
	}
	return out
}

// Notification text sent when a requested book arrives.
const requestMatchedTitle = "リクエストした本が登録されました"

func requestMatchedMessage(title string) string {
	return fmt.Sprintf("リクエストされた本「%s」が登録されました。", title)
}
