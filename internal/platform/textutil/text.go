// Package textutil normalises user-supplied labels and search terms.
package textutil

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	strictPolicy = bluemonday.StrictPolicy()

	// cases.Caser is stateful and not safe for concurrent use.
	foldMu sync.Mutex
	folder = cases.Lower(language.Und)
)

// CleanLabel strips markup, unescapes entities and collapses whitespace. "<b>Bridal</b>  Wear" becomes
// "Bridal Wear".
func CleanLabel(value string) string {
	stripped := html.UnescapeString(strictPolicy.Sanitize(value))
	return strings.Join(strings.Fields(stripped), " ")
}

// CleanText strips markup but keeps line structure, for free-form descriptions.
func CleanText(value string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(value)))
}

// Fold lower-cases value with Unicode rules.
func Fold(value string) string {
	foldMu.Lock()
	defer foldMu.Unlock()
	return folder.String(value)
}

// ContainsFold reports whether needle occurs in haystack ignoring case. An empty needle always matches.
func ContainsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(Fold(haystack), Fold(needle))
}
