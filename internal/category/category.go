// Package category assigns each mail to exactly one feed label based on
// keywords in its subject or body.
package category

import "strings"

type Label string

const (
	Inbox      Label = "Inbox"
	Promotions Label = "Promotions"
	Social     Label = "Social"
	Updates    Label = "Updates"
)

// Keyword sets are checked in priority order: Promotions first, then Social,
// then Updates. Matching is an unanchored substring test, so "like" also
// matches "unlike"; that over-matching is intentional and pinned by tests.
var (
	promotionsKeywords = []string{"sale", "discount", "offer", "deal", "promo"}
	socialKeywords     = []string{"friend", "party", "social", "invite", "like", "comment"}
	updatesKeywords    = []string{"update", "news", "alert", "notification", "reminder"}
)

// Categorize returns the label for a (subject, body) pair. It is a pure
// function: identical inputs always yield the identical label.
func Categorize(subject, body string) Label {
	subject = strings.ToLower(subject)
	body = strings.ToLower(body)
	switch {
	case matchesAny(subject, body, promotionsKeywords):
		return Promotions
	case matchesAny(subject, body, socialKeywords):
		return Social
	case matchesAny(subject, body, updatesKeywords):
		return Updates
	default:
		return Inbox
	}
}

func matchesAny(subject, body string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(subject, keyword) || strings.Contains(body, keyword) {
			return true
		}
	}
	return false
}
