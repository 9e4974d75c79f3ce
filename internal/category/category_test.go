package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		body    string
		want    Label
	}{
		{"no keywords", "Hello", "how are you", Inbox},
		{"promotion in subject", "50% OFF SALE", "limited time", Promotions},
		{"promotion case-insensitive", "HUGE DISCOUNT", "", Promotions},
		{"social in body", "hey", "come to my party tonight", Social},
		{"updates", "Weekly news", "", Updates},
		{"promotions beat social", "sale at my party", "", Promotions},
		{"promotions beat updates", "deal alert", "", Promotions},
		{"social beats updates", "friend update", "", Social},
		{"empty input", "", "", Inbox},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, Categorize(test.subject, test.body))
		})
	}
}

// Matching is an unanchored substring test; "like" inside "unlike" counts.
// This over-matching is the documented behavior, not a bug.
func TestCategorizeSubstringOverMatch(t *testing.T) {
	assert.Equal(t, Social, Categorize("unlike anything", ""))
	assert.Equal(t, Social, Categorize("", "I dislike mondays"))
}

func TestCategorizeDeterministic(t *testing.T) {
	first := Categorize("big sale and a party", "news update")
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Categorize("big sale and a party", "news update"))
	}
}
