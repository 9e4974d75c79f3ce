package pagination

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromQueryDefaults(t *testing.T) {
	params := FromQuery(url.Values{})
	assert.Equal(t, DefaultPage, params.Page)
	assert.Equal(t, DefaultLimit, params.Limit)
	assert.Zero(t, params.Offset)
}

func TestFromQueryParsesAndClamps(t *testing.T) {
	params := FromQuery(url.Values{"page": {"3"}, "limit": {"10"}})
	assert.Equal(t, 3, params.Page)
	assert.Equal(t, 10, params.Limit)
	assert.Equal(t, 20, params.Offset)

	params = FromQuery(url.Values{"limit": {"5000"}})
	assert.Equal(t, MaxLimit, params.Limit)

	params = FromQuery(url.Values{"page": {"-1"}, "limit": {"zero"}})
	assert.Equal(t, DefaultPage, params.Page)
	assert.Equal(t, DefaultLimit, params.Limit)
}

func TestWithDefaultLimit(t *testing.T) {
	params := FromQuery(url.Values{}, WithDefaultLimit(50))
	assert.Equal(t, 50, params.Limit)

	// An explicit query value still wins over the configured default.
	params = FromQuery(url.Values{"limit": {"5"}}, WithDefaultLimit(50))
	assert.Equal(t, 5, params.Limit)
}

func TestBounds(t *testing.T) {
	params := Params{Page: 2, Limit: 10, Offset: 10}
	start, end := params.Bounds(25)
	assert.Equal(t, 10, start)
	assert.Equal(t, 20, end)

	start, end = params.Bounds(12)
	assert.Equal(t, 10, start)
	assert.Equal(t, 12, end)

	start, end = params.Bounds(5)
	assert.Equal(t, 5, start)
	assert.Equal(t, 5, end)
}
