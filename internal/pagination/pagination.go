// Package pagination extracts page/limit parameters from query strings for
// the listing endpoints (user directory, drafts). It validates the values,
// applies configurable defaults and computes slice bounds for in-memory
// listings.
package pagination

import (
	"net/url"
	"strconv"
)

// Params represents pagination parameters extracted from a request.
type Params struct {
	Page   int // Current page number (1-based)
	Limit  int // Number of items per page
	Offset int // Calculated offset into the listing
}

const (
	// MaxLimit is the maximum number of items allowed per page
	MaxLimit = 100
	// DefaultPage is the default page number when not specified
	DefaultPage = 1
	// DefaultLimit is the default number of items per page when not specified
	DefaultLimit = 25
)

// Option configures the defaults used while parsing.
type Option func(*Params)

// WithDefaultLimit overrides the default page size. The limit is only
// applied if it's greater than 0.
func WithDefaultLimit(limit int) Option {
	return func(p *Params) {
		if limit > 0 {
			p.Limit = limit
		}
	}
}

// FromQuery parses "page" and "limit" from the query, clamping limit to
// MaxLimit and falling back to defaults on absent or invalid values.
func FromQuery(query url.Values, opts ...Option) Params {
	params := Params{Page: DefaultPage, Limit: DefaultLimit}
	for _, opt := range opts {
		opt(&params)
	}
	if raw := query.Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 1 {
			params.Page = parsed
		}
	}
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 1 {
			if parsed > MaxLimit {
				parsed = MaxLimit
			}
			params.Limit = parsed
		}
	}
	params.Offset = (params.Page - 1) * params.Limit
	return params
}

// Bounds clamps the params to a listing of length total and returns the
// half-open slice range to serve.
func (p Params) Bounds(total int) (start, end int) {
	start = p.Offset
	if start > total {
		start = total
	}
	end = start + p.Limit
	if end > total {
		end = total
	}
	return start, end
}
