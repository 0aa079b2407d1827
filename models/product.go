package models

import (
	"encoding/json"
	"time"
)

// Availability reports whether a listing can currently be purchased.
type Availability string

const (
	InStock    Availability = "in_stock"
	OutOfStock Availability = "out_of_stock"
	// AvailabilityUnknown is used when the listing gives no stock signal.
	AvailabilityUnknown Availability = "unknown"
)

// ExtractionMethod records which pipeline produced a ProductRecord.
type ExtractionMethod string

const (
	// MethodCascade means the record came from the configured selector rules.
	MethodCascade ExtractionMethod = "cascade"

	// MethodFallback means the record was recovered by the heuristic
	// extractor after all container rules failed.
	MethodFallback ExtractionMethod = "fallback"

	// MethodSynthetic marks fabricated placeholder records produced when a
	// marketplace blocks us and the synthetic-fallback switch is enabled.
	// Synthetic records must never be mistaken for scraped data.
	MethodSynthetic ExtractionMethod = "synthetic"
)

// Maybe is an optional float64. Absence is explicit: an unset field
// marshals to JSON null, never to 0.
type Maybe struct {
	Value float64
	Known bool
}

// Some wraps a known value.
func Some(v float64) Maybe { return Maybe{Value: v, Known: true} }

// None is the absent sentinel.
func None() Maybe { return Maybe{} }

func (m Maybe) MarshalJSON() ([]byte, error) {
	if !m.Known {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

func (m *Maybe) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Maybe{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Some(v)
	return nil
}

// PriceUnavailable is the display sentinel used when no price could be
// extracted. A record never carries an empty price_display string.
const PriceUnavailable = "unavailable"

// ProductRecord is one normalized product listing.
// Every field is always present in JSON; unknown numerics render as null.
type ProductRecord struct {
	Title            string           `json:"title"`
	PriceDisplay     string           `json:"price_display"`
	PriceNumeric     Maybe            `json:"price_numeric"`
	RatingNumeric    Maybe            `json:"rating_numeric"`
	URL              string           `json:"url"`
	ImageURL         string           `json:"image_url"`
	Availability     Availability     `json:"availability"`
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
}

// FilterSpec holds the caller-supplied post-extraction predicates.
// Nil pointer fields mean "no constraint". Filters compose as logical AND.
type FilterSpec struct {
	MaxPrice  *float64 `json:"max_price,omitempty"`
	MinPrice  *float64 `json:"min_price,omitempty"`
	MinRating *float64 `json:"min_rating,omitempty"`
	Brand     string   `json:"brand,omitempty"`
}

// Empty reports whether no predicate is set.
func (f FilterSpec) Empty() bool {
	return f.MaxPrice == nil && f.MinPrice == nil && f.MinRating == nil && f.Brand == ""
}

// SearchRequest is the immutable input of one extraction pass.
type SearchRequest struct {
	// Query is the marketplace search text. Required.
	Query string `json:"query" binding:"required,min=1"`

	// Filters are applied after extraction and validation.
	Filters FilterSpec `json:"filters"`

	// Limit caps the number of returned records. Default: 5. Max: 50.
	Limit int `json:"limit,omitempty" binding:"omitempty,min=1,max=50"`

	// Timeout is the total fetch+retry budget in seconds. Default: 30. Max: 120.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`
}

// Defaults applies default values to unset fields.
func (r *SearchRequest) Defaults() {
	if r.Limit == 0 {
		r.Limit = 5
	}
	if r.Timeout == 0 {
		r.Timeout = 30
	}
}

// ExtractionResult is the outcome of one Scrape call. It is created fresh
// per request and never mutated after return.
type ExtractionResult struct {
	Success bool            `json:"success"`
	Query   string          `json:"query"`
	Records []ProductRecord `json:"records"`

	// Blocked names the block signal ("captcha", "rate_limited",
	// "overloaded") when the marketplace rejected us; empty otherwise.
	Blocked string `json:"blocked,omitempty"`

	// ElapsedMs is the end-to-end duration in milliseconds.
	ElapsedMs int64 `json:"elapsed_ms"`

	// Method records which extraction path produced the records.
	Method ExtractionMethod `json:"extraction_method,omitempty"`

	// EngineUsed names the fetch engine that won ("http", "rod", "rod-stealth").
	EngineUsed string `json:"engine_used,omitempty"`

	// CacheStatus indicates whether the API layer served this from cache.
	// Values: "hit", "miss", or empty. The engine itself never caches.
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// NewResult builds a skeleton result for the given query.
func NewResult(query string) *ExtractionResult {
	return &ExtractionResult{Query: query, Records: []ProductRecord{}}
}

// Finish stamps the elapsed duration.
func (r *ExtractionResult) Finish(start time.Time) *ExtractionResult {
	r.ElapsedMs = time.Since(start).Milliseconds()
	return r
}
