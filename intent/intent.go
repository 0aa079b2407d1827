// Package intent bridges structured shopping intents to marketplace search
// queries. Something upstream — an LLM agent, a rules engine, a form —
// produces a ParsedIntent; this package turns it into the raw query string
// and post-extraction filter set the scraper understands. Parsing natural
// language into a ParsedIntent is deliberately outside the engine: the
// Parser interface is the seam where that collaborator plugs in.
package intent

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/trawlhq/trawl/models"
)

// Filter keys recognized inside ParsedIntent.Filters.
const (
	FilterPrice  = "price"
	FilterBrand  = "brand"
	FilterRating = "min_rating"

	// AnyValue marks an unconstrained filter slot.
	AnyValue = "any"
)

// ParsedIntent is the structured form of a shopping request.
type ParsedIntent struct {
	// Intent names the request kind; the engine only acts on "search".
	Intent string `json:"intent"`

	// Products lists the product categories or models to search for.
	Products []string `json:"products"`

	// Filters holds raw constraint strings, e.g. {"price": "under ₹60000",
	// "brand": "hp"}. The value "any" means unconstrained.
	Filters map[string]string `json:"filters"`

	// Attributes are qualifier terms appended to the query ("gaming",
	// "16gb ram").
	Attributes []string `json:"attributes"`

	// MaxProducts caps the records returned per query.
	MaxProducts int `json:"max_products_per_query"`
}

// Parser produces a ParsedIntent from a free-form user request. The engine
// ships no implementation; callers wire their own (typically LLM-backed).
type Parser interface {
	Parse(ctx context.Context, userQuery string) (*ParsedIntent, error)
}

var (
	numberPattern = regexp.MustCompile(`(\d[\d,]*)`)
	rangePattern  = regexp.MustCompile(`(\d[\d,]*)\s*(?:-|–|to|and)\s*(?:₹|rs\.?\s*|inr\s*)?(\d[\d,]*)`)
)

// BuildQuery flattens an intent into the search query string and the filter
// spec applied to extracted records. Query text carries only terms that
// help the marketplace's own search ranking; numeric constraints go into
// the FilterSpec where they are enforced exactly.
func BuildQuery(p *ParsedIntent) (string, models.FilterSpec) {
	var parts []string
	var spec models.FilterSpec

	parts = append(parts, p.Products...)

	if raw, ok := p.Filters[FilterPrice]; ok && !isAny(raw) {
		lower := strings.ToLower(raw)
		switch {
		case rangePattern.MatchString(lower):
			m := rangePattern.FindStringSubmatch(lower)
			if lo, ok := parseAmount(m[1]); ok {
				spec.MinPrice = &lo
			}
			if hi, ok := parseAmount(m[2]); ok {
				spec.MaxPrice = &hi
			}
		case strings.Contains(lower, "under") || strings.Contains(lower, "below"):
			if v, ok := firstAmount(lower); ok {
				spec.MaxPrice = &v
				parts = append(parts, "under "+strconv.FormatFloat(v, 'f', -1, 64))
			}
		case strings.Contains(lower, "over") || strings.Contains(lower, "above"):
			if v, ok := firstAmount(lower); ok {
				spec.MinPrice = &v
			}
		}
	}

	if brand, ok := p.Filters[FilterBrand]; ok && !isAny(brand) {
		spec.Brand = strings.TrimSpace(brand)
		parts = append(parts, spec.Brand)
	}

	if raw, ok := p.Filters[FilterRating]; ok && !isAny(raw) {
		if v, ok := firstAmount(raw); ok && v >= 1 && v <= 5 {
			spec.MinRating = &v
		}
	}

	parts = append(parts, p.Attributes...)
	return strings.Join(parts, " "), spec
}

func isAny(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	return v == "" || v == AnyValue
}

// firstAmount extracts the first numeric amount from a constraint string,
// tolerating currency symbols and Indian digit grouping.
func firstAmount(s string) (float64, bool) {
	m := numberPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	return parseAmount(m)
}

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
