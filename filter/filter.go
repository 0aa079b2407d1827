// Package filter applies caller-supplied predicates to validated product
// records. Application is pure: it never mutates records, is idempotent,
// and the outcome does not depend on the order predicates are checked in.
package filter

import (
	"strings"

	"github.com/trawlhq/trawl/models"
)

// Apply returns the records satisfying every predicate in spec, preserving
// input order. A record with an unknown price is excluded by any price
// filter but passes when no price filter is given; ratings behave the same
// way. The brand predicate is a case-insensitive substring test against the
// title.
func Apply(records []models.ProductRecord, spec models.FilterSpec) []models.ProductRecord {
	if spec.Empty() {
		return records
	}

	out := make([]models.ProductRecord, 0, len(records))
	for _, rec := range records {
		if matches(rec, spec) {
			out = append(out, rec)
		}
	}
	return out
}

func matches(rec models.ProductRecord, spec models.FilterSpec) bool {
	if spec.MaxPrice != nil {
		if !rec.PriceNumeric.Known || rec.PriceNumeric.Value > *spec.MaxPrice {
			return false
		}
	}
	if spec.MinPrice != nil {
		if !rec.PriceNumeric.Known || rec.PriceNumeric.Value < *spec.MinPrice {
			return false
		}
	}
	if spec.MinRating != nil {
		if !rec.RatingNumeric.Known || rec.RatingNumeric.Value < *spec.MinRating {
			return false
		}
	}
	if spec.Brand != "" {
		if !strings.Contains(strings.ToLower(rec.Title), strings.ToLower(spec.Brand)) {
			return false
		}
	}
	return true
}
