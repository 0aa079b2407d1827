package extract

import (
	"fmt"
	"strings"

	"github.com/trawlhq/trawl/models"
)

// Validate enforces the record invariants and removes near-duplicates in a
// single order-preserving pass.
//
// A record with an empty trimmed title is dropped. A record with no price
// gets the explicit "unavailable" display sentinel — an empty price_display
// is never allowed to pass as valid. Duplicates are keyed on
// (normalized price, normalized rating, first 30 chars of title); the
// earlier record wins, preserving result order. The pass is idempotent:
// validating its own output changes nothing.
func Validate(records []models.ProductRecord) []models.ProductRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]models.ProductRecord, 0, len(records))

	for _, rec := range records {
		rec.Title = strings.TrimSpace(rec.Title)
		if rec.Title == "" {
			continue
		}
		if strings.TrimSpace(rec.PriceDisplay) == "" {
			if rec.PriceNumeric.Known {
				rec.PriceDisplay = FormatPrice(rec.PriceNumeric.Value)
			} else {
				rec.PriceDisplay = models.PriceUnavailable
			}
		}
		if rec.Availability == "" {
			rec.Availability = models.AvailabilityUnknown
		}

		key := dedupKey(rec)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// dedupKey builds the (price, rating, title prefix) identity of a record.
// Unknown numerics get a distinct marker so two price-less records with
// different titles never collide.
func dedupKey(rec models.ProductRecord) string {
	price := "?"
	if rec.PriceNumeric.Known {
		price = fmt.Sprintf("%.2f", rec.PriceNumeric.Value)
	}
	rating := "?"
	if rec.RatingNumeric.Known {
		rating = fmt.Sprintf("%.2f", rec.RatingNumeric.Value)
	}
	return price + "|" + rating + "|" + titlePrefix(rec.Title)
}
