package filter

import (
	"reflect"
	"testing"

	"github.com/trawlhq/trawl/models"
)

func ptr(v float64) *float64 { return &v }

func fixture() []models.ProductRecord {
	return []models.ProductRecord{
		{Title: "Acme Gaming Laptop", PriceNumeric: models.Some(55990), RatingNumeric: models.Some(4.3)},
		{Title: "Widget Pro Keyboard", PriceNumeric: models.Some(12499), RatingNumeric: models.Some(4.1)},
		{Title: "Zenith Budget Mouse", PriceNumeric: models.Some(1099), RatingNumeric: models.Some(3.2)},
		{Title: "Mystery Gadget", PriceNumeric: models.None(), RatingNumeric: models.None()},
	}
}

func titles(records []models.ProductRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Title
	}
	return out
}

func TestApply(t *testing.T) {
	tests := []struct {
		name string
		spec models.FilterSpec
		want []string
	}{
		{
			"empty spec passes everything",
			models.FilterSpec{},
			[]string{"Acme Gaming Laptop", "Widget Pro Keyboard", "Zenith Budget Mouse", "Mystery Gadget"},
		},
		{
			"max price",
			models.FilterSpec{MaxPrice: ptr(20000)},
			[]string{"Widget Pro Keyboard", "Zenith Budget Mouse"},
		},
		{
			"min price",
			models.FilterSpec{MinPrice: ptr(10000)},
			[]string{"Acme Gaming Laptop", "Widget Pro Keyboard"},
		},
		{
			"min rating",
			models.FilterSpec{MinRating: ptr(4.0)},
			[]string{"Acme Gaming Laptop", "Widget Pro Keyboard"},
		},
		{
			"brand is case-insensitive substring",
			models.FilterSpec{Brand: "acme"},
			[]string{"Acme Gaming Laptop"},
		},
		{
			"filters compose as AND",
			models.FilterSpec{MaxPrice: ptr(60000), MinRating: ptr(4.2)},
			[]string{"Acme Gaming Laptop"},
		},
		{
			"boundary values are inclusive",
			models.FilterSpec{MaxPrice: ptr(12499), MinRating: ptr(4.1)},
			[]string{"Widget Pro Keyboard"},
		},
		{
			"unknown price excluded by price filter",
			models.FilterSpec{MaxPrice: ptr(9999999)},
			[]string{"Acme Gaming Laptop", "Widget Pro Keyboard", "Zenith Budget Mouse"},
		},
		{
			"unknown rating excluded by rating filter",
			models.FilterSpec{MinRating: ptr(1.0)},
			[]string{"Acme Gaming Laptop", "Widget Pro Keyboard", "Zenith Budget Mouse"},
		},
		{
			"no matches",
			models.FilterSpec{Brand: "nonexistent"},
			[]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := titles(Apply(fixture(), tt.spec))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Apply(%+v) = %v, want %v", tt.spec, got, tt.want)
			}
		})
	}
}

func TestApply_Idempotent(t *testing.T) {
	spec := models.FilterSpec{MaxPrice: ptr(20000), MinRating: ptr(4.0)}
	once := Apply(fixture(), spec)
	twice := Apply(once, spec)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Apply is not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestApply_OrderIndependent(t *testing.T) {
	// Applying two single-predicate specs in either order equals applying
	// the combined spec.
	maxPrice := models.FilterSpec{MaxPrice: ptr(60000)}
	minRating := models.FilterSpec{MinRating: ptr(4.0)}
	combined := models.FilterSpec{MaxPrice: ptr(60000), MinRating: ptr(4.0)}

	ab := Apply(Apply(fixture(), maxPrice), minRating)
	ba := Apply(Apply(fixture(), minRating), maxPrice)
	both := Apply(fixture(), combined)

	if !reflect.DeepEqual(ab, ba) || !reflect.DeepEqual(ab, both) {
		t.Errorf("filter application is order-dependent:\nab:   %+v\nba:   %+v\nboth: %+v", ab, ba, both)
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	in := fixture()
	snapshot := fixture()
	_ = Apply(in, models.FilterSpec{MaxPrice: ptr(20000)})
	if !reflect.DeepEqual(in, snapshot) {
		t.Error("Apply mutated its input slice")
	}
}
