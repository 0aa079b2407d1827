package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/trawlhq/trawl/config"
	"github.com/trawlhq/trawl/extract"
	"github.com/trawlhq/trawl/fetch"
	"github.com/trawlhq/trawl/filter"
	"github.com/trawlhq/trawl/models"
	"github.com/trawlhq/trawl/selectors"
)

// Scraper runs the full search pipeline: build the search URL, fetch the
// listing page through the engine ladder, extract product records via the
// selector cascade (falling back to the heuristic extractor), then validate,
// filter and truncate. It is stateless across requests and safe for
// concurrent use.
type Scraper struct {
	fetcher  *fetch.Fetcher
	profile  *selectors.Profile
	cascade  *extract.Cascade
	fallback *extract.Fallback
	cfg      config.ExtractConfig
}

// New assembles a Scraper around an already-constructed fetcher and profile.
func New(fetcher *fetch.Fetcher, profile *selectors.Profile, cfg config.ExtractConfig) *Scraper {
	return &Scraper{
		fetcher:  fetcher,
		profile:  profile,
		cascade:  extract.NewCascade(profile),
		fallback: extract.NewFallback(profile),
		cfg:      cfg,
	}
}

// Profile exposes the active selector profile (the health monitor probes it).
func (s *Scraper) Profile() *selectors.Profile { return s.profile }

// SearchURL builds the marketplace search URL for a query.
func (s *Scraper) SearchURL(query string) string {
	return selectors.SearchURLFor(s.profile, query)
}

// Scrape runs one search-and-extract cycle. It never returns a Go error:
// every failure mode is folded into the ExtractionResult so callers get a
// uniform shape whether the page yielded 20 products or a CAPTCHA wall.
func (s *Scraper) Scrape(ctx context.Context, query string, filters models.FilterSpec, limit int) *models.ExtractionResult {
	start := time.Now()
	result := models.NewResult(query)
	log := slog.With("query", query)

	query = strings.TrimSpace(query)
	if query == "" {
		result.Error = models.NewScrapeError(
			models.ErrCodeInvalidInput, "query must not be empty", nil,
		).ToDetail()
		return result.Finish(start)
	}
	if limit <= 0 {
		limit = 5
	}

	searchURL := s.SearchURL(query)
	log.Info("scrape started", "url", searchURL, "limit", limit)

	fetched, err := s.fetcher.Fetch(ctx, searchURL)
	if err != nil {
		return s.handleFetchError(result, query, limit, err, start, log)
	}
	result.EngineUsed = fetched.EngineUsed

	doc, parseErr := goquery.NewDocumentFromReader(strings.NewReader(fetched.HTML))
	if parseErr != nil {
		result.Error = models.NewScrapeError(
			models.ErrCodeInternal, "failed to parse listing HTML", parseErr,
		).ToDetail()
		return result.Finish(start)
	}

	// ── Cascade first, heuristic fallback second ────────────────────
	records := s.cascade.Extract(doc)
	method := models.MethodCascade
	if len(records) == 0 {
		log.Warn("selector cascade yielded nothing, trying fallback extractor")
		records = s.fallback.Extract(doc, s.cfg.MaxProducts)
		method = models.MethodFallback
	}

	records = extract.Validate(records)
	records = filter.Apply(records, filters)
	if len(records) > limit {
		records = records[:limit]
	}

	if len(records) == 0 {
		// A fetched page with nothing extractable is still a successful
		// pass: success=true with an empty record list, distinct from a
		// transport failure or a block.
		log.Warn("extraction produced no records", "method", method)
		result.Success = true
		result.Method = method
		return result.Finish(start)
	}

	result.Success = true
	result.Records = records
	result.Method = method
	log.Info("scrape complete",
		"records", len(records),
		"method", method,
		"engine", result.EngineUsed,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return result.Finish(start)
}

// ScrapeURLs fetches product-detail pages directly and extracts one record
// per page. URLs that fail to fetch or parse are skipped, not fatal.
func (s *Scraper) ScrapeURLs(ctx context.Context, urls []string) *models.ExtractionResult {
	start := time.Now()
	result := models.NewResult("")

	for _, target := range urls {
		rec, ok := s.scrapeProductPage(ctx, target)
		if !ok {
			continue
		}
		result.Records = append(result.Records, rec)
	}

	result.Records = extract.Validate(result.Records)
	result.Success = len(result.Records) > 0
	if result.Success {
		result.Method = models.MethodCascade
	}
	return result.Finish(start)
}

// scrapeProductPage extracts a single record from a product-detail page.
// Detail pages carry the same field markup as listing cards, so the
// profile's field rules apply against the whole document.
func (s *Scraper) scrapeProductPage(ctx context.Context, target string) (models.ProductRecord, bool) {
	log := slog.With("url", target)

	fetched, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		log.Warn("product page fetch failed", "error", err)
		return models.ProductRecord{}, false
	}

	doc, parseErr := goquery.NewDocumentFromReader(strings.NewReader(fetched.HTML))
	if parseErr != nil {
		log.Warn("product page parse failed", "error", parseErr)
		return models.ProductRecord{}, false
	}

	rec, ok := s.cascade.ExtractPage(doc, fetched.FinalURL)
	if !ok {
		log.Warn("product page yielded no extractable fields")
		return models.ProductRecord{}, false
	}
	return rec, true
}

// handleFetchError maps fetch failures onto the result shape. Block signals
// populate Blocked and, when configured, a set of clearly-tagged synthetic
// placeholder records.
func (s *Scraper) handleFetchError(result *models.ExtractionResult, query string, limit int, err error, start time.Time, log *slog.Logger) *models.ExtractionResult {
	if blocked, ok := fetch.AsBlocked(err); ok {
		log.Warn("marketplace blocked the request",
			"signal", blocked.Signal, "host", blocked.Host)
		result.Blocked = string(blocked.Signal)
		result.Error = models.NewScrapeError(
			models.ErrCodeBlocked,
			fmt.Sprintf("marketplace blocked the request (%s)", blocked.Signal),
			err,
		).ToDetail()

		if s.cfg.SyntheticFallback {
			result.Records = syntheticRecords(query, limit)
			result.Method = models.MethodSynthetic
		}
		return result.Finish(start)
	}

	var scrapeErr *models.ScrapeError
	if errors.As(err, &scrapeErr) {
		result.Error = scrapeErr.ToDetail()
		return result.Finish(start)
	}

	code := models.ErrCodeNetwork
	if errors.Is(err, context.DeadlineExceeded) {
		code = models.ErrCodeTimeout
	}
	result.Error = models.NewScrapeError(code, "fetch failed", err).ToDetail()
	return result.Finish(start)
}

// syntheticRecords fabricates placeholder listings for a blocked query.
// Every record is tagged MethodSynthetic and carries no URL, so downstream
// consumers cannot mistake them for scraped data. Disabled by default.
func syntheticRecords(query string, limit int) []models.ProductRecord {
	if limit > 3 {
		limit = 3
	}
	records := make([]models.ProductRecord, 0, limit)
	for i := 0; i < limit; i++ {
		price := float64(24999 + i*5000)
		records = append(records, models.ProductRecord{
			Title:            fmt.Sprintf("%s (sample %d)", query, i+1),
			PriceDisplay:     extract.FormatPrice(price),
			PriceNumeric:     models.Some(price),
			RatingNumeric:    models.Some(4.0),
			Availability:     models.AvailabilityUnknown,
			ExtractionMethod: models.MethodSynthetic,
		})
	}
	return records
}
