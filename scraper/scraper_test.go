package scraper

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/trawlhq/trawl/config"
	"github.com/trawlhq/trawl/engine"
	"github.com/trawlhq/trawl/fetch"
	"github.com/trawlhq/trawl/models"
	"github.com/trawlhq/trawl/selectors"
)

// pageEngine serves a fixed body for every request.
type pageEngine struct {
	name  string
	html  string
	calls int
}

func (p *pageEngine) Name() string { return p.name }

func (p *pageEngine) Fetch(_ context.Context, req *engine.Request) (*engine.Result, error) {
	p.calls++
	return &engine.Result{
		HTML:       p.html,
		StatusCode: 200,
		FinalURL:   req.URL,
		EngineName: p.name,
	}, nil
}

const listingPage = `<html><body><div class="results">
  <div data-id="A1">
    <a href="/p/acme-laptop?pid=A1">
      <div class="KzDlHZ">Acme Gaming Laptop 16GB RAM RTX 4060</div>
      <div class="Nx9bqj">&#8377;55,990</div>
      <div class="XQDdHH">4.3</div>
    </a>
  </div>
  <div data-id="B2">
    <a href="/p/zen-keyboard?pid=B2">
      <div class="KzDlHZ">Zen Mechanical Keyboard RGB Hot-Swap</div>
      <div class="Nx9bqj">&#8377;3,499</div>
      <div class="XQDdHH">4.6</div>
    </a>
  </div>
</div></body></html>`

// unknownClassPage defeats the selector cascade but keeps /p/ product
// anchors, so only the heuristic fallback can read it.
const unknownClassPage = `<html><body><div class="zz-grid">
  <div class="zz-card">
    <a href="/p/acme-laptop?pid=A1">Acme Gaming Laptop 16GB RAM RTX 4060</a>
    <span>&#8377;55,990</span>
  </div>
  <div class="zz-card">
    <a href="/p/zen-keyboard?pid=B2">Zen Mechanical Keyboard RGB Hot-Swap</a>
    <span>&#8377;3,499</span>
  </div>
</div></body></html>`

func testScraper(t *testing.T, eng engine.Engine, extractCfg config.ExtractConfig) *Scraper {
	t.Helper()
	fetchCfg := config.FetchConfig{
		MaxAttempts:     1,
		BaseDelay:       time.Millisecond,
		DefaultTimeout:  5 * time.Second,
		MaxTimeout:      10 * time.Second,
		HostRPS:         1000,
		BreakerCooldown: time.Minute,
		EngineMode:      "auto",
		EngineMemoryTTL: time.Hour,
	}
	fetcher := fetch.New(fetchCfg, []engine.Engine{eng}, engine.NewHostMemory(fetchCfg.EngineMemoryTTL))
	return New(fetcher, selectors.Default(), extractCfg)
}

func TestScrape_CascadePath(t *testing.T) {
	eng := &pageEngine{name: "http", html: listingPage}
	sc := testScraper(t, eng, config.ExtractConfig{MaxProducts: 20})

	result := sc.Scrape(context.Background(), "gaming laptop", models.FilterSpec{}, 5)

	if !result.Success {
		t.Fatalf("scrape failed: %+v", result.Error)
	}
	if result.Method != models.MethodCascade {
		t.Errorf("method = %q, want %q", result.Method, models.MethodCascade)
	}
	if result.EngineUsed != "http" {
		t.Errorf("engine used = %q", result.EngineUsed)
	}
	if len(result.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(result.Records))
	}

	first := result.Records[0]
	if first.Title != "Acme Gaming Laptop 16GB RAM RTX 4060" {
		t.Errorf("title = %q", first.Title)
	}
	if !first.PriceNumeric.Known || first.PriceNumeric.Value != 55990 {
		t.Errorf("price = %+v", first.PriceNumeric)
	}
	if !strings.HasPrefix(first.URL, "https://") {
		t.Errorf("URL not absolutized: %q", first.URL)
	}
}

func TestScrape_FallbackPath(t *testing.T) {
	eng := &pageEngine{name: "http", html: unknownClassPage}
	sc := testScraper(t, eng, config.ExtractConfig{MaxProducts: 20})

	result := sc.Scrape(context.Background(), "gaming laptop", models.FilterSpec{}, 5)

	if !result.Success {
		t.Fatalf("scrape failed: %+v", result.Error)
	}
	if result.Method != models.MethodFallback {
		t.Errorf("method = %q, want %q", result.Method, models.MethodFallback)
	}
	if len(result.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(result.Records))
	}
}

func TestScrape_LimitTruncates(t *testing.T) {
	eng := &pageEngine{name: "http", html: listingPage}
	sc := testScraper(t, eng, config.ExtractConfig{MaxProducts: 20})

	result := sc.Scrape(context.Background(), "gaming laptop", models.FilterSpec{}, 1)

	if !result.Success {
		t.Fatalf("scrape failed: %+v", result.Error)
	}
	if len(result.Records) != 1 {
		t.Errorf("got %d records, want 1", len(result.Records))
	}
}

func TestScrape_FiltersApply(t *testing.T) {
	eng := &pageEngine{name: "http", html: listingPage}
	sc := testScraper(t, eng, config.ExtractConfig{MaxProducts: 20})

	maxPrice := 10000.0
	result := sc.Scrape(context.Background(), "gaming laptop", models.FilterSpec{MaxPrice: &maxPrice}, 5)

	if !result.Success {
		t.Fatalf("scrape failed: %+v", result.Error)
	}
	if len(result.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(result.Records))
	}
	if result.Records[0].Title != "Zen Mechanical Keyboard RGB Hot-Swap" {
		t.Errorf("wrong record survived the filter: %q", result.Records[0].Title)
	}
}

func TestScrape_EmptyQuery(t *testing.T) {
	eng := &pageEngine{name: "http", html: listingPage}
	sc := testScraper(t, eng, config.ExtractConfig{MaxProducts: 20})

	result := sc.Scrape(context.Background(), "   ", models.FilterSpec{}, 5)

	if result.Success {
		t.Fatal("blank query must not succeed")
	}
	if result.Error == nil || result.Error.Code != models.ErrCodeInvalidInput {
		t.Errorf("error = %+v, want %s", result.Error, models.ErrCodeInvalidInput)
	}
	if eng.calls != 0 {
		t.Errorf("blank query must not hit the network, got %d calls", eng.calls)
	}
}

func TestScrape_BlockedWithoutSynthetic(t *testing.T) {
	eng := &pageEngine{name: "http", html: "<html><body>robot check, please verify</body></html>"}
	sc := testScraper(t, eng, config.ExtractConfig{MaxProducts: 20})

	result := sc.Scrape(context.Background(), "gaming laptop", models.FilterSpec{}, 5)

	if result.Success {
		t.Fatal("blocked scrape must not succeed")
	}
	if result.Blocked != string(fetch.SignalCaptcha) {
		t.Errorf("blocked = %q, want %q", result.Blocked, fetch.SignalCaptcha)
	}
	if result.Error == nil || result.Error.Code != models.ErrCodeBlocked {
		t.Errorf("error = %+v, want %s", result.Error, models.ErrCodeBlocked)
	}
	if len(result.Records) != 0 {
		t.Errorf("synthetic records returned without opt-in: %d", len(result.Records))
	}
}

func TestScrape_SyntheticFallbackOptIn(t *testing.T) {
	eng := &pageEngine{name: "http", html: "<html><body>robot check, please verify</body></html>"}
	sc := testScraper(t, eng, config.ExtractConfig{MaxProducts: 20, SyntheticFallback: true})

	result := sc.Scrape(context.Background(), "gaming laptop", models.FilterSpec{}, 5)

	if result.Success {
		t.Fatal("synthetic results must still report failure")
	}
	if result.Method != models.MethodSynthetic {
		t.Errorf("method = %q, want %q", result.Method, models.MethodSynthetic)
	}
	if len(result.Records) == 0 || len(result.Records) > 3 {
		t.Fatalf("got %d synthetic records, want 1..3", len(result.Records))
	}
	for _, rec := range result.Records {
		if rec.ExtractionMethod != models.MethodSynthetic {
			t.Errorf("record %q not tagged synthetic", rec.Title)
		}
		if rec.URL != "" {
			t.Errorf("synthetic record carries a URL: %q", rec.URL)
		}
		if !strings.Contains(rec.Title, "gaming laptop") {
			t.Errorf("synthetic title missing query: %q", rec.Title)
		}
	}
}

func TestScrape_EmptyPageSucceedsWithNoRecords(t *testing.T) {
	// A valid page with no product markup at all. Long enough that the
	// fetcher does not mistake it for an unrendered SPA shell.
	page := "<html><body><p>" +
		strings.Repeat("Nothing matched your search today, try different words. ", 15) +
		"</p></body></html>"
	eng := &pageEngine{name: "http", html: page}
	sc := testScraper(t, eng, config.ExtractConfig{MaxProducts: 20})

	result := sc.Scrape(context.Background(), "gaming laptop", models.FilterSpec{}, 5)

	// Zero extractable products is not a failure: the fetch worked, the
	// page is just empty. Callers tell this apart from blocks and
	// transport errors by success=true with an empty record list.
	if !result.Success {
		t.Fatalf("empty extraction must still succeed: %+v", result.Error)
	}
	if len(result.Records) != 0 {
		t.Errorf("got %d records, want 0", len(result.Records))
	}
	if result.Blocked != "" {
		t.Errorf("empty page flagged as blocked: %q", result.Blocked)
	}
	if result.Error != nil {
		t.Errorf("unexpected error detail: %+v", result.Error)
	}
	if result.Method == "" {
		t.Error("empty pass should still record the method tried")
	}
}

func TestSearchURL(t *testing.T) {
	eng := &pageEngine{name: "http", html: listingPage}
	sc := testScraper(t, eng, config.ExtractConfig{MaxProducts: 20})

	got := sc.SearchURL("gaming laptop")
	want := "https://www.flipkart.com/search?q=gaming+laptop"
	if got != want {
		t.Errorf("search URL = %q, want %q", got, want)
	}
}

func TestScrapeURLs(t *testing.T) {
	// A product-detail page carries the same field markup as a listing card.
	detail := `<html><body>
  <div class="KzDlHZ">Acme Gaming Laptop 16GB RAM RTX 4060</div>
  <div class="Nx9bqj">&#8377;55,990</div>
  <div class="XQDdHH">4.3</div>
</body></html>`
	eng := &pageEngine{name: "http", html: detail}
	sc := testScraper(t, eng, config.ExtractConfig{MaxProducts: 20})

	result := sc.ScrapeURLs(context.Background(), []string{
		"https://www.flipkart.com/p/acme-laptop?pid=A1",
	})

	if !result.Success {
		t.Fatalf("scrape failed: %+v", result.Error)
	}
	if len(result.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(result.Records))
	}
	rec := result.Records[0]
	if rec.Title != "Acme Gaming Laptop 16GB RAM RTX 4060" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.URL != "https://www.flipkart.com/p/acme-laptop?pid=A1" {
		t.Errorf("url = %q", rec.URL)
	}
}
