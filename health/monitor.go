// Package health probes the live marketplace with a known query and scores
// how well the configured selector rules still match the page. Selector rot
// is gradual: a marketplace class-name sweep silently drops the cascade
// yield long before extraction fails outright, so the monitor watches the
// yield ratio and the page's structural fingerprint between probes.
package health

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/trawlhq/trawl/config"
	"github.com/trawlhq/trawl/extract"
	"github.com/trawlhq/trawl/fetch"
	"github.com/trawlhq/trawl/layout"
	"github.com/trawlhq/trawl/selectors"
	"github.com/trawlhq/trawl/webhook"
)

// driftThreshold is the Hamming distance between consecutive probe
// fingerprints above which we call the layout changed.
const driftThreshold = 16

// RuleHealth scores one selector rule against the probe page.
type RuleHealth struct {
	Field    string  `json:"field"`
	Rule     string  `json:"rule"`
	Selector string  `json:"selector"`
	Matches  int     `json:"matches"`
	Yield    float64 `json:"yield"`
}

// Report is the outcome of one probe cycle.
type Report struct {
	Marketplace string    `json:"marketplace"`
	ProbeQuery  string    `json:"probe_query"`
	CheckedAt   time.Time `json:"checked_at"`

	// Containers is how many listing cards the container cascade adopted;
	// Extracted is how many of those yielded both a title and a price.
	Containers int     `json:"containers"`
	Extracted  int     `json:"extracted"`
	YieldRatio float64 `json:"yield_ratio"`
	Degraded   bool    `json:"degraded"`

	// Fingerprint is the structural hash of the probe page; Drift is its
	// Hamming distance from the previous probe.
	Fingerprint uint64 `json:"fingerprint"`
	Drift       int    `json:"drift"`
	Drifted     bool   `json:"drifted"`

	Rules      []RuleHealth    `json:"rules"`
	Candidates []CandidateRule `json:"candidates,omitempty"`

	EngineUsed string `json:"engine_used,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Healthy is the inverse of "degraded or errored"; drift alone is a warning,
// not a failure.
func (r *Report) Healthy() bool {
	return r.Error == "" && !r.Degraded
}

// Monitor runs periodic probes and keeps the latest report for the API.
type Monitor struct {
	fetcher *fetch.Fetcher
	profile *selectors.Profile
	cfg     config.HealthConfig

	mu       sync.RWMutex
	latest   *Report
	baseline uint64
}

func NewMonitor(fetcher *fetch.Fetcher, profile *selectors.Profile, cfg config.HealthConfig) *Monitor {
	return &Monitor{fetcher: fetcher, profile: profile, cfg: cfg}
}

// Latest returns the most recent report, or nil before the first probe.
func (m *Monitor) Latest() *Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// Run probes immediately, then on every tick until the context is canceled.
// Intended to be started as a goroutine from main.
func (m *Monitor) Run(ctx context.Context) {
	if !m.cfg.Enabled {
		slog.Info("selector health monitoring disabled")
		return
	}
	slog.Info("selector health monitor started",
		"interval", m.cfg.Interval, "probeQuery", m.cfg.ProbeQuery)

	m.probeAndPublish(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAndPublish(ctx)
		}
	}
}

func (m *Monitor) probeAndPublish(ctx context.Context) {
	wasHealthy := true
	if prev := m.Latest(); prev != nil {
		wasHealthy = prev.Healthy()
	}

	report := m.Probe(ctx)

	m.mu.Lock()
	m.latest = report
	if report.Fingerprint != 0 {
		m.baseline = report.Fingerprint
	}
	m.mu.Unlock()

	m.notify(report, wasHealthy)
}

// Probe runs one health check cycle and returns the report without storing
// it. The API's on-demand health endpoint uses this directly.
func (m *Monitor) Probe(ctx context.Context) *Report {
	report := &Report{
		Marketplace: m.profile.Marketplace,
		ProbeQuery:  m.cfg.ProbeQuery,
		CheckedAt:   time.Now().UTC(),
	}

	searchURL := selectors.SearchURLFor(m.profile, m.cfg.ProbeQuery)
	fetched, err := m.fetcher.Fetch(ctx, searchURL)
	if err != nil {
		report.Error = err.Error()
		slog.Warn("health probe fetch failed", "error", err)
		return report
	}
	report.EngineUsed = fetched.EngineUsed

	doc, parseErr := goquery.NewDocumentFromReader(strings.NewReader(fetched.HTML))
	if parseErr != nil {
		report.Error = "parse: " + parseErr.Error()
		return report
	}

	m.scoreSelectors(doc, report)
	m.scoreLayout(fetched.HTML, report)

	if report.Degraded {
		report.Candidates = DiscoverCandidates(doc, m.profile)
		slog.Warn("selector health degraded",
			"yield", report.YieldRatio,
			"containers", report.Containers,
			"candidates", len(report.Candidates))
	} else {
		slog.Info("selector health ok",
			"yield", report.YieldRatio, "containers", report.Containers)
	}
	return report
}

// scoreSelectors replays the container cascade over the probe page and
// measures, per adopted card, whether the title and price rules both land.
func (m *Monitor) scoreSelectors(doc *goquery.Document, report *Report) {
	containers := adoptedContainers(doc, m.profile)
	report.Containers = len(containers)
	if len(containers) == 0 {
		report.Degraded = true
		report.Rules = ruleScores(doc.Selection, 1, m.profile)
		return
	}

	extracted := 0
	for _, card := range containers {
		if fieldMatches(card, m.profile, selectors.FieldTitle) &&
			fieldMatches(card, m.profile, selectors.FieldPrice) {
			extracted++
		}
	}
	report.Extracted = extracted
	report.YieldRatio = float64(extracted) / float64(len(containers))
	report.Degraded = report.YieldRatio < m.cfg.DegradedThreshold

	// Score each rule across all adopted cards so operators can see which
	// selector generation is still pulling its weight.
	report.Rules = cardRuleScores(containers, m.profile)
}

// scoreLayout fingerprints the probe page and compares it to the previous
// probe's baseline.
func (m *Monitor) scoreLayout(rawHTML string, report *Report) {
	report.Fingerprint = layout.Fingerprint(rawHTML)

	m.mu.RLock()
	baseline := m.baseline
	m.mu.RUnlock()

	if baseline == 0 || report.Fingerprint == 0 {
		return
	}
	report.Drift = layout.Distance(baseline, report.Fingerprint)
	report.Drifted = layout.Drifted(baseline, report.Fingerprint, driftThreshold)
	if report.Drifted {
		slog.Warn("marketplace layout drifted since last probe", "distance", report.Drift)
	}
}

// notify pushes degradation transitions to the configured webhook.
func (m *Monitor) notify(report *Report, wasHealthy bool) {
	if m.cfg.WebhookURL == "" {
		return
	}
	switch {
	case report.Drifted:
		webhook.DeliverAsync(m.cfg.WebhookURL, m.cfg.WebhookSecret,
			webhook.NewEvent(webhook.EventLayoutDrifted, report.Marketplace, report))
	case wasHealthy && !report.Healthy():
		webhook.DeliverAsync(m.cfg.WebhookURL, m.cfg.WebhookSecret,
			webhook.NewEvent(webhook.EventSelectorsDegraded, report.Marketplace, report))
	case !wasHealthy && report.Healthy():
		webhook.DeliverAsync(m.cfg.WebhookURL, m.cfg.WebhookSecret,
			webhook.NewEvent(webhook.EventSelectorsRecovered, report.Marketplace, report))
	}
}

// adoptedContainers mirrors the cascade's container adoption: the first
// container rule with at least one plausible match wins the whole pass.
// Plausibility uses the cascade's own predicate, so the probe's yield
// denominator matches what production extraction would adopt.
func adoptedContainers(doc *goquery.Document, p *selectors.Profile) []*goquery.Selection {
	for _, rule := range p.Rules(selectors.FieldContainer) {
		var cards []*goquery.Selection
		doc.Find(rule.Selector).Each(func(_ int, s *goquery.Selection) {
			if extract.ContainerPlausible(s, p.Container) {
				cards = append(cards, s)
			}
		})
		if len(cards) > 0 {
			return cards
		}
	}
	return nil
}

// fieldMatches reports whether any rule in the field cascade produces a
// usable value inside the card.
func fieldMatches(card *goquery.Selection, p *selectors.Profile, field string) bool {
	for _, rule := range p.Rules(field) {
		el := card.Find(rule.Selector).First()
		if el.Length() == 0 {
			continue
		}
		text := strings.TrimSpace(el.Text())
		if text == "" {
			continue
		}
		switch field {
		case selectors.FieldPrice:
			if extract.ParsePrice(text).Known {
				return true
			}
		default:
			return true
		}
	}
	return false
}

// cardRuleScores counts, per rule, how many adopted cards it matches.
func cardRuleScores(cards []*goquery.Selection, p *selectors.Profile) []RuleHealth {
	var scores []RuleHealth
	total := len(cards)
	for _, field := range []string{selectors.FieldTitle, selectors.FieldPrice, selectors.FieldRating} {
		for _, rule := range p.Rules(field) {
			matches := 0
			for _, card := range cards {
				if card.Find(rule.Selector).Length() > 0 {
					matches++
				}
			}
			scores = append(scores, RuleHealth{
				Field:    field,
				Rule:     rule.Name,
				Selector: rule.Selector,
				Matches:  matches,
				Yield:    float64(matches) / float64(total),
			})
		}
	}
	return scores
}

// ruleScores scores rules against the whole document; used when no container
// rule matched at all, so operators still see which generations are dead.
func ruleScores(root *goquery.Selection, total int, p *selectors.Profile) []RuleHealth {
	var scores []RuleHealth
	for _, rule := range p.Rules(selectors.FieldContainer) {
		matches := root.Find(rule.Selector).Length()
		scores = append(scores, RuleHealth{
			Field:    selectors.FieldContainer,
			Rule:     rule.Name,
			Selector: rule.Selector,
			Matches:  matches,
			Yield:    float64(matches) / float64(total),
		})
	}
	return scores
}
