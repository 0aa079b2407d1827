package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/trawlhq/trawl/cache"
	"github.com/trawlhq/trawl/config"
	"github.com/trawlhq/trawl/intent"
	"github.com/trawlhq/trawl/models"
	"github.com/trawlhq/trawl/scraper"
)

// Search returns a handler for POST /api/v1/search.
//
// Flow:
//  1. Parse & validate request, apply defaults.
//  2. Cache lookup keyed on (query, filters, limit).
//  3. Scraper.Scrape under the request's timeout budget.
//  4. Cache successful results, map the outcome to an HTTP status.
func Search(sc *scraper.Scraper, cc *cache.Cache, fetchCfg config.FetchConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		req.Defaults()

		runSearch(c, sc, cc, fetchCfg, &req)
	}
}

// IntentSearch returns a handler for POST /api/v1/intent/search. It accepts
// a structured shopping intent (the output of an upstream prompt parser),
// flattens it into a query and filter set, and runs the same pipeline as
// /search.
func IntentSearch(sc *scraper.Scraper, cc *cache.Cache, fetchCfg config.FetchConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var parsed intent.ParsedIntent
		if err := c.ShouldBindJSON(&parsed); err != nil {
			badRequest(c, err.Error())
			return
		}

		query, filters := intent.BuildQuery(&parsed)
		if query == "" {
			badRequest(c, "intent yields an empty search query")
			return
		}

		req := models.SearchRequest{
			Query:   query,
			Filters: filters,
			Limit:   parsed.MaxProducts,
		}
		req.Defaults()

		runSearch(c, sc, cc, fetchCfg, &req)
	}
}

func runSearch(c *gin.Context, sc *scraper.Scraper, cc *cache.Cache, fetchCfg config.FetchConfig, req *models.SearchRequest) {
	cacheKey := cache.Key(req.Query, req.Filters, req.Limit)
	if cc != nil {
		if cached, hit := cc.Get(cacheKey); hit {
			cached.CacheStatus = "hit"
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	timeout := clampTimeout(time.Duration(req.Timeout)*time.Second, fetchCfg)
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	result := sc.Scrape(ctx, req.Query, req.Filters, req.Limit)

	if cc != nil && result.Success {
		result.CacheStatus = "miss"
		cc.Set(cacheKey, result)
	}

	c.JSON(statusFor(result), result)
}

// Products returns a handler for POST /api/v1/products: direct extraction
// from known product-detail URLs, bypassing search.
func Products(sc *scraper.Scraper, fetchCfg config.FetchConfig) gin.HandlerFunc {
	type request struct {
		URLs    []string `json:"urls" binding:"required,min=1,max=20,dive,url"`
		Timeout int      `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`
	}

	return func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		timeout := clampTimeout(time.Duration(req.Timeout)*time.Second, fetchCfg)
		// Budget scales with the batch: each page gets its own fetch ladder.
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout*time.Duration(len(req.URLs)))
		defer cancel()

		result := sc.ScrapeURLs(ctx, req.URLs)
		c.JSON(statusFor(result), result)
	}
}

// statusFor maps an extraction outcome to an HTTP status. Blocked and
// errored results keep their structured body; the status is for clients
// that route on codes alone.
func statusFor(result *models.ExtractionResult) int {
	if result.Success {
		return http.StatusOK
	}
	if result.Blocked != "" {
		return http.StatusBadGateway
	}
	if result.Error != nil {
		switch result.Error.Code {
		case models.ErrCodeTimeout:
			return http.StatusGatewayTimeout
		case models.ErrCodeInvalidInput:
			return http.StatusBadRequest
		case models.ErrCodeNetwork, models.ErrCodeBlocked:
			return http.StatusBadGateway
		default:
			return http.StatusInternalServerError
		}
	}
	// Fetched fine but nothing extractable: the request itself succeeded.
	return http.StatusOK
}

func clampTimeout(requested time.Duration, cfg config.FetchConfig) time.Duration {
	if requested <= 0 {
		return cfg.DefaultTimeout
	}
	if requested > cfg.MaxTimeout {
		return cfg.MaxTimeout
	}
	return requested
}

func badRequest(c *gin.Context, msg string) {
	resp := models.NewResult("")
	resp.Error = &models.ErrorDetail{
		Code:    models.ErrCodeInvalidInput,
		Message: msg,
	}
	c.JSON(http.StatusBadRequest, resp)
}
