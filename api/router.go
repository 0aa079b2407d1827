package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/trawlhq/trawl/api/handler"
	"github.com/trawlhq/trawl/api/middleware"
	"github.com/trawlhq/trawl/cache"
	"github.com/trawlhq/trawl/config"
	"github.com/trawlhq/trawl/health"
	"github.com/trawlhq/trawl/scraper"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoints are intentionally outside auth so monitoring probes
// always work.
func NewRouter(sc *scraper.Scraper, stats handler.StatsFunc, monitor *health.Monitor, cfg *config.Config, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(stats, startTime))
	v1.GET("/health/selectors", handler.SelectorHealth(monitor))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Search
	protected.POST("/search", handler.Search(sc, cc, cfg.Fetch))
	protected.POST("/intent/search", handler.IntentSearch(sc, cc, cfg.Fetch))

	// Direct product-page extraction
	protected.POST("/products", handler.Products(sc, cfg.Fetch))

	return r
}
