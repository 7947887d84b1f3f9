package handler

import (
	"time"

	"currencyapi/config"
	"currencyapi/internal/middleware"
	"currencyapi/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Routes everything the router needs
type Routes struct {
	DB           func() *gorm.DB // nil means model.GetDB
	Cache        *middleware.ResponseCache
	CacheBackend string
	ListTTL      time.Duration
	DetailTTL    time.Duration
	Timeout      time.Duration // 0 disables the request budget
	Jobs         JobRunner     // nil hides the job endpoints
	JWT          config.JWTConfig
}

// RegisterRoutes mounts the API, job triggers and health checks on r
func RegisterRoutes(r *gin.Engine, rt Routes) {
	RegisterValidators()

	api := r.Group("/api/v1")
	if rt.Timeout > 0 {
		api.Use(middleware.Timeout(rt.Timeout))
	}

	listCache := rt.Cache.Handler(rt.ListTTL, util.NormalizeListParams)
	detailCache := rt.Cache.Handler(rt.DetailTTL, util.NormalizeListParams)

	NewCurrencyGroupHandler(rt.DB).Register(api.Group("/currency_group"), listCache, detailCache)
	NewCurrencyHandler(rt.DB).Register(api.Group("/currency"), listCache, detailCache)
	NewCurrencyRateHandler(rt.DB).Register(api.Group("/currency_rate"), listCache, detailCache)

	// jobs can outlast the request budget, so they sit outside it
	if rt.Jobs != nil {
		auth := NewAuthHandler(rt.JWT)
		if auth.Enabled() {
			r.POST("/api/v1/auth/token", auth.Token)
		}

		jobHandler := NewJobHandler(rt.Jobs)
		jobs := r.Group("/api/v1/jobs", middleware.AdminAuth(rt.JWT.Secret))
		jobs.GET("", jobHandler.Status)
		jobs.POST("/fetch", jobHandler.Fetch)
		jobs.POST("/apply", jobHandler.Apply)
	}

	health := NewHealthHandler(rt.DB, rt.CacheBackend, rt.Jobs)
	r.GET("/health", health.Health)
	r.GET("/health/detail", health.Detail)
}
