package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"jobspy_api/internal/jobs"
	"jobspy_api/internal/shared/logger"
	"jobspy_api/proxypool"
)

// PoolController defines what the web handler needs from the proxy pool manager.
// This decouples the web package from the scheduler.
type PoolController interface {
	Status() proxypool.Status
	Refresh(ctx context.Context) (proxypool.CycleReport, error)
}

// JobSearcher runs a job search and never fails; errors are in the result.
type JobSearcher interface {
	Search(ctx context.Context, params jobs.SearchParams) jobs.Result
}

type Handler struct {
	pool     PoolController
	searcher JobSearcher
}

func NewHandler(pool PoolController, searcher JobSearcher) *Handler {
	return &Handler{pool: pool, searcher: searcher}
}

// proxyHealth is the body of GET /health/proxies and of websocket updates.
type proxyHealth struct {
	ProxySystemEnabled bool   `json:"proxy_system_enabled"`
	WorkingProxies     int    `json:"working_proxies"`
	LastUpdate         *int64 `json:"last_update"`
	Status             string `json:"status"`
}

func newProxyHealth(st proxypool.Status) proxyHealth {
	return proxyHealth{
		ProxySystemEnabled: st.Enabled,
		WorkingProxies:     st.WorkingCount,
		LastUpdate:         st.LastUpdateUnix(),
		Status:             string(st.Label),
	}
}

// HandleJobs 处理 GET /jobs 请求
func (h *Handler) HandleJobs(c *gin.Context) {
	var params jobs.SearchParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.searcher.Search(c.Request.Context(), params))
}

// HandleProxyHealth 处理 GET /health/proxies 请求
func (h *Handler) HandleProxyHealth(c *gin.Context) {
	c.JSON(http.StatusOK, newProxyHealth(h.pool.Status()))
}

// HandleScrapingHealth 处理 GET /health/scraping 请求
func (h *Handler) HandleScrapingHealth(c *gin.Context) {
	st := h.pool.Status()
	c.JSON(http.StatusOK, gin.H{
		"scraping_available": st.ScrapingAvailable(),
		"working_proxies":    st.WorkingCount,
		"fallback_enabled":   st.FallbackEnabled,
	})
}

// HandleRefreshProxies 处理 POST /admin/refresh-proxies 请求。刷新同步执行。
func (h *Handler) HandleRefreshProxies(c *gin.Context) {
	l := logger.WithComponent("WebServer")

	report, err := h.pool.Refresh(c.Request.Context())
	switch {
	case errors.Is(err, proxypool.ErrProxiesDisabled):
		c.JSON(http.StatusOK, gin.H{
			"message":         "Proxy system is disabled",
			"working_proxies": 0,
		})
	case errors.Is(err, proxypool.ErrRefreshInProgress):
		c.JSON(http.StatusConflict, gin.H{
			"message":         "Proxy refresh already in progress",
			"working_proxies": h.pool.Status().WorkingCount,
		})
	case err != nil:
		l.Error().Err(err).Msg("Manual proxy refresh failed.")
		c.JSON(http.StatusInternalServerError, gin.H{
			"message":         err.Error(),
			"working_proxies": h.pool.Status().WorkingCount,
		})
	default:
		body := gin.H{
			"message":         "Proxy refresh completed",
			"working_proxies": report.WorkingCount,
			"cycle_id":        report.ID.String(),
			"candidates":      report.Candidates,
			"promoted":        report.Promoted,
		}
		if report.FetchErr != nil {
			body["fetch_error"] = report.FetchErr.Error()
		}
		c.JSON(http.StatusOK, body)
	}
}
