package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"jobspy_api/internal/shared/logger"
	"jobspy_api/internal/shared/types"
)

// basicAuthMiddleware 检查 admin_user 和 admin_password 是否已配置。
// 如果配置了，它将强制执行 HTTP Basic Authentication。
func basicAuthMiddleware(user, pass string) gin.HandlerFunc {
	// 如果用户名或密码未设置，则不启用认证
	if user == "" || pass == "" {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		u, p, ok := c.Request.BasicAuth()
		if !ok || u != user || p != pass {
			c.Header("WWW-Authenticate", `Basic realm="Restricted"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		// 认证成功，继续处理请求
		c.Next()
	}
}

// requestLogger logs every request through zerolog.
func requestLogger() gin.HandlerFunc {
	l := logger.WithComponent("WebServer")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		var ev *zerolog.Event
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = l.Error()
		} else {
			ev = l.Info()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("Request handled.")
	}
}

// Server is the HTTP API.
type Server struct {
	cfg        types.ServerConf
	engine     *gin.Engine
	httpServer *http.Server
}

// NewServer builds the gin engine and registers every route.
func NewServer(cfg types.Config, pool PoolController, searcher JobSearcher, hub *Hub) *Server {
	if !strings.EqualFold(cfg.LogConf.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	handler := NewHandler(pool, searcher)
	engine.GET("/jobs", handler.HandleJobs)
	engine.GET("/health/proxies", handler.HandleProxyHealth)
	engine.GET("/health/scraping", handler.HandleScrapingHealth)

	// --- 认证保护的 API ---
	admin := engine.Group("/admin", basicAuthMiddleware(cfg.AdminUser, cfg.AdminPassword))
	admin.POST("/refresh-proxies", handler.HandleRefreshProxies)

	// --- WebSocket Endpoint (公开，无需认证) ---
	engine.GET("/ws", hub.handleWebSocket)

	return &Server{
		cfg:    cfg.ServerConf,
		engine: engine,
	}
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Start binds the listener and serves in the background.
func (s *Server) Start(wg *sync.WaitGroup) error {
	addr := s.Addr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info().Msgf("SUCCESS: API is listening on http://%s", addr)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Web server error.")
		}
		logger.Info().Msg("Web server stopped.")
	}()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
