package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"jobspy_api/internal/jobs"
	"jobspy_api/internal/service/web"
	"jobspy_api/internal/shared/logger"
	"jobspy_api/internal/shared/types"
	"jobspy_api/proxypool"
	"jobspy_api/proxypool/scraper"
	"jobspy_api/proxypool/validator"
)

const (
	searchTimeout   = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// AppServer is the application's main struct. It owns the single proxy pool
// manager and hands it to every consumer.
type AppServer struct {
	cfg types.Config

	proxyPoolManager *proxypool.Manager
	searcher         *jobs.Searcher
	hub              *web.Hub
	server           *web.Server

	waitGroup sync.WaitGroup
	stopOnce  sync.Once
}

// NewManager builds the proxy pool manager with the configured providers.
func NewManager(cfg types.ProxyConf) (*proxypool.Manager, error) {
	fetcher, err := scraper.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build proxy fetcher: %w", err)
	}
	v := validator.NewValidator(cfg.ProbeTimeoutDuration(), cfg.MaxWorkers, cfg.ProbeTargets)
	return proxypool.NewManager(cfg, fetcher, v), nil
}

// New wires every component from cfg.
func New(cfg types.Config) (*AppServer, error) {
	m, err := NewManager(cfg.ProxyConf)
	if err != nil {
		return nil, err
	}

	provider := jobs.NewLinkedInScraper(searchTimeout, jobs.WithDescriptions(true))
	searcher := jobs.NewSearcher(provider, m.Selector())

	hub := web.NewHub()
	m.OnUpdate(hub.BroadcastPoolUpdate)

	return &AppServer{
		cfg:              cfg,
		proxyPoolManager: m,
		searcher:         searcher,
		hub:              hub,
		server:           web.NewServer(cfg, m, searcher, hub),
	}, nil
}

// Manager returns the proxy pool manager.
func (s *AppServer) Manager() *proxypool.Manager {
	return s.proxyPoolManager
}

// Run starts every component and blocks until ctx is done, then shuts down.
func (s *AppServer) Run(ctx context.Context) error {
	logger.Info().
		Bool("use_proxies", s.cfg.UseProxies).
		Strs("sources", s.cfg.Sources).
		Msg("Starting jobspy API...")

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	s.waitGroup.Add(1)
	go func() {
		defer s.waitGroup.Done()
		s.hub.Run(hubCtx) // 启动 Hub
	}()

	if err := s.server.Start(&s.waitGroup); err != nil {
		stopHub()
		s.waitGroup.Wait()
		return err
	}

	// Start the proxy pool manager's background tasks
	s.proxyPoolManager.Start()

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")
	s.Stop()
	stopHub()
	s.waitGroup.Wait()
	return nil
}

// Stop gracefully shuts down the server and the scheduler.
func (s *AppServer) Stop() {
	s.stopOnce.Do(func() {
		// 先停止调度器，取消进行中的刷新
		s.proxyPoolManager.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("Web server did not shut down cleanly.")
		}
		logger.Info().Msg("Server stopped.")
	})
}
