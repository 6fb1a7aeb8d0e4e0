package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	PulseInterval  time.Duration
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
		PulseInterval:  10 * time.Second,
	}
}

// Server HTTP服务器
type Server struct {
	server   *http.Server
	config   ServerConfig
	hub      *Hub
	handlers *Handlers
	cancel   context.CancelFunc
}

// NewServer 创建HTTP服务器并注册全部路由
func NewServer(config ServerConfig, handlers *Handlers) *Server {
	mux := http.NewServeMux()
	handlers.Register(mux)

	hub := NewHub()
	mux.HandleFunc("GET /api/ws/market", hub.HandleWS)

	chain := Chain(
		RecoveryMiddleware,
		LoggerMiddleware,
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		TimeoutMiddleware(config.Timeout),
	)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      chain(mux),
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
			IdleTimeout:  120 * time.Second,
		},
		config:   config,
		hub:      hub,
		handlers: handlers,
	}
}

// Start 启动服务器与WebSocket推送，阻塞直至服务器退出
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.hub.Run(ctx)
	interval := s.config.PulseInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go s.hub.StreamMarketPulse(ctx, s.handlers.Cache, interval)

	zap.L().Info("starting http server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 优雅停机
func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zap.L().Info("shutting down http server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器监听地址
func (s *Server) Addr() string {
	return s.server.Addr
}
