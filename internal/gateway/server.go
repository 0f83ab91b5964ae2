package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/apigateway/internal/proxy"
	"github.com/nao1215/apigateway/internal/route"
	"github.com/nao1215/apigateway/pkg/apierror"
	"github.com/nao1215/apigateway/pkg/httpclient"
	"github.com/nao1215/apigateway/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server はAPI GatewayのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// registry はルートテーブル。起動後は変更しない。
	registry *route.Registry
	// gate はアクセス判定。
	gate *AccessGate
	// forwarder はバックエンドへの転送を行う。
	forwarder *proxy.Forwarder
	// pool は転送先ごとのHTTPクライアント。
	pool *httpclient.Pool
	// metrics はこのサーバー専用のPrometheusレジストリ。
	metrics *prometheus.Registry
}

// NewServer は設定からルートを読み込み、新しいGatewayサーバーを生成する。
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	routes, err := cfg.Routes.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("ルート設定の読み込みに失敗(%s): %w", cfg.Routes, err)
	}
	return newServer(cfg, routes, middleware.NewJWTVerifier(cfg.JWTSecret))
}

// newServer はルートとトークン検証器を指定してサーバーを生成する。
func newServer(cfg Config, routes []route.ServiceRoute, verifier middleware.TokenVerifier) (*Server, error) {
	registry, err := route.NewRegistry(routes)
	if err != nil {
		return nil, fmt.Errorf("ルートテーブルの構築に失敗: %w", err)
	}
	for _, rt := range registry.Routes() {
		log.Printf("ルート: %s -> %s (requiresAuth=%t, timeout=%s)", rt.PathPrefix, rt.Target, rt.RequiresAuth, rt.Timeout)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router := gin.New()
	// パスを書き換えずにアクセス判定へ渡す。
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(gin.Logger())
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(middleware.CORS(cfg.AllowedOrigins))
	}
	router.Use(middleware.Metrics(reg))

	pool := httpclient.NewPool()
	s := &Server{
		router:    router,
		port:      cfg.Port,
		registry:  registry,
		gate:      NewAccessGate(registry, cfg.PublicPrefixes, verifier),
		forwarder: proxy.NewForwarder(pool, proxy.NewMetrics(reg)),
		pool:      pool,
		metrics:   reg,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// Handler はサーバーのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes はルーティングを設定する。
// ゲートウェイ自身のエンドポイント以外はすべて転送ハンドラが受け取る。
func (s *Server) setupRoutes() {
	public := s.gate.Middleware(true)

	s.router.GET("/health", public, s.handleHealth())
	s.router.GET("/metrics", public, gin.WrapH(promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{})))

	s.router.NoRoute(s.gate.Middleware(false), s.handleProxy())
}

// handleHealth はヘルスチェックのハンドラを返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(apierror.TimestampFormat),
		})
	}
}

// handleProxy はリクエストをバックエンドへ転送するハンドラを返す。
func (s *Server) handleProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		rt, ok := RouteFromContext(c)
		if !ok {
			// 公開プレフィックスで通過したリクエストはここで解決する。
			rt, ok = s.registry.Find(c.Request.URL.EscapedPath())
			if !ok {
				apierror.Respond(c, apierror.NotFound("Service not found"))
				return
			}
		}
		if err := s.forwarder.Forward(c, rt, middleware.GetIdentity(c)); err != nil {
			apierror.Respond(c, err)
		}
	}
}

// Close は転送用クライアントのアイドル接続を閉じる。
func (s *Server) Close() {
	s.pool.CloseIdleConnections()
}
