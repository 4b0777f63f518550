// Package api exposes the HTTP surface: auth, trades, alerts, portfolio,
// market data and the websocket event stream.
package api

import (
	"net/http"
	"time"

	"portfolio-core/internal/alert"
	"portfolio-core/internal/events"
	"portfolio-core/internal/market"
	"portfolio-core/internal/monitor"
	"portfolio-core/internal/portfolio"
	"portfolio-core/internal/reinvest"
	"portfolio-core/internal/trade"
	"portfolio-core/pkg/db"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the domain services.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	DB        *db.Database
	Executor  *trade.Executor
	Alerts    *alert.Service
	Portfolio *portfolio.Calculator
	Reinvest  *reinvest.Service
	Provider  market.Provider
	Metrics   *monitor.SystemMetrics
	JWTSecret string
	Meta      SystemMeta
}

// SystemMeta describes runtime status exposed to the UI.
type SystemMeta struct {
	Symbols      []string
	MockProvider bool
	Version      string
}

func NewServer(bus *events.Bus, database *db.Database, executor *trade.Executor, alerts *alert.Service, calc *portfolio.Calculator, reinvestor *reinvest.Service, provider market.Provider, metrics *monitor.SystemMetrics, meta SystemMeta, jwtSecret string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())              // Panic recovery (first)
	r.Use(RequestIDMiddleware())       // Request ID tracking
	r.Use(RequestLogger(metrics))      // Request logging (after ID is set)
	r.Use(RateLimitMiddleware())       // Rate limiting
	r.Use(TimeoutMiddleware(30 * time.Second)) // Request timeout (30s)
	r.Use(CORSMiddleware())            // CORS (last before routes)

	s := &Server{
		Router:    r,
		Bus:       bus,
		DB:        database,
		Executor:  executor,
		Alerts:    alerts,
		Portfolio: calc,
		Reinvest:  reinvestor,
		Provider:  provider,
		Metrics:   metrics,
		JWTSecret: jwtSecret,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/metrics", s.getMetrics)

		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/market/prices", s.getPrices)

			trades := protected.Group("/trades", RequirePermission(PermTrade))
			{
				trades.POST("", s.executeTrade)
				trades.GET("", s.getTradeHistory)
				trades.GET("/:id/profitloss", s.getTradeProfitLoss)
			trades.POST("/:id/reinvest", s.reinvestTrade)
			}

			alerts := protected.Group("/alerts", RequirePermission(PermManageAlerts))
			{
				alerts.POST("", s.createAlert)
				alerts.GET("", s.listAlerts)
				alerts.PATCH("/:id", s.updateAlert)
				alerts.DELETE("/:id", s.deleteAlert)
			}

			pf := protected.Group("/portfolio", RequirePermission(PermViewPortfolio))
			{
				pf.GET("", s.getPortfolio)
				pf.POST("/sync", s.syncPortfolio)
				pf.GET("/performance", s.getPerformance)
			}
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"symbols":       s.Meta.Symbols,
		"mock_provider": s.Meta.MockProvider,
		"version":       s.Meta.Version,
		"timeframes":    portfolio.Timeframes(),
	})
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
