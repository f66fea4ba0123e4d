// Package api exposes the compliance engine over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	limiter "github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memory "github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/clearlane/compliance-engine/internal/compliance/engine"
	"github.com/clearlane/compliance-engine/internal/compliance/findings"
	"github.com/clearlane/compliance-engine/internal/compliance/rules"
	"github.com/clearlane/compliance-engine/internal/config"
	"github.com/clearlane/compliance-engine/internal/trading/limits"
)

// Server is the HTTP front for the compliance engine.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	logger      *zap.Logger
	cfg         config.ServerConfig
	rateLimiter gin.HandlerFunc

	compliance *engine.Service
	ruleStore  *rules.Store
	findings   *findings.Store
	limits     *limits.Checker
}

// NewServer creates the API server with its collaborators injected.
func NewServer(
	logger *zap.Logger,
	cfg config.ServerConfig,
	compliance *engine.Service,
	ruleStore *rules.Store,
	findingStore *findings.Store,
	limitChecker *limits.Checker,
) (*Server, error) {
	server := &Server{
		logger:     logger,
		cfg:        cfg,
		compliance: compliance,
		ruleStore:  ruleStore,
		findings:   findingStore,
		limits:     limitChecker,
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	rateFormat := cfg.RateLimit
	if rateFormat == "" {
		rateFormat = "100-S"
	}
	rate, err := limiter.NewRateFromFormatted(rateFormat)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", rateFormat, err)
	}
	server.rateLimiter = ginlimiter.NewMiddleware(limiter.New(memory.NewStore(), rate))

	server.router = router
	server.registerRoutes()
	return server, nil
}

// Router returns the gin engine, used by tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start begins serving and blocks until the listener fails or closes.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.logger.Info("starting API server", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	public := s.router.Group("/api/v1")
	{
		public.GET("/health", s.healthCheck)
		public.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	v1.Use(s.rateLimiter)
	{
		compliance := v1.Group("/compliance")
		{
			compliance.POST("/evaluate/transaction", s.evaluateTransaction)
			compliance.POST("/evaluate/activity", s.evaluateActivity)
			compliance.POST("/validate/input", s.validateInput)
			compliance.POST("/validate/output", s.validateOutput)
			compliance.POST("/validate/exchange", s.validateExchange)

			ruleGroup := compliance.Group("/rules")
			{
				ruleGroup.GET("", s.listRules)
				ruleGroup.POST("", s.createRule)
				ruleGroup.PUT("/:id", s.updateRule)
				ruleGroup.PUT("/:id/enabled", s.setRuleEnabled)
			}

			findingGroup := compliance.Group("/findings")
			{
				findingGroup.GET("", s.listFindings)
				findingGroup.GET("/:id", s.getFinding)
				findingGroup.POST("/:id/transition", s.transitionFinding)
			}
		}

		trading := v1.Group("/trading")
		{
			trading.POST("/limits/check", s.checkTradingLimits)
		}
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now(),
	})
}

func (s *Server) writeError(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("handler error", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
