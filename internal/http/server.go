package http

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Sonrial/family-budget/internal/core"
	"github.com/Sonrial/family-budget/internal/log"
	"github.com/Sonrial/family-budget/internal/middleware/auth"
	"github.com/Sonrial/family-budget/internal/middleware/ratelimit"
	"github.com/Sonrial/family-budget/internal/middleware/security"
	"github.com/Sonrial/family-budget/internal/middleware/trace"
	"github.com/Sonrial/family-budget/internal/services"
)

// Services are the application services behind the API.
type Services struct {
	Engine   *services.Engine
	Registry *services.Registry
	Bills    *services.Bills
	Profiles auth.ProfileRecorder
	// Chart is bootstrapped when POST /api/accounts/bootstrap carries no
	// templates of its own.
	Chart []core.AccountTemplate
	// Ready reports whether the backing stores answer; nil means always ready.
	Ready func(context.Context) error
}

type Options struct {
	Addr               string
	CORSAllowedOrigins []string
	// RateLimitPerMinute of zero disables rate limiting.
	RateLimitPerMinute int
	JWTSecret          string
	JWTIssuer          string
	Logger             *log.Logger
	Now                func() time.Time
}

type Server struct {
	http.Server
	router   *gin.Engine
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	detector *security.Detector
	logger   *log.Logger

	engine   *services.Engine
	registry *services.Registry
	bills    *services.Bills
	chart    []core.AccountTemplate
	ready    func(context.Context) error
	now      func() time.Time

	shutdownOnce sync.Once
}

// NewServer wires the middleware chain and the routes, returning a server
// ready to ListenAndServe.
func NewServer(svc Services, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	_ = router.SetTrustedProxies(security.TrustedProxies)

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		router:   router,
		tracer:   trace.NewMiddleware(logger),
		detector: security.NewDetector(),
		logger:   logger.WithComponent(log.ComponentHTTP),
		engine:   svc.Engine,
		registry: svc.Registry,
		bills:    svc.Bills,
		chart:    svc.Chart,
		ready:    svc.Ready,
		now:      now,
	}

	router.Use(gin.CustomRecovery(s.recover))
	router.Use(s.tracer.Handler())
	router.Use(security.Headers(security.DefaultHeadersConfig()))
	router.Use(s.detector.Handler())
	if opts.RateLimitPerMinute > 0 {
		s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute})
		router.Use(s.limiter.Handler())
	}
	if c, ok := corsConfig(opts.CORSAllowedOrigins); ok {
		router.Use(cors.New(c))
	}

	router.GET("/healthz", handleHealth)
	router.GET("/readyz", s.handleReady)

	verifier := auth.NewVerifier(opts.JWTSecret, opts.JWTIssuer)
	api := router.Group("/api", auth.NewMiddleware(verifier, svc.Profiles).Handler())
	s.routes(api)

	return s
}

func (s *Server) routes(api *gin.RouterGroup) {
	api.POST("/accounts", s.handleCreateAccount)
	api.GET("/accounts", s.handleListAccounts)
	api.POST("/accounts/liabilities", s.handleOpenLiability)
	api.POST("/accounts/bootstrap", s.handleBootstrap)
	api.DELETE("/accounts/:id", s.handleDeleteAccount)
	api.GET("/accounts/:id/balance", s.handleAccountBalance)
	api.GET("/accounts/:id/payment-draft", s.handlePaymentDraft)
	api.GET("/balances", s.handleBalances)

	api.POST("/transactions", s.handlePost)
	api.GET("/transactions", s.handleListTransactions)
	api.GET("/transactions/:id", s.handleGetTransaction)
	api.PATCH("/transactions/:id", s.handleUpdateTransaction)
	api.DELETE("/transactions/:id", s.handleDeleteTransaction)

	api.POST("/bills", s.handleCreateBill)
	api.GET("/bills", s.handleListBills)
	api.GET("/bills/due", s.handleDueBills)
	api.DELETE("/bills/:id", s.handleDeleteBill)
	api.GET("/bills/:id/draft", s.handleBillDraft)
}

// corsConfig returns false when no origin is allowed, since cors.New
// rejects such a configuration.
func corsConfig(origins []string) (cors.Config, bool) {
	cleaned := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = sanitizeInput(o); o != "" {
			cleaned = append(cleaned, o)
		}
	}
	if len(cleaned) == 0 {
		return cors.Config{}, false
	}
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", trace.HeaderRequestID},
		ExposeHeaders: []string{trace.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	if slices.Contains(cleaned, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cleaned
	}
	return c, true
}

func (s *Server) recover(c *gin.Context, err any) {
	ctx := c.Request.Context()
	log.FromContext(ctx).ErrorContext(ctx, "Recovered from panic", "panic", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
}

// Shutdown stops the rate limiter and drains the HTTP server. It is safe
// to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		s.logger.InfoContext(ctx, "Shutting down HTTP server",
			log.FieldOperation, log.OpShutdown,
			"total_requests", s.tracer.TotalRequests(),
			"suspicious_requests", s.detector.SuspiciousRequests())
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReady(c *gin.Context) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err.Error())
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
