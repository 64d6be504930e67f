package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/seometer/internal/authorization"
	"github.com/smallbiznis/seometer/internal/config"
	"github.com/smallbiznis/seometer/internal/dataforseo"
	"github.com/smallbiznis/seometer/internal/observability"
	obsmiddleware "github.com/smallbiznis/seometer/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/seometer/internal/observability/metrics"
	obstracing "github.com/smallbiznis/seometer/internal/observability/tracing"
	"github.com/smallbiznis/seometer/internal/project"
	projectdomain "github.com/smallbiznis/seometer/internal/project/domain"
	"github.com/smallbiznis/seometer/internal/quota"
	quotadomain "github.com/smallbiznis/seometer/internal/quota/domain"
	"github.com/smallbiznis/seometer/internal/ratelimit"
	"github.com/smallbiznis/seometer/internal/research"
	researchdomain "github.com/smallbiznis/seometer/internal/research/domain"
	"github.com/smallbiznis/seometer/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/seometer/internal/subscription/domain"
	"github.com/smallbiznis/seometer/internal/usage"
	usagedomain "github.com/smallbiznis/seometer/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Services wires every domain module the HTTP API and the CLI depend on.
var Services = fx.Options(
	ratelimit.Module,
	subscription.Module,
	usage.Module,
	project.Module,
	quota.Module,
	dataforseo.Module,
	research.Module,
	authorization.Module,
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
		QuietErrorTypes: []string{"quota_exceeded"},
		ContextKeys:     []string{usageCategoryKey},
	}))
	r.Use(obstracing.GinMiddleware(obstracing.WithGinKey(usageCategoryKey, "seometer.usage_category")))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

// ErrMissingJWTSecret stops a production process that could not authenticate anyone.
var ErrMissingJWTSecret = errors.New("AUTH_JWT_SECRET is required in production")

func RunHTTP(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) error {
	if cfg.IsProduction() && cfg.AuthJWTSecret == "" {
		return ErrMissingJWTSecret
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
	return nil
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	guard           quotadomain.Guard
	ledger          usagedomain.Ledger
	subscriptionSvc subscriptiondomain.Service
	projectSvc      projectdomain.Service
	researchSvc     researchdomain.Service
	authzSvc        authorization.Service
	vendorCalls     *dataforseo.Recorder
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Guard           quotadomain.Guard
	Ledger          usagedomain.Ledger
	SubscriptionSvc subscriptiondomain.Service
	ProjectSvc      projectdomain.Service
	ResearchSvc     researchdomain.Service
	AuthzSvc        authorization.Service `optional:"true"`
	VendorCalls     *dataforseo.Recorder  `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		log:    p.Log.Named("http.server"),

		guard:           p.Guard,
		ledger:          p.Ledger,
		subscriptionSvc: p.SubscriptionSvc,
		projectSvc:      p.ProjectSvc,
		researchSvc:     p.ResearchSvc,
		authzSvc:        p.AuthzSvc,
		vendorCalls:     p.VendorCalls,
	}
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	api.GET("/usage", s.GetUsage)

	// -------- Research --------
	research := api.Group("/research")
	research.POST("/keywords", s.KeywordIdeas)
	research.POST("/backlinks", s.AnalyzeBacklinks)
	research.POST("/audits", s.StartSiteAudit)
	research.GET("/audits/:taskId", s.GetAuditSummary)
	research.POST("/serp-history", s.SerpHistory)
	research.POST("/domains", s.DomainOverview)
	research.POST("/ai-visibility", s.AIVisibility)
	research.POST("/exports", s.ExportKeywords)

	// -------- Projects --------
	api.GET("/projects", s.ListProjects)
	api.POST("/projects", s.CreateProject)
	api.DELETE("/projects/:id", s.DeleteProject)
	api.POST("/projects/:id/keywords", s.AddProjectKeywords)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.AuthRequired())

	users := admin.Group("/users/:userId")
	users.GET("/usage", s.authorizeAction(authorization.ObjectUsage, authorization.ActionUsageView), s.AdminGetUsage)
	users.DELETE("/usage", s.authorizeAction(authorization.ObjectUsage, authorization.ActionUsageReset), s.AdminResetUsage)
	users.GET("/subscription", s.authorizeAction(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.AdminGetSubscription)
	users.PUT("/subscription", s.authorizeAction(authorization.ObjectSubscription, authorization.ActionSubscriptionUpdate), s.AdminUpsertSubscription)
	users.GET("/vendor-calls", s.authorizeAction(authorization.ObjectVendorCall, authorization.ActionVendorCallView), s.AdminListVendorCalls)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
