// Package router 提供 HTTP 路由配置
package router

import (
	"shoply-ai-cs-api/internal/config"
	"shoply-ai-cs-api/internal/domain/repository"
	"shoply-ai-cs-api/internal/interfaces/http/handler"
	"shoply-ai-cs-api/internal/interfaces/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 路由挂载的处理器集合
type Handlers struct {
	Health       *handler.HealthHandler
	Chat         *handler.ChatHandler
	Verification *handler.VerificationHandler
	Modification *handler.ModificationHandler
	Order        *handler.OrderHandler
	Ingest       *handler.IngestHandler
	Admin        *handler.AdminHandler

	TenantRepo repository.TenantRepository
	Limiter    repository.RateLimitStore
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers *Handlers
}

// New 创建新的路由器
func New(cfg *config.Config, handlers *Handlers) *Router {
	// 设置 Gin 模式
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		cfg:      cfg,
		handlers: handlers,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	// 基础中间件
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	// CORS 中间件
	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	// 追踪中间件
	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	// 指标中间件
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	h := r.handlers

	// 系统端点，不走租户解析
	r.engine.GET("/health", h.Health.Health)
	r.engine.GET("/ready", h.Health.Ready)
	r.engine.GET("/live", h.Health.Live)

	// Prometheus 指标端点
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// API v1 路由组，租户解析与限流在组级生效
	v1 := r.engine.Group("/v1")
	v1.Use(middleware.Tenant(middleware.TenantConfig{}, h.TenantRepo))
	v1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:           r.cfg.Security.RateLimit.Enabled,
		RequestsPerSecond: r.cfg.Security.RateLimit.RequestsPerSecond,
	}, h.Limiter))
	{
		// 对话轮次
		chat := v1.Group("/chat")
		{
			chat.POST("/turns", h.Chat.Turn)
		}

		// 身份验证
		verification := v1.Group("/verification")
		{
			verification.POST("/identity", h.Verification.VerifyIdentity)
			verification.POST("/otp/request", h.Verification.RequestOTP)
			verification.POST("/otp/submit", h.Verification.SubmitOTP)
		}

		// 会话生命周期
		conversations := v1.Group("/conversations")
		{
			conversations.GET("/:cid/verification", h.Verification.Status)
			conversations.DELETE("/:cid", h.Verification.EndConversation)
		}

		// 订单检索
		orders := v1.Group("/orders")
		{
			orders.POST("/search", h.Order.Search)
		}

		// 订单修改
		modifications := v1.Group("/modifications")
		{
			modifications.POST("", h.Modification.Propose)
			modifications.POST("/confirm", h.Modification.Confirm)
			modifications.GET("/:id", h.Modification.Get)
			modifications.DELETE("/:id", h.Modification.Withdraw)
			modifications.GET("/:id/audit", h.Modification.Audit)
		}

		// 文档入库
		ingest := v1.Group("/ingest")
		{
			ingest.POST("/documents", h.Ingest.Submit)
		}

		// 运维接口
		admin := v1.Group("/admin")
		{
			admin.POST("/ratelimit/reset", h.Admin.ResetRateLimit)
			admin.GET("/verification/:cid/attempts", h.Verification.Attempts)
		}
	}
}
