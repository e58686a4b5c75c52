package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/clubgate/internal/access"
	accessdomain "github.com/smallbiznis/clubgate/internal/access/domain"
	"github.com/smallbiznis/clubgate/internal/config"
	"github.com/smallbiznis/clubgate/internal/notify"
	obsmetrics "github.com/smallbiznis/clubgate/internal/observability/metrics"
	"github.com/smallbiznis/clubgate/internal/payment/stripe"
	"github.com/smallbiznis/clubgate/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/clubgate/internal/subscription/domain"
	"github.com/smallbiznis/clubgate/internal/telegram"
	"github.com/smallbiznis/clubgate/internal/user"
	userdomain "github.com/smallbiznis/clubgate/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(obsmetrics.NewHTTPMetrics),
	fx.Provide(registerGin),
	user.Module,
	subscription.Module,
	access.Module,
	stripe.Module,
	telegram.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	userSvc         userdomain.Service
	subscriptionSvc subscriptiondomain.Service
	accessSvc       accessdomain.Service
	gateway         subscriptiondomain.PaymentGateway
	verifier        *stripe.Verifier
	notifier        notify.Notifier
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	UserSvc         userdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	AccessSvc       accessdomain.Service
	Gateway         subscriptiondomain.PaymentGateway
	Verifier        *stripe.Verifier
	Notifier        notify.Notifier
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("server"),
		userSvc:         p.UserSvc,
		subscriptionSvc: p.SubscriptionSvc,
		accessSvc:       p.AccessSvc,
		gateway:         p.Gateway,
		verifier:        p.Verifier,
		notifier:        p.Notifier,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/register", s.Register)
	auth.POST("/telegram/request-code", s.RequestLinkCode)
	auth.POST("/telegram/confirm-code", s.ConfirmLinkCode)

	billing := api.Group("/billing")
	billing.POST("/checkout", s.CreateCheckout)
	billing.POST("/invite-link", s.CreateInviteLink)
	billing.GET("/status", s.SubscriptionStatus)
	billing.POST("/webhook", s.HandleStripeWebhook)
}
