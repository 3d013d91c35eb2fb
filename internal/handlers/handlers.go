package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"medtrack/api/internal/config"
	"medtrack/api/internal/discord"
	"medtrack/api/internal/jobs"
	"medtrack/api/internal/middleware"
	"medtrack/api/internal/repository"
	"medtrack/api/internal/service"
	"medtrack/api/internal/storage"
	"medtrack/api/internal/ws"
)

type HandlerSet struct {
	log         zerolog.Logger
	cfg         *config.AppConfig
	db          *pgxpool.Pool
	cache       *redis.Client
	authService *service.AuthService
	linkService *service.LinkService
	medService  *service.MedicationService
	discord     *discord.Client
	hub         *ws.Hub
	gateway     *ws.Gateway
	redeemLimit *middleware.RateLimiter
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, store *storage.ObjectStore, hub *ws.Hub, followups *jobs.FollowupScheduler, cfg *config.AppConfig) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	codeRepo := repository.NewCodeRepository(db)
	medRepo := repository.NewMedicationRepository(db)

	auth := service.NewAuthService(userRepo, sessionRepo, cfg, log)
	link := service.NewLinkService(userRepo, codeRepo, cfg, log)
	med := service.NewMedicationService(medRepo, store, hub, followups, log)
	gateway := ws.NewGateway(hub, auth, cfg.Push, log)

	return HandlerSet{
		log:         log,
		cfg:         cfg,
		db:          db,
		cache:       cache,
		authService: auth,
		linkService: link,
		medService:  med,
		discord:     discord.NewClient(cfg.Discord),
		hub:         hub,
		gateway:     gateway,
		redeemLimit: middleware.NewRateLimiter(cfg.Security.RedeemRate, cfg.Security.RedeemBurst),
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/signup", h.Signup)
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
		auth.GET("/discord", h.DiscordStart)
		auth.GET("/discord/callback", h.DiscordCallback)

		protected := v1.Group("/auth")
		protected.Use(middleware.Auth(h.authService))
		protected.GET("/me", h.Me)
		protected.GET("/sessions", h.ListSessions)
		protected.DELETE("/account", h.DeleteAccount)

		link := v1.Group("/link")
		{
			issue := link.Group("")
			issue.Use(middleware.Auth(h.authService))
			issue.POST("/code", h.IssueLinkCode)
			issue.POST("/connect", h.IssueConnectToken)

			redeem := link.Group("")
			redeem.Use(h.redeemLimit.Middleware())
			redeem.POST("/redeem", h.RedeemLinkCode)
			redeem.POST("/connect/redeem", h.RedeemConnectToken)
		}

		meds := v1.Group("/medications")
		meds.Use(middleware.Auth(h.authService))
		meds.POST("", h.CreateMedication)
		meds.GET("", h.ListMedications)
		meds.PUT("/:id", h.UpdateMedication)
		meds.DELETE("/:id", h.DeleteMedication)
		meds.POST("/:id/doses", h.RecordDose)
		meds.GET("/:id/doses", h.DoseHistory)
		meds.POST("/:id/photo", h.AttachPhoto)

		// Push channel: authenticates via ?token=, not the middleware.
		v1.GET("/ws", h.gateway.Handle)
	}
}
