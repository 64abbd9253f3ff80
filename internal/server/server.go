package server

import (
	"math/big"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/peermart/peermart-backend/internal/config"
	"github.com/peermart/peermart-backend/internal/feed"
	"github.com/peermart/peermart-backend/internal/handler"
	"github.com/peermart/peermart-backend/internal/ledger"
	appmw "github.com/peermart/peermart-backend/internal/middleware"
	"github.com/peermart/peermart-backend/internal/repository"
	"github.com/peermart/peermart-backend/internal/service"
	"github.com/peermart/peermart-backend/internal/verify"
)

type Server struct {
	e     *echo.Echo
	sha   string
	build string
}

func New(db *gorm.DB, cfg *config.Config, log zerolog.Logger, sha, buildTime string) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		AllowOriginFunc: func(origin string) (bool, error) {
			low := strings.ToLower(origin)
			return strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "https://localhost:") ||
				strings.HasPrefix(low, "http://127.0.0.1:") || strings.HasPrefix(low, "https://127.0.0.1:"), nil
		},
	}))

	oracle, err := ledger.NewClient(ledger.Config{
		RPCURL:  cfg.LedgerRPCURL,
		Timeout: cfg.LedgerRPCTimeout,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}
	verifier := verify.New(oracle, log)
	admins := service.NewAllowList(cfg.AdminIdentities)

	listingRepo := repository.NewListingRepository(db)
	threadRepo := repository.NewThreadRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	claimRepo := repository.NewClaimRepository(db)

	broker := feed.NewBroker(messageRepo)

	gateMin, ok := new(big.Int).SetString(cfg.GateMinBalance, 10)
	if !ok {
		gateMin = big.NewInt(1)
	}

	listingSvc := service.NewListingService(listingRepo)
	tradeSvc := service.NewTradeService(listingRepo, threadRepo, messageRepo, verifier, log)
	escrowSvc := service.NewEscrowService(listingRepo, threadRepo, messageRepo, verifier, oracle, admins, service.EscrowConfig{
		ProtectionFeeBps:   cfg.ProtectionFeeBps,
		CollectionsAddress: cfg.CollectionsAddress,
		ShippingSLADays:    cfg.ShippingSLADays,
	}, log)
	chatSvc := service.NewChatService(listingRepo, threadRepo, messageRepo, oracle, broker, service.ChatConfig{
		GateMinBalance: gateMin,
		PostMinBalance: cfg.PostMinBalance,
	}, log)
	claimSvc := service.NewClaimService(claimRepo, listingRepo, admins)

	listingHandler := handler.NewListingHandler(listingSvc, cfg.ShippingSLADays)
	tradeHandler := handler.NewTradeHandler(tradeSvc)
	escrowHandler := handler.NewEscrowHandler(escrowSvc, listingHandler)
	chatHandler := handler.NewChatHandler(chatSvc, broker)
	claimHandler := handler.NewClaimHandler(claimSvc)

	authMw, err := appmw.NewAuthMiddleware(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    sha,
			"build_time": buildTime,
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.GET("/listings", listingHandler.List)
	api.GET("/listings/:id", listingHandler.Get)
	api.GET("/listings/:id/chat", chatHandler.ListListingMessages)

	api.POST("/listings", listingHandler.Create, authMw.RequireAuth)
	api.DELETE("/listings/:id", listingHandler.Remove, authMw.RequireAuth)
	api.GET("/me/listings", listingHandler.ListMine, authMw.RequireAuth)

	api.POST("/listings/:id/purchase", tradeHandler.Purchase, authMw.RequireAuth)

	api.POST("/listings/:id/threads", chatHandler.StartThread, authMw.RequireAuth)
	api.GET("/threads", chatHandler.ListThreads, authMw.RequireAuth)
	api.GET("/threads/:id/messages", chatHandler.ListThreadMessages, authMw.RequireAuth)
	api.POST("/threads/:id/messages", chatHandler.SendThreadMessage, authMw.RequireAuth)
	api.GET("/threads/:id/ws", chatHandler.StreamThread, authMw.RequireAuth)
	api.POST("/threads/:id/read", chatHandler.MarkRead, authMw.RequireAuth)

	api.POST("/threads/:id/escrow/propose", escrowHandler.Propose, authMw.RequireAuth)
	api.POST("/threads/:id/escrow/accept", escrowHandler.Accept, authMw.RequireAuth)
	api.POST("/listings/:id/escrow/deposit", escrowHandler.Deposit, authMw.RequireAuth)
	api.POST("/listings/:id/escrow/ship", escrowHandler.Ship, authMw.RequireAuth)
	api.POST("/listings/:id/escrow/confirm", escrowHandler.Confirm, authMw.RequireAuth)
	api.POST("/listings/:id/escrow/dispute", escrowHandler.Dispute, authMw.RequireAuth)
	api.POST("/admin/listings/:id/escrow/resolve", escrowHandler.Resolve, authMw.RequireAuth)

	api.POST("/listings/:id/chat", chatHandler.PostListingMessage, authMw.RequireAuth)
	api.GET("/listings/:id/chat/key", chatHandler.GatedKey, authMw.RequireAuth)

	api.POST("/listings/:id/claims", claimHandler.File, authMw.RequireAuth)
	api.POST("/admin/claims/:id/resolve", claimHandler.Resolve, authMw.RequireAuth)

	return &Server{e: e, sha: sha, build: buildTime}, nil
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

func (s *Server) Close() error {
	return s.e.Close()
}
