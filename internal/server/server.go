package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/cardswap/cardswap-backend/internal/config"
	"github.com/cardswap/cardswap-backend/internal/handler"
	"github.com/cardswap/cardswap-backend/internal/labelstore"
	appmw "github.com/cardswap/cardswap-backend/internal/middleware"
	"github.com/cardswap/cardswap-backend/internal/repository"
	"github.com/cardswap/cardswap-backend/internal/service"
	"github.com/cardswap/cardswap-backend/internal/shipping"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"
)

type Server struct {
	e *echo.Echo
}

func New(ctx context.Context, cfg *config.Config, db *gorm.DB) (*Server, error) {
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
			if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
				strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
				return true, nil
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false, nil
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return false, nil
			}
			if strings.HasSuffix(u.Hostname(), "vercel.app") {
				return true, nil
			}
			return false, nil
		},
	}))

	proposalRepo := repository.NewProposalRepository(db)
	matchRepo := repository.NewMatchRepository(db)
	cardRepo := repository.NewCardRepository(db)
	addressRepo := repository.NewAddressRepository(db)
	convRepo := repository.NewConversationRepository(db)
	notifRepo := repository.NewNotificationRepository(db)

	notifSvc := service.NewNotificationService(notifRepo)
	proposalSvc := service.NewProposalService(proposalRepo, matchRepo, cardRepo, addressRepo, convRepo, notifSvc)

	gateway := shipping.NewClient(cfg.ShippingAPIBase, cfg.ShippingAPIKey, nil)
	labels, err := labelstore.New(ctx, cfg.LabelBucket, cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	shippingSvc := service.NewShippingService(proposalRepo, addressRepo, convRepo, notifSvc, gateway, labels)

	convSvc := service.NewConversationService(convRepo, proposalRepo)
	addressSvc := service.NewAddressService(addressRepo)
	catalogSvc := service.NewCatalogService(cardRepo, matchRepo)

	proposalHandler := handler.NewProposalHandler(proposalSvc)
	shippingHandler := handler.NewShippingHandler(shippingSvc)
	addressHandler := handler.NewAddressHandler(addressSvc)
	convHandler := handler.NewConversationHandler(convSvc)
	notifHandler := handler.NewNotificationHandler(notifSvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc)

	authMw, err := appmw.NewAuthMiddleware(ctx, cfg.FirebaseProjectID)
	if err != nil {
		return nil, err
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"ok": "true"})
	})

	api := e.Group("/api", authMw.RequireAuth)

	api.GET("/me/cards", catalogHandler.ListMyCards)
	api.GET("/me/matches", catalogHandler.ListMyMatches)
	api.POST("/matches/:id/proposals", proposalHandler.Propose)
	api.GET("/proposals", proposalHandler.ListMine)
	api.GET("/proposals/:id", proposalHandler.Get)
	api.GET("/proposals/:id/view", proposalHandler.View)
	api.POST("/proposals/:id/accept", proposalHandler.Accept)
	api.POST("/proposals/:id/confirm", proposalHandler.Confirm)
	api.POST("/proposals/:id/decline", proposalHandler.Decline)
	api.POST("/proposals/:id/cancel", proposalHandler.Cancel)
	api.DELETE("/proposals/:id", proposalHandler.Delete)
	api.POST("/proposals/:id/shipping/method", proposalHandler.SelectShippingMethod)
	api.POST("/proposals/:id/shipping/rates", shippingHandler.GetRates)
	api.POST("/proposals/:id/shipping/purchase", shippingHandler.PurchaseLabel)
	api.POST("/proposals/:id/shipping/request-address", shippingHandler.RequestAddress)
	api.POST("/proposals/:id/meetup/confirm", shippingHandler.ConfirmMeetup)
	api.POST("/proposals/:id/delivery/confirm", proposalHandler.ConfirmDelivery)
	api.GET("/proposals/:id/messages", convHandler.ListMessages)
	api.POST("/proposals/:id/messages", convHandler.PostMessage)

	api.GET("/me/addresses", addressHandler.ListMine)
	api.POST("/me/addresses", addressHandler.Create)
	api.PUT("/me/addresses/:id", addressHandler.Update)
	api.POST("/me/addresses/:id/default", addressHandler.SetDefault)

	api.GET("/me/notifications", notifHandler.ListMine)
	api.POST("/me/notifications/read", notifHandler.MarkAllRead)

	api.POST("/maintenance/reconcile", proposalHandler.Reconcile)

	return &Server{e: e}, nil
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}
