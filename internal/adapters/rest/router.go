package rest

import (
	"net/http"

	"marketplace-offer-service/internal/ports/inbound"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type RouterParams struct {
	OfferService   inbound.OfferService
	CatalogService inbound.CatalogService
	WebSocket      http.HandlerFunc // serves GET /ws when set
	Logger         zerolog.Logger
}

// NewRouter configures all gin routes for the service
func NewRouter(params RouterParams) *gin.Engine {
	logger := params.Logger.With().Str("component", "http").Logger()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger))

	handler := NewHandler(HandlerParams{
		OfferService:   params.OfferService,
		CatalogService: params.CatalogService,
		Logger:         params.Logger,
	})

	router.GET("/health", handler.Health)
	if params.WebSocket != nil {
		router.GET("/ws", gin.WrapF(params.WebSocket))
	}

	items := router.Group("/items")
	{
		items.POST("", handler.CreateItem)
		items.GET("", handler.ListItems)
		items.GET("/search", handler.FindItem)
		items.GET("/:id", handler.GetItem)
		items.PUT("/:id", handler.UpdateItem)
		items.GET("/:id/offers", handler.ListItemOffers)
	}

	users := router.Group("/users")
	{
		users.POST("", handler.CreateUser)
		users.GET("", handler.ListUsers)
		users.GET("/:id", handler.GetUser)
		users.GET("/:id/offers", handler.ListUserOffers)
	}

	offers := router.Group("/offers")
	{
		offers.POST("", handler.SubmitOffer)
		offers.GET("", handler.ListOffers)
		offers.GET("/:id", handler.GetOffer)
		offers.PUT("/:id/accept", handler.AcceptOffer)
		offers.PUT("/:id/reject", handler.RejectOffer)
	}

	return router
}
