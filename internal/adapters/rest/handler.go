package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"marketplace-offer-service/internal/domain/offer"
	"marketplace-offer-service/internal/domain/shared"
	"marketplace-offer-service/internal/ports/inbound"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// Handler serves the REST routes
type Handler struct {
	offerService   inbound.OfferService
	catalogService inbound.CatalogService
	logger         zerolog.Logger
}

type HandlerParams struct {
	OfferService   inbound.OfferService
	CatalogService inbound.CatalogService
	Logger         zerolog.Logger
}

func NewHandler(params HandlerParams) *Handler {
	return &Handler{
		offerService:   params.OfferService,
		catalogService: params.CatalogService,
		logger:         params.Logger.With().Str("component", "rest_handler").Logger(),
	}
}

type createItemBody struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price"`
}

// updateItemBody carries the editable listing text. Price and Available are decoded only to
// reject them: those fields change through offers.
type updateItemBody struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Available   *bool            `json:"available"`
}

type submitOfferBody struct {
	ItemID         uuid.UUID        `json:"item_id"`
	UserID         uuid.UUID        `json:"user_id"`
	Amount         *decimal.Decimal `json:"amount"`
	Message        string           `json:"message"`
	IdempotencyKey string           `json:"idempotency_key"`
}

func (h *Handler) Health(c *gin.Context) {
	JSONResponse(c, http.StatusOK, gin.H{"service": "marketplace-offer-service"}, "ok")
}

// CreateItem handles POST /items
func (h *Handler) CreateItem(c *gin.Context) {
	var body createItemBody
	if !h.bind(c, &body) {
		return
	}
	if body.Price == nil {
		JSONError(c, shared.ErrPriceNotPositive, "invalid item")
		return
	}

	created, err := h.catalogService.CreateItem(c.Request.Context(), inbound.CreateItemRequest{
		Name:        body.Name,
		Description: body.Description,
		Price:       *body.Price,
	})
	if err != nil {
		h.fail(c, err, "failed to create item")
		return
	}

	JSONResponse(c, http.StatusCreated, created, "item created successfully")
}

// ListItems handles GET /items?available=true
func (h *Handler) ListItems(c *gin.Context) {
	availableOnly := false
	if raw := c.Query("available"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			JSONError(c, fmt.Errorf("%w: available must be a boolean", shared.ErrInvalidRequest), "invalid query")
			return
		}
		availableOnly = parsed
	}

	items, err := h.catalogService.ListItems(c.Request.Context(), availableOnly)
	if err != nil {
		h.fail(c, err, "failed to list items")
		return
	}

	JSONResponse(c, http.StatusOK, items, "items retrieved successfully")
}

// FindItem handles GET /items/search?name=
func (h *Handler) FindItem(c *gin.Context) {
	found, err := h.catalogService.FindItemByName(c.Request.Context(), c.Query("name"))
	if err != nil {
		h.fail(c, err, "failed to find item")
		return
	}

	JSONResponse(c, http.StatusOK, found, "item retrieved successfully")
}

// UpdateItem handles PUT /items/:id
func (h *Handler) UpdateItem(c *gin.Context) {
	itemID, ok := h.pathID(c)
	if !ok {
		return
	}

	var body updateItemBody
	if !h.bind(c, &body) {
		return
	}
	if body.Price != nil || body.Available != nil {
		JSONError(c, fmt.Errorf("%w: price and availability change only through offers", shared.ErrInvalidRequest), "invalid item")
		return
	}

	updated, err := h.catalogService.UpdateItem(c.Request.Context(), itemID, inbound.UpdateItemRequest{
		Name:        body.Name,
		Description: body.Description,
	})
	if err != nil {
		h.fail(c, err, "failed to update item")
		return
	}

	JSONResponse(c, http.StatusOK, updated, "item updated successfully")
}

// GetItem handles GET /items/:id
func (h *Handler) GetItem(c *gin.Context) {
	itemID, ok := h.pathID(c)
	if !ok {
		return
	}

	found, err := h.catalogService.GetItem(c.Request.Context(), itemID)
	if err != nil {
		h.fail(c, err, "failed to get item")
		return
	}

	JSONResponse(c, http.StatusOK, found, "item retrieved successfully")
}

// ListItemOffers handles GET /items/:id/offers?status=
func (h *Handler) ListItemOffers(c *gin.Context) {
	itemID, ok := h.pathID(c)
	if !ok {
		return
	}

	status, ok := h.statusQuery(c)
	if !ok {
		return
	}

	offers, err := h.offerService.ListOffersForItem(c.Request.Context(), itemID, status)
	if err != nil {
		h.fail(c, err, "failed to list offers")
		return
	}

	JSONResponse(c, http.StatusOK, offers, "offers retrieved successfully")
}

// ListUsers handles GET /users
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.catalogService.ListUsers(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to list users")
		return
	}

	JSONResponse(c, http.StatusOK, users, "users retrieved successfully")
}

// CreateUser handles POST /users
func (h *Handler) CreateUser(c *gin.Context) {
	var req inbound.CreateUserRequest
	if !h.bind(c, &req) {
		return
	}

	created, err := h.catalogService.CreateUser(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err, "failed to create user")
		return
	}

	JSONResponse(c, http.StatusCreated, created, "user created successfully")
}

// GetUser handles GET /users/:id
func (h *Handler) GetUser(c *gin.Context) {
	userID, ok := h.pathID(c)
	if !ok {
		return
	}

	found, err := h.catalogService.GetUser(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err, "failed to get user")
		return
	}

	JSONResponse(c, http.StatusOK, found, "user retrieved successfully")
}

// ListUserOffers handles GET /users/:id/offers
func (h *Handler) ListUserOffers(c *gin.Context) {
	userID, ok := h.pathID(c)
	if !ok {
		return
	}

	offers, err := h.offerService.ListOffersForUser(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err, "failed to list offers")
		return
	}

	JSONResponse(c, http.StatusOK, offers, "offers retrieved successfully")
}

// SubmitOffer handles POST /offers
func (h *Handler) SubmitOffer(c *gin.Context) {
	var body submitOfferBody
	if !h.bind(c, &body) {
		return
	}

	switch {
	case body.ItemID == uuid.Nil:
		JSONError(c, shared.ErrItemIDRequired, "invalid offer")
		return
	case body.UserID == uuid.Nil:
		JSONError(c, shared.ErrUserIDRequired, "invalid offer")
		return
	case body.Amount == nil:
		JSONError(c, shared.ErrAmountRequired, "invalid offer")
		return
	}

	key := body.IdempotencyKey
	if header := c.GetHeader(IdempotencyKeyHeader); header != "" {
		key = header
	}
	req := inbound.SubmitBidRequest{
		ItemID:         body.ItemID,
		UserID:         body.UserID,
		Amount:         *body.Amount,
		Message:        body.Message,
		IdempotencyKey: key,
	}

	var placed offer.Offer
	err := h.retryOnce(c.Request.Context(), key, func(ctx context.Context) error {
		var err error
		placed, err = h.offerService.SubmitBid(ctx, req)
		return err
	})
	if err != nil {
		h.fail(c, err, "failed to submit offer")
		return
	}

	JSONResponse(c, http.StatusCreated, placed, "offer submitted successfully")
}

// GetOffer handles GET /offers/:id
func (h *Handler) GetOffer(c *gin.Context) {
	offerID, ok := h.pathID(c)
	if !ok {
		return
	}

	found, err := h.offerService.GetOffer(c.Request.Context(), offerID)
	if err != nil {
		h.fail(c, err, "failed to get offer")
		return
	}

	JSONResponse(c, http.StatusOK, found, "offer retrieved successfully")
}

// AcceptOffer handles PUT /offers/:id/accept
func (h *Handler) AcceptOffer(c *gin.Context) {
	h.decide(c, h.offerService.AcceptOffer, "offer accepted successfully")
}

// RejectOffer handles PUT /offers/:id/reject
func (h *Handler) RejectOffer(c *gin.Context) {
	h.decide(c, h.offerService.RejectOffer, "offer rejected successfully")
}

func (h *Handler) decide(c *gin.Context, decision func(context.Context, uuid.UUID) (offer.Offer, error), message string) {
	offerID, ok := h.pathID(c)
	if !ok {
		return
	}

	var updated offer.Offer
	err := h.retryOnce(c.Request.Context(), c.GetHeader(IdempotencyKeyHeader), func(ctx context.Context) error {
		var err error
		updated, err = decision(ctx, offerID)
		return err
	})
	if err != nil {
		h.fail(c, err, "failed to update offer")
		return
	}

	JSONResponse(c, http.StatusOK, updated, message)
}

// retryOnce runs op and, when the request carries an idempotency key and the failure is
// retryable, runs it once more
func (h *Handler) retryOnce(ctx context.Context, key string, op func(context.Context) error) error {
	err := op(ctx)
	if err == nil || key == "" || !shared.KindOf(err).Retryable() {
		return err
	}

	h.logger.Warn().Err(err).Str("idempotency_key", key).Msg("Retrying request after retryable failure")
	return op(ctx)
}

// ListOffers handles GET /offers?status=
func (h *Handler) ListOffers(c *gin.Context) {
	status, ok := h.statusQuery(c)
	if !ok {
		return
	}

	offers, err := h.offerService.ListOffers(c.Request.Context(), status)
	if err != nil {
		h.fail(c, err, "failed to list offers")
		return
	}

	JSONResponse(c, http.StatusOK, offers, "offers retrieved successfully")
}

// statusQuery reads the optional ?status= filter
func (h *Handler) statusQuery(c *gin.Context) (*offer.Status, bool) {
	raw := c.Query("status")
	if raw == "" {
		return nil, true
	}
	parsed, err := offer.ParseStatus(raw)
	if err != nil {
		JSONError(c, err, "invalid query")
		return nil, false
	}
	return &parsed, true
}

func (h *Handler) bind(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		JSONError(c, fmt.Errorf("%w: %v", shared.ErrInvalidRequest, err), "invalid request payload")
		h.logger.Warn().Err(err).Str("path", c.FullPath()).Msg("Binding error")
		return false
	}
	return true
}

func (h *Handler) pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		JSONError(c, shared.ErrInvalidIDFormat, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, err error, message string) {
	entry := h.logger.Warn()
	if StatusForError(err) >= http.StatusInternalServerError {
		entry = h.logger.Error()
	}
	entry.Err(err).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Str("kind", shared.KindOf(err).String()).
		Msg(message)
	JSONError(c, err, message)
}
