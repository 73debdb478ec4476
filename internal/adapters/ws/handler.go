package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"marketplace-offer-service/internal/domain/shared"
	"marketplace-offer-service/internal/ports/inbound"
	"marketplace-offer-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const unregisterTimeout = 5 * time.Second

// WsHandler manages WebSocket connections and message routing
type WsHandler struct {
	clients        map[string]*WsClient // clientID -> Client
	clientsMu      sync.RWMutex
	upgrader       websocket.Upgrader
	offerService   inbound.OfferService
	catalogService inbound.CatalogService
	broadcaster    outbound.Broadcaster
	maxWorkers     int
	maxCapacity    int
	writeTimeout   time.Duration
	logger         zerolog.Logger
}

type WsHandlerParams struct {
	Upgrader       websocket.Upgrader
	OfferService   inbound.OfferService
	CatalogService inbound.CatalogService
	Broadcaster    outbound.Broadcaster
	MaxWorkers     int
	MaxCapacity    int
	WriteTimeout   time.Duration
	Logger         zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(params WsHandlerParams) *WsHandler {
	return &WsHandler{
		clients:        make(map[string]*WsClient),
		upgrader:       params.Upgrader,
		offerService:   params.OfferService,
		catalogService: params.CatalogService,
		broadcaster:    params.Broadcaster,
		maxWorkers:     params.MaxWorkers,
		maxCapacity:    params.MaxCapacity,
		writeTimeout:   params.WriteTimeout,
		logger:         params.Logger.With().Str("component", "ws_handler").Logger(),
	}
}

// HandleWebSocket upgrades GET /ws?user_id=<uuid> and registers the connection with the hub
func (handler *WsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userIDStr := r.URL.Query().Get("user_id")
	if userIDStr == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		http.Error(w, "invalid user_id format", http.StatusBadRequest)
		return
	}

	if handler.catalogService != nil {
		if _, err := handler.catalogService.GetUser(r.Context(), userID); err != nil {
			status := http.StatusInternalServerError
			if shared.KindOf(err) == shared.KindNotFound {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := handler.upgrader.Upgrade(w, r, nil)
	if err != nil {
		handler.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(WsClientParams{
		UserID:       userID,
		Conn:         conn,
		Handler:      handler,
		MaxWorkers:   handler.maxWorkers,
		MaxCapacity:  handler.maxCapacity,
		WriteTimeout: handler.writeTimeout,
		Logger:       handler.logger,
	})

	if err := handler.broadcaster.Register(r.Context(), client, false); err != nil {
		handler.logger.Error().Err(err).Str("conn_id", client.id).Msg("Failed to register connection with hub")
		client.Stop()
		return
	}

	handler.registerClient(client)

	client.Start()

	// Wait for client to disconnect
	go func() {
		<-client.ctx.Done()
		handler.unregisterClient(client)
	}()

	handler.logger.Info().Str("conn_id", client.id).Str("user_id", client.userID.String()).Msg("WebSocket client connected")
}

func (handler *WsHandler) registerClient(client *WsClient) {
	handler.clientsMu.Lock()
	defer handler.clientsMu.Unlock()
	handler.clients[client.id] = client
	handler.logger.Debug().Str("conn_id", client.id).Int("total_clients", len(handler.clients)).Msg("Client registered")
}

func (handler *WsHandler) unregisterClient(client *WsClient) {
	ctx, cancel := context.WithTimeout(context.Background(), unregisterTimeout)
	defer cancel()

	if err := handler.broadcaster.OnConnectionClosed(ctx, client.id); err != nil && !errors.Is(err, shared.ErrHubStopped) {
		handler.logger.Warn().Err(err).Str("conn_id", client.id).Msg("Failed to remove connection from hub")
	}

	client.Stop()

	handler.clientsMu.Lock()
	delete(handler.clients, client.id)
	total := len(handler.clients)
	handler.clientsMu.Unlock()

	handler.logger.Info().Str("conn_id", client.id).Str("user_id", client.userID.String()).Int("total_clients", total).Msg("WebSocket client disconnected")
}

// GetConnectedClients returns the number of connected clients
func (handler *WsHandler) GetConnectedClients() int {
	handler.clientsMu.RLock()
	defer handler.clientsMu.RUnlock()
	return len(handler.clients)
}

// CloseAll stops every connected client
func (handler *WsHandler) CloseAll() {
	handler.clientsMu.RLock()
	clients := make([]*WsClient, 0, len(handler.clients))
	for _, client := range handler.clients {
		clients = append(clients, client)
	}
	handler.clientsMu.RUnlock()

	for _, client := range clients {
		client.Stop()
	}
}

// HandleClientMessage runs a validated client message and returns the acknowledgement to send
func (handler *WsHandler) HandleClientMessage(client *WsClient, msg *ClientMessage) (*ServerMessage, error) {
	switch msg.Type {
	case MessageTypeSubscribe:
		return handler.handleSubscribe(client, msg)

	case MessageTypeUnsubscribe:
		return handler.handleUnsubscribe(client, msg)

	case MessageTypePlaceOffer:
		return handler.handlePlaceOffer(client, msg)

	case MessageTypeAcceptOffer, MessageTypeRejectOffer:
		return handler.handleDecision(client, msg)

	default:
		handler.logger.Warn().Str("conn_id", client.id).Str("message_type", string(msg.Type)).Msg("Unknown message type from client")
		return nil, shared.ErrUnknownMessageType
	}
}

func (handler *WsHandler) handleSubscribe(client *WsClient, msg *ClientMessage) (*ServerMessage, error) {
	if err := handler.broadcaster.Subscribe(client.ctx, client.id, *msg.ItemID); err != nil {
		handler.logger.Error().Err(err).Str("conn_id", client.id).Str("item_id", msg.ItemID.String()).Msg("Failed to subscribe to item")
		return nil, err
	}

	handler.logger.Info().Str("conn_id", client.id).Str("item_id", msg.ItemID.String()).Msg("Client subscribed to item")

	response := NewServerMessage(MessageTypeSubscribed)
	response.ItemID = msg.ItemID
	return response, nil
}

func (handler *WsHandler) handleUnsubscribe(client *WsClient, msg *ClientMessage) (*ServerMessage, error) {
	if err := handler.broadcaster.Unsubscribe(client.ctx, client.id, *msg.ItemID); err != nil {
		return nil, err
	}

	handler.logger.Info().Str("conn_id", client.id).Str("item_id", msg.ItemID.String()).Msg("Client unsubscribed from item")

	response := NewServerMessage(MessageTypeUnsubscribed)
	response.ItemID = msg.ItemID
	return response, nil
}

func (handler *WsHandler) handlePlaceOffer(client *WsClient, msg *ClientMessage) (*ServerMessage, error) {
	placed, err := handler.offerService.SubmitBid(client.ctx, inbound.SubmitBidRequest{
		ItemID:         *msg.ItemID,
		UserID:         client.userID,
		Amount:         *msg.Amount,
		Message:        msg.Message,
		IdempotencyKey: msg.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	handler.logger.Info().
		Str("offer_id", placed.ID.String()).
		Str("item_id", placed.ItemID.String()).
		Str("user_id", client.userID.String()).
		Str("amount", placed.Amount.StringFixed(2)).
		Msg("Offer placed over WebSocket")

	response := NewServerMessage(MessageTypeOfferPlaced)
	response.ItemID = &placed.ItemID
	response.Data = placed
	return response, nil
}

func (handler *WsHandler) handleDecision(client *WsClient, msg *ClientMessage) (*ServerMessage, error) {
	decide := handler.offerService.AcceptOffer
	if msg.Type == MessageTypeRejectOffer {
		decide = handler.offerService.RejectOffer
	}

	updated, err := decide(client.ctx, *msg.OfferID)
	if err != nil {
		return nil, err
	}

	handler.logger.Info().
		Str("offer_id", updated.ID.String()).
		Str("item_id", updated.ItemID.String()).
		Str("status", string(updated.Status)).
		Msg("Offer updated over WebSocket")

	response := NewServerMessage(MessageTypeOfferUpdated)
	response.ItemID = &updated.ItemID
	response.Data = updated
	return response, nil
}
