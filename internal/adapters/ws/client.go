package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marketplace-offer-service/internal/domain/event"
	"marketplace-offer-service/internal/ports/outbound"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const defaultWriteTimeout = 10 * time.Second

// WsClient is one live WebSocket connection. It is registered with the hub as an
// outbound.Conn and handles inbound messages on its own worker pool.
type WsClient struct {
	id           string
	userID       uuid.UUID
	conn         *websocket.Conn
	ctx          context.Context
	cancel       context.CancelFunc
	handler      *WsHandler
	workerPool   *pond.WorkerPool
	writeTimeout time.Duration
	writeMu      sync.Mutex
	stopped      bool
	mu           sync.Mutex
	logger       zerolog.Logger
}

type WsClientParams struct {
	UserID       uuid.UUID
	Conn         *websocket.Conn
	Handler      *WsHandler
	MaxWorkers   int
	MaxCapacity  int
	WriteTimeout time.Duration
	Logger       zerolog.Logger
}

var _ outbound.Conn = (*WsClient)(nil)

// NewClient creates a new WebSocket client
func NewClient(params WsClientParams) *WsClient {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := params.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	maxCapacity := params.MaxCapacity
	if maxCapacity <= 0 {
		maxCapacity = 100
	}
	writeTimeout := params.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	pool := pond.New(
		maxWorkers,
		maxCapacity,
		pond.Strategy(pond.Balanced()),
	)
	id := uuid.New().String()
	client := &WsClient{
		id:           id,
		userID:       params.UserID,
		conn:         params.Conn,
		ctx:          ctx,
		cancel:       cancel,
		handler:      params.Handler,
		workerPool:   pool,
		writeTimeout: writeTimeout,
		logger:       params.Logger.With().Str("conn_id", id).Str("user_id", params.UserID.String()).Logger(),
	}

	return client
}

func (client *WsClient) ID() string {
	return client.id
}

// Start begins reading messages from the connection
func (client *WsClient) Start() {
	go client.messageReceiver()
}

// Stop cancels the client context and closes the socket. The reader goroutine notices
// the closed socket and shuts the worker pool down.
func (client *WsClient) Stop() {
	client.mu.Lock()
	defer client.mu.Unlock()

	// Prevent double closing
	if client.stopped {
		return
	}
	client.stopped = true

	client.cancel()
	client.conn.Close()
}

func (client *WsClient) Close() error {
	client.Stop()
	return nil
}

// Send writes an event envelope to the socket
func (client *WsClient) Send(ctx context.Context, env event.Envelope) error {
	return client.write(ctx, env)
}

func (client *WsClient) sendMessage(msg *ServerMessage) error {
	return client.write(client.ctx, msg)
}

func (client *WsClient) write(ctx context.Context, v interface{}) error {
	client.mu.Lock()
	if client.stopped {
		client.mu.Unlock()
		return fmt.Errorf("client is stopped")
	}
	client.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(client.writeTimeout)
	}

	client.writeMu.Lock()
	defer client.writeMu.Unlock()

	if err := client.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return client.conn.WriteJSON(v)
}

func (client *WsClient) messageReceiver() {
	defer client.workerPool.StopAndWait()

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && client.ctx.Err() == nil {
				client.logger.Error().Err(err).Msg("WebSocket read error for client")
			} else {
				client.logger.Info().Str("error", err.Error()).Msg("WebSocket connection closed for client")
			}
			// Cancel context to notify handler about disconnection
			client.cancel()
			return
		}
		client.logger.Debug().Str("message", string(message)).Msg("Message received from client")

		client.workerPool.Submit(func() {
			client.handleMessage(message)
		})
	}
}

func (client *WsClient) handleMessage(data []byte) {
	msg, err := ParseClientMessage(data)
	if err != nil {
		client.reply(nil, err, nil)
		return
	}

	if err := msg.Validate(); err != nil {
		client.reply(nil, err, msg.ItemID)
		return
	}

	if msg.Type == MessageTypePing {
		client.reply(NewServerMessage(MessageTypePong), nil, nil)
		return
	}

	if client.handler == nil {
		client.reply(nil, fmt.Errorf("handler not available"), msg.ItemID)
		return
	}
	response, err := client.handler.HandleClientMessage(client, msg)
	client.reply(response, err, msg.ItemID)
}

func (client *WsClient) reply(response *ServerMessage, err error, itemID *uuid.UUID) {
	if err != nil {
		client.logger.Warn().Err(err).Msg("Failed to handle client message")
		response = NewErrorMessage(err, itemID)
	}
	if response == nil {
		return
	}
	if sendErr := client.sendMessage(response); sendErr != nil {
		client.logger.Error().Err(sendErr).Str("message_type", string(response.Type)).Msg("Failed to send message to client")
	}
}
