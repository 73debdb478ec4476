package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"marketplace-offer-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MessageType string

const (
	// Client to Server message types
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypePlaceOffer  MessageType = "place_offer"
	MessageTypeAcceptOffer MessageType = "accept_offer"
	MessageTypeRejectOffer MessageType = "reject_offer"
	MessageTypePing        MessageType = "ping"

	// Server to Client message types
	MessageTypeSubscribed   MessageType = "subscribed"
	MessageTypeUnsubscribed MessageType = "unsubscribed"
	MessageTypeOfferPlaced  MessageType = "offer_placed"
	MessageTypeOfferUpdated MessageType = "offer_updated"
	MessageTypeError        MessageType = "error"
	MessageTypePong         MessageType = "pong"
)

type ClientMessage struct {
	Type           MessageType      `json:"type"`
	ItemID         *uuid.UUID       `json:"item_id,omitempty"`
	OfferID        *uuid.UUID       `json:"offer_id,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Message        string           `json:"message,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
	Timestamp      int64            `json:"timestamp"`
}

// ServerMessage is an acknowledgement or error frame. Domain events are sent as envelopes.
type ServerMessage struct {
	Type      MessageType `json:"type"`
	ItemID    *uuid.UUID  `json:"item_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     *string     `json:"error,omitempty"`
	Kind      string      `json:"kind,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func NewServerMessage(msgType MessageType) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewErrorMessage creates an error frame carrying the error kind
func NewErrorMessage(err error, itemID *uuid.UUID) *ServerMessage {
	text := err.Error()
	return &ServerMessage{
		Type:      MessageTypeError,
		ItemID:    itemID,
		Error:     &text,
		Kind:      shared.KindOf(err).String(),
		Timestamp: time.Now().UnixMilli(),
	}
}

// ParseClientMessage parses a JSON message from client
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidRequest, err)
	}

	if msg.Type == "" {
		return nil, shared.ErrMessageTypeRequired
	}

	return &msg, nil
}

func (m *ClientMessage) validateItemID() error {
	if m.ItemID == nil || *m.ItemID == uuid.Nil {
		return shared.ErrItemIDRequired
	}
	return nil
}

func (m *ClientMessage) validateOfferID() error {
	if m.OfferID == nil || *m.OfferID == uuid.Nil {
		return shared.ErrOfferIDRequired
	}
	return nil
}

// Validate checks that a client message carries the fields its type needs
func (m *ClientMessage) Validate() error {
	switch m.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		return m.validateItemID()
	case MessageTypePlaceOffer:
		if err := m.validateItemID(); err != nil {
			return err
		}
		if m.Amount == nil {
			return shared.ErrAmountRequired
		}
	case MessageTypeAcceptOffer, MessageTypeRejectOffer:
		return m.validateOfferID()
	case MessageTypePing:

	default:
		return shared.ErrUnknownMessageType
	}

	return nil
}
