// Package event defines the immutable facts the offer engine emits after a commit.
package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type identifies an event on the wire
type Type string

const (
	TypeNewOffer          Type = "NEW_OFFER"
	TypePriceUpdate       Type = "PRICE_UPDATE"
	TypeOfferStatusChange Type = "OFFER_STATUS_CHANGE"
	TypeItemSold          Type = "ITEM_SOLD"
	TypeItemListed        Type = "NEW_ITEM_ADDED"
)

// Event is a domain event. Events scoped to an item report that item from Target;
// global events report ok == false and go to every watcher.
type Event interface {
	EventType() Type
	Target() (itemID uuid.UUID, ok bool)
}

type NewOffer struct {
	ItemID  uuid.UUID       `json:"item_id"`
	OfferID uuid.UUID       `json:"offer_id"`
	UserID  uuid.UUID       `json:"user_id"`
	Amount  decimal.Decimal `json:"amount"`
	Message string          `json:"message"`
}

func (NewOffer) EventType() Type             { return TypeNewOffer }
func (e NewOffer) Target() (uuid.UUID, bool) { return e.ItemID, true }

type PriceUpdate struct {
	ItemID   uuid.UUID       `json:"item_id"`
	NewPrice decimal.Decimal `json:"new_price"`
}

func (PriceUpdate) EventType() Type             { return TypePriceUpdate }
func (e PriceUpdate) Target() (uuid.UUID, bool) { return e.ItemID, true }

// OfferStatusChange carries the offer owner so clients can tell "you were outbid"
// apart from changes to other buyers' offers.
type OfferStatusChange struct {
	ItemID  uuid.UUID       `json:"item_id"`
	OfferID uuid.UUID       `json:"offer_id"`
	UserID  uuid.UUID       `json:"user_id"`
	Amount  decimal.Decimal `json:"amount"`
	Status  string          `json:"status"`
}

func (OfferStatusChange) EventType() Type             { return TypeOfferStatusChange }
func (e OfferStatusChange) Target() (uuid.UUID, bool) { return e.ItemID, true }

type ItemSold struct {
	ItemID       uuid.UUID       `json:"item_id"`
	OfferID      uuid.UUID       `json:"offer_id"`
	WinnerUserID uuid.UUID       `json:"winner_user_id"`
	FinalPrice   decimal.Decimal `json:"final_price"`
}

func (ItemSold) EventType() Type             { return TypeItemSold }
func (e ItemSold) Target() (uuid.UUID, bool) { return e.ItemID, true }

type ItemListed struct {
	ItemID uuid.UUID       `json:"item_id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}

func (ItemListed) EventType() Type           { return TypeItemListed }
func (ItemListed) Target() (uuid.UUID, bool) { return uuid.Nil, false }

// Envelope is the transport-neutral form of an event
type Envelope struct {
	Type      Type  `json:"type"`
	Payload   Event `json:"payload"`
	Timestamp int64 `json:"timestamp"`
}

// Wrap builds the envelope for e stamped with at
func Wrap(e Event, at time.Time) Envelope {
	return Envelope{
		Type:      e.EventType(),
		Payload:   e,
		Timestamp: at.UnixMilli(),
	}
}

// ItemID returns the item the envelope is scoped to, or uuid.Nil for global events
func (env Envelope) ItemID() uuid.UUID {
	if env.Payload == nil {
		return uuid.Nil
	}
	itemID, _ := env.Payload.Target()
	return itemID
}

// Global reports whether the envelope goes to every watcher
func (env Envelope) Global() bool {
	if env.Payload == nil {
		return true
	}
	_, scoped := env.Payload.Target()
	return !scoped
}
