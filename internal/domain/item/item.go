package item

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item represents a listed item that buyers can place offers on
type Item struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Available    bool            `json:"available"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// New creates an available item whose current price starts at the asking price
func New(name, description string, price decimal.Decimal, now time.Time) Item {
	return Item{
		ID:           uuid.New(),
		Name:         name,
		Description:  description,
		Price:        price,
		CurrentPrice: price,
		Available:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// CanReceiveOffers returns true if a new offer may become pending on this item
func (i Item) CanReceiveOffers() bool {
	return i.Available
}

// WithCurrentPrice returns a copy of the item with a raised current price.
// Lower or equal prices leave the item unchanged.
func (i Item) WithCurrentPrice(price decimal.Decimal, now time.Time) Item {
	if price.GreaterThan(i.CurrentPrice) {
		i.CurrentPrice = price
		i.UpdatedAt = now
	}
	return i
}

// Sold returns a copy of the item marked unavailable
func (i Item) Sold(now time.Time) Item {
	i.Available = false
	i.UpdatedAt = now
	return i
}

// WithDetails returns a copy of the item with new listing text
func (i Item) WithDetails(name, description string, now time.Time) Item {
	i.Name = name
	i.Description = description
	i.UpdatedAt = now
	return i
}
