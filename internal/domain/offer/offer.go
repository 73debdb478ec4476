package offer

import (
	"fmt"
	"strings"
	"time"

	"marketplace-offer-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of an offer
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
	StatusOutbid   Status = "OUTBID"
)

// ParseStatus parses a status name case-insensitively
func ParseStatus(raw string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case StatusPending, StatusAccepted, StatusRejected, StatusOutbid:
		return status, nil
	}
	return "", shared.ErrInvalidStatus
}

// IsTerminal returns true for statuses an offer never leaves
func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusOutbid
}

// Offer represents a buyer's monetary offer on an item
type Offer struct {
	ID        uuid.UUID       `json:"id"`
	ItemID    uuid.UUID       `json:"item_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Amount    decimal.Decimal `json:"offer_amount"`
	Status    Status          `json:"status"`
	Message   string          `json:"message"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// New creates a pending offer
func New(itemID, userID uuid.UUID, amount decimal.Decimal, message string, now time.Time) Offer {
	return Offer{
		ID:        uuid.New(),
		ItemID:    itemID,
		UserID:    userID,
		Amount:    amount,
		Status:    StatusPending,
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsPending returns true if the offer can still change status
func (o Offer) IsPending() bool {
	return o.Status == StatusPending
}

// ValidateAmount checks that an offer amount is positive with at most two decimals
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.ErrAmountNotPositive
	}
	if shared.ExceedsScale(amount) {
		return shared.ErrAmountPrecision
	}
	if shared.ExceedsMax(amount) {
		return shared.ErrAmountTooLarge
	}
	return nil
}

// Outcome is the result of comparing a new offer against the leading amount
type Outcome int

const (
	OutcomeLose Outcome = iota
	OutcomeWin
)

func (o Outcome) String() string {
	if o == OutcomeWin {
		return "win"
	}
	return "lose"
}

// DecideOutcome returns OutcomeWin only when amount is strictly greater than leading.
// Ties lose.
func DecideOutcome(leading, amount decimal.Decimal) Outcome {
	if amount.GreaterThan(leading) {
		return OutcomeWin
	}
	return OutcomeLose
}

// Transition returns a snapshot of o moved to the terminal status to.
// Only pending offers can transition; o itself is left untouched.
func Transition(o Offer, to Status, at time.Time) (Offer, error) {
	if !to.IsTerminal() {
		return o, fmt.Errorf("transition offer %s to %s: %w", o.ID, to, shared.ErrInvalidTransition)
	}
	if !o.IsPending() {
		return o, fmt.Errorf("transition offer %s from %s to %s: %w", o.ID, o.Status, to, shared.ErrInvalidTransition)
	}
	o.Status = to
	o.UpdatedAt = at
	return o, nil
}

// Supersede moves every pending offer other than winnerID to status to.
// Offers that are already terminal are skipped and never re-touched.
func Supersede(winnerID uuid.UUID, pending []Offer, to Status, at time.Time) []Offer {
	superseded := make([]Offer, 0, len(pending))
	for _, candidate := range pending {
		if candidate.ID == winnerID {
			continue
		}
		next, err := Transition(candidate, to, at)
		if err != nil {
			continue
		}
		superseded = append(superseded, next)
	}
	return superseded
}
