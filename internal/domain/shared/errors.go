package shared

import "errors"

// Kind classifies an error so transports can map it without inspecting messages
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindItemUnavailable
	KindBidTooLow
	KindInvalidTransition
	KindStoreTimeout
	KindTransactionAborted
)

var kindNames = map[Kind]string{
	KindInternal:           "internal",
	KindNotFound:           "not_found",
	KindValidation:         "validation",
	KindItemUnavailable:    "item_unavailable",
	KindBidTooLow:          "bid_too_low",
	KindInvalidTransition:  "invalid_transition",
	KindStoreTimeout:       "store_timeout",
	KindTransactionAborted: "transaction_aborted",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Retryable reports whether the caller may retry the operation once
func (k Kind) Retryable() bool {
	return k == KindStoreTimeout || k == KindTransactionAborted
}

// Error is a domain error tagged with its kind
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// KindOf returns the kind of the first domain error in err's chain.
// Errors that carry no kind are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindInternal
}

// Domain-specific errors
var (
	// Not found errors
	ErrItemNotFound  = newError(KindNotFound, "item not found")
	ErrOfferNotFound = newError(KindNotFound, "offer not found")
	ErrUserNotFound  = newError(KindNotFound, "user not found")

	// Validation errors
	ErrAmountRequired      = newError(KindValidation, "offer amount is required")
	ErrAmountNotPositive   = newError(KindValidation, "offer amount must be greater than zero")
	ErrAmountPrecision     = newError(KindValidation, "offer amount can have at most 2 decimal places")
	ErrAmountTooLarge      = newError(KindValidation, "offer amount cannot exceed 9999999999.99")
	ErrInvalidAmountFormat = newError(KindValidation, "offer amount is not a valid number")
	ErrItemIDRequired      = newError(KindValidation, "item_id is required")
	ErrUserIDRequired      = newError(KindValidation, "user_id is required")
	ErrOfferIDRequired     = newError(KindValidation, "offer_id is required")
	ErrInvalidIDFormat     = newError(KindValidation, "invalid id format")
	ErrNameRequired        = newError(KindValidation, "name is required")
	ErrPriceNotPositive    = newError(KindValidation, "price must be greater than zero")
	ErrPricePrecision      = newError(KindValidation, "price can have at most 2 decimal places")
	ErrPriceTooLarge       = newError(KindValidation, "price cannot exceed 9999999999.99")
	ErrUsernameRequired    = newError(KindValidation, "username is required")
	ErrUsernameTaken       = newError(KindValidation, "username is already taken")
	ErrInvalidStatus       = newError(KindValidation, "invalid offer status")
	ErrInvalidRequest      = newError(KindValidation, "invalid request")

	// Business outcomes
	ErrItemUnavailable   = newError(KindItemUnavailable, "item is no longer available for offers")
	ErrBidTooLow         = newError(KindBidTooLow, "offer must be higher than the current price")
	ErrInvalidTransition = newError(KindInvalidTransition, "only pending offers can change status")

	// Store errors
	ErrStoreTimeout       = newError(KindStoreTimeout, "store operation timed out")
	ErrTransactionAborted = newError(KindTransactionAborted, "transaction aborted by the store")

	// WebSocket message validation errors
	ErrMessageTypeRequired = newError(KindValidation, "message type is required")
	ErrUnknownMessageType  = newError(KindValidation, "unknown message type")

	// Hub errors
	ErrConnectionNotRegistered = errors.New("connection not registered")
	ErrHubStopped              = errors.New("event hub stopped")
)
