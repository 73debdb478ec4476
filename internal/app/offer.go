package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-offer-service/internal/domain/event"
	"marketplace-offer-service/internal/domain/item"
	"marketplace-offer-service/internal/domain/offer"
	"marketplace-offer-service/internal/domain/shared"
	"marketplace-offer-service/internal/ports/inbound"
	"marketplace-offer-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultTxTimeout = 5 * time.Second

// OfferService implements the bidding use cases
type OfferService struct {
	store       outbound.Store
	idempotency outbound.IdempotencyStore
	publisher   outbound.EventPublisher
	txTimeout   time.Duration
	now         func() time.Time
	logger      zerolog.Logger
}

type OfferServiceParams struct {
	Store       outbound.Store
	Idempotency outbound.IdempotencyStore // optional
	Publisher   outbound.EventPublisher
	TxTimeout   time.Duration
	Clock       func() time.Time
	Logger      zerolog.Logger
}

var _ inbound.OfferService = (*OfferService)(nil)

// NewOfferService creates a new offer service
func NewOfferService(params OfferServiceParams) *OfferService {
	txTimeout := params.TxTimeout
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &OfferService{
		store:       params.Store,
		idempotency: params.Idempotency,
		publisher:   params.Publisher,
		txTimeout:   txTimeout,
		now:         clock,
		logger:      params.Logger.With().Str("component", "offer_service").Logger(),
	}
}

// SubmitBid places a new offer on an item. The offer becomes the leading offer and every other
// pending offer on the item is marked OUTBID, all in one transaction.
func (s *OfferService) SubmitBid(ctx context.Context, req inbound.SubmitBidRequest) (offer.Offer, error) {
	s.logger.Info().
		Str("item_id", req.ItemID.String()).
		Str("user_id", req.UserID.String()).
		Str("amount", req.Amount.String()).
		Msg("Attempting to submit bid")

	if req.ItemID == uuid.Nil {
		return offer.Offer{}, shared.ErrItemIDRequired
	}
	if req.UserID == uuid.Nil {
		return offer.Offer{}, shared.ErrUserIDRequired
	}
	if err := offer.ValidateAmount(req.Amount); err != nil {
		s.logger.Warn().Str("amount", req.Amount.String()).Err(err).Msg("Invalid offer amount")
		return offer.Offer{}, err
	}

	if previous, ok := s.recall(ctx, req.IdempotencyKey); ok {
		return previous, nil
	}

	var (
		placed  offer.Offer
		outbid  []offer.Offer
		updated item.Item
	)
	err := s.inTransaction(ctx, func(ctx context.Context, tx outbound.Tx) error {
		if _, err := tx.GetUser(ctx, req.UserID); err != nil {
			return fmt.Errorf("load user %s: %w", req.UserID, err)
		}

		current, err := tx.GetItem(ctx, req.ItemID)
		if err != nil {
			return fmt.Errorf("load item %s: %w", req.ItemID, err)
		}
		if !current.CanReceiveOffers() {
			return fmt.Errorf("item %s: %w", current.ID, shared.ErrItemUnavailable)
		}
		if offer.DecideOutcome(current.CurrentPrice, req.Amount) == offer.OutcomeLose {
			return fmt.Errorf("offer %s against current price %s: %w", req.Amount, current.CurrentPrice, shared.ErrBidTooLow)
		}

		now := s.now()
		placed = offer.New(req.ItemID, req.UserID, req.Amount, req.Message, now)
		if err := tx.InsertOffer(ctx, placed); err != nil {
			return fmt.Errorf("insert offer: %w", err)
		}

		pending, err := tx.ListPendingOffersForItem(ctx, req.ItemID)
		if err != nil {
			return fmt.Errorf("list pending offers: %w", err)
		}

		updated = current.WithCurrentPrice(req.Amount, now)
		if err := tx.UpdateItemCurrentPrice(ctx, updated); err != nil {
			return fmt.Errorf("update current price: %w", err)
		}

		outbid = offer.Supersede(placed.ID, pending, offer.StatusOutbid, now)
		for _, o := range outbid {
			if err := tx.UpdateOfferStatus(ctx, o); err != nil {
				return fmt.Errorf("mark offer %s outbid: %w", o.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		s.logFailure(err, "Failed to submit bid", req.ItemID, req.UserID)
		return offer.Offer{}, err
	}

	s.remember(ctx, req.IdempotencyKey, placed.ID)

	s.logger.Info().
		Str("offer_id", placed.ID.String()).
		Str("item_id", placed.ItemID.String()).
		Str("user_id", placed.UserID.String()).
		Str("amount", placed.Amount.String()).
		Int("outbid_count", len(outbid)).
		Msg("Bid submitted successfully")

	s.publish(event.NewOffer{
		ItemID:  placed.ItemID,
		OfferID: placed.ID,
		UserID:  placed.UserID,
		Amount:  placed.Amount,
		Message: placed.Message,
	})
	s.publish(event.PriceUpdate{ItemID: updated.ID, NewPrice: updated.CurrentPrice})
	for _, o := range outbid {
		s.publish(statusChange(o))
	}

	return placed, nil
}

// AcceptOffer accepts a pending offer, closes the item and rejects every other pending offer
func (s *OfferService) AcceptOffer(ctx context.Context, offerID uuid.UUID) (offer.Offer, error) {
	s.logger.Info().Str("offer_id", offerID.String()).Msg("Attempting to accept offer")

	if offerID == uuid.Nil {
		return offer.Offer{}, shared.ErrOfferIDRequired
	}

	var (
		accepted offer.Offer
		rejected []offer.Offer
	)
	err := s.inTransaction(ctx, func(ctx context.Context, tx outbound.Tx) error {
		target, current, err := lockOffer(ctx, tx, offerID)
		if err != nil {
			return err
		}

		now := s.now()
		accepted, err = offer.Transition(target, offer.StatusAccepted, now)
		if err != nil {
			return err
		}
		if !current.CanReceiveOffers() {
			return fmt.Errorf("item %s: %w", current.ID, shared.ErrItemUnavailable)
		}
		if err := tx.UpdateOfferStatus(ctx, accepted); err != nil {
			return fmt.Errorf("accept offer: %w", err)
		}
		if err := tx.UpdateItemAvailability(ctx, current.Sold(now)); err != nil {
			return fmt.Errorf("close item: %w", err)
		}

		pending, err := tx.ListPendingOffersForItem(ctx, current.ID)
		if err != nil {
			return fmt.Errorf("list pending offers: %w", err)
		}
		rejected = offer.Supersede(accepted.ID, pending, offer.StatusRejected, now)
		for _, o := range rejected {
			if err := tx.UpdateOfferStatus(ctx, o); err != nil {
				return fmt.Errorf("reject offer %s: %w", o.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().
			Str("offer_id", offerID.String()).
			Str("kind", shared.KindOf(err).String()).
			Err(err).
			Msg("Failed to accept offer")
		return offer.Offer{}, err
	}

	s.logger.Info().
		Str("offer_id", accepted.ID.String()).
		Str("item_id", accepted.ItemID.String()).
		Str("user_id", accepted.UserID.String()).
		Str("amount", accepted.Amount.String()).
		Int("rejected_count", len(rejected)).
		Msg("Offer accepted, item sold")

	s.publish(event.ItemSold{
		ItemID:       accepted.ItemID,
		OfferID:      accepted.ID,
		WinnerUserID: accepted.UserID,
		FinalPrice:   accepted.Amount,
	})
	s.publish(statusChange(accepted))
	for _, o := range rejected {
		s.publish(statusChange(o))
	}

	return accepted, nil
}

// RejectOffer rejects a pending offer. The item's current price is left as it is.
func (s *OfferService) RejectOffer(ctx context.Context, offerID uuid.UUID) (offer.Offer, error) {
	s.logger.Info().Str("offer_id", offerID.String()).Msg("Attempting to reject offer")

	if offerID == uuid.Nil {
		return offer.Offer{}, shared.ErrOfferIDRequired
	}

	var rejected offer.Offer
	err := s.inTransaction(ctx, func(ctx context.Context, tx outbound.Tx) error {
		target, _, err := lockOffer(ctx, tx, offerID)
		if err != nil {
			return err
		}
		rejected, err = offer.Transition(target, offer.StatusRejected, s.now())
		if err != nil {
			return err
		}
		if err := tx.UpdateOfferStatus(ctx, rejected); err != nil {
			return fmt.Errorf("reject offer: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().
			Str("offer_id", offerID.String()).
			Str("kind", shared.KindOf(err).String()).
			Err(err).
			Msg("Failed to reject offer")
		return offer.Offer{}, err
	}

	s.logger.Info().
		Str("offer_id", rejected.ID.String()).
		Str("item_id", rejected.ItemID.String()).
		Msg("Offer rejected")

	s.publish(statusChange(rejected))
	return rejected, nil
}

// GetOffer retrieves an offer by ID
func (s *OfferService) GetOffer(ctx context.Context, offerID uuid.UUID) (offer.Offer, error) {
	if offerID == uuid.Nil {
		return offer.Offer{}, shared.ErrOfferIDRequired
	}
	return s.store.GetOffer(ctx, offerID)
}

// ListOffersForItem retrieves the offers on an item, highest first
func (s *OfferService) ListOffersForItem(ctx context.Context, itemID uuid.UUID, status *offer.Status) ([]offer.Offer, error) {
	if itemID == uuid.Nil {
		return nil, shared.ErrItemIDRequired
	}
	if _, err := s.store.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.store.ListOffersForItem(ctx, itemID, status)
}

// ListOffersForUser retrieves the offers a user has placed, newest first
func (s *OfferService) ListOffersForUser(ctx context.Context, userID uuid.UUID) ([]offer.Offer, error) {
	if userID == uuid.Nil {
		return nil, shared.ErrUserIDRequired
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListOffersForUser(ctx, userID)
}

// ListOffers retrieves every offer, newest first, optionally filtered by status
func (s *OfferService) ListOffers(ctx context.Context, status *offer.Status) ([]offer.Offer, error) {
	return s.store.ListOffers(ctx, status)
}

// lockOffer locks the offer's item row and then reloads the offer so the status
// it returns cannot change before the transaction ends.
func lockOffer(ctx context.Context, tx outbound.Tx, offerID uuid.UUID) (offer.Offer, item.Item, error) {
	unlocked, err := tx.GetOffer(ctx, offerID)
	if err != nil {
		return offer.Offer{}, item.Item{}, fmt.Errorf("load offer %s: %w", offerID, err)
	}
	current, err := tx.GetItem(ctx, unlocked.ItemID)
	if err != nil {
		return offer.Offer{}, item.Item{}, fmt.Errorf("load item %s: %w", unlocked.ItemID, err)
	}
	locked, err := tx.GetOffer(ctx, offerID)
	if err != nil {
		return offer.Offer{}, item.Item{}, fmt.Errorf("reload offer %s: %w", offerID, err)
	}
	return locked, current, nil
}

// inTransaction runs fn detached from the caller's cancellation and bounded by the
// transaction timeout.
func (s *OfferService) inTransaction(ctx context.Context, fn func(ctx context.Context, tx outbound.Tx) error) error {
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.txTimeout)
	defer cancel()

	err := s.store.WithTransaction(txCtx, fn)
	if err == nil {
		return nil
	}
	if shared.KindOf(err) == shared.KindInternal &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(txCtx.Err(), context.DeadlineExceeded)) {
		return fmt.Errorf("%w: %v", shared.ErrStoreTimeout, err)
	}
	return err
}

func (s *OfferService) recall(ctx context.Context, key string) (offer.Offer, bool) {
	if key == "" || s.idempotency == nil {
		return offer.Offer{}, false
	}
	offerID, found, err := s.idempotency.Recall(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("idempotency_key", key).Msg("Failed to recall idempotency key")
		return offer.Offer{}, false
	}
	if !found {
		return offer.Offer{}, false
	}
	previous, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		s.logger.Warn().Err(err).Str("offer_id", offerID.String()).Msg("Recorded offer for idempotency key not found")
		return offer.Offer{}, false
	}
	s.logger.Info().
		Str("idempotency_key", key).
		Str("offer_id", previous.ID.String()).
		Msg("Returning previously submitted offer")
	return previous, true
}

func (s *OfferService) remember(ctx context.Context, key string, offerID uuid.UUID) {
	if key == "" || s.idempotency == nil {
		return
	}
	if err := s.idempotency.Remember(context.WithoutCancel(ctx), key, offerID); err != nil {
		s.logger.Error().Err(err).Str("idempotency_key", key).Str("offer_id", offerID.String()).Msg("Failed to record idempotency key")
	}
}

func (s *OfferService) publish(e event.Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(e)
}

func (s *OfferService) logFailure(err error, msg string, itemID, userID uuid.UUID) {
	kind := shared.KindOf(err)
	entry := s.logger.Warn()
	if kind == shared.KindInternal {
		entry = s.logger.Error()
	}
	entry.
		Str("item_id", itemID.String()).
		Str("user_id", userID.String()).
		Str("kind", kind.String()).
		Err(err).
		Msg(msg)
}

func statusChange(o offer.Offer) event.OfferStatusChange {
	return event.OfferStatusChange{
		ItemID:  o.ItemID,
		OfferID: o.ID,
		UserID:  o.UserID,
		Amount:  o.Amount,
		Status:  string(o.Status),
	}
}
