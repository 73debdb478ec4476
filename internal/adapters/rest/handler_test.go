package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketplace-offer-service/internal/domain/item"
	"marketplace-offer-service/internal/domain/offer"
	"marketplace-offer-service/internal/domain/shared"
	"marketplace-offer-service/internal/ports/inbound"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type restFixture struct {
	router  *gin.Engine
	offers  *inbound.MockOfferService
	catalog *inbound.MockCatalogService
}

func newRestFixture(t *testing.T) *restFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	gin.SetMode(gin.TestMode)
	offers := inbound.NewMockOfferService(ctrl)
	catalog := inbound.NewMockCatalogService(ctrl)
	router := NewRouter(RouterParams{
		OfferService:   offers,
		CatalogService: catalog,
		Logger:         zerolog.Nop(),
	})
	return &restFixture{router: router, offers: offers, catalog: catalog}
}

type apiResponse struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Kind    string          `json:"kind"`
}

func (f *restFixture) do(t *testing.T, method, path string, body any, headers map[string]string) (int, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, w.Code, resp.Status)
	return w.Code, resp
}

func TestSubmitOfferHandler(t *testing.T) {
	itemID, userID := uuid.New(), uuid.New()
	placed := offer.New(itemID, userID, decimal.RequireFromString("60.00"), "hi", time.Now().UTC())

	tests := []struct {
		name           string
		body           any
		headers        map[string]string
		mockSetup      func(f *restFixture)
		expectedStatus int
		expectedKind   string
	}{
		{
			name: "success",
			body: map[string]any{"item_id": itemID, "user_id": userID, "amount": "60.00", "message": "hi"},
			mockSetup: func(f *restFixture) {
				f.offers.EXPECT().
					SubmitBid(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, req inbound.SubmitBidRequest) (offer.Offer, error) {
						require.Equal(t, itemID, req.ItemID)
						require.Equal(t, userID, req.UserID)
						require.True(t, req.Amount.Equal(decimal.RequireFromString("60")))
						require.Equal(t, "hi", req.Message)
						require.Empty(t, req.IdempotencyKey)
						return placed, nil
					})
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "bid_too_low",
			body: map[string]any{"item_id": itemID, "user_id": userID, "amount": 40},
			mockSetup: func(f *restFixture) {
				f.offers.EXPECT().SubmitBid(gomock.Any(), gomock.Any()).Return(offer.Offer{}, shared.ErrBidTooLow)
			},
			expectedStatus: http.StatusConflict,
			expectedKind:   "bid_too_low",
		},
		{
			name:           "invalid_json",
			body:           `{invalid json}`,
			mockSetup:      func(f *restFixture) {},
			expectedStatus: http.StatusBadRequest,
			expectedKind:   "validation",
		},
		{
			name:           "missing_amount",
			body:           map[string]any{"item_id": itemID, "user_id": userID},
			mockSetup:      func(f *restFixture) {},
			expectedStatus: http.StatusBadRequest,
			expectedKind:   "validation",
		},
		{
			name:           "missing_item",
			body:           map[string]any{"user_id": userID, "amount": "60.00"},
			mockSetup:      func(f *restFixture) {},
			expectedStatus: http.StatusBadRequest,
			expectedKind:   "validation",
		},
		{
			name:    "retry_with_idempotency_key",
			body:    map[string]any{"item_id": itemID, "user_id": userID, "amount": "60.00"},
			headers: map[string]string{IdempotencyKeyHeader: "abc"},
			mockSetup: func(f *restFixture) {
				gomock.InOrder(
					f.offers.EXPECT().
						SubmitBid(gomock.Any(), gomock.Any()).
						DoAndReturn(func(_ context.Context, req inbound.SubmitBidRequest) (offer.Offer, error) {
							require.Equal(t, "abc", req.IdempotencyKey)
							return offer.Offer{}, fmt.Errorf("insert offer: %w", shared.ErrTransactionAborted)
						}),
					f.offers.EXPECT().SubmitBid(gomock.Any(), gomock.Any()).Return(placed, nil),
				)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "no_retry_without_key",
			body: map[string]any{"item_id": itemID, "user_id": userID, "amount": "60.00"},
			mockSetup: func(f *restFixture) {
				f.offers.EXPECT().SubmitBid(gomock.Any(), gomock.Any()).Return(offer.Offer{}, shared.ErrStoreTimeout).Times(1)
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedKind:   "store_timeout",
		},
		{
			name: "no_retry_for_business_errors",
			body: map[string]any{"item_id": itemID, "user_id": userID, "amount": "60.00", "idempotency_key": "k"},
			mockSetup: func(f *restFixture) {
				f.offers.EXPECT().SubmitBid(gomock.Any(), gomock.Any()).Return(offer.Offer{}, shared.ErrItemUnavailable).Times(1)
			},
			expectedStatus: http.StatusConflict,
			expectedKind:   "item_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRestFixture(t)
			tt.mockSetup(f)

			status, resp := f.do(t, http.MethodPost, "/offers", tt.body, tt.headers)
			require.Equal(t, tt.expectedStatus, status)
			require.Equal(t, tt.expectedKind, resp.Kind)

			if status == http.StatusCreated {
				var got offer.Offer
				require.NoError(t, json.Unmarshal(resp.Data, &got))
				require.Equal(t, placed.ID, got.ID)
				require.Equal(t, offer.StatusPending, got.Status)
			}
		})
	}
}

func TestOfferDecisionHandlers(t *testing.T) {
	f := newRestFixture(t)
	offerID := uuid.New()
	accepted := offer.Offer{ID: offerID, Status: offer.StatusAccepted}

	f.offers.EXPECT().AcceptOffer(gomock.Any(), offerID).Return(accepted, nil)
	status, resp := f.do(t, http.MethodPut, "/offers/"+offerID.String()+"/accept", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "offer accepted successfully", resp.Message)

	f.offers.EXPECT().RejectOffer(gomock.Any(), offerID).Return(offer.Offer{}, shared.ErrInvalidTransition)
	status, resp = f.do(t, http.MethodPut, "/offers/"+offerID.String()+"/reject", nil, nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "invalid_transition", resp.Kind)

	status, resp = f.do(t, http.MethodPut, "/offers/not-a-uuid/accept", nil, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "validation", resp.Kind)
}

func TestListItemOffersHandler(t *testing.T) {
	f := newRestFixture(t)
	itemID := uuid.New()

	f.offers.EXPECT().
		ListOffersForItem(gomock.Any(), itemID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, status *offer.Status) ([]offer.Offer, error) {
			require.NotNil(t, status)
			require.Equal(t, offer.StatusPending, *status)
			return []offer.Offer{{ID: uuid.New(), ItemID: itemID, Status: offer.StatusPending}}, nil
		})
	status, resp := f.do(t, http.MethodGet, "/items/"+itemID.String()+"/offers?status=pending", nil, nil)
	require.Equal(t, http.StatusOK, status)

	var offers []offer.Offer
	require.NoError(t, json.Unmarshal(resp.Data, &offers))
	require.Len(t, offers, 1)

	status, resp = f.do(t, http.MethodGet, "/items/"+itemID.String()+"/offers?status=bogus", nil, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "validation", resp.Kind)
}

func TestCatalogHandlers(t *testing.T) {
	f := newRestFixture(t)
	missing := uuid.New()

	f.catalog.EXPECT().GetItem(gomock.Any(), missing).Return(item.Item{}, shared.ErrItemNotFound)
	status, resp := f.do(t, http.MethodGet, "/items/"+missing.String(), nil, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "not_found", resp.Kind)

	f.catalog.EXPECT().ListItems(gomock.Any(), true).Return([]item.Item{}, nil)
	status, _ = f.do(t, http.MethodGet, "/items?available=true", nil, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = f.do(t, http.MethodGet, "/items?available=maybe", nil, nil)
	require.Equal(t, http.StatusBadRequest, status)

	f.catalog.EXPECT().
		CreateUser(gomock.Any(), inbound.CreateUserRequest{Username: "dana"}).
		Return(shared.User{}, shared.ErrUsernameTaken)
	status, resp = f.do(t, http.MethodPost, "/users", map[string]any{"username": "dana"}, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, shared.ErrUsernameTaken.Error(), resp.Error)

	f.catalog.EXPECT().GetUser(gomock.Any(), gomock.Any()).Return(shared.User{}, fmt.Errorf("read user: %w", shared.ErrStoreTimeout))
	status, _ = f.do(t, http.MethodGet, "/users/"+uuid.NewString(), nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, status)
}

func TestCatalogListingHandlers(t *testing.T) {
	f := newRestFixture(t)

	f.catalog.EXPECT().ListUsers(gomock.Any()).Return([]shared.User{{ID: uuid.New(), Username: "dana"}}, nil)
	status, resp := f.do(t, http.MethodGet, "/users", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var users []shared.User
	require.NoError(t, json.Unmarshal(resp.Data, &users))
	require.Len(t, users, 1)
	require.Equal(t, "dana", users[0].Username)

	f.offers.EXPECT().ListOffers(gomock.Any(), (*offer.Status)(nil)).Return([]offer.Offer{}, nil)
	status, _ = f.do(t, http.MethodGet, "/offers", nil, nil)
	require.Equal(t, http.StatusOK, status)

	f.offers.EXPECT().
		ListOffers(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, status *offer.Status) ([]offer.Offer, error) {
			require.NotNil(t, status)
			require.Equal(t, offer.StatusAccepted, *status)
			return []offer.Offer{}, nil
		})
	status, _ = f.do(t, http.MethodGet, "/offers?status=ACCEPTED", nil, nil)
	require.Equal(t, http.StatusOK, status)

	status, resp = f.do(t, http.MethodGet, "/offers?status=sold", nil, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "validation", resp.Kind)
}

func TestFindItemHandler(t *testing.T) {
	f := newRestFixture(t)
	lamp := item.Item{ID: uuid.New(), Name: "Lamp"}

	f.catalog.EXPECT().FindItemByName(gomock.Any(), "lamp").Return(lamp, nil)
	status, resp := f.do(t, http.MethodGet, "/items/search?name=lamp", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var found item.Item
	require.NoError(t, json.Unmarshal(resp.Data, &found))
	require.Equal(t, lamp.ID, found.ID)

	f.catalog.EXPECT().FindItemByName(gomock.Any(), "sofa").Return(item.Item{}, shared.ErrItemNotFound)
	status, resp = f.do(t, http.MethodGet, "/items/search?name=sofa", nil, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "not_found", resp.Kind)
}

func TestUpdateItemHandler(t *testing.T) {
	f := newRestFixture(t)
	itemID := uuid.New()

	f.catalog.EXPECT().
		UpdateItem(gomock.Any(), itemID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, req inbound.UpdateItemRequest) (item.Item, error) {
			require.NotNil(t, req.Name)
			require.Equal(t, "Desk lamp", *req.Name)
			require.Nil(t, req.Description)
			return item.Item{ID: itemID, Name: *req.Name}, nil
		})
	status, resp := f.do(t, http.MethodPut, "/items/"+itemID.String(), map[string]any{"name": "Desk lamp"}, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "item updated successfully", resp.Message)

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
	}{
		{name: "price_is_engine_owned", path: "/items/" + itemID.String(), body: map[string]any{"price": "10.00"}, wantStatus: http.StatusBadRequest},
		{name: "availability_is_engine_owned", path: "/items/" + itemID.String(), body: map[string]any{"available": true}, wantStatus: http.StatusBadRequest},
		{name: "bad_id", path: "/items/not-a-uuid", body: map[string]any{"name": "Lamp"}, wantStatus: http.StatusBadRequest},
		{name: "bad_json", path: "/items/" + itemID.String(), body: "{", wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := f.do(t, http.MethodPut, tt.path, tt.body, nil)
			require.Equal(t, tt.wantStatus, status)
			require.Equal(t, "validation", resp.Kind)
		})
	}

	f.catalog.EXPECT().UpdateItem(gomock.Any(), itemID, gomock.Any()).Return(item.Item{}, shared.ErrItemNotFound)
	status, _ = f.do(t, http.MethodPut, "/items/"+itemID.String(), map[string]any{"description": "x"}, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestHealthHandler(t *testing.T) {
	f := newRestFixture(t)
	status, resp := f.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", resp.Message)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{shared.ErrAmountPrecision, http.StatusBadRequest},
		{shared.ErrAmountTooLarge, http.StatusBadRequest},
		{shared.ErrOfferNotFound, http.StatusNotFound},
		{shared.ErrBidTooLow, http.StatusConflict},
		{shared.ErrItemUnavailable, http.StatusConflict},
		{shared.ErrInvalidTransition, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", shared.ErrTransactionAborted), http.StatusServiceUnavailable},
		{shared.ErrStoreTimeout, http.StatusServiceUnavailable},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, StatusForError(tt.err), tt.err.Error())
	}
}
