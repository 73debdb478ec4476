package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"marketplace-offer-service/internal/adapters/hub"
	"marketplace-offer-service/internal/adapters/sqlite"
	"marketplace-offer-service/internal/app"
	"marketplace-offer-service/internal/domain/item"
	"marketplace-offer-service/internal/domain/shared"
	"marketplace-offer-service/internal/ports/inbound"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type wsFixture struct {
	server  *httptest.Server
	handler *WsHandler
	catalog *app.CatalogService
}

func newWsFixture(t *testing.T) *wsFixture {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "offers.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	eventHub := hub.New(hub.Params{Logger: zerolog.Nop()})
	ctx, cancel := context.WithCancel(context.Background())
	go eventHub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-eventHub.Done()
	})

	offers := app.NewOfferService(app.OfferServiceParams{
		Store:     store,
		Publisher: eventHub,
		TxTimeout: 5 * time.Second,
		Logger:    zerolog.Nop(),
	})
	catalog := app.NewCatalogService(app.CatalogServiceParams{
		Store:     store,
		Publisher: eventHub,
		Logger:    zerolog.Nop(),
	})

	handler := NewHandler(WsHandlerParams{
		OfferService:   offers,
		CatalogService: catalog,
		Broadcaster:    eventHub,
		Logger:         zerolog.Nop(),
	})
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)

	return &wsFixture{server: server, handler: handler, catalog: catalog}
}

func (f *wsFixture) user(t *testing.T, name string) shared.User {
	t.Helper()
	user, err := f.catalog.CreateUser(context.Background(), inbound.CreateUserRequest{Username: name})
	require.NoError(t, err)
	return user
}

func (f *wsFixture) item(t *testing.T, price string) item.Item {
	t.Helper()
	it, err := f.catalog.CreateItem(context.Background(), inbound.CreateItemRequest{Name: "Bookshelf", Price: decimal.RequireFromString(price)})
	require.NoError(t, err)
	return it
}

func (f *wsFixture) dial(t *testing.T, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?user_id=" + userID.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until every wanted type has been seen and returns them by type
func readUntil(t *testing.T, conn *websocket.Conn, want ...string) map[string]map[string]interface{} {
	t.Helper()
	seen := make(map[string]map[string]interface{})
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		missing := false
		for _, w := range want {
			if _, ok := seen[w]; !ok {
				missing = true
			}
		}
		if !missing {
			return seen
		}

		var frame map[string]interface{}
		require.NoError(t, conn.ReadJSON(&frame))
		frameType, _ := frame["type"].(string)
		seen[frameType] = frame
	}
}

func TestWebSocketSubscribeAndPlaceOffer(t *testing.T) {
	f := newWsFixture(t)
	buyer := f.user(t, "buyer")
	listed := f.item(t, "50.00")

	conn := f.dial(t, buyer.ID)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "subscribe", "item_id": listed.ID}))
	frames := readUntil(t, conn, string(MessageTypeSubscribed))
	require.Equal(t, listed.ID.String(), frames[string(MessageTypeSubscribed)]["item_id"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    "place_offer",
		"item_id": listed.ID,
		"amount":  "60.00",
		"message": "still available?",
	}))
	frames = readUntil(t, conn, string(MessageTypeOfferPlaced), "NEW_OFFER", "PRICE_UPDATE")

	placed := frames[string(MessageTypeOfferPlaced)]["data"].(map[string]interface{})
	require.Equal(t, "PENDING", placed["status"])
	require.Equal(t, buyer.ID.String(), placed["user_id"])

	update := frames["PRICE_UPDATE"]["payload"].(map[string]interface{})
	require.Equal(t, listed.ID.String(), update["item_id"])
	require.Equal(t, "60", update["new_price"])
}

func TestWebSocketErrorFrames(t *testing.T) {
	f := newWsFixture(t)
	buyer := f.user(t, "buyer")
	listed := f.item(t, "50.00")

	conn := f.dial(t, buyer.ID)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "place_offer", "item_id": listed.ID, "amount": "40.00"}))
	frames := readUntil(t, conn, string(MessageTypeError))
	require.Equal(t, shared.KindBidTooLow.String(), frames[string(MessageTypeError)]["kind"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "subscribe"}))
	frames = readUntil(t, conn, string(MessageTypeError))
	require.Equal(t, shared.KindValidation.String(), frames[string(MessageTypeError)]["kind"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "accept_offer", "offer_id": uuid.New()}))
	frames = readUntil(t, conn, string(MessageTypeError))
	require.Equal(t, shared.KindNotFound.String(), frames[string(MessageTypeError)]["kind"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "ping"}))
	readUntil(t, conn, string(MessageTypePong))
}

func TestWebSocketAcceptOffer(t *testing.T) {
	f := newWsFixture(t)
	seller := f.user(t, "seller")
	buyer := f.user(t, "buyer")
	listed := f.item(t, "50.00")

	buyerConn := f.dial(t, buyer.ID)
	require.NoError(t, buyerConn.WriteJSON(map[string]interface{}{"type": "place_offer", "item_id": listed.ID, "amount": "75.00"}))
	placed := readUntil(t, buyerConn, string(MessageTypeOfferPlaced))[string(MessageTypeOfferPlaced)]["data"].(map[string]interface{})

	sellerConn := f.dial(t, seller.ID)
	require.NoError(t, sellerConn.WriteJSON(map[string]interface{}{"type": "subscribe", "item_id": listed.ID}))
	readUntil(t, sellerConn, string(MessageTypeSubscribed))

	require.NoError(t, sellerConn.WriteJSON(map[string]interface{}{"type": "accept_offer", "offer_id": placed["id"]}))
	frames := readUntil(t, sellerConn, string(MessageTypeOfferUpdated), "ITEM_SOLD", "OFFER_STATUS_CHANGE")

	updated := frames[string(MessageTypeOfferUpdated)]["data"].(map[string]interface{})
	require.Equal(t, "ACCEPTED", updated["status"])

	sold := frames["ITEM_SOLD"]["payload"].(map[string]interface{})
	require.Equal(t, buyer.ID.String(), sold["winner_user_id"])
	require.Equal(t, "75", sold["final_price"])
}

func TestWebSocketRejectsUnknownUser(t *testing.T) {
	f := newWsFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?user_id=" + uuid.NewString()
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.server.URL, "http"), nil)
	require.Error(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketDisconnectUnregisters(t *testing.T) {
	f := newWsFixture(t)
	buyer := f.user(t, "buyer")

	conn := f.dial(t, buyer.ID)
	require.Eventually(t, func() bool { return f.handler.GetConnectedClients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return f.handler.GetConnectedClients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
