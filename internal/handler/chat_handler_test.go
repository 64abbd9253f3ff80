package handler

import (
	"context"
	"math/big"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/peermart/peermart-backend/internal/feed"
	"github.com/peermart/peermart-backend/internal/identity"
	"github.com/peermart/peermart-backend/internal/ledger"
	"github.com/peermart/peermart-backend/internal/model"
	"github.com/peermart/peermart-backend/internal/repository"
	"github.com/peermart/peermart-backend/internal/service"
)

type nullOracle struct{}

func (nullOracle) GetTransaction(context.Context, string) (*ledger.TransactionRecord, error) {
	return nil, nil
}
func (nullOracle) GetBalance(context.Context, string) (uint64, error) { return 0, nil }
func (nullOracle) GetTokenBalance(context.Context, string, string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func TestStreamThreadReplaysThenPushesLive(t *testing.T) {
	ctx := context.Background()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.Listing{},
		&model.Thread{},
		&model.ThreadState{},
		&model.Message{},
	))

	listingRepo := repository.NewListingRepository(db)
	threadRepo := repository.NewThreadRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	seller := identity.NewCaller("SellerWallet1111111111111111111")
	buyer := identity.NewCaller("BuyerWallet22222222222222222222")
	listing := &model.Listing{
		SellerID:      seller.ID,
		SellerAddress: seller.Address,
		Title:         "City bike",
		Price:         "2500000",
		Currency:      model.CurrencyNative,
		Decimals:      6,
		Quantity:      1,
		Status:        model.ListingStatusActive,
		EscrowStatus:  model.EscrowStatusNone,
	}
	require.NoError(t, listingRepo.Create(ctx, listing))
	th, err := threadRepo.FindOrCreate(ctx, listing.ID, seller.ID, buyer.ID)
	require.NoError(t, err)

	backlog := &model.Message{ThreadID: th.ID, SenderID: buyer.ID, Ciphertext: "c1", Nonce: "n1", Type: model.MessageTypeText}
	require.NoError(t, messageRepo.Create(ctx, backlog))

	broker := feed.NewBroker(messageRepo)
	chatSvc := service.NewChatService(listingRepo, threadRepo, messageRepo, nullOracle{}, broker, service.ChatConfig{}, zerolog.Nop())
	h := NewChatHandler(chatSvc, broker)

	e := echo.New()
	asBuyer := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("uid", buyer.ID)
			c.Set("caller", buyer)
			return next(c)
		}
	}
	e.GET("/threads/:id/ws", h.StreamThread, asBuyer)
	srv := httptest.NewServer(e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/threads/" + strconv.FormatUint(th.ID, 10) + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got MessageResponse
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, backlog.ID, got.ID)
	require.Equal(t, "c1", got.Ciphertext)

	// The backlog arrived, so the subscription is live; a published message
	// must be pushed without polling.
	live := &model.Message{ThreadID: th.ID, SenderID: seller.ID, Ciphertext: "c2", Nonce: "n2", Type: model.MessageTypeText}
	require.NoError(t, messageRepo.Create(ctx, live))
	broker.Publish(*live)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, live.ID, got.ID)
	require.Equal(t, "c2", got.Ciphertext)
}
