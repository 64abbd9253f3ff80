package service

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/peermart/peermart-backend/internal/chatcrypto"
	"github.com/peermart/peermart-backend/internal/identity"
	"github.com/peermart/peermart-backend/internal/ledger"
	"github.com/peermart/peermart-backend/internal/model"
	"github.com/peermart/peermart-backend/internal/repository"
)

// ChatConfig is the platform chat policy.
type ChatConfig struct {
	// GateMinBalance is the minimum gate-token balance (smallest units) that
	// keeps read access to a gated listing chat.
	GateMinBalance *big.Int
	// PostMinBalance is the minimum native balance required to post in an
	// ungated public chat. Pure anti-spam, unrelated to encryption.
	PostMinBalance uint64
	// PostRate and PostBurst throttle posts per identity.
	PostRate  rate.Limit
	PostBurst int
}

// ChatService runs both channel kinds: private (listing, buyer) threads
// whose content the data store cannot read, and per-listing public chat,
// optionally token-gated.
type ChatService interface {
	StartThread(ctx context.Context, listingID uint64, buyer identity.Caller) (*model.Thread, error)
	ListThreads(ctx context.Context, caller identity.Caller) ([]model.Thread, error)
	SendThreadMessage(ctx context.Context, threadID uint64, sender identity.Caller, ciphertext, nonce string, typ model.MessageType) (*model.Message, error)
	ListThreadMessages(ctx context.Context, threadID uint64, caller identity.Caller) ([]model.Message, error)
	MarkRead(ctx context.Context, threadID uint64, caller identity.Caller) error

	PostListingMessage(ctx context.Context, listingID uint64, sender identity.Caller, body, ciphertext, nonce string) (*model.Message, error)
	ListListingMessages(ctx context.Context, listingID uint64) ([]model.Message, error)
	// GatedKey re-verifies eligibility on every request: a caller who
	// disposed of their tokens loses access going forward.
	GatedKey(ctx context.Context, listingID uint64, caller identity.Caller) (string, error)
}

// MessageSink receives every stored message for push delivery.
type MessageSink interface {
	Publish(msg model.Message)
}

type chatService struct {
	listingRepo repository.ListingRepository
	threadRepo  repository.ThreadRepository
	messageRepo repository.MessageRepository
	oracle      ledger.Oracle
	sink        MessageSink
	cfg         ChatConfig
	log         zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewChatService(listingRepo repository.ListingRepository, threadRepo repository.ThreadRepository, messageRepo repository.MessageRepository, oracle ledger.Oracle, sink MessageSink, cfg ChatConfig, log zerolog.Logger) ChatService {
	if cfg.GateMinBalance == nil {
		cfg.GateMinBalance = big.NewInt(1)
	}
	if cfg.PostRate == 0 {
		cfg.PostRate = rate.Every(2 * time.Second)
	}
	if cfg.PostBurst == 0 {
		cfg.PostBurst = 5
	}
	return &chatService{
		listingRepo: listingRepo,
		threadRepo:  threadRepo,
		messageRepo: messageRepo,
		oracle:      oracle,
		sink:        sink,
		cfg:         cfg,
		log:         log.With().Str("component", "chat").Logger(),
		limiters:    make(map[string]*rate.Limiter),
	}
}

func (s *chatService) StartThread(ctx context.Context, listingID uint64, buyer identity.Caller) (*model.Thread, error) {
	listing, err := s.listingRepo.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if listing.SellerID == buyer.ID {
		return nil, errors.New("cannot open a thread with yourself")
	}
	return s.threadRepo.FindOrCreate(ctx, listingID, listing.SellerID, buyer.ID)
}

func (s *chatService) ListThreads(ctx context.Context, caller identity.Caller) ([]model.Thread, error) {
	return s.threadRepo.FindByUser(ctx, caller.ID)
}

func (s *chatService) participantThread(ctx context.Context, threadID uint64, callerID string) (*model.Thread, error) {
	th, err := s.threadRepo.FindByID(ctx, threadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if th.SellerID != callerID && th.BuyerID != callerID {
		return nil, ErrForbidden
	}
	return th, nil
}

func (s *chatService) SendThreadMessage(ctx context.Context, threadID uint64, sender identity.Caller, ciphertext, nonce string, typ model.MessageType) (*model.Message, error) {
	if ciphertext == "" || nonce == "" {
		return nil, errors.New("ciphertext and nonce are required")
	}
	if _, err := hex.DecodeString(nonce); err != nil {
		return nil, errors.New("nonce must be hex encoded")
	}
	if typ == "" {
		typ = model.MessageTypeText
	}
	if _, err := s.participantThread(ctx, threadID, sender.ID); err != nil {
		return nil, err
	}

	msg := &model.Message{
		ThreadID:   threadID,
		SenderID:   sender.ID,
		Ciphertext: ciphertext,
		Nonce:      nonce,
		Type:       typ,
	}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, err
	}
	if s.sink != nil {
		s.sink.Publish(*msg)
	}
	return msg, nil
}

func (s *chatService) ListThreadMessages(ctx context.Context, threadID uint64, caller identity.Caller) ([]model.Message, error) {
	if _, err := s.participantThread(ctx, threadID, caller.ID); err != nil {
		return nil, err
	}
	return s.messageRepo.ListByThread(ctx, threadID)
}

func (s *chatService) MarkRead(ctx context.Context, threadID uint64, caller identity.Caller) error {
	if _, err := s.participantThread(ctx, threadID, caller.ID); err != nil {
		return err
	}
	return s.threadRepo.MarkRead(ctx, threadID, caller.ID)
}

func (s *chatService) limiter(id string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[id]
	if !ok {
		l = rate.NewLimiter(s.cfg.PostRate, s.cfg.PostBurst)
		s.limiters[id] = l
	}
	return l
}

// PostListingMessage posts to a listing's public chat. Gated listings accept
// only ciphertext sealed with the listing key; ungated listings accept
// plaintext from anyone clearing the anti-spam balance floor.
func (s *chatService) PostListingMessage(ctx context.Context, listingID uint64, sender identity.Caller, body, ciphertext, nonce string) (*model.Message, error) {
	listing, err := s.listingRepo.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !s.limiter(sender.ID).Allow() {
		return nil, errors.New("posting too fast")
	}

	msg := &model.Message{ListingID: listingID, SenderID: sender.ID, Type: model.MessageTypeText}
	if listing.Gated {
		if ciphertext == "" || nonce == "" {
			return nil, errors.New("gated chat requires ciphertext and nonce")
		}
		if err := s.checkGate(ctx, listing, sender); err != nil {
			return nil, err
		}
		msg.Ciphertext = ciphertext
		msg.Nonce = nonce
	} else {
		if strings.TrimSpace(body) == "" {
			return nil, errors.New("body is required")
		}
		if s.cfg.PostMinBalance > 0 && sender.ID != listing.SellerID {
			balance, err := s.oracle.GetBalance(ctx, sender.Address)
			if err != nil {
				return nil, err
			}
			if balance < s.cfg.PostMinBalance {
				return nil, ErrNotEligible
			}
		}
		msg.Body = body
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, err
	}
	if s.sink != nil {
		s.sink.Publish(*msg)
	}
	return msg, nil
}

func (s *chatService) ListListingMessages(ctx context.Context, listingID uint64) ([]model.Message, error) {
	return s.messageRepo.ListByListing(ctx, listingID)
}

// checkGate verifies live eligibility: the seller always passes; anyone else
// must hold the gate-token minimum right now. Balances are never cached.
func (s *chatService) checkGate(ctx context.Context, listing *model.Listing, caller identity.Caller) error {
	if caller.ID == listing.SellerID {
		return nil
	}
	balance, err := s.oracle.GetTokenBalance(ctx, caller.Address, listing.GateMint)
	if err != nil {
		return err
	}
	if balance.Cmp(s.cfg.GateMinBalance) < 0 {
		return ErrNotEligible
	}
	return nil
}

func (s *chatService) GatedKey(ctx context.Context, listingID uint64, caller identity.Caller) (string, error) {
	listing, err := s.listingRepo.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	if !listing.Gated {
		return "", ErrNotEligible
	}
	if err := s.checkGate(ctx, listing, caller); err != nil {
		return "", err
	}

	if listing.ChatKey == "" {
		key, err := chatcrypto.ListingKey()
		if err != nil {
			return "", err
		}
		// Conditional write: only the first writer wins; everyone reads
		// back whichever key was stored.
		if _, err := s.listingRepo.SetChatKey(ctx, listingID, hex.EncodeToString(key)); err != nil {
			return "", err
		}
		listing, err = s.listingRepo.FindByID(ctx, listingID)
		if err != nil {
			return "", err
		}
	}
	return listing.ChatKey, nil
}
