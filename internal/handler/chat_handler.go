package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/peermart/peermart-backend/internal/feed"
	appmw "github.com/peermart/peermart-backend/internal/middleware"
	"github.com/peermart/peermart-backend/internal/model"
	"github.com/peermart/peermart-backend/internal/service"
)

type ChatHandler struct {
	svc  service.ChatService
	feed feed.Feed
}

func NewChatHandler(svc service.ChatService, msgFeed feed.Feed) *ChatHandler {
	return &ChatHandler{svc: svc, feed: msgFeed}
}

type ThreadMessageRequest struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	Type       string `json:"type"`
}

type MessageResponse struct {
	ID         uint64 `json:"id"`
	ThreadID   uint64 `json:"threadId,omitempty"`
	ListingID  uint64 `json:"listingId,omitempty"`
	SenderID   string `json:"senderId"`
	Body       string `json:"body,omitempty"`
	Ciphertext string `json:"ciphertext,omitempty"`
	Nonce      string `json:"nonce,omitempty"`
	Type       string `json:"type"`
	CreatedAt  string `json:"createdAt"`
}

func toMessageResponse(m *model.Message) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		ThreadID:   m.ThreadID,
		ListingID:  m.ListingID,
		SenderID:   m.SenderID,
		Body:       m.Body,
		Ciphertext: m.Ciphertext,
		Nonce:      m.Nonce,
		Type:       string(m.Type),
		CreatedAt:  m.CreatedAt.Format(time.RFC3339Nano),
	}
}

func (h *ChatHandler) StartThread(c echo.Context) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	listingID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid listing id"))
	}
	th, err := h.svc.StartThread(c.Request().Context(), listingID, caller)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, th)
}

func (h *ChatHandler) ListThreads(c echo.Context) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	threads, err := h.svc.ListThreads(c.Request().Context(), caller)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch threads"))
	}
	return c.JSON(http.StatusOK, threads)
}

func (h *ChatHandler) SendThreadMessage(c echo.Context) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	threadID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid thread id"))
	}
	var req ThreadMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	msg, err := h.svc.SendThreadMessage(c.Request().Context(), threadID, caller, req.Ciphertext, req.Nonce, model.MessageType(req.Type))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, toMessageResponse(msg))
}

func (h *ChatHandler) ListThreadMessages(c echo.Context) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	threadID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid thread id"))
	}
	msgs, err := h.svc.ListThreadMessages(c.Request().Context(), threadID, caller)
	if err != nil {
		return respondServiceError(c, err)
	}
	resp := make([]MessageResponse, 0, len(msgs))
	for i := range msgs {
		resp = append(resp, toMessageResponse(&msgs[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) MarkRead(c echo.Context) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	threadID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid thread id"))
	}
	if err := h.svc.MarkRead(c.Request().Context(), threadID, caller); err != nil {
		return respondServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamThread pushes new thread messages over a websocket. The client may
// pass ?after=<messageId> to resume from a known position; the feed replays
// the gap and then streams live, always in creation order.
func (h *ChatHandler) StreamThread(c echo.Context) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	threadID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid thread id"))
	}
	afterID, _ := strconv.ParseUint(c.QueryParam("after"), 10, 64)

	// Membership check before upgrading.
	if _, err := h.svc.ListThreadMessages(c.Request().Context(), threadID, caller); err != nil {
		return respondServiceError(c, err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// The upgrade hijacks the connection, so the request context no longer
	// ends when the peer goes away. Run a read pump whose only job is to
	// notice the close and cancel the subscription.
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ch, err := h.feed.Subscribe(ctx, threadID, afterID)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := conn.WriteJSON(toMessageResponse(&msg)); err != nil {
				return nil
			}
		}
	}
}

type ListingMessageRequest struct {
	Body       string `json:"body"`
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
}

func (h *ChatHandler) PostListingMessage(c echo.Context) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	listingID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid listing id"))
	}
	var req ListingMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	msg, err := h.svc.PostListingMessage(c.Request().Context(), listingID, caller, req.Body, req.Ciphertext, req.Nonce)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, toMessageResponse(msg))
}

func (h *ChatHandler) ListListingMessages(c echo.Context) error {
	listingID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid listing id"))
	}
	msgs, err := h.svc.ListListingMessages(c.Request().Context(), listingID)
	if err != nil {
		return respondServiceError(c, err)
	}
	resp := make([]MessageResponse, 0, len(msgs))
	for i := range msgs {
		resp = append(resp, toMessageResponse(&msgs[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) GatedKey(c echo.Context) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	listingID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid listing id"))
	}
	key, err := h.svc.GatedKey(c.Request().Context(), listingID, caller)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"key": key})
}
