package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"holdem-service/internal/middleware"
	"holdem-service/internal/service/game"
	"holdem-service/internal/service/queue"
	pkgAuth "holdem-service/pkg/auth"
	appErr "holdem-service/pkg/errors"
	"holdem-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	TypeConnected     = "CONNECTED"
	TypePlayerAction  = "PLAYER_ACTION"
	TypeSync          = "SYNC"
	TypePing          = "PING"
	TypePong          = "PONG"
	TypeTableState    = "TABLE_STATE"
	TypeActionEnqueue = "ACTION_ENQUEUED"
	TypeError         = "ERROR"
)

type Handler struct {
	gameSvc  *game.Service
	queue    *queue.Queue
	limiter  *middleware.RateLimiter
	hub      *Hub
	validate *validator.Validate
}

func NewHandler(gameSvc *game.Service, q *queue.Queue, limiter *middleware.RateLimiter, hub *Hub) *Handler {
	return &Handler{gameSvc: gameSvc, queue: q, limiter: limiter, hub: hub, validate: validator.New()}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

func (h *Handler) HandleTableWS(c *gin.Context) {
	tableID, err := strconv.ParseInt(c.Param("tableId"), 10, 64)
	if err != nil || tableID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid table id"})
		return
	}

	token, err := middleware.TokenFromRequest(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	claims, err := pkgAuth.ParsePlayerToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	userID := claims.SubjectID

	if err := h.gameSvc.ValidateTableAccess(c.Request.Context(), userID, tableID); err != nil {
		switch {
		case errors.Is(err, appErr.ErrUnauthorized):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		case errors.Is(err, appErr.ErrTableNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "table not found"})
		case errors.Is(err, appErr.ErrTableAccessDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "table access denied"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate table access"})
		}
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	logger.Log.Info("New WebSocket connection",
		zap.Int64("tableID", tableID),
		zap.Int64("userID", userID),
	)

	sess := &session{
		h:         h,
		conn:      conn,
		client:    newClient(userID, tableID),
		done:      make(chan struct{}),
		pingEvery: 25 * time.Second,
	}
	h.hub.register(sess.client)
	sess.client.send(Outgoing{Type: TypeConnected, Data: gin.H{"tableId": strconv.FormatInt(tableID, 10), "userId": strconv.FormatInt(userID, 10)}})
	h.sendState(c.Request.Context(), sess.client)
	sess.run()
}

type incomingMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type actionRequest struct {
	HandID    string `json:"handId" validate:"required"`
	Action    string `json:"action" validate:"required,oneof=FOLD CHECK CALL BET RAISE ALL_IN"`
	Amount    int64  `json:"amount" validate:"required_if=Action BET,required_if=Action RAISE,gte=0"`
	RequestID string `json:"requestId" validate:"omitempty,max=64"`
}

// handleMessage processes one client frame and answers through c.
func (h *Handler) handleMessage(ctx context.Context, c *client, raw []byte) {
	var in incomingMessage
	if err := json.Unmarshal(raw, &in); err != nil {
		c.send(errorOut("INVALID_PAYLOAD", "invalid payload"))
		return
	}

	switch in.Type {
	case TypePing:
		c.send(Outgoing{Type: TypePong, Data: gin.H{"ts": time.Now().UnixMilli()}})
	case TypeSync:
		h.sendState(ctx, c)
	case TypePlayerAction:
		h.handleAction(ctx, c, in.Data)
	case "":
	default:
		c.send(errorOut("UNKNOWN_MESSAGE", "unsupported message type"))
	}
}

func (h *Handler) handleAction(ctx context.Context, c *client, data json.RawMessage) {
	var req actionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.send(errorOut("INVALID_PAYLOAD", "invalid action payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		if amountMissing(err) {
			c.send(errorOut("AMOUNT_REQUIRED", appErr.ErrAmountRequired.Error()))
			return
		}
		c.send(errorOut("INVALID_PAYLOAD", err.Error()))
		return
	}

	ok, err := h.limiter.AllowAction(ctx, c.userID, c.tableID)
	if err != nil {
		logger.Log.Warn("action rate limit check failed", zap.Int64("userID", c.userID), zap.Error(err))
	} else if !ok {
		c.send(errorOut("RATE_LIMITED", appErr.ErrRateLimited.Error()))
		return
	}

	jobID, err := h.queue.EnqueuePlayerAction(ctx, c.tableID, queue.PlayerActionPayload{
		UserID: c.userID,
		HandID: req.HandID,
		Action: game.PlayerAction{Type: game.ActionType(req.Action), Amount: req.Amount},
	})
	if err != nil {
		logger.Log.Error("enqueue action failed", zap.Int64("tableID", c.tableID), zap.Error(err))
		c.send(errorOut("INTERNAL_ERROR", "action could not be queued"))
		return
	}
	c.send(Outgoing{Type: TypeActionEnqueue, Data: gin.H{"jobId": jobID, "requestId": req.RequestID}})
}

func amountMissing(err error) bool {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return false
	}
	for _, fe := range verrs {
		if fe.Field() == "Amount" && fe.Tag() == "required_if" {
			return true
		}
	}
	return false
}

func (h *Handler) sendState(ctx context.Context, c *client) {
	view, err := h.gameSvc.View(ctx, c.tableID, c.userID)
	if err != nil {
		logger.Log.Warn("load table view failed", zap.Int64("tableID", c.tableID), zap.Error(err))
		c.send(errorOut("INTERNAL_ERROR", "table state unavailable"))
		return
	}
	c.send(Outgoing{Type: TypeTableState, Data: view})
}

func errorOut(code, message string) Outgoing {
	return Outgoing{Type: TypeError, Data: gin.H{"errorCode": code, "errorMessage": message}}
}

type session struct {
	h         *Handler
	conn      *websocket.Conn
	client    *client
	done      chan struct{}
	pingEvery time.Duration
}

func (s *session) run() {
	s.conn.SetReadLimit(1 << 20)
	s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	go s.writePump()
	s.readPump()
}

func (s *session) readPump() {
	defer func() {
		close(s.done)
		s.h.hub.unregister(s.client)
		s.conn.Close()
	}()

	for {
		mt, message, err := s.conn.ReadMessage()
		if err != nil {
			logger.Log.Info("WS read error", zap.Error(err), zap.Int64("userID", s.client.userID), zap.Int64("tableID", s.client.tableID))
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s.h.handleMessage(ctx, s.client, message)
		cancel()
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(s.pingEvery)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.client.outbound:
			if !ok {
				return
			}
			if err := s.conn.WriteJSON(msg); err != nil {
				logger.Log.Info("WS write error", zap.Error(err), zap.Int64("userID", s.client.userID), zap.Int64("tableID", s.client.tableID))
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
