package api

import (
	"strconv"

	"holdem-service/internal/middleware"
	"holdem-service/internal/service"
	"holdem-service/internal/ws"
	appErr "holdem-service/pkg/errors"
	"holdem-service/pkg/logger"
	"holdem-service/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	services *service.Container
}

func RegisterRoutes(r *gin.Engine, services *service.Container) {
	handler := &Handler{services: services}
	wsHandler := ws.NewHandler(services.Game, services.Queue, services.Limiter, services.Hub)

	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{"message": "pong"})
	})

	v1 := r.Group("/v1")
	{
		tableGroup := v1.Group("/tables")
		tableGroup.Use(middleware.AuthRequired(), middleware.RateLimit(services.Limiter))
		{
			tableGroup.GET("/:tableId/state", handler.GetTableState)
			tableGroup.POST("/:tableId/start", handler.StartHand)
		}
	}

	r.GET("/ws/table/:tableId", wsHandler.HandleTableWS)
}

func parseTableID(c *gin.Context) (int64, bool) {
	tableID, err := strconv.ParseInt(c.Param("tableId"), 10, 64)
	if err != nil || tableID <= 0 {
		response.Fail(c, appErr.ErrInvalidParams)
		return 0, false
	}
	return tableID, true
}

// GetTableState returns the table as the caller may see it.
func (h *Handler) GetTableState(c *gin.Context) {
	tableID, ok := parseTableID(c)
	if !ok {
		return
	}
	userID := middleware.UserID(c)
	ctx := c.Request.Context()

	if err := h.services.Game.ValidateTableAccess(ctx, userID, tableID); err != nil {
		response.Fail(c, err)
		return
	}
	view, err := h.services.Game.View(ctx, tableID, userID)
	if err != nil {
		logger.Log.Error("load table view failed", zap.Int64("tableID", tableID), zap.Error(err))
		response.Fail(c, err)
		return
	}
	response.Success(c, view)
}

// StartHand lets the host deal the first hand. The deal itself runs on
// the table queue.
func (h *Handler) StartHand(c *gin.Context) {
	tableID, ok := parseTableID(c)
	if !ok {
		return
	}
	userID := middleware.UserID(c)
	ctx := c.Request.Context()

	if err := h.services.Game.ValidateHost(ctx, userID, tableID); err != nil {
		response.Fail(c, err)
		return
	}
	if err := h.services.Game.CanStart(ctx, tableID); err != nil {
		response.Fail(c, err)
		return
	}
	jobID, err := h.services.Queue.EnqueueStartHand(ctx, tableID, userID)
	if err != nil {
		logger.Log.Error("enqueue start hand failed", zap.Int64("tableID", tableID), zap.Error(err))
		response.Fail(c, err)
		return
	}
	response.Accepted(c, gin.H{"jobId": jobID}, "start queued")
}
