package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"wallet-sentry/monitor/database"
	"wallet-sentry/monitor/internal/chains"
	"wallet-sentry/monitor/internal/models"
	"wallet-sentry/monitor/internal/scanner"
	"wallet-sentry/shared/env"
	"wallet-sentry/shared/logger"
)

const alertFeedLimit = 50

// PassRunner triggers one monitoring pass. *scanner.Scanner satisfies it.
type PassRunner interface {
	RunPass(ctx context.Context) (*scanner.PassResult, error)
}

// Store is the persistence surface the HTTP API consumes.
type Store interface {
	WatchlistForUser(userID uint) ([]models.WatchlistItem, error)
	AddWatchlistItem(item *models.WatchlistItem) error
	RemoveWatchlistItem(itemID, userID uint) error
	AlertsForUser(userID uint, limit int) ([]models.TransactionAlert, error)
	UnreadAlertCount(userID uint) (int64, error)
	MarkAlertsRead(userID uint, alertIDs []uint) error
	DeleteReadAlerts(userID uint) (int64, error)
}

type AddWatchlistRequest struct {
	Address      string `json:"address" binding:"required"`
	Chain        string `json:"chain" binding:"required"`
	TokenAddress string `json:"tokenAddress"`
	TokenSymbol  string `json:"tokenSymbol"`
	Label        string `json:"label"`
}

type MarkReadRequest struct {
	AlertIDs []uint `json:"alertIds" binding:"required"`
}

// Handler wires the HTTP API to the store, the scanner and the chain
// registry.
type Handler struct {
	store   Store
	runner  PassRunner
	sources *chains.Registry
	log     *logger.Logger
}

func New(store Store, runner PassRunner, sources *chains.Registry) *Handler {
	return &Handler{
		store:   store,
		runner:  runner,
		sources: sources,
		log:     logger.GetLogger(),
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Wallet monitor API is running."})
	})

	api := router.Group("/api/v1")
	api.GET("/health", h.HandleHealth)
	api.POST("/monitor/run", h.HandleRunMonitor)

	users := api.Group("/users/:userId")
	users.GET("/watchlist", h.HandleGetWatchlist)
	users.POST("/watchlist", h.HandleAddWatchlistItem)
	users.DELETE("/watchlist/:itemId", h.HandleRemoveWatchlistItem)
	users.GET("/alerts", h.HandleGetAlerts)
	users.PATCH("/alerts", h.HandleMarkAlertsRead)
	users.DELETE("/alerts", h.HandleClearReadAlerts)
}

func (h *Handler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"chains": h.sources.Chains(),
	})
}

// HandleRunMonitor triggers a monitoring pass synchronously and returns
// its summary. Item-level failures are part of the summary; only a
// pass-fatal error produces a 5xx.
func (h *Handler) HandleRunMonitor(c *gin.Context) {
	if secret := env.MonitorAPISecret; secret != "" {
		if c.GetHeader("X-Monitor-Secret") != secret {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing monitor secret"})
			return
		}
	}

	result, err := h.runner.RunPass(c.Request.Context())
	if err != nil {
		h.log.Error("Monitoring pass failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) HandleGetWatchlist(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	items, err := h.store.WatchlistForUser(userID)
	if err != nil {
		h.log.Error("Failed to list watchlist", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load watchlist"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *Handler) HandleAddWatchlistItem(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	var req AddWatchlistRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	source, err := h.sources.For(req.Chain)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported chain: " + req.Chain})
		return
	}
	if err := source.ValidateAddress(req.Address); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address for chain " + req.Chain})
		return
	}

	item := models.WatchlistItem{
		UserID:       userID,
		Address:      req.Address,
		Chain:        req.Chain,
		TokenAddress: req.TokenAddress,
		TokenSymbol:  req.TokenSymbol,
		Label:        req.Label,
	}
	if err := h.store.AddWatchlistItem(&item); err != nil {
		if errors.Is(err, database.ErrDuplicateWatchlistItem) {
			c.JSON(http.StatusConflict, gin.H{"error": "Wallet is already on the watchlist"})
			return
		}
		h.log.Error("Failed to add watchlist item", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add watchlist item"})
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) HandleRemoveWatchlistItem(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	itemID, err := strconv.ParseUint(c.Param("itemId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item id"})
		return
	}

	if err := h.store.RemoveWatchlistItem(uint(itemID), userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Watchlist item not found"})
			return
		}
		h.log.Error("Failed to remove watchlist item", "itemId", itemID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove watchlist item"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Watchlist item removed"})
}

func (h *Handler) HandleGetAlerts(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	alerts, err := h.store.AlertsForUser(userID, alertFeedLimit)
	if err != nil {
		h.log.Error("Failed to list alerts", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load alerts"})
		return
	}
	unread, err := h.store.UnreadAlertCount(userID)
	if err != nil {
		h.log.Error("Failed to count unread alerts", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "unreadCount": unread})
}

func (h *Handler) HandleMarkAlertsRead(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	var req MarkReadRequest
	if err := c.BindJSON(&req); err != nil || len(req.AlertIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "alertIds is required"})
		return
	}
	if err := h.store.MarkAlertsRead(userID, req.AlertIDs); err != nil {
		h.log.Error("Failed to mark alerts read", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark alerts read"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Alerts marked as read"})
}

func (h *Handler) HandleClearReadAlerts(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	deleted, err := h.store.DeleteReadAlerts(userID)
	if err != nil {
		h.log.Error("Failed to clear read alerts", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func parseUserID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return 0, false
	}
	return uint(id), true
}
