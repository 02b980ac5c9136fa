package trading

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tpnguyen128/carbonmarket/internal/listing"
	"github.com/tpnguyen128/carbonmarket/internal/money"
	"github.com/tpnguyen128/carbonmarket/internal/wallet"
)

// Handler provides HTTP endpoints for trading operations
type Handler struct {
	engine *Engine
	logger *slog.Logger
}

// NewHandler creates a new trading handler
func NewHandler(engine *Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// RegisterRoutes sets up trading routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/transactions", h.CreateTransaction)
	r.GET("/transactions/:id", h.GetTransaction)
	r.POST("/transactions/:id/confirm", h.ConfirmTransaction)
	r.POST("/transactions/:id/cancel", h.CancelTransaction)
	r.GET("/users/:id/transactions", h.ListTransactions)
}

// CreateTransactionRequest is the body for POST /transactions
type CreateTransactionRequest struct {
	ListingID string `json:"listingId" binding:"required"`
	BuyerID   string `json:"buyerId" binding:"required"`
	Quantity  string `json:"quantity" binding:"required"`
}

// CreateTransaction handles POST /transactions
func (h *Handler) CreateTransaction(c *gin.Context) {
	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	quantity, err := money.Parse(req.Quantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "quantity must be a decimal number",
		})
		return
	}

	txn, err := h.engine.Create(c.Request.Context(), req.ListingID, req.BuyerID, quantity)
	if err != nil {
		h.respondTradeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, txn)
}

// GetTransaction handles GET /transactions/:id
func (h *Handler) GetTransaction(c *gin.Context) {
	txn, err := h.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondTradeError(c, err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

// ConfirmTransaction handles POST /transactions/:id/confirm
func (h *Handler) ConfirmTransaction(c *gin.Context) {
	txn, err := h.engine.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondTradeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "completed",
		"message":     "Transaction settled",
		"transaction": txn,
	})
}

// CancelTransaction handles POST /transactions/:id/cancel
func (h *Handler) CancelTransaction(c *gin.Context) {
	txn, err := h.engine.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondTradeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "cancelled",
		"message":     "Transaction cancelled",
		"transaction": txn,
	})
}

// ListTransactions handles GET /users/:id/transactions?role=buyer|seller
func (h *Handler) ListTransactions(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("id")

	var txns []*Transaction
	var err error
	switch c.Query("role") {
	case "buyer":
		txns, err = h.engine.ListByBuyer(ctx, userID)
	case "seller":
		txns, err = h.engine.ListBySeller(ctx, userID)
	default:
		txns, err = h.engine.ListByUser(ctx, userID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "transaction_error",
			"message": "Failed to list transactions",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txns,
		"count":        len(txns),
	})
}

func (h *Handler) respondTradeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "transaction_not_found",
			"message": "Transaction not found",
		})
	case errors.Is(err, listing.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "listing_not_found",
			"message": "Listing not found",
		})
	case errors.Is(err, ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "user_not_found",
			"message": "Buyer not found",
		})
	case errors.Is(err, listing.ErrUnavailable):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "listing_unavailable",
			"message": "Listing is not open",
		})
	case errors.Is(err, ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_state",
			"message": "Transaction is already in a terminal state",
		})
	case errors.Is(err, listing.ErrQuantityExceedsAvailable):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "quantity_exceeds_available",
			"message": "Requested quantity exceeds the available amount",
		})
	case errors.Is(err, wallet.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "insufficient_balance",
			"message": "Buyer balance cannot cover the transaction amount",
		})
	case errors.Is(err, ErrSelfTrade):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "self_trade",
			"message": "Buyer and seller cannot be the same user",
		})
	case errors.Is(err, money.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "Quantity must be a positive decimal number",
		})
	default:
		h.logger.Error("trading operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "storage_error",
			"message": "Operation failed",
		})
	}
}
