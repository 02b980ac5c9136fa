package wallet

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tpnguyen128/carbonmarket/internal/money"
)

// Handler provides HTTP endpoints for wallet operations
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new wallet handler
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes sets up wallet routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:id/wallet", h.GetBalance)
	r.GET("/users/:id/wallet/history", h.GetHistory)
	r.POST("/users/:id/topups", h.SubmitTopUp)
	r.POST("/transfers", h.Transfer)
}

// RegisterAdminRoutes sets up admin-only wallet routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/admin/topups", h.ListTopUps)
	r.POST("/admin/topups/:id/approve", h.ApproveTopUp)
	r.POST("/admin/topups/:id/reject", h.RejectTopUp)
}

// GetBalance handles GET /users/:id/wallet
func (h *Handler) GetBalance(c *gin.Context) {
	balance, err := h.service.GetBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "balance_error",
			"message": "Failed to retrieve balance",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":  c.Param("id"),
		"balance": balance,
	})
}

// GetHistory handles GET /users/:id/wallet/history
func (h *Handler) GetHistory(c *gin.Context) {
	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.service.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "history_error",
			"message": "Failed to retrieve wallet history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
	})
}

// TopUpRequest for submitting a deposit request
type TopUpRequest struct {
	Amount      string `json:"amount" binding:"required"`
	Description string `json:"description"`
}

// SubmitTopUp handles POST /users/:id/topups
func (h *Handler) SubmitTopUp(c *gin.Context) {
	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	amount, err := money.ParsePositive(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "Amount must be a positive decimal number",
		})
		return
	}

	t, err := h.service.SubmitTopUp(c.Request.Context(), c.Param("id"), amount, req.Description)
	if err != nil {
		h.logger.Error("top-up submission failed", "user", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "topup_error",
			"message": "Failed to submit top-up",
		})
		return
	}

	c.JSON(http.StatusCreated, t)
}

// TransferRequest for moving funds between users
type TransferRequest struct {
	FromUserID  string `json:"fromUserId" binding:"required"`
	ToUserID    string `json:"toUserId" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	Description string `json:"description"`
}

// Transfer handles POST /transfers
func (h *Handler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	amount, err := money.ParsePositive(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "Amount must be a positive decimal number",
		})
		return
	}

	err = h.service.Transfer(c.Request.Context(), req.FromUserID, req.ToUserID, amount, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientBalance):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "insufficient_balance",
				"message": "Insufficient balance for transfer",
			})
		case errors.Is(err, money.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_amount",
				"message": "Invalid transfer amount",
			})
		default:
			h.logger.Error("transfer failed", "from", req.FromUserID, "to", req.ToUserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "transfer_error",
				"message": "Failed to execute transfer",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "completed",
		"message": "Transfer executed",
		"amount":  req.Amount,
	})
}

// ListTopUps handles GET /admin/topups?status=
func (h *Handler) ListTopUps(c *gin.Context) {
	topUps, err := h.service.ListTopUps(c.Request.Context(), c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "topup_error",
			"message": "Failed to list top-ups",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"topUps": topUps,
		"count":  len(topUps),
	})
}

// ApproveTopUp handles POST /admin/topups/:id/approve
func (h *Handler) ApproveTopUp(c *gin.Context) {
	t, err := h.service.ApproveTopUp(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondTopUpError(c, err, "approve")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "approved",
		"message": "Top-up approved and wallet credited",
		"topUp":   t,
	})
}

// RejectTopUpRequest carries the arbitration reason
type RejectTopUpRequest struct {
	Reason string `json:"reason"`
}

// RejectTopUp handles POST /admin/topups/:id/reject
func (h *Handler) RejectTopUp(c *gin.Context) {
	var req RejectTopUpRequest
	_ = c.ShouldBindJSON(&req) // reason is optional

	t, err := h.service.RejectTopUp(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.respondTopUpError(c, err, "reject")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "rejected",
		"message": "Top-up rejected",
		"topUp":   t,
	})
}

func (h *Handler) respondTopUpError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, ErrTopUpNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "topup_not_found",
			"message": "Top-up not found",
		})
	case errors.Is(err, ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_state",
			"message": "Top-up has already been arbitrated",
		})
	default:
		h.logger.Error("top-up arbitration failed", "action", action, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "topup_error",
			"message": "Failed to " + action + " top-up",
		})
	}
}
