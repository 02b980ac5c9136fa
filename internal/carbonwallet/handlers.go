package carbonwallet

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for carbon wallet operations
type Handler struct {
	service *Service
}

// NewHandler creates a new carbon wallet handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up carbon wallet routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:id/carbon-wallet", h.GetBalance)
}

// GetBalance handles GET /users/:id/carbon-wallet
func (h *Handler) GetBalance(c *gin.Context) {
	balance, err := h.service.GetBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "carbon_wallet_not_found",
				"message": "User has no carbon wallet yet",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "balance_error",
			"message": "Failed to retrieve carbon balance",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":  c.Param("id"),
		"balance": balance,
	})
}
