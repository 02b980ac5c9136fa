package upload

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tpnguyen128/carbonmarket/internal/money"
)

// thousand converts tons to kilograms when no CO2 estimate is supplied.
var thousand = decimal.NewFromInt(1000)

// Handler provides HTTP endpoints for upload crediting
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new upload handler
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes sets up upload routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/uploads", h.RecordUpload)
	r.GET("/users/:id/uploads", h.ListByOwner)
}

// RecordUploadRequest carries pre-computed estimate figures.
type RecordUploadRequest struct {
	OwnerID        string `json:"ownerId" binding:"required"`
	Filename       string `json:"filename" binding:"required"`
	ExtractedText  string `json:"extractedText"`
	EstimatedCo2Kg string `json:"estimatedCo2Kg"`
	CreditsTons    string `json:"creditsTons" binding:"required"`
}

// RecordUpload handles POST /uploads
func (h *Handler) RecordUpload(c *gin.Context) {
	var req RecordUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	creditsTons, err := money.ParsePositive(req.CreditsTons)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "creditsTons must be a positive decimal number",
		})
		return
	}
	co2Kg, err := money.Parse(req.EstimatedCo2Kg)
	if err != nil {
		co2Kg = creditsTons.Mul(thousand)
	}

	record, err := h.service.Record(c.Request.Context(), req.OwnerID, req.Filename, req.ExtractedText, co2Kg, creditsTons)
	if err != nil {
		if errors.Is(err, ErrInvalidUpload) || errors.Is(err, money.ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_upload",
				"message": err.Error(),
			})
			return
		}
		h.logger.Error("upload crediting failed", "owner", req.OwnerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "upload_error",
			"message": "Failed to credit upload",
		})
		return
	}

	c.JSON(http.StatusCreated, record)
}

// ListByOwner handles GET /users/:id/uploads
func (h *Handler) ListByOwner(c *gin.Context) {
	records, err := h.service.ListByOwner(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "upload_error",
			"message": "Failed to list upload records",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"uploads": records,
		"count":   len(records),
	})
}
