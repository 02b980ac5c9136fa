package listing

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tpnguyen128/carbonmarket/internal/money"
)

// Handler provides HTTP endpoints for listing operations
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new listing handler
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes sets up listing routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/listings", h.CreateListing)
	r.GET("/listings", h.ListOpen)
	r.GET("/listings/:id", h.GetListing)
	r.GET("/listings/price-stats", h.GetPriceStats)
	r.GET("/users/:id/listings", h.ListBySeller)
}

// CreateListingRequest is the body for POST /listings
type CreateListingRequest struct {
	SellerID     string `json:"sellerId" binding:"required"`
	Title        string `json:"title" binding:"required"`
	CarbonAmount string `json:"carbonAmount" binding:"required"`
	Price        string `json:"price" binding:"required"`
}

// CreateListing handles POST /listings
func (h *Handler) CreateListing(c *gin.Context) {
	var req CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	carbonAmount, err := money.ParsePositive(req.CarbonAmount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "carbonAmount must be a positive decimal number",
		})
		return
	}
	price, err := money.ParsePositive(req.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "price must be a positive decimal number",
		})
		return
	}

	l, err := h.service.Create(c.Request.Context(), req.SellerID, req.Title, carbonAmount, price)
	if err != nil {
		if errors.Is(err, ErrInvalidListing) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_listing",
				"message": err.Error(),
			})
			return
		}
		h.logger.Error("listing creation failed", "seller", req.SellerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "listing_error",
			"message": "Failed to create listing",
		})
		return
	}

	c.JSON(http.StatusCreated, l)
}

// GetListing handles GET /listings/:id
func (h *Handler) GetListing(c *gin.Context) {
	l, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "listing_not_found",
				"message": "Listing not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "listing_error",
			"message": "Failed to retrieve listing",
		})
		return
	}

	c.JSON(http.StatusOK, l)
}

// ListOpen handles GET /listings
func (h *Handler) ListOpen(c *gin.Context) {
	listings, err := h.service.ListOpen(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "listing_error",
			"message": "Failed to list open listings",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": listings,
		"count":    len(listings),
	})
}

// ListBySeller handles GET /users/:id/listings
func (h *Handler) ListBySeller(c *gin.Context) {
	listings, err := h.service.ListBySeller(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "listing_error",
			"message": "Failed to list seller listings",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": listings,
		"count":    len(listings),
	})
}

// GetPriceStats handles GET /listings/price-stats
func (h *Handler) GetPriceStats(c *gin.Context) {
	stats, err := h.service.PriceStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "stats_error",
			"message": "Failed to compute price statistics",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}
