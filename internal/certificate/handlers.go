package certificate

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tpnguyen128/carbonmarket/internal/money"
)

// Handler provides HTTP endpoints for certificate operations
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new certificate handler
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes sets up certificate routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/certificates/requests", h.RequestCertificate)
	r.GET("/certificates/:id", h.GetCertificate)
	r.GET("/users/:id/certificates", h.ListByOwner)
}

// RegisterAdminRoutes sets up admin-only certificate routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/admin/certificates/pending", h.ListPending)
	r.POST("/admin/certificates/:id/approve", h.ApproveCertificate)
	r.POST("/admin/certificates/:id/reject", h.RejectCertificate)
}

// RequestCertificateRequest is the body for POST /certificates/requests
type RequestCertificateRequest struct {
	OwnerID string `json:"ownerId" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
	Meta    Meta   `json:"meta"`
}

// RequestCertificate handles POST /certificates/requests
func (h *Handler) RequestCertificate(c *gin.Context) {
	var req RequestCertificateRequest
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

	cert, err := h.service.Request(c.Request.Context(), req.OwnerID, amount, req.Meta)
	if err != nil {
		h.logger.Error("certificate request failed", "owner", req.OwnerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "certificate_error",
			"message": "Failed to request certificate",
		})
		return
	}

	c.JSON(http.StatusCreated, cert)
}

// GetCertificate handles GET /certificates/:id
func (h *Handler) GetCertificate(c *gin.Context) {
	cert, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondCertError(c, err)
		return
	}

	c.JSON(http.StatusOK, cert)
}

// ListByOwner handles GET /users/:id/certificates
func (h *Handler) ListByOwner(c *gin.Context) {
	certs, err := h.service.GetByOwner(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "certificate_error",
			"message": "Failed to list certificates",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"certificates": certs,
		"count":        len(certs),
	})
}

// ListPending handles GET /admin/certificates/pending
func (h *Handler) ListPending(c *gin.Context) {
	certs, err := h.service.ListPending(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "certificate_error",
			"message": "Failed to list pending certificates",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"certificates": certs,
		"count":        len(certs),
	})
}

// ApproveCertificate handles POST /admin/certificates/:id/approve
func (h *Handler) ApproveCertificate(c *gin.Context) {
	cert, err := h.service.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondCertError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "approved",
		"message":     "Certificate approved",
		"certificate": cert,
	})
}

// RejectCertificate handles POST /admin/certificates/:id/reject
func (h *Handler) RejectCertificate(c *gin.Context) {
	if err := h.service.Reject(c.Request.Context(), c.Param("id")); err != nil {
		h.respondCertError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "rejected",
		"message": "Certificate request rejected and removed",
	})
}

func (h *Handler) respondCertError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "certificate_not_found",
			"message": "Certificate not found",
		})
	case errors.Is(err, ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_state",
			"message": "Certificate is not pending review",
		})
	default:
		h.logger.Error("certificate operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "certificate_error",
			"message": "Operation failed",
		})
	}
}
