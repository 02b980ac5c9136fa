package notification

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for the admin notification inbox
type Handler struct {
	service *Service
}

// NewHandler creates a new notification handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterAdminRoutes sets up admin-only notification routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/admin/notifications", h.List)
	r.GET("/admin/notifications/unread", h.ListUnread)
	r.GET("/admin/notifications/unread/count", h.UnreadCount)
	r.POST("/admin/notifications/:id/read", h.MarkRead)
	r.POST("/admin/notifications/read-all", h.MarkAllRead)
	r.DELETE("/admin/notifications/:id", h.Delete)
}

// List handles GET /admin/notifications
func (h *Handler) List(c *gin.Context) {
	notifications, err := h.service.List(c.Request.Context())
	if err != nil {
		h.respondStorageError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// ListUnread handles GET /admin/notifications/unread
func (h *Handler) ListUnread(c *gin.Context) {
	notifications, err := h.service.ListUnread(c.Request.Context())
	if err != nil {
		h.respondStorageError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// UnreadCount handles GET /admin/notifications/unread/count
func (h *Handler) UnreadCount(c *gin.Context) {
	count, err := h.service.UnreadCount(c.Request.Context())
	if err != nil {
		h.respondStorageError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkRead handles POST /admin/notifications/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	if err := h.service.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "notification_not_found",
				"message": "Notification not found",
			})
			return
		}
		h.respondStorageError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

// MarkAllRead handles POST /admin/notifications/read-all
func (h *Handler) MarkAllRead(c *gin.Context) {
	if err := h.service.MarkAllRead(c.Request.Context()); err != nil {
		h.respondStorageError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

// Delete handles DELETE /admin/notifications/:id
func (h *Handler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "notification_not_found",
				"message": "Notification not found",
			})
			return
		}
		h.respondStorageError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) respondStorageError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "notification_error",
		"message": "Operation failed",
	})
}
