package user

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for user operations
type Handler struct {
	directory *Directory
	logger    *slog.Logger
}

// NewHandler creates a new user handler
func NewHandler(directory *Directory, logger *slog.Logger) *Handler {
	return &Handler{directory: directory, logger: logger}
}

// RegisterRoutes sets up user routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/users", h.CreateUser)
	r.GET("/users/:id", h.GetUser)
}

// CreateUserRequest is the body for POST /users
type CreateUserRequest struct {
	FullName string `json:"fullName" binding:"required"`
	Email    string `json:"email" binding:"required"`
}

// CreateUser handles POST /users
func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	u, err := h.directory.Create(c.Request.Context(), req.FullName, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "email_taken",
				"message": "A user with this email already exists",
			})
		case errors.Is(err, ErrInvalid):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_user",
				"message": err.Error(),
			})
		default:
			h.logger.Error("user creation failed", "email", req.Email, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "user_error",
				"message": "Failed to create user",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, u)
}

// GetUser handles GET /users/:id
func (h *Handler) GetUser(c *gin.Context) {
	u, err := h.directory.Find(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "user_not_found",
				"message": "User not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "user_error",
			"message": "Failed to retrieve user",
		})
		return
	}

	c.JSON(http.StatusOK, u)
}
