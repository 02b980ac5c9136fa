// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/shopspring/decimal"

	"github.com/tpnguyen128/carbonmarket/internal/carbonwallet"
	"github.com/tpnguyen128/carbonmarket/internal/certificate"
	"github.com/tpnguyen128/carbonmarket/internal/config"
	"github.com/tpnguyen128/carbonmarket/internal/listing"
	"github.com/tpnguyen128/carbonmarket/internal/logging"
	"github.com/tpnguyen128/carbonmarket/internal/metrics"
	"github.com/tpnguyen128/carbonmarket/internal/notification"
	"github.com/tpnguyen128/carbonmarket/internal/trading"
	"github.com/tpnguyen128/carbonmarket/internal/upload"
	"github.com/tpnguyen128/carbonmarket/internal/user"
	"github.com/tpnguyen128/carbonmarket/internal/wallet"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg           *config.Config
	users         *user.Directory
	wallets       *wallet.Service
	carbon        *carbonwallet.Service
	listings      *listing.Service
	engine        *trading.Engine
	certificates  *certificate.Service
	notifications *notification.Service
	uploads       *upload.Service
	db            *sql.DB // nil if using in-memory
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	validity := time.Duration(cfg.CertificateValidityDays) * 24 * time.Hour

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		notificationStore := notification.NewPostgresStore(db)
		if err := notificationStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate notification store", "error", err)
		}
		s.notifications = notification.NewService(notificationStore, s.logger)

		userStore := user.NewPostgresStore(db)
		if err := userStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate user store", "error", err)
		}
		s.users = user.NewDirectory(userStore)

		walletStore := wallet.NewPostgresStore(db)
		if err := walletStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate wallet store", "error", err)
		}
		s.wallets = wallet.NewService(walletStore, &topUpNotifier{s.notifications}, s.logger)

		carbonStore := carbonwallet.NewPostgresStore(db)
		if err := carbonStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate carbon wallet store", "error", err)
		}
		s.carbon = carbonwallet.NewService(carbonStore)

		listingStore := listing.NewPostgresStore(db)
		if err := listingStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate listing store", "error", err)
		}
		s.listings = listing.NewService(listingStore).WithMarkup(cfg.SuggestedPriceMarkup)

		certStore := certificate.NewPostgresStore(db)
		if err := certStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate certificate store", "error", err)
		}
		s.certificates = certificate.NewService(certStore, validity, cfg.ExpiryWarningDays).
			WithNotifier(&certificateNotifier{s.notifications})

		txnStore := trading.NewPostgresStore(db)
		if err := txnStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate transaction store", "error", err)
		}
		settler := trading.NewPostgresSettler(db, validity)
		s.engine = trading.NewEngine(txnStore, s.listings, &userExistsAdapter{s.users}, s.wallets, settler, s.logger).
			WithNotifier(&tradeNotifier{s.notifications})

		uploadStore := upload.NewPostgresStore(db)
		if err := uploadStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate upload store", "error", err)
		}
		s.uploads = upload.NewService(uploadStore, s.carbon, &uploadCertIssuer{s.certificates}, s.logger).
			WithNotifier(&uploadNotifier{s.notifications})
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")

		s.notifications = notification.NewService(notification.NewMemoryStore(), s.logger)
		s.users = user.NewDirectory(user.NewMemoryStore())

		walletStore := wallet.NewMemoryStore()
		s.wallets = wallet.NewService(walletStore, &topUpNotifier{s.notifications}, s.logger)

		s.carbon = carbonwallet.NewService(carbonwallet.NewMemoryStore())

		listingStore := listing.NewMemoryStore()
		s.listings = listing.NewService(listingStore).WithMarkup(cfg.SuggestedPriceMarkup)

		s.certificates = certificate.NewService(certificate.NewMemoryStore(), validity, cfg.ExpiryWarningDays).
			WithNotifier(&certificateNotifier{s.notifications})

		txnStore := trading.NewMemoryStore()
		settler := trading.NewMemorySettler(walletStore, listingStore, &tradeCertIssuer{s.certificates}, txnStore, s.logger)
		s.engine = trading.NewEngine(txnStore, s.listings, &userExistsAdapter{s.users}, s.wallets, settler, s.logger).
			WithNotifier(&tradeNotifier{s.notifications})

		s.uploads = upload.NewService(upload.NewMemoryStore(), s.carbon, &uploadCertIssuer{s.certificates}, s.logger).
			WithNotifier(&uploadNotifier{s.notifications})
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		s.logger.Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := s.logger.With("request_id", logging.RequestID(c.Request.Context()))

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// adminAuthMiddleware guards the admin arbitration routes. In development
// with no secret configured, all requests pass so local demos work.
func (s *Server) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret == "" {
			if s.cfg.IsDevelopment() {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "admin_disabled",
				"message": "Admin routes are disabled: no admin secret configured",
			})
			return
		}

		if c.GetHeader("X-Admin-Secret") != s.cfg.AdminSecret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid or missing admin secret",
			})
			return
		}

		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/api/v1")

	walletHandler := wallet.NewHandler(s.wallets, s.logger)
	certificateHandler := certificate.NewHandler(s.certificates, s.logger)

	user.NewHandler(s.users, s.logger).RegisterRoutes(v1)
	walletHandler.RegisterRoutes(v1)
	carbonwallet.NewHandler(s.carbon).RegisterRoutes(v1)
	listing.NewHandler(s.listings, s.logger).RegisterRoutes(v1)
	trading.NewHandler(s.engine, s.logger).RegisterRoutes(v1)
	certificateHandler.RegisterRoutes(v1)
	upload.NewHandler(s.uploads, s.logger).RegisterRoutes(v1)

	// Admin arbitration routes (top-up approval, certificate review,
	// notification inbox). Guarded by the admin secret header.
	admin := v1.Group("")
	admin.Use(s.adminAuthMiddleware())
	walletHandler.RegisterAdminRoutes(admin)
	certificateHandler.RegisterAdminRoutes(admin)
	notification.NewHandler(s.notifications).RegisterAdminRoutes(admin)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "in-memory"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Carbonmarket",
		"description": "Transactional ledger and settlement engine for carbon credit trading",
		"version":     "0.1.0",
		"currency":    "USD",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Export connection pool stats
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// -----------------------------------------------------------------------------
// Adapters
// -----------------------------------------------------------------------------

// userExistsAdapter adapts user.Directory to trading.UserDirectory
type userExistsAdapter struct {
	d *user.Directory
}

func (a *userExistsAdapter) Exists(ctx context.Context, id string) (bool, error) {
	_, err := a.d.Find(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// tradeCertIssuer adapts certificate.Service to trading.CertificateIssuer
type tradeCertIssuer struct {
	certs *certificate.Service
}

func (a *tradeCertIssuer) IssueForTrade(ctx context.Context, ownerID string, tons decimal.Decimal, projectName, reference string) error {
	_, err := a.certs.Issue(ctx, ownerID, tons, certificate.Meta{
		ProjectName:      projectName,
		CertificationRef: reference,
		Notes:            "Purchased via marketplace",
	})
	return err
}

// uploadCertIssuer adapts certificate.Service to upload.CertificateIssuer
type uploadCertIssuer struct {
	certs *certificate.Service
}

func (a *uploadCertIssuer) IssueForUpload(ctx context.Context, ownerID string, tons decimal.Decimal, filename string) error {
	_, err := a.certs.Issue(ctx, ownerID, tons, certificate.Meta{
		ProjectName: filename,
		Notes:       "Issued from document upload",
	})
	return err
}

// topUpNotifier adapts notification.Service to wallet.Notifier
type topUpNotifier struct {
	n *notification.Service
}

func (a *topUpNotifier) TopUpApproved(userID, topUpID string, amount decimal.Decimal) {
	a.n.Notify(context.Background(), notification.Notification{
		Kind:        notification.KindTopUpApproved,
		Title:       "Top-up approved",
		Message:     fmt.Sprintf("Top-up of %s approved for user %s", amount, userID),
		UserID:      userID,
		ReferenceID: topUpID,
		Amount:      amount,
	})
}

func (a *topUpNotifier) TopUpRejected(userID, topUpID string, amount decimal.Decimal, reason string) {
	a.n.Notify(context.Background(), notification.Notification{
		Kind:        notification.KindTopUpRejected,
		Title:       "Top-up rejected",
		Message:     fmt.Sprintf("Top-up of %s rejected for user %s: %s", amount, userID, reason),
		UserID:      userID,
		ReferenceID: topUpID,
		Amount:      amount,
	})
}

// tradeNotifier adapts notification.Service to trading.Notifier
type tradeNotifier struct {
	n *notification.Service
}

func (a *tradeNotifier) TradeCompleted(buyerID, sellerID, transactionID string, amount decimal.Decimal) {
	a.n.Notify(context.Background(), notification.Notification{
		Kind:        notification.KindTradeCompleted,
		Title:       "Trade completed",
		Message:     fmt.Sprintf("Trade %s settled: buyer %s paid %s to seller %s", transactionID, buyerID, amount, sellerID),
		UserID:      buyerID,
		ReferenceID: transactionID,
		Amount:      amount,
	})
}

// certificateNotifier adapts notification.Service to certificate.Notifier
type certificateNotifier struct {
	n *notification.Service
}

func (a *certificateNotifier) CertificateRequested(ownerID, certificateID string, amount decimal.Decimal) {
	a.n.Notify(context.Background(), notification.Notification{
		Kind:        notification.KindCertificateRequested,
		Title:       "Certificate requested",
		Message:     fmt.Sprintf("User %s requested a certificate for %s tons", ownerID, amount),
		UserID:      ownerID,
		ReferenceID: certificateID,
		Amount:      amount,
	})
}

func (a *certificateNotifier) CertificateApproved(ownerID, certificateID string, amount decimal.Decimal) {
	a.n.Notify(context.Background(), notification.Notification{
		Kind:        notification.KindCertificateApproved,
		Title:       "Certificate approved",
		Message:     fmt.Sprintf("Certificate %s approved for user %s", certificateID, ownerID),
		UserID:      ownerID,
		ReferenceID: certificateID,
		Amount:      amount,
	})
}

func (a *certificateNotifier) CertificateRejected(ownerID, certificateID string, amount decimal.Decimal) {
	a.n.Notify(context.Background(), notification.Notification{
		Kind:        notification.KindCertificateRejected,
		Title:       "Certificate rejected",
		Message:     fmt.Sprintf("Certificate %s rejected for user %s", certificateID, ownerID),
		UserID:      ownerID,
		ReferenceID: certificateID,
		Amount:      amount,
	})
}

// uploadNotifier adapts notification.Service to upload.Notifier
type uploadNotifier struct {
	n *notification.Service
}

func (a *uploadNotifier) UploadCredited(ownerID, recordID string, tons decimal.Decimal) {
	a.n.Notify(context.Background(), notification.Notification{
		Kind:        notification.KindUploadCredited,
		Title:       "Upload credited",
		Message:     fmt.Sprintf("User %s credited %s tons from a document upload", ownerID, tons),
		UserID:      ownerID,
		ReferenceID: recordID,
		Amount:      tons,
	})
}
