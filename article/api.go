package article

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pevans/artscrape/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthTimeout = 2 * time.Second

// APIOptions configures the read API.
type APIOptions struct {
	Debug       bool
	CORSOrigins []string // Empty or containing "*" allows any origin
	Logger      *slog.Logger
}

// APIServer represents the read-only HTTP API over stored articles.
type APIServer struct {
	store  *Store
	opts   APIOptions
	logger *slog.Logger
}

// NewAPIServer creates a new article API server.
func NewAPIServer(store *Store, opts APIOptions) *APIServer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &APIServer{
		store:  store,
		opts:   opts,
		logger: logger,
	}
}

// SetupRouter configures the Gin router with all article API routes.
func (s *APIServer) SetupRouter() *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(s.corsConfig()))
	router.Use(func(c *gin.Context) {
		c.Next()
		metrics.RecordRequest(c.FullPath(), c.Writer.Status())
	})

	router.GET("/health/", s.HandleHealth)
	router.GET("/articles/", s.HandleListArticles)
	router.GET("/articles/:id/", s.HandleGetArticle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

func (s *APIServer) corsConfig() cors.Config {
	config := cors.Config{
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}

	if len(s.opts.CORSOrigins) == 0 || slices.Contains(s.opts.CORSOrigins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = s.opts.CORSOrigins
	}
	return config
}

// HealthResponse represents the response for GET /health/.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Debug    bool   `json:"debug"`
	Database string `json:"database"`
}

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// handleError maps domain errors to HTTP responses.
func (s *APIServer) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrArticleNotFound):
		c.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	default:
		s.logger.Error("article API request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to process request"))
	}
}

// HandleHealth handles GET /health/.
func (s *APIServer) HandleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:   "healthy",
		Version:  gin.Version,
		Debug:    s.opts.Debug,
		Database: s.store.Backend(),
	}

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		resp.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleListArticles handles GET /articles/.
func (s *APIServer) HandleListArticles(c *gin.Context) {
	filter := Filter{}

	if source := c.Query("source"); source != "" {
		filter.Source = &source
	}

	articles, err := s.store.List(c.Request.Context(), filter)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, articles)
}

// HandleGetArticle handles GET /articles/{id}/.
func (s *APIServer) HandleGetArticle(c *gin.Context) {
	// Non-numeric IDs cannot name an article, so they are a miss rather than
	// a bad request.
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.handleError(c, ErrArticleNotFound)
		return
	}

	a, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, a)
}
