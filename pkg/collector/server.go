package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/cors"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"github.com/kerlexov/clientlog/pkg/config"
	"github.com/kerlexov/clientlog/pkg/logger"
)

// Server receives log entries over HTTP and serves them back for inspection.
type Server struct {
	config      *config.Config
	store       *Store
	search      *SearchIndex
	metrics     *Metrics
	rateLimiter *RateLimiter
	pruner      *Pruner
	validate    *validator.Validate
	log         *zap.Logger
	handler     http.Handler
	server      *http.Server
	now         func() time.Time
}

// NewServer wires the router. search may be nil to disable full-text search.
func NewServer(cfg *config.Config, store *Store, search *SearchIndex, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		config:   cfg,
		store:    store,
		search:   search,
		metrics:  NewMetrics(),
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
	if cfg.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(cfg.RateLimit)
	}
	s.pruner = NewPruner(store, search, cfg.Retention, s.metrics, log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(s.loggingMiddleware())
	router.Use(s.recoveryMiddleware())
	if s.rateLimiter != nil {
		router.Use(s.rateLimiter.Middleware(s.metrics))
	}
	s.registerRoutes(router)

	// browsers post beacons cross-origin
	s.handler = cors.New(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(router)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.handler,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go s.pruner.Run(ctx, s.config.Retention.SweepInterval)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.Info("collector started", zap.Int("port", s.config.Server.Port))

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start collector: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealthCheck)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/logs", s.handleIngest)
		v1.GET("/logs", s.handleQuery)
		v1.GET("/logs/search", s.handleSearch)
	}
}

func abortWithError(c *gin.Context, status int, code, message string, details interface{}) {
	body := gin.H{
		"code":    code,
		"message": message,
	}
	if details != nil {
		body["details"] = details
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

func (s *Server) reject(c *gin.Context, reason string, status int, code, message string, details interface{}) {
	s.metrics.rejected.WithLabelValues(reason).Inc()
	abortWithError(c, status, code, message, details)
}

// handleIngest accepts a single entry, a {"logs": [...]} batch or a bare
// array. The body is sniffed rather than trusting Content-Type because
// beacons arrive as text/plain.
func (s *Server) handleIngest(c *gin.Context) {
	var reader io.Reader = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.Server.MaxBodyBytes)
	if c.GetHeader("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(reader)
		if err != nil {
			s.reject(c, "invalid_encoding", http.StatusBadRequest, "INVALID_ENCODING", "Invalid gzip body", err.Error())
			return
		}
		defer zr.Close()
		reader = io.LimitReader(zr, s.config.Server.MaxBodyBytes+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		s.reject(c, "too_large", http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large", err.Error())
		return
	}
	if int64(len(body)) > s.config.Server.MaxBodyBytes {
		s.reject(c, "too_large", http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large", nil)
		return
	}

	incoming, err := decodePayload(body)
	if err != nil {
		s.reject(c, "invalid_json", http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format", err.Error())
		return
	}

	if len(incoming) == 0 {
		s.reject(c, "empty_batch", http.StatusBadRequest, "EMPTY_BATCH", "Batch cannot be empty", nil)
		return
	}

	if max := s.config.Server.MaxBatchSize; len(incoming) > max {
		s.reject(c, "batch_too_large", http.StatusBadRequest, "BATCH_TOO_LARGE",
			fmt.Sprintf("Batch size cannot exceed %d entries", max),
			fmt.Sprintf("Received %d entries, maximum allowed is %d", len(incoming), max))
		return
	}

	var invalid []gin.H
	for i := range incoming {
		if err := s.validate.Struct(&incoming[i]); err != nil {
			invalid = append(invalid, gin.H{"index": i, "errors": validationMessages(err)})
		}
	}
	if len(invalid) > 0 {
		s.reject(c, "validation", http.StatusBadRequest, "VALIDATION_ERROR",
			fmt.Sprintf("%d out of %d entries failed validation", len(invalid), len(incoming)), invalid)
		return
	}

	receivedAt := s.now().UTC()
	entries := make([]StoredEntry, len(incoming))
	ids := make([]string, len(incoming))
	for i, in := range incoming {
		entries[i] = StoredEntry{
			ID:         uuid.New().String(),
			ReceivedAt: receivedAt,
			ClientIP:   c.ClientIP(),
			LogEntry:   in.toLogEntry(receivedAt),
		}
		ids[i] = entries[i].ID
	}

	if err := s.store.Store(c.Request.Context(), entries); err != nil {
		s.log.Error("failed to store logs", zap.Error(err), zap.Int("count", len(entries)))
		s.reject(c, "storage", http.StatusInternalServerError, "STORAGE_ERROR", "Failed to store log entries", nil)
		return
	}

	if s.search != nil {
		if err := s.search.Index(entries); err != nil {
			s.log.Warn("failed to index logs for search", zap.Error(err))
		}
	}

	for _, entry := range entries {
		s.metrics.entries.WithLabelValues(entry.Level.String()).Inc()
	}

	c.JSON(http.StatusCreated, gin.H{
		"accepted": len(entries),
		"ids":      ids,
	})
}

var payloadParsers fastjson.ParserPool

func decodePayload(body []byte) ([]incomingEntry, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty body")
	}

	p := payloadParsers.Get()
	defer payloadParsers.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, err
	}

	var items []*fastjson.Value
	switch v.Type() {
	case fastjson.TypeArray:
		items, _ = v.Array()
	case fastjson.TypeObject:
		if logs := v.Get("logs"); logs != nil {
			if items, err = logs.Array(); err != nil {
				return nil, fmt.Errorf("logs: %w", err)
			}
		} else {
			items = []*fastjson.Value{v}
		}
	default:
		return nil, fmt.Errorf("unexpected payload type %s", v.Type())
	}

	entries := make([]incomingEntry, len(items))
	var buf []byte
	for i, item := range items {
		buf = item.MarshalTo(buf[:0])
		if err := json.Unmarshal(buf, &entries[i]); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return entries, nil
}

func validationMessages(err error) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		switch fe.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", fe.Field()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return messages
}

func (s *Server) parseFilter(c *gin.Context) (Filter, error) {
	var filter Filter

	if level := c.Query("level"); level != "" {
		parsed, err := logger.ParseLevel(level)
		if err != nil {
			return filter, err
		}
		filter.MinLevel = parsed
	}

	filter.Tag = c.Query("tag")

	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if raw := c.Query(name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return filter, fmt.Errorf("%s must be a non-negative integer", name)
			}
			*dst = n
		}
	}

	for name, dst := range map[string]*time.Time{"since": &filter.Since, "until": &filter.Until} {
		if raw := c.Query(name); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return filter, fmt.Errorf("%s must be an RFC 3339 timestamp", name)
			}
			*dst = t
		}
	}

	return filter, nil
}

func (s *Server) handleQuery(c *gin.Context) {
	filter, err := s.parseFilter(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_QUERY", "Invalid query parameters", err.Error())
		return
	}

	result, err := s.store.Query(c.Request.Context(), filter)
	if err != nil {
		s.log.Error("failed to query logs", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to query logs", nil)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleSearch(c *gin.Context) {
	if s.search == nil {
		abortWithError(c, http.StatusNotImplemented, "SEARCH_DISABLED", "Full-text search is not enabled", nil)
		return
	}

	filter, err := s.parseFilter(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_QUERY", "Invalid query parameters", err.Error())
		return
	}

	ids, total, err := s.search.Search(c.Request.Context(), c.Query("q"), filter)
	if err != nil {
		s.log.Error("search failed", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "SEARCH_ERROR", "Search failed", nil)
		return
	}

	logs, err := s.store.GetByIDs(c.Request.Context(), ids)
	if err != nil {
		s.log.Error("failed to load search hits", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to load search results", nil)
		return
	}

	filter = filter.normalized()
	c.JSON(http.StatusOK, Result{
		Logs:       logs,
		TotalCount: total,
		HasMore:    filter.Offset+len(ids) < total,
	})
}

func (s *Server) handleHealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	details := gin.H{}

	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
		details["storage"] = err.Error()
	} else if count, err := s.store.Count(ctx); err == nil {
		details["stored_logs"] = count
	}

	if s.search != nil {
		if docs, err := s.search.DocCount(); err != nil {
			status = "degraded"
			details["search"] = err.Error()
		} else {
			details["indexed_logs"] = docs
		}
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": s.now().UTC(),
		"service":   "clientlog-collector",
		"details":   details,
	})
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		s.metrics.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		s.metrics.duration.WithLabelValues(c.Request.Method, route).Observe(latency.Seconds())

		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		s.log.Error("panic recovered", zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		abortWithError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An internal server error occurred", nil)
	})
}
