package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/guiyumin/clipget/internal/core/extractor"
	"github.com/guiyumin/clipget/internal/core/i18n"
	"github.com/guiyumin/clipget/internal/core/link"
	"github.com/guiyumin/clipget/internal/core/manager"
	"github.com/guiyumin/clipget/internal/core/platform"
	"github.com/guiyumin/clipget/internal/core/store"
	"github.com/guiyumin/clipget/internal/core/version"
)

// Response is the standard API response structure
type Response struct {
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
}

// ClassifyRequest is the request body for POST /api/classify
type ClassifyRequest struct {
	Text string `json:"text" binding:"required"`
}

// ResolveRequest is the request body for POST /api/resolve
type ResolveRequest struct {
	URL string `json:"url" binding:"required"`
}

// DownloadRequest is the request body for POST /api/downloads
type DownloadRequest struct {
	URL      string `json:"url" binding:"required"`
	Quality  string `json:"quality,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Resolver turns a post URL into a descriptor.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (*extractor.VideoInfo, error)
}

// Options configures a Server.
type Options struct {
	Port     int
	APIKey   string
	Language string

	// Quality is used when a download request names none
	Quality string

	CacheTTL time.Duration
}

// Server is the HTTP API for clipget
type Server struct {
	opts     Options
	resolver Resolver
	manager  *manager.Manager
	cache    *descriptorCache
	t        *i18n.Translations
	engine   *gin.Engine
	server   *http.Server
}

// New creates the server. The manager is owned by the caller.
func New(res Resolver, m *manager.Manager, opts Options) *Server {
	if opts.Port == 0 {
		opts.Port = 8080
	}
	s := &Server{
		opts:     opts,
		resolver: res,
		manager:  m,
		cache:    newDescriptorCache(opts.CacheTTL),
		t:        i18n.GetTranslations(opts.Language),
	}
	s.engine = s.routes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.loggingMiddleware())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/platforms", s.handlePlatforms)

	protected := api.Group("")
	if s.opts.APIKey != "" {
		protected.Use(s.authMiddleware())
	}
	protected.POST("/classify", s.handleClassify)
	protected.POST("/resolve", s.handleResolve)
	protected.POST("/downloads", s.handleCreateDownload)
	protected.GET("/downloads", s.handleListDownloads)
	protected.GET("/downloads/:id", s.handleGetDownload)
	protected.DELETE("/downloads/:id", s.handleDeleteDownload)
	protected.DELETE("/downloads", s.handleCancelAll)
	protected.DELETE("/history", s.handleClearHistory)
	protected.GET("/queue", s.handleQueue)
	protected.GET("/queue/events", s.handleQueueEvents)
	protected.GET("/stats", s.handleStats)

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "not found")
	})
	return r
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.cache.Start()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.opts.Port),
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Starting clipget server on port %d", s.opts.Port)
	log.Printf("Storage: %s", s.manager.Sink().Name())
	if s.opts.APIKey != "" {
		log.Printf("API key authentication enabled")
	}

	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the listener down and waits for running downloads. Downloads
// still running when ctx ends are cancelled.
func (s *Server) Stop(ctx context.Context) error {
	s.cache.Stop()
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.manager.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.manager.CancelAll(context.Background())
		<-done
	}
	return err
}

// Middleware

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-API-Key") != s.opts.APIKey {
			fail(c, http.StatusUnauthorized, "invalid or missing API key")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func ok(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, Response{Code: status, Data: data, Message: message})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, Response{Code: status, Data: nil, Message: message})
}

// Handlers

func (s *Server) handleHealth(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{
		"status":             "ok",
		"version":            version.Version,
		"cached_descriptors": s.cache.Len(),
	}, "everything is good")
}

func (s *Server) handlePlatforms(c *gin.Context) {
	formats := link.SupportedFormats()
	list := make([]gin.H, 0, len(platform.Supported()))
	for _, p := range platform.Supported() {
		list = append(list, gin.H{
			"id":         p,
			"name":       p.DisplayName(),
			"short_name": p.ShortName(),
			"example":    link.ExampleURL(p),
			"formats":    formats[p],
		})
	}
	ok(c, http.StatusOK, list, "")
}

func (s *Server) handleClassify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: text is required")
		return
	}

	u, found := link.ExtractSupportedURL(req.Text)
	if !found {
		u = req.Text
	}
	res := link.Classify(u)
	ok(c, http.StatusOK, gin.H{
		"valid":         res.Valid,
		"platform":      res.Platform,
		"video_id":      res.VideoID,
		"canonical_url": res.CanonicalURL,
	}, res.Platform.DisplayName())
}

func (s *Server) handleResolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: url is required")
		return
	}

	info, status, err := s.resolve(c.Request.Context(), req.URL)
	if err != nil {
		fail(c, status, extractor.Describe(err, s.t))
		return
	}
	if !info.Playable() {
		ok(c, http.StatusOK, info, s.t.Errors.NoMedia)
		return
	}
	ok(c, http.StatusOK, info, "resolved")
}

// resolve goes through the descriptor cache. The returned status is the
// HTTP code for err.
func (s *Server) resolve(ctx context.Context, text string) (*extractor.VideoInfo, int, error) {
	u, found := link.ExtractSupportedURL(text)
	if !found {
		u = text
	}
	res := link.Classify(u)
	if !res.Valid {
		return nil, http.StatusBadRequest, &extractor.UnsupportedURLError{URL: text}
	}
	if info, hit := s.cache.Get(res.CanonicalURL); hit {
		return info, http.StatusOK, nil
	}

	info, err := s.resolver.Resolve(ctx, u)
	if err != nil {
		var unsupported *extractor.UnsupportedURLError
		switch {
		case errors.As(err, &unsupported):
			return nil, http.StatusBadRequest, err
		case errors.Is(err, context.DeadlineExceeded):
			return nil, http.StatusGatewayTimeout, err
		default:
			return nil, http.StatusBadGateway, err
		}
	}
	s.cache.Put(res.CanonicalURL, info)
	return info, http.StatusOK, nil
}

func (s *Server) handleCreateDownload(c *gin.Context) {
	var req DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: url is required")
		return
	}

	ctx := c.Request.Context()
	info, status, err := s.resolve(ctx, req.URL)
	if err != nil {
		fail(c, status, extractor.Describe(err, s.t))
		return
	}
	quality := req.Quality
	if quality == "" {
		quality = s.opts.Quality
	}
	opt := info.Choose(quality)
	if opt == nil {
		fail(c, http.StatusUnprocessableEntity, s.t.Errors.NoMedia)
		return
	}

	id, err := s.manager.Enqueue(ctx, info, *opt, req.Filename)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	rec, err := s.manager.Get(ctx, id)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, http.StatusAccepted, rec, "download queued")
}

func (s *Server) handleListDownloads(c *gin.Context) {
	var statuses []store.Status
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, valid := store.ParseStatus(strings.TrimSpace(part))
			if !valid {
				fail(c, http.StatusBadRequest, fmt.Sprintf("unknown status %q", part))
				return
			}
			statuses = append(statuses, st)
		}
	}

	records, err := s.manager.Records(c.Request.Context(), statuses...)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	ok(c, http.StatusOK, records, "")
}

func (s *Server) handleGetDownload(c *gin.Context) {
	rec, err := s.manager.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusNotFound, "download not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, http.StatusOK, rec, string(rec.Status))
}

// handleDeleteDownload cancels an active download, or removes a finished one.
func (s *Server) handleDeleteDownload(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	err := s.manager.CancelDownload(ctx, id)
	if err == nil {
		ok(c, http.StatusOK, gin.H{"id": id}, "download cancelled")
		return
	}
	if !errors.Is(err, manager.ErrNotActive) {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	switch err := s.manager.Remove(ctx, id); {
	case err == nil:
		ok(c, http.StatusOK, gin.H{"id": id}, "download removed")
	case errors.Is(err, store.ErrNotFound):
		fail(c, http.StatusNotFound, "download not found")
	case errors.Is(err, manager.ErrStillActive):
		fail(c, http.StatusConflict, err.Error())
	default:
		fail(c, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleCancelAll(c *gin.Context) {
	s.manager.CancelAll(c.Request.Context())
	ok(c, http.StatusOK, s.manager.State(), "all downloads cancelled")
}

func (s *Server) handleClearHistory(c *gin.Context) {
	n, err := s.manager.ClearHistory(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"removed": n}, fmt.Sprintf("%d downloads removed", n))
}

func (s *Server) handleQueue(c *gin.Context) {
	ok(c, http.StatusOK, s.manager.State(), "")
}

// handleQueueEvents streams "state" and "progress" server-sent events until
// the client goes away.
func (s *Server) handleQueueEvents(c *gin.Context) {
	states, stopStates := s.manager.Subscribe()
	defer stopStates()
	progress, stopProgress := s.manager.SubscribeProgress()
	defer stopProgress()

	done := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case st, open := <-states:
			if !open {
				return false
			}
			c.SSEvent("state", st)
			return true
		case ev, open := <-progress:
			if !open {
				return false
			}
			c.SSEvent("progress", ev)
			return true
		case <-done:
			return false
		}
	})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.manager.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, http.StatusOK, stats, "")
}
