// Package httpserver exposes catalogs over HTTP and runs sessions over
// websockets for browser forms.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bastiangx/pickserve/internal/logger"
	"github.com/bastiangx/pickserve/internal/session"
	"github.com/bastiangx/pickserve/pkg/autocomplete"
	"github.com/bastiangx/pickserve/pkg/catalog"
	"github.com/bastiangx/pickserve/pkg/config"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Server serves the HTTP API.
type Server struct {
	resolver *session.Resolver
	cfg      *config.Config
	version  string
	log      *log.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// New creates a server. cfg supplies the engine defaults of websocket
// sessions and the keep-alive interval.
func New(resolver *session.Resolver, cfg *config.Config, version string) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Server{
		resolver: resolver,
		cfg:      cfg,
		version:  version,
		log:      logger.New("http"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Handler returns the gin router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.healthHandler)
	r.GET("/api/lists", s.listsHandler)
	r.GET("/api/suggest", s.suggestHandler)
	r.GET("/ws", s.wsHandler)
	return r
}

// Run listens on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Infof("Listening on %s", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeClients()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start))
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	s.mu.Lock()
	n := len(s.clients)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": s.version, "sessions": n})
}

func (s *Server) listsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"lists": s.resolver.Lists()})
}

// SuggestResponse is the body of GET /api/suggest.
type SuggestResponse struct {
	List      string                   `json:"list"`
	Query     string                   `json:"query"`
	Mode      string                   `json:"mode"`
	Items     []autocomplete.Candidate `json:"items"`
	Count     int                      `json:"count"`
	TimeTaken int64                    `json:"time_us"`
}

// suggestHandler filters one list without keeping any state.
func (s *Server) suggestHandler(c *gin.Context) {
	opts := s.cfg.Engine.Options()
	list := c.Query("list")
	if list == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing 'list' parameter"})
		return
	}
	if m := c.Query("mode"); m != "" {
		opts.MatchMode = autocomplete.ParseMatchMode(m)
	}
	for name, dst := range map[string]*int{"max": &opts.MaxResults, "min": &opts.MinQueryLength} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "'" + name + "' must be an integer"})
			return
		}
		*dst = n
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = autocomplete.DefaultMaxResults
	}

	query := autocomplete.NormalizeQuery(c.Query("q"))
	if limit := s.cfg.Server.MaxQueryLen; limit > 0 && utf8.RuneCountInString(query) > limit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query too long"})
		return
	}

	src, err := s.resolver.Source(list, opts.MatchMode)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, catalog.ErrUnknownList) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	start := time.Now()
	items := []autocomplete.Candidate{}
	if utf8.RuneCountInString(query) >= opts.MinQueryLength {
		cands, err := src.Candidates(query)
		if err != nil {
			s.log.Debugf("Source for list [%s] failed: %v", list, err)
		}
		if matches := autocomplete.Filter(cands, query, opts.MatchMode, opts.MaxResults); matches != nil {
			items = matches
		}
	}

	c.JSON(http.StatusOK, SuggestResponse{
		List:      list,
		Query:     query,
		Mode:      opts.MatchMode.String(),
		Items:     items,
		Count:     len(items),
		TimeTaken: time.Since(start).Microseconds(),
	})
}
