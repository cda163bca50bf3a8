// Package api exposes the placement pipeline over HTTP and pushes render
// events to websocket clients.
package api

import (
	"context"
	"fmt"
	"image"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"

	"github.com/dixieflatline76/Placement/config"
	"github.com/dixieflatline76/Placement/pkg/geometry"
	"github.com/dixieflatline76/Placement/pkg/poster"
	"github.com/dixieflatline76/Placement/pkg/render"
	"github.com/dixieflatline76/Placement/pkg/storage"
	"github.com/dixieflatline76/Placement/util"
	"github.com/dixieflatline76/Placement/util/log"
)

// Renderer places poster images into scenes. *render.Pipeline implements it.
type Renderer interface {
	Render(ctx context.Context, sceneID string, poster image.Image, opts render.Options) (*render.Result, error)
	Metadata(ctx context.Context, sceneID string, opts render.Options) (geometry.Dimensions, error)
}

// SceneCache is the part of *scene.Cache the server uses.
type SceneCache interface {
	ListScenes(ctx context.Context) ([]storage.SceneInfo, error)
	Thumbnail(ctx context.Context, id string, w, h int) (*image.NRGBA, error)
	Clear()
	Len() int
	Detections() int
}

// PosterRenderer produces a poster for a layout.
type PosterRenderer interface {
	Render(ctx context.Context, l poster.Layout) (image.Image, error)
}

// PosterFetcher downloads a poster by URL.
type PosterFetcher interface {
	FetchURL(ctx context.Context, rawURL string) (image.Image, error)
}

// Deps are the collaborators of a Server.
type Deps struct {
	Renderer Renderer
	Cache    SceneCache
	Posters  PosterRenderer
	Fetcher  PosterFetcher
}

// Server represents the placement REST/WebSocket server.
type Server struct {
	cfg        *config.Config
	deps       Deps
	httpServer *http.Server
	mux        *http.ServeMux
	handler    http.Handler
	upgrader   websocket.Upgrader
	started    time.Time

	// WebSocket management
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex

	anonLimiter *rate.Limiter
	apiKeys     map[string]bool

	renders  *util.SafeCounter
	stopping *util.SafeFlag
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mux:  http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		started: time.Now(),
		clients: make(map[*websocket.Conn]bool),
		apiKeys: make(map[string]bool, len(cfg.APIKeys)),

		renders:  util.NewSafeInt(),
		stopping: util.NewSafeBool(),
	}
	for _, k := range cfg.APIKeys {
		s.apiKeys[k] = true
	}
	if cfg.AnonymousRPS > 0 {
		burst := int(cfg.AnonymousRPS)
		if burst < 1 {
			burst = 1
		}
		s.anonLimiter = rate.NewLimiter(rate.Limit(cfg.AnonymousRPS), burst)
	}
	s.setupRoutes()
	s.handler = s.withRequestID(s.withLogging(s.withAuth(s.mux)))
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.enableCORS(s.handleHealth))
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	s.mux.HandleFunc("GET /api/images", s.enableCORS(s.limitAnonymous(s.handleImages)))
	s.mux.HandleFunc("GET /api/images/{id}/thumbnail", s.enableCORS(s.limitAnonymous(s.handleThumbnail)))
	s.mux.HandleFunc("GET /api/place-map/{id}", s.enableCORS(s.limitAnonymous(s.handlePlaceMap)))
	s.mux.HandleFunc("GET /api/place-url/{id}", s.enableCORS(s.requireAdmin(s.handlePlaceURL)))
	s.mux.HandleFunc("POST /api/cache/clear", s.enableCORS(s.requireAdmin(s.handleClearCache)))
	s.mux.HandleFunc("OPTIONS /", s.enableCORS(func(http.ResponseWriter, *http.Request) {}))
}

// enableCORS adds CORS headers to the handler.
func (s *Server) enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Api-Key")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-Id, Content-Disposition")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// Handler returns the HTTP handler for the server, middleware included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured port and serves until Stop is called.
// Concurrent connections are capped at MaxConnections.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln. It blocks.
func (s *Server) Serve(ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	log.Printf("api: listening on %s", ln.Addr())
	err := s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the server and disconnects websocket clients.
func (s *Server) Stop(ctx context.Context) error {
	s.stopping.Set(true)
	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
		delete(s.clients, client)
	}
	s.clientsMu.Unlock()

	return s.httpServer.Shutdown(ctx)
}

// Event is pushed to websocket clients.
type Event struct {
	Type      string `json:"type"`
	SceneID   string `json:"sceneId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// Event types.
const (
	EventRender       = "render"
	EventCacheCleared = "cache_cleared"
)

// Broadcast sends ev to all connected clients. Clients that fail to receive
// it are dropped.
func (s *Server) Broadcast(ev Event) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(ev); err != nil {
			log.Printf("Failed to broadcast to client: %v", err)
			client.Close()
			delete(s.clients, client)
		}
	}
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}
