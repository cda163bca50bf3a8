package api

import (
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dixieflatline76/Placement/config"
	"github.com/dixieflatline76/Placement/pkg/imageops"
	"github.com/dixieflatline76/Placement/pkg/render"
	"github.com/dixieflatline76/Placement/pkg/storage"
	"github.com/dixieflatline76/Placement/util/log"
)

// Thumbnail size limits.
const (
	DefaultThumbnailWidth  = 400
	DefaultThumbnailHeight = 300
	MaxThumbnailDimension  = 1200
)

const attachmentName = "download"

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encoding response: %v", err)
	}
}

type healthResponse struct {
	Status       string  `json:"status"`
	Version      string  `json:"version"`
	Uptime       string  `json:"uptime"`
	CachedScenes int     `json:"cachedScenes"`
	Detections   int     `json:"guideDetections"`
	WSClients    int     `json:"websocketClients"`
	Renders      int     `json:"renders"`
	MemoryUsed   float64 `json:"memoryUsedPercent,omitempty"`
	MemoryFreeMB uint64  `json:"memoryAvailableMB,omitempty"`
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "running",
		Version:   config.AppVersion,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		WSClients: s.ClientCount(),
		Renders:   s.renders.Value(),
	}
	if s.stopping.Value() {
		resp.Status = "stopping"
	}
	if s.deps.Cache != nil {
		resp.CachedScenes = s.deps.Cache.Len()
		resp.Detections = s.deps.Cache.Detections()
	}
	if vm, err := mem.VirtualMemoryWithContext(r.Context()); err == nil {
		resp.MemoryUsed = vm.UsedPercent
		resp.MemoryFreeMB = vm.Available / (1 << 20)
	} else {
		log.Debugf("api: reading memory stats: %v", err)
	}
	writeJSON(w, resp)
}

// handleWebSocket upgrades the connection to WebSocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
	}()

	// Clients only listen; reads keep the connection alive until it closes.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	scenes, err := s.deps.Cache.ListScenes(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if scenes == nil {
		scenes = []storage.SceneInfo{}
	}
	writeJSON(w, scenes)
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var errs []string
	width, height := DefaultThumbnailWidth, DefaultThumbnailHeight
	if v := parseInt(q, "width", 1, &errs); v != nil {
		width = *v
	}
	if v := parseInt(q, "height", 1, &errs); v != nil {
		height = *v
	}
	if width > MaxThumbnailDimension || height > MaxThumbnailDimension {
		errs = append(errs, fmt.Sprintf("thumbnail dimensions must be <= %d", MaxThumbnailDimension))
	}
	format := imageops.FormatJPEG
	if f := q.Get("format"); f != "" {
		parsed, ok := imageops.ParseFormat(f)
		if !ok {
			errs = append(errs, fmt.Sprintf("format %q is not one of png, jpg, webp", f))
		}
		format = parsed
	}
	if len(errs) > 0 {
		s.writeError(w, r, &StatusError{Status: http.StatusBadRequest, Message: "Validation failed", Errors: errs})
		return
	}

	img, err := s.deps.Cache.Thumbnail(r.Context(), r.PathValue("id"), width, height)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := imageops.Encode(r.Context(), img, format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.MimeType())
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(data)
}

func (s *Server) handlePlaceMap(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := r.URL.Query()
	p, err := parsePlaceParams(q, RoleFrom(r.Context()), s.cfg.MaxAnonymousDim)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.deps.Posters == nil {
		s.writeError(w, r, statusError(http.StatusServiceUnavailable, "Poster rendering is not configured"))
		return
	}
	s.maybeClear(r, p)

	layout := layoutFrom(q, p.opts)
	if !p.opts.Resized() {
		// Full size render: ask for a poster as large as the scene.
		dims, err := s.deps.Renderer.Metadata(r.Context(), id, p.opts)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		layout.ResizeToWidth = &dims.Width
		layout.ResizeToHeight = &dims.Height
	}
	log.Debugf("[%s] requesting poster %+v", RequestID(r.Context()), layout)

	img, err := s.deps.Posters.Render(r.Context(), layout)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.renderAndWrite(w, r, id, img, p)
}

func (s *Server) handlePlaceURL(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := r.URL.Query()
	p, err := parsePlaceParams(q, RoleFrom(r.Context()), s.cfg.MaxAnonymousDim)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rawURL := q.Get("url")
	if rawURL == "" {
		s.writeError(w, r, &StatusError{Status: http.StatusBadRequest, Message: "Validation failed", Errors: []string{"url is required"}})
		return
	}
	if s.deps.Fetcher == nil {
		s.writeError(w, r, statusError(http.StatusServiceUnavailable, "Poster download is not configured"))
		return
	}
	s.maybeClear(r, p)

	img, err := s.deps.Fetcher.FetchURL(r.Context(), rawURL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.renderAndWrite(w, r, id, img, p)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.clearCache(r)
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) maybeClear(r *http.Request, p *placeParams) {
	if p.clearCache {
		s.clearCache(r)
	}
}

func (s *Server) clearCache(r *http.Request) {
	s.deps.Cache.Clear()
	log.Printf("[%s] scene cache cleared", RequestID(r.Context()))
	s.Broadcast(Event{Type: EventCacheCleared, RequestID: RequestID(r.Context())})
}

func (s *Server) renderAndWrite(w http.ResponseWriter, r *http.Request, id string, img image.Image, p *placeParams) {
	res, err := s.deps.Renderer.Render(r.Context(), id, img, p.opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeResult(w, res, p.download)
	s.renders.Increment()
	s.Broadcast(Event{
		Type:      EventRender,
		SceneID:   id,
		RequestID: RequestID(r.Context()),
		MimeType:  res.MimeType,
		Width:     res.Metadata.Width,
		Height:    res.Metadata.Height,
	})
}

func writeResult(w http.ResponseWriter, res *render.Result, download bool) {
	if download {
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%s.%s", attachmentName, res.Format.Extension()))
	}
	w.Header().Set("Content-Type", res.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	_, _ = w.Write(res.Data)
}
