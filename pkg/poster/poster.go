// Package poster supplies the artwork placed into scenes: a default poster
// from disk, a poster downloaded by URL, or one produced by the external
// rendering service. PDF responses are rasterized.
package poster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"

	"github.com/dixieflatline76/Placement/config"
	"github.com/dixieflatline76/Placement/pkg/imageops"
	"github.com/dixieflatline76/Placement/pkg/storage"
	"github.com/dixieflatline76/Placement/util/log"
)

// MaxPosterBytes caps the size of a downloaded poster.
const MaxPosterBytes = 128 << 20

var pdfMagic = []byte("%PDF-")

// Layout are the parameters sent to the rendering service.
type Layout struct {
	Size           string
	Orientation    string
	Style          string
	ResizeToWidth  *int
	ResizeToHeight *int
	// Extra query parameters passed through unchanged.
	Extra url.Values
}

// IsPDF reports whether data looks like a PDF document.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, "\r\n\t "), pdfMagic)
}

// RasterizePDF renders the first page of a PDF at dpi.
func RasterizePDF(data []byte, dpi int) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return nil, fmt.Errorf("pdf has no pages")
	}
	img, err := doc.ImageDPI(0, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("rasterizing pdf page 1 at %d dpi: %w", dpi, err)
	}
	return img, nil
}

// decode turns image or PDF bytes into a raster.
func decode(ctx context.Context, data []byte, dpi int) (image.Image, error) {
	if IsPDF(data) {
		log.Debugf("poster: rasterizing %d byte pdf at %d dpi", len(data), dpi)
		return RasterizePDF(data, dpi)
	}
	img, _, err := imageops.Decode(ctx, data)
	return img, err
}

func download(ctx context.Context, client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetching poster: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &UpstreamError{URL: req.URL.Redacted(), Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxPosterBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading poster: %w", err)
	}
	if len(data) > MaxPosterBytes {
		return nil, fmt.Errorf("poster exceeds %d bytes", MaxPosterBytes)
	}
	return data, nil
}

// UpstreamError reports a non-200 response from a poster source.
type UpstreamError struct {
	URL     string
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("poster source %s returned %d", e.URL, e.Status)
	}
	return fmt.Sprintf("poster source %s returned %d: %s", e.URL, e.Status, e.Message)
}

func newClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &storage.UserAgentTransport{
			RoundTripper: http.DefaultTransport,
			UserAgent:    config.AppName + "/" + config.AppVersion,
		},
	}
}

// Fetcher downloads posters hosted elsewhere.
type Fetcher struct {
	client *http.Client
	dpi    int
}

// NewFetcher creates a Fetcher. A nil client gets a default with timeout.
func NewFetcher(client *http.Client, dpi int, timeout time.Duration) *Fetcher {
	if client == nil {
		client = newClient(timeout)
	}
	if dpi <= 0 {
		dpi = config.DefaultPDFDPI
	}
	return &Fetcher{client: client, dpi: dpi}
}

// FetchURL downloads and decodes the poster at rawURL.
func (f *Fetcher) FetchURL(ctx context.Context, rawURL string) (image.Image, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &InvalidURLError{URL: rawURL}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating poster request: %w", err)
	}
	data, err := download(ctx, f.client, req)
	if err != nil {
		return nil, err
	}
	log.Debugf("poster: downloaded %d bytes from %s", len(data), u.Redacted())
	return decode(ctx, data, f.dpi)
}

// InvalidURLError reports a poster URL that is not absolute http(s).
type InvalidURLError struct {
	URL string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid poster url %q", e.URL)
}

// RenderService requests posters from the external rendering service.
type RenderService struct {
	baseURL string
	apiKey  string
	client  *http.Client
	dpi     int
}

// NewRenderService creates a client for the rendering service at baseURL.
func NewRenderService(baseURL, apiKey string, client *http.Client, dpi int, timeout time.Duration) (*RenderService, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid render service url %q", baseURL)
	}
	if client == nil {
		client = newClient(timeout)
	}
	if dpi <= 0 {
		dpi = config.DefaultPDFDPI
	}
	return &RenderService{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client, dpi: dpi}, nil
}

// RenderPath is the rendering service endpoint.
const RenderPath = "/api/raster/render"

func (s *RenderService) query(l Layout) url.Values {
	q := url.Values{}
	for k, vs := range l.Extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("size", l.Size)
	set("orientation", l.Orientation)
	set("mapStyle", l.Style)
	if l.ResizeToWidth != nil {
		q.Set("resizeToWidth", fmt.Sprint(*l.ResizeToWidth))
	}
	if l.ResizeToHeight != nil {
		q.Set("resizeToHeight", fmt.Sprint(*l.ResizeToHeight))
	}
	return q
}

// Render asks the service for a poster with layout l.
func (s *RenderService) Render(ctx context.Context, l Layout) (image.Image, error) {
	endpoint := s.baseURL + RenderPath + "?" + s.query(l).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating render request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("x-api-key", s.apiKey)
	}
	data, err := download(ctx, s.client, req)
	if err != nil {
		return nil, err
	}
	log.Debugf("poster: render service returned %d bytes for %+v", len(data), l)
	return decode(ctx, data, s.dpi)
}

// Local serves one poster file. Layout is ignored.
type Local struct {
	path string
	dpi  int
}

// NewLocal creates a Local for the file at path.
func NewLocal(path string, dpi int) *Local {
	if dpi <= 0 {
		dpi = config.DefaultPDFDPI
	}
	return &Local{path: path, dpi: dpi}
}

// Render reads and decodes the poster file.
func (l *Local) Render(ctx context.Context, _ Layout) (image.Image, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("reading default poster: %w", err)
	}
	return decode(ctx, data, l.dpi)
}
