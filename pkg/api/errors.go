package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dixieflatline76/Placement/pkg/geometry"
	"github.com/dixieflatline76/Placement/pkg/guide"
	"github.com/dixieflatline76/Placement/pkg/poster"
	"github.com/dixieflatline76/Placement/pkg/render"
	"github.com/dixieflatline76/Placement/pkg/scene"
	"github.com/dixieflatline76/Placement/pkg/storage"
	"github.com/dixieflatline76/Placement/util/log"
)

// StatusError is an error that carries the HTTP status to answer with.
type StatusError struct {
	Status  int
	Message string
	Errors  []string
}

func (e *StatusError) Error() string { return e.Message }

func statusError(status int, msg string) *StatusError {
	return &StatusError{Status: status, Message: msg}
}

type errorBody struct {
	Message   string   `json:"message"`
	Errors    []string `json:"errors,omitempty"`
	RequestID string   `json:"requestId,omitempty"`
}

// statusFor maps pipeline errors to HTTP statuses.
func statusFor(err error) int {
	var (
		se     *StatusError
		opt    *render.OptionError
		unsup  *render.UnsupportedFormatError
		tmo    *render.TimeoutError
		geo    *geometry.GeometryError
		badURL *poster.InvalidURLError
		up     *poster.UpstreamError
	)
	switch {
	case errors.As(err, &se):
		return se.Status
	case errors.As(err, &tmo), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, scene.ErrSceneNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &unsup), errors.As(err, &opt), errors.As(err, &badURL):
		return http.StatusBadRequest
	case errors.Is(err, guide.ErrMarkerNotFound), errors.As(err, &geo):
		return http.StatusUnprocessableEntity
	case errors.As(err, &up):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		// Client went away; the status is never seen.
		return 499
	}
	return http.StatusInternalServerError
}

// writeError answers with {"message": ...}. Server errors are logged with the
// request id.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	id := RequestID(r.Context())
	body := errorBody{Message: err.Error(), RequestID: id}

	var se *StatusError
	if errors.As(err, &se) {
		body.Errors = se.Errors
	}
	if status >= http.StatusInternalServerError {
		log.Printf("[%s] %s %s failed: %v", id, r.Method, r.URL.Path, err)
		if status == http.StatusInternalServerError {
			body.Message = "Internal server error"
		}
	} else {
		log.Debugf("[%s] %s %s: %d %v", id, r.Method, r.URL.Path, status, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
