package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dixieflatline76/Placement/pkg/imageops"
	"github.com/dixieflatline76/Placement/pkg/poster"
	"github.com/dixieflatline76/Placement/pkg/render"
)

// MinRequestDimension is the smallest resize a caller may ask for.
const MinRequestDimension = 50

// placeParams are the query parameters shared by the place routes.
type placeParams struct {
	opts       render.Options
	download   bool
	clearCache bool
}

// reserved query keys are not passed through to the rendering service.
var reserved = map[string]bool{
	"apiKey": true, "url": true, "format": true, "posterBlur": true,
	"variableBlur": true, "onlyPosterLayer": true, "download": true, "clearCache": true,
	"resizeToWidth": true, "resizeToHeight": true, "size": true, "orientation": true, "mapStyle": true,
}

func parseInt(q url.Values, key string, lo int, errs *[]string) *int {
	v := q.Get(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s must be an integer", key))
		return nil
	}
	if n < lo {
		*errs = append(*errs, fmt.Sprintf("%s must be >= %d", key, lo))
		return nil
	}
	return &n
}

func parseFloat(q url.Values, key string, errs *[]string) *float64 {
	v := q.Get(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		*errs = append(*errs, fmt.Sprintf("%s must be a non-negative number", key))
		return nil
	}
	return &f
}

func parseBool(q url.Values, key string, errs *[]string) bool {
	v, ok := q[key]
	if !ok {
		return false
	}
	if len(v) == 0 || v[0] == "" {
		return true
	}
	b, err := strconv.ParseBool(v[0])
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s must be a boolean", key))
	}
	return b
}

// parsePlaceParams validates the query and applies the role rules: anonymous
// callers must resize and stay within maxAnonDim, and only admins may clear
// the cache.
func parsePlaceParams(q url.Values, role Role, maxAnonDim int) (*placeParams, error) {
	var errs []string
	p := &placeParams{}
	p.opts.ResizeToWidth = parseInt(q, "resizeToWidth", MinRequestDimension, &errs)
	p.opts.ResizeToHeight = parseInt(q, "resizeToHeight", MinRequestDimension, &errs)
	p.opts.PosterBlur = parseFloat(q, "posterBlur", &errs)
	p.opts.VariableBlur = parseFloat(q, "variableBlur", &errs)
	p.opts.OnlyPosterLayer = parseBool(q, "onlyPosterLayer", &errs)
	p.download = parseBool(q, "download", &errs)
	p.clearCache = parseBool(q, "clearCache", &errs)

	p.opts.Format = q.Get("format")
	if _, ok := imageops.ParseFormat(p.opts.Format); !ok {
		errs = append(errs, fmt.Sprintf("format %q is not one of png, jpg, webp", p.opts.Format))
	}
	if len(errs) > 0 {
		return nil, &StatusError{Status: http.StatusBadRequest, Message: "Validation failed", Errors: errs}
	}

	if role != RoleAdmin {
		if !p.opts.Resized() {
			return nil, statusError(http.StatusForbidden, "Anonymous requests must define a resize parameter.")
		}
		if w := p.opts.ResizeToWidth; w != nil && *w > maxAnonDim {
			return nil, statusError(http.StatusForbidden, fmt.Sprintf("resizeToWidth must be <= %d", maxAnonDim))
		}
		if h := p.opts.ResizeToHeight; h != nil && *h > maxAnonDim {
			return nil, statusError(http.StatusForbidden, fmt.Sprintf("resizeToHeight must be <= %d", maxAnonDim))
		}
		if p.clearCache {
			return nil, statusError(http.StatusUnauthorized, "clearCache requires an API key")
		}
	}

	p.opts.HighQuality = !p.opts.Resized()
	return p, nil
}

// layoutFrom builds the rendering-service request from the query. Unknown
// parameters are passed through.
func layoutFrom(q url.Values, opts render.Options) poster.Layout {
	l := poster.Layout{
		Size:           q.Get("size"),
		Orientation:    q.Get("orientation"),
		Style:          q.Get("mapStyle"),
		ResizeToWidth:  opts.ResizeToWidth,
		ResizeToHeight: opts.ResizeToHeight,
	}
	for k, v := range q {
		if reserved[k] {
			continue
		}
		if l.Extra == nil {
			l.Extra = url.Values{}
		}
		l.Extra[k] = v
	}
	return l
}
