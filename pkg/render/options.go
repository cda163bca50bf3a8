package render

import (
	"fmt"
)

// DefaultVariableBlurSigma is used for scenes with a blur mask but no
// authored variable blur sigma.
const DefaultVariableBlurSigma = 4.0

// MinResizeDimension is the smallest accepted resize target.
const MinResizeDimension = 1

// Options tune a single render. Nil pointers mean "not set", which differs
// from an explicit zero.
type Options struct {
	// MinWidth and MinHeight pick the scene variant. They default to the
	// resize targets.
	MinWidth  *int
	MinHeight *int

	ResizeToWidth  *int
	ResizeToHeight *int

	// Format is png, jpg or webp. Empty means png.
	Format string

	PosterBlur   *float64
	VariableBlur *float64

	// OnlyPosterLayer returns the warped poster without the scene.
	OnlyPosterLayer bool
	// HighQuality selects bilinear sampling for the warp.
	HighQuality bool
}

// Resized reports whether a resize target is set.
func (o Options) Resized() bool {
	return o.ResizeToWidth != nil || o.ResizeToHeight != nil
}

func (o Options) validate() error {
	dims := []struct {
		name string
		v    *int
	}{
		{"minWidth", o.MinWidth},
		{"minHeight", o.MinHeight},
		{"resizeToWidth", o.ResizeToWidth},
		{"resizeToHeight", o.ResizeToHeight},
	}
	for _, d := range dims {
		if d.v != nil && *d.v < MinResizeDimension {
			return &OptionError{Field: d.name, Reason: fmt.Sprintf("must be at least %d, got %d", MinResizeDimension, *d.v)}
		}
	}
	sigmas := []struct {
		name string
		v    *float64
	}{
		{"posterBlur", o.PosterBlur},
		{"variableBlur", o.VariableBlur},
	}
	for _, s := range sigmas {
		if s.v != nil && *s.v < 0 {
			return &OptionError{Field: s.name, Reason: fmt.Sprintf("must not be negative, got %g", *s.v)}
		}
	}
	return nil
}

// BlurSource names the tier a blur sigma was resolved from.
type BlurSource int

const (
	BlurNone BlurSource = iota
	BlurFromRequest
	BlurFromScene
	BlurFromFallback
)

func (s BlurSource) String() string {
	switch s {
	case BlurFromRequest:
		return "request options"
	case BlurFromScene:
		return "scene attributes"
	case BlurFromFallback:
		return "fallback"
	default:
		return "none"
	}
}

// BlurChoice is a resolved sigma and where it came from.
type BlurChoice struct {
	Sigma  float64
	Source BlurSource
}

// ResolveBlur picks the request value, else the scene value, else fallback.
func ResolveBlur(request, scene, fallback *float64) BlurChoice {
	switch {
	case request != nil:
		return BlurChoice{Sigma: *request, Source: BlurFromRequest}
	case scene != nil:
		return BlurChoice{Sigma: *scene, Source: BlurFromScene}
	case fallback != nil:
		return BlurChoice{Sigma: *fallback, Source: BlurFromFallback}
	default:
		return BlurChoice{Source: BlurNone}
	}
}
