// Package scene describes the scenes posters are placed into and caches the
// work needed to prepare them: guide detection, attribute parsing and the
// precomputed resized variants.
package scene

import (
	"encoding/json"
	"fmt"
	"image"
	"strings"

	"github.com/dixieflatline76/Placement/pkg/geometry"
)

// BlendMode selects how the warped poster is combined with the scene.
type BlendMode int

const (
	// BlendNormal draws the poster over the scene.
	BlendNormal BlendMode = iota
	// BlendMultiply draws the scene over the poster with multiplicative
	// blending so the surface texture shows through.
	BlendMultiply
)

func (m BlendMode) String() string {
	switch m {
	case BlendMultiply:
		return "multiply"
	default:
		return "normal"
	}
}

// ParseBlendMode parses "normal" or "multiply".
func ParseBlendMode(s string) (BlendMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return BlendNormal, nil
	case "multiply":
		return BlendMultiply, nil
	default:
		return BlendNormal, fmt.Errorf("unknown blend mode %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m BlendMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *BlendMode) UnmarshalText(text []byte) error {
	v, err := ParseBlendMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// multiplySurfaces are legacy surface types that imply BlendMultiply.
var multiplySurfaces = map[string]bool{
	"wood":   true,
	"canvas": true,
	"paper":  true,
	"fabric": true,
}

// Attributes are the authored defaults of a scene, read from {id}.json.
type Attributes struct {
	Blend BlendMode `json:"blendMode"`
	// PosterBlur and VariableBlur are sigmas authored against the full
	// resolution scene. Nil means not set.
	PosterBlur   *float64 `json:"posterBlur,omitempty"`
	VariableBlur *float64 `json:"variableBlur,omitempty"`
	PosterSize   string   `json:"posterSize,omitempty"`
	Orientation  string   `json:"orientation,omitempty"`
	Label        string   `json:"label,omitempty"`
}

type attributesJSON struct {
	BlendMode    string   `json:"blendMode"`
	Type         string   `json:"type"`
	PosterBlur   *float64 `json:"posterBlur"`
	VariableBlur *float64 `json:"variableBlur"`
	PosterSize   string   `json:"posterSize"`
	Orientation  string   `json:"orientation"`
	Label        string   `json:"label"`
}

// UnmarshalJSON accepts an explicit "blendMode" or the older surface "type".
func (a *Attributes) UnmarshalJSON(data []byte) error {
	var raw attributesJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	blend := BlendNormal
	switch {
	case raw.BlendMode != "":
		var err error
		if blend, err = ParseBlendMode(raw.BlendMode); err != nil {
			return err
		}
	case multiplySurfaces[strings.ToLower(raw.Type)]:
		blend = BlendMultiply
	}

	for name, v := range map[string]*float64{"posterBlur": raw.PosterBlur, "variableBlur": raw.VariableBlur} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must not be negative, got %g", name, *v)
		}
	}

	*a = Attributes{
		Blend:        blend,
		PosterBlur:   raw.PosterBlur,
		VariableBlur: raw.VariableBlur,
		PosterSize:   raw.PosterSize,
		Orientation:  raw.Orientation,
		Label:        raw.Label,
	}
	return nil
}

// Description is everything needed to place a poster into one resolution of
// a scene. Descriptions are shared between requests and must not be modified.
type Description struct {
	ID       string
	Image    *image.NRGBA
	Metadata geometry.Dimensions
	// OriginalMetadata is the size of the full resolution scene this
	// description was derived from. It equals Metadata for the original.
	OriginalMetadata geometry.Dimensions
	Placement        geometry.Quad
	Crop             *geometry.Rect
	BlurMask         *image.Gray
	Attributes       Attributes
}

// ResizeRatio is the area ratio between this description and the original scene.
func (d *Description) ResizeRatio() float64 {
	return geometry.ResizeRatio(d.OriginalMetadata, d.Metadata)
}

// IsOriginal reports whether d is the full resolution scene.
func (d *Description) IsOriginal() bool {
	return d.Metadata == d.OriginalMetadata
}
