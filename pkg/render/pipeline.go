// Package render places a poster into a scene. A render runs these stages in
// order: resolve the scene variant, warp the poster onto the placement quad,
// blur the poster, composite it with the scene, apply the variable blur,
// crop, resize and encode.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/dixieflatline76/Placement/config"
	"github.com/dixieflatline76/Placement/pkg/geometry"
	"github.com/dixieflatline76/Placement/pkg/imageops"
	"github.com/dixieflatline76/Placement/pkg/scene"
	"github.com/dixieflatline76/Placement/util/log"
)

// Stage names used in errors and logs.
const (
	StageResolve      = "resolve scene"
	StageDecode       = "decode poster"
	StageWarp         = "perspective warp"
	StagePosterBlur   = "poster blur"
	StageComposite    = "composite"
	StageVariableBlur = "variable blur"
	StageCrop         = "crop"
	StageResize       = "resize"
	StageEncode       = "encode"
)

// SceneSource resolves scene ids. *scene.Cache implements it.
type SceneSource interface {
	GetSceneVariant(ctx context.Context, id string, min scene.MinDimensions) (*scene.Description, error)
}

// Result is an encoded render.
type Result struct {
	Data     []byte
	Metadata geometry.Dimensions
	MimeType string
	Format   imageops.Format
}

// Pipeline renders posters into scenes.
type Pipeline struct {
	scenes  SceneSource
	timeout time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTimeout bounds each render. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// NewPipeline creates a Pipeline reading scenes from scenes.
func NewPipeline(scenes SceneSource, opts ...Option) *Pipeline {
	p := &Pipeline{scenes: scenes, timeout: config.DefaultRenderTimeout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// stageErr wraps err with the stage it happened in. Deadline errors become
// *TimeoutError.
func stageErr(sceneID, stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		var te *TimeoutError
		if errors.As(err, &te) {
			return te
		}
		return &TimeoutError{SceneID: sceneID, Stage: stage}
	}
	return fmt.Errorf("%s %s: %w", stage, sceneID, err)
}

func minDimensions(opts Options) scene.MinDimensions {
	d := scene.MinDimensions{Width: opts.MinWidth, Height: opts.MinHeight}
	if d.Width == nil {
		d.Width = opts.ResizeToWidth
	}
	if d.Height == nil {
		d.Height = opts.ResizeToHeight
	}
	return d
}

// effectiveSigma scales a resolved sigma by the scene's area ratio and
// reports whether the result is large enough to apply.
func effectiveSigma(sceneID, stage string, choice BlurChoice, ratio float64) (float64, bool) {
	if choice.Source == BlurNone {
		return 0, false
	}
	sigma := choice.Sigma * ratio
	if sigma < imageops.MinSigma {
		log.Printf("render: %s for %s skipped, effective sigma %.3f (%g from %s x ratio %.4f) is below %.1f",
			stage, sceneID, sigma, choice.Sigma, choice.Source, ratio, imageops.MinSigma)
		return 0, false
	}
	log.Debugf("render: %s for %s with sigma %.3f from %s", stage, sceneID, sigma, choice.Source)
	return sigma, true
}

// Metadata returns the dimensions of the scene variant a render with opts
// would use.
func (p *Pipeline) Metadata(ctx context.Context, sceneID string, opts Options) (geometry.Dimensions, error) {
	desc, err := p.scenes.GetSceneVariant(ctx, sceneID, minDimensions(opts))
	if err != nil {
		return geometry.Dimensions{}, stageErr(sceneID, StageResolve, err)
	}
	return desc.Metadata, nil
}

// RenderBytes decodes poster and renders it.
func (p *Pipeline) RenderBytes(ctx context.Context, sceneID string, poster []byte, opts Options) (*Result, error) {
	if _, ok := imageops.ParseFormat(opts.Format); !ok {
		return nil, &UnsupportedFormatError{Format: opts.Format}
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	img, _, err := imageops.Decode(ctx, poster)
	if err != nil {
		return nil, stageErr(sceneID, StageDecode, err)
	}
	return p.Render(ctx, sceneID, img, opts)
}

// Render places poster into scene sceneID. No bytes are returned unless
// every stage succeeds.
func (p *Pipeline) Render(ctx context.Context, sceneID string, poster image.Image, opts Options) (*Result, error) {
	format, ok := imageops.ParseFormat(opts.Format)
	if !ok {
		return nil, &UnsupportedFormatError{Format: opts.Format}
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	start := time.Now()

	desc, err := p.scenes.GetSceneVariant(ctx, sceneID, minDimensions(opts))
	if err != nil {
		return nil, stageErr(sceneID, StageResolve, err)
	}
	log.Debugf("render: placing %s poster into %s at %s (original %s)", geometry.DimensionsOf(poster), sceneID, desc.Metadata, desc.OriginalMetadata)

	warped, err := imageops.Warp(ctx, poster, desc.Placement, desc.Metadata, opts.HighQuality)
	if err != nil {
		return nil, stageErr(sceneID, StageWarp, err)
	}

	ratio := desc.ResizeRatio()
	posterBlur := ResolveBlur(opts.PosterBlur, desc.Attributes.PosterBlur, nil)
	if sigma, ok := effectiveSigma(sceneID, StagePosterBlur, posterBlur, ratio); ok {
		if warped, err = imageops.BlurWarped(ctx, warped, sigma); err != nil {
			return nil, stageErr(sceneID, StagePosterBlur, err)
		}
	}

	var out *image.NRGBA
	if opts.OnlyPosterLayer {
		log.Debugf("render: %s only poster layer requested, skipping composite and variable blur", sceneID)
		out = warped.Flatten()
	} else {
		if out, err = composite(ctx, desc, warped); err != nil {
			return nil, stageErr(sceneID, StageComposite, err)
		}
		if out, err = variableBlur(ctx, desc, out, opts.VariableBlur); err != nil {
			return nil, stageErr(sceneID, StageVariableBlur, err)
		}
	}

	if desc.Crop != nil {
		log.Debugf("render: cropping %s to %+v", sceneID, *desc.Crop)
		if out, err = imageops.Crop(ctx, out, *desc.Crop); err != nil {
			return nil, stageErr(sceneID, StageCrop, err)
		}
	}

	if opts.Resized() {
		target := geometry.TargetDimensions(geometry.DimensionsOf(out), opts.ResizeToWidth, opts.ResizeToHeight)
		if out, err = imageops.Resize(ctx, out, target); err != nil {
			return nil, stageErr(sceneID, StageResize, err)
		}
	}

	data, err := imageops.Encode(ctx, out, format)
	if err != nil {
		return nil, stageErr(sceneID, StageEncode, err)
	}

	res := &Result{
		Data:     data,
		Metadata: geometry.DimensionsOf(out),
		MimeType: format.MimeType(),
		Format:   format,
	}
	log.Printf("render: %s rendered %s %s in %s", sceneID, res.Metadata, format, time.Since(start).Round(time.Millisecond))
	return res, nil
}

func composite(ctx context.Context, desc *scene.Description, warped *imageops.Warped) (*image.NRGBA, error) {
	switch desc.Attributes.Blend {
	case scene.BlendMultiply:
		return imageops.Multiply(ctx, desc.Image, warped.Flatten())
	default:
		return imageops.Over(ctx, desc.Image, warped.Image, warped.Coverage)
	}
}

func variableBlur(ctx context.Context, desc *scene.Description, img *image.NRGBA, request *float64) (*image.NRGBA, error) {
	if desc.BlurMask == nil {
		return img, nil
	}
	fallback := DefaultVariableBlurSigma
	choice := ResolveBlur(request, desc.Attributes.VariableBlur, &fallback)
	sigma, ok := effectiveSigma(desc.ID, StageVariableBlur, choice, desc.ResizeRatio())
	if !ok {
		return img, nil
	}
	return imageops.VariableBlur(ctx, img, desc.BlurMask, sigma)
}
