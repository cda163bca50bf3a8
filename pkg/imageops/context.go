// Package imageops holds the raster primitives used to build a placement:
// decoding, encoding, perspective warping, blurring, blending, cropping and
// resizing. Every primitive that can take noticeable time accepts a context
// and returns ctx.Err() once the context is done.
package imageops

import (
	"context"
	"image"
)

// checkContext returns the context error, if any.
func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// withContext runs fn in a goroutine and waits for either its result or the
// end of ctx. fn keeps running to completion after a cancellation; its result
// is discarded.
func withContext(ctx context.Context, fn func() *image.NRGBA) (*image.NRGBA, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	resultChan := make(chan *image.NRGBA, 1)

	go func() {
		resultChan <- fn()
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultChan:
		return result, nil
	}
}
