// Command check_guide prints the placement quad and crop found in guide layer
// images, so authored scenes can be verified before upload.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dixieflatline76/Placement/pkg/geometry"
	"github.com/dixieflatline76/Placement/pkg/guide"
	"github.com/dixieflatline76/Placement/pkg/imageops"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: check_guide <guide-layer.png> [...]")
		os.Exit(2)
	}

	failed := false
	for _, path := range os.Args[1:] {
		if err := check(path); err != nil {
			fmt.Printf("%s: %v\n", path, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func check(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	img, format, err := imageops.Decode(context.Background(), data)
	if err != nil {
		return err
	}

	g, err := guide.Detect(img)
	fmt.Printf("File: %s\n", path)
	fmt.Printf("Dimensions: %s (%s)\n", geometry.DimensionsOf(img), format)
	if g.Crop != nil {
		fmt.Printf("Crop: %+v (%d marker pixels)\n", *g.Crop, g.CropPixels)
	} else {
		fmt.Printf("Crop: none (%d marker pixels)\n", g.CropPixels)
	}
	if err != nil {
		return err
	}

	q := g.Placement
	fmt.Printf("Placement (%d marker pixels):\n", g.PlacementPixels)
	fmt.Printf("  top left     %v\n", q.TopLeft)
	fmt.Printf("  top right    %v\n", q.TopRight)
	fmt.Printf("  bottom right %v\n", q.BottomRight)
	fmt.Printf("  bottom left  %v\n", q.BottomLeft)
	if err := q.Validate(); err != nil {
		fmt.Printf("Result: INVALID -> %v\n", err)
		return err
	}
	fmt.Printf("Result: OK, area %.0f px\n", q.Area())
	return nil
}
