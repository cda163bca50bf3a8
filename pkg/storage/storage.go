// Package storage locates scene assets. A scene named "kitchen" is made of the
// files kitchen.png, kitchen-guide-layer.png, an optional kitchen-blur-layer.png
// and an optional kitchen.json.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is matched by every *AssetNotFoundError.
var ErrNotFound = errors.New("asset not found")

// AssetNotFoundError reports an asset key no source could provide.
type AssetNotFoundError struct {
	Key    string
	Source string
}

func (e *AssetNotFoundError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("asset not found: %s", e.Key)
	}
	return fmt.Sprintf("asset not found in %s: %s", e.Source, e.Key)
}

// Is lets errors.Is(err, ErrNotFound) succeed.
func (e *AssetNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// SceneInfo is one entry of the scene catalog.
type SceneInfo struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// Source serves raw asset bytes by key.
type Source interface {
	FetchAsset(ctx context.Context, key string) ([]byte, error)
	FetchJSONMetadata(ctx context.Context, key string, v any) error
	ListSceneIDs(ctx context.Context) ([]SceneInfo, error)
}

const (
	sceneExt    = ".png"
	guideSuffix = "-guide-layer.png"
	blurSuffix  = "-blur-layer.png"
	jsonExt     = ".json"

	// CatalogKey lists the scenes of a remote bucket.
	CatalogKey = "scenes.json"
)

// SceneKey returns the key of the scene image.
func SceneKey(id string) string { return id + sceneExt }

// GuideKey returns the key of the placement guide layer.
func GuideKey(id string) string { return id + guideSuffix }

// BlurKey returns the key of the optional variable blur mask.
func BlurKey(id string) string { return id + blurSuffix }

// MetadataKey returns the key of the optional scene attributes.
func MetadataKey(id string) string { return id + jsonExt }

// sceneIDFromFile returns the scene id for a scene image file name, or false
// for guide layers, blur layers and other files.
func sceneIDFromFile(name string) (string, bool) {
	if !strings.HasSuffix(name, sceneExt) || strings.HasSuffix(name, guideSuffix) || strings.HasSuffix(name, blurSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(name, sceneExt)
	return id, id != ""
}

// ValidSceneID reports whether every asset key of scene id is a legal key.
func ValidSceneID(id string) bool {
	return validateKey(SceneKey(id)) == nil
}

// validateKey rejects keys that could escape the asset root.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("invalid key: empty")
	}
	if strings.Contains(key, "..") || strings.ContainsAny(key, `\`) || path.IsAbs(key) {
		return fmt.Errorf("invalid key %q: contains illegal characters", key)
	}
	return nil
}

func decodeJSON(key string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}
