package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/dixieflatline76/Placement/util/log"
)

// Local serves assets from a directory.
type Local struct {
	rootDir string
}

// NewLocal creates a Local rooted at rootDir.
func NewLocal(rootDir string) *Local {
	return &Local{rootDir: rootDir}
}

// Root returns the asset directory.
func (l *Local) Root() string {
	return l.rootDir
}

func (l *Local) path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(l.rootDir, filepath.FromSlash(key)), nil
}

// FetchAsset reads the file for key.
func (l *Local) FetchAsset(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &AssetNotFoundError{Key: key, Source: "local"}
		}
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	log.Debugf("storage: found %s locally (%d bytes)", key, len(data))
	return data, nil
}

// FetchJSONMetadata reads and decodes the JSON file for key.
func (l *Local) FetchJSONMetadata(ctx context.Context, key string, v any) error {
	data, err := l.FetchAsset(ctx, key)
	if err != nil {
		return err
	}
	return decodeJSON(key, data, v)
}

// ListSceneIDs returns every scene image in the root directory, sorted by id.
func (l *Local) ListSceneIDs(ctx context.Context) ([]SceneInfo, error) {
	entries, err := os.ReadDir(l.rootDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", l.rootDir, err)
	}
	var scenes []SceneInfo
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() {
			continue
		}
		if id, ok := sceneIDFromFile(e.Name()); ok {
			scenes = append(scenes, SceneInfo{ID: id})
		}
	}
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].ID < scenes[j].ID })
	return scenes, nil
}
