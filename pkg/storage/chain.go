package storage

import (
	"context"
	"errors"
	"sort"
)

// Chain asks each source in turn. The first source that has an asset wins.
type Chain []Source

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// FetchAsset returns the asset from the first source that has it.
func (c Chain) FetchAsset(ctx context.Context, key string) ([]byte, error) {
	for _, s := range c {
		data, err := s.FetchAsset(ctx, key)
		if err == nil {
			return data, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	return nil, &AssetNotFoundError{Key: key}
}

// FetchJSONMetadata decodes the asset from the first source that has it.
func (c Chain) FetchJSONMetadata(ctx context.Context, key string, v any) error {
	for _, s := range c {
		err := s.FetchJSONMetadata(ctx, key, v)
		if err == nil || !isNotFound(err) {
			return err
		}
	}
	return &AssetNotFoundError{Key: key}
}

// ListSceneIDs merges the catalogs of all sources. Earlier sources win on
// duplicate ids.
func (c Chain) ListSceneIDs(ctx context.Context) ([]SceneInfo, error) {
	seen := make(map[string]bool)
	var all []SceneInfo
	for _, s := range c {
		scenes, err := s.ListSceneIDs(ctx)
		if err != nil {
			return nil, err
		}
		for _, sc := range scenes {
			if seen[sc.ID] {
				continue
			}
			seen[sc.ID] = true
			all = append(all, sc)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}
