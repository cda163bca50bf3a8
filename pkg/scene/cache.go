package scene

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dixieflatline76/Placement/config"
	"github.com/dixieflatline76/Placement/pkg/geometry"
	"github.com/dixieflatline76/Placement/pkg/guide"
	"github.com/dixieflatline76/Placement/pkg/imageops"
	"github.com/dixieflatline76/Placement/pkg/storage"
	"github.com/dixieflatline76/Placement/util"
	"github.com/dixieflatline76/Placement/util/log"
)

// ErrSceneNotFound is matched by every *SceneNotFoundError.
var ErrSceneNotFound = errors.New("scene not found")

// SceneNotFoundError reports a scene whose required assets are missing.
type SceneNotFoundError struct {
	ID    string
	Asset string
	Err   error
}

func (e *SceneNotFoundError) Error() string {
	return fmt.Sprintf("scene %s not found: missing %s", e.ID, e.Asset)
}

func (e *SceneNotFoundError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrSceneNotFound) succeed.
func (e *SceneNotFoundError) Is(target error) bool {
	return target == ErrSceneNotFound
}

// AssetSource is where scene assets come from. storage.Source implements it.
type AssetSource interface {
	FetchAsset(ctx context.Context, key string) ([]byte, error)
	FetchJSONMetadata(ctx context.Context, key string, v any) error
	ListSceneIDs(ctx context.Context) ([]storage.SceneInfo, error)
}

// Detector finds the placement and crop in a guide layer.
type Detector interface {
	Detect(img image.Image) (guide.Guide, error)
}

// MinDimensions asks for the smallest scene resolution that is at least this
// large. Nil fields are not constrained.
type MinDimensions struct {
	Width  *int
	Height *int
}

// Entry is the cached work for one scene.
type Entry struct {
	Original *Description
	// Variants are sorted by ascending width.
	Variants []*Description
}

// Select returns the smallest variant at least min.Width wide, else the
// smallest at least min.Height tall, else the original.
func (e *Entry) Select(min MinDimensions) *Description {
	if min.Width != nil {
		for _, v := range e.Variants {
			if v.Metadata.Width >= *min.Width {
				return v
			}
		}
	}
	if min.Height != nil {
		byHeight := append([]*Description(nil), e.Variants...)
		sort.SliceStable(byHeight, func(i, j int) bool { return byHeight[i].Metadata.Height < byHeight[j].Metadata.Height })
		for _, v := range byHeight {
			if v.Metadata.Height >= *min.Height {
				return v
			}
		}
	}
	return e.Original
}

// Store keeps cache entries by scene id.
type Store interface {
	Get(id string) (*Entry, bool)
	Put(id string, e *Entry)
	Clear()
	Len() int
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (s *MemoryStore) Get(id string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

func (s *MemoryStore) Put(id string, e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = e
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Cache resolves scene ids to descriptions, preparing each scene at most once.
type Cache struct {
	assets   AssetSource
	store    Store
	widths   []int
	detector Detector

	prepareTimeout time.Duration
	group          singleflight.Group
	generation     atomic.Uint64
	detections     *util.SafeCounter
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithStore replaces the default MemoryStore.
func WithStore(s Store) CacheOption {
	return func(c *Cache) { c.store = s }
}

// WithVariantWidths sets the widths of the precomputed variants.
func WithVariantWidths(widths ...int) CacheOption {
	return func(c *Cache) { c.widths = append([]int(nil), widths...) }
}

// WithPrepareTimeout bounds the first-request preparation of a scene.
func WithPrepareTimeout(d time.Duration) CacheOption {
	return func(c *Cache) { c.prepareTimeout = d }
}

// WithDetector replaces the guide detector.
func WithDetector(d Detector) CacheOption {
	return func(c *Cache) { c.detector = d }
}

// NewCache creates a Cache reading from assets.
func NewCache(assets AssetSource, opts ...CacheOption) *Cache {
	c := &Cache{
		assets:     assets,
		store:      NewMemoryStore(),
		widths:     append([]int(nil), config.DefaultVariantWidths...),
		detector:   guide.Detector{},
		detections: util.NewSafeInt(),

		prepareTimeout: config.DefaultRenderTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	sort.Ints(c.widths)
	return c
}

// GetSceneVariant returns the description of scene id best matching min.
func (c *Cache) GetSceneVariant(ctx context.Context, id string, min MinDimensions) (*Description, error) {
	if id == "" || !storage.ValidSceneID(id) {
		return nil, &SceneNotFoundError{ID: id, Asset: "id", Err: storage.ErrNotFound}
	}
	if e, ok := c.store.Get(id); ok {
		log.Debugf("scene: found %s in cache", id)
		return e.Select(min), nil
	}

	gen := c.generation.Load()
	key := strconv.FormatUint(gen, 10) + "/" + id
	ch := c.group.DoChan(key, func() (any, error) {
		if e, ok := c.store.Get(id); ok && c.generation.Load() == gen {
			return e, nil
		}
		// The preparation outlives any single caller; it is bounded by prepareTimeout.
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.prepareTimeout)
		defer cancel()
		e, err := c.prepare(pctx, id)
		if err != nil {
			return nil, err
		}
		if c.generation.Load() == gen {
			c.store.Put(id, e)
		} else {
			log.Debugf("scene: cache cleared while preparing %s, not storing", id)
		}
		return e, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Debugf("scene: shared in-flight preparation of %s", id)
		}
		return res.Val.(*Entry).Select(min), nil
	}
}

// Clear drops every cached scene. Preparations already running complete but
// are not stored.
func (c *Cache) Clear() {
	c.generation.Add(1)
	c.store.Clear()
	log.Println("scene: cache cleared")
}

// Len returns the number of cached scenes.
func (c *Cache) Len() int {
	return c.store.Len()
}

// Detections returns how many guide detections the cache has run.
func (c *Cache) Detections() int {
	return c.detections.Value()
}

// ListScenes returns the scene catalog.
func (c *Cache) ListScenes(ctx context.Context) ([]storage.SceneInfo, error) {
	return c.assets.ListSceneIDs(ctx)
}

type sceneAssets struct {
	scene, guide *image.NRGBA
	mask         *image.Gray
	attrs        Attributes
}

func (c *Cache) fetchAssets(ctx context.Context, id string) (*sceneAssets, error) {
	var a sceneAssets
	g, ctx := errgroup.WithContext(ctx)

	required := func(key string, dst **image.NRGBA) func() error {
		return func() error {
			data, err := c.assets.FetchAsset(ctx, key)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return &SceneNotFoundError{ID: id, Asset: key, Err: err}
				}
				return fmt.Errorf("fetching %s: %w", key, err)
			}
			img, err := imageops.DecodeNRGBA(ctx, data)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = img
			return nil
		}
	}
	g.Go(required(storage.SceneKey(id), &a.scene))
	g.Go(required(storage.GuideKey(id), &a.guide))

	g.Go(func() error {
		key := storage.BlurKey(id)
		data, err := c.assets.FetchAsset(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("fetching %s: %w", key, err)
		}
		img, _, err := imageops.Decode(ctx, data)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		a.mask = imageops.ToGray(img)
		return nil
	})

	g.Go(func() error {
		key := storage.MetadataKey(id)
		err := c.assets.FetchJSONMetadata(ctx, key, &a.attrs)
		if errors.Is(err, storage.ErrNotFound) {
			log.Debugf("scene: %s has no %s, using default attributes", id, key)
			return nil
		}
		if err != nil {
			return fmt.Errorf("scene %s attributes: %w", id, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &a, nil
}

// prepare builds the cache entry for id: it fetches assets, detects the guide
// once and derives the configured variants.
func (c *Cache) prepare(ctx context.Context, id string) (*Entry, error) {
	a, err := c.fetchAssets(ctx, id)
	if err != nil {
		return nil, err
	}

	sceneSize := geometry.DimensionsOf(a.scene)
	guideSize := geometry.DimensionsOf(a.guide)
	if guideSize != sceneSize {
		return nil, fmt.Errorf("scene %s: %w", id, &geometry.GeometryError{
			Reason: fmt.Sprintf("guide layer is %s but scene is %s", guideSize, sceneSize),
		})
	}

	c.detections.Increment()
	g, err := c.detector.Detect(a.guide)
	if err != nil {
		return nil, fmt.Errorf("scene %s guide layer: %w", id, err)
	}
	if err := g.Placement.Validate(); err != nil {
		return nil, fmt.Errorf("scene %s placement: %w", id, err)
	}
	log.Printf("scene: %s placement %v, %d marker pixels", id, g.Placement, g.PlacementPixels)

	orig := &Description{
		ID:               id,
		Image:            a.scene,
		Metadata:         sceneSize,
		OriginalMetadata: sceneSize,
		Placement:        g.Placement,
		BlurMask:         a.mask,
		Attributes:       a.attrs,
	}
	if g.Crop != nil {
		crop := g.Crop.Clamp(sceneSize)
		if crop.Width == 0 || crop.Height == 0 {
			return nil, fmt.Errorf("scene %s crop: %w", id, &geometry.GeometryError{
				Reason: fmt.Sprintf("crop markers span %dx%d at %s", crop.Width, crop.Height, crop.TopLeft),
			})
		}
		orig.Crop = &crop
	}

	e := &Entry{Original: orig}
	for _, w := range c.widths {
		if w >= sceneSize.Width {
			log.Debugf("scene: skipping %dpx variant of %s, original is %s", w, id, sceneSize)
			continue
		}
		v, err := DeriveVariant(ctx, orig, geometry.Dimensions{Width: w})
		if err != nil {
			return nil, err
		}
		e.Variants = append(e.Variants, v)
	}
	return e, nil
}
