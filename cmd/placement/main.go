// Command placement serves the poster placement API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dixieflatline76/Placement/config"
	"github.com/dixieflatline76/Placement/pkg/api"
	"github.com/dixieflatline76/Placement/pkg/poster"
	"github.com/dixieflatline76/Placement/pkg/render"
	"github.com/dixieflatline76/Placement/pkg/scene"
	"github.com/dixieflatline76/Placement/pkg/storage"
	"github.com/dixieflatline76/Placement/util/log"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPtr := flag.String("config", os.Getenv("PLACEMENT_CONFIG"), "Path to a YAML config file")
	portPtr := flag.Int("port", 0, "Listen port (overrides config)")
	versionPtr := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *versionPtr {
		fmt.Printf("%s %s\n", config.AppName, config.AppVersion)
		return
	}

	cfg, err := config.Load(*configPtr)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *portPtr > 0 {
		cfg.Port = *portPtr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	log.SetDebug(cfg.DebugEnabled())

	assets, err := newAssetSource(cfg)
	if err != nil {
		log.Fatalf("Failed to set up asset storage: %v", err)
	}

	cache := scene.NewCache(assets,
		scene.WithVariantWidths(cfg.Render.VariantWidths...),
		scene.WithPrepareTimeout(cfg.Render.Timeout),
	)
	pipeline := render.NewPipeline(cache, render.WithTimeout(cfg.Render.Timeout))

	posters, err := newPosterSource(cfg)
	if err != nil {
		log.Fatalf("Failed to set up poster source: %v", err)
	}

	server := api.NewServer(cfg, api.Deps{
		Renderer: pipeline,
		Cache:    cache,
		Posters:  posters,
		Fetcher:  poster.NewFetcher(nil, cfg.Poster.PDFDPI, cfg.Poster.Timeout),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	log.Printf("%s %s started on port %d", config.AppName, config.AppVersion, cfg.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-sigCh:
		log.Printf("Received %v, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Stop(ctx); err != nil {
			log.Printf("Shutdown failed: %v", err)
		}
	}
}

// newAssetSource reads from the local asset dir first and falls back to the
// remote bucket when one is configured.
func newAssetSource(cfg *config.Config) (storage.Source, error) {
	var chain storage.Chain
	if cfg.Assets.Dir != "" {
		chain = append(chain, storage.NewLocal(cfg.Assets.Dir))
	}

	baseURL := cfg.Assets.BaseURL
	if baseURL == "" && cfg.Assets.Bucket != "" {
		baseURL = storage.S3BaseURL(cfg.Assets.Bucket, cfg.Assets.Region)
	}
	if baseURL != "" {
		remote, err := storage.NewRemote(baseURL,
			storage.WithRateLimit(cfg.Assets.RemoteRPS),
			storage.WithTimeout(cfg.Assets.Timeout),
		)
		if err != nil {
			return nil, err
		}
		log.Printf("Using remote assets at %s", remote.BaseURL())
		chain = append(chain, remote)
	}
	return chain, nil
}

func newPosterSource(cfg *config.Config) (api.PosterRenderer, error) {
	if cfg.Poster.RenderAPIBaseURL != "" {
		log.Printf("Using poster rendering service at %s", cfg.Poster.RenderAPIBaseURL)
		return poster.NewRenderService(cfg.Poster.RenderAPIBaseURL, cfg.Poster.RenderAPIKey, nil, cfg.Poster.PDFDPI, cfg.Poster.Timeout)
	}
	if cfg.Poster.DefaultPath == "" {
		return nil, nil
	}
	log.Printf("Using default poster %s", cfg.Poster.DefaultPath)
	return poster.NewLocal(cfg.Poster.DefaultPath, cfg.Poster.PDFDPI), nil
}
