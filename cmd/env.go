package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/afd-analytics/stationdist/internal/config"
	"github.com/afd-analytics/stationdist/internal/fetcher"
	"github.com/afd-analytics/stationdist/internal/locator"
	"github.com/afd-analytics/stationdist/internal/projection"
	"github.com/afd-analytics/stationdist/internal/resilience"
	"github.com/afd-analytics/stationdist/internal/roadnet"
	"github.com/afd-analytics/stationdist/internal/routing"
	"github.com/afd-analytics/stationdist/internal/station"
	"github.com/afd-analytics/stationdist/internal/tiger"
	"github.com/afd-analytics/stationdist/pkg/osm"
)

func newFetcher(c *config.Config) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  c.OSM.UserAgent,
		Timeout:    time.Duration(c.OSM.TimeoutSecs) * time.Second,
		MaxRetries: c.OSM.MaxRetries,
	})
}

func newOSMClient(c *config.Config, f *fetcher.HTTPFetcher) *osm.Client {
	return osm.NewClient(f, osm.Options{
		NominatimURL: c.OSM.NominatimURL,
		OverpassURL:  c.OSM.OverpassURL,
		QueryTimeout: time.Duration(c.OSM.QueryTimeoutSecs) * time.Second,
	})
}

// tigerURLs returns explicit TIGER URLs, or one per configured county.
func tigerURLs(c *config.Config) []string {
	if len(c.Roads.TigerURLs) > 0 {
		return c.Roads.TigerURLs
	}
	urls := make([]string, len(c.Roads.TigerCounties))
	for i, county := range c.Roads.TigerCounties {
		urls[i] = tiger.RoadsURL(c.Roads.TigerYear, county)
	}
	return urls
}

func newRoadSource(c *config.Config) (roadnet.Source, error) {
	f := newFetcher(c)
	client := newOSMClient(c, f)
	switch c.Roads.Source {
	case "osm":
		return roadnet.NewOSMSource(client), nil
	case "tiger":
		return roadnet.NewTIGERSource(f, client, tigerURLs(c), c.Roads.CacheDir), nil
	default:
		return nil, eris.Errorf("unsupported road source %q", c.Roads.Source)
	}
}

func newProvider(c *config.Config, proj projection.Projector) (*roadnet.Provider, error) {
	src, err := newRoadSource(c)
	if err != nil {
		return nil, err
	}
	return roadnet.NewProvider(roadnet.NewCache(c.Roads.CacheDir), src, proj, roadnet.ProviderOptions{
		Place:           c.Roads.Place,
		BufferMeters:    c.Roads.BufferMeters,
		FreshTolerance:  c.Roads.FreshToleranceMeters,
		CachedTolerance: c.Roads.CachedToleranceMeters,
		Retry: resilience.FromSettings(
			c.Roads.Retry.MaxAttempts,
			c.Roads.Retry.InitialBackoffMs,
			c.Roads.Retry.MaxBackoffMs,
		),
	}), nil
}

// loadStations reads the registry from the configured source.
func loadStations(ctx context.Context, c *config.Config) (*station.Registry, error) {
	switch c.Stations.Source {
	case "file":
		return station.FileSource{Path: c.Stations.File}.Load(ctx)
	case "postgres":
		pool, err := pgxpool.New(ctx, c.Stations.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "stations: connect")
		}
		defer pool.Close()
		return station.NewPostgresSource(pool, c.Stations.Table).Load(ctx)
	default:
		return nil, eris.Errorf("unsupported station source %q", c.Stations.Source)
	}
}

// routingEnv is everything a routing command needs.
type routingEnv struct {
	Graph    *roadnet.Graph
	Locator  *locator.Locator
	Registry *station.Registry
	Engine   *routing.Engine
}

func initRouting(ctx context.Context, c *config.Config) (*routingEnv, error) {
	reg, err := loadStations(ctx, c)
	if err != nil {
		return nil, err
	}

	proj := projection.TexasCentral()
	provider, err := newProvider(c, proj)
	if err != nil {
		return nil, err
	}
	g, err := provider.Load(ctx)
	if err != nil {
		return nil, err
	}

	loc, err := locator.New(g, proj, locator.Options{
		MaxSnapMeters: c.Routing.MaxSnapMeters,
		CacheSize:     c.Routing.SnapCacheSize,
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("routing environment ready",
		zap.Int("nodes", g.NumNodes()),
		zap.Int("edges", g.NumEdges()),
		zap.Int("stations", reg.Len()),
	)

	return &routingEnv{
		Graph:    g,
		Locator:  loc,
		Registry: reg,
		Engine: routing.NewEngine(g, loc, reg, routing.Options{
			WalkupMiles:   c.Routing.WalkupMiles,
			Concurrency:   c.Routing.Concurrency,
			ProgressEvery: c.Routing.ProgressEvery,
		}),
	}, nil
}
