package roadnet

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/afd-analytics/stationdist/internal/projection"
	"github.com/afd-analytics/stationdist/internal/resilience"
)

// Cache stages recorded in Meta.Stage.
const (
	StageRaw   = "raw"
	StageFinal = "final"
)

// ProviderOptions configures Provider.
type ProviderOptions struct {
	Place        string
	BufferMeters float64
	// FreshTolerance is the consolidation radius in meters used when the
	// final graph is built from the raw one.
	FreshTolerance float64
	// CachedTolerance is the radius re-applied when the final graph is loaded.
	CachedTolerance float64
	Retry           resilience.RetryConfig
}

// Provider yields the projected road graph, building and caching it on
// first use.
type Provider struct {
	cache  *Cache
	source Source
	proj   projection.Projector
	opts   ProviderOptions
	now    func() time.Time
}

// NewProvider returns a Provider. source may be nil when only cached graphs
// are expected.
func NewProvider(cache *Cache, source Source, proj projection.Projector, opts ProviderOptions) *Provider {
	return &Provider{cache: cache, source: source, proj: proj, opts: opts, now: time.Now}
}

// Load returns the projected, consolidated road graph. It tries the final
// cache, then the raw cache, then downloads from the source. A download
// failure is fatal to the caller.
func (p *Provider) Load(ctx context.Context) (*Graph, error) {
	log := zap.L().With(
		zap.String("component", "roadnet.provider"),
		zap.String("place", p.opts.Place),
		zap.Float64("buffer_meters", p.opts.BufferMeters),
	)

	if p.cache.Exists(FinalFile) {
		log.Info("loading final road graph", zap.String("path", p.cache.Path(FinalFile)))
		g, meta, err := p.cache.Load(ctx, FinalFile)
		if err != nil {
			return nil, err
		}
		p.warnOnMismatch(log, meta)
		return p.finish(g, p.opts.CachedTolerance)
	}

	var raw *Graph
	if p.cache.Exists(RawFile) {
		log.Info("loading raw road graph", zap.String("path", p.cache.Path(RawFile)))
		g, meta, err := p.cache.Load(ctx, RawFile)
		if err != nil {
			return nil, err
		}
		p.warnOnMismatch(log, meta)
		raw = g
	} else {
		g, err := p.download(ctx, log)
		if err != nil {
			return nil, err
		}
		raw = g
	}

	simplified, err := Simplify(raw)
	if err != nil {
		return nil, err
	}
	final, err := p.finish(simplified, p.opts.FreshTolerance)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Save(ctx, FinalFile, final, p.meta(StageFinal)); err != nil {
		return nil, err
	}
	return final, nil
}

func (p *Provider) download(ctx context.Context, log *zap.Logger) (*Graph, error) {
	if p.source == nil {
		err := eris.Errorf("roadnet: no cached graph and no source for %q (buffer %g m)",
			p.opts.Place, p.opts.BufferMeters)
		log.Error("road network unavailable", zap.Error(err))
		return nil, err
	}

	log.Info("starting road network download", zap.String("source", p.source.Name()))
	retry := p.opts.Retry
	retry.OnRetry = resilience.RetryLogger(p.source.Name(), "fetch_roads")

	g, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*Graph, error) {
		return p.source.Fetch(ctx, p.opts.Place, p.opts.BufferMeters)
	})
	if err != nil {
		log.Error("road network download failed", zap.String("source", p.source.Name()), zap.Error(err))
		return nil, eris.Wrapf(err, "roadnet: download road network for %q (buffer %g m)",
			p.opts.Place, p.opts.BufferMeters)
	}
	if g.NumNodes() == 0 {
		err := eris.Errorf("roadnet: download for %q (buffer %g m) returned no drivable roads",
			p.opts.Place, p.opts.BufferMeters)
		log.Error("road network download failed", zap.Error(err))
		return nil, err
	}

	log.Info("road network downloaded", zap.Int("nodes", g.NumNodes()), zap.Int("edges", g.NumEdges()))
	if err := p.cache.Save(ctx, RawFile, g, p.meta(StageRaw)); err != nil {
		return nil, err
	}
	return g, nil
}

// finish projects g and consolidates intersections within toleranceMeters.
func (p *Provider) finish(g *Graph, toleranceMeters float64) (*Graph, error) {
	if err := g.Project(p.proj); err != nil {
		return nil, err
	}
	return Consolidate(g, ConsolidateOptions{
		Tolerance: toleranceMeters * p.proj.UnitsPerMeter(),
	})
}

func (p *Provider) meta(stage string) Meta {
	source := ""
	if p.source != nil {
		source = p.source.Name()
	}
	return Meta{
		Place:        p.opts.Place,
		BufferMeters: p.opts.BufferMeters,
		Source:       source,
		Stage:        stage,
		BuiltAt:      p.now(),
	}
}

func (p *Provider) warnOnMismatch(log *zap.Logger, m Meta) {
	if m.Place != p.opts.Place || m.BufferMeters != p.opts.BufferMeters {
		log.Warn("cached graph was built for a different area",
			zap.String("cached_place", m.Place),
			zap.Float64("cached_buffer_meters", m.BufferMeters),
		)
	}
}

// TierStatus describes one cache file.
type TierStatus struct {
	Path   string
	Exists bool
	Meta   Meta
}

// Status reports which cache tiers are present.
func (p *Provider) Status(ctx context.Context) ([]TierStatus, error) {
	var out []TierStatus
	for _, name := range []string{RawFile, FinalFile} {
		ts := TierStatus{Path: p.cache.Path(name), Exists: p.cache.Exists(name)}
		if ts.Exists {
			m, err := p.cache.ReadMeta(ctx, name)
			if err != nil {
				return nil, err
			}
			ts.Meta = m
		}
		out = append(out, ts)
	}
	return out, nil
}
