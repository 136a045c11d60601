// Package locator snaps coordinates to their nearest road network node.
package locator

import (
	"math"
	"sync"

	"github.com/bluele/gcache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/afd-analytics/stationdist/internal/projection"
	"github.com/afd-analytics/stationdist/internal/roadnet"
	"github.com/afd-analytics/stationdist/internal/station"
)

// NodeRef is the result of a snap. A zero NodeRef (Valid false) is the null
// node: the coordinate or bucket was unusable.
type NodeRef struct {
	ID    int64
	Valid bool
	// Offset is the straight-line distance from the query point to the node
	// in projected units.
	Offset float64
}

// Options tunes the locator.
type Options struct {
	// MaxSnapMeters rejects matches farther than this from the query point.
	// Zero disables the check.
	MaxSnapMeters float64
	// CacheSize bounds the LRU of recent snaps. Zero disables caching.
	CacheSize int
}

// Locator answers nearest-node queries against a projected graph. It is safe
// for concurrent use.
type Locator struct {
	tree    *kdtree.Tree
	size    int
	proj    projection.Projector
	maxSnap float64
	cache   gcache.Cache

	mu       sync.Mutex
	rejected int
}

// New indexes every node of g. g must be projected with proj.
func New(g *roadnet.Graph, proj projection.Projector, opts Options) (*Locator, error) {
	projected, crs := g.Projected()
	if !projected {
		return nil, eris.New("locator: graph is not projected")
	}
	if crs != proj.Code() {
		return nil, eris.Errorf("locator: graph is in %s but projector is %s", crs, proj.Code())
	}

	nodes := g.Nodes()
	pts := make(places, len(nodes))
	for i, n := range nodes {
		pts[i] = place{id: n.ID, x: n.X, y: n.Y}
	}

	l := &Locator{
		size:    len(pts),
		proj:    proj,
		maxSnap: opts.MaxSnapMeters * proj.UnitsPerMeter(),
	}
	if len(pts) > 0 {
		l.tree = kdtree.New(pts, false)
	}
	if opts.CacheSize > 0 {
		l.cache = gcache.New(opts.CacheSize).LRU().Build()
	}
	return l, nil
}

// Len returns the number of indexed nodes.
func (l *Locator) Len() int { return l.size }

// Nearest returns the node closest to pt. Equidistant nodes resolve to the
// lowest id.
func (l *Locator) Nearest(pt projection.Point) (NodeRef, bool) {
	if l.tree == nil || math.IsNaN(pt.X) || math.IsNaN(pt.Y) {
		return NodeRef{}, false
	}
	q := place{x: pt.X, y: pt.Y}
	best, d2 := l.tree.Nearest(q)
	if best == nil {
		return NodeRef{}, false
	}
	id := best.(place).id

	keep := kdtree.NewDistKeeper(d2)
	l.tree.NearestSet(keep, q)
	for _, c := range keep.Heap {
		if p, ok := c.Comparable.(place); ok && p.id < id {
			id = p.id
		}
	}
	return NodeRef{ID: id, Valid: true, Offset: math.Sqrt(d2)}, true
}

type cacheKey [2]int64

// SnapCoord projects a WGS84 coordinate and snaps it. Missing or invalid
// coordinates, and matches beyond the max-snap distance, yield the null node.
func (l *Locator) SnapCoord(lon, lat float64) NodeRef {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return NodeRef{}
	}

	key := cacheKey{int64(math.Round(lon * 1e7)), int64(math.Round(lat * 1e7))}
	if l.cache != nil {
		if v, err := l.cache.Get(key); err == nil {
			return v.(NodeRef)
		}
	}

	ref := l.snap(lon, lat)
	if l.cache != nil {
		_ = l.cache.Set(key, ref)
	}
	return ref
}

func (l *Locator) snap(lon, lat float64) NodeRef {
	pt, err := l.proj.Forward(lon, lat)
	if err != nil {
		return NodeRef{}
	}
	ref, ok := l.Nearest(pt)
	if !ok {
		return NodeRef{}
	}
	if l.maxSnap > 0 && ref.Offset > l.maxSnap {
		l.mu.Lock()
		l.rejected++
		l.mu.Unlock()
		zap.L().Debug("locator: nearest node beyond max snap distance",
			zap.Float64("lon", lon),
			zap.Float64("lat", lat),
			zap.Int64("node", ref.ID),
			zap.Float64("offset", ref.Offset),
		)
		return NodeRef{}
	}
	return ref
}

// Snap resolves an incident location for bucket. Unrecognized buckets yield
// the null node.
func (l *Locator) Snap(lon, lat float64, bucket station.Bucket) NodeRef {
	if !bucket.Valid() {
		return NodeRef{}
	}
	return l.SnapCoord(lon, lat)
}

// Stats reports cache hits, misses and max-snap rejections.
type Stats struct {
	Hits     uint64
	Misses   uint64
	Rejected int
}

// Stats returns counters since construction.
func (l *Locator) Stats() Stats {
	l.mu.Lock()
	s := Stats{Rejected: l.rejected}
	l.mu.Unlock()
	if l.cache != nil {
		s.Hits = l.cache.HitCount()
		s.Misses = l.cache.MissCount()
	}
	return s
}
