package roadnet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afd-analytics/stationdist/internal/projection"
	"github.com/afd-analytics/stationdist/internal/resilience"
)

type fakeSource struct {
	calls int
	errs  []error
	graph func() *Graph
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(_ context.Context, _ string, _ float64) (*Graph, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.graph(), nil
}

func testProviderOptions() ProviderOptions {
	return ProviderOptions{
		Place:           "Pflugerville, Texas, United States",
		BufferMeters:    10000,
		FreshTolerance:  20,
		CachedTolerance: 5,
		Retry:           resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond},
	}
}

func TestProvider_DownloadsOnceThenUsesCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := &fakeSource{graph: func() *Graph { return blockGraph(t) }}

	p := NewProvider(NewCache(dir), src, projection.TexasCentral(), testProviderOptions())
	g, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	projected, crs := g.Projected()
	assert.True(t, projected)
	assert.Equal(t, "EPSG:2277", crs)
	assert.True(t, NewCache(dir).Exists(RawFile))
	assert.True(t, NewCache(dir).Exists(FinalFile))

	again := NewProvider(NewCache(dir), src, projection.TexasCentral(), testProviderOptions())
	g2, err := again.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "second load must not fetch")
	assert.Equal(t, g.NumNodes(), g2.NumNodes())
	assert.Equal(t, g.Edges(), g2.Edges())
}

func TestProvider_BuildsFinalFromRaw(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(t.TempDir())
	require.NoError(t, cache.Save(ctx, RawFile, blockGraph(t), Meta{Stage: StageRaw}))

	p := NewProvider(cache, nil, projection.TexasCentral(), testProviderOptions())
	g, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Positive(t, g.NumNodes())
	assert.True(t, cache.Exists(FinalFile))
}

func TestProvider_FetchFailureIsFatal(t *testing.T) {
	src := &fakeSource{errs: []error{errors.New("place not found")}}
	p := NewProvider(NewCache(t.TempDir()), src, projection.TexasCentral(), testProviderOptions())

	_, err := p.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Pflugerville, Texas, United States")
	assert.Contains(t, err.Error(), "10000")
	assert.Equal(t, 1, src.calls)
}

func TestProvider_RetriesTransientFetch(t *testing.T) {
	src := &fakeSource{
		errs:  []error{resilience.NewTransientError(errors.New("overpass busy"), 429)},
		graph: func() *Graph { return blockGraph(t) },
	}
	p := NewProvider(NewCache(t.TempDir()), src, projection.TexasCentral(), testProviderOptions())

	_, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestProvider_EmptyDownload(t *testing.T) {
	src := &fakeSource{graph: New}
	p := NewProvider(NewCache(t.TempDir()), src, projection.TexasCentral(), testProviderOptions())

	_, err := p.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no drivable roads")
}

func TestProvider_NoSourceNoCache(t *testing.T) {
	p := NewProvider(NewCache(t.TempDir()), nil, projection.TexasCentral(), testProviderOptions())
	_, err := p.Load(context.Background())
	assert.Error(t, err)
}

func TestProvider_Status(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(t.TempDir())
	p := NewProvider(cache, &fakeSource{graph: func() *Graph { return blockGraph(t) }},
		projection.TexasCentral(), testProviderOptions())

	st, err := p.Status(ctx)
	require.NoError(t, err)
	require.Len(t, st, 2)
	assert.False(t, st[0].Exists)
	assert.False(t, st[1].Exists)

	_, err = p.Load(ctx)
	require.NoError(t, err)

	st, err = p.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st[0].Exists)
	assert.Equal(t, StageRaw, st[0].Meta.Stage)
	assert.Equal(t, "fake", st[0].Meta.Source)
	assert.Equal(t, StageFinal, st[1].Meta.Stage)
	assert.Equal(t, 10000.0, st[1].Meta.BufferMeters)
}
