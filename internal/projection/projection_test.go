package projection

import (
	"math"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTexasCentral_Origin(t *testing.T) {
	p := TexasCentral()

	pt, err := p.Forward(TexasCentralParams.CentralMerid, TexasCentralParams.OriginLat)
	require.NoError(t, err)

	assert.InDelta(t, 700000.0*USSurveyFootPerMeter, pt.X, 1e-3)
	assert.InDelta(t, 3000000.0*USSurveyFootPerMeter, pt.Y, 1e-3)
}

func TestTexasCentral_KnownPoint(t *testing.T) {
	p := TexasCentral()

	// Texas State Capitol, Austin.
	pt, err := p.Forward(-97.7404, 30.2747)
	require.NoError(t, err)

	assert.InDelta(t, 3115014.78, pt.X, 0.5)
	assert.InDelta(t, 10073182.92, pt.Y, 0.5)
}

func TestTexasCentral_Deterministic(t *testing.T) {
	p := TexasCentral()

	a, err := p.Forward(-97.6200, 30.4394)
	require.NoError(t, err)
	b, err := TexasCentral().Forward(-97.6200, 30.4394)
	require.NoError(t, err)

	assert.Equal(t, math.Float64bits(a.X), math.Float64bits(b.X))
	assert.Equal(t, math.Float64bits(a.Y), math.Float64bits(b.Y))
}

func TestTexasCentral_Orientation(t *testing.T) {
	p := TexasCentral()

	pt, err := p.Forward(-97.6200, 30.4394)
	require.NoError(t, err)
	assert.Greater(t, pt.X, 700000.0*USSurveyFootPerMeter, "east of the central meridian")
	assert.Greater(t, pt.Y, 3000000.0*USSurveyFootPerMeter, "north of the false origin")

	east, err := p.Forward(-97.6100, 30.4394)
	require.NoError(t, err)
	assert.Greater(t, east.X, pt.X)
}

func TestTexasCentral_Scale(t *testing.T) {
	p := TexasCentral()

	// 0.01 degree of latitude near 30.5N is about 1108.9 m.
	a, err := p.Forward(-97.62, 30.44)
	require.NoError(t, err)
	b, err := p.Forward(-97.62, 30.45)
	require.NoError(t, err)

	meters := Distance(a, b) / p.UnitsPerMeter()
	assert.InDelta(t, 1108.9, meters, 1108.9*0.005)
}

func TestForward_InvalidInput(t *testing.T) {
	p := TexasCentral()

	tests := []struct {
		name     string
		lon, lat float64
	}{
		{"nan lon", math.NaN(), 30},
		{"nan lat", -97, math.NaN()},
		{"inf", math.Inf(1), 30},
		{"lon out of range", -190, 30},
		{"pole", -97, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Forward(tt.lon, tt.lat)
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrInvalidCoordinate))
		})
	}
}

func TestCode(t *testing.T) {
	assert.Equal(t, "EPSG:2277", TexasCentral().Code())
	assert.InDelta(t, 3.2808333, TexasCentral().UnitsPerMeter(), 1e-6)
}
