// Package projection converts WGS84 geographic coordinates into the planar
// reference system shared by the road graph, stations and incidents.
package projection

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/wroge/wgs84"
)

// ErrInvalidCoordinate is returned for NaN, infinite or out-of-range input.
var ErrInvalidCoordinate = eris.New("projection: invalid coordinate")

// USSurveyFootPerMeter converts meters to US survey feet.
const USSurveyFootPerMeter = 3937.0 / 1200.0

// Point is a position in projected units.
type Point struct {
	X float64
	Y float64
}

// Projector maps (lon, lat) degrees to planar coordinates. Implementations
// must be pure: identical input always yields bit-identical output.
type Projector interface {
	Forward(lon, lat float64) (Point, error)
	// UnitsPerMeter reports how many projected units make up one meter.
	UnitsPerMeter() float64
	// Code is the EPSG identifier of the target reference system.
	Code() string
}

// LCCParams defines a two standard parallel Lambert Conformal Conic projection
// on the NAD83 datum. Angles are in degrees, false easting/northing in meters.
type LCCParams struct {
	Code          string
	Parallel1     float64
	Parallel2     float64
	OriginLat     float64
	CentralMerid  float64
	FalseEasting  float64
	FalseNorthing float64
	UnitsPerMeter float64
}

// TexasCentralParams is EPSG:2277, NAD83 / Texas Central (ftUS).
var TexasCentralParams = LCCParams{
	Code:          "EPSG:2277",
	Parallel1:     31.0 + 53.0/60.0,
	Parallel2:     30.0 + 7.0/60.0,
	OriginLat:     29.0 + 40.0/60.0,
	CentralMerid:  -(100.0 + 20.0/60.0),
	FalseEasting:  700000.0,
	FalseNorthing: 3000000.0,
	UnitsPerMeter: USSurveyFootPerMeter,
}

// LambertConformal implements Projector for an LCC 2SP definition.
type LambertConformal struct {
	params LCCParams
	fwd    wgs84.Func
}

// TexasCentral returns the projector used throughout the engine.
func TexasCentral() *LambertConformal {
	return NewLambertConformal(TexasCentralParams)
}

// NewLambertConformal builds the transform from geographic WGS84 into p.
func NewLambertConformal(p LCCParams) *LambertConformal {
	if p.UnitsPerMeter == 0 {
		p.UnitsPerMeter = 1
	}

	crs := wgs84.NAD83().LambertConformalConic2SP(
		p.CentralMerid, p.OriginLat,
		p.Parallel1, p.Parallel2,
		p.FalseEasting, p.FalseNorthing,
	)

	return &LambertConformal{
		params: p,
		fwd:    wgs84.LonLat().To(crs),
	}
}

// Forward projects (lon, lat) in degrees. Argument order is x-first.
func (l *LambertConformal) Forward(lon, lat float64) (Point, error) {
	if !valid(lon, lat) {
		return Point{}, eris.Wrapf(ErrInvalidCoordinate, "lon=%v lat=%v", lon, lat)
	}

	east, north, _ := l.fwd(lon, lat, 0)
	if math.IsNaN(east) || math.IsNaN(north) {
		return Point{}, eris.Wrapf(ErrInvalidCoordinate, "lon=%v lat=%v", lon, lat)
	}

	return Point{
		X: east * l.params.UnitsPerMeter,
		Y: north * l.params.UnitsPerMeter,
	}, nil
}

// UnitsPerMeter implements Projector.
func (l *LambertConformal) UnitsPerMeter() float64 { return l.params.UnitsPerMeter }

// Code implements Projector.
func (l *LambertConformal) Code() string { return l.params.Code }

// Distance is the planar distance between two projected points.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func valid(lon, lat float64) bool {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat > -90 && lat < 90
}
