// Package station holds the fire and EMS station registry and the rules that
// decide whether a station may answer a given incident.
package station

import (
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Bucket is the service type of an incident request.
type Bucket string

// Recognized buckets.
const (
	Medical Bucket = "MED"
	Engine  Bucket = "ENG"
)

// ParseBucket normalizes s and reports whether it is a recognized bucket.
func ParseBucket(s string) (Bucket, bool) {
	b := Bucket(strings.ToUpper(strings.TrimSpace(s)))
	return b, b.Valid()
}

// Valid reports whether b is a recognized bucket.
func (b Bucket) Valid() bool {
	return b == Medical || b == Engine
}

// DateLayout is the month-day-year layout of station activation dates.
const DateLayout = "01-02-2006"

// ParseDate parses an activation date. An empty string means the station has
// always been active.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "station: activation date %q is not MM-DD-YYYY", s)
	}
	return t, nil
}

// Station is one fire or EMS station.
type Station struct {
	ID         string    `json:"id"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	HasEMS     bool      `json:"has_ems"`
	HasFire    bool      `json:"has_fire"`
	ActiveFrom time.Time `json:"active_from,omitzero"`
}

// Reason explains why a station cannot answer a request.
type Reason int

const (
	// Eligible means the station may answer.
	Eligible Reason = iota
	// NoCapability means the station lacks the apparatus for the bucket.
	NoCapability
	// NotYetActive means the request predates the station's activation.
	NotYetActive
)

func (r Reason) String() string {
	switch r {
	case Eligible:
		return "eligible"
	case NoCapability:
		return "no_capability"
	case NotYetActive:
		return "not_yet_active"
	default:
		return "unknown"
	}
}

// Capable reports whether s carries the apparatus for b. Unrecognized
// buckets carry no capability requirement.
func (s Station) Capable(b Bucket) bool {
	switch b {
	case Medical:
		return s.HasEMS
	case Engine:
		return s.HasFire
	default:
		return true
	}
}

// ActiveAt reports whether s was in service at at. A zero at or a zero
// activation date always passes.
func (s Station) ActiveAt(at time.Time) bool {
	if at.IsZero() || s.ActiveFrom.IsZero() {
		return true
	}
	return !at.Before(s.ActiveFrom)
}

// Eligibility checks capability first, then activation.
func (s Station) Eligibility(b Bucket, at time.Time) Reason {
	if !s.Capable(b) {
		return NoCapability
	}
	if !s.ActiveAt(at) {
		return NotYetActive
	}
	return Eligible
}

// Registry is an ordered, immutable set of stations. Declaration order is
// preserved and drives tie-breaking downstream.
type Registry struct {
	stations []Station
	index    map[string]int
}

// NewRegistry validates stations and returns a Registry in the given order.
func NewRegistry(stations []Station) (*Registry, error) {
	r := &Registry{
		stations: make([]Station, 0, len(stations)),
		index:    make(map[string]int, len(stations)),
	}
	for _, s := range stations {
		s.ID = strings.TrimSpace(s.ID)
		if s.ID == "" {
			return nil, eris.New("station: empty station id")
		}
		if _, dup := r.index[s.ID]; dup {
			return nil, eris.Errorf("station: duplicate station id %q", s.ID)
		}
		if !validCoord(s.Lon, s.Lat) {
			return nil, eris.Errorf("station: %s has invalid coordinate (%v, %v)", s.ID, s.Lat, s.Lon)
		}
		r.index[s.ID] = len(r.stations)
		r.stations = append(r.stations, s)
	}
	return r, nil
}

func validCoord(lon, lat float64) bool {
	return !math.IsNaN(lon) && !math.IsNaN(lat) &&
		lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

// Len returns the number of stations.
func (r *Registry) Len() int { return len(r.stations) }

// All returns the stations in declaration order.
func (r *Registry) All() []Station {
	out := make([]Station, len(r.stations))
	copy(out, r.stations)
	return out
}

// IDs returns station ids in declaration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.stations))
	for i, s := range r.stations {
		ids[i] = s.ID
	}
	return ids
}

// Get returns the station with id.
func (r *Registry) Get(id string) (Station, bool) {
	i, ok := r.index[id]
	if !ok {
		return Station{}, false
	}
	return r.stations[i], true
}
