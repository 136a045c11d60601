// Package routing computes road distances from stations to incidents and
// picks the closest eligible station.
package routing

import (
	"math"
	"strconv"

	"github.com/afd-analytics/stationdist/internal/station"
)

// MetersToMiles converts path lengths to miles.
const MetersToMiles = 0.000621371

// DefaultWalkupMiles is the distance under which a request counts as a walk-up.
const DefaultWalkupMiles = 0.05

// Kind classifies a Result.
type Kind int

const (
	// KindUnreachable means no road path or no usable node.
	KindUnreachable Kind = iota
	// KindIneligible means the station may not answer this request.
	KindIneligible
	// KindDistance carries a road distance.
	KindDistance
)

// Result is the outcome of one station/incident evaluation. The zero value
// is Unreachable.
type Result struct {
	kind   Kind
	miles  float64
	reason station.Reason
}

// Unreachable returns the no-path result.
func Unreachable() Result { return Result{kind: KindUnreachable} }

// Ineligible returns a result excluded from selection for reason.
func Ineligible(reason station.Reason) Result {
	return Result{kind: KindIneligible, reason: reason}
}

// Distance returns a road distance result.
func Distance(miles float64) Result { return Result{kind: KindDistance, miles: miles} }

// Kind returns the result classification.
func (r Result) Kind() Kind { return r.kind }

// Reason returns why the station was ineligible.
func (r Result) Reason() station.Reason { return r.reason }

// Miles returns the distance when r is a Distance.
func (r Result) Miles() (float64, bool) {
	return r.miles, r.kind == KindDistance
}

// Sortable returns the value used for minimum selection. Ineligible results
// rank as +Inf; Unreachable results do not take part.
func (r Result) Sortable() (float64, bool) {
	switch r.kind {
	case KindDistance:
		return r.miles, true
	case KindIneligible:
		return math.Inf(1), true
	default:
		return 0, false
	}
}

// Value returns the reportable distance, or nil for anything else. Output
// writers use it so infinity never reaches a table.
func (r Result) Value() *float64 {
	if r.kind != KindDistance {
		return nil
	}
	v := r.miles
	return &v
}

func (r Result) String() string {
	switch r.kind {
	case KindDistance:
		return strconv.FormatFloat(r.miles, 'f', -1, 64)
	case KindIneligible:
		return "ineligible(" + r.reason.String() + ")"
	default:
		return "unreachable"
	}
}
