package routing

import "math"

// Selection is the closest-station verdict for one row.
type Selection struct {
	// Closest is nil when no station produced a distance.
	Closest *string
	// MinMiles is nil unless Closest is set.
	MinMiles *float64
	IsWalkup bool
}

// SelectClosest picks, per row, the station with the smallest distance. The
// first minimum in station order wins ties. Ineligible cells rank as +Inf and
// unreachable cells are skipped, so a row with no distance gets no station
// and is never a walk-up.
func SelectClosest(m *Matrix, walkupMiles float64) []Selection {
	out := make([]Selection, len(m.Cells))
	for i, row := range m.Cells {
		out[i] = selectRow(m.Stations, row, walkupMiles)
	}
	return out
}

func selectRow(stations []string, row []Result, walkupMiles float64) Selection {
	best, bestIdx := math.Inf(1), -1
	for j, r := range row {
		v, ok := r.Sortable()
		if !ok {
			continue
		}
		if v < best {
			best, bestIdx = v, j
		}
	}
	if bestIdx < 0 {
		return Selection{}
	}
	id := stations[bestIdx]
	return Selection{
		Closest:  &id,
		MinMiles: &best,
		IsWalkup: best < walkupMiles,
	}
}
