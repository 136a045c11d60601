package incident

import (
	"slices"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/afd-analytics/stationdist/internal/routing"
)

// Output column names.
const (
	ClosestColumn = "Closest Station"
	WalkupColumn  = "is_walkup"
)

// OutputColumns returns the appended columns in order: the closest station,
// one distance column per station, then the walk-up flag.
func OutputColumns(stations []string) []string {
	cols := make([]string, 0, len(stations)+2)
	cols = append(cols, ClosestColumn)
	for _, id := range stations {
		cols = append(cols, routing.ColumnName(id))
	}
	return append(cols, WalkupColumn)
}

// Augment returns a copy of t with the output columns appended. Columns of
// the same name already present in t are replaced. Non-distance results are
// written as empty cells; a bypassed report leaves every output cell empty.
func Augment(t *Table, rep *routing.Report) (*Table, error) {
	if rep.Matrix.Rows() != t.Len() || len(rep.Selections) != t.Len() {
		return nil, eris.Errorf("incident: report has %d rows, table has %d", rep.Matrix.Rows(), t.Len())
	}

	added := OutputColumns(rep.Matrix.Stations)
	keep := make([]int, 0, len(t.Header))
	for j, h := range t.Header {
		if !slices.ContainsFunc(added, func(c string) bool { return foldName(c) == foldName(h) }) {
			keep = append(keep, j)
		}
	}

	out := &Table{Header: make([]string, 0, len(keep)+len(added))}
	for _, j := range keep {
		out.Header = append(out.Header, t.Header[j])
	}
	out.Header = append(out.Header, added...)

	out.Rows = make([][]string, t.Len())
	for i := range t.Rows {
		row := make([]string, 0, len(out.Header))
		for _, j := range keep {
			row = append(row, t.Cell(i, j))
		}

		sel := rep.Selections[i]
		if sel.Closest != nil {
			row = append(row, *sel.Closest)
		} else {
			row = append(row, "")
		}
		for _, r := range rep.Matrix.Cells[i] {
			row = append(row, formatMiles(r))
		}
		if rep.Bypassed {
			row = append(row, "")
		} else {
			row = append(row, strconv.FormatBool(sel.IsWalkup))
		}
		out.Rows[i] = row
	}
	return out, nil
}

func formatMiles(r routing.Result) string {
	v := r.Value()
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
