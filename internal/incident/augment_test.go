package incident

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afd-analytics/stationdist/internal/routing"
	"github.com/afd-analytics/stationdist/internal/station"
)

func strPtr(s string) *string      { return &s }
func floatPtr(f float64) *float64 { return &f }

func sampleReport() *routing.Report {
	return &routing.Report{
		Matrix: &routing.Matrix{
			Stations: []string{"S01", "S02"},
			Cells: [][]routing.Result{
				{routing.Distance(1.25), routing.Distance(0.04)},
				{routing.Ineligible(station.NoCapability), routing.Unreachable()},
			},
		},
		Selections: []routing.Selection{
			{Closest: strPtr("S02"), MinMiles: floatPtr(0.04), IsWalkup: true},
			{},
		},
	}
}

func sampleTable() *Table {
	return &Table{
		Header: []string{"Incident", "X-Long", "Y_Lat", "Closest Station"},
		Rows: [][]string{
			{"1001", "-97.62", "30.44", "stale"},
			{"1002", "", "", "stale"},
		},
	}
}

func TestOutputColumns(t *testing.T) {
	assert.Equal(t,
		[]string{"Closest Station", "Distance to S01 in miles", "Distance to S02 in miles", "is_walkup"},
		OutputColumns([]string{"S01", "S02"}))
}

func TestAugment(t *testing.T) {
	out, err := Augment(sampleTable(), sampleReport())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Incident", "X-Long", "Y_Lat",
		"Closest Station", "Distance to S01 in miles", "Distance to S02 in miles", "is_walkup",
	}, out.Header)
	assert.Equal(t, []string{"1001", "-97.62", "30.44", "S02", "1.25", "0.04", "true"}, out.Rows[0])
	assert.Equal(t, []string{"1002", "", "", "", "", "", "false"}, out.Rows[1],
		"ineligible and unreachable cells are empty, never infinity")
}

func TestAugment_Bypass(t *testing.T) {
	reg, err := station.NewRegistry([]station.Station{{ID: "S01"}, {ID: "S02"}})
	require.NoError(t, err)

	out, err := Augment(sampleTable(), routing.BypassReport(reg, 2))
	require.NoError(t, err)
	assert.Len(t, out.Header, 7)
	for _, row := range out.Rows {
		assert.Equal(t, []string{"", "", "", ""}, row[3:])
	}
}

func TestAugment_RowMismatch(t *testing.T) {
	tbl := sampleTable()
	tbl.Rows = tbl.Rows[:1]
	_, err := Augment(tbl, sampleReport())
	assert.Error(t, err)
}

func TestWriteGeoJSON(t *testing.T) {
	out, err := Augment(sampleTable(), sampleReport())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteGeoJSON(&buf, out, DefaultColumns()))

	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "FeatureCollection", doc.Type)
	require.Len(t, doc.Features, 1, "row without a location is left out")
	f := doc.Features[0]
	assert.Equal(t, "Point", f.Geometry.Type)
	assert.Equal(t, []float64{-97.62, 30.44}, f.Geometry.Coordinates)
	assert.Equal(t, "S02", f.Properties["Closest Station"])
	assert.Equal(t, 0.04, f.Properties["Distance to S02 in miles"])
	assert.Equal(t, true, f.Properties["is_walkup"])
	assert.Equal(t, "1001", f.Properties["Incident"])
}

func TestWriteGeoJSON_NeedsLocation(t *testing.T) {
	var buf bytes.Buffer
	err := WriteGeoJSON(&buf, &Table{Header: []string{"a"}}, DefaultColumns())
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	out, err := Augment(sampleTable(), sampleReport())
	require.NoError(t, err)

	for _, f := range []Format{FormatCSV, FormatXLSX, FormatGeoJSON} {
		path := filepath.Join(dir, "nested", "out."+string(f))
		require.NoError(t, WriteFile(path, f, out, DefaultColumns()), f)
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
		_, err = os.Stat(path + ".tmp")
		assert.True(t, os.IsNotExist(err))
	}
}
