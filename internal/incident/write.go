package incident

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// WriteFile writes t to path in the given format. CSV and GeoJSON are
// written through a temporary sibling file and renamed into place.
func WriteFile(path string, format Format, t *Table, cols Columns) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "incident: create output dir")
	}
	if format == FormatXLSX {
		return WriteXLSX(path, "", t)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrap(err, "incident: create output")
	}

	switch format {
	case FormatGeoJSON:
		err = WriteGeoJSON(f, t, cols)
	default:
		err = WriteCSV(f, t)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return eris.Wrap(os.Rename(tmp, path), "incident: publish output")
}
