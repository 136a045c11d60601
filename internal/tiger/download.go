// Package tiger downloads Census TIGER/Line county road shapefiles and reads
// them as polylines for the road network builder.
package tiger

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/afd-analytics/stationdist/internal/fetcher"
)

// BaseURL is the Census TIGER/Line download root.
const BaseURL = "https://www2.census.gov/geo/tiger"

// RoadsURL returns the all-roads ZIP for one county, e.g. RoadsURL(2023, "48453")
// for Travis County, Texas.
func RoadsURL(year int, countyGEOID string) string {
	return fmt.Sprintf("%s/TIGER%d/ROADS/tl_%d_%s_roads.zip", BaseURL, year, year, countyGEOID)
}

// Download fetches a TIGER/Line ZIP into destDir and extracts it. An existing
// non-empty ZIP is reused. Returns the path of the extracted .shp file.
func Download(ctx context.Context, f fetcher.Fetcher, url, destDir string) (string, error) {
	log := zap.L().With(
		zap.String("component", "tiger.download"),
		zap.String("url", url),
	)

	zipName := url[strings.LastIndex(url, "/")+1:]
	if zipName == "" || !strings.HasSuffix(strings.ToLower(zipName), ".zip") {
		return "", eris.Errorf("tiger: url %q does not name a zip file", url)
	}
	zipPath := filepath.Join(destDir, zipName)

	if info, err := os.Stat(zipPath); err == nil && info.Size() > 0 {
		log.Debug("zip already present, skipping download", zap.String("path", zipPath))
	} else {
		log.Info("downloading TIGER roads")
		n, err := f.DownloadToFile(ctx, url, zipPath)
		if err != nil {
			return "", eris.Wrap(err, "tiger: download roads")
		}
		log.Info("downloaded TIGER roads", zap.Int64("bytes", n))
	}

	extractDir := filepath.Join(destDir, strings.TrimSuffix(zipName, filepath.Ext(zipName)))
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", eris.Wrap(err, "tiger: create extract dir")
	}
	if err := extractZIP(zipPath, extractDir); err != nil {
		return "", eris.Wrap(err, "tiger: extract zip")
	}

	shpPath, err := findFileByExt(extractDir, ".shp")
	if err != nil {
		return "", eris.Wrap(err, "tiger: find .shp file")
	}
	return shpPath, nil
}

// extractZIP flattens every file entry of the archive into destDir.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := extractEntry(f, filepath.Join(destDir, filepath.Base(f.Name))); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "open zip entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "create %s", dest)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "extract %s", f.Name)
	}
	return eris.Wrapf(out.Close(), "close %s", dest)
}

func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("no %s file found in %s", ext, dir)
}
