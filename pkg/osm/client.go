// Package osm queries OpenStreetMap services (Nominatim and Overpass) for
// place boundaries and drivable road ways.
package osm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/afd-analytics/stationdist/internal/resilience"
)

const (
	defaultNominatimURL = "https://nominatim.openstreetmap.org"
	defaultOverpassURL  = "https://overpass-api.de/api/interpreter"
)

// Downloader fetches a URL body. *fetcher.HTTPFetcher satisfies it.
type Downloader interface {
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Options configures the client endpoints.
type Options struct {
	NominatimURL string
	OverpassURL  string
	// QueryTimeout bounds the Overpass server-side query and the request context.
	QueryTimeout time.Duration
}

// Client talks to Nominatim and Overpass through a Downloader.
type Client struct {
	dl   Downloader
	opts Options
}

// NewClient creates a Client, filling in public endpoints for empty options.
func NewClient(dl Downloader, opts Options) *Client {
	if opts.NominatimURL == "" {
		opts.NominatimURL = defaultNominatimURL
	}
	if opts.OverpassURL == "" {
		opts.OverpassURL = defaultOverpassURL
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 3 * time.Minute
	}
	opts.NominatimURL = strings.TrimRight(opts.NominatimURL, "/")
	return &Client{dl: dl, opts: opts}
}

// Place is a geocoded place boundary.
type Place struct {
	DisplayName string
	Bound       orb.Bound
	Center      orb.Point
}

type nominatimResult struct {
	DisplayName string   `json:"display_name"`
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	BoundingBox []string `json:"boundingbox"`
}

// Geocode resolves a place name to its bounding box.
func (c *Client) Geocode(ctx context.Context, query string) (*Place, error) {
	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}
	reqURL := c.opts.NominatimURL + "/search?" + params.Encode()

	body, err := c.dl.Download(ctx, reqURL)
	if err != nil {
		return nil, eris.Wrapf(err, "osm: geocode %q", query)
	}
	defer body.Close() //nolint:errcheck

	var results []nominatimResult
	if err := json.NewDecoder(body).Decode(&results); err != nil {
		return nil, eris.Wrapf(err, "osm: decode geocode response for %q", query)
	}
	if len(results) == 0 {
		return nil, eris.Errorf("osm: place %q not found", query)
	}

	r := results[0]
	if len(r.BoundingBox) != 4 {
		return nil, eris.Errorf("osm: place %q has malformed bounding box", query)
	}
	vals := make([]float64, 4)
	for i, s := range r.BoundingBox {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "osm: parse bounding box for %q", query)
		}
		vals[i] = v
	}
	lat, _ := strconv.ParseFloat(r.Lat, 64)
	lon, _ := strconv.ParseFloat(r.Lon, 64)

	// Nominatim orders the box as [south, north, west, east].
	return &Place{
		DisplayName: r.DisplayName,
		Bound: orb.Bound{
			Min: orb.Point{vals[2], vals[0]},
			Max: orb.Point{vals[3], vals[1]},
		},
		Center: orb.Point{lon, lat},
	}, nil
}

// BufferedBound pads b by meters on every side.
func BufferedBound(b orb.Bound, meters float64) orb.Bound {
	if meters <= 0 {
		return b
	}
	return geo.BoundPad(b, meters)
}

// Element is one node or way from an Overpass JSON response.
type Element struct {
	Type  string            `json:"type"`
	ID    int64             `json:"id"`
	Lat   float64           `json:"lat,omitempty"`
	Lon   float64           `json:"lon,omitempty"`
	Nodes []int64           `json:"nodes,omitempty"`
	Tags  map[string]string `json:"tags,omitempty"`
}

// Response is the Overpass JSON envelope.
type Response struct {
	Remark   string    `json:"remark,omitempty"`
	Elements []Element `json:"elements"`
}

// Counts returns the number of node and way elements.
func (r *Response) Counts() (nodes, ways int) {
	for _, e := range r.Elements {
		switch e.Type {
		case "node":
			nodes++
		case "way":
			ways++
		}
	}
	return nodes, ways
}

// RoadQuery builds the Overpass QL for every highway way inside b plus the
// nodes they reference.
func RoadQuery(b orb.Bound, timeout time.Duration) string {
	return fmt.Sprintf(
		`[out:json][timeout:%d];(way["highway"](%s,%s,%s,%s););(._;>;);out body;`,
		int(timeout.Seconds()),
		ftoa(b.Min.Lat()), ftoa(b.Min.Lon()), ftoa(b.Max.Lat()), ftoa(b.Max.Lon()),
	)
}

// Roads downloads the highway ways and their nodes inside b.
func (c *Client) Roads(ctx context.Context, b orb.Bound) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.QueryTimeout+30*time.Second)
	defer cancel()

	q := RoadQuery(b, c.opts.QueryTimeout)
	reqURL := c.opts.OverpassURL + "?" + url.Values{"data": {q}}.Encode()

	log := zap.L().With(zap.String("component", "osm.overpass"))
	log.Info("requesting road network",
		zap.Float64("south", b.Min.Lat()),
		zap.Float64("west", b.Min.Lon()),
		zap.Float64("north", b.Max.Lat()),
		zap.Float64("east", b.Max.Lon()),
	)

	body, err := c.dl.Download(ctx, reqURL)
	if err != nil {
		return nil, eris.Wrap(err, "osm: overpass request")
	}
	defer body.Close() //nolint:errcheck

	var resp Response
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, eris.Wrap(err, "osm: decode overpass response")
	}
	if err := resilience.OverpassRemark(resp.Remark); err != nil {
		return nil, err
	}

	nodes, ways := resp.Counts()
	log.Info("road network received", zap.Int("nodes", nodes), zap.Int("ways", ways))
	return &resp, nil
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', 7, 64)
}
