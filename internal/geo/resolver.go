// Package geo resolves ZIP-to-listing distances for radius search. It works
// off ZIP centroids rather than a geocoding API: close enough for "within N
// miles" shopping, and it keeps search serving local.
package geo

import (
	"context"
	"fmt"
	"math"

	"github.com/david/car-finder/internal/models"
)

// earthRadiusMiles for haversine.
const earthRadiusMiles = 3959

// CentroidSource looks up the centroid of a ZIP code. ok=false means the
// ZIP is unknown, which is not an error.
type CentroidSource interface {
	Centroid(ctx context.Context, zip string) (lat, lng float64, ok bool, err error)
}

// ZipResolver computes great-circle miles between a query ZIP and a
// listing. It prefers the listing's own coordinates and falls back to the
// centroid of the listing's ZIP when the vehicle was never geocoded.
// A nil result means "undetermined": unknown query ZIP, unknown listing
// location, or both.
type ZipResolver struct {
	source CentroidSource
}

func NewZipResolver(source CentroidSource) *ZipResolver {
	return &ZipResolver{source: source}
}

func (r *ZipResolver) Distance(ctx context.Context, fromZip string, l models.Listing) (*float64, error) {
	fromLat, fromLng, ok, err := r.source.Centroid(ctx, fromZip)
	if err != nil {
		return nil, fmt.Errorf("centroid lookup for %s: %w", fromZip, err)
	}
	if !ok {
		return nil, nil
	}

	toLat, toLng := l.Latitude, l.Longitude
	if !l.HasCoords() {
		if l.Zip == "" {
			return nil, nil
		}
		toLat, toLng, ok, err = r.source.Centroid(ctx, l.Zip)
		if err != nil {
			return nil, fmt.Errorf("centroid lookup for %s: %w", l.Zip, err)
		}
		if !ok {
			return nil, nil
		}
	}

	d := haversineMiles(fromLat, fromLng, toLat, toLng)
	return &d, nil
}

func haversineMiles(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMiles * c
}
