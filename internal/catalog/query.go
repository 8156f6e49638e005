package catalog

import (
	"math"
	"strings"
	"time"
)

const earthRadiusKm = 6371

// SearchPhotos returns the photos whose title, date, time or address
// contains query, ignoring case. A blank query matches everything.
func (c *Catalog) SearchPhotos(query string) []Photo {
	return c.Filter(PhotoFilter{SearchText: query})
}

// FilterPhotosByDate returns the photos taken within [from, to].
func (c *Catalog) FilterPhotosByDate(from, to time.Time) []Photo {
	return c.Filter(PhotoFilter{DateFrom: &from, DateTo: &to})
}

// FilterPhotosByLocation returns the photos taken within radiusKm of the
// given point. Photos without a location never match.
func (c *Catalog) FilterPhotosByLocation(lat, lon, radiusKm float64) []Photo {
	return c.Filter(PhotoFilter{Near: &Radius{Latitude: lat, Longitude: lon, Km: radiusKm}})
}

// Radius is a circle on the earth's surface.
type Radius struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Km        float64 `json:"radius"`
}

// PhotoFilter combines the individual queries; unset fields match all.
type PhotoFilter struct {
	SearchText string
	DateFrom   *time.Time
	DateTo     *time.Time
	Near       *Radius
}

// Filter returns the photos matching every set field of f, newest first.
func (c *Catalog) Filter(f PhotoFilter) []Photo {
	q := strings.ToLower(strings.TrimSpace(f.SearchText))

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Photo, 0, len(c.photos))
	for _, p := range c.photos {
		if q != "" && !p.matches(q) {
			continue
		}
		if f.DateFrom != nil && p.Timestamp < f.DateFrom.UnixMilli() {
			continue
		}
		if f.DateTo != nil && p.Timestamp > f.DateTo.UnixMilli() {
			continue
		}
		if f.Near != nil {
			if p.Location == nil {
				continue
			}
			if DistanceKm(f.Near.Latitude, f.Near.Longitude, p.Location.Latitude, p.Location.Longitude) > f.Near.Km {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

func (p Photo) matches(lowerQuery string) bool {
	if strings.Contains(strings.ToLower(p.Title), lowerQuery) ||
		strings.Contains(strings.ToLower(p.Date), lowerQuery) ||
		strings.Contains(strings.ToLower(p.Time), lowerQuery) {
		return true
	}
	return p.Location != nil && strings.Contains(strings.ToLower(p.Location.Address), lowerQuery)
}

// DistanceKm is the haversine distance between two points in kilometres.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := deg2rad(lat2 - lat1)
	dLon := deg2rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(deg2rad(lat1))*math.Cos(deg2rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func deg2rad(deg float64) float64 {
	return deg * (math.Pi / 180)
}
