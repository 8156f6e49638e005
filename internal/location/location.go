package location

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"photo-gallery/internal/logging"
)

// Location is where a photo was taken.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Resolver produces the current location, or nil when it is unknown.
// Implementations never fail; every error collapses to nil.
type Resolver interface {
	Resolve(ctx context.Context) *Location
}

// Device is the positioning hardware.
type Device interface {
	RequestPermission(ctx context.Context) (bool, error)
	CurrentPosition(ctx context.Context) (lat, lon float64, err error)
}

// Address is a reverse-geocoding result.
type Address struct {
	Street       string
	StreetNumber string
	City         string
	Region       string
}

// String formats the address as "street number, city, region".
func (a Address) String() string {
	return strings.TrimSpace(fmt.Sprintf("%s %s, %s, %s", a.Street, a.StreetNumber, a.City, a.Region))
}

// Geocoder turns coordinates into addresses.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) ([]Address, error)
}

// ErrPermissionDenied is returned by devices that refuse positioning.
var ErrPermissionDenied = errors.New("location permission denied")

// Pipeline resolves a location by asking Device for permission and a
// position and then Geocoder, if set, for an address.
type Pipeline struct {
	Device   Device
	Geocoder Geocoder
	// Timeout bounds the whole resolution; zero means no extra bound.
	Timeout time.Duration
}

var log = logging.For("location")

// Resolve implements Resolver.
func (p *Pipeline) Resolve(ctx context.Context) *Location {
	if p == nil || p.Device == nil {
		return nil
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	granted, err := p.Device.RequestPermission(ctx)
	if err != nil || !granted {
		if err == nil {
			err = ErrPermissionDenied
		}
		log.Debug("no location: %v", err)
		return nil
	}

	lat, lon, err := p.Device.CurrentPosition(ctx)
	if err != nil {
		log.Warn("error getting location: %v", err)
		return nil
	}

	loc := &Location{Latitude: lat, Longitude: lon}
	if p.Geocoder == nil {
		return loc
	}

	addrs, err := p.Geocoder.Reverse(ctx, lat, lon)
	if err != nil {
		log.Warn("error getting address: %v", err)
		return loc
	}
	if len(addrs) > 0 {
		loc.Address = addrs[0].String()
	}
	return loc
}

// Static is a Device and Geocoder for a machine with a fixed, configured
// position.
type Static struct {
	Latitude  float64
	Longitude float64
	Address   string
}

// RequestPermission implements Device.
func (s Static) RequestPermission(context.Context) (bool, error) { return true, nil }

// CurrentPosition implements Device.
func (s Static) CurrentPosition(ctx context.Context) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	return s.Latitude, s.Longitude, nil
}

// Reverse implements Geocoder.
func (s Static) Reverse(context.Context, float64, float64) ([]Address, error) {
	if s.Address == "" {
		return nil, nil
	}
	return []Address{{Street: s.Address}}, nil
}

// NewStatic returns a resolver that always reports the given position.
func NewStatic(lat, lon float64, address string) *Pipeline {
	s := Static{Latitude: lat, Longitude: lon, Address: address}
	return &Pipeline{Device: s, Geocoder: s}
}

// None is a Resolver for machines without a position.
type None struct{}

// Resolve implements Resolver.
func (None) Resolve(context.Context) *Location { return nil }
