package geofence

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"
)

// DefaultLocationTimeout bounds a single location acquisition.
const DefaultLocationTimeout = 10 * time.Second

var (
	// ErrRequestInProgress rejects overlapping location requests; callers
	// retry rather than queue.
	ErrRequestInProgress = errors.New("a location request is already in progress")
	// ErrLocationTimeout means the provider did not answer within the bound.
	ErrLocationTimeout = errors.New("location request timed out")
)

// Fix is one device location sample. AccuracyM is the reported horizontal
// accuracy radius; a negative value marks the fix invalid.
type Fix struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	AccuracyM float64 `json:"accuracy_m"`
}

// LocationProvider yields a single current-location fix. Implementations may
// block until the fix arrives or ctx expires.
type LocationProvider interface {
	CurrentLocation(ctx context.Context) (Fix, error)
}

// StaticProvider returns a fixed value, typically the fix a client reported
// with its check-in request.
type StaticProvider Fix

func (p StaticProvider) CurrentLocation(context.Context) (Fix, error) {
	return Fix(p), nil
}

// SingleFlight wraps a provider so that at most one request runs at a time.
// A second caller gets ErrRequestInProgress immediately instead of waiting
// behind hardware that may take the full timeout.
type SingleFlight struct {
	inner LocationProvider
	busy  atomic.Bool
}

// NewSingleFlight wraps inner.
func NewSingleFlight(inner LocationProvider) *SingleFlight {
	return &SingleFlight{inner: inner}
}

func (p *SingleFlight) CurrentLocation(ctx context.Context) (Fix, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return Fix{}, ErrRequestInProgress
	}
	defer p.busy.Store(false)
	return p.inner.CurrentLocation(ctx)
}

const earthRadiusMeters = 6371000

// Distance returns the great-circle distance in meters between two
// coordinates (haversine).
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
