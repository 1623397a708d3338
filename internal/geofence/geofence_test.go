package geofence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var itb = Building{Code: "ITB", Name: "Information Technology Building", Lat: 43.2585, Lon: -79.9201, RadiusMeters: 150}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "ITB", want: "ITB"},
		{in: "itb", want: "ITB"},
		{in: " itb 237 ", want: "ITB"},
		{in: "T-13", want: "T"},
		{in: "123", want: ""},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeCode(tt.in), "NormalizeCode(%q)", tt.in)
	}
}

func TestDirectoryLookup(t *testing.T) {
	dir := NewDirectory([]Building{itb})

	b, ok := dir.Lookup("itb")
	require.True(t, ok)
	assert.Equal(t, "ITB", b.Code)

	_, ok = dir.Lookup("JHE")
	assert.False(t, ok)
}

func TestEffectiveRadius(t *testing.T) {
	assert.Equal(t, float64(150), itb.EffectiveRadius())
	assert.Equal(t, float64(DefaultRadiusMeters), Building{Code: "X"}.EffectiveRadius())
}

func TestDistanceSanity(t *testing.T) {
	// same point
	assert.InDelta(t, 0, Distance(43.2585, -79.9201, 43.2585, -79.9201), 0.001)
	// one degree of latitude is about 111.2 km
	assert.InDelta(t, 111195, Distance(0, 0, 1, 0), 200)
}

func TestValidateUnknownBuilding(t *testing.T) {
	v := NewValidator(NewDirectory(nil))
	err := v.Validate(context.Background(), "ITB", StaticProvider{Lat: itb.Lat, Lon: itb.Lon, AccuracyM: 10})
	assert.ErrorIs(t, err, ErrUnknownBuilding)
}

func TestValidateNoBuildingCode(t *testing.T) {
	v := NewValidator(NewDirectory([]Building{itb}))
	err := v.Validate(context.Background(), "", StaticProvider{AccuracyM: 10})
	assert.ErrorIs(t, err, ErrNoBuildingCode)

	// digits-only codes normalize to nothing
	err = v.Validate(context.Background(), "1234", StaticProvider{AccuracyM: 10})
	assert.ErrorIs(t, err, ErrNoBuildingCode)
}

func TestValidatePoorAccuracy(t *testing.T) {
	v := NewValidator(NewDirectory([]Building{itb}))

	// standing exactly on the building does not rescue a vague fix
	err := v.Validate(context.Background(), "ITB", StaticProvider{Lat: itb.Lat, Lon: itb.Lon, AccuracyM: 300})
	assert.ErrorIs(t, err, ErrPoorAccuracy)

	err = v.Validate(context.Background(), "ITB", StaticProvider{Lat: itb.Lat, Lon: itb.Lon, AccuracyM: -1})
	assert.ErrorIs(t, err, ErrPoorAccuracy)

	// 250m is the inclusive limit
	err = v.Validate(context.Background(), "ITB", StaticProvider{Lat: itb.Lat, Lon: itb.Lon, AccuracyM: 250})
	assert.NoError(t, err)
}

func TestValidateRadiusBoundary(t *testing.T) {
	// a fix a couple hundred meters north of the building
	fix := StaticProvider{Lat: itb.Lat + 0.002, Lon: itb.Lon, AccuracyM: 10}
	d := Distance(fix.Lat, fix.Lon, itb.Lat, itb.Lon)
	require.Greater(t, d, float64(100))

	within := itb
	within.RadiusMeters = d // distance == radius is allowed
	v := NewValidator(NewDirectory([]Building{within}))
	assert.NoError(t, v.Validate(context.Background(), "ITB", fix))

	outside := itb
	outside.RadiusMeters = d - 1
	v = NewValidator(NewDirectory([]Building{outside}))
	err := v.Validate(context.Background(), "ITB", fix)
	var tooFar *TooFarError
	require.ErrorAs(t, err, &tooFar)
	assert.InDelta(t, d, tooFar.DistanceMeters, 0.01)
	assert.InDelta(t, d-1, tooFar.RadiusMeters, 0.01)
}

type blockingProvider struct{}

func (blockingProvider) CurrentLocation(ctx context.Context) (Fix, error) {
	<-ctx.Done()
	return Fix{}, ctx.Err()
}

func TestValidateLocationTimeout(t *testing.T) {
	v := NewValidator(NewDirectory([]Building{itb}))
	v.timeout = 20 * time.Millisecond

	err := v.Validate(context.Background(), "ITB", blockingProvider{})
	assert.ErrorIs(t, err, ErrLocationTimeout)
}

func TestSingleFlightRejectsOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	slow := providerFunc(func(ctx context.Context) (Fix, error) {
		started <- struct{}{}
		<-release
		return Fix{AccuracyM: 10}, nil
	})
	sf := NewSingleFlight(slow)

	type result struct {
		fix Fix
		err error
	}
	first := make(chan result, 1)
	go func() {
		fix, err := sf.CurrentLocation(context.Background())
		first <- result{fix, err}
	}()

	<-started
	_, err := sf.CurrentLocation(context.Background())
	assert.ErrorIs(t, err, ErrRequestInProgress)

	close(release)
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, float64(10), res.fix.AccuracyM)

	// free again once the first request finished
	_, err = sf.CurrentLocation(context.Background())
	assert.NoError(t, err)
}

type providerFunc func(ctx context.Context) (Fix, error)

func (f providerFunc) CurrentLocation(ctx context.Context) (Fix, error) { return f(ctx) }
