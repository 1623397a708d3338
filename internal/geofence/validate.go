package geofence

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxAccuracyMeters is the worst horizontal accuracy accepted for a fix.
const MaxAccuracyMeters = 250

var (
	// ErrNoBuildingCode denies check-in for classes without a building.
	ErrNoBuildingCode = errors.New("no building code on this class")
	// ErrUnknownBuilding denies codes absent from the directory.
	ErrUnknownBuilding = errors.New("unknown building code")
	// ErrPoorAccuracy denies fixes too vague to trust.
	ErrPoorAccuracy = errors.New("location fix too inaccurate")
)

// TooFarError reports the measured distance so the denial message can show
// how far off the user was.
type TooFarError struct {
	DistanceMeters float64
	RadiusMeters   float64
}

func (e *TooFarError) Error() string {
	return fmt.Sprintf("too far from building: %.0fm away (allowed %.0fm)", e.DistanceMeters, e.RadiusMeters)
}

// Validator checks that the device is physically near a class's building.
type Validator struct {
	dir     *Directory
	timeout time.Duration
}

// NewValidator builds a validator over the directory.
func NewValidator(dir *Directory) *Validator {
	return &Validator{dir: dir, timeout: DefaultLocationTimeout}
}

// Validate denies or allows a check-in against the building for rawCode.
// nil means the user is inside the fence; the distance==radius boundary is
// allowed. Every denial is retryable and leaves no state behind.
func (v *Validator) Validate(ctx context.Context, rawCode string, provider LocationProvider) error {
	code := NormalizeCode(rawCode)
	if code == "" {
		return ErrNoBuildingCode
	}
	building, ok := v.dir.Lookup(code)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBuilding, code)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	fix, err := provider.CurrentLocation(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrLocationTimeout
		}
		return err
	}

	if fix.AccuracyM < 0 || fix.AccuracyM > MaxAccuracyMeters {
		return fmt.Errorf("%w: ±%.0fm", ErrPoorAccuracy, fix.AccuracyM)
	}

	d := Distance(fix.Lat, fix.Lon, building.Lat, building.Lon)
	if radius := building.EffectiveRadius(); d > radius {
		return &TooFarError{DistanceMeters: d, RadiusMeters: radius}
	}
	return nil
}
