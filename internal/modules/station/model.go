// README: Station catalog entries: fixed service points with a catchment radius.
package station

import (
	"errors"
	"fmt"

	"stationq/internal/modules/location"
	"stationq/internal/types"
)

var (
	ErrNotFound       = errors.New("station not found")
	ErrInvalidStation = errors.New("invalid station")
)

// Station is immutable once loaded into a Directory.
type Station struct {
	ID           types.ID    `json:"id" koanf:"id" yaml:"id" validate:"required"`
	Name         string      `json:"name" koanf:"name" yaml:"name"`
	Location     types.Point `json:"location" koanf:"location" yaml:"location"`
	RadiusMeters float64     `json:"radius_m" koanf:"radius_m" yaml:"radius_m" validate:"gt=0"`
}

// Validate checks the fields the resolver relies on.
func (s Station) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidStation)
	}
	if err := location.ValidatePoint(s.Location); err != nil {
		return fmt.Errorf("%w %s: %v", ErrInvalidStation, s.ID, err)
	}
	if !(s.RadiusMeters > 0) {
		return fmt.Errorf("%w %s: radius must be > 0, got %v", ErrInvalidStation, s.ID, s.RadiusMeters)
	}
	return nil
}
