package gps

import (
	"math"
	"time"
)

// Fix is a single reported position. Lat and Lon are NaN when the provider
// has no value for them.
type Fix struct {
	Lat    float64
	Lon    float64
	Status int // gpsd mode: 0 unknown, 1 no fix, 2 2D, 3 3D

	Time       time.Time
	AltFeet    *int
	GroundKt   *float64
	TrackDeg   *float64
	Satellites *int
}

// Valid reports whether both coordinates are finite.
func (f Fix) Valid() bool {
	return finite(f.Lat) && finite(f.Lon)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

type UpdateKind int

const (
	NoUpdate UpdateKind = iota
	FixAvailable
)

func (k UpdateKind) String() string {
	switch k {
	case NoUpdate:
		return "no_update"
	case FixAvailable:
		return "fix_available"
	default:
		return "unknown"
	}
}

// Update is the outcome of one successful Session.Read.
type Update struct {
	Kind UpdateKind
	Fix  Fix
}
