package model

// Rack is a fixed-capacity column of rack units. Units are numbered from 1
// (bottom) to TotalUnits (top).
type Rack struct {
	ID         string `json:"id" toml:"id"`
	Name       string `json:"name,omitempty" toml:"name"`
	TotalUnits int    `json:"total_units" toml:"total_units"`
}

// DefaultRackUnits is the capacity given to racks created lazily on first
// reference.
const DefaultRackUnits = 42

// MaxDeviceUnit bounds a device's start and height so its unit range
// cannot overflow.
const MaxDeviceUnit = 1 << 16
