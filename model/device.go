package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DeviceType is the closed set of rack item kinds.
type DeviceType string

const (
	DeviceSwitch        DeviceType = "switch"
	DeviceServer        DeviceType = "server"
	DevicePatchPanel    DeviceType = "patch-panel"
	DeviceOpticalDrawer DeviceType = "optical-drawer"
	DeviceUPS           DeviceType = "ups"
	DevicePowerStrip    DeviceType = "power-strip"
	DeviceMisc          DeviceType = "misc"
)

// DeviceTypes lists every valid DeviceType.
var DeviceTypes = []DeviceType{
	DeviceSwitch,
	DeviceServer,
	DevicePatchPanel,
	DeviceOpticalDrawer,
	DeviceUPS,
	DevicePowerStrip,
	DeviceMisc,
}

// Valid reports whether t belongs to the closed set.
func (t DeviceType) Valid() bool {
	for _, v := range DeviceTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ParseDeviceType is tolerant of case and of "_" / " " separators.
func ParseDeviceType(s string) (DeviceType, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer("_", "-", " ", "-").Replace(v)
	t := DeviceType(v)
	if !t.Valid() {
		return "", fmt.Errorf("unknown device type %q", s)
	}
	return t, nil
}

// Device is a rack item occupying UnitStart..UnitStart+UnitSize-1.
type Device struct {
	ID             string
	RackID         string
	Name           string
	Type           DeviceType
	UnitStart      int
	UnitSize       int
	EthPortCount   int
	FiberPortCount int

	// PortNames holds user overrides of generated port names. Missing or
	// blank entries fall back to the default name.
	PortNames map[PortSlot]string

	// Details carries the attributes only some device types have. It is nil
	// or matches Type.
	Details DeviceDetails
}

// UnitEnd is the highest unit the device occupies.
func (d *Device) UnitEnd() int {
	return d.UnitStart + d.UnitSize - 1
}

// Clone returns a deep copy of the device.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	c := *d
	if d.PortNames != nil {
		c.PortNames = make(map[PortSlot]string, len(d.PortNames))
		for k, v := range d.PortNames {
			c.PortNames[k] = v
		}
	}
	return &c
}

// SetPortName records an override; a blank name removes it.
func (d *Device) SetPortName(slot PortSlot, name string) {
	if strings.TrimSpace(name) == "" {
		delete(d.PortNames, slot)
		return
	}
	if d.PortNames == nil {
		d.PortNames = make(map[PortSlot]string)
	}
	d.PortNames[slot] = name
}

// Validate checks the record in isolation; placement against a rack is the
// allocator's job.
func (d *Device) Validate() error {
	switch {
	case d == nil:
		return fmt.Errorf("device is nil")
	case strings.TrimSpace(d.ID) == "":
		return fmt.Errorf("device id is required")
	case !d.Type.Valid():
		return fmt.Errorf("device %q: unknown type %q", d.ID, d.Type)
	case d.UnitSize < 1:
		return fmt.Errorf("device %q: unit size %d < 1", d.ID, d.UnitSize)
	case d.UnitStart < 1:
		return fmt.Errorf("device %q: unit start %d < 1", d.ID, d.UnitStart)
	case d.UnitStart > MaxDeviceUnit || d.UnitSize > MaxDeviceUnit:
		return fmt.Errorf("device %q: unit range U%d+%d exceeds U%d", d.ID, d.UnitStart, d.UnitSize, MaxDeviceUnit)
	case d.EthPortCount < 0 || d.FiberPortCount < 0:
		return fmt.Errorf("device %q: negative port count", d.ID)
	}
	if d.Details != nil && !d.Details.appliesTo(d.Type) {
		return fmt.Errorf("device %q: %T details do not apply to type %q", d.ID, d.Details, d.Type)
	}
	return nil
}

type deviceJSON struct {
	ID             string              `json:"id"`
	RackID         string              `json:"rack_id"`
	Name           string              `json:"name,omitempty"`
	Type           DeviceType          `json:"type"`
	UnitStart      int                 `json:"unit_start"`
	UnitSize       int                 `json:"unit_size"`
	EthPortCount   int                 `json:"eth_port_count"`
	FiberPortCount int                 `json:"fiber_port_count"`
	PortNames      map[PortSlot]string `json:"port_names,omitempty"`
	Details        json.RawMessage     `json:"details,omitempty"`
}

// MarshalJSON encodes Details as an object interpreted by Type.
func (d Device) MarshalJSON() ([]byte, error) {
	out := deviceJSON{
		ID:             d.ID,
		RackID:         d.RackID,
		Name:           d.Name,
		Type:           d.Type,
		UnitStart:      d.UnitStart,
		UnitSize:       d.UnitSize,
		EthPortCount:   d.EthPortCount,
		FiberPortCount: d.FiberPortCount,
		PortNames:      d.PortNames,
	}
	if d.Details != nil {
		raw, err := json.Marshal(d.Details)
		if err != nil {
			return nil, err
		}
		out.Details = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes Details according to the "type" field.
func (d *Device) UnmarshalJSON(data []byte) error {
	var in deviceJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	details, err := DetailsFromJSON(in.Type, in.Details)
	if err != nil {
		return err
	}
	*d = Device{
		ID:             in.ID,
		RackID:         in.RackID,
		Name:           in.Name,
		Type:           in.Type,
		UnitStart:      in.UnitStart,
		UnitSize:       in.UnitSize,
		EthPortCount:   in.EthPortCount,
		FiberPortCount: in.FiberPortCount,
		PortNames:      in.PortNames,
		Details:        details,
	}
	return nil
}
