package core

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/rackplan/model"
)

// IsDualSided reports whether ports of device type t have independent front
// and back faces.
func IsDualSided(t model.DeviceType) bool {
	return t == model.DevicePatchPanel || t == model.DeviceOpticalDrawer
}

// SupportsSpeed reports whether links on device type t carry a negotiated
// speed that drives cable colour.
func SupportsSpeed(t model.DeviceType) bool {
	return t == model.DeviceSwitch
}

// PortCount returns how many ports of kind the device exposes. Power gear has
// no data ports regardless of what the record says.
func PortCount(d *model.Device, kind model.PortKind) int {
	if d == nil {
		return 0
	}
	switch d.Type {
	case model.DeviceUPS, model.DevicePowerStrip:
		return 0
	}
	switch kind {
	case model.PortEthernet:
		return max(d.EthPortCount, 0)
	case model.PortFiber:
		return max(d.FiberPortCount, 0)
	}
	return 0
}

// DefaultPortName is the generated name for a port.
func DefaultPortName(d *model.Device, kind model.PortKind, index int) string {
	switch d.Type {
	case model.DeviceSwitch:
		if kind == model.PortFiber {
			return fmt.Sprintf("Te1/0/%d", index)
		}
		return fmt.Sprintf("Gi1/0/%d", index)
	case model.DeviceServer:
		if kind == model.PortFiber {
			return fmt.Sprintf("sfp%d", index-1)
		}
		return fmt.Sprintf("eth%d", index-1)
	case model.DevicePatchPanel:
		if kind == model.PortFiber {
			return fmt.Sprintf("F%02d", index)
		}
		return fmt.Sprintf("P%02d", index)
	case model.DeviceOpticalDrawer:
		return fmt.Sprintf("LC%02d", index)
	}
	if kind == model.PortFiber {
		return fmt.Sprintf("Fiber %d", index)
	}
	return fmt.Sprintf("Port %d", index)
}

// DisplayName returns the user override for a port when present and not
// blank, else the default name.
func DisplayName(d *model.Device, kind model.PortKind, index int) string {
	return slotName(d, model.PortSlot{Kind: kind, Index: index})
}

func slotName(d *model.Device, slot model.PortSlot) string {
	if name, ok := d.PortNames[slot]; ok {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			return trimmed
		}
	}
	return DefaultPortName(d, slot.Kind, slot.Index)
}

// PortLabel is DisplayName plus the face for dual-sided ports.
func PortLabel(d *model.Device, p model.PortRef) string {
	name := slotName(d, p.Slot())
	if p.Side == model.SideNone {
		return name
	}
	return name + " (" + string(p.Side) + ")"
}

// Ports enumerates every addressable coordinate on d, front before back for
// dual-sided devices.
func Ports(d *model.Device) []model.PortRef {
	sides := []model.Side{model.SideNone}
	if IsDualSided(d.Type) {
		sides = []model.Side{model.SideFront, model.SideBack}
	}
	var out []model.PortRef
	for _, kind := range []model.PortKind{model.PortEthernet, model.PortFiber} {
		for i := 1; i <= PortCount(d, kind); i++ {
			for _, s := range sides {
				out = append(out, model.PortRef{DeviceID: d.ID, Kind: kind, Index: i, Side: s})
			}
		}
	}
	return out
}

// ValidatePort checks that p addresses a port that exists on d right now.
func ValidatePort(d *model.Device, p model.PortRef) error {
	if d == nil || d.ID != p.DeviceID {
		return fmt.Errorf("%w: %s: device not found", ErrPortOutOfRange, p)
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("%w: %s: unknown port kind", ErrPortOutOfRange, p)
	}
	if n := PortCount(d, p.Kind); p.Index < 1 || p.Index > n {
		return fmt.Errorf("%w: %s: index outside 1..%d", ErrPortOutOfRange, p, n)
	}
	if IsDualSided(d.Type) {
		if p.Side != model.SideFront && p.Side != model.SideBack {
			return fmt.Errorf("%w: %s: dual-sided port needs front or back", ErrPortOutOfRange, p)
		}
	} else if p.Side != model.SideNone {
		return fmt.Errorf("%w: %s: %s ports have no side", ErrPortOutOfRange, p, d.Type)
	}
	return nil
}

// NormalizeSide fits p's side to d: cleared on single-sided devices, front
// when missing on dual-sided ones.
func NormalizeSide(d *model.Device, p model.PortRef) model.PortRef {
	if d == nil {
		return p
	}
	if !IsDualSided(d.Type) {
		p.Side = model.SideNone
	} else if p.Side == model.SideNone {
		p.Side = model.SideFront
	}
	return p
}
