package model

import (
	"fmt"
	"strconv"
	"strings"
)

// PortKind distinguishes copper from fiber ports.
type PortKind string

const (
	PortEthernet PortKind = "ethernet"
	PortFiber    PortKind = "fiber"
)

// Valid reports whether k is a known port kind.
func (k PortKind) Valid() bool {
	return k == PortEthernet || k == PortFiber
}

// Side selects one face of a dual-sided port. Single-sided devices always use
// SideNone.
type Side string

const (
	SideNone  Side = ""
	SideFront Side = "front" // female / patch face
	SideBack  Side = "back"  // cabling face
)

// Opposite returns the other face of a dual-sided port.
func (s Side) Opposite() Side {
	switch s {
	case SideFront:
		return SideBack
	case SideBack:
		return SideFront
	default:
		return SideNone
	}
}

// PortRef addresses one connection endpoint. It is a coordinate, not a stored
// entity: two refs are the same endpoint iff every field matches.
type PortRef struct {
	DeviceID string   `json:"device_id" toml:"device_id"`
	Kind     PortKind `json:"kind" toml:"kind"`
	Index    int      `json:"index" toml:"index"`
	Side     Side     `json:"side,omitempty" toml:"side"`
}

// Key returns a stable string key for the coordinate.
func (p PortRef) Key() string {
	return p.DeviceID + "|" + string(p.Kind) + "|" + strconv.Itoa(p.Index) + "|" + string(p.Side)
}

// Slot drops the device and side, leaving the per-device port address.
func (p PortRef) Slot() PortSlot {
	return PortSlot{Kind: p.Kind, Index: p.Index}
}

func (p PortRef) String() string {
	if p.Side == SideNone {
		return fmt.Sprintf("%s:%s/%d", p.DeviceID, p.Kind, p.Index)
	}
	return fmt.Sprintf("%s:%s/%d(%s)", p.DeviceID, p.Kind, p.Index, p.Side)
}

// PortSlot is a port address within one device. It keys the port-name
// override map.
type PortSlot struct {
	Kind  PortKind
	Index int
}

func (s PortSlot) String() string {
	return fmt.Sprintf("%s/%d", s.Kind, s.Index)
}

// MarshalText encodes the slot as "kind/index" so it can key JSON and TOML maps.
func (s PortSlot) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses "kind/index".
func (s *PortSlot) UnmarshalText(text []byte) error {
	kind, idx, ok := strings.Cut(string(text), "/")
	if !ok {
		return fmt.Errorf("port slot %q: want kind/index", text)
	}
	n, err := strconv.Atoi(idx)
	if err != nil {
		return fmt.Errorf("port slot %q: %w", text, err)
	}
	k := PortKind(kind)
	if !k.Valid() {
		return fmt.Errorf("port slot %q: unknown kind %q", text, kind)
	}
	s.Kind = k
	s.Index = n
	return nil
}
