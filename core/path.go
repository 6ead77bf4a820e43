package core

import (
	"fmt"

	"github.com/signalsfoundry/rackplan/model"
)

// PathSegment is one port on a traced cable run.
type PathSegment struct {
	DeviceID   string           `json:"device_id"`
	DeviceName string           `json:"device_name"`
	DeviceType model.DeviceType `json:"device_type"`
	Group      Group            `json:"group"`
	Port       model.PortRef    `json:"port"`
	Label      string           `json:"label"`
	// LinkID is the active link plugged into this port, if any.
	LinkID string `json:"link_id,omitempty"`
}

// TracePath follows active links from start. Cables terminate at
// single-sided devices; at a dual-sided device the run passes from one face
// to the opposite face of the same port and continues. When start is itself
// on a dual-sided device the run is followed both ways and joined.
//
// Every port coordinate appears at most once, so miswired loops terminate.
func TracePath(devices map[string]*model.Device, active *ActiveSet, start model.PortRef) ([]PathSegment, error) {
	d := devices[start.DeviceID]
	if d == nil {
		return nil, fmt.Errorf("%w: %s: device not found", ErrPortOutOfRange, start)
	}
	start = NormalizeSide(d, start)
	if err := ValidatePort(d, start); err != nil {
		return nil, err
	}

	w := &walker{devices: devices, active: active, visited: make(map[string]struct{})}
	forward := w.walk(start)
	if !IsDualSided(d.Type) {
		return forward, nil
	}

	opposite := start
	opposite.Side = start.Side.Opposite()
	backward := w.walk(opposite)
	out := make([]PathSegment, 0, len(backward)+len(forward))
	for i := len(backward) - 1; i >= 0; i-- {
		out = append(out, backward[i])
	}
	return append(out, forward...), nil
}

type walker struct {
	devices map[string]*model.Device
	active  *ActiveSet
	visited map[string]struct{}
}

// visit marks p and reports whether it was new.
func (w *walker) visit(p model.PortRef) bool {
	k := p.Key()
	if _, seen := w.visited[k]; seen {
		return false
	}
	w.visited[k] = struct{}{}
	return true
}

func (w *walker) walk(from model.PortRef) []PathSegment {
	var segs []PathSegment
	cur := from
	for {
		if !w.visit(cur) {
			return segs
		}
		segs = append(segs, w.segment(cur))

		peer, ok := w.active.Peer(cur)
		if !ok {
			return segs
		}
		if !w.visit(peer) {
			return segs
		}
		segs = append(segs, w.segment(peer))

		pd := w.devices[peer.DeviceID]
		if pd == nil || !IsDualSided(pd.Type) {
			return segs
		}
		cur = peer
		cur.Side = peer.Side.Opposite()
	}
}

func (w *walker) segment(p model.PortRef) PathSegment {
	d := w.devices[p.DeviceID]
	seg := PathSegment{
		DeviceID:   d.ID,
		DeviceName: deviceLabel(d),
		DeviceType: d.Type,
		Group:      Classify(d.Type),
		Port:       p,
		Label:      deviceLabel(d) + " " + PortLabel(d, p),
	}
	if l, ok := w.active.LinkAt(p); ok {
		seg.LinkID = l.ID
	}
	return seg
}

// Trace resolves and orients the cable run through start using current
// store contents.
func (e *Engine) Trace(start model.PortRef) ([]PathSegment, error) {
	snap, err := e.load()
	if err != nil {
		return nil, err
	}
	segs, err := TracePath(snap.devices, snap.active, start)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.ObserveTraceLength(len(segs))
	}
	return Orient(segs), nil
}
