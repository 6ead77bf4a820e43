package core

import (
	"sort"

	"github.com/signalsfoundry/rackplan/model"
)

// DropReason says why a stored link is not part of the active set.
type DropReason string

const (
	DropMissingDevice DropReason = "missing_device"
	DropPortRange     DropReason = "port_out_of_range"
	DropSelfLoop      DropReason = "self_loop"
	DropSuperseded    DropReason = "superseded"
)

// DroppedLink is a stored link excluded from the active set.
type DroppedLink struct {
	Link   *model.Link
	Reason DropReason
}

// ActiveSet is the deduplicated, stale-free view of links. At most one link
// is attached to any port coordinate. Links are normalized copies; the
// stored records are never modified.
type ActiveSet struct {
	links   []*model.Link
	byPort  map[string]*model.Link
	dropped []DroppedLink
}

// DeriveActiveLinks builds the active set from the current devices (keyed by
// ID) and every stored link.
//
//  1. links whose devices are gone or whose ports exceed current counts drop
//  2. sides are normalized to the device's sidedness
//  3. newest link wins each endpoint; a link is kept only if both of its
//     endpoints are still unclaimed
func DeriveActiveLinks(devices map[string]*model.Device, links []*model.Link) *ActiveSet {
	set := &ActiveSet{byPort: make(map[string]*model.Link)}

	candidates := make([]*model.Link, 0, len(links))
	for _, stored := range links {
		if stored == nil {
			continue
		}
		link := stored.Clone()
		from, reason := normalizeEndpoint(devices, link.From)
		if reason == "" {
			link.From = from
			link.To, reason = normalizeEndpoint(devices, link.To)
		}
		if reason == "" && link.From == link.To {
			reason = DropSelfLoop
		}
		if reason != "" {
			set.dropped = append(set.dropped, DroppedLink{Link: stored, Reason: reason})
			continue
		}
		candidates = append(candidates, link)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	for _, link := range candidates {
		fromKey, toKey := link.From.Key(), link.To.Key()
		_, fromTaken := set.byPort[fromKey]
		_, toTaken := set.byPort[toKey]
		if fromTaken || toTaken {
			set.dropped = append(set.dropped, DroppedLink{Link: link, Reason: DropSuperseded})
			continue
		}
		set.byPort[fromKey] = link
		set.byPort[toKey] = link
		set.links = append(set.links, link)
	}

	return set
}

// normalizeEndpoint resolves p against the current device set.
func normalizeEndpoint(devices map[string]*model.Device, p model.PortRef) (model.PortRef, DropReason) {
	d, ok := devices[p.DeviceID]
	if !ok || d == nil {
		return p, DropMissingDevice
	}
	p = NormalizeSide(d, p)
	if err := ValidatePort(d, p); err != nil {
		return p, DropPortRange
	}
	return p, ""
}

// Links returns the active links, newest first.
func (s *ActiveSet) Links() []*model.Link {
	out := make([]*model.Link, len(s.links))
	copy(out, s.links)
	return out
}

// Len is the number of active links.
func (s *ActiveSet) Len() int { return len(s.links) }

// Dropped returns the stored links excluded from the set with the reason.
func (s *ActiveSet) Dropped() []DroppedLink {
	out := make([]DroppedLink, len(s.dropped))
	copy(out, s.dropped)
	return out
}

// LinkAt returns the active link attached to p.
func (s *ActiveSet) LinkAt(p model.PortRef) (*model.Link, bool) {
	l, ok := s.byPort[p.Key()]
	return l, ok
}

// IsConnected reports whether p has an active link.
func (s *ActiveSet) IsConnected(p model.PortRef) bool {
	_, ok := s.byPort[p.Key()]
	return ok
}

// Peer returns the port at the far end of p's active link.
func (s *ActiveSet) Peer(p model.PortRef) (model.PortRef, bool) {
	l, ok := s.byPort[p.Key()]
	if !ok {
		return model.PortRef{}, false
	}
	return l.Other(p)
}
