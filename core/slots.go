package core

import "github.com/signalsfoundry/rackplan/model"

// SlotAllocator answers occupancy queries for one rack. It is a pure view
// over the devices it was built from and never mutates them.
type SlotAllocator struct {
	rackID     string
	totalUnits int
	devices    []*model.Device
}

// NewSlotAllocator builds an allocator for rack from its devices. Devices
// belonging to other racks are ignored.
func NewSlotAllocator(rack *model.Rack, devices []*model.Device) *SlotAllocator {
	a := &SlotAllocator{}
	if rack == nil {
		return a
	}
	a.rackID = rack.ID
	a.totalUnits = rack.TotalUnits
	for _, d := range devices {
		if d == nil || d.RackID != rack.ID || d.UnitSize < 1 {
			continue
		}
		a.devices = append(a.devices, d)
	}
	return a
}

// TotalUnits is the rack capacity.
func (a *SlotAllocator) TotalUnits() int { return a.totalUnits }

// Without returns an allocator that ignores deviceID's footprint.
func (a *SlotAllocator) Without(deviceID string) *SlotAllocator {
	out := &SlotAllocator{rackID: a.rackID, totalUnits: a.totalUnits}
	for _, d := range a.devices {
		if d.ID != deviceID {
			out.devices = append(out.devices, d)
		}
	}
	return out
}

// IsFree reports whether [start, start+size-1] lies inside the rack and
// intersects no device other than excludeID.
func (a *SlotAllocator) IsFree(start, size int, excludeID string) bool {
	if size < 1 || start < 1 || size > a.totalUnits || start > a.totalUnits-size+1 {
		return false
	}
	end := start + size - 1
	for _, d := range a.devices {
		if excludeID != "" && d.ID == excludeID {
			continue
		}
		if start <= d.UnitEnd() && d.UnitStart <= end {
			return false
		}
	}
	return true
}

// FirstFit returns the lowest free start for size.
func (a *SlotAllocator) FirstFit(size int) (int, bool) {
	if size < 1 || size > a.totalUnits {
		return 0, false
	}
	for start := 1; start <= a.totalUnits-size+1; start++ {
		if a.IsFree(start, size, "") {
			return start, true
		}
	}
	return 0, false
}

// NearestFit returns the free start closest to target, probing
// target+1, target-1, target+2, ... after clamping target into range. Ties
// go to the higher unit.
func (a *SlotAllocator) NearestFit(target, size int) (int, bool) {
	if size < 1 {
		return 0, false
	}
	maxStart := a.totalUnits - size + 1
	if maxStart < 1 {
		return 0, false
	}
	clamped := min(max(target, 1), maxStart)
	if a.IsFree(clamped, size, "") {
		return clamped, true
	}

	for off := 1; off <= maxStart; off++ {
		up, down := clamped+off, clamped-off
		if up > maxStart && down < 1 {
			break
		}
		if up <= maxStart && a.IsFree(up, size, "") {
			return up, true
		}
		if down >= 1 && a.IsFree(down, size, "") {
			return down, true
		}
	}
	return 0, false
}

// MaxContiguousFree is the longest run of consecutive free units.
func (a *SlotAllocator) MaxContiguousFree() int {
	if a.totalUnits < 1 {
		return 0
	}
	used := make([]bool, a.totalUnits+1)
	for _, d := range a.devices {
		for u := max(d.UnitStart, 1); u <= min(d.UnitEnd(), a.totalUnits); u++ {
			used[u] = true
		}
	}

	best, run := 0, 0
	for u := 1; u <= a.totalUnits; u++ {
		if used[u] {
			run = 0
			continue
		}
		run++
		best = max(best, run)
	}
	return best
}

// Overlaps returns pairs of device IDs whose ranges intersect. A consistent
// rack returns nothing.
func (a *SlotAllocator) Overlaps() [][2]string {
	var out [][2]string
	for i := 0; i < len(a.devices); i++ {
		for j := i + 1; j < len(a.devices); j++ {
			x, y := a.devices[i], a.devices[j]
			if x.UnitStart <= y.UnitEnd() && y.UnitStart <= x.UnitEnd() {
				out = append(out, [2]string{x.ID, y.ID})
			}
		}
	}
	return out
}
