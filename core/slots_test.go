package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/rackplan/model"
)

func rackWith(total int, devices ...*model.Device) *SlotAllocator {
	return NewSlotAllocator(&model.Rack{ID: "r", TotalUnits: total}, devices)
}

func dev(id string, start, size int) *model.Device {
	return &model.Device{ID: id, RackID: "r", Type: model.DeviceServer, UnitStart: start, UnitSize: size}
}

func TestIsFree(t *testing.T) {
	a := rackWith(10, dev("a", 3, 2))
	tests := []struct {
		start, size int
		exclude     string
		want        bool
	}{
		{1, 2, "", true},
		{2, 2, "", false},
		{4, 1, "", false},
		{5, 6, "", true},
		{5, 7, "", false},
		{0, 1, "", false},
		{1, 0, "", false},
		{3, 2, "a", true},
		{math.MaxInt, 2, "", false},
		{9, math.MaxInt, "", false},
		{math.MaxInt, math.MaxInt, "", false},
		{1, 11, "", false},
	}
	for _, tt := range tests {
		if got := a.IsFree(tt.start, tt.size, tt.exclude); got != tt.want {
			t.Fatalf("IsFree(%d,%d,%q) = %v, want %v", tt.start, tt.size, tt.exclude, got, tt.want)
		}
	}
}

func TestFirstFitIsFree(t *testing.T) {
	a := rackWith(12, dev("a", 1, 2), dev("b", 4, 3), dev("c", 9, 1))
	for size := 1; size <= 12; size++ {
		start, ok := a.FirstFit(size)
		if !ok {
			if size <= a.MaxContiguousFree() {
				t.Fatalf("FirstFit(%d) failed with max free %d", size, a.MaxContiguousFree())
			}
			continue
		}
		if !a.IsFree(start, size, "") {
			t.Fatalf("FirstFit(%d) = %d which is not free", size, start)
		}
		for lower := 1; lower < start; lower++ {
			if a.IsFree(lower, size, "") {
				t.Fatalf("FirstFit(%d) = %d but %d is free", size, start, lower)
			}
		}
	}
	if got, _ := a.FirstFit(1); got != 3 {
		t.Fatalf("FirstFit(1) = %d, want 3", got)
	}
	if got, _ := a.FirstFit(2); got != 7 {
		t.Fatalf("FirstFit(2) = %d, want 7", got)
	}
	for _, size := range []int{0, -1, -2_000_000_000, math.MinInt, 13, math.MaxInt} {
		if start, ok := a.FirstFit(size); ok {
			t.Fatalf("FirstFit(%d) = %d, want no fit", size, start)
		}
	}
}

func TestNearestFit(t *testing.T) {
	a := rackWith(10, dev("a", 5, 1))
	tests := []struct {
		target, size int
		want         int
	}{
		{3, 1, 3},
		{5, 1, 6}, // up probed before down
		{6, 1, 6},
		{5, 2, 6},
		{4, 2, 3},
		{-4, 1, 1}, // clamped
		{40, 2, 9}, // clamped to last valid start
	}
	for _, tt := range tests {
		got, ok := a.NearestFit(tt.target, tt.size)
		if !ok || got != tt.want {
			t.Fatalf("NearestFit(%d,%d) = %d,%v want %d", tt.target, tt.size, got, ok, tt.want)
		}
	}
	if _, ok := a.NearestFit(1, 11); ok {
		t.Fatalf("NearestFit larger than rack should fail")
	}
}

func TestNearestFitIsClosest(t *testing.T) {
	a := rackWith(20, dev("a", 2, 3), dev("b", 8, 1), dev("c", 14, 4))
	for target := 1; target <= 20; target++ {
		got, ok := a.NearestFit(target, 2)
		if !ok {
			t.Fatalf("NearestFit(%d,2) failed", target)
		}
		if !a.IsFree(got, 2, "") {
			t.Fatalf("NearestFit(%d,2) = %d not free", target, got)
		}
		clamped := min(target, 19)
		best := abs(got - clamped)
		for s := 1; s <= 19; s++ {
			if a.IsFree(s, 2, "") && abs(s-clamped) < best {
				t.Fatalf("NearestFit(%d,2) = %d, but %d is closer", target, got, s)
			}
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func TestMaxContiguousFree(t *testing.T) {
	if got := rackWith(42).MaxContiguousFree(); got != 42 {
		t.Fatalf("empty rack max free = %d, want 42", got)
	}
	a := rackWith(12, dev("a", 1, 2), dev("b", 4, 3), dev("c", 9, 1))
	if got := a.MaxContiguousFree(); got != 3 {
		t.Fatalf("MaxContiguousFree = %d, want 3", got)
	}
	if got := a.Without("b").MaxContiguousFree(); got != 6 {
		t.Fatalf("Without(b).MaxContiguousFree = %d, want 6", got)
	}
	full := rackWith(2, dev("a", 1, 2))
	if got := full.MaxContiguousFree(); got != 0 {
		t.Fatalf("full rack max free = %d", got)
	}
	if _, ok := full.FirstFit(1); ok {
		t.Fatalf("FirstFit on full rack should fail")
	}
}

func TestOverlaps(t *testing.T) {
	a := rackWith(10, dev("a", 1, 3), dev("b", 3, 1), dev("c", 5, 1))
	got := a.Overlaps()
	if len(got) != 1 || got[0] != [2]string{"a", "b"} {
		t.Fatalf("Overlaps = %v, want [[a b]]", got)
	}
}

func TestAllocatorIgnoresOtherRacks(t *testing.T) {
	other := &model.Device{ID: "x", RackID: "elsewhere", Type: model.DeviceServer, UnitStart: 1, UnitSize: 5}
	a := rackWith(10, other)
	if !a.IsFree(1, 5, "") {
		t.Fatalf("device from another rack occupies units")
	}
}
