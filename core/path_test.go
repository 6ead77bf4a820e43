package core_test

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/rackplan/core"
	"github.com/signalsfoundry/rackplan/model"
)

func groups(segs []core.PathSegment) []core.Group {
	out := make([]core.Group, len(segs))
	for i, s := range segs {
		out[i] = s.Group
	}
	return out
}

func keys(segs []core.PathSegment) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.Port.Key()
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// crossConnect builds server -> panel -> panel -> switch across two racks.
func crossConnect(t *testing.T) *harness {
	h := newHarness(t)
	h.add(&model.Device{ID: "srv", RackID: "r1", Type: model.DeviceServer, UnitStart: 1, EthPortCount: 2})
	h.add(&model.Device{ID: "pp1", RackID: "r1", Type: model.DevicePatchPanel, UnitStart: 40, EthPortCount: 24})
	h.add(&model.Device{ID: "pp2", RackID: "r2", Type: model.DevicePatchPanel, UnitStart: 40, EthPortCount: 24})
	h.add(&model.Device{ID: "sw", RackID: "r2", Type: model.DeviceSwitch, UnitStart: 41, UnitSize: 2, EthPortCount: 48})

	h.connect(eth("srv", 1), ethSide("pp1", 1, model.SideFront))
	h.connect(ethSide("pp1", 1, model.SideBack), ethSide("pp2", 1, model.SideBack))
	h.connect(ethSide("pp2", 1, model.SideFront), eth("sw", 1))
	return h
}

func TestTracePassesThroughPatchPanels(t *testing.T) {
	h := crossConnect(t)

	want := []string{
		eth("srv", 1).Key(),
		ethSide("pp1", 1, model.SideFront).Key(),
		ethSide("pp1", 1, model.SideBack).Key(),
		ethSide("pp2", 1, model.SideBack).Key(),
		ethSide("pp2", 1, model.SideFront).Key(),
		eth("sw", 1).Key(),
	}
	for _, start := range []model.PortRef{
		eth("srv", 1),
		eth("sw", 1),
		ethSide("pp1", 1, model.SideBack),
		ethSide("pp2", 1, model.SideFront),
	} {
		segs, err := h.engine.Trace(start)
		if err != nil {
			t.Fatalf("Trace(%s) error: %v", start, err)
		}
		if got := keys(segs); !equalStrings(got, want) {
			t.Fatalf("Trace(%s) = %v, want %v", start, got, want)
		}
	}

	segs, _ := h.engine.Trace(eth("srv", 1))
	if segs[0].Label != "srv eth0" || segs[1].Label != "pp1 P01 (front)" {
		t.Fatalf("labels = %q, %q", segs[0].Label, segs[1].Label)
	}
	if segs[0].LinkID == "" || segs[0].LinkID != segs[1].LinkID {
		t.Fatalf("link ids = %q, %q", segs[0].LinkID, segs[1].LinkID)
	}
	if len(h.metrics.traceLens) == 0 || h.metrics.traceLens[0] != 6 {
		t.Fatalf("trace lengths = %v", h.metrics.traceLens)
	}
}

func TestTraceLoopTerminates(t *testing.T) {
	h := newHarness(t)
	h.add(&model.Device{ID: "pp1", RackID: "r1", Type: model.DevicePatchPanel, UnitStart: 1, EthPortCount: 4})
	h.add(&model.Device{ID: "pp2", RackID: "r1", Type: model.DevicePatchPanel, UnitStart: 2, EthPortCount: 4})
	h.connect(ethSide("pp1", 1, model.SideBack), ethSide("pp2", 1, model.SideBack))
	h.connect(ethSide("pp2", 1, model.SideFront), ethSide("pp1", 1, model.SideFront))

	segs, err := h.engine.Trace(ethSide("pp1", 1, model.SideFront))
	if err != nil {
		t.Fatalf("Trace error: %v", err)
	}
	if len(segs) != 4 {
		t.Fatalf("loop trace = %d segments, want 4", len(segs))
	}
	seen := map[string]bool{}
	for _, s := range segs {
		if seen[s.Port.Key()] {
			t.Fatalf("duplicate port %s in %v", s.Port, keys(segs))
		}
		seen[s.Port.Key()] = true
	}
}

func TestTraceUnconnectedPort(t *testing.T) {
	h := newHarness(t)
	h.add(&model.Device{ID: "srv", RackID: "r1", Type: model.DeviceServer, UnitStart: 1, EthPortCount: 2})
	segs, err := h.engine.Trace(eth("srv", 2))
	if err != nil || len(segs) != 1 {
		t.Fatalf("Trace = %v, %v", segs, err)
	}
	if _, err := h.engine.Trace(eth("srv", 3)); !errors.Is(err, core.ErrPortOutOfRange) {
		t.Fatalf("Trace past count error = %v", err)
	}
}

func TestTraceIgnoresStaleLinks(t *testing.T) {
	h := crossConnect(t)
	if err := h.store.DeleteDevice("pp2"); err != nil {
		t.Fatalf("DeleteDevice error: %v", err)
	}
	segs, err := h.engine.Trace(eth("srv", 1))
	if err != nil {
		t.Fatalf("Trace error: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("trace after delete = %v, want srv,pp1 front,pp1 back", keys(segs))
	}
}

func seg(dev string, t model.DeviceType, idx int) core.PathSegment {
	return core.PathSegment{DeviceID: dev, DeviceType: t, Group: core.Classify(t), Port: eth(dev, idx)}
}

func reversed(segs []core.PathSegment) []core.PathSegment {
	out := make([]core.PathSegment, len(segs))
	for i, s := range segs {
		out[len(segs)-1-i] = s
	}
	return out
}

func TestOrientStableUnderReversal(t *testing.T) {
	paths := [][]core.PathSegment{
		{seg("sw", model.DeviceSwitch, 1), seg("srv", model.DeviceServer, 1)},
		{seg("sw", model.DeviceSwitch, 1), seg("pp", model.DevicePatchPanel, 1), seg("pp", model.DevicePatchPanel, 2), seg("srv", model.DeviceServer, 1)},
		{seg("u", model.DeviceUPS, 1), seg("pp", model.DevicePatchPanel, 1), seg("m", model.DeviceMisc, 1)},
		{seg("a", model.DeviceSwitch, 1), seg("b", model.DeviceSwitch, 2)},
		{seg("a", model.DeviceServer, 1), seg("b", model.DeviceSwitch, 2), seg("c", model.DeviceSwitch, 3)},
		{seg("x", model.DeviceMisc, 1)},
	}
	for i, p := range paths {
		once := core.Orient(p)
		twice := core.Orient(reversed(once))
		if core.OrientationScore(once) != core.OrientationScore(twice) {
			t.Fatalf("path %d: score changed under reversal", i)
		}
		if !equalStrings(keys(once), keys(twice)) {
			t.Fatalf("path %d: orient(reverse(orient)) = %v, want %v", i, keys(twice), keys(once))
		}
		if !equalStrings(keys(core.Orient(reversed(p))), keys(once)) {
			t.Fatalf("path %d: orientation depends on input direction", i)
		}
	}
}

func TestOrientPrefersServerFirst(t *testing.T) {
	p := []core.PathSegment{seg("sw", model.DeviceSwitch, 1), seg("srv", model.DeviceServer, 1)}
	got := groups(core.Orient(p))
	if got[0] != core.GroupServer || got[1] != core.GroupSwitch {
		t.Fatalf("orient = %v, want [server switch]", got)
	}
}
