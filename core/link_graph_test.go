package core_test

import (
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/rackplan/core"
	"github.com/signalsfoundry/rackplan/internal/logging"
	"github.com/signalsfoundry/rackplan/kb"
	"github.com/signalsfoundry/rackplan/model"
	"github.com/signalsfoundry/rackplan/timectrl"
)

func switchAndServers(h *harness) {
	h.add(&model.Device{ID: "sw", RackID: "r1", Type: model.DeviceSwitch, UnitStart: 1, UnitSize: 2, EthPortCount: 8})
	h.add(&model.Device{ID: "s1", RackID: "r1", Type: model.DeviceServer, UnitStart: 3, EthPortCount: 2})
	h.add(&model.Device{ID: "s2", RackID: "r1", Type: model.DeviceServer, UnitStart: 4, EthPortCount: 2})
}

func TestConnectConflict(t *testing.T) {
	h := newHarness(t)
	switchAndServers(h)
	h.connect(eth("s1", 1), eth("sw", 1))

	// conflict reported whichever side is busy
	for _, req := range []core.ConnectRequest{
		{A: eth("s2", 1), B: eth("sw", 1)},
		{A: eth("sw", 1), B: eth("s2", 1)},
		{A: eth("s1", 1), B: eth("sw", 2)},
	} {
		_, err := h.engine.Connect(h.ctx, req)
		if !errors.Is(err, core.ErrLinkConflict) {
			t.Fatalf("Connect(%s,%s) error = %v, want ErrLinkConflict", req.A, req.B, err)
		}
		var ce *core.ConflictError
		if !errors.As(err, &ce) || ce.Existing == nil {
			t.Fatalf("conflict error lacks existing link: %v", err)
		}
	}
	if h.metrics.conflicts != 3 {
		t.Fatalf("conflicts recorded = %d, want 3", h.metrics.conflicts)
	}
	links, _ := h.store.ListLinks()
	if len(links) != 1 {
		t.Fatalf("stored links = %d after refused connects, want 1", len(links))
	}
}

func TestConnectForceReplaces(t *testing.T) {
	h := newHarness(t)
	switchAndServers(h)
	first := h.connect(eth("s1", 1), eth("sw", 1))

	res, err := h.engine.Connect(h.ctx, core.ConnectRequest{A: eth("s2", 1), B: eth("sw", 1), Force: true})
	if err != nil {
		t.Fatalf("forced Connect error: %v", err)
	}
	if len(res.Replaced) != 1 || res.Replaced[0].ID != first.Link.ID {
		t.Fatalf("replaced = %+v", res.Replaced)
	}

	active, _ := h.engine.ActiveLinks()
	if active.IsConnected(eth("s1", 1)) {
		t.Fatalf("s1:1 should be free after forced replace")
	}
	if peer, _ := active.Peer(eth("sw", 1)); peer != eth("s2", 1) {
		t.Fatalf("sw:1 peer = %s, want s2:1", peer)
	}
}

// flakyLinks fails link writes on demand.
type flakyLinks struct {
	*kb.KnowledgeBase
	addErr, deleteErr error
}

func (f *flakyLinks) AddLink(l *model.Link) error {
	if f.addErr != nil {
		return f.addErr
	}
	return f.KnowledgeBase.AddLink(l)
}

func (f *flakyLinks) DeleteLink(id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.KnowledgeBase.DeleteLink(id)
}

func TestForcedConnectKeepsOldLinkWhenInsertFails(t *testing.T) {
	h := newHarness(t)
	switchAndServers(h)
	first := h.connect(eth("s1", 1), eth("sw", 1))

	store := &flakyLinks{KnowledgeBase: h.store, addErr: errors.New("disk full")}
	engine := core.NewEngine(store, logging.Noop(),
		core.WithClock(timectrl.NewStepper(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Second)))

	if _, err := engine.Connect(h.ctx, core.ConnectRequest{A: eth("s2", 1), B: eth("sw", 1), Force: true}); err == nil {
		t.Fatalf("forced Connect succeeded with failing AddLink")
	}
	links, _ := h.store.ListLinks()
	if len(links) != 1 || links[0].ID != first.Link.ID {
		t.Fatalf("stored links after failed insert = %+v, want only %s", links, first.Link.ID)
	}
	active, _ := h.engine.ActiveLinks()
	if peer, _ := active.Peer(eth("sw", 1)); peer != eth("s1", 1) {
		t.Fatalf("sw:1 peer = %s, want s1:1", peer)
	}
}

func TestForcedConnectSurvivesFailedDelete(t *testing.T) {
	h := newHarness(t)
	switchAndServers(h)
	h.connect(eth("s1", 1), eth("sw", 1))

	store := &flakyLinks{KnowledgeBase: h.store, deleteErr: errors.New("locked")}
	engine := core.NewEngine(store, logging.Noop(),
		core.WithClock(timectrl.NewStepper(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Second)))

	res, err := engine.Connect(h.ctx, core.ConnectRequest{A: eth("s2", 1), B: eth("sw", 1), Force: true})
	if err != nil {
		t.Fatalf("forced Connect error: %v", err)
	}
	if len(res.Replaced) != 0 {
		t.Fatalf("replaced = %+v, want none when delete fails", res.Replaced)
	}

	active, _ := h.engine.ActiveLinks()
	if peer, _ := active.Peer(eth("sw", 1)); peer != eth("s2", 1) {
		t.Fatalf("sw:1 peer = %s, want s2:1", peer)
	}
	if active.IsConnected(eth("s1", 1)) {
		t.Fatalf("superseded s1:1 link still active")
	}

	report, err := h.engine.Heal(h.ctx)
	if err != nil {
		t.Fatalf("Heal error: %v", err)
	}
	if len(report.Removed) != 1 {
		t.Fatalf("heal removed %d links, want 1", len(report.Removed))
	}
}

func TestReconnectSamePairReplaces(t *testing.T) {
	h := newHarness(t)
	switchAndServers(h)
	h.connect(eth("s1", 1), eth("sw", 1))
	res, err := h.engine.Connect(h.ctx, core.ConnectRequest{A: eth("sw", 1), B: eth("s1", 1), Speed: model.Speed10G})
	if err != nil {
		t.Fatalf("reconnect error: %v", err)
	}
	if len(res.Replaced) != 1 {
		t.Fatalf("reconnect replaced %d links, want 1", len(res.Replaced))
	}
	links, _ := h.store.ListLinks()
	if len(links) != 1 || links[0].Speed != model.Speed10G {
		t.Fatalf("stored links = %+v", links)
	}
	if links[0].Color != core.LinkColor(model.PortEthernet, model.Speed10G, model.DeviceSwitch) {
		t.Fatalf("color = %q", links[0].Color)
	}
}

func TestConnectValidation(t *testing.T) {
	h := newHarness(t)
	switchAndServers(h)
	fiber := model.PortRef{DeviceID: "sw", Kind: model.PortFiber, Index: 1}

	tests := []struct {
		name string
		req  core.ConnectRequest
		want error
	}{
		{"port past count", core.ConnectRequest{A: eth("s1", 3), B: eth("sw", 1)}, core.ErrPortOutOfRange},
		{"unknown device", core.ConnectRequest{A: eth("nope", 1), B: eth("sw", 1)}, core.ErrPortOutOfRange},
		{"kind mismatch", core.ConnectRequest{A: eth("s1", 1), B: fiber}, core.ErrInvalidLink},
		{"self loop", core.ConnectRequest{A: eth("sw", 1), B: eth("sw", 1)}, core.ErrInvalidLink},
		{"bad speed", core.ConnectRequest{A: eth("s1", 1), B: eth("sw", 1), Speed: "3G"}, core.ErrInvalidLink},
	}
	for _, tt := range tests {
		if _, err := h.engine.Connect(h.ctx, tt.req); !errors.Is(err, tt.want) {
			t.Fatalf("%s: error = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestDisconnectFreesBothEnds(t *testing.T) {
	h := newHarness(t)
	switchAndServers(h)
	res := h.connect(eth("s1", 1), eth("sw", 1))

	if err := h.engine.Disconnect(h.ctx, res.Link.ID); err != nil {
		t.Fatalf("Disconnect error: %v", err)
	}
	active, _ := h.engine.ActiveLinks()
	if active.Len() != 0 {
		t.Fatalf("active links = %d after disconnect", active.Len())
	}
	if err := h.engine.Disconnect(h.ctx, res.Link.ID); !errors.Is(err, core.ErrLinkNotFound) {
		t.Fatalf("second Disconnect error = %v", err)
	}
	h.connect(eth("s2", 1), eth("sw", 1))
}

func TestHealPrunesStaleLinks(t *testing.T) {
	h := newHarness(t)
	switchAndServers(h)
	h.connect(eth("s1", 2), eth("sw", 5))
	h.connect(eth("s2", 1), eth("sw", 2))
	h.connect(eth("s1", 1), eth("sw", 1))

	// shrink s1 to one port and delete s2
	if _, err := h.engine.SetPortCounts(h.ctx, "s1", 1, 0); err != nil {
		t.Fatalf("SetPortCounts error: %v", err)
	}
	if err := h.store.DeleteDevice("s2"); err != nil {
		t.Fatalf("DeleteDevice error: %v", err)
	}
	// a stored duplicate the derivation will supersede
	if err := h.store.AddLink(&model.Link{ID: "dup", From: eth("s1", 1), To: eth("sw", 7), Kind: model.PortEthernet}); err != nil {
		t.Fatalf("AddLink error: %v", err)
	}

	active, _ := h.engine.ActiveLinks()
	if active.Len() != 1 {
		t.Fatalf("active before heal = %d, want 1", active.Len())
	}

	report, err := h.engine.Heal(h.ctx)
	if err != nil {
		t.Fatalf("Heal error: %v", err)
	}
	if len(report.Removed) != 3 {
		t.Fatalf("heal removed %d, want 3: %+v", len(report.Removed), report.Removed)
	}
	links, _ := h.store.ListLinks()
	if len(links) != 1 {
		t.Fatalf("stored after heal = %d, want 1", len(links))
	}
	if h.metrics.pruned != 3 {
		t.Fatalf("pruned metric = %d, want 3", h.metrics.pruned)
	}

	again, err := h.engine.Heal(h.ctx)
	if err != nil || len(again.Removed) != 0 {
		t.Fatalf("second heal = %+v, %v", again, err)
	}
}

func TestConnectPatchPanelDefaultsToFront(t *testing.T) {
	h := newHarness(t)
	switchAndServers(h)
	h.add(&model.Device{ID: "pp", RackID: "r1", Type: model.DevicePatchPanel, UnitStart: 5, EthPortCount: 4})

	res := h.connect(eth("s1", 1), eth("pp", 1))
	if res.Link.To.Side != model.SideFront {
		t.Fatalf("patch endpoint side = %q, want front", res.Link.To.Side)
	}
	// back face of the same port is still free
	h.connect(ethSide("pp", 1, model.SideBack), eth("sw", 1))
}
