package kb

import (
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/signalsfoundry/rackplan/core"
	"github.com/signalsfoundry/rackplan/model"
)

const jsonPlan = `{
  "racks": [{"id": "r1", "units": 12}],
  "devices": [
    {"id": "sw1", "rack": "r1", "type": "Switch", "unit_start": 1, "unit_size": 2, "ethernet": 24,
     "details": {"mgmt_ip": "10.0.0.2"}},
    {"id": "srv1", "rack": "r1", "type": "server", "unit_size": 1, "ethernet": 2,
     "port_names": {"ethernet/1": "bmc"}}
  ],
  "links": [
    {"id": "l1", "from": {"device": "srv1", "kind": "ethernet", "index": 1},
     "to": {"device": "sw1", "kind": "ethernet", "index": 1}, "speed": "1g"}
  ]
}`

func TestLoadPlanJSON(t *testing.T) {
	store := NewKnowledgeBase()
	sum, err := LoadPlan(store, strings.NewReader(jsonPlan), FormatJSON)
	if err != nil {
		t.Fatalf("LoadPlan error: %v", err)
	}
	if len(sum.RackIDs) != 1 || len(sum.DeviceIDs) != 2 || len(sum.LinkIDs) != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	srv, err := store.GetDevice("srv1")
	if err != nil {
		t.Fatalf("GetDevice error: %v", err)
	}
	if srv.UnitStart != 3 {
		t.Fatalf("srv1 auto-placed at U%d, want U3", srv.UnitStart)
	}
	if got := srv.PortNames[model.PortSlot{Kind: model.PortEthernet, Index: 1}]; got != "bmc" {
		t.Fatalf("port name = %q, want bmc", got)
	}

	sw, _ := store.GetDevice("sw1")
	details, ok := sw.Details.(model.SwitchDetails)
	if !ok || details.MgmtIP != "10.0.0.2" {
		t.Fatalf("switch details = %#v", sw.Details)
	}

	l, _ := store.GetLink("l1")
	if l.Kind != model.PortEthernet || l.Speed != model.Speed1G {
		t.Fatalf("link = %+v", l)
	}
}

func TestLoadPlanRejectsOverlap(t *testing.T) {
	plan := `{"devices": [
	  {"id": "a", "rack": "r1", "type": "server", "unit_start": 1, "unit_size": 2},
	  {"id": "b", "rack": "r1", "type": "server", "unit_start": 2, "unit_size": 1}
	]}`
	_, err := LoadPlan(NewKnowledgeBase(), strings.NewReader(plan), FormatJSON)
	if !errors.Is(err, core.ErrPlacementUnavailable) {
		t.Fatalf("LoadPlan error = %v, want ErrPlacementUnavailable", err)
	}
}

func TestLoadPlanRejectsMismatchedDetails(t *testing.T) {
	plan := `{"devices": [
	  {"id": "a", "rack": "r1", "type": "misc", "unit_start": 1, "details": {"hostname": "x"}}
	]}`
	if _, err := LoadPlan(NewKnowledgeBase(), strings.NewReader(plan), FormatJSON); err == nil {
		t.Fatalf("expected error for details on a misc device")
	}
}

func TestLoadPlanRequiresLinkID(t *testing.T) {
	plan := `{"links": [{"from": {"device": "a"}, "to": {"device": "b"}}]}`
	if _, err := LoadPlan(NewKnowledgeBase(), strings.NewReader(plan), FormatJSON); err == nil {
		t.Fatalf("expected error for link without id")
	}
}

func TestLoadSamplePlanTOML(t *testing.T) {
	_, file, _, _ := runtime.Caller(0)
	path := filepath.Join(filepath.Dir(file), "..", "configs", "sample_plan.toml")

	store := NewKnowledgeBase()
	sum, err := LoadPlanFile(store, path)
	if err != nil {
		t.Fatalf("LoadPlanFile error: %v", err)
	}
	if len(sum.RackIDs) != 2 || len(sum.DeviceIDs) != 5 || len(sum.LinkIDs) != 4 {
		t.Fatalf("summary = %+v", sum)
	}

	srv, _ := store.GetDevice("srv1")
	if srv.UnitStart != 1 {
		t.Fatalf("srv1 placed at U%d, want U1", srv.UnitStart)
	}
	pp, _ := store.GetDevice("pp1")
	if got := core.DisplayName(pp, model.PortEthernet, 1); got != "uplink-r2" {
		t.Fatalf("pp1 port 1 name = %q", got)
	}

	trunk, _ := store.GetLink("l-trunk")
	if trunk.From.Side != model.SideBack || trunk.CreatedAt.IsZero() {
		t.Fatalf("trunk = %+v", trunk)
	}
}

func TestFormatFromPath(t *testing.T) {
	cases := map[string]Format{
		"plan.toml": FormatTOML,
		"PLAN.TML":  FormatTOML,
		"plan.json": FormatJSON,
		"plan":      FormatJSON,
	}
	for in, want := range cases {
		if got := FormatFromPath(in); got != want {
			t.Fatalf("FormatFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}
