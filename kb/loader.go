package kb

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/signalsfoundry/rackplan/core"
	"github.com/signalsfoundry/rackplan/model"
)

// Format names a plan file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatFromPath picks the format from the file extension, defaulting to
// JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", ".tml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// PlanSummary reports what a load inserted.
type PlanSummary struct {
	RackIDs   []string
	DeviceIDs []string
	LinkIDs   []string
}

// internal file shapes; unexported so the on-disk format can evolve.
type planFile struct {
	Racks   []rackEntry   `json:"racks" toml:"racks"`
	Devices []deviceEntry `json:"devices" toml:"devices"`
	Links   []linkEntry   `json:"links" toml:"links"`
}

type rackEntry struct {
	ID    string `json:"id" toml:"id"`
	Name  string `json:"name" toml:"name"`
	Units int    `json:"units" toml:"units"`
}

type deviceEntry struct {
	ID        string            `json:"id" toml:"id"`
	Rack      string            `json:"rack" toml:"rack"`
	Name      string            `json:"name" toml:"name"`
	Type      string            `json:"type" toml:"type"`
	UnitStart int               `json:"unit_start" toml:"unit_start"` // 0 = first fit
	UnitSize  int               `json:"unit_size" toml:"unit_size"`
	Ethernet  int               `json:"ethernet" toml:"ethernet"`
	Fiber     int               `json:"fiber" toml:"fiber"`
	PortNames map[string]string `json:"port_names" toml:"port_names"` // "ethernet/3" -> name
	Details   map[string]any    `json:"details" toml:"details"`
}

type portEntry struct {
	Device string `json:"device" toml:"device"`
	Kind   string `json:"kind" toml:"kind"`
	Index  int    `json:"index" toml:"index"`
	Side   string `json:"side" toml:"side"`
}

type linkEntry struct {
	ID        string    `json:"id" toml:"id"`
	From      portEntry `json:"from" toml:"from"`
	To        portEntry `json:"to" toml:"to"`
	Kind      string    `json:"kind" toml:"kind"`
	Speed     string    `json:"speed" toml:"speed"`
	Color     string    `json:"color" toml:"color"`
	CreatedAt time.Time `json:"created_at" toml:"created_at"`
}

// LoadPlanFile opens path and loads it with the format implied by its
// extension.
func LoadPlanFile(repo core.Repository, path string) (*PlanSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plan %q: %w", path, err)
	}
	defer f.Close()
	return LoadPlan(repo, f, FormatFromPath(path))
}

// LoadPlan decodes a plan from r into repo. Racks are created first, then
// devices (unit_start 0 is placed at first fit), then links. Links are
// stored as written, stale or not; the engine filters them at read time.
func LoadPlan(repo core.Repository, r io.Reader, format Format) (*PlanSummary, error) {
	if repo == nil {
		return nil, fmt.Errorf("LoadPlan: repository is nil")
	}

	var payload planFile
	switch format {
	case FormatTOML:
		if _, err := toml.NewDecoder(r).Decode(&payload); err != nil {
			return nil, fmt.Errorf("LoadPlan: decode toml: %w", err)
		}
	default:
		if err := json.NewDecoder(r).Decode(&payload); err != nil {
			return nil, fmt.Errorf("LoadPlan: decode json: %w", err)
		}
	}

	sum := &PlanSummary{}

	for _, re := range payload.Racks {
		units := re.Units
		if units == 0 {
			units = model.DefaultRackUnits
		}
		if err := repo.CreateRack(&model.Rack{ID: re.ID, Name: re.Name, TotalUnits: units}); err != nil {
			return nil, fmt.Errorf("LoadPlan: rack %q: %w", re.ID, err)
		}
		sum.RackIDs = append(sum.RackIDs, re.ID)
	}

	for _, de := range payload.Devices {
		d, err := de.toModel()
		if err != nil {
			return nil, fmt.Errorf("LoadPlan: device %q: %w", de.ID, err)
		}
		if d.UnitStart == 0 {
			rack, err := repo.EnsureRack(d.RackID)
			if err != nil {
				return nil, fmt.Errorf("LoadPlan: device %q: %w", d.ID, err)
			}
			peers, err := repo.ListRackDevices(d.RackID)
			if err != nil {
				return nil, fmt.Errorf("LoadPlan: device %q: %w", d.ID, err)
			}
			start, ok := core.NewSlotAllocator(rack, peers).FirstFit(d.UnitSize)
			if !ok {
				return nil, fmt.Errorf("LoadPlan: device %q: %w", d.ID,
					&core.PlacementError{RackID: d.RackID, Size: d.UnitSize, Reason: "no_free_block"})
			}
			d.UnitStart = start
		}
		if err := repo.AddDevice(d); err != nil {
			return nil, fmt.Errorf("LoadPlan: device %q: %w", d.ID, err)
		}
		sum.DeviceIDs = append(sum.DeviceIDs, d.ID)
	}

	for _, le := range payload.Links {
		if le.ID == "" {
			return nil, fmt.Errorf("LoadPlan: link with empty id")
		}
		kind := model.PortKind(strings.ToLower(le.Kind))
		if kind == "" {
			kind = model.PortKind(strings.ToLower(le.From.Kind))
		}
		link := &model.Link{
			ID:        le.ID,
			From:      le.From.toModel(),
			To:        le.To.toModel(),
			Kind:      kind,
			Speed:     model.Speed(strings.ToUpper(le.Speed)),
			Color:     le.Color,
			CreatedAt: le.CreatedAt,
		}
		if err := repo.AddLink(link); err != nil {
			return nil, fmt.Errorf("LoadPlan: link %q: %w", le.ID, err)
		}
		sum.LinkIDs = append(sum.LinkIDs, le.ID)
	}

	return sum, nil
}

func (de deviceEntry) toModel() (*model.Device, error) {
	t, err := model.ParseDeviceType(de.Type)
	if err != nil {
		return nil, err
	}
	size := de.UnitSize
	if size == 0 {
		size = 1
	}
	d := &model.Device{
		ID:             de.ID,
		RackID:         de.Rack,
		Name:           de.Name,
		Type:           t,
		UnitStart:      de.UnitStart,
		UnitSize:       size,
		EthPortCount:   de.Ethernet,
		FiberPortCount: de.Fiber,
	}
	for key, name := range de.PortNames {
		var slot model.PortSlot
		if err := slot.UnmarshalText([]byte(key)); err != nil {
			return nil, err
		}
		d.SetPortName(slot, name)
	}
	if len(de.Details) > 0 {
		raw, err := json.Marshal(de.Details)
		if err != nil {
			return nil, err
		}
		if d.Details, err = model.DetailsFromJSON(t, raw); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (pe portEntry) toModel() model.PortRef {
	return model.PortRef{
		DeviceID: pe.Device,
		Kind:     model.PortKind(strings.ToLower(pe.Kind)),
		Index:    pe.Index,
		Side:     model.Side(strings.ToLower(pe.Side)),
	}
}
