// Package kb is the in-memory plan repository: racks, devices and links,
// safe for concurrent use. It implements core.Store.
package kb

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/signalsfoundry/rackplan/core"
	"github.com/signalsfoundry/rackplan/model"
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventRackUpdated EventType = iota
	EventRackDeleted
	EventDeviceUpdated
	EventDeviceDeleted
	EventLinkAdded
	EventLinkDeleted
)

// Event is emitted to subscribers after a mutation is applied.
type Event struct {
	Type EventType
	ID   string
}

// PlanMetricsRecorder receives entity counts after every mutation.
type PlanMetricsRecorder interface {
	SetPlanCounts(racks, devices, links int)
}

// Option customises KnowledgeBase construction.
type Option func(*KnowledgeBase)

// WithMetricsRecorder attaches a recorder for entity counts.
func WithMetricsRecorder(m PlanMetricsRecorder) Option {
	return func(kb *KnowledgeBase) { kb.metrics = m }
}

// KnowledgeBase stores one plan. All getters return copies, so callers may
// modify what they receive without affecting stored state.
type KnowledgeBase struct {
	mu sync.RWMutex

	racks         map[string]*model.Rack
	devices       map[string]*model.Device
	links         map[string]*model.Link
	linksByDevice map[string]map[string]struct{}

	subs    map[int]func(Event)
	nextSub int
	metrics PlanMetricsRecorder
}

var _ core.Repository = (*KnowledgeBase)(nil)

// NewKnowledgeBase creates an empty plan.
func NewKnowledgeBase(opts ...Option) *KnowledgeBase {
	kb := &KnowledgeBase{
		racks:         make(map[string]*model.Rack),
		devices:       make(map[string]*model.Device),
		links:         make(map[string]*model.Link),
		linksByDevice: make(map[string]map[string]struct{}),
		subs:          make(map[int]func(Event)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(kb)
		}
	}
	return kb
}

//
// ---------- Racks ----------
//

// CreateRack inserts a new rack.
func (kb *KnowledgeBase) CreateRack(r *model.Rack) error {
	if r == nil || strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: rack id is required", core.ErrInvalidRack)
	}
	if r.TotalUnits < 1 {
		return fmt.Errorf("%w: rack %q capacity %d < 1", core.ErrInvalidRack, r.ID, r.TotalUnits)
	}

	kb.mu.Lock()
	if _, exists := kb.racks[r.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", core.ErrRackExists, r.ID)
	}
	c := *r
	kb.racks[r.ID] = &c
	kb.commitLocked(Event{Type: EventRackUpdated, ID: r.ID})
	return nil
}

// EnsureRack returns rack id, creating it with the default capacity when it
// does not exist yet.
func (kb *KnowledgeBase) EnsureRack(id string) (*model.Rack, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: rack id is required", core.ErrInvalidRack)
	}

	kb.mu.Lock()
	if r, ok := kb.racks[id]; ok {
		c := *r
		kb.mu.Unlock()
		return &c, nil
	}
	r := &model.Rack{ID: id, TotalUnits: model.DefaultRackUnits}
	kb.racks[id] = r
	c := *r
	kb.commitLocked(Event{Type: EventRackUpdated, ID: id})
	return &c, nil
}

// GetRack returns a copy of the rack.
func (kb *KnowledgeBase) GetRack(id string) (*model.Rack, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	r, ok := kb.racks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrRackNotFound, id)
	}
	c := *r
	return &c, nil
}

// ListRacks returns every rack ordered by ID.
func (kb *KnowledgeBase) ListRacks() ([]*model.Rack, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	out := make([]*model.Rack, 0, len(kb.racks))
	for _, r := range kb.racks {
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateRack overwrites a rack. Devices must still fit the new capacity.
func (kb *KnowledgeBase) UpdateRack(r *model.Rack) error {
	if r == nil || r.TotalUnits < 1 {
		return fmt.Errorf("%w: capacity must be at least 1U", core.ErrInvalidRack)
	}

	kb.mu.Lock()
	if _, ok := kb.racks[r.ID]; !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", core.ErrRackNotFound, r.ID)
	}
	for _, d := range kb.devices {
		if d.RackID == r.ID && d.UnitEnd() > r.TotalUnits {
			kb.mu.Unlock()
			return fmt.Errorf("%w: device %q ends at U%d beyond %dU", core.ErrPlacementUnavailable, d.ID, d.UnitEnd(), r.TotalUnits)
		}
	}
	c := *r
	kb.racks[r.ID] = &c
	kb.commitLocked(Event{Type: EventRackUpdated, ID: r.ID})
	return nil
}

// DeleteRack removes a rack together with its devices and every link that
// touches those devices.
func (kb *KnowledgeBase) DeleteRack(id string) error {
	kb.mu.Lock()
	if _, ok := kb.racks[id]; !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", core.ErrRackNotFound, id)
	}
	for devID, d := range kb.devices {
		if d.RackID != id {
			continue
		}
		for linkID := range kb.linksByDevice[devID] {
			kb.deleteLinkLocked(linkID)
		}
		delete(kb.devices, devID)
	}
	delete(kb.racks, id)
	kb.commitLocked(Event{Type: EventRackDeleted, ID: id})
	return nil
}

//
// ---------- Devices ----------
//

// AddDevice inserts a device. Its rack is created on first reference, and
// its footprint must be inside the rack and free.
func (kb *KnowledgeBase) AddDevice(d *model.Device) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidDevice, err)
	}

	kb.mu.Lock()
	if _, exists := kb.devices[d.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", core.ErrDeviceExists, d.ID)
	}
	rack, known := kb.racks[d.RackID]
	if !known && d.RackID != "" {
		rack = &model.Rack{ID: d.RackID, TotalUnits: model.DefaultRackUnits}
	}
	if err := kb.checkFitLocked(d, rack); err != nil {
		kb.mu.Unlock()
		return err
	}
	if !known {
		kb.racks[rack.ID] = rack
	}
	kb.devices[d.ID] = d.Clone()
	kb.commitLocked(Event{Type: EventDeviceUpdated, ID: d.ID})
	return nil
}

// GetDevice returns a copy of the device.
func (kb *KnowledgeBase) GetDevice(id string) (*model.Device, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	d, ok := kb.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrDeviceNotFound, id)
	}
	return d.Clone(), nil
}

// ListDevices returns every device ordered by rack then unit.
func (kb *KnowledgeBase) ListDevices() ([]*model.Device, error) {
	return kb.listDevices(func(*model.Device) bool { return true }), nil
}

// ListRackDevices returns the devices in one rack ordered by unit.
func (kb *KnowledgeBase) ListRackDevices(rackID string) ([]*model.Device, error) {
	return kb.listDevices(func(d *model.Device) bool { return d.RackID == rackID }), nil
}

func (kb *KnowledgeBase) listDevices(keep func(*model.Device) bool) []*model.Device {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	out := make([]*model.Device, 0, len(kb.devices))
	for _, d := range kb.devices {
		if keep(d) {
			out = append(out, d.Clone())
		}
	}
	sortDevices(out)
	return out
}

func sortDevices(ds []*model.Device) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].RackID != ds[j].RackID {
			return ds[i].RackID < ds[j].RackID
		}
		if ds[i].UnitStart != ds[j].UnitStart {
			return ds[i].UnitStart < ds[j].UnitStart
		}
		return ds[i].ID < ds[j].ID
	})
}

// UpdateDevice overwrites a device, rechecking its footprint.
func (kb *KnowledgeBase) UpdateDevice(d *model.Device) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidDevice, err)
	}

	kb.mu.Lock()
	if _, ok := kb.devices[d.ID]; !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", core.ErrDeviceNotFound, d.ID)
	}
	if err := kb.checkFitLocked(d, kb.racks[d.RackID]); err != nil {
		kb.mu.Unlock()
		return err
	}
	kb.devices[d.ID] = d.Clone()
	kb.commitLocked(Event{Type: EventDeviceUpdated, ID: d.ID})
	return nil
}

// DeleteDevice removes a device. Its links stay stored and drop out of the
// active set at read time until a heal pass deletes them.
func (kb *KnowledgeBase) DeleteDevice(id string) error {
	kb.mu.Lock()
	if _, ok := kb.devices[id]; !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", core.ErrDeviceNotFound, id)
	}
	delete(kb.devices, id)
	kb.commitLocked(Event{Type: EventDeviceDeleted, ID: id})
	return nil
}

// checkFitLocked rejects footprints outside rack or overlapping another
// device. Caller must hold kb.mu.
func (kb *KnowledgeBase) checkFitLocked(d *model.Device, rack *model.Rack) error {
	if rack == nil {
		return fmt.Errorf("%w: %q", core.ErrRackNotFound, d.RackID)
	}
	peers := make([]*model.Device, 0, len(kb.devices))
	for _, other := range kb.devices {
		peers = append(peers, other)
	}
	if !core.NewSlotAllocator(rack, peers).IsFree(d.UnitStart, d.UnitSize, d.ID) {
		return &core.PlacementError{
			RackID: d.RackID,
			Size:   d.UnitSize,
			Reason: fmt.Sprintf("U%d-U%d is occupied or outside the rack", d.UnitStart, d.UnitEnd()),
		}
	}
	return nil
}

//
// ---------- Links ----------
//

// AddLink stores a link. Endpoints are not checked here: links are allowed
// to outlive their devices and are filtered at read time.
func (kb *KnowledgeBase) AddLink(l *model.Link) error {
	if l == nil || strings.TrimSpace(l.ID) == "" {
		return fmt.Errorf("%w: link id is required", core.ErrInvalidLink)
	}

	kb.mu.Lock()
	if _, exists := kb.links[l.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", core.ErrLinkExists, l.ID)
	}
	kb.links[l.ID] = l.Clone()
	kb.attachLinkLocked(l.ID, l.From.DeviceID)
	kb.attachLinkLocked(l.ID, l.To.DeviceID)
	kb.commitLocked(Event{Type: EventLinkAdded, ID: l.ID})
	return nil
}

// GetLink returns a copy of the stored link.
func (kb *KnowledgeBase) GetLink(id string) (*model.Link, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	l, ok := kb.links[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrLinkNotFound, id)
	}
	return l.Clone(), nil
}

// ListLinks returns every stored link ordered by creation time.
func (kb *KnowledgeBase) ListLinks() ([]*model.Link, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	out := make([]*model.Link, 0, len(kb.links))
	for _, l := range kb.links {
		out = append(out, l.Clone())
	}
	sortLinks(out)
	return out, nil
}

// LinksForDevice returns the stored links with an endpoint on deviceID.
func (kb *KnowledgeBase) LinksForDevice(deviceID string) []*model.Link {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	ids := kb.linksByDevice[deviceID]
	out := make([]*model.Link, 0, len(ids))
	for id := range ids {
		out = append(out, kb.links[id].Clone())
	}
	sortLinks(out)
	return out
}

func sortLinks(ls []*model.Link) {
	sort.Slice(ls, func(i, j int) bool {
		if !ls[i].CreatedAt.Equal(ls[j].CreatedAt) {
			return ls[i].CreatedAt.Before(ls[j].CreatedAt)
		}
		return ls[i].ID < ls[j].ID
	})
}

// DeleteLink removes a link by ID.
func (kb *KnowledgeBase) DeleteLink(id string) error {
	kb.mu.Lock()
	if _, ok := kb.links[id]; !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", core.ErrLinkNotFound, id)
	}
	kb.deleteLinkLocked(id)
	kb.commitLocked(Event{Type: EventLinkDeleted, ID: id})
	return nil
}

// deleteLinkLocked drops a link and its adjacency entries. Caller must hold
// kb.mu.
func (kb *KnowledgeBase) deleteLinkLocked(id string) {
	l, ok := kb.links[id]
	if !ok {
		return
	}
	kb.detachLinkLocked(id, l.From.DeviceID)
	kb.detachLinkLocked(id, l.To.DeviceID)
	delete(kb.links, id)
}

func (kb *KnowledgeBase) attachLinkLocked(linkID, deviceID string) {
	m, ok := kb.linksByDevice[deviceID]
	if !ok {
		m = make(map[string]struct{})
		kb.linksByDevice[deviceID] = m
	}
	m[linkID] = struct{}{}
}

func (kb *KnowledgeBase) detachLinkLocked(linkID, deviceID string) {
	if m, ok := kb.linksByDevice[deviceID]; ok {
		delete(m, linkID)
		if len(m) == 0 {
			delete(kb.linksByDevice, deviceID)
		}
	}
}

//
// ---------- Subscribers ----------
//

// Subscribe registers fn for change events. It returns an unsubscribe
// function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextSub
	kb.nextSub++
	kb.subs[id] = fn
	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

// commitLocked publishes counts and notifies subscribers, releasing kb.mu
// before callbacks run. Caller must hold the write lock.
func (kb *KnowledgeBase) commitLocked(ev Event) {
	racks, devices, links := len(kb.racks), len(kb.devices), len(kb.links)
	subs := make([]func(Event), 0, len(kb.subs))
	for _, fn := range kb.subs {
		subs = append(subs, fn)
	}
	metrics := kb.metrics
	kb.mu.Unlock()

	if metrics != nil {
		metrics.SetPlanCounts(racks, devices, links)
	}
	for _, fn := range subs {
		fn(ev)
	}
}
