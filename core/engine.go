package core

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/signalsfoundry/rackplan/internal/logging"
	"github.com/signalsfoundry/rackplan/model"
	"github.com/signalsfoundry/rackplan/timectrl"
)

// MetricsRecorder receives engine events.
type MetricsRecorder interface {
	ObserveLinkConflict()
	ObserveLinksPruned(n int)
	ObservePlacementRejected(reason string)
	ObserveTraceLength(n int)
	SetActiveLinks(n int)
}

// Engine runs placement, link and trace operations against a Store. It keeps
// no cached state: every call rereads the store and recomputes derived views.
type Engine struct {
	store   Store
	log     logging.Logger
	metrics MetricsRecorder
	clock   timectrl.Clock
	newID   func() string
}

// EngineOption customises Engine construction.
type EngineOption func(*Engine)

// WithMetrics attaches a recorder for engine events.
func WithMetrics(m MetricsRecorder) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source used for link CreatedAt.
func WithClock(c timectrl.Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator overrides link ID generation.
func WithIDGenerator(gen func() string) EngineOption {
	return func(e *Engine) { e.newID = gen }
}

// NewEngine binds an engine to store.
func NewEngine(store Store, log logging.Logger, opts ...EngineOption) *Engine {
	if log == nil {
		log = logging.Noop()
	}
	e := &Engine{
		store: store,
		log:   log,
		clock: timectrl.System{},
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// snapshot is one consistent read of the store.
type snapshot struct {
	devices map[string]*model.Device
	links   []*model.Link
	active  *ActiveSet
}

func (e *Engine) load() (*snapshot, error) {
	devices, err := e.store.ListDevices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	links, err := e.store.ListLinks()
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	byID := make(map[string]*model.Device, len(devices))
	for _, d := range devices {
		if d != nil {
			byID[d.ID] = d
		}
	}
	snap := &snapshot{
		devices: byID,
		links:   links,
		active:  DeriveActiveLinks(byID, links),
	}
	if e.metrics != nil {
		e.metrics.SetActiveLinks(snap.active.Len())
	}
	return snap, nil
}

// ActiveLinks runs the active-link derivation over current store contents.
func (e *Engine) ActiveLinks() (*ActiveSet, error) {
	snap, err := e.load()
	if err != nil {
		return nil, err
	}
	return snap.active, nil
}

// Allocator builds a slot allocator for rackID from current store contents.
func (e *Engine) Allocator(rackID string) (*SlotAllocator, error) {
	rack, err := e.store.GetRack(rackID)
	if err != nil {
		return nil, err
	}
	devices, err := e.store.ListRackDevices(rackID)
	if err != nil {
		return nil, fmt.Errorf("list devices for rack %q: %w", rackID, err)
	}
	return NewSlotAllocator(rack, devices), nil
}

// PortStatus describes one port as the UI sees it.
type PortStatus struct {
	Port      model.PortRef
	Name      string
	Connected bool
	LinkID    string
	Peer      *model.PortRef
	PeerName  string
}

// PortStatus reports whether p is connected and to what.
func (e *Engine) PortStatus(p model.PortRef) (*PortStatus, error) {
	snap, err := e.load()
	if err != nil {
		return nil, err
	}
	d := snap.devices[p.DeviceID]
	p = NormalizeSide(d, p)
	if err := ValidatePort(d, p); err != nil {
		return nil, err
	}

	st := &PortStatus{Port: p, Name: PortLabel(d, p)}
	link, ok := snap.active.LinkAt(p)
	if !ok {
		return st, nil
	}
	peer, _ := link.Other(p)
	st.Connected = true
	st.LinkID = link.ID
	st.Peer = &peer
	if pd := snap.devices[peer.DeviceID]; pd != nil {
		st.PeerName = deviceLabel(pd) + " " + PortLabel(pd, peer)
	}
	return st, nil
}

func deviceLabel(d *model.Device) string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}
