package core

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/rackplan/internal/logging"
	"github.com/signalsfoundry/rackplan/model"
)

// Placement reasons reported on PlacementError and to metrics.
const (
	reasonNoBlock      = "no_free_block"
	reasonTooLarge     = "exceeds_max_contiguous"
	reasonOutsideRack  = "outside_capacity"
	reasonInvalidInput = "invalid_size"
)

// ProposePlacement picks a start for a size-unit item in rackID without
// writing anything: first fit when target is nil, nearest fit otherwise.
// excludeID ignores one device's current footprint.
func (e *Engine) ProposePlacement(rackID string, size int, target *int, excludeID string) (int, error) {
	alloc, err := e.Allocator(rackID)
	if err != nil {
		return 0, err
	}
	if excludeID != "" {
		alloc = alloc.Without(excludeID)
	}
	return e.propose(alloc, rackID, size, target)
}

func (e *Engine) propose(alloc *SlotAllocator, rackID string, size int, target *int) (int, error) {
	if size < 1 {
		return 0, e.reject(rackID, size, reasonInvalidInput)
	}
	if size > alloc.MaxContiguousFree() {
		return 0, e.reject(rackID, size, reasonTooLarge)
	}

	var (
		start int
		ok    bool
	)
	if target == nil {
		start, ok = alloc.FirstFit(size)
	} else {
		start, ok = alloc.NearestFit(*target, size)
	}
	if !ok {
		return 0, e.reject(rackID, size, reasonNoBlock)
	}
	return start, nil
}

func (e *Engine) reject(rackID string, size int, reason string) error {
	if e.metrics != nil {
		e.metrics.ObservePlacementRejected(reason)
	}
	return &PlacementError{RackID: rackID, Size: size, Reason: reason}
}

// PlaceDevice moves an existing device within its rack, or into rackID when
// rackID is non-empty. A nil target means first fit; otherwise the free start
// nearest to target is used.
func (e *Engine) PlaceDevice(ctx context.Context, deviceID, rackID string, target *int) (*model.Device, error) {
	current, err := e.store.GetDevice(deviceID)
	if err != nil {
		return nil, err
	}
	d := current.Clone()
	if rackID != "" {
		d.RackID = rackID
	}

	start, err := e.ProposePlacement(d.RackID, d.UnitSize, target, d.ID)
	if err != nil {
		e.log.Debug(ctx, "placement denied",
			logging.String("device_id", d.ID),
			logging.String("error", err.Error()),
		)
		return nil, err
	}
	d.UnitStart = start
	if err := e.store.UpdateDevice(d); err != nil {
		return nil, fmt.Errorf("update device %q: %w", d.ID, err)
	}

	e.log.Info(ctx, "device placed",
		logging.String("device_id", d.ID),
		logging.String("rack_id", d.RackID),
		logging.Int("unit_start", d.UnitStart),
		logging.Int("unit_size", d.UnitSize),
	)
	return d, nil
}

// ResizeDevice changes a device's height. The current start is kept when the
// new footprint is still free; otherwise the nearest free start is used.
func (e *Engine) ResizeDevice(ctx context.Context, deviceID string, size int) (*model.Device, error) {
	current, err := e.store.GetDevice(deviceID)
	if err != nil {
		return nil, err
	}
	alloc, err := e.Allocator(current.RackID)
	if err != nil {
		return nil, err
	}
	alloc = alloc.Without(current.ID)

	d := current.Clone()
	d.UnitSize = size
	if !alloc.IsFree(current.UnitStart, size, "") {
		start, err := e.propose(alloc, d.RackID, size, &current.UnitStart)
		if err != nil {
			return nil, err
		}
		d.UnitStart = start
	}

	if err := e.store.UpdateDevice(d); err != nil {
		return nil, fmt.Errorf("update device %q: %w", d.ID, err)
	}
	e.log.Info(ctx, "device resized",
		logging.String("device_id", d.ID),
		logging.Int("unit_start", d.UnitStart),
		logging.Int("unit_size", d.UnitSize),
	)
	return d, nil
}

// ResizeRack changes rack capacity. Shrinking below the top of any device is
// refused.
func (e *Engine) ResizeRack(ctx context.Context, rackID string, units int) (*model.Rack, error) {
	if units < 1 {
		return nil, e.reject(rackID, units, reasonInvalidInput)
	}
	rack, err := e.store.GetRack(rackID)
	if err != nil {
		return nil, err
	}
	devices, err := e.store.ListRackDevices(rackID)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.UnitEnd() > units {
			return nil, e.reject(rackID, units, reasonOutsideRack)
		}
	}

	updated := *rack
	updated.TotalUnits = units
	if err := e.store.UpdateRack(&updated); err != nil {
		return nil, fmt.Errorf("update rack %q: %w", rackID, err)
	}
	e.log.Info(ctx, "rack resized",
		logging.String("rack_id", rackID),
		logging.Int("total_units", units),
	)
	return &updated, nil
}

// SetPortCounts updates a device's port counts. Links beyond the new counts
// stop being active immediately and are removed by the next Heal.
func (e *Engine) SetPortCounts(ctx context.Context, deviceID string, eth, fiber int) (*model.Device, error) {
	if eth < 0 || fiber < 0 {
		return nil, fmt.Errorf("%w: negative port count", ErrInvalidDevice)
	}
	current, err := e.store.GetDevice(deviceID)
	if err != nil {
		return nil, err
	}
	d := current.Clone()
	d.EthPortCount = eth
	d.FiberPortCount = fiber
	if err := e.store.UpdateDevice(d); err != nil {
		return nil, fmt.Errorf("update device %q: %w", d.ID, err)
	}
	e.log.Info(ctx, "port counts updated",
		logging.String("device_id", d.ID),
		logging.Int("ethernet", eth),
		logging.Int("fiber", fiber),
	)
	return d, nil
}
