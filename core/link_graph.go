package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/rackplan/internal/logging"
	"github.com/signalsfoundry/rackplan/model"
)

// ConnectRequest asks for a cable between A and B. Force overwrites links
// already holding either endpoint.
type ConnectRequest struct {
	A     model.PortRef
	B     model.PortRef
	Kind  model.PortKind
	Speed model.Speed
	Force bool
}

// ConnectResult is the created link and whatever it replaced.
type ConnectResult struct {
	Link     *model.Link
	Replaced []*model.Link
}

// Connect creates a link between req.A and req.B.
//
// If either endpoint already has an active link to some port other than the
// requested peer, Connect fails with a *ConflictError unless req.Force is
// set. On success every stored link occupying either endpoint is deleted
// first, so reconnecting the same pair replaces the old link.
func (e *Engine) Connect(ctx context.Context, req ConnectRequest) (*ConnectResult, error) {
	snap, err := e.load()
	if err != nil {
		return nil, err
	}

	if req.Kind == "" {
		req.Kind = req.A.Kind
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidLink, req.Kind)
	}
	if req.A.Kind != req.Kind || req.B.Kind != req.Kind {
		return nil, fmt.Errorf("%w: %s link between %s and %s ports", ErrInvalidLink, req.Kind, req.A.Kind, req.B.Kind)
	}
	if !req.Speed.Valid() {
		return nil, fmt.Errorf("%w: unknown speed %q", ErrInvalidLink, req.Speed)
	}

	devA, devB := snap.devices[req.A.DeviceID], snap.devices[req.B.DeviceID]
	req.A, req.B = NormalizeSide(devA, req.A), NormalizeSide(devB, req.B)
	if err := ValidatePort(devA, req.A); err != nil {
		return nil, err
	}
	if err := ValidatePort(devB, req.B); err != nil {
		return nil, err
	}
	if req.A == req.B {
		return nil, fmt.Errorf("%w: %s cannot connect to itself", ErrInvalidLink, req.A)
	}

	if !req.Force {
		for _, pair := range [][2]model.PortRef{{req.B, req.A}, {req.A, req.B}} {
			port, want := pair[0], pair[1]
			existing, ok := snap.active.LinkAt(port)
			if !ok {
				continue
			}
			if peer, _ := existing.Other(port); peer != want {
				if e.metrics != nil {
					e.metrics.ObserveLinkConflict()
				}
				e.log.Debug(ctx, "connect refused: endpoint in use",
					logging.String("port", port.String()),
					logging.String("link_id", existing.ID),
				)
				return nil, &ConflictError{Port: port, Existing: existing}
			}
		}
	}

	link := &model.Link{
		ID:        e.newID(),
		From:      req.A,
		To:        req.B,
		Kind:      req.Kind,
		Speed:     req.Speed,
		Color:     LinkColor(req.Kind, req.Speed, devA.Type, devB.Type),
		CreatedAt: e.clock.Now(),
	}
	// The new link is stored before replaced links are deleted, so a failed
	// insert leaves existing cabling intact.
	if err := e.store.AddLink(link); err != nil {
		return nil, fmt.Errorf("add link: %w", err)
	}
	res := &ConnectResult{Link: link}
	for _, stored := range snap.links {
		if stored == nil || !occupies(snap.devices, stored, req.A, req.B) {
			continue
		}
		if err := e.store.DeleteLink(stored.ID); err != nil {
			e.log.Warn(ctx, "replaced link left for heal",
				logging.String("link_id", stored.ID),
				logging.Err(err),
			)
			continue
		}
		res.Replaced = append(res.Replaced, stored)
	}

	e.log.Info(ctx, "link connected",
		logging.String("link_id", link.ID),
		logging.String("from", link.From.String()),
		logging.String("to", link.To.String()),
		logging.Int("replaced", len(res.Replaced)),
	)
	return res, nil
}

// occupies reports whether stored, once normalized, touches a or b.
func occupies(devices map[string]*model.Device, stored *model.Link, a, b model.PortRef) bool {
	for _, p := range []model.PortRef{stored.From, stored.To} {
		n, reason := normalizeEndpoint(devices, p)
		if reason == DropMissingDevice {
			continue
		}
		if n == a || n == b {
			return true
		}
	}
	return false
}

// Disconnect removes the link with id. The far endpoint simply reads as free
// afterwards.
func (e *Engine) Disconnect(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty link id", ErrInvalidLink)
	}
	if err := e.store.DeleteLink(id); err != nil {
		return err
	}
	e.log.Info(ctx, "link disconnected", logging.String("link_id", id))
	return nil
}

// HealReport lists the stored links the heal pass removed.
type HealReport struct {
	Removed []DroppedLink
}

// Heal deletes from storage every link the active-link derivation drops, so
// storage converges on the deduplicated view. Links already gone from the
// store are ignored.
func (e *Engine) Heal(ctx context.Context) (*HealReport, error) {
	snap, err := e.load()
	if err != nil {
		return nil, err
	}

	report := &HealReport{}
	var errs []error
	for _, d := range snap.active.Dropped() {
		if err := e.store.DeleteLink(d.Link.ID); err != nil {
			if errors.Is(err, ErrLinkNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("prune link %q: %w", d.Link.ID, err))
			continue
		}
		report.Removed = append(report.Removed, d)
		e.log.Debug(ctx, "pruned stale link",
			logging.String("link_id", d.Link.ID),
			logging.String("reason", string(d.Reason)),
		)
	}

	if n := len(report.Removed); n > 0 {
		if e.metrics != nil {
			e.metrics.ObserveLinksPruned(n)
		}
		e.log.Info(ctx, "heal pass pruned links", logging.Int("count", n))
	}
	return report, errors.Join(errs...)
}
