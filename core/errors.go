package core

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/rackplan/model"
)

var (
	// ErrPlacementUnavailable means no free block of the requested size exists.
	ErrPlacementUnavailable = errors.New("placement unavailable")
	// ErrPortOutOfRange means a port coordinate does not exist on the current device.
	ErrPortOutOfRange = errors.New("port out of range")
	// ErrLinkConflict means an endpoint is already held by a different active link.
	ErrLinkConflict = errors.New("target already connected")
	// ErrInvalidLink covers malformed connect requests.
	ErrInvalidLink = errors.New("invalid link")
	// ErrInvalidDevice covers malformed device updates.
	ErrInvalidDevice = errors.New("invalid device")
	// ErrInvalidRack covers malformed rack records.
	ErrInvalidRack = errors.New("invalid rack")
)

// PlacementError explains why a placement or resize was denied.
type PlacementError struct {
	RackID string
	Size   int
	Reason string
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("%s: rack %q, %dU: %s", ErrPlacementUnavailable, e.RackID, e.Size, e.Reason)
}

func (e *PlacementError) Unwrap() error { return ErrPlacementUnavailable }

// ConflictError identifies the endpoint that is already connected and the
// link holding it. Callers may retry with Force after confirmation.
type ConflictError struct {
	Port     model.PortRef
	Existing *model.Link
}

func (e *ConflictError) Error() string {
	peer, _ := e.Existing.Other(e.Port)
	return fmt.Sprintf("%s: %s is linked to %s by %q", ErrLinkConflict, e.Port, peer, e.Existing.ID)
}

func (e *ConflictError) Unwrap() error { return ErrLinkConflict }
