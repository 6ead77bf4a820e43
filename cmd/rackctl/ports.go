package main

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/rackplan/model"
)

// parsePort reads "device:kind/index" with an optional ":front" or ":back"
// suffix.
func parsePort(s string) (model.PortRef, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
		return model.PortRef{}, fmt.Errorf("port %q: want device:kind/index[:side]", s)
	}

	var slot model.PortSlot
	if err := slot.UnmarshalText([]byte(parts[1])); err != nil {
		return model.PortRef{}, err
	}
	ref := model.PortRef{DeviceID: parts[0], Kind: slot.Kind, Index: slot.Index}

	if len(parts) == 3 {
		switch side := model.Side(strings.ToLower(parts[2])); side {
		case model.SideFront, model.SideBack:
			ref.Side = side
		default:
			return model.PortRef{}, fmt.Errorf("port %q: unknown side %q", s, parts[2])
		}
	}
	return ref, nil
}
