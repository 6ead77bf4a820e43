package core

import "github.com/signalsfoundry/rackplan/model"

var speedColors = map[model.Speed]string{
	model.Speed100M: "#9e9e9e",
	model.Speed1G:   "#2196f3",
	model.Speed10G:  "#4caf50",
	model.Speed25G:  "#ff9800",
	model.Speed40G:  "#9c27b0",
	model.Speed100G: "#f44336",
}

var kindColors = map[model.PortKind]string{
	model.PortEthernet: "#607d8b",
	model.PortFiber:    "#ffeb3b",
}

// LinkColor picks the cable colour: by speed when either end supports speed
// and one was given, else the per-kind default.
func LinkColor(kind model.PortKind, speed model.Speed, endpoints ...model.DeviceType) string {
	if speed != model.SpeedUnset {
		for _, t := range endpoints {
			if !SupportsSpeed(t) {
				continue
			}
			if c, ok := speedColors[speed]; ok {
				return c
			}
		}
	}
	return kindColors[kind]
}
