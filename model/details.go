package model

import (
	"encoding/json"
	"fmt"
)

// DeviceDetails is the per-type variant attached to a Device. Each concrete
// type only applies to the device types it was made for, so a server can
// never carry a management IP meant for a switch.
type DeviceDetails interface {
	appliesTo(DeviceType) bool
}

// SwitchDetails holds switch-only attributes.
type SwitchDetails struct {
	MgmtIP string `json:"mgmt_ip,omitempty"`
	Model  string `json:"model,omitempty"`
}

func (SwitchDetails) appliesTo(t DeviceType) bool { return t == DeviceSwitch }

// ServerDetails holds server-only attributes.
type ServerDetails struct {
	Hostname string `json:"hostname,omitempty"`
	OS       string `json:"os,omitempty"`
}

func (ServerDetails) appliesTo(t DeviceType) bool { return t == DeviceServer }

// PassiveDetails applies to patch panels and optical drawers.
type PassiveDetails struct {
	Label string `json:"label,omitempty"`
}

func (PassiveDetails) appliesTo(t DeviceType) bool {
	return t == DevicePatchPanel || t == DeviceOpticalDrawer
}

// PowerDetails applies to UPS units and power strips.
type PowerDetails struct {
	Outlets    int `json:"outlets,omitempty"`
	CapacityVA int `json:"capacity_va,omitempty"`
}

func (PowerDetails) appliesTo(t DeviceType) bool {
	return t == DeviceUPS || t == DevicePowerStrip
}

// DetailsFromJSON decodes raw into the variant matching t. Empty input yields
// nil details.
func DetailsFromJSON(t DeviceType, raw []byte) (DeviceDetails, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var target DeviceDetails
	switch t {
	case DeviceSwitch:
		var v SwitchDetails
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("switch details: %w", err)
		}
		target = v
	case DeviceServer:
		var v ServerDetails
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("server details: %w", err)
		}
		target = v
	case DevicePatchPanel, DeviceOpticalDrawer:
		var v PassiveDetails
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%s details: %w", t, err)
		}
		target = v
	case DeviceUPS, DevicePowerStrip:
		var v PowerDetails
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%s details: %w", t, err)
		}
		target = v
	default:
		return nil, fmt.Errorf("device type %q carries no details", t)
	}
	return target, nil
}
