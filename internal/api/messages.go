package api

import (
	"github.com/signalsfoundry/rackplan/core"
	"github.com/signalsfoundry/rackplan/model"
)

// Empty is the response of operations that return nothing.
type Empty struct{}

type IsFreeRequest struct {
	RackID    string `json:"rack_id"`
	Start     int    `json:"start"`
	Size      int    `json:"size"`
	ExcludeID string `json:"exclude_id,omitempty"`
}

type IsFreeResponse struct {
	Free bool `json:"free"`
}

// FitRequest serves FirstFit (Target ignored) and NearestFit (Target
// required).
type FitRequest struct {
	RackID    string `json:"rack_id"`
	Size      int    `json:"size"`
	Target    *int   `json:"target,omitempty"`
	ExcludeID string `json:"exclude_id,omitempty"`
}

// FitResponse carries the chosen start; Found is false when nothing fits.
type FitResponse struct {
	Start int  `json:"start"`
	Found bool `json:"found"`
}

type RackRequest struct {
	RackID string `json:"rack_id"`
}

type CapacityResponse struct {
	RackID            string      `json:"rack_id"`
	TotalUnits        int         `json:"total_units"`
	MaxContiguousFree int         `json:"max_contiguous_free"`
	Overlaps          [][2]string `json:"overlaps,omitempty"`
}

type CreateRackRequest struct {
	Rack model.Rack `json:"rack"`
}

type RackResponse struct {
	Rack *model.Rack `json:"rack"`
}

type ListRacksResponse struct {
	Racks []*model.Rack `json:"racks"`
}

// CreateDeviceRequest adds a device. A zero unit_start asks the server to
// place it: at the free start nearest Target when given, else first fit.
type CreateDeviceRequest struct {
	Device model.Device `json:"device"`
	Target *int         `json:"target,omitempty"`
}

type DeviceRequest struct {
	DeviceID string `json:"device_id"`
}

type DeviceResponse struct {
	Device *model.Device `json:"device"`
}

type ListDevicesRequest struct {
	RackID string `json:"rack_id,omitempty"`
}

type ListDevicesResponse struct {
	Devices []*model.Device `json:"devices"`
}

type PlaceDeviceRequest struct {
	DeviceID string `json:"device_id"`
	RackID   string `json:"rack_id,omitempty"`
	Target   *int   `json:"target,omitempty"`
}

type ResizeDeviceRequest struct {
	DeviceID string `json:"device_id"`
	Size     int    `json:"size"`
}

type ResizeRackRequest struct {
	RackID string `json:"rack_id"`
	Units  int    `json:"units"`
}

type SetPortCountsRequest struct {
	DeviceID string `json:"device_id"`
	Ethernet int    `json:"ethernet"`
	Fiber    int    `json:"fiber"`
}

type ConnectRequest struct {
	A     model.PortRef  `json:"a"`
	B     model.PortRef  `json:"b"`
	Kind  model.PortKind `json:"kind,omitempty"`
	Speed model.Speed    `json:"speed,omitempty"`
	Force bool           `json:"force,omitempty"`
}

type ConnectResponse struct {
	Link     *model.Link   `json:"link"`
	Replaced []*model.Link `json:"replaced,omitempty"`
}

type DisconnectRequest struct {
	LinkID string `json:"link_id"`
}

type PortRequest struct {
	Port model.PortRef `json:"port"`
}

type TraceResponse struct {
	Segments []core.PathSegment `json:"segments"`
}

// DroppedLink is a stored link left out of the active set.
type DroppedLink struct {
	Link   *model.Link `json:"link"`
	Reason string      `json:"reason"`
}

type ActiveLinksResponse struct {
	Links   []*model.Link `json:"links"`
	Dropped []DroppedLink `json:"dropped,omitempty"`
}

type PortStatusResponse struct {
	Port      model.PortRef  `json:"port"`
	Name      string         `json:"name"`
	Connected bool           `json:"connected"`
	LinkID    string         `json:"link_id,omitempty"`
	Peer      *model.PortRef `json:"peer,omitempty"`
	PeerName  string         `json:"peer_name,omitempty"`
}

type HealResponse struct {
	Removed []DroppedLink `json:"removed"`
}

func droppedViews(in []core.DroppedLink) []DroppedLink {
	out := make([]DroppedLink, 0, len(in))
	for _, d := range in {
		out = append(out, DroppedLink{Link: d.Link, Reason: string(d.Reason)})
	}
	return out
}
