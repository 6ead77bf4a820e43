package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a remote PlannerService.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any, opts ...grpc.CallOption) (*Resp, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	resp := new(Resp)
	if err := fromStruct(out, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) IsFree(ctx context.Context, in *IsFreeRequest) (*IsFreeResponse, error) {
	return invoke[IsFreeResponse](ctx, c, MethodIsFree, in)
}

func (c *Client) FirstFit(ctx context.Context, in *FitRequest) (*FitResponse, error) {
	return invoke[FitResponse](ctx, c, MethodFirstFit, in)
}

func (c *Client) NearestFit(ctx context.Context, in *FitRequest) (*FitResponse, error) {
	return invoke[FitResponse](ctx, c, MethodNearestFit, in)
}

func (c *Client) MaxContiguousFree(ctx context.Context, rackID string) (*CapacityResponse, error) {
	return invoke[CapacityResponse](ctx, c, MethodMaxContiguousFree, &RackRequest{RackID: rackID})
}

func (c *Client) CreateRack(ctx context.Context, in *CreateRackRequest) (*RackResponse, error) {
	return invoke[RackResponse](ctx, c, MethodCreateRack, in)
}

func (c *Client) GetRack(ctx context.Context, rackID string) (*RackResponse, error) {
	return invoke[RackResponse](ctx, c, MethodGetRack, &RackRequest{RackID: rackID})
}

func (c *Client) ListRacks(ctx context.Context) (*ListRacksResponse, error) {
	return invoke[ListRacksResponse](ctx, c, MethodListRacks, &Empty{})
}

func (c *Client) ResizeRack(ctx context.Context, in *ResizeRackRequest) (*RackResponse, error) {
	return invoke[RackResponse](ctx, c, MethodResizeRack, in)
}

func (c *Client) DeleteRack(ctx context.Context, rackID string) error {
	_, err := invoke[Empty](ctx, c, MethodDeleteRack, &RackRequest{RackID: rackID})
	return err
}

func (c *Client) CreateDevice(ctx context.Context, in *CreateDeviceRequest) (*DeviceResponse, error) {
	return invoke[DeviceResponse](ctx, c, MethodCreateDevice, in)
}

func (c *Client) GetDevice(ctx context.Context, deviceID string) (*DeviceResponse, error) {
	return invoke[DeviceResponse](ctx, c, MethodGetDevice, &DeviceRequest{DeviceID: deviceID})
}

func (c *Client) ListDevices(ctx context.Context, rackID string) (*ListDevicesResponse, error) {
	return invoke[ListDevicesResponse](ctx, c, MethodListDevices, &ListDevicesRequest{RackID: rackID})
}

func (c *Client) PlaceDevice(ctx context.Context, in *PlaceDeviceRequest) (*DeviceResponse, error) {
	return invoke[DeviceResponse](ctx, c, MethodPlaceDevice, in)
}

func (c *Client) ResizeDevice(ctx context.Context, in *ResizeDeviceRequest) (*DeviceResponse, error) {
	return invoke[DeviceResponse](ctx, c, MethodResizeDevice, in)
}

func (c *Client) SetPortCounts(ctx context.Context, in *SetPortCountsRequest) (*DeviceResponse, error) {
	return invoke[DeviceResponse](ctx, c, MethodSetPortCounts, in)
}

func (c *Client) DeleteDevice(ctx context.Context, deviceID string) error {
	_, err := invoke[Empty](ctx, c, MethodDeleteDevice, &DeviceRequest{DeviceID: deviceID})
	return err
}

func (c *Client) Connect(ctx context.Context, in *ConnectRequest) (*ConnectResponse, error) {
	return invoke[ConnectResponse](ctx, c, MethodConnect, in)
}

func (c *Client) Disconnect(ctx context.Context, linkID string) error {
	_, err := invoke[Empty](ctx, c, MethodDisconnect, &DisconnectRequest{LinkID: linkID})
	return err
}

func (c *Client) Trace(ctx context.Context, in *PortRequest) (*TraceResponse, error) {
	return invoke[TraceResponse](ctx, c, MethodTrace, in)
}

func (c *Client) ActiveLinks(ctx context.Context) (*ActiveLinksResponse, error) {
	return invoke[ActiveLinksResponse](ctx, c, MethodActiveLinks, &Empty{})
}

func (c *Client) PortStatus(ctx context.Context, in *PortRequest) (*PortStatusResponse, error) {
	return invoke[PortStatusResponse](ctx, c, MethodPortStatus, in)
}

func (c *Client) Heal(ctx context.Context) (*HealResponse, error) {
	return invoke[HealResponse](ctx, c, MethodHeal, &Empty{})
}
