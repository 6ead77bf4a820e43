// Package api exposes the placement engine over gRPC as
// rackplan.v1.PlannerService. Requests and responses are
// google.protobuf.Struct messages carrying the JSON form of the types in
// messages.go.
package api

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/rackplan/core"
	"github.com/signalsfoundry/rackplan/internal/logging"
	"github.com/signalsfoundry/rackplan/internal/observability"
	"github.com/signalsfoundry/rackplan/model"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "rackplan.v1.PlannerService"

// Method names.
const (
	MethodIsFree            = "IsFree"
	MethodFirstFit          = "FirstFit"
	MethodNearestFit        = "NearestFit"
	MethodMaxContiguousFree = "MaxContiguousFree"
	MethodCreateRack        = "CreateRack"
	MethodGetRack           = "GetRack"
	MethodListRacks         = "ListRacks"
	MethodResizeRack        = "ResizeRack"
	MethodDeleteRack        = "DeleteRack"
	MethodCreateDevice      = "CreateDevice"
	MethodGetDevice         = "GetDevice"
	MethodListDevices       = "ListDevices"
	MethodPlaceDevice       = "PlaceDevice"
	MethodResizeDevice      = "ResizeDevice"
	MethodSetPortCounts     = "SetPortCounts"
	MethodDeleteDevice      = "DeleteDevice"
	MethodConnect           = "Connect"
	MethodDisconnect        = "Disconnect"
	MethodTrace             = "Trace"
	MethodActiveLinks       = "ActiveLinks"
	MethodPortStatus        = "PortStatus"
	MethodHeal              = "Heal"
)

// FullMethod returns the gRPC path for name.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// PlannerServer is the handler type registered with grpc.
type PlannerServer interface {
	Trace(ctx context.Context, in *PortRequest) (*TraceResponse, error)
}

// Service implements PlannerService on top of a core.Engine and the
// repository it reads.
type Service struct {
	engine *core.Engine
	repo   core.Repository
	log    logging.Logger
}

// NewService binds a Service to engine and repo.
func NewService(engine *core.Engine, repo core.Repository, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{engine: engine, repo: repo, log: log}
}

// Register attaches s to server.
func Register(server grpc.ServiceRegistrar, s *Service) {
	server.RegisterService(&ServiceDesc, s)
}

// ServiceDesc describes PlannerService for grpc.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PlannerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodIsFree, (*Service).IsFree),
		unary(MethodFirstFit, (*Service).FirstFit),
		unary(MethodNearestFit, (*Service).NearestFit),
		unary(MethodMaxContiguousFree, (*Service).MaxContiguousFree),
		unary(MethodCreateRack, (*Service).CreateRack),
		unary(MethodGetRack, (*Service).GetRack),
		unary(MethodListRacks, (*Service).ListRacks),
		unary(MethodResizeRack, (*Service).ResizeRack),
		unary(MethodDeleteRack, (*Service).DeleteRack),
		unary(MethodCreateDevice, (*Service).CreateDevice),
		unary(MethodGetDevice, (*Service).GetDevice),
		unary(MethodListDevices, (*Service).ListDevices),
		unary(MethodPlaceDevice, (*Service).PlaceDevice),
		unary(MethodResizeDevice, (*Service).ResizeDevice),
		unary(MethodSetPortCounts, (*Service).SetPortCounts),
		unary(MethodDeleteDevice, (*Service).DeleteDevice),
		unary(MethodConnect, (*Service).Connect),
		unary(MethodDisconnect, (*Service).Disconnect),
		unary(MethodTrace, (*Service).Trace),
		unary(MethodActiveLinks, (*Service).ActiveLinks),
		unary(MethodPortStatus, (*Service).PortStatus),
		unary(MethodHeal, (*Service).Heal),
	},
	Metadata: "rackplan/v1/planner.proto",
}

// unary adapts a typed handler to a grpc.MethodDesc.
func unary[Req, Resp any](name string, call func(*Service, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				var typed Req
				if err := fromStruct(req.(*structpb.Struct), &typed); err != nil {
					return nil, ToStatusError(err)
				}
				out, err := call(srv.(*Service), ctx, &typed)
				if err != nil {
					return nil, ToStatusError(err)
				}
				msg, err := toStruct(out)
				if err != nil {
					return nil, ToStatusError(err)
				}
				return msg, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func (s *Service) logger(ctx context.Context) logging.Logger {
	return logging.FromContext(ctx, s.log)
}

//
// ---------- Slot queries ----------
//

// IsFree reports whether a unit range is free.
func (s *Service) IsFree(ctx context.Context, in *IsFreeRequest) (*IsFreeResponse, error) {
	alloc, err := s.engine.Allocator(in.RackID)
	if err != nil {
		return nil, err
	}
	return &IsFreeResponse{Free: alloc.IsFree(in.Start, in.Size, in.ExcludeID)}, nil
}

// FirstFit returns the lowest free start for a size.
func (s *Service) FirstFit(ctx context.Context, in *FitRequest) (*FitResponse, error) {
	alloc, err := s.allocator(in.RackID, in.ExcludeID)
	if err != nil {
		return nil, err
	}
	start, ok := alloc.FirstFit(in.Size)
	return &FitResponse{Start: start, Found: ok}, nil
}

// NearestFit returns the free start closest to a target.
func (s *Service) NearestFit(ctx context.Context, in *FitRequest) (*FitResponse, error) {
	if in.Target == nil {
		return nil, fmt.Errorf("%w: target is required", ErrInvalidRequest)
	}
	alloc, err := s.allocator(in.RackID, in.ExcludeID)
	if err != nil {
		return nil, err
	}
	start, ok := alloc.NearestFit(*in.Target, in.Size)
	return &FitResponse{Start: start, Found: ok}, nil
}

func (s *Service) allocator(rackID, excludeID string) (*core.SlotAllocator, error) {
	alloc, err := s.engine.Allocator(rackID)
	if err != nil {
		return nil, err
	}
	if excludeID != "" {
		alloc = alloc.Without(excludeID)
	}
	return alloc, nil
}

// MaxContiguousFree reports rack capacity, the longest free run and any
// overlapping devices.
func (s *Service) MaxContiguousFree(ctx context.Context, in *RackRequest) (*CapacityResponse, error) {
	alloc, err := s.engine.Allocator(in.RackID)
	if err != nil {
		return nil, err
	}
	return &CapacityResponse{
		RackID:            in.RackID,
		TotalUnits:        alloc.TotalUnits(),
		MaxContiguousFree: alloc.MaxContiguousFree(),
		Overlaps:          alloc.Overlaps(),
	}, nil
}

//
// ---------- Racks ----------
//

// CreateRack adds a rack; zero capacity means the default 42U.
func (s *Service) CreateRack(ctx context.Context, in *CreateRackRequest) (*RackResponse, error) {
	rack := in.Rack
	if rack.TotalUnits == 0 {
		rack.TotalUnits = model.DefaultRackUnits
	}
	ctx, span := observability.StartSpan(ctx, "planner/rack/create", "rack", rack.ID)
	defer span.End()

	if err := s.repo.CreateRack(&rack); err != nil {
		return nil, err
	}
	s.logger(ctx).Info(ctx, "rack created",
		logging.String("rack_id", rack.ID),
		logging.Int("total_units", rack.TotalUnits),
	)
	return &RackResponse{Rack: &rack}, nil
}

// GetRack returns one rack.
func (s *Service) GetRack(ctx context.Context, in *RackRequest) (*RackResponse, error) {
	rack, err := s.repo.GetRack(in.RackID)
	if err != nil {
		return nil, err
	}
	return &RackResponse{Rack: rack}, nil
}

// ListRacks returns every rack.
func (s *Service) ListRacks(ctx context.Context, _ *Empty) (*ListRacksResponse, error) {
	racks, err := s.repo.ListRacks()
	if err != nil {
		return nil, err
	}
	return &ListRacksResponse{Racks: racks}, nil
}

// ResizeRack changes rack capacity.
func (s *Service) ResizeRack(ctx context.Context, in *ResizeRackRequest) (*RackResponse, error) {
	ctx, span := observability.StartSpan(ctx, "planner/rack/resize", "rack", in.RackID,
		attribute.Int("units", in.Units))
	defer span.End()

	rack, err := s.engine.ResizeRack(ctx, in.RackID, in.Units)
	if err != nil {
		return nil, err
	}
	return &RackResponse{Rack: rack}, nil
}

// DeleteRack removes a rack with its devices and their links.
func (s *Service) DeleteRack(ctx context.Context, in *RackRequest) (*Empty, error) {
	ctx, span := observability.StartSpan(ctx, "planner/rack/delete", "rack", in.RackID)
	defer span.End()

	if err := s.repo.DeleteRack(in.RackID); err != nil {
		return nil, err
	}
	s.logger(ctx).Info(ctx, "rack deleted", logging.String("rack_id", in.RackID))
	return &Empty{}, nil
}

//
// ---------- Devices ----------
//

// CreateDevice adds a device, placing it when unit_start is zero.
func (s *Service) CreateDevice(ctx context.Context, in *CreateDeviceRequest) (*DeviceResponse, error) {
	d := in.Device.Clone()
	if d.UnitSize == 0 {
		d.UnitSize = 1
	}
	ctx, span := observability.StartSpan(ctx, "planner/device/create", "device", d.ID)
	defer span.End()

	if d.UnitStart == 0 {
		if _, err := s.repo.EnsureRack(d.RackID); err != nil {
			return nil, err
		}
		start, err := s.engine.ProposePlacement(d.RackID, d.UnitSize, in.Target, "")
		if err != nil {
			return nil, err
		}
		d.UnitStart = start
	}
	if err := s.repo.AddDevice(d); err != nil {
		return nil, err
	}
	s.logger(ctx).Info(ctx, "device created",
		logging.String("device_id", d.ID),
		logging.String("rack_id", d.RackID),
		logging.Int("unit_start", d.UnitStart),
	)
	return &DeviceResponse{Device: d}, nil
}

// GetDevice returns one device.
func (s *Service) GetDevice(ctx context.Context, in *DeviceRequest) (*DeviceResponse, error) {
	d, err := s.repo.GetDevice(in.DeviceID)
	if err != nil {
		return nil, err
	}
	return &DeviceResponse{Device: d}, nil
}

// ListDevices returns every device, or those in one rack.
func (s *Service) ListDevices(ctx context.Context, in *ListDevicesRequest) (*ListDevicesResponse, error) {
	var (
		devices []*model.Device
		err     error
	)
	if in.RackID != "" {
		devices, err = s.repo.ListRackDevices(in.RackID)
	} else {
		devices, err = s.repo.ListDevices()
	}
	if err != nil {
		return nil, err
	}
	return &ListDevicesResponse{Devices: devices}, nil
}

// PlaceDevice moves a device by first or nearest fit.
func (s *Service) PlaceDevice(ctx context.Context, in *PlaceDeviceRequest) (*DeviceResponse, error) {
	ctx, span := observability.StartSpan(ctx, "planner/device/place", "device", in.DeviceID)
	defer span.End()

	d, err := s.engine.PlaceDevice(ctx, in.DeviceID, in.RackID, in.Target)
	if err != nil {
		return nil, err
	}
	return &DeviceResponse{Device: d}, nil
}

// ResizeDevice changes a device's height.
func (s *Service) ResizeDevice(ctx context.Context, in *ResizeDeviceRequest) (*DeviceResponse, error) {
	ctx, span := observability.StartSpan(ctx, "planner/device/resize", "device", in.DeviceID,
		attribute.Int("size", in.Size))
	defer span.End()

	d, err := s.engine.ResizeDevice(ctx, in.DeviceID, in.Size)
	if err != nil {
		return nil, err
	}
	return &DeviceResponse{Device: d}, nil
}

// SetPortCounts changes a device's port counts.
func (s *Service) SetPortCounts(ctx context.Context, in *SetPortCountsRequest) (*DeviceResponse, error) {
	ctx, span := observability.StartSpan(ctx, "planner/device/ports", "device", in.DeviceID)
	defer span.End()

	d, err := s.engine.SetPortCounts(ctx, in.DeviceID, in.Ethernet, in.Fiber)
	if err != nil {
		return nil, err
	}
	return &DeviceResponse{Device: d}, nil
}

// DeleteDevice removes a device. Its links become stale.
func (s *Service) DeleteDevice(ctx context.Context, in *DeviceRequest) (*Empty, error) {
	ctx, span := observability.StartSpan(ctx, "planner/device/delete", "device", in.DeviceID)
	defer span.End()

	if err := s.repo.DeleteDevice(in.DeviceID); err != nil {
		return nil, err
	}
	s.logger(ctx).Info(ctx, "device deleted", logging.String("device_id", in.DeviceID))
	return &Empty{}, nil
}

//
// ---------- Links ----------
//

// Connect cables two ports.
func (s *Service) Connect(ctx context.Context, in *ConnectRequest) (*ConnectResponse, error) {
	ctx, span := observability.StartSpan(ctx, "planner/link/connect", "port", in.A.String(),
		attribute.String("peer", in.B.String()),
		attribute.Bool("force", in.Force),
	)
	defer span.End()

	res, err := s.engine.Connect(ctx, core.ConnectRequest{
		A:     in.A,
		B:     in.B,
		Kind:  in.Kind,
		Speed: in.Speed,
		Force: in.Force,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &ConnectResponse{Link: res.Link, Replaced: res.Replaced}, nil
}

// Disconnect removes a link.
func (s *Service) Disconnect(ctx context.Context, in *DisconnectRequest) (*Empty, error) {
	ctx, span := observability.StartSpan(ctx, "planner/link/disconnect", "link", in.LinkID)
	defer span.End()

	if err := s.engine.Disconnect(ctx, in.LinkID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// Trace resolves the oriented cable run through a port.
func (s *Service) Trace(ctx context.Context, in *PortRequest) (*TraceResponse, error) {
	_, span := observability.StartSpan(ctx, "planner/trace", "port", in.Port.String())
	defer span.End()

	segs, err := s.engine.Trace(in.Port)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("segments", len(segs)))
	return &TraceResponse{Segments: segs}, nil
}

// ActiveLinks returns the deduplicated link set and what it dropped.
func (s *Service) ActiveLinks(ctx context.Context, _ *Empty) (*ActiveLinksResponse, error) {
	set, err := s.engine.ActiveLinks()
	if err != nil {
		return nil, err
	}
	return &ActiveLinksResponse{Links: set.Links(), Dropped: droppedViews(set.Dropped())}, nil
}

// PortStatus reports one port's connection.
func (s *Service) PortStatus(ctx context.Context, in *PortRequest) (*PortStatusResponse, error) {
	st, err := s.engine.PortStatus(in.Port)
	if err != nil {
		return nil, err
	}
	return &PortStatusResponse{
		Port:      st.Port,
		Name:      st.Name,
		Connected: st.Connected,
		LinkID:    st.LinkID,
		Peer:      st.Peer,
		PeerName:  st.PeerName,
	}, nil
}

// Heal deletes stale and superseded links from storage.
func (s *Service) Heal(ctx context.Context, _ *Empty) (*HealResponse, error) {
	ctx, span := observability.StartSpan(ctx, "planner/heal", "", "")
	defer span.End()

	report, err := s.engine.Heal(ctx)
	if report == nil {
		return nil, err
	}
	if err != nil {
		s.logger(ctx).Warn(ctx, "heal pass incomplete", logging.Err(err))
	}
	return &HealResponse{Removed: droppedViews(report.Removed)}, nil
}
