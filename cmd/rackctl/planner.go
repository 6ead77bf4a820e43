package main

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/rackplan/core"
	"github.com/signalsfoundry/rackplan/internal/api"
	"github.com/signalsfoundry/rackplan/internal/logging"
	"github.com/signalsfoundry/rackplan/internal/store/sqlite"
	"github.com/signalsfoundry/rackplan/kb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// planner is the subset of PlannerService rackctl drives. *api.Client
// satisfies it directly; localPlanner adapts an in-process api.Service.
type planner interface {
	IsFree(ctx context.Context, in *api.IsFreeRequest) (*api.IsFreeResponse, error)
	FirstFit(ctx context.Context, in *api.FitRequest) (*api.FitResponse, error)
	NearestFit(ctx context.Context, in *api.FitRequest) (*api.FitResponse, error)
	MaxContiguousFree(ctx context.Context, rackID string) (*api.CapacityResponse, error)
	ListDevices(ctx context.Context, rackID string) (*api.ListDevicesResponse, error)
	PlaceDevice(ctx context.Context, in *api.PlaceDeviceRequest) (*api.DeviceResponse, error)
	Connect(ctx context.Context, in *api.ConnectRequest) (*api.ConnectResponse, error)
	Disconnect(ctx context.Context, linkID string) error
	Trace(ctx context.Context, in *api.PortRequest) (*api.TraceResponse, error)
	ActiveLinks(ctx context.Context) (*api.ActiveLinksResponse, error)
	PortStatus(ctx context.Context, in *api.PortRequest) (*api.PortStatusResponse, error)
	Heal(ctx context.Context) (*api.HealResponse, error)
}

var _ planner = (*api.Client)(nil)

type localPlanner struct {
	*api.Service
}

func (p localPlanner) MaxContiguousFree(ctx context.Context, rackID string) (*api.CapacityResponse, error) {
	return p.Service.MaxContiguousFree(ctx, &api.RackRequest{RackID: rackID})
}

func (p localPlanner) ListDevices(ctx context.Context, rackID string) (*api.ListDevicesResponse, error) {
	return p.Service.ListDevices(ctx, &api.ListDevicesRequest{RackID: rackID})
}

func (p localPlanner) Disconnect(ctx context.Context, linkID string) error {
	_, err := p.Service.Disconnect(ctx, &api.DisconnectRequest{LinkID: linkID})
	return err
}

func (p localPlanner) ActiveLinks(ctx context.Context) (*api.ActiveLinksResponse, error) {
	return p.Service.ActiveLinks(ctx, &api.Empty{})
}

func (p localPlanner) Heal(ctx context.Context) (*api.HealResponse, error) {
	return p.Service.Heal(ctx, &api.Empty{})
}

// connection holds where rackctl reads the plan from.
type connection struct {
	server   string
	dbPath   string
	planFile string
}

// open returns a planner and a release func. A server address wins over
// local sources; otherwise the plan file is loaded into the SQLite
// database when one is named, else into memory.
func (c connection) open(log logging.Logger) (planner, func(), error) {
	if c.server != "" {
		conn, err := grpc.NewClient(c.server,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithUnaryInterceptor(api.RequestIDUnaryClientInterceptor()),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("dial %s: %w", c.server, err)
		}
		return api.NewClient(conn), func() { _ = conn.Close() }, nil
	}

	if c.dbPath == "" && c.planFile == "" {
		return nil, nil, fmt.Errorf("one of --server, --db or --plan is required")
	}

	var (
		repo    core.Repository
		release = func() {}
	)
	if c.dbPath != "" {
		store, err := sqlite.Open(c.dbPath)
		if err != nil {
			return nil, nil, err
		}
		repo = store
		release = func() { _ = store.Close() }
	} else {
		repo = kb.NewKnowledgeBase()
	}

	if c.planFile != "" {
		if _, err := kb.LoadPlanFile(repo, c.planFile); err != nil {
			release()
			return nil, nil, err
		}
	}

	engine := core.NewEngine(repo, log)
	return localPlanner{api.NewService(engine, repo, log)}, release, nil
}
