package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/rackplan/core"
	"github.com/signalsfoundry/rackplan/internal/logging"
	"github.com/signalsfoundry/rackplan/internal/observability"
	"github.com/signalsfoundry/rackplan/kb"
	"github.com/signalsfoundry/rackplan/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type fixture struct {
	client    *Client
	store     *kb.KnowledgeBase
	collector *observability.PlannerCollector
}

func startServer(t *testing.T) *fixture {
	t.Helper()

	reg := prometheus.NewRegistry()
	collector, err := observability.NewPlannerCollector(reg)
	if err != nil {
		t.Fatalf("NewPlannerCollector: %v", err)
	}
	store := kb.NewKnowledgeBase(kb.WithMetricsRecorder(collector))
	engine := core.NewEngine(store, logging.Noop(), core.WithMetrics(collector))

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RequestIDUnaryServerInterceptor(logging.Noop()),
		collector.UnaryServerInterceptor(),
	))
	Register(server, NewService(engine, store, logging.Noop()))

	lis := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(RequestIDUnaryClientInterceptor()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &fixture{client: NewClient(conn), store: store, collector: collector}
}

func port(dev string, idx int) model.PortRef {
	return model.PortRef{DeviceID: dev, Kind: model.PortEthernet, Index: idx}
}

func TestPlannerServiceEndToEnd(t *testing.T) {
	f := startServer(t)
	ctx := context.Background()

	if _, err := f.client.CreateRack(ctx, &CreateRackRequest{Rack: model.Rack{ID: "r1", Name: "Row A"}}); err != nil {
		t.Fatalf("CreateRack: %v", err)
	}

	fit, err := f.client.FirstFit(ctx, &FitRequest{RackID: "r1", Size: 2})
	if err != nil || !fit.Found || fit.Start != 1 {
		t.Fatalf("FirstFit = %+v, %v", fit, err)
	}
	sw, err := f.client.CreateDevice(ctx, &CreateDeviceRequest{Device: model.Device{
		ID: "sw", RackID: "r1", Name: "tor", Type: model.DeviceSwitch, UnitSize: 2, EthPortCount: 24,
		Details: model.SwitchDetails{MgmtIP: "10.0.0.1"},
	}})
	if err != nil || sw.Device.UnitStart != 1 {
		t.Fatalf("CreateDevice(sw) = %+v, %v", sw, err)
	}
	if det, ok := sw.Device.Details.(model.SwitchDetails); !ok || det.MgmtIP != "10.0.0.1" {
		t.Fatalf("details lost over the wire: %#v", sw.Device.Details)
	}

	target := 5
	near, err := f.client.NearestFit(ctx, &FitRequest{RackID: "r1", Size: 1, Target: &target})
	if err != nil || near.Start != 5 {
		t.Fatalf("NearestFit = %+v, %v", near, err)
	}
	for _, id := range []string{"s1", "s2"} {
		if _, err := f.client.CreateDevice(ctx, &CreateDeviceRequest{
			Device: model.Device{ID: id, RackID: "r1", Type: model.DeviceServer, EthPortCount: 2},
			Target: &target,
		}); err != nil {
			t.Fatalf("CreateDevice(%s): %v", id, err)
		}
	}

	free, err := f.client.IsFree(ctx, &IsFreeRequest{RackID: "r1", Start: 5, Size: 1})
	if err != nil || free.Free {
		t.Fatalf("IsFree(5) = %+v, %v", free, err)
	}
	capacity, err := f.client.MaxContiguousFree(ctx, "r1")
	if err != nil || capacity.TotalUnits != 42 || capacity.MaxContiguousFree != 36 {
		t.Fatalf("MaxContiguousFree = %+v, %v", capacity, err)
	}

	conn, err := f.client.Connect(ctx, &ConnectRequest{A: port("sw", 1), B: port("s1", 1), Speed: model.Speed10G})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	_, err = f.client.Connect(ctx, &ConnectRequest{A: port("s2", 1), B: port("sw", 1)})
	if status.Code(err) != codes.AlreadyExists {
		t.Fatalf("conflicting Connect code = %v, want AlreadyExists", status.Code(err))
	}
	if got := testutil.ToFloat64(f.collector.LinkConflicts); got != 1 {
		t.Fatalf("link_conflicts_total = %v", got)
	}

	trace, err := f.client.Trace(ctx, &PortRequest{Port: port("sw", 1)})
	if err != nil || len(trace.Segments) != 2 {
		t.Fatalf("Trace = %+v, %v", trace, err)
	}
	if trace.Segments[0].Group != core.GroupServer || trace.Segments[1].DeviceID != "sw" {
		t.Fatalf("trace order = %+v", trace.Segments)
	}

	st, err := f.client.PortStatus(ctx, &PortRequest{Port: port("s1", 1)})
	if err != nil || !st.Connected || st.LinkID != conn.Link.ID || st.PeerName != "tor Gi1/0/1" {
		t.Fatalf("PortStatus = %+v, %v", st, err)
	}

	if _, err := f.client.SetPortCounts(ctx, &SetPortCountsRequest{DeviceID: "s1", Ethernet: 0}); err != nil {
		t.Fatalf("SetPortCounts: %v", err)
	}
	active, err := f.client.ActiveLinks(ctx)
	if err != nil || len(active.Links) != 0 || len(active.Dropped) != 1 || active.Dropped[0].Reason != "port_out_of_range" {
		t.Fatalf("ActiveLinks = %+v, %v", active, err)
	}
	healed, err := f.client.Heal(ctx)
	if err != nil || len(healed.Removed) != 1 {
		t.Fatalf("Heal = %+v, %v", healed, err)
	}

	if got := testutil.ToFloat64(f.collector.RPCRequests.WithLabelValues("PlannerService", "Connect", "OK")); got != 1 {
		t.Fatalf("rackplan_requests_total{Connect,OK} = %v", got)
	}
}

func TestPlannerServiceStatusCodes(t *testing.T) {
	f := startServer(t)
	ctx := context.Background()
	if err := f.store.AddDevice(&model.Device{ID: "s1", RackID: "r1", Type: model.DeviceServer, UnitStart: 1, UnitSize: 40, EthPortCount: 1}); err != nil {
		t.Fatalf("AddDevice: %v", err)
	}

	tests := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{"port out of range", func() error {
			_, err := f.client.Trace(ctx, &PortRequest{Port: port("s1", 2)})
			return err
		}, codes.OutOfRange},
		{"placement", func() error {
			_, err := f.client.CreateDevice(ctx, &CreateDeviceRequest{Device: model.Device{ID: "big", RackID: "r1", Type: model.DeviceServer, UnitSize: 3}})
			return err
		}, codes.ResourceExhausted},
		{"missing rack", func() error {
			_, err := f.client.GetRack(ctx, "nope")
			return err
		}, codes.NotFound},
		{"missing link", func() error {
			return f.client.Disconnect(ctx, "nope")
		}, codes.NotFound},
		{"nearest without target", func() error {
			_, err := f.client.NearestFit(ctx, &FitRequest{RackID: "r1", Size: 1})
			return err
		}, codes.InvalidArgument},
		{"duplicate rack", func() error {
			_, err := f.client.CreateRack(ctx, &CreateRackRequest{Rack: model.Rack{ID: "r1"}})
			return err
		}, codes.AlreadyExists},
	}
	for _, tt := range tests {
		if got := status.Code(tt.call()); got != tt.want {
			t.Fatalf("%s: code = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	f := startServer(t)
	ctx := logging.ContextWithRequestID(context.Background(), "req-123")

	var header metadata.MD
	in, _ := toStruct(&Empty{})
	out := new(structpb.Struct)
	if err := f.client.conn.Invoke(ctx, FullMethod(MethodListRacks), in, out, grpc.Header(&header)); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := header.Get(requestIDMetadataKey); len(got) == 0 || got[0] != "req-123" {
		t.Fatalf("response request id = %v, want req-123", got)
	}
}

func TestToStatusError(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{nil, codes.OK},
		{&core.PlacementError{RackID: "r", Size: 2, Reason: "no_free_block"}, codes.ResourceExhausted},
		{&core.ConflictError{Port: port("a", 1), Existing: &model.Link{ID: "l", From: port("a", 1), To: port("b", 1)}}, codes.AlreadyExists},
		{core.ErrPortOutOfRange, codes.OutOfRange},
		{core.ErrDeviceNotFound, codes.NotFound},
		{core.ErrInvalidLink, codes.InvalidArgument},
		{ErrInvalidRequest, codes.InvalidArgument},
		{errors.New("boom"), codes.Internal},
		{status.Error(codes.Unavailable, "down"), codes.Unavailable},
	}
	for _, tt := range tests {
		if got := status.Code(ToStatusError(tt.err)); got != tt.want {
			t.Fatalf("ToStatusError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestServerInterceptorLogsDuration(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Config{Level: "debug", Format: "json", Output: &buf})
	intercept := RequestIDUnaryServerInterceptor(log)

	info := &grpc.UnaryServerInfo{FullMethod: FullMethod(MethodHeal)}
	_, err := intercept(context.Background(), &Empty{}, info, func(ctx context.Context, req any) (any, error) {
		return nil, core.ErrInvalidLink
	})
	if !errors.Is(err, core.ErrInvalidLink) {
		t.Fatalf("interceptor error = %v, want handler error", err)
	}

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "request finished" || rec["method"] != FullMethod(MethodHeal) {
		t.Fatalf("log record = %v", rec)
	}
	if _, ok := rec["duration"].(float64); !ok {
		t.Fatalf("duration = %v (%T), want a number", rec["duration"], rec["duration"])
	}
	if rec["error"] != core.ErrInvalidLink.Error() {
		t.Fatalf("error = %v", rec["error"])
	}
	if id, _ := rec["request_id"].(string); id == "" {
		t.Fatalf("request_id missing from %v", rec)
	}
}
