package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// PlannerCollector bundles the Prometheus metrics for the planner: RPC
// traffic, plan entity counts and engine events. It satisfies the metric
// recorder interfaces of both the engine and the plan stores.
type PlannerCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	PlanRacks       prometheus.Gauge
	PlanDevices     prometheus.Gauge
	PlanLinks       prometheus.Gauge
	PlanActiveLinks prometheus.Gauge

	LinkConflicts       prometheus.Counter
	LinksPruned         prometheus.Counter
	PlacementRejections *prometheus.CounterVec
	TraceLength         prometheus.Histogram
}

// NewPlannerCollector registers planner metrics against reg, defaulting to
// the global registry when nil. Registering twice against the same registry
// reuses the existing collectors.
func NewPlannerCollector(reg prometheus.Registerer) (*PlannerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &PlannerCollector{gatherer: gatherer}
	var err error

	if c.RPCRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rackplan_requests_total",
		Help: "Total number of handled planner RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "rackplan_requests_total"); err != nil {
		return nil, err
	}
	if c.RPCDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rackplan_request_duration_seconds",
		Help:    "Planner RPC latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"service", "method"}), "rackplan_request_duration_seconds"); err != nil {
		return nil, err
	}

	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&c.PlanRacks, "plan_racks", "Current number of racks in the plan."},
		{&c.PlanDevices, "plan_devices", "Current number of devices in the plan."},
		{&c.PlanLinks, "plan_links", "Current number of stored links, including stale ones."},
		{&c.PlanActiveLinks, "plan_active_links", "Number of links in the last derived active set."},
	}
	for _, g := range gauges {
		if *g.dst, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: g.name, Help: g.help}), g.name); err != nil {
			return nil, err
		}
	}

	if c.LinkConflicts, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "link_conflicts_total",
		Help: "Connect attempts refused because an endpoint was already connected.",
	}), "link_conflicts_total"); err != nil {
		return nil, err
	}
	if c.LinksPruned, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "links_pruned_total",
		Help: "Stale or superseded links deleted by heal passes.",
	}), "links_pruned_total"); err != nil {
		return nil, err
	}
	if c.PlacementRejections, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "placement_rejections_total",
		Help: "Placement or resize requests denied, labeled by reason.",
	}, []string{"reason"}), "placement_rejections_total"); err != nil {
		return nil, err
	}
	if c.TraceLength, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "trace_path_segments",
		Help:    "Number of port segments in resolved cable traces.",
		Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16},
	}), "trace_path_segments"); err != nil {
		return nil, err
	}

	return c, nil
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *PlannerCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PlannerCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetPlanCounts is called by plan stores after every mutation.
func (c *PlannerCollector) SetPlanCounts(racks, devices, links int) {
	if c == nil {
		return
	}
	c.PlanRacks.Set(float64(racks))
	c.PlanDevices.Set(float64(devices))
	c.PlanLinks.Set(float64(links))
}

func (c *PlannerCollector) SetActiveLinks(n int) {
	if c == nil {
		return
	}
	c.PlanActiveLinks.Set(float64(n))
}

func (c *PlannerCollector) ObserveLinkConflict() {
	if c == nil {
		return
	}
	c.LinkConflicts.Inc()
}

func (c *PlannerCollector) ObserveLinksPruned(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.LinksPruned.Add(float64(n))
}

func (c *PlannerCollector) ObservePlacementRejected(reason string) {
	if c == nil {
		return
	}
	c.PlacementRejections.WithLabelValues(reason).Inc()
}

func (c *PlannerCollector) ObserveTraceLength(n int) {
	if c == nil {
		return
	}
	c.TraceLength.Observe(float64(n))
}

// SplitMethod parses "/pkg.Service/Method" into its service and method
// names, returning "unknown" for parts it cannot find.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	parts := strings.Split(strings.TrimPrefix(fullMethod, "/"), "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

// register adds col to reg, returning the already-registered collector of
// the same type if there is one.
func register[T prometheus.Collector](reg prometheus.Registerer, col T, name string) (T, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
