package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/rackplan/core"
	"github.com/signalsfoundry/rackplan/internal/api"
	"github.com/signalsfoundry/rackplan/internal/config"
	"github.com/signalsfoundry/rackplan/internal/logging"
	"github.com/signalsfoundry/rackplan/internal/observability"
	"github.com/signalsfoundry/rackplan/internal/store/sqlite"
	"github.com/signalsfoundry/rackplan/kb"
	"google.golang.org/grpc"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewFromEnv().Error(context.Background(), "failed to load configuration", logging.Err(err))
		os.Exit(1)
	}

	grpcAddr := flag.String("grpc-addr", cfg.GRPCAddr, "TCP address the planner gRPC server listens on")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "HTTP address for Prometheus /metrics (empty disables)")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database file; empty keeps the plan in memory")
	planFile := flag.String("plan", cfg.PlanFile, "JSON or TOML plan file loaded at startup")
	heal := flag.Bool("heal", true, "prune stale and superseded links after loading")
	flag.Parse()

	log := logging.New(cfg.Logging)
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewPlannerCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}

	repo, closeRepo, err := openRepository(*dbPath, collector)
	if err != nil {
		log.Error(ctx, "failed to open plan store", logging.String("db", *dbPath), logging.Err(err))
		os.Exit(1)
	}
	defer closeRepo()

	if *planFile != "" {
		sum, err := kb.LoadPlanFile(repo, *planFile)
		if err != nil {
			log.Error(ctx, "failed to load plan", logging.String("path", *planFile), logging.Err(err))
			os.Exit(1)
		}
		log.Info(ctx, "loaded plan",
			logging.String("path", *planFile),
			logging.Int("racks", len(sum.RackIDs)),
			logging.Int("devices", len(sum.DeviceIDs)),
			logging.Int("links", len(sum.LinkIDs)),
		)
	}

	engine := core.NewEngine(repo, log, core.WithMetrics(collector))
	if *heal {
		if report, err := engine.Heal(ctx); err != nil {
			log.Warn(ctx, "startup heal incomplete", logging.Err(err))
		} else {
			log.Info(ctx, "startup heal finished", logging.Int("pruned", len(report.Removed)))
		}
	}

	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	server := grpc.NewServer(
		observability.ServerStatsHandler(),
		grpc.ChainUnaryInterceptor(
			api.RequestIDUnaryServerInterceptor(log),
			collector.UnaryServerInterceptor(),
		),
	)
	api.Register(server, api.NewService(engine, repo, log))

	lis, err := net.Listen("tcp", *grpcAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", *grpcAddr), logging.Err(err))
		os.Exit(1)
	}

	log.Info(ctx, "starting planner gRPC server", logging.String("addr", *grpcAddr))
	go func() {
		if err := server.Serve(lis); err != nil {
			log.Error(ctx, "gRPC server exited", logging.Err(err))
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-stopCtx.Done()

	log.Info(ctx, "shutting down planner server")
	server.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

// openRepository returns the SQLite store when path is set, else an
// in-memory plan reporting entity counts to collector.
func openRepository(path string, collector *observability.PlannerCollector) (core.Repository, func(), error) {
	if path == "" {
		return kb.NewKnowledgeBase(kb.WithMetricsRecorder(collector)), func() {}, nil
	}
	store, err := sqlite.Open(path, sqlite.WithMetricsRecorder(collector))
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func serveMetrics(addr string, collector *observability.PlannerCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
