package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/freightplan/config"
	"github.com/kilianp07/freightplan/core/events"
	"github.com/kilianp07/freightplan/core/ingest"
	"github.com/kilianp07/freightplan/core/matrix"
	coremetrics "github.com/kilianp07/freightplan/core/metrics"
	"github.com/kilianp07/freightplan/core/model"
	"github.com/kilianp07/freightplan/core/modes"
	coremon "github.com/kilianp07/freightplan/core/monitoring"
	"github.com/kilianp07/freightplan/core/planner"
	"github.com/kilianp07/freightplan/core/prediction"
	"github.com/kilianp07/freightplan/core/reroute"
	"github.com/kilianp07/freightplan/core/routing"
	"github.com/kilianp07/freightplan/core/store"
	"github.com/kilianp07/freightplan/infra/logger"
	"github.com/kilianp07/freightplan/infra/metrics"
	"github.com/kilianp07/freightplan/infra/monitoring"
	"github.com/kilianp07/freightplan/infra/mqtt"
	"github.com/kilianp07/freightplan/infra/oracle"
	"github.com/kilianp07/freightplan/infra/postgres"
	"github.com/kilianp07/freightplan/infra/solver"
	"github.com/kilianp07/freightplan/infra/traffic"
	"github.com/kilianp07/freightplan/infra/weather"
	"github.com/kilianp07/freightplan/internal/eventbus"
)

// Service wires the planner, the route solver and the reroute engine to
// their infrastructure.
type Service struct {
	cfg       *config.Config
	Store     store.Store
	Oracle    prediction.Oracle
	Optimizer *planner.Optimizer
	Solver    *routing.Solver
	Engine    *reroute.Engine
	Poller    *ingest.Poller

	bus      *eventbus.TypedBus[events.Event]
	sink     coremetrics.Sink
	notifier *mqtt.Notifier
	weather  prediction.WeatherSource
	traffic  prediction.TrafficSource
	monitor  coremon.Monitor
	log      logger.Logger
	now      func() time.Time
}

// New builds a Service from cfg. Connections to Postgres and the MQTT broker
// are opened here.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logger.SetLevel(cfg.Logging.Level)
	logg := logger.New("service")
	bus := eventbus.NewTyped[events.Event]()

	opt, err := NewOptimizer(cfg)
	if err != nil {
		return nil, err
	}

	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	monitor, err := monitoring.NewSentryMonitor(cfg.Monitoring)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}

	svc := &Service{
		cfg:       cfg,
		Optimizer: opt,
		bus:       bus,
		sink:      sink,
		monitor:   monitor,
		log:       logg,
		now:       time.Now,
	}

	svc.Oracle = newOracle(cfg, bus)

	svc.Solver, err = routing.NewSolver(solver.New(logger.New("solver")),
		routing.WithSearchParams(cfg.Solver.SearchParams()),
		routing.WithOptions(cfg.Solver.Options()),
		routing.WithGracePeriod(cfg.Solver.GracePeriod),
		routing.WithLogger(logger.New("routing")),
		routing.WithBus(bus),
	)
	if err != nil {
		return nil, fmt.Errorf("solver: %w", err)
	}

	svc.Store, err = newStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	var notifier reroute.Notifier = reroute.NopNotifier{}
	if cfg.MQTT.Enabled() {
		n, err := mqtt.NewNotifier(cfg.MQTT)
		if err != nil {
			_ = svc.Store.Close()
			return nil, fmt.Errorf("mqtt notifier: %w", err)
		}
		svc.notifier = n
		notifier = n
	}

	svc.Engine, err = reroute.New(cfg.Reroute, opt, svc.Store,
		reroute.WithNotifier(notifier),
		reroute.WithLogger(logger.New("reroute")),
		reroute.WithSink(sink),
		reroute.WithBus(bus),
		reroute.WithMonitor(monitor),
	)
	if err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("reroute engine: %w", err)
	}

	if cfg.Ingest.Traffic {
		svc.traffic = traffic.NewStubProvider()
	}
	if cfg.Ingest.Weather {
		wc, err := weather.NewOpenMeteoClient(cfg.Weather, nil)
		if err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("weather client: %w", err)
		}
		svc.weather = wc
	}
	if cfg.Ingest.Enabled {
		svc.Poller, err = svc.newPoller()
		if err != nil {
			_ = svc.Close()
			return nil, err
		}
	}
	return svc, nil
}

// NewOptimizer builds the mode optimizer from the mode table and chains in
// cfg.
func NewOptimizer(cfg *config.Config) (*planner.Optimizer, error) {
	params, err := cfg.Modes.Params()
	if err != nil {
		return nil, err
	}
	calc, err := modes.NewCalculator(params)
	if err != nil {
		return nil, err
	}
	chains, err := cfg.Planner.ParsedChains()
	if err != nil {
		return nil, err
	}
	opt, err := planner.New(calc, chains)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	return opt, nil
}

func newOracle(cfg *config.Config, bus eventbus.Publisher[events.Event]) prediction.Oracle {
	var remote prediction.Oracle
	if cfg.Oracle.Enabled() {
		c, err := oracle.NewHTTPClient(cfg.Oracle, oracle.WithLogger(logger.New("oracle")))
		if err == nil {
			remote = c
		} else {
			logger.New("oracle").Warnf("delay oracle disabled: %v", err)
		}
	}
	return prediction.NewFallbackOracle(remote,
		prediction.WithTimeout(cfg.Oracle.Timeout),
		prediction.WithLogger(logger.New("oracle")),
		prediction.WithBus(bus),
	)
}

func newStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.StorePostgres:
		st, err := postgres.New(ctx, cfg.Postgres, logger.New("postgres"))
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		return st, nil
	default:
		return store.NewMemoryStore(), nil
	}
}

func (s *Service) newPoller() (*ingest.Poller, error) {
	opts := []ingest.Option{ingest.WithLogger(logger.New("ingest"))}
	if s.traffic != nil {
		opts = append(opts, ingest.WithTraffic(s.traffic, traffic.Source))
	}
	if s.weather != nil {
		opts = append(opts, ingest.WithWeather(s.weather, weather.Source))
	}
	p, err := ingest.NewPoller(s.cfg.Ingest, s.Store, opts...)
	if err != nil {
		return nil, fmt.Errorf("ingest poller: %w", err)
	}
	return p, nil
}

// Point is a coordinate pair in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// PlanRequest describes one movement to plan. When Delay is nil the oracle
// is queried with Features, DistanceKM filling Features.DistanceKM. With an
// Origin, missing weather and traffic snapshots are sampled there from the
// providers enabled under ingest.
type PlanRequest struct {
	PlanID     string
	DistanceKM float64
	Delay      *model.DelayEstimate
	Features   prediction.Features
	Origin     *Point
	Weights    model.Weights
	// Activate stores the plan as ACTIVE so the reroute engine watches it.
	// Otherwise it is stored as DRAFT. Nothing is stored without a PlanID.
	Activate bool
}

// Plan selects the best mode or chain and publishes the decision.
func (s *Service) Plan(ctx context.Context, req PlanRequest) (model.PlanDecision, error) {
	delay, err := s.Estimate(ctx, req)
	if err != nil {
		return model.PlanDecision{}, err
	}
	d, err := s.Optimizer.Select(req.DistanceKM, delay, req.Weights)
	if err != nil {
		return model.PlanDecision{}, err
	}
	s.bus.Publish(events.DecisionEvent{PlanID: req.PlanID, Decision: d, Time: s.now()})

	if req.PlanID == "" {
		return d, nil
	}
	p := model.Plan{
		ID:         req.PlanID,
		Status:     model.PlanDraft,
		DistanceKM: req.DistanceKM,
		Delay:      delay,
		Weights:    req.Weights.OrDefault(),
		Decision:   &d,
	}
	if _, err := s.Store.PutPlan(ctx, p); err != nil {
		return d, fmt.Errorf("store plan %s: %w", req.PlanID, err)
	}
	if req.Activate {
		if _, err := s.Engine.Activate(ctx, req.PlanID); err != nil {
			return d, fmt.Errorf("activate plan %s: %w", req.PlanID, err)
		}
	}
	return d, nil
}

// Estimate returns req.Delay when set, or asks the oracle.
func (s *Service) Estimate(ctx context.Context, req PlanRequest) (model.DelayEstimate, error) {
	if req.Delay != nil {
		if err := req.Delay.Validate(); err != nil {
			return model.DelayEstimate{}, err
		}
		return *req.Delay, nil
	}
	f := req.Features
	if f.DistanceKM == 0 {
		f.DistanceKM = req.DistanceKM
	}
	if req.Origin != nil {
		var err error
		f, err = prediction.FeaturesFrom(ctx, f, req.Origin.Lat, req.Origin.Lon, s.weather, s.traffic)
		if err != nil {
			s.log.Warnf("sample conditions for plan %q: %v", req.PlanID, err)
		}
	}
	return s.Oracle.Predict(ctx, f)
}

// SolveRequest is a routing instance plus the data needed to make it delay
// aware. Without DistanceKM the instance matrix is solved as is.
type SolveRequest struct {
	Instance   routing.Instance
	DistanceKM [][]float64
	Template   prediction.Features
}

// Solve builds the penalty matrix through the oracle when distances are
// given and searches routes over the delay-aware matrix.
func (s *Service) Solve(ctx context.Context, req SolveRequest) (routing.Result, error) {
	if len(req.DistanceKM) == 0 {
		return s.Solver.Solve(ctx, req.Instance)
	}
	penalty, err := matrix.BuildPenalties(ctx, s.Oracle, matrix.PenaltyRequest{
		Base:       req.Instance.Matrix,
		DistanceKM: req.DistanceKM,
		Template:   req.Template,
	})
	if err != nil {
		return routing.Result{}, fmt.Errorf("build penalties: %w", err)
	}
	return s.Solver.SolveDelayAware(ctx, req.Instance, req.Instance.Matrix, penalty, s.cfg.Planner.AlphaValue())
}

// Run starts the metrics collector, the optional Prometheus listener, the
// reroute engine and the ingest poller, and blocks until ctx is cancelled or
// one of them fails.
func (s *Service) Run(ctx context.Context) error {
	collected := metrics.StartEventCollector(ctx, s.bus, s.sink)

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.Metrics.ServePrometheus {
		g.Go(func() error {
			if err := metrics.StartPromServer(gctx, s.cfg.Metrics.PrometheusAddr); err != nil {
				return fmt.Errorf("prom server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error { return s.Engine.Run(gctx) })
	if s.Poller != nil {
		g.Go(func() error { return s.Poller.Run(gctx) })
	}
	s.log.Infof("service started (store=%s, ingest=%t, mqtt=%t)", s.cfg.Store.Backend, s.Poller != nil, s.notifier != nil)

	err := g.Wait()
	<-collected
	if err != nil {
		s.monitor.CaptureException(err, map[string]string{"component": "service"})
	}
	return err
}

// Close releases the store, the broker connection, the event bus and any
// closable sink.
func (s *Service) Close() error {
	var errs []error
	if s.notifier != nil {
		s.notifier.Close()
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	s.bus.Close()
	closeSink(s.sink)
	s.monitor.Flush(2 * time.Second)
	return errors.Join(errs...)
}

func closeSink(s coremetrics.Sink) {
	switch v := s.(type) {
	case *coremetrics.MultiSink:
		for _, inner := range v.Sinks {
			closeSink(inner)
		}
	case interface{ Close() }:
		v.Close()
	}
}
