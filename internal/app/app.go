// Package app initializes and holds long-lived services for a watch run,
// acting as a dependency injection container: logger, event hub and sinks,
// history store, outcome publisher, report storage and metrics server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-poller/internal/client"
	"github.com/JakeFAU/progress-poller/internal/config"
	"github.com/JakeFAU/progress-poller/internal/logging"
	"github.com/JakeFAU/progress-poller/internal/metrics"
	"github.com/JakeFAU/progress-poller/internal/page"
	"github.com/JakeFAU/progress-poller/internal/poller"
	"github.com/JakeFAU/progress-poller/internal/progress"
	"github.com/JakeFAU/progress-poller/internal/progress/sinks"
	"github.com/JakeFAU/progress-poller/internal/publisher/pubsub"
	"github.com/JakeFAU/progress-poller/internal/storage"
	"github.com/JakeFAU/progress-poller/internal/storage/gcs"
	"github.com/JakeFAU/progress-poller/internal/storage/local"
	"github.com/JakeFAU/progress-poller/internal/storage/postgres"
	"github.com/JakeFAU/progress-poller/internal/store"
	"github.com/JakeFAU/progress-poller/internal/telemetry"
)

// ServiceName identifies the process in traces.
const ServiceName = "progresswatch"

// App holds the shared services for one process.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry prometheus.Registerer
	gatherer prometheus.Gatherer
	client   *client.Client
	hub      *progress.Hub
	server   *metrics.Server
	tracer   trace.Tracer

	history   store.HistoryRepository
	publisher sinks.Publisher
	reports   storage.Provider

	closers []func(context.Context) error
}

// Option overrides a service App would otherwise build from config.
type Option func(*App)

// WithLogger injects a logger instead of building one from logging.development.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithRegistry registers the Prometheus sink on reg and exposes it on the
// metrics server. Defaults to the global registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *App) {
		if reg != nil {
			a.registry, a.gatherer = reg, reg
		}
	}
}

// WithHistory injects a history repository instead of connecting db.dsn.
func WithHistory(repo store.HistoryRepository) Option {
	return func(a *App) { a.history = repo }
}

// WithPublisher injects an outcome publisher instead of dialing Pub/Sub.
func WithPublisher(pub sinks.Publisher) Option {
	return func(a *App) { a.publisher = pub }
}

// WithReportProvider injects report storage instead of report.provider.
func WithReportProvider(p storage.Provider) Option {
	return func(a *App) { a.reports = p }
}

// New creates the services described by cfg. It fails fast when a configured
// backend cannot be reached; everything already opened is released.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		registry: prometheus.DefaultRegisterer,
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.init(ctx); err != nil {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			logging.OrNop(a.logger).Warn("cleanup after failed init", zap.Error(cerr))
		}
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	if a.logger == nil {
		l, err := logging.New(a.cfg.Logging.Development)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		a.logger = l
	}
	l := a.logger
	l.Info("initializing services")

	tp, err := telemetry.InitTracerProvider(ctx, ServiceName)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, tp.Shutdown)
	a.tracer = otel.Tracer(ServiceName)

	a.client = client.New(a.cfg.Server.BaseURL,
		client.WithTimeout(a.cfg.HTTPTimeout()),
		client.WithUserAgent(a.cfg.HTTP.UserAgent),
		client.WithTransport(metrics.InstrumentRoundTripper(nil)),
	)

	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("init prometheus sink: %w", err)
	}
	sinkList := []progress.Sink{sinks.NewLogSink(l.Named("events")), promSink}

	if err := a.initHistory(ctx); err != nil {
		return err
	}
	if a.history != nil {
		sinkList = append(sinkList, sinks.NewStoreSink(a.history, l.Named("history")))
	}

	if err := a.initPublisher(ctx); err != nil {
		return err
	}
	if a.publisher != nil {
		sinkList = append(sinkList, sinks.NewNotifySink(a.publisher, a.cfg.PubSub.TopicName, l.Named("notify")))
	}

	if err := a.initReports(ctx); err != nil {
		return err
	}
	if a.reports != nil {
		sinkList = append(sinkList, sinks.NewReportSink(a.reports, "reports", l.Named("reports")))
	}

	a.hub = progress.NewHub(progress.Config{Logger: l.Named("hub")}, sinkList...)

	if a.cfg.Metrics.Addr != "" {
		a.server = metrics.NewServer(a.cfg.Metrics.Addr, metrics.HandlerFor(a.gatherer), l.Named("metrics"))
		if err := a.server.Start(); err != nil {
			a.server = nil
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	l.Info("services initialized", zap.Int("sinks", len(sinkList)))
	return nil
}

func (a *App) initHistory(ctx context.Context) error {
	if a.history != nil || a.cfg.DB.DSN == "" {
		return nil
	}
	a.logger.Info("connecting to postgres")
	hs, err := postgres.NewHistoryStore(ctx, postgres.HistoryStoreConfig{
		DSN:      a.cfg.DB.DSN,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("init history store: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error {
		hs.Close()
		return nil
	})
	if err := hs.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("init history schema: %w", err)
	}
	a.history = hs
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if a.publisher != nil || !a.cfg.NotifyEnabled() {
		return nil
	}
	a.logger.Info("connecting to pub/sub", zap.String("topic", a.cfg.PubSub.TopicName))
	pub, err := pubsub.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return pub.Close() })
	a.publisher = pub
	return nil
}

func (a *App) initReports(ctx context.Context) error {
	if a.reports != nil {
		return nil
	}
	switch a.cfg.Report.Provider {
	case config.ReportLocal:
		p, err := local.New(local.Config{BaseDir: a.cfg.Report.BaseDir})
		if err != nil {
			return fmt.Errorf("init local reports: %w", err)
		}
		a.logger.Info("writing reports to local disk", zap.String("dir", a.cfg.Report.BaseDir))
		a.reports = p
	case config.ReportGCS:
		p, err := gcs.New(ctx, gcs.Config{Bucket: a.cfg.Report.GCSBucket}, a.logger.Named("gcs"))
		if err != nil {
			return fmt.Errorf("init gcs reports: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return p.Close() })
		a.logger.Info("writing reports to gcs", zap.String("bucket", a.cfg.Report.GCSBucket))
		a.reports = p
	}
	return nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Watch renders jobID's progress to out until the job is ready, fails, the
// session is abandoned, or ctx is canceled.
func (a *App) Watch(ctx context.Context, jobID string, out io.Writer) (poller.Outcome, error) {
	ctx, span := a.tracer.Start(ctx, "watch", trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	outcome, err := a.watch(ctx, jobID, out)
	span.SetAttributes(attribute.String("poll.outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return outcome, err
}

func (a *App) watch(ctx context.Context, jobID string, out io.Writer) (poller.Outcome, error) {
	doc := page.NewProgressDocument()
	renderer := page.NewRenderer(out,
		page.WithBarWidth(a.cfg.Render.Width),
		page.WithCarriageReturn(a.cfg.Render.Inline),
	)
	doc.OnChange(renderer.Render)

	p := poller.New(a.client, poller.DocumentPage(doc),
		poller.WithInterval(a.cfg.Poll.Interval),
		poller.WithMaxConsecutiveFailures(a.cfg.Poll.MaxConsecutiveFailures),
		poller.WithEmitter(a.hub),
		poller.WithLogger(a.logger.Named("poller").With(zap.String("job_id", jobID))),
	)
	sess, err := p.Start(ctx, jobID)
	if err != nil {
		return poller.OutcomeNone, fmt.Errorf("start watch: %w", err)
	}
	return sess.Wait()
}

// Close flushes the hub and shuts down every service. It is safe to call on a
// partially initialized App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.logger != nil {
		// Sync on stderr returns EINVAL on some platforms; ignored.
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}
