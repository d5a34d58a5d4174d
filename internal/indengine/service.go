// Package indengine runs the indicator engine as a service: it owns the bar
// store and dispatcher on a single processing goroutine and connects them to
// HTTP, websocket and Redis adapters and the SQLite bar archive.
package indengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"charting-systemv1/config"
	"charting-systemv1/internal/barstore"
	"charting-systemv1/internal/bus"
	"charting-systemv1/internal/dispatch"
	"charting-systemv1/internal/gateway"
	"charting-systemv1/internal/indicator"
	"charting-systemv1/internal/metrics"
	"charting-systemv1/internal/model"
	redisstore "charting-systemv1/internal/store/redis"
	sqlitestore "charting-systemv1/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
)

// ErrStopped is returned by requests made after the processing loop exited.
var ErrStopped = errors.New("indicator engine stopped")

// Service is the top-level orchestrator. Everything touching the store or
// the dispatcher runs on the processing goroutine; other goroutines submit
// closures through cmds.
type Service struct {
	cfg *config.Config
	log *slog.Logger

	catalog *indicator.Catalog
	store   *barstore.Store
	disp    *dispatch.Dispatcher
	prom    *metrics.Metrics
	health  *metrics.HealthStatus
	fanout  *bus.FanOut
	hub     *gateway.Hub

	archive   model.BarWriter
	warm      model.BarReader
	sqlWriter *sqlitestore.Writer
	rdb       *goredis.Client
	publisher *redisstore.Publisher

	cmds      chan func()
	recordCh  chan []model.Record
	archiveCh chan model.SymbolBar
	stopping  chan struct{} // closed when Run's context is done
	quit      chan struct{} // closed when the processing loop has exited
	wg        sync.WaitGroup
}

// New builds every component from cfg. SQLite and Redis are optional and
// only opened when configured.
func New(cfg *config.Config, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	extra, err := cfg.Definitions()
	if err != nil {
		return nil, fmt.Errorf("indicator definitions: %w", err)
	}
	catalog, err := indicator.DefaultCatalog(extra...)
	if err != nil {
		return nil, fmt.Errorf("indicator catalog: %w", err)
	}

	svc := &Service{
		cfg:       cfg,
		log:       log,
		catalog:   catalog,
		store:     barstore.New(cfg.Capacity),
		prom:      metrics.NewMetrics(),
		health:    metrics.NewHealthStatus(),
		fanout:    bus.New(cfg.FanoutBuffer),
		cmds:      make(chan func()),
		recordCh:  make(chan []model.Record, cfg.FanoutBuffer),
		archiveCh: make(chan model.SymbolBar, 4096),
		stopping:  make(chan struct{}),
		quit:      make(chan struct{}),
	}
	svc.fanout.OnDrop = func(name string) {
		svc.prom.FanoutDropsTotal.WithLabelValues(name).Inc()
		svc.log.Warn("fan-out subscriber lagging, batch dropped", "subscriber", name)
	}
	svc.disp = dispatch.New(svc.store, catalog,
		dispatch.WithSink(svc),
		dispatch.WithObserver(engineObserver{Metrics: svc.prom, health: svc.health, store: svc.store}),
		dispatch.WithLogger(log.With("component", "dispatcher")),
	)
	svc.hub = gateway.NewHub(hubController{svc}, log, gateway.HubHooks{
		OnClients:    func(n int) { svc.prom.WSClients.Set(float64(n)) },
		OnSent:       svc.prom.WSMessagesSent.Inc,
		OnSlowClient: svc.prom.WSSlowClients.Inc,
	})

	if err := svc.openArchive(); err != nil {
		return nil, err
	}
	if err := svc.openRedis(); err != nil {
		svc.closeStores()
		return nil, err
	}
	svc.health.SetEngineOK(true)
	return svc, nil
}

func (svc *Service) openArchive() error {
	if svc.cfg.SQLitePath == "" {
		svc.log.Info("sqlite archive disabled")
		return nil
	}
	if dir := filepath.Dir(svc.cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("archive dir: %w", err)
		}
	}
	w, err := sqlitestore.New(sqlitestore.WriterConfig{
		DBPath:    svc.cfg.SQLitePath,
		BatchSize: svc.cfg.ArchiveBatchSize,
		Logger:    svc.log.With("component", "sqlite-writer"),
		OnCommit: func(n int, took time.Duration) {
			svc.prom.BarsArchived.Add(float64(n))
			svc.prom.SQLiteCommitDur.Observe(took.Seconds())
		},
	})
	if err != nil {
		return err
	}
	r, err := sqlitestore.NewReader(svc.cfg.SQLitePath)
	if err != nil {
		w.Close()
		return err
	}
	svc.sqlWriter, svc.archive, svc.warm = w, w, r
	svc.health.SetSQLiteEnabled(true)
	return nil
}

func (svc *Service) openRedis() error {
	if svc.cfg.RedisAddr == "" {
		svc.log.Info("redis disabled, records go to websocket clients only")
		return nil
	}
	rdb, err := redisstore.Dial(context.Background(), redisstore.Config{
		Addr:     svc.cfg.RedisAddr,
		Password: svc.cfg.RedisPassword,
		DB:       svc.cfg.RedisDB,
	})
	if err != nil {
		return err
	}
	svc.rdb = rdb
	svc.publisher = redisstore.NewPublisher(rdb, redisstore.PublisherConfig{
		Prefix: svc.cfg.PublishPrefix,
		Logger: svc.log,
		OnWrite: func(d time.Duration, err error) {
			svc.prom.RedisWriteDur.Observe(d.Seconds())
			if err != nil {
				svc.prom.RedisPublishErrors.Inc()
			}
		},
		OnStateChange: func(_, to redisstore.State) {
			svc.prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				svc.prom.RedisCircuitBreakerTrips.Inc()
			}
		},
	})
	svc.health.SetRedisEnabled(true)
	svc.log.Info("redis connected", "addr", svc.cfg.RedisAddr)
	return nil
}

// Run listens on the configured address and serves until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", svc.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", svc.cfg.HTTPAddr, err)
	}
	return svc.Serve(ctx, ln)
}

// Serve warm-starts the store, starts every subsystem, serves HTTP on ln
// and blocks until ctx is cancelled. It then shuts down gracefully.
func (svc *Service) Serve(ctx context.Context, ln net.Listener) error {
	svc.warmStart()

	var redisCh <-chan []model.Record
	if svc.publisher != nil {
		redisCh = svc.fanout.Subscribe("redis")
	}
	wsCh := svc.fanout.Subscribe("ws")

	svc.goRun(func() { svc.fanout.Run(ctx, svc.recordCh) })
	svc.goRun(func() { svc.hub.Run(ctx, wsCh) })
	if redisCh != nil {
		svc.goRun(func() { svc.publisher.Run(ctx, redisCh) })
		svc.goRun(func() {
			err := redisstore.SubscribeCommands(ctx, svc.rdb, svc.cfg.CommandChannel, svc.log, svc.handleCommand)
			if err != nil {
				svc.log.Error("selection command subscriber stopped", "error", err)
			}
		})
	}
	if svc.archive != nil {
		svc.goRun(func() { svc.archive.Run(ctx, svc.archiveCh) })
		if svc.cfg.ArchiveRetention > 0 {
			svc.goRun(func() { svc.pruneLoop(ctx, time.Hour) })
		}
	}
	var sqlDB *sql.DB
	if svc.sqlWriter != nil {
		sqlDB = svc.sqlWriter.DB()
	}
	svc.health.StartLivenessChecker(ctx, svc.rdb, sqlDB, 15*time.Second)
	svc.goRun(func() { svc.saturationLoop(ctx, 5*time.Second) })

	go func() {
		<-ctx.Done()
		close(svc.stopping)
	}()
	go svc.processLoop(ctx)

	srv := &http.Server{Handler: svc.Handler(), ReadHeaderTimeout: 10 * time.Second}
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Serve(ln) }()

	svc.log.Info("indicator engine running",
		"addr", ln.Addr().String(),
		"capacity", svc.store.Capacity(),
		"indicators", svc.catalog.Len(),
		"sqlite", svc.archive != nil,
		"redis", svc.publisher != nil,
	)

	var err error
	select {
	case <-ctx.Done():
	case err = <-srvErr:
		svc.log.Error("http server failed", "error", err)
	}
	svc.shutdown(srv)
	return err
}

func (svc *Service) shutdown(srv *http.Server) {
	svc.log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), svc.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		svc.log.Warn("http shutdown", "error", err)
	}

	done := make(chan struct{})
	go func() {
		svc.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutCtx.Done():
		svc.log.Warn("shutdown timed out waiting for workers")
	}
	svc.closeStores()
	svc.log.Info("shutdown complete")
}

func (svc *Service) closeStores() {
	if svc.warm != nil {
		svc.warm.Close()
	}
	if svc.archive != nil {
		svc.archive.Close()
	}
	if svc.publisher != nil {
		svc.publisher.Close()
	}
}

func (svc *Service) goRun(fn func()) {
	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		fn()
	}()
}
