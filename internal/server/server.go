// Package server assembles the REST API and its background workers.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pharmacy_inventory/internal/auth"
	"pharmacy_inventory/internal/config"
	"pharmacy_inventory/internal/events"
	"pharmacy_inventory/internal/inventory"
	"pharmacy_inventory/internal/middleware"
	"pharmacy_inventory/internal/router"
	"pharmacy_inventory/internal/store"
)

const tokenIssuer = "pharmacy-inventory"

// App owns every long lived resource of the server process.
type App struct {
	cfg   config.AppConfig
	store *store.Store
	rdb   *rd.Client

	producer *events.Producer
	consumer *events.Consumer
	relay    *events.Relay

	http *http.Server

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	failed chan struct{}

	stopOnce sync.Once
	stopErr  error
}

// New opens the store, creates missing tables, optionally seeds sample data
// and wires the HTTP routes. Nothing is served until Start.
func New(ctx context.Context, cfg config.AppConfig) (*App, error) {
	st, err := store.Open(store.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN, Debug: cfg.DBDebug})
	if err != nil {
		return nil, err
	}
	if err := st.Initialize(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	a := &App{cfg: cfg, store: st, failed: make(chan struct{})}

	var sink inventory.EventSink = events.NopSink{}
	if cfg.RedisEnabled() {
		a.rdb = rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := a.rdb.Ping(pingCtx).Err(); err != nil {
			log.WithError(err).WithField("addr", cfg.RedisAddr).Warn("redis not reachable, continuing without it until it comes back")
		}
		cancel()

		if cfg.EventsEnabled {
			sink = events.NewStreamSink(a.rdb, cfg.StockEventStream, cfg.StockEventStreamMax)
			a.producer = events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
			a.relay = events.NewRelay(a.rdb, a.producer, cfg.StockEventStream, cfg.StockEventGroup, cfg.StockEventConsumer)
			a.consumer = events.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, st)
		}
	} else if cfg.EventsEnabled {
		log.Info("REDIS_ADDR is empty, stock events are not streamed")
	}

	inv := inventory.NewService(st, sink)
	if cfg.SeedOnStart {
		if _, err := inv.Seed(ctx, false); err != nil {
			_ = a.closeResources()
			return nil, err
		}
	}
	if cfg.UsesDevJWTSecret() {
		log.Warn("JWT_SECRET is not set, tokens are signed with the development secret and can be forged")
	}
	users := auth.NewService(st, auth.NewPasswordHasher(), auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL, tokenIssuer))

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestLogger(), middleware.Metrics())
	router.Setup(engine, inv, users, a.rdb, cfg)

	a.http = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return a, nil
}

// Handler exposes the routes, mainly for tests.
func (a *App) Handler() http.Handler { return a.http.Handler }

// Start serves HTTP and runs the relay and consumer in the background.
func (a *App) Start() {
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.group, a.ctx = errgroup.WithContext(a.ctx)

	a.group.Go(func() error {
		log.WithField("addr", a.cfg.HTTPAddr).Info("http server listening")
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
			close(a.failed)
			return err
		}
		return nil
	})
	if a.relay != nil {
		a.group.Go(func() error {
			a.relay.Run(a.ctx)
			return nil
		})
	}
	if a.consumer != nil {
		a.group.Go(func() error {
			a.consumer.Run(a.ctx)
			return nil
		})
	}
}

// Failed is closed when the HTTP listener stops with an error.
func (a *App) Failed() <-chan struct{} { return a.failed }

// Stop drains HTTP, stops the workers and closes every connection. Later
// calls return the first result.
func (a *App) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() { a.stopErr = a.stop(ctx) })
	return a.stopErr
}

func (a *App) stop(ctx context.Context) error {
	var errs []error
	if err := a.http.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.group != nil {
		if err := a.group.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error
	if a.consumer != nil {
		errs = append(errs, a.consumer.Close())
	}
	if a.producer != nil {
		errs = append(errs, a.producer.Close())
	}
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

// Run starts the app and blocks until SIGINT/SIGTERM or a listener
// error, then shuts down within cfg.ShutdownTimeout. It returns the exit code.
func Run(cfg config.AppConfig) int {
	app, err := New(context.Background(), cfg)
	if err != nil {
		log.WithError(err).Error("server init")
		return 1
	}
	app.Start()

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"pharmacy-server": func(ctx context.Context) error {
			log.Info("graceful shutdown initiated")
			return app.Stop(ctx)
		},
	})

	select {
	case code := <-wait:
		log.WithField("code", code).Info("server exited")
		return code
	case <-app.Failed():
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := app.Stop(ctx); err != nil {
			log.WithError(err).Error("server stopped with error")
		}
		return 1
	}
}
