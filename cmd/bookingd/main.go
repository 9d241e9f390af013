// Command bookingd serves the facility-booking services over UDP.
//
//	bookingd -config bookingd.toml
//	bookingd -addr :12000 -semantics at-most-once -facilities "Library,Gym"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"booking-rpc/booking"
	"booking-rpc/codec"
	"booking-rpc/config"
	"booking-rpc/logging"
	"booking-rpc/middleware"
	"booking-rpc/registry"
	"booking-rpc/schema"
	"booking-rpc/server"
	"booking-rpc/socket"
)

const retryBaseDelay = 20 * time.Millisecond

var defaultFacilities = []string{"Library", "Gym", "Meeting Room A", "Meeting Room B", "Tennis Court"}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bookingd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a TOML config file")
		addr       = flag.String("addr", "", "listen address, overrides the config")
		semantics  = flag.String("semantics", "", "at-least-once or at-most-once, overrides the config")
		facilities = flag.String("facilities", "", "comma separated facility names, overrides the config")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath, *addr, *semantics, *facilities)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	strategy, err := socket.ParseStrategy(cfg.Semantics)
	if err != nil {
		return err
	}
	c, err := buildCodec(cfg.Schema)
	if err != nil {
		return err
	}
	injector, err := cfg.Faults.Injector()
	if err != nil {
		return err
	}

	opts := server.Options{
		Addr:         cfg.Addr,
		Semantics:    strategy,
		PollInterval: cfg.PollInterval.Duration,
		HistoryTTL:   cfg.HistoryTTL.Duration,
		MaxResends:   cfg.MaxResends,
		Logger:       logging.Named(logger, "server"),
		Injector:     injector,
	}
	if cfg.Registry.Enabled() {
		reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, registry.EtcdOptions{
			DialTimeout: cfg.Registry.DialTimeout.Duration,
			Logger:      logging.Named(logger, "registry"),
		})
		if err != nil {
			return fmt.Errorf("connect etcd: %w", err)
		}
		defer reg.Close()
		opts.Registry = reg
		opts.ServiceName = cfg.Registry.Service
		opts.AdvertiseAddr = cfg.Registry.Advertise
		opts.RegistryTTL = cfg.Registry.TTL
		opts.Weight = cfg.Registry.Weight
		opts.Version = cfg.Registry.Version
	}

	svr := server.New(c, opts)
	svr.Use(middleware.RecoverMiddleware(logger))
	svr.Use(middleware.LoggingMiddleware(logging.Named(logger, "rpc")))
	if mw := cfg.Middleware; mw.Rate > 0 {
		svr.Use(middleware.RateLimitMiddleware(mw.Rate, mw.Burst))
	}

	store := booking.NewStore(cfg.Facilities...)
	svc := booking.NewService(store, svr, logging.Named(logger, "booking"))
	for id, h := range svc.Handlers() {
		if err := svr.HandleWith(id, h, serviceMiddlewares(id, cfg.Middleware, logger)...); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svr.Listen(); err != nil {
		return err
	}
	logger.Info("bookingd starting",
		zap.Stringer("addr", svr.Addr()),
		zap.Stringer("semantics", strategy),
		zap.Strings("facilities", store.Facilities()),
		zap.Stringer("loss_point", injector.LossPoint()),
		zap.Int("drops", injector.Remaining()))

	errCh := make(chan error, 1)
	go func() { errCh <- svr.Serve(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Any("stats", svr.Stats()))
	if err := svr.Shutdown(5 * time.Second); err != nil {
		return err
	}
	return <-errCh
}

// serviceMiddlewares returns the per-service chain, outermost first. Only
// idempotent services get a timeout: a timed-out handler keeps running, which is
// harmless for them, and a retry may follow. Mutating services run to completion.
func serviceMiddlewares(id uint16, mw config.MiddlewareConfig, logger *zap.Logger) []middleware.Middleware {
	if !booking.Idempotent(id) {
		return nil
	}
	var out []middleware.Middleware
	if mw.Retries > 0 {
		out = append(out, middleware.RetryMiddleware(mw.Retries, retryBaseDelay, logger))
	}
	if mw.Timeout.Duration > 0 {
		out = append(out, middleware.TimeOutMiddleware(mw.Timeout.Duration))
	}
	return out
}

func loadConfig(path, addr, semantics, facilities string) (config.ServerConfig, error) {
	cfg := config.DefaultServerConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadServer(path); err != nil {
			return cfg, err
		}
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if semantics != "" {
		cfg.Semantics = semantics
	}
	if facilities != "" {
		cfg.Facilities = nil
		for _, name := range strings.Split(facilities, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.Facilities = append(cfg.Facilities, name)
			}
		}
	}
	if len(cfg.Facilities) == 0 {
		cfg.Facilities = defaultFacilities
	}
	return cfg, cfg.Validate()
}

func buildCodec(sc config.SchemaConfig) (*codec.Codec, error) {
	reg, ok, err := sc.Load()
	if err != nil {
		return nil, err
	}
	if !ok {
		if reg, err = booking.Schema(); err != nil {
			return nil, err
		}
	}
	if err := checkBookingServices(reg); err != nil {
		return nil, err
	}
	var opts []codec.Option
	if sc.Strict {
		opts = append(opts, codec.WithStrict())
	}
	return codec.New(reg, opts...), nil
}

// checkBookingServices rejects schema files that do not carry the booking
// services under their usual ids.
func checkBookingServices(reg *schema.Registry) error {
	for _, want := range booking.Services() {
		got, ok := reg.Service(want.ID)
		if !ok || got.Request != want.Request || got.Response != want.Response {
			return fmt.Errorf("schema: service %d must be %s(%s) %s", want.ID, want.Name, want.Request, want.Response)
		}
	}
	return nil
}
