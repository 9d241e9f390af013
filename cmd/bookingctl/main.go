// Command bookingctl issues one booking call and prints the result.
//
//	bookingctl [flags] list    <facility> [Mon,Tue,...]
//	bookingctl [flags] book    <facility> "Mon,9,0 - Mon,10,30"
//	bookingctl [flags] edit    <confirmation-id> <minute-offset>
//	bookingctl [flags] extend  <confirmation-id> <minutes>
//	bookingctl [flags] cancel  <confirmation-id>
//	bookingctl [flags] util    <facility>
//	bookingctl [flags] monitor <facility> <minutes>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"booking-rpc/booking"
	"booking-rpc/client"
	"booking-rpc/codec"
	"booking-rpc/config"
	"booking-rpc/faults"
	"booking-rpc/loadbalance"
	"booking-rpc/logging"
	"booking-rpc/message"
	"booking-rpc/registry"
	"booking-rpc/socket"
)

var errUsage = errors.New("usage")

func main() {
	err := run(os.Args[1:], os.Stdout)
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "bookingctl: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	server     string
	local      string
	semantics  string
	dropPoint  string
	drops      int
	timeout    time.Duration
}

func parseFlags(args []string, stderr io.Writer) (options, []string, error) {
	var o options
	fs := flag.NewFlagSet("bookingctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "path to a TOML config file")
	fs.StringVar(&o.server, "server", "", "server address, overrides the config and the registry")
	fs.StringVar(&o.local, "local", "", "local address to bind")
	fs.StringVar(&o.semantics, "semantics", "", "at-least-once or at-most-once")
	fs.StringVar(&o.dropPoint, "drop-point", "", "simulate loss at client-to-server, server-to-client or ack")
	fs.IntVar(&o.drops, "drops", 0, "number of packets to drop at -drop-point")
	fs.DurationVar(&o.timeout, "timeout", 0, "per-attempt timeout")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: bookingctl [flags] list|book|edit|extend|cancel|util|monitor args...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return o, nil, errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return o, nil, errUsage
	}
	return o, fs.Args(), nil
}

func (o options) clientConfig() (config.ClientConfig, error) {
	cfg := config.DefaultClientConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadClient(o.configPath); err != nil {
			return cfg, err
		}
	}
	if o.server != "" {
		cfg.Server = o.server
	}
	if o.local != "" {
		cfg.LocalAddr = o.local
	}
	if o.semantics != "" {
		cfg.Semantics = o.semantics
	}
	if o.dropPoint != "" {
		cfg.Faults.Point = o.dropPoint
		cfg.Faults.Drops = o.drops
	}
	if o.timeout > 0 {
		cfg.Timeout.Duration = o.timeout
	}
	return cfg, cfg.Validate()
}

func run(args []string, stdout io.Writer) error {
	o, rest, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	cfg, err := o.clientConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, cmdArgs := rest[0], rest[1:]
	key := ""
	if len(cmdArgs) > 0 {
		key = cmdArgs[0]
	}
	cli, err := dial(ctx, cfg, key, logger)
	if err != nil {
		return err
	}
	defer cli.Close()

	err = dispatch(ctx, cli, cmd, cmdArgs, stdout)

	st := cli.Socket().Stats()
	logger.Debug("socket stats",
		zap.Uint64("transmissions", st.Transmissions),
		zap.Uint64("retries", st.Retries),
		zap.Uint64("dropped", st.Dropped),
		zap.Uint64("acks", st.Acks))

	var remote *message.ErrorObject
	if errors.As(err, &remote) {
		return fmt.Errorf("server refused: %s", remote.Message)
	}
	return err
}

func dial(ctx context.Context, cfg config.ClientConfig, key string, logger *zap.Logger) (*client.Client, error) {
	strategy, err := socket.ParseStrategy(cfg.Semantics)
	if err != nil {
		return nil, err
	}
	injector, err := cfg.Faults.Injector()
	if err != nil {
		return nil, err
	}
	reg, ok, err := cfg.Schema.Load()
	if err != nil {
		return nil, err
	}
	if !ok {
		if reg, err = booking.Schema(); err != nil {
			return nil, err
		}
	}
	var codecOpts []codec.Option
	if cfg.Schema.Strict {
		codecOpts = append(codecOpts, codec.WithStrict())
	}

	opts := client.Options{
		Server:    cfg.Server,
		LocalAddr: cfg.LocalAddr,
		Semantics: strategy,
		Timeout:   cfg.Timeout.Duration,
		Codec:     codec.New(reg, codecOpts...),
		Injector:  injector,
		Logger:    logging.Named(logger, "client"),
		Key:       key,
	}
	if cfg.Server == "" && cfg.Registry.Enabled() {
		etcd, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, registry.EtcdOptions{
			DialTimeout: cfg.Registry.DialTimeout.Duration,
			Logger:      logging.Named(logger, "registry"),
		})
		if err != nil {
			return nil, fmt.Errorf("connect etcd: %w", err)
		}
		defer etcd.Close()
		bal, err := loadbalance.New(cfg.Balancer)
		if err != nil {
			return nil, err
		}
		opts.Registry = etcd
		opts.ServiceName = cfg.Registry.Service
		opts.Balancer = bal
	}
	if injector.LossPoint() != faults.None {
		logger.Info("simulating loss", zap.Stringer("point", injector.LossPoint()), zap.Int("drops", injector.Remaining()))
	}
	return client.Dial(ctx, opts)
}

func dispatch(ctx context.Context, cli *client.Client, cmd string, args []string, out io.Writer) error {
	need := func(n int, usage string) error {
		if len(args) != n {
			return fmt.Errorf("%s: expected %s", cmd, usage)
		}
		return nil
	}

	switch cmd {
	case "list":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("list: expected <facility> [days]")
		}
		days := booking.AllDays()
		if len(args) == 2 {
			var err error
			if days, err = booking.ParseDays(args[1]); err != nil {
				return err
			}
		}
		avail, err := cli.ListAvailability(ctx, args[0], days...)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, avail)

	case "book":
		if err := need(2, `<facility> "Day,H,M - Day,H,M"`); err != nil {
			return err
		}
		slot, err := booking.ParseTimeSlot(args[1])
		if err != nil {
			return err
		}
		id, err := cli.Book(ctx, args[0], slot)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "booked %s %s\nconfirmation id: %s\n", args[0], slot, id)

	case "edit", "extend":
		if err := need(2, "<confirmation-id> <minutes>"); err != nil {
			return err
		}
		minutes, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%s: minutes must be an integer: %w", cmd, err)
		}
		var slot booking.TimeSlot
		if cmd == "edit" {
			slot, err = cli.Edit(ctx, args[0], minutes)
		} else {
			slot, err = cli.Extend(ctx, args[0], minutes)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "booking %s is now %s\n", args[0], slot)

	case "cancel":
		if err := need(1, "<confirmation-id>"); err != nil {
			return err
		}
		if err := cli.Cancel(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "cancelled %s\n", args[0])

	case "util":
		if err := need(1, "<facility>"); err != nil {
			return err
		}
		u, n, err := cli.Utilisation(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %.1f%% of opening hours booked (%d bookings)\n", args[0], u*100, n)

	case "monitor":
		if err := need(2, "<facility> <minutes>"); err != nil {
			return err
		}
		minutes, err := strconv.Atoi(args[1])
		if err != nil || minutes <= 0 {
			return fmt.Errorf("monitor: minutes must be a positive integer")
		}
		updates, err := cli.Monitor(ctx, args[0], time.Duration(minutes)*time.Minute)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "monitoring %s for %d minutes\n", args[0], minutes)
		for u := range updates {
			fmt.Fprintf(out, "[%s] %s: %s\n", time.Now().Format(time.TimeOnly), u.Facility, u.Availability)
		}

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}
