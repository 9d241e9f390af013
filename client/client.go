// Package client is the typed facade over a booking-rpc socket: it finds a server
// (explicit address, or registry + load balancer), builds the socket for the
// chosen invocation semantics and exposes one method per booking service.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"booking-rpc/booking"
	"booking-rpc/codec"
	"booking-rpc/faults"
	"booking-rpc/loadbalance"
	"booking-rpc/message"
	"booking-rpc/protocol"
	"booking-rpc/registry"
	"booking-rpc/socket"
)

var ErrNoServer = errors.New("client: no server address and no registry configured")

// Options configures Dial. Server wins over Registry when both are set.
type Options struct {
	Server    string // host:port of the booking server
	LocalAddr string // Default ":11999"
	Semantics socket.Strategy
	Timeout   time.Duration // Per-round wait, default socket.DefaultTimeout
	Codec     *codec.Codec  // Default: the built-in booking tables
	Injector  *faults.Injector
	Logger    *zap.Logger

	// Discovery, used only when Server is empty.
	Registry    registry.Registry
	ServiceName string               // Default "booking"
	Balancer    loadbalance.Balancer // Default round robin
	Key         string               // Affinity key for ConsistentHash, usually a facility

	// PollInterval is how often Monitor polls for pushes, default socket.DefaultPollInterval.
	PollInterval time.Duration
}

// Client issues booking calls over one socket. Calls are serialized; while a
// Monitor is running, other calls wait for it to finish.
type Client struct {
	opts Options
	sock socket.Socket
	log  *zap.Logger
	mu   sync.Mutex
}

// Dial resolves the server and opens the socket.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Codec == nil {
		reg, err := booking.Schema()
		if err != nil {
			return nil, err
		}
		opts.Codec = codec.New(reg)
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "booking"
	}
	if opts.Balancer == nil {
		opts.Balancer = &loadbalance.RoundRobinBalancer{}
	}

	addr, err := resolve(ctx, opts)
	if err != nil {
		return nil, err
	}

	sock, err := socket.New(opts.Semantics, opts.Codec, socket.Options{
		LocalAddr:  opts.LocalAddr,
		ServerAddr: addr,
		Timeout:    opts.Timeout,
		Logger:     opts.Logger,
		Injector:   opts.Injector,
	})
	if err != nil {
		return nil, err
	}
	c := &Client{
		opts: opts,
		sock: sock,
		log:  opts.Logger.With(zap.String("server", addr), zap.Stringer("semantics", opts.Semantics)),
	}
	c.log.Debug("client ready", zap.Stringer("local", sock.LocalAddr()))
	return c, nil
}

// resolve picks the server address. Registry instances advertising other
// semantics are skipped: an at-most-once client needs a server that keeps a
// reply history.
func resolve(ctx context.Context, opts Options) (string, error) {
	if opts.Server != "" {
		return opts.Server, nil
	}
	if opts.Registry == nil {
		return "", ErrNoServer
	}
	instances, err := opts.Registry.Discover(ctx, opts.ServiceName)
	if err != nil {
		return "", fmt.Errorf("client: discover %s: %w", opts.ServiceName, err)
	}
	want := opts.Semantics.String()
	matching := instances[:0:0]
	for _, inst := range instances {
		if inst.Semantics == "" || strings.EqualFold(inst.Semantics, want) {
			matching = append(matching, inst)
		}
	}
	inst, err := opts.Balancer.Pick(matching, opts.Key)
	if err != nil {
		return "", fmt.Errorf("client: pick %s server (%s): %w", want, opts.Balancer.Name(), err)
	}
	return inst.Addr, nil
}

// Socket exposes the underlying socket, e.g. to arm its fault injector.
func (c *Client) Socket() socket.Socket { return c.sock }

// Close releases the socket; blocked calls return.
func (c *Client) Close() error { return c.sock.Close() }

// call runs one request. A remote ERROR frame comes back as *message.ErrorObject.
func (c *Client) call(ctx context.Context, serviceID uint16, typeName string, f message.Fields) (*message.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply, remote, err := c.sock.Send(ctx, message.New(typeName, f), serviceID, protocol.KindRequest)
	if err != nil {
		return nil, err
	}
	if remote != nil {
		return nil, remote
	}
	return reply, nil
}

// ListAvailability returns the free periods of a facility on the given days, as
// formatted by the server ("Mon: 08:00 - 09:00, 10:30 - 20:00; Tue: none").
func (c *Client) ListAvailability(ctx context.Context, facility string, days ...booking.Day) (string, error) {
	if len(days) == 0 {
		days = booking.AllDays()
	}
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()
	}
	reply, err := c.call(ctx, booking.ListAvailabilityID, "ListAvailabilityReq", message.Fields{
		"facilityName": facility,
		"days":         strings.Join(names, ","),
	})
	if err != nil {
		return "", err
	}
	return reply.GetString("availability"), nil
}

// Book reserves slot and returns the confirmation id.
func (c *Client) Book(ctx context.Context, facility string, slot booking.TimeSlot) (string, error) {
	reply, err := c.call(ctx, booking.BookFacilityID, "BookFacilityReq", message.Fields{
		"facilityName": facility,
		"timeSlot":     slot.String(),
	})
	if err != nil {
		return "", err
	}
	return reply.GetString("confirmationID"), nil
}

// Edit shifts a booking by offset minutes and returns its new slot.
func (c *Client) Edit(ctx context.Context, confirmationID string, offset int) (booking.TimeSlot, error) {
	reply, err := c.call(ctx, booking.EditBookingID, "EditBookingReq", message.Fields{
		"confirmationID": confirmationID,
		"minuteOffset":   offset,
	})
	if err != nil {
		return booking.TimeSlot{}, err
	}
	return booking.ParseTimeSlot(reply.GetString("timeSlot"))
}

// Extend lengthens a booking by minutes and returns its new slot.
func (c *Client) Extend(ctx context.Context, confirmationID string, minutes int) (booking.TimeSlot, error) {
	reply, err := c.call(ctx, booking.ExtendBookingID, "ExtendBookingReq", message.Fields{
		"confirmationID": confirmationID,
		"minuteOffset":   minutes,
	})
	if err != nil {
		return booking.TimeSlot{}, err
	}
	return booking.ParseTimeSlot(reply.GetString("timeSlot"))
}

// Cancel removes a booking.
func (c *Client) Cancel(ctx context.Context, confirmationID string) error {
	_, err := c.call(ctx, booking.CancelBookingID, "CancelBookingReq", message.Fields{
		"confirmationID": confirmationID,
	})
	return err
}

// Utilisation returns the booked share of a facility's weekly opening hours and
// its booking count.
func (c *Client) Utilisation(ctx context.Context, facility string) (float32, int, error) {
	reply, err := c.call(ctx, booking.GetUtilisationID, "GetUtilisationReq", message.Fields{
		"facilityName": facility,
	})
	if err != nil {
		return 0, 0, err
	}
	return reply.GetFloat32("utilisation"), int(reply.GetInt32("bookings")), nil
}

// Update is one availability push for a monitored facility.
type Update struct {
	Facility     string
	Availability string
}

// Monitor registers for pushes about facility for window and returns a channel
// of updates. The channel closes when the window ends or ctx is done; other
// calls on c wait until then. Updates nobody reads before the window ends are
// dropped.
func (c *Client) Monitor(ctx context.Context, facility string, window time.Duration) (<-chan Update, error) {
	minutes := int((window + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		return nil, fmt.Errorf("client: monitor window must be positive, got %v", window)
	}

	c.mu.Lock()
	_, remote, err := c.sock.Send(ctx, message.New("RegisterCallbackReq", message.Fields{
		"facilityName":              facility,
		"monitoringPeriodInMinutes": minutes,
	}), booking.RegisterCallbackID, protocol.KindRequest)
	if err == nil && remote != nil {
		err = remote
	}
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	wctx, cancel := context.WithTimeout(ctx, window)
	results := socket.Watch(wctx, c.sock, window, c.opts.PollInterval)
	out := make(chan Update)
	go func() {
		defer c.mu.Unlock()
		defer cancel()
		defer close(out)
		for res := range results {
			if res.Kind != protocol.KindRequest || res.ServiceID != booking.NotifyCallbackID {
				c.log.Debug("ignoring datagram while monitoring", zap.Uint16("service_id", res.ServiceID), zap.Stringer("kind", res.Kind))
				continue
			}
			msg := res.Message()
			u := Update{Facility: msg.GetString("facilityName"), Availability: msg.GetString("availability")}
			if u.Facility != facility {
				continue
			}
			select {
			case out <- u:
			case <-wctx.Done():
				// Let Watch wind down so the socket is free again.
				for range results {
				}
				return
			}
		}
	}()
	return out, nil
}
