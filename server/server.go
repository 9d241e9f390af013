// Package server implements the booking-rpc server: one UDP endpoint, a handler
// table keyed by service id, a middleware chain and, under at-most-once
// semantics, a reply history for duplicate suppression.
//
// Request processing pipeline (single goroutine, requests are served in arrival order):
//
//	Receive datagram → protocol header
//	  ACK     → History.Ack (at-most-once) / ignored
//	  REQUEST → History.Replay? → resend cached reply (or ERROR once exhausted), handler not run
//	          → Codec.Decode → Middleware Chain → handler → Codec.Encode
//	          → History.Store (at-most-once) → send RESPONSE / ERROR
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"booking-rpc/codec"
	"booking-rpc/faults"
	"booking-rpc/message"
	"booking-rpc/middleware"
	"booking-rpc/protocol"
	"booking-rpc/registry"
	"booking-rpc/socket"
	"booking-rpc/transport"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultHistoryTTL   = 5 * time.Minute
	DefaultMaxResends   = 16
	DefaultRegistryTTL  = 10
	DefaultServiceName  = "booking"
)

var (
	ErrServerClosed = errors.New("server: closed")
	// ErrReplyExpired answers a duplicate whose cached reply was resent MaxResends
	// times already. The request is not executed again.
	ErrReplyExpired = errors.New("server: reply expired, request not re-executed")
)

// Options configures a Server. Zero values fall back to defaults.
type Options struct {
	Addr         string          // Listen address, default ":12000"
	Semantics    socket.Strategy // Selects whether replies are cached for duplicates
	PollInterval time.Duration   // Read timeout per loop turn; bounds shutdown latency and sweep cadence
	HistoryTTL   time.Duration
	MaxResends   int
	Logger       *zap.Logger
	Injector     *faults.Injector // ServerToClient drops replies before they are sent

	// Discovery. Registry nil skips registration.
	Registry      registry.Registry
	ServiceName   string // Name registered under, default "booking"
	AdvertiseAddr string // Address registered, default the bound address
	RegistryTTL   int64  // Lease TTL in seconds
	Weight        int
	Version       string
}

// Stats counts what the serve loop did.
type Stats struct {
	Requests             uint64 // REQUEST frames received, duplicates included
	Executions           uint64 // Handler invocations
	DuplicatesSuppressed uint64 // Requests answered from the history
	Acks                 uint64 // ACKs that released a cached reply
	Errors               uint64 // ERROR replies sent
	Dropped              uint64 // Replies suppressed by the fault injector
	Malformed            uint64 // Datagrams without a parseable header
}

// Server is the booking-rpc server.
type Server struct {
	codec       *codec.Codec
	opts        Options
	log         *zap.Logger
	handlers    map[uint16]middleware.HandlerFunc
	middlewares []middleware.Middleware // Registered middlewares (applied in order)
	chain       map[uint16]middleware.HandlerFunc

	ep       *transport.Endpoint
	history  *History
	shutdown atomic.Bool // Set during shutdown to tell a deliberate Close from a socket failure
	wg       sync.WaitGroup
	mu       sync.Mutex // Guards ep, chain and advertiseAddr

	advertiseAddr string // Address registered in the registry, empty when not registered

	requests, executions, duplicates, acks, errorReplies, dropped, malformed atomic.Uint64
}

// New creates a server with an empty handler table.
func New(c *codec.Codec, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = fmt.Sprintf(":%d", protocol.DefaultServerPort)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.HistoryTTL <= 0 {
		opts.HistoryTTL = DefaultHistoryTTL
	}
	if opts.MaxResends <= 0 {
		opts.MaxResends = DefaultMaxResends
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Injector == nil {
		opts.Injector = &faults.Injector{}
	}
	if opts.ServiceName == "" {
		opts.ServiceName = DefaultServiceName
	}
	if opts.RegistryTTL <= 0 {
		opts.RegistryTTL = DefaultRegistryTTL
	}

	return &Server{
		codec:    c,
		opts:     opts,
		log:      opts.Logger.With(zap.Stringer("semantics", opts.Semantics)),
		handlers: make(map[uint16]middleware.HandlerFunc),
		history:  NewHistory(opts.HistoryTTL, opts.MaxResends),
	}
}

// Handle registers the handler for a service id. The id must exist in the schema.
func (svr *Server) Handle(serviceID uint16, h middleware.HandlerFunc) error {
	return svr.HandleWith(serviceID, h)
}

// HandleWith registers h behind middlewares that apply to this service only. They
// run inside the server-wide chain added with Use:
//
//	Use(A), HandleWith(id, h, R, T) → A(R(T(h)))
func (svr *Server) HandleWith(serviceID uint16, h middleware.HandlerFunc, mws ...middleware.Middleware) error {
	if _, ok := svr.codec.Registry().Service(serviceID); !ok {
		return &codec.UnknownServiceError{ServiceID: serviceID}
	}
	svr.handlers[serviceID] = middleware.Chain(mws...)(h)
	return nil
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Listen binds the endpoint. Serve calls it when needed; calling it first lets the
// caller learn the bound address before serving.
func (svr *Server) Listen() error {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.ep != nil {
		return nil
	}
	ep, err := transport.Listen(svr.opts.Addr)
	if err != nil {
		return err
	}
	svr.ep = ep
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (svr *Server) Addr() *net.UDPAddr {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.ep == nil {
		return nil
	}
	return svr.ep.LocalAddr()
}

// Serve runs the receive loop until ctx ends or Shutdown is called; both return nil.
func (svr *Server) Serve(ctx context.Context) error {
	if err := svr.Listen(); err != nil {
		return err
	}

	// Build the middleware chain once at startup (not per-request)
	svr.mu.Lock()
	svr.chain = make(map[uint16]middleware.HandlerFunc, len(svr.handlers))
	for id, h := range svr.handlers {
		svr.chain[id] = middleware.Chain(svr.middlewares...)(h)
	}
	ep := svr.ep
	svr.mu.Unlock()

	svr.wg.Add(1)
	defer svr.wg.Done()

	if svr.opts.Registry != nil {
		if err := svr.register(ctx); err != nil {
			return err
		}
	}

	svr.log.Info("serving", zap.Stringer("addr", ep.LocalAddr()), zap.Int("services", len(svr.chain)))

	lastSweep := time.Now()
	for {
		r := ep.ReceiveContext(ctx, svr.opts.PollInterval)
		switch r.Outcome {
		case transport.Received:
			svr.handleDatagram(ctx, r.Data, r.From)
		case transport.TimedOut, transport.WouldBlock:
		case transport.Canceled:
			svr.log.Info("serve context done", zap.Error(r.Err))
			return nil
		case transport.Closed:
			if svr.shutdown.Load() {
				return nil
			}
			return ErrServerClosed
		case transport.Failed:
			svr.log.Error("receive failed", zap.Error(r.Err))
			return r.Err
		}

		if time.Since(lastSweep) >= svr.opts.PollInterval {
			if n := svr.history.Sweep(); n > 0 {
				svr.log.Debug("expired cached replies", zap.Int("count", n))
			}
			lastSweep = time.Now()
		}
	}
}

func (svr *Server) register(ctx context.Context) error {
	advertise := svr.opts.AdvertiseAddr
	if advertise == "" {
		advertise = svr.Addr().String()
	}

	err := svr.opts.Registry.Register(ctx, svr.opts.ServiceName, registry.ServiceInstance{
		Addr:      advertise,
		Weight:    svr.opts.Weight,
		Version:   svr.opts.Version,
		Semantics: svr.opts.Semantics.String(),
	}, svr.opts.RegistryTTL)
	if err != nil {
		return fmt.Errorf("server: register %s: %w", advertise, err)
	}
	svr.mu.Lock()
	svr.advertiseAddr = advertise
	svr.mu.Unlock()
	return nil
}

func (svr *Server) handleDatagram(ctx context.Context, data []byte, from *net.UDPAddr) {
	h, _, err := protocol.Decode(data)
	if err != nil {
		svr.malformed.Add(1)
		svr.log.Warn("dropping malformed datagram", zap.Stringer("from", from), zap.Error(err))
		return
	}
	log := svr.log.With(
		zap.Stringer("correlation_id", h.CorrelationID),
		zap.Uint16("service_id", h.ServiceID),
		zap.Stringer("from", from))

	switch h.Kind {
	case protocol.KindAck:
		if svr.opts.Semantics == socket.AtMostOnce && svr.history.Ack(h.CorrelationID) {
			svr.acks.Add(1)
			log.Debug("ack released cached reply")
		}
		return
	case protocol.KindRequest:
	default:
		log.Debug("ignoring unexpected frame", zap.Stringer("kind", h.Kind))
		return
	}

	svr.requests.Add(1)

	if svr.opts.Semantics == socket.AtMostOnce {
		switch reply, lookup := svr.history.Replay(h.CorrelationID); lookup {
		case Hit:
			svr.duplicates.Add(1)
			log.Info("duplicate request, resending cached reply")
			svr.send(reply, from, log)
			return
		case Exhausted:
			svr.duplicates.Add(1)
			log.Warn("duplicate request after resend budget, refusing")
			svr.send(svr.errorFrame(h, ErrReplyExpired.Error(), log), from, log)
			return
		}
	}

	reply := svr.execute(ctx, h, data, from, log)
	if svr.opts.Semantics == socket.AtMostOnce {
		svr.history.Store(h.CorrelationID, reply)
	}
	svr.send(reply, from, log)
}

// execute decodes, dispatches and encodes; it always returns a datagram, an ERROR
// frame when anything goes wrong.
func (svr *Server) execute(ctx context.Context, h protocol.Header, data []byte, from *net.UDPAddr, log *zap.Logger) []byte {
	res, err := svr.codec.Decode(data)
	if err != nil {
		log.Warn("undecodable request", zap.Error(err))
		return svr.errorFrame(h, err.Error(), log)
	}

	handler, ok := svr.chain[h.ServiceID]
	if !ok {
		return svr.errorFrame(h, fmt.Sprintf("no handler for service %d", h.ServiceID), log)
	}

	svc, _ := svr.codec.Registry().Service(h.ServiceID)
	call := &message.Call{
		ServiceID:     h.ServiceID,
		Service:       svc.Name,
		CorrelationID: h.CorrelationID,
		Peer:          from,
		Args:          res.Message(),
	}

	svr.executions.Add(1)
	out, err := handler(ctx, call)
	if err != nil {
		return svr.errorFrame(h, err.Error(), log)
	}

	reply, err := svr.codec.Encode(h.CorrelationID, h.ServiceID, protocol.KindResponse, out)
	if err != nil {
		log.Error("encode reply failed", zap.Error(err))
		return svr.errorFrame(h, "server could not encode the reply", log)
	}
	return reply
}

func (svr *Server) errorFrame(h protocol.Header, text string, log *zap.Logger) []byte {
	svr.errorReplies.Add(1)
	frame, err := svr.codec.Encode(h.CorrelationID, h.ServiceID, protocol.KindError, &message.ErrorObject{Message: text})
	if err != nil {
		// Only invalid UTF-8 can fail here.
		log.Error("encode error frame failed", zap.Error(err))
		return protocol.Encode(protocol.Header{CorrelationID: h.CorrelationID, ServiceID: h.ServiceID, Kind: protocol.KindError}, []byte("internal error"))
	}
	return frame
}

func (svr *Server) send(reply []byte, to *net.UDPAddr, log *zap.Logger) {
	if svr.opts.Injector.HasLost(faults.ServerToClient) {
		svr.dropped.Add(1)
		log.Info("simulated loss", zap.Stringer("point", faults.ServerToClient))
		return
	}
	if err := svr.ep.Send(reply, to); err != nil {
		log.Warn("send reply failed", zap.Error(err))
	}
}

// Notify pushes an unsolicited REQUEST-framed datagram to a client, e.g. a
// facility availability update for a registered monitor. It is fire-and-forget.
func (svr *Server) Notify(to net.Addr, serviceID uint16, msg *message.Message) error {
	svr.mu.Lock()
	ep := svr.ep
	svr.mu.Unlock()
	if ep == nil {
		return ErrServerClosed
	}

	data, err := svr.codec.Encode(uuid.New(), serviceID, protocol.KindRequest, msg)
	if err != nil {
		return err
	}
	return ep.Send(data, to)
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry (clients stop picking this server)
//  2. Set the shutdown flag (so the Closed read is recognised as intentional)
//  3. Close the endpoint (wakes the serve loop)
//  4. Wait for the serve loop to return (with timeout)
func (svr *Server) Shutdown(timeout time.Duration) error {
	svr.mu.Lock()
	advertise := svr.advertiseAddr
	svr.mu.Unlock()

	if svr.opts.Registry != nil && advertise != "" {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := svr.opts.Registry.Deregister(ctx, svr.opts.ServiceName, advertise); err != nil {
			svr.log.Warn("deregister failed", zap.Error(err))
		}
		cancel()
	}

	svr.shutdown.Store(true)
	svr.mu.Lock()
	if svr.ep != nil {
		svr.ep.Close()
	}
	svr.mu.Unlock()

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("server: timeout waiting for the serve loop to finish")
	}
}

// History exposes the reply cache. It stays empty under at-least-once.
func (svr *Server) History() *History { return svr.history }

// Faults returns the server-side fault injector.
func (svr *Server) Faults() *faults.Injector { return svr.opts.Injector }

func (svr *Server) Stats() Stats {
	return Stats{
		Requests:             svr.requests.Load(),
		Executions:           svr.executions.Load(),
		DuplicatesSuppressed: svr.duplicates.Load(),
		Acks:                 svr.acks.Load(),
		Errors:               svr.errorReplies.Load(),
		Dropped:              svr.dropped.Load(),
		Malformed:            svr.malformed.Load(),
	}
}
