package booking

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"

	"booking-rpc/message"
	"booking-rpc/middleware"
)

// Notifier pushes an unsolicited message to a client; *server.Server implements it.
type Notifier interface {
	Notify(to net.Addr, serviceID uint16, msg *message.Message) error
}

// HandlerRegistrar is the part of *server.Server the service registers on.
type HandlerRegistrar interface {
	Handle(serviceID uint16, h middleware.HandlerFunc) error
}

// Service adapts typed booking messages to the Store and fans changes out to
// monitors.
type Service struct {
	store    *Store
	notifier Notifier
	log      *zap.Logger
}

// NewService wires a store to a notifier. notifier may be nil, in which case
// changes are not pushed.
func NewService(store *Store, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, notifier: notifier, log: logger}
}

// Store returns the underlying store.
func (s *Service) Store() *Store { return s.store }

// Handlers maps every callable service id to its handler. NotifyCallback is
// server-to-client only and has none.
func (s *Service) Handlers() map[uint16]middleware.HandlerFunc {
	return map[uint16]middleware.HandlerFunc{
		ListAvailabilityID: s.listAvailability,
		BookFacilityID:     s.bookFacility,
		EditBookingID:      s.editBooking,
		RegisterCallbackID: s.registerCallback,
		CancelBookingID:    s.cancelBooking,
		ExtendBookingID:    s.extendBooking,
		GetUtilisationID:   s.getUtilisation,
	}
}

// Register installs Handlers on r.
func (s *Service) Register(r HandlerRegistrar) error {
	for id, h := range s.Handlers() {
		if err := r.Handle(id, h); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) listAvailability(ctx context.Context, call *message.Call) (*message.Message, error) {
	days, err := ParseDays(call.Args.GetString("days"))
	if err != nil {
		return nil, err
	}
	free, err := s.store.Availability(call.Args.GetString("facilityName"), days)
	if err != nil {
		return nil, err
	}
	return message.New("ListAvailabilityResp", message.Fields{
		"availability": FormatAvailability(days, free),
	}), nil
}

func (s *Service) bookFacility(ctx context.Context, call *message.Call) (*message.Message, error) {
	slot, err := ParseTimeSlot(call.Args.GetString("timeSlot"))
	if err != nil {
		return nil, err
	}
	b, err := s.store.Book(call.Args.GetString("facilityName"), slot)
	if err != nil {
		return nil, err
	}
	s.log.Info("booked",
		zap.String("facility", b.Facility),
		zap.Stringer("slot", b.Slot),
		zap.String("confirmation_id", b.ConfirmationID))
	s.notify(b.Facility)
	return message.New("BookFacilityResp", message.Fields{"confirmationID": b.ConfirmationID}), nil
}

func (s *Service) editBooking(ctx context.Context, call *message.Call) (*message.Message, error) {
	b, err := s.store.Edit(call.Args.GetString("confirmationID"), int(call.Args.GetInt32("minuteOffset")))
	if err != nil {
		return nil, err
	}
	s.log.Info("booking moved", zap.String("confirmation_id", b.ConfirmationID), zap.Stringer("slot", b.Slot))
	s.notify(b.Facility)
	return message.New("EditBookingResp", message.Fields{"success": true, "timeSlot": b.Slot.String()}), nil
}

func (s *Service) extendBooking(ctx context.Context, call *message.Call) (*message.Message, error) {
	b, err := s.store.Extend(call.Args.GetString("confirmationID"), int(call.Args.GetInt32("minuteOffset")))
	if err != nil {
		return nil, err
	}
	s.log.Info("booking extended", zap.String("confirmation_id", b.ConfirmationID), zap.Stringer("slot", b.Slot))
	s.notify(b.Facility)
	return message.New("ExtendBookingResp", message.Fields{"success": true, "timeSlot": b.Slot.String()}), nil
}

func (s *Service) cancelBooking(ctx context.Context, call *message.Call) (*message.Message, error) {
	b, err := s.store.Cancel(call.Args.GetString("confirmationID"))
	if err != nil {
		return nil, err
	}
	s.log.Info("booking cancelled", zap.String("confirmation_id", b.ConfirmationID))
	s.notify(b.Facility)
	return message.New("CancelBookingResp", message.Fields{"success": true}), nil
}

func (s *Service) registerCallback(ctx context.Context, call *message.Call) (*message.Message, error) {
	period := time.Duration(call.Args.GetInt32("monitoringPeriodInMinutes")) * time.Minute
	m, err := s.store.AddMonitor(call.Args.GetString("facilityName"), call.Peer, period)
	if err != nil {
		return nil, err
	}
	s.log.Info("monitor registered",
		zap.String("facility", m.Facility),
		zap.Stringer("addr", m.Addr),
		zap.Time("expires", m.Expires))
	return message.New("RegisterCallbackResp", message.Fields{"success": true}), nil
}

func (s *Service) getUtilisation(ctx context.Context, call *message.Call) (*message.Message, error) {
	u, n, err := s.store.Utilisation(call.Args.GetString("facilityName"))
	if err != nil {
		return nil, err
	}
	return message.New("GetUtilisationResp", message.Fields{"utilisation": u, "bookings": n}), nil
}

// notify pushes the facility's weekly availability to its live monitors. Push
// failures are logged and never fail the request that caused the change.
func (s *Service) notify(facilityName string) {
	if s.notifier == nil {
		return
	}
	monitors := s.store.Monitors(facilityName)
	if len(monitors) == 0 {
		return
	}
	days := AllDays()
	free, err := s.store.Availability(facilityName, days)
	if err != nil {
		s.log.Warn("availability for notification failed", zap.String("facility", facilityName), zap.Error(err))
		return
	}
	msg := message.New("NotifyCallbackReq", message.Fields{
		"facilityName": facilityName,
		"availability": FormatAvailability(days, free),
	})
	for _, m := range monitors {
		if err := s.notifier.Notify(m.Addr, NotifyCallbackID, msg); err != nil {
			// An address we cannot send to will not come back within a monitoring window.
			n := s.store.RemoveMonitors(m.Addr)
			s.log.Warn("notify monitor failed, dropping its registrations",
				zap.Stringer("addr", m.Addr), zap.Int("removed", n), zap.Error(err))
			continue
		}
		s.log.Debug("notified monitor", zap.Stringer("addr", m.Addr), zap.String("facility", facilityName))
	}
}
