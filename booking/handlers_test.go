package booking

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"booking-rpc/codec"
	"booking-rpc/message"
	"booking-rpc/middleware"
	"booking-rpc/protocol"
)

type pushed struct {
	to        net.Addr
	serviceID uint16
	msg       *message.Message
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []pushed
	err  error
}

func (n *fakeNotifier) Notify(to net.Addr, serviceID uint16, msg *message.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, pushed{to, serviceID, msg})
	return nil
}

var peer = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 11999}

func call(id uint16, typeName string, f message.Fields) *message.Call {
	return &message.Call{
		ServiceID:     id,
		CorrelationID: uuid.New(),
		Peer:          peer,
		Args:          message.New(typeName, f),
	}
}

func newTestService(t *testing.T) (*Service, *fakeNotifier, map[uint16]middleware.HandlerFunc) {
	t.Helper()
	n := &fakeNotifier{}
	svc := NewService(NewStore("Library", "Gym"), n, zaptest.NewLogger(t))
	return svc, n, svc.Handlers()
}

func TestSchemaTables(t *testing.T) {
	reg, err := Schema()
	if err != nil {
		t.Fatal(err)
	}
	if len(reg.Services()) != 8 {
		t.Fatalf("expect 8 services, got %d", len(reg.Services()))
	}

	c := codec.New(reg)
	_, _, h := newTestService(t)
	if _, ok := h[NotifyCallbackID]; ok {
		t.Fatal("NotifyCallback is push-only and must not have a handler")
	}
	for _, svc := range Services() {
		typ, _ := reg.Type(svc.Request)
		if typ == nil {
			t.Fatalf("service %s: request type %s missing", svc.Name, svc.Request)
		}
	}
	msg := message.New("BookFacilityReq", message.Fields{"facilityName": "Library", "timeSlot": "Mon,9,0 - Mon,10,0"})
	if _, err := c.Encode(uuid.New(), BookFacilityID, protocol.KindRequest, msg); err != nil {
		t.Fatalf("encode BookFacilityReq: %v", err)
	}
}

func TestBookAndList(t *testing.T) {
	_, _, h := newTestService(t)
	ctx := context.Background()

	reply, err := h[BookFacilityID](ctx, call(BookFacilityID, "BookFacilityReq", message.Fields{
		"facilityName": "Library", "timeSlot": "Mon,9,0 - Mon,10,0",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(reply.GetString("confirmationID")); err != nil {
		t.Fatalf("confirmation id is not a uuid: %q", reply.GetString("confirmationID"))
	}

	reply, err = h[ListAvailabilityID](ctx, call(ListAvailabilityID, "ListAvailabilityReq", message.Fields{
		"facilityName": "Library", "days": "Mon",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if got := reply.GetString("availability"); got != "Mon: 08:00 - 09:00, 10:00 - 20:00" {
		t.Fatalf("unexpected availability %q", got)
	}

	_, err = h[ListAvailabilityID](ctx, call(ListAvailabilityID, "ListAvailabilityReq", message.Fields{
		"facilityName": "Library", "days": "Someday",
	}))
	if !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("expect ErrInvalidSlot for a bad day, got %v", err)
	}
}

func TestEditExtendCancelFlow(t *testing.T) {
	_, _, h := newTestService(t)
	ctx := context.Background()

	reply, err := h[BookFacilityID](ctx, call(BookFacilityID, "BookFacilityReq", message.Fields{
		"facilityName": "Gym", "timeSlot": "Thu,10,0 - Thu,11,0",
	}))
	if err != nil {
		t.Fatal(err)
	}
	id := reply.GetString("confirmationID")

	reply, err = h[EditBookingID](ctx, call(EditBookingID, "EditBookingReq", message.Fields{
		"confirmationID": id, "minuteOffset": 60,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !reply.GetBool("success") || reply.GetString("timeSlot") != "Thu,11,0 - Thu,12,0" {
		t.Fatalf("unexpected edit reply %v", reply)
	}

	reply, err = h[ExtendBookingID](ctx, call(ExtendBookingID, "ExtendBookingReq", message.Fields{
		"confirmationID": id, "minuteOffset": 30,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if reply.GetString("timeSlot") != "Thu,11,0 - Thu,12,30" {
		t.Fatalf("unexpected extend reply %v", reply)
	}

	reply, err = h[GetUtilisationID](ctx, call(GetUtilisationID, "GetUtilisationReq", message.Fields{"facilityName": "Gym"}))
	if err != nil {
		t.Fatal(err)
	}
	if reply.GetInt32("bookings") != 1 || reply.GetFloat32("utilisation") <= 0 {
		t.Fatalf("unexpected utilisation %v", reply)
	}

	if _, err := h[CancelBookingID](ctx, call(CancelBookingID, "CancelBookingReq", message.Fields{"confirmationID": id})); err != nil {
		t.Fatal(err)
	}
	_, err = h[CancelBookingID](ctx, call(CancelBookingID, "CancelBookingReq", message.Fields{"confirmationID": id}))
	if !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expect ErrBookingNotFound on a repeated cancel, got %v", err)
	}
}

func TestChangesNotifyMonitors(t *testing.T) {
	svc, n, h := newTestService(t)
	ctx := context.Background()

	if _, err := h[RegisterCallbackID](ctx, call(RegisterCallbackID, "RegisterCallbackReq", message.Fields{
		"facilityName": "Library", "monitoringPeriodInMinutes": 5,
	})); err != nil {
		t.Fatal(err)
	}

	// A change to another facility is not pushed.
	if _, err := h[BookFacilityID](ctx, call(BookFacilityID, "BookFacilityReq", message.Fields{
		"facilityName": "Gym", "timeSlot": "Mon,9,0 - Mon,10,0",
	})); err != nil {
		t.Fatal(err)
	}
	if len(n.sent) != 0 {
		t.Fatalf("expect no push for Gym, got %d", len(n.sent))
	}

	if _, err := h[BookFacilityID](ctx, call(BookFacilityID, "BookFacilityReq", message.Fields{
		"facilityName": "Library", "timeSlot": "Mon,9,0 - Mon,10,0",
	})); err != nil {
		t.Fatal(err)
	}
	if len(n.sent) != 1 {
		t.Fatalf("expect 1 push, got %d", len(n.sent))
	}
	p := n.sent[0]
	if p.to.String() != peer.String() || p.serviceID != NotifyCallbackID {
		t.Fatalf("unexpected push target %v / %d", p.to, p.serviceID)
	}
	if p.msg.GetString("facilityName") != "Library" ||
		!strings.HasPrefix(p.msg.GetString("availability"), "Mon: 08:00 - 09:00, 10:00 - 20:00; Tue:") {
		t.Fatalf("unexpected push %v", p.msg)
	}

	// A failed push never fails the booking.
	n.err = errors.New("unreachable")
	if _, err := h[BookFacilityID](ctx, call(BookFacilityID, "BookFacilityReq", message.Fields{
		"facilityName": "Library", "timeSlot": "Mon,11,0 - Mon,12,0",
	})); err != nil {
		t.Fatalf("push failure leaked into the reply: %v", err)
	}
	if ms := svc.Store().Monitors("Library"); len(ms) != 0 {
		t.Fatalf("expect the unreachable monitor to be dropped, got %v", ms)
	}
}

func TestRegisterCallbackRejectsUnknownFacility(t *testing.T) {
	_, _, h := newTestService(t)
	_, err := h[RegisterCallbackID](context.Background(), call(RegisterCallbackID, "RegisterCallbackReq", message.Fields{
		"facilityName": "Pool", "monitoringPeriodInMinutes": 5,
	}))
	if !errors.Is(err, ErrFacilityNotFound) {
		t.Fatalf("expect ErrFacilityNotFound, got %v", err)
	}
}
