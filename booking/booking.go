// Package booking is the facility-booking application served over booking-rpc:
// an in-memory store of facilities and bookings, the monitor list used for
// availability pushes, the handlers for services 1-8 and the schema tables both
// peers share.
package booking

import "booking-rpc/schema"

// Service ids as they appear on the wire.
const (
	ListAvailabilityID uint16 = 1
	BookFacilityID     uint16 = 2
	EditBookingID      uint16 = 3
	RegisterCallbackID uint16 = 4
	CancelBookingID    uint16 = 5
	ExtendBookingID    uint16 = 6
	NotifyCallbackID   uint16 = 7
	GetUtilisationID   uint16 = 8
)

func fields(kv ...any) []schema.Field {
	out := make([]schema.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, schema.Field{Name: kv[i].(string), Type: kv[i+1].(schema.FieldType)})
	}
	return out
}

// Idempotent reports whether running the service twice for one request leaves
// the same state as running it once. Only these may be retried server-side.
func Idempotent(serviceID uint16) bool {
	switch serviceID {
	case ListAvailabilityID, RegisterCallbackID, GetUtilisationID:
		return true
	default:
		return false
	}
}

// Types returns the booking message layouts. Field order is wire order.
func Types() []schema.Type {
	return []schema.Type{
		{Name: "ListAvailabilityReq", Fields: fields("facilityName", schema.String, "days", schema.String)},
		{Name: "ListAvailabilityResp", Fields: fields("availability", schema.String)},
		{Name: "BookFacilityReq", Fields: fields("facilityName", schema.String, "timeSlot", schema.String)},
		{Name: "BookFacilityResp", Fields: fields("confirmationID", schema.String)},
		{Name: "EditBookingReq", Fields: fields("confirmationID", schema.String, "minuteOffset", schema.Int32)},
		{Name: "EditBookingResp", Fields: fields("success", schema.Bool, "timeSlot", schema.String)},
		{Name: "RegisterCallbackReq", Fields: fields("facilityName", schema.String, "monitoringPeriodInMinutes", schema.Int32)},
		{Name: "RegisterCallbackResp", Fields: fields("success", schema.Bool)},
		{Name: "CancelBookingReq", Fields: fields("confirmationID", schema.String)},
		{Name: "CancelBookingResp", Fields: fields("success", schema.Bool)},
		{Name: "ExtendBookingReq", Fields: fields("confirmationID", schema.String, "minuteOffset", schema.Int32)},
		{Name: "ExtendBookingResp", Fields: fields("success", schema.Bool, "timeSlot", schema.String)},
		{Name: "NotifyCallbackReq", Fields: fields("facilityName", schema.String, "availability", schema.String)},
		{Name: "NotifyCallbackResp", Fields: fields("success", schema.Bool)},
		{Name: "GetUtilisationReq", Fields: fields("facilityName", schema.String)},
		{Name: "GetUtilisationResp", Fields: fields("utilisation", schema.Float32, "bookings", schema.Int32)},
	}
}

// Services returns the booking service table.
func Services() []schema.Service {
	return []schema.Service{
		{ID: ListAvailabilityID, Name: "ListAvailability", Request: "ListAvailabilityReq", Response: "ListAvailabilityResp"},
		{ID: BookFacilityID, Name: "BookFacility", Request: "BookFacilityReq", Response: "BookFacilityResp"},
		{ID: EditBookingID, Name: "EditBooking", Request: "EditBookingReq", Response: "EditBookingResp"},
		{ID: RegisterCallbackID, Name: "RegisterCallback", Request: "RegisterCallbackReq", Response: "RegisterCallbackResp"},
		{ID: CancelBookingID, Name: "CancelBooking", Request: "CancelBookingReq", Response: "CancelBookingResp"},
		{ID: ExtendBookingID, Name: "ExtendBooking", Request: "ExtendBookingReq", Response: "ExtendBookingResp"},
		{ID: NotifyCallbackID, Name: "NotifyCallback", Request: "NotifyCallbackReq", Response: "NotifyCallbackResp"},
		{ID: GetUtilisationID, Name: "GetUtilisation", Request: "GetUtilisationReq", Response: "GetUtilisationResp"},
	}
}

// Schema builds the registry from Types and Services.
func Schema() (*schema.Registry, error) {
	return schema.NewRegistry(Types(), Services())
}
