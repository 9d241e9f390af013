package main

import (
	"testing"
	"time"

	"booking-rpc/booking"
	"booking-rpc/config"
)

func TestServiceMiddlewares(t *testing.T) {
	mw := config.MiddlewareConfig{Timeout: config.Duration{Duration: time.Second}, Retries: 2}

	tests := []struct {
		id   uint16
		want int
	}{
		{booking.ListAvailabilityID, 2},
		{booking.RegisterCallbackID, 2},
		{booking.GetUtilisationID, 2},
		{booking.BookFacilityID, 0},
		{booking.EditBookingID, 0},
		{booking.CancelBookingID, 0},
		{booking.ExtendBookingID, 0},
	}
	for _, tt := range tests {
		if got := len(serviceMiddlewares(tt.id, mw, nil)); got != tt.want {
			t.Errorf("service %d: expect %d middlewares, got %d", tt.id, tt.want, got)
		}
	}

	if got := len(serviceMiddlewares(booking.ListAvailabilityID, config.MiddlewareConfig{}, nil)); got != 0 {
		t.Errorf("expect no middlewares when neither timeout nor retries are set, got %d", got)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := loadConfig("", "127.0.0.1:13000", "at-most-once", " Library , ,Gym")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != "127.0.0.1:13000" || cfg.Semantics != "at-most-once" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.Facilities) != 2 || cfg.Facilities[0] != "Library" || cfg.Facilities[1] != "Gym" {
		t.Fatalf("unexpected facilities %q", cfg.Facilities)
	}

	cfg, err = loadConfig("", "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Facilities) != len(defaultFacilities) {
		t.Fatalf("expect default facilities, got %q", cfg.Facilities)
	}
}
