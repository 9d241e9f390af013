package registry

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRegistry(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	reg.Register(ctx, "booking", ServiceInstance{Addr: "127.0.0.1:12002", Weight: 1}, 10)
	reg.Register(ctx, "booking", ServiceInstance{Addr: "127.0.0.1:12001", Weight: 2}, 10)

	instances, err := reg.Discover(ctx, "booking")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 || instances[0].Addr != "127.0.0.1:12001" {
		t.Fatalf("expect 2 instances sorted by address, got %+v", instances)
	}

	reg.Deregister(ctx, "booking", "127.0.0.1:12001")
	instances, _ = reg.Discover(ctx, "booking")
	if len(instances) != 1 || instances[0].Addr != "127.0.0.1:12002" {
		t.Fatalf("unexpected instances after deregister: %+v", instances)
	}

	if other, _ := reg.Discover(ctx, "unknown"); len(other) != 0 {
		t.Fatalf("expect no instances for unknown service, got %+v", other)
	}
}

func TestMemoryRegistryWatch(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	updates := reg.Watch(ctx, "booking")
	reg.Register(ctx, "booking", ServiceInstance{Addr: "a"}, 10)
	reg.Register(ctx, "booking", ServiceInstance{Addr: "b"}, 10)

	// The buffer keeps only the latest list.
	select {
	case list := <-updates:
		if len(list) != 2 {
			t.Fatalf("expect latest list with 2 instances, got %+v", list)
		}
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}

	cancel()
	select {
	case _, ok := <-updates:
		if ok {
			t.Fatal("expect channel to close after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed")
	}
}
