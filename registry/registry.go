// Package registry lets booking servers announce their UDP address and lets
// clients find them.
//
//	bookingd ──Register("booking", {Addr: "10.0.0.5:12000", Semantics: "at-most-once"})──▶ registry
//	bookingctl ──Discover("booking")──▶ []ServiceInstance ──▶ loadbalance.Balancer ──▶ socket
package registry

import "context"

type ServiceInstance struct {
	Addr      string // UDP host:port the server reads from
	Weight    int    // Weight for load balancing
	Version   string
	Semantics string `json:",omitempty"` // Invocation semantics the server dedups for
}

type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}
