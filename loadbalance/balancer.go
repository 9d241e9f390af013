// Package loadbalance picks which booking server a client talks to when the
// registry returns more than one.
//
// Three strategies are implemented:
//   - RoundRobin:      Equal-capacity servers, at-least-once semantics
//   - WeightedRandom:  Heterogeneous servers (different CPU/memory)
//   - ConsistentHash:  At-most-once semantics: the same facility always reaches the
//     same server, so its duplicate-suppression history sees every retry
package loadbalance

import (
	"errors"
	"fmt"
	"strings"

	"booking-rpc/registry"
)

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer is the interface for load balancing strategies.
// The client calls Pick() when it (re)binds a socket to a server.
type Balancer interface {
	// Pick selects one instance from the available list. key is the affinity
	// key (a facility name); strategies without affinity ignore it.
	// Must be goroutine-safe.
	Pick(instances []registry.ServiceInstance, key string) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the balancer for a configured strategy name.
func New(name string) (Balancer, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "")) {
	case "", "roundrobin":
		return &RoundRobinBalancer{}, nil
	case "weightedrandom":
		return &WeightedRandomBalancer{}, nil
	case "consistenthash":
		return NewConsistentHashBalancer(), nil
	default:
		return nil, fmt.Errorf("loadbalance: unknown strategy %q", name)
	}
}
