package loadbalance

import (
	"errors"
	"fmt"
	"testing"

	"booking-rpc/registry"
)

var testInstances = []registry.ServiceInstance{
	{Addr: "127.0.0.1:12001", Weight: 10, Version: "1.0"},
	{Addr: "127.0.0.1:12002", Weight: 5, Version: "1.0"},
	{Addr: "127.0.0.1:12003", Weight: 10, Version: "1.0"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	// Pick 3 times, should cycle through all instances
	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		inst, err := b.Pick(testInstances, "")
		if err != nil {
			t.Fatal(err)
		}
		results[i] = inst.Addr
	}
	if results[0] != testInstances[0].Addr || results[2] != testInstances[2].Addr {
		t.Fatalf("expect instances in order, got %v", results)
	}

	// Pick again, should wrap around to first
	inst, _ := b.Pick(testInstances, "")
	if inst.Addr != results[0] {
		t.Fatalf("expect wrap around to %s, got %s", results[0], inst.Addr)
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	b := &RoundRobinBalancer{}
	_, err := b.Pick([]registry.ServiceInstance{}, "")
	if !errors.Is(err, ErrNoInstances) {
		t.Fatal("expect ErrNoInstances for empty instances")
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		inst, err := b.Pick(testInstances, "")
		if err != nil {
			t.Fatal(err)
		}
		counts[inst.Addr]++
	}

	// Weight ratio is 10:5:10, so the first and third should be ~2x of the second
	ratio := float64(counts[testInstances[0].Addr]) / float64(counts[testInstances[1].Addr])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	inst, err := b.Pick([]registry.ServiceInstance{{Addr: "a"}, {Addr: "b"}}, "")
	if err != nil || inst == nil {
		t.Fatalf("expect a pick with unweighted instances, got %v, %v", inst, err)
	}
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()

	// Same key should always map to the same instance
	inst1, _ := b.Pick(testInstances, "Library")
	inst2, _ := b.Pick(testInstances, "Library")
	if inst1.Addr != inst2.Addr {
		t.Fatalf("same key mapped to different instances: %s vs %s", inst1.Addr, inst2.Addr)
	}

	// Different keys should (likely) map to different instances
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		inst, _ := b.Pick(testInstances, fmt.Sprintf("facility-%d", i))
		seen[inst.Addr] = true
	}

	// With 100 different keys and 3 nodes, we should hit at least 2
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different instances, got %d", len(seen))
	}
}

func TestConsistentHashStableAcrossOrder(t *testing.T) {
	b := NewConsistentHashBalancer()
	reversed := []registry.ServiceInstance{testInstances[2], testInstances[1], testInstances[0]}

	first, _ := b.Pick(testInstances, "Gym")
	second, _ := b.Pick(reversed, "Gym")
	if first.Addr != second.Addr {
		t.Fatalf("instance order changed the mapping: %s vs %s", first.Addr, second.Addr)
	}
}

func TestConsistentHashAdd(t *testing.T) {
	b := NewConsistentHashBalancer()
	if _, err := b.Pick(nil, "x"); !errors.Is(err, ErrNoInstances) {
		t.Fatalf("expect ErrNoInstances on an empty ring, got %v", err)
	}
	b.Add(testInstances[1])
	inst, err := b.Pick(nil, "x")
	if err != nil || inst.Addr != testInstances[1].Addr {
		t.Fatalf("expect the only instance, got %v, %v", inst, err)
	}
}

func TestNew(t *testing.T) {
	for name, want := range map[string]string{
		"round-robin":     "RoundRobin",
		"weighted-random": "WeightedRandom",
		"ConsistentHash":  "ConsistentHash",
	} {
		b, err := New(name)
		if err != nil || b.Name() != want {
			t.Errorf("New(%q) = %v, %v", name, b, err)
		}
	}
	if _, err := New("random"); err == nil {
		t.Fatal("expect error for unknown strategy")
	}
}
