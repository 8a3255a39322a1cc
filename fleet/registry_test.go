package fleet

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mbocsi/radiofleet/radio"
)

func TestRegistryConvergesToAllTargets(t *testing.T) {
	ch := radio.NewChannel(0)
	cmd := startCommander(t, ch, Options{})
	for id := 1; id <= 3; id++ {
		startTarget(t, ch, "t", id, Options{})
	}

	ids, err := cmd.RequestTargetRegistry(context.Background())
	if err != nil {
		t.Fatalf("RequestTargetRegistry failed: %v", err)
	}
	if want := []int{1, 2, 3}; !reflect.DeepEqual(ids, want) {
		t.Errorf("Expected %v, got %v", want, ids)
	}
	if !reflect.DeepEqual(cmd.Targets(), ids) {
		t.Errorf("Expected cached registry %v, got %v", ids, cmd.Targets())
	}
	if !cmd.Status().StreamingDone {
		t.Error("Expected streaming done after poll")
	}
}

func TestRegistryRequiresCommander(t *testing.T) {
	ch := radio.NewChannel(0)
	n := startTarget(t, ch, "t1", 1, Options{})
	if _, err := n.RequestTargetRegistry(context.Background()); !errors.Is(err, ErrNotCommander) {
		t.Errorf("Expected ErrNotCommander, got %v", err)
	}
}

func TestRegistryAccumulatesAcrossRounds(t *testing.T) {
	ch := radio.NewChannel(0)
	p := newSniffer(t, ch)
	cmd := startCommander(t, ch, Options{})
	for id := 1; id <= 3; id++ {
		startTarget(t, ch, "t", id, Options{})
	}
	if ids, _ := cmd.RequestTargetRegistry(context.Background()); len(ids) != 3 {
		t.Fatalf("Expected 3 targets on first poll, got %v", ids)
	}

	// lose target 3's first reply only
	var dropped atomic.Bool
	ch.SetDropFunc(func(from, to, datagram string) bool {
		return to == "commander" && datagram == "G,3" && dropped.CompareAndSwap(false, true)
	})
	p.clear()

	ids, err := cmd.RequestTargetRegistry(context.Background())
	if err != nil {
		t.Fatalf("RequestTargetRegistry failed: %v", err)
	}
	if want := []int{1, 2, 3}; !reflect.DeepEqual(ids, want) {
		t.Errorf("Expected %v, got %v", want, ids)
	}
	if got := p.count("G"); got != 2 {
		t.Errorf("Expected 2 poll rounds, got %d", got)
	}
}

func TestRegistryStopsWhenGrowthStalls(t *testing.T) {
	ch := radio.NewChannel(0)
	p := newSniffer(t, ch)
	cmd := startCommander(t, ch, Options{})
	startTarget(t, ch, "t1", 1, Options{})
	startTarget(t, ch, "t2", 2, Options{})
	gone := ch.Join("t3")
	n3 := NewNode(gone, Options{Timing: fastTiming()})
	ctx, cancel := context.WithCancel(context.Background())
	go gone.Start()
	go n3.Run(ctx)
	awaitRunning(t, gone)
	n3.becomeTarget()
	n3.mu.Lock()
	n3.id = 3
	n3.mu.Unlock()

	if ids, _ := cmd.RequestTargetRegistry(context.Background()); len(ids) != 3 {
		t.Fatalf("Expected 3 targets on first poll, got %v", ids)
	}

	cancel()
	gone.Shutdown()
	p.clear()

	ids, err := cmd.RequestTargetRegistry(context.Background())
	if err != nil {
		t.Fatalf("RequestTargetRegistry failed: %v", err)
	}
	if want := []int{1, 2}; !reflect.DeepEqual(ids, want) {
		t.Errorf("Expected %v, got %v", want, ids)
	}
	if got := p.count("G"); got != 2 {
		t.Errorf("Expected poll to stop after 2 rounds, got %d", got)
	}
}

func TestRegistryPollHonoursContext(t *testing.T) {
	ch := radio.NewChannel(0)
	cmd := startCommander(t, ch, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if _, err := cmd.RequestTargetRegistry(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if !cmd.Status().StreamingDone {
		t.Error("Expected streaming done to be restored")
	}
}

func TestWatchTargets(t *testing.T) {
	ch := radio.NewChannel(0)
	cmd := startCommander(t, ch, Options{})
	startTarget(t, ch, "t1", 1, Options{})

	var (
		mu   sync.Mutex
		seen [][]int
	)
	watch := cmd.WatchTargets(func(ids []int) {
		mu.Lock()
		seen = append(seen, ids)
		mu.Unlock()
	})
	lastSeen := func() []int {
		mu.Lock()
		defer mu.Unlock()
		if len(seen) == 0 {
			return nil
		}
		return seen[len(seen)-1]
	}

	if watch.Held() {
		t.Fatal("Expected the watch to start released")
	}
	watch.Press(context.Background())
	eventually(t, func() bool { return reflect.DeepEqual(lastSeen(), []int{1}) }, "registry refreshed")

	startTarget(t, ch, "t2", 2, Options{})
	eventually(t, func() bool { return reflect.DeepEqual(lastSeen(), []int{1, 2}) }, "registry grew")
	if !reflect.DeepEqual(cmd.Targets(), []int{1, 2}) {
		t.Errorf("Expected cached registry [1 2], got %v", cmd.Targets())
	}

	watch.Release()
	if watch.Held() {
		t.Error("Expected the watch to be released")
	}
	mu.Lock()
	n := len(seen)
	mu.Unlock()
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	after := len(seen)
	mu.Unlock()
	if after > n+1 {
		t.Errorf("Expected polling to stop after release, got %d more refreshes", after-n)
	}
}
