package radio

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDutyCyclePacesBroadcast(t *testing.T) {
	c := NewChannel(0)
	inner, _ := startMemory(t, c, "paced")
	_, box := startMemory(t, c, "listener")

	d := NewDutyCycle(inner, 50, 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := d.Broadcast("J"); err != nil {
			t.Fatalf("Broadcast failed: %v", err)
		}
	}
	// burst 1 at 50/s: the 2nd and 3rd sends each wait ~20ms
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Errorf("Expected pacing of at least 35ms, got %v", elapsed)
	}

	waitFor(t, func() bool { return len(box.snapshot()) == 3 })
	if d.Meta().Sent != 3 {
		t.Errorf("Expected 3 sent, got %d", d.Meta().Sent)
	}
}

func TestDutyCycleRejectsOversizeWithoutSpendingSlot(t *testing.T) {
	c := NewChannel(DefaultMaxDatagram)
	inner, _ := startMemory(t, c, "paced")
	d := NewDutyCycle(inner, 0.001, 1)

	long := strings.Repeat("x", DefaultMaxDatagram+1)
	if err := d.Broadcast(long); !errors.Is(err, ErrDatagramTooLong) {
		t.Fatalf("Expected ErrDatagramTooLong, got %v", err)
	}
	// the single burst slot must still be available
	if d.limiter.Tokens() < 1 {
		t.Errorf("Expected the burst slot to be unspent, got %.2f tokens", d.limiter.Tokens())
	}
}

func TestDutyCycleShutdownReleasesWaitingBroadcast(t *testing.T) {
	c := NewChannel(0)
	inner, _ := startMemory(t, c, "paced")
	// one send every ~17 minutes
	d := NewDutyCycle(inner, 0.001, 1)
	if err := d.Broadcast("J"); err != nil {
		t.Fatalf("First broadcast failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- d.Broadcast("J") }()
	time.Sleep(20 * time.Millisecond)
	d.Shutdown()

	select {
	case err := <-done:
		if !errors.Is(err, ErrNotRunning) {
			t.Errorf("Expected ErrNotRunning, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Broadcast still blocked after Shutdown")
	}
}
