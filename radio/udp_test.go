package radio

import (
	"errors"
	"net"
	"testing"
	"time"
)

func TestGroupAddr(t *testing.T) {
	addr := GroupAddr(7, 40007)
	if addr.String() != "239.0.0.7:40007" {
		t.Errorf("Expected 239.0.0.7:40007, got %s", addr)
	}
	if !addr.IP.IsMulticast() {
		t.Error("Expected a multicast address")
	}
}

func TestNewUDPTransportValidation(t *testing.T) {
	if _, err := NewUDPTransport(UDPConfig{Group: 300, Port: 4000}); err == nil {
		t.Error("Expected error for group out of range")
	}
	if _, err := NewUDPTransport(UDPConfig{Group: 1, Port: 0}); err == nil {
		t.Error("Expected error for zero port")
	}

	tr, err := NewUDPTransport(UDPConfig{Group: 1, Port: 4000})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	meta := tr.Meta()
	if meta.MaxDatagram != DefaultMaxDatagram || meta.Address != "239.0.0.1:4000" {
		t.Errorf("Unexpected metadata %+v", meta)
	}
}

func TestUDPBroadcastChecksLengthFirst(t *testing.T) {
	tr, _ := NewUDPTransport(UDPConfig{Group: 1, Port: 4000, MaxDatagram: 4})

	if err := tr.Broadcast("D,Temp"); !errors.Is(err, ErrDatagramTooLong) {
		t.Errorf("Expected ErrDatagramTooLong, got %v", err)
	}
	if err := tr.Broadcast("J"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning, got %v", err)
	}
}

func TestUDPIsSelf(t *testing.T) {
	tr, _ := NewUDPTransport(UDPConfig{Group: 1, Port: 4000})
	tr.srcPort = 50123
	tr.local = map[string]bool{"10.0.0.5": true}

	if !tr.isSelf(&net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 50123}) {
		t.Error("Expected own address to be recognized")
	}
	if tr.isSelf(&net.UDPAddr{IP: net.ParseIP("10.0.0.6"), Port: 50123}) {
		t.Error("Peer with same port on another host is not self")
	}
	if tr.isSelf(&net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 50124}) {
		t.Error("Another process on this host is not self")
	}
}

func TestUDPStartAfterShutdownReturns(t *testing.T) {
	tr, _ := NewUDPTransport(UDPConfig{Group: 1, Port: 4000})
	tr.OnMessage(func(string) {})

	if err := tr.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- tr.Start() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil from Start after Shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start blocked after Shutdown")
	}
	if tr.Meta().Connected {
		t.Error("Expected transport to stay disconnected")
	}
	if err := tr.Shutdown(); err != nil {
		t.Errorf("Expected second Shutdown to be a no-op, got %v", err)
	}
}
