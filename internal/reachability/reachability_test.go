package reachability

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestObserverReportsConnectedWhenProbeSucceeds(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	o := New(ln.Addr().String(), WithPollInterval(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	select {
	case ev := <-o.Events():
		start, ok := ev.(Start)
		if !ok {
			t.Fatalf("first event = %T, want Start", ev)
		}
		if !start.Connected {
			t.Error("expected Connected = true when the probe target is listening")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Start event")
	}

	o.Stop()
}

func TestObserverReportsDisconnectedWhenProbeFails(t *testing.T) {
	// Port 1 is reserved and unlikely to accept connections in a test
	// sandbox, simulating an unreachable probe target.
	o := New("127.0.0.1:1", WithPollInterval(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	select {
	case ev := <-o.Events():
		start, ok := ev.(Start)
		if !ok {
			t.Fatalf("first event = %T, want Start", ev)
		}
		if start.Connected {
			t.Skip("probe target unexpectedly reachable in this sandbox")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Start event")
	}

	o.Stop()
}

func TestIsCellularNameHeuristic(t *testing.T) {
	cases := map[string]bool{
		"eth0":    false,
		"wlan0":   false,
		"lo":      false,
		"rmnet0":  true,
		"wwan0":   true,
		"pdp_ip0": true,
		"Cellular1": true,
	}
	for name, want := range cases {
		if got := isCellularName(name); got != want {
			t.Errorf("isCellularName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestStopClosesEventsChannel(t *testing.T) {
	o := New("127.0.0.1:1", WithPollInterval(20*time.Millisecond))
	o.Start(context.Background())
	<-o.Events() // Start event
	o.Stop()

	if _, ok := <-o.Events(); ok {
		t.Error("expected Events() to be closed after Stop()")
	}
}
