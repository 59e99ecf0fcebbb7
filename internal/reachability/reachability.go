// Package reachability implements the C9 reachability observer (spec.md
// §4.7): a standalone goroutine that polls network interface state and a
// TCP reachability probe, emitting change events onto a channel. It has no
// dependency on internal/downloader or internal/uploader and nothing in the
// engine depends on it -- callers that want connectivity-aware pause/resume
// wire it in themselves.
//
// Grounded on the teacher's internal/resources.Manager polling-goroutine
// shape (ticker + context cancellation + a done channel), narrowed to
// network state instead of memory/CPU sampling.
package reachability

import (
	"context"
	"net"
	"strings"
	"time"
)

// Event is one of Start, UpdateStatus, or UpdateInterfaceType.
type Event interface{ isReachabilityEvent() }

// Start is emitted exactly once, synchronously with the first poll.
type Start struct {
	Connected bool
	Cellular  bool
}

func (Start) isReachabilityEvent() {}

// UpdateStatus is emitted whenever Connected changes from its last reported
// value.
type UpdateStatus struct {
	Connected bool
}

func (UpdateStatus) isReachabilityEvent() {}

// UpdateInterfaceType is emitted whenever Cellular changes from its last
// reported value.
type UpdateInterfaceType struct {
	Cellular bool
}

func (UpdateInterfaceType) isReachabilityEvent() {}

// cellularPrefixes are interface-name prefixes this package treats as
// cellular modems. There is no portable WiFi/cellular distinction available
// to a headless Go process -- this is a best-effort heuristic, not a
// platform API result.
var cellularPrefixes = []string{"pdp_ip", "rmnet", "wwan", "cellular"}

const defaultPollInterval = 2 * time.Second
const defaultDialTimeout = 3 * time.Second

// Observer polls connectivity and reports changes on Events(). It is
// single-shot: once Stop() is called, the instance cannot be restarted --
// construct a new Observer instead.
type Observer struct {
	probeHost    string
	pollInterval time.Duration
	dialer       net.Dialer

	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures an Observer at construction time.
type Option func(*Observer)

// WithPollInterval overrides the default 2s poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Observer) { o.pollInterval = d }
}

// New creates an Observer that probes probeHost (host:port, e.g.
// "example.com:443") on each poll. Start() must be called to begin polling.
func New(probeHost string, opts ...Option) *Observer {
	o := &Observer{
		probeHost:    probeHost,
		pollInterval: defaultPollInterval,
		dialer:       net.Dialer{Timeout: defaultDialTimeout},
		events:       make(chan Event, 8),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Events returns the read end of the observer's event channel. It is closed
// when Stop() completes its final poll.
func (o *Observer) Events() <-chan Event {
	return o.events
}

// Start begins polling in a background goroutine. Calling Start twice on the
// same Observer is a programming error; construct a new Observer per
// monitoring session instead.
func (o *Observer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	go o.run(ctx)
}

// Stop cancels polling and waits for the background goroutine to exit and
// close Events(). The Observer cannot be restarted afterward.
func (o *Observer) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	<-o.done
}

func (o *Observer) run(ctx context.Context) {
	defer close(o.done)
	defer close(o.events)

	connected, cellular := o.sample(ctx)
	select {
	case o.events <- Start{Connected: connected, Cellular: cellular}:
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			nowConnected, nowCellular := o.sample(ctx)
			if nowConnected != connected {
				connected = nowConnected
				select {
				case o.events <- UpdateStatus{Connected: connected}:
				case <-ctx.Done():
					return
				}
			}
			if nowCellular != cellular {
				cellular = nowCellular
				select {
				case o.events <- UpdateInterfaceType{Cellular: cellular}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// sample reports the current connected/cellular state: connected is true
// iff the TCP probe succeeds; cellular is true iff any up, non-loopback
// interface matches a cellular-modem name heuristic.
func (o *Observer) sample(ctx context.Context) (connected, cellular bool) {
	connected = o.probe(ctx)
	cellular = o.anyCellularInterfaceUp()
	return connected, cellular
}

func (o *Observer) probe(ctx context.Context) bool {
	dialCtx, cancel := context.WithTimeout(ctx, o.dialer.Timeout)
	defer cancel()
	conn, err := o.dialer.DialContext(dialCtx, "tcp", o.probeHost)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (o *Observer) anyCellularInterfaceUp() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if isCellularName(iface.Name) {
			return true
		}
	}
	return false
}

func isCellularName(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range cellularPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
