/*
Copyright 2025 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package dhcpclient implements the DHCPv4 client of spec §4.10: a sender
// goroutine that retransmits the current outbound message on an
// increasing backoff, a receiver goroutine that matches incoming frames
// against the client's transaction-id and dispatches them to the FSM, and
// a set of one-shot timers that drive renewal, rebinding, and expiration.
// Grounded on the retrieved pyroute2/dhcp/client.py's AsyncDHCPClient,
// translated from asyncio tasks/queues to goroutines/channels.
package dhcpclient

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/netlinkgo/pkg/dhcp4"
	"github.com/google/netlinkgo/pkg/dhcp4/fsm"
	"github.com/google/netlinkgo/pkg/dhcp4/xid"
	"github.com/google/netlinkgo/pkg/dhcpclient/lease"
	"github.com/google/netlinkgo/pkg/rtnl"

	"golang.org/x/time/rate"
	"k8s.io/klog/v2"
)

// minRetransmitInterval floors the gap between any two sends made by
// sendLoop, independent of the configured Backoff (the shutdown RELEASE
// bypasses it), so a misconfigured or
// fast-converging schedule can't turn into a send-in-a-tight-loop.
const minRetransmitInterval = 200 * time.Millisecond

// transport is the subset of *pkg/rawsocket.Socket the client needs,
// narrowed so tests can substitute an in-memory pair of frame channels --
// the same duck-typing pattern pkg/netlinksock.Interface uses for its mock
// connection.
type transport interface {
	Send(frame []byte) error
	Recv(buf []byte) (int, error)
	HardwareAddr() []byte
	Close() error
}

// Config holds one client's tunables, grounded on
// pyroute2/dhcp/client.py's ClientConfig.
type Config struct {
	Interface            string
	Sink                 lease.Sink
	Hooks                []Hook
	RequestedParameters  []byte
	Timeouts             map[fsm.State]time.Duration
	Retransmission       func() Backoff
	NoRelease            bool
}

// DefaultConfig returns the tunables named in spec §4.10: a 10s REBOOTING
// watchdog, a 30s REQUESTING watchdog, and the 4s/32s/x2 retransmission
// schedule.
func DefaultConfig(iface string) Config {
	return Config{
		Interface: iface,
		Sink:      lease.JSONFileSink{},
		RequestedParameters: []byte{
			dhcp4.OptSubnetMask, dhcp4.OptRouter, dhcp4.OptNameServer,
			dhcp4.OptLeaseTime, dhcp4.OptRenewalTime, dhcp4.OptRebindingTime,
		},
		Timeouts: map[fsm.State]time.Duration{
			fsm.Rebooting:  10 * time.Second,
			fsm.Requesting: 30 * time.Second,
		},
		Retransmission: defaultRetransmission,
	}
}

// Client is one DHCPv4 client bound to one interface's raw socket.
type Client struct {
	cfg        Config
	sock       transport
	rtnlClient *rtnl.Client
	fsm        *fsm.Machine

	mu              sync.Mutex
	lease           *lease.Lease
	xidPrefix       uint32
	lastStateChange time.Time
	stateTimer      *time.Timer
	pendingSentAt   time.Time

	timers leaseTimers

	sendLimiter *rate.Limiter
	sendCh      chan *dhcp4.Message
	stop        chan struct{}
	wg          sync.WaitGroup
}

// New builds a Client. rtnlClient is used only by the default hooks
// (ConfigureAddress, ConfigureDefaultRoute); callers supplying their own
// hooks may pass nil.
func New(sock transport, rtnlClient *rtnl.Client, cfg Config) *Client {
	if cfg.Retransmission == nil {
		cfg.Retransmission = defaultRetransmission
	}
	return &Client{
		cfg:         cfg,
		sock:        sock,
		rtnlClient:  rtnlClient,
		fsm:         fsm.New(),
		sendLimiter: rate.NewLimiter(rate.Every(minRetransmitInterval), 1),
		sendCh:      make(chan *dhcp4.Message, 1),
		stop:        make(chan struct{}),
	}
}

func (c *Client) hwaddr() net.HardwareAddr { return net.HardwareAddr(c.sock.HardwareAddr()) }

func (c *Client) currentLease() *lease.Lease {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lease
}

// State reports the client's current FSM state.
func (c *Client) State() fsm.State { return c.fsm.State() }

// Lease reports the client's current lease, or nil if unbound.
func (c *Client) Lease() *lease.Lease { return c.currentLease() }

// Run loads any persisted lease, enters INIT or INIT_REBOOT, starts the
// sender and receiver goroutines, and bootstraps the first DISCOVER or
// REQUEST. It blocks until ctx is canceled, then runs the shutdown
// sequence (optional RELEASE, stopping the goroutines) before returning.
func (c *Client) Run(ctx context.Context) error {
	if c.cfg.Sink != nil {
		if l, err := c.cfg.Sink.Load(c.cfg.Interface); err != nil {
			klog.Errorf("dhcpclient: loading lease for %s: %v", c.cfg.Interface, err)
		} else if l != nil {
			c.mu.Lock()
			c.lease = l
			c.mu.Unlock()
		}
	}

	c.mu.Lock()
	c.xidPrefix = xid.NewPrefix()
	hasLease := c.lease != nil
	c.mu.Unlock()

	initial := fsm.Init
	if hasLease {
		initial = fsm.InitReboot
	}
	if err := c.fsm.SetState(initial); err != nil {
		return err
	}
	c.mu.Lock()
	c.lastStateChange = time.Now()
	c.mu.Unlock()

	c.wg.Add(2)
	go c.sendLoop()
	go c.recvLoop()

	c.bootstrap()

	<-ctx.Done()
	return c.shutdown()
}

// bootstrap sends the first DISCOVER (from INIT) or REQUEST (from
// INIT_REBOOT, reusing a loaded lease), per spec §4.9.
func (c *Client) bootstrap() {
	switch c.fsm.State() {
	case fsm.Init:
		msg := discoverMessage(c.hwaddr(), c.cfg.RequestedParameters)
		c.transition(fsm.Selecting, msg)
	case fsm.InitReboot:
		l := c.currentLease()
		msg := requestForLease(c.hwaddr(), c.cfg.RequestedParameters, l, fsm.Rebooting)
		c.transition(fsm.Rebooting, msg)
	}
}

// transition moves the FSM to to and queues msg as the new outbound
// message (nil stops retransmission), arming or clearing that state's
// watchdog timeout.
func (c *Client) transition(to fsm.State, msg *dhcp4.Message) error {
	if err := c.fsm.SetState(to); err != nil {
		klog.Errorf("dhcpclient: %v", err)
		return err
	}
	transitions.WithLabelValues(to.String()).Inc()
	c.mu.Lock()
	c.lastStateChange = time.Now()
	if timeout, ok := c.cfg.Timeouts[to]; ok {
		c.armStateWatchdogLocked(timeout)
	} else if c.stateTimer != nil {
		c.stateTimer.Stop()
		c.stateTimer = nil
	}
	c.mu.Unlock()

	select {
	case c.sendCh <- msg:
	case <-c.stop:
	}
	return nil
}

func (c *Client) armStateWatchdogLocked(d time.Duration) {
	if c.stateTimer != nil {
		c.stateTimer.Stop()
	}
	c.stateTimer = time.AfterFunc(d, c.reset)
}

// reset cancels the lease and its timers and starts over from INIT,
// called on a NAK, a lease expiration, or a per-state watchdog timeout.
func (c *Client) reset() {
	c.timers.cancel()
	c.mu.Lock()
	c.lease = nil
	c.xidPrefix = xid.NewPrefix()
	c.mu.Unlock()
	if err := c.transition(fsm.Init, nil); err != nil {
		return
	}
	c.bootstrap()
}

func secsField(d time.Duration) uint16 {
	s := int64(d / time.Second)
	if s < 0 {
		s = 0
	}
	if s > 0xFFFF {
		s = 0xFFFF
	}
	return uint16(s)
}

// sendLoop owns the single in-flight outbound message and retransmits it
// on cfg.Retransmission's schedule until a new message (or nil) arrives on
// sendCh, grounded on pyroute2/dhcp/client.py's _send_forever.
func (c *Client) sendLoop() {
	defer c.wg.Done()
	var current *dhcp4.Message
	var backoff Backoff
	var timer *time.Timer
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
		}
	}
	defer stopTimer()

	send := func() {
		c.sendLimiter.Wait(context.Background())

		c.mu.Lock()
		elapsed := time.Since(c.lastStateChange)
		state := c.fsm.State()
		l := c.lease
		prefix := c.xidPrefix
		c.mu.Unlock()

		current.Secs = secsField(elapsed)
		current.Xid = uint32(xid.ForState(prefix, state))
		frame := frameFor(c.hwaddr(), current, state, l)
		if err := c.sock.Send(frame.Marshal()); err != nil {
			klog.Errorf("dhcpclient: send on %s: %v", c.cfg.Interface, err)
		}
	}

	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C
		}
		select {
		case <-c.stop:
			return
		case msg, ok := <-c.sendCh:
			if !ok {
				return
			}
			current = msg
			stopTimer()
			if current == nil {
				backoff = nil
				continue
			}
			backoff = c.cfg.Retransmission()
			c.mu.Lock()
			c.pendingSentAt = time.Now()
			c.mu.Unlock()
			send()
			timer = time.NewTimer(backoff())
		case <-timerC:
			retransmits.WithLabelValues(current.Type().String()).Inc()
			send()
			timer = time.NewTimer(backoff())
		}
	}
}

// recvLoop reads frames off the raw socket, drops anything not addressed
// to the client's xid, and dispatches the rest to the FSM's handlers,
// grounded on pyroute2/dhcp/client.py's _recv_forever.
func (c *Client) recvLoop() {
	defer c.wg.Done()
	buf := make([]byte, 1500)
	for {
		select {
		case <-c.stop:
			return
		default:
		}
		n, err := c.sock.Recv(buf)
		if err != nil {
			select {
			case <-c.stop:
				return
			default:
			}
			klog.Errorf("dhcpclient: recv on %s: %v", c.cfg.Interface, err)
			continue
		}
		frame, err := dhcp4.ParseFrame(buf[:n])
		if err != nil {
			klog.V(2).Infof("dhcpclient: dropping unparseable frame on %s: %v", c.cfg.Interface, err)
			continue
		}
		if frame.DstPort != dhcp4.ClientPort || frame.Message == nil {
			continue
		}
		msg := frame.Message

		c.mu.Lock()
		prefix := c.xidPrefix
		c.mu.Unlock()
		if !xid.Xid(msg.Xid).Matches(prefix) {
			klog.V(2).Infof("dhcpclient: discarding reply on %s with foreign xid %#x", c.cfg.Interface, msg.Xid)
			continue
		}
		c.dispatch(frame, msg)
	}
}

func (c *Client) dispatch(frame *dhcp4.Frame, msg *dhcp4.Message) {
	switch msg.Type() {
	case dhcp4.Offer:
		c.handleOffer(msg)
	case dhcp4.Ack:
		c.handleAck(frame, msg)
	case dhcp4.Nak:
		c.handleNak()
	default:
		klog.V(2).Infof("dhcpclient: %s messages are not handled", msg.Type())
	}
}

func (c *Client) handleOffer(msg *dhcp4.Message) {
	if !c.fsm.Guard(fsm.Selecting) {
		klog.V(2).Infof("dhcpclient: dropping OFFER on %s, not in SELECTING", c.cfg.Interface)
		return
	}
	c.observeLatency(dhcp4.Offer)
	req := requestForOffer(c.hwaddr(), c.cfg.RequestedParameters, msg)
	c.transition(fsm.Requesting, req)
}

// observeLatency records the time since the in-flight request (DISCOVER or
// REQUEST) was first sent, labeled by the reply type that closed it.
func (c *Client) observeLatency(replyType dhcp4.MessageType) {
	c.mu.Lock()
	sentAt := c.pendingSentAt
	c.mu.Unlock()
	if sentAt.IsZero() {
		return
	}
	requestLatency.WithLabelValues(replyType.String()).Observe(time.Since(sentAt).Seconds())
}

func (c *Client) handleAck(frame *dhcp4.Frame, msg *dhcp4.Message) {
	if !c.fsm.Guard(fsm.Requesting, fsm.Rebooting, fsm.Renewing, fsm.Rebinding) {
		klog.V(2).Infof("dhcpclient: dropping ACK on %s, unexpected state", c.cfg.Interface)
		return
	}
	fromState := c.fsm.State()
	c.observeLatency(dhcp4.Ack)
	l := lease.New(c.cfg.Interface, frame.SrcMAC, msg, time.Now())
	c.setLease(l)
	if err := c.transition(fsm.Bound, nil); err != nil {
		return
	}

	var trigger Trigger
	switch fromState {
	case fsm.Requesting, fsm.Rebooting:
		trigger = Bound
	case fsm.Renewing:
		trigger = Renewed
	case fsm.Rebinding:
		trigger = Rebound
	default:
		return
	}
	leasesAcquired.WithLabelValues(trigger.String()).Inc()
	klog.Infof("dhcpclient: %s on %s got lease %s from %s", trigger, c.cfg.Interface, l.IP(), l.ServerID())
	runHooks(context.Background(), c.cfg.Hooks, l, trigger)
}

func (c *Client) handleNak() {
	if !c.fsm.Guard(fsm.Requesting, fsm.Rebooting, fsm.Renewing, fsm.Rebinding) {
		klog.V(2).Infof("dhcpclient: dropping NAK on %s, unexpected state", c.cfg.Interface)
		return
	}
	klog.Warningf("dhcpclient: got NAK on %s, resetting", c.cfg.Interface)
	c.reset()
}

func (c *Client) setLease(l *lease.Lease) {
	c.mu.Lock()
	c.lease = l
	c.mu.Unlock()
	c.timers.arm(l, c.renew, c.rebind, c.expire)
	if c.cfg.Sink != nil {
		if err := c.cfg.Sink.Save(l); err != nil {
			klog.Errorf("dhcpclient: saving lease for %s: %v", c.cfg.Interface, err)
		}
	}
}

func (c *Client) renew() {
	l := c.currentLease()
	if l == nil {
		return
	}
	msg := requestForLease(c.hwaddr(), c.cfg.RequestedParameters, l, fsm.Renewing)
	c.transition(fsm.Renewing, msg)
}

func (c *Client) rebind() {
	l := c.currentLease()
	if l == nil {
		return
	}
	msg := requestForLease(c.hwaddr(), c.cfg.RequestedParameters, l, fsm.Rebinding)
	c.transition(fsm.Rebinding, msg)
}

func (c *Client) expire() {
	l := c.currentLease()
	c.timers.cancel()
	if l != nil {
		runHooks(context.Background(), c.cfg.Hooks, l, Expired)
	}
	c.reset()
}

// shutdown sends a RELEASE (unless configured not to, or no lease is
// held), then stops the sender/receiver goroutines. It deliberately does
// not attempt to move the FSM to OFF: the literal transition table of
// spec §4.9 has no edges into OFF from any other state, so forcing one
// here would be exactly the "any other transition is a fault" case the
// FSM exists to catch. The Machine is discarded along with the Client
// once Run returns, so its last real state is simply left in place.
func (c *Client) shutdown() error {
	c.timers.cancel()
	c.mu.Lock()
	if c.stateTimer != nil {
		c.stateTimer.Stop()
		c.stateTimer = nil
	}
	l := c.lease
	c.mu.Unlock()

	if l != nil && !c.cfg.NoRelease {
		msg := releaseMessage(c.hwaddr(), l)
		frame := frameFor(c.hwaddr(), msg, fsm.Bound, l)
		if err := c.sock.Send(frame.Marshal()); err != nil {
			klog.Errorf("dhcpclient: sending RELEASE on %s: %v", c.cfg.Interface, err)
		}
	}

	close(c.stop)
	c.sock.Close()
	c.wg.Wait()
	return nil
}
