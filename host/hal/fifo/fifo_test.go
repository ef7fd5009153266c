package fifo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/usbhost/host"
	"github.com/ardnew/usbhost/host/class/hid"
	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/host/hal/sim"
)

// =============================================================================
// Helpers
// =============================================================================

// scripted answers every token with the same handshake.
type scripted struct {
	addr   uint8
	hs     sim.Handshake
	in     []byte
	outs   [][]byte
	setups []hal.SetupPacket
	resets int
}

func (s *scripted) Reset()         { s.resets++ }
func (s *scripted) Address() uint8 { return s.addr }

func (s *scripted) Setup(p hal.SetupPacket) sim.Handshake {
	s.setups = append(s.setups, p)
	return s.hs
}

func (s *scripted) In(ep uint8, maxPkt int) ([]byte, sim.Handshake) {
	n := len(s.in)
	if n > maxPkt {
		n = maxPkt
	}
	return s.in[:n], s.hs
}

func (s *scripted) Out(ep uint8, data []byte) sim.Handshake {
	s.outs = append(s.outs, append([]byte(nil), data...))
	return s.hs
}

type rig struct {
	ctrl *Controller
	srv  *Server
}

// newRig connects a Controller and a Server over in-memory pipes and runs
// Watch and Serve until the test ends.
func newRig(t *testing.T) *rig {
	t.Helper()

	hostBus, devBus := net.Pipe()
	hostEv, devEv := net.Pipe()

	r := &rig{
		ctrl: NewController(hostBus),
		srv:  NewServer(devBus, devEv),
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.ctrl.Watch(ctx, hostEv) })
	g.Go(func() error { return r.srv.Serve(ctx) })

	t.Cleanup(func() {
		cancel()
		for _, c := range []net.Conn{hostBus, devBus, hostEv, devEv} {
			c.Close()
		}
		_ = g.Wait()
	})
	return r
}

// waitVBUS polls until the controller reports want.
func waitVBUS(t *testing.T, c *Controller, want hal.VBUSState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.VBUSState() != want {
		if time.Now().After(deadline) {
			t.Fatalf("VBUSState() = %v, want %v", c.VBUSState(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

// runUntil calls Task until the host reaches want.
func runUntil(t *testing.T, h *host.Host, want host.TaskState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.TaskState() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want %v (last error %v)", h.TaskState(), want, h.LastError())
		}
		h.Task()
		time.Sleep(100 * time.Microsecond)
	}
}

// =============================================================================
// Framing Tests
// =============================================================================

func TestConn_Framing(t *testing.T) {
	var buf bytes.Buffer
	c := newConn(&buf)

	if err := c.write(msgToken, []byte{1, 2}, []byte{3}); err != nil {
		t.Fatalf("write() error = %v", err)
	}
	if got := buf.Bytes(); !bytes.Equal(got, []byte{msgToken, 3, 0, 1, 2, 3}) {
		t.Errorf("frame = % x", got)
	}

	typ, payload, err := c.read(0)
	if err != nil {
		t.Fatalf("read() error = %v", err)
	}
	if typ != msgToken || !bytes.Equal(payload, []byte{1, 2, 3}) {
		t.Errorf("read() = %#02x % x", typ, payload)
	}

	if err := c.write(msgAck, make([]byte, maxMessageSize)); !errors.Is(err, ErrProtocol) {
		t.Errorf("oversized write() error = %v, want ErrProtocol", err)
	}

	buf.Reset()
	buf.Write([]byte{msgAck, 0xFF, 0xFF})
	if _, _, err := c.read(0); !errors.Is(err, ErrProtocol) {
		t.Errorf("oversized read() error = %v, want ErrProtocol", err)
	}

	buf.Reset()
	buf.Write([]byte{msgAck, 4, 0, 1})
	if _, _, err := c.read(0); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated read() error = %v, want ErrUnexpectedEOF", err)
	}
}

// =============================================================================
// Controller Tests
// =============================================================================

func TestController_ConnectionSignals(t *testing.T) {
	r := newRig(t)

	if got := r.ctrl.VBUSState(); got != hal.VBUSDisconnected {
		t.Fatalf("initial VBUSState() = %v", got)
	}

	if err := r.srv.Attach(&scripted{}, true); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	waitVBUS(t, r.ctrl, hal.VBUSConnected)
	if !r.ctrl.LowSpeed() {
		t.Error("LowSpeed() = false after a low speed attach")
	}

	if err := r.srv.Detach(); err != nil {
		t.Fatalf("Detach() error = %v", err)
	}
	waitVBUS(t, r.ctrl, hal.VBUSDisconnected)

	if err := r.srv.Attach(&scripted{}, false); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	waitVBUS(t, r.ctrl, hal.VBUSConnected)
	if r.ctrl.LowSpeed() {
		t.Error("LowSpeed() = true after a full speed attach")
	}
}

func TestController_Handshakes(t *testing.T) {
	tests := []struct {
		name     string
		tok      hal.Token
		hs       sim.Handshake
		addr     uint8
		complete bool
		nak      bool
		rx       int
	}{
		{"in ack", hal.TokenIn, sim.ACK, 3, true, false, 8},
		{"in nak", hal.TokenIn, sim.NAK, 3, false, true, 0},
		{"in stall", hal.TokenIn, sim.STALL, 3, false, false, 0},
		{"out ack", hal.TokenOut, sim.ACK, 3, true, false, 0},
		{"other address", hal.TokenIn, sim.ACK, 4, false, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)
			fn := &scripted{addr: tt.addr, hs: tt.hs, in: []byte("0123456789")}
			if err := r.srv.Attach(fn, false); err != nil {
				t.Fatalf("Attach() error = %v", err)
			}
			waitVBUS(t, r.ctrl, hal.VBUSConnected)

			p := r.ctrl.PipeAlloc(3, 0x81, hal.PipeBulk, hal.DirectionIn, 8, 0, hal.Bank1)
			if p == 0 {
				t.Fatal("PipeAlloc() = 0")
			}
			r.ctrl.PipeWrite(p, []byte{0xAA, 0xBB})
			r.ctrl.PipeSend(p, tt.tok)

			if got := r.ctrl.IsTransferComplete(p, tt.tok); got != tt.complete {
				t.Errorf("IsTransferComplete() = %t, want %t", got, tt.complete)
			}
			if got := r.ctrl.IsNAKReceived(p); got != tt.nak {
				t.Errorf("IsNAKReceived() = %t, want %t", got, tt.nak)
			}
			if got := r.ctrl.ByteCount(p); got != tt.rx {
				t.Errorf("ByteCount() = %d, want %d", got, tt.rx)
			}

			if tt.rx > 0 {
				buf := make([]byte, 16)
				n := r.ctrl.PipeRead(p, buf)
				if string(buf[:n]) != "01234567" {
					t.Errorf("PipeRead() = %q", buf[:n])
				}
			}
			if tt.tok == hal.TokenOut && tt.complete {
				if len(fn.outs) != 1 || !bytes.Equal(fn.outs[0], []byte{0xAA, 0xBB}) {
					t.Errorf("function received %x", fn.outs)
				}
			}
		})
	}
}

func TestController_SetupAndReset(t *testing.T) {
	r := newRig(t)
	fn := &scripted{hs: sim.ACK}
	if err := r.srv.Attach(fn, false); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	waitVBUS(t, r.ctrl, hal.VBUSConnected)

	r.ctrl.BusReset()
	if !r.ctrl.IsResetSent() || fn.resets != 1 {
		t.Fatalf("reset: sent=%t resets=%d", r.ctrl.IsResetSent(), fn.resets)
	}
	r.ctrl.AckResetSent()

	if err := r.ctrl.Pipe0Alloc(0, 8); err != nil {
		t.Fatalf("Pipe0Alloc() error = %v", err)
	}
	setup := hal.SetupPacket{RequestType: 0x80, Request: 0x06, Value: 0x0100, Length: 18}
	var raw [hal.SetupPacketSize]byte
	setup.MarshalTo(raw[:])
	r.ctrl.PipeWrite(0, raw[:])
	r.ctrl.PipeSend(0, hal.TokenSetup)

	if !r.ctrl.IsTransferComplete(0, hal.TokenSetup) {
		t.Fatal("SETUP not acknowledged")
	}
	if len(fn.setups) != 1 || fn.setups[0] != setup {
		t.Errorf("function received %+v, want %+v", fn.setups, setup)
	}
}

func TestController_FrozenPipe(t *testing.T) {
	r := newRig(t)
	fn := &scripted{hs: sim.NAK}
	if err := r.srv.Attach(fn, false); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	waitVBUS(t, r.ctrl, hal.VBUSConnected)

	p := r.ctrl.PipeAlloc(0, 0x01, hal.PipeBulk, hal.DirectionOut, 8, 0, hal.Bank1)
	r.ctrl.PipeWrite(p, []byte{1})
	r.ctrl.PipeSend(p, hal.TokenOut)
	r.ctrl.FreezePipe(p)
	r.ctrl.AckNAKReceived(p)

	if len(fn.outs) != 1 {
		t.Errorf("function saw %d OUT tokens, want 1", len(fn.outs))
	}
}

func TestController_TransportLost(t *testing.T) {
	hostBus, devBus := net.Pipe()
	defer hostBus.Close()

	c := NewController(hostBus)
	c.signal(SigConnect)
	devBus.Close()

	if err := c.Pipe0Alloc(0, 8); err != nil {
		t.Fatalf("Pipe0Alloc() error = %v", err)
	}
	c.PipeSend(0, hal.TokenIn)

	if got := c.VBUSState(); got != hal.VBUSDisconnected {
		t.Errorf("VBUSState() = %v after transport loss, want disconnected", got)
	}
	if c.IsTransferComplete(0, hal.TokenIn) {
		t.Error("transfer completed without a device")
	}
}

func TestController_WatchEOF(t *testing.T) {
	c := NewController(&bytes.Buffer{})
	events := bytes.NewReader([]byte{SigConnectLow})

	if err := c.Watch(context.Background(), events); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if got := c.VBUSState(); got != hal.VBUSDisconnected {
		t.Errorf("VBUSState() = %v after EOF, want disconnected", got)
	}
	if !c.LowSpeed() {
		t.Error("LowSpeed() = false, want the last signaled speed")
	}
}

// =============================================================================
// Host Integration Tests
// =============================================================================

func TestHost_KeyboardOverBus(t *testing.T) {
	r := newRig(t)
	kbd := sim.NewKeyboard()

	h := host.New(r.ctrl)
	var typed []byte
	var parser *hid.KeyboardParser
	parser = hid.NewKeyboardParser(hid.KeyboardFuncs{
		KeyDown: func(mod, key uint8) {
			if c := parser.OemToASCII(mod, key); c != 0 {
				typed = append(typed, c)
			}
		},
	})
	drv := hid.NewBoot(h, hid.ProtocolKeyboard)
	drv.SetReportParser(0, parser)
	if err := h.RegisterDeviceClass(drv); err != nil {
		t.Fatalf("RegisterDeviceClass() error = %v", err)
	}

	if err := r.srv.Attach(kbd, false); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	runUntil(t, h, host.StateRunning)

	if !drv.IsReady() {
		t.Fatal("IsReady() = false")
	}
	r.srv.Do(func() {
		if got := kbd.Address(); got != uint8(host.RootFunctionAddress) {
			t.Errorf("keyboard address = %d, want %d", got, host.RootFunctionAddress)
		}
		kbd.Type("go")
	})

	deadline := time.Now().Add(5 * time.Second)
	for string(typed) != "go" && time.Now().Before(deadline) {
		h.Task()
		time.Sleep(100 * time.Microsecond)
	}
	if string(typed) != "go" {
		t.Errorf("typed = %q, want %q", typed, "go")
	}

	if err := r.srv.Detach(); err != nil {
		t.Fatalf("Detach() error = %v", err)
	}
	waitVBUS(t, r.ctrl, hal.VBUSDisconnected)
	runUntil(t, h, host.StateDetachedWaitForDevice)
	if drv.IsReady() {
		t.Error("IsReady() = true after detach")
	}
}
