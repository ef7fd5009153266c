package adk

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/ardnew/usbhost/host"
	"github.com/ardnew/usbhost/host/class/hid"
	"github.com/ardnew/usbhost/host/hal/sim"
	"github.com/ardnew/usbhost/pkg"
)

// =============================================================================
// Helpers
// =============================================================================

var testIdentity = Identity{
	Manufacturer: "usbhost",
	Model:        "loopback",
	Description:  "accessory test",
	Version:      "1.0",
	URI:          "https://example.com/usbhost",
	Serial:       "0001",
}

func runUntil(t *testing.T, h *host.Host, want host.TaskState) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		h.Task()
		if h.TaskState() == want {
			return
		}
		if h.TaskState() == host.StateError {
			t.Fatalf("host error: %v", h.LastError())
		}
	}
	t.Fatalf("state = %v, want %v", h.TaskState(), want)
}

func newHost(t *testing.T) (*sim.Controller, *host.Host, *ADK) {
	t.Helper()
	ctrl := sim.NewController()
	cfg := host.DefaultConfig()
	cfg.TransferTimeout = 50 * time.Millisecond
	h := host.NewWithConfig(ctrl, cfg)
	drv := New(h, testIdentity)
	if err := h.RegisterDeviceClass(drv); err != nil {
		t.Fatalf("RegisterDeviceClass() error = %v", err)
	}
	return ctrl, h, drv
}

func countRequests(d *sim.Device, req uint8) int {
	n := 0
	for _, s := range d.Requests() {
		if s.RequestType&0x60 == 0x40 && s.Request == req {
			n++
		}
	}
	return n
}

// =============================================================================
// Mode Switch Tests
// =============================================================================

func TestADK_SwitchToAccessory(t *testing.T) {
	ctrl, h, drv := newHost(t)
	phone := sim.NewPhone(2)

	ctrl.Attach(phone, false)
	runUntil(t, h, host.StateError)

	if err := h.LastError(); !errors.Is(err, pkg.ErrAccessorySwitch) {
		t.Fatalf("LastError() = %v, want ErrAccessorySwitch", err)
	}
	if !phone.Started() {
		t.Error("phone was not asked to start accessory mode")
	}
	if got := drv.ProtocolVersion(); got != 2 {
		t.Errorf("ProtocolVersion() = %d, want 2", got)
	}
	if drv.IsReady() || drv.Address() != 0 {
		t.Errorf("driver still bound after switch: ready=%t addr=%v", drv.IsReady(), drv.Address())
	}

	want := []string{
		testIdentity.Manufacturer,
		testIdentity.Model,
		testIdentity.Description,
		testIdentity.Version,
		testIdentity.URI,
		testIdentity.Serial,
	}
	for i, s := range want {
		if got := phone.IdentityString(i); got != s {
			t.Errorf("identity string %d = %q, want %q", i, got, s)
		}
	}

	// The phone comes back as an accessory.
	ctrl.Detach()
	h.Task()
	acc := sim.NewAccessory(false)
	ctrl.Attach(acc, false)
	runUntil(t, h, host.StateRunning)

	if !drv.IsReady() {
		t.Fatal("IsReady() = false after re-enumeration")
	}
	if got := acc.Configuration(); got != 1 {
		t.Errorf("accessory configuration = %d, want 1", got)
	}
}

func TestADK_NoAccessoryProtocol(t *testing.T) {
	ctrl, h, drv := newHost(t)
	phone := sim.NewPhone(0)

	ctrl.Attach(phone, false)
	runUntil(t, h, host.StateRunning)

	if phone.Started() {
		t.Error("accessory start sent to a phone without the protocol")
	}
	if drv.IsReady() || drv.Address() != 0 {
		t.Errorf("driver bound: ready=%t addr=%v", drv.IsReady(), drv.Address())
	}
	if got := countRequests(phone.Device, RequestGetProtocol); got != 1 {
		t.Errorf("GET_PROTOCOL sent %d times, want 1", got)
	}
	if countRequests(phone.Device, RequestSendString) != 0 {
		t.Error("identity strings sent to a phone without the protocol")
	}
	// Default addressing still moves it off address 0.
	if phone.Address() == 0 {
		t.Error("phone left at the default address")
	}
}

func TestADK_SlowDeviceRetry(t *testing.T) {
	ctrl, h, drv := newHost(t)
	drv.SetSlowDeviceRetry(true)
	phone := sim.NewPhone(0)

	ctrl.Attach(phone, false)
	runUntil(t, h, host.StateRunning)

	if got := countRequests(phone.Device, RequestGetProtocol); got != 2 {
		t.Errorf("GET_PROTOCOL sent %d times, want 2", got)
	}
}

// =============================================================================
// Accessory Mode Tests
// =============================================================================

func TestADK_AccessoryLoopback(t *testing.T) {
	tests := []struct {
		name string
		adb  bool
		data []byte
	}{
		{"short", false, []byte("ping")},
		{"multi packet", false, bytes.Repeat([]byte{0xA5}, 100)},
		{"adb interface", true, []byte("hello over adb")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, h, drv := newHost(t)
			acc := sim.NewAccessory(tt.adb)

			ctrl.Attach(acc, false)
			runUntil(t, h, host.StateRunning)

			if !drv.IsReady() {
				t.Fatal("IsReady() = false")
			}
			if countRequests(acc.Device, RequestSendString) != 0 {
				t.Errorf("identity strings sent to an accessory")
			}
			if got := ctrl.PipesInUse(); got != 2 {
				t.Errorf("PipesInUse() = %d, want 2", got)
			}

			if err := drv.Write(tt.data); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if !bytes.Equal(acc.Received(), tt.data) {
				t.Errorf("accessory received % x, want % x", acc.Received(), tt.data)
			}

			buf := make([]byte, 256)
			n, err := drv.Read(buf)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if !bytes.Equal(buf[:n], tt.data) {
				t.Errorf("Read() = % x, want % x", buf[:n], tt.data)
			}

			if n, err := drv.Read(buf); n != 0 || !errors.Is(err, pkg.ErrNAK) {
				t.Errorf("empty Read() = %d, %v, want 0, ErrNAK", n, err)
			}
		})
	}
}

func TestADK_SharedEndpointNumber(t *testing.T) {
	ctrl, h, drv := newHost(t)
	acc := sim.NewAccessoryEndpoints(0x81, 0x01)

	ctrl.Attach(acc, false)
	runUntil(t, h, host.StateRunning)

	if !drv.IsReady() {
		t.Fatal("IsReady() = false")
	}
	in := h.EpInfoEntry(drv.Address(), 0x81)
	out := h.EpInfoEntry(drv.Address(), 0x01)
	if in == nil || out == nil || in.Pipe == out.Pipe {
		t.Fatalf("EpInfoEntry() IN = %+v, OUT = %+v, want distinct pipes", in, out)
	}

	data := []byte("same number, two pipes")
	if err := drv.Write(data); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !bytes.Equal(acc.Received(), data) {
		t.Errorf("accessory received % x, want % x", acc.Received(), data)
	}

	buf := make([]byte, 64)
	n, err := drv.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(buf[:n], data) {
		t.Errorf("Read() = % x, want % x", buf[:n], data)
	}
}

func TestADK_AccessoryWithoutBulkPair(t *testing.T) {
	ctrl, h, drv := newHost(t)
	dev := &sim.Device{
		DeviceDescriptor: sim.DeviceInfo{
			MaxPacketSize0: 64,
			VendorID:       sim.GoogleVendorID,
			ProductID:      sim.AccessoryProductID,
		}.Bytes(),
		Configurations: [][]byte{
			sim.NewConfig(1).
				Interface(0, 0, 0xFF, 0xFF, 0x00, 1).
				Endpoint(0x81, 0x03, 8, 10).
				Bytes(),
		},
	}

	ctrl.Attach(dev, false)
	runUntil(t, h, host.StateRunning)

	if drv.IsReady() || drv.Address() != 0 {
		t.Errorf("driver bound: ready=%t addr=%v", drv.IsReady(), drv.Address())
	}
	if got := countRequests(dev, RequestGetProtocol); got != 0 {
		t.Errorf("GET_PROTOCOL sent %d times, want 0", got)
	}
	if got := ctrl.PipesInUse(); got != 0 {
		t.Errorf("PipesInUse() = %d, want 0", got)
	}
	if dev.Address() == 0 {
		t.Error("device left at the default address")
	}
}

func TestADK_NotReady(t *testing.T) {
	_, _, drv := newHost(t)

	if _, err := drv.Read(make([]byte, 8)); !errors.Is(err, pkg.ErrNoDevice) {
		t.Errorf("Read() error = %v, want ErrNoDevice", err)
	}
	if err := drv.Write([]byte{1}); !errors.Is(err, pkg.ErrNoDevice) {
		t.Errorf("Write() error = %v, want ErrNoDevice", err)
	}
	if err := drv.Poll(); err != nil {
		t.Errorf("Poll() error = %v", err)
	}
	if drv.Identity() != testIdentity {
		t.Errorf("Identity() = %+v, want %+v", drv.Identity(), testIdentity)
	}
}

func TestADK_DetachReleases(t *testing.T) {
	ctrl, h, drv := newHost(t)
	ctrl.Attach(sim.NewAccessory(false), false)
	runUntil(t, h, host.StateRunning)

	ctrl.Detach()
	h.Task()

	if drv.IsReady() {
		t.Error("IsReady() = true after detach")
	}
	if got := ctrl.PipesInUse(); got != 0 {
		t.Errorf("PipesInUse() = %d after detach, want 0", got)
	}
	if h.AddressPool().Device(host.RootFunctionAddress) != nil {
		t.Error("address still allocated after detach")
	}
}

func TestADK_AfterKeyboardDriver(t *testing.T) {
	ctrl := sim.NewController()
	h := host.New(ctrl)

	kbd := hid.NewBoot(h, hid.ProtocolKeyboard)
	drv := New(h, testIdentity)
	for _, d := range []host.DeviceConfig{kbd, drv} {
		if err := h.RegisterDeviceClass(d); err != nil {
			t.Fatalf("RegisterDeviceClass() error = %v", err)
		}
	}

	acc := sim.NewAccessory(false)
	ctrl.Attach(acc, false)
	runUntil(t, h, host.StateRunning)

	if kbd.IsReady() {
		t.Error("keyboard driver bound an accessory")
	}
	if !drv.IsReady() {
		t.Fatal("accessory driver not bound")
	}
	if got := acc.Address(); got != uint8(drv.Address()) {
		t.Errorf("accessory address = %d, want %d", got, drv.Address())
	}
}
