package host

import (
	"context"
	"errors"
	"time"

	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/pkg"
)

// DeviceConfig is implemented by class drivers.
//
// The host offers every newly attached device to the registered drivers in
// order through Init. A driver that does not recognize the device returns
// pkg.ErrDeviceNotSupported; a driver already bound to another device
// returns pkg.ErrClassInstanceInUse. Both pass the device on to the next
// driver. pkg.ErrDeviceInitIncomplete asks the host to retry the same
// driver on the next Task.
type DeviceConfig interface {
	Init(parent Address, port uint8, lowSpeed bool) error
	Release() error
	Poll() error
	Address() Address
}

// Host drives a single root port: attach detection, bus reset,
// enumeration and the polling of bound class drivers.
//
// Host is not safe for concurrent use. All methods, including those of the
// bound drivers, must be called from the goroutine calling Task.
type Host struct {
	hal hal.HostHAL
	cfg Config

	pool *AddressPool

	devConfig      [NumDevices]DeviceConfig
	devConfigIndex int

	state    TaskState
	lastErr  error
	delay    uint32
	lowSpeed bool

	// Scratch buffer for GetConfDescrParsed.
	ctrlBuf []byte
}

// New returns a host using the default configuration.
func New(h hal.HostHAL) *Host {
	return NewWithConfig(h, DefaultConfig())
}

// NewWithConfig returns a host using cfg. Zero fields of cfg take their
// default values.
func NewWithConfig(h hal.HostHAL, cfg Config) *Host {
	cfg = cfg.withDefaults()
	return &Host{
		hal:     h,
		cfg:     cfg,
		pool:    NewAddressPool(),
		state:   StateDetachedInitialize,
		ctrlBuf: make([]byte, cfg.ControlBufferSize),
	}
}

// HAL returns the controller the host drives.
func (h *Host) HAL() hal.HostHAL {
	return h.hal
}

// Config returns the active configuration.
func (h *Host) Config() Config {
	return h.cfg
}

// AddressPool returns the address pool.
func (h *Host) AddressPool() *AddressPool {
	return h.pool
}

// RegisterDeviceClass adds d to the drivers offered new devices.
func (h *Host) RegisterDeviceClass(d DeviceConfig) error {
	if d == nil {
		return pkg.ErrInvalidParameter
	}
	for i := range h.devConfig {
		if h.devConfig[i] == nil {
			h.devConfig[i] = d
			return nil
		}
	}
	return pkg.ErrUnableToRegister
}

// TaskState returns the current state.
func (h *Host) TaskState() TaskState {
	return h.state
}

// SetTaskState forces the state machine into s.
func (h *Host) SetTaskState(s TaskState) {
	h.state = s
}

// LastError returns the error that moved the host into StateError.
func (h *Host) LastError() error {
	return h.lastErr
}

// Task advances the state machine by one step and polls every driver.
// It never blocks longer than a single transfer.
func (h *Host) Task() {
	now := h.hal.Millis()

	switch h.hal.VBUSState() {
	case hal.VBUSError:
		if h.state != StateDetachedIllegal {
			pkg.LogWarn(pkg.ComponentHost, "vbus error")
		}
		h.state = StateDetachedIllegal

	case hal.VBUSDisconnected:
		if !h.state.IsDetached() {
			pkg.LogInfo(pkg.ComponentHost, "device detached")
			h.state = StateDetachedInitialize
		}

	case hal.VBUSConnected:
		if h.state.IsDetached() {
			h.lowSpeed = h.hal.LowSpeed()
			h.delay = now + millis(h.cfg.SettleDelay)
			h.state = StateAttachedSettle
			pkg.LogInfo(pkg.ComponentHost, "device attached", "lowSpeed", h.lowSpeed)
		}
	}

	for _, d := range h.devConfig {
		if d == nil {
			continue
		}
		if err := d.Poll(); err != nil && !errors.Is(err, pkg.ErrNAK) {
			pkg.LogDebug(pkg.ComponentHost, "poll failed",
				"address", uint8(d.Address()),
				"error", err)
		}
	}

	switch h.state {
	case StateDetachedInitialize:
		h.hal.Init()
		h.devConfigIndex = 0
		h.releaseAll()
		// Devices addressed without a driver hold their slot until here.
		h.pool.initAll()
		h.state = StateDetachedWaitForDevice

	case StateDetachedWaitForDevice, StateDetachedIllegal:

	case StateAttachedSettle:
		if !before(now, h.delay) {
			h.state = StateAttachedResetDevice
		}

	case StateAttachedResetDevice:
		pkg.LogDebug(pkg.ComponentHost, "bus reset")
		h.hal.BusReset()
		h.state = StateAttachedWaitResetComplete

	case StateAttachedWaitResetComplete:
		if h.hal.IsResetSent() {
			h.hal.AckResetSent()
			h.hal.EnableSOF()
			h.delay = h.hal.Millis() + millis(h.cfg.ResetRecovery)
			h.state = StateAttachedWaitSOF
		}

	case StateAttachedWaitSOF:
		if h.hal.IsSOF() && !before(h.hal.Millis(), h.delay) {
			h.state = StateConfiguring
		}

	case StateConfiguring:
		err := h.Configuring(0, 0, h.lowSpeed)
		switch {
		case err == nil:
			pkg.LogInfo(pkg.ComponentHost, "device configured")
			h.lastErr = nil
			h.state = StateRunning
		case errors.Is(err, pkg.ErrDeviceInitIncomplete):
		default:
			pkg.LogWarn(pkg.ComponentHost, "configuration failed",
				"error", err,
				"rcode", pkg.Code(err))
			h.lastErr = err
			h.state = StateError
		}

	case StateRunning, StateError:
	}
}

// Run calls Task until ctx is done, pausing interval between calls.
// An interval of zero runs Task back to back.
func (h *Host) Run(ctx context.Context, interval time.Duration) error {
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		h.Task()

		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}
	}
}

func (h *Host) releaseAll() {
	for _, d := range h.devConfig {
		if d == nil {
			continue
		}
		if err := d.Release(); err != nil {
			pkg.LogDebug(pkg.ComponentHost, "release failed", "error", err)
		}
	}
}

// Configuring offers the device at port of parent to the registered
// drivers, resuming at the driver that last asked for a retry.
//
// When no driver accepts the device it is given an address with
// DefaultAddressing so it stops answering at address 0.
func (h *Host) Configuring(parent Address, port uint8, lowSpeed bool) error {
	for ; h.devConfigIndex < NumDevices; h.devConfigIndex++ {
		d := h.devConfig[h.devConfigIndex]
		if d == nil {
			continue
		}

		err := d.Init(parent, port, lowSpeed)
		switch {
		case err == nil:
			pkg.LogDebug(pkg.ComponentHost, "driver bound",
				"index", h.devConfigIndex,
				"address", uint8(d.Address()))
			h.devConfigIndex = 0
			return nil

		case errors.Is(err, pkg.ErrDeviceNotSupported),
			errors.Is(err, pkg.ErrClassInstanceInUse):
			continue

		default:
			if !errors.Is(err, pkg.ErrDeviceInitIncomplete) {
				h.devConfigIndex = 0
			}
			return err
		}
	}

	h.devConfigIndex = 0
	pkg.LogInfo(pkg.ComponentHost, "no driver for device")
	return h.DefaultAddressing(parent, port, lowSpeed)
}

// DefaultAddressing assigns an address to a device no driver accepted.
func (h *Host) DefaultAddressing(parent Address, port uint8, lowSpeed bool) error {
	addr, err := h.pool.Alloc(parent, false, port)
	if err != nil {
		return err
	}

	if p := h.pool.Device(addr); p != nil {
		p.LowSpeed = lowSpeed
	}

	if err := h.SetAddr(0, 0, addr); err != nil {
		h.pool.FreeAddress(addr)
		return err
	}
	return nil
}

// ReleaseDevice releases the driver bound to addr.
func (h *Host) ReleaseDevice(addr Address) error {
	if addr == 0 {
		return nil
	}
	for _, d := range h.devConfig {
		if d != nil && d.Address() == addr {
			return d.Release()
		}
	}
	return nil
}
