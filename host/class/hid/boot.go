package hid

import (
	"errors"

	"github.com/ardnew/usbhost/host"
	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/pkg"
)

const (
	// Control endpoint plus one interrupt IN endpoint.
	bootEndpoints = 2

	epControl     = 0
	epInterruptIn = 1

	// pollInterval is the minimum time between two interrupt IN polls in
	// milliseconds.
	pollInterval = 10

	// reportBufSize bounds a single boot report read.
	reportBufSize = 16
)

// Boot is a class driver for HID devices speaking the boot protocol.
//
// A Boot instance binds to at most one device. It matches interfaces of
// class HID, subclass boot and the protocol given to NewBoot, switches the
// device to the boot protocol and polls its interrupt IN endpoint every
// 10 ms, handing each report to the registered ReportParser.
type Boot struct {
	HID

	protocol uint8

	epInfo    [bootEndpoints]host.EpInfo
	confNum   uint8
	numEP     uint8
	cfgParser *host.ConfigDescParser

	pollEnable bool
	nextPoll   uint32

	parser ReportParser
	buf    [reportBufSize]byte
}

// Ensure Boot implements the host driver interfaces.
var (
	_ host.DeviceConfig   = (*Boot)(nil)
	_ host.ConfigXtracter = (*Boot)(nil)
)

// NewBoot returns a boot protocol driver for ProtocolKeyboard or
// ProtocolMouse devices. Register it with h.RegisterDeviceClass.
func NewBoot(h *host.Host, protocol uint8) *Boot {
	b := &Boot{
		HID:      HID{host: h},
		protocol: protocol,
	}
	b.cfgParser = host.NewConfigDescParser(b, host.InterfaceFilter{
		Class:    ClassHID,
		SubClass: SubclassBoot,
		Protocol: protocol,
		Mask:     host.CompareAll,
	})
	b.initEpInfo()
	return b
}

func (b *Boot) initEpInfo() {
	for i := range b.epInfo {
		b.epInfo[i] = host.EpInfo{NakPower: host.NakNoWait}
	}
	b.epInfo[epControl].MaxPktSize = 8
	b.epInfo[epControl].NakPower = host.NakMax
	b.numEP = 1
}

// Protocol returns the boot protocol the driver matches.
func (b *Boot) Protocol() uint8 {
	return b.protocol
}

// SetReportParser registers the parser for report id. Boot devices use a
// single report, so only id 0 is accepted.
func (b *Boot) SetReportParser(id int, p ReportParser) bool {
	if id != 0 {
		return false
	}
	b.parser = p
	return true
}

// ReportParser returns the parser registered for report id.
func (b *Boot) ReportParser(id int) ReportParser {
	if id != 0 {
		return nil
	}
	return b.parser
}

// IsReady reports whether a device is bound and being polled.
func (b *Boot) IsReady() bool {
	return b.pollEnable
}

// Init implements host.DeviceConfig.
func (b *Boot) Init(parent host.Address, port uint8, lowSpeed bool) (err error) {
	if b.addr != 0 {
		return pkg.ErrClassInstanceInUse
	}

	addressed := false
	defer func() {
		if err == nil {
			return
		}
		pkg.LogDebug(pkg.ComponentHID, "init failed",
			"protocol", b.protocol,
			"error", err)
		if addressed && errors.Is(err, pkg.ErrDeviceNotSupported) {
			// Return the device to the default address so the next driver
			// can enumerate it.
			if rerr := b.host.SetAddr(b.addr, 0, 0); rerr != nil {
				pkg.LogDebug(pkg.ComponentHID, "address handback failed", "error", rerr)
			}
		}
		b.Release()
	}()

	pool := b.host.AddressPool()

	var dd [host.DeviceDescriptorSize]byte
	if err = b.readPseudoDevDescr(pool, lowSpeed, dd[:8]); err != nil {
		return err
	}

	if b.addr, err = pool.Alloc(parent, false, port); err != nil {
		return err
	}

	b.epInfo[epControl].MaxPktSize = uint16(dd[7])

	if err = b.host.SetAddr(0, 0, b.addr); err != nil {
		return err
	}
	addressed = true

	p := pool.Device(b.addr)
	if p == nil {
		return pkg.ErrAddressNotFound
	}
	p.LowSpeed = lowSpeed

	if err = b.host.SetEpInfoEntry(b.addr, b.epInfo[:1]); err != nil {
		return err
	}

	n := int(dd[0])
	if n > host.DeviceDescriptorSize {
		n = host.DeviceDescriptorSize
	}
	if n < host.DeviceDescriptorSize {
		return pkg.ErrDescriptorTooShort
	}
	if err = b.host.GetDevDescr(b.addr, 0, dd[:n]); err != nil {
		return err
	}

	var desc host.DeviceDescriptor
	host.ParseDeviceDescriptor(dd[:], &desc)
	pkg.LogDebug(pkg.ComponentHID, "device descriptor",
		"address", b.addr.String(),
		"vid", desc.VendorID,
		"pid", desc.ProductID,
		"configs", desc.NumConfigurations)

	for i := uint8(0); i < desc.NumConfigurations; i++ {
		b.cfgParser.Reset()
		if err = b.host.GetConfDescrParsed(b.addr, 0, i, b.cfgParser); err != nil {
			return err
		}
		if b.numEP > 1 {
			break
		}
	}

	if b.numEP < 2 {
		return pkg.ErrDeviceNotSupported
	}

	if err = b.host.SetEpInfoEntry(b.addr, b.epInfo[:]); err != nil {
		return err
	}
	if err = b.host.SetConf(b.addr, 0, b.confNum); err != nil {
		return err
	}
	if err = b.SetProtocol(b.iface, ProtocolBoot); err != nil {
		return err
	}
	if b.protocol == ProtocolMouse {
		if err = b.SetIdle(b.iface, 0, 0); err != nil {
			return err
		}
	}

	pkg.LogInfo(pkg.ComponentHID, "boot device configured",
		"address", b.addr.String(),
		"protocol", b.protocol,
		"iface", b.iface)

	b.pollEnable = true
	b.nextPoll = b.host.HAL().Millis()
	return nil
}

// readPseudoDevDescr reads the start of the device descriptor from the
// device at address 0, using the driver's control endpoint record.
func (b *Boot) readPseudoDevDescr(pool *host.AddressPool, lowSpeed bool, buf []byte) error {
	p := pool.Device(0)
	if p == nil {
		return pkg.ErrAddressNotFound
	}
	if p.EpInfo == nil {
		return pkg.ErrEpInfoNil
	}

	old := p.EpInfo
	p.EpInfo = b.epInfo[:1]
	p.LowSpeed = lowSpeed
	err := b.host.GetDevDescr(0, 0, buf)
	p.EpInfo = old
	return err
}

// EndpointXtract implements host.ConfigXtracter.
func (b *Boot) EndpointXtract(conf, iface, alt, proto uint8, ep *host.EndpointDescriptor) {
	// Only the first matching configuration is used.
	if b.numEP > 1 && conf != b.confNum {
		return
	}
	b.confNum = conf
	b.iface = iface

	if !ep.IsInterrupt() || !ep.IsIn() || b.numEP >= bootEndpoints {
		return
	}

	e := &b.epInfo[epInterruptIn]
	e.EpAddr = ep.EndpointAddress
	e.MaxPktSize = ep.MaxPacketSize
	e.Attribs = 0

	if err := b.host.AllocPipe(b.addr, e, hal.PipeInterrupt, hal.DirectionIn, pollInterval); err != nil {
		pkg.LogWarn(pkg.ComponentHID, "no pipe for interrupt endpoint",
			"endpoint", e.EpAddr,
			"error", err)
		return
	}
	b.numEP++
}

// Release implements host.DeviceConfig.
func (b *Boot) Release() error {
	for i := range b.epInfo {
		b.host.FreePipe(&b.epInfo[i])
	}
	b.host.AddressPool().FreeAddress(b.addr)

	b.addr = 0
	b.confNum = 0
	b.iface = 0
	b.pollEnable = false
	b.initEpInfo()
	return nil
}

// Poll implements host.DeviceConfig. It reads at most one report per
// poll interval.
func (b *Boot) Poll() error {
	if !b.pollEnable {
		return nil
	}

	now := b.host.HAL().Millis()
	if int32(now-b.nextPoll) < 0 {
		return nil
	}
	b.nextPoll = now + pollInterval

	e := &b.epInfo[epInterruptIn]
	n := int(e.MaxPktSize)
	if n > len(b.buf) || n == 0 {
		n = len(b.buf)
	}

	read, err := b.host.InTransfer(b.addr, e.EpAddr, b.buf[:n])
	if err != nil {
		return err
	}
	if read > 0 && b.parser != nil {
		b.parser.Parse(&b.HID, false, b.buf[:read])
	}
	return nil
}
