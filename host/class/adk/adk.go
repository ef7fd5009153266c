package adk

import (
	"encoding/binary"
	"errors"

	"github.com/ardnew/usbhost/host"
	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/pkg"
)

// slowDeviceDelay is the pause before the single retry of a failed
// request when SlowDeviceRetry is enabled.
const slowDeviceDelay = 100

// Identity holds the strings an accessory announces to the phone before
// asking it to switch into accessory mode.
type Identity struct {
	Manufacturer string
	Model        string
	Description  string
	Version      string
	URI          string
	Serial       string
}

func (id *Identity) strings() [6]string {
	return [6]string{
		StringManufacturer: id.Manufacturer,
		StringModel:        id.Model,
		StringDescription:  id.Description,
		StringVersion:      id.Version,
		StringURI:          id.URI,
		StringSerial:       id.Serial,
	}
}

// ADK is a class driver for Android devices speaking the open accessory
// protocol.
//
// A device that already enumerates with the accessory VID/PID is bound
// and its bulk endpoints become available through Read and Write. Any
// other device is probed for the accessory protocol; if it answers, the
// identity strings are sent and the device is asked to restart in
// accessory mode. Init then returns pkg.ErrAccessorySwitch and the device
// is expected to detach and come back as an accessory.
type ADK struct {
	host *host.Host
	id   Identity

	addr    host.Address
	epInfo  [numEndpoint]host.EpInfo
	confNum uint8
	numEP   uint8

	cfgParser *host.ConfigDescParser

	protocol  uint16
	ready     bool
	slowRetry bool
}

// Ensure ADK implements the host driver interfaces.
var (
	_ host.DeviceConfig   = (*ADK)(nil)
	_ host.ConfigXtracter = (*ADK)(nil)
)

// New returns an accessory driver announcing id. Register it with
// h.RegisterDeviceClass.
func New(h *host.Host, id Identity) *ADK {
	a := &ADK{
		host: h,
		id:   id,
	}
	a.cfgParser = host.NewConfigDescParser(a, host.InterfaceFilter{Mask: host.CompareNone})
	a.initEpInfo()
	return a
}

func (a *ADK) initEpInfo() {
	a.epInfo = [numEndpoint]host.EpInfo{
		epControl: {MaxPktSize: 8, NakPower: host.NakMax},
		epDataIn:  {NakPower: host.NakNoWait},
		epDataOut: {NakPower: host.NakMax},
	}
	a.numEP = 1
}

// SetSlowDeviceRetry makes Init retry a failed protocol query or
// configuration read once after a short pause. Some phones need it.
func (a *ADK) SetSlowDeviceRetry(on bool) {
	a.slowRetry = on
}

// Identity returns the identification strings sent to the phone.
func (a *ADK) Identity() Identity {
	return a.id
}

// Address implements host.DeviceConfig.
func (a *ADK) Address() host.Address {
	return a.addr
}

// IsReady reports whether an accessory is bound and its bulk endpoints
// are usable.
func (a *ADK) IsReady() bool {
	return a.ready
}

// ProtocolVersion returns the accessory protocol version reported by the
// last phone probed, or 0.
func (a *ADK) ProtocolVersion() uint16 {
	return a.protocol
}

// Init implements host.DeviceConfig.
func (a *ADK) Init(parent host.Address, port uint8, lowSpeed bool) (err error) {
	if a.addr != 0 {
		return pkg.ErrClassInstanceInUse
	}

	addressed := false
	defer func() {
		if err == nil {
			return
		}
		if !errors.Is(err, pkg.ErrAccessorySwitch) {
			pkg.LogDebug(pkg.ComponentADK, "init failed", "error", err)
		}
		if addressed && errors.Is(err, pkg.ErrDeviceNotSupported) {
			if rerr := a.host.SetAddr(a.addr, 0, 0); rerr != nil {
				pkg.LogDebug(pkg.ComponentADK, "address handback failed", "error", rerr)
			}
		}
		a.Release()
	}()

	pool := a.host.AddressPool()

	var dd [host.DeviceDescriptorSize]byte
	if err = a.readDevDescr(pool, lowSpeed, dd[:]); err != nil {
		return err
	}
	var desc host.DeviceDescriptor
	if !host.ParseDeviceDescriptor(dd[:], &desc) {
		return pkg.ErrDescriptorTooShort
	}

	if a.addr, err = pool.Alloc(parent, false, port); err != nil {
		return err
	}
	a.epInfo[epControl].MaxPktSize = uint16(desc.MaxPacketSize0)

	if err = a.host.SetAddr(0, 0, a.addr); err != nil {
		return err
	}
	addressed = true

	p := pool.Device(a.addr)
	if p == nil {
		return pkg.ErrAddressNotFound
	}
	p.LowSpeed = lowSpeed

	if err = a.host.SetEpInfoEntry(a.addr, a.epInfo[:1]); err != nil {
		return err
	}

	if isAccessory(&desc) {
		if err = a.bindAccessory(&desc); err != nil {
			return err
		}
		if !a.ready {
			return pkg.ErrDeviceNotSupported
		}
		return nil
	}

	return a.switchToAccessory()
}

func isAccessory(d *host.DeviceDescriptor) bool {
	return d.VendorID == VendorID &&
		(d.ProductID == ProductID || d.ProductID == ProductIDADB)
}

// readDevDescr reads the device descriptor from address 0 using the
// driver's control endpoint record.
func (a *ADK) readDevDescr(pool *host.AddressPool, lowSpeed bool, buf []byte) error {
	p := pool.Device(0)
	if p == nil {
		return pkg.ErrAddressNotFound
	}
	if p.EpInfo == nil {
		return pkg.ErrEpInfoNil
	}

	old := p.EpInfo
	p.EpInfo = a.epInfo[:1]
	p.LowSpeed = lowSpeed
	err := a.host.GetDevDescr(0, 0, buf)
	p.EpInfo = old
	return err
}

// bindAccessory looks for the bulk endpoint pair of a device already in
// accessory mode. ready is left false when the pair is missing; such a
// device is not probed again.
func (a *ADK) bindAccessory(desc *host.DeviceDescriptor) error {
	for i := uint8(0); i < desc.NumConfigurations; i++ {
		a.host.HAL().Delay(1)
		err := a.retry(func() error {
			a.cfgParser.Reset()
			return a.host.GetConfDescrParsed(a.addr, 0, i, a.cfgParser)
		})
		if err != nil {
			return err
		}
		if a.numEP == numEndpoint {
			break
		}
	}

	if a.numEP != numEndpoint {
		pkg.LogWarn(pkg.ComponentADK, "accessory without bulk endpoints",
			"address", a.addr.String(),
			"endpoints", a.numEP)
		return nil
	}

	if err := a.host.SetEpInfoEntry(a.addr, a.epInfo[:]); err != nil {
		return err
	}
	if err := a.host.SetConf(a.addr, 0, a.confNum); err != nil {
		return err
	}

	pkg.LogInfo(pkg.ComponentADK, "accessory configured",
		"address", a.addr.String(),
		"pid", desc.ProductID,
		"in", a.epInfo[epDataIn].EpAddr,
		"out", a.epInfo[epDataOut].EpAddr)

	a.ready = true
	return nil
}

// switchToAccessory probes the accessory protocol, announces the identity
// and asks the phone to restart in accessory mode.
func (a *ADK) switchToAccessory() error {
	a.host.HAL().Delay(1)

	var proto uint16
	err := a.retry(func() error {
		var e error
		proto, e = a.GetProto()
		return e
	})
	if err != nil || proto == 0 {
		pkg.LogDebug(pkg.ComponentADK, "no accessory protocol",
			"address", a.addr.String(),
			"error", err)
		return pkg.ErrDeviceNotSupported
	}
	a.protocol = proto

	strs := a.id.strings()
	for i, s := range strs {
		if err := a.SendStr(uint8(i), s); err != nil {
			return err
		}
	}

	if err := a.SwitchAcc(); err != nil {
		return err
	}

	pkg.LogInfo(pkg.ComponentADK, "accessory mode requested",
		"address", a.addr.String(),
		"protocol", proto)
	return pkg.ErrAccessorySwitch
}

func (a *ADK) retry(fn func() error) error {
	err := fn()
	if err != nil && a.slowRetry {
		pkg.LogDebug(pkg.ComponentADK, "retrying", "error", err)
		a.host.HAL().Delay(slowDeviceDelay)
		err = fn()
	}
	return err
}

// GetProto returns the accessory protocol version of the device.
func (a *ADK) GetProto() (uint16, error) {
	var b [2]byte
	err := a.host.CtrlReq(a.addr, 0, reqADKGet, RequestGetProtocol,
		0x00, 0x00, 0x0000, uint16(len(b)), b[:], nil)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

// SendStr sends identification string index. The string is NUL
// terminated on the wire.
func (a *ADK) SendStr(index uint8, s string) error {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return a.host.CtrlReq(a.addr, 0, reqADKSend, RequestSendString,
		0x00, 0x00, uint16(index), uint16(len(buf)), buf, nil)
}

// SwitchAcc asks the device to restart in accessory mode.
func (a *ADK) SwitchAcc() error {
	return a.host.CtrlReq(a.addr, 0, reqADKSend, RequestStart,
		0x00, 0x00, 0x0000, 0x0000, nil, nil)
}

// EndpointXtract implements host.ConfigXtracter. The first bulk IN and
// bulk OUT endpoints are bound.
func (a *ADK) EndpointXtract(conf, iface, alt, proto uint8, ep *host.EndpointDescriptor) {
	if a.numEP == numEndpoint || !ep.IsBulk() {
		return
	}

	index, dir := epDataOut, hal.DirectionOut
	if ep.IsIn() {
		index, dir = epDataIn, hal.DirectionIn
	}
	e := &a.epInfo[index]
	if e.Pipe != 0 {
		return
	}

	a.confNum = conf
	e.EpAddr = ep.EndpointAddress
	e.MaxPktSize = ep.MaxPacketSize

	if err := a.host.AllocPipe(a.addr, e, hal.PipeBulk, dir, 0); err != nil {
		pkg.LogWarn(pkg.ComponentADK, "no pipe for bulk endpoint",
			"endpoint", e.EpAddr,
			"error", err)
		return
	}
	a.numEP++
}

// Release implements host.DeviceConfig.
func (a *ADK) Release() error {
	for i := range a.epInfo {
		a.host.FreePipe(&a.epInfo[i])
	}
	a.host.AddressPool().FreeAddress(a.addr)

	a.addr = 0
	a.confNum = 0
	a.ready = false
	a.initEpInfo()
	return nil
}

// Poll implements host.DeviceConfig. Transfers are driven by Read and
// Write.
func (a *ADK) Poll() error {
	return nil
}

// Read reads from the bulk IN endpoint into data. It returns pkg.ErrNAK
// when the accessory has nothing to send.
func (a *ADK) Read(data []byte) (int, error) {
	if !a.ready {
		return 0, pkg.ErrNoDevice
	}
	n, err := a.host.InTransfer(a.addr, a.epInfo[epDataIn].EpAddr, data)
	if n > 0 && errors.Is(err, pkg.ErrNAK) {
		err = nil
	}
	return n, err
}

// Write writes data to the bulk OUT endpoint.
func (a *ADK) Write(data []byte) error {
	if !a.ready {
		return pkg.ErrNoDevice
	}
	return a.host.OutTransfer(a.addr, a.epInfo[epDataOut].EpAddr, data)
}
