package sim

import (
	"bytes"

	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/pkg"
)

// Android Open Accessory vendor requests.
const (
	aoaGetProtocol = 51
	aoaSendString  = 52
	aoaStart       = 53
)

// Android accessory mode identifiers.
const (
	GoogleVendorID        = 0x18D1
	AccessoryProductID    = 0x2D00
	AccessoryADBProductID = 0x2D01
)

// Phone is a simulated Android device in its normal mode. It answers the
// accessory protocol requests and records the identification strings the
// host sends before switching.
type Phone struct {
	*Device

	protocol uint16
	strings  [6]string
	started  bool
}

// NewPhone returns a phone speaking accessory protocol version protocol.
// Version 0 means the phone does not support accessory mode.
func NewPhone(protocol uint16) *Phone {
	p := &Phone{protocol: protocol}
	p.Device = &Device{
		DeviceDescriptor: DeviceInfo{
			MaxPacketSize0: 64,
			VendorID:       0x04E8,
			ProductID:      0x6860,
			Manufacturer:   1,
			Product:        2,
		}.Bytes(),
		Configurations: [][]byte{
			NewConfig(1).
				Interface(0, 0, 0x06, 0x01, 0x01, 3).
				Endpoint(0x81, 0x02, 64, 0).
				Endpoint(0x02, 0x02, 64, 0).
				Endpoint(0x83, 0x03, 8, 6).
				Bytes(),
		},
		Strings: map[uint8]string{
			1: "SAMSUNG",
			2: "Phone",
		},
	}
	p.OnRequest = p.request
	return p
}

// Started reports whether the host asked the phone to enter accessory
// mode.
func (p *Phone) Started() bool {
	return p.started
}

// IdentityString returns the identification string received for index
// i (0 manufacturer through 5 serial).
func (p *Phone) IdentityString(i int) string {
	if i < 0 || i >= len(p.strings) {
		return ""
	}
	return p.strings[i]
}

func (p *Phone) request(s hal.SetupPacket, data []byte) ([]byte, bool) {
	if s.RequestType&0x60 != 0x40 {
		return nil, false
	}

	switch s.Request {
	case aoaGetProtocol:
		if p.protocol == 0 {
			return nil, false
		}
		return []byte{byte(p.protocol), byte(p.protocol >> 8)}, true

	case aoaSendString:
		if int(s.Index) >= len(p.strings) {
			return nil, false
		}
		if i := bytes.IndexByte(data, 0); i >= 0 {
			data = data[:i]
		}
		p.strings[s.Index] = string(data)
		return nil, true

	case aoaStart:
		p.started = true
		pkg.LogDebug(pkg.ComponentSim, "accessory mode requested")
		return nil, true
	}
	return nil, false
}

// Accessory is a simulated Android device in accessory mode. Its bulk
// endpoints (0x81 IN, 0x02 OUT by default) echo every OUT transfer back
// on IN.
type Accessory struct {
	*Device

	inEp, outEp uint8
	queue       [][]byte
	received    []byte
}

// NewAccessory returns a device in accessory mode. With adb set it also
// exposes the ADB interface.
func NewAccessory(adb bool) *Accessory {
	return newAccessory(0x81, 0x02, adb)
}

// NewAccessoryEndpoints returns a device in accessory mode whose bulk
// pair uses the endpoint addresses in and out. They may share a number.
func NewAccessoryEndpoints(in, out uint8) *Accessory {
	return newAccessory(in|0x80, out&0x0F, false)
}

func newAccessory(in, out uint8, adb bool) *Accessory {
	a := &Accessory{inEp: in & 0x0F, outEp: out & 0x0F}

	pid := uint16(AccessoryProductID)
	cfg := NewConfig(1).
		Interface(0, 0, 0xFF, 0xFF, 0x00, 2).
		Endpoint(in, 0x02, 64, 0).
		Endpoint(out, 0x02, 64, 0)
	if adb {
		pid = AccessoryADBProductID
		cfg.Interface(1, 0, 0xFF, 0x42, 0x01, 2).
			Endpoint(0x83, 0x02, 64, 0).
			Endpoint(0x04, 0x02, 64, 0)
	}

	a.Device = &Device{
		DeviceDescriptor: DeviceInfo{
			MaxPacketSize0: 64,
			VendorID:       GoogleVendorID,
			ProductID:      pid,
			Manufacturer:   1,
			Product:        2,
		}.Bytes(),
		Configurations: [][]byte{cfg.Bytes()},
		Strings: map[uint8]string{
			1: "Google",
			2: "Accessory",
		},
	}
	a.OnIn = a.in
	a.OnOut = a.out
	a.OnReset = func() {
		a.queue = nil
	}
	return a
}

// Send queues data for the host to read.
func (a *Accessory) Send(data []byte) {
	a.queue = append(a.queue, append([]byte(nil), data...))
}

// Received returns everything the host wrote.
func (a *Accessory) Received() []byte {
	return a.received
}

func (a *Accessory) in(ep uint8, maxPkt int) ([]byte, Handshake) {
	if ep != a.inEp {
		return nil, STALL
	}
	if len(a.queue) == 0 {
		return nil, NAK
	}
	msg := a.queue[0]
	if len(msg) > maxPkt {
		a.queue[0] = msg[maxPkt:]
		return msg[:maxPkt], ACK
	}
	a.queue = a.queue[1:]
	return msg, ACK
}

func (a *Accessory) out(ep uint8, data []byte) Handshake {
	if ep != a.outEp {
		return STALL
	}
	a.received = append(a.received, data...)
	a.Send(data)
	return ACK
}
