package sim

import (
	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/pkg"
)

// Function is a simulated USB device as seen from the bus.
type Function interface {
	// Reset returns the function to its default state at address 0.
	Reset()

	// Address returns the address the function answers to.
	Address() uint8

	// Setup receives a SETUP packet on endpoint 0.
	Setup(s hal.SetupPacket) Handshake

	// In answers an IN token on ep with at most maxPkt bytes.
	In(ep uint8, maxPkt int) ([]byte, Handshake)

	// Out receives the data of an OUT token on ep. Status stages carry
	// no data.
	Out(ep uint8, data []byte) Handshake
}

// RequestFunc handles a control request the Device does not answer
// itself. For IN requests it returns the data stage; for OUT requests
// data holds the received data stage. Returning false stalls the request.
type RequestFunc func(s hal.SetupPacket, data []byte) ([]byte, bool)

// Standard request codes answered by Device.
const (
	reqGetStatus        = 0x00
	reqClearFeature     = 0x01
	reqSetFeature       = 0x03
	reqSetAddress       = 0x05
	reqGetDescriptor    = 0x06
	reqGetConfiguration = 0x08
	reqSetConfiguration = 0x09
	reqGetInterface     = 0x0A
	reqSetInterface     = 0x0B
)

// Descriptor types served by Device.
const (
	descDevice        = 0x01
	descConfiguration = 0x02
	descString        = 0x03
)

// Device implements the endpoint 0 behavior shared by all simulated
// functions: addressing, configuration and descriptor requests.
// Models plug their class behavior in through the On* hooks.
type Device struct {
	// DeviceDescriptor is returned for GET_DESCRIPTOR(DEVICE).
	DeviceDescriptor []byte

	// Configurations holds the descriptor set of each configuration index.
	Configurations [][]byte

	// Strings maps string indices to their text. Index 0 is answered with
	// US English as the only language.
	Strings map[uint8]string

	// OnRequest handles class and vendor requests.
	OnRequest RequestFunc

	// OnIn and OnOut serve data endpoints.
	OnIn  func(ep uint8, maxPkt int) ([]byte, Handshake)
	OnOut func(ep uint8, data []byte) Handshake

	// OnReset is called after a bus reset.
	OnReset func()

	addr    uint8
	config  uint8
	setup   hal.SetupPacket
	ctrlIn  []byte
	ctrlOut []byte

	requests []hal.SetupPacket
}

// Ensure Device implements Function.
var _ Function = (*Device)(nil)

// Reset implements Function.
func (d *Device) Reset() {
	d.addr = 0
	d.config = 0
	d.ctrlIn = nil
	d.ctrlOut = d.ctrlOut[:0]
	if d.OnReset != nil {
		d.OnReset()
	}
}

// Address implements Function.
func (d *Device) Address() uint8 {
	return d.addr
}

// Configuration returns the selected configuration value.
func (d *Device) Configuration() uint8 {
	return d.config
}

// Requests returns every SETUP packet received since the last reset of
// the log.
func (d *Device) Requests() []hal.SetupPacket {
	return d.requests
}

// ClearRequests empties the request log.
func (d *Device) ClearRequests() {
	d.requests = d.requests[:0]
}

// Setup implements Function.
func (d *Device) Setup(s hal.SetupPacket) Handshake {
	d.requests = append(d.requests, s)
	d.setup = s
	d.ctrlIn = nil
	d.ctrlOut = d.ctrlOut[:0]

	if !s.IsIn() {
		// OUT requests are executed at the status stage.
		return ACK
	}

	resp, ok := d.requestIn(s)
	if !ok {
		pkg.LogDebug(pkg.ComponentSim, "request stalled",
			"requestType", s.RequestType,
			"request", s.Request,
			"value", s.Value)
		return STALL
	}
	if len(resp) > int(s.Length) {
		resp = resp[:s.Length]
	}
	d.ctrlIn = resp
	return ACK
}

// In implements Function.
func (d *Device) In(ep uint8, maxPkt int) ([]byte, Handshake) {
	if ep != 0 {
		if d.OnIn == nil {
			return nil, STALL
		}
		return d.OnIn(ep, maxPkt)
	}

	if d.setup.IsIn() {
		// Packets never exceed the function's own endpoint 0 size.
		if len(d.DeviceDescriptor) > 7 && d.DeviceDescriptor[7] > 0 && int(d.DeviceDescriptor[7]) < maxPkt {
			maxPkt = int(d.DeviceDescriptor[7])
		}
		n := len(d.ctrlIn)
		if n > maxPkt {
			n = maxPkt
		}
		pkt := d.ctrlIn[:n]
		d.ctrlIn = d.ctrlIn[n:]
		return pkt, ACK
	}

	// Status stage of an OUT request.
	if !d.requestOut(d.setup, d.ctrlOut) {
		return nil, STALL
	}
	return nil, ACK
}

// Out implements Function.
func (d *Device) Out(ep uint8, data []byte) Handshake {
	if ep != 0 {
		if d.OnOut == nil {
			return STALL
		}
		return d.OnOut(ep, data)
	}

	if d.setup.IsIn() {
		// Status stage of an IN request.
		return ACK
	}
	d.ctrlOut = append(d.ctrlOut, data...)
	return ACK
}

func isStandard(s hal.SetupPacket) bool {
	return s.RequestType&0x60 == 0
}

func (d *Device) requestIn(s hal.SetupPacket) ([]byte, bool) {
	if isStandard(s) {
		switch s.Request {
		case reqGetDescriptor:
			if resp, ok := d.descriptor(uint8(s.Value>>8), uint8(s.Value)); ok {
				return resp, true
			}
		case reqGetConfiguration:
			return []byte{d.config}, true
		case reqGetStatus:
			return []byte{0, 0}, true
		case reqGetInterface:
			return []byte{0}, true
		}
	}
	if d.OnRequest != nil {
		return d.OnRequest(s, nil)
	}
	return nil, false
}

func (d *Device) requestOut(s hal.SetupPacket, data []byte) bool {
	if isStandard(s) {
		switch s.Request {
		case reqSetAddress:
			d.addr = uint8(s.Value) & 0x7F
			pkg.LogDebug(pkg.ComponentSim, "address set", "address", d.addr)
			return true
		case reqSetConfiguration:
			d.config = uint8(s.Value)
			return true
		case reqSetFeature, reqClearFeature, reqSetInterface:
			return true
		}
	}
	if d.OnRequest != nil {
		_, ok := d.OnRequest(s, data)
		return ok
	}
	return false
}

func (d *Device) descriptor(typ, index uint8) ([]byte, bool) {
	switch typ {
	case descDevice:
		if d.DeviceDescriptor == nil {
			return nil, false
		}
		return d.DeviceDescriptor, true

	case descConfiguration:
		if int(index) >= len(d.Configurations) {
			return nil, false
		}
		return d.Configurations[index], true

	case descString:
		if index == 0 {
			return []byte{4, descString, 0x09, 0x04}, true
		}
		str, ok := d.Strings[index]
		if !ok {
			return nil, false
		}
		return StringDescriptor(str), true
	}
	return nil, false
}
