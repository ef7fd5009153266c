package sim

import (
	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/pkg"
)

// HID class requests.
const (
	hidGetReport   = 0x01
	hidGetIdle     = 0x02
	hidGetProtocol = 0x03
	hidSetReport   = 0x09
	hidSetIdle     = 0x0A
	hidSetProtocol = 0x0B

	descHIDReport = 0x22
)

// BootKeyboardReportDescriptor is the boot keyboard report descriptor.
var BootKeyboardReportDescriptor = []byte{
	0x05, 0x01, 0x09, 0x06, 0xA1, 0x01, 0x05, 0x07,
	0x19, 0xE0, 0x29, 0xE7, 0x15, 0x00, 0x25, 0x01,
	0x75, 0x01, 0x95, 0x08, 0x81, 0x02, 0x95, 0x01,
	0x75, 0x08, 0x81, 0x01, 0x95, 0x05, 0x75, 0x01,
	0x05, 0x08, 0x19, 0x01, 0x29, 0x05, 0x91, 0x02,
	0x95, 0x01, 0x75, 0x03, 0x91, 0x01, 0x95, 0x06,
	0x75, 0x08, 0x15, 0x00, 0x25, 0x65, 0x05, 0x07,
	0x19, 0x00, 0x29, 0x65, 0x81, 0x00, 0xC0,
}

// BootMouseReportDescriptor is the boot mouse report descriptor.
var BootMouseReportDescriptor = []byte{
	0x05, 0x01, 0x09, 0x02, 0xA1, 0x01, 0x09, 0x01,
	0xA1, 0x00, 0x05, 0x09, 0x19, 0x01, 0x29, 0x03,
	0x15, 0x00, 0x25, 0x01, 0x95, 0x03, 0x75, 0x01,
	0x81, 0x02, 0x95, 0x01, 0x75, 0x05, 0x81, 0x01,
	0x05, 0x01, 0x09, 0x30, 0x09, 0x31, 0x15, 0x81,
	0x25, 0x7F, 0x75, 0x08, 0x95, 0x02, 0x81, 0x06,
	0xC0, 0xC0,
}

// HIDDevice is a boot-protocol HID function with one interrupt IN
// endpoint (0x81). Input reports are queued with QueueReport and handed
// out one per IN token; an empty queue NAKs.
type HIDDevice struct {
	*Device

	reportDesc []byte
	reports    [][]byte
	last       []byte
	outputs    [][]byte

	protocol uint8
	idle     uint8
}

func newHIDDevice(productID uint16, protocol uint8, product string, reportDesc []byte) *HIDDevice {
	h := &HIDDevice{
		reportDesc: reportDesc,
		protocol:   1,
	}
	h.Device = &Device{
		DeviceDescriptor: DeviceInfo{
			VendorID:     0x16C0,
			ProductID:    productID,
			Manufacturer: 1,
			Product:      2,
		}.Bytes(),
		Configurations: [][]byte{
			NewConfig(1).
				Interface(0, 0, 0x03, 0x01, protocol, 1).
				HID(uint16(len(reportDesc))).
				Endpoint(0x81, 0x03, 8, 10).
				Bytes(),
		},
		Strings: map[uint8]string{
			1: "usbhost",
			2: product,
		},
	}
	h.OnRequest = h.request
	h.OnIn = h.in
	h.OnReset = func() {
		h.protocol = 1
		h.idle = 0
	}
	return h
}

// QueueReport queues an input report.
func (h *HIDDevice) QueueReport(r []byte) {
	h.reports = append(h.reports, append([]byte(nil), r...))
}

// Pending returns the number of queued input reports.
func (h *HIDDevice) Pending() int {
	return len(h.reports)
}

// Protocol returns the protocol selected by SET_PROTOCOL (0 boot,
// 1 report).
func (h *HIDDevice) Protocol() uint8 {
	return h.protocol
}

// Idle returns the idle rate selected by SET_IDLE.
func (h *HIDDevice) Idle() uint8 {
	return h.idle
}

// OutputReports returns the reports received through SET_REPORT.
func (h *HIDDevice) OutputReports() [][]byte {
	return h.outputs
}

func (h *HIDDevice) in(ep uint8, maxPkt int) ([]byte, Handshake) {
	if ep != 1 {
		return nil, STALL
	}
	if len(h.reports) == 0 {
		return nil, NAK
	}
	r := h.reports[0]
	h.reports = h.reports[1:]
	if len(r) > maxPkt {
		r = r[:maxPkt]
	}
	h.last = r
	return r, ACK
}

func (h *HIDDevice) request(s hal.SetupPacket, data []byte) ([]byte, bool) {
	if isStandard(s) {
		if s.Request == reqGetDescriptor && uint8(s.Value>>8) == descHIDReport {
			return h.reportDesc, true
		}
		return nil, false
	}

	switch s.Request {
	case hidSetProtocol:
		h.protocol = uint8(s.Value)
	case hidGetProtocol:
		return []byte{h.protocol}, true
	case hidSetIdle:
		h.idle = uint8(s.Value >> 8)
	case hidGetIdle:
		return []byte{h.idle}, true
	case hidSetReport:
		h.outputs = append(h.outputs, append([]byte(nil), data...))
		pkg.LogDebug(pkg.ComponentSim, "output report", "data", data)
	case hidGetReport:
		return h.last, true
	default:
		return nil, false
	}
	return nil, true
}

// Keyboard is a simulated boot keyboard.
type Keyboard struct {
	*HIDDevice
}

// NewKeyboard returns a boot keyboard.
func NewKeyboard() *Keyboard {
	return &Keyboard{newHIDDevice(0x27DB, 0x01, "Keyboard", BootKeyboardReportDescriptor)}
}

// Press queues a report with the given modifiers and key usages held.
// At most six keys are reported.
func (k *Keyboard) Press(mod byte, keys ...byte) {
	r := make([]byte, 8)
	r[0] = mod
	copy(r[2:], keys)
	k.QueueReport(r)
}

// ReleaseAll queues a report with no keys held.
func (k *Keyboard) ReleaseAll() {
	k.QueueReport(make([]byte, 8))
}

// LEDs returns the last LED state written by the host, or 0.
func (k *Keyboard) LEDs() byte {
	if n := len(k.outputs); n > 0 && len(k.outputs[n-1]) > 0 {
		return k.outputs[n-1][0]
	}
	return 0
}

// Type queues a press and a release report for each character of s that
// has a US layout key. It returns the number of characters queued.
func (k *Keyboard) Type(s string) int {
	n := 0
	for _, r := range s {
		mod, key, ok := usageOf(r)
		if !ok {
			continue
		}
		k.Press(mod, key)
		k.ReleaseAll()
		n++
	}
	return n
}

const modLeftShift = 0x02

var (
	usDigits  = "1234567890"
	usShifted = "!@#$%^&*()"
	usPunct   = "-=[]\\\x00;'`,./"
	usPunctSh = "_+{}|\x00:\"~<>?"
)

func usageOf(r rune) (mod, key byte, ok bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return 0, 0x04 + byte(r-'a'), true
	case r >= 'A' && r <= 'Z':
		return modLeftShift, 0x04 + byte(r-'A'), true
	case r == '\n' || r == '\r':
		return 0, 0x28, true
	case r == '\t':
		return 0, 0x2B, true
	case r == ' ':
		return 0, 0x2C, true
	}
	for i, c := range usDigits {
		if c == r {
			return 0, 0x1E + byte(i), true
		}
	}
	for i, c := range usShifted {
		if c == r {
			return modLeftShift, 0x1E + byte(i), true
		}
	}
	for i, c := range usPunct {
		if c == r && c != 0 {
			return 0, 0x2D + byte(i), true
		}
	}
	for i, c := range usPunctSh {
		if c == r && c != 0 {
			return modLeftShift, 0x2D + byte(i), true
		}
	}
	return 0, 0, false
}

// Mouse is a simulated boot mouse.
type Mouse struct {
	*HIDDevice
}

// NewMouse returns a boot mouse.
func NewMouse() *Mouse {
	return &Mouse{newHIDDevice(0x27DA, 0x02, "Mouse", BootMouseReportDescriptor)}
}

// Move queues a report with the given button state and movement.
func (m *Mouse) Move(buttons byte, dx, dy int8) {
	m.QueueReport([]byte{buttons, byte(dx), byte(dy)})
}
