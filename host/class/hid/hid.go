package hid

import (
	"github.com/ardnew/usbhost/host"
	"github.com/ardnew/usbhost/pkg"
)

// ReportParser decodes input reports read from a HID device.
// isReportID is true when the first byte of buf is a report ID.
type ReportParser interface {
	Parse(d *HID, isReportID bool, buf []byte)
}

// HID issues the class-specific requests of a HID device bound to a
// host address. It is embedded by the class drivers.
type HID struct {
	host  *host.Host
	addr  host.Address
	iface uint8
}

// Host returns the host the device is attached to.
func (d *HID) Host() *host.Host {
	return d.host
}

// Address implements host.DeviceConfig.
func (d *HID) Address() host.Address {
	return d.addr
}

// Interface returns the number of the bound HID interface.
func (d *HID) Interface() uint8 {
	return d.iface
}

// GetReportDescr streams up to 128 bytes of the report descriptor through
// p.
func (d *HID) GetReportDescr(ep uint8, p host.ReadParser) error {
	var buf [64]byte
	return d.host.CtrlReq(d.addr, ep, reqHIDReport, host.RequestGetDescriptor,
		0x00, DescriptorTypeReport, 0x0000, 128, buf[:], p)
}

// SetReport sends data as report id of the given type to interface iface.
func (d *HID) SetReport(ep, iface, reportType, reportID uint8, data []byte) error {
	return d.host.CtrlReq(d.addr, ep, reqHIDOut, RequestSetReport,
		reportID, reportType, uint16(iface), uint16(len(data)), data, nil)
}

// GetReport reads report id of the given type from interface iface into
// data.
func (d *HID) GetReport(ep, iface, reportType, reportID uint8, data []byte) error {
	return d.host.CtrlReq(d.addr, ep, reqHIDIn, RequestGetReport,
		reportID, reportType, uint16(iface), uint16(len(data)), data, nil)
}

// GetIdle returns the idle rate of report id on interface iface in units
// of 4 ms.
func (d *HID) GetIdle(iface, reportID uint8) (uint8, error) {
	var b [1]byte
	err := d.host.CtrlReq(d.addr, 0, reqHIDIn, RequestGetIdle,
		reportID, 0, uint16(iface), 1, b[:], nil)
	return b[0], err
}

// SetIdle sets the idle rate of report id on interface iface. A duration
// of 0 reports only on change.
func (d *HID) SetIdle(iface, reportID, duration uint8) error {
	return d.host.CtrlReq(d.addr, 0, reqHIDOut, RequestSetIdle,
		reportID, duration, uint16(iface), 0x0000, nil, nil)
}

// GetProtocol returns the active protocol of interface iface.
func (d *HID) GetProtocol(iface uint8) (uint8, error) {
	var b [1]byte
	err := d.host.CtrlReq(d.addr, 0, reqHIDIn, RequestGetProtocol,
		0x00, 0x00, uint16(iface), 1, b[:], nil)
	return b[0], err
}

// SetProtocol selects ProtocolBoot or ProtocolReport on interface iface.
func (d *HID) SetProtocol(iface, protocol uint8) error {
	pkg.LogDebug(pkg.ComponentHID, "set protocol",
		"address", uint8(d.addr),
		"iface", iface,
		"protocol", protocol)
	return d.host.CtrlReq(d.addr, 0, reqHIDOut, RequestSetProtocol,
		protocol, 0x00, uint16(iface), 0x0000, nil, nil)
}
