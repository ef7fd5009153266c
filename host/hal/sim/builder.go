package sim

import (
	"encoding/binary"
	"unicode/utf16"
)

// DeviceInfo describes a device descriptor.
type DeviceInfo struct {
	USBVersion        uint16
	Class             uint8
	SubClass          uint8
	Protocol          uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16
	Manufacturer      uint8
	Product           uint8
	SerialNumber      uint8
	NumConfigurations uint8
}

// Bytes encodes the 18-byte device descriptor. Zero USBVersion,
// MaxPacketSize0 and NumConfigurations become 2.00, 8 and 1.
func (i DeviceInfo) Bytes() []byte {
	if i.USBVersion == 0 {
		i.USBVersion = 0x0200
	}
	if i.MaxPacketSize0 == 0 {
		i.MaxPacketSize0 = 8
	}
	if i.NumConfigurations == 0 {
		i.NumConfigurations = 1
	}

	b := make([]byte, 18)
	b[0] = 18
	b[1] = descDevice
	binary.LittleEndian.PutUint16(b[2:], i.USBVersion)
	b[4] = i.Class
	b[5] = i.SubClass
	b[6] = i.Protocol
	b[7] = i.MaxPacketSize0
	binary.LittleEndian.PutUint16(b[8:], i.VendorID)
	binary.LittleEndian.PutUint16(b[10:], i.ProductID)
	binary.LittleEndian.PutUint16(b[12:], i.DeviceVersion)
	b[14] = i.Manufacturer
	b[15] = i.Product
	b[16] = i.SerialNumber
	b[17] = i.NumConfigurations
	return b
}

// ConfigBuilder assembles a configuration descriptor set.
// wTotalLength and bNumInterfaces are filled in by Bytes.
type ConfigBuilder struct {
	buf    []byte
	ifaces uint8
}

// NewConfig starts a configuration with the given bConfigurationValue.
func NewConfig(value uint8) *ConfigBuilder {
	return &ConfigBuilder{
		buf: []byte{9, descConfiguration, 0, 0, 0, value, 0, 0x80, 50},
	}
}

// Interface appends an interface descriptor. Alternate setting 0 counts
// toward bNumInterfaces.
func (b *ConfigBuilder) Interface(num, alt, class, subClass, protocol, numEndpoints uint8) *ConfigBuilder {
	if alt == 0 {
		b.ifaces++
	}
	b.buf = append(b.buf, 9, 0x04, num, alt, numEndpoints, class, subClass, protocol, 0)
	return b
}

// Endpoint appends an endpoint descriptor.
func (b *ConfigBuilder) Endpoint(addr, attributes uint8, maxPacketSize uint16, interval uint8) *ConfigBuilder {
	b.buf = append(b.buf, 7, 0x05, addr, attributes,
		byte(maxPacketSize), byte(maxPacketSize>>8), interval)
	return b
}

// HID appends a HID class descriptor announcing one report descriptor of
// reportLen bytes.
func (b *ConfigBuilder) HID(reportLen uint16) *ConfigBuilder {
	b.buf = append(b.buf, 9, 0x21, 0x11, 0x01, 0, 1, 0x22,
		byte(reportLen), byte(reportLen>>8))
	return b
}

// Raw appends arbitrary descriptor bytes.
func (b *ConfigBuilder) Raw(desc ...byte) *ConfigBuilder {
	b.buf = append(b.buf, desc...)
	return b
}

// Bytes returns the finished descriptor set.
func (b *ConfigBuilder) Bytes() []byte {
	out := append([]byte(nil), b.buf...)
	binary.LittleEndian.PutUint16(out[2:], uint16(len(out)))
	out[4] = b.ifaces
	return out
}

// StringDescriptor encodes s as a UTF-16LE string descriptor, truncated
// to the 255-byte descriptor limit.
func StringDescriptor(s string) []byte {
	u := utf16.Encode([]rune(s))
	if len(u) > 126 {
		u = u[:126]
	}
	b := make([]byte, 2+2*len(u))
	b[0] = byte(len(b))
	b[1] = descString
	for i, c := range u {
		binary.LittleEndian.PutUint16(b[2+2*i:], c)
	}
	return b
}
