package host

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/ardnew/usbhost/pkg"
)

// maxStringDescriptor is the largest possible string descriptor.
const maxStringDescriptor = 255

// GetDevDescr reads len(data) bytes of the device descriptor.
func (h *Host) GetDevDescr(addr Address, ep uint8, data []byte) error {
	return h.CtrlReq(addr, ep, ReqGetDescriptor, RequestGetDescriptor,
		0x00, DescriptorTypeDevice, 0x0000, uint16(len(data)), data, nil)
}

// GetConfDescr reads len(data) bytes of the descriptor set of configuration
// index conf.
func (h *Host) GetConfDescr(addr Address, ep uint8, conf uint8, data []byte) error {
	return h.CtrlReq(addr, ep, ReqGetDescriptor, RequestGetDescriptor,
		conf, DescriptorTypeConfiguration, 0x0000, uint16(len(data)), data, nil)
}

// GetConfDescrParsed streams the whole descriptor set of configuration
// index conf through p.
//
// The set is read twice: first its header for the total length, then the
// full set in chunks of Config.ControlBufferSize bytes.
func (h *Host) GetConfDescrParsed(addr Address, ep uint8, conf uint8, p ReadParser) error {
	var hdr [8]byte
	if err := h.GetConfDescr(addr, ep, conf, hdr[:]); err != nil {
		return err
	}

	total := binary.LittleEndian.Uint16(hdr[2:])
	pkg.LogDebug(pkg.ComponentHost, "configuration descriptor",
		"address", uint8(addr),
		"index", conf,
		"totalLength", total)

	h.hal.Delay(millis(h.cfg.ConfDescrDelay))

	return h.CtrlReq(addr, ep, ReqGetDescriptor, RequestGetDescriptor,
		conf, DescriptorTypeConfiguration, 0x0000, total, h.ctrlBuf, p)
}

// GetStrDescr reads len(data) bytes of string descriptor index in langID.
func (h *Host) GetStrDescr(addr Address, ep uint8, index uint8, langID uint16, data []byte) error {
	return h.CtrlReq(addr, ep, ReqGetDescriptor, RequestGetDescriptor,
		index, DescriptorTypeString, langID, uint16(len(data)), data, nil)
}

// GetString reads string descriptor index in langID and decodes it.
// Index 0 yields an empty string without touching the bus.
func (h *Host) GetString(addr Address, ep uint8, index uint8, langID uint16) (string, error) {
	if index == 0 {
		return "", nil
	}

	var buf [maxStringDescriptor]byte
	if err := h.GetStrDescr(addr, ep, index, langID, buf[:2]); err != nil {
		return "", err
	}
	n := int(buf[0])
	if n < 2 || buf[1] != DescriptorTypeString {
		return "", pkg.ErrDescriptorTooShort
	}
	if err := h.GetStrDescr(addr, ep, index, langID, buf[:n]); err != nil {
		return "", err
	}

	u := make([]uint16, (n-2)/2)
	for i := range u {
		u[i] = binary.LittleEndian.Uint16(buf[2+2*i:])
	}
	return string(utf16.Decode(u)), nil
}

// SetAddr moves the device answering at oldAddr to newAddr.
func (h *Host) SetAddr(oldAddr Address, ep uint8, newAddr Address) error {
	pkg.LogDebug(pkg.ComponentHost, "set address",
		"old", uint8(oldAddr),
		"new", newAddr.String())
	return h.CtrlReq(oldAddr, ep, ReqSet, RequestSetAddress,
		uint8(newAddr), 0x00, 0x0000, 0x0000, nil, nil)
}

// SetConf selects configuration value conf.
func (h *Host) SetConf(addr Address, ep uint8, conf uint8) error {
	return h.CtrlReq(addr, ep, ReqSet, RequestSetConfiguration,
		conf, 0x00, 0x0000, 0x0000, nil, nil)
}
