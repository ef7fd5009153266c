package pkg

import "errors"

// USB transfer errors.
var (
	// ErrNAK indicates the NAK budget of an endpoint was exhausted.
	ErrNAK = errors.New("NAK limit reached")

	// ErrTimeout indicates a transfer did not complete before the
	// transfer timeout elapsed.
	ErrTimeout = errors.New("transfer timeout")

	// ErrNoDevice indicates VBUS was lost while a transfer was pending.
	ErrNoDevice = errors.New("device not present")

	// ErrInvalidMaxPacketSize indicates an endpoint record with a zero
	// maximum packet size.
	ErrInvalidMaxPacketSize = errors.New("invalid max packet size")

	// ErrNoPipe indicates the host controller has no free pipe left.
	ErrNoPipe = errors.New("no free host pipe")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")
)

// Device configuration errors.
var (
	// ErrDeviceNotSupported indicates a class driver does not handle the
	// attached device.
	ErrDeviceNotSupported = errors.New("device not supported")

	// ErrDeviceInitIncomplete indicates a class driver needs another
	// Init call to finish configuring the device.
	ErrDeviceInitIncomplete = errors.New("device initialization incomplete")

	// ErrUnableToRegister indicates every class driver slot is taken.
	ErrUnableToRegister = errors.New("unable to register device class")

	// ErrClassInstanceInUse indicates a class driver instance is already
	// bound to a device address.
	ErrClassInstanceInUse = errors.New("class instance already in use")

	// ErrAccessorySwitch indicates an Android device was asked to switch
	// to accessory mode and is expected to re-enumerate.
	ErrAccessorySwitch = errors.New("accessory mode switch requested")
)

// Address pool errors.
var (
	// ErrOutOfAddressSpace indicates no free slot is left in the pool.
	ErrOutOfAddressSpace = errors.New("out of address space in pool")

	// ErrHubAddressOverflow indicates the hub address counter is exhausted.
	ErrHubAddressOverflow = errors.New("hub address overflow")

	// ErrAddressNotFound indicates the address has no slot in the pool.
	ErrAddressNotFound = errors.New("address not found in pool")

	// ErrEpInfoNil indicates a device record has no endpoint table.
	ErrEpInfoNil = errors.New("endpoint info table is nil")

	// ErrEndpointNotFound indicates the endpoint is not in the device's
	// endpoint table.
	ErrEndpointNotFound = errors.New("endpoint not found in table")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Descriptor errors.
var (
	// ErrDescriptorTooShort indicates a descriptor whose bLength cannot
	// hold its own header.
	ErrDescriptorTooShort = errors.New("descriptor too short")
)

// Result codes reported by Code.
const (
	CodeSuccess              uint8 = 0x00
	CodeNAK                  uint8 = 0x01
	CodeDeviceNotSupported   uint8 = 0xD1
	CodeDeviceInitIncomplete uint8 = 0xD2
	CodeUnableToRegister     uint8 = 0xD3
	CodeOutOfAddressSpace    uint8 = 0xD4
	CodeHubAddressOverflow   uint8 = 0xD5
	CodeAddressNotFound      uint8 = 0xD6
	CodeEpInfoNil            uint8 = 0xD7
	CodeInvalidArgument      uint8 = 0xD8
	CodeClassInstanceInUse   uint8 = 0xD9
	CodeInvalidMaxPktSize    uint8 = 0xDA
	CodeEndpointNotFound     uint8 = 0xDB
	CodeUnknown              uint8 = 0xFE
	CodeTimeout              uint8 = 0xFF
)

var codes = []struct {
	err  error
	code uint8
}{
	{ErrNAK, CodeNAK},
	{ErrDeviceNotSupported, CodeDeviceNotSupported},
	{ErrDeviceInitIncomplete, CodeDeviceInitIncomplete},
	{ErrUnableToRegister, CodeUnableToRegister},
	{ErrOutOfAddressSpace, CodeOutOfAddressSpace},
	{ErrHubAddressOverflow, CodeHubAddressOverflow},
	{ErrAddressNotFound, CodeAddressNotFound},
	{ErrEpInfoNil, CodeEpInfoNil},
	{ErrInvalidParameter, CodeInvalidArgument},
	{ErrClassInstanceInUse, CodeClassInstanceInUse},
	{ErrInvalidMaxPacketSize, CodeInvalidMaxPktSize},
	{ErrEndpointNotFound, CodeEndpointNotFound},
	{ErrTimeout, CodeTimeout},
	{ErrNoDevice, CodeTimeout},
}

// Code returns the single-byte result code for err.
// Wrapped errors are unwrapped with [errors.Is]. Errors without a
// classic code map to CodeUnknown.
func Code(err error) uint8 {
	if err == nil {
		return CodeSuccess
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}
