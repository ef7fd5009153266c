package hid

// HID class codes.
const (
	ClassHID = 0x03 // Human Interface Device Class
)

// HID subclass codes.
const (
	SubclassNone = 0x00 // No subclass
	SubclassBoot = 0x01 // Boot Interface Subclass
)

// HID protocol codes (for boot interface).
const (
	ProtocolNone     = 0x00 // No protocol
	ProtocolKeyboard = 0x01 // Keyboard boot protocol
	ProtocolMouse    = 0x02 // Mouse boot protocol
)

// HID descriptor types.
const (
	DescriptorTypeHID      = 0x21 // HID descriptor
	DescriptorTypeReport   = 0x22 // Report descriptor
	DescriptorTypePhysical = 0x23 // Physical descriptor
)

// HID request codes.
const (
	RequestGetReport   = 0x01
	RequestGetIdle     = 0x02
	RequestGetProtocol = 0x03
	RequestSetReport   = 0x09
	RequestSetIdle     = 0x0A
	RequestSetProtocol = 0x0B
)

// bmRequestType values of HID requests.
const (
	reqHIDOut    = 0x21 // Class, interface, host to device
	reqHIDIn     = 0xA1 // Class, interface, device to host
	reqHIDReport = 0x81 // Standard, interface, device to host
)

// Report types (high byte of wValue in GET_REPORT/SET_REPORT).
const (
	ReportTypeInput   = 0x01
	ReportTypeOutput  = 0x02
	ReportTypeFeature = 0x03
)

// Protocol values for GET_PROTOCOL/SET_PROTOCOL.
const (
	ProtocolBoot   = 0x00 // Boot protocol
	ProtocolReport = 0x01 // Report protocol
)

// Keyboard modifier bits.
const (
	ModLeftCtrl   = 1 << 0
	ModLeftShift  = 1 << 1
	ModLeftAlt    = 1 << 2
	ModLeftGUI    = 1 << 3
	ModRightCtrl  = 1 << 4
	ModRightShift = 1 << 5
	ModRightAlt   = 1 << 6
	ModRightGUI   = 1 << 7
)

// Keyboard LED bits (for output report).
const (
	LEDNumLock    = 1 << 0
	LEDCapsLock   = 1 << 1
	LEDScrollLock = 1 << 2
	LEDCompose    = 1 << 3
	LEDKana       = 1 << 4
)

// Keyboard usages the boot parser interprets.
const (
	KeyNone          = 0x00
	KeyErrorRollOver = 0x01
	KeyA             = 0x04
	KeyZ             = 0x1D
	Key1             = 0x1E
	Key9             = 0x26
	Key0             = 0x27
	KeyEnter         = 0x28
	KeyEscape        = 0x29
	KeyBackspace     = 0x2A
	KeyTab           = 0x2B
	KeySpace         = 0x2C
	KeyMinus         = 0x2D
	KeySlash         = 0x38
	KeyCapsLock      = 0x39
	KeyScrollLock    = 0x47
	KeyNumLock       = 0x53
	KeyPadSlash      = 0x54
	KeyPadAsterisk   = 0x55
	KeyPadMinus      = 0x56
	KeyPadPlus       = 0x57
	KeyPadEnter      = 0x58
	KeyPad1          = 0x59
	KeyPad9          = 0x61
	KeyPad0          = 0x62
	KeyPadDot        = 0x63
)

// Mouse button bits.
const (
	MouseButtonLeft   = 1 << 0
	MouseButtonRight  = 1 << 1
	MouseButtonMiddle = 1 << 2
)
