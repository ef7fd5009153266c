package adk

// Accessory mode USB identifiers.
const (
	VendorID     = 0x18D1 // Google
	ProductID    = 0x2D00 // Accessory
	ProductIDADB = 0x2D01 // Accessory + ADB
)

// Accessory protocol vendor requests.
const (
	RequestGetProtocol = 51
	RequestSendString  = 52
	RequestStart       = 53
)

// bmRequestType values of accessory requests.
const (
	reqADKGet  = 0xC0 // Vendor, device, device to host
	reqADKSend = 0x40 // Vendor, device, host to device
)

// Identification string indices (wIndex of RequestSendString).
const (
	StringManufacturer = 0
	StringModel        = 1
	StringDescription  = 2
	StringVersion      = 3
	StringURI          = 4
	StringSerial       = 5
)

// Endpoint table slots.
const (
	epControl   = 0
	epDataIn    = 1
	epDataOut   = 2
	numEndpoint = 3
)
