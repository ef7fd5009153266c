package hal

// Speed represents the USB connection speed.
type Speed uint8

// USB speed constants (USB 2.0 Specification).
const (
	SpeedUnknown Speed = iota // Not connected or unknown
	SpeedLow                  // Low Speed (1.5 Mbit/s)
	SpeedFull                 // Full Speed (12 Mbit/s)
	SpeedHigh                 // High Speed (480 Mbit/s)
)

// String returns a human-readable speed name.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "Low Speed"
	case SpeedFull:
		return "Full Speed"
	case SpeedHigh:
		return "High Speed"
	default:
		return "Unknown"
	}
}

// VBUSState reports the host port power/connection state.
type VBUSState uint8

// VBUS states.
const (
	VBUSDisconnected VBUSState = iota // No device attached
	VBUSConnected                     // Device attached, VBUS valid
	VBUSError                         // Over-current or illegal VBUS level
)

// String returns a human-readable VBUS state name.
func (s VBUSState) String() string {
	switch s {
	case VBUSDisconnected:
		return "disconnected"
	case VBUSConnected:
		return "connected"
	case VBUSError:
		return "error"
	default:
		return "unknown"
	}
}

// Token is the packet identifier a pipe issues on the bus.
type Token uint8

// Token constants. InHS and OutHS are the zero-length status stage
// handshakes of a control transfer.
const (
	TokenSetup Token = 0x10
	TokenIn    Token = 0x00
	TokenOut   Token = 0x20
	TokenInHS  Token = 0x80
	TokenOutHS Token = 0xA0
)

// String returns the token name.
func (t Token) String() string {
	switch t {
	case TokenSetup:
		return "SETUP"
	case TokenIn:
		return "IN"
	case TokenOut:
		return "OUT"
	case TokenInHS:
		return "IN-HS"
	case TokenOutHS:
		return "OUT-HS"
	default:
		return "UNKNOWN"
	}
}

// IsIn returns true for tokens that move data from device to host.
func (t Token) IsIn() bool {
	return t == TokenIn || t == TokenInHS
}

// PipeType is the transfer type a pipe is configured for.
type PipeType uint8

// Pipe type constants, encoded as in bmAttributes of an endpoint descriptor.
const (
	PipeControl     PipeType = 0
	PipeIsochronous PipeType = 1
	PipeBulk        PipeType = 2
	PipeInterrupt   PipeType = 3
)

// Direction is the data direction of a pipe.
type Direction uint8

// Direction constants.
const (
	DirectionOut Direction = 0 // Host to device
	DirectionIn  Direction = 1 // Device to host
)

// Pipe is a handle to a host controller pipe.
// Pipe 0 is the control pipe. PipeAlloc never returns it, so a zero
// handle doubles as "no pipe" for data endpoints.
type Pipe uint8

// NumPipes is the number of hardware pipes of the reference controller.
const NumPipes = 10

// Bank configuration values for PipeAlloc.
const (
	Bank1 uint8 = 1
	Bank2 uint8 = 2
	Bank3 uint8 = 3
)

// SetupPacket represents a USB SETUP packet in the HAL layer.
type SetupPacket struct {
	RequestType uint8  // Request characteristics
	Request     uint8  // Specific request
	Value       uint16 // Request-specific value
	Index       uint16 // Request-specific index
	Length      uint16 // Number of bytes to transfer
}

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = 8

// ParseSetupPacket parses raw bytes into a SetupPacket.
// Returns false if data is too short.
func ParseSetupPacket(data []byte, out *SetupPacket) bool {
	if len(data) < SetupPacketSize {
		return false
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = uint16(data[2]) | uint16(data[3])<<8
	out.Index = uint16(data[4]) | uint16(data[5])<<8
	out.Length = uint16(data[6]) | uint16(data[7])<<8
	return true
}

// MarshalTo writes the setup packet to buf.
// Returns the number of bytes written (8), or 0 if buf is too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	buf[2] = byte(s.Value)
	buf[3] = byte(s.Value >> 8)
	buf[4] = byte(s.Index)
	buf[5] = byte(s.Index >> 8)
	buf[6] = byte(s.Length)
	buf[7] = byte(s.Length >> 8)
	return SetupPacketSize
}

// IsIn returns true if the data stage moves data from device to host.
func (s *SetupPacket) IsIn() bool {
	return s.RequestType&0x80 != 0
}

// Clock is the millisecond time base the host stack busy-waits on.
type Clock interface {
	// Millis returns a free-running millisecond counter. It may wrap.
	Millis() uint32

	// Delay blocks for ms milliseconds.
	Delay(ms uint32)
}

// HostHAL defines the hardware abstraction layer of a pipe-based USB host
// controller.
//
// The host stack drives every transfer one token at a time: it loads the
// pipe FIFO, sends a token and polls for completion or NAK. Platform
// vendors implement this interface for their controller; the host stack
// never touches registers directly.
//
// Implementations are called from a single control loop and need no
// locking.
type HostHAL interface {
	Clock

	// Bus and VBUS control

	// Init resets the controller and its pipes.
	Init()

	// BusReset starts a USB bus reset on the root port.
	BusReset()

	// VBUSState returns the current port power/connection state.
	VBUSState() VBUSState

	// LowSpeed reports whether the attached device signals low speed.
	LowSpeed() bool

	// EnableSOF starts start-of-frame generation.
	EnableSOF()

	// IsSOF reports whether a start-of-frame has been issued.
	IsSOF() bool

	// IsResetSent reports whether the bus reset has completed.
	IsResetSent() bool

	// AckResetSent clears the reset-sent flag.
	AckResetSent()

	// Pipe management

	// Pipe0Alloc configures the control pipe for packets of maxPktSize.
	// The device address is set separately with ConfigureAddress and must
	// survive this call.
	Pipe0Alloc(addr uint8, maxPktSize uint16) error

	// PipeAlloc configures a free data pipe for the given device endpoint.
	// Returns 0 if no pipe is free.
	PipeAlloc(addr, epNum uint8, typ PipeType, dir Direction, maxPktSize uint16, interval, banks uint8) Pipe

	// PipeFree releases a pipe returned by PipeAlloc.
	PipeFree(p Pipe)

	// PipeWrite loads data into the pipe FIFO and returns the bytes written.
	PipeWrite(p Pipe, data []byte) int

	// PipeRead copies received data from the pipe FIFO into data and
	// returns the bytes copied.
	PipeRead(p Pipe, data []byte) int

	// PipeSend issues tok on the pipe.
	PipeSend(p Pipe, tok Token)

	// IsTransferComplete reports whether the last tok on p completed and
	// acknowledges the completion.
	IsTransferComplete(p Pipe, tok Token) bool

	// ConfigureAddress sets the device address the pipe talks to.
	ConfigureAddress(p Pipe, addr uint8)

	// ConfigurePipeToken sets the token the pipe sends next.
	ConfigurePipeToken(p Pipe, tok Token)

	// ByteCount returns the size of the last packet received on p.
	ByteCount(p Pipe) int

	// IsNAKReceived reports whether the device NAKed the last token.
	IsNAKReceived(p Pipe) bool

	// AckNAKReceived clears the NAK flag; the controller retries the token.
	AckNAKReceived(p Pipe)

	// FreezePipe stops the pipe from issuing further tokens.
	FreezePipe(p Pipe)
}
