package sim

import (
	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/pkg"
)

// Handshake is a device's answer to a token.
type Handshake uint8

// Handshake values.
const (
	ACK Handshake = iota
	NAK
	STALL
)

// String returns the handshake name.
func (h Handshake) String() string {
	switch h {
	case ACK:
		return "ACK"
	case NAK:
		return "NAK"
	case STALL:
		return "STALL"
	default:
		return "UNKNOWN"
	}
}

type pipe struct {
	used     bool
	addr     uint8
	ep       uint8
	typ      hal.PipeType
	dir      hal.Direction
	maxPkt   uint16
	interval uint8
	tok      hal.Token

	out []byte
	in  []byte
	rx  int

	complete bool
	nak      bool
	stall    bool
	frozen   bool
}

// Controller is a simulated pipe-based host controller implementing
// hal.HostHAL.
//
// Transactions run synchronously inside PipeSend against the attached
// Function. Time is virtual: every Millis call advances the clock by the
// configured step, so busy-wait loops terminate without sleeping.
type Controller struct {
	now  uint32
	step uint32

	vbus     hal.VBUSState
	lowSpeed bool
	fn       Function

	sofOn     bool
	resetSent bool

	pipes [hal.NumPipes]pipe

	inits   int
	resets  int
	tokens  int
	maxPipe int
}

// NewController returns a controller with nothing attached and a clock
// step of one millisecond.
func NewController() *Controller {
	return &Controller{step: 1, maxPipe: hal.NumPipes}
}

// Ensure Controller implements hal.HostHAL.
var _ hal.HostHAL = (*Controller)(nil)

// SetStep sets how far the clock advances on each Millis call.
func (c *Controller) SetStep(ms uint32) {
	c.step = ms
}

// SetNow sets the virtual clock.
func (c *Controller) SetNow(ms uint32) {
	c.now = ms
}

// Advance moves the virtual clock forward.
func (c *Controller) Advance(ms uint32) {
	c.now += ms
}

// LimitPipes restricts PipeAlloc to the first n pipes (control included).
func (c *Controller) LimitPipes(n int) {
	if n < 1 {
		n = 1
	}
	if n > hal.NumPipes {
		n = hal.NumPipes
	}
	c.maxPipe = n
}

// Attach connects fn to the root port and raises VBUS.
func (c *Controller) Attach(fn Function, lowSpeed bool) {
	c.fn = fn
	c.lowSpeed = lowSpeed
	c.vbus = hal.VBUSConnected
	pkg.LogDebug(pkg.ComponentSim, "function attached", "lowSpeed", lowSpeed)
}

// Detach disconnects the attached function.
func (c *Controller) Detach() {
	c.fn = nil
	c.vbus = hal.VBUSDisconnected
	c.sofOn = false
	pkg.LogDebug(pkg.ComponentSim, "function detached")
}

// SetVBUSError signals a VBUS fault on the root port.
func (c *Controller) SetVBUSError() {
	c.vbus = hal.VBUSError
}

// Function returns the attached function, or nil.
func (c *Controller) Function() Function {
	return c.fn
}

// InitCount returns how often Init was called.
func (c *Controller) InitCount() int {
	return c.inits
}

// ResetCount returns how often BusReset was called.
func (c *Controller) ResetCount() int {
	return c.resets
}

// TokenCount returns the number of tokens sent, retries included.
func (c *Controller) TokenCount() int {
	return c.tokens
}

// PipesInUse returns the number of allocated data pipes.
func (c *Controller) PipesInUse() int {
	n := 0
	for i := 1; i < hal.NumPipes; i++ {
		if c.pipes[i].used {
			n++
		}
	}
	return n
}

// Millis returns the virtual clock and advances it by one step.
func (c *Controller) Millis() uint32 {
	t := c.now
	c.now += c.step
	return t
}

// Delay advances the virtual clock by ms.
func (c *Controller) Delay(ms uint32) {
	c.now += ms
}

// Init resets the controller and frees every pipe.
func (c *Controller) Init() {
	c.pipes = [hal.NumPipes]pipe{}
	c.sofOn = false
	c.resetSent = false
	c.inits++
}

// BusReset resets the attached function. The reset completes immediately.
func (c *Controller) BusReset() {
	if c.fn != nil {
		c.fn.Reset()
	}
	c.resetSent = true
	c.resets++
}

// VBUSState returns the port state.
func (c *Controller) VBUSState() hal.VBUSState {
	return c.vbus
}

// LowSpeed reports the speed of the attached function.
func (c *Controller) LowSpeed() bool {
	return c.lowSpeed
}

// EnableSOF starts frame generation.
func (c *Controller) EnableSOF() {
	c.sofOn = true
}

// IsSOF reports whether frames are being generated.
func (c *Controller) IsSOF() bool {
	return c.sofOn && c.vbus == hal.VBUSConnected
}

// IsResetSent reports whether a bus reset completed.
func (c *Controller) IsResetSent() bool {
	return c.resetSent
}

// AckResetSent clears the reset flag.
func (c *Controller) AckResetSent() {
	c.resetSent = false
}

// Pipe0Alloc configures the control pipe. The device address is left as
// set by ConfigureAddress.
func (c *Controller) Pipe0Alloc(addr uint8, maxPktSize uint16) error {
	if maxPktSize == 0 {
		return pkg.ErrInvalidMaxPacketSize
	}
	p := &c.pipes[0]
	p.used = true
	p.typ = hal.PipeControl
	p.maxPkt = maxPktSize
	return nil
}

// PipeAlloc configures the lowest free data pipe.
func (c *Controller) PipeAlloc(addr, epNum uint8, typ hal.PipeType, dir hal.Direction, maxPktSize uint16, interval, banks uint8) hal.Pipe {
	for i := 1; i < c.maxPipe; i++ {
		if c.pipes[i].used {
			continue
		}
		c.pipes[i] = pipe{
			used:     true,
			addr:     addr,
			ep:       epNum & 0x0F,
			typ:      typ,
			dir:      dir,
			maxPkt:   maxPktSize,
			interval: interval,
		}
		pkg.LogDebug(pkg.ComponentSim, "pipe allocated",
			"pipe", i,
			"address", addr,
			"endpoint", epNum)
		return hal.Pipe(i)
	}
	return 0
}

// PipeFree releases a data pipe.
func (c *Controller) PipeFree(p hal.Pipe) {
	if p == 0 || int(p) >= hal.NumPipes {
		return
	}
	c.pipes[p] = pipe{}
}

// PipeWrite loads data for the next SETUP or OUT token.
func (c *Controller) PipeWrite(p hal.Pipe, data []byte) int {
	pp := c.pipe(p)
	if pp == nil {
		return 0
	}
	pp.out = append(pp.out[:0], data...)
	return len(data)
}

// PipeRead copies the last received packet into data.
func (c *Controller) PipeRead(p hal.Pipe, data []byte) int {
	pp := c.pipe(p)
	if pp == nil {
		return 0
	}
	n := copy(data, pp.in)
	pp.in = pp.in[n:]
	return n
}

// PipeSend issues tok and runs the transaction.
func (c *Controller) PipeSend(p hal.Pipe, tok hal.Token) {
	pp := c.pipe(p)
	if pp == nil {
		return
	}
	pp.tok = tok
	pp.complete = false
	pp.nak = false
	pp.stall = false
	pp.frozen = false
	c.transact(pp)
}

// IsTransferComplete reports and clears the completion flag.
func (c *Controller) IsTransferComplete(p hal.Pipe, tok hal.Token) bool {
	pp := c.pipe(p)
	if pp == nil || !pp.complete {
		return false
	}
	pp.complete = false
	return true
}

// ConfigureAddress sets the device address of p.
func (c *Controller) ConfigureAddress(p hal.Pipe, addr uint8) {
	if pp := c.pipe(p); pp != nil {
		pp.addr = addr
	}
}

// ConfigurePipeToken sets the token of p.
func (c *Controller) ConfigurePipeToken(p hal.Pipe, tok hal.Token) {
	if pp := c.pipe(p); pp != nil {
		pp.tok = tok
	}
}

// ByteCount returns the size of the last packet received on p.
func (c *Controller) ByteCount(p hal.Pipe) int {
	if pp := c.pipe(p); pp != nil {
		return pp.rx
	}
	return 0
}

// IsNAKReceived reports whether the last token was NAKed.
func (c *Controller) IsNAKReceived(p hal.Pipe) bool {
	pp := c.pipe(p)
	return pp != nil && pp.nak
}

// AckNAKReceived clears the NAK flag and retries the token.
func (c *Controller) AckNAKReceived(p hal.Pipe) {
	pp := c.pipe(p)
	if pp == nil {
		return
	}
	pp.nak = false
	c.transact(pp)
}

// FreezePipe stops retries on p until the next PipeSend.
func (c *Controller) FreezePipe(p hal.Pipe) {
	if pp := c.pipe(p); pp != nil {
		pp.frozen = true
	}
}

// Stalled reports whether the last token on p was STALLed.
func (c *Controller) Stalled(p hal.Pipe) bool {
	pp := c.pipe(p)
	return pp != nil && pp.stall
}

func (c *Controller) pipe(p hal.Pipe) *pipe {
	if int(p) >= hal.NumPipes {
		return nil
	}
	return &c.pipes[p]
}

func (c *Controller) transact(pp *pipe) {
	if pp.frozen || c.fn == nil || c.vbus != hal.VBUSConnected {
		return
	}
	// Nothing answers a token sent to another address.
	if pp.addr != c.fn.Address() {
		return
	}
	// A data pipe only carries tokens of its own direction.
	if pp.typ != hal.PipeControl && pp.tok.IsIn() != (pp.dir == hal.DirectionIn) {
		pkg.LogDebug(pkg.ComponentSim, "token against pipe direction",
			"token", pp.tok.String(),
			"endpoint", pp.ep)
		return
	}
	c.tokens++

	data, hs, ok := Transact(c.fn, pp.tok, pp.ep, int(pp.maxPkt), pp.out)
	if !ok {
		return
	}

	switch hs {
	case ACK:
		if pp.tok.IsIn() {
			pp.in = append(pp.in[:0], data...)
			pp.rx = len(data)
		}
		pp.complete = true
	case NAK:
		pp.nak = true
	case STALL:
		pp.stall = true
		pkg.LogDebug(pkg.ComponentSim, "stall",
			"token", pp.tok.String(),
			"endpoint", pp.ep)
	}
}

// Transact delivers one token to fn. out carries the SETUP packet or OUT
// data; for IN tokens the returned data holds the packet. ok is false
// when the token gets no handshake at all (malformed SETUP, unknown
// token).
func Transact(fn Function, tok hal.Token, ep uint8, maxPkt int, out []byte) (data []byte, hs Handshake, ok bool) {
	switch tok {
	case hal.TokenSetup:
		var s hal.SetupPacket
		if !hal.ParseSetupPacket(out, &s) {
			return nil, 0, false
		}
		return nil, fn.Setup(s), true

	case hal.TokenIn, hal.TokenInHS:
		data, hs = fn.In(ep, maxPkt)
		return data, hs, true

	case hal.TokenOut:
		return nil, fn.Out(ep, out), true

	case hal.TokenOutHS:
		return nil, fn.Out(ep, nil), true
	}
	return nil, 0, false
}
