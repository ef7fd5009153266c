package fifo

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/pkg"
)

// watchPoll is the read deadline used while waiting for connection
// signals, so Watch notices context cancellation.
const watchPoll = 100 * time.Millisecond

type pipe struct {
	used   bool
	addr   uint8
	ep     uint8
	maxPkt uint16
	tok    hal.Token

	out []byte
	in  []byte
	rx  int

	complete bool
	nak      bool
	frozen   bool
}

// Controller implements hal.HostHAL over a byte stream to a device
// process. Every token is one request/reply exchange on the bus stream;
// connection state arrives separately through Watch.
//
// Pipe methods are called from the host control loop only. VBUS state is
// shared with the Watch goroutine.
type Controller struct {
	conn  *conn
	start time.Time

	vbus     atomic.Uint32
	lowSpeed atomic.Bool

	sofOn     bool
	resetSent bool

	pipes [hal.NumPipes]pipe
	hdr   [tokenHeader]byte
}

// NewController returns a controller that exchanges tokens over bus.
func NewController(bus io.ReadWriter) *Controller {
	return &Controller{conn: newConn(bus), start: time.Now()}
}

// Ensure Controller implements hal.HostHAL.
var _ hal.HostHAL = (*Controller)(nil)

// Watch reads connection signals from events until ctx is canceled or the
// stream ends. A closed stream counts as a disconnect and returns nil.
func (c *Controller) Watch(ctx context.Context, events io.Reader) error {
	d, _ := events.(deadliner)
	var buf [1]byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d != nil {
			_ = d.SetReadDeadline(time.Now().Add(watchPoll))
		}
		n, err := events.Read(buf[:])
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			c.setVBUS(hal.VBUSDisconnected)
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
		if n == 0 {
			continue
		}
		c.signal(buf[0])
	}
}

func (c *Controller) signal(b byte) {
	switch b & sigConnectMask {
	case SigConnect:
		c.lowSpeed.Store(false)
		c.setVBUS(hal.VBUSConnected)
	case SigConnectLow:
		c.lowSpeed.Store(true)
		c.setVBUS(hal.VBUSConnected)
	default:
		c.setVBUS(hal.VBUSDisconnected)
	}
}

func (c *Controller) setVBUS(s hal.VBUSState) {
	if hal.VBUSState(c.vbus.Swap(uint32(s))) != s {
		pkg.LogDebug(pkg.ComponentHAL, "vbus changed", "state", s.String())
	}
}

// Millis returns milliseconds since the controller was created.
func (c *Controller) Millis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// Delay sleeps for ms milliseconds.
func (c *Controller) Delay(ms uint32) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// Init frees every pipe.
func (c *Controller) Init() {
	c.pipes = [hal.NumPipes]pipe{}
	c.sofOn = false
	c.resetSent = false
}

// BusReset asks the device process to reset its function.
func (c *Controller) BusReset() {
	if c.VBUSState() != hal.VBUSConnected {
		return
	}
	if err := c.conn.write(msgReset); err != nil {
		c.lost(err)
		return
	}
	typ, _, err := c.conn.read(replyTimeout)
	if err != nil {
		c.lost(err)
		return
	}
	if typ != msgAck {
		pkg.LogWarn(pkg.ComponentHAL, "unexpected reset reply", "type", typ)
		return
	}
	c.resetSent = true
}

// VBUSState returns the last state reported through Watch.
func (c *Controller) VBUSState() hal.VBUSState {
	return hal.VBUSState(c.vbus.Load())
}

// LowSpeed reports the speed signaled on connect.
func (c *Controller) LowSpeed() bool {
	return c.lowSpeed.Load()
}

// EnableSOF starts frame generation.
func (c *Controller) EnableSOF() {
	c.sofOn = true
}

// IsSOF reports whether frames are being generated.
func (c *Controller) IsSOF() bool {
	return c.sofOn && c.VBUSState() == hal.VBUSConnected
}

// IsResetSent reports whether a bus reset completed.
func (c *Controller) IsResetSent() bool {
	return c.resetSent
}

// AckResetSent clears the reset flag.
func (c *Controller) AckResetSent() {
	c.resetSent = false
}

// Pipe0Alloc configures the control pipe.
func (c *Controller) Pipe0Alloc(addr uint8, maxPktSize uint16) error {
	if maxPktSize == 0 {
		return pkg.ErrInvalidMaxPacketSize
	}
	p := &c.pipes[0]
	p.used = true
	p.maxPkt = maxPktSize
	return nil
}

// PipeAlloc configures the lowest free data pipe.
func (c *Controller) PipeAlloc(addr, epNum uint8, typ hal.PipeType, dir hal.Direction, maxPktSize uint16, interval, banks uint8) hal.Pipe {
	for i := 1; i < hal.NumPipes; i++ {
		if c.pipes[i].used {
			continue
		}
		c.pipes[i] = pipe{used: true, addr: addr, ep: epNum & 0x0F, maxPkt: maxPktSize}
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

// PipeSend issues tok and waits for the device's handshake.
func (c *Controller) PipeSend(p hal.Pipe, tok hal.Token) {
	pp := c.pipe(p)
	if pp == nil {
		return
	}
	pp.tok = tok
	pp.complete = false
	pp.nak = false
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

func (c *Controller) pipe(p hal.Pipe) *pipe {
	if int(p) >= hal.NumPipes {
		return nil
	}
	return &c.pipes[p]
}

func (c *Controller) transact(pp *pipe) {
	if pp.frozen || c.VBUSState() != hal.VBUSConnected {
		return
	}

	c.hdr[0] = uint8(pp.tok)
	c.hdr[1] = pp.addr
	c.hdr[2] = pp.ep
	binary.LittleEndian.PutUint16(c.hdr[3:], pp.maxPkt)

	var data []byte
	if pp.tok == hal.TokenSetup || pp.tok == hal.TokenOut {
		data = pp.out
	}
	if err := c.conn.write(msgToken, c.hdr[:], data); err != nil {
		c.lost(err)
		return
	}

	typ, payload, err := c.conn.read(replyTimeout)
	if err != nil {
		c.lost(err)
		return
	}

	switch typ {
	case msgAck:
		if pp.tok.IsIn() {
			pp.in = append(pp.in[:0], payload...)
			pp.rx = len(payload)
		}
		pp.complete = true
	case msgNak:
		pp.nak = true
	case msgStall:
		pkg.LogDebug(pkg.ComponentHAL, "stall",
			"token", pp.tok.String(),
			"endpoint", pp.ep)
	case msgNone:
	default:
		pkg.LogWarn(pkg.ComponentHAL, "unexpected reply", "type", typ)
	}
}

// lost drops the connection after a transport failure. The host stack
// sees VBUS go away and restarts enumeration once Watch reports a new
// connection.
func (c *Controller) lost(err error) {
	pkg.LogWarn(pkg.ComponentHAL, "bus transport failed", "error", err)
	c.setVBUS(hal.VBUSDisconnected)
}
