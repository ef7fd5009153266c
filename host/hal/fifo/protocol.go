package fifo

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// Message types.
const (
	msgToken = 0x01 // Host token: tok, addr, ep, maxPkt (LE16), data
	msgAck   = 0x03 // ACK handshake, IN data as payload
	msgNak   = 0x04 // NAK handshake
	msgStall = 0x05 // STALL handshake
	msgNone  = 0x06 // No handshake: wrong address or malformed token
	msgReset = 0x12 // Bus reset, answered with msgAck
)

// Connection signal bytes, written by the device on the connection FIFO.
const (
	SigDisconnect  = 0x00
	SigConnect     = 0x01
	SigConnectLow  = 0x02
	sigConnectMask = 0x03
)

// Buffer sizes.
const (
	maxPacketSize  = 512
	headerSize     = 3 // type, length (LE16)
	tokenHeader    = 5 // tok, addr, ep, maxPkt (LE16)
	maxMessageSize = headerSize + tokenHeader + maxPacketSize
)

// replyTimeout bounds the wait for a handshake on transports that support
// read deadlines.
const replyTimeout = 5 * time.Second

// ErrProtocol reports a malformed or unexpected frame.
var ErrProtocol = errors.New("fifo protocol error")

// deadliner is implemented by os.File (FIFOs) and net.Conn.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// conn frames messages over a byte stream. The buffers are reused; a
// payload returned by read is valid until the next call.
type conn struct {
	rw    io.ReadWriter
	txBuf [maxMessageSize]byte
	rxBuf [maxMessageSize]byte
}

func newConn(rw io.ReadWriter) *conn {
	return &conn{rw: rw}
}

func (c *conn) write(typ uint8, parts ...[]byte) error {
	n := headerSize
	for _, p := range parts {
		if n+len(p) > len(c.txBuf) {
			return fmt.Errorf("%w: message of %d bytes", ErrProtocol, n+len(p))
		}
		n += copy(c.txBuf[n:], p)
	}
	c.txBuf[0] = typ
	binary.LittleEndian.PutUint16(c.txBuf[1:], uint16(n-headerSize))

	_, err := c.rw.Write(c.txBuf[:n])
	return err
}

func (c *conn) read(timeout time.Duration) (uint8, []byte, error) {
	if d, ok := c.rw.(deadliner); ok && timeout > 0 {
		if err := d.SetReadDeadline(time.Now().Add(timeout)); err == nil {
			defer d.SetReadDeadline(time.Time{})
		}
	}

	if _, err := io.ReadFull(c.rw, c.rxBuf[:headerSize]); err != nil {
		return 0, nil, err
	}
	n := int(binary.LittleEndian.Uint16(c.rxBuf[1:]))
	if headerSize+n > len(c.rxBuf) {
		return 0, nil, fmt.Errorf("%w: payload of %d bytes", ErrProtocol, n)
	}
	if _, err := io.ReadFull(c.rw, c.rxBuf[headerSize:headerSize+n]); err != nil {
		return 0, nil, err
	}
	return c.rxBuf[0], c.rxBuf[headerSize : headerSize+n], nil
}
