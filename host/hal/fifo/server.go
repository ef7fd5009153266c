package fifo

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/host/hal/sim"
	"github.com/ardnew/usbhost/pkg"
)

// Server answers the tokens of a Controller on behalf of a simulated
// function. It runs in the device process.
type Server struct {
	mu     sync.Mutex
	fn     sim.Function
	conn   *conn
	events io.Writer
}

// NewServer returns a server reading tokens from bus and writing
// connection signals to events. Nothing is attached.
func NewServer(bus io.ReadWriter, events io.Writer) *Server {
	return &Server{conn: newConn(bus), events: events}
}

// Attach connects fn and signals the host.
func (s *Server) Attach(fn sim.Function, lowSpeed bool) error {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()

	sig := byte(SigConnect)
	if lowSpeed {
		sig = SigConnectLow
	}
	pkg.LogDebug(pkg.ComponentSim, "function attached", "lowSpeed", lowSpeed)
	return s.signal(sig)
}

// Detach disconnects the function and signals the host.
func (s *Server) Detach() error {
	s.mu.Lock()
	s.fn = nil
	s.mu.Unlock()

	pkg.LogDebug(pkg.ComponentSim, "function detached")
	return s.signal(SigDisconnect)
}

// Do runs f while no token is being served. Use it to change the state of
// the attached function from another goroutine.
func (s *Server) Do(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f()
}

func (s *Server) signal(b byte) error {
	if _, err := s.events.Write([]byte{b}); err != nil {
		return fmt.Errorf("signal connection: %w", err)
	}
	return nil
}

// Serve answers tokens until ctx is canceled or the host closes the bus.
func (s *Server) Serve(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		typ, payload, err := s.conn.read(0)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read token: %w", err)
		}
		if err := s.reply(typ, payload); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
	}
}

func (s *Server) reply(typ uint8, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch typ {
	case msgReset:
		if s.fn != nil {
			s.fn.Reset()
		}
		return s.conn.write(msgAck)

	case msgToken:
		if len(payload) < tokenHeader || s.fn == nil {
			return s.conn.write(msgNone)
		}
		tok := hal.Token(payload[0])
		addr := payload[1]
		ep := payload[2]
		maxPkt := int(binary.LittleEndian.Uint16(payload[3:]))

		// Nothing answers a token sent to another address.
		if addr != s.fn.Address() {
			return s.conn.write(msgNone)
		}

		data, hs, ok := sim.Transact(s.fn, tok, ep, maxPkt, payload[tokenHeader:])
		if !ok {
			return s.conn.write(msgNone)
		}
		switch hs {
		case sim.ACK:
			if tok.IsIn() {
				return s.conn.write(msgAck, data)
			}
			return s.conn.write(msgAck)
		case sim.NAK:
			return s.conn.write(msgNak)
		default:
			return s.conn.write(msgStall)
		}
	}

	pkg.LogWarn(pkg.ComponentSim, "unknown message", "type", typ)
	return s.conn.write(msgNone)
}
