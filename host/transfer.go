package host

import (
	"errors"
	"fmt"

	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/pkg"
)

// pipe0Size is the packet size the control pipe is configured with.
const pipe0Size = 64

// EpInfoEntry returns the endpoint record of the endpoint address ep on the
// device at addr, or nil if the device or endpoint is unknown. IN and OUT
// endpoints sharing a number are distinct records.
func (h *Host) EpInfoEntry(addr Address, ep uint8) *EpInfo {
	p := h.pool.Device(addr)
	if p == nil {
		return nil
	}
	for i := range p.EpInfo {
		if p.EpInfo[i].EpAddr == ep {
			return &p.EpInfo[i]
		}
	}
	return nil
}

// SetEpInfoEntry binds the endpoint table eps to the device at addr.
// The table stays owned by the caller.
func (h *Host) SetEpInfoEntry(addr Address, eps []EpInfo) error {
	if eps == nil {
		return pkg.ErrInvalidParameter
	}
	p := h.pool.Device(addr)
	if p == nil {
		return pkg.ErrAddressNotFound
	}
	p.Address = addr
	p.EpInfo = eps
	return nil
}

// setPipeAddress resolves the endpoint record of (addr, ep), points its
// pipe at addr and returns the record with its NAK limit.
func (h *Host) setPipeAddress(addr Address, ep uint8) (*EpInfo, uint32, error) {
	p := h.pool.Device(addr)
	if p == nil {
		return nil, 0, pkg.ErrAddressNotFound
	}
	if p.EpInfo == nil {
		return nil, 0, pkg.ErrEpInfoNil
	}
	pep := h.EpInfoEntry(addr, ep)
	if pep == nil {
		return nil, 0, pkg.ErrEndpointNotFound
	}

	pkg.LogDebug(pkg.ComponentTransfer, "set pipe address",
		"endpoint", ep,
		"pipe", pep.Pipe,
		"address", uint8(addr))
	h.hal.ConfigureAddress(pep.Pipe, uint8(addr))
	return pep, pep.NakLimit(), nil
}

// AllocPipe binds a free host pipe to the endpoint described by ep.
// The handle is stored in ep.Pipe and must be returned with FreePipe.
func (h *Host) AllocPipe(addr Address, ep *EpInfo, typ hal.PipeType, dir hal.Direction, interval uint8) error {
	if ep == nil {
		return pkg.ErrInvalidParameter
	}
	p := h.hal.PipeAlloc(uint8(addr), ep.Number(), typ, dir, ep.MaxPktSize, interval, hal.Bank1)
	if p == 0 {
		return pkg.ErrNoPipe
	}
	ep.Pipe = p
	pkg.LogDebug(pkg.ComponentTransfer, "pipe allocated",
		"address", uint8(addr),
		"endpoint", ep.EpAddr,
		"pipe", p)
	return nil
}

// FreePipe releases the pipe bound to ep and clears the handle.
// It is a no-op if no pipe is bound.
func (h *Host) FreePipe(ep *EpInfo) {
	if ep == nil || ep.Pipe == 0 {
		return
	}
	h.hal.PipeFree(ep.Pipe)
	ep.Pipe = 0
}

// CtrlReq performs a control transfer.
//
// The setup packet is built from reqType, req, valLo/valHi, index and
// total. If data is non-nil a data stage follows: IN requests read total
// bytes in chunks of len(data), handing each chunk to p when p is non-nil;
// OUT requests send data. The status stage runs in the opposite direction.
// The first failing stage aborts the transfer.
func (h *Host) CtrlReq(addr Address, ep uint8, reqType, req, valLo, valHi uint8, index, total uint16, data []byte, p ReadParser) error {
	pep, nakLimit, err := h.setPipeAddress(addr, ep)
	if err != nil {
		return err
	}

	if err := h.hal.Pipe0Alloc(0, pipe0Size); err != nil {
		pkg.LogDebug(pkg.ComponentTransfer, "control pipe allocation failed", "error", err)
		return err
	}

	dirIn := reqType&RequestTypeIn != 0

	setup := hal.SetupPacket{
		RequestType: reqType,
		Request:     req,
		Value:       uint16(valLo) | uint16(valHi)<<8,
		Index:       index,
		Length:      total,
	}
	var pkt [hal.SetupPacketSize]byte
	setup.MarshalTo(pkt[:])

	h.hal.ConfigurePipeToken(0, hal.TokenSetup)
	h.hal.PipeWrite(pep.Pipe, pkt[:])

	if err := h.DispatchPkt(hal.TokenSetup, pep.Pipe, nakLimit); err != nil {
		pkg.LogDebug(pkg.ComponentTransfer, "setup stage failed",
			"request", req,
			"rcode", pkg.Code(err))
		return fmt.Errorf("setup stage: %w", err)
	}

	if data != nil {
		if dirIn {
			err = h.ctrlDataIn(pep, nakLimit, total, data, p)
		} else {
			err = h.outTransfer(pep, nakLimit, data)
		}
		if err != nil {
			pkg.LogDebug(pkg.ComponentTransfer, "data stage failed",
				"request", req,
				"rcode", pkg.Code(err))
			return fmt.Errorf("data stage: %w", err)
		}
	}

	status := hal.TokenInHS
	if dirIn {
		status = hal.TokenOutHS
	}
	if err := h.DispatchPkt(status, pep.Pipe, nakLimit); err != nil {
		return fmt.Errorf("status stage: %w", err)
	}
	return nil
}

func (h *Host) ctrlDataIn(pep *EpInfo, nakLimit uint32, total uint16, data []byte, p ReadParser) error {
	if len(data) == 0 {
		return pkg.ErrBufferTooSmall
	}

	left := int(total)
	for left > 0 {
		chunk := data
		if len(chunk) > left {
			chunk = chunk[:left]
		}

		n, err := h.inTransfer(pep, nakLimit, chunk)
		if err != nil {
			return err
		}
		if p != nil {
			p.Parse(chunk[:n], int(total)-left)
		}

		left -= n
		if n < len(chunk) {
			break
		}
	}
	return nil
}

// InTransfer reads from the endpoint with address ep of the device at addr into data.
// It returns after a short packet or once data is full.
func (h *Host) InTransfer(addr Address, ep uint8, data []byte) (int, error) {
	pep, nakLimit, err := h.setPipeAddress(addr, ep)
	if err != nil {
		return 0, err
	}
	return h.inTransfer(pep, nakLimit, data)
}

func (h *Host) inTransfer(pep *EpInfo, nakLimit uint32, data []byte) (int, error) {
	maxPkt := int(pep.MaxPktSize)
	if maxPkt < 1 {
		return 0, pkg.ErrInvalidMaxPacketSize
	}

	n := 0
	for {
		if err := h.DispatchPkt(hal.TokenIn, pep.Pipe, nakLimit); err != nil {
			if errors.Is(err, pkg.ErrNAK) {
				// Otherwise the controller keeps issuing IN tokens.
				h.hal.FreezePipe(pep.Pipe)
			}
			return n, err
		}

		pktSize := h.hal.ByteCount(pep.Pipe)
		if pktSize > len(data)-n {
			pkg.LogWarn(pkg.ComponentTransfer, "receive buffer too small",
				"size", len(data)-n,
				"packet", pktSize)
		}
		n += h.hal.PipeRead(pep.Pipe, data[n:])

		if pktSize < maxPkt || n >= len(data) {
			return n, nil
		}
	}
}

// OutTransfer writes data to the endpoint with address ep of the device at addr in packets
// of the endpoint's maximum packet size.
func (h *Host) OutTransfer(addr Address, ep uint8, data []byte) error {
	pep, nakLimit, err := h.setPipeAddress(addr, ep)
	if err != nil {
		return err
	}
	return h.outTransfer(pep, nakLimit, data)
}

func (h *Host) outTransfer(pep *EpInfo, nakLimit uint32, data []byte) error {
	maxPkt := int(pep.MaxPktSize)
	if maxPkt < 1 {
		return pkg.ErrInvalidMaxPacketSize
	}

	for len(data) > 0 {
		n := len(data)
		if n > maxPkt {
			n = maxPkt
		}

		h.hal.PipeWrite(pep.Pipe, data[:n])
		if err := h.DispatchPkt(hal.TokenOut, pep.Pipe, nakLimit); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// DispatchPkt sends tok on pipe and busy-waits for the result.
//
// It returns nil on completion, pkg.ErrNAK once nakLimit NAKs were
// received (nakLimit 0 never gives up on NAKs), pkg.ErrNoDevice as soon as
// VBUS is lost and pkg.ErrTimeout when the transfer timeout elapses.
func (h *Host) DispatchPkt(tok hal.Token, pipe hal.Pipe, nakLimit uint32) error {
	deadline := h.hal.Millis() + millis(h.cfg.TransferTimeout)
	nakCount := uint32(0)

	pkg.LogDebug(pkg.ComponentTransfer, "dispatch",
		"token", tok.String(),
		"pipe", pipe,
		"nakLimit", nakLimit)

	h.hal.PipeSend(pipe, tok)

	for before(h.hal.Millis(), deadline) {
		if h.hal.VBUSState() != hal.VBUSConnected {
			return pkg.ErrNoDevice
		}

		if h.hal.IsTransferComplete(pipe, tok) {
			return nil
		}

		if h.hal.IsNAKReceived(pipe) {
			h.hal.AckNAKReceived(pipe)
			nakCount++
			if nakLimit > 0 && nakCount == nakLimit {
				return pkg.ErrNAK
			}
		}
	}

	if h.hal.VBUSState() != hal.VBUSConnected {
		return pkg.ErrNoDevice
	}
	return pkg.ErrTimeout
}

// before reports whether now is earlier than deadline on a wrapping
// millisecond counter.
func before(now, deadline uint32) bool {
	return int32(deadline-now) > 0
}
