package host

import (
	"fmt"

	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/pkg"
)

// Address is a bit-packed USB device address.
//
//	bit 7    reserved
//	bit 6    hub flag
//	bits 5-3 address of the parent hub
//	bits 2-0 port on the parent hub, or the hub number for hubs
//
// Address 0 is the default address a device answers to between bus reset
// and SET_ADDRESS.
type Address uint8

// RootHubAddress is the fixed address of a hub attached to the root port.
// Freeing it resets the whole pool.
const RootHubAddress Address = 0x41

// RootFunctionAddress is the address of a non-hub device attached to the
// root port.
const RootFunctionAddress Address = 0x01

// NewAddress packs an address from its fields.
func NewAddress(parent, port uint8, hub bool) Address {
	a := Address(port&0x07) | Address(parent&0x07)<<3
	if hub {
		a |= 0x40
	}
	return a
}

// Port returns the port (or hub number) field.
func (a Address) Port() uint8 {
	return uint8(a) & 0x07
}

// Parent returns the parent hub field.
func (a Address) Parent() uint8 {
	return uint8(a>>3) & 0x07
}

// IsHub returns true if the hub flag is set.
func (a Address) IsHub() bool {
	return a&0x40 != 0
}

// String formats the address with its decoded fields.
func (a Address) String() string {
	return fmt.Sprintf("%#02x(parent=%d port=%d hub=%t)", uint8(a), a.Parent(), a.Port(), a.IsHub())
}

// EpInfo describes one device endpoint and the host pipe bound to it.
type EpInfo struct {
	EpAddr     uint8    // Device endpoint address, bit 7 set for IN
	Pipe       hal.Pipe // Host pipe bound to the endpoint
	MaxPktSize uint16   // Maximum packet size
	Attribs    uint8    // Data toggle bits
	NakPower   uint8    // NAK budget is 2^NakPower - 1, see NakNoNAK
}

// Number returns the endpoint number without the direction bit.
func (e *EpInfo) Number() uint8 {
	return e.EpAddr & 0x0F
}

// NakLimit returns the number of NAKs after which a token is abandoned.
// Zero means NAKs are not counted.
func (e *EpInfo) NakLimit() uint32 {
	p := e.NakPower
	if p > NakMax {
		p = NakMax
	}
	return (uint32(1) << p) - 1
}

// Device is one address pool slot.
//
// EpInfo is not owned by the slot; it references the endpoint table of the
// class driver bound to the address.
type Device struct {
	EpInfo   []EpInfo
	Address  Address
	LowSpeed bool
}

// AddressPool manages the bounded set of device addresses.
// Slot 0 is the pseudo device answering at address 0 during enumeration.
type AddressPool struct {
	pool       [NumDevices]Device
	dev0ep     [1]EpInfo
	hubCounter uint8
}

// NewAddressPool returns an empty pool.
func NewAddressPool() *AddressPool {
	p := &AddressPool{}
	p.dev0ep[0] = EpInfo{MaxPktSize: 8, NakPower: NakMax}
	p.pool[0].EpInfo = p.dev0ep[:]
	p.initAll()
	return p
}

func (p *AddressPool) initEntry(i int) {
	p.pool[i] = Device{EpInfo: p.dev0ep[:]}
}

func (p *AddressPool) initAll() {
	for i := 1; i < NumDevices; i++ {
		p.initEntry(i)
	}
	p.hubCounter = 0
}

// findIndex returns the slot holding addr, or 0.
// With addr 0 it returns the first free slot.
func (p *AddressPool) findIndex(addr Address) int {
	for i := 1; i < NumDevices; i++ {
		if p.pool[i].Address == addr {
			return i
		}
	}
	return 0
}

// Device returns the slot of addr, or nil if addr is not allocated.
// Address 0 always resolves to the pseudo device.
func (p *AddressPool) Device(addr Address) *Device {
	if addr == 0 {
		return &p.pool[0]
	}
	i := p.findIndex(addr)
	if i == 0 {
		return nil
	}
	return &p.pool[i]
}

// ForEachDevice calls fn for every allocated slot.
func (p *AddressPool) ForEachDevice(fn func(*Device)) {
	for i := 1; i < NumDevices; i++ {
		if p.pool[i].Address != 0 {
			fn(&p.pool[i])
		}
	}
}

// HubCounter returns the most recently issued hub number.
func (p *AddressPool) HubCounter() uint8 {
	return p.hubCounter
}

// AllocAddress assigns an address to a device attached to port of parent.
// A parent of 0 means the root port. It returns 0 if the arguments are out
// of range, the hub numbers are exhausted or no slot is free.
func (p *AddressPool) AllocAddress(parent Address, hub bool, port uint8) Address {
	addr, _ := p.Alloc(parent, hub, port)
	return addr
}

// Alloc is AllocAddress reporting why no address was assigned:
// pkg.ErrInvalidParameter, pkg.ErrHubAddressOverflow or
// pkg.ErrOutOfAddressSpace.
func (p *AddressPool) Alloc(parent Address, hub bool, port uint8) (Address, error) {
	if parent > MaxParentAddress || port > MaxPort {
		return 0, pkg.ErrInvalidParameter
	}
	if hub && p.hubCounter == MaxHubs {
		return 0, pkg.ErrHubAddressOverflow
	}

	i := p.findIndex(0)
	if i == 0 {
		return 0, pkg.ErrOutOfAddressSpace
	}

	var addr Address
	switch {
	case parent == 0 && hub:
		addr = RootHubAddress
		p.hubCounter++
	case parent == 0:
		addr = RootFunctionAddress
	case hub:
		p.hubCounter++
		addr = NewAddress(parent.Port(), p.hubCounter, true)
	default:
		addr = NewAddress(parent.Port(), port, false)
	}

	p.pool[i].Address = addr
	pkg.LogDebug(pkg.ComponentPool, "address allocated",
		"address", addr.String(),
		"slot", i)
	return addr, nil
}

// FreeAddress returns addr to the pool. Freeing a hub frees everything
// attached below it; freeing the root hub resets the pool.
func (p *AddressPool) FreeAddress(addr Address) {
	if addr == 0 {
		return
	}
	if addr == RootHubAddress {
		p.initAll()
		pkg.LogDebug(pkg.ComponentPool, "root hub freed, pool reset")
		return
	}
	p.freeIndex(p.findIndex(addr))
}

func (p *AddressPool) freeIndex(i int) {
	if i == 0 {
		return
	}

	addr := p.pool[i].Address
	if addr.IsHub() {
		for j := 1; j < NumDevices; j++ {
			child := p.pool[j].Address
			if j != i && child != 0 && child.Parent() == addr.Port() {
				p.freeIndex(j)
			}
		}
		if p.hubCounter == addr.Port() {
			p.hubCounter--
		}
	}

	pkg.LogDebug(pkg.ComponentPool, "address freed",
		"address", addr.String(),
		"slot", i)
	p.initEntry(i)
}
