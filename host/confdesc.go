package host

import "github.com/ardnew/usbhost/pkg"

// ConfigXtracter receives the endpoints of matching interfaces found by a
// ConfigDescParser.
type ConfigXtracter interface {
	EndpointXtract(conf, iface, alt, proto uint8, ep *EndpointDescriptor)
}

// CompareMask selects which interface fields an InterfaceFilter compares.
type CompareMask uint8

// Compare mask bits.
const (
	CompareClass CompareMask = 1 << iota
	CompareSubClass
	CompareProtocol

	CompareAll  = CompareClass | CompareSubClass | CompareProtocol
	CompareNone = CompareMask(0)
)

// InterfaceFilter matches interface descriptors by class, subclass and
// protocol. Fields whose mask bit is clear are ignored; the zero filter
// matches every interface.
type InterfaceFilter struct {
	Class    uint8
	SubClass uint8
	Protocol uint8
	Mask     CompareMask
}

// Match reports whether every enabled field of f equals the field of d.
func (f InterfaceFilter) Match(d *InterfaceDescriptor) bool {
	if f.Mask&CompareClass != 0 && d.InterfaceClass != f.Class {
		return false
	}
	if f.Mask&CompareSubClass != 0 && d.InterfaceSubClass != f.SubClass {
		return false
	}
	if f.Mask&CompareProtocol != 0 && d.InterfaceProtocol != f.Protocol {
		return false
	}
	return true
}

// Parser states.
const (
	descrReadHeader = iota
	descrHeader
	descrSize
	descrBody
	descrSkip
	descrMalformed
)

// ConfigDescParser walks a configuration descriptor set as it streams in
// and reports the endpoints of interfaces accepted by its filter.
//
// It holds only a small fixed buffer, so descriptors may be split across
// any number of Parse calls. Descriptors longer than their standard layout
// have their tail skipped; known descriptors shorter than their layout are
// skipped whole. A bLength below 2 stops the parser for the rest of the
// stream and is reported by Err.
type ConfigDescParser struct {
	xtractor ConfigXtracter
	filter   InterfaceFilter

	valParser MultiByteValueParser
	skipper   ByteSkipper
	varBuf    [16]byte

	state    int
	dscrLen  int
	dscrType uint8
	bodyLen  int
	skipLen  int

	isGoodInterface bool
	confValue       uint8
	protoValue      uint8
	ifaceNumber     uint8
	ifaceAltSet     uint8

	err error
}

// NewConfigDescParser returns a parser reporting to x the endpoints of
// interfaces matching f.
func NewConfigDescParser(x ConfigXtracter, f InterfaceFilter) *ConfigDescParser {
	return &ConfigDescParser{xtractor: x, filter: f}
}

// Reset prepares the parser for a new descriptor stream.
func (c *ConfigDescParser) Reset() {
	*c = ConfigDescParser{xtractor: c.xtractor, filter: c.filter}
}

// Err returns the error that stopped the parser, if any.
func (c *ConfigDescParser) Err() error {
	return c.err
}

// Parse implements ReadParser.
func (c *ConfigDescParser) Parse(buf []byte, offset int) {
	for len(buf) > 0 {
		if !c.parseDescriptor(&buf) {
			return
		}
	}
}

func bodySize(dscrType uint8) int {
	switch dscrType {
	case DescriptorTypeConfiguration:
		return ConfigurationDescriptorSize - 2
	case DescriptorTypeInterface:
		return InterfaceDescriptorSize - 2
	case DescriptorTypeEndpoint:
		return EndpointDescriptorSize - 2
	default:
		return 0
	}
}

// parseDescriptor advances the state machine over *pp. It returns true
// when a whole descriptor was consumed.
func (c *ConfigDescParser) parseDescriptor(pp *[]byte) bool {
	switch c.state {
	case descrReadHeader:
		c.valParser.Initialize(c.varBuf[:2])
		c.state = descrHeader
		fallthrough

	case descrHeader:
		if !c.valParser.Parse(pp) {
			return false
		}
		c.dscrLen = int(c.varBuf[0])
		c.dscrType = c.varBuf[1]
		if c.dscrLen < 2 {
			c.err = pkg.ErrDescriptorTooShort
			c.state = descrMalformed
			pkg.LogWarn(pkg.ComponentParser, "malformed descriptor",
				"length", c.dscrLen,
				"type", c.dscrType)
			*pp = nil
			return false
		}
		c.state = descrSize
		fallthrough

	case descrSize:
		if c.dscrType == DescriptorTypeInterface {
			c.isGoodInterface = false
		}
		c.bodyLen = bodySize(c.dscrType)
		if c.dscrLen < c.bodyLen+2 {
			c.bodyLen = 0
		}
		c.skipLen = c.dscrLen - 2 - c.bodyLen
		c.valParser.Initialize(c.varBuf[2 : 2+c.bodyLen])
		c.state = descrBody
		fallthrough

	case descrBody:
		if c.bodyLen > 0 {
			if !c.valParser.Parse(pp) {
				return false
			}
			c.decode()
		}
		c.state = descrSkip
		fallthrough

	case descrSkip:
		if c.skipLen > 0 && !c.skipper.Skip(pp, c.skipLen) {
			return false
		}
		c.state = descrReadHeader

	case descrMalformed:
		*pp = nil
		return false
	}
	return true
}

func (c *ConfigDescParser) decode() {
	switch c.dscrType {
	case DescriptorTypeConfiguration:
		var d ConfigurationDescriptor
		ParseConfigurationDescriptor(c.varBuf[:], &d)
		c.confValue = d.ConfigurationValue

	case DescriptorTypeInterface:
		var d InterfaceDescriptor
		ParseInterfaceDescriptor(c.varBuf[:], &d)
		if !c.filter.Match(&d) {
			return
		}
		c.isGoodInterface = true
		c.ifaceNumber = d.InterfaceNumber
		c.ifaceAltSet = d.AlternateSetting
		c.protoValue = d.InterfaceProtocol

	case DescriptorTypeEndpoint:
		if !c.isGoodInterface || c.xtractor == nil {
			return
		}
		var d EndpointDescriptor
		ParseEndpointDescriptor(c.varBuf[:], &d)
		pkg.LogDebug(pkg.ComponentParser, "endpoint",
			"conf", c.confValue,
			"iface", c.ifaceNumber,
			"address", d.EndpointAddress,
			"attributes", d.Attributes,
			"maxPacket", d.MaxPacketSize)
		c.xtractor.EndpointXtract(c.confValue, c.ifaceNumber, c.ifaceAltSet, c.protoValue, &d)
	}
}
