package host

import "encoding/binary"

// ReadParser consumes the data stage of an IN control transfer one chunk
// at a time. offset is the position of buf within the whole transfer.
type ReadParser interface {
	Parse(buf []byte, offset int)
}

// MultiByteValueParser collects a fixed number of bytes that may arrive
// split across several input chunks.
//
// Each call consumes bytes from the front of *pp and advances it. Parse
// returns true once the target buffer is full; until then it keeps its
// position, so the same parser must see every following chunk.
type MultiByteValueParser struct {
	buf       []byte
	countDown int
}

// Initialize sets the target buffer. Its length is the value size.
func (p *MultiByteValueParser) Initialize(buf []byte) {
	p.buf = buf
	p.countDown = len(buf)
}

// Buffer returns the target buffer.
func (p *MultiByteValueParser) Buffer() []byte {
	return p.buf
}

// Parse copies input into the target buffer.
func (p *MultiByteValueParser) Parse(pp *[]byte) bool {
	if p.buf == nil {
		return false
	}

	n := copy(p.buf[len(p.buf)-p.countDown:], *pp)
	p.countDown -= n
	*pp = (*pp)[n:]

	if p.countDown > 0 {
		return false
	}
	p.countDown = len(p.buf)
	return true
}

// ByteSkipper discards a number of bytes that may arrive split across
// several input chunks.
type ByteSkipper struct {
	stage     int
	countDown int
}

// Skip discards up to n bytes from the front of *pp. The count is latched
// on the first call; later calls resume the pending skip and ignore n.
// It returns true once all bytes were discarded.
func (s *ByteSkipper) Skip(pp *[]byte, n int) bool {
	if s.stage == 0 {
		s.countDown = n
		s.stage = 1
	}

	k := s.countDown
	if k > len(*pp) {
		k = len(*pp)
	}
	*pp = (*pp)[k:]
	s.countDown -= k

	if s.countDown == 0 {
		s.stage = 0
		return true
	}
	return false
}

// ListMode selects how a ListParser interprets its input.
type ListMode uint8

// List modes.
const (
	// ListArray reads a length prefix followed by that many elements.
	ListArray ListMode = iota

	// ListRange reads exactly three elements (minimum, maximum, step)
	// without a length prefix.
	ListRange
)

// ListParser decodes a length-prefixed array of fixed-size elements, the
// list layout used by PTP/MTP datasets, across input chunks.
type ListParser struct {
	stage      int
	arLen      uint32
	arLenCntdn uint32
	lenSize    int
	valSize    int
	buf        []byte
	mode       ListMode
	parser     MultiByteValueParser
}

// Initialize prepares the parser. lenSize is the byte width of the length
// prefix (1, 2 or 4), valSize the byte width of one element. buf is
// scratch space of at least max(lenSize, valSize) bytes.
func (l *ListParser) Initialize(lenSize, valSize int, buf []byte, mode ListMode) {
	l.buf = buf
	l.lenSize = lenSize
	l.valSize = valSize
	l.mode = mode

	if mode == ListRange {
		l.arLen, l.arLenCntdn = 3, 3
		l.stage = 2
	} else {
		l.arLen, l.arLenCntdn = 0, 0
		l.stage = 0
	}
	l.parser.Initialize(buf[:lenSize])
}

// Len returns the element count decoded from the prefix.
func (l *ListParser) Len() uint32 {
	return l.arLen
}

// Parse consumes input from *pp and calls fn with each completed element
// and its index. It returns true once the whole list was decoded.
func (l *ListParser) Parse(pp *[]byte, fn func(elem []byte, index uint32)) bool {
	switch l.stage {
	case 0:
		l.parser.Initialize(l.buf[:l.lenSize])
		l.stage = 1
		fallthrough

	case 1:
		if !l.parser.Parse(pp) {
			return false
		}
		l.arLen = decodeLength(l.buf[:l.lenSize])
		l.arLenCntdn = l.arLen
		l.stage = 2
		fallthrough

	case 2:
		l.parser.Initialize(l.buf[:l.valSize])
		l.stage = 3
		fallthrough

	case 3:
		for ; l.arLenCntdn > 0; l.arLenCntdn-- {
			if !l.parser.Parse(pp) {
				return false
			}
			if fn != nil {
				fn(l.buf[:l.valSize], l.arLen-l.arLenCntdn)
			}
		}
		l.stage = 0
	}
	return true
}

func decodeLength(b []byte) uint32 {
	switch len(b) {
	case 1:
		return uint32(b[0])
	case 2, 3:
		return uint32(binary.LittleEndian.Uint16(b))
	default:
		return binary.LittleEndian.Uint32(b)
	}
}
