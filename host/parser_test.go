package host

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ardnew/usbhost/host/hal/sim"
	"github.com/ardnew/usbhost/pkg"
)

// =============================================================================
// Helpers
// =============================================================================

type extracted struct {
	conf, iface, alt, proto uint8
	addr                    uint8
	maxPkt                  uint16
}

type recordingXtracter struct {
	eps []extracted
}

func (r *recordingXtracter) EndpointXtract(conf, iface, alt, proto uint8, ep *EndpointDescriptor) {
	r.eps = append(r.eps, extracted{conf, iface, alt, proto, ep.EndpointAddress, ep.MaxPacketSize})
}

// feed hands buf to p in chunks of n bytes.
func feed(p ReadParser, buf []byte, n int) {
	for off := 0; off < len(buf); off += n {
		end := off + n
		if end > len(buf) {
			end = len(buf)
		}
		p.Parse(buf[off:end], off)
	}
}

func compositeConfig() []byte {
	return sim.NewConfig(2).
		Interface(0, 0, 0x03, 0x01, 0x01, 1).
		HID(63).
		Endpoint(0x81, 0x03, 8, 10).
		Interface(1, 0, 0xFF, 0x00, 0x00, 2).
		Endpoint(0x82, 0x02, 64, 0).
		Endpoint(0x03, 0x02, 64, 0).
		Interface(1, 1, 0xFF, 0x00, 0x00, 1).
		Endpoint(0x84, 0x02, 512, 0).
		Bytes()
}

// =============================================================================
// ConfigDescParser Tests
// =============================================================================

func TestConfigDescParser_ChunkBoundaries(t *testing.T) {
	buf := compositeConfig()

	var whole recordingXtracter
	NewConfigDescParser(&whole, InterfaceFilter{}).Parse(buf, 0)
	if len(whole.eps) != 4 {
		t.Fatalf("whole buffer: %d endpoints, want 4", len(whole.eps))
	}

	for n := 1; n <= len(buf); n++ {
		var rec recordingXtracter
		p := NewConfigDescParser(&rec, InterfaceFilter{})
		feed(p, buf, n)
		if !reflect.DeepEqual(rec.eps, whole.eps) {
			t.Fatalf("chunk size %d: endpoints = %+v, want %+v", n, rec.eps, whole.eps)
		}
		if p.Err() != nil {
			t.Fatalf("chunk size %d: Err() = %v", n, p.Err())
		}
	}
}

func TestConfigDescParser_Filter(t *testing.T) {
	tests := []struct {
		name   string
		filter InterfaceFilter
		want   []uint8
	}{
		{"match all", InterfaceFilter{Mask: CompareNone}, []uint8{0x81, 0x82, 0x03, 0x84}},
		{"class only", InterfaceFilter{Class: 0x03, Mask: CompareClass}, []uint8{0x81}},
		{"boot keyboard", InterfaceFilter{Class: 0x03, SubClass: 0x01, Protocol: 0x01, Mask: CompareAll}, []uint8{0x81}},
		{"boot mouse", InterfaceFilter{Class: 0x03, SubClass: 0x01, Protocol: 0x02, Mask: CompareAll}, nil},
		{"vendor", InterfaceFilter{Class: 0xFF, Mask: CompareClass}, []uint8{0x82, 0x03, 0x84}},
		{"protocol ignores class", InterfaceFilter{Class: 0x55, Protocol: 0x00, Mask: CompareProtocol}, []uint8{0x82, 0x03, 0x84}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec recordingXtracter
			NewConfigDescParser(&rec, tt.filter).Parse(compositeConfig(), 0)

			var got []uint8
			for _, e := range rec.eps {
				got = append(got, e.addr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("endpoints = %#02x, want %#02x", got, tt.want)
			}
		})
	}
}

func TestConfigDescParser_ExtractedFields(t *testing.T) {
	var rec recordingXtracter
	NewConfigDescParser(&rec, InterfaceFilter{}).Parse(compositeConfig(), 0)

	want := extracted{conf: 2, iface: 1, alt: 1, proto: 0, addr: 0x84, maxPkt: 512}
	if got := rec.eps[len(rec.eps)-1]; got != want {
		t.Errorf("last endpoint = %+v, want %+v", got, want)
	}
	want = extracted{conf: 2, iface: 0, alt: 0, proto: 1, addr: 0x81, maxPkt: 8}
	if got := rec.eps[0]; got != want {
		t.Errorf("first endpoint = %+v, want %+v", got, want)
	}
}

func TestConfigDescParser_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"zero length", []byte{0, DescriptorTypeEndpoint}},
		{"length one", []byte{1, DescriptorTypeInterface}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := sim.NewConfig(1).
				Interface(0, 0, 0xFF, 0, 0, 2).
				Endpoint(0x81, 0x02, 64, 0).
				Raw(tt.raw...).
				Endpoint(0x02, 0x02, 64, 0).
				Bytes()

			var rec recordingXtracter
			p := NewConfigDescParser(&rec, InterfaceFilter{})
			feed(p, buf, 5)

			if len(rec.eps) != 1 || rec.eps[0].addr != 0x81 {
				t.Errorf("endpoints = %+v, want only 0x81", rec.eps)
			}
			if !errors.Is(p.Err(), pkg.ErrDescriptorTooShort) {
				t.Errorf("Err() = %v, want ErrDescriptorTooShort", p.Err())
			}

			p.Reset()
			if p.Err() != nil {
				t.Errorf("Err() after Reset = %v", p.Err())
			}
		})
	}
}

func TestConfigDescParser_OddLengths(t *testing.T) {
	buf := sim.NewConfig(1).
		// Interface descriptor cut short: skipped and not matched.
		Raw(5, DescriptorTypeInterface, 0, 0, 1).
		Endpoint(0x81, 0x02, 64, 0).
		Interface(1, 0, 0xFF, 0, 0, 1).
		// Audio style endpoint with two trailing bytes.
		Raw(9, DescriptorTypeEndpoint, 0x83, 0x01, 0x40, 0x00, 1, 0xAA, 0xBB).
		// Unknown descriptor type.
		Raw(4, 0x24, 0x01, 0x02).
		Endpoint(0x04, 0x02, 64, 0).
		Bytes()

	var rec recordingXtracter
	p := NewConfigDescParser(&rec, InterfaceFilter{})
	feed(p, buf, 3)

	want := []extracted{
		{conf: 1, iface: 1, addr: 0x83, maxPkt: 64},
		{conf: 1, iface: 1, addr: 0x04, maxPkt: 64},
	}
	if !reflect.DeepEqual(rec.eps, want) {
		t.Errorf("endpoints = %+v, want %+v", rec.eps, want)
	}
	if p.Err() != nil {
		t.Errorf("Err() = %v", p.Err())
	}
}

// =============================================================================
// Primitive Parser Tests
// =============================================================================

func TestMultiByteValueParser(t *testing.T) {
	var dst [4]byte
	var p MultiByteValueParser
	p.Initialize(dst[:])

	in := []byte{1, 2, 3}
	if p.Parse(&in) {
		t.Fatal("Parse() = true with 3 of 4 bytes")
	}
	if len(in) != 0 {
		t.Errorf("input left = %d, want 0", len(in))
	}

	in = []byte{4, 5, 6}
	if !p.Parse(&in) {
		t.Fatal("Parse() = false with all bytes")
	}
	if dst != [4]byte{1, 2, 3, 4} {
		t.Errorf("value = %v, want [1 2 3 4]", dst)
	}
	if len(in) != 2 || in[0] != 5 {
		t.Errorf("input left = %v, want [5 6]", in)
	}

	var empty MultiByteValueParser
	if empty.Parse(&in) {
		t.Error("uninitialized Parse() = true")
	}
}

func TestByteSkipper(t *testing.T) {
	var s ByteSkipper

	in := []byte{1, 2}
	if s.Skip(&in, 5) {
		t.Fatal("Skip() = true after 2 of 5 bytes")
	}
	in = []byte{3, 4, 5, 6}
	// The pending count wins over the new argument.
	if !s.Skip(&in, 100) {
		t.Fatal("Skip() = false after 5 bytes")
	}
	if len(in) != 1 || in[0] != 6 {
		t.Errorf("input left = %v, want [6]", in)
	}
}

func TestListParser(t *testing.T) {
	tests := []struct {
		name    string
		lenSize int
		valSize int
		mode    ListMode
		input   []byte
		want    [][]byte
	}{
		{
			name:    "array of uint16",
			lenSize: 4, valSize: 2, mode: ListArray,
			input: []byte{3, 0, 0, 0, 0x01, 0x10, 0x02, 0x10, 0x03, 0x10},
			want:  [][]byte{{0x01, 0x10}, {0x02, 0x10}, {0x03, 0x10}},
		},
		{
			name:    "empty array",
			lenSize: 2, valSize: 4, mode: ListArray,
			input: []byte{0, 0},
			want:  nil,
		},
		{
			name:    "range",
			lenSize: 4, valSize: 1, mode: ListRange,
			input: []byte{0, 100, 5},
			want:  [][]byte{{0}, {100}, {5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for chunk := 1; chunk <= len(tt.input); chunk++ {
				var l ListParser
				l.Initialize(tt.lenSize, tt.valSize, make([]byte, 8), tt.mode)

				var got [][]byte
				done := false
				for off := 0; off < len(tt.input); off += chunk {
					end := off + chunk
					if end > len(tt.input) {
						end = len(tt.input)
					}
					in := tt.input[off:end]
					done = l.Parse(&in, func(elem []byte, index uint32) {
						if int(index) != len(got) {
							t.Errorf("index = %d, want %d", index, len(got))
						}
						got = append(got, append([]byte(nil), elem...))
					})
				}
				if !done {
					t.Fatalf("chunk %d: Parse() never completed", chunk)
				}
				if !reflect.DeepEqual(got, tt.want) {
					t.Fatalf("chunk %d: elements = %v, want %v", chunk, got, tt.want)
				}
				if l.Len() != uint32(len(tt.want)) {
					t.Errorf("Len() = %d, want %d", l.Len(), len(tt.want))
				}
			}
		})
	}
}
