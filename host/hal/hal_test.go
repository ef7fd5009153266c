package hal

import (
	"testing"
)

// =============================================================================
// Speed Tests
// =============================================================================

func TestSpeed_String(t *testing.T) {
	tests := []struct {
		speed    Speed
		expected string
	}{
		{SpeedUnknown, "Unknown"},
		{SpeedLow, "Low Speed"},
		{SpeedFull, "Full Speed"},
		{SpeedHigh, "High Speed"},
		{Speed(255), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.speed.String(); got != tt.expected {
				t.Errorf("Speed(%d).String() = %q, want %q", tt.speed, got, tt.expected)
			}
		})
	}
}

// =============================================================================
// SetupPacket Tests
// =============================================================================

func TestParseSetupPacket(t *testing.T) {
	data := []byte{
		0x80,       // RequestType (Device-to-Host, Standard, Device)
		0x06,       // Request (GET_DESCRIPTOR)
		0x00, 0x01, // Value (Device Descriptor)
		0x00, 0x00, // Index
		0x12, 0x00, // Length (18)
	}

	var setup SetupPacket
	if !ParseSetupPacket(data, &setup) {
		t.Fatal("ParseSetupPacket returned false")
	}

	if setup.RequestType != 0x80 {
		t.Errorf("RequestType = 0x%02X, want 0x80", setup.RequestType)
	}
	if setup.Request != 0x06 {
		t.Errorf("Request = 0x%02X, want 0x06", setup.Request)
	}
	if setup.Value != 0x0100 {
		t.Errorf("Value = 0x%04X, want 0x0100", setup.Value)
	}
	if setup.Index != 0x0000 {
		t.Errorf("Index = 0x%04X, want 0x0000", setup.Index)
	}
	if setup.Length != 0x0012 {
		t.Errorf("Length = 0x%04X, want 0x0012", setup.Length)
	}
}

func TestParseSetupPacket_TooShort(t *testing.T) {
	data := make([]byte, SetupPacketSize-1)
	var setup SetupPacket
	if ParseSetupPacket(data, &setup) {
		t.Error("ParseSetupPacket should return false for short data")
	}
}

func TestSetupPacket_MarshalTo(t *testing.T) {
	setup := SetupPacket{
		RequestType: 0x80,
		Request:     0x06,
		Value:       0x0100,
		Index:       0x0409,
		Length:      0x00FF,
	}

	buf := make([]byte, SetupPacketSize)
	n := setup.MarshalTo(buf)

	if n != SetupPacketSize {
		t.Errorf("MarshalTo returned %d, want %d", n, SetupPacketSize)
	}

	expected := []byte{0x80, 0x06, 0x00, 0x01, 0x09, 0x04, 0xFF, 0x00}
	for i, b := range expected {
		if buf[i] != b {
			t.Errorf("buf[%d] = 0x%02X, want 0x%02X", i, buf[i], b)
		}
	}
}

func TestSetupPacket_MarshalTo_TooSmall(t *testing.T) {
	setup := SetupPacket{}
	buf := make([]byte, SetupPacketSize-1)

	n := setup.MarshalTo(buf)
	if n != 0 {
		t.Errorf("MarshalTo to small buffer returned %d, want 0", n)
	}
}

func TestSetupPacket_RoundTrip(t *testing.T) {
	original := SetupPacket{
		RequestType: 0x21,
		Request:     0x09,
		Value:       0x0200,
		Index:       0x0001,
		Length:      0x0008,
	}

	buf := make([]byte, SetupPacketSize)
	original.MarshalTo(buf)

	var parsed SetupPacket
	if !ParseSetupPacket(buf, &parsed) {
		t.Fatal("ParseSetupPacket returned false")
	}

	if parsed != original {
		t.Errorf("round-trip mismatch: got %+v, want %+v", parsed, original)
	}
}

// =============================================================================
// Token Tests
// =============================================================================

func TestToken_String(t *testing.T) {
	tests := []struct {
		tok  Token
		want string
	}{
		{TokenSetup, "SETUP"},
		{TokenIn, "IN"},
		{TokenOut, "OUT"},
		{TokenInHS, "IN-HS"},
		{TokenOutHS, "OUT-HS"},
		{Token(0x55), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.tok.String(); got != tt.want {
				t.Errorf("Token(%#x).String() = %q, want %q", uint8(tt.tok), got, tt.want)
			}
		})
	}
}

func TestToken_IsIn(t *testing.T) {
	in := map[Token]bool{
		TokenSetup: false,
		TokenIn:    true,
		TokenOut:   false,
		TokenInHS:  true,
		TokenOutHS: false,
	}
	for tok, want := range in {
		if got := tok.IsIn(); got != want {
			t.Errorf("%v.IsIn() = %v, want %v", tok, got, want)
		}
	}
}

// =============================================================================
// VBUSState Tests
// =============================================================================

func TestVBUSState_String(t *testing.T) {
	tests := []struct {
		state VBUSState
		want  string
	}{
		{VBUSDisconnected, "disconnected"},
		{VBUSConnected, "connected"},
		{VBUSError, "error"},
		{VBUSState(9), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("VBUSState(%d).String() = %q, want %q", tt.state, got, tt.want)
			}
		})
	}
}

func TestSetupPacket_IsIn(t *testing.T) {
	in := SetupPacket{RequestType: 0x80}
	out := SetupPacket{RequestType: 0x21}
	if !in.IsIn() {
		t.Error("RequestType 0x80 should be IN")
	}
	if out.IsIn() {
		t.Error("RequestType 0x21 should be OUT")
	}
}
