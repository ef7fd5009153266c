package usbid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `# Test USB IDs
1234  Test Vendor
	5678  Test Product
		00  Test Interface
abcd  Other Vendor
	0001  Thing
C 03  Human Interface Device
	01  Boot Interface Subclass
		01  Keyboard
		02  Mouse
C 08  Mass Storage
AT 0001  Not a vendor
	0002  Not a product
`

// =============================================================================
// Parse Tests
// =============================================================================

func TestParse(t *testing.T) {
	db := NewWithPaths(nil)
	if err := db.Parse(strings.NewReader(sample)); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"vendor", db.Vendor(0x1234), "Test Vendor"},
		{"second vendor", db.Vendor(0xABCD), "Other Vendor"},
		{"product", db.Product(0x1234, 0x5678), "Test Product"},
		{"product of other vendor", db.Product(0xABCD, 0x0001), "Thing"},
		{"unknown product", db.Product(0x1234, 0x0001), ""},
		{"unknown vendor", db.Vendor(0x0001), ""},
		{"class", db.Class(0x08, 0x06, 0x50), "Mass Storage"},
		{"subclass", db.Class(0x03, 0x01, 0x00), "Boot Interface Subclass"},
		{"protocol", db.Class(0x03, 0x01, 0x02), "Mouse"},
		{"unknown class", db.Class(0x0E, 0, 0), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}

	// Lines below a non-vendor table are not products.
	if v, p := db.Len(); v != 2 || p != 2 {
		t.Errorf("Len() = %d, %d, want 2, 2", v, p)
	}
}

func TestDescribe(t *testing.T) {
	db := NewWithPaths(nil)
	db.Parse(strings.NewReader(sample))

	tests := []struct {
		vid, pid uint16
		want     string
	}{
		{0x1234, 0x5678, "1234:5678 Test Vendor Test Product"},
		{0x1234, 0x9999, "1234:9999 Test Vendor"},
		{0x0001, 0x0002, "0001:0002"},
	}
	for _, tt := range tests {
		if got := db.Describe(tt.vid, tt.pid); got != tt.want {
			t.Errorf("Describe(%04x, %04x) = %q, want %q", tt.vid, tt.pid, got, tt.want)
		}
	}
}

// =============================================================================
// Load Tests
// =============================================================================

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usb.ids")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	db := NewWithPaths([]string{"/nonexistent/usb.ids", path})
	if !db.Load() {
		t.Fatal("Load() = false")
	}
	if db.Source() != path {
		t.Errorf("Source() = %q, want %q", db.Source(), path)
	}

	v1, p1 := db.Len()
	if !db.Load() {
		t.Error("second Load() = false")
	}
	if v2, p2 := db.Len(); v1 != v2 || p1 != p2 {
		t.Errorf("second Load() changed the database: %d/%d -> %d/%d", v1, p1, v2, p2)
	}
}

func TestLoad_Builtin(t *testing.T) {
	db := NewWithPaths([]string{"/nonexistent/usb.ids"})
	if db.Load() {
		t.Fatal("Load() = true without a database file")
	}
	if db.Source() != "builtin" {
		t.Errorf("Source() = %q, want builtin", db.Source())
	}

	if got := db.Product(0x18D1, 0x2D00); got != "Android-powered Device in accessory mode" {
		t.Errorf("accessory product = %q", got)
	}
	if got := db.Product(0x16C0, 0x27DB); got != "Keyboard" {
		t.Errorf("keyboard product = %q", got)
	}
	if got := db.Class(0x03, 0x01, 0x01); got != "Keyboard" {
		t.Errorf("boot keyboard class = %q", got)
	}
}
