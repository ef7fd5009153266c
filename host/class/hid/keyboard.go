package hid

import "github.com/ardnew/usbhost/pkg"

// KeyboardReportSize is the size of a boot keyboard report in bytes.
const KeyboardReportSize = 8

// KeyboardHandler receives key events from a KeyboardParser.
type KeyboardHandler interface {
	// OnKeyDown is called for every key that appears in a report.
	OnKeyDown(mod, key uint8)

	// OnKeyUp is called for every key that disappears from a report. mod
	// is the modifier state of the report the key was last seen in.
	OnKeyUp(mod, key uint8)

	// OnControlKeysChanged is called when the modifier byte changes.
	OnControlKeysChanged(before, after uint8)
}

// KeyboardParser diffs consecutive boot keyboard reports into key edges.
//
// It also tracks the locking keys: pressing Num Lock, Caps Lock or Scroll
// Lock toggles the matching LED bit, and the new LED state is written back
// to the keyboard with SET_REPORT.
type KeyboardParser struct {
	handler KeyboardHandler
	prev    [KeyboardReportSize]byte
	leds    uint8
}

// Ensure KeyboardParser implements ReportParser.
var _ ReportParser = (*KeyboardParser)(nil)

// NewKeyboardParser returns a parser reporting to h.
func NewKeyboardParser(h KeyboardHandler) *KeyboardParser {
	return &KeyboardParser{handler: h}
}

// LockingKeys returns the LED bits (LEDNumLock, LEDCapsLock,
// LEDScrollLock) of the locking keys.
func (p *KeyboardParser) LockingKeys() uint8 {
	return p.leds
}

// Parse implements ReportParser. Short reports and ErrorRollOver reports
// are ignored.
func (p *KeyboardParser) Parse(d *HID, isReportID bool, buf []byte) {
	if isReportID && len(buf) > 0 {
		buf = buf[1:]
	}
	if len(buf) < KeyboardReportSize {
		return
	}
	if buf[2] == KeyErrorRollOver {
		return
	}

	var cur [KeyboardReportSize]byte
	copy(cur[:], buf)

	if cur[0] != p.prev[0] && p.handler != nil {
		p.handler.OnControlKeysChanged(p.prev[0], cur[0])
	}

	for i := 2; i < KeyboardReportSize; i++ {
		if key := cur[i]; key > KeyErrorRollOver && !containsKey(p.prev[2:], key) {
			if err := p.HandleLockingKeys(d, key); err != nil {
				pkg.LogDebug(pkg.ComponentHID, "led report failed", "error", err)
			}
			if p.handler != nil {
				p.handler.OnKeyDown(cur[0], key)
			}
		}
		if key := p.prev[i]; key > KeyErrorRollOver && !containsKey(cur[2:], key) {
			if p.handler != nil {
				p.handler.OnKeyUp(p.prev[0], key)
			}
		}
	}

	p.prev = cur
}

func containsKey(keys []byte, key byte) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// HandleLockingKeys toggles the LED bit of a locking key. When the LED
// state changed and d is non-nil, the new state is sent to the keyboard as
// output report 0.
func (p *KeyboardParser) HandleLockingKeys(d *HID, key uint8) error {
	old := p.leds

	switch key {
	case KeyNumLock:
		p.leds ^= LEDNumLock
	case KeyCapsLock:
		p.leds ^= LEDCapsLock
	case KeyScrollLock:
		p.leds ^= LEDScrollLock
	}

	if old == p.leds || d == nil || d.host == nil || d.addr == 0 {
		return nil
	}
	leds := [1]byte{p.leds}
	return d.SetReport(0, d.iface, ReportTypeOutput, 0, leds[:])
}

var (
	numKeys   = [10]byte{'!', '@', '#', '$', '%', '^', '&', '*', '(', ')'}
	symKeysUp = [12]byte{'_', '+', '{', '}', '|', '~', ':', '"', '~', '<', '>', '?'}
	symKeysLo = [12]byte{'-', '=', '[', ']', '\\', '#', ';', '\'', '`', ',', '.', '/'}
	padKeys   = [5]byte{'/', '*', '-', '+', '\r'}
)

// OemToASCII translates a key usage to ASCII using the US layout, the
// shift modifiers and the Caps Lock and Num Lock state. It returns 0 for
// keys without a printable translation.
func (p *KeyboardParser) OemToASCII(mod, key uint8) byte {
	shift := mod&(ModLeftShift|ModRightShift) != 0

	switch {
	case key >= KeyA && key <= KeyZ:
		if shift != (p.leds&LEDCapsLock != 0) {
			return key - KeyA + 'A'
		}
		return key - KeyA + 'a'

	case key >= Key1 && key <= Key9:
		if shift {
			return numKeys[key-Key1]
		}
		return key - Key1 + '1'

	case key >= KeyPad1 && key <= KeyPad9:
		if p.leds&LEDNumLock != 0 {
			return key - KeyPad1 + '1'
		}
		return 0

	case key >= KeyMinus && key <= KeySlash:
		if shift {
			return symKeysUp[key-KeyMinus]
		}
		return symKeysLo[key-KeyMinus]

	case key >= KeyPadSlash && key <= KeyPadEnter:
		return padKeys[key-KeyPadSlash]
	}

	switch key {
	case KeySpace:
		return ' '
	case KeyEnter:
		return '\r'
	case KeyTab:
		return '\t'
	case Key0:
		if shift {
			return numKeys[9]
		}
		return '0'
	case KeyPad0:
		if p.leds&LEDNumLock != 0 {
			return '0'
		}
	case KeyPadDot:
		if p.leds&LEDNumLock != 0 {
			return '.'
		}
	}
	return 0
}

// KeyboardFuncs adapts plain functions to KeyboardHandler. Nil fields are
// skipped.
type KeyboardFuncs struct {
	KeyDown            func(mod, key uint8)
	KeyUp              func(mod, key uint8)
	ControlKeysChanged func(before, after uint8)
}

// Ensure KeyboardFuncs implements KeyboardHandler.
var _ KeyboardHandler = KeyboardFuncs{}

func (f KeyboardFuncs) OnKeyDown(mod, key uint8) {
	if f.KeyDown != nil {
		f.KeyDown(mod, key)
	}
}

func (f KeyboardFuncs) OnKeyUp(mod, key uint8) {
	if f.KeyUp != nil {
		f.KeyUp(mod, key)
	}
}

func (f KeyboardFuncs) OnControlKeysChanged(before, after uint8) {
	if f.ControlKeysChanged != nil {
		f.ControlKeysChanged(before, after)
	}
}
