// Package hid implements boot protocol HID class drivers for the USB host
// stack.
//
// A Boot driver binds to the first keyboard or mouse interface it finds,
// selects the boot protocol and polls the interrupt IN endpoint from the
// host's Task loop. Reports are handed to a ReportParser:
//
//	kbd := hid.NewBoot(h, hid.ProtocolKeyboard)
//	kp := hid.NewKeyboardParser(hid.KeyboardFuncs{
//		KeyDown: func(mod, key uint8) { ... },
//	})
//	kbd.SetReportParser(0, kp)
//	h.RegisterDeviceClass(kbd)
//
// KeyboardParser turns reports into key edges, keeps the locking key LEDs
// in sync with the device and translates usages with OemToASCII.
// MouseParser reports button edges and movement.
//
// Several Boot drivers can be registered on one host. A driver that does
// not match the attached device hands it back at the default address, so
// the next driver can enumerate it.
package hid
