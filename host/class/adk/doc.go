// Package adk implements the Android open accessory class driver for the
// USB host stack.
//
// Attaching a phone starts the accessory handshake: the driver reads the
// protocol version, sends the Identity strings and asks the phone to
// restart in accessory mode. The host then stays in StateError with
// pkg.ErrAccessorySwitch until the phone detaches. When it comes back
// with the accessory VID/PID the driver binds its bulk endpoints:
//
//	acc := adk.New(h, adk.Identity{Manufacturer: "usbhost", Model: "demo"})
//	h.RegisterDeviceClass(acc)
//	...
//	if acc.IsReady() {
//		acc.Write([]byte("ping"))
//		n, err := acc.Read(buf)
//	}
package adk
