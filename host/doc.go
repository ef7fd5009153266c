// Package host implements a cooperative USB 2.0 host stack for a single
// root port.
//
// It is platform-agnostic and drives hardware through the pipe-level
// [hal.HostHAL] interface defined in the github.com/ardnew/usbhost/host/hal
// package. The stack never spawns goroutines: the application calls
// [Host.Task] from its main loop (or uses [Host.Run]) and every transfer
// busy-waits on the HAL clock.
//
// # Architecture
//
// The stack is organized into several layers:
//
//   - AddressPool hands out bit-packed device addresses and tracks the
//     endpoint table bound to each address
//   - CtrlReq, InTransfer and OutTransfer run transfers token by token
//     with NAK and timeout policies taken from the endpoint record
//   - ConfigDescParser walks configuration descriptor sets in constant
//     memory and hands matching endpoints to a ConfigXtracter
//   - Host runs the attach/reset/configure state machine and offers new
//     devices to registered [DeviceConfig] class drivers
//
// # Errors
//
// Transfer and enumeration failures are reported with the sentinel errors
// of the github.com/ardnew/usbhost/pkg package. Use errors.Is to test for
// them and pkg.Code to obtain the numeric result code.
//
// # Example
//
//	h := host.New(ctrl)
//	kbd := hid.NewBoot(h, hid.ProtocolKeyboard)
//	kbd.SetReportParser(0, hid.NewKeyboardParser(handler))
//	h.RegisterDeviceClass(kbd)
//
//	for {
//	    h.Task()
//	}
//
// A simulated controller with virtual devices for testing is available in
// [github.com/ardnew/usbhost/host/hal/sim].
package host
