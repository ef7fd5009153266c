// Package sim provides a simulated host controller implementing
// [hal.HostHAL], together with a set of simulated USB functions.
//
// It is designed for tests and examples: the whole bus runs in-process and
// in virtual time, so enumeration, NAK polling and timeouts can be
// exercised deterministically without hardware.
//
// # Controller
//
// [Controller] models a pipe-based controller with [hal.NumPipes] pipes.
// A token sent with PipeSend is answered immediately by the attached
// [Function]:
//
//   - ACK sets the completion flag read by IsTransferComplete
//   - NAK sets the NAK flag; AckNAKReceived retries the token
//   - STALL, a wrong address or a missing device set no flag at all, so
//     the host stack runs into its transfer timeout
//
// Every call to Millis advances the virtual clock by the configured step
// (one millisecond by default). Delay advances it by the requested amount.
//
// # Functions
//
// [Device] implements the standard endpoint 0 requests (SET_ADDRESS,
// SET_CONFIGURATION, GET_DESCRIPTOR and friends) and forwards everything
// else to hooks. SET_ADDRESS takes effect after its status stage. The
// ready-made models build on it:
//
//   - [Keyboard] and [Mouse]: boot protocol HID devices with an interrupt
//     IN endpoint that NAKs until a report is queued
//   - [Phone]: an Android device answering the accessory protocol requests
//   - [Accessory]: an Android device in accessory mode whose bulk
//     endpoints echo what the host writes; [NewAccessoryEndpoints] picks
//     the endpoint addresses
//
// Data pipes only answer tokens of the direction they were allocated
// with, so a transfer sent on the wrong pipe times out as on hardware.
//
// # Usage
//
//	ctrl := sim.NewController()
//	h := host.New(ctrl)
//
//	kbd := sim.NewKeyboard()
//	ctrl.Attach(kbd, false)
//
//	for h.TaskState() != host.StateRunning {
//	    h.Task()
//	}
//	kbd.Type("hello")
//
// Controller and functions are not safe for concurrent use; drive them
// from the goroutine calling host.Task.
package sim
