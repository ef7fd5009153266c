// Package hal defines the hardware abstraction layer of a pipe-based USB
// host controller.
//
// The host stack implements every piece of USB protocol logic (control
// transfer stages, NAK budgets, timeouts, enumeration). The HAL only exposes
// what a controller such as the SAM3X UOTGHS offers in hardware: a small,
// fixed set of pipes that each bind to one device endpoint, FIFOs, token
// dispatch, and completion/NAK flags.
//
// # Interface Overview
//
// The [HostHAL] interface groups:
//   - Bus control: Init, BusReset, VBUSState, LowSpeed, start-of-frame and
//     reset-sent flags
//   - Pipe management: Pipe0Alloc, PipeAlloc, PipeFree
//   - Packet I/O: PipeWrite, PipeRead, PipeSend, ByteCount
//   - Status flags: IsTransferComplete, IsNAKReceived, AckNAKReceived,
//     FreezePipe
//   - Time: the embedded [Clock]
//
// # Execution Model
//
// The host stack is single-threaded and cooperative. It calls the HAL from
// one control loop and busy-waits on [Clock.Millis] while a token is in
// flight, so implementations need no locking and must never block inside
// status queries.
//
// # Implementing a HAL
//
// To implement a HAL for a new controller:
//  1. Create a type that implements all [HostHAL] methods
//  2. Map pipe handles 1:1 to hardware pipes; keep pipe 0 for control
//  3. Return 0 from PipeAlloc when no pipe is free
//  4. Report VBUS loss promptly; the stack aborts pending transfers on it
//
// A software controller for tests and examples is available in
// [github.com/ardnew/usbhost/host/hal/sim]. Package
// [github.com/ardnew/usbhost/host/hal/fifo] carries the same token traffic
// over a byte stream, such as named pipes or a serial link to a bridge.
package hal
