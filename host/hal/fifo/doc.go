// Package fifo runs the host stack and a simulated function in separate
// processes connected by named pipes.
//
// # Bus Layout
//
// A bus directory holds three FIFOs:
//
//	host_to_device  tokens and bus resets
//	device_to_host  handshakes and IN data
//	connection      connect and disconnect signals
//
// The device process creates the directory with [Listen]; the host process
// opens it with [Dial]. Both block until the other side arrives.
//
// # Messages
//
// Every message is framed as a type byte, a little-endian 16-bit payload
// length and the payload. A token carries the token, device address,
// endpoint number and maximum packet size followed by the SETUP or OUT
// data. The device answers each token with exactly one ACK, NAK, STALL or
// "no handshake" message; an ACK to an IN token carries the packet.
//
// # Usage
//
// Host process:
//
//	link, err := fifo.Dial(ctx, dir)
//	ctrl := fifo.NewController(link)
//	go ctrl.Watch(ctx, link.Events())
//	h := host.New(ctrl)
//
// Device process:
//
//	link, err := fifo.Listen(dir)
//	srv := fifo.NewServer(link, link.Events())
//	go srv.Serve(ctx)
//	srv.Attach(sim.NewKeyboard(), false)
//
// [Controller] and [Server] only need an [io.ReadWriter], so they also
// run over pipes or sockets within one process.
package fifo
