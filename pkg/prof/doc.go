// Package prof profiles programs built on the USB host stack.
//
// It is conditionally compiled using the "profile" build tag:
//
//	go build -tags profile
//	go test -tags profile
//
// Without the tag every function is a no-op, so profiling hooks can stay in
// the example programs at no cost.
//
// # Sessions
//
// A Session collects the profiles selected in Options and writes them when
// stopped:
//
//	s, err := prof.Start(prof.Options{CPU: "cpu.prof", Heap: "heap.prof"})
//	if err != nil {
//		return err
//	}
//	defer s.Stop()
//
// Only one session may profile the CPU at a time; a second Start asking for
// a CPU profile returns [ErrCPUProfileActive].
//
// # Labels
//
// The host stack runs on a single goroutine that busy-waits inside
// transfers. Do runs a function with a "loop" pprof label so the samples of
// the host loop can be told apart from input and I/O goroutines:
//
//	g.Go(func() error {
//		return prof.Do(ctx, "host", loop)
//	})
//
// # HTTP Profiling
//
// Options.HTTP starts a server exposing the [net/http/pprof] handlers for
// the lifetime of the session.
package prof
