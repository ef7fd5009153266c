//go:build profile

package prof

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	rpprof "runtime/pprof"
	"sync"

	"github.com/ardnew/usbhost/pkg"
)

// Profiling errors.
var (
	// ErrCPUProfileActive indicates CPU profiling is already active.
	ErrCPUProfileActive = errors.New("cpu profile already active")

	// ErrSessionStopped indicates Stop was called twice.
	ErrSessionStopped = errors.New("profiling session stopped")
)

// Enabled reports whether the package was built with the "profile" tag.
const Enabled = true

var (
	// cpuMutex protects cpuActive.
	cpuMutex  sync.Mutex
	cpuActive bool
)

// Options selects what a Session records. Empty paths are skipped.
type Options struct {
	CPU   string // CPU profile, written while the session runs
	Heap  string // Heap snapshot, written by Stop
	Block string // Block profile, written by Stop; enables block sampling
	HTTP  string // Listen address for /debug/pprof/, e.g. "localhost:6060"
}

// Session is a running set of profiles.
type Session struct {
	opts    Options
	cpuFile *os.File
	srv     *http.Server
	stopped bool
}

// Start begins a profiling session.
func Start(opts Options) (*Session, error) {
	s := &Session{opts: opts}

	if opts.CPU != "" {
		if err := s.startCPU(opts.CPU); err != nil {
			return nil, err
		}
	}

	if opts.Block != "" {
		runtime.SetBlockProfileRate(1)
	}

	if opts.HTTP != "" {
		if err := s.serve(opts.HTTP); err != nil {
			s.stopCPU()
			return nil, err
		}
	}

	pkg.LogDebug(pkg.ComponentHost, "profiling started",
		"cpu", opts.CPU,
		"heap", opts.Heap,
		"block", opts.Block,
		"http", opts.HTTP)
	return s, nil
}

func (s *Session) startCPU(path string) error {
	cpuMutex.Lock()
	defer cpuMutex.Unlock()

	if cpuActive {
		return ErrCPUProfileActive
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := rpprof.StartCPUProfile(f); err != nil {
		f.Close()
		return err
	}

	s.cpuFile = f
	cpuActive = true
	return nil
}

func (s *Session) stopCPU() error {
	if s.cpuFile == nil {
		return nil
	}

	cpuMutex.Lock()
	defer cpuMutex.Unlock()

	rpprof.StopCPUProfile()
	cpuActive = false

	err := s.cpuFile.Close()
	s.cpuFile = nil
	return err
}

func (s *Session) serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	s.srv = &http.Server{Handler: mux}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			pkg.LogWarn(pkg.ComponentHost, "pprof server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the address of the pprof HTTP server, or "".
func (s *Session) Addr() string {
	if s == nil || s.srv == nil {
		return ""
	}
	return s.opts.HTTP
}

// Stop ends the session and writes the snapshot profiles. The first error
// is returned; later profiles are still attempted.
func (s *Session) Stop() error {
	if s == nil {
		return nil
	}
	if s.stopped {
		return ErrSessionStopped
	}
	s.stopped = true

	errs := []error{s.stopCPU()}
	if s.opts.Heap != "" {
		runtime.GC()
		errs = append(errs, writeProfile("heap", s.opts.Heap))
	}
	if s.opts.Block != "" {
		errs = append(errs, writeProfile("block", s.opts.Block))
		runtime.SetBlockProfileRate(0)
	}
	if s.srv != nil {
		errs = append(errs, s.srv.Close())
	}
	return errors.Join(errs...)
}

func writeProfile(name, path string) error {
	p := rpprof.Lookup(name)
	if p == nil {
		return errors.New("unknown profile " + name)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.WriteTo(f, 0); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Do runs fn with the pprof label loop=name.
func Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	var err error
	rpprof.Do(ctx, rpprof.Labels("loop", name), func(ctx context.Context) {
		err = fn(ctx)
	})
	return err
}
