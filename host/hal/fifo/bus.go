//go:build unix

package fifo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ardnew/usbhost/pkg"
)

// FIFO names within a bus directory.
const (
	fifoHostToDevice = "host_to_device"
	fifoDeviceToHost = "device_to_host"
	fifoConnection   = "connection"
)

// dialPoll is how often Dial checks for the device's FIFOs.
const dialPoll = 50 * time.Millisecond

// Link is one end of a FIFO bus. Read and Write carry tokens and replies;
// Events carries connection signals from device to host.
type Link struct {
	dir    string
	rx     *os.File
	tx     *os.File
	events *os.File
	owner  bool
}

// Listen creates the bus FIFOs in dir and opens the device end. It blocks
// until a host dials the same directory.
func Listen(dir string) (*Link, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create bus directory: %w", err)
	}
	for _, name := range []string{fifoHostToDevice, fifoDeviceToHost, fifoConnection} {
		path := filepath.Join(dir, name)
		if err := syscall.Mkfifo(path, 0o600); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
	}

	l := &Link{dir: dir, owner: true}
	var err error
	if l.rx, err = os.OpenFile(filepath.Join(dir, fifoHostToDevice), os.O_RDONLY, 0); err != nil {
		return nil, l.fail(err)
	}
	if l.tx, err = os.OpenFile(filepath.Join(dir, fifoDeviceToHost), os.O_WRONLY, 0); err != nil {
		return nil, l.fail(err)
	}
	if l.events, err = os.OpenFile(filepath.Join(dir, fifoConnection), os.O_WRONLY, 0); err != nil {
		return nil, l.fail(err)
	}
	pkg.LogDebug(pkg.ComponentHAL, "bus listening", "dir", dir)
	return l, nil
}

// Dial waits for a device to create its FIFOs in dir and opens the host
// end.
func Dial(ctx context.Context, dir string) (*Link, error) {
	t := time.NewTicker(dialPoll)
	defer t.Stop()
	for !exists(dir) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	l := &Link{dir: dir}
	var err error
	if l.tx, err = os.OpenFile(filepath.Join(dir, fifoHostToDevice), os.O_WRONLY, 0); err != nil {
		return nil, l.fail(err)
	}
	if l.rx, err = os.OpenFile(filepath.Join(dir, fifoDeviceToHost), os.O_RDONLY, 0); err != nil {
		return nil, l.fail(err)
	}
	if l.events, err = os.OpenFile(filepath.Join(dir, fifoConnection), os.O_RDONLY, 0); err != nil {
		return nil, l.fail(err)
	}
	pkg.LogDebug(pkg.ComponentHAL, "bus connected", "dir", dir)
	return l, nil
}

func exists(dir string) bool {
	for _, name := range []string{fifoHostToDevice, fifoDeviceToHost, fifoConnection} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// Read reads from the incoming bus FIFO.
func (l *Link) Read(p []byte) (int, error) {
	return l.rx.Read(p)
}

// Write writes to the outgoing bus FIFO.
func (l *Link) Write(p []byte) (int, error) {
	return l.tx.Write(p)
}

// SetReadDeadline sets the deadline of the incoming bus FIFO.
func (l *Link) SetReadDeadline(t time.Time) error {
	return l.rx.SetReadDeadline(t)
}

// Events returns the connection FIFO.
func (l *Link) Events() *os.File {
	return l.events
}

// Dir returns the bus directory.
func (l *Link) Dir() string {
	return l.dir
}

// Close closes the FIFOs. The device end also removes them.
func (l *Link) Close() error {
	var errs []error
	// Remove first, so a host that sees the FIFOs close cannot dial them
	// again.
	if l.owner {
		for _, name := range []string{fifoHostToDevice, fifoDeviceToHost, fifoConnection} {
			if err := os.Remove(filepath.Join(l.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}
	for _, f := range []*os.File{l.rx, l.tx, l.events} {
		if f != nil {
			errs = append(errs, f.Close())
		}
	}
	return errors.Join(errs...)
}

func (l *Link) fail(err error) error {
	_ = l.Close()
	return fmt.Errorf("open bus: %w", err)
}
