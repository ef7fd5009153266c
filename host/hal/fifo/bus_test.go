//go:build unix

package fifo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/host/hal/sim"
)

// =============================================================================
// Named Pipe Bus Tests
// =============================================================================

func TestLink_ListenDial(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bus")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var dev, hostLink *Link
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		dev, err = Listen(dir)
		return err
	})
	g.Go(func() (err error) {
		hostLink, err = Dial(gctx, dir)
		return err
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("connect error = %v", err)
	}

	ctrl := NewController(hostLink)
	srv := NewServer(dev, dev.Events())

	run, rctx := errgroup.WithContext(ctx)
	run.Go(func() error { return ctrl.Watch(rctx, hostLink.Events()) })
	run.Go(func() error { return srv.Serve(rctx) })

	fn := &scripted{hs: sim.ACK, in: []byte{0x12, 0x01}}
	if err := srv.Attach(fn, false); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	waitVBUS(t, ctrl, hal.VBUSConnected)

	ctrl.BusReset()
	if !ctrl.IsResetSent() {
		t.Fatal("bus reset not acknowledged")
	}
	if err := ctrl.Pipe0Alloc(0, 64); err != nil {
		t.Fatalf("Pipe0Alloc() error = %v", err)
	}
	ctrl.PipeSend(0, hal.TokenIn)
	if !ctrl.IsTransferComplete(0, hal.TokenIn) || ctrl.ByteCount(0) != 2 {
		t.Fatalf("IN: complete=%t count=%d", ctrl.IsTransferComplete(0, hal.TokenIn), ctrl.ByteCount(0))
	}

	// Closing the host end ends Serve; closing the device end removes
	// the FIFOs and ends Watch.
	if err := hostLink.Close(); err != nil {
		t.Errorf("host Close() error = %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Errorf("device Close() error = %v", err)
	}
	cancel()
	_ = run.Wait()

	if _, err := os.Stat(filepath.Join(dir, fifoHostToDevice)); !os.IsNotExist(err) {
		t.Errorf("FIFO left behind: %v", err)
	}
}

func TestDial_Canceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := Dial(ctx, t.TempDir()); err != context.DeadlineExceeded {
		t.Errorf("Dial() error = %v, want DeadlineExceeded", err)
	}
}
