package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	x11SocketDir = "/tmp/.X11-unix"
	xvfbDepth    = 24
	xvfbReady    = 5 * time.Second
)

// xvfbArgs builds the Xvfb command line for one screen of width x height.
func xvfbArgs(display string, width, height int) []string {
	screen := fmt.Sprintf("%dx%dx%d", width, height, xvfbDepth)
	return []string{display, "-screen", "0", screen, "-ac", "-nolisten", "tcp"}
}

// displaySocket maps ":99" or ":99.0" to the X11 unix socket Xvfb creates.
func displaySocket(display string) (string, error) {
	num, ok := strings.CutPrefix(display, ":")
	if !ok {
		return "", fmt.Errorf("display %q: want :N", display)
	}
	num, _, _ = strings.Cut(num, ".")
	if _, err := strconv.Atoi(num); err != nil {
		return "", fmt.Errorf("display %q: %w", display, err)
	}
	return filepath.Join(x11SocketDir, "X"+num), nil
}

// startXvfb launches the virtual display used by headful mode and waits
// until it accepts connections.
func (m *Manager) startXvfb(ctx context.Context) error {
	if m.xvfb != nil {
		return nil
	}
	display := m.cfg.XvfbDisplay
	socket, err := displaySocket(display)
	if err != nil {
		return err
	}

	cmd := exec.Command("Xvfb", xvfbArgs(display, m.cfg.Width, m.cfg.Height)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	m.xvfb = cmd

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	if err := waitForSocket(ctx, socket, exited); err != nil {
		m.stopXvfb()
		return err
	}
	m.cfg.Logger.Info("browser: xvfb started",
		"display", display, "pid", cmd.Process.Pid,
		"screen", fmt.Sprintf("%dx%d", m.cfg.Width, m.cfg.Height))
	return nil
}

// waitForSocket polls for the display socket. It gives up when the server
// exits first or after xvfbReady.
func waitForSocket(ctx context.Context, socket string, exited <-chan error) error {
	ctx, cancel := context.WithTimeout(ctx, xvfbReady)
	defer cancel()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if _, err := os.Stat(socket); err == nil {
			return nil
		}
		select {
		case err := <-exited:
			return fmt.Errorf("xvfb exited before ready: %v", err)
		case <-ctx.Done():
			return fmt.Errorf("xvfb not ready on %s: %w", socket, ctx.Err())
		case <-tick.C:
		}
	}
}

func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if m.xvfb.Process != nil {
		// The reaper goroutine started with the process collects it.
		m.xvfb.Process.Kill()
	}
	m.cfg.Logger.Info("browser: xvfb stopped")
	m.xvfb = nil
}
