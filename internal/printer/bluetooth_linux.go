//go:build linux

package printer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RFCOMMConnection manages an RFCOMM connection process (Linux-specific)
type RFCOMMConnection struct {
	DevicePath string
	MAC        string
	cmd        *exec.Cmd
	cancel     context.CancelFunc
	mu         sync.Mutex
}

// NewBluetoothDiscovery returns the BlueZ discoverer, which is also the
// notifier for connect and disconnect signals.
func NewBluetoothDiscovery(protocols ProtocolMap, _ time.Duration, logger *zap.Logger) (Discoverer, Notifier, io.Closer, error) {
	bz, err := NewBlueZ(protocols, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return bz, bz, bz, nil
}

// FindAvailableRFCOMMDevice finds an unused /dev/rfcommN device number
func FindAvailableRFCOMMDevice() (string, int, error) {
	for i := 0; i < 10; i++ {
		devPath := fmt.Sprintf("/dev/rfcomm%d", i)
		// Check if device is currently bound
		out, _ := exec.Command("rfcomm", "show", devPath).Output()
		if len(out) == 0 || strings.Contains(string(out), "No such device") {
			return devPath, i, nil
		}
	}
	return "", -1, fmt.Errorf("no available RFCOMM device slots")
}

// CheckRFCOMMInstalled verifies rfcomm binary is available
func CheckRFCOMMInstalled() error {
	_, err := exec.LookPath("rfcomm")
	if err != nil {
		return fmt.Errorf("rfcomm not found - install with: sudo apt install bluez")
	}
	return nil
}

// CheckPrivilegeHelper checks which privilege escalation method is available
func CheckPrivilegeHelper() string {
	// pkexec works from a desktop session
	if _, err := exec.LookPath("pkexec"); err == nil {
		return "pkexec"
	}
	if _, err := exec.LookPath("sudo"); err == nil {
		return "sudo"
	}
	return ""
}

// EstablishRFCOMM runs rfcomm connect in the background and returns once
// the device node is ready
func EstablishRFCOMM(ctx context.Context, mac string, channel int, timeout time.Duration, logger *zap.Logger) (*RFCOMMConnection, error) {
	if err := CheckRFCOMMInstalled(); err != nil {
		return nil, err
	}

	devPath, devNum, err := FindAvailableRFCOMMDevice()
	if err != nil {
		return nil, err
	}

	helper := CheckPrivilegeHelper()
	if helper == "" {
		return nil, ErrPrivilegeRequired
	}

	procCtx, cancel := context.WithCancel(context.Background())
	conn := &RFCOMMConnection{
		DevicePath: devPath,
		MAC:        mac,
		cancel:     cancel,
	}

	rfcommArgs := []string{"connect", fmt.Sprintf("/dev/rfcomm%d", devNum), mac, fmt.Sprintf("%d", channel)}

	var cmd *exec.Cmd
	if helper == "pkexec" {
		cmd = exec.CommandContext(procCtx, "pkexec", append([]string{"rfcomm"}, rfcommArgs...)...)
	} else {
		cmd = exec.CommandContext(procCtx, "sudo", append([]string{"-n", "rfcomm"}, rfcommArgs...)...)
	}
	conn.cmd = cmd

	log := logger.With(zap.String("mac", mac), zap.String("device", devPath))

	stderr, _ := cmd.StderrPipe()
	stdout, _ := cmd.StdoutPipe()

	log.Info("Binding RFCOMM channel", zap.Int("channel", channel), zap.String("helper", helper))

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: failed to start rfcomm: %v", ErrRFCOMMFailed, err)
	}

	go relayOutput(stdout, log)
	go relayOutput(stderr, log)

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			conn.Close()
			return nil, ErrConnectionCanceled
		default:
		}

		if _, err := os.Stat(devPath); err == nil {
			// Device exists, give it a moment to be ready
			time.Sleep(500 * time.Millisecond)
			log.Info("RFCOMM device ready")
			return conn, nil
		}
		time.Sleep(500 * time.Millisecond)
	}

	// Timeout - kill the process
	conn.Close()
	return nil, fmt.Errorf("%w: timeout waiting for %s to appear", ErrRFCOMMFailed, devPath)
}

func relayOutput(r io.Reader, log *zap.Logger) {
	if r == nil {
		return
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Debug("rfcomm", zap.String("output", scanner.Text()))
	}
}

// Close terminates the RFCOMM connection
func (c *RFCOMMConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	// Also explicitly release the device
	if c.DevicePath != "" {
		// Try to release - may need privileges
		helper := CheckPrivilegeHelper()
		if helper == "pkexec" {
			exec.Command("pkexec", "rfcomm", "release", c.DevicePath).Run()
		} else if helper == "sudo" {
			exec.Command("sudo", "-n", "rfcomm", "release", c.DevicePath).Run()
		}
	}

	if c.cmd != nil && c.cmd.Process != nil {
		c.cmd.Process.Kill()
		c.cmd.Wait()
		c.cmd = nil
	}

	return nil
}
