//go:build windows

package printer

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/registry"
)

// RFCOMMConnection is a compatibility type for Windows
// On Windows, we don't need to manage RFCOMM - COM ports are created automatically
type RFCOMMConnection struct {
	DevicePath string
	MAC        string
}

// NewBluetoothDiscovery lists Bluetooth COM ports from the registry. Windows
// has no signal for SPP ports coming and going, so notifications come from
// polling.
func NewBluetoothDiscovery(protocols ProtocolMap, pollInterval time.Duration, logger *zap.Logger) (Discoverer, Notifier, io.Closer, error) {
	d := &comPortDiscoverer{protocols: protocols}
	return d, NewPollingNotifier(d, pollInterval, logger), d, nil
}

// comPortDiscoverer reports each Bluetooth COM port as an accessory
// advertising the serial port profile
type comPortDiscoverer struct {
	protocols ProtocolMap
}

// Close is a no-op; the registry key is opened per scan
func (d *comPortDiscoverer) Close() error {
	return nil
}

func (d *comPortDiscoverer) Accessories(ctx context.Context) ([]Accessory, error) {
	ports, err := getBluetoothCOMPorts()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(ports))
	for name := range ports {
		names = append(names, name)
	}
	sort.Strings(names)

	accessories := make([]Accessory, 0, len(names))
	for _, name := range names {
		accessories = append(accessories, Accessory{
			SerialNumber: ports[name],
			Name:         name,
			Protocols:    d.protocols.Translate([]string{SerialPortProfile}),
		})
	}
	return accessories, nil
}

// getBluetoothCOMPorts reads Bluetooth COM port mappings from registry
func getBluetoothCOMPorts() (map[string]string, error) {
	ports := make(map[string]string)

	key, err := registry.OpenKey(registry.LOCAL_MACHINE, `HARDWARE\DEVICEMAP\SERIALCOMM`, registry.READ)
	if err != nil {
		return nil, fmt.Errorf("failed to open SERIALCOMM key: %w", err)
	}
	defer key.Close()

	names, err := key.ReadValueNames(-1)
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		val, _, err := key.GetStringValue(name)
		if err == nil {
			// Check if it looks like a Bluetooth port
			if strings.Contains(strings.ToLower(name), "bth") ||
				strings.Contains(strings.ToLower(name), "bluetooth") {
				ports[name] = val
			}
		}
	}

	return ports, nil
}

// EstablishRFCOMM on Windows simply returns the COM port path
// Windows handles BT SPP as regular COM ports, no special setup needed
func EstablishRFCOMM(_ context.Context, mac string, _ int, _ time.Duration, logger *zap.Logger) (*RFCOMMConnection, error) {
	// On Windows, 'mac' is actually the COM port (e.g., "COM3")
	if !strings.HasPrefix(strings.ToUpper(mac), "COM") {
		return nil, fmt.Errorf("%w: invalid COM port: %s", ErrRFCOMMFailed, mac)
	}

	// For COM ports > 9, need to use \\.\COM10 format
	comPath := mac
	if len(mac) > 4 {
		comPath = `\\.\` + mac
	}

	logger.Info("Using COM port", zap.String("port", comPath))
	return &RFCOMMConnection{
		DevicePath: comPath,
		MAC:        mac,
	}, nil
}

// Close is a no-op on Windows (COM ports don't need special cleanup)
func (c *RFCOMMConnection) Close() error {
	return nil
}
