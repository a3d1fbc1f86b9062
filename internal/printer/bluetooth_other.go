//go:build !linux && !windows

package printer

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"
)

// RFCOMMConnection is unavailable on this platform
type RFCOMMConnection struct {
	DevicePath string
	MAC        string
}

// NewBluetoothDiscovery is not supported on this platform
func NewBluetoothDiscovery(ProtocolMap, time.Duration, *zap.Logger) (Discoverer, Notifier, io.Closer, error) {
	return nil, nil, nil, ErrNotSupported
}

// EstablishRFCOMM is not supported on this platform
func EstablishRFCOMM(context.Context, string, int, time.Duration, *zap.Logger) (*RFCOMMConnection, error) {
	return nil, ErrNotSupported
}

func (c *RFCOMMConnection) Close() error {
	return nil
}
