package printer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// SerialConfig holds RFCOMM and serial port settings
type SerialConfig struct {
	BaudRate       int
	Channel        int
	ReadTimeout    time.Duration
	ConnectTimeout time.Duration
}

// RFCOMMTransport opens Bluetooth printers as serial ports. On Linux the
// serial number is the device MAC, bound to a free /dev/rfcommN first;
// on Windows it is the COM port of the paired device.
type RFCOMMTransport struct {
	config SerialConfig
	logger *zap.Logger
}

// NewRFCOMMTransport creates an RFCOMM transport
func NewRFCOMMTransport(config SerialConfig, logger *zap.Logger) *RFCOMMTransport {
	if config.BaudRate == 0 {
		config.BaudRate = 115200
	}
	if config.Channel == 0 {
		config.Channel = 1
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 15 * time.Second
	}
	return &RFCOMMTransport{
		config: config,
		logger: logger.With(zap.String("component", "rfcomm")),
	}
}

// Open binds the RFCOMM channel and opens the resulting serial port
func (t *RFCOMMTransport) Open(ctx context.Context, serialNumber string) (Conn, error) {
	if serialNumber == "" {
		return nil, fmt.Errorf("%w: accessory has no address", ErrRFCOMMFailed)
	}

	link, err := EstablishRFCOMM(ctx, serialNumber, t.config.Channel, t.config.ConnectTimeout, t.logger)
	if err != nil {
		return nil, err
	}

	port, err := openPort(link.DevicePath, t.config)
	if err != nil {
		link.Close()
		return nil, err
	}

	return &serialConn{
		port:   port,
		link:   link,
		logger: t.logger.With(zap.String("port", link.DevicePath)),
	}, nil
}

func openPort(portName string, config SerialConfig) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", portName, err)
	}

	if config.ReadTimeout > 0 {
		if err := port.SetReadTimeout(config.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout: %w", err)
		}
	}
	return port, nil
}

// serialConn is an open serial port plus the RFCOMM binding behind it
type serialConn struct {
	port   serial.Port
	link   *RFCOMMConnection
	logger *zap.Logger
	mu     sync.Mutex
}

func (c *serialConn) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil {
		return ErrNotConnected
	}

	n, err := c.port.Write(data)
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}
	if err := c.port.Drain(); err != nil {
		c.logger.Debug("Drain not supported", zap.Error(err))
	}
	return nil
}

func (c *serialConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil {
		return nil
	}

	err := c.port.Close()
	c.port = nil
	if c.link != nil {
		c.link.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}
