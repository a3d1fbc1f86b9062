package printer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"
)

// USBVendorTag is the raw identifier reported for a USB printer made by vendor
func USBVendorTag(vendor gousb.ID) string {
	return "usb:" + vendor.String()
}

// USB discovers printer class devices and opens them by serial number
type USB struct {
	ctx          *gousb.Context
	protocols    ProtocolMap
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewUSB creates a libusb context
func NewUSB(protocols ProtocolMap, writeTimeout time.Duration, logger *zap.Logger) *USB {
	return &USB{
		ctx:          gousb.NewContext(),
		protocols:    protocols,
		writeTimeout: writeTimeout,
		logger:       logger.With(zap.String("component", "usb")),
	}
}

// Close releases the libusb context
func (u *USB) Close() error {
	return u.ctx.Close()
}

// hasPrinterInterface checks the descriptor for a printer class interface
func hasPrinterInterface(desc *gousb.DeviceDesc) bool {
	for _, cfg := range desc.Configs {
		for _, iface := range cfg.Interfaces {
			for _, alt := range iface.AltSettings {
				if alt.Class == gousb.ClassPrinter {
					return true
				}
			}
		}
	}
	return false
}

func (u *USB) openPrinters() ([]*gousb.Device, error) {
	devices, err := u.ctx.OpenDevices(hasPrinterInterface)
	if err != nil && len(devices) == 0 {
		return nil, fmt.Errorf("failed to open usb devices: %w", err)
	}
	if err != nil {
		u.logger.Debug("Some usb devices could not be opened", zap.Error(err))
	}
	return devices, nil
}

// Accessories returns attached USB printers in bus order
func (u *USB) Accessories(ctx context.Context) ([]Accessory, error) {
	devices, err := u.openPrinters()
	if err != nil {
		return nil, err
	}

	accessories := make([]Accessory, 0, len(devices))
	for _, dev := range devices {
		serial, _ := dev.SerialNumber()
		product, _ := dev.Product()
		accessories = append(accessories, Accessory{
			SerialNumber: serial,
			Name:         product,
			Protocols:    u.protocols.Translate([]string{USBVendorTag(dev.Desc.Vendor)}),
		})
		dev.Close()
	}
	return accessories, nil
}

// Open claims the printer interface of the device with serialNumber
func (u *USB) Open(ctx context.Context, serialNumber string) (Conn, error) {
	devices, err := u.openPrinters()
	if err != nil {
		return nil, err
	}

	var device *gousb.Device
	for _, dev := range devices {
		s, err := dev.SerialNumber()
		if device == nil && err == nil && s == serialNumber {
			device = dev
			continue
		}
		dev.Close()
	}
	if device == nil {
		return nil, errors.New("device with serial number not found")
	}

	conn, err := claimPrinter(device)
	if err != nil {
		device.Close()
		return nil, err
	}
	conn.timeout = u.writeTimeout

	u.logger.Info("USB printer opened",
		zap.String("serial", serialNumber),
		zap.Stringer("vendor", device.Desc.Vendor),
		zap.Stringer("product", device.Desc.Product),
	)
	return conn, nil
}

func claimPrinter(device *gousb.Device) (*usbConn, error) {
	// Set auto-detach kernel driver on Linux
	if runtime.GOOS == "linux" {
		device.SetAutoDetach(true)
	}

	cfgNum, err := device.ActiveConfigNum()
	if err != nil {
		return nil, fmt.Errorf("failed to get active config: %w", err)
	}

	cfg, err := device.Config(cfgNum)
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	printerIfaceNum := -1
	for _, iface := range cfg.Desc.Interfaces {
		for _, alt := range iface.AltSettings {
			if alt.Class == gousb.ClassPrinter {
				printerIfaceNum = iface.Number
				break
			}
		}
		if printerIfaceNum >= 0 {
			break
		}
	}
	if printerIfaceNum < 0 {
		cfg.Close()
		return nil, errors.New("no printer interface found")
	}

	iface, err := cfg.Interface(printerIfaceNum, 0)
	if err != nil {
		cfg.Close()
		return nil, fmt.Errorf("failed to claim interface: %w", err)
	}

	var out *gousb.OutEndpoint
	for _, epDesc := range iface.Setting.Endpoints {
		if epDesc.Direction == gousb.EndpointDirectionOut {
			if ep, err := iface.OutEndpoint(epDesc.Number); err == nil {
				out = ep
				break
			}
		}
	}
	if out == nil {
		iface.Close()
		cfg.Close()
		return nil, errors.New("cannot find output endpoint from printer")
	}

	return &usbConn{device: device, cfg: cfg, iface: iface, out: out}, nil
}

type usbConn struct {
	device  *gousb.Device
	cfg     *gousb.Config
	iface   *gousb.Interface
	out     *gousb.OutEndpoint
	timeout time.Duration
	mu      sync.Mutex
}

func (c *usbConn) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.out == nil {
		return ErrNotConnected
	}

	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	n, err := c.out.WriteContext(ctx, data)
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}
	return nil
}

func (c *usbConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.out == nil {
		return nil
	}
	c.out = nil

	var errs []error
	c.iface.Close()
	if err := c.cfg.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.device.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
