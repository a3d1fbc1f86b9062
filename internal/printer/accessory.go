package printer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ZebraRawPort is the protocol identifier advertised by Zebra printers
// that accept raw CPCL.
const ZebraRawPort = "com.zebra.rawport"

// Common errors
var (
	ErrNotConnected       = errors.New("printer not connected")
	ErrOpenFailed         = errors.New("failed to open printer connection")
	ErrRFCOMMFailed       = errors.New("failed to establish RFCOMM connection")
	ErrPrivilegeRequired  = errors.New("root privileges required for RFCOMM")
	ErrConnectionCanceled = errors.New("connection canceled")
	ErrNotSupported       = errors.New("operation not supported on this platform")
	ErrShutdown           = errors.New("link manager shut down")
)

// TransportError reports a failed write on an open connection
type TransportError struct {
	Serial string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport write to %s failed: %v", e.Serial, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Accessory represents a physically attached peripheral
type Accessory struct {
	SerialNumber string   // MAC address for Bluetooth, COM port on Windows, USB serial
	Name         string
	Protocols    []string // protocol identifiers the accessory speaks
}

// Supports reports whether the accessory advertises protocol
func (a Accessory) Supports(protocol string) bool {
	return slices.Contains(a.Protocols, protocol)
}

func (a Accessory) String() string {
	if a.Name == "" {
		return a.SerialNumber
	}
	return fmt.Sprintf("%s (%s)", a.Name, a.SerialNumber)
}

// Discoverer enumerates currently attached accessories
type Discoverer interface {
	Accessories(ctx context.Context) ([]Accessory, error)
}

// Conn is an open byte stream to one accessory
type Conn interface {
	Write(data []byte) error
	Close() error
}

// Transport opens sessions to accessories by serial number
type Transport interface {
	Open(ctx context.Context, serialNumber string) (Conn, error)
}

// EventKind names an accessory notification
type EventKind int

const (
	AccessoryConnected EventKind = iota
	AccessoryDisconnected
)

func (k EventKind) String() string {
	switch k {
	case AccessoryConnected:
		return "accessory_connected"
	case AccessoryDisconnected:
		return "accessory_disconnected"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Notification is delivered when an accessory attaches or detaches
type Notification struct {
	Kind      EventKind
	Accessory Accessory
}

// Notifier delivers accessory notifications. The returned cancel func
// removes the subscription.
type Notifier interface {
	Subscribe(kind EventKind, fn func(Notification)) (cancel func(), err error)
}

// ProtocolMap translates raw identifiers reported by the platform
// (Bluetooth service UUIDs, USB vendor tags) into protocol identifiers.
type ProtocolMap map[string]string

// Translate returns the protocol identifiers for the raw identifiers.
// Raw identifiers without a mapping are kept as-is.
func (m ProtocolMap) Translate(raw []string) []string {
	var out []string
	for _, r := range raw {
		key := strings.ToLower(r)
		if p, ok := m[key]; ok && p != "" {
			if !slices.Contains(out, p) {
				out = append(out, p)
			}
		}
		if !slices.Contains(out, key) {
			out = append(out, key)
		}
	}
	return out
}

// FirstSupporting returns the first accessory in list that advertises protocol
func FirstSupporting(list []Accessory, protocol string) (Accessory, bool) {
	for _, a := range list {
		if a.Supports(protocol) {
			return a, true
		}
	}
	return Accessory{}, false
}
