package printer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	bluezBusName           = "org.bluez"
	bluezDeviceInterface   = "org.bluez.Device1"
	objectManagerInterface = "org.freedesktop.DBus.ObjectManager"
	propertiesInterface    = "org.freedesktop.DBus.Properties"
	propertiesChanged      = propertiesInterface + ".PropertiesChanged"
)

// SerialPortProfile is the Bluetooth SPP service class UUID. Printers that
// take raw commands over RFCOMM advertise it.
const SerialPortProfile = "00001101-0000-1000-8000-00805f9b34fb"

// BlueZ lists connected Bluetooth devices and relays their connect and
// disconnect signals from the system bus.
type BlueZ struct {
	conn      *dbus.Conn
	protocols ProtocolMap
	logger    *zap.Logger

	mu      sync.Mutex
	subs    map[int]subscription
	nextID  int
	signals chan *dbus.Signal
	stop    chan struct{}
}

// NewBlueZ connects to the system bus
func NewBlueZ(protocols ProtocolMap, logger *zap.Logger) (*BlueZ, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return &BlueZ{
		conn:      conn,
		protocols: protocols,
		logger:    logger.With(zap.String("component", "bluez")),
		subs:      make(map[int]subscription),
	}, nil
}

// Close disconnects from the system bus
func (b *BlueZ) Close() error {
	b.mu.Lock()
	b.stopSignalsLocked()
	b.mu.Unlock()
	return b.conn.Close()
}

// Accessories returns paired devices in object path order. A paired
// printer without an open RFCOMM session is still listed; whether it is in
// range shows up when the session is opened.
func (b *BlueZ) Accessories(ctx context.Context) ([]Accessory, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := b.conn.Object(bluezBusName, "/").
		CallWithContext(ctx, objectManagerInterface+".GetManagedObjects", 0).
		Store(&objects)
	if err != nil {
		return nil, fmt.Errorf("failed to list bluez objects: %w", err)
	}
	return pairedAccessories(objects, b.protocols), nil
}

func pairedAccessories(objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant, protocols ProtocolMap) []Accessory {
	paths := make([]string, 0, len(objects))
	for path := range objects {
		paths = append(paths, string(path))
	}
	sort.Strings(paths)

	var accessories []Accessory
	for _, path := range paths {
		props, ok := objects[dbus.ObjectPath(path)][bluezDeviceInterface]
		if !ok || !boolProperty(props, "Paired") {
			continue
		}
		accessories = append(accessories, accessoryFromProperties(props, protocols))
	}
	return accessories
}

// Subscribe registers fn for kind. The bus match rule is installed with the
// first subscription and removed with the last.
func (b *BlueZ) Subscribe(kind EventKind, fn func(Notification)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.signals == nil {
		if err := b.conn.AddMatchSignal(b.matchOptions()...); err != nil {
			return nil, fmt.Errorf("failed to add bluez match rule: %w", err)
		}
		b.signals = make(chan *dbus.Signal, 16)
		b.stop = make(chan struct{})
		b.conn.Signal(b.signals)
		go b.dispatch(b.signals, b.stop)
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = subscription{kind: kind, fn: fn}

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}, nil
}

func (b *BlueZ) matchOptions() []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchSender(bluezBusName),
		dbus.WithMatchInterface(propertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchArg(0, bluezDeviceInterface),
	}
}

func (b *BlueZ) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs, id)
	if len(b.subs) == 0 {
		b.stopSignalsLocked()
	}
}

func (b *BlueZ) stopSignalsLocked() {
	if b.signals == nil {
		return
	}
	b.conn.RemoveSignal(b.signals)
	if err := b.conn.RemoveMatchSignal(b.matchOptions()...); err != nil {
		b.logger.Warn("Failed to remove bluez match rule", zap.Error(err))
	}
	close(b.stop)
	b.signals = nil
	b.stop = nil
}

func (b *BlueZ) dispatch(signals <-chan *dbus.Signal, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			b.handleSignal(sig)
		}
	}
}

func (b *BlueZ) handleSignal(sig *dbus.Signal) {
	connected, ok := connectedChange(sig)
	if !ok {
		return
	}

	acc, err := b.device(sig.Path)
	if err != nil {
		b.logger.Warn("Failed to read device properties",
			zap.String("path", string(sig.Path)),
			zap.Error(err),
		)
		acc = Accessory{SerialNumber: addressFromPath(sig.Path)}
	}

	n := Notification{Kind: AccessoryDisconnected, Accessory: acc}
	if connected {
		n.Kind = AccessoryConnected
	}

	b.mu.Lock()
	var targets []func(Notification)
	for _, s := range b.subs {
		if s.kind == n.Kind {
			targets = append(targets, s.fn)
		}
	}
	b.mu.Unlock()

	b.logger.Debug("Bluetooth device state changed",
		zap.Stringer("kind", n.Kind),
		zap.Stringer("accessory", acc),
	)
	for _, fn := range targets {
		fn(n)
	}
}

func (b *BlueZ) device(path dbus.ObjectPath) (Accessory, error) {
	var props map[string]dbus.Variant
	err := b.conn.Object(bluezBusName, path).
		Call(propertiesInterface+".GetAll", 0, bluezDeviceInterface).
		Store(&props)
	if err != nil {
		return Accessory{}, err
	}
	return accessoryFromProperties(props, b.protocols), nil
}

// connectedChange extracts the new Connected value from a Device1
// PropertiesChanged signal.
func connectedChange(sig *dbus.Signal) (connected bool, ok bool) {
	if sig == nil || sig.Name != propertiesChanged || len(sig.Body) < 2 {
		return false, false
	}
	iface, _ := sig.Body[0].(string)
	if iface != bluezDeviceInterface {
		return false, false
	}
	changed, _ := sig.Body[1].(map[string]dbus.Variant)
	v, present := changed["Connected"]
	if !present {
		return false, false
	}
	connected, ok = v.Value().(bool)
	return connected, ok
}

func accessoryFromProperties(props map[string]dbus.Variant, protocols ProtocolMap) Accessory {
	acc := Accessory{
		SerialNumber: stringProperty(props, "Address"),
		Name:         stringProperty(props, "Alias"),
	}
	if acc.Name == "" {
		acc.Name = stringProperty(props, "Name")
	}
	if v, ok := props["UUIDs"]; ok {
		if uuids, ok := v.Value().([]string); ok {
			acc.Protocols = protocols.Translate(uuids)
		}
	}
	return acc
}

// addressFromPath turns /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF into AA:BB:CC:DD:EE:FF
func addressFromPath(path dbus.ObjectPath) string {
	s := string(path)
	i := strings.LastIndex(s, "/dev_")
	if i < 0 {
		return ""
	}
	return strings.ReplaceAll(s[i+len("/dev_"):], "_", ":")
}

func stringProperty(props map[string]dbus.Variant, name string) string {
	if v, ok := props[name]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

func boolProperty(props map[string]dbus.Variant, name string) bool {
	if v, ok := props[name]; ok {
		if b, ok := v.Value().(bool); ok {
			return b
		}
	}
	return false
}
