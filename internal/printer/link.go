package printer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrNoPrinterFound is returned by Connect when no attached accessory
// speaks the target protocol.
var ErrNoPrinterFound = errors.New("no attached accessory speaks the printer protocol")

// ConnectionState is the last known link state
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connected
)

func (s ConnectionState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// ConnectionHandle identifies the open session. The underlying connection
// stays private to the LinkManager.
type ConnectionHandle struct {
	serial string
	conn   Conn
}

// SerialNumber returns the serial number the session is bound to
func (h *ConnectionHandle) SerialNumber() string {
	return h.serial
}

// LinkOptions configures a LinkManager
type LinkOptions struct {
	// Protocol is the identifier an accessory must advertise. Defaults to ZebraRawPort.
	Protocol string
	// FilterDisconnects ignores disconnect notifications for accessories
	// other than the tracked printer. Off by default: any disconnect marks
	// the printer disconnected.
	FilterDisconnects bool
	Logger            *zap.Logger
}

// LinkManager keeps a single connection to the target printer and tracks
// whether it is attached. Scan, Open, Close, Write and notification
// handling are serialized by one mutex.
type LinkManager struct {
	discoverer        Discoverer
	transport         Transport
	protocol          string
	filterDisconnects bool
	logger            *zap.Logger

	mu       sync.Mutex
	handle   *ConnectionHandle
	known    *Accessory
	shutdown bool
	cancels  []func()

	connected atomic.Bool

	listenerMu sync.Mutex
	listener   func(ConnectionState)
}

// NewLinkManager subscribes to accessory notifications and runs the startup
// scan. A printer found at startup is opened right away. notifier may be nil
// when the platform has no notification source.
// Call Shutdown to drop the subscriptions and the connection.
func NewLinkManager(ctx context.Context, discoverer Discoverer, transport Transport, notifier Notifier, opts LinkOptions) (*LinkManager, error) {
	if opts.Protocol == "" {
		opts.Protocol = ZebraRawPort
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	m := &LinkManager{
		discoverer:        discoverer,
		transport:         transport,
		protocol:          opts.Protocol,
		filterDisconnects: opts.FilterDisconnects,
		logger: opts.Logger.With(
			zap.String("component", "link"),
			zap.String("protocol", opts.Protocol),
		),
	}

	if notifier != nil {
		for kind, fn := range map[EventKind]func(Notification){
			AccessoryConnected:    m.handleConnected,
			AccessoryDisconnected: m.handleDisconnected,
		} {
			cancel, err := notifier.Subscribe(kind, fn)
			if err != nil {
				m.cancelSubscriptions()
				return nil, fmt.Errorf("failed to subscribe to %s: %w", kind, err)
			}
			m.cancels = append(m.cancels, cancel)
		}
	}

	acc, found, err := m.Scan(ctx)
	switch {
	case err != nil:
		m.logger.Warn("Startup scan failed", zap.Error(err))
	case !found:
		m.logger.Info("No printer attached at startup")
	default:
		if _, err := m.Open(ctx, acc); err != nil {
			m.logger.Warn("Failed to open printer found at startup",
				zap.String("serial", acc.SerialNumber),
				zap.Error(err),
			)
		}
	}

	return m, nil
}

// Protocol returns the protocol identifier the manager looks for
func (m *LinkManager) Protocol() string {
	return m.protocol
}

// Scan returns the first attached accessory that speaks the target protocol.
// found is false when none does; that is not an error.
func (m *LinkManager) Scan(ctx context.Context) (acc Accessory, found bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.scanLocked(ctx)
}

func (m *LinkManager) scanLocked(ctx context.Context) (Accessory, bool, error) {
	list, err := m.discoverer.Accessories(ctx)
	if err != nil {
		return Accessory{}, false, fmt.Errorf("failed to enumerate accessories: %w", err)
	}

	acc, found := FirstSupporting(list, m.protocol)
	m.logger.Debug("Scan completed",
		zap.Int("accessories", len(list)),
		zap.Bool("found", found),
		zap.String("serial", acc.SerialNumber),
	)
	return acc, found, nil
}

// Open establishes a session to acc, replacing any open session
func (m *LinkManager) Open(ctx context.Context, acc Accessory) (*ConnectionHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return nil, ErrShutdown
	}
	return m.openLocked(ctx, acc)
}

// Connect scans and opens the first matching accessory
func (m *LinkManager) Connect(ctx context.Context) (Accessory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return Accessory{}, ErrShutdown
	}

	acc, found, err := m.scanLocked(ctx)
	if err != nil {
		return Accessory{}, err
	}
	if !found {
		return Accessory{}, ErrNoPrinterFound
	}
	if _, err := m.openLocked(ctx, acc); err != nil {
		return acc, err
	}
	return acc, nil
}

func (m *LinkManager) openLocked(ctx context.Context, acc Accessory) (*ConnectionHandle, error) {
	m.closeHandleLocked()
	m.known = &acc

	conn, err := m.transport.Open(ctx, acc.SerialNumber)
	if err != nil {
		m.connected.Store(false)
		m.logger.Error("Failed to open printer connection",
			zap.String("serial", acc.SerialNumber),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, acc.SerialNumber, err)
	}

	m.handle = &ConnectionHandle{serial: acc.SerialNumber, conn: conn}
	m.connected.Store(true)

	m.logger.Info("Printer connection opened",
		zap.String("serial", acc.SerialNumber),
		zap.String("name", acc.Name),
	)
	return m.handle, nil
}

// Close releases the open session. Closing without a session is a no-op.
// The state change callback is not invoked.
func (m *LinkManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.closeHandleLocked()
	m.connected.Store(false)
	return err
}

func (m *LinkManager) closeHandleLocked() error {
	if m.handle == nil {
		return nil
	}

	h := m.handle
	m.handle = nil
	if err := h.conn.Close(); err != nil {
		m.logger.Warn("Failed to close printer connection",
			zap.String("serial", h.serial),
			zap.Error(err),
		)
		return fmt.Errorf("failed to close connection to %s: %w", h.serial, err)
	}

	m.logger.Info("Printer connection closed", zap.String("serial", h.serial))
	return nil
}

// Write sends data over the open session. Without one it first reopens the
// last known accessory. A failed write drops the session so the next
// request reconnects; nothing is retried here.
func (m *LinkManager) Write(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return ErrShutdown
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if m.handle == nil {
		if m.known == nil {
			return ErrNotConnected
		}
		m.logger.Info("Reconnecting before write", zap.String("serial", m.known.SerialNumber))
		if _, err := m.openLocked(ctx, *m.known); err != nil {
			return err
		}
	}

	h := m.handle
	if err := h.conn.Write(data); err != nil {
		m.logger.Error("Printer write failed",
			zap.String("serial", h.serial),
			zap.Int("bytes", len(data)),
			zap.Error(err),
		)
		m.closeHandleLocked()
		m.connected.Store(false)
		return &TransportError{Serial: h.serial, Err: err}
	}

	m.logger.Debug("Printer write completed",
		zap.String("serial", h.serial),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// State returns the last known state without doing I/O
func (m *LinkManager) State() ConnectionState {
	if m.connected.Load() {
		return Connected
	}
	return Disconnected
}

// IsConnected reports whether State is Connected
func (m *LinkManager) IsConnected() bool {
	return m.connected.Load()
}

// KnownAccessory returns the accessory Write reconnects to
func (m *LinkManager) KnownAccessory() (Accessory, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.known == nil {
		return Accessory{}, false
	}
	return *m.known, true
}

// OnStateChange registers the callback fired by connect and disconnect
// notifications. It replaces any earlier callback; nil removes it.
func (m *LinkManager) OnStateChange(fn func(ConnectionState)) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()

	m.listener = fn
}

func (m *LinkManager) fireStateChange(state ConnectionState) {
	m.listenerMu.Lock()
	fn := m.listener
	m.listenerMu.Unlock()

	if fn != nil {
		fn(state)
	}
}

func (m *LinkManager) handleConnected(n Notification) {
	if !n.Accessory.Supports(m.protocol) {
		m.logger.Debug("Ignoring connect of foreign accessory", zap.Stringer("accessory", n.Accessory))
		return
	}

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	acc := n.Accessory
	m.known = &acc
	m.connected.Store(true)
	m.mu.Unlock()

	m.logger.Info("Printer attached", zap.Stringer("accessory", acc))
	m.fireStateChange(Connected)
}

func (m *LinkManager) handleDisconnected(n Notification) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}

	serial := n.Accessory.SerialNumber
	if m.filterDisconnects && m.known != nil && serial != m.known.SerialNumber {
		m.mu.Unlock()
		m.logger.Debug("Ignoring disconnect of foreign accessory", zap.String("serial", serial))
		return
	}

	if m.handle != nil && (serial == "" || serial == m.handle.serial) {
		m.closeHandleLocked()
	}
	m.connected.Store(false)
	m.mu.Unlock()

	m.logger.Info("Accessory detached", zap.String("serial", serial))
	m.fireStateChange(Disconnected)
}

// Shutdown removes the notification subscriptions and closes the session.
// The manager rejects further opens and writes.
func (m *LinkManager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	err := m.closeHandleLocked()
	m.connected.Store(false)
	m.mu.Unlock()

	m.cancelSubscriptions()
	m.logger.Info("Link manager shut down")
	return err
}

func (m *LinkManager) cancelSubscriptions() {
	cancels := m.cancels
	m.cancels = nil
	for _, cancel := range cancels {
		cancel()
	}
}
