package printer

import (
	"context"
	"runtime"
	"sync"
)

type fakeDiscoverer struct {
	mu   sync.Mutex
	list []Accessory
	err  error
}

func (d *fakeDiscoverer) Accessories(context.Context) ([]Accessory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Accessory(nil), d.list...), d.err
}

func (d *fakeDiscoverer) set(list ...Accessory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.list = list
}

// fakeTransport records every byte written by any of its connections into
// one shared stream, one byte at a time, so interleaved writers show up.
type fakeTransport struct {
	mu       sync.Mutex
	opens    []string
	openErr  error
	writeErr error
	conns    []*fakeConn
	stream   []byte
}

func (t *fakeTransport) Open(_ context.Context, serial string) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.opens = append(t.opens, serial)
	if t.openErr != nil {
		return nil, t.openErr
	}
	c := &fakeConn{t: t, serial: serial}
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.opens)
}

func (t *fakeTransport) written() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.stream)
}

type fakeConn struct {
	t      *fakeTransport
	serial string
	closed bool
}

func (c *fakeConn) Write(data []byte) error {
	c.t.mu.Lock()
	err := c.t.writeErr
	c.t.mu.Unlock()
	if err != nil {
		return err
	}

	for _, b := range data {
		c.t.mu.Lock()
		c.t.stream = append(c.t.stream, b)
		c.t.mu.Unlock()
		runtime.Gosched()
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	c.closed = true
	return nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	subs      map[EventKind][]func(Notification)
	cancelled int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{subs: make(map[EventKind][]func(Notification))}
}

func (n *fakeNotifier) Subscribe(kind EventKind, fn func(Notification)) (func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.subs[kind] = append(n.subs[kind], fn)
	idx := len(n.subs[kind]) - 1
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.subs[kind][idx] = nil
		n.cancelled++
	}, nil
}

func (n *fakeNotifier) emit(kind EventKind, acc Accessory) {
	n.mu.Lock()
	fns := append([]func(Notification){}, n.subs[kind]...)
	n.mu.Unlock()

	for _, fn := range fns {
		if fn != nil {
			fn(Notification{Kind: kind, Accessory: acc})
		}
	}
}

var (
	zebra = Accessory{SerialNumber: "AC:3F:A4:00:00:01", Name: "XXZEJ", Protocols: []string{ZebraRawPort}}
	other = Accessory{SerialNumber: "00:1B:66:00:00:02", Name: "Headset", Protocols: []string{"com.example.audio"}}
)
